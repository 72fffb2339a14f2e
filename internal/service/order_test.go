package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shestoi/paybridge/internal/payment"
	paymentMocks "github.com/shestoi/paybridge/internal/payment/mocks"
	"github.com/shestoi/paybridge/internal/repository"
	repoMocks "github.com/shestoi/paybridge/internal/repository/mocks"
	"github.com/shestoi/paybridge/internal/service"
)

var testOrderConfig = service.OrderConfig{
	DefaultPrice:          decimal.RequireFromString("399"),
	CryptoDiscountPercent: decimal.NewFromInt(5),
	CallbackURL:           "https://pay.example.com/payments/webhook/crypto",
}

func TestOrderService_CreateOrder(t *testing.T) {
	ctx := context.Background()
	job := repository.Job{ID: "j1", Amount: decimal.RequireFromString("125.00"), Status: repository.JobPending}

	tests := []struct {
		name           string
		input          service.CreateOrderInput
		job            *repository.Job
		jobErr         error
		repoErr        error
		expectCreate   bool
		expectedAmount string
		expectedError  error
		isValidation   bool
	}{
		{
			name:           "success: job price plus tip, card",
			input:          service.CreateOrderInput{JobID: "j1", PaymentMethod: "card", TipAmount: decimal.RequireFromString("10"), Email: "a@b.co"},
			job:            &job,
			expectCreate:   true,
			expectedAmount: "135.00",
		},
		{
			name:           "success: crypto discount applies to base only",
			input:          service.CreateOrderInput{JobID: "j1", PaymentMethod: "crypto", TipAmount: decimal.RequireFromString("10"), Email: "a@b.co"},
			job:            &job,
			expectCreate:   true,
			expectedAmount: "128.75",
		},
		{
			name:           "success: default price without job",
			input:          service.CreateOrderInput{PaymentMethod: "CARD", Email: "a@b.co"},
			expectCreate:   true,
			expectedAmount: "399.00",
		},
		{
			name:           "success: fractional tip rounded once",
			input:          service.CreateOrderInput{PaymentMethod: "crypto", TipAmount: decimal.RequireFromString("0.005"), Email: "a@b.co"},
			expectCreate:   true,
			expectedAmount: "379.06",
		},
		{
			name:         "error: invalid contact",
			input:        service.CreateOrderInput{PaymentMethod: "card", Email: "not-an-email"},
			isValidation: true,
		},
		{
			name:         "error: unknown payment method",
			input:        service.CreateOrderInput{PaymentMethod: "paypal", Email: "a@b.co"},
			isValidation: true,
		},
		{
			name:         "error: negative tip",
			input:        service.CreateOrderInput{PaymentMethod: "card", TipAmount: decimal.NewFromInt(-1), Email: "a@b.co"},
			isValidation: true,
		},
		{
			name:          "error: unknown job",
			input:         service.CreateOrderInput{JobID: "missing", PaymentMethod: "card", Email: "a@b.co"},
			jobErr:        repository.ErrJobNotFound,
			expectedError: repository.ErrJobNotFound,
		},
		{
			name:         "error: job already paid",
			input:        service.CreateOrderInput{JobID: "j1", PaymentMethod: "card", Email: "a@b.co"},
			job:          &repository.Job{ID: "j1", Amount: decimal.NewFromInt(1), Status: repository.JobPaid},
			isValidation: true,
		},
		{
			name:         "error: store failure",
			input:        service.CreateOrderInput{PaymentMethod: "card", Email: "a@b.co"},
			repoErr:      &payment.StoreError{Op: "create order", Err: errors.New("timeout")},
			expectCreate: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			mockRepo := repoMocks.NewOrderRepository(t)
			svc := service.NewOrderService(zap.NewNop(), mockRepo, nil, nil, testOrderConfig)

			if tt.job != nil || tt.jobErr != nil {
				var j repository.Job
				if tt.job != nil {
					j = *tt.job
				}
				mockRepo.On("GetJob", ctx, tt.input.JobID).Return(j, tt.jobErr).Once()
			}

			if tt.expectCreate {
				mockRepo.On("CreateOrder", ctx, mock.MatchedBy(func(o repository.Order) bool {
					return o.ID != "" &&
						o.JobID == tt.input.JobID &&
						o.Status == payment.StatusUnpaid &&
						o.Currency == "USD" &&
						(tt.expectedAmount == "" || o.Amount.StringFixed(2) == tt.expectedAmount)
				})).Return(tt.repoErr).Once()
			} else {
				mockRepo.AssertNotCalled(t, "CreateOrder")
			}

			// Act
			out, err := svc.CreateOrder(ctx, tt.input)

			// Assert
			switch {
			case tt.isValidation:
				var valErr *payment.ValidationError
				require.True(t, errors.As(err, &valErr), "expected validation error, got %v", err)
				require.Nil(t, out)
			case tt.expectedError != nil:
				require.ErrorIs(t, err, tt.expectedError)
				require.Nil(t, out)
			case tt.repoErr != nil:
				require.Error(t, err)
				require.Contains(t, err.Error(), "failed to create order")
			default:
				require.NoError(t, err)
				require.NotEmpty(t, out.OrderID)
				require.Equal(t, tt.expectedAmount, out.Amount.StringFixed(2))
				require.Equal(t, payment.StatusUnpaid, out.Status)
			}
		})
	}
}

func TestOrderService_CreateCryptoInvoice(t *testing.T) {
	ctx := context.Background()
	unpaid := repository.Order{ID: "o1", JobID: "j1", Amount: decimal.RequireFromString("135.00"), TipAmount: decimal.NewFromInt(10), Status: payment.StatusUnpaid}
	invoice := payment.Invoice{
		ExternalID:  "trk_1",
		PayAmount:   decimal.RequireFromString("135.12"),
		PayAddress:  "TQ1",
		PayCurrency: "USDT",
		NetworkName: "TRON",
		ExpiresAt:   time.Unix(1760000000, 0).UTC(),
	}

	t.Run("success", func(t *testing.T) {
		mockRepo := repoMocks.NewOrderRepository(t)
		mockGateway := paymentMocks.NewGateway(t)
		svc := service.NewOrderService(zap.NewNop(), mockRepo, mockGateway, nil, testOrderConfig)

		mockRepo.On("GetOrder", ctx, "o1").Return(unpaid, nil).Once()
		mockGateway.On("CreateInvoice", ctx, mock.MatchedBy(func(req payment.InvoiceRequest) bool {
			return req.OrderID == "o1" &&
				req.Amount.Equal(unpaid.Amount) &&
				req.PayCurrency == "USDT" &&
				req.Network == "TRC20" &&
				req.CallbackURL == testOrderConfig.CallbackURL
		})).Return(invoice, nil).Once()

		attached := unpaid
		attached.ExternalID = "trk_1"
		mockRepo.On("AttachInvoice", ctx, "o1", repository.InvoiceFields{
			ExternalID:  invoice.ExternalID,
			PayAmount:   invoice.PayAmount,
			PayAddress:  invoice.PayAddress,
			PayCurrency: invoice.PayCurrency,
			NetworkName: invoice.NetworkName,
			ExpiresAt:   invoice.ExpiresAt,
		}).Return(attached, nil).Once()

		got, err := svc.CreateCryptoInvoice(ctx, service.CreateCryptoInvoiceInput{OrderID: "o1", Currency: " usdt", Network: "trc20"})
		require.NoError(t, err)
		require.Equal(t, "trk_1", got.ExternalID)
	})

	t.Run("invalid codes rejected before any lookup", func(t *testing.T) {
		mockRepo := repoMocks.NewOrderRepository(t)
		mockGateway := paymentMocks.NewGateway(t)
		svc := service.NewOrderService(zap.NewNop(), mockRepo, mockGateway, nil, testOrderConfig)

		_, err := svc.CreateCryptoInvoice(ctx, service.CreateCryptoInvoiceInput{OrderID: "o1", Currency: "<>", Network: "TRC20"})
		var valErr *payment.ValidationError
		require.True(t, errors.As(err, &valErr))
	})

	t.Run("invoice already attached", func(t *testing.T) {
		mockRepo := repoMocks.NewOrderRepository(t)
		mockGateway := paymentMocks.NewGateway(t)
		svc := service.NewOrderService(zap.NewNop(), mockRepo, mockGateway, nil, testOrderConfig)

		withInvoice := unpaid
		withInvoice.ExternalID = "trk_0"
		mockRepo.On("GetOrder", ctx, "o1").Return(withInvoice, nil).Once()

		_, err := svc.CreateCryptoInvoice(ctx, service.CreateCryptoInvoiceInput{OrderID: "o1", Currency: "USDT", Network: "TRC20"})
		require.ErrorIs(t, err, repository.ErrInvoiceAlreadyAttached)
		mockGateway.AssertNotCalled(t, "CreateInvoice", mock.Anything, mock.Anything)
	})

	t.Run("closed order", func(t *testing.T) {
		mockRepo := repoMocks.NewOrderRepository(t)
		mockGateway := paymentMocks.NewGateway(t)
		svc := service.NewOrderService(zap.NewNop(), mockRepo, mockGateway, nil, testOrderConfig)

		closed := unpaid
		closed.Status = payment.StatusExpired
		mockRepo.On("GetOrder", ctx, "o1").Return(closed, nil).Once()

		_, err := svc.CreateCryptoInvoice(ctx, service.CreateCryptoInvoiceInput{OrderID: "o1", Currency: "USDT", Network: "TRC20"})
		require.ErrorIs(t, err, repository.ErrOrderClosed)
	})

	t.Run("unknown order", func(t *testing.T) {
		mockRepo := repoMocks.NewOrderRepository(t)
		mockGateway := paymentMocks.NewGateway(t)
		svc := service.NewOrderService(zap.NewNop(), mockRepo, mockGateway, nil, testOrderConfig)

		mockRepo.On("GetOrder", ctx, "missing").Return(repository.Order{}, repository.ErrNotFound).Once()

		_, err := svc.CreateCryptoInvoice(ctx, service.CreateCryptoInvoiceInput{OrderID: "missing", Currency: "USDT", Network: "TRC20"})
		require.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("provider failure leaves order untouched", func(t *testing.T) {
		mockRepo := repoMocks.NewOrderRepository(t)
		mockGateway := paymentMocks.NewGateway(t)
		svc := service.NewOrderService(zap.NewNop(), mockRepo, mockGateway, nil, testOrderConfig)

		mockRepo.On("GetOrder", ctx, "o1").Return(unpaid, nil).Once()
		provErr := &payment.ProviderError{Provider: payment.ProviderCrypto, Message: "Invalid pay currency"}
		mockGateway.On("CreateInvoice", ctx, mock.Anything).Return(payment.Invoice{}, provErr).Once()

		_, err := svc.CreateCryptoInvoice(ctx, service.CreateCryptoInvoiceInput{OrderID: "o1", Currency: "USDT", Network: "TRC20"})
		var got *payment.ProviderError
		require.True(t, errors.As(err, &got))
		mockRepo.AssertNotCalled(t, "AttachInvoice", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("crypto not configured", func(t *testing.T) {
		mockRepo := repoMocks.NewOrderRepository(t)
		svc := service.NewOrderService(zap.NewNop(), mockRepo, nil, nil, testOrderConfig)

		_, err := svc.CreateCryptoInvoice(ctx, service.CreateCryptoInvoiceInput{OrderID: "o1", Currency: "USDT", Network: "TRC20"})
		var valErr *payment.ValidationError
		require.True(t, errors.As(err, &valErr))
	})
}

func TestOrderService_CreateCardSession(t *testing.T) {
	ctx := context.Background()
	order := repository.Order{ID: "o1", JobID: "j1", Amount: decimal.RequireFromString("135.00"), TipAmount: decimal.NewFromInt(10), Email: "a@b.co", Status: payment.StatusUnpaid}

	t.Run("success", func(t *testing.T) {
		mockRepo := repoMocks.NewOrderRepository(t)
		mockCard := paymentMocks.NewGateway(t)
		svc := service.NewOrderService(zap.NewNop(), mockRepo, nil, mockCard, testOrderConfig)

		mockRepo.On("GetOrder", ctx, "o1").Return(order, nil).Once()
		mockRepo.On("GetJob", ctx, "j1").Return(repository.Job{ID: "j1", Description: "Deep cleaning"}, nil).Once()
		mockCard.On("CreateInvoice", ctx, mock.MatchedBy(func(req payment.InvoiceRequest) bool {
			return req.OrderID == "o1" &&
				req.Description == "Deep cleaning" &&
				req.CustomerEmail == "a@b.co" &&
				req.TipAmount.Equal(decimal.NewFromInt(10))
		})).Return(payment.Invoice{ExternalID: "cs_1", CheckoutURL: "https://checkout.stripe.com/cs_1"}, nil).Once()

		url, err := svc.CreateCardSession(ctx, service.CreateCardSessionInput{OrderID: "o1"})
		require.NoError(t, err)
		require.Equal(t, "https://checkout.stripe.com/cs_1", url)
		// id сессии на заказ не пишется
		mockRepo.AssertNotCalled(t, "AttachInvoice", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("paid order rejected", func(t *testing.T) {
		mockRepo := repoMocks.NewOrderRepository(t)
		mockCard := paymentMocks.NewGateway(t)
		svc := service.NewOrderService(zap.NewNop(), mockRepo, nil, mockCard, testOrderConfig)

		paid := order
		paid.Status = payment.StatusPaid
		mockRepo.On("GetOrder", ctx, "o1").Return(paid, nil).Once()

		_, err := svc.CreateCardSession(ctx, service.CreateCardSessionInput{OrderID: "o1"})
		require.ErrorIs(t, err, repository.ErrOrderClosed)
	})
}
