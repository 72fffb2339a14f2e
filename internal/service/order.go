package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shestoi/paybridge/internal/payment"
	"github.com/shestoi/paybridge/internal/repository"
	"github.com/shestoi/paybridge/platform/observability"
)

// PaymentMethod способ оплаты, выбранный при создании заказа
type PaymentMethod string

const (
	MethodCrypto PaymentMethod = "crypto"
	MethodCard   PaymentMethod = "card"
)

// OrderConfig параметры ценообразования и адрес callback для крипто-провайдера
type OrderConfig struct {
	// DefaultPrice цена услуги, если заказ создаётся без Job
	DefaultPrice decimal.Decimal
	// CryptoDiscountPercent скидка на базовую цену (без чаевых) при оплате криптой
	CryptoDiscountPercent decimal.Decimal
	// CallbackURL полный адрес webhook-а крипто-провайдера
	CallbackURL string
}

// OrderService use case-ы заказов и работ: создание, чтение, выставление инвойсов
type OrderService struct {
	logger *zap.Logger
	repo   repository.OrderRepository
	crypto payment.Gateway
	card   payment.Gateway
	cfg    OrderConfig
	newID  func() string
}

// NewOrderService создаёт OrderService; шлюзы могут быть nil, тогда соответствующий способ оплаты недоступен
func NewOrderService(
	logger *zap.Logger,
	repo repository.OrderRepository,
	crypto payment.Gateway,
	card payment.Gateway,
	cfg OrderConfig,
) *OrderService {
	return &OrderService{
		logger: logger,
		repo:   repo,
		crypto: crypto,
		card:   card,
		cfg:    cfg,
		newID:  uuid.NewString,
	}
}

// CreateOrderInput входные данные POST /orders
type CreateOrderInput struct {
	JobID         string
	PaymentMethod string
	TipAmount     decimal.Decimal
	Email         string
	Phone         string
}

// CreateOrderOutput результат создания заказа
type CreateOrderOutput struct {
	OrderID string
	Amount  decimal.Decimal
	Status  payment.Status
}

// CreateOrder считает сумму один раз и сохраняет заказ в статусе unpaid.
// amount = база (цена Job или цена по умолчанию) - скидка за крипту + чаевые, округление до центов.
func (s *OrderService) CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderOutput, error) {
	log := observability.L(ctx, s.logger)

	contact, err := ValidateContact(input.Email, input.Phone)
	if err != nil {
		return nil, err
	}

	method := PaymentMethod(strings.ToLower(strings.TrimSpace(input.PaymentMethod)))
	if method != MethodCrypto && method != MethodCard {
		return nil, &payment.ValidationError{Field: "paymentMethod", Message: "must be crypto or card"}
	}

	tip := input.TipAmount.Round(2)
	if tip.IsNegative() {
		return nil, &payment.ValidationError{Field: "tipAmount", Message: "must not be negative"}
	}

	jobID := strings.TrimSpace(input.JobID)
	base := s.cfg.DefaultPrice
	if jobID != "" {
		job, err := s.repo.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.Status == repository.JobPaid {
			return nil, &payment.ValidationError{Field: "jobId", Message: "job is already paid"}
		}
		base = job.Amount
	}

	amount := s.price(base, tip, method)
	order := repository.Order{
		ID:        s.newID(),
		JobID:     jobID,
		Amount:    amount,
		TipAmount: tip,
		Currency:  "USD",
		Email:     contact.Email,
		Phone:     contact.Phone,
		Status:    payment.StatusUnpaid,
	}

	if err := s.repo.CreateOrder(ctx, order); err != nil {
		log.Error("failed to create order", zap.String("job_id", jobID), zap.Error(err))
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	log.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("job_id", jobID),
		zap.String("payment_method", string(method)),
		zap.String("amount", amount.StringFixed(2)),
	)

	return &CreateOrderOutput{
		OrderID: order.ID,
		Amount:  amount,
		Status:  order.Status,
	}, nil
}

// price база - скидка + чаевые; скидка только для крипты и только на базу
func (s *OrderService) price(base, tip decimal.Decimal, method PaymentMethod) decimal.Decimal {
	if method == MethodCrypto && s.cfg.CryptoDiscountPercent.IsPositive() {
		discount := base.Mul(s.cfg.CryptoDiscountPercent).Div(decimal.NewFromInt(100))
		base = base.Sub(discount)
	}
	return base.Add(tip).Round(2)
}

// GetOrder читает заказ, при промахе repository.ErrNotFound
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (repository.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return repository.Order{}, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

// GetJob читает работу, при промахе repository.ErrJobNotFound
func (s *OrderService) GetJob(ctx context.Context, jobID string) (repository.Job, error) {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return repository.Job{}, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// CreateCryptoInvoiceInput входные данные POST /orders/{id}/payments/crypto
type CreateCryptoInvoiceInput struct {
	OrderID  string
	Currency string
	Network  string
}

// CreateCryptoInvoice выставляет инвойс у крипто-провайдера и записывает его на заказ.
// Если провайдер упал, заказ остаётся unpaid без externalId и запрос можно повторить.
func (s *OrderService) CreateCryptoInvoice(ctx context.Context, input CreateCryptoInvoiceInput) (repository.Order, error) {
	log := observability.L(ctx, s.logger)

	currency := SanitizeCode(input.Currency)
	network := SanitizeCode(input.Network)
	if currency == "" || network == "" {
		return repository.Order{}, &payment.ValidationError{Message: "invalid currency or network"}
	}
	if s.crypto == nil {
		return repository.Order{}, &payment.ValidationError{Field: "paymentMethod", Message: "crypto payments are not configured"}
	}

	order, err := s.repo.GetOrder(ctx, input.OrderID)
	if err != nil {
		return repository.Order{}, err
	}
	// проверяем до вызова провайдера, чтобы не плодить у него лишние инвойсы
	if order.Status.Terminal() {
		return repository.Order{}, repository.ErrOrderClosed
	}
	if order.ExternalID != "" {
		return repository.Order{}, repository.ErrInvoiceAlreadyAttached
	}

	inv, err := s.crypto.CreateInvoice(ctx, payment.InvoiceRequest{
		OrderID:     order.ID,
		JobID:       order.JobID,
		Amount:      order.Amount,
		TipAmount:   order.TipAmount,
		PayCurrency: currency,
		Network:     network,
		CallbackURL: s.cfg.CallbackURL,
	})
	if err != nil {
		log.Error("crypto invoice creation failed", zap.String("order_id", order.ID), zap.Error(err))
		return repository.Order{}, err
	}

	updated, err := s.repo.AttachInvoice(ctx, order.ID, repository.InvoiceFields{
		ExternalID:  inv.ExternalID,
		PayAmount:   inv.PayAmount,
		PayAddress:  inv.PayAddress,
		PayCurrency: inv.PayCurrency,
		NetworkName: inv.NetworkName,
		QRCode:      inv.QRCode,
		ExpiresAt:   inv.ExpiresAt,
	})
	if err != nil {
		// параллельный запрос успел первым; инвойс провайдера просто истечёт
		log.Warn("failed to attach crypto invoice",
			zap.String("order_id", order.ID),
			zap.String("external_id", inv.ExternalID),
			zap.Error(err))
		return repository.Order{}, err
	}

	log.Info("crypto invoice attached",
		zap.String("order_id", order.ID),
		zap.String("external_id", inv.ExternalID),
		zap.Time("expires_at", inv.ExpiresAt),
	)
	return updated, nil
}

// CreateCardSessionInput входные данные POST /orders/{id}/payments/card
type CreateCardSessionInput struct {
	OrderID       string
	CustomerEmail string
}

// CreateCardSession создаёт hosted checkout и возвращает ссылку на оплату.
// Id сессии на заказ не пишется: уведомления карты ссылаются на заказ по его id.
func (s *OrderService) CreateCardSession(ctx context.Context, input CreateCardSessionInput) (string, error) {
	log := observability.L(ctx, s.logger)

	if s.card == nil {
		return "", &payment.ValidationError{Field: "paymentMethod", Message: "card payments are not configured"}
	}

	order, err := s.repo.GetOrder(ctx, input.OrderID)
	if err != nil {
		return "", err
	}
	if order.Status.Terminal() {
		return "", repository.ErrOrderClosed
	}

	description := ""
	if order.JobID != "" {
		job, err := s.repo.GetJob(ctx, order.JobID)
		if err != nil && !errors.Is(err, repository.ErrJobNotFound) {
			return "", err
		}
		description = job.Description
	}

	email := order.Email
	if email == "" {
		email = sanitizeText(input.CustomerEmail, maxEmailLen)
	}

	inv, err := s.card.CreateInvoice(ctx, payment.InvoiceRequest{
		OrderID:       order.ID,
		JobID:         order.JobID,
		Amount:        order.Amount,
		TipAmount:     order.TipAmount,
		Description:   description,
		CustomerEmail: email,
	})
	if err != nil {
		log.Error("card session creation failed", zap.String("order_id", order.ID), zap.Error(err))
		return "", err
	}

	log.Info("card session created",
		zap.String("order_id", order.ID),
		zap.String("session_id", inv.ExternalID),
	)
	return inv.CheckoutURL, nil
}
