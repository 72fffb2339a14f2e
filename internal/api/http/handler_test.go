package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shestoi/paybridge/internal/payment"
	paymentMocks "github.com/shestoi/paybridge/internal/payment/mocks"
	"github.com/shestoi/paybridge/internal/provider/oxapay"
	"github.com/shestoi/paybridge/internal/repository"
	"github.com/shestoi/paybridge/internal/repository/memory"
	"github.com/shestoi/paybridge/internal/service"
)

const testMerchantKey = "http-test-merchant-key"

type testAPI struct {
	router http.Handler
	repo   *memory.Repository
	card   *paymentMocks.Gateway
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	oxapaySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":200,"data":{"track_id":"trk_42","address":"TQaddr","pay_amount":128.75,"pay_currency":"usdt","network":"TRON","qr_code":"https://qr/x","expired_at":4102444800}}`))
	}))
	t.Cleanup(oxapaySrv.Close)

	logger := zap.NewNop()
	repo := memory.NewRepository()
	journal := memory.NewJournal(0)
	crypto := oxapay.NewClient(logger, oxapay.Config{MerchantKey: testMerchantKey, APIURL: oxapaySrv.URL, Timeout: time.Second})

	card := paymentMocks.NewGateway(t)
	card.On("Provider").Return(payment.ProviderCard).Maybe()

	orders := service.NewOrderService(logger, repo, crypto, card, service.OrderConfig{
		DefaultPrice:          decimal.RequireFromString("399"),
		CryptoDiscountPercent: decimal.NewFromInt(5),
		CallbackURL:           "https://pay.example.com/payments/webhook/crypto",
	})
	dispatcher := service.NewDispatcher(logger, service.NewReconciler(logger, repo, nil), journal, crypto, card)

	router := NewRouter(NewHandler(logger, orders, dispatcher, journal), RouterConfig{
		AllowedOrigins: []string{"https://shop.example.com"},
		Readiness:      repo.Ping,
	}, nil)

	return &testAPI{router: router, repo: repo, card: card}
}

func (a *testAPI) do(t *testing.T, method, path string, body []byte, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) createOrder(t *testing.T, body string) CreateOrderResponse {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/orders", []byte(body), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp CreateOrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func signedCrypto(body string) http.Header {
	h := http.Header{}
	h.Set(oxapay.SignatureHeader, oxapay.Sign(testMerchantKey, []byte(body)))
	return h
}

func TestPostOrders(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		expectedStatus int
		expectedAmount string
	}{
		{
			name:           "job with tip paid by crypto",
			body:           `{"jobId":"j1","paymentMethod":"crypto","tipAmount":10,"contact":{"email":"a@b.co"}}`,
			expectedStatus: http.StatusCreated,
			expectedAmount: "128.75",
		},
		{
			name:           "default price by card",
			body:           `{"paymentMethod":"card","tipAmount":"0","contact":{"email":"a@b.co","phone":"+1 555"}}`,
			expectedStatus: http.StatusCreated,
			expectedAmount: "399.00",
		},
		{
			name:           "invalid email",
			body:           `{"paymentMethod":"card","contact":{"email":"not-an-email"}}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unknown job",
			body:           `{"jobId":"missing","paymentMethod":"card","contact":{"email":"a@b.co"}}`,
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "broken json",
			body:           `{"paymentMethod":`,
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			api := newTestAPI(t)
			require.NoError(t, api.repo.CreateJob(context.Background(), repository.Job{ID: "j1", Amount: decimal.RequireFromString("125")}))

			// Act
			rec := api.do(t, http.MethodPost, "/orders", []byte(tt.body), nil)

			// Assert
			require.Equal(t, tt.expectedStatus, rec.Code, rec.Body.String())
			if tt.expectedAmount != "" {
				var resp CreateOrderResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.NotEmpty(t, resp.OrderID)
				assert.Equal(t, tt.expectedAmount, resp.Amount)
				assert.Equal(t, "unpaid", resp.Status)
			}
		})
	}
}

func TestCryptoFlow(t *testing.T) {
	ctx := context.Background()
	api := newTestAPI(t)
	require.NoError(t, api.repo.CreateJob(ctx, repository.Job{ID: "j1", Amount: decimal.RequireFromString("125")}))

	created := api.createOrder(t, `{"jobId":"j1","paymentMethod":"crypto","tipAmount":10,"contact":{"email":"a@b.co"}}`)

	// инвойс
	rec := api.do(t, http.MethodPost, "/orders/"+created.OrderID+"/payments/crypto", []byte(`{"currency":"usdt","network":"trc20"}`), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var order OrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.Equal(t, "trk_42", order.ExternalID)
	assert.Equal(t, "https://pay.oxapay.com/redirect/trk_42", order.PayLink)
	assert.Equal(t, "TQaddr", order.PayAddress)
	assert.Equal(t, "USDT", order.PayCurrency)
	require.NotNil(t, order.ExpiresAt)

	// второй инвойс на тот же заказ
	rec = api.do(t, http.MethodPost, "/orders/"+created.OrderID+"/payments/crypto", []byte(`{"currency":"usdt","network":"trc20"}`), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// подделанная подпись ничего не меняет
	paid := `{"trackId":"trk_42","status":"Paid"}`
	rec = api.do(t, http.MethodPost, "/payments/webhook/crypto", []byte(paid), signedCrypto(`{"trackId":"trk_42","status":"expired"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet, "/orders/"+created.OrderID, nil, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.Equal(t, "unpaid", order.Status)

	// оплата и её дубликат подтверждаются одинаково
	for i := 0; i < 2; i++ {
		rec = api.do(t, http.MethodPost, "/payments/webhook/crypto", []byte(paid), signedCrypto(paid))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec = api.do(t, http.MethodGet, "/orders/"+created.OrderID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.Equal(t, "paid", order.Status)

	rec = api.do(t, http.MethodGet, "/jobs/j1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var job JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, "paid", job.Status)
	assert.Equal(t, "125.00", job.Amount)

	// на закрытый заказ инвойс не выставляется
	rec = api.do(t, http.MethodPost, "/orders/"+created.OrderID+"/payments/card", nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, http.MethodGet, "/orders/"+created.OrderID+"/deliveries", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var deliveries []DeliveryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &deliveries))
	require.Len(t, deliveries, 2)
	assert.ElementsMatch(t, []string{"applied", "duplicate"}, []string{deliveries[0].Outcome, deliveries[1].Outcome})
}

func TestCardFlow(t *testing.T) {
	api := newTestAPI(t)
	created := api.createOrder(t, `{"paymentMethod":"card","tipAmount":5,"contact":{"email":"a@b.co"}}`)

	api.card.On("CreateInvoice", mock.Anything, mock.MatchedBy(func(req payment.InvoiceRequest) bool {
		return req.OrderID == created.OrderID && req.Amount.Equal(decimal.RequireFromString("404")) && req.CustomerEmail == "a@b.co"
	})).Return(payment.Invoice{ExternalID: "cs_1", CheckoutURL: "https://checkout.example/cs_1"}, nil).Once()

	rec := api.do(t, http.MethodPost, "/orders/"+created.OrderID+"/payments/card", []byte(`{"customerEmail":"other@b.co"}`), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"checkoutUrl":"https://checkout.example/cs_1"}`, rec.Body.String())

	body := []byte(`{"type":"checkout.session.completed"}`)
	api.card.On("VerifyAndParse", mock.Anything, body).Return(payment.Event{
		OrderKey:  created.OrderID,
		KeyKind:   payment.KeyOrderID,
		NewStatus: payment.StatusPaid,
		Provider:  payment.ProviderCard,
		RawStatus: "checkout.session.completed",
	}, nil).Once()

	rec = api.do(t, http.MethodPost, "/payments/webhook/card", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	order, err := api.repo.GetOrder(context.Background(), created.OrderID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPaid, order.Status)
	assert.Empty(t, order.ExternalID)
}

func TestCardSession_ProviderError(t *testing.T) {
	api := newTestAPI(t)
	created := api.createOrder(t, `{"paymentMethod":"card","contact":{"email":"a@b.co"}}`)

	api.card.On("CreateInvoice", mock.Anything, mock.Anything).
		Return(payment.Invoice{}, &payment.ProviderError{Provider: payment.ProviderCard, StatusCode: 502, Message: "upstream down"}).Once()

	rec := api.do(t, http.MethodPost, "/orders/"+created.OrderID+"/payments/card", nil, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "upstream down")
}

func TestWebhook_Acknowledgements(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name           string
		provider       string
		body           string
		header         http.Header
		expectedStatus int
	}{
		{name: "unknown order acknowledged", provider: "crypto", body: `{"trackId":"trk_none","status":"paid"}`, expectedStatus: http.StatusOK},
		{name: "intermediate status acknowledged", provider: "crypto", body: `{"trackId":"trk_none","status":"paying"}`, expectedStatus: http.StatusOK},
		{name: "missing signature", provider: "crypto", body: `{"trackId":"trk_none","status":"paid"}`, header: http.Header{}, expectedStatus: http.StatusBadRequest},
		{name: "unknown provider", provider: "paypal", body: `{}`, header: http.Header{}, expectedStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := tt.header
			if header == nil {
				header = signedCrypto(tt.body)
			}
			rec := api.do(t, http.MethodPost, "/payments/webhook/"+tt.provider, []byte(tt.body), header)
			assert.Equal(t, tt.expectedStatus, rec.Code, rec.Body.String())
		})
	}
}

func TestGetNotFound(t *testing.T) {
	api := newTestAPI(t)

	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/orders/nope", nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/jobs/nope", nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodPost, "/orders/nope/payments/crypto", []byte(`{"currency":"USDT","network":"TRC20"}`), nil).Code)
}

func TestCryptoInvoice_InvalidCodes(t *testing.T) {
	api := newTestAPI(t)
	created := api.createOrder(t, `{"paymentMethod":"crypto","contact":{"email":"a@b.co"}}`)

	rec := api.do(t, http.MethodPost, "/orders/"+created.OrderID+"/payments/crypto", []byte(`{"currency":"<>","network":"TRC20"}`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndCORS(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	h := http.Header{}
	h.Set("Origin", "https://shop.example.com")
	h.Set("Access-Control-Request-Method", http.MethodPost)
	rec = api.do(t, http.MethodOptions, "/orders", nil, h)
	assert.Equal(t, "https://shop.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_NoFrontendConfigured(t *testing.T) {
	router := NewRouter(&Handler{}, RouterConfig{AllowedOrigins: nil}, nil)

	tests := []struct {
		name   string
		method string
		header http.Header
	}{
		{
			name:   "simple request from foreign origin",
			method: http.MethodGet,
			header: http.Header{"Origin": []string{"https://evil.example"}},
		},
		{
			name:   "preflight from foreign origin",
			method: http.MethodOptions,
			header: http.Header{
				"Origin":                        []string{"https://evil.example"},
				"Access-Control-Request-Method": []string{http.MethodPost},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			req := httptest.NewRequest(tt.method, "/health", nil)
			for k, v := range tt.header {
				req.Header[k] = v
			}
			rec := httptest.NewRecorder()

			// Act
			router.ServeHTTP(rec, req)

			// Assert
			assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}
