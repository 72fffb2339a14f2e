// Package httpapi HTTP-поверхность PayBridge: заказы, работы и вебхуки провайдеров
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shestoi/paybridge/internal/payment"
	"github.com/shestoi/paybridge/internal/repository"
	"github.com/shestoi/paybridge/internal/service"
	"github.com/shestoi/paybridge/platform/observability"
)

const (
	maxRequestBody = 64 << 10
	// конверты событий карты бывают крупными
	maxWebhookBody = 1 << 20

	payLinkPrefix = "https://pay.oxapay.com/redirect/"
	deliveriesMax = 50
)

// Handler HTTP-обработчики; бизнес-логика целиком в service
type Handler struct {
	logger     *zap.Logger
	orders     *service.OrderService
	dispatcher *service.Dispatcher
	journal    repository.DeliveryJournal
}

// NewHandler journal может быть nil, тогда /orders/{id}/deliveries отвечает 404
func NewHandler(logger *zap.Logger, orders *service.OrderService, dispatcher *service.Dispatcher, journal repository.DeliveryJournal) *Handler {
	return &Handler{
		logger:     logger,
		orders:     orders,
		dispatcher: dispatcher,
		journal:    journal,
	}
}

type contactRequest struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// CreateOrderRequest тело POST /orders
type CreateOrderRequest struct {
	JobID         string          `json:"jobId"`
	PaymentMethod string          `json:"paymentMethod"`
	TipAmount     decimal.Decimal `json:"tipAmount"`
	Contact       contactRequest  `json:"contact"`
}

// CreateOrderResponse ответ POST /orders
type CreateOrderResponse struct {
	OrderID string `json:"orderId"`
	Amount  string `json:"amount"`
	Status  string `json:"status"`
}

// OrderResponse проекция заказа для клиента; контакты наружу не отдаются
type OrderResponse struct {
	ID          string     `json:"id"`
	JobID       string     `json:"jobId,omitempty"`
	Amount      string     `json:"amount"`
	TipAmount   string     `json:"tipAmount"`
	Currency    string     `json:"currency"`
	Status      string     `json:"status"`
	ExternalID  string     `json:"externalId,omitempty"`
	PayAmount   string     `json:"payAmount,omitempty"`
	PayAddress  string     `json:"payAddress,omitempty"`
	PayCurrency string     `json:"payCurrency,omitempty"`
	NetworkName string     `json:"networkName,omitempty"`
	QRCode      string     `json:"qrCode,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	PayLink     string     `json:"payLink,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// JobResponse проекция работы
type JobResponse struct {
	ID          string    `json:"id"`
	Amount      string    `json:"amount"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type cryptoPaymentRequest struct {
	Currency string `json:"currency"`
	Network  string `json:"network"`
}

type cardPaymentRequest struct {
	CustomerEmail string `json:"customerEmail"`
}

type cardPaymentResponse struct {
	CheckoutURL string `json:"checkoutUrl"`
}

// DeliveryResponse запись журнала уведомлений
type DeliveryResponse struct {
	Provider   string    `json:"provider"`
	ReceivedAt time.Time `json:"receivedAt"`
	Outcome    string    `json:"outcome"`
	OrderKey   string    `json:"orderKey"`
	KeyKind    string    `json:"keyKind"`
	RawStatus  string    `json:"rawStatus,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// PostOrders POST /orders
func (h *Handler) PostOrders(w http.ResponseWriter, r *http.Request) {
	log := observability.L(r.Context(), h.logger)

	var req CreateOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	out, err := h.orders.CreateOrder(r.Context(), service.CreateOrderInput{
		JobID:         req.JobID,
		PaymentMethod: req.PaymentMethod,
		TipAmount:     req.TipAmount,
		Email:         req.Contact.Email,
		Phone:         req.Contact.Phone,
	})
	if err != nil {
		writeServiceError(w, log, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateOrderResponse{
		OrderID: out.OrderID,
		Amount:  out.Amount.StringFixed(2),
		Status:  string(out.Status),
	})
}

// GetOrder GET /orders/{id}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	log := observability.L(r.Context(), h.logger)

	order, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// PostCryptoPayment POST /orders/{id}/payments/crypto
func (h *Handler) PostCryptoPayment(w http.ResponseWriter, r *http.Request) {
	log := observability.L(r.Context(), h.logger)

	var req cryptoPaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	order, err := h.orders.CreateCryptoInvoice(r.Context(), service.CreateCryptoInvoiceInput{
		OrderID:  chi.URLParam(r, "id"),
		Currency: req.Currency,
		Network:  req.Network,
	})
	if err != nil {
		writeServiceError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// PostCardPayment POST /orders/{id}/payments/card
func (h *Handler) PostCardPayment(w http.ResponseWriter, r *http.Request) {
	log := observability.L(r.Context(), h.logger)

	// тело необязательно
	var req cardPaymentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	url, err := h.orders.CreateCardSession(r.Context(), service.CreateCardSessionInput{
		OrderID:       chi.URLParam(r, "id"),
		CustomerEmail: req.CustomerEmail,
	})
	if err != nil {
		writeServiceError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, cardPaymentResponse{CheckoutURL: url})
}

// GetJob GET /jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	log := observability.L(r.Context(), h.logger)

	job, err := h.orders.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, JobResponse{
		ID:          job.ID,
		Amount:      job.Amount.StringFixed(2),
		Description: job.Description,
		Status:      string(job.Status),
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
	})
}

// GetOrderDeliveries GET /orders/{id}/deliveries: уведомления провайдеров по заказу,
// как по id заказа, так и по externalId, новые первыми
func (h *Handler) GetOrderDeliveries(w http.ResponseWriter, r *http.Request) {
	log := observability.L(r.Context(), h.logger)

	if h.journal == nil {
		writeError(w, http.StatusNotFound, "delivery journal is disabled")
		return
	}

	order, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, log, err)
		return
	}

	keys := []string{order.ID}
	if order.ExternalID != "" {
		keys = append(keys, order.ExternalID)
	}

	var all []repository.Delivery
	for _, key := range keys {
		ds, err := h.journal.ListByOrderKey(r.Context(), key, deliveriesMax)
		if err != nil {
			writeServiceError(w, log, err)
			return
		}
		all = append(all, ds...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].ReceivedAt.After(all[j].ReceivedAt) })
	if len(all) > deliveriesMax {
		all = all[:deliveriesMax]
	}

	resp := make([]DeliveryResponse, 0, len(all))
	for _, d := range all {
		resp = append(resp, DeliveryResponse{
			Provider:   string(d.Provider),
			ReceivedAt: d.ReceivedAt,
			Outcome:    string(d.Outcome),
			OrderKey:   d.OrderKey,
			KeyKind:    string(d.KeyKind),
			RawStatus:  d.RawStatus,
			Error:      d.Error,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// PostWebhook POST /payments/webhook/{provider}.
// Тело читается как есть и передаётся в проверку подписи без перекодирования.
// 200 на любое подтверждённое уведомление (в том числе дубликат и неизвестный заказ),
// 400 при неверной подписи, 500 только при сбое инфраструктуры, чтобы провайдер повторил.
func (h *Handler) PostWebhook(w http.ResponseWriter, r *http.Request) {
	log := observability.L(r.Context(), h.logger)
	provider := payment.Provider(chi.URLParam(r, "provider"))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		log.Warn("failed to read webhook body", zap.String("provider", string(provider)), zap.Error(err))
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if _, err := h.dispatcher.Handle(r.Context(), provider, r.Header, body); err != nil {
		writeServiceError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func toOrderResponse(o repository.Order) OrderResponse {
	resp := OrderResponse{
		ID:          o.ID,
		JobID:       o.JobID,
		Amount:      o.Amount.StringFixed(2),
		TipAmount:   o.TipAmount.StringFixed(2),
		Currency:    o.Currency,
		Status:      string(o.Status),
		ExternalID:  o.ExternalID,
		PayAddress:  o.PayAddress,
		PayCurrency: o.PayCurrency,
		NetworkName: o.NetworkName,
		QRCode:      o.QRCode,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
	if o.ExternalID != "" {
		resp.PayAmount = o.PayAmount.String()
		resp.PayLink = payLinkPrefix + o.ExternalID
	}
	if !o.ExpiresAt.IsZero() {
		expires := o.ExpiresAt.UTC()
		resp.ExpiresAt = &expires
	}
	return resp
}

// decodeBody при false ответ с ошибкой уже записан
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}
