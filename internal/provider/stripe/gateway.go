// Package stripe карточный вариант платёжного шлюза: Stripe Checkout
// и проверка подписанных webhook событий средствами SDK.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	stripego "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"

	"github.com/shestoi/paybridge/internal/payment"
)

const (
	// SignatureHeader заголовок подписанного события Stripe
	SignatureHeader = "Stripe-Signature"

	eventCheckoutCompleted = "checkout.session.completed"
	defaultProductName     = "Window Cleaning Service"
)

// Config настройки шлюза Stripe
type Config struct {
	SecretKey     string
	WebhookSecret string
	// FrontendURL база для success/cancel редиректов
	FrontendURL string
	ProductName string
	Timeout     time.Duration
	// APIURL переопределяет адрес API (тесты, stripe-mock)
	APIURL string
}

// Gateway реализует payment.Gateway для Stripe Checkout
type Gateway struct {
	logger        *zap.Logger
	api           *client.API
	webhookSecret string
	frontendURL   string
	productName   string
}

// NewGateway создаёт шлюз; SDK логирует через zap
func NewGateway(logger *zap.Logger, cfg Config) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.ProductName == "" {
		cfg.ProductName = defaultProductName
	}

	backendCfg := &stripego.BackendConfig{
		HTTPClient:    &http.Client{Timeout: cfg.Timeout},
		LeveledLogger: logger.Sugar(),
		// ретраи делает клиент на своей стороне
		MaxNetworkRetries: stripego.Int64(0),
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripego.String(cfg.APIURL)
	}

	backends := &stripego.Backends{
		API:     stripego.GetBackendWithConfig(stripego.APIBackend, backendCfg),
		Connect: stripego.GetBackendWithConfig(stripego.ConnectBackend, backendCfg),
		Uploads: stripego.GetBackendWithConfig(stripego.UploadsBackend, backendCfg),
	}

	return &Gateway{
		logger:        logger,
		api:           client.New(cfg.SecretKey, backends),
		webhookSecret: cfg.WebhookSecret,
		frontendURL:   strings.TrimRight(cfg.FrontendURL, "/"),
		productName:   cfg.ProductName,
	}
}

func (g *Gateway) Provider() payment.Provider {
	return payment.ProviderCard
}

// CreateInvoice создаёт Checkout Session на полную сумму заказа.
// ExternalID сессии возвращается для логов, но на заказ не записывается:
// события Stripe ссылаются на заказ через metadata.order_id.
func (g *Gateway) CreateInvoice(ctx context.Context, req payment.InvoiceRequest) (payment.Invoice, error) {
	total := req.Amount.Round(2)
	tip := req.TipAmount.Round(2)
	base := total.Sub(tip)
	if !total.IsPositive() || base.IsNegative() {
		return payment.Invoice{}, &payment.ValidationError{Field: "amount", Message: "invalid order amount"}
	}

	name := strings.TrimSpace(req.Description)
	if name == "" {
		name = g.productName
	}

	params := &stripego.CheckoutSessionParams{
		PaymentMethodTypes: stripego.StringSlice([]string{"card"}),
		Mode:               stripego.String(string(stripego.CheckoutSessionModePayment)),
		LineItems: []*stripego.CheckoutSessionLineItemParams{
			{
				PriceData: &stripego.CheckoutSessionLineItemPriceDataParams{
					Currency: stripego.String(string(stripego.CurrencyUSD)),
					ProductData: &stripego.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripego.String(name),
						Description: stripego.String(fmt.Sprintf("Service: $%s + Tip: $%s", base.StringFixed(2), tip.StringFixed(2))),
					},
					UnitAmount: stripego.Int64(total.Shift(2).Round(0).IntPart()),
				},
				Quantity: stripego.Int64(1),
			},
		},
		ClientReferenceID: stripego.String(req.OrderID),
		SuccessURL:        stripego.String(g.redirectURL(req.JobID, "success") + "&session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripego.String(g.redirectURL(req.JobID, "payment")),
		Metadata: map[string]string{
			"order_id":       req.OrderID,
			"service_amount": base.StringFixed(2),
			"tip_amount":     tip.StringFixed(2),
			"description":    name,
		},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripego.String(req.CustomerEmail)
	}
	params.Context = ctx

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return payment.Invoice{}, toProviderError(err)
	}
	if sess.URL == "" {
		return payment.Invoice{}, &payment.ProviderError{Provider: payment.ProviderCard, Message: "session without checkout url"}
	}

	g.logger.Info("stripe checkout session created",
		zap.String("order_id", req.OrderID),
		zap.String("session_id", sess.ID),
		zap.String("total", total.StringFixed(2)),
	)

	inv := payment.Invoice{
		ExternalID:  sess.ID,
		CheckoutURL: sess.URL,
	}
	if sess.ExpiresAt > 0 {
		inv.ExpiresAt = time.Unix(sess.ExpiresAt, 0).UTC()
	}
	return inv, nil
}

func (g *Gateway) redirectURL(jobID, view string) string {
	q := url.Values{}
	q.Set("jobId", jobID)
	q.Set("view", view)
	return g.frontendURL + "/?" + q.Encode()
}

func toProviderError(err error) error {
	var stripeErr *stripego.Error
	if errors.As(err, &stripeErr) {
		return &payment.ProviderError{
			Provider:   payment.ProviderCard,
			StatusCode: stripeErr.HTTPStatusCode,
			Message:    stripeErr.Msg,
			Err:        err,
		}
	}
	return &payment.ProviderError{Provider: payment.ProviderCard, Message: "request failed", Err: err}
}

// VerifyAndParse проверяет подпись SDK-примитивом над сырым телом.
// Тело нельзя перекодировать до проверки: любая пересериализация ломает подпись.
func (g *Gateway) VerifyAndParse(header http.Header, body []byte) (payment.Event, error) {
	if g.webhookSecret == "" {
		return payment.Event{}, &payment.AuthError{Provider: payment.ProviderCard, Reason: "webhook secret not configured"}
	}

	event, err := webhook.ConstructEventWithOptions(body, header.Get(SignatureHeader), g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		if isSignatureError(err) {
			return payment.Event{}, &payment.AuthError{Provider: payment.ProviderCard, Reason: err.Error()}
		}
		return payment.Event{}, &payment.ParseError{Provider: payment.ProviderCard, Field: "body", Message: err.Error()}
	}

	n := payment.Notification{
		Provider:       payment.ProviderCard,
		RawStatus:      string(event.Type),
		ReferenceKind:  payment.KeyOrderID,
		ReferenceField: "metadata.order_id",
	}

	// metadata разбираем только у интересного типа, остальные события игнорируются
	if string(event.Type) == eventCheckoutCompleted {
		if event.Data == nil {
			return payment.Event{}, &payment.ParseError{Provider: payment.ProviderCard, Field: "data", Message: "is required"}
		}
		var sess stripego.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return payment.Event{}, &payment.ParseError{Provider: payment.ProviderCard, Field: "data.object", Message: err.Error()}
		}
		n.Reference = sess.Metadata["order_id"]
		if n.Reference == "" {
			n.Reference = sess.ClientReferenceID
		}
	}

	return payment.Canonicalize(n)
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}
