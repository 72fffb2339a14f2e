// Package oxapay крипто-вариант платёжного шлюза: white-label инвойсы OxaPay
// и проверка HMAC-SHA512 подписи входящих уведомлений.
package oxapay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shestoi/paybridge/internal/payment"
)

const (
	// DefaultAPIURL endpoint white-label инвойсов
	DefaultAPIURL = "https://api.oxapay.com/v1/payment/white-label"
	// SignatureHeader заголовок с hex HMAC-SHA512 над сырым телом
	SignatureHeader = "HMAC"

	payAmountDigits = 6
)

// Config настройки клиента OxaPay
type Config struct {
	MerchantKey string
	APIURL      string
	Timeout     time.Duration
	// Lifetime время жизни инвойса
	Lifetime time.Duration
}

// Client реализует payment.Gateway для OxaPay
type Client struct {
	logger      *zap.Logger
	merchantKey string
	apiURL      string
	lifetime    time.Duration
	client      *http.Client
}

// NewClient создаёт клиента; пустые поля конфигурации заменяются значениями по умолчанию
func NewClient(logger *zap.Logger, cfg Config) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = time.Hour
	}

	return &Client{
		logger:      logger,
		merchantKey: cfg.MerchantKey,
		apiURL:      cfg.APIURL,
		lifetime:    cfg.Lifetime,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (c *Client) Provider() payment.Provider {
	return payment.ProviderCrypto
}

type invoiceRequest struct {
	Amount            json.Number `json:"amount"`
	Currency          string      `json:"currency"`
	PayCurrency       string      `json:"pay_currency"`
	Network           string      `json:"network,omitempty"`
	OrderID           string      `json:"order_id"`
	CallbackURL       string      `json:"callback_url"`
	Description       string      `json:"description"`
	FeePaidByPayer    int         `json:"fee_paid_by_payer"`
	UnderPaidCoverage int         `json:"under_paid_coverage"`
	Lifetime          int         `json:"lifetime"`
}

type invoiceResponse struct {
	Status  int          `json:"status"`
	Message string       `json:"message"`
	Error   *apiError    `json:"error"`
	Data    *invoiceData `json:"data"`
}

type apiError struct {
	Type    string `json:"type"`
	Key     string `json:"key"`
	Message string `json:"message"`
}

type invoiceData struct {
	TrackID     string          `json:"track_id"`
	Address     string          `json:"address"`
	PayAmount   decimal.Decimal `json:"pay_amount"`
	PayCurrency string          `json:"pay_currency"`
	Network     string          `json:"network"`
	QRCode      string          `json:"qr_code"`
	ExpiredAt   int64           `json:"expired_at"`
}

// CreateInvoice создаёт white-label инвойс. Amount уже включает скидку и чаевые.
func (c *Client) CreateInvoice(ctx context.Context, req payment.InvoiceRequest) (payment.Invoice, error) {
	body := invoiceRequest{
		Amount:            json.Number(req.Amount.StringFixed(2)),
		Currency:          "USD",
		PayCurrency:       req.PayCurrency,
		Network:           req.Network,
		OrderID:           req.OrderID,
		CallbackURL:       req.CallbackURL,
		Description:       "Order " + req.OrderID,
		FeePaidByPayer:    1,
		UnderPaidCoverage: 5,
		Lifetime:          int(c.lifetime / time.Minute),
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return payment.Invoice{}, fmt.Errorf("failed to marshal invoice request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return payment.Invoice{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("merchant_api_key", c.merchantKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		// таймаут тоже сюда: это ошибка провайдера, а не успех
		msg := "request failed"
		if isTimeout(err) {
			msg = "request timed out"
		}
		return payment.Invoice{}, &payment.ProviderError{Provider: payment.ProviderCrypto, Message: msg, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return payment.Invoice{}, &payment.ProviderError{Provider: payment.ProviderCrypto, StatusCode: resp.StatusCode, Message: "read response", Err: err}
	}

	var result invoiceResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return payment.Invoice{}, &payment.ProviderError{
			Provider:   payment.ProviderCrypto,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("unexpected response: %s", truncate(strings.TrimSpace(string(raw)), 200)),
			Err:        err,
		}
	}

	if result.Status != http.StatusOK || result.Data == nil {
		return payment.Invoice{}, &payment.ProviderError{
			Provider:   payment.ProviderCrypto,
			StatusCode: resp.StatusCode,
			Message:    result.upstreamMessage(),
		}
	}

	data := result.Data
	if data.TrackID == "" {
		return payment.Invoice{}, &payment.ProviderError{Provider: payment.ProviderCrypto, StatusCode: resp.StatusCode, Message: "response without track_id"}
	}

	payCurrency := data.PayCurrency
	if payCurrency == "" {
		payCurrency = req.PayCurrency
	}

	inv := payment.Invoice{
		ExternalID:  data.TrackID,
		PayAmount:   data.PayAmount.Round(payAmountDigits),
		PayAddress:  data.Address,
		PayCurrency: strings.ToUpper(payCurrency),
		NetworkName: data.Network,
		QRCode:      data.QRCode,
	}
	if data.ExpiredAt > 0 {
		inv.ExpiresAt = time.Unix(data.ExpiredAt, 0).UTC()
	}

	c.logger.Info("oxapay invoice created",
		zap.String("order_id", req.OrderID),
		zap.String("track_id", inv.ExternalID),
		zap.String("pay_currency", inv.PayCurrency),
	)

	return inv, nil
}

func (r invoiceResponse) upstreamMessage() string {
	if r.Message != "" {
		return r.Message
	}
	if r.Error != nil && r.Error.Message != "" {
		return r.Error.Message
	}
	return "OxaPay white label error"
}

type webhookBody struct {
	TrackID       string `json:"track_id"`
	TrackIDLegacy string `json:"trackId"`
	Status        string `json:"status"`
}

// VerifyAndParse проверяет HMAC над сырыми байтами тела до какого-либо разбора JSON
func (c *Client) VerifyAndParse(header http.Header, body []byte) (payment.Event, error) {
	if err := c.verify(header.Get(SignatureHeader), body); err != nil {
		return payment.Event{}, err
	}

	var wb webhookBody
	if err := json.Unmarshal(body, &wb); err != nil {
		return payment.Event{}, &payment.ParseError{Provider: payment.ProviderCrypto, Field: "body", Message: err.Error()}
	}

	trackID := wb.TrackIDLegacy
	if trackID == "" {
		trackID = wb.TrackID
	}

	return payment.Canonicalize(payment.Notification{
		Provider:       payment.ProviderCrypto,
		RawStatus:      wb.Status,
		Reference:      trackID,
		ReferenceKind:  payment.KeyExternalID,
		ReferenceField: "trackId",
	})
}

func (c *Client) verify(signature string, body []byte) error {
	if c.merchantKey == "" {
		return &payment.AuthError{Provider: payment.ProviderCrypto, Reason: "merchant key not configured"}
	}
	if signature == "" {
		return &payment.AuthError{Provider: payment.ProviderCrypto, Reason: "missing signature"}
	}
	if len(body) == 0 {
		return &payment.AuthError{Provider: payment.ProviderCrypto, Reason: "empty body"}
	}

	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return &payment.AuthError{Provider: payment.ProviderCrypto, Reason: "malformed signature"}
	}

	if !hmac.Equal(sum(c.merchantKey, body), got) {
		return &payment.AuthError{Provider: payment.ProviderCrypto, Reason: "signature mismatch"}
	}
	return nil
}

// Sign считает подпись тела так же, как OxaPay; нужен тестам и локальной отладке
func Sign(merchantKey string, body []byte) string {
	return hex.EncodeToString(sum(merchantKey, body))
}

func sum(key string, body []byte) []byte {
	mac := hmac.New(sha512.New, []byte(key))
	mac.Write(body)
	return mac.Sum(nil)
}

// isTimeout сообщает, что ошибка вызвана таймаутом запроса
func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
