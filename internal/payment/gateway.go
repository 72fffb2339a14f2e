package payment

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=Gateway --dir=. --output=./mocks --outpkg=mocks

// Gateway общий набор возможностей провайдера: создать инвойс и проверить+разобрать уведомление.
// Реализации без состояния и безопасны для конкурентного использования.
type Gateway interface {
	Provider() Provider

	// CreateInvoice создаёт инвойс/сессию у провайдера.
	// Ошибки API и таймауты возвращаются как *ProviderError.
	CreateInvoice(ctx context.Context, req InvoiceRequest) (Invoice, error)

	// VerifyAndParse проверяет подпись над сырыми байтами тела и возвращает каноническое событие.
	// *AuthError: подпись не сошлась, *ParseError: нет обязательных полей,
	// ErrIgnored: событие не меняет статус.
	VerifyAndParse(header http.Header, body []byte) (Event, error)
}

// InvoiceRequest входные данные для инвойса, общие для обоих провайдеров
type InvoiceRequest struct {
	OrderID   string
	JobID     string
	Amount    decimal.Decimal
	TipAmount decimal.Decimal

	// крипто
	PayCurrency string
	Network     string
	CallbackURL string

	// карта
	Description   string
	CustomerEmail string
}

// Invoice результат создания инвойса. Для карты заполнены только ExternalID и CheckoutURL.
type Invoice struct {
	ExternalID  string
	PayAmount   decimal.Decimal
	PayAddress  string
	PayCurrency string
	NetworkName string
	QRCode      string
	ExpiresAt   time.Time
	CheckoutURL string
}
