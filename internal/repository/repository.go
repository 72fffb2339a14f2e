package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shestoi/paybridge/internal/payment"
)

// JobStatus статус работы (услуги), за которую выставляется заказ
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobPaid    JobStatus = "paid"
)

// Job создаётся оператором вне ядра; ядро меняет только статус на paid
type Job struct {
	ID          string
	Amount      decimal.Decimal
	Description string
	Status      JobStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Order заказ на оплату Job (или услуги по цене по умолчанию) плюс чаевые.
// Amount фиксируется при создании и больше не меняется.
type Order struct {
	ID        string
	JobID     string // пусто, если заказ без Job
	Amount    decimal.Decimal
	TipAmount decimal.Decimal
	Currency  string
	Email     string
	Phone     string
	Status    payment.Status

	// поля инвойса провайдера, заполняются один раз в AttachInvoice
	ExternalID  string
	PayAmount   decimal.Decimal
	PayAddress  string
	PayCurrency string
	NetworkName string
	QRCode      string
	ExpiresAt   time.Time // zero, если инвойса нет

	CreatedAt time.Time
	UpdatedAt time.Time
}

// InvoiceFields данные инвойса, которые сохраняются на заказе
type InvoiceFields struct {
	ExternalID  string
	PayAmount   decimal.Decimal
	PayAddress  string
	PayCurrency string
	NetworkName string
	QRCode      string
	ExpiresAt   time.Time
}

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=OrderRepository --dir=. --output=./mocks --outpkg=mocks

// OrderRepository хранилище заказов и работ.
// Промах поиска: всегда ErrNotFound/ErrJobNotFound, не инфраструктурная ошибка.
type OrderRepository interface {
	CreateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, id string) (Job, error)
	// MarkJobPaid идемпотентно переводит Job в paid; changed=false если уже paid
	MarkJobPaid(ctx context.Context, id string) (changed bool, err error)

	CreateOrder(ctx context.Context, order Order) error
	GetOrder(ctx context.Context, id string) (Order, error)
	GetOrderByExternalID(ctx context.Context, externalID string) (Order, error)

	// AttachInvoice сохраняет инвойс на заказе, только если externalId ещё не задан
	// и заказ не в терминальном статусе.
	AttachInvoice(ctx context.Context, orderID string, inv InvoiceFields) (Order, error)

	// ApplyStatus атомарно и условно меняет статус: только если текущий не терминальный.
	// Возвращает состояние заказа после вызова и applied=false для no-op дубликата.
	// Это единственная защита идемпотентности; реализация обязана быть одной атомарной операцией.
	ApplyStatus(ctx context.Context, key string, kind payment.KeyKind, status payment.Status) (order Order, applied bool, err error)

	// ListExpired неоплаченные заказы с инвойсом, у которых expiresAt раньше before
	ListExpired(ctx context.Context, before time.Time, limit int) ([]Order, error)

	Ping(ctx context.Context) error
}

var (
	// ErrNotFound заказ не найден
	ErrNotFound = errors.New("order not found")
	// ErrJobNotFound работа не найдена
	ErrJobNotFound = errors.New("job not found")
	// ErrDuplicateID запись с таким id уже есть
	ErrDuplicateID = errors.New("duplicate id")
	// ErrInvoiceAlreadyAttached на заказе уже есть инвойс провайдера
	ErrInvoiceAlreadyAttached = errors.New("order already has a provider invoice")
	// ErrExternalIDTaken externalId уже принадлежит другому заказу
	ErrExternalIDTaken = errors.New("external id already attached to another order")
	// ErrOrderClosed заказ в терминальном статусе
	ErrOrderClosed = errors.New("order is closed")
)

// DeliveryOutcome итог обработки одного входящего уведомления
type DeliveryOutcome string

const (
	OutcomeApplied      DeliveryOutcome = "applied"
	OutcomeDuplicate    DeliveryOutcome = "duplicate"
	OutcomeUnknownOrder DeliveryOutcome = "unknown_order"
	OutcomeIgnored      DeliveryOutcome = "ignored"
	OutcomeAuthFailed   DeliveryOutcome = "auth_failed"
	OutcomeParseFailed  DeliveryOutcome = "parse_failed"
	OutcomeError        DeliveryOutcome = "error"
)

// Delivery запись журнала входящих уведомлений
type Delivery struct {
	Provider   payment.Provider
	ReceivedAt time.Time
	Outcome    DeliveryOutcome
	OrderKey   string
	KeyKind    payment.KeyKind
	RawStatus  string
	Error      string
}

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=DeliveryJournal --dir=. --output=./mocks --outpkg=mocks

// DeliveryJournal append-only журнал входящих уведомлений провайдеров.
// Не участвует в идемпотентности, только для разбора инцидентов.
type DeliveryJournal interface {
	Record(ctx context.Context, d Delivery) error
	// ListByOrderKey последние записи по ключу заказа, новые первыми
	ListByOrderKey(ctx context.Context, key string, limit int) ([]Delivery, error)
}
