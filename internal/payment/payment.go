// Package payment содержит провайдер-независимую модель платежа:
// статусы заказа, каноническое событие оплаты и таксономию ошибок.
package payment

// Status статус заказа. Переходы монотонны: из терминального статуса выхода нет.
type Status string

const (
	StatusUnpaid  Status = "unpaid"
	StatusPaid    Status = "paid"
	StatusExpired Status = "expired"
	StatusFailed  Status = "failed"
)

// TerminalStatuses статусы, после которых переходы не применяются
var TerminalStatuses = []Status{StatusPaid, StatusExpired, StatusFailed}

// Terminal сообщает, является ли статус конечным
func (s Status) Terminal() bool {
	switch s {
	case StatusPaid, StatusExpired, StatusFailed:
		return true
	}
	return false
}

// Valid сообщает, входит ли статус в фиксированный набор
func (s Status) Valid() bool {
	return s == StatusUnpaid || s.Terminal()
}

// Provider источник уведомления
type Provider string

const (
	ProviderCrypto Provider = "crypto"
	ProviderCard   Provider = "card"
	// ProviderSweeper внутренний источник: истечение инвойса по таймауту
	ProviderSweeper Provider = "sweeper"
)

// KeyKind по какому ключу событие ссылается на заказ
type KeyKind string

const (
	KeyOrderID    KeyKind = "order_id"
	KeyExternalID KeyKind = "external_id"
)

// Event каноническое событие оплаты. Не хранится, живёт только между
// Canonicalize и применением к заказу.
type Event struct {
	OrderKey  string
	KeyKind   KeyKind
	NewStatus Status
	Provider  Provider
	// RawStatus статус или тип события в терминах провайдера, для логов и журнала
	RawStatus string
}
