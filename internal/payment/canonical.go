package payment

import (
	"fmt"
	"strings"
)

// Notification проверенное уведомление провайдера до нормализации
type Notification struct {
	Provider Provider
	// RawStatus статус (крипто) или тип события (карта)
	RawStatus string
	// Reference идентификатор заказа в терминах уведомления
	Reference     string
	ReferenceKind KeyKind
	// ReferenceField имя поля в теле провайдера, для сообщения об ошибке
	ReferenceField string
}

// statusTable какие статусы провайдера приводят к какому каноническому статусу.
// Всё, чего нет в таблице, игнорируется.
var statusTable = map[Provider]map[string]Status{
	ProviderCrypto: {
		"paid":      StatusPaid,
		"confirmed": StatusPaid,
		"expired":   StatusExpired,
	},
	ProviderCard: {
		"checkout.session.completed": StatusPaid,
	},
	ProviderSweeper: {
		"expired": StatusExpired,
	},
}

// Canonicalize приводит уведомление к Event.
// Порядок проверок важен: неинтересные типы событий карты приходят без metadata
// и должны игнорироваться, а не падать с ParseError.
func Canonicalize(n Notification) (Event, error) {
	raw := strings.ToLower(strings.TrimSpace(n.RawStatus))
	if raw == "" {
		return Event{}, &ParseError{Provider: n.Provider, Field: "status", Message: "is required"}
	}

	status, ok := statusTable[n.Provider][raw]
	if !ok {
		return Event{}, fmt.Errorf("%w: %s %q", ErrIgnored, n.Provider, raw)
	}

	ref := strings.TrimSpace(n.Reference)
	if ref == "" {
		field := n.ReferenceField
		if field == "" {
			field = string(n.ReferenceKind)
		}
		return Event{}, &ParseError{Provider: n.Provider, Field: field, Message: "is required"}
	}

	return Event{
		OrderKey:  ref,
		KeyKind:   n.ReferenceKind,
		NewStatus: status,
		Provider:  n.Provider,
		RawStatus: raw,
	}, nil
}
