package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shestoi/paybridge/internal/payment"
)

// PaidNotice что получают downstream-получатели после перехода заказа в paid
type PaidNotice struct {
	OrderID  string
	JobID    string
	Amount   decimal.Decimal
	Tip      decimal.Decimal
	Email    string
	Provider payment.Provider
	PaidAt   time.Time
}

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=Notifier --dir=. --output=./mocks --outpkg=mocks

// Notifier fire-and-forget уведомление о paid.
// Ошибка означает только то, что уведомление не поставлено в очередь; ядро её логирует и идёт дальше.
type Notifier interface {
	NotifyPaid(ctx context.Context, notice PaidNotice) error
}

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=EventApplier --dir=. --output=./mocks --outpkg=mocks

// EventApplier применяет каноническое событие к заказу (Reconciler)
type EventApplier interface {
	Apply(ctx context.Context, event payment.Event) (ApplyResult, error)
}
