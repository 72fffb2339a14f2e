package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shestoi/paybridge/internal/payment"
	"github.com/shestoi/paybridge/internal/repository"
	"github.com/shestoi/paybridge/platform/observability"
)

// ApplyResult итог применения события к заказу
type ApplyResult struct {
	Outcome repository.DeliveryOutcome
	// Order состояние после применения; пустой при unknown_order
	Order repository.Order
}

// Reconciler машина состояний заказа. Своего состояния не держит:
// единственная защита от дублей: условный ApplyStatus в хранилище,
// поэтому несколько экземпляров могут работать с одним store параллельно.
type Reconciler struct {
	logger   *zap.Logger
	repo     repository.OrderRepository
	notifier Notifier
	now      func() time.Time
}

// NewReconciler создаёт Reconciler; notifier может быть nil
func NewReconciler(logger *zap.Logger, repo repository.OrderRepository, notifier Notifier) *Reconciler {
	return &Reconciler{
		logger:   logger,
		repo:     repo,
		notifier: notifier,
		now:      time.Now,
	}
}

// Apply применяет событие.
// Неизвестный заказ и no-op дубликат не ошибки. Ошибка возвращается только при сбое хранилища,
// в том числе когда сам переход применился, а каскад на Job нет: провайдер повторит доставку,
// и ветка дубликата догонит Job.
func (r *Reconciler) Apply(ctx context.Context, event payment.Event) (ApplyResult, error) {
	log := observability.L(ctx, r.logger).With(
		zap.String("provider", string(event.Provider)),
		zap.String("order_key", event.OrderKey),
		zap.String("key_kind", string(event.KeyKind)),
		zap.String("new_status", string(event.NewStatus)),
	)

	order, applied, err := r.repo.ApplyStatus(ctx, event.OrderKey, event.KeyKind, event.NewStatus)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Warn("payment event for unknown order dropped")
			return ApplyResult{Outcome: repository.OutcomeUnknownOrder}, nil
		}
		log.Error("failed to apply payment event", zap.Error(err))
		return ApplyResult{Outcome: repository.OutcomeError}, fmt.Errorf("apply status: %w", err)
	}

	log = log.With(zap.String("order_id", order.ID))

	if !applied {
		log.Info("duplicate payment event acknowledged", zap.String("current_status", string(order.Status)))
		// переход мог примениться в прошлый раз без каскада
		if order.Status == payment.StatusPaid {
			if err := r.ensureJobPaid(ctx, log, order); err != nil {
				return ApplyResult{Outcome: repository.OutcomeError, Order: order}, err
			}
		}
		return ApplyResult{Outcome: repository.OutcomeDuplicate, Order: order}, nil
	}

	log.Info("order status changed")

	if order.Status != payment.StatusPaid {
		return ApplyResult{Outcome: repository.OutcomeApplied, Order: order}, nil
	}

	cascadeErr := r.ensureJobPaid(ctx, log, order)
	r.notifyPaid(ctx, log, order, event.Provider)

	if cascadeErr != nil {
		return ApplyResult{Outcome: repository.OutcomeError, Order: order}, cascadeErr
	}
	return ApplyResult{Outcome: repository.OutcomeApplied, Order: order}, nil
}

// ensureJobPaid идемпотентно переводит связанную Job в paid
func (r *Reconciler) ensureJobPaid(ctx context.Context, log *zap.Logger, order repository.Order) error {
	if order.JobID == "" {
		return nil
	}

	changed, err := r.repo.MarkJobPaid(ctx, order.JobID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			log.Warn("linked job not found, cascade skipped", zap.String("job_id", order.JobID))
			return nil
		}
		log.Error("failed to mark job paid", zap.String("job_id", order.JobID), zap.Error(err))
		return fmt.Errorf("mark job %s paid: %w", order.JobID, err)
	}
	if changed {
		log.Info("job marked paid", zap.String("job_id", order.JobID))
	}
	return nil
}

// notifyPaid ставит уведомление в очередь и не ждёт его; ошибка только логируется
func (r *Reconciler) notifyPaid(ctx context.Context, log *zap.Logger, order repository.Order, provider payment.Provider) {
	if r.notifier == nil {
		return
	}

	notice := PaidNotice{
		OrderID:  order.ID,
		JobID:    order.JobID,
		Amount:   order.Amount,
		Tip:      order.TipAmount,
		Email:    order.Email,
		Provider: provider,
		PaidAt:   r.now().UTC(),
	}
	if err := r.notifier.NotifyPaid(ctx, notice); err != nil {
		log.Warn("downstream notification not queued", zap.Error(err))
	}
}
