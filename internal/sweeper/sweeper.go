// Package sweeper переводит в expired заказы, чей инвойс истёк, а провайдер так и не прислал уведомление.
// Это внешний по отношению к ядру участник: он лишь вызывает тот же путь применения события.
package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/shestoi/paybridge/internal/payment"
	"github.com/shestoi/paybridge/internal/repository"
	"github.com/shestoi/paybridge/internal/service"
)

// Config параметры прогона
type Config struct {
	Interval time.Duration
	// Grace запас после expiresAt, чтобы не обгонять позднее уведомление провайдера
	Grace     time.Duration
	BatchSize int
}

type expiredLister interface {
	ListExpired(ctx context.Context, before time.Time, limit int) ([]repository.Order, error)
}

// Sweeper периодически ищет истёкшие заказы и применяет к ним событие expired
type Sweeper struct {
	logger  *zap.Logger
	repo    expiredLister
	applier service.EventApplier
	locker  Locker
	cfg     Config
	now     func() time.Time
}

// New locker может быть nil: тогда прогон идёт без блокировки (один экземпляр)
func New(logger *zap.Logger, repo expiredLister, applier service.EventApplier, locker Locker, cfg Config) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Grace < 0 {
		cfg.Grace = 0
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Sweeper{
		logger:  logger,
		repo:    repo,
		applier: applier,
		locker:  locker,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Run блокируется до отмены ctx
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("expiry sweeper started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Duration("grace", s.cfg.Grace),
	)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep один прогон; возвращает число заказов, реально переведённых в expired
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	if s.locker != nil {
		// блокировка живёт не дольше интервала, чтобы упавший владелец не заблокировал следующий прогон
		release, ok, err := s.locker.TryLock(ctx, s.cfg.Interval)
		if err != nil {
			return 0, err
		}
		if !ok {
			s.logger.Debug("sweep skipped, lock held by another instance")
			return 0, nil
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("failed to release sweeper lock", zap.Error(err))
			}
		}()
	}

	orders, err := s.repo.ListExpired(ctx, s.now().Add(-s.cfg.Grace), s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, order := range orders {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}

		res, err := s.applier.Apply(ctx, payment.Event{
			OrderKey:  order.ID,
			KeyKind:   payment.KeyOrderID,
			NewStatus: payment.StatusExpired,
			Provider:  payment.ProviderSweeper,
			RawStatus: "expired",
		})
		if err != nil {
			s.logger.Error("failed to expire order", zap.String("order_id", order.ID), zap.Error(err))
			continue
		}
		if res.Outcome == repository.OutcomeApplied {
			expired++
		}
	}

	if expired > 0 {
		s.logger.Info("expired orders swept", zap.Int("count", expired), zap.Int("candidates", len(orders)))
	}
	return expired, nil
}
