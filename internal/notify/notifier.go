// Package notify доставляет уведомления о paid во внешние системы
// (Kafka, Google Sheets, Telegram) в фоне, не блокируя путь подтверждения платежа.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shestoi/paybridge/internal/service"
	"github.com/shestoi/paybridge/platform/observability"
)

var (
	// ErrQueueFull очередь переполнена, уведомление отброшено
	ErrQueueFull = errors.New("notification queue is full")
	// ErrClosed notifier остановлен
	ErrClosed = errors.New("notifier is closed")
)

// Sink один downstream-получатель
type Sink interface {
	Name() string
	Deliver(ctx context.Context, notice service.PaidNotice) error
}

// Config параметры пула
type Config struct {
	Workers   int
	QueueSize int
	// Timeout ограничивает одну доставку в один sink
	Timeout time.Duration
}

// AsyncNotifier реализует service.Notifier: кладёт уведомление в буферизованную очередь,
// воркеры раздают его во все sink-и. Повторов нет: ошибка sink-а только логируется.
type AsyncNotifier struct {
	logger  *zap.Logger
	sinks   []Sink
	timeout time.Duration
	queue   chan service.PaidNotice
	counter observability.Counter

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// New создаёт notifier и запускает воркеры
func New(logger *zap.Logger, cfg Config, sinks ...Sink) *AsyncNotifier {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	n := &AsyncNotifier{
		logger:  logger,
		sinks:   sinks,
		timeout: cfg.Timeout,
		queue:   make(chan service.PaidNotice, cfg.QueueSize),
		counter: observability.NewCounter("paybridge", "paybridge.notify.deliveries", "Downstream paid notifications by sink and outcome"),
	}

	for i := 0; i < cfg.Workers; i++ {
		n.wg.Add(1)
		go n.worker()
	}
	return n
}

// NotifyPaid не блокируется: при полной очереди уведомление отбрасывается с ErrQueueFull
func (n *AsyncNotifier) NotifyPaid(ctx context.Context, notice service.PaidNotice) error {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		return ErrClosed
	}

	select {
	case n.queue <- notice:
		return nil
	default:
		n.counter.Inc(ctx, "sink", "queue", "outcome", "dropped")
		return ErrQueueFull
	}
}

// Close перестаёт принимать уведомления и ждёт, пока воркеры разберут очередь
func (n *AsyncNotifier) Close(ctx context.Context) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	close(n.queue)
	n.mu.Unlock()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *AsyncNotifier) worker() {
	defer n.wg.Done()
	for notice := range n.queue {
		n.dispatch(notice)
	}
}

// dispatch отдаёт уведомление во все sink-и; контекст свой, запрос провайдера к этому моменту уже завершён
func (n *AsyncNotifier) dispatch(notice service.PaidNotice) {
	for _, sink := range n.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		start := time.Now()
		err := n.deliver(ctx, sink, notice)
		cancel()

		outcome := "ok"
		if err != nil {
			outcome = "failed"
			n.logger.Warn("downstream notification failed",
				zap.String("sink", sink.Name()),
				zap.String("order_id", notice.OrderID),
				zap.String("job_id", notice.JobID),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err),
			)
		} else {
			n.logger.Debug("downstream notification delivered",
				zap.String("sink", sink.Name()),
				zap.String("order_id", notice.OrderID),
			)
		}
		n.counter.Inc(context.Background(), "sink", sink.Name(), "outcome", outcome)
	}
}

// deliver изолирует панику sink-а, чтобы она не уронила воркер
func (n *AsyncNotifier) deliver(ctx context.Context, sink Sink, notice service.PaidNotice) (err error) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("downstream sink panicked", zap.String("sink", sink.Name()), zap.Any("panic", r))
			err = errors.New("sink panicked")
		}
	}()
	return sink.Deliver(ctx, notice)
}

// LogSink пишет уведомление в лог; используется, когда ни один внешний sink не настроен
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink создаёт LogSink
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(ctx context.Context, notice service.PaidNotice) error {
	s.logger.Info("order paid",
		zap.String("order_id", notice.OrderID),
		zap.String("job_id", notice.JobID),
		zap.String("amount", notice.Amount.StringFixed(2)),
		zap.String("provider", string(notice.Provider)),
	)
	return nil
}
