package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/shestoi/paybridge/internal/payment"
	"github.com/shestoi/paybridge/internal/repository"
	"github.com/shestoi/paybridge/platform/observability"
)

// ErrUnknownProvider для провайдера не зарегистрирован шлюз
var ErrUnknownProvider = errors.New("unknown payment provider")

const unknownProviderLabel = "unknown"

// Dispatcher точка входа уведомлений провайдеров: проверка подписи, нормализация,
// применение к заказу. Провайдер-независим: всё специфичное живёт в payment.Gateway.
type Dispatcher struct {
	logger   *zap.Logger
	gateways map[payment.Provider]payment.Gateway
	applier  EventApplier
	journal  repository.DeliveryJournal
	counter  observability.Counter
	now      func() time.Time
}

// NewDispatcher создаёт Dispatcher; journal может быть nil
func NewDispatcher(logger *zap.Logger, applier EventApplier, journal repository.DeliveryJournal, gateways ...payment.Gateway) *Dispatcher {
	byProvider := make(map[payment.Provider]payment.Gateway, len(gateways))
	for _, g := range gateways {
		if g != nil {
			byProvider[g.Provider()] = g
		}
	}

	return &Dispatcher{
		logger:   logger,
		gateways: byProvider,
		applier:  applier,
		journal:  journal,
		counter:  observability.NewCounter("paybridge", "paybridge.webhook.deliveries", "Inbound provider notifications by outcome"),
		now:      time.Now,
	}
}

// Handle обрабатывает одно уведомление. body передаётся сырыми байтами запроса.
// Ошибка возвращается только для *payment.AuthError (клиентская ошибка, ничего не изменено)
// и для инфраструктурных сбоев (провайдер должен повторить). Дубликаты, неизвестные заказы,
// игнорируемые и битые уведомления подтверждаются без ошибки.
func (d *Dispatcher) Handle(ctx context.Context, provider payment.Provider, header http.Header, body []byte) (repository.DeliveryOutcome, error) {
	gw, ok := d.gateways[provider]
	if !ok {
		// имя провайдера пришло из URL: в журнал и метки метрик не попадает
		observability.L(ctx, d.logger).Warn("notification for unknown provider", zap.Int("provider_len", len(provider)))
		d.counter.Inc(ctx, "provider", unknownProviderLabel, "outcome", string(repository.OutcomeError))
		return repository.OutcomeError, ErrUnknownProvider
	}

	log := observability.L(ctx, d.logger).With(zap.String("provider", string(provider)))
	delivery := repository.Delivery{
		Provider:   provider,
		ReceivedAt: d.now().UTC(),
	}

	outcome, err := d.handle(ctx, log, gw, header, body, &delivery)

	delivery.Outcome = outcome
	if err != nil {
		delivery.Error = err.Error()
	}
	d.record(ctx, log, delivery)
	d.counter.Inc(ctx, "provider", string(provider), "outcome", string(outcome))

	return outcome, err
}

func (d *Dispatcher) handle(ctx context.Context, log *zap.Logger, gw payment.Gateway, header http.Header, body []byte, delivery *repository.Delivery) (repository.DeliveryOutcome, error) {
	event, err := gw.VerifyAndParse(header, body)
	if err != nil {
		var authErr *payment.AuthError
		var parseErr *payment.ParseError
		switch {
		case errors.As(err, &authErr):
			log.Warn("notification rejected", zap.Bool("security_event", true), zap.String("reason", authErr.Reason))
			return repository.OutcomeAuthFailed, err
		case errors.Is(err, payment.ErrIgnored):
			log.Debug("notification ignored", zap.Error(err))
			return repository.OutcomeIgnored, nil
		case errors.As(err, &parseErr):
			// повторная доставка того же тела не поможет, подтверждаем
			log.Error("malformed notification acknowledged", zap.Error(err))
			delivery.Error = err.Error()
			return repository.OutcomeParseFailed, nil
		default:
			log.Error("failed to verify notification", zap.Error(err))
			return repository.OutcomeError, err
		}
	}

	delivery.OrderKey = event.OrderKey
	delivery.KeyKind = event.KeyKind
	delivery.RawStatus = event.RawStatus

	result, err := d.applier.Apply(ctx, event)
	if err != nil {
		return repository.OutcomeError, err
	}

	log.Info("notification processed",
		zap.String("order_key", event.OrderKey),
		zap.String("key_kind", string(event.KeyKind)),
		zap.String("outcome", string(result.Outcome)),
	)
	return result.Outcome, nil
}

// record пишет журнал best-effort: сбой журнала не влияет на ответ провайдеру
func (d *Dispatcher) record(ctx context.Context, log *zap.Logger, delivery repository.Delivery) {
	if d.journal == nil {
		return
	}
	if err := d.journal.Record(ctx, delivery); err != nil {
		log.Warn("failed to record delivery", zap.Error(err))
	}
}
