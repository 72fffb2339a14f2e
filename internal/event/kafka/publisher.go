package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shestoi/paybridge/internal/service"
)

const (
	eventTypePaymentCompleted = "order.payment.completed"
	eventVersion              = 1
)

// messageWriter часть *kafka.Writer, которая нужна publisher-у
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// PaymentCompletedEvent JSON события order.payment.completed
type PaymentCompletedEvent struct {
	EventID      string    `json:"event_id"`
	EventType    string    `json:"event_type"`
	EventVersion int       `json:"event_version"`
	OccurredAt   time.Time `json:"occurred_at"`
	OrderID      string    `json:"order_id"`
	JobID        string    `json:"job_id,omitempty"`
	Amount       string    `json:"amount"`
	Provider     string    `json:"provider"`
}

// PaidEventPublisher публикует оплаченные заказы в Kafka; реализует notify.Sink
type PaidEventPublisher struct {
	logger *zap.Logger
	writer messageWriter
	topic  string
}

// NewPaidEventPublisher создаёт publisher поверх готового writer-а (platform/kafka.NewWriter)
func NewPaidEventPublisher(logger *zap.Logger, writer *kafka.Writer) *PaidEventPublisher {
	return &PaidEventPublisher{
		logger: logger,
		writer: writer,
		topic:  writer.Topic,
	}
}

func (p *PaidEventPublisher) Name() string { return "kafka" }

// Close закрывает Kafka writer
func (p *PaidEventPublisher) Close() error {
	return p.writer.Close()
}

// Deliver публикует событие; ключ сообщения равен id заказа, чтобы события одного заказа шли в одну партицию
func (p *PaidEventPublisher) Deliver(ctx context.Context, notice service.PaidNotice) error {
	occurredAt := notice.PaidAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	event := PaymentCompletedEvent{
		EventID:      uuid.NewString(),
		EventType:    eventTypePaymentCompleted,
		EventVersion: eventVersion,
		OccurredAt:   occurredAt,
		OrderID:      notice.OrderID,
		JobID:        notice.JobID,
		Amount:       notice.Amount.StringFixed(2),
		Provider:     string(notice.Provider),
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal payment completed event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(notice.OrderID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventTypePaymentCompleted)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish payment completed event: %w", err)
	}

	p.logger.Info("payment completed event published",
		zap.String("topic", p.topic),
		zap.String("event_id", event.EventID),
		zap.String("order_id", notice.OrderID),
	)
	return nil
}
