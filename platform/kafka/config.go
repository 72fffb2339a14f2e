package kafka

import (
	"github.com/caarlos0/env/v10"
	"github.com/segmentio/kafka-go"
)

// Config подключение к Kafka.
// Локально (go run): localhost:19092, в Docker: kafka:9092.
// Пустой список брокеров означает, что публикация событий выключена.
type Config struct {
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	// Topic куда уходят события order.payment.completed
	Topic string `env:"PAYMENT_COMPLETED_TOPIC" envDefault:"order.payment.completed"`
}

// Enabled сообщает, заданы ли брокеры
func (c Config) Enabled() bool {
	return len(c.Brokers) > 0
}

// LoadEnv читает конфигурацию через caarlos0/env
func LoadEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// NewWriter создаёт writer на топик из конфигурации.
// RequireOne: достаточно подтверждения лидера партиции.
func NewWriter(cfg Config) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
}
