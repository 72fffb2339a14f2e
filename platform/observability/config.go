package observability

import "github.com/caarlos0/env/v10"

// Config конфигурация OpenTelemetry (traces + metrics)
type Config struct {
	// Enabled включает экспорт в OTLP collector; иначе ставятся noop providers
	Enabled bool `env:"OTEL_ENABLED" envDefault:"false"`
	// OTLPEndpoint адрес OTLP gRPC, например "127.0.0.1:4317"
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"127.0.0.1:4317"`
	// SamplingRatio доля семплируемых трасс (0..1)
	SamplingRatio float64 `env:"OTEL_SAMPLING_RATIO" envDefault:"1.0"`
	// ServiceVersion опционально, из build
	ServiceVersion string `env:"SERVICE_VERSION"`

	ServiceName           string
	DeploymentEnvironment string
}

// LoadEnv читает OTEL_* переменные окружения
func LoadEnv(serviceName, deploymentEnv string) (Config, error) {
	cfg := Config{
		ServiceName:           serviceName,
		DeploymentEnvironment: deploymentEnv,
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
