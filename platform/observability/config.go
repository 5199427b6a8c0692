package observability

// Config конфигурация OpenTelemetry (traces + metrics + propagator)
type Config struct {
	// Enabled включает экспорт в OTLP collector. Иначе ставятся noop providers
	Enabled bool
	// OTLPEndpoint адрес OTLP gRPC collector'а, например "127.0.0.1:4317"
	OTLPEndpoint string
	// SamplingRatio доля семплируемых трасс (0..1)
	SamplingRatio float64
	// MetricInterval период выгрузки метрик в секундах, 0 = 10s
	MetricInterval int

	ServiceName           string
	DeploymentEnvironment string
	ServiceVersion        string
}
