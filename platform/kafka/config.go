package kafka

import (
	"errors"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	kafkago "github.com/segmentio/kafka-go"
)

// Config подключение к Kafka для продюсеров процесса
type Config struct {
	// Brokers список брокеров через запятую
	//   - локально (go run): localhost:19092
	//   - в Docker: kafka:9092
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:19092"`
	// WriteTimeout ограничивает одну запись в топик
	WriteTimeout time.Duration `env:"KAFKA_WRITE_TIMEOUT" envDefault:"5s"`
	// BatchTimeout сколько writer копит сообщения перед отправкой
	BatchTimeout time.Duration `env:"KAFKA_BATCH_TIMEOUT" envDefault:"10ms"`
	// RequiredAcks none|one|all
	RequiredAcks string `env:"KAFKA_REQUIRED_ACKS" envDefault:"all"`
}

// LoadEnv заполняет cfg из переменных окружения
func LoadEnv(cfg *Config) error {
	return env.Parse(cfg)
}

// Validate проверяет, что конфигурации достаточно для создания writer'а
func (c Config) Validate() error {
	if len(c.Brokers) == 0 || strings.TrimSpace(c.Brokers[0]) == "" {
		return errors.New("KAFKA_BROKERS is required")
	}
	if _, ok := acks(c.RequiredAcks); !ok {
		return errors.New("KAFKA_REQUIRED_ACKS must be none/one/all")
	}
	return nil
}

// NewWriter создаёт writer в topic. Ключ сообщения определяет партицию
func NewWriter(cfg Config, topic string) *kafkago.Writer {
	ra, _ := acks(cfg.RequiredAcks)
	return &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: ra,
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}

func acks(s string) (kafkago.RequiredAcks, bool) {
	switch strings.ToLower(s) {
	case "none":
		return kafkago.RequireNone, true
	case "one":
		return kafkago.RequireOne, true
	case "", "all":
		return kafkago.RequireAll, true
	}
	return kafkago.RequireAll, false
}
