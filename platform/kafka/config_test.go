package kafka

import (
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("KAFKA_REQUIRED_ACKS", "one")

	var cfg Config
	require.NoError(t, LoadEnv(&cfg))

	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Brokers)
	assert.Equal(t, 5*time.Second, cfg.WriteTimeout)
	require.NoError(t, cfg.Validate())

	w := NewWriter(cfg, "order.fulfilled")
	assert.Equal(t, "order.fulfilled", w.Topic)
	assert.Equal(t, kafkago.RequireOne, w.RequiredAcks)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "ok", cfg: Config{Brokers: []string{"localhost:19092"}, RequiredAcks: "all"}},
		{name: "no brokers", cfg: Config{RequiredAcks: "all"}, wantErr: true},
		{name: "bad acks", cfg: Config{Brokers: []string{"localhost:19092"}, RequiredAcks: "most"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
