package kafka

import (
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func TestNewWriterHashesByKey(t *testing.T) {
	w := NewWriter([]string{"a:9092", "b:9092"}, "ledger_events")
	assert.Equal(t, "ledger_events", w.Topic)
	assert.IsType(t, &kafka.Hash{}, w.Balancer)
}

func TestNewReaderConfig(t *testing.T) {
	r := NewReader([]string{"a:9092"}, "ledger_events", "notification-worker")
	defer r.Close()
	cfg := r.Config()
	assert.Equal(t, "notification-worker", cfg.GroupID)
	assert.Equal(t, "ledger_events", cfg.Topic)
}
