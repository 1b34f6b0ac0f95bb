package producer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/horse-race-ledger/pkg/contracts/events"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func TestPublishKeysBetEventsByUser(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisher(w, "ledger_events")

	err := p.Publish(context.Background(), events.LedgerEvent{Type: events.BetWon, RaceID: "r1", UserID: "u1", Amount: "300.00"})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	m := w.msgs[0]
	assert.Equal(t, "u1", string(m.Key))
	assert.Equal(t, "event_type", m.Headers[0].Key)
	assert.Equal(t, events.BetWon, string(m.Headers[0].Value))

	var got events.LedgerEvent
	require.NoError(t, json.Unmarshal(m.Value, &got))
	assert.Equal(t, "300.00", got.Amount)
	assert.False(t, got.Ts.IsZero())
}

func TestPublishKeysRaceEventsByRace(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisher(w, "ledger_events")

	require.NoError(t, p.Publish(context.Background(), events.LedgerEvent{Type: events.RaceSettled, RaceID: "r9"}))
	assert.Equal(t, "r9", string(w.msgs[0].Key))
}

func TestPublishPropagatesWriterError(t *testing.T) {
	boom := errors.New("broker down")
	p := NewKafkaPublisher(&fakeWriter{err: boom}, "ledger_events")
	assert.ErrorIs(t, p.Publish(context.Background(), events.LedgerEvent{Type: events.BetPlaced}), boom)
}
