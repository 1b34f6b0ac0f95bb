package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/horse-race-ledger/pkg/contracts/events"
)

type chanBroadcaster chan events.LedgerEvent

func (c chanBroadcaster) Broadcast(e events.LedgerEvent) int {
	c <- e
	return 1
}

func TestRedisSubscriberForwardsEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chanBroadcaster, 4)
	require.NoError(t, StartRedisSubscriber(ctx, rdb, "ledger_events_broadcast", got, zap.NewNop()))

	require.NoError(t, rdb.Publish(ctx, "ledger_events_broadcast", "{not json").Err())
	payload, err := json.Marshal(events.LedgerEvent{Type: events.RaceCancelled, RaceID: "r9", Reason: "weather"})
	require.NoError(t, err)
	require.NoError(t, rdb.Publish(ctx, "ledger_events_broadcast", payload).Err())

	select {
	case e := <-got:
		assert.Equal(t, events.RaceCancelled, e.Type)
		assert.Equal(t, "r9", e.RaceID)
		assert.Equal(t, "weather", e.Reason)
	case <-time.After(2 * time.Second):
		t.Fatal("event not forwarded")
	}
	assert.Empty(t, got, "malformed payload must be skipped")
}

func TestRedisSubscriberFailsWithoutRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, StartRedisSubscriber(ctx, rdb, "ledger_events_broadcast", make(chanBroadcaster, 1), zap.NewNop()))
}
