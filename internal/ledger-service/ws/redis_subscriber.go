package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/horse-race-ledger/pkg/contracts/events"
)

type Broadcaster interface {
	Broadcast(e events.LedgerEvent) int
}

// StartRedisSubscriber assina o canal Redis Pub/Sub e repassa cada evento ao hub
// até o contexto encerrar. Retorna depois que a assinatura foi confirmada.
func StartRedisSubscriber(ctx context.Context, r *redis.Client, channel string, b Broadcaster, log *zap.Logger) error {
	sub := r.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	ch := sub.Channel()

	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var e events.LedgerEvent
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					log.Warn("ws subscriber unmarshal error", zap.Error(err))
					continue
				}
				b.Broadcast(e)
			}
		}
	}()
	return nil
}
