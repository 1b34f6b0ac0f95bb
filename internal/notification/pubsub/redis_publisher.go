package pubsub

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisBroadcaster publica payloads no Redis Pub/Sub para os hubs de WebSocket
type RedisBroadcaster struct {
	r *redis.Client
}

func NewRedisBroadcaster(r *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{r: r}
}

// Publish devolve quantos assinantes receberam a mensagem.
func (b *RedisBroadcaster) Publish(ctx context.Context, channel string, payload []byte) (int64, error) {
	return b.r.Publish(ctx, channel, payload).Result()
}
