package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/horse-race-ledger/internal/ledger-service/catalog"
)

// RaceCardCache guarda o race card serializado em JSON no Redis.
type RaceCardCache struct {
	R   *redis.Client
	TTL time.Duration
}

func New(r *redis.Client, ttl time.Duration) *RaceCardCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RaceCardCache{R: r, TTL: ttl}
}

func keyRace(raceID string) string { return "ledger:race_card:" + raceID }

func (c *RaceCardCache) Get(ctx context.Context, raceID string) (catalog.RaceCard, bool, error) {
	b, err := c.R.Get(ctx, keyRace(raceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return catalog.RaceCard{}, false, nil
	}
	if err != nil {
		return catalog.RaceCard{}, false, err
	}
	var card catalog.RaceCard
	if err := json.Unmarshal(b, &card); err != nil {
		return catalog.RaceCard{}, false, err
	}
	return card, true, nil
}

func (c *RaceCardCache) Set(ctx context.Context, card catalog.RaceCard) error {
	b, err := json.Marshal(card)
	if err != nil {
		return err
	}
	return c.R.Set(ctx, keyRace(card.Race.ID), b, c.TTL).Err()
}

func (c *RaceCardCache) Invalidate(ctx context.Context, raceID string) error {
	return c.R.Del(ctx, keyRace(raceID)).Err()
}
