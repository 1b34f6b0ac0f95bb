package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/horse-race-ledger/pkg/contracts/events"
)

// Notification é a mensagem guardada na caixa do usuário.
type Notification struct {
	Type    string    `json:"type"`
	RaceID  string    `json:"race_id,omitempty"`
	BetID   string    `json:"bet_id,omitempty"`
	Message string    `json:"message"`
	Ts      time.Time `json:"ts"`
}

// RedisInbox mantém as últimas Max notificações por usuário numa lista Redis.
type RedisInbox struct {
	R   *redis.Client
	Max int64
	TTL time.Duration
}

func New(r *redis.Client, max int64, ttl time.Duration) *RedisInbox {
	if max <= 0 {
		max = 50
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisInbox{R: r, Max: max, TTL: ttl}
}

func key(userID string) string { return "ledger:inbox:" + userID }

// Push insere no topo e corta a cauda numa única transação.
func (b *RedisInbox) Push(ctx context.Context, userID string, n Notification) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return err
	}
	k := key(userID)
	_, err = b.R.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, k, raw)
		p.LTrim(ctx, k, 0, b.Max-1)
		p.Expire(ctx, k, b.TTL)
		return nil
	})
	return err
}

// Recent devolve até limit notificações, mais recentes primeiro.
func (b *RedisInbox) Recent(ctx context.Context, userID string, limit int64) ([]Notification, error) {
	if limit <= 0 || limit > b.Max {
		limit = b.Max
	}
	raws, err := b.R.LRange(ctx, key(userID), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Notification, 0, len(raws))
	for _, raw := range raws {
		var n Notification
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			return nil, fmt.Errorf("decode notification: %w", err)
		}
		out = append(out, n)
	}
	return out, nil
}

// FromEvent monta a mensagem do usuário; eventos sem usuário não geram notificação.
func FromEvent(e events.LedgerEvent) (Notification, bool) {
	var msg string
	switch e.Type {
	case events.BetPlaced:
		msg = fmt.Sprintf("Bet accepted: %s %s, potential payout %s", e.BetType, e.Stake, e.Amount)
	case events.BetWon:
		msg = fmt.Sprintf("Your %s bet won! Payout %s", e.BetType, e.Amount)
	case events.BetLost:
		msg = fmt.Sprintf("Your %s bet of %s did not win", e.BetType, e.Stake)
	case events.BetRefunded:
		msg = fmt.Sprintf("Race cancelled, stake %s refunded", e.Amount)
	default:
		return Notification{}, false
	}
	if e.UserID == "" {
		return Notification{}, false
	}
	return Notification{Type: e.Type, RaceID: e.RaceID, BetID: e.BetID, Message: msg, Ts: e.Ts}, true
}
