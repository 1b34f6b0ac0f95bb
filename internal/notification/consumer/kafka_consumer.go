package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/horse-race-ledger/internal/notification/inbox"
	"github.com/radieske/horse-race-ledger/pkg/contracts/events"
)

type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Broadcaster interface {
	Publish(ctx context.Context, channel string, payload []byte) (int64, error)
}

type Inbox interface {
	Push(ctx context.Context, userID string, n inbox.Notification) error
}

var errNoType = errors.New("event without type")

// Processor consome eventos do ledger do Kafka, repassa ao Redis Pub/Sub (hub de WS)
// e guarda a notificação na caixa do usuário.
// Callbacks de métricas podem ser usadas para monitoramento de cada etapa
type Processor struct {
	Log         *zap.Logger
	Reader      MessageReader
	Broadcaster Broadcaster
	Channel     string
	Inbox       Inbox         // opcional
	DLQ         MessageWriter // opcional: mensagens que não decodificam

	OnConsumed  func()       // métricas (counter++)
	OnBroadcast func()       // métricas
	OnStored    func()       // métricas
	OnError     func(string) // métricas por fase
}

// Run inicia o loop principal de consumo e processamento das mensagens Kafka
func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err() // encerra se o contexto for cancelado
			}
			p.Log.Warn("kafka read failed", zap.Error(err))
			p.fail("read")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}
		if p.OnConsumed != nil {
			p.OnConsumed()
		}
		p.Handle(ctx, m)
	}
}

// Handle processa uma mensagem. Falhas de Redis não travam o consumo: o evento
// já está gravado no ledger e o WS é best effort.
func (p *Processor) Handle(ctx context.Context, m kafka.Message) {
	var ev events.LedgerEvent
	err := json.Unmarshal(m.Value, &ev)
	if err == nil && ev.Type == "" {
		err = errNoType
	}
	if err != nil {
		p.Log.Warn("invalid message", zap.Int64("offset", m.Offset), zap.Error(err))
		p.fail("decode")
		p.deadLetter(ctx, m, err)
		return
	}

	if _, err := p.Broadcaster.Publish(ctx, p.Channel, m.Value); err != nil {
		p.Log.Warn("redis publish failed", zap.String("type", ev.Type), zap.Error(err))
		p.fail("broadcast")
	} else if p.OnBroadcast != nil {
		p.OnBroadcast()
	}

	if p.Inbox == nil {
		return
	}
	n, ok := inbox.FromEvent(ev)
	if !ok {
		return
	}
	if err := p.Inbox.Push(ctx, ev.UserID, n); err != nil {
		p.Log.Warn("inbox push failed", zap.String("user_id", ev.UserID), zap.Error(err))
		p.fail("inbox")
		return
	}
	if p.OnStored != nil {
		p.OnStored()
	}
}

func (p *Processor) deadLetter(ctx context.Context, m kafka.Message, cause error) {
	if p.DLQ == nil {
		return
	}
	err := p.DLQ.WriteMessages(ctx, kafka.Message{
		Key:   m.Key,
		Value: m.Value,
		Headers: append(m.Headers,
			kafka.Header{Key: "dlq_reason", Value: []byte(cause.Error())},
			kafka.Header{Key: "source_topic", Value: []byte(m.Topic)},
		),
	})
	if err != nil {
		p.Log.Error("dlq write failed", zap.Error(err))
		p.fail("dlq")
	}
}

func (p *Processor) fail(stage string) {
	if p.OnError != nil {
		p.OnError(stage)
	}
}
