package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/horse-race-ledger/pkg/contracts/events"
)

// Notifier recebe eventos do núcleo. Nunca bloqueia quem chama.
type Notifier interface {
	Notify(e events.LedgerEvent)
}

// Publisher entrega um evento ao transporte (Kafka, Redis, ...).
type Publisher interface {
	Publish(ctx context.Context, e events.LedgerEvent) error
}

// Nop descarta tudo.
type Nop struct{}

func (Nop) Notify(events.LedgerEvent) {}

// Dispatcher desacopla o núcleo do transporte com um buffer.
// Buffer cheio: o evento é descartado e contado em OnDropped.
type Dispatcher struct {
	log     *zap.Logger
	pub     Publisher
	ch      chan events.LedgerEvent
	timeout time.Duration

	OnDropped   func()
	OnPublished func()
	OnFailed    func()
}

func NewDispatcher(pub Publisher, buffer int, log *zap.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Dispatcher{
		log:     log,
		pub:     pub,
		ch:      make(chan events.LedgerEvent, buffer),
		timeout: 5 * time.Second,
	}
}

func (d *Dispatcher) Notify(e events.LedgerEvent) {
	if e.Ts.IsZero() {
		e.Ts = time.Now().UTC()
	}
	select {
	case d.ch <- e:
	default:
		d.log.Warn("event buffer full, dropping", zap.String("type", e.Type), zap.String("race_id", e.RaceID))
		if d.OnDropped != nil {
			d.OnDropped()
		}
	}
}

// Run publica até ctx ser cancelado; o que sobrou no buffer é drenado antes de sair.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return
		case e := <-d.ch:
			d.publish(context.Background(), e)
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case e := <-d.ch:
			d.publish(context.Background(), e)
		default:
			return
		}
	}
}

func (d *Dispatcher) publish(parent context.Context, e events.LedgerEvent) {
	ctx, cancel := context.WithTimeout(parent, d.timeout)
	defer cancel()
	if err := d.pub.Publish(ctx, e); err != nil {
		// falha de entrega não volta para o núcleo
		d.log.Warn("event publish failed", zap.String("type", e.Type), zap.Error(err))
		if d.OnFailed != nil {
			d.OnFailed()
		}
		return
	}
	if d.OnPublished != nil {
		d.OnPublished()
	}
}

// Recorder guarda os eventos em memória para os testes.
type Recorder struct {
	mu     sync.Mutex
	events []events.LedgerEvent
}

func (r *Recorder) Notify(e events.LedgerEvent) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *Recorder) Events() []events.LedgerEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.LedgerEvent(nil), r.events...)
}

// OfType filtra os eventos gravados pelo tipo.
func (r *Recorder) OfType(t string) []events.LedgerEvent {
	var out []events.LedgerEvent
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
