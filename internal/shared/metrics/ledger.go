package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Ledger agrupa as métricas do ledger-service.
type Ledger struct {
	Wagers          *prometheus.CounterVec // result
	Settlements     *prometheus.CounterVec // outcome
	BetsResolved    *prometheus.CounterVec // status
	SweepDuration   prometheus.Histogram
	EventsDropped   prometheus.Counter
	EventsPublished prometheus.Counter
	EventsFailed    prometheus.Counter
	HTTPRequests    *prometheus.CounterVec // method, route, code
}

func NewLedger(reg prometheus.Registerer) *Ledger {
	m := &Ledger{
		Wagers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_wagers_total", Help: "apostas por resultado da aceitação",
		}, []string{"result"}),
		Settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_settlements_total", Help: "corridas encerradas por desfecho",
		}, []string{"outcome"}),
		BetsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_bets_resolved_total", Help: "apostas fechadas por status final",
		}, []string{"status"}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_sweep_duration_seconds",
			Help:    "duração de cada passada do sweep",
			Buckets: prometheus.DefBuckets,
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_events_dropped_total", Help: "eventos descartados com buffer cheio",
		}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_events_published_total", Help: "eventos entregues ao kafka",
		}),
		EventsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_events_failed_total", Help: "falhas de publicação de eventos",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_http_requests_total", Help: "requisições HTTP por rota e status",
		}, []string{"method", "route", "code"}),
	}
	reg.MustRegister(m.Wagers, m.Settlements, m.BetsResolved, m.SweepDuration,
		m.EventsDropped, m.EventsPublished, m.EventsFailed, m.HTTPRequests)
	return m
}

func (m *Ledger) ObserveWager(result string)   { m.Wagers.WithLabelValues(result).Inc() }
func (m *Ledger) ObserveSettlement(o string)   { m.Settlements.WithLabelValues(o).Inc() }
func (m *Ledger) ObserveBetResolved(s string)  { m.BetsResolved.WithLabelValues(s).Inc() }
func (m *Ledger) ObserveSweep(d time.Duration) { m.SweepDuration.Observe(d.Seconds()) }

// Instrument conta requisições; route deve ser o padrão da rota, não o path cru.
func (m *Ledger) Instrument(route func(r *http.Request) string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)
		m.HTTPRequests.WithLabelValues(r.Method, route(r), strconv.Itoa(sw.code)).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Hijack é necessário para o upgrade de websocket passar pelo middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijack")
	}
	w.code = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Notification agrupa as métricas do notification-worker.
type Notification struct {
	Consumed  prometheus.Counter
	Broadcast prometheus.Counter
	Stored    prometheus.Counter
	Errors    *prometheus.CounterVec // stage
}

func NewNotification(reg prometheus.Registerer) *Notification {
	m := &Notification{
		Consumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notification_messages_consumed_total", Help: "mensagens consumidas do kafka",
		}),
		Broadcast: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notification_broadcasts_total", Help: "eventos repassados ao redis pub/sub",
		}),
		Stored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notification_inbox_stored_total", Help: "notificações gravadas na caixa do usuário",
		}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_errors_total", Help: "erros por estágio",
		}, []string{"stage"}),
	}
	reg.MustRegister(m.Consumed, m.Broadcast, m.Stored, m.Errors)
	return m
}

// Ingest agrupa as métricas do race-ingest-worker.
type Ingest struct {
	Imported *prometheus.CounterVec // result: created, existing, failed
	Source   *prometheus.CounterVec // source: feed, synthetic
}

func NewIngest(reg prometheus.Registerer) *Ingest {
	m := &Ingest{
		Imported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_races_total", Help: "corridas importadas por resultado",
		}, []string{"result"}),
		Source: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_fetches_total", Help: "buscas de catálogo por origem",
		}, []string{"source"}),
	}
	reg.MustRegister(m.Imported, m.Source)
	return m
}
