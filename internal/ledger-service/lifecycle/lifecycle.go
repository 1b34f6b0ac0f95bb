package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/horse-race-ledger/internal/ledger-service/model"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/notify"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/outcome"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/repo"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/settlement"
	"github.com/radieske/horse-race-ledger/pkg/contracts/events"
)

const (
	ActionStarted   = "started"
	ActionSettled   = "settled"
	ActionCancelled = "cancelled"
	ActionFailed    = "failed"

	ReasonNoParticipants = "no participants"
	sweepLockKey         = "ledger:sweep:lock"
)

// SweepResult é o que aconteceu com uma corrida numa passada do sweep.
type SweepResult struct {
	RaceID  string              `json:"race_id"`
	Action  string              `json:"action"`
	Summary *settlement.Summary `json:"summary,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// Locker garante um único sweep por vez entre instâncias.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

type Config struct {
	RaceDuration time.Duration // largada + duração = hora do settle
	Now          func() time.Time
	Notifier     notify.Notifier // recebe race_started; nil descarta
}

// Manager conduz a máquina de estados da corrida:
// scheduled -> in_progress -> finished | cancelled.
// O relógio é a única autoridade; in_progress só espelha o horário.
type Manager struct {
	store  repo.Store
	engine *settlement.Engine
	picker outcome.Picker
	log    *zap.Logger
	cfg    Config

	OnSweep func(d time.Duration)
}

func NewManager(store repo.Store, engine *settlement.Engine, picker outcome.Picker, log *zap.Logger, cfg Config) *Manager {
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.RaceDuration <= 0 {
		cfg.RaceDuration = 2 * time.Minute
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Nop{}
	}
	return &Manager{store: store, engine: engine, picker: picker, log: log, cfg: cfg}
}

// Sweep avança todas as corridas não terminais cuja largada já passou.
// Erro numa corrida é logado e não interrompe as demais; a corrida fica como estava
// para a próxima passada. ErrAlreadySettled é ignorado.
func (m *Manager) Sweep(ctx context.Context) ([]SweepResult, error) {
	start := time.Now()
	defer func() {
		if m.OnSweep != nil {
			m.OnSweep(time.Since(start))
		}
	}()

	now := m.cfg.Now()
	type due struct {
		race  model.Race
		parts int
	}
	var pending []due
	err := m.store.WithTx(ctx, func(tx repo.Tx) error {
		races, err := tx.ListRacesStartedBy(ctx, now)
		if err != nil {
			return err
		}
		for _, r := range races {
			ps, err := tx.ListParticipants(ctx, r.ID)
			if err != nil {
				return err
			}
			pending = append(pending, due{race: r, parts: len(ps)})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list due races: %w", err)
	}

	results := make([]SweepResult, 0, len(pending))
	for _, d := range pending {
		res, err := m.advance(ctx, d.race, d.parts, now)
		if errors.Is(err, model.ErrAlreadySettled) {
			continue
		}
		if err != nil {
			m.log.Error("sweep race failed", zap.String("race_id", d.race.ID), zap.Error(err))
			results = append(results, SweepResult{RaceID: d.race.ID, Action: ActionFailed, Error: err.Error()})
			continue
		}
		if res.Action != "" {
			results = append(results, res)
		}
	}
	if len(results) > 0 {
		m.log.Info("sweep done", zap.Int("races", len(results)))
	}
	return results, nil
}

func (m *Manager) advance(ctx context.Context, r model.Race, parts int, now time.Time) (SweepResult, error) {
	switch {
	case parts == 0:
		sum, err := m.engine.Cancel(ctx, r.ID, ReasonNoParticipants)
		if err != nil {
			return SweepResult{}, err
		}
		return SweepResult{RaceID: r.ID, Action: ActionCancelled, Summary: &sum}, nil

	case r.DueAt(now, m.cfg.RaceDuration):
		sum, err := m.engine.Settle(ctx, r.ID, m.picker)
		if errors.Is(err, model.ErrNoParticipants) {
			sum, err = m.engine.Cancel(ctx, r.ID, ReasonNoParticipants)
			if err != nil {
				return SweepResult{}, err
			}
			return SweepResult{RaceID: r.ID, Action: ActionCancelled, Summary: &sum}, nil
		}
		if err != nil {
			return SweepResult{}, err
		}
		return SweepResult{RaceID: r.ID, Action: ActionSettled, Summary: &sum}, nil

	case r.Status == model.RaceScheduled:
		started, err := m.markInProgress(ctx, r.ID)
		if err != nil || !started {
			return SweepResult{}, err
		}
		return SweepResult{RaceID: r.ID, Action: ActionStarted}, nil
	}
	return SweepResult{}, nil
}

func (m *Manager) markInProgress(ctx context.Context, raceID string) (bool, error) {
	started := false
	err := m.store.WithTx(ctx, func(tx repo.Tx) error {
		r, err := tx.LockRace(ctx, raceID)
		if err != nil {
			return err
		}
		if r.Status != model.RaceScheduled {
			return nil
		}
		r.Status = model.RaceInProgress
		started = true
		return tx.UpdateRace(ctx, r)
	})
	if err != nil {
		return false, err
	}
	if started {
		m.log.Info("race started", zap.String("race_id", raceID))
		m.cfg.Notifier.Notify(events.LedgerEvent{Type: events.RaceStarted, RaceID: raceID, Ts: m.cfg.Now()})
	}
	return started, nil
}

// CancelRace é o cancelamento pelo operador. Corrida já cancelada: no-op.
// Corrida finalizada: ErrAlreadySettled.
func (m *Manager) CancelRace(ctx context.Context, raceID, operator, reason string) (settlement.Summary, error) {
	if reason == "" {
		reason = "cancelled by operator"
	}
	sum, err := m.engine.Cancel(ctx, raceID, reason)
	if errors.Is(err, model.ErrAlreadySettled) {
		race, gerr := m.race(ctx, raceID)
		if gerr != nil {
			return settlement.Summary{}, gerr
		}
		if race.Status == model.RaceCancelled {
			return settlement.Summary{RaceID: raceID, Outcome: model.RaceCancelled}, nil
		}
		return settlement.Summary{}, err
	}
	if err != nil {
		return settlement.Summary{}, err
	}
	m.log.Info("race cancelled by operator", zap.String("race_id", raceID), zap.String("operator", operator))
	return sum, nil
}

// SettleRace fecha a corrida com o vencedor declarado pelo operador.
// A corrida precisa ter largado.
func (m *Manager) SettleRace(ctx context.Context, raceID, winnerID string) (settlement.Summary, error) {
	race, err := m.race(ctx, raceID)
	if err != nil {
		return settlement.Summary{}, err
	}
	if m.cfg.Now().Before(race.ScheduledStart) {
		return settlement.Summary{}, model.ErrRaceNotStarted
	}
	return m.engine.Settle(ctx, raceID, outcome.Operator(winnerID))
}

func (m *Manager) race(ctx context.Context, raceID string) (model.Race, error) {
	var r model.Race
	err := m.store.WithTx(ctx, func(tx repo.Tx) (err error) {
		r, err = tx.GetRace(ctx, raceID)
		return err
	})
	return r, err
}

// Run executa o sweep a cada interval até ctx ser cancelado.
// Com locker, só a instância que pegar o lock faz a passada.
func (m *Manager) Run(ctx context.Context, interval, lockTTL time.Duration, locker Locker) {
	t := time.NewTicker(interval)
	defer t.Stop()
	m.log.Info("sweeper started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			m.log.Info("sweeper stopped")
			return
		case <-t.C:
			m.tick(ctx, lockTTL, locker)
		}
	}
}

func (m *Manager) tick(ctx context.Context, lockTTL time.Duration, locker Locker) {
	if locker != nil {
		token, ok, err := locker.Acquire(ctx, sweepLockKey, lockTTL)
		if err != nil {
			m.log.Warn("sweep lock failed", zap.Error(err))
			return
		}
		if !ok {
			return // outra instância está varrendo
		}
		defer func() {
			if err := locker.Release(context.Background(), sweepLockKey, token); err != nil {
				m.log.Warn("sweep unlock failed", zap.Error(err))
			}
		}()
	}
	if _, err := m.Sweep(ctx); err != nil {
		m.log.Error("sweep failed", zap.Error(err))
	}
}
