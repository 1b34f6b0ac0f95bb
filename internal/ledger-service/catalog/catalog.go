package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/horse-race-ledger/internal/ledger-service/model"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/notify"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/outcome"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/repo"
	"github.com/radieske/horse-race-ledger/pkg/contracts/events"
)

type ParticipantInput struct {
	Lane      int
	HorseName string
	Jockey    string
	Odds      decimal.Decimal
}

// RaceInput é a criação em lote de uma corrida com seus participantes.
type RaceInput struct {
	Name           string
	ScheduledStart time.Time
	Participants   []ParticipantInput
}

// RaceCard é a corrida com o quadro de participantes, ordenado por raia.
type RaceCard struct {
	Race         model.Race          `json:"race"`
	Participants []model.Participant `json:"participants"`
}

// Cache guarda race cards. Implementações devem tolerar chave ausente.
type Cache interface {
	Get(ctx context.Context, raceID string) (RaceCard, bool, error)
	Set(ctx context.Context, card RaceCard) error
	Invalidate(ctx context.Context, raceID string) error
}

type Service struct {
	store    repo.Store
	cache    Cache
	notifier notify.Notifier
	log      *zap.Logger
	now      func() time.Time
}

// NewService: cache e notifier podem ser nil.
func NewService(store repo.Store, cache Cache, n notify.Notifier, log *zap.Logger) *Service {
	if n == nil {
		n = notify.Nop{}
	}
	return &Service{store: store, cache: cache, notifier: n, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// CreateRace valida a estrutura e grava corrida e participantes.
// Mesma (nome, largada) já existente: devolve a existente com created=false.
func (s *Service) CreateRace(ctx context.Context, in RaceInput) (RaceCard, bool, error) {
	in, err := normalize(in)
	if err != nil {
		return RaceCard{}, false, err
	}

	var (
		card    RaceCard
		created bool
	)
	err = s.store.WithTx(ctx, func(tx repo.Tx) error {
		existing, err := tx.FindRace(ctx, in.Name, in.ScheduledStart)
		if err == nil {
			card.Race = existing
			card.Participants, err = tx.ListParticipants(ctx, existing.ID)
			return err
		}
		if !errors.Is(err, model.ErrRaceNotFound) {
			return err
		}

		now := s.now()
		card.Race = model.Race{
			ID:             uuid.NewString(),
			Name:           in.Name,
			ScheduledStart: in.ScheduledStart,
			Status:         model.RaceScheduled,
			CreatedAt:      now,
		}
		if err := tx.InsertRace(ctx, card.Race); err != nil {
			return fmt.Errorf("insert race: %w", err)
		}
		for _, pin := range in.Participants {
			p := model.Participant{
				ID:        uuid.NewString(),
				RaceID:    card.Race.ID,
				Lane:      pin.Lane,
				HorseName: pin.HorseName,
				Jockey:    pin.Jockey,
				Odds:      pin.Odds,
				CreatedAt: now,
			}
			if err := tx.InsertParticipant(ctx, p); err != nil {
				return fmt.Errorf("insert participant lane %d: %w", p.Lane, err)
			}
		}
		created = true
		card.Participants, err = tx.ListParticipants(ctx, card.Race.ID)
		return err
	})
	if err != nil {
		return RaceCard{}, false, err
	}

	if created {
		s.log.Info("race created",
			zap.String("race_id", card.Race.ID),
			zap.String("name", card.Race.Name),
			zap.Time("scheduled_start", card.Race.ScheduledStart),
			zap.Int("participants", len(card.Participants)),
		)
		s.notifier.Notify(events.LedgerEvent{Type: events.RaceCreated, RaceID: card.Race.ID, Ts: card.Race.CreatedAt})
	}
	return card, created, nil
}

func normalize(in RaceInput) (RaceInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return in, fmt.Errorf("%w: name required", model.ErrInvalidRace)
	}
	if in.ScheduledStart.IsZero() {
		return in, fmt.Errorf("%w: scheduled start required", model.ErrInvalidRace)
	}
	in.ScheduledStart = in.ScheduledStart.UTC().Truncate(time.Second)

	lanes := make(map[int]bool, len(in.Participants))
	names := make(map[string]bool, len(in.Participants))
	for i := range in.Participants {
		p := &in.Participants[i]
		p.HorseName = strings.TrimSpace(p.HorseName)
		p.Jockey = strings.TrimSpace(p.Jockey)
		if p.Lane <= 0 || p.HorseName == "" {
			return in, fmt.Errorf("%w: participant %d needs lane and horse name", model.ErrInvalidRace, i)
		}
		key := strings.ToLower(p.HorseName)
		if lanes[p.Lane] || names[key] {
			return in, fmt.Errorf("%w: lane %d / %q", model.ErrDuplicateLane, p.Lane, p.HorseName)
		}
		lanes[p.Lane], names[key] = true, true

		p.Odds = model.RoundMoney(p.Odds)
		if err := model.ValidateOdds(p.Odds); err != nil {
			return in, fmt.Errorf("%w: %s has odds %s", err, p.HorseName, p.Odds)
		}
	}
	return in, nil
}

// UpdateOdds troca a odd do participante enquanto nenhuma aposta o referencia.
func (s *Service) UpdateOdds(ctx context.Context, participantID string, odds decimal.Decimal) (model.Participant, error) {
	odds = model.RoundMoney(odds)
	if err := model.ValidateOdds(odds); err != nil {
		return model.Participant{}, err
	}
	var p model.Participant
	err := s.store.WithTx(ctx, func(tx repo.Tx) error {
		var err error
		p, err = tx.GetParticipant(ctx, participantID)
		if err != nil {
			return err
		}
		// trava a corrida: uma aposta concorrente não passa entre a contagem e o update
		race, err := tx.LockRace(ctx, p.RaceID)
		if err != nil {
			return err
		}
		if race.Status.Terminal() {
			return model.ErrAlreadySettled
		}
		n, err := tx.CountBetsOnParticipant(ctx, participantID)
		if err != nil {
			return err
		}
		if n > 0 {
			return model.ErrOddsLocked
		}
		if err := tx.UpdateOdds(ctx, participantID, odds); err != nil {
			return err
		}
		p.Odds = odds
		return nil
	})
	if err != nil {
		return model.Participant{}, err
	}
	s.Invalidate(ctx, p.RaceID)
	return p, nil
}

func (s *Service) GetRace(ctx context.Context, raceID string) (model.Race, error) {
	var r model.Race
	err := s.store.WithTx(ctx, func(tx repo.Tx) (err error) {
		r, err = tx.GetRace(ctx, raceID)
		return err
	})
	return r, err
}

// ListRaces filtra por status; sem filtro devolve todas, por horário de largada.
func (s *Service) ListRaces(ctx context.Context, statuses ...model.RaceStatus) ([]model.Race, error) {
	for _, st := range statuses {
		if !st.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", model.ErrInvalidRace, st)
		}
	}
	var out []model.Race
	err := s.store.WithTx(ctx, func(tx repo.Tx) (err error) {
		out, err = tx.ListRaces(ctx, statuses)
		return err
	})
	return out, err
}

// RaceCard lê pelo cache; falha de cache nunca derruba a leitura.
func (s *Service) RaceCard(ctx context.Context, raceID string) (RaceCard, error) {
	if s.cache != nil {
		card, ok, err := s.cache.Get(ctx, raceID)
		if err != nil {
			s.log.Warn("race card cache get failed", zap.String("race_id", raceID), zap.Error(err))
		} else if ok {
			return card, nil
		}
	}

	var card RaceCard
	err := s.store.WithTx(ctx, func(tx repo.Tx) (err error) {
		card.Race, err = tx.GetRace(ctx, raceID)
		if err != nil {
			return err
		}
		card.Participants, err = tx.ListParticipants(ctx, raceID)
		return err
	})
	if err != nil {
		return RaceCard{}, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, card); err != nil {
			s.log.Warn("race card cache set failed", zap.String("race_id", raceID), zap.Error(err))
		}
	}
	return card, nil
}

// Invalidate remove o race card do cache.
func (s *Service) Invalidate(ctx context.Context, raceID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, raceID); err != nil {
		s.log.Warn("race card cache invalidate failed", zap.String("race_id", raceID), zap.Error(err))
	}
}

// Watch devolve um Notifier que invalida o cache quando a corrida muda de estado
// e repassa o evento para next.
func (s *Service) Watch(next notify.Notifier) notify.Notifier {
	return watcher{s: s, next: next}
}

type watcher struct {
	s    *Service
	next notify.Notifier
}

func (w watcher) Notify(e events.LedgerEvent) {
	switch e.Type {
	case events.RaceStarted, events.RaceSettled, events.RaceCancelled:
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		w.s.Invalidate(ctx, e.RaceID)
		cancel()
	}
	if w.next != nil {
		w.next.Notify(e)
	}
}

// Bucket soma apostas por quantidade e valor.
type Bucket struct {
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

type ParticipantStats struct {
	ParticipantID string          `json:"participant_id"`
	Lane          int             `json:"lane"`
	HorseName     string          `json:"horse_name"`
	Odds          decimal.Decimal `json:"odds"`
	Probability   float64         `json:"probability"`
	Bets          int             `json:"bets"`
	Staked        decimal.Decimal `json:"staked"`
	Liability     decimal.Decimal `json:"liability"` // soma dos payouts se este cavalo vencer
}

// Stats é o resumo de apostas de uma corrida.
type Stats struct {
	RaceID        string                     `json:"race_id"`
	Status        model.RaceStatus           `json:"status"`
	TotalBets     int                        `json:"total_bets"`
	TotalStaked   decimal.Decimal            `json:"total_staked"`
	ByStatus      map[model.BetStatus]Bucket `json:"by_status"`
	ByType        map[model.BetType]Bucket   `json:"by_type"`
	ByParticipant []ParticipantStats         `json:"by_participant"`
}

func (s *Service) Stats(ctx context.Context, raceID string) (Stats, error) {
	var (
		race  model.Race
		parts []model.Participant
		bets  []model.Bet
	)
	err := s.store.WithTx(ctx, func(tx repo.Tx) (err error) {
		if race, err = tx.GetRace(ctx, raceID); err != nil {
			return err
		}
		if parts, err = tx.ListParticipants(ctx, raceID); err != nil {
			return err
		}
		bets, err = tx.ListBetsByRace(ctx, raceID)
		return err
	})
	if err != nil {
		return Stats{}, err
	}

	st := Stats{
		RaceID:      race.ID,
		Status:      race.Status,
		TotalStaked: decimal.Zero,
		ByStatus:    map[model.BetStatus]Bucket{},
		ByType:      map[model.BetType]Bucket{},
	}
	probs := outcome.Probabilities(parts)
	idx := make(map[string]int, len(parts))
	for i, p := range parts {
		idx[p.ID] = i
		st.ByParticipant = append(st.ByParticipant, ParticipantStats{
			ParticipantID: p.ID,
			Lane:          p.Lane,
			HorseName:     p.HorseName,
			Odds:          p.Odds,
			Probability:   probs[p.ID],
			Staked:        decimal.Zero,
			Liability:     decimal.Zero,
		})
	}
	for _, b := range bets {
		st.TotalBets++
		st.TotalStaked = st.TotalStaked.Add(b.Stake)
		st.ByStatus[b.Status] = add(st.ByStatus[b.Status], b.Stake)
		st.ByType[b.Type] = add(st.ByType[b.Type], b.Stake)
		if i, ok := idx[b.ParticipantID]; ok {
			ps := &st.ByParticipant[i]
			ps.Bets++
			ps.Staked = ps.Staked.Add(b.Stake)
			if b.Status == model.BetActive || b.Status == model.BetWon {
				ps.Liability = ps.Liability.Add(b.PotentialPayout)
			}
		}
	}
	return st, nil
}

func add(b Bucket, amount decimal.Decimal) Bucket {
	b.Count++
	b.Amount = b.Amount.Add(amount)
	return b
}
