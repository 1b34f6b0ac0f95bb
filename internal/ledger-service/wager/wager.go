package wager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/horse-race-ledger/internal/ledger-service/ledger"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/model"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/notify"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/repo"
	"github.com/radieske/horse-race-ledger/pkg/contracts/events"
)

// Config carrega a política de aceitação.
type Config struct {
	MinStake decimal.Decimal
	Payouts  model.PayoutTable
	Now      func() time.Time // nil = relógio real
}

// Request é uma aposta ainda não validada.
type Request struct {
	UserID        string
	ParticipantID string
	Type          model.BetType
	Stake         decimal.Decimal
}

type Service struct {
	store    repo.Store
	notifier notify.Notifier
	log      *zap.Logger
	cfg      Config

	OnResult func(result string) // métricas: accepted, rejected_<motivo>
}

func NewService(store repo.Store, n notify.Notifier, log *zap.Logger, cfg Config) *Service {
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if n == nil {
		n = notify.Nop{}
	}
	return &Service{store: store, notifier: n, log: log, cfg: cfg}
}

// PlaceWager valida e grava a aposta. Débito e inserção acontecem na mesma transação:
// nunca existe débito sem aposta nem aposta sem débito.
func (s *Service) PlaceWager(ctx context.Context, req Request) (model.Bet, error) {
	bet, err := s.place(ctx, req)
	s.record(err)
	if err != nil {
		return model.Bet{}, err
	}

	s.log.Info("wager accepted",
		zap.String("bet_id", bet.ID),
		zap.String("user_id", bet.UserID),
		zap.String("race_id", bet.RaceID),
		zap.String("stake", bet.Stake.StringFixed(2)),
	)
	s.notifier.Notify(events.LedgerEvent{
		Type:          events.BetPlaced,
		RaceID:        bet.RaceID,
		BetID:         bet.ID,
		UserID:        bet.UserID,
		ParticipantID: bet.ParticipantID,
		BetType:       string(bet.Type),
		Stake:         bet.Stake.StringFixed(2),
		Amount:        bet.PotentialPayout.StringFixed(2),
		Ts:            bet.CreatedAt,
	})
	return bet, nil
}

func (s *Service) place(ctx context.Context, req Request) (model.Bet, error) {
	if req.UserID == "" {
		return model.Bet{}, model.ErrInvalidUser
	}
	bt, err := model.ParseBetType(string(req.Type))
	if err != nil {
		return model.Bet{}, err
	}
	if !req.Stake.IsPositive() || !req.Stake.Equal(model.RoundMoney(req.Stake)) {
		return model.Bet{}, model.ErrInvalidAmount
	}
	if req.Stake.LessThan(s.cfg.MinStake) {
		return model.Bet{}, fmt.Errorf("%w: minimum is %s", model.ErrStakeTooSmall, s.cfg.MinStake.StringFixed(2))
	}

	var bet model.Bet
	err = s.store.WithTx(ctx, func(tx repo.Tx) error {
		p, err := tx.GetParticipant(ctx, req.ParticipantID)
		if err != nil {
			return err
		}
		// trava a corrida: settlement concorrente espera este commit
		race, err := tx.LockRace(ctx, p.RaceID)
		if err != nil {
			return err
		}
		now := s.cfg.Now()
		if !race.OpenAt(now) {
			return fmt.Errorf("%w: race %s is %s", model.ErrRaceNotOpen, race.ID, race.Status)
		}

		payout, err := s.cfg.Payouts.PotentialPayout(bt, req.Stake, p.Odds)
		if err != nil {
			return err
		}
		bet = model.Bet{
			ID:              uuid.NewString(),
			UserID:          req.UserID,
			RaceID:          race.ID,
			ParticipantID:   p.ID,
			Type:            bt,
			Stake:           req.Stake,
			PotentialPayout: payout,
			Status:          model.BetActive,
			CreatedAt:       now,
		}

		if _, err := ledger.Debit(ctx, tx, ledger.Entry{
			UserID: req.UserID,
			Amount: req.Stake,
			Kind:   model.TxWager,
			BetID:  &bet.ID,
			Memo:   fmt.Sprintf("%s bet on %s", bt, p.HorseName),
			At:     now,
		}); err != nil {
			return err
		}
		if err := tx.InsertBet(ctx, bet); err != nil {
			return fmt.Errorf("insert bet: %w", err)
		}
		return tx.InsertBetTransition(ctx, model.BetTransition{
			BetID:     bet.ID,
			NewStatus: model.BetActive,
			Reason:    "placed",
			CreatedAt: now,
		})
	})
	return bet, err
}

func (s *Service) record(err error) {
	if s.OnResult == nil {
		return
	}
	s.OnResult(ResultLabel(err))
}

// ResultLabel traduz o erro de aceitação para o label da métrica.
func ResultLabel(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, model.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, model.ErrStakeTooSmall):
		return "stake_too_small"
	case errors.Is(err, model.ErrRaceNotOpen):
		return "race_not_open"
	case errors.Is(err, model.ErrParticipantNotFound), errors.Is(err, model.ErrRaceNotFound):
		return "not_found"
	case errors.Is(err, model.ErrInvalidAmount), errors.Is(err, model.ErrInvalidBetType), errors.Is(err, model.ErrInvalidUser):
		return "invalid"
	case errors.Is(err, model.ErrAccountNotFound):
		return "no_account"
	default:
		return "error"
	}
}

func (s *Service) Get(ctx context.Context, betID string) (model.Bet, error) {
	var b model.Bet
	err := s.store.WithTx(ctx, func(tx repo.Tx) (err error) {
		b, err = tx.GetBet(ctx, betID)
		return err
	})
	return b, err
}

// ListByUser devolve as apostas do usuário, mais recentes primeiro.
func (s *Service) ListByUser(ctx context.Context, userID string, limit, offset int) ([]model.Bet, error) {
	var out []model.Bet
	err := s.store.WithTx(ctx, func(tx repo.Tx) (err error) {
		out, err = tx.ListBetsByUser(ctx, userID, limit, offset)
		return err
	})
	return out, err
}

// History devolve as transições de status da aposta.
func (s *Service) History(ctx context.Context, betID string) ([]model.BetTransition, error) {
	var out []model.BetTransition
	err := s.store.WithTx(ctx, func(tx repo.Tx) error {
		if _, err := tx.GetBet(ctx, betID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListBetTransitions(ctx, betID)
		return err
	})
	return out, err
}
