package settlement

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/horse-race-ledger/internal/ledger-service/ledger"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/model"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/notify"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/outcome"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/repo"
	"github.com/radieske/horse-race-ledger/pkg/contracts/events"
)

// Summary resume o efeito de um settle ou cancelamento.
type Summary struct {
	RaceID   string           `json:"race_id"`
	Outcome  model.RaceStatus `json:"outcome"`
	WinnerID string           `json:"winner_id,omitempty"`
	Reason   string           `json:"reason,omitempty"`

	Won      int `json:"won"`
	Lost     int `json:"lost"`
	Refunded int `json:"refunded"`

	Staked   decimal.Decimal `json:"staked"`
	Paid     decimal.Decimal `json:"paid"`
	Refunds  decimal.Decimal `json:"refunds"`
	Retained decimal.Decimal `json:"retained"` // stakes - payouts; negativo quando a casa perde
}

// Engine resolve todas as apostas ativas de uma corrida numa única transação.
type Engine struct {
	store    repo.Store
	notifier notify.Notifier
	log      *zap.Logger
	now      func() time.Time

	OnSettled     func(outcome string)
	OnBetResolved func(status string)
}

func NewEngine(store repo.Store, n notify.Notifier, log *zap.Logger, now func() time.Time) *Engine {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if n == nil {
		n = notify.Nop{}
	}
	return &Engine{store: store, notifier: n, log: log, now: now}
}

// Settle marca a corrida como finished com o vencedor escolhido por picker,
// paga as apostas vencedoras e fecha as perdedoras.
// Corrida já terminal: ErrAlreadySettled, sem nenhuma mutação.
// Sem participantes: ErrNoParticipants, quem chama deve cancelar.
func (e *Engine) Settle(ctx context.Context, raceID string, picker outcome.Picker) (Summary, error) {
	var (
		sum Summary
		evs []events.LedgerEvent
	)
	err := e.store.WithTx(ctx, func(tx repo.Tx) error {
		race, err := lockOpenRace(ctx, tx, raceID)
		if err != nil {
			return err
		}
		ps, err := tx.ListParticipants(ctx, raceID)
		if err != nil {
			return fmt.Errorf("list participants: %w", err)
		}
		winnerID, err := picker.Pick(ps)
		if err != nil {
			return err
		}
		if !hasParticipant(ps, winnerID) {
			return fmt.Errorf("%w: winner %s", model.ErrParticipantNotFound, winnerID)
		}

		now := e.now()
		// a escrita do status é o ponto de serialização contra um segundo settle
		race.Status = model.RaceFinished
		race.WinnerID = &winnerID
		race.SettledAt = &now
		if err := tx.UpdateRace(ctx, race); err != nil {
			return fmt.Errorf("update race: %w", err)
		}

		bets, err := tx.LockActiveBets(ctx, raceID)
		if err != nil {
			return fmt.Errorf("lock bets: %w", err)
		}
		var payees []string
		for _, b := range bets {
			if b.ParticipantID == winnerID && b.PotentialPayout.IsPositive() {
				payees = append(payees, b.UserID)
			}
		}
		if err := lockAccounts(ctx, tx, payees); err != nil {
			return err
		}

		sum = newSummary(raceID, model.RaceFinished)
		sum.WinnerID = winnerID
		for _, b := range bets {
			sum.Staked = sum.Staked.Add(b.Stake)
			if b.ParticipantID != winnerID {
				if err := closeBet(ctx, tx, b, model.BetLost, "race settled", now); err != nil {
					return err
				}
				sum.Lost++
				evs = append(evs, betEvent(events.BetLost, b, decimal.Zero, now))
				continue
			}

			if err := closeBet(ctx, tx, b, model.BetWon, "race settled", now); err != nil {
				return err
			}
			if b.PotentialPayout.IsPositive() {
				if _, err := ledger.Credit(ctx, tx, ledger.Entry{
					UserID: b.UserID,
					Amount: b.PotentialPayout,
					Kind:   model.TxPayout,
					BetID:  &b.ID,
					Memo:   "payout race " + raceID,
					At:     now,
				}); err != nil {
					return fmt.Errorf("credit payout bet %s: %w", b.ID, err)
				}
			}
			sum.Won++
			sum.Paid = sum.Paid.Add(b.PotentialPayout)
			evs = append(evs, betEvent(events.BetWon, b, b.PotentialPayout, now))
		}
		sum.Retained = sum.Staked.Sub(sum.Paid)
		evs = append(evs, events.LedgerEvent{
			Type:     events.RaceSettled,
			RaceID:   raceID,
			WinnerID: winnerID,
			Stake:    sum.Staked.StringFixed(2),
			Amount:   sum.Paid.StringFixed(2),
			Ts:       now,
		})
		return nil
	})
	if err != nil {
		return Summary{}, fmt.Errorf("settle race %s: %w", raceID, err)
	}

	e.log.Info("race settled",
		zap.String("race_id", raceID),
		zap.String("winner_id", sum.WinnerID),
		zap.Int("won", sum.Won),
		zap.Int("lost", sum.Lost),
		zap.String("paid", sum.Paid.StringFixed(2)),
		zap.String("retained", sum.Retained.StringFixed(2)),
	)
	e.emit(string(model.RaceFinished), evs)
	return sum, nil
}

// Cancel marca a corrida como cancelled e devolve o stake de cada aposta ativa.
func (e *Engine) Cancel(ctx context.Context, raceID, reason string) (Summary, error) {
	var (
		sum Summary
		evs []events.LedgerEvent
	)
	err := e.store.WithTx(ctx, func(tx repo.Tx) error {
		race, err := lockOpenRace(ctx, tx, raceID)
		if err != nil {
			return err
		}

		now := e.now()
		race.Status = model.RaceCancelled
		race.WinnerID = nil
		race.SettledAt = &now
		if err := tx.UpdateRace(ctx, race); err != nil {
			return fmt.Errorf("update race: %w", err)
		}

		bets, err := tx.LockActiveBets(ctx, raceID)
		if err != nil {
			return fmt.Errorf("lock bets: %w", err)
		}
		users := make([]string, len(bets))
		for i, b := range bets {
			users[i] = b.UserID
		}
		if err := lockAccounts(ctx, tx, users); err != nil {
			return err
		}

		sum = newSummary(raceID, model.RaceCancelled)
		sum.Reason = reason
		for _, b := range bets {
			if err := closeBet(ctx, tx, b, model.BetCancelled, reason, now); err != nil {
				return err
			}
			if _, err := ledger.Credit(ctx, tx, ledger.Entry{
				UserID: b.UserID,
				Amount: b.Stake,
				Kind:   model.TxRefund,
				BetID:  &b.ID,
				Memo:   "refund race " + raceID,
				At:     now,
			}); err != nil {
				return fmt.Errorf("refund bet %s: %w", b.ID, err)
			}
			sum.Refunded++
			sum.Staked = sum.Staked.Add(b.Stake)
			sum.Refunds = sum.Refunds.Add(b.Stake)
			evs = append(evs, betEvent(events.BetRefunded, b, b.Stake, now))
		}
		evs = append(evs, events.LedgerEvent{
			Type:   events.RaceCancelled,
			RaceID: raceID,
			Amount: sum.Refunds.StringFixed(2),
			Reason: reason,
			Ts:     now,
		})
		return nil
	})
	if err != nil {
		return Summary{}, fmt.Errorf("cancel race %s: %w", raceID, err)
	}

	e.log.Info("race cancelled",
		zap.String("race_id", raceID),
		zap.String("reason", reason),
		zap.Int("refunded", sum.Refunded),
		zap.String("refunds", sum.Refunds.StringFixed(2)),
	)
	e.emit(string(model.RaceCancelled), evs)
	return sum, nil
}

// emit roda depois do commit: eventos nunca anunciam algo que foi desfeito.
func (e *Engine) emit(result string, evs []events.LedgerEvent) {
	if e.OnSettled != nil {
		e.OnSettled(result)
	}
	for _, ev := range evs {
		if e.OnBetResolved != nil {
			switch ev.Type {
			case events.BetWon:
				e.OnBetResolved(string(model.BetWon))
			case events.BetLost:
				e.OnBetResolved(string(model.BetLost))
			case events.BetRefunded:
				e.OnBetResolved(string(model.BetCancelled))
			}
		}
		e.notifier.Notify(ev)
	}
}

func lockOpenRace(ctx context.Context, tx repo.Tx, raceID string) (model.Race, error) {
	race, err := tx.LockRace(ctx, raceID)
	if err != nil {
		return model.Race{}, err
	}
	if race.Status.Terminal() {
		return model.Race{}, fmt.Errorf("%w: race is %s", model.ErrAlreadySettled, race.Status)
	}
	return race, nil
}

// lockAccounts trava as contas em ordem de user_id. Duas liquidações de corridas
// diferentes com apostadores em comum pegam os locks na mesma ordem.
func lockAccounts(ctx context.Context, tx repo.Tx, userIDs []string) error {
	ids := append([]string(nil), userIDs...)
	sort.Strings(ids)
	for i, id := range ids {
		if i > 0 && id == ids[i-1] {
			continue
		}
		if _, err := tx.LockAccount(ctx, id); err != nil {
			return fmt.Errorf("lock account %s: %w", id, err)
		}
	}
	return nil
}

func closeBet(ctx context.Context, tx repo.Tx, b model.Bet, to model.BetStatus, reason string, at time.Time) error {
	if err := tx.CloseBet(ctx, b.ID, to, at); err != nil {
		return fmt.Errorf("close bet %s: %w", b.ID, err)
	}
	return tx.InsertBetTransition(ctx, model.BetTransition{
		BetID:     b.ID,
		OldStatus: b.Status,
		NewStatus: to,
		Reason:    reason,
		CreatedAt: at,
	})
}

func hasParticipant(ps []model.Participant, id string) bool {
	for _, p := range ps {
		if p.ID == id {
			return true
		}
	}
	return false
}

func newSummary(raceID string, st model.RaceStatus) Summary {
	return Summary{
		RaceID:   raceID,
		Outcome:  st,
		Staked:   decimal.Zero,
		Paid:     decimal.Zero,
		Refunds:  decimal.Zero,
		Retained: decimal.Zero,
	}
}

func betEvent(typ string, b model.Bet, amount decimal.Decimal, at time.Time) events.LedgerEvent {
	return events.LedgerEvent{
		Type:          typ,
		RaceID:        b.RaceID,
		BetID:         b.ID,
		UserID:        b.UserID,
		ParticipantID: b.ParticipantID,
		BetType:       string(b.Type),
		Stake:         b.Stake.StringFixed(2),
		Amount:        amount.StringFixed(2),
		Ts:            at,
	}
}
