// Package ledgertest monta cenários no Store para os testes dos serviços.
package ledgertest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/radieske/horse-race-ledger/internal/ledger-service/model"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/repo"
)

func Dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// Clock é um relógio manual seguro para goroutines.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(t time.Time) *Clock { return &Clock{now: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// SeedAccount cria a conta com o saldo informado, registrado como depósito.
func SeedAccount(t *testing.T, store repo.Store, userID, balance string) model.Account {
	t.Helper()
	var acc model.Account
	err := store.WithTx(context.Background(), func(tx repo.Tx) error {
		now := time.Now().UTC()
		acc = model.Account{ID: uuid.NewString(), UserID: userID, Balance: Dec(balance), CreatedAt: now, UpdatedAt: now}
		if _, err := tx.InsertAccount(context.Background(), acc); err != nil {
			return err
		}
		return tx.InsertTransaction(context.Background(), model.Transaction{
			ID: uuid.NewString(), AccountID: acc.ID, UserID: userID, Kind: model.TxDeposit,
			Amount: Dec(balance), BalanceAfter: Dec(balance), Memo: "seed", CreatedAt: now,
		})
	})
	require.NoError(t, err)
	return acc
}

// SeedRace cria uma corrida agendada com um participante por odd, raias 1..n.
func SeedRace(t *testing.T, store repo.Store, start time.Time, odds ...string) (model.Race, []model.Participant) {
	t.Helper()
	ctx := context.Background()
	race := model.Race{
		ID:             uuid.NewString(),
		Name:           "Race " + start.Format("15:04"),
		ScheduledStart: start,
		Status:         model.RaceScheduled,
		CreatedAt:      start.Add(-24 * time.Hour),
	}
	parts := make([]model.Participant, 0, len(odds))
	err := store.WithTx(ctx, func(tx repo.Tx) error {
		if err := tx.InsertRace(ctx, race); err != nil {
			return err
		}
		for i, o := range odds {
			p := model.Participant{
				ID:        uuid.NewString(),
				RaceID:    race.ID,
				Lane:      i + 1,
				HorseName: fmt.Sprintf("Horse %d", i+1),
				Jockey:    fmt.Sprintf("Jockey %d", i+1),
				Odds:      Dec(o),
				CreatedAt: race.CreatedAt,
			}
			if err := tx.InsertParticipant(ctx, p); err != nil {
				return err
			}
			parts = append(parts, p)
		}
		return nil
	})
	require.NoError(t, err)
	return race, parts
}

// Balance lê o saldo atual do usuário.
func Balance(t *testing.T, store repo.Store, userID string) decimal.Decimal {
	t.Helper()
	var acc model.Account
	err := store.WithTx(context.Background(), func(tx repo.Tx) (err error) {
		acc, err = tx.GetAccount(context.Background(), userID)
		return err
	})
	require.NoError(t, err)
	return acc.Balance
}

// Race relê a corrida do Store.
func Race(t *testing.T, store repo.Store, raceID string) model.Race {
	t.Helper()
	var r model.Race
	err := store.WithTx(context.Background(), func(tx repo.Tx) (err error) {
		r, err = tx.GetRace(context.Background(), raceID)
		return err
	})
	require.NoError(t, err)
	return r
}

// Bets devolve as apostas da corrida em ordem de criação.
func Bets(t *testing.T, store repo.Store, raceID string) []model.Bet {
	t.Helper()
	var out []model.Bet
	err := store.WithTx(context.Background(), func(tx repo.Tx) (err error) {
		out, err = tx.ListBetsByRace(context.Background(), raceID)
		return err
	})
	require.NoError(t, err)
	return out
}

// Transactions devolve o histórico do usuário, mais recente primeiro.
func Transactions(t *testing.T, store repo.Store, userID string) []model.Transaction {
	t.Helper()
	var out []model.Transaction
	err := store.WithTx(context.Background(), func(tx repo.Tx) (err error) {
		out, err = tx.ListTransactions(context.Background(), userID, 0, 0)
		return err
	})
	require.NoError(t, err)
	return out
}
