package repo

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/horse-race-ledger/internal/ledger-service/model"
)

var ts = time.Date(2026, 5, 2, 14, 0, 0, 0, time.UTC)

func newMock(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgres(db), mock
}

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS accounts").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, Migrate(context.Background(), db))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWithTxCommits(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM accounts WHERE user_id=$1 FOR UPDATE`)).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "balance", "created_at", "updated_at"}).
			AddRow("acc-1", "u1", "100.00", ts, ts))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE accounts SET balance=$1, updated_at=$2 WHERE id=$3`)).
		WithArgs(sqlmock.AnyArg(), ts, "acc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := p.WithTx(context.Background(), func(tx Tx) error {
		a, err := tx.LockAccount(context.Background(), "u1")
		if err != nil {
			return err
		}
		assert.True(t, a.Balance.Equal(decimal.NewFromInt(100)))
		return tx.UpdateBalance(context.Background(), a.ID, a.Balance.Sub(decimal.NewFromInt(30)), ts)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWithTxRollsBackOnError(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM accounts WHERE user_id=$1 FOR UPDATE`)).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := p.WithTx(context.Background(), func(tx Tx) error {
		_, err := tx.LockAccount(context.Background(), "ghost")
		return err
	})
	assert.ErrorIs(t, err, model.ErrAccountNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBeginFailure(t *testing.T) {
	p, mock := newMock(t)
	mock.ExpectBegin().WillReturnError(errors.New("conn refused"))

	err := p.WithTx(context.Background(), func(Tx) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin tx")
}

func TestPostgresInsertRaceDuplicate(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO races`)).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := p.WithTx(context.Background(), func(tx Tx) error {
		return tx.InsertRace(context.Background(), model.Race{ID: "r1", Name: "Derby", ScheduledStart: ts, Status: model.RaceScheduled, CreatedAt: ts})
	})
	assert.ErrorIs(t, err, model.ErrInvalidRace)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertParticipantDuplicateLane(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO participants`)).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := p.WithTx(context.Background(), func(tx Tx) error {
		return tx.InsertParticipant(context.Background(), model.Participant{ID: "p1", RaceID: "r1", Lane: 1, HorseName: "Bolt", Odds: decimal.NewFromInt(2)})
	})
	assert.ErrorIs(t, err, model.ErrDuplicateLane)
}

func TestPostgresCloseBetOnlyWhenActive(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE bets SET status=$1, settled_at=$2 WHERE id=$3 AND status='active'`)).
		WithArgs("won", ts, "b1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := p.WithTx(context.Background(), func(tx Tx) error {
		return tx.CloseBet(context.Background(), "b1", model.BetWon, ts)
	})
	assert.ErrorIs(t, err, model.ErrBetNotActive)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListRacesByStatus(t *testing.T) {
	p, mock := newMock(t)
	cols := []string{"id", "name", "scheduled_start", "status", "winner_id", "created_at", "settled_at"}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM races WHERE status = ANY($1)`)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("r1", "Derby", ts, "finished", "p1", ts, ts).
			AddRow("r2", "Oaks", ts.Add(time.Hour), "scheduled", nil, ts, nil))
	mock.ExpectCommit()

	var races []model.Race
	err := p.WithTx(context.Background(), func(tx Tx) error {
		var err error
		races, err = tx.ListRaces(context.Background(), []model.RaceStatus{model.RaceFinished, model.RaceScheduled})
		return err
	})
	require.NoError(t, err)
	require.Len(t, races, 2)
	assert.Equal(t, model.RaceFinished, races[0].Status)
	require.NotNil(t, races[0].WinnerID)
	assert.Equal(t, "p1", *races[0].WinnerID)
	assert.NotNil(t, races[0].SettledAt)
	assert.Nil(t, races[1].WinnerID)
	assert.Nil(t, races[1].SettledAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListTransactionsUnlimited(t *testing.T) {
	p, mock := newMock(t)
	cols := []string{"id", "account_id", "user_id", "kind", "amount", "balance_after", "bet_id", "memo", "created_at"}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM ledger_transactions`)).
		WithArgs("u1", nil, 0).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("t2", "acc-1", "u1", "wager", "30.00", "70.00", "b1", "", ts).
			AddRow("t1", "acc-1", "u1", "deposit", "100.00", "100.00", nil, "seed", ts))
	mock.ExpectCommit()

	var txs []model.Transaction
	err := p.WithTx(context.Background(), func(tx Tx) error {
		var err error
		txs, err = tx.ListTransactions(context.Background(), "u1", 0, 0)
		return err
	})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, model.TxWager, txs[0].Kind)
	require.NotNil(t, txs[0].BetID)
	assert.Equal(t, "b1", *txs[0].BetID)
	assert.Nil(t, txs[1].BetID)
	assert.True(t, txs[1].BalanceAfter.Equal(decimal.NewFromInt(100)))
}

func TestPostgresGetBetNotFound(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM bets WHERE id=$1`)).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := p.WithTx(context.Background(), func(tx Tx) error {
		_, err := tx.GetBet(context.Background(), "missing")
		return err
	})
	assert.ErrorIs(t, err, model.ErrBetNotFound)
}

func TestPostgresMalformedIDIsNotFound(t *testing.T) {
	p, mock := newMock(t)
	badUUID := &pq.Error{Code: "22P02"}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM races WHERE id=$1`)).WithArgs("foo").WillReturnError(badUUID)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM participants WHERE id=$1`)).WithArgs("foo").WillReturnError(badUUID)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM bets WHERE id=$1`)).WithArgs("foo").WillReturnError(badUUID)
	mock.ExpectCommit()

	err := p.WithTx(context.Background(), func(tx Tx) error {
		ctx := context.Background()
		_, err := tx.GetRace(ctx, "foo")
		assert.ErrorIs(t, err, model.ErrRaceNotFound)
		_, err = tx.GetParticipant(ctx, "foo")
		assert.ErrorIs(t, err, model.ErrParticipantNotFound)
		_, err = tx.GetBet(ctx, "foo")
		assert.ErrorIs(t, err, model.ErrBetNotFound)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertAccountReportsConflict(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT (user_id) DO NOTHING`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT (user_id) DO NOTHING`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := p.WithTx(context.Background(), func(tx Tx) error {
		acc := model.Account{ID: "acc-1", UserID: "u1", Balance: decimal.Zero, CreatedAt: ts, UpdatedAt: ts}
		inserted, err := tx.InsertAccount(context.Background(), acc)
		require.NoError(t, err)
		assert.True(t, inserted)

		inserted, err = tx.InsertAccount(context.Background(), acc)
		require.NoError(t, err)
		assert.False(t, inserted)
		return nil
	})
	require.NoError(t, err)
}
