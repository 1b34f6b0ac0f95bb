package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/horse-race-ledger/internal/ledger-service/model"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/repo"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newService(t *testing.T, initial string) (*Service, *repo.Memory) {
	t.Helper()
	store := repo.NewMemory()
	return NewService(store, zap.NewNop(), dec(initial)), store
}

func TestEnsureAccountIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, "50")

	acc, created, err := svc.EnsureAccount(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, acc.Balance.Equal(dec("50")))

	again, created, err := svc.EnsureAccount(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, acc.ID, again.ID)
	assert.True(t, again.Balance.Equal(dec("50")))

	hist, err := svc.History(ctx, "u1", 0, 0)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, model.TxDeposit, hist[0].Kind)
}

func TestDepositAndWithdraw(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, "0")
	_, _, err := svc.EnsureAccount(ctx, "u1")
	require.NoError(t, err)

	tr, err := svc.Deposit(ctx, "u1", dec("1000"), "top up")
	require.NoError(t, err)
	assert.True(t, tr.BalanceAfter.Equal(dec("1000")))

	tr, err = svc.Withdraw(ctx, "u1", dec("250.50"), "cash out")
	require.NoError(t, err)
	assert.True(t, tr.BalanceAfter.Equal(dec("749.50")))
	assert.Equal(t, model.TxWithdraw, tr.Kind)

	acc, err := svc.Account(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(dec("749.50")))

	hist, err := svc.History(ctx, "u1", 1, 0)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, model.TxWithdraw, hist[0].Kind, "history is newest first")
}

func TestWithdrawInsufficientFundsLeavesBalance(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, "100")
	_, _, err := svc.EnsureAccount(ctx, "u1")
	require.NoError(t, err)

	_, err = svc.Withdraw(ctx, "u1", dec("100.01"), "")
	require.ErrorIs(t, err, model.ErrInsufficientFunds)

	acc, err := svc.Account(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(dec("100")))

	hist, err := svc.History(ctx, "u1", 0, 0)
	require.NoError(t, err)
	assert.Len(t, hist, 1, "failed debit must not append a transaction")
}

func TestInvalidAmounts(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, "100")
	_, _, err := svc.EnsureAccount(ctx, "u1")
	require.NoError(t, err)

	for _, amt := range []string{"0", "-5", "1.001"} {
		_, err := svc.Deposit(ctx, "u1", dec(amt), "")
		assert.ErrorIs(t, err, model.ErrInvalidAmount, amt)
		_, err = svc.Withdraw(ctx, "u1", dec(amt), "")
		assert.ErrorIs(t, err, model.ErrInvalidAmount, amt)
	}
}

func TestCreditRejectsDebitKinds(t *testing.T) {
	ctx := context.Background()
	_, store := newService(t, "0")
	err := store.WithTx(ctx, func(tx repo.Tx) error {
		_, err := Credit(ctx, tx, Entry{UserID: "u1", Amount: dec("1"), Kind: model.TxWager})
		return err
	})
	assert.ErrorIs(t, err, model.ErrInvalidAmount)

	err = store.WithTx(ctx, func(tx repo.Tx) error {
		_, err := Debit(ctx, tx, Entry{UserID: "u1", Amount: dec("1"), Kind: model.TxPayout})
		return err
	})
	assert.ErrorIs(t, err, model.ErrInvalidAmount)
}

func TestUnknownAccount(t *testing.T) {
	svc, _ := newService(t, "0")
	_, err := svc.Deposit(context.Background(), "ghost", dec("10"), "")
	assert.ErrorIs(t, err, model.ErrAccountNotFound)
}

func TestConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, "1000")
	_, _, err := svc.EnsureAccount(ctx, "u1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Withdraw(ctx, "u1", dec("75"), ""); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, model.ErrInsufficientFunds)
			}
		}()
	}
	wg.Wait()

	acc, err := svc.Account(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 13, ok)
	assert.True(t, acc.Balance.Equal(dec("25")))
	assert.False(t, acc.Balance.IsNegative())
}
