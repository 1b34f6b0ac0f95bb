package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/horse-race-ledger/internal/ledger-service/model"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/repo"
)

// Entry descreve uma mutação de saldo.
type Entry struct {
	UserID string
	Amount decimal.Decimal
	Kind   model.TxKind
	BetID  *string
	Memo   string
	At     time.Time
}

// Credit soma Amount ao saldo e grava a transação no ledger.
// Deve ser chamado dentro de uma transação do Store.
func Credit(ctx context.Context, tx repo.Tx, e Entry) (model.Transaction, error) {
	if !e.Kind.Credits() {
		return model.Transaction{}, fmt.Errorf("credit with %s kind: %w", e.Kind, model.ErrInvalidAmount)
	}
	return apply(ctx, tx, e, e.Amount)
}

// Debit subtrai Amount do saldo. A conta fica travada até o fim da transação,
// então verificação de saldo e escrita são um único passo atômico.
func Debit(ctx context.Context, tx repo.Tx, e Entry) (model.Transaction, error) {
	if e.Kind.Credits() {
		return model.Transaction{}, fmt.Errorf("debit with %s kind: %w", e.Kind, model.ErrInvalidAmount)
	}
	return apply(ctx, tx, e, e.Amount.Neg())
}

func apply(ctx context.Context, tx repo.Tx, e Entry, delta decimal.Decimal) (model.Transaction, error) {
	if err := validAmount(e.Amount); err != nil {
		return model.Transaction{}, err
	}
	acc, err := tx.LockAccount(ctx, e.UserID)
	if err != nil {
		return model.Transaction{}, err
	}

	newBalance := acc.Balance.Add(delta)
	if newBalance.IsNegative() {
		return model.Transaction{}, model.ErrInsufficientFunds
	}

	at := e.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	if err := tx.UpdateBalance(ctx, acc.ID, newBalance, at); err != nil {
		return model.Transaction{}, fmt.Errorf("update balance: %w", err)
	}

	tr := model.Transaction{
		ID:           uuid.NewString(),
		AccountID:    acc.ID,
		UserID:       acc.UserID,
		Kind:         e.Kind,
		Amount:       e.Amount,
		BalanceAfter: newBalance,
		BetID:        e.BetID,
		Memo:         e.Memo,
		CreatedAt:    at,
	}
	if err := tx.InsertTransaction(ctx, tr); err != nil {
		return model.Transaction{}, fmt.Errorf("insert ledger transaction: %w", err)
	}
	return tr, nil
}

// validAmount: positivo e com no máximo duas casas decimais
func validAmount(a decimal.Decimal) error {
	if !a.IsPositive() || !a.Equal(a.Round(2)) {
		return model.ErrInvalidAmount
	}
	return nil
}

// Service expõe operações de conta que abrem a própria transação.
type Service struct {
	store          repo.Store
	log            *zap.Logger
	initialBalance decimal.Decimal
	now            func() time.Time
}

func NewService(store repo.Store, log *zap.Logger, initialBalance decimal.Decimal) *Service {
	return &Service{store: store, log: log, initialBalance: initialBalance, now: func() time.Time { return time.Now().UTC() }}
}

// EnsureAccount é get-or-create. Saldo inicial entra como depósito para manter o histórico auditável.
func (s *Service) EnsureAccount(ctx context.Context, userID string) (acc model.Account, created bool, err error) {
	if userID == "" {
		return model.Account{}, false, model.ErrInvalidUser
	}
	err = s.store.WithTx(ctx, func(tx repo.Tx) error {
		acc, err = tx.GetAccount(ctx, userID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, model.ErrAccountNotFound) {
			return err
		}

		now := s.now()
		inserted, err := tx.InsertAccount(ctx, model.Account{
			ID:        uuid.NewString(),
			UserID:    userID,
			Balance:   decimal.Zero,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("insert account: %w", err)
		}
		if !inserted {
			// outra requisição criou a conta entre o GetAccount e o INSERT
			acc, err = tx.GetAccount(ctx, userID)
			return err
		}
		if s.initialBalance.IsPositive() {
			if _, err := Credit(ctx, tx, Entry{UserID: userID, Amount: s.initialBalance, Kind: model.TxDeposit, Memo: "initial balance", At: now}); err != nil {
				return err
			}
		}
		created = true
		acc, err = tx.GetAccount(ctx, userID)
		return err
	})
	if err != nil {
		return model.Account{}, false, err
	}
	if created {
		s.log.Info("account created", zap.String("user_id", userID))
	}
	return acc, created, nil
}

func (s *Service) Deposit(ctx context.Context, userID string, amount decimal.Decimal, memo string) (model.Transaction, error) {
	var tr model.Transaction
	err := s.store.WithTx(ctx, func(tx repo.Tx) (err error) {
		tr, err = Credit(ctx, tx, Entry{UserID: userID, Amount: amount, Kind: model.TxDeposit, Memo: memo, At: s.now()})
		return err
	})
	return tr, err
}

func (s *Service) Withdraw(ctx context.Context, userID string, amount decimal.Decimal, memo string) (model.Transaction, error) {
	var tr model.Transaction
	err := s.store.WithTx(ctx, func(tx repo.Tx) (err error) {
		tr, err = Debit(ctx, tx, Entry{UserID: userID, Amount: amount, Kind: model.TxWithdraw, Memo: memo, At: s.now()})
		return err
	})
	return tr, err
}

func (s *Service) Account(ctx context.Context, userID string) (model.Account, error) {
	var acc model.Account
	err := s.store.WithTx(ctx, func(tx repo.Tx) (err error) {
		acc, err = tx.GetAccount(ctx, userID)
		return err
	})
	return acc, err
}

// History devolve as transações do usuário, mais recentes primeiro
func (s *Service) History(ctx context.Context, userID string, limit, offset int) ([]model.Transaction, error) {
	var out []model.Transaction
	err := s.store.WithTx(ctx, func(tx repo.Tx) error {
		if _, err := tx.GetAccount(ctx, userID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListTransactions(ctx, userID, limit, offset)
		return err
	})
	return out, err
}
