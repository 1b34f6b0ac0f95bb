package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account guarda o saldo do usuário. Balance nunca fica negativo.
type Account struct {
	ID        string
	UserID    string
	Balance   decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

type TxKind string

const (
	TxDeposit  TxKind = "deposit"
	TxWithdraw TxKind = "withdraw"
	TxWager    TxKind = "wager"
	TxPayout   TxKind = "payout"
	TxRefund   TxKind = "refund"
)

// Credits reports whether the kind increases the balance.
func (k TxKind) Credits() bool {
	return k == TxDeposit || k == TxPayout || k == TxRefund
}

// Transaction é uma entrada imutável do ledger (append-only).
type Transaction struct {
	ID           string
	AccountID    string
	UserID       string
	Kind         TxKind
	Amount       decimal.Decimal
	BalanceAfter decimal.Decimal
	BetID        *string
	Memo         string
	CreatedAt    time.Time
}
