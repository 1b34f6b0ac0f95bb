package repo

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/horse-race-ledger/internal/ledger-service/model"
)

// Store abre transações de persistência. Toda mutação de saldo, aposta ou corrida
// acontece dentro de WithTx: erro em fn desfaz tudo.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx é a visão transacional do banco.
// Métodos Lock* seguram a linha até o fim da transação (SELECT ... FOR UPDATE).
type Tx interface {
	// Contas e ledger
	GetAccount(ctx context.Context, userID string) (model.Account, error)
	LockAccount(ctx context.Context, userID string) (model.Account, error)
	InsertAccount(ctx context.Context, a model.Account) (inserted bool, err error)
	UpdateBalance(ctx context.Context, accountID string, balance decimal.Decimal, at time.Time) error
	InsertTransaction(ctx context.Context, t model.Transaction) error
	ListTransactions(ctx context.Context, userID string, limit, offset int) ([]model.Transaction, error)

	// Corridas
	GetRace(ctx context.Context, raceID string) (model.Race, error)
	LockRace(ctx context.Context, raceID string) (model.Race, error)
	FindRace(ctx context.Context, name string, start time.Time) (model.Race, error)
	InsertRace(ctx context.Context, r model.Race) error
	UpdateRace(ctx context.Context, r model.Race) error
	ListRaces(ctx context.Context, statuses []model.RaceStatus) ([]model.Race, error)
	ListRacesStartedBy(ctx context.Context, t time.Time) ([]model.Race, error)

	// Participantes
	InsertParticipant(ctx context.Context, p model.Participant) error
	GetParticipant(ctx context.Context, participantID string) (model.Participant, error)
	ListParticipants(ctx context.Context, raceID string) ([]model.Participant, error)
	UpdateOdds(ctx context.Context, participantID string, odds decimal.Decimal) error
	CountBetsOnParticipant(ctx context.Context, participantID string) (int, error)

	// Apostas
	InsertBet(ctx context.Context, b model.Bet) error
	GetBet(ctx context.Context, betID string) (model.Bet, error)
	ListBetsByUser(ctx context.Context, userID string, limit, offset int) ([]model.Bet, error)
	ListBetsByRace(ctx context.Context, raceID string) ([]model.Bet, error)
	LockActiveBets(ctx context.Context, raceID string) ([]model.Bet, error)
	CloseBet(ctx context.Context, betID string, status model.BetStatus, settledAt time.Time) error
	InsertBetTransition(ctx context.Context, t model.BetTransition) error
	ListBetTransitions(ctx context.Context, betID string) ([]model.BetTransition, error)
}
