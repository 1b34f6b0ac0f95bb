package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type BetType string

const (
	BetWin   BetType = "win"
	BetPlace BetType = "place"
	BetShow  BetType = "show"
)

func ParseBetType(s string) (BetType, error) {
	switch t := BetType(s); t {
	case BetWin, BetPlace, BetShow:
		return t, nil
	}
	return "", ErrInvalidBetType
}

type BetStatus string

const (
	BetActive    BetStatus = "active"
	BetWon       BetStatus = "won"
	BetLost      BetStatus = "lost"
	BetCancelled BetStatus = "cancelled"
)

func (s BetStatus) Terminal() bool { return s != BetActive }

// Bet é a aposta de um usuário num participante.
// PotentialPayout é calculado na aceitação e congelado a partir daí.
type Bet struct {
	ID              string
	UserID          string
	RaceID          string
	ParticipantID   string
	Type            BetType
	Stake           decimal.Decimal
	PotentialPayout decimal.Decimal
	Status          BetStatus
	CreatedAt       time.Time
	SettledAt       *time.Time
}

// BetTransition é a linha de auditoria de cada mudança de status de aposta.
type BetTransition struct {
	BetID     string
	OldStatus BetStatus
	NewStatus BetStatus
	Reason    string
	CreatedAt time.Time
}
