package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/horse-race-ledger/internal/ledger-service/catalog"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/model"
)

type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"` // campo -> regra violada
}

type AccountResponse struct {
	AccountID string    `json:"account_id"`
	UserID    string    `json:"user_id"`
	Balance   string    `json:"balance"`
	Created   bool      `json:"created,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type TransactionResponse struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	Amount       string    `json:"amount"`
	BalanceAfter string    `json:"balance_after"`
	BetID        *string   `json:"bet_id,omitempty"`
	Memo         string    `json:"memo,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type BetTransitionResponse struct {
	From   string    `json:"from,omitempty"`
	To     string    `json:"to"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

type BetResponse struct {
	BetID           string                  `json:"bet_id"`
	UserID          string                  `json:"user_id"`
	RaceID          string                  `json:"race_id"`
	ParticipantID   string                  `json:"participant_id"`
	BetType         string                  `json:"bet_type"`
	Stake           string                  `json:"stake"`
	PotentialPayout string                  `json:"potential_payout"`
	Status          string                  `json:"status"`
	CreatedAt       time.Time               `json:"created_at"`
	SettledAt       *time.Time              `json:"settled_at,omitempty"`
	History         []BetTransitionResponse `json:"history,omitempty"`
}

type RaceResponse struct {
	RaceID         string     `json:"race_id"`
	Name           string     `json:"name"`
	ScheduledStart time.Time  `json:"scheduled_start"`
	Status         string     `json:"status"`
	WinnerID       *string    `json:"winner_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	SettledAt      *time.Time `json:"settled_at,omitempty"`
}

type ParticipantResponse struct {
	ParticipantID string `json:"participant_id"`
	RaceID        string `json:"race_id"`
	Lane          int    `json:"lane"`
	HorseName     string `json:"horse_name"`
	Jockey        string `json:"jockey,omitempty"`
	Odds          string `json:"odds"`
}

type RaceCardResponse struct {
	RaceResponse
	Created      bool                  `json:"created,omitempty"`
	Participants []ParticipantResponse `json:"participants"`
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func FromAccount(a model.Account) AccountResponse {
	return AccountResponse{
		AccountID: a.ID,
		UserID:    a.UserID,
		Balance:   money(a.Balance),
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func FromTransaction(t model.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:           t.ID,
		Kind:         string(t.Kind),
		Amount:       money(t.Amount),
		BalanceAfter: money(t.BalanceAfter),
		BetID:        t.BetID,
		Memo:         t.Memo,
		CreatedAt:    t.CreatedAt,
	}
}

func FromTransactions(ts []model.Transaction) []TransactionResponse {
	out := make([]TransactionResponse, 0, len(ts))
	for _, t := range ts {
		out = append(out, FromTransaction(t))
	}
	return out
}

func FromBet(b model.Bet, history ...model.BetTransition) BetResponse {
	resp := BetResponse{
		BetID:           b.ID,
		UserID:          b.UserID,
		RaceID:          b.RaceID,
		ParticipantID:   b.ParticipantID,
		BetType:         string(b.Type),
		Stake:           money(b.Stake),
		PotentialPayout: money(b.PotentialPayout),
		Status:          string(b.Status),
		CreatedAt:       b.CreatedAt,
		SettledAt:       b.SettledAt,
	}
	for _, h := range history {
		resp.History = append(resp.History, BetTransitionResponse{
			From:   string(h.OldStatus),
			To:     string(h.NewStatus),
			Reason: h.Reason,
			At:     h.CreatedAt,
		})
	}
	return resp
}

func FromBets(bs []model.Bet) []BetResponse {
	out := make([]BetResponse, 0, len(bs))
	for _, b := range bs {
		out = append(out, FromBet(b))
	}
	return out
}

func FromRace(r model.Race) RaceResponse {
	return RaceResponse{
		RaceID:         r.ID,
		Name:           r.Name,
		ScheduledStart: r.ScheduledStart,
		Status:         string(r.Status),
		WinnerID:       r.WinnerID,
		CreatedAt:      r.CreatedAt,
		SettledAt:      r.SettledAt,
	}
}

func FromRaces(rs []model.Race) []RaceResponse {
	out := make([]RaceResponse, 0, len(rs))
	for _, r := range rs {
		out = append(out, FromRace(r))
	}
	return out
}

func FromParticipant(p model.Participant) ParticipantResponse {
	return ParticipantResponse{
		ParticipantID: p.ID,
		RaceID:        p.RaceID,
		Lane:          p.Lane,
		HorseName:     p.HorseName,
		Jockey:        p.Jockey,
		Odds:          money(p.Odds),
	}
}

func FromRaceCard(c catalog.RaceCard) RaceCardResponse {
	resp := RaceCardResponse{
		RaceResponse: FromRace(c.Race),
		Participants: make([]ParticipantResponse, 0, len(c.Participants)),
	}
	for _, p := range c.Participants {
		resp.Participants = append(resp.Participants, FromParticipant(p))
	}
	return resp
}
