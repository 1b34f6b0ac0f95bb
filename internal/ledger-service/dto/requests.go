package dto

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/radieske/horse-race-ledger/internal/ledger-service/catalog"
	"github.com/radieske/horse-race-ledger/internal/ledger-service/model"
)

var validate = newValidator()

// newValidator reporta os campos pelo nome JSON.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate aplica as tags `validate` do request.
func Validate(req any) error { return validate.Struct(req) }

type EnsureAccountRequest struct {
	UserID string `json:"user_id" validate:"required,max=64"`
}

// AmountRequest serve para depósito e saque. Valores trafegam como string decimal.
type AmountRequest struct {
	Amount string `json:"amount" validate:"required,numeric"`
	Memo   string `json:"memo" validate:"max=140"`
}

type PlaceBetRequest struct {
	UserID        string `json:"user_id" validate:"required,max=64"`
	ParticipantID string `json:"participant_id" validate:"required"`
	BetType       string `json:"bet_type" validate:"required,oneof=win place show"`
	Stake         string `json:"stake" validate:"required,numeric"`
}

type ParticipantRequest struct {
	Lane      int    `json:"lane" validate:"gte=1"`
	HorseName string `json:"horse_name" validate:"required,max=80"`
	Jockey    string `json:"jockey" validate:"max=80"`
	Odds      string `json:"odds" validate:"required,numeric"`
}

// CreateRaceRequest é a criação em lote usada pela ingestão.
type CreateRaceRequest struct {
	Name           string               `json:"name" validate:"required,max=120"`
	ScheduledStart time.Time            `json:"scheduled_start" validate:"required"`
	Participants   []ParticipantRequest `json:"participants" validate:"dive"`
}

// ToInput converte o request para a entrada do catálogo.
func (r CreateRaceRequest) ToInput() (catalog.RaceInput, error) {
	in := catalog.RaceInput{Name: r.Name, ScheduledStart: r.ScheduledStart}
	for _, p := range r.Participants {
		odds, err := decimal.NewFromString(p.Odds)
		if err != nil {
			return catalog.RaceInput{}, fmt.Errorf("%w: lane %d: %q", model.ErrInvalidOdds, p.Lane, p.Odds)
		}
		in.Participants = append(in.Participants, catalog.ParticipantInput{
			Lane:      p.Lane,
			HorseName: p.HorseName,
			Jockey:    p.Jockey,
			Odds:      odds,
		})
	}
	return in, nil
}

type UpdateOddsRequest struct {
	Odds string `json:"odds" validate:"required,numeric"`
}

type CancelRaceRequest struct {
	Operator string `json:"operator" validate:"required,max=64"`
	Reason   string `json:"reason" validate:"max=200"`
}

type SettleRaceRequest struct {
	WinnerID string `json:"winner_id" validate:"required"`
}
