package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RaceStatus é o vocabulário canônico de estados da corrida.
type RaceStatus string

const (
	RaceScheduled  RaceStatus = "scheduled"
	RaceInProgress RaceStatus = "in_progress"
	RaceFinished   RaceStatus = "finished"
	RaceCancelled  RaceStatus = "cancelled"
)

// Terminal indica se não existe mais transição a partir do estado.
func (s RaceStatus) Terminal() bool {
	return s == RaceFinished || s == RaceCancelled
}

// Valid reports whether s is one of the known states.
func (s RaceStatus) Valid() bool {
	switch s {
	case RaceScheduled, RaceInProgress, RaceFinished, RaceCancelled:
		return true
	}
	return false
}

// Race is a scheduled event. WinnerID is set iff Status is finished.
type Race struct {
	ID             string
	Name           string
	ScheduledStart time.Time
	Status         RaceStatus
	WinnerID       *string
	CreatedAt      time.Time
	SettledAt      *time.Time
}

// OpenAt informa se a corrida aceita apostas no instante now.
// A janela de apostas fecha no horário programado de largada.
func (r Race) OpenAt(now time.Time) bool {
	return r.Status == RaceScheduled && now.Before(r.ScheduledStart)
}

// DueAt informa se a corrida já deveria ter terminado (largada + duração).
func (r Race) DueAt(now time.Time, duration time.Duration) bool {
	return !now.Before(r.ScheduledStart.Add(duration))
}

// Participant é um cavalo (com jóquei e raia) inscrito em exatamente uma corrida.
type Participant struct {
	ID        string
	RaceID    string
	Lane      int
	HorseName string
	Jockey    string
	Odds      decimal.Decimal
	CreatedAt time.Time
}

// MinOdds is the smallest accepted win-odds multiplier.
var MinOdds = decimal.NewFromInt(1)

// ValidateOdds devolve ErrInvalidOdds para odds abaixo de 1.0.
func ValidateOdds(o decimal.Decimal) error {
	if o.LessThan(MinOdds) {
		return ErrInvalidOdds
	}
	return nil
}
