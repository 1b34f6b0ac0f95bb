package model

import "errors"

var (
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrStakeTooSmall       = errors.New("stake below minimum")
	ErrRaceNotOpen         = errors.New("race not open for betting")
	ErrInvalidOdds         = errors.New("invalid odds")
	ErrRaceNotFound        = errors.New("race not found")
	ErrAlreadySettled      = errors.New("race already settled")
	ErrNoParticipants      = errors.New("race has no participants")
	ErrRaceNotStarted      = errors.New("race has not started")
	ErrAccountNotFound     = errors.New("account not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrBetNotFound         = errors.New("bet not found")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidBetType      = errors.New("invalid bet type")
	ErrOddsLocked          = errors.New("odds locked: participant already has bets")
	ErrDuplicateLane       = errors.New("duplicate participant in race")
	ErrInvalidRace         = errors.New("invalid race")
	ErrBetNotActive        = errors.New("bet is not active")
	ErrInvalidUser         = errors.New("user id required")
)
