package events

import "time"

// Tipos de evento publicados no tópico "ledger_events"
const (
	BetPlaced     = "bet_placed"
	BetWon        = "bet_won"
	BetLost       = "bet_lost"
	BetRefunded   = "bet_refunded"
	RaceStarted   = "race_started"
	RaceSettled   = "race_settled"
	RaceCancelled = "race_cancelled"
	RaceCreated   = "race_created"
)

// LedgerEvent é o envelope único de todos os eventos do ledger.
// Valores monetários trafegam como string decimal ("123.45").
type LedgerEvent struct {
	Type          string    `json:"type"`
	RaceID        string    `json:"race_id,omitempty"`
	BetID         string    `json:"bet_id,omitempty"`
	UserID        string    `json:"user_id,omitempty"`
	ParticipantID string    `json:"participant_id,omitempty"`
	WinnerID      string    `json:"winner_id,omitempty"`
	BetType       string    `json:"bet_type,omitempty"`
	Stake         string    `json:"stake,omitempty"`
	Amount        string    `json:"amount,omitempty"` // payout, refund ou total pago na corrida
	Reason        string    `json:"reason,omitempty"`
	Ts            time.Time `json:"ts"`
}

// Key retorna a chave de particionamento: usuário para eventos de aposta, corrida para o resto.
func (e LedgerEvent) Key() string {
	if e.UserID != "" {
		return e.UserID
	}
	return e.RaceID
}
