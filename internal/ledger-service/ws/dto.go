package ws

import "github.com/radieske/horse-race-ledger/pkg/contracts/events"

// ClientMsg representa uma mensagem recebida do cliente WebSocket
// Type: subscribe | unsubscribe | ping
// RaceID e/ou UserID: obrigatório em subscribe/unsubscribe
type ClientMsg struct {
	Type   string `json:"type"`
	RaceID string `json:"race_id,omitempty"`
	UserID string `json:"user_id,omitempty"`
}

func (m ClientMsg) keys() []string {
	var ks []string
	if m.RaceID != "" {
		ks = append(ks, raceKey(m.RaceID))
	}
	if m.UserID != "" {
		ks = append(ks, userKey(m.UserID))
	}
	return ks
}

// ServerMsg é o envelope enviado ao cliente
// Type: event | subscribed | unsubscribed | pong | error
type ServerMsg struct {
	Type  string              `json:"type"`
	Event *events.LedgerEvent `json:"event,omitempty"`
	Error string              `json:"error,omitempty"`
}

func raceKey(id string) string { return "race:" + id }
func userKey(id string) string { return "user:" + id }

// eventKeys lista as assinaturas que recebem o evento.
func eventKeys(e events.LedgerEvent) []string {
	var ks []string
	if e.RaceID != "" {
		ks = append(ks, raceKey(e.RaceID))
	}
	if e.UserID != "" {
		ks = append(ks, userKey(e.UserID))
	}
	return ks
}
