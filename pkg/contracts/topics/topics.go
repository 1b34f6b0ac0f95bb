package topics

const (
	// Eventos do ledger (apostas e corridas)
	LedgerEvents = "ledger_events"

	// DLQ de eventos que a notification-worker não conseguiu rebroadcastar
	LedgerEventsDLQ = "ledger_events_dlq"
)

// Canal Redis Pub/Sub usado para o feed WebSocket
const ChannelLedgerBroadcast = "ledger_events_broadcast"
