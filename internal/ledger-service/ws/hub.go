package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/horse-race-ledger/pkg/contracts/events"
)

const (
	writeWait    = 5 * time.Second
	maxReadBytes = 4096
)

// client serializa as escritas: a conexão do gorilla aceita um único escritor por vez.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

// Hub gerencia conexões WebSocket e assinaturas por corrida ou por usuário
// subs: mapeia "race:<id>" / "user:<id>" para o conjunto de clientes inscritos
type Hub struct {
	upgrader websocket.Upgrader
	log      *zap.Logger
	mu       sync.RWMutex
	subs     map[string]map[*client]struct{}
}

// NewHub cria uma instância de Hub com política customizada de origem (CORS)
func NewHub(allowOrigin func(r *http.Request) bool, log *zap.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		log:      log,
		subs:     make(map[string]map[*client]struct{}),
	}
}

// HandleWS gerencia o ciclo de vida de uma conexão WebSocket
// Cada cliente pode se inscrever em várias corridas e usuários
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{conn: conn}
	defer func() {
		h.drop(c)
		_ = conn.Close()
	}()
	conn.SetReadLimit(maxReadBytes)

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "subscribe":
			keys := msg.keys()
			if len(keys) == 0 {
				_ = c.send(ServerMsg{Type: "error", Error: "race_id or user_id required"})
				continue
			}
			h.subscribe(c, keys)
			_ = c.send(ServerMsg{Type: "subscribed"})
		case "unsubscribe":
			h.unsubscribe(c, msg.keys())
			_ = c.send(ServerMsg{Type: "unsubscribed"})
		case "ping":
			_ = c.send(ServerMsg{Type: "pong"})
		default:
			_ = c.send(ServerMsg{Type: "error", Error: "unknown message type"})
		}
	}
}

func (h *Hub) subscribe(c *client, keys []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, k := range keys {
		if _, ok := h.subs[k]; !ok {
			h.subs[k] = make(map[*client]struct{})
		}
		h.subs[k][c] = struct{}{}
	}
}

func (h *Hub) unsubscribe(c *client, keys []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, k := range keys {
		h.remove(k, c)
	}
}

// drop remove a conexão de todas as assinaturas ao desconectar
func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for k := range h.subs {
		h.remove(k, c)
	}
}

// remove exige h.mu travado.
func (h *Hub) remove(key string, c *client) {
	if set, ok := h.subs[key]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, key)
		}
	}
}

// Broadcast envia o evento a quem assina a corrida ou o usuário dele.
// Um cliente inscrito nos dois recebe o evento uma vez só. Retorna quantos clientes receberam.
func (h *Hub) Broadcast(e events.LedgerEvent) int {
	h.mu.RLock()
	targets := make(map[*client]struct{})
	for _, k := range eventKeys(e) {
		for c := range h.subs[k] {
			targets[c] = struct{}{}
		}
	}
	h.mu.RUnlock()

	msg := ServerMsg{Type: "event", Event: &e}
	sent := 0
	for c := range targets {
		if err := c.send(msg); err != nil {
			h.log.Debug("ws write failed", zap.String("event", e.Type), zap.Error(err))
			continue
		}
		sent++
	}
	return sent
}
