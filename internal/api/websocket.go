package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/citrusbyte/lemonade-core/internal/infrastructure/logging"
)

// Event is a message pushed over the live feed.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

const (
	wsWriteWait      = 10 * time.Second
	wsSendBufferSize = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients authenticate with a single-use ticket, so the
	// origin check adds nothing here.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub tracks connected feed clients grouped by user. Sale events are
// delivered only to the connections of the stand owner.
type Hub struct {
	log *logging.Logger

	mu      sync.RWMutex
	clients map[string]map[*WSClient]struct{}
}

func NewHub(log *logging.Logger) *Hub {
	if log == nil {
		log = logging.Default()
	}
	return &Hub{
		log:     log,
		clients: make(map[string]map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.CloseAll()
}

func (h *Hub) register(c *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*WSClient]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
}

// unregister removes a client from the hub. Only the goroutine that
// successfully removes the client from the map closes the send channel,
// preventing double-close panics during shutdown.
func (h *Hub) unregister(c *WSClient) {
	h.mu.Lock()
	var existed bool
	if set, ok := h.clients[c.userID]; ok {
		_, existed = set[c]
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.userID)
		}
	}
	h.mu.Unlock()

	if existed {
		close(c.send)
	}
}

// BroadcastTo queues an event for every connection of one user. Clients
// that cannot keep up are dropped rather than blocking the caller.
func (h *Hub) BroadcastTo(userID string, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Warn("encoding feed event", "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.trySend(payload) {
			h.log.Warn("dropping slow feed client", "user_id", userID)
			h.unregister(c)
		}
	}
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.clients {
		for c := range set {
			close(c.send)
		}
	}
	h.clients = make(map[string]map[*WSClient]struct{})
}

// WSClient is one websocket connection on the feed.
type WSClient struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte
}

func newWSClient(hub *Hub, conn *websocket.Conn, userID string) *WSClient {
	return &WSClient{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, wsSendBufferSize),
	}
}

// trySend queues a payload for the client. It reports false when the
// buffer is full and absorbs the panic from a send channel that closed
// mid-broadcast.
func (c *WSClient) trySend(payload []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = true
		}
	}()

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// readPump drains and discards inbound frames; the feed is one way. It
// exists to notice disconnects and answer pings.
func (c *WSClient) readPump(maxMessageSize int64, pongTimeout time.Duration) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *WSClient) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleWebSocket upgrades a ticket-bearing request onto the live feed.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.tickets.redeem(r.URL.Query().Get("ticket"))
	if !ok {
		writeUnauthorized(w, "invalid or expired ticket")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(s.hub, conn, userID)
	s.hub.register(client)

	wsCfg := s.cfg.WebSocket
	go client.writePump(time.Duration(wsCfg.PingInterval) * time.Second)
	go client.readPump(int64(wsCfg.MaxMessageSize), time.Duration(wsCfg.PongTimeout)*time.Second)
}
