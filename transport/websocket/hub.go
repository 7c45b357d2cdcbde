package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/wricardo/knights-trail/game/engine"
	"github.com/wricardo/knights-trail/game/orchestrator"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Outbound messages queued per client before it is dropped.
	sendBuffer = 256

	// Broadcasts queued for the hub loop before new ones are dropped.
	broadcastBuffer = 256
)

// Event names
const (
	EventState = "state_update"
	EventRound = "round"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message represents a WebSocket message
type Message struct {
	SessionID string                    `json:"session_id"`
	Event     string                    `json:"event"`
	GameState *engine.Snapshot          `json:"game_state,omitempty"`
	Round     *orchestrator.RoundResult `json:"round,omitempty"`
	Data      any                       `json:"data,omitempty"`
}

// Client represents a WebSocket client
type Client struct {
	id        string
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	sessionID string
}

type countRequest struct {
	sessionID string
	reply     chan int
}

// Hub maintains the set of active clients and broadcasts messages. The
// client map is owned by the Run goroutine; everything else talks to it
// through channels.
type Hub struct {
	// Registered clients by session ID
	sessions map[string]map[*Client]bool

	broadcast  chan *Message
	register   chan *Client
	unregister chan *Client
	count      chan countRequest
	done       chan struct{}

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		sessions:   make(map[string]map[*Client]bool),
		broadcast:  make(chan *Message, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		count:      make(chan countRequest),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run starts the hub's event loop. It returns when ctx is done, after
// disconnecting every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, clients := range h.sessions {
				for client := range clients {
					h.unregisterClient(client)
				}
			}
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)

		case req := <-h.count:
			req.reply <- len(h.sessions[req.sessionID])
		}
	}
}

// ServeWS upgrades the request and attaches the connection to sessionID.
// initial, when non-nil, is the first message the client receives.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, sessionID string, initial *Message) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}

	client := &Client{
		id:        uuid.NewString(),
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		sessionID: sessionID,
	}

	if initial != nil {
		if data, err := json.Marshal(initial); err == nil {
			client.send <- data
		}
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	// Start client goroutines
	go client.writePump()
	go client.readPump()
}

// BroadcastSnapshot sends a state update to all clients in a session
func (h *Hub) BroadcastSnapshot(sessionID string, snap engine.Snapshot) {
	h.enqueue(&Message{
		SessionID: sessionID,
		Event:     EventState,
		GameState: &snap,
	})
}

// BroadcastRound sends a round's events and resulting state to all clients
// in a session. It never blocks, so it is safe to call from a round listener.
func (h *Hub) BroadcastRound(sessionID string, r orchestrator.RoundResult) {
	msg := &Message{
		SessionID: sessionID,
		Event:     EventRound,
		Round:     &r,
	}
	if r.State != nil {
		snap := r.State.Snapshot()
		msg.GameState = &snap
	}
	h.enqueue(msg)
}

// BroadcastEvent sends a custom event to all clients in a session
func (h *Hub) BroadcastEvent(sessionID string, event string, data any) {
	h.enqueue(&Message{
		SessionID: sessionID,
		Event:     event,
		Data:      data,
	})
}

// ClientCount returns the number of clients attached to sessionID. It
// returns 0 once the hub has stopped.
func (h *Hub) ClientCount(sessionID string) int {
	req := countRequest{sessionID: sessionID, reply: make(chan int, 1)}
	select {
	case h.count <- req:
		return <-req.reply
	case <-h.done:
		return 0
	}
}

func (h *Hub) enqueue(message *Message) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast queue full, dropping message",
			zap.String("session_id", message.SessionID),
			zap.String("event", message.Event))
	}
}

// registerClient adds a client to a session
func (h *Hub) registerClient(client *Client) {
	if h.sessions[client.sessionID] == nil {
		h.sessions[client.sessionID] = make(map[*Client]bool)
	}
	h.sessions[client.sessionID][client] = true

	h.logger.Debug("client registered",
		zap.String("session_id", client.sessionID),
		zap.String("client_id", client.id),
		zap.Int("clients", len(h.sessions[client.sessionID])))
}

// unregisterClient removes a client from a session
func (h *Hub) unregisterClient(client *Client) {
	clients, ok := h.sessions[client.sessionID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.send)

	// Clean up empty sessions
	if len(clients) == 0 {
		delete(h.sessions, client.sessionID)
	}

	h.logger.Debug("client unregistered",
		zap.String("session_id", client.sessionID),
		zap.String("client_id", client.id),
		zap.Int("clients", len(clients)))
}

// broadcastMessage sends a message to all clients in a session
func (h *Hub) broadcastMessage(message *Message) {
	clients, ok := h.sessions[message.SessionID]
	if !ok {
		return
	}

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", zap.String("session_id", message.SessionID), zap.Error(err))
		return
	}

	for client := range clients {
		select {
		case client.send <- data:
		default:
			// Client is not keeping up
			h.unregisterClient(client)
		}
	}
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		// Incoming messages are ignored; reading keeps the connection alive
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("websocket closed", zap.String("client_id", c.id), zap.Error(err))
			}
			break
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection, one
// frame per message
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
