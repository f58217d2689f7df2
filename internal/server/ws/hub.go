// Package ws pushes engine status over a WebSocket. Clients authenticate
// with the same JWT as the HTTP API and receive a status snapshot on connect
// and after every supervisor transition.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/polybacker/polybacker/internal/auth"
	"github.com/polybacker/polybacker/internal/engine"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// handshakeWait bounds how long an unauthenticated connection may hold a
	// socket before presenting a token.
	handshakeWait = 10 * time.Second

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256
)

// upgrader configures the WebSocket upgrade parameters. Cross-origin access
// is governed by the token handshake, not the Origin header.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StatusSource is the supervisor view the hub needs: per-user snapshots and
// a transition feed. Satisfied by *engine.Supervisor.
type StatusSource interface {
	StatusFor(user string) []engine.WorkerStatus
	Subscribe() chan engine.Transition
	Unsubscribe(ch chan engine.Transition)
}

// TokenVerifier validates the handshake token.
type TokenVerifier interface {
	Verify(token string) (auth.Claims, error)
}

// client is a single authenticated WebSocket connection.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	user string
	send chan []byte
}

// handshakeMsg is the first-frame alternative to the ?token query parameter.
type handshakeMsg struct {
	Token string `json:"token"`
}

// Hub fans supervisor transitions out to connected clients. Each client only
// sees its own worker slots plus the global ones.
type Hub struct {
	status   StatusSource
	verifier TokenVerifier
	logger   *slog.Logger

	clients    map[*client]bool
	register   chan *client
	unregister chan *client
}

// NewHub creates a hub over the given status source.
func NewHub(status StatusSource, verifier TokenVerifier, logger *slog.Logger) *Hub {
	return &Hub{
		status:     status,
		verifier:   verifier,
		logger:     logger.With("component", "ws"),
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
}

// Run is the hub's main loop: client registration and transition fan-out.
// It exits when the context is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	transitions := h.status.Subscribe()
	defer h.status.Unsubscribe(transitions)

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return ctx.Err()

		case c := <-h.register:
			h.clients[c] = true
			h.logger.Info("client connected", "user", c.user, "total", len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.logger.Info("client disconnected", "user", c.user, "total", len(h.clients))

		case <-transitions:
			// Every transition triggers a fresh per-user snapshot rather
			// than forwarding the raw event; clients stay trivially in sync.
			for c := range h.clients {
				msg, err := h.snapshot(c.user)
				if err != nil {
					continue
				}
				select {
				case c.send <- msg:
				default:
					h.logger.Warn("dropping snapshot for slow client", "user", c.user)
				}
			}
		}
	}
}

// HandleWS upgrades the connection and runs the token handshake: a ?token
// query parameter, or a {"token": ...} first frame within handshakeWait.
// Failed handshakes close the socket immediately.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", "error", err)
		return
	}

	claims, err := h.handshake(r, conn)
	if err != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthorized"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		user: claims.Address,
		send: make(chan []byte, sendBufferSize),
	}

	h.register <- c

	if msg, err := h.snapshot(c.user); err == nil {
		select {
		case c.send <- msg:
		default:
		}
	}

	go c.writePump()
	go c.readPump()
}

func (h *Hub) handshake(r *http.Request, conn *websocket.Conn) (auth.Claims, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		conn.SetReadLimit(maxMessageSize)
		conn.SetReadDeadline(time.Now().Add(handshakeWait))
		var msg handshakeMsg
		if err := conn.ReadJSON(&msg); err != nil {
			return auth.Claims{}, err
		}
		token = msg.Token
	}
	return h.verifier.Verify(token)
}

// snapshot builds the status envelope sent on connect and on transitions.
func (h *Hub) snapshot(user string) ([]byte, error) {
	return json.Marshal(map[string]any{
		"type":    "status",
		"payload": h.status.StatusFor(user),
	})
}

// readPump drains the connection to service pings and detect closes. Client
// frames after the handshake carry no meaning.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close", "user", c.user, "error", err)
			}
			return
		}
	}
}

// writePump pumps snapshots to the connection and keeps it alive with pings.
func (c *client) writePump() {
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
