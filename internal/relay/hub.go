package relay

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrConnectionGone is returned when sending to a connection that has been
// unregistered.
var ErrConnectionGone = errors.New("connection closed")

// Connection is one client socket.
type Connection struct {
	ID   string
	Conn *websocket.Conn

	send chan []byte
	ctx  context.Context
	stop context.CancelFunc

	mu        sync.RWMutex
	sessionID string
}

// SessionID returns the bound session, empty until authenticated.
func (c *Connection) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// Context is cancelled when the connection is unregistered.
func (c *Connection) Context() context.Context { return c.ctx }

// Send queues a frame, waiting for buffer space while the connection lives.
func (c *Connection) Send(ctx context.Context, data []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionGone
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionGone
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Hub tracks live connections and the sessions they are bound to.
type Hub struct {
	connections map[string]*Connection
	sessions    map[string]map[string]bool

	register   chan *Connection
	unregister chan *Connection
	done       chan struct{}

	mu     sync.RWMutex
	logger *zap.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		sessions:    make(map[string]map[string]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		done:        make(chan struct{}),
		logger:      logger,
	}
}

// Run processes registrations until ctx is done, then drops every
// connection.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, conn := range h.connections {
				conn.stop()
				delete(h.connections, id)
			}
			h.sessions = make(map[string]map[string]bool)
			h.mu.Unlock()
			return nil

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			h.mu.Unlock()
			h.logger.Debug("connection registered", zap.String("connection_id", conn.ID))

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn.ID]; ok {
				delete(h.connections, conn.ID)
				h.unbindLocked(conn)
			}
			h.mu.Unlock()
			conn.stop()
			h.logger.Debug("connection unregistered", zap.String("connection_id", conn.ID))
		}
	}
}

// NewConnection wraps ws. It is not tracked until Register.
func (h *Hub) NewConnection(ws *websocket.Conn) *Connection {
	ctx, stop := context.WithCancel(context.Background())
	return &Connection{
		ID:   uuid.New().String(),
		Conn: ws,
		send: make(chan []byte, 256),
		ctx:  ctx,
		stop: stop,
	}
}

// Register tracks conn. It returns false once the hub has stopped.
func (h *Hub) Register(conn *Connection) bool {
	select {
	case h.register <- conn:
		return true
	case <-h.done:
		conn.stop()
		return false
	}
}

// Unregister forgets conn and cancels its context.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
		conn.stop()
	}
}

// BindSession binds a connection to a session.
func (h *Hub) BindSession(conn *Connection, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.unbindLocked(conn)

	conn.mu.Lock()
	conn.sessionID = sessionID
	conn.mu.Unlock()

	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[string]bool)
	}
	h.sessions[sessionID][conn.ID] = true
}

func (h *Hub) unbindLocked(conn *Connection) {
	sid := conn.SessionID()
	if sid == "" || h.sessions[sid] == nil {
		return
	}
	delete(h.sessions[sid], conn.ID)
	if len(h.sessions[sid]) == 0 {
		delete(h.sessions, sid)
	}
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// SessionCount returns the number of sessions with a live connection.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// HasActiveConnections reports whether a session has a live connection.
func (h *Hub) HasActiveConnections(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID]) > 0
}
