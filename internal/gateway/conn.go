package gateway

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/konvergen/voicegate/internal/logging"
)

// connState is the per-connection protocol state.
type connState int

const (
	stateNew connState = iota
	stateBound
	stateClosed
)

// Conn owns one upgraded WebSocket and its session binding.
type Conn struct {
	ID          string
	ConnectedAt time.Time

	socket *websocket.Conn
	log    *logging.Logger

	mu           sync.Mutex
	state        connState
	sessionID    string
	agentID      string
	lastActivity time.Time
}

// NewConn wraps an accepted WebSocket in a Conn.
func NewConn(socket *websocket.Conn, log *logging.Logger) *Conn {
	now := time.Now()
	return &Conn{
		ID:           uuid.New().String(),
		ConnectedAt:  now,
		socket:       socket,
		log:          log,
		lastActivity: now,
	}
}

// Send writes one JSON frame. Writes against a closed connection are
// dropped silently; teardown is the single source of truth for cleanup.
func (c *Conn) Send(frame any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateClosed {
		return nil
	}
	return c.socket.WriteJSON(frame)
}

// ReadMessage reads the next raw frame from the socket.
func (c *Conn) ReadMessage() ([]byte, error) {
	_, msg, err := c.socket.ReadMessage()
	return msg, err
}

// Bind attaches a session to the connection.
func (c *Conn) Bind(sessionID, agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateClosed {
		return
	}
	c.state = stateBound
	c.sessionID = sessionID
	c.agentID = agentID
	c.lastActivity = time.Now()
}

// Unbind detaches the bound session, returning the connection to its
// unbound state.
func (c *Conn) Unbind() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateClosed {
		return
	}
	c.state = stateNew
	c.sessionID = ""
	c.agentID = ""
}

// Session returns the bound session and agent IDs, with ok=false when no
// session is bound.
func (c *Conn) Session() (sessionID, agentID string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID, c.agentID, c.state == stateBound
}

// Touch refreshes the connection's activity timestamp.
func (c *Conn) Touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastActivity = time.Now()
}

// LastActivity returns the time of the last valid inbound frame.
func (c *Conn) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// Close marks the connection closed and closes the socket. Idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateClosed {
		return nil
	}
	c.state = stateClosed
	return c.socket.Close()
}

// Registry tracks live connections.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Conn // connID → Conn
	log   *logging.Logger
}

// NewRegistry creates an empty connection registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		conns: make(map[string]*Conn),
		log:   log,
	}
}

// Add registers an accepted connection.
func (r *Registry) Add(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID] = c
	r.log.Info().Str("connId", c.ID).Msg("connection registered")
}

// Remove unregisters a connection. Removing an unknown ID is a no-op.
func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[connID]; !ok {
		return
	}
	delete(r.conns, connID)
	r.log.Info().Str("connId", connID).Msg("connection removed")
}

// Get returns a connection by ID.
func (r *Registry) Get(connID string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[connID]
	return c, ok
}

// BindSession attaches a session to the identified connection.
func (r *Registry) BindSession(connID, sessionID, agentID string) {
	if c, ok := r.Get(connID); ok {
		c.Bind(sessionID, agentID)
	}
}

// Unbind detaches any session from the identified connection.
func (r *Registry) Unbind(connID string) {
	if c, ok := r.Get(connID); ok {
		c.Unbind()
	}
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll closes and removes every connection.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.conns {
		c.Close()
		delete(r.conns, id)
	}
}
