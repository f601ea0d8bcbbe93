// Package live serves a conversation over a websocket: each connection owns
// one conversation session for as long as the page stays open.
package live

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// Registry tracks the open conversation connections by session id.
type Registry struct {
	mu     sync.RWMutex
	active map[string]*websocket.Conn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		active: make(map[string]*websocket.Conn),
	}
}

// Get returns the connection for a session, or nil.
func (m *Registry) Get(sessionID string) *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[sessionID]
}

// Register adds a connection, closing any other connection holding the same session id.
func (m *Registry) Register(sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, exists := m.active[sessionID]; exists && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "session replaced")
	}
	m.active[sessionID] = conn
	slog.Info("Conversation session registered", "session_id", sessionID)
}

// Unregister removes conn if it is still the one registered for the session.
func (m *Registry) Unregister(sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, exists := m.active[sessionID]; exists && current == conn {
		delete(m.active, sessionID)
		slog.Info("Conversation session unregistered", "session_id", sessionID)
	}
}

// Count returns the number of open sessions.
func (m *Registry) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// CloseAll closes every open connection. Used on shutdown, since hijacked
// connections are not tracked by http.Server.Shutdown.
func (m *Registry) CloseAll(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for sid, conn := range m.active {
		_ = conn.Close(websocket.StatusGoingAway, reason)
		slog.Info("Conversation session closed", "session_id", sid)
	}
	m.active = make(map[string]*websocket.Conn)
}
