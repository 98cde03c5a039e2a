package lwp

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Connection represents an established LWP session.
type Connection struct {
	// ID uniquely identifies this connection.
	ID string

	// Codec is the negotiated wire format.
	Codec Codec

	// ConnectedAt records when the connection was established.
	ConnectedAt time.Time

	// LastActivity tracks the most recent frame received.
	LastActivity atomic.Value // time.Time

	// subscriptions maps each channel to the cancel func of its forwarder.
	subscriptions map[string]context.CancelFunc
	mu            sync.Mutex
}

// NewConnection creates a connection with the given ID and codec.
func NewConnection(id string, codec Codec) *Connection {
	c := &Connection{
		ID:            id,
		Codec:         codec,
		ConnectedAt:   time.Now().UTC(),
		subscriptions: make(map[string]context.CancelFunc),
	}
	c.LastActivity.Store(time.Now().UTC())
	return c
}

// Touch updates the last activity timestamp.
func (c *Connection) Touch() {
	c.LastActivity.Store(time.Now().UTC())
}

// AddSubscription records a channel subscription and the func that
// stops its forwarder. It reports false, leaving the existing
// subscription in place, when the channel is already subscribed.
func (c *Connection) AddSubscription(channel string, cancel context.CancelFunc) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subscriptions[channel]; ok {
		return false
	}
	c.subscriptions[channel] = cancel
	return true
}

// RemoveSubscription stops the forwarder of a channel and forgets it.
// It reports whether the channel was subscribed.
func (c *Connection) RemoveSubscription(channel string) bool {
	c.mu.Lock()
	cancel, ok := c.subscriptions[channel]
	delete(c.subscriptions, channel)
	c.mu.Unlock()
	if ok && cancel != nil {
		cancel()
	}
	return ok
}

// Subscriptions returns a copy of active subscription channels.
func (c *Connection) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subscriptions))
	for ch := range c.subscriptions {
		out = append(out, ch)
	}
	return out
}

// Close stops every forwarder of the connection.
func (c *Connection) Close() {
	c.mu.Lock()
	subs := c.subscriptions
	c.subscriptions = make(map[string]context.CancelFunc)
	c.mu.Unlock()
	for _, cancel := range subs {
		if cancel != nil {
			cancel()
		}
	}
}

// ConnectionManager tracks active LWP connections.
type ConnectionManager struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

// NewConnectionManager creates an empty connection manager.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		conns: make(map[string]*Connection),
	}
}

// Add registers a new connection.
func (cm *ConnectionManager) Add(conn *Connection) {
	cm.mu.Lock()
	cm.conns[conn.ID] = conn
	cm.mu.Unlock()
}

// Remove unregisters a connection.
func (cm *ConnectionManager) Remove(connID string) {
	cm.mu.Lock()
	delete(cm.conns, connID)
	cm.mu.Unlock()
}

// Get returns a connection by ID.
func (cm *ConnectionManager) Get(connID string) (*Connection, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	c, ok := cm.conns[connID]
	return c, ok
}

// Count returns the number of active connections.
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.conns)
}
