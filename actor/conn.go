package actor

import (
	"sync"

	"github.com/statedge/actorhost/serde"
)

// Transport identifies which connection driver owns a Conn.
type Transport string

const (
	TransportWebSocket Transport = "websocket"
	TransportSSE       Transport = "sse"
	TransportHTTP      Transport = "http"
)

// Sender is the narrow interface a connection driver gives the actor so it
// can push frames out without the actor package knowing about gorilla
// websockets, SSE flushers, or anything else transport-specific.
type Sender interface {
	// Send delivers an already-encoded wire frame to the client.
	Send(frame []byte) error
	// Close ends the connection with a human-readable reason.
	Close(reason string) error
}

// Conn is the Connection entity from spec §3. It is only ever touched
// from the owning Instance's event loop goroutine, so it carries no
// internal locking of its own beyond what Subscriptions needs for
// broadcast's read access.
type Conn struct {
	ID             string
	Token          string
	Params         any
	Auth           any
	Encoding       serde.Encoding
	Transport      Transport
	PersistedState any
	Sender         Sender

	mu            sync.RWMutex
	subscriptions map[string]struct{}
}

func newConn(id, token string, params, auth any, enc serde.Encoding, transport Transport, sender Sender) *Conn {
	return &Conn{
		ID:            id,
		Token:         token,
		Params:        params,
		Auth:          auth,
		Encoding:      enc,
		Transport:     transport,
		Sender:        sender,
		subscriptions: make(map[string]struct{}),
	}
}

// Subscribe registers interest in event, idempotently.
func (c *Conn) Subscribe(event string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[event] = struct{}{}
}

// Unsubscribe removes interest in event, idempotently.
func (c *Conn) Unsubscribe(event string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscriptions, event)
}

// Subscribed reports whether c currently subscribes to event.
func (c *Conn) Subscribed(event string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[event]
	return ok
}

// subscriptionNames returns a snapshot of c's subscribed event names, for
// persistence.
func (c *Conn) subscriptionNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.subscriptions))
	for e := range c.subscriptions {
		out = append(out, e)
	}
	return out
}
