package ws

import (
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// Connection wraps one upgraded socket with the state spec.md §3 requires:
// an optional bound userId, the set of subscribed event ids, and a liveness
// flag toggled by the ping/pong loop.
type Connection struct {
	conn   *websocket.Conn
	hub    *Hub

	userID string

	mu               sync.Mutex
	subscribedEvents map[string]struct{}

	alive  atomic.Bool
	closed atomic.Bool
	closeOnce sync.Once

	writeMu sync.Mutex
}

func newConnection(conn *websocket.Conn, hub *Hub) *Connection {
	c := &Connection{
		conn:             conn,
		hub:              hub,
		subscribedEvents: make(map[string]struct{}),
	}
	c.alive.Store(true)
	return c
}

// send is a non-blocking best-effort write: if the connection is already
// closed the send is silently dropped, per spec.md §4.6.
func (c *Connection) send(payload []byte) {
	if c.closed.Load() {
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed.Load() {
		return
	}
	_ = c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *Connection) sendPing() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

func (c *Connection) setUserID(userID string) {
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()
}

func (c *Connection) getUserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *Connection) addSubscription(eventID string) {
	c.mu.Lock()
	c.subscribedEvents[eventID] = struct{}{}
	c.mu.Unlock()
}

func (c *Connection) removeSubscription(eventID string) {
	c.mu.Lock()
	delete(c.subscribedEvents, eventID)
	c.mu.Unlock()
}

func (c *Connection) subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.subscribedEvents))
	for id := range c.subscribedEvents {
		ids = append(ids, id)
	}
	return ids
}

func (c *Connection) close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		_ = c.conn.Close()
	})
}
