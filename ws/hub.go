// Package ws implements the authenticated WebSocket fan-out hub: two
// mutex-guarded indices (by user, by subscribed event), liveness reaping
// over a 30s ping/pong cycle, and non-blocking best-effort delivery.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const pingInterval = 30 * time.Second

var (
	connectionsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connections_active",
		Help: "Currently open WebSocket connections.",
	})
	messagesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_messages_total",
		Help: "WebSocket inbound messages by type.",
	}, []string{"type"})
)

// RegisterMetrics registers the hub's prometheus collectors. Safe to call
// once at boot before the HTTP /metrics handler starts serving.
func RegisterMetrics(registry prometheus.Registerer) {
	registry.MustRegister(connectionsGauge, messagesCounter)
}

// AuthClaims is what a valid JWT yields for the authenticate frame.
type AuthClaims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Hub is the WebSocket fan-out server. It implements the Worker shape
// (Start/Stop/Name) so a Dispatcher can supervise its ping loop.
type Hub struct {
	logger    *zap.Logger
	jwtSecret []byte
	upgrader  websocket.Upgrader

	mu       sync.RWMutex
	byUser   map[string]map[*Connection]struct{}
	byEvent  map[string]map[*Connection]struct{}
	conns    map[*Connection]struct{}

	stopOnce sync.Once
	stopChan chan struct{}
}

// NewHub builds a Hub verifying authenticate tokens against jwtSecret.
func NewHub(jwtSecret []byte, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:    logger,
		jwtSecret: jwtSecret,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		byUser:   make(map[string]map[*Connection]struct{}),
		byEvent:  make(map[string]map[*Connection]struct{}),
		conns:    make(map[*Connection]struct{}),
		stopChan: make(chan struct{}),
	}
}

// ServeHTTP upgrades the request to a WebSocket and serves it until it
// closes. Mount at GET /ws.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newConnection(conn, h)
	h.addConnection(c)
	defer h.removeConnection(c)

	conn.SetPongHandler(func(string) error {
		c.alive.Store(true)
		return nil
	})

	c.send(encodeFrame(connectedFrame{Type: outConnected}))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.dispatch(c, data)
	}
}

func (h *Hub) dispatch(c *Connection, data []byte) {
	var env inboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.send(encodeFrame(errorFrame{Type: outError, Message: "invalid message"}))
		return
	}
	messagesCounter.WithLabelValues(env.Type).Inc()

	switch env.Type {
	case inAuthenticate:
		h.handleAuthenticate(c, env.Token)
	case inSubscribeEvent:
		h.handleSubscribe(c, env.EventID)
	case inUnsubscribeEvent:
		h.handleUnsubscribe(c, env.EventID)
	case inPing:
		c.send(encodeFrame(pongFrame{Type: outPong, Timestamp: time.Now().UnixMilli()}))
	default:
		c.send(encodeFrame(errorFrame{Type: outError, Message: "Unknown message type"}))
	}
}

func (h *Hub) handleAuthenticate(c *Connection, token string) {
	claims := &AuthClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return h.jwtSecret, nil
	})
	if err != nil {
		c.send(encodeFrame(authErrorFrame{Type: outAuthError}))
		return
	}

	c.setUserID(claims.UserID)
	h.mu.Lock()
	if h.byUser[claims.UserID] == nil {
		h.byUser[claims.UserID] = make(map[*Connection]struct{})
	}
	h.byUser[claims.UserID][c] = struct{}{}
	h.mu.Unlock()

	c.send(encodeFrame(authenticatedFrame{Type: outAuthenticated, UserID: claims.UserID, Email: claims.Email}))
}

func (h *Hub) handleSubscribe(c *Connection, eventID string) {
	c.addSubscription(eventID)
	h.mu.Lock()
	if h.byEvent[eventID] == nil {
		h.byEvent[eventID] = make(map[*Connection]struct{})
	}
	h.byEvent[eventID][c] = struct{}{}
	h.mu.Unlock()
	c.send(encodeFrame(subscribedFrame{Type: outSubscribed, EventID: eventID}))
}

func (h *Hub) handleUnsubscribe(c *Connection, eventID string) {
	c.removeSubscription(eventID)
	h.mu.Lock()
	if set, ok := h.byEvent[eventID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byEvent, eventID)
		}
	}
	h.mu.Unlock()
	c.send(encodeFrame(unsubscribedFrame{Type: outUnsubscribed, EventID: eventID}))
}

func (h *Hub) addConnection(c *Connection) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
	connectionsGauge.Inc()
}

func (h *Hub) removeConnection(c *Connection) {
	c.close()

	h.mu.Lock()
	_, present := h.conns[c]
	delete(h.conns, c)
	if userID := c.getUserID(); userID != "" {
		if set, ok := h.byUser[userID]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.byUser, userID)
			}
		}
	}
	for _, eventID := range c.subscriptions() {
		if set, ok := h.byEvent[eventID]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.byEvent, eventID)
			}
		}
	}
	h.mu.Unlock()
	if present {
		connectionsGauge.Dec()
	}
}

// BroadcastToUser delivers payload to every connection bound to userID.
func (h *Hub) BroadcastToUser(userID string, payload []byte) {
	h.mu.RLock()
	targets := make([]*Connection, 0, len(h.byUser[userID]))
	for c := range h.byUser[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.send(payload)
	}
}

// BroadcastToEvent delivers payload to every connection subscribed to eventID.
func (h *Hub) BroadcastToEvent(eventID string, payload []byte) {
	h.mu.RLock()
	targets := make([]*Connection, 0, len(h.byEvent[eventID]))
	for c := range h.byEvent[eventID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.send(payload)
	}
}

// Broadcast delivers payload to every open connection.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.RLock()
	targets := make([]*Connection, 0, len(h.conns))
	for c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.send(payload)
	}
}

// Name implements the Worker shape.
func (h *Hub) Name() string { return "websocket-hub" }

// Start runs the liveness loop: every 30s, connections that did not pong
// since the last tick are terminated; the rest are pinged and marked not-
// alive until their next pong. It implements the Worker shape.
func (h *Hub) Start(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopChan:
			return
		case <-ticker.C:
			h.reapAndPing()
		}
	}
}

func (h *Hub) reapAndPing() {
	h.mu.RLock()
	targets := make([]*Connection, 0, len(h.conns))
	for c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.alive.Load() {
			h.removeConnection(c)
			continue
		}
		c.alive.Store(false)
		if err := c.sendPing(); err != nil {
			h.removeConnection(c)
		}
	}
}

// Stop implements the Worker shape.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopChan)
	})
}
