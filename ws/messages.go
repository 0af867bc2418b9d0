package ws

import "encoding/json"

// Inbound message type tags, per spec.md §4.6.
const (
	inAuthenticate     = "authenticate"
	inSubscribeEvent   = "subscribe_event"
	inUnsubscribeEvent = "unsubscribe_event"
	inPing             = "ping"
)

// Outbound message type tags.
const (
	outConnected    = "connected"
	outAuthenticated = "authenticated"
	outAuthError    = "auth_error"
	outSubscribed   = "subscribed"
	outUnsubscribed = "unsubscribed"
	outPong         = "pong"
	outError        = "error"
)

// inboundEnvelope is the generic shape every inbound frame is first decoded
// into, so the type tag can be dispatched before decoding the rest.
type inboundEnvelope struct {
	Type    string `json:"type"`
	Token   string `json:"token,omitempty"`
	EventID string `json:"eventId,omitempty"`
}

func encodeFrame(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"type":"error","message":"internal encode failure"}`)
	}
	return b
}

type connectedFrame struct {
	Type string `json:"type"`
}

type authenticatedFrame struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

type authErrorFrame struct {
	Type string `json:"type"`
}

type subscribedFrame struct {
	Type    string `json:"type"`
	EventID string `json:"eventId"`
}

type unsubscribedFrame struct {
	Type    string `json:"type"`
	EventID string `json:"eventId"`
}

type pongFrame struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
