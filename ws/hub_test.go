package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, hub *Hub) (*httptest.Server, string) {
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	return server, wsURL
}

func dial(t *testing.T, url string) *websocket.Conn {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSONFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame map[string]interface{}
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestHubSendsConnectedFrameOnUpgrade(t *testing.T) {
	hub := NewHub([]byte("secret"), nil)
	_, url := newTestServer(t, hub)
	conn := dial(t, url)

	frame := readJSONFrame(t, conn)
	require.Equal(t, outConnected, frame["type"])
}

func TestHubPingPong(t *testing.T) {
	hub := NewHub([]byte("secret"), nil)
	_, url := newTestServer(t, hub)
	conn := dial(t, url)
	readJSONFrame(t, conn) // connected

	require.NoError(t, conn.WriteJSON(map[string]string{"type": inPing}))
	frame := readJSONFrame(t, conn)
	require.Equal(t, outPong, frame["type"])
}

func TestHubSubscribeUnsubscribe(t *testing.T) {
	hub := NewHub([]byte("secret"), nil)
	_, url := newTestServer(t, hub)
	conn := dial(t, url)
	readJSONFrame(t, conn) // connected

	require.NoError(t, conn.WriteJSON(map[string]string{"type": inSubscribeEvent, "eventId": "evt-1"}))
	frame := readJSONFrame(t, conn)
	require.Equal(t, outSubscribed, frame["type"])
	require.Equal(t, "evt-1", frame["eventId"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": inUnsubscribeEvent, "eventId": "evt-1"}))
	frame = readJSONFrame(t, conn)
	require.Equal(t, outUnsubscribed, frame["type"])
}

func TestHubAuthenticateValidToken(t *testing.T) {
	secret := []byte("topsecret")
	hub := NewHub(secret, nil)
	_, url := newTestServer(t, hub)
	conn := dial(t, url)
	readJSONFrame(t, conn) // connected

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AuthClaims{UserID: "user-42", Email: "a@b.com"})
	signed, err := token.SignedString(secret)
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": inAuthenticate, "token": signed}))
	frame := readJSONFrame(t, conn)
	require.Equal(t, outAuthenticated, frame["type"])
	require.Equal(t, "user-42", frame["userId"])
}

func TestHubAuthenticateInvalidToken(t *testing.T) {
	hub := NewHub([]byte("topsecret"), nil)
	_, url := newTestServer(t, hub)
	conn := dial(t, url)
	readJSONFrame(t, conn) // connected

	require.NoError(t, conn.WriteJSON(map[string]string{"type": inAuthenticate, "token": "not-a-jwt"}))
	frame := readJSONFrame(t, conn)
	require.Equal(t, outAuthError, frame["type"])
}

func TestHubBroadcastToUserDeliversOnlyToBoundConnection(t *testing.T) {
	secret := []byte("topsecret")
	hub := NewHub(secret, nil)
	_, url := newTestServer(t, hub)

	authed := dial(t, url)
	readJSONFrame(t, authed) // connected
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AuthClaims{UserID: "user-7"})
	signed, err := token.SignedString(secret)
	require.NoError(t, err)
	require.NoError(t, authed.WriteJSON(map[string]string{"type": inAuthenticate, "token": signed}))
	readJSONFrame(t, authed) // authenticated

	unauthed := dial(t, url)
	readJSONFrame(t, unauthed) // connected

	hub.BroadcastToUser("user-7", []byte(`{"type":"computation_result"}`))

	frame := readJSONFrame(t, authed)
	require.Equal(t, "computation_result", frame["type"])

	unauthed.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var discard map[string]interface{}
	err = unauthed.ReadJSON(&discard)
	require.Error(t, err)
}

func TestHubReapAndPingRemovesDeadConnection(t *testing.T) {
	secret := []byte("topsecret")
	hub := NewHub(secret, nil)
	_, url := newTestServer(t, hub)
	conn := dial(t, url)
	readJSONFrame(t, conn) // connected

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AuthClaims{UserID: "user-9"})
	signed, err := token.SignedString(secret)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": inAuthenticate, "token": signed}))
	readJSONFrame(t, conn) // authenticated

	require.NoError(t, conn.WriteJSON(map[string]string{"type": inSubscribeEvent, "eventId": "evt-1"}))
	readJSONFrame(t, conn) // subscribed

	var target *Connection
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		for c := range hub.conns {
			target = c
		}
		return target != nil
	}, time.Second, 10*time.Millisecond)

	hub.reapAndPing()
	hub.mu.RLock()
	_, stillPresent := hub.conns[target]
	hub.mu.RUnlock()
	require.True(t, stillPresent, "a connection still marked alive survives one tick")

	target.alive.Store(false)
	hub.reapAndPing()

	hub.mu.RLock()
	_, inConns := hub.conns[target]
	_, inByUser := hub.byUser["user-9"][target]
	_, inByEvent := hub.byEvent["evt-1"][target]
	hub.mu.RUnlock()
	require.False(t, inConns)
	require.False(t, inByUser)
	require.False(t, inByEvent)
}
