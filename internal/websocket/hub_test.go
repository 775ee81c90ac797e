package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func dial(t *testing.T, srv *httptest.Server, session string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?session=" + session
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestPublishReachesOnlyItsSession(t *testing.T) {
	hub := NewHub(nil, quietLogger())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.HandleWebSocket(w, r, r.URL.Query().Get("session"))
	}))
	defer srv.Close()

	a := dial(t, srv, "a")
	b := dial(t, srv, "b")
	require.Eventually(t, func() bool {
		return hub.ClientCount("a") == 1 && hub.ClientCount("b") == 1
	}, time.Second, 5*time.Millisecond)

	hub.Publish("a", "form_state", map[string]int{"version": 3})

	require.NoError(t, a.SetReadDeadline(time.Now().Add(time.Second)))
	_, data, err := a.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type string         `json:"type"`
		Data map[string]int `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "form_state", msg.Type)
	assert.Equal(t, 3, msg.Data["version"])

	require.NoError(t, b.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
	_, _, err = b.ReadMessage()
	assert.Error(t, err, "other sessions receive nothing")
}

func TestClientRemovedOnClose(t *testing.T) {
	hub := NewHub(nil, quietLogger())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.HandleWebSocket(w, r, "s")
	}))
	defer srv.Close()

	conn := dial(t, srv, "s")
	require.Eventually(t, func() bool { return hub.ClientCount("s") == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount("s") == 0 }, time.Second, 5*time.Millisecond)

	// Publishing to a session without clients is harmless.
	hub.Publish("s", "form_state", nil)
}
