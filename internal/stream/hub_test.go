package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PratikDhanave/petcare-telemetry-service/internal/notify"
)

type harness struct {
	hub    *Hub
	srv    *httptest.Server
	cancel context.CancelFunc
}

func startHub(t *testing.T) *harness {
	t.Helper()
	h := &harness{hub: NewHub()}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go h.hub.Run(ctx)

	h.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = h.hub.ServeWS(w, r, "test")
	}))
	t.Cleanup(func() {
		cancel()
		h.srv.Close()
	})
	return h
}

// dial connects and waits until the hub has registered the client.
func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	msg := read(t, conn)
	require.Equal(t, "connected", msg.Type)
	require.NotEmpty(t, msg.Payload.(map[string]any)["client"])
	return conn
}

func read(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestPublishReachesClients(t *testing.T) {
	h := startHub(t)
	first := h.dial(t)
	second := h.dial(t)

	h.hub.Publish(notify.Notification{
		Message:  "Excessive barking detected",
		Type:     notify.TypeAlert,
		PushType: notify.PushBark,
	})

	for _, conn := range []*websocket.Conn{first, second} {
		msg := read(t, conn)
		assert.Equal(t, "notification", msg.Type)
		payload := msg.Payload.(map[string]any)
		assert.Equal(t, "Excessive barking detected", payload["message"])
		assert.Equal(t, notify.PushBark, payload["pushType"])
	}
}

func TestShutdownClosesClients(t *testing.T) {
	h := startHub(t)
	conn := h.dial(t)

	h.cancel()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err,
		websocket.CloseNormalClosure, websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure), err.Error())
}

func TestPublishAfterStopDoesNotBlock(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	finished := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			hub.Publish(notify.Notification{Message: "late"})
		}
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked after shutdown")
	}
}
