package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fairlaunch/internal/domain"
)

var at = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

func TestNewEvent_UniqueIDs(t *testing.T) {
	a := NewEvent(domain.EventTradeExecuted, "tok", "u1", at, nil)
	b := NewEvent(domain.EventTradeExecuted, "tok", "u1", at, nil)

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, domain.EventTradeExecuted, a.Type)
	assert.True(t, a.Timestamp.Equal(at))
}

func TestMulti_FansOut(t *testing.T) {
	r1, r2 := &Recorder{}, &Recorder{}
	m := Multi{r1, nil, r2, Nop{}}

	m.Notify(context.Background(), NewEvent(domain.EventGraduationReady, "tok", "", at, nil))

	assert.Equal(t, 1, r1.Count(domain.EventGraduationReady))
	assert.Equal(t, 1, r2.Count(domain.EventGraduationReady))
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(log.New(&buf, "", 0))

	n.Notify(context.Background(), NewEvent(domain.EventTradeRejected, "tok", "alice", at, nil))
	n.Notify(context.Background(), NewEvent(domain.EventGraduationCompleted, "tok", "", at, nil))

	out := buf.String()
	assert.Contains(t, out, "trade-rejected token=tok user=alice")
	assert.Contains(t, out, "graduation-completed token=tok id=")
}

func TestHub_StreamsEvents(t *testing.T) {
	hub := NewHub(HubOptions{})
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	hub.Notify(context.Background(), NewEvent(domain.EventTradeExecuted, "tok", "bob", at, map[string]string{"amount": "10"}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev domain.Event
	require.NoError(t, json.Unmarshal(msg, &ev))
	assert.Equal(t, domain.EventTradeExecuted, ev.Type)
	assert.Equal(t, "tok", ev.TokenID)
	assert.Equal(t, "bob", ev.UserID)
}

func TestHub_DisconnectRemovesClient(t *testing.T) {
	hub := NewHub(HubOptions{})
	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)

	// No clients: Notify is a no-op.
	hub.Notify(context.Background(), NewEvent(domain.EventTradeExecuted, "tok", "", at, nil))
	hub.Close()
}
