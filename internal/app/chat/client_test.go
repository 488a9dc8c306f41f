package chat

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomchat/internal/app/user"
)

// stalledClient returns a Client whose peer never reads, so WritePump blocks
// inside a write once the socket buffers are full.
func stalledClient(t *testing.T) *Client {
	t.Helper()

	accepted := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- conn
	}))
	t.Cleanup(srv.Close)

	peer, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = peer.Close() })

	var conn *websocket.Conn
	select {
	case conn = <-accepted:
	case <-time.After(3 * time.Second):
		t.Fatal("server side of the connection was never accepted")
	}
	t.Cleanup(func() { _ = conn.Close() })

	client := NewClient(conn, "conn-stalled", time.Now().Add(time.Hour), nil)
	go client.WritePump()
	return client
}

// fillQueue enqueues frame until the send queue refuses it.
func fillQueue(t *testing.T, c *Client, frame []byte) {
	t.Helper()

	for i := 0; i < 4*sendQueueSize; i++ {
		if !c.Enqueue(frame) {
			return
		}
	}
	t.Fatal("send queue never filled")
}

func TestEmitToRoom_OverflowingSubscriberDoesNotStallBroadcaster(t *testing.T) {
	client := stalledClient(t)

	frame := make([]byte, 1<<20)
	fillQueue(t, client, frame)
	// let WritePump block on the socket, then top the queue up again
	time.Sleep(100 * time.Millisecond)
	fillQueue(t, client, frame)

	registry := NewRegistry()
	hub := NewHub()
	s, _ := registry.Register(user.Identity{ID: "u-slow", Name: "slow"}, "conn-stalled", client)
	hub.Subscribe("room-1", s)

	started := time.Now()
	delivered := hub.EmitToRoom("room-1", EvtUserTyping, UserTypingPayload{UserID: "u-other", UserName: "other", RoomID: "room-1"})
	assert.Less(t, time.Since(started), time.Second)
	assert.Zero(t, delivered)

	select {
	case <-client.done:
	default:
		t.Fatal("overflowing client was not shut down")
	}
}

func TestShutdown_ReturnsWhileWriterIsBlocked(t *testing.T) {
	client := stalledClient(t)

	frame := make([]byte, 1<<20)
	fillQueue(t, client, frame)
	time.Sleep(100 * time.Millisecond)

	started := time.Now()
	client.Shutdown(WsCloseCodeSlowConsumer, "send queue overflow")
	client.Shutdown(WsCloseCodeSlowConsumer, "again")
	assert.Less(t, time.Since(started), time.Second)

	assert.False(t, client.Enqueue([]byte("late")))
	assert.Equal(t, WsCloseCodeSlowConsumer, client.closeCode)
}
