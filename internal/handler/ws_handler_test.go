package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomchat/internal/app/chat"
	"roomchat/internal/app/user"
)

func (s *testServer) serve() *httptest.Server {
	s.t.Helper()

	srv := httptest.NewServer(s.handler)
	s.t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, res, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, res, err
}

func sendCommand(t *testing.T, conn *websocket.Conn, kind string, payload any) {
	t.Helper()

	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(chat.Envelope{Type: kind, Payload: raw}))
}

// readEvent reads frames until one of the given kind arrives.
func readEvent(t *testing.T, conn *websocket.Conn, kind string) json.RawMessage {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, frame, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", kind)

		var env chat.Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		if env.Type == kind {
			return env.Payload
		}
	}
}

func TestWebSocket_RejectsMissingOrBadToken(t *testing.T) {
	s := newTestServer(t, unlimited())
	srv := s.serve()

	for _, token := range []string{"", "garbage"} {
		_, res, err := dial(t, srv, token)
		require.ErrorIs(t, err, websocket.ErrBadHandshake)
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	}

	assert.Zero(t, s.deps.Coordinator.Registry().Len())
}

func TestWebSocket_JoinSendAndDisconnect(t *testing.T) {
	s := newTestServer(t, unlimited())
	srv := s.serve()

	alice, aliceToken := s.newUser("alice")
	bob, bobToken := s.newUser("bob")
	room := s.createRoom(aliceToken, chat.CreateRoomInput{Name: "general"})
	s.do(http.MethodPost, "/api/rooms/"+room.ID+"/join", bobToken, nil)

	connA, _, err := dial(t, srv, aliceToken)
	require.NoError(t, err)
	connB, _, err := dial(t, srv, bobToken)
	require.NoError(t, err)

	sendCommand(t, connA, chat.CmdJoinRoom, chat.JoinRoom{RoomID: room.ID})
	var joined chat.JoinedRoomPayload
	require.NoError(t, json.Unmarshal(readEvent(t, connA, chat.EvtJoinedRoom), &joined))
	assert.Equal(t, room.ID, joined.RoomID)

	sendCommand(t, connB, chat.CmdJoinRoom, chat.JoinRoom{RoomID: room.ID})
	readEvent(t, connB, chat.EvtJoinedRoom)

	var peer chat.UserJoinedRoomPayload
	require.NoError(t, json.Unmarshal(readEvent(t, connA, chat.EvtUserJoinedRoom), &peer))
	assert.Equal(t, bob.ID, peer.User.ID)

	sendCommand(t, connA, chat.CmdSendMessage, chat.SendMessage{RoomID: room.ID, Content: "hello", TempID: "t1"})

	var seen chat.MessageView
	require.NoError(t, json.Unmarshal(readEvent(t, connB, chat.EvtNewMessage), &seen))
	assert.Equal(t, "hello", seen.Content)
	assert.Equal(t, alice.ID, seen.Sender.ID)

	var ack chat.MessageSentPayload
	require.NoError(t, json.Unmarshal(readEvent(t, connA, chat.EvtMessageSent), &ack))
	assert.Equal(t, "t1", ack.TempID)
	assert.Equal(t, seen.ID, ack.Message.ID)

	require.NoError(t, connA.Close())

	var left chat.UserLeftRoomPayload
	require.NoError(t, json.Unmarshal(readEvent(t, connB, chat.EvtUserLeftRoom), &left))
	assert.Equal(t, alice.ID, left.UserID)

	assert.Eventually(t, func() bool {
		stored, err := s.store.FindUserByID(context.Background(), alice.ID)
		return err == nil && stored.Status == user.StatusOffline
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWebSocket_ShutdownClosesWithGoingAway(t *testing.T) {
	s := newTestServer(t, unlimited())
	srv := s.serve()

	_, token := s.newUser("alice")
	conn, _, err := dial(t, srv, token)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return s.deps.Coordinator.Registry().Len() == 1
	}, 3*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, s.deps.Coordinator.Shutdown(ctx))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err = conn.ReadMessage()

	var closeErr *websocket.CloseError
	require.True(t, errors.As(err, &closeErr), "unexpected error %v", err)
	assert.Equal(t, websocket.CloseGoingAway, closeErr.Code)
}
