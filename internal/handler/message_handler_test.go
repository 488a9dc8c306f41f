package handler

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomchat/internal/app/chat"
	"roomchat/internal/app/store"
	"roomchat/internal/pkg/errs"
)

type messageBody struct {
	Message chat.MessageView `json:"message"`
}

func TestMessageRESTFlow(t *testing.T) {
	s := newTestServer(t, unlimited())
	alice, aliceToken := s.newUser("alice")
	_, bobToken := s.newUser("bob")

	room := s.createRoom(aliceToken, chat.CreateRoomInput{Name: "general"})
	w, env := s.do(http.MethodPost, "/api/rooms/"+room.ID+"/join", bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code, env.Message)

	w, env = s.do(http.MethodPost, "/api/rooms/"+room.ID+"/messages", aliceToken, SendMessageInput{Content: "  hello  "})
	require.Equal(t, http.StatusCreated, w.Code, env.Message)
	sent := decodeData[messageBody](t, env).Message
	assert.Equal(t, "hello", sent.Content)
	assert.Equal(t, alice.ID, sent.Sender.ID)
	assert.Equal(t, store.MessageText, sent.Type)

	w, env = s.do(http.MethodPut, "/api/messages/"+sent.ID, bobToken, EditMessageInput{Content: "hijack"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, errs.ErrNotMessageSender, env.Code)

	w, env = s.do(http.MethodPut, "/api/messages/"+sent.ID, aliceToken, EditMessageInput{Content: "hello there"})
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	edited := decodeData[struct {
		Message store.Message `json:"message"`
	}](t, env).Message
	assert.True(t, edited.Edited.IsEdited)
	require.NotNil(t, edited.Edited.OriginalContent)
	assert.Equal(t, "hello", *edited.Edited.OriginalContent)

	w, env = s.do(http.MethodPost, "/api/messages/"+sent.ID+"/reactions", bobToken, ReactionInput{Emoji: "👍"})
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	w, env = s.do(http.MethodPost, "/api/messages/"+sent.ID+"/reactions", bobToken, ReactionInput{Emoji: "👍"})
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	reactions := decodeData[struct {
		Reactions map[string]store.ReactionGroup `json:"reactions"`
	}](t, env).Reactions
	assert.Equal(t, 1, reactions["👍"].Count)

	w, env = s.do(http.MethodDelete, "/api/messages/"+sent.ID+"/reactions", bobToken, ReactionInput{Emoji: "👍"})
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	assert.NotContains(t, string(env.Data), "👍")

	w, env = s.do(http.MethodDelete, "/api/messages/"+sent.ID, bobToken, nil)
	assert.Equal(t, errs.ErrDeleteForbidden, env.Code)

	w, env = s.do(http.MethodDelete, "/api/messages/"+sent.ID, aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code, env.Message)

	w, env = s.do(http.MethodPut, "/api/messages/"+sent.ID, aliceToken, EditMessageInput{Content: "again"})
	assert.Equal(t, errs.ErrMessageNotFound, env.Code)
}

func TestListMessages_REST(t *testing.T) {
	s := newTestServer(t, unlimited())
	_, aliceToken := s.newUser("alice")
	_, bobToken := s.newUser("bob")
	_, malloryToken := s.newUser("mallory")

	room := s.createRoom(aliceToken, chat.CreateRoomInput{Name: "general"})
	s.do(http.MethodPost, "/api/rooms/"+room.ID+"/join", bobToken, nil)

	for i := 1; i <= 3; i++ {
		w, env := s.do(http.MethodPost, "/api/rooms/"+room.ID+"/messages", aliceToken, SendMessageInput{Content: fmt.Sprintf("m%d", i)})
		require.Equal(t, http.StatusCreated, w.Code, env.Message)
	}

	w, env := s.do(http.MethodGet, "/api/rooms/"+room.ID+"/messages?limit=2", bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	page := decodeData[chat.MessagePage](t, env)
	assert.Len(t, page.Messages, 2)
	assert.Equal(t, 3, page.Total)
	assert.True(t, page.HasMore)
	assert.Equal(t, 1, page.UnreadCount)

	w, env = s.do(http.MethodGet, "/api/rooms/"+room.ID+"/messages", malloryToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, errs.ErrNotRoomMember, env.Code)
}

func TestSendMessage_ValidationOverREST(t *testing.T) {
	s := newTestServer(t, unlimited())
	_, token := s.newUser("alice")
	room := s.createRoom(token, chat.CreateRoomInput{Name: "general"})

	w, env := s.do(http.MethodPost, "/api/rooms/"+room.ID+"/messages", token, SendMessageInput{Content: "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errs.ErrMessageEmpty, env.Code)

	w, env = s.do(http.MethodPost, "/api/rooms/"+room.ID+"/messages", token, SendMessageInput{Content: "hi", MessageType: store.MessageSystem})
	assert.Equal(t, errs.ErrInvalidMessageType, env.Code)
}
