package chat

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomchat/internal/app/store"
	"roomchat/internal/pkg/errs"
)

func TestDecodeCommand(t *testing.T) {
	roomID := uuid.NewString()
	messageID := uuid.NewString()

	tests := []struct {
		name  string
		frame string
		want  Command
	}{
		{"join", `{"type":"join-room","payload":{"roomId":"` + roomID + `"}}`, JoinRoom{RoomID: roomID}},
		{"leave", `{"type":"leave-room","payload":{"roomId":"` + roomID + `"}}`, LeaveRoom{RoomID: roomID}},
		{"delete", `{"type":"delete-message","payload":{"messageId":"` + messageID + `"}}`, DeleteMessage{MessageID: messageID}},
		{"reaction", `{"type":"add-reaction","payload":{"messageId":"` + messageID + `","emoji":"🎉"}}`, AddReaction{MessageID: messageID, Emoji: "🎉"}},
		{"typing", `{"type":"typing-stop","payload":{"roomId":"` + roomID + `"}}`, TypingStop{RoomID: roomID}},
		{"status", `{"type":"update-status","payload":{"status":"busy"}}`, UpdateStatus{Status: "busy"}},
		{
			"send",
			`{"type":"send-message","payload":{"roomId":"` + roomID + `","content":"hi","messageType":"text","tempId":"t1"}}`,
			SendMessage{RoomID: roomID, Content: "hi", MessageType: store.MessageText, TempID: "t1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, customErr := DecodeCommand([]byte(tt.frame))
			require.Nil(t, customErr)
			assert.Equal(t, tt.want, cmd)
		})
	}
}

func TestDecodeCommand_RejectsUndeclaredFields(t *testing.T) {
	frame := `{"type":"join-room","payload":{"roomId":"` + uuid.NewString() + `","force":true}}`

	cmd, customErr := DecodeCommand([]byte(frame))
	require.NotNil(t, customErr)
	assert.Equal(t, errs.ErrInvalidJSONFormat, customErr.Code)
	assert.Nil(t, cmd)
}

func TestCommandValidation(t *testing.T) {
	roomID := uuid.NewString()
	messageID := uuid.NewString()
	bad := "not-an-id"

	tests := []struct {
		name     string
		cmd      Command
		wantCode int
	}{
		{"edit blank", EditMessage{MessageID: messageID, Content: " "}, errs.ErrMessageEmpty},
		{"edit too long", EditMessage{MessageID: messageID, Content: strings.Repeat("a", MaxContentLength+1)}, errs.ErrMessageContentTooLong},
		{"emoji empty", AddReaction{MessageID: messageID, Emoji: ""}, errs.ErrInvalidEmoji},
		{"emoji too long", RemoveReaction{MessageID: messageID, Emoji: strings.Repeat("x", MaxEmojiLength+1)}, errs.ErrInvalidEmoji},
		{"reply id", SendMessage{RoomID: roomID, Content: "x", ReplyTo: &bad}, errs.ErrReplyTargetNotFound},
		{"mention out of bounds", SendMessage{RoomID: roomID, Content: "hey", Mentions: []store.Mention{{UserID: uuid.NewString(), StartIndex: 0, EndIndex: 4}}}, errs.ErrInvalidMention},
		{"too many attachments", SendMessage{RoomID: roomID, Content: "x", Attachments: make([]store.Attachment, MaxAttachmentsCount+1)}, errs.ErrAttachmentCountInvalid},
		{"read batch too large", MarkMessagesRead{RoomID: roomID, MessageIDs: make([]string, MaxReadBatch+1)}, errs.ErrInvalidParams},
		{"read batch bad id", MarkMessagesRead{RoomID: roomID, MessageIDs: []string{bad}}, errs.ErrInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			customErr := tt.cmd.Validate()
			require.NotNil(t, customErr)
			assert.Equal(t, tt.wantCode, customErr.Code)
		})
	}
}

func TestValidateAttachments(t *testing.T) {
	roomID := uuid.NewString()

	tests := []struct {
		name       string
		attachment store.Attachment
		wantCode   int
	}{
		{"ok", store.Attachment{FileKey: roomID + "/f.pdf", FileName: "f.pdf", MimeType: "application/pdf", FileSize: 10}, 0},
		{"foreign prefix", store.Attachment{FileKey: "other/f.pdf", FileName: "f.pdf", MimeType: "application/pdf", FileSize: 10}, errs.ErrAttachmentKeyInvalid},
		{"traversal", store.Attachment{FileKey: roomID + "/../f.pdf", FileName: "f.pdf", MimeType: "application/pdf", FileSize: 10}, errs.ErrAttachmentKeyInvalid},
		{"mime mismatch", store.Attachment{FileKey: roomID + "/f.pdf", FileName: "f.pdf", MimeType: "image/png", FileSize: 10}, errs.ErrInvalidParams},
		{"too large", store.Attachment{FileKey: roomID + "/f.pdf", FileName: "f.pdf", MimeType: "application/pdf", FileSize: MaxAttachmentSize + 1}, errs.ErrFileSizeTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			customErr := ValidateAttachments(roomID, []store.Attachment{tt.attachment})
			if tt.wantCode == 0 {
				assert.Nil(t, customErr)
				return
			}
			require.NotNil(t, customErr)
			assert.Equal(t, tt.wantCode, customErr.Code)
		})
	}
}

func TestMessageTypeFor(t *testing.T) {
	image := store.Attachment{MimeType: "image/png"}
	file := store.Attachment{MimeType: "application/pdf"}

	assert.Equal(t, store.MessageText, MessageTypeFor("", nil))
	assert.Equal(t, store.MessageImage, MessageTypeFor("", []store.Attachment{image}))
	assert.Equal(t, store.MessageFile, MessageTypeFor("", []store.Attachment{image, file}))
	assert.Equal(t, store.MessageText, MessageTypeFor(store.MessageText, []store.Attachment{file}))
}
