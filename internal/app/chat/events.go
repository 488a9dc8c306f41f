package chat

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"roomchat/internal/app/store"
	"roomchat/internal/app/user"
	"roomchat/internal/pkg/errs"
	"roomchat/internal/pkg/randx"
)

const (
	// MaxContentLength is the maximum message length in characters, after trimming.
	MaxContentLength = 2000

	// MaxEmojiLength is the maximum length of a reaction emoji in characters.
	MaxEmojiLength = 10

	// MaxReadBatch caps the ids of one mark-messages-read command.
	MaxReadBatch = 200
)

// Client to server command kinds.
const (
	CmdJoinRoom         = "join-room"
	CmdLeaveRoom        = "leave-room"
	CmdSendMessage      = "send-message"
	CmdEditMessage      = "edit-message"
	CmdDeleteMessage    = "delete-message"
	CmdAddReaction      = "add-reaction"
	CmdRemoveReaction   = "remove-reaction"
	CmdTypingStart      = "typing-start"
	CmdTypingStop       = "typing-stop"
	CmdUpdateStatus     = "update-status"
	CmdMarkMessagesRead = "mark-messages-read"
)

// Server to client event kinds.
const (
	EvtJoinedRoom        = "joined-room"
	EvtLeftRoom          = "left-room"
	EvtUserJoinedRoom    = "user-joined-room"
	EvtUserLeftRoom      = "user-left-room"
	EvtNewMessage        = "new-message"
	EvtMessageSent       = "message-sent"
	EvtMessageEdited     = "message-edited"
	EvtMessageDeleted    = "message-deleted"
	EvtReactionAdded     = "reaction-added"
	EvtReactionRemoved   = "reaction-removed"
	EvtUserTyping        = "user-typing"
	EvtUserStoppedTyping = "user-stopped-typing"
	EvtUserStatusUpdated = "user-status-updated"
	EvtMessagesRead      = "messages-read"
	EvtError             = "error"
	EvtTokenRefreshed    = "token-refreshed"
)

// Envelope is the frame exchanged on the socket in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outboundEnvelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Command is one decoded client command. The set of implementations is closed.
type Command interface {
	Kind() string
	Validate() *errs.CustomError
	isCommand()
}

type JoinRoom struct {
	RoomID string `json:"roomId"`
}

type LeaveRoom struct {
	RoomID string `json:"roomId"`
}

type SendMessage struct {
	RoomID      string             `json:"roomId"`
	Content     string             `json:"content"`
	MessageType store.MessageType  `json:"messageType"`
	ReplyTo     *string            `json:"replyTo,omitempty"`
	TempID      string             `json:"tempId,omitempty"`
	Attachments []store.Attachment `json:"attachments,omitempty"`
	Mentions    []store.Mention    `json:"mentions,omitempty"`
}

type EditMessage struct {
	MessageID string `json:"messageId"`
	Content   string `json:"content"`
}

type DeleteMessage struct {
	MessageID string `json:"messageId"`
}

type AddReaction struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

type RemoveReaction struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

type TypingStart struct {
	RoomID string `json:"roomId"`
}

type TypingStop struct {
	RoomID string `json:"roomId"`
}

type UpdateStatus struct {
	Status user.Status `json:"status"`
}

type MarkMessagesRead struct {
	RoomID     string   `json:"roomId"`
	MessageIDs []string `json:"messageIds"`
}

func (JoinRoom) Kind() string         { return CmdJoinRoom }
func (LeaveRoom) Kind() string        { return CmdLeaveRoom }
func (SendMessage) Kind() string      { return CmdSendMessage }
func (EditMessage) Kind() string      { return CmdEditMessage }
func (DeleteMessage) Kind() string    { return CmdDeleteMessage }
func (AddReaction) Kind() string      { return CmdAddReaction }
func (RemoveReaction) Kind() string   { return CmdRemoveReaction }
func (TypingStart) Kind() string      { return CmdTypingStart }
func (TypingStop) Kind() string       { return CmdTypingStop }
func (UpdateStatus) Kind() string     { return CmdUpdateStatus }
func (MarkMessagesRead) Kind() string { return CmdMarkMessagesRead }

func (JoinRoom) isCommand()         {}
func (LeaveRoom) isCommand()        {}
func (SendMessage) isCommand()      {}
func (EditMessage) isCommand()      {}
func (DeleteMessage) isCommand()    {}
func (AddReaction) isCommand()      {}
func (RemoveReaction) isCommand()   {}
func (TypingStart) isCommand()      {}
func (TypingStop) isCommand()       {}
func (UpdateStatus) isCommand()     {}
func (MarkMessagesRead) isCommand() {}

// DecodeCommand parses one inbound frame into its command and validates it.
// Nothing reaches the stores unless this succeeds.
func DecodeCommand(frame []byte) (Command, *errs.CustomError) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, errs.NewError(errs.ErrInvalidJSONFormat)
	}

	var cmd Command
	switch env.Type {
	case CmdJoinRoom:
		cmd = decodePayload[JoinRoom](env.Payload)
	case CmdLeaveRoom:
		cmd = decodePayload[LeaveRoom](env.Payload)
	case CmdSendMessage:
		cmd = decodePayload[SendMessage](env.Payload)
	case CmdEditMessage:
		cmd = decodePayload[EditMessage](env.Payload)
	case CmdDeleteMessage:
		cmd = decodePayload[DeleteMessage](env.Payload)
	case CmdAddReaction:
		cmd = decodePayload[AddReaction](env.Payload)
	case CmdRemoveReaction:
		cmd = decodePayload[RemoveReaction](env.Payload)
	case CmdTypingStart:
		cmd = decodePayload[TypingStart](env.Payload)
	case CmdTypingStop:
		cmd = decodePayload[TypingStop](env.Payload)
	case CmdUpdateStatus:
		cmd = decodePayload[UpdateStatus](env.Payload)
	case CmdMarkMessagesRead:
		cmd = decodePayload[MarkMessagesRead](env.Payload)
	default:
		return nil, errs.NewError(errs.ErrUnknownCommand)
	}

	if cmd == nil {
		return nil, errs.NewError(errs.ErrInvalidJSONFormat)
	}

	if customErr := cmd.Validate(); customErr != nil {
		return cmd, customErr
	}
	return cmd, nil
}

// decodePayload returns nil when payload does not decode into T or carries
// a field T does not declare.
func decodePayload[T Command](payload json.RawMessage) Command {
	var cmd T
	if len(payload) == 0 {
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cmd); err != nil {
		return nil
	}
	return cmd
}

func requireID(id string) *errs.CustomError {
	if !randx.IsValidID(id) {
		return errs.NewError(errs.ErrInvalidParams)
	}
	return nil
}

// NormalizeContent trims content and checks its length bounds.
func NormalizeContent(content string) (string, *errs.CustomError) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", errs.NewError(errs.ErrMessageEmpty)
	}
	if utf8.RuneCountInString(trimmed) > MaxContentLength {
		return "", errs.NewError(errs.ErrMessageContentTooLong, MaxContentLength)
	}
	return trimmed, nil
}

func validateEmoji(emoji string) *errs.CustomError {
	e := strings.TrimSpace(emoji)
	if e == "" || utf8.RuneCountInString(e) > MaxEmojiLength {
		return errs.NewError(errs.ErrInvalidEmoji)
	}
	return nil
}

func (c JoinRoom) Validate() *errs.CustomError    { return requireID(c.RoomID) }
func (c LeaveRoom) Validate() *errs.CustomError   { return requireID(c.RoomID) }
func (c TypingStart) Validate() *errs.CustomError { return requireID(c.RoomID) }
func (c TypingStop) Validate() *errs.CustomError  { return requireID(c.RoomID) }

func (c DeleteMessage) Validate() *errs.CustomError { return requireID(c.MessageID) }

func (c EditMessage) Validate() *errs.CustomError {
	if customErr := requireID(c.MessageID); customErr != nil {
		return customErr
	}
	_, customErr := NormalizeContent(c.Content)
	return customErr
}

func (c AddReaction) Validate() *errs.CustomError {
	if customErr := requireID(c.MessageID); customErr != nil {
		return customErr
	}
	return validateEmoji(c.Emoji)
}

func (c RemoveReaction) Validate() *errs.CustomError {
	if customErr := requireID(c.MessageID); customErr != nil {
		return customErr
	}
	return validateEmoji(c.Emoji)
}

func (c UpdateStatus) Validate() *errs.CustomError {
	if !c.Status.Valid() {
		return errs.NewError(errs.ErrInvalidStatus)
	}
	return nil
}

func (c MarkMessagesRead) Validate() *errs.CustomError {
	if customErr := requireID(c.RoomID); customErr != nil {
		return customErr
	}
	if len(c.MessageIDs) > MaxReadBatch {
		return errs.NewError(errs.ErrInvalidParams)
	}
	for _, id := range c.MessageIDs {
		if !randx.IsValidID(id) {
			return errs.NewError(errs.ErrInvalidParams)
		}
	}
	return nil
}

func (c SendMessage) Validate() *errs.CustomError {
	if customErr := requireID(c.RoomID); customErr != nil {
		return customErr
	}

	content, customErr := NormalizeContent(c.Content)
	if customErr != nil {
		return customErr
	}

	switch c.MessageType {
	case "", store.MessageText, store.MessageImage, store.MessageFile:
	default:
		return errs.NewError(errs.ErrInvalidMessageType)
	}

	if c.ReplyTo != nil && !randx.IsValidID(*c.ReplyTo) {
		return errs.NewError(errs.ErrReplyTargetNotFound)
	}

	if customErr := ValidateAttachments(c.RoomID, c.Attachments); customErr != nil {
		return customErr
	}

	length := utf8.RuneCountInString(content)
	for _, m := range c.Mentions {
		if !randx.IsValidID(m.UserID) || m.StartIndex < 0 || m.EndIndex <= m.StartIndex || m.EndIndex > length {
			return errs.NewError(errs.ErrInvalidMention)
		}
	}

	return nil
}

// UserSummary is the public projection of an identity carried by events.
type UserSummary struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Email  string      `json:"email,omitempty"`
	Avatar string      `json:"avatar,omitempty"`
	Status user.Status `json:"status,omitempty"`
}

func summarize(u user.Identity) UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, Email: u.Email, Avatar: u.Avatar, Status: u.Status}
}

// MessageView is a message populated with its sender for delivery.
type MessageView struct {
	store.Message
	Sender UserSummary `json:"sender"`
}

type JoinedRoomPayload struct {
	RoomID      string           `json:"roomId"`
	ActiveUsers []store.Presence `json:"activeUsers"`
}

type LeftRoomPayload struct {
	RoomID string `json:"roomId"`
}

type UserJoinedRoomPayload struct {
	RoomID      string           `json:"roomId"`
	User        UserSummary      `json:"user"`
	ActiveUsers []store.Presence `json:"activeUsers"`
}

type UserLeftRoomPayload struct {
	RoomID      string           `json:"roomId"`
	UserID      string           `json:"userId"`
	ActiveUsers []store.Presence `json:"activeUsers"`
}

type MessageSentPayload struct {
	TempID  string      `json:"tempId"`
	Message MessageView `json:"message"`
}

type MessageEditedPayload struct {
	MessageID string       `json:"messageId"`
	Content   string       `json:"content"`
	Edited    store.Edited `json:"edited"`
}

type MessageDeletedPayload struct {
	MessageID string `json:"messageId"`
	DeletedBy string `json:"deletedBy"`
}

type ReactionPayload struct {
	MessageID string                         `json:"messageId"`
	UserID    string                         `json:"userId"`
	UserName  string                         `json:"userName"`
	Emoji     string                         `json:"emoji"`
	Reactions map[string]store.ReactionGroup `json:"reactions"`
}

type UserTypingPayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	RoomID   string `json:"roomId"`
}

type UserStoppedTypingPayload struct {
	UserID string `json:"userId"`
	RoomID string `json:"roomId"`
}

type UserStatusPayload struct {
	UserID string      `json:"userId"`
	Status user.Status `json:"status"`
}

type MessagesReadPayload struct {
	UserID     string   `json:"userId"`
	UserName   string   `json:"userName"`
	MessageIDs []string `json:"messageIds"`
}

// ErrorPayload is sent to the originating connection only.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	TempID  string `json:"tempId,omitempty"`
}

// TokenRefreshedPayload carries a replacement access token to a live session.
type TokenRefreshedPayload struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}
