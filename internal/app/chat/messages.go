package chat

import (
	"context"
	"strings"

	"roomchat/internal/app/store"
	"roomchat/internal/app/user"
	"roomchat/internal/pkg/errs"
)

// sendFromSession sends cmd and acknowledges it to the sender's connection.
func (c *Coordinator) sendFromSession(ctx context.Context, s *Session, cmd SendMessage) *errs.CustomError {
	view, customErr := c.Send(ctx, s.identity, cmd)
	if customErr != nil {
		return customErr
	}

	if cmd.TempID != "" {
		c.hub.Send(s, EvtMessageSent, MessageSentPayload{TempID: cmd.TempID, Message: *view})
	}
	return nil
}

// Send persists a new message from actor and fans it out to every connection
// of the room, the sender's own included.
func (c *Coordinator) Send(ctx context.Context, actor user.Identity, cmd SendMessage) (*MessageView, *errs.CustomError) {
	if customErr := cmd.Validate(); customErr != nil {
		return nil, customErr
	}
	content, _ := NormalizeContent(cmd.Content)

	room, customErr := c.memberRoom(ctx, cmd.RoomID, actor.ID)
	if customErr != nil {
		return nil, customErr
	}

	if len(cmd.Attachments) > 0 && !room.Settings.AllowFileSharing {
		return nil, errs.NewError(errs.ErrFileSharingDisabled)
	}

	for _, m := range cmd.Mentions {
		if !room.IsMember(m.UserID) {
			return nil, errs.NewError(errs.ErrInvalidMention)
		}
	}

	if customErr := c.checkUploads(ctx, cmd.Attachments); customErr != nil {
		return nil, customErr
	}

	if cmd.ReplyTo != nil {
		if _, err := c.messages.FindMessageInRoom(ctx, cmd.RoomID, *cmd.ReplyTo); err != nil {
			return nil, storeError(err, errs.ErrReplyTargetNotFound)
		}
	}

	now := c.now()
	msg := &store.Message{
		ID:          c.newID(),
		RoomID:      cmd.RoomID,
		SenderID:    actor.ID,
		Content:     content,
		Type:        MessageTypeFor(cmd.MessageType, cmd.Attachments),
		ReplyTo:     cmd.ReplyTo,
		Reactions:   []store.Reaction{},
		Attachments: nonNil(cmd.Attachments),
		Mentions:    nonNil(cmd.Mentions),
		ReadBy:      []store.ReadReceipt{},
		CreatedAt:   now,
	}

	if err := c.messages.CreateMessage(ctx, msg); err != nil {
		return nil, storeError(err, errs.ErrRoomNotFound)
	}

	if err := c.rooms.TouchActivity(ctx, cmd.RoomID, now); err != nil {
		c.logger.Warn().Err(err).Str("room_id", cmd.RoomID).Msg("Failed to update room activity")
	}

	view := &MessageView{Message: *msg, Sender: summarize(actor)}
	c.hub.EmitToRoom(cmd.RoomID, EvtNewMessage, view)

	return view, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Edit replaces the content of one of actor's own messages while it is
// inside the edit window.
func (c *Coordinator) Edit(ctx context.Context, actor user.Identity, cmd EditMessage) (*store.Message, *errs.CustomError) {
	if customErr := cmd.Validate(); customErr != nil {
		return nil, customErr
	}
	content, _ := NormalizeContent(cmd.Content)

	msg, err := c.messages.FindMessage(ctx, cmd.MessageID)
	if err != nil {
		return nil, storeError(err, errs.ErrMessageNotFound)
	}

	if msg.SenderID != actor.ID {
		return nil, errs.NewError(errs.ErrNotMessageSender)
	}

	now := c.now()
	if now.Sub(msg.CreatedAt) > c.editWindow {
		return nil, errs.NewError(errs.ErrEditWindowExpired)
	}

	updated, err := c.messages.EditMessage(ctx, msg.ID, content, now)
	if err != nil {
		return nil, storeError(err, errs.ErrMessageNotFound)
	}

	c.hub.EmitToRoom(updated.RoomID, EvtMessageEdited, MessageEditedPayload{
		MessageID: updated.ID,
		Content:   updated.Content,
		Edited:    updated.Edited,
	})

	return updated, nil
}

// Delete soft-deletes a message. The sender and the room's admins and
// moderators may delete.
func (c *Coordinator) Delete(ctx context.Context, actor user.Identity, cmd DeleteMessage) *errs.CustomError {
	if customErr := cmd.Validate(); customErr != nil {
		return customErr
	}

	msg, err := c.messages.FindMessage(ctx, cmd.MessageID)
	if err != nil {
		return storeError(err, errs.ErrMessageNotFound)
	}

	if msg.SenderID != actor.ID {
		room, err := c.rooms.FindRoom(ctx, msg.RoomID)
		if err != nil {
			return storeError(err, errs.ErrRoomNotFound)
		}
		if !room.IsAdminOrModerator(actor.ID) {
			return errs.NewError(errs.ErrDeleteForbidden)
		}
	}

	if err := c.messages.SoftDelete(ctx, msg.ID, actor.ID, c.now()); err != nil {
		return storeError(err, errs.ErrMessageNotFound)
	}

	c.hub.EmitToRoom(msg.RoomID, EvtMessageDeleted, MessageDeletedPayload{
		MessageID: msg.ID,
		DeletedBy: actor.ID,
	})
	return nil
}

// reactionTarget loads a live message and checks that actor belongs to its room.
func (c *Coordinator) reactionTarget(ctx context.Context, actor user.Identity, messageID string) (*store.Message, *errs.CustomError) {
	msg, err := c.messages.FindMessage(ctx, messageID)
	if err != nil {
		return nil, storeError(err, errs.ErrMessageNotFound)
	}

	if _, customErr := c.memberRoom(ctx, msg.RoomID, actor.ID); customErr != nil {
		return nil, customErr
	}
	return msg, nil
}

// React records actor's emoji on a message. One reaction is kept per
// (user, emoji), so repeating a reaction only refreshes it.
func (c *Coordinator) React(ctx context.Context, actor user.Identity, cmd AddReaction) (map[string]store.ReactionGroup, *errs.CustomError) {
	if customErr := cmd.Validate(); customErr != nil {
		return nil, customErr
	}
	emoji := strings.TrimSpace(cmd.Emoji)

	msg, customErr := c.reactionTarget(ctx, actor, cmd.MessageID)
	if customErr != nil {
		return nil, customErr
	}

	reactions, err := c.messages.UpsertReaction(ctx, msg.ID, store.Reaction{
		UserID:    actor.ID,
		Emoji:     emoji,
		CreatedAt: c.now(),
	})
	if err != nil {
		return nil, storeError(err, errs.ErrMessageNotFound)
	}

	summary := store.SummarizeReactions(reactions)
	c.hub.EmitToRoom(msg.RoomID, EvtReactionAdded, ReactionPayload{
		MessageID: msg.ID,
		UserID:    actor.ID,
		UserName:  actor.Name,
		Emoji:     emoji,
		Reactions: summary,
	})
	return summary, nil
}

// Unreact drops actor's emoji from a message.
func (c *Coordinator) Unreact(ctx context.Context, actor user.Identity, cmd RemoveReaction) (map[string]store.ReactionGroup, *errs.CustomError) {
	if customErr := cmd.Validate(); customErr != nil {
		return nil, customErr
	}
	emoji := strings.TrimSpace(cmd.Emoji)

	msg, customErr := c.reactionTarget(ctx, actor, cmd.MessageID)
	if customErr != nil {
		return nil, customErr
	}

	reactions, err := c.messages.RemoveReaction(ctx, msg.ID, actor.ID, emoji)
	if err != nil {
		return nil, storeError(err, errs.ErrMessageNotFound)
	}

	summary := store.SummarizeReactions(reactions)
	c.hub.EmitToRoom(msg.RoomID, EvtReactionRemoved, ReactionPayload{
		MessageID: msg.ID,
		UserID:    actor.ID,
		UserName:  actor.Name,
		Emoji:     emoji,
		Reactions: summary,
	})
	return summary, nil
}

// MarkRead records read receipts of actor. Receipts are best effort: a store
// failure is logged and not reported. originConnID, when set, is excluded
// from the broadcast.
func (c *Coordinator) MarkRead(ctx context.Context, actor user.Identity, roomID string, messageIDs []string, originConnID string) ([]string, *errs.CustomError) {
	room, customErr := c.memberRoom(ctx, roomID, actor.ID)
	if customErr != nil {
		return nil, customErr
	}

	marked, err := c.messages.MarkRead(ctx, room.ID, actor.ID, messageIDs, c.now())
	if err != nil {
		c.logger.Error().Err(err).Str("room_id", roomID).Str("user_id", actor.ID).Msg("Failed to record read receipts")
		return []string{}, nil
	}

	if len(marked) == 0 {
		return marked, nil
	}

	c.hub.EmitToRoom(roomID, EvtMessagesRead, MessagesReadPayload{
		UserID:     actor.ID,
		UserName:   actor.Name,
		MessageIDs: marked,
	}, ExcludeConnection(originConnID))

	return marked, nil
}
