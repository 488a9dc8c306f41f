package chat

import (
	"context"
	"strings"
	"unicode/utf8"

	"roomchat/internal/app/store"
	"roomchat/internal/app/user"
	"roomchat/internal/pkg/errs"
)

const (
	MinRoomNameLength    = 3
	MaxRoomNameLength    = 50
	MaxDescriptionLength = 200
	DefaultMessagePage   = 1
	DefaultMessageLimit  = 50
	MaxMessageLimit      = 100
	DefaultRoomLimit     = 20
	MaxRoomLimit         = 100
)

// CreateRoomInput is the request to open a room.
type CreateRoomInput struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Type        store.RoomType     `json:"type"`
	MaxMembers  int                `json:"maxMembers"`
	Settings    *RoomSettingsInput `json:"settings"`
}

// RoomSettingsInput holds the optional overrides of store.DefaultRoomSettings.
type RoomSettingsInput struct {
	AllowInvites     *bool `json:"allowInvites"`
	RequireApproval  *bool `json:"requireApproval"`
	AllowFileSharing *bool `json:"allowFileSharing"`
}

func (in *CreateRoomInput) normalize() *errs.CustomError {
	in.Name = strings.TrimSpace(in.Name)
	if n := utf8.RuneCountInString(in.Name); n < MinRoomNameLength || n > MaxRoomNameLength {
		return errs.NewError(errs.ErrRoomNameInvalid)
	}

	in.Description = strings.TrimSpace(in.Description)
	if utf8.RuneCountInString(in.Description) > MaxDescriptionLength {
		return errs.NewError(errs.ErrRoomSettingsInvalid)
	}

	switch in.Type {
	case "":
		in.Type = store.RoomPublic
	case store.RoomPublic, store.RoomPrivate:
	default:
		return errs.NewError(errs.ErrRoomTypeInvalid)
	}

	if in.MaxMembers == 0 {
		in.MaxMembers = store.DefaultMaxMembers
	}
	if in.MaxMembers < store.MinMaxMembers || in.MaxMembers > store.MaxMaxMembers {
		return errs.NewError(errs.ErrRoomSettingsInvalid)
	}

	return nil
}

func (in *CreateRoomInput) settings() store.RoomSettings {
	settings := store.DefaultRoomSettings()
	if in.Settings == nil {
		return settings
	}
	if in.Settings.AllowInvites != nil {
		settings.AllowInvites = *in.Settings.AllowInvites
	}
	if in.Settings.RequireApproval != nil {
		settings.RequireApproval = *in.Settings.RequireApproval
	}
	if in.Settings.AllowFileSharing != nil {
		settings.AllowFileSharing = *in.Settings.AllowFileSharing
	}
	return settings
}

// CreateRoom opens a room with creator as its admin member.
func (c *Coordinator) CreateRoom(ctx context.Context, creator user.Identity, in CreateRoomInput) (*store.Room, *errs.CustomError) {
	if customErr := in.normalize(); customErr != nil {
		return nil, customErr
	}

	now := c.now()
	room := &store.Room{
		ID:           c.newID(),
		Name:         in.Name,
		Description:  in.Description,
		Type:         in.Type,
		CreatorID:    creator.ID,
		MaxMembers:   in.MaxMembers,
		Settings:     in.settings(),
		LastActivity: now,
		CreatedAt:    now,
	}

	if err := c.rooms.CreateRoom(ctx, room); err != nil {
		return nil, storeError(err, errs.ErrUserNotFound)
	}

	c.logger.Info().Str("room_id", room.ID).Str("creator_id", creator.ID).Str("type", string(room.Type)).Msg("Room created.")
	return room, nil
}

// GetRoom returns a room. Private rooms are visible to their members only.
func (c *Coordinator) GetRoom(ctx context.Context, viewer user.Identity, roomID string) (*store.Room, *errs.CustomError) {
	room, err := c.rooms.FindRoom(ctx, roomID)
	if err != nil {
		return nil, storeError(err, errs.ErrRoomNotFound)
	}
	if room.Type == store.RoomPrivate && !room.IsMember(viewer.ID) {
		return nil, errs.NewError(errs.ErrNotRoomMember)
	}
	return room, nil
}

// AddMember makes actor a durable member of a public room.
func (c *Coordinator) AddMember(ctx context.Context, actor user.Identity, roomID string) (*store.Room, *errs.CustomError) {
	room, err := c.rooms.FindRoom(ctx, roomID)
	if err != nil {
		return nil, storeError(err, errs.ErrRoomNotFound)
	}
	if room.Type == store.RoomPrivate && !room.IsMember(actor.ID) {
		return nil, errs.NewError(errs.ErrNotRoomMember)
	}

	now := c.now()
	err = c.rooms.AddMember(ctx, roomID, store.Member{
		UserID:   actor.ID,
		Role:     store.MemberRoleMember,
		JoinedAt: now,
	})
	if err != nil {
		return nil, storeError(err, errs.ErrRoomNotFound)
	}

	if err := c.rooms.TouchActivity(ctx, roomID, now); err != nil {
		c.logger.Warn().Err(err).Str("room_id", roomID).Msg("Failed to update room activity")
	}

	room, err = c.rooms.FindRoom(ctx, roomID)
	if err != nil {
		return nil, storeError(err, errs.ErrRoomNotFound)
	}
	return room, nil
}

// RemoveMember ends actor's durable membership. The creator cannot leave.
// Live connections of actor in the room are evicted so that presence stays
// a subset of membership.
func (c *Coordinator) RemoveMember(ctx context.Context, actor user.Identity, roomID string) *errs.CustomError {
	room, customErr := c.memberRoom(ctx, roomID, actor.ID)
	if customErr != nil {
		return customErr
	}
	if room.CreatorID == actor.ID {
		return errs.NewError(errs.ErrCreatorCannotLeave)
	}

	if err := c.rooms.RemoveMember(ctx, roomID, actor.ID); err != nil {
		return storeError(err, errs.ErrRoomNotFound)
	}

	c.evict(ctx, roomID, actor.ID)
	return nil
}

// evict moves every live connection of userID in roomID to not-joined.
func (c *Coordinator) evict(ctx context.Context, roomID, userID string) {
	evicted := 0
	for _, s := range c.registry.SessionsOf(userID) {
		s.mu.Lock()
		if s.permits(roomID, actionEvict) {
			c.hub.Unsubscribe(roomID, s.ID)
			s.apply(roomID, actionEvict)
			c.hub.Send(s, EvtLeftRoom, LeftRoomPayload{RoomID: roomID})
			evicted++
		}
		s.mu.Unlock()
	}

	if evicted == 0 {
		return
	}

	active, err := c.rooms.ListPresence(ctx, roomID)
	if err != nil {
		c.logger.Error().Err(err).Str("room_id", roomID).Msg("Failed to list presence after eviction")
		return
	}

	c.hub.EmitToRoom(roomID, EvtUserLeftRoom, UserLeftRoomPayload{
		RoomID:      roomID,
		UserID:      userID,
		ActiveUsers: active,
	})
}

// DeactivateRoom soft-deletes a room. Only room admins may do it. Every
// connection still in the room is moved to not-joined and told so.
func (c *Coordinator) DeactivateRoom(ctx context.Context, actor user.Identity, roomID string) *errs.CustomError {
	room, customErr := c.memberRoom(ctx, roomID, actor.ID)
	if customErr != nil {
		return customErr
	}

	m, _ := room.Member(actor.ID)
	if m.Role != store.MemberRoleAdmin {
		return errs.NewError(errs.ErrNotRoomAdmin)
	}

	if err := c.rooms.DeactivateRoom(ctx, roomID); err != nil {
		return storeError(err, errs.ErrRoomNotFound)
	}

	for _, s := range c.hub.CloseRoom(roomID) {
		s.mu.Lock()
		if s.permits(roomID, actionEvict) {
			s.apply(roomID, actionEvict)
			c.hub.Send(s, EvtLeftRoom, LeftRoomPayload{RoomID: roomID})
		}
		s.mu.Unlock()
	}

	c.logger.Info().Str("room_id", roomID).Str("actor_id", actor.ID).Msg("Room deactivated.")
	return nil
}

// ListRooms returns one page of active public rooms.
func (c *Coordinator) ListRooms(ctx context.Context, page, limit int) ([]store.Room, *errs.CustomError) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > MaxRoomLimit {
		limit = DefaultRoomLimit
	}

	rooms, err := c.rooms.ListPublicRooms(ctx, limit, (page-1)*limit)
	if err != nil {
		return nil, storeError(err, errs.ErrRoomNotFound)
	}
	return rooms, nil
}

// ListRoomsForUser returns the active rooms actor belongs to.
func (c *Coordinator) ListRoomsForUser(ctx context.Context, actor user.Identity) ([]store.Room, *errs.CustomError) {
	rooms, err := c.rooms.ListRoomsForUser(ctx, actor.ID)
	if err != nil {
		return nil, storeError(err, errs.ErrRoomNotFound)
	}
	return rooms, nil
}

// MessagePage is one page of a room's history, oldest first.
type MessagePage struct {
	Messages    []store.Message `json:"messages"`
	Page        int             `json:"page"`
	Limit       int             `json:"limit"`
	Total       int             `json:"total"`
	HasMore     bool            `json:"hasMore"`
	UnreadCount int             `json:"unreadCount"`
}

// ListMessages returns one page of history and marks its messages read for actor.
func (c *Coordinator) ListMessages(ctx context.Context, actor user.Identity, roomID string, page, limit int) (*MessagePage, *errs.CustomError) {
	if _, customErr := c.memberRoom(ctx, roomID, actor.ID); customErr != nil {
		return nil, customErr
	}

	if page < 1 {
		page = DefaultMessagePage
	}
	if limit < 1 || limit > MaxMessageLimit {
		limit = DefaultMessageLimit
	}

	msgs, total, err := c.messages.ListMessages(ctx, roomID, page, limit)
	if err != nil {
		return nil, storeError(err, errs.ErrRoomNotFound)
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	unread := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.SenderID != actor.ID && !readBy(m, actor.ID) {
			unread = append(unread, m.ID)
		}
	}
	if len(unread) > 0 {
		if _, customErr := c.MarkRead(ctx, actor, roomID, unread, ""); customErr != nil {
			return nil, customErr
		}
	}

	count, err := c.messages.CountUnread(ctx, roomID, actor.ID)
	if err != nil {
		c.logger.Warn().Err(err).Str("room_id", roomID).Msg("Failed to count unread messages")
	}

	return &MessagePage{
		Messages:    msgs,
		Page:        page,
		Limit:       limit,
		Total:       total,
		HasMore:     page*limit < total,
		UnreadCount: count,
	}, nil
}

func readBy(m store.Message, userID string) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}
