/*
Package store defines the durable data model of rooms, messages and user
presence fields, and the operations the chat core needs from a backing store.

Implementations must make list mutations (members, presence entries,
reactions, read receipts) atomic at the store layer; callers never
read-modify-write these lists themselves.
*/
package store

import (
	"context"
	"errors"
	"time"

	"roomchat/internal/app/user"
)

var (
	// ErrNotFound is returned when a room, message or user does not exist,
	// is inactive, or is soft-deleted where the operation excludes deleted rows.
	ErrNotFound = errors.New("store: not found")

	// ErrRoomFull is returned by AddMember when the room is at capacity.
	ErrRoomFull = errors.New("store: room is full")

	// ErrAlreadyMember is returned by AddMember when the user is already a member.
	ErrAlreadyMember = errors.New("store: already a member")

	// ErrDuplicate is returned when a unique attribute (such as an email) is taken.
	ErrDuplicate = errors.New("store: duplicate")
)

// RoomStore persists rooms, their member lists and their active-presence lists.
type RoomStore interface {
	// CreateRoom inserts room and adds its creator as an admin member.
	// ID, CreatedAt and LastActivity must be set by the caller.
	CreateRoom(ctx context.Context, room *Room) error

	// FindRoom returns an active room with its members. Inactive rooms yield ErrNotFound.
	FindRoom(ctx context.Context, roomID string) (*Room, error)

	// ListPublicRooms returns active public rooms ordered by last activity, newest first.
	ListPublicRooms(ctx context.Context, limit, offset int) ([]Room, error)

	// ListRoomsForUser returns the active rooms userID is a member of.
	ListRoomsForUser(ctx context.Context, userID string) ([]Room, error)

	// AddMember appends m to the member list unless the room is full or m.UserID is already present.
	AddMember(ctx context.Context, roomID string, m Member) error

	// RemoveMember drops userID from the member list and from the active-presence list.
	RemoveMember(ctx context.Context, roomID, userID string) error

	// UpsertPresence replaces any presence entry for p.UserID with p and returns the refreshed list.
	UpsertPresence(ctx context.Context, roomID string, p Presence) ([]Presence, error)

	// RemovePresenceByConnection drops the entry owned by connID. removed is
	// false when no such entry existed (for example it was replaced by a newer connection).
	RemovePresenceByConnection(ctx context.Context, roomID, connID string) (active []Presence, removed bool, err error)

	// ListPresence returns the active-presence list of a room.
	ListPresence(ctx context.Context, roomID string) ([]Presence, error)

	// TouchActivity sets the room's last activity timestamp.
	TouchActivity(ctx context.Context, roomID string, at time.Time) error

	// DeactivateRoom soft-deletes a room.
	DeactivateRoom(ctx context.Context, roomID string) error
}

// MessageStore persists messages and their edit, delete, reaction and read sub-state.
type MessageStore interface {
	// CreateMessage inserts msg. ID and CreatedAt must be set by the caller.
	CreateMessage(ctx context.Context, msg *Message) error

	// FindMessage returns a message that is not soft-deleted.
	FindMessage(ctx context.Context, messageID string) (*Message, error)

	// FindMessageInRoom returns a message scoped to roomID that is not soft-deleted.
	FindMessageInRoom(ctx context.Context, roomID, messageID string) (*Message, error)

	// ListMessages returns one page of non-deleted messages, newest first, and the total count.
	ListMessages(ctx context.Context, roomID string, page, limit int) ([]Message, int, error)

	// EditMessage replaces the content. The original content is captured on the first edit only.
	EditMessage(ctx context.Context, messageID, content string, at time.Time) (*Message, error)

	// SoftDelete marks the message deleted by deleterID.
	SoftDelete(ctx context.Context, messageID, deleterID string, at time.Time) error

	// UpsertReaction replaces the (r.UserID, r.Emoji) reaction and returns the full reaction list.
	UpsertReaction(ctx context.Context, messageID string, r Reaction) ([]Reaction, error)

	// RemoveReaction drops the (userID, emoji) reaction and returns the remaining list.
	RemoveReaction(ctx context.Context, messageID, userID, emoji string) ([]Reaction, error)

	// MarkRead appends a read entry for userID to each listed message of roomID
	// that lacks one, and returns the ids that gained an entry.
	MarkRead(ctx context.Context, roomID, userID string, messageIDs []string, at time.Time) ([]string, error)

	// CountUnread counts non-deleted messages of roomID sent by others and without a read entry from userID.
	CountUnread(ctx context.Context, roomID, userID string) (int, error)
}

// UserStore persists accounts and their presence fields.
type UserStore interface {
	CreateUser(ctx context.Context, account *user.Account) error
	FindUserByID(ctx context.Context, userID string) (*user.Identity, error)
	FindAccountByEmail(ctx context.Context, email string) (*user.Account, error)

	// UpdatePresence sets status and lastSeen.
	UpdatePresence(ctx context.Context, userID string, status user.Status, lastSeen time.Time) error
}

// Store bundles every persistence contract of the application.
type Store interface {
	RoomStore
	MessageStore
	UserStore
	Close()
}
