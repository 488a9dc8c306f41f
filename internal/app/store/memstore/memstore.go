/*
Package memstore is an in-process implementation of store.Store.

Every mutation runs under one mutex, which gives the same atomicity the
PostgreSQL store gets from conditional statements. It backs the `memory`
store driver and the tests of the chat core.
*/
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"roomchat/internal/app/store"
	"roomchat/internal/app/user"
)

// Store keeps rooms, messages and accounts in memory.
type Store struct {
	mu       sync.RWMutex
	rooms    map[string]*roomRecord
	messages map[string]*store.Message
	accounts map[string]*user.Account
	byEmail  map[string]string
}

type roomRecord struct {
	room     store.Room
	presence []store.Presence
}

var _ store.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		rooms:    make(map[string]*roomRecord),
		messages: make(map[string]*store.Message),
		accounts: make(map[string]*user.Account),
		byEmail:  make(map[string]string),
	}
}

// Close implements store.Store.
func (s *Store) Close() {}

func (s *Store) activeRoom(roomID string) (*roomRecord, error) {
	rec, ok := s.rooms[roomID]
	if !ok || !rec.room.IsActive {
		return nil, store.ErrNotFound
	}
	return rec, nil
}

func copyRoom(r store.Room) store.Room {
	r.Members = append([]store.Member(nil), r.Members...)
	return r
}

func copyPresence(p []store.Presence) []store.Presence {
	return append([]store.Presence{}, p...)
}

func copyMessage(m *store.Message) *store.Message {
	c := *m
	c.Reactions = append([]store.Reaction{}, m.Reactions...)
	c.Attachments = append([]store.Attachment{}, m.Attachments...)
	c.Mentions = append([]store.Mention{}, m.Mentions...)
	c.ReadBy = append([]store.ReadReceipt{}, m.ReadBy...)
	return &c
}

// CreateRoom implements store.RoomStore.
func (s *Store) CreateRoom(ctx context.Context, room *store.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rooms[room.ID]; exists {
		return store.ErrDuplicate
	}

	r := copyRoom(*room)
	r.IsActive = true
	if !r.IsMember(r.CreatorID) {
		r.Members = append(r.Members, store.Member{
			UserID:   r.CreatorID,
			Role:     store.MemberRoleAdmin,
			JoinedAt: r.CreatedAt,
		})
	}

	s.rooms[r.ID] = &roomRecord{room: r}
	*room = copyRoom(r)
	return nil
}

// FindRoom implements store.RoomStore.
func (s *Store) FindRoom(ctx context.Context, roomID string) (*store.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.activeRoom(roomID)
	if err != nil {
		return nil, err
	}

	r := copyRoom(rec.room)
	return &r, nil
}

func (s *Store) listRooms(keep func(*store.Room) bool) []store.Room {
	rooms := make([]store.Room, 0)
	for _, rec := range s.rooms {
		if rec.room.IsActive && keep(&rec.room) {
			rooms = append(rooms, copyRoom(rec.room))
		}
	}
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].LastActivity.After(rooms[j].LastActivity)
	})
	return rooms
}

// ListPublicRooms implements store.RoomStore.
func (s *Store) ListPublicRooms(ctx context.Context, limit, offset int) ([]store.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := s.listRooms(func(r *store.Room) bool { return r.Type == store.RoomPublic })
	if offset >= len(rooms) {
		return []store.Room{}, nil
	}
	rooms = rooms[offset:]
	if limit < len(rooms) {
		rooms = rooms[:limit]
	}
	return rooms, nil
}

// ListRoomsForUser implements store.RoomStore.
func (s *Store) ListRoomsForUser(ctx context.Context, userID string) ([]store.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.listRooms(func(r *store.Room) bool { return r.IsMember(userID) }), nil
}

// AddMember implements store.RoomStore.
func (s *Store) AddMember(ctx context.Context, roomID string, m store.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.activeRoom(roomID)
	if err != nil {
		return err
	}
	if rec.room.IsMember(m.UserID) {
		return store.ErrAlreadyMember
	}
	if len(rec.room.Members) >= rec.room.MaxMembers {
		return store.ErrRoomFull
	}

	rec.room.Members = append(rec.room.Members, m)
	return nil
}

// RemoveMember implements store.RoomStore.
func (s *Store) RemoveMember(ctx context.Context, roomID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.activeRoom(roomID)
	if err != nil {
		return err
	}

	members := rec.room.Members[:0]
	for _, m := range rec.room.Members {
		if m.UserID != userID {
			members = append(members, m)
		}
	}
	rec.room.Members = members

	presence := rec.presence[:0]
	for _, p := range rec.presence {
		if p.UserID != userID {
			presence = append(presence, p)
		}
	}
	rec.presence = presence
	return nil
}

// UpsertPresence implements store.RoomStore.
func (s *Store) UpsertPresence(ctx context.Context, roomID string, p store.Presence) ([]store.Presence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.activeRoom(roomID)
	if err != nil {
		return nil, err
	}
	if !rec.room.IsMember(p.UserID) {
		return nil, store.ErrNotFound
	}

	presence := rec.presence[:0]
	for _, existing := range rec.presence {
		if existing.UserID != p.UserID {
			presence = append(presence, existing)
		}
	}
	rec.presence = append(presence, p)
	rec.room.LastActivity = p.JoinedAt

	return copyPresence(rec.presence), nil
}

// RemovePresenceByConnection implements store.RoomStore.
func (s *Store) RemovePresenceByConnection(ctx context.Context, roomID, connID string) ([]store.Presence, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.activeRoom(roomID)
	if err != nil {
		return nil, false, err
	}

	removed := false
	presence := rec.presence[:0]
	for _, p := range rec.presence {
		if p.ConnectionID == connID {
			removed = true
			continue
		}
		presence = append(presence, p)
	}
	rec.presence = presence

	return copyPresence(rec.presence), removed, nil
}

// ListPresence implements store.RoomStore.
func (s *Store) ListPresence(ctx context.Context, roomID string) ([]store.Presence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.activeRoom(roomID)
	if err != nil {
		return nil, err
	}
	return copyPresence(rec.presence), nil
}

// TouchActivity implements store.RoomStore.
func (s *Store) TouchActivity(ctx context.Context, roomID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.activeRoom(roomID)
	if err != nil {
		return err
	}
	rec.room.LastActivity = at
	return nil
}

// DeactivateRoom implements store.RoomStore.
func (s *Store) DeactivateRoom(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.activeRoom(roomID)
	if err != nil {
		return err
	}
	rec.room.IsActive = false
	rec.presence = nil
	return nil
}

// CreateMessage implements store.MessageStore.
func (s *Store) CreateMessage(ctx context.Context, msg *store.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.messages[msg.ID]; exists {
		return store.ErrDuplicate
	}
	if _, err := s.activeRoom(msg.RoomID); err != nil {
		return err
	}

	s.messages[msg.ID] = copyMessage(msg)
	return nil
}

func (s *Store) liveMessage(messageID string) (*store.Message, error) {
	m, ok := s.messages[messageID]
	if !ok || m.IsDeleted {
		return nil, store.ErrNotFound
	}
	return m, nil
}

// FindMessage implements store.MessageStore.
func (s *Store) FindMessage(ctx context.Context, messageID string) (*store.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, err := s.liveMessage(messageID)
	if err != nil {
		return nil, err
	}
	return copyMessage(m), nil
}

// FindMessageInRoom implements store.MessageStore.
func (s *Store) FindMessageInRoom(ctx context.Context, roomID, messageID string) (*store.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, err := s.liveMessage(messageID)
	if err != nil || m.RoomID != roomID {
		return nil, store.ErrNotFound
	}
	return copyMessage(m), nil
}

// ListMessages implements store.MessageStore.
func (s *Store) ListMessages(ctx context.Context, roomID string, page, limit int) ([]store.Message, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]store.Message, 0)
	for _, m := range s.messages {
		if m.RoomID == roomID && !m.IsDeleted {
			all = append(all, *copyMessage(m))
		}
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := len(all)
	start := (page - 1) * limit
	if start >= total {
		return []store.Message{}, total, nil
	}
	end := min(start+limit, total)
	return all[start:end], total, nil
}

// EditMessage implements store.MessageStore.
func (s *Store) EditMessage(ctx context.Context, messageID, content string, at time.Time) (*store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.liveMessage(messageID)
	if err != nil {
		return nil, err
	}

	if !m.Edited.IsEdited {
		original := m.Content
		m.Edited.OriginalContent = &original
	}
	m.Content = content
	m.Edited.IsEdited = true
	m.Edited.EditedAt = &at

	return copyMessage(m), nil
}

// SoftDelete implements store.MessageStore.
func (s *Store) SoftDelete(ctx context.Context, messageID, deleterID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.liveMessage(messageID)
	if err != nil {
		return err
	}

	m.IsDeleted = true
	m.DeletedAt = &at
	m.DeletedBy = &deleterID
	return nil
}

// UpsertReaction implements store.MessageStore.
func (s *Store) UpsertReaction(ctx context.Context, messageID string, r store.Reaction) ([]store.Reaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.liveMessage(messageID)
	if err != nil {
		return nil, err
	}

	reactions := m.Reactions[:0]
	for _, existing := range m.Reactions {
		if existing.UserID != r.UserID || existing.Emoji != r.Emoji {
			reactions = append(reactions, existing)
		}
	}
	m.Reactions = append(reactions, r)

	return append([]store.Reaction{}, m.Reactions...), nil
}

// RemoveReaction implements store.MessageStore.
func (s *Store) RemoveReaction(ctx context.Context, messageID, userID, emoji string) ([]store.Reaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.liveMessage(messageID)
	if err != nil {
		return nil, err
	}

	reactions := m.Reactions[:0]
	for _, existing := range m.Reactions {
		if existing.UserID != userID || existing.Emoji != emoji {
			reactions = append(reactions, existing)
		}
	}
	m.Reactions = reactions

	return append([]store.Reaction{}, m.Reactions...), nil
}

// MarkRead implements store.MessageStore.
func (s *Store) MarkRead(ctx context.Context, roomID, userID string, messageIDs []string, at time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	marked := make([]string, 0, len(messageIDs))
	for _, id := range messageIDs {
		m, err := s.liveMessage(id)
		if err != nil || m.RoomID != roomID || hasReader(m, userID) {
			continue
		}
		m.ReadBy = append(m.ReadBy, store.ReadReceipt{UserID: userID, ReadAt: at})
		marked = append(marked, id)
	}
	return marked, nil
}

func hasReader(m *store.Message, userID string) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// CountUnread implements store.MessageStore.
func (s *Store) CountUnread(ctx context.Context, roomID, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, m := range s.messages {
		if m.RoomID == roomID && !m.IsDeleted && m.SenderID != userID && !hasReader(m, userID) {
			count++
		}
	}
	return count, nil
}

// CreateUser implements store.UserStore.
func (s *Store) CreateUser(ctx context.Context, account *user.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(account.Email)
	if _, taken := s.byEmail[email]; taken {
		return store.ErrDuplicate
	}
	if _, taken := s.accounts[account.ID]; taken {
		return store.ErrDuplicate
	}

	account.IsActive = true
	a := *account
	a.Email = email
	s.accounts[a.ID] = &a
	s.byEmail[email] = a.ID
	return nil
}

// FindUserByID implements store.UserStore.
func (s *Store) FindUserByID(ctx context.Context, userID string) (*user.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	id := a.Identity
	return &id, nil
}

// FindAccountByEmail implements store.UserStore.
func (s *Store) FindAccountByEmail(ctx context.Context, email string) (*user.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, store.ErrNotFound
	}
	a := *s.accounts[id]
	return &a, nil
}

// UpdatePresence implements store.UserStore.
func (s *Store) UpdatePresence(ctx context.Context, userID string, status user.Status, lastSeen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[userID]
	if !ok {
		return store.ErrNotFound
	}
	a.Status = status
	a.LastSeen = lastSeen
	return nil
}
