package chat

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"roomchat/internal/app/user"
	"roomchat/internal/pkg/logx"
)

// Outbox is the write side of a live connection. Enqueue must not block; it
// returns false when the frame could not be queued.
type Outbox interface {
	Enqueue(frame []byte) bool

	// Shutdown closes the connection with a WebSocket close code. It must be
	// safe to call more than once and from any goroutine.
	Shutdown(code int, reason string)
}

// RoomState is the state of one (connection, room) pair.
type RoomState int

const (
	NotJoined RoomState = iota
	Joined
)

func (s RoomState) String() string {
	if s == Joined {
		return "joined"
	}
	return "not-joined"
}

type roomAction string

const (
	actionJoin       roomAction = "join"
	actionLeave      roomAction = "leave"
	actionDisconnect roomAction = "disconnect"
	actionEvict      roomAction = "evict"
)

// transitions is the complete state table of a (connection, room) pair.
// A pair absent from the table is a no-op.
var transitions = map[RoomState]map[roomAction]RoomState{
	NotJoined: {
		actionJoin: Joined,
	},
	Joined: {
		actionLeave:      NotJoined,
		actionDisconnect: NotJoined,
		actionEvict:      NotJoined,
	},
}

// Session is one authenticated live connection and the rooms it has joined.
type Session struct {
	// ID is the connection id.
	ID string

	// seq orders sessions of the same identity by registration time.
	seq uint64

	outbox Outbox
	logger zerolog.Logger

	// mu is held for the whole of each command on this connection, which
	// serializes the connection's commands and guards the fields below.
	mu       sync.Mutex
	identity user.Identity
	rooms    map[string]RoomState
	closed   bool
}

func newSession(connID string, identity user.Identity, outbox Outbox) *Session {
	return &Session{
		ID:       connID,
		outbox:   outbox,
		identity: identity,
		rooms:    make(map[string]RoomState),
		logger: logx.Logger().With().
			Str("conn_id", connID).
			Str("user_id", identity.ID).
			Logger(),
	}
}

// Identity returns a copy of the bound identity.
func (s *Session) Identity() user.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// UserID returns the bound identity id. It never changes for a session.
func (s *Session) UserID() string {
	return s.identity.ID
}

// State returns the state of the session in roomID.
func (s *Session) State(roomID string) RoomState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rooms[roomID]
}

// JoinedRooms returns the ids of the rooms in the Joined state, sorted.
func (s *Session) JoinedRooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joinedRoomsLocked()
}

func (s *Session) joinedRoomsLocked() []string {
	ids := make([]string, 0, len(s.rooms))
	for id, state := range s.rooms {
		if state == Joined {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// permits reports whether action has a transition from the current state. Callers hold mu.
func (s *Session) permits(roomID string, action roomAction) bool {
	_, ok := transitions[s.rooms[roomID]][action]
	return ok
}

// apply performs action on roomID. Callers hold mu and have checked permits.
func (s *Session) apply(roomID string, action roomAction) {
	next := transitions[s.rooms[roomID]][action]
	if next == NotJoined {
		delete(s.rooms, roomID)
		return
	}
	s.rooms[roomID] = next
}
