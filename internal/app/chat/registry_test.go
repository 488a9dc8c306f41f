package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomchat/internal/app/user"
)

func TestRegistry_RegisterUnregister(t *testing.T) {
	r := NewRegistry()
	alice := user.Identity{ID: "alice"}

	s1, first := r.Register(alice, "c1", &fakeOutbox{})
	assert.True(t, first)
	s2, first := r.Register(alice, "c2", &fakeOutbox{})
	assert.False(t, first)

	assert.Equal(t, 2, r.Len())
	assert.ElementsMatch(t, []*Session{s1, s2}, r.SessionsOf("alice"))

	got, ok := r.Lookup("alice")
	require.True(t, ok)
	assert.Same(t, s2, got)

	removed, last := r.Unregister("c2")
	assert.Same(t, s2, removed)
	assert.False(t, last)

	got, ok = r.Lookup("alice")
	require.True(t, ok)
	assert.Same(t, s1, got)

	_, last = r.Unregister("c1")
	assert.True(t, last)

	_, ok = r.Lookup("alice")
	assert.False(t, ok)
	assert.Zero(t, r.Len())
}

func TestRegistry_UnregisterUnknown(t *testing.T) {
	r := NewRegistry()

	s, last := r.Unregister("nope")
	assert.Nil(t, s)
	assert.False(t, last)
}

func TestRegistry_SessionsKeepSeparateRoomSets(t *testing.T) {
	r := NewRegistry()
	alice := user.Identity{ID: "alice"}

	s1, _ := r.Register(alice, "c1", &fakeOutbox{})
	s2, _ := r.Register(alice, "c2", &fakeOutbox{})

	s1.mu.Lock()
	s1.apply("room-1", actionJoin)
	s1.mu.Unlock()

	assert.Equal(t, []string{"room-1"}, s1.JoinedRooms())
	assert.Empty(t, s2.JoinedRooms())
}

func TestSession_TransitionTable(t *testing.T) {
	tests := []struct {
		from    RoomState
		action  roomAction
		allowed bool
		to      RoomState
	}{
		{NotJoined, actionJoin, true, Joined},
		{NotJoined, actionLeave, false, NotJoined},
		{NotJoined, actionDisconnect, false, NotJoined},
		{NotJoined, actionEvict, false, NotJoined},
		{Joined, actionJoin, false, Joined},
		{Joined, actionLeave, true, NotJoined},
		{Joined, actionDisconnect, true, NotJoined},
		{Joined, actionEvict, true, NotJoined},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"/"+string(tt.action), func(t *testing.T) {
			s := newSession("c1", user.Identity{ID: "alice"}, &fakeOutbox{})
			if tt.from == Joined {
				s.apply("room", actionJoin)
			}

			require.Equal(t, tt.allowed, s.permits("room", tt.action))
			if tt.allowed {
				s.apply("room", tt.action)
			}
			assert.Equal(t, tt.to, s.rooms["room"])
		})
	}
}
