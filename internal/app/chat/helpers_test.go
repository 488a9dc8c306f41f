package chat

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"roomchat/internal/app/store"
	"roomchat/internal/app/store/memstore"
	"roomchat/internal/app/user"
	"roomchat/internal/pkg/limiter"
	"roomchat/internal/pkg/logx"
)

func TestMain(m *testing.M) {
	logx.UseWriter(os.Stderr, zerolog.Disabled)
	os.Exit(m.Run())
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeOutbox records every frame queued for a connection.
type fakeOutbox struct {
	mu        sync.Mutex
	frames    [][]byte
	full      bool
	closeCode int
}

func (o *fakeOutbox) Enqueue(frame []byte) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.full {
		return false
	}
	o.frames = append(o.frames, frame)
	return true
}

func (o *fakeOutbox) Shutdown(code int, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closeCode == 0 {
		o.closeCode = code
	}
}

func (o *fakeOutbox) types() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	types := make([]string, 0, len(o.frames))
	for _, f := range o.frames {
		var env Envelope
		if err := json.Unmarshal(f, &env); err == nil {
			types = append(types, env.Type)
		}
	}
	return types
}

func (o *fakeOutbox) payloads(event string) []json.RawMessage {
	o.mu.Lock()
	defer o.mu.Unlock()

	var out []json.RawMessage
	for _, f := range o.frames {
		var env Envelope
		if err := json.Unmarshal(f, &env); err == nil && env.Type == event {
			out = append(out, env.Payload)
		}
	}
	return out
}

func (o *fakeOutbox) count(event string) int {
	return len(o.payloads(event))
}

func (o *fakeOutbox) reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.frames = nil
}

func eventsOf[T any](t *testing.T, o *fakeOutbox, event string) []T {
	t.Helper()

	raw := o.payloads(event)
	out := make([]T, 0, len(raw))
	for _, p := range raw {
		var v T
		require.NoError(t, json.Unmarshal(p, &v))
		out = append(out, v)
	}
	return out
}

func lastEvent[T any](t *testing.T, o *fakeOutbox, event string) T {
	t.Helper()

	all := eventsOf[T](t, o, event)
	require.NotEmpty(t, all, "no %s event received", event)
	return all[len(all)-1]
}

type testEnv struct {
	t        *testing.T
	ctx      context.Context
	clock    *fakeClock
	store    *memstore.Store
	registry *Registry
	hub      *Hub
	coord    *Coordinator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	st := memstore.New()
	registry := NewRegistry()
	hub := NewHub()
	throttle := limiter.NewCommandThrottle(limiter.DefaultCommandCooldown).WithClock(clock.Now)

	return &testEnv{
		t:        t,
		ctx:      context.Background(),
		clock:    clock,
		store:    st,
		registry: registry,
		hub:      hub,
		coord:    NewCoordinator(st, registry, hub, throttle, WithClock(clock.Now)),
	}
}

func (e *testEnv) newUser(name string) user.Identity {
	e.t.Helper()

	account := &user.Account{
		Identity: user.Identity{
			ID:     uuid.NewString(),
			Name:   name,
			Email:  name + "@example.com",
			Role:   user.RoleMember,
			Status: user.StatusOffline,
		},
		PasswordHash: "hash",
	}
	require.NoError(e.t, e.store.CreateUser(e.ctx, account))
	return account.Identity
}

func (e *testEnv) newRoom(creator user.Identity, members ...user.Identity) *store.Room {
	e.t.Helper()
	return e.newRoomWith(CreateRoomInput{Name: "general", Type: store.RoomPublic}, creator, members...)
}

func (e *testEnv) newRoomWith(in CreateRoomInput, creator user.Identity, members ...user.Identity) *store.Room {
	e.t.Helper()

	room, customErr := e.coord.CreateRoom(e.ctx, creator, in)
	require.Nil(e.t, customErr)

	for _, m := range members {
		_, customErr := e.coord.AddMember(e.ctx, m, room.ID)
		require.Nil(e.t, customErr)
	}
	return room
}

func (e *testEnv) connect(u user.Identity) (*Session, *fakeOutbox) {
	e.t.Helper()

	out := &fakeOutbox{}
	s := e.coord.Connect(e.ctx, u, uuid.NewString(), out)
	return s, out
}

func (e *testEnv) dispatch(s *Session, cmd Command) {
	e.coord.Dispatch(e.ctx, s, cmd)
}

// join dispatches join-room and then moves the clock past the command cooldown.
func (e *testEnv) join(s *Session, roomID string) {
	e.dispatch(s, JoinRoom{RoomID: roomID})
	e.clock.Advance(limiter.DefaultCommandCooldown)
}

func (e *testEnv) leave(s *Session, roomID string) {
	e.dispatch(s, LeaveRoom{RoomID: roomID})
	e.clock.Advance(limiter.DefaultCommandCooldown)
}

func (e *testEnv) send(s *Session, roomID, content string) MessageView {
	e.t.Helper()

	view, customErr := e.coord.Send(e.ctx, s.Identity(), SendMessage{RoomID: roomID, Content: content})
	require.Nil(e.t, customErr)
	return *view
}

func (e *testEnv) presence(roomID string) []store.Presence {
	e.t.Helper()

	active, err := e.store.ListPresence(e.ctx, roomID)
	require.NoError(e.t, err)
	return active
}

func presenceUsers(active []store.Presence) []string {
	ids := make([]string, len(active))
	for i, p := range active {
		ids[i] = p.UserID
	}
	return ids
}
