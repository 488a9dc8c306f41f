package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"roomchat/internal/app/store"
	"roomchat/internal/app/store/memstore"
	"roomchat/internal/pkg/limiter"
)

// interleavingStore runs beforeUpsert once, right before the next presence upsert.
type interleavingStore struct {
	*memstore.Store
	beforeUpsert func()
}

func (s *interleavingStore) UpsertPresence(ctx context.Context, roomID string, p store.Presence) ([]store.Presence, error) {
	if hook := s.beforeUpsert; hook != nil {
		s.beforeUpsert = nil
		hook()
	}
	return s.Store.UpsertPresence(ctx, roomID, p)
}

func TestDisconnect_HandoverTargetLeavesMeanwhile(t *testing.T) {
	e := newTestEnv(t)
	interleaved := &interleavingStore{Store: e.store}
	throttle := limiter.NewCommandThrottle(limiter.DefaultCommandCooldown).WithClock(e.clock.Now)
	e.coord = NewCoordinator(interleaved, e.registry, e.hub, throttle, WithClock(e.clock.Now))

	alice, carol := e.newUser("alice"), e.newUser("carol")
	room := e.newRoom(alice, carol)

	first, _ := e.connect(alice)
	second, _ := e.connect(alice)
	sc, outC := e.connect(carol)
	e.join(sc, room.ID)
	e.join(second, room.ID)
	e.join(first, room.ID)

	// second leaves between the handover lookup and the handover write
	interleaved.beforeUpsert = func() { e.coord.Disconnect(e.ctx, second) }
	outC.reset()

	e.coord.Disconnect(e.ctx, first)

	assert.Equal(t, []string{carol.ID}, presenceUsers(e.presence(room.ID)))

	assert.Equal(t, 1, outC.count(EvtUserLeftRoom))
	left := lastEvent[UserLeftRoomPayload](t, outC, EvtUserLeftRoom)
	assert.Equal(t, alice.ID, left.UserID)
	assert.Equal(t, []string{carol.ID}, presenceUsers(left.ActiveUsers))
}

func TestDisconnect_HandsPresenceToRemainingConnection(t *testing.T) {
	e := newTestEnv(t)
	alice, carol := e.newUser("alice"), e.newUser("carol")
	room := e.newRoom(alice, carol)

	first, _ := e.connect(alice)
	second, _ := e.connect(alice)
	sc, outC := e.connect(carol)
	e.join(sc, room.ID)
	e.join(second, room.ID)
	e.join(first, room.ID)
	outC.reset()

	e.coord.Disconnect(e.ctx, first)

	assert.Zero(t, outC.count(EvtUserLeftRoom))
	for _, p := range e.presence(room.ID) {
		if p.UserID == alice.ID {
			assert.Equal(t, second.ID, p.ConnectionID)
		}
	}
	assert.ElementsMatch(t, []string{alice.ID, carol.ID}, presenceUsers(e.presence(room.ID)))
}
