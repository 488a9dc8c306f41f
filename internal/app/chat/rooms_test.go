package chat

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomchat/internal/app/store"
	"roomchat/internal/pkg/errs"
)

func TestCreateRoom_Validation(t *testing.T) {
	e := newTestEnv(t)
	alice := e.newUser("alice")

	tests := []struct {
		name     string
		in       CreateRoomInput
		wantCode int
	}{
		{"name too short", CreateRoomInput{Name: " ab "}, errs.ErrRoomNameInvalid},
		{"name too long", CreateRoomInput{Name: strings.Repeat("n", MaxRoomNameLength+1)}, errs.ErrRoomNameInvalid},
		{"description too long", CreateRoomInput{Name: "ok room", Description: strings.Repeat("d", MaxDescriptionLength+1)}, errs.ErrRoomSettingsInvalid},
		{"unknown type", CreateRoomInput{Name: "ok room", Type: "secret"}, errs.ErrRoomTypeInvalid},
		{"capacity below two", CreateRoomInput{Name: "ok room", MaxMembers: 1}, errs.ErrRoomSettingsInvalid},
		{"capacity above limit", CreateRoomInput{Name: "ok room", MaxMembers: store.MaxMaxMembers + 1}, errs.ErrRoomSettingsInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, customErr := e.coord.CreateRoom(e.ctx, alice, tt.in)
			require.NotNil(t, customErr)
			assert.Equal(t, tt.wantCode, customErr.Code)
		})
	}
}

func TestCreateRoom_Defaults(t *testing.T) {
	e := newTestEnv(t)
	alice := e.newUser("alice")

	room, customErr := e.coord.CreateRoom(e.ctx, alice, CreateRoomInput{Name: "  lounge  "})
	require.Nil(t, customErr)

	assert.Equal(t, "lounge", room.Name)
	assert.Equal(t, store.RoomPublic, room.Type)
	assert.Equal(t, store.DefaultMaxMembers, room.MaxMembers)
	assert.Equal(t, store.DefaultRoomSettings(), room.Settings)
	assert.True(t, room.IsActive)

	creator, ok := room.Member(alice.ID)
	require.True(t, ok)
	assert.Equal(t, store.MemberRoleAdmin, creator.Role)
}

func TestAddMember_RoomOfTwo(t *testing.T) {
	e := newTestEnv(t)
	alice, bob, carol := e.newUser("alice"), e.newUser("bob"), e.newUser("carol")

	room := e.newRoomWith(CreateRoomInput{Name: "pair", MaxMembers: 2}, alice)

	_, customErr := e.coord.AddMember(e.ctx, bob, room.ID)
	require.Nil(t, customErr)

	_, customErr = e.coord.AddMember(e.ctx, carol, room.ID)
	require.NotNil(t, customErr)
	assert.Equal(t, errs.ErrRoomIsFull, customErr.Code)

	_, customErr = e.coord.AddMember(e.ctx, bob, room.ID)
	require.NotNil(t, customErr)
	assert.Equal(t, errs.ErrAlreadyRoomMember, customErr.Code)

	stored, err := e.store.FindRoom(e.ctx, room.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Members, 2)
}

func TestPrivateRoom_Visibility(t *testing.T) {
	e := newTestEnv(t)
	alice, bob := e.newUser("alice"), e.newUser("bob")
	room := e.newRoomWith(CreateRoomInput{Name: "hideout", Type: store.RoomPrivate}, alice)

	_, customErr := e.coord.GetRoom(e.ctx, bob, room.ID)
	require.NotNil(t, customErr)
	assert.Equal(t, errs.ErrNotRoomMember, customErr.Code)

	_, customErr = e.coord.AddMember(e.ctx, bob, room.ID)
	require.NotNil(t, customErr)
	assert.Equal(t, errs.ErrNotRoomMember, customErr.Code)

	got, customErr := e.coord.GetRoom(e.ctx, alice, room.ID)
	require.Nil(t, customErr)
	assert.Equal(t, room.ID, got.ID)

	public, customErr := e.coord.ListRooms(e.ctx, 1, 20)
	require.Nil(t, customErr)
	assert.Empty(t, public)
}

func TestRemoveMember_EvictsLiveConnections(t *testing.T) {
	e := newTestEnv(t)
	alice, bob := e.newUser("alice"), e.newUser("bob")
	room := e.newRoom(alice, bob)

	sa, outA := e.connect(alice)
	sb, outB := e.connect(bob)
	e.join(sa, room.ID)
	e.join(sb, room.ID)

	require.Nil(t, e.coord.RemoveMember(e.ctx, bob, room.ID))

	assert.Equal(t, NotJoined, sb.State(room.ID))
	assert.Equal(t, room.ID, lastEvent[LeftRoomPayload](t, outB, EvtLeftRoom).RoomID)

	left := lastEvent[UserLeftRoomPayload](t, outA, EvtUserLeftRoom)
	assert.Equal(t, bob.ID, left.UserID)
	assert.Equal(t, []string{alice.ID}, presenceUsers(left.ActiveUsers))

	stored, err := e.store.FindRoom(e.ctx, room.ID)
	require.NoError(t, err)
	for _, p := range e.presence(room.ID) {
		assert.True(t, stored.IsMember(p.UserID), "presence entry %s is not a member", p.UserID)
	}

	outB.reset()
	e.dispatch(sb, SendMessage{RoomID: room.ID, Content: "still here?"})
	assert.Equal(t, errs.ErrNotRoomMember, lastEvent[ErrorPayload](t, outB, EvtError).Code)
}

func TestRemoveMember_Rejections(t *testing.T) {
	e := newTestEnv(t)
	alice, bob := e.newUser("alice"), e.newUser("bob")
	room := e.newRoom(alice)

	customErr := e.coord.RemoveMember(e.ctx, alice, room.ID)
	require.NotNil(t, customErr)
	assert.Equal(t, errs.ErrCreatorCannotLeave, customErr.Code)

	customErr = e.coord.RemoveMember(e.ctx, bob, room.ID)
	require.NotNil(t, customErr)
	assert.Equal(t, errs.ErrNotRoomMember, customErr.Code)
}

func TestDeactivateRoom(t *testing.T) {
	e := newTestEnv(t)
	alice, bob := e.newUser("alice"), e.newUser("bob")
	room := e.newRoom(alice, bob)

	sa, _ := e.connect(alice)
	sb, outB := e.connect(bob)
	e.join(sa, room.ID)
	e.join(sb, room.ID)

	customErr := e.coord.DeactivateRoom(e.ctx, bob, room.ID)
	require.NotNil(t, customErr)
	assert.Equal(t, errs.ErrNotRoomAdmin, customErr.Code)

	require.Nil(t, e.coord.DeactivateRoom(e.ctx, alice, room.ID))

	assert.Empty(t, sa.JoinedRooms())
	assert.Empty(t, sb.JoinedRooms())
	assert.Zero(t, e.hub.Subscribers(room.ID))
	assert.Equal(t, room.ID, lastEvent[LeftRoomPayload](t, outB, EvtLeftRoom).RoomID)

	_, customErr = e.coord.Send(e.ctx, alice, SendMessage{RoomID: room.ID, Content: "echo"})
	require.NotNil(t, customErr)
	assert.Equal(t, errs.ErrRoomNotFound, customErr.Code)

	e.coord.Disconnect(e.ctx, sa)
	_, ok := e.registry.Get(sa.ID)
	assert.False(t, ok)
}

func TestListMessages_PagesOldestFirstAndMarksRead(t *testing.T) {
	e := newTestEnv(t)
	alice, bob := e.newUser("alice"), e.newUser("bob")
	room := e.newRoom(alice, bob)

	sa, outA := e.connect(alice)
	e.join(sa, room.ID)

	for i := 1; i <= 5; i++ {
		e.send(sa, room.ID, fmt.Sprintf("m%d", i))
		e.clock.Advance(time.Second)
	}
	deleted := e.send(sa, room.ID, "m6")
	require.Nil(t, e.coord.Delete(e.ctx, alice, DeleteMessage{MessageID: deleted.ID}))

	page, customErr := e.coord.ListMessages(e.ctx, bob, room.ID, 1, 3)
	require.Nil(t, customErr)

	contents := make([]string, len(page.Messages))
	for i, m := range page.Messages {
		contents[i] = m.Content
	}
	assert.Equal(t, []string{"m3", "m4", "m5"}, contents)
	assert.Equal(t, 5, page.Total)
	assert.True(t, page.HasMore)
	assert.Equal(t, 2, page.UnreadCount)

	reads := lastEvent[MessagesReadPayload](t, outA, EvtMessagesRead)
	assert.Len(t, reads.MessageIDs, 3)

	page, customErr = e.coord.ListMessages(e.ctx, bob, room.ID, 2, 3)
	require.Nil(t, customErr)
	assert.Len(t, page.Messages, 2)
	assert.False(t, page.HasMore)
	assert.Zero(t, page.UnreadCount)

	_, customErr = e.coord.ListMessages(e.ctx, e.newUser("mallory"), room.ID, 1, 3)
	require.NotNil(t, customErr)
	assert.Equal(t, errs.ErrNotRoomMember, customErr.Code)

	_, customErr = e.coord.ListMessages(e.ctx, bob, uuid.NewString(), 1, 3)
	require.NotNil(t, customErr)
	assert.Equal(t, errs.ErrRoomNotFound, customErr.Code)
}

func TestListRoomsForUser(t *testing.T) {
	e := newTestEnv(t)
	alice, bob := e.newUser("alice"), e.newUser("bob")
	mine := e.newRoomWith(CreateRoomInput{Name: "mine"}, alice, bob)
	e.newRoomWith(CreateRoomInput{Name: "theirs"}, alice)

	rooms, customErr := e.coord.ListRoomsForUser(e.ctx, bob)
	require.Nil(t, customErr)
	require.Len(t, rooms, 1)
	assert.Equal(t, mine.ID, rooms[0].ID)
}
