package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomchat/internal/app/store"
	"roomchat/internal/app/user"
)

func newTestStore(t *testing.T) *PgStore {
	t.Helper()

	dsn := os.Getenv("DATABASE_TEST_URL")
	if dsn == "" {
		t.Skip("DATABASE_TEST_URL not set")
	}

	pool, err := NewPool(context.Background(), dsn)
	require.NoError(t, err)

	st := New(pool)
	t.Cleanup(st.Close)
	return st
}

func seedAccount(t *testing.T, st *PgStore, name string) *user.Account {
	t.Helper()

	id := uuid.NewString()
	account := &user.Account{
		Identity: user.Identity{
			ID:       id,
			Name:     name,
			Email:    name + "-" + id + "@example.com",
			Role:     user.RoleMember,
			Status:   user.StatusOffline,
			IsActive: true,
		},
		PasswordHash: "hash",
	}
	require.NoError(t, st.CreateUser(context.Background(), account))
	return account
}

func TestPgStore_BatchLoadsByID(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	alice := seedAccount(t, st, "alice")
	bob := seedAccount(t, st, "bob")

	room := &store.Room{
		ID:           uuid.NewString(),
		Name:         "pg room",
		Type:         store.RoomPublic,
		CreatorID:    alice.ID,
		MaxMembers:   10,
		Settings:     store.DefaultRoomSettings(),
		LastActivity: now,
		CreatedAt:    now,
	}
	require.NoError(t, st.CreateRoom(ctx, room))
	require.NoError(t, st.AddMember(ctx, room.ID, store.Member{UserID: bob.ID, Role: store.MemberRoleMember, JoinedAt: now}))

	rooms, err := st.ListRoomsForUser(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Len(t, rooms[0].Members, 2)

	msg := &store.Message{
		ID:        uuid.NewString(),
		RoomID:    room.ID,
		SenderID:  alice.ID,
		Content:   "hi",
		Type:      store.MessageText,
		CreatedAt: now,
	}
	require.NoError(t, st.CreateMessage(ctx, msg))

	_, err = st.UpsertReaction(ctx, msg.ID, store.Reaction{UserID: bob.ID, Emoji: "👍", CreatedAt: now})
	require.NoError(t, err)

	marked, err := st.MarkRead(ctx, room.ID, bob.ID, []string{msg.ID}, now)
	require.NoError(t, err)
	assert.Equal(t, []string{msg.ID}, marked)

	msgs, total, err := st.ListMessages(ctx, room.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Reactions, 1)
	assert.Equal(t, bob.ID, msgs[0].Reactions[0].UserID)
	require.Len(t, msgs[0].ReadBy, 1)
	assert.Equal(t, bob.ID, msgs[0].ReadBy[0].UserID)
}
