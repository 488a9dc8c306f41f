package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"roomchat/internal/app/store"
)

const roomColumns = `id::text, name, description, type, creator_id::text, max_members, is_active,
	allow_invites, require_approval, allow_file_sharing, last_activity, created_at`

func scanRoom(row pgx.Row) (*store.Room, error) {
	var r store.Room
	err := row.Scan(
		&r.ID, &r.Name, &r.Description, &r.Type, &r.CreatorID, &r.MaxMembers, &r.IsActive,
		&r.Settings.AllowInvites, &r.Settings.RequireApproval, &r.Settings.AllowFileSharing,
		&r.LastActivity, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRoom implements store.RoomStore.
func (s *PgStore) CreateRoom(ctx context.Context, room *store.Room) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO rooms (id, name, description, type, creator_id, max_members, is_active,
				allow_invites, require_approval, allow_file_sharing, last_activity, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, $8, $9, $10, $11)`,
			room.ID, room.Name, room.Description, string(room.Type), room.CreatorID, room.MaxMembers,
			room.Settings.AllowInvites, room.Settings.RequireApproval, room.Settings.AllowFileSharing,
			room.LastActivity, room.CreatedAt,
		)
		if err != nil {
			return translate("create room", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO room_members (room_id, user_id, role, joined_at)
			VALUES ($1, $2, 'admin', $3)`,
			room.ID, room.CreatorID, room.CreatedAt,
		)
		if err != nil {
			return translate("add creator", err)
		}

		room.IsActive = true
		room.Members = []store.Member{{UserID: room.CreatorID, Role: store.MemberRoleAdmin, JoinedAt: room.CreatedAt}}
		return nil
	})
}

// FindRoom implements store.RoomStore.
func (s *PgStore) FindRoom(ctx context.Context, roomID string) (*store.Room, error) {
	room, err := scanRoom(s.pool.QueryRow(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE id = $1 AND is_active`, roomID))
	if err != nil {
		return nil, translate("find room", err)
	}

	rooms := []*store.Room{room}
	if err := s.loadMembers(ctx, rooms); err != nil {
		return nil, err
	}
	return room, nil
}

func (s *PgStore) queryRooms(ctx context.Context, op, query string, args ...any) ([]store.Room, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, translate(op, err)
	}
	defer rows.Close()

	ptrs := make([]*store.Room, 0)
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, translate(op, err)
		}
		ptrs = append(ptrs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(op, err)
	}

	if err := s.loadMembers(ctx, ptrs); err != nil {
		return nil, err
	}

	rooms := make([]store.Room, len(ptrs))
	for i, r := range ptrs {
		rooms[i] = *r
	}
	return rooms, nil
}

func (s *PgStore) loadMembers(ctx context.Context, rooms []*store.Room) error {
	if len(rooms) == 0 {
		return nil
	}

	ids := make([]string, len(rooms))
	byID := make(map[string]*store.Room, len(rooms))
	for i, r := range rooms {
		ids[i] = r.ID
		r.Members = []store.Member{}
		byID[r.ID] = r
	}

	rows, err := s.pool.Query(ctx, `
		SELECT room_id::text, user_id::text, role, joined_at
		FROM room_members WHERE room_id = ANY($1::uuid[])
		ORDER BY joined_at`, ids)
	if err != nil {
		return translate("load members", err)
	}
	defer rows.Close()

	for rows.Next() {
		var roomID string
		var m store.Member
		if err := rows.Scan(&roomID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
			return translate("load members", err)
		}
		if r, ok := byID[roomID]; ok {
			r.Members = append(r.Members, m)
		}
	}
	return translate("load members", rows.Err())
}

// ListPublicRooms implements store.RoomStore.
func (s *PgStore) ListPublicRooms(ctx context.Context, limit, offset int) ([]store.Room, error) {
	return s.queryRooms(ctx, "list public rooms", `
		SELECT `+roomColumns+` FROM rooms
		WHERE type = 'public' AND is_active
		ORDER BY last_activity DESC
		LIMIT $1 OFFSET $2`, limit, offset)
}

// ListRoomsForUser implements store.RoomStore.
func (s *PgStore) ListRoomsForUser(ctx context.Context, userID string) ([]store.Room, error) {
	return s.queryRooms(ctx, "list user rooms", `
		SELECT `+roomColumns+` FROM rooms
		WHERE is_active AND id IN (SELECT room_id FROM room_members WHERE user_id = $1)
		ORDER BY last_activity DESC`, userID)
}

// AddMember implements store.RoomStore. The room row is locked so that the
// capacity check and the insert cannot interleave with a concurrent join.
func (s *PgStore) AddMember(ctx context.Context, roomID string, m store.Member) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var maxMembers int
		err := tx.QueryRow(ctx,
			`SELECT max_members FROM rooms WHERE id = $1 AND is_active FOR UPDATE`, roomID,
		).Scan(&maxMembers)
		if err != nil {
			return translate("lock room", err)
		}

		var count int
		var exists bool
		err = tx.QueryRow(ctx, `
			SELECT count(*), coalesce(bool_or(user_id::text = $2), FALSE)
			FROM room_members WHERE room_id = $1`, roomID, m.UserID,
		).Scan(&count, &exists)
		if err != nil {
			return translate("count members", err)
		}

		if exists {
			return store.ErrAlreadyMember
		}
		if count >= maxMembers {
			return store.ErrRoomFull
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO room_members (room_id, user_id, role, joined_at)
			VALUES ($1, $2, $3, $4)`,
			roomID, m.UserID, string(m.Role), m.JoinedAt,
		)
		return translate("add member", err)
	})
}

// RemoveMember implements store.RoomStore. Presence rows go with it through ON DELETE CASCADE.
func (s *PgStore) RemoveMember(ctx context.Context, roomID, userID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM room_members WHERE room_id = $1 AND user_id = $2`, roomID, userID)
	return translate("remove member", err)
}

// UpsertPresence implements store.RoomStore.
func (s *PgStore) UpsertPresence(ctx context.Context, roomID string, p store.Presence) ([]store.Presence, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO room_presence (room_id, user_id, connection_id, joined_at)
		SELECT $1, $2, $3, $4
		WHERE EXISTS (SELECT 1 FROM rooms WHERE id = $1 AND is_active)
		ON CONFLICT (room_id, user_id)
		DO UPDATE SET connection_id = EXCLUDED.connection_id, joined_at = EXCLUDED.joined_at`,
		roomID, p.UserID, p.ConnectionID, p.JoinedAt,
	)
	if err != nil {
		return nil, translate("upsert presence", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, store.ErrNotFound
	}

	if err := s.TouchActivity(ctx, roomID, p.JoinedAt); err != nil {
		return nil, err
	}

	return s.ListPresence(ctx, roomID)
}

// RemovePresenceByConnection implements store.RoomStore.
func (s *PgStore) RemovePresenceByConnection(ctx context.Context, roomID, connID string) ([]store.Presence, bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM room_presence WHERE room_id = $1 AND connection_id = $2`, roomID, connID)
	if err != nil {
		return nil, false, translate("remove presence", err)
	}

	active, err := s.ListPresence(ctx, roomID)
	if err != nil {
		return nil, false, err
	}
	return active, tag.RowsAffected() > 0, nil
}

// ListPresence implements store.RoomStore.
func (s *PgStore) ListPresence(ctx context.Context, roomID string) ([]store.Presence, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.user_id::text, p.connection_id, p.joined_at, u.name, u.avatar, u.status
		FROM room_presence p
		JOIN users u ON u.id = p.user_id
		WHERE p.room_id = $1
		ORDER BY p.joined_at`, roomID)
	if err != nil {
		return nil, translate("list presence", err)
	}

	active, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Presence, error) {
		var p store.Presence
		err := row.Scan(&p.UserID, &p.ConnectionID, &p.JoinedAt, &p.Name, &p.Avatar, &p.Status)
		return p, err
	})
	if err != nil {
		return nil, translate("list presence", err)
	}
	return active, nil
}

// TouchActivity implements store.RoomStore.
func (s *PgStore) TouchActivity(ctx context.Context, roomID string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE rooms SET last_activity = greatest(last_activity, $2) WHERE id = $1`, roomID, at)
	return translate("touch activity", err)
}

// DeactivateRoom implements store.RoomStore.
func (s *PgStore) DeactivateRoom(ctx context.Context, roomID string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE rooms SET is_active = FALSE WHERE id = $1 AND is_active`, roomID)
		if err != nil {
			return translate("deactivate room", err)
		}
		if tag.RowsAffected() == 0 {
			return store.ErrNotFound
		}

		_, err = tx.Exec(ctx, `DELETE FROM room_presence WHERE room_id = $1`, roomID)
		return translate("clear presence", err)
	})
}
