package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"roomchat/internal/app/store"
)

const messageColumns = `id::text, room_id::text, sender_id::text, content, message_type, reply_to::text,
	is_edited, edited_at, original_content, attachments, mentions, created_at`

func scanMessage(row pgx.Row) (*store.Message, error) {
	var m store.Message
	var attachments, mentions []byte

	err := row.Scan(
		&m.ID, &m.RoomID, &m.SenderID, &m.Content, &m.Type, &m.ReplyTo,
		&m.Edited.IsEdited, &m.Edited.EditedAt, &m.Edited.OriginalContent,
		&attachments, &mentions, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(attachments, &m.Attachments); err != nil {
		return nil, fmt.Errorf("decode attachments of %s: %w", m.ID, err)
	}
	if err := json.Unmarshal(mentions, &m.Mentions); err != nil {
		return nil, fmt.Errorf("decode mentions of %s: %w", m.ID, err)
	}

	m.Reactions = []store.Reaction{}
	m.ReadBy = []store.ReadReceipt{}
	return &m, nil
}

// CreateMessage implements store.MessageStore.
func (s *PgStore) CreateMessage(ctx context.Context, msg *store.Message) error {
	attachments, err := json.Marshal(nonNil(msg.Attachments))
	if err != nil {
		return fmt.Errorf("encode attachments: %w", err)
	}
	mentions, err := json.Marshal(nonNil(msg.Mentions))
	if err != nil {
		return fmt.Errorf("encode mentions: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO messages (id, room_id, sender_id, content, message_type, reply_to,
			attachments, mentions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		msg.ID, msg.RoomID, msg.SenderID, msg.Content, string(msg.Type), msg.ReplyTo,
		attachments, mentions, msg.CreatedAt,
	)
	return translate("create message", err)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (s *PgStore) findMessage(ctx context.Context, op, query string, args ...any) (*store.Message, error) {
	m, err := scanMessage(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, translate(op, err)
	}
	if err := s.loadDetails(ctx, []*store.Message{m}); err != nil {
		return nil, err
	}
	return m, nil
}

// FindMessage implements store.MessageStore.
func (s *PgStore) FindMessage(ctx context.Context, messageID string) (*store.Message, error) {
	return s.findMessage(ctx, "find message",
		`SELECT `+messageColumns+` FROM messages WHERE id = $1 AND NOT is_deleted`, messageID)
}

// FindMessageInRoom implements store.MessageStore.
func (s *PgStore) FindMessageInRoom(ctx context.Context, roomID, messageID string) (*store.Message, error) {
	return s.findMessage(ctx, "find room message",
		`SELECT `+messageColumns+` FROM messages WHERE id = $1 AND room_id = $2 AND NOT is_deleted`,
		messageID, roomID)
}

// loadDetails fills the reaction and read-receipt lists of msgs.
func (s *PgStore) loadDetails(ctx context.Context, msgs []*store.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	ids := make([]string, len(msgs))
	byID := make(map[string]*store.Message, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
		byID[m.ID] = m
	}

	rows, err := s.pool.Query(ctx, `
		SELECT message_id::text, user_id::text, emoji, created_at
		FROM message_reactions WHERE message_id = ANY($1::uuid[])
		ORDER BY created_at`, ids)
	if err != nil {
		return translate("load reactions", err)
	}
	for rows.Next() {
		var id string
		var r store.Reaction
		if err := rows.Scan(&id, &r.UserID, &r.Emoji, &r.CreatedAt); err != nil {
			rows.Close()
			return translate("load reactions", err)
		}
		byID[id].Reactions = append(byID[id].Reactions, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return translate("load reactions", err)
	}

	rows, err = s.pool.Query(ctx, `
		SELECT message_id::text, user_id::text, read_at
		FROM message_reads WHERE message_id = ANY($1::uuid[])
		ORDER BY read_at`, ids)
	if err != nil {
		return translate("load reads", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var r store.ReadReceipt
		if err := rows.Scan(&id, &r.UserID, &r.ReadAt); err != nil {
			return translate("load reads", err)
		}
		byID[id].ReadBy = append(byID[id].ReadBy, r)
	}
	return translate("load reads", rows.Err())
}

// ListMessages implements store.MessageStore.
func (s *PgStore) ListMessages(ctx context.Context, roomID string, page, limit int) ([]store.Message, int, error) {
	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM messages WHERE room_id = $1 AND NOT is_deleted`, roomID,
	).Scan(&total)
	if err != nil {
		return nil, 0, translate("count messages", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE room_id = $1 AND NOT is_deleted
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, roomID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, translate("list messages", err)
	}

	ptrs := make([]*store.Message, 0, limit)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			rows.Close()
			return nil, 0, translate("list messages", err)
		}
		ptrs = append(ptrs, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, translate("list messages", err)
	}

	if err := s.loadDetails(ctx, ptrs); err != nil {
		return nil, 0, err
	}

	msgs := make([]store.Message, len(ptrs))
	for i, m := range ptrs {
		msgs[i] = *m
	}
	return msgs, total, nil
}

// EditMessage implements store.MessageStore. original_content is only
// written while is_edited is still false, in the same statement.
func (s *PgStore) EditMessage(ctx context.Context, messageID, content string, at time.Time) (*store.Message, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages
		SET original_content = CASE WHEN is_edited THEN original_content ELSE content END,
			content = $2,
			is_edited = TRUE,
			edited_at = $3
		WHERE id = $1 AND NOT is_deleted`,
		messageID, content, at,
	)
	if err != nil {
		return nil, translate("edit message", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, store.ErrNotFound
	}

	return s.FindMessage(ctx, messageID)
}

// SoftDelete implements store.MessageStore.
func (s *PgStore) SoftDelete(ctx context.Context, messageID, deleterID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages SET is_deleted = TRUE, deleted_at = $3, deleted_by = $2
		WHERE id = $1 AND NOT is_deleted`,
		messageID, deleterID, at,
	)
	if err != nil {
		return translate("delete message", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// UpsertReaction implements store.MessageStore.
func (s *PgStore) UpsertReaction(ctx context.Context, messageID string, r store.Reaction) ([]store.Reaction, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO message_reactions (message_id, user_id, emoji, created_at)
		SELECT $1, $2, $3, $4
		WHERE EXISTS (SELECT 1 FROM messages WHERE id = $1 AND NOT is_deleted)
		ON CONFLICT (message_id, user_id, emoji) DO UPDATE SET created_at = EXCLUDED.created_at`,
		messageID, r.UserID, r.Emoji, r.CreatedAt,
	)
	if err != nil {
		return nil, translate("upsert reaction", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, store.ErrNotFound
	}

	return s.listReactions(ctx, messageID)
}

// RemoveReaction implements store.MessageStore.
func (s *PgStore) RemoveReaction(ctx context.Context, messageID, userID, emoji string) ([]store.Reaction, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM messages WHERE id = $1 AND NOT is_deleted)`, messageID,
	).Scan(&exists)
	if err != nil {
		return nil, translate("remove reaction", err)
	}
	if !exists {
		return nil, store.ErrNotFound
	}

	_, err = s.pool.Exec(ctx, `
		DELETE FROM message_reactions WHERE message_id = $1 AND user_id = $2 AND emoji = $3`,
		messageID, userID, emoji,
	)
	if err != nil {
		return nil, translate("remove reaction", err)
	}

	return s.listReactions(ctx, messageID)
}

func (s *PgStore) listReactions(ctx context.Context, messageID string) ([]store.Reaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id::text, emoji, created_at FROM message_reactions
		WHERE message_id = $1 ORDER BY created_at`, messageID)
	if err != nil {
		return nil, translate("list reactions", err)
	}

	reactions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Reaction, error) {
		var r store.Reaction
		err := row.Scan(&r.UserID, &r.Emoji, &r.CreatedAt)
		return r, err
	})
	if err != nil {
		return nil, translate("list reactions", err)
	}
	return reactions, nil
}

// MarkRead implements store.MessageStore.
func (s *PgStore) MarkRead(ctx context.Context, roomID, userID string, messageIDs []string, at time.Time) ([]string, error) {
	if len(messageIDs) == 0 {
		return []string{}, nil
	}

	rows, err := s.pool.Query(ctx, `
		INSERT INTO message_reads (message_id, user_id, read_at)
		SELECT m.id, $2, $3 FROM messages m
		WHERE m.room_id = $1 AND NOT m.is_deleted AND m.id = ANY($4::uuid[])
		ON CONFLICT (message_id, user_id) DO NOTHING
		RETURNING message_id::text`,
		roomID, userID, at, messageIDs,
	)
	if err != nil {
		return nil, translate("mark read", err)
	}

	marked, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, translate("mark read", err)
	}
	return marked, nil
}

// CountUnread implements store.MessageStore.
func (s *PgStore) CountUnread(ctx context.Context, roomID, userID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM messages m
		WHERE m.room_id = $1 AND NOT m.is_deleted AND m.sender_id <> $2
		AND NOT EXISTS (SELECT 1 FROM message_reads r WHERE r.message_id = m.id AND r.user_id = $2)`,
		roomID, userID,
	).Scan(&count)
	if err != nil {
		return 0, translate("count unread", err)
	}
	return count, nil
}
