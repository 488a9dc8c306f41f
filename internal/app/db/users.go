package db

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"roomchat/internal/app/store"
	"roomchat/internal/app/user"
)

const identityColumns = `id::text, name, email, avatar, role, status, last_seen, is_active`

func scanIdentity(row pgx.Row, dest ...any) (*user.Identity, error) {
	var u user.Identity
	targets := append([]any{&u.ID, &u.Name, &u.Email, &u.Avatar, &u.Role, &u.Status, &u.LastSeen, &u.IsActive}, dest...)
	if err := row.Scan(targets...); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser implements store.UserStore.
func (s *PgStore) CreateUser(ctx context.Context, account *user.Account) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, name, email, password_hash, avatar, role, status, is_online, is_active, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, $9)`,
		account.ID, account.Name, strings.ToLower(account.Email), account.PasswordHash, account.Avatar,
		string(account.Role), string(account.Status), account.Status == user.StatusOnline, account.LastSeen,
	)
	if err != nil {
		return translate("create user", err)
	}
	account.IsActive = true
	return nil
}

// FindUserByID implements store.UserStore.
func (s *PgStore) FindUserByID(ctx context.Context, userID string) (*user.Identity, error) {
	u, err := scanIdentity(s.pool.QueryRow(ctx,
		`SELECT `+identityColumns+` FROM users WHERE id = $1`, userID))
	if err != nil {
		return nil, translate("find user", err)
	}
	return u, nil
}

// FindAccountByEmail implements store.UserStore.
func (s *PgStore) FindAccountByEmail(ctx context.Context, email string) (*user.Account, error) {
	var hash string
	u, err := scanIdentity(s.pool.QueryRow(ctx,
		`SELECT `+identityColumns+`, password_hash FROM users WHERE lower(email) = lower($1)`, email), &hash)
	if err != nil {
		return nil, translate("find account", err)
	}
	return &user.Account{Identity: *u, PasswordHash: hash}, nil
}

// UpdatePresence implements store.UserStore.
func (s *PgStore) UpdatePresence(ctx context.Context, userID string, status user.Status, lastSeen time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET status = $2, is_online = $3, last_seen = $4 WHERE id = $1`,
		userID, string(status), status == user.StatusOnline, lastSeen,
	)
	if err != nil {
		return translate("update presence", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
