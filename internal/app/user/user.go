/*
Package user defines the identity of a chat participant and its presence status.
*/
package user

import "time"

// Role is the account-wide role of a user.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// Status is the durable presence status of a user.
type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusOffline Status = "offline"
	StatusBusy    Status = "busy"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusAway, StatusOffline, StatusBusy:
		return true
	}
	return false
}

// Identity is the authenticated user bound to a connection.
// Fields use JSON tags for serialization in socket events.
type Identity struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Email    string    `json:"email,omitempty"`
	Avatar   string    `json:"avatar,omitempty"`
	Role     Role      `json:"role"`
	Status   Status    `json:"status"`
	LastSeen time.Time `json:"lastSeen"`
	IsActive bool      `json:"-"`
}

// Account is an Identity together with its stored password hash.
type Account struct {
	Identity
	PasswordHash string
}
