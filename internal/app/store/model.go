package store

import (
	"sort"
	"time"
)

// RoomType is the visibility of a room.
type RoomType string

const (
	RoomPublic  RoomType = "public"
	RoomPrivate RoomType = "private"
)

// MemberRole is the role of a member inside one room.
type MemberRole string

const (
	MemberRoleAdmin     MemberRole = "admin"
	MemberRoleModerator MemberRole = "moderator"
	MemberRoleMember    MemberRole = "member"
)

const (
	DefaultMaxMembers = 100
	MinMaxMembers     = 2
	MaxMaxMembers     = 1000
)

// RoomSettings are the per-room feature switches.
type RoomSettings struct {
	AllowInvites     bool `json:"allowInvites"`
	RequireApproval  bool `json:"requireApproval"`
	AllowFileSharing bool `json:"allowFileSharing"`
}

// DefaultRoomSettings returns the settings of a room created without overrides.
func DefaultRoomSettings() RoomSettings {
	return RoomSettings{AllowInvites: true, RequireApproval: false, AllowFileSharing: true}
}

// Member is an entry of a room's durable member list.
type Member struct {
	UserID   string     `json:"userId"`
	Role     MemberRole `json:"role"`
	JoinedAt time.Time  `json:"joinedAt"`
}

// Presence is an entry of a room's active-presence list.
type Presence struct {
	UserID       string    `json:"userId"`
	ConnectionID string    `json:"-"`
	JoinedAt     time.Time `json:"joinedAt"`
	Name         string    `json:"name"`
	Avatar       string    `json:"avatar,omitempty"`
	Status       string    `json:"status,omitempty"`
}

// Room is the durable room document.
type Room struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	Type         RoomType     `json:"type"`
	CreatorID    string       `json:"creatorId"`
	Members      []Member     `json:"members"`
	MaxMembers   int          `json:"maxMembers"`
	IsActive     bool         `json:"isActive"`
	Settings     RoomSettings `json:"settings"`
	LastActivity time.Time    `json:"lastActivity"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// Member returns the member entry of userID.
func (r *Room) Member(userID string) (Member, bool) {
	for _, m := range r.Members {
		if m.UserID == userID {
			return m, true
		}
	}
	return Member{}, false
}

// IsMember reports whether userID is in the member list.
func (r *Room) IsMember(userID string) bool {
	_, ok := r.Member(userID)
	return ok
}

// IsAdminOrModerator reports whether userID moderates the room.
func (r *Room) IsAdminOrModerator(userID string) bool {
	m, ok := r.Member(userID)
	return ok && (m.Role == MemberRoleAdmin || m.Role == MemberRoleModerator)
}

// MessageType is the kind of content a message carries.
type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageFile   MessageType = "file"
	MessageSystem MessageType = "system"
)

// Edited records the edit history of a message.
type Edited struct {
	IsEdited        bool       `json:"isEdited"`
	EditedAt        *time.Time `json:"editedAt"`
	OriginalContent *string    `json:"originalContent"`
}

// Reaction is one (user, emoji) reaction.
type Reaction struct {
	UserID    string    `json:"userId"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"createdAt"`
}

// ReadReceipt records that a user has read a message.
type ReadReceipt struct {
	UserID string    `json:"userId"`
	ReadAt time.Time `json:"readAt"`
}

// Attachment is a file stored in object storage under the room's key prefix.
type Attachment struct {
	FileKey  string `json:"fileKey"`
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	FileSize int64  `json:"fileSize"`
}

// Mention references a user inside the message content by rune offsets.
type Mention struct {
	UserID     string `json:"userId"`
	StartIndex int    `json:"startIndex"`
	EndIndex   int    `json:"endIndex"`
}

// Message is the durable message document.
type Message struct {
	ID          string        `json:"id"`
	RoomID      string        `json:"roomId"`
	SenderID    string        `json:"senderId"`
	Content     string        `json:"content"`
	Type        MessageType   `json:"messageType"`
	ReplyTo     *string       `json:"replyTo"`
	Edited      Edited        `json:"edited"`
	Reactions   []Reaction    `json:"reactions"`
	Attachments []Attachment  `json:"attachments"`
	Mentions    []Mention     `json:"mentions"`
	IsDeleted   bool          `json:"-"`
	DeletedAt   *time.Time    `json:"-"`
	DeletedBy   *string       `json:"-"`
	ReadBy      []ReadReceipt `json:"readBy"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// ReactionGroup aggregates the reactions of one emoji.
type ReactionGroup struct {
	Count int      `json:"count"`
	Users []string `json:"users"`
}

// SummarizeReactions groups reactions by emoji. Users keep the order in which they reacted.
func SummarizeReactions(reactions []Reaction) map[string]ReactionGroup {
	ordered := make([]Reaction, len(reactions))
	copy(ordered, reactions)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	summary := make(map[string]ReactionGroup)
	for _, r := range ordered {
		g := summary[r.Emoji]
		g.Count++
		g.Users = append(g.Users, r.UserID)
		summary[r.Emoji] = g
	}
	return summary
}
