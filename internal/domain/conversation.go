package domain

import (
	"strings"
	"time"
)

// ConversationKind distinguishes direct, group and channel conversations.
type ConversationKind string

const (
	KindDirect  ConversationKind = "direct"
	KindGroup   ConversationKind = "group"
	KindChannel ConversationKind = "channel"
)

// ParseConversationKind parses a kind name, case-insensitively.
func ParseConversationKind(s string) (ConversationKind, error) {
	switch k := ConversationKind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindDirect, KindGroup, KindChannel:
		return k, nil
	}
	return "", Validationf("unknown conversation kind %q", s)
}

// Conversation is a direct chat, group or channel.
type Conversation struct {
	ID        string           `json:"id"`
	Kind      ConversationKind `json:"kind"`
	Title     string           `json:"title"`
	OwnerID   string           `json:"owner_id,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// Membership grants a user visibility and rights into a conversation.
type Membership struct {
	ConversationID string     `json:"conversation_id"`
	UserID         string     `json:"user_id"`
	Role           Role       `json:"role"`
	Permissions    Permission `json:"permissions"`
	JoinedAt       time.Time  `json:"joined_at"`
	LastReadAt     *time.Time `json:"last_read_at,omitempty"`
}

// HasPermission reports whether the membership carries flag.
func (m *Membership) HasPermission(flag Permission) bool {
	return m != nil && m.Permissions.Has(flag)
}

// IsOwner reports whether the membership holds the Owner role.
func (m *Membership) IsOwner() bool {
	return m != nil && m.Role == RoleOwner
}

// CanWrite reports whether the member may post in a conversation of kind.
// Direct and group members write implicitly; channels require PermWrite.
func (m *Membership) CanWrite(kind ConversationKind) bool {
	if m == nil {
		return false
	}
	if kind == KindChannel {
		return m.HasPermission(PermWrite)
	}
	return true
}

// User is a chat participant. Users are created by the identity provider.
type User struct {
	ID                 string    `json:"id"`
	Username           string    `json:"username"`
	DisplayName        string    `json:"display_name"`
	Email              string    `json:"email,omitempty"`
	EmailConfirmed     bool      `json:"email_confirmed"`
	PasswordHash       string    `json:"-"`
	AvatarAttachmentID string    `json:"avatar_attachment_id,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// Name returns the display name, falling back to the username.
func (u *User) Name() string {
	if u == nil {
		return ""
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// ConversationSummary is a conversation as listed for one viewer.
type ConversationSummary struct {
	Conversation
	Role            Role       `json:"role"`
	Permissions     Permission `json:"permissions"`
	MemberCount     int        `json:"member_count"`
	UnreadCount     int64      `json:"unread_count"`
	LastMessageText string     `json:"last_message_text,omitempty"`
	LastMessageAt   *time.Time `json:"last_message_at,omitempty"`
}

// MemberView is a membership joined with the member's profile.
type MemberView struct {
	Membership
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}
