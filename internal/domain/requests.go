package domain

import "time"

// CreateConversationRequest creates a direct, group or channel conversation.
type CreateConversationRequest struct {
	Kind      string   `json:"kind" binding:"required"`
	Title     string   `json:"title"`
	MemberIDs []string `json:"member_ids"`
}

// AddMemberRequest adds a user to a conversation.
type AddMemberRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// UpdateMemberRequest changes a channel member's role and permission bits.
// Permissions are bit names; nil leaves them unchanged.
type UpdateMemberRequest struct {
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// TransferOwnershipRequest hands a channel to another member.
type TransferOwnershipRequest struct {
	NewOwnerID string `json:"new_owner_id" binding:"required"`
}

// SendMessageRequest posts a message.
type SendMessageRequest struct {
	Text          string   `json:"text"`
	ReplyToID     string   `json:"reply_to_id"`
	AttachmentIDs []string `json:"attachment_ids"`
}

// MarkReadRequest advances the caller's read cursor. An empty MessageID
// marks everything up to now as read.
type MarkReadRequest struct {
	MessageID string `json:"message_id"`
}

// HistoryQuery selects a page of history older than BeforeMessageID.
// A nil Take selects the default page size.
type HistoryQuery struct {
	BeforeMessageID string `form:"before_message_id"`
	Take            *int   `form:"take"`
}

// UpdateProfileRequest upserts the caller's profile.
type UpdateProfileRequest struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// PresenceResponse reports a user's presence.
type PresenceResponse struct {
	UserID     string     `json:"user_id"`
	Online     bool       `json:"online"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}

// ReadResponse is the caller's read cursor after MarkRead.
type ReadResponse struct {
	ConversationID string    `json:"conversation_id"`
	ReadAt         time.Time `json:"read_at"`
}
