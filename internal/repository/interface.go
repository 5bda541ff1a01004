package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rusikfsk/unichat/internal/domain"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record conflict")
)

// UserRepository persists users.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	UpdateUserProfile(ctx context.Context, id, displayName, email string) error
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUsers(ctx context.Context, ids []string) (map[string]*domain.User, error)
}

// ConversationRepository persists conversations.
type ConversationRepository interface {
	// CreateConversation inserts conv with its initial members. directKey is
	// empty unless conv is direct; a duplicate key yields ErrConflict.
	CreateConversation(ctx context.Context, conv *domain.Conversation, directKey string, members []domain.Membership) error
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)
	FindDirectConversation(ctx context.Context, directKey string) (*domain.Conversation, error)
	SetConversationOwner(ctx context.Context, id, ownerID string) error
	// DeleteConversation removes the conversation, its memberships, messages
	// and the attachments bound to them. It returns the removed attachments.
	DeleteConversation(ctx context.Context, id string) ([]domain.Attachment, error)
	ListConversationSummaries(ctx context.Context, userID string) ([]domain.ConversationSummary, error)
}

// MembershipRepository persists memberships.
type MembershipRepository interface {
	GetMembership(ctx context.Context, conversationID, userID string) (*domain.Membership, error)
	ListMembers(ctx context.Context, conversationID string) ([]domain.Membership, error)
	AddMembership(ctx context.Context, m *domain.Membership) error
	UpdateMembership(ctx context.Context, conversationID, userID string, role domain.Role, perms domain.Permission) error
	DeleteMembership(ctx context.Context, conversationID, userID string) error
	// AdvanceLastRead moves the cursor forward to at if it is unset or
	// earlier, and returns the stored cursor.
	AdvanceLastRead(ctx context.Context, conversationID, userID string, at time.Time) (time.Time, error)
	CountUnread(ctx context.Context, conversationID, userID string, lastReadAt *time.Time) (int64, error)
}

// MessageRepository persists messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg *domain.Message) error
	GetMessage(ctx context.Context, id string) (*domain.Message, error)
	DeleteMessage(ctx context.Context, id string) error
	// ListMessagesBefore returns up to limit messages strictly older than
	// before on (created_at, id), newest first. A nil before starts at the
	// newest message.
	ListMessagesBefore(ctx context.Context, conversationID string, before *domain.Message, limit int) ([]domain.Message, error)
}

// AttachmentRepository persists attachment metadata.
type AttachmentRepository interface {
	CreateAttachment(ctx context.Context, a *domain.Attachment) error
	GetAttachment(ctx context.Context, id string) (*domain.Attachment, error)
	GetAttachments(ctx context.Context, ids []string) ([]domain.Attachment, error)
	// BindAttachments binds every id to messageID. All ids must be unbound and
	// uploaded by uploaderID, otherwise nothing is bound and ErrConflict is returned.
	BindAttachments(ctx context.Context, messageID, uploaderID string, ids []string) error
	ListAttachmentsByMessages(ctx context.Context, messageIDs []string) (map[string][]domain.Attachment, error)
	DeleteAttachmentsByMessage(ctx context.Context, messageID string) ([]domain.Attachment, error)
	// DeleteUnboundBefore removes up to limit unbound attachments created
	// before cutoff and returns them.
	DeleteUnboundBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Attachment, error)
}

// Repository is the storage collaborator of the chat core.
type Repository interface {
	UserRepository
	ConversationRepository
	MembershipRepository
	MessageRepository
	AttachmentRepository

	// Transaction runs fn against a repository bound to one transaction.
	// fn must use only the repository it is given.
	Transaction(ctx context.Context, fn func(tx Repository) error) error
}
