package service

import (
	"context"
	"io"

	"github.com/rusikfsk/unichat/internal/domain"
)

// EventPublisher delivers committed state changes to live connections.
type EventPublisher interface {
	Publish(ctx context.Context, conversationID string, event domain.Event)
	EvictMember(ctx context.Context, conversationID, userID string)
	CloseConversation(ctx context.Context, conversationID string)
}

// MessageService is the message pipeline.
type MessageService interface {
	SendMessage(ctx context.Context, userID, conversationID string, req *domain.SendMessageRequest) (*domain.MessageView, error)
	DeleteMessage(ctx context.Context, userID, messageID string) error
	MarkRead(ctx context.Context, userID, conversationID string, req *domain.MarkReadRequest) (*domain.ReadResponse, error)
	GetHistory(ctx context.Context, userID, conversationID string, q *domain.HistoryQuery) (*domain.MessagePage, error)
}

// ConversationService manages conversations and their memberships.
type ConversationService interface {
	CreateConversation(ctx context.Context, actorID string, req *domain.CreateConversationRequest) (*domain.Conversation, error)
	GetConversation(ctx context.Context, userID, conversationID string) (*domain.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]domain.ConversationSummary, error)
	ListMembers(ctx context.Context, userID, conversationID string) ([]domain.MemberView, error)
	AddMember(ctx context.Context, actorID, conversationID, userID string) (*domain.Membership, error)
	UpdateMember(ctx context.Context, actorID, conversationID, userID string, req *domain.UpdateMemberRequest) (*domain.Membership, error)
	RemoveMember(ctx context.Context, actorID, conversationID, userID string) error
	LeaveConversation(ctx context.Context, userID, conversationID string) error
	TransferOwnership(ctx context.Context, actorID, conversationID, newOwnerID string) error
	DeleteConversation(ctx context.Context, actorID, conversationID string) error
}

// AttachmentService stores uploaded files ahead of the message that binds them.
type AttachmentService interface {
	UploadAttachment(ctx context.Context, uploaderID string, file *Upload) (*domain.AttachmentView, error)
	// OpenAttachment returns the attachment and its content. The caller
	// closes the reader.
	OpenAttachment(ctx context.Context, userID, attachmentID string) (*domain.Attachment, io.ReadCloser, error)
	AttachmentURL(ctx context.Context, userID, attachmentID string) (string, error)
}

// UserService manages local user profiles.
type UserService interface {
	EnsureUser(ctx context.Context, userID, username string) (*domain.User, error)
	UpdateProfile(ctx context.Context, userID, username string, req *domain.UpdateProfileRequest) (*domain.User, error)
}

// ChatService is the full application surface used by the handlers.
type ChatService interface {
	MessageService
	ConversationService
	AttachmentService
	UserService
}

// Upload describes one uploaded file.
type Upload struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}
