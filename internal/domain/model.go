package domain

import (
	"strings"
	"time"
)

// UserModel is the GORM model for the users table.
type UserModel struct {
	ID                 string    `gorm:"type:varchar(36);primaryKey"`
	Username           string    `gorm:"type:varchar(64);not null"`
	UsernameNormalized string    `gorm:"type:varchar(64);uniqueIndex;not null"`
	DisplayName        string    `gorm:"type:varchar(128)"`
	Email              string    `gorm:"type:varchar(255)"`
	EmailConfirmed     bool      `gorm:"not null;default:false"`
	PasswordHash       string    `gorm:"type:varchar(255)"`
	AvatarAttachmentID *string   `gorm:"type:varchar(36)"`
	CreatedAt          time.Time `gorm:"not null"`
}

func (UserModel) TableName() string { return "users" }

// ToDomain converts UserModel to domain User.
func (m *UserModel) ToDomain() *User {
	return &User{
		ID:                 m.ID,
		Username:           m.Username,
		DisplayName:        m.DisplayName,
		Email:              m.Email,
		EmailConfirmed:     m.EmailConfirmed,
		PasswordHash:       m.PasswordHash,
		AvatarAttachmentID: deref(m.AvatarAttachmentID),
		CreatedAt:          m.CreatedAt,
	}
}

// UserToModel converts domain User to UserModel.
func UserToModel(u *User) *UserModel {
	return &UserModel{
		ID:                 u.ID,
		Username:           u.Username,
		UsernameNormalized: NormalizeUsername(u.Username),
		DisplayName:        u.DisplayName,
		Email:              u.Email,
		EmailConfirmed:     u.EmailConfirmed,
		PasswordHash:       u.PasswordHash,
		AvatarAttachmentID: ref(u.AvatarAttachmentID),
		CreatedAt:          u.CreatedAt,
	}
}

// NormalizeUsername is the case-insensitive uniqueness key of a username.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// ConversationModel is the GORM model for the conversations table.
// DirectKey is set only for direct conversations and makes the pair unique.
type ConversationModel struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	Kind      string    `gorm:"type:varchar(16);not null"`
	Title     string    `gorm:"type:varchar(200)"`
	OwnerID   *string   `gorm:"type:varchar(36)"`
	DirectKey *string   `gorm:"type:varchar(80);uniqueIndex"`
	CreatedAt time.Time `gorm:"not null"`
}

func (ConversationModel) TableName() string { return "conversations" }

// ToDomain converts ConversationModel to domain Conversation.
func (m *ConversationModel) ToDomain() *Conversation {
	return &Conversation{
		ID:        m.ID,
		Kind:      ConversationKind(m.Kind),
		Title:     m.Title,
		OwnerID:   deref(m.OwnerID),
		CreatedAt: m.CreatedAt,
	}
}

// ConversationToModel converts domain Conversation to ConversationModel.
// directKey is empty for group and channel conversations.
func ConversationToModel(c *Conversation, directKey string) *ConversationModel {
	return &ConversationModel{
		ID:        c.ID,
		Kind:      string(c.Kind),
		Title:     c.Title,
		OwnerID:   ref(c.OwnerID),
		DirectKey: ref(directKey),
		CreatedAt: c.CreatedAt,
	}
}

// DirectKey is the order-independent key of a direct conversation between a and b.
func DirectKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

// MembershipModel is the GORM model for the memberships table.
type MembershipModel struct {
	ConversationID string    `gorm:"type:varchar(36);primaryKey"`
	UserID         string    `gorm:"type:varchar(36);primaryKey;index"`
	Role           int       `gorm:"not null"`
	Permissions    int       `gorm:"not null"`
	JoinedAt       time.Time `gorm:"not null"`
	LastReadAt     *time.Time
}

func (MembershipModel) TableName() string { return "memberships" }

// ToDomain converts MembershipModel to domain Membership.
func (m *MembershipModel) ToDomain() *Membership {
	return &Membership{
		ConversationID: m.ConversationID,
		UserID:         m.UserID,
		Role:           Role(m.Role),
		Permissions:    Permission(m.Permissions),
		JoinedAt:       m.JoinedAt,
		LastReadAt:     m.LastReadAt,
	}
}

// MembershipToModel converts domain Membership to MembershipModel.
func MembershipToModel(m *Membership) *MembershipModel {
	return &MembershipModel{
		ConversationID: m.ConversationID,
		UserID:         m.UserID,
		Role:           int(m.Role),
		Permissions:    int(m.Permissions),
		JoinedAt:       m.JoinedAt,
		LastReadAt:     m.LastReadAt,
	}
}

// MessageModel is the GORM model for the messages table. Reply columns hold
// the preview snapshot taken at send time.
type MessageModel struct {
	ID              string    `gorm:"type:varchar(36);primaryKey"`
	ConversationID  string    `gorm:"type:varchar(36);not null;index:idx_messages_conv_created,priority:1"`
	SenderID        string    `gorm:"type:varchar(36);not null;index"`
	Text            string    `gorm:"type:text"`
	CreatedAt       time.Time `gorm:"not null;index:idx_messages_conv_created,priority:2"`
	EditedAt        *time.Time
	ReplyToID       *string `gorm:"type:varchar(36)"`
	ReplySenderID   string  `gorm:"type:varchar(36)"`
	ReplySenderName string  `gorm:"type:varchar(128)"`
	ReplyText       string  `gorm:"type:text"`
	ReplyCreatedAt  *time.Time
}

func (MessageModel) TableName() string { return "messages" }

// ToDomain converts MessageModel to domain Message.
func (m *MessageModel) ToDomain() *Message {
	msg := &Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Text:           m.Text,
		CreatedAt:      m.CreatedAt,
		EditedAt:       m.EditedAt,
		ReplyToID:      deref(m.ReplyToID),
	}
	if m.ReplyToID != nil {
		preview := &ReplyPreview{
			MessageID:  *m.ReplyToID,
			SenderID:   m.ReplySenderID,
			SenderName: m.ReplySenderName,
			Text:       m.ReplyText,
		}
		if m.ReplyCreatedAt != nil {
			preview.CreatedAt = *m.ReplyCreatedAt
		}
		msg.Reply = preview
	}
	return msg
}

// MessageToModel converts domain Message to MessageModel.
func MessageToModel(msg *Message) *MessageModel {
	m := &MessageModel{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Text:           msg.Text,
		CreatedAt:      msg.CreatedAt,
		EditedAt:       msg.EditedAt,
		ReplyToID:      ref(msg.ReplyToID),
	}
	if msg.Reply != nil {
		created := msg.Reply.CreatedAt
		m.ReplySenderID = msg.Reply.SenderID
		m.ReplySenderName = msg.Reply.SenderName
		m.ReplyText = msg.Reply.Text
		m.ReplyCreatedAt = &created
	}
	return m
}

// AttachmentModel is the GORM model for the attachments table.
type AttachmentModel struct {
	ID          string    `gorm:"type:varchar(36);primaryKey"`
	UploaderID  string    `gorm:"type:varchar(36);not null;index"`
	MessageID   *string   `gorm:"type:varchar(36);index"`
	FileName    string    `gorm:"type:varchar(255);not null"`
	ContentType string    `gorm:"type:varchar(255)"`
	Size        int64     `gorm:"not null"`
	StorageKey  string    `gorm:"type:varchar(512);not null"`
	CreatedAt   time.Time `gorm:"not null;index"`
}

func (AttachmentModel) TableName() string { return "attachments" }

// ToDomain converts AttachmentModel to domain Attachment.
func (m *AttachmentModel) ToDomain() *Attachment {
	return &Attachment{
		ID:          m.ID,
		UploaderID:  m.UploaderID,
		MessageID:   deref(m.MessageID),
		FileName:    m.FileName,
		ContentType: m.ContentType,
		Size:        m.Size,
		StorageKey:  m.StorageKey,
		CreatedAt:   m.CreatedAt,
	}
}

// AttachmentToModel converts domain Attachment to AttachmentModel.
func AttachmentToModel(a *Attachment) *AttachmentModel {
	return &AttachmentModel{
		ID:          a.ID,
		UploaderID:  a.UploaderID,
		MessageID:   ref(a.MessageID),
		FileName:    a.FileName,
		ContentType: a.ContentType,
		Size:        a.Size,
		StorageKey:  a.StorageKey,
		CreatedAt:   a.CreatedAt,
	}
}

// Models lists every persisted model for migrations.
func Models() []any {
	return []any{
		&UserModel{},
		&ConversationModel{},
		&MembershipModel{},
		&MessageModel{},
		&AttachmentModel{},
	}
}

func ref(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
