package domain

import "time"

// Message is a chat message.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Text           string
	CreatedAt      time.Time
	EditedAt       *time.Time
	ReplyToID      string
	Reply          *ReplyPreview
}

// ReplyPreview is a snapshot of the replied-to message taken at send time.
type ReplyPreview struct {
	MessageID  string    `json:"message_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

// Attachment is an uploaded file. MessageID is empty while unbound.
type Attachment struct {
	ID          string
	UploaderID  string
	MessageID   string
	FileName    string
	ContentType string
	Size        int64
	StorageKey  string
	CreatedAt   time.Time
}

// Bound reports whether the attachment belongs to a message.
func (a *Attachment) Bound() bool {
	return a.MessageID != ""
}

// AttachmentView is the client-facing form of an attachment.
type AttachmentView struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	URL         string    `json:"url"`
	CreatedAt   time.Time `json:"created_at"`
}

// MessageView is a message materialized for delivery.
type MessageView struct {
	ID                string           `json:"id"`
	ConversationID    string           `json:"conversation_id"`
	SenderID          string           `json:"sender_id"`
	SenderUsername    string           `json:"sender_username"`
	SenderDisplayName string           `json:"sender_display_name"`
	Text              string           `json:"text,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	EditedAt          *time.Time       `json:"edited_at,omitempty"`
	ReplyTo           *ReplyPreview    `json:"reply_to,omitempty"`
	Attachments       []AttachmentView `json:"attachments"`
}

// AttachmentURL is the download path served for an attachment id.
func AttachmentURL(id string) string {
	return "/api/v1/attachments/" + id
}

// NewAttachmentView converts an attachment into its client form.
func NewAttachmentView(a *Attachment) AttachmentView {
	return AttachmentView{
		ID:          a.ID,
		FileName:    a.FileName,
		ContentType: a.ContentType,
		Size:        a.Size,
		URL:         AttachmentURL(a.ID),
		CreatedAt:   a.CreatedAt,
	}
}

// NewMessageView materializes msg with its sender and attachments.
// sender may be nil when the profile is unavailable.
func NewMessageView(msg *Message, sender *User, attachments []Attachment) *MessageView {
	view := &MessageView{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Text:           msg.Text,
		CreatedAt:      msg.CreatedAt,
		EditedAt:       msg.EditedAt,
		ReplyTo:        msg.Reply,
		Attachments:    make([]AttachmentView, 0, len(attachments)),
	}
	if sender != nil {
		view.SenderUsername = sender.Username
		view.SenderDisplayName = sender.Name()
	}
	for i := range attachments {
		view.Attachments = append(view.Attachments, NewAttachmentView(&attachments[i]))
	}
	return view
}

// MessagePage is one page of history in ascending order.
type MessagePage struct {
	Messages []*MessageView `json:"messages"`
	HasMore  bool           `json:"has_more"`
}
