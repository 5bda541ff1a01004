package domain

import "time"

// Server -> client event types.
const (
	EventPresenceSnapshot    = "presence_snapshot"
	EventPresenceOnline      = "presence_online"
	EventPresenceOffline     = "presence_offline"
	EventTyping              = "typing"
	EventStopTyping          = "stop_typing"
	EventMessage             = "message"
	EventMessageDeleted      = "message_deleted"
	EventRead                = "read"
	EventMemberUpdated       = "member_updated"
	EventConversationUpdated = "conversation_updated"
	EventConversationDeleted = "conversation_deleted"
)

// member_updated actions.
const (
	MemberAdded                = "added"
	MemberUpdated              = "updated"
	MemberRemoved              = "removed"
	MemberLeft                 = "left"
	MemberOwnershipTransferred = "ownership_transferred"
)

// conversation_updated actions.
const (
	ConversationMembersChanged   = "members_changed"
	ConversationOwnershipChanged = "ownership_changed"
)

// Event is a server -> client payload. The set of implementations is closed.
type Event interface {
	EventType() string
}

type PresenceSnapshotEvent struct {
	Type          string   `json:"type"`
	OnlineUserIDs []string `json:"online_user_ids"`
}

func (e *PresenceSnapshotEvent) EventType() string { return e.Type }

func NewPresenceSnapshotEvent(online []string) *PresenceSnapshotEvent {
	if online == nil {
		online = []string{}
	}
	return &PresenceSnapshotEvent{Type: EventPresenceSnapshot, OnlineUserIDs: online}
}

type PresenceOnlineEvent struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

func (e *PresenceOnlineEvent) EventType() string { return e.Type }

func NewPresenceOnlineEvent(userID string) *PresenceOnlineEvent {
	return &PresenceOnlineEvent{Type: EventPresenceOnline, UserID: userID}
}

type PresenceOfflineEvent struct {
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

func (e *PresenceOfflineEvent) EventType() string { return e.Type }

func NewPresenceOfflineEvent(userID string, lastSeenAt time.Time) *PresenceOfflineEvent {
	return &PresenceOfflineEvent{Type: EventPresenceOffline, UserID: userID, LastSeenAt: lastSeenAt}
}

// TypingEvent carries both typing and stop_typing.
type TypingEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

func (e *TypingEvent) EventType() string { return e.Type }

func NewTypingEvent(conversationID, userID string) *TypingEvent {
	return &TypingEvent{Type: EventTyping, ConversationID: conversationID, UserID: userID}
}

func NewStopTypingEvent(conversationID, userID string) *TypingEvent {
	return &TypingEvent{Type: EventStopTyping, ConversationID: conversationID, UserID: userID}
}

type MessageEvent struct {
	Type    string       `json:"type"`
	Message *MessageView `json:"message"`
}

func (e *MessageEvent) EventType() string { return e.Type }

func NewMessageEvent(view *MessageView) *MessageEvent {
	return &MessageEvent{Type: EventMessage, Message: view}
}

type MessageDeletedEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

func (e *MessageDeletedEvent) EventType() string { return e.Type }

func NewMessageDeletedEvent(conversationID, messageID string) *MessageDeletedEvent {
	return &MessageDeletedEvent{Type: EventMessageDeleted, ConversationID: conversationID, MessageID: messageID}
}

type ReadEvent struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	ReadAt         time.Time `json:"read_at"`
}

func (e *ReadEvent) EventType() string { return e.Type }

func NewReadEvent(conversationID, userID string, readAt time.Time) *ReadEvent {
	return &ReadEvent{Type: EventRead, ConversationID: conversationID, UserID: userID, ReadAt: readAt}
}

// MemberUpdatedEvent reports a membership change. Role and Permissions are
// set for added, updated and ownership_transferred.
type MemberUpdatedEvent struct {
	Type           string      `json:"type"`
	ConversationID string      `json:"conversation_id"`
	UserID         string      `json:"user_id"`
	Action         string      `json:"action"`
	ActorID        string      `json:"actor_id,omitempty"`
	Role           *Role       `json:"role,omitempty"`
	Permissions    *Permission `json:"permissions,omitempty"`
}

func (e *MemberUpdatedEvent) EventType() string { return e.Type }

func NewMemberUpdatedEvent(conversationID, userID, action, actorID string) *MemberUpdatedEvent {
	return &MemberUpdatedEvent{
		Type:           EventMemberUpdated,
		ConversationID: conversationID,
		UserID:         userID,
		Action:         action,
		ActorID:        actorID,
	}
}

// WithMembership copies role and permissions from m.
func (e *MemberUpdatedEvent) WithMembership(m *Membership) *MemberUpdatedEvent {
	role, perms := m.Role, m.Permissions
	e.Role = &role
	e.Permissions = &perms
	return e
}

type ConversationUpdatedEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	Action         string `json:"action"`
	OwnerID        string `json:"owner_id,omitempty"`
}

func (e *ConversationUpdatedEvent) EventType() string { return e.Type }

func NewConversationUpdatedEvent(conversationID, action string) *ConversationUpdatedEvent {
	return &ConversationUpdatedEvent{Type: EventConversationUpdated, ConversationID: conversationID, Action: action}
}

type ConversationDeletedEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
}

func (e *ConversationDeletedEvent) EventType() string { return e.Type }

func NewConversationDeletedEvent(conversationID string) *ConversationDeletedEvent {
	return &ConversationDeletedEvent{Type: EventConversationDeleted, ConversationID: conversationID}
}
