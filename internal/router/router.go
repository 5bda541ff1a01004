package router

import (
	"context"

	"github.com/rusikfsk/unichat/internal/audit"
	"github.com/rusikfsk/unichat/internal/domain"
	"github.com/rusikfsk/unichat/internal/hub"
	"github.com/rusikfsk/unichat/internal/membership"
	"github.com/rusikfsk/unichat/pkg/log"
)

// Router validates realtime commands and turns committed state changes into
// room broadcasts.
type Router struct {
	hub       *hub.Hub
	authority *membership.Authority
}

func NewRouter(h *hub.Hub, authority *membership.Authority) *Router {
	return &Router{hub: h, authority: authority}
}

// JoinConversation subscribes c to a conversation room after a fresh
// membership check.
func (r *Router) JoinConversation(ctx context.Context, c *hub.Client, conversationID string) error {
	if _, err := r.authority.Authorize(ctx, c.UserID, conversationID); err != nil {
		return err
	}
	if err := r.hub.JoinRoom(c, conversationID); err != nil {
		return err
	}

	audit.LogConversation(ctx, audit.ActionJoinConversation, c.UserID, conversationID, "joined conversation room")
	return r.hub.SendTo(c, domain.NewJoinedMessage(conversationID))
}

// LeaveConversation unsubscribes c. It succeeds whether or not c was
// subscribed or is still a member.
func (r *Router) LeaveConversation(ctx context.Context, c *hub.Client, conversationID string) error {
	if conversationID == "" {
		return domain.Validationf("conversation id is required")
	}
	r.hub.LeaveRoom(c, conversationID)

	audit.LogConversation(ctx, audit.ActionLeaveConversation, c.UserID, conversationID, "left conversation room")
	return r.hub.SendTo(c, domain.NewLeftMessage(conversationID))
}

// Typing tells the rest of the room that c's user is typing.
func (r *Router) Typing(ctx context.Context, c *hub.Client, conversationID string) error {
	return r.typing(ctx, c, domain.NewTypingEvent(conversationID, c.UserID))
}

// StopTyping tells the rest of the room that c's user stopped typing.
func (r *Router) StopTyping(ctx context.Context, c *hub.Client, conversationID string) error {
	return r.typing(ctx, c, domain.NewStopTypingEvent(conversationID, c.UserID))
}

func (r *Router) typing(ctx context.Context, c *hub.Client, ev *domain.TypingEvent) error {
	if _, err := r.authority.Authorize(ctx, c.UserID, ev.ConversationID); err != nil {
		return err
	}

	// Typing is best-effort; a dropped event is not an error for the sender.
	if err := r.hub.Broadcast(ctx, ev.ConversationID, ev, c.ID); err != nil {
		l := log.Ctx(ctx)
		l.Debug().Err(err).Str(log.FieldConversationID, ev.ConversationID).Msg("typing event dropped")
	}
	return nil
}

// Publish broadcasts a committed event to the whole room, sender's
// connections included. Failures are logged, never returned: the state
// change is already durable.
func (r *Router) Publish(ctx context.Context, conversationID string, event domain.Event) {
	if err := r.hub.Broadcast(ctx, conversationID, event, ""); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).
			Str(log.FieldConversationID, conversationID).
			Str(log.FieldEventType, event.EventType()).
			Msg("failed to broadcast event")
	}
}

// EvictMember unsubscribes every connection of userID from the room, used
// when the user loses membership.
func (r *Router) EvictMember(ctx context.Context, conversationID, userID string) {
	if n := r.hub.RemoveUserFromRoom(userID, conversationID); n > 0 {
		l := log.Ctx(ctx)
		l.Debug().Str(log.FieldConversationID, conversationID).Str(log.FieldUserID, userID).Int("connections", n).Msg("evicted member from room")
	}
}

// CloseConversation broadcasts conversation_deleted and then tears the room
// down. The event is queued with its recipients before the teardown.
func (r *Router) CloseConversation(ctx context.Context, conversationID string) {
	r.Publish(ctx, conversationID, domain.NewConversationDeletedEvent(conversationID))
	r.hub.CloseRoom(conversationID)
}
