package membership

import (
	"context"
	"errors"

	"github.com/rusikfsk/unichat/internal/domain"
	"github.com/rusikfsk/unichat/internal/repository"
)

// Store is the storage the authority reads from.
type Store interface {
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)
	GetMembership(ctx context.Context, conversationID, userID string) (*domain.Membership, error)
}

// Grant is the result of a successful authorization.
type Grant struct {
	Conversation *domain.Conversation
	Membership   *domain.Membership
}

// Authority answers whether a user may act on a conversation. Every call
// reads the membership table; nothing is cached between calls, so a removed
// member is refused on the next check.
type Authority struct {
	store Store
}

// NewAuthority creates a new Authority.
func NewAuthority(store Store) *Authority {
	return &Authority{store: store}
}

// Authorize returns the caller's membership in conversationID.
func (a *Authority) Authorize(ctx context.Context, userID, conversationID string) (*Grant, error) {
	if conversationID == "" {
		return nil, domain.Validationf("conversation id is required")
	}

	conv, err := a.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFoundf("conversation not found")
		}
		return nil, err
	}

	m, err := a.store.GetMembership(ctx, conversationID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.Forbiddenf("not a member of this conversation")
		}
		return nil, err
	}

	return &Grant{Conversation: conv, Membership: m}, nil
}

// AuthorizeWrite authorizes and additionally requires posting rights.
func (a *Authority) AuthorizeWrite(ctx context.Context, userID, conversationID string) (*Grant, error) {
	g, err := a.Authorize(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if !g.Membership.CanWrite(g.Conversation.Kind) {
		return nil, domain.Forbiddenf("no write permission in this channel")
	}
	return g, nil
}

// Require authorizes and requires flag on channel memberships. Direct and
// group memberships pass without it.
func (a *Authority) Require(ctx context.Context, userID, conversationID string, flag domain.Permission) (*Grant, error) {
	g, err := a.Authorize(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if g.Conversation.Kind == domain.KindChannel && !HasPermission(g.Membership, flag) {
		return nil, domain.Forbiddenf("missing %s permission", flag)
	}
	return g, nil
}

// HasPermission reports whether m carries flag.
func HasPermission(m *domain.Membership, flag domain.Permission) bool {
	return m.HasPermission(flag)
}

// IsOwner reports whether m is the conversation owner.
func IsOwner(m *domain.Membership) bool {
	return m.IsOwner()
}
