package membership

import (
	"context"
	"errors"
	"testing"

	"github.com/rusikfsk/unichat/internal/domain"
	"github.com/rusikfsk/unichat/internal/repository"
)

type fakeStore struct {
	convs   map[string]*domain.Conversation
	members map[string]*domain.Membership
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		convs:   make(map[string]*domain.Conversation),
		members: make(map[string]*domain.Membership),
	}
}

func (s *fakeStore) GetConversation(_ context.Context, id string) (*domain.Conversation, error) {
	if c, ok := s.convs[id]; ok {
		return c, nil
	}
	return nil, repository.ErrNotFound
}

func (s *fakeStore) GetMembership(_ context.Context, conversationID, userID string) (*domain.Membership, error) {
	if m, ok := s.members[conversationID+"/"+userID]; ok {
		return m, nil
	}
	return nil, repository.ErrNotFound
}

func (s *fakeStore) add(convID string, kind domain.ConversationKind, userID string, perms domain.Permission) {
	s.convs[convID] = &domain.Conversation{ID: convID, Kind: kind}
	s.members[convID+"/"+userID] = &domain.Membership{
		ConversationID: convID, UserID: userID, Role: domain.RoleMember, Permissions: perms,
	}
}

func TestAuthorize(t *testing.T) {
	store := newFakeStore()
	store.add("g1", domain.KindGroup, "u1", domain.PermNone)
	auth := NewAuthority(store)
	ctx := context.Background()

	if _, err := auth.Authorize(ctx, "u1", "g1"); err != nil {
		t.Fatalf("member refused: %v", err)
	}
	if _, err := auth.Authorize(ctx, "u2", "g1"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-member, got %v", err)
	}
	if _, err := auth.Authorize(ctx, "u1", "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := auth.Authorize(ctx, "u1", ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestAuthorizeSeesRemovalImmediately(t *testing.T) {
	store := newFakeStore()
	store.add("g1", domain.KindGroup, "u1", domain.PermWrite)
	auth := NewAuthority(store)
	ctx := context.Background()

	if _, err := auth.Authorize(ctx, "u1", "g1"); err != nil {
		t.Fatalf("member refused: %v", err)
	}
	delete(store.members, "g1/u1")
	if _, err := auth.Authorize(ctx, "u1", "g1"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("removed member still authorized: %v", err)
	}
}

func TestAuthorizeWrite(t *testing.T) {
	store := newFakeStore()
	store.add("g1", domain.KindGroup, "reader", domain.PermNone)
	store.add("ch", domain.KindChannel, "reader", domain.PermNone)
	store.members["ch/writer"] = &domain.Membership{ConversationID: "ch", UserID: "writer", Permissions: domain.PermWrite}
	auth := NewAuthority(store)
	ctx := context.Background()

	cases := []struct {
		user, conv string
		ok         bool
	}{
		{"reader", "g1", true},
		{"reader", "ch", false},
		{"writer", "ch", true},
	}
	for _, tc := range cases {
		_, err := auth.AuthorizeWrite(ctx, tc.user, tc.conv)
		if tc.ok && err != nil {
			t.Errorf("%s in %s: unexpected error %v", tc.user, tc.conv, err)
		}
		if !tc.ok && !errors.Is(err, domain.ErrForbidden) {
			t.Errorf("%s in %s: expected ErrForbidden, got %v", tc.user, tc.conv, err)
		}
	}
}

func TestRequire(t *testing.T) {
	store := newFakeStore()
	store.add("ch", domain.KindChannel, "u1", domain.PermWrite)
	store.add("g1", domain.KindGroup, "u1", domain.PermWrite)
	auth := NewAuthority(store)
	ctx := context.Background()

	if _, err := auth.Require(ctx, "u1", "ch", domain.PermInvite); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden without invite, got %v", err)
	}
	if _, err := auth.Require(ctx, "u1", "g1", domain.PermInvite); err != nil {
		t.Fatalf("group member should pass: %v", err)
	}
}
