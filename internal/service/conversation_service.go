package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rusikfsk/unichat/internal/audit"
	"github.com/rusikfsk/unichat/internal/domain"
	"github.com/rusikfsk/unichat/internal/repository"
)

// CreateConversation creates a conversation with the actor as a member. A
// direct conversation between the same pair is returned instead of created.
func (s *chatServiceImpl) CreateConversation(ctx context.Context, actorID string, req *domain.CreateConversationRequest) (*domain.Conversation, error) {
	kind, err := domain.ParseConversationKind(req.Kind)
	if err != nil {
		return nil, err
	}
	memberIDs := normalizeIDs(req.MemberIDs)

	if kind == domain.KindDirect {
		if len(memberIDs) != 1 {
			return nil, domain.Validationf("direct conversation requires exactly one member id")
		}
		if memberIDs[0] == actorID {
			return nil, domain.Validationf("cannot create a direct conversation with yourself")
		}
		return s.createDirect(ctx, actorID, memberIDs[0])
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, domain.Validationf("title is required")
	}

	others := make([]string, 0, len(memberIDs))
	for _, id := range memberIDs {
		if id != actorID {
			others = append(others, id)
		}
	}
	if err := s.requireUsers(ctx, others); err != nil {
		return nil, err
	}

	now := s.now()
	conv := &domain.Conversation{
		ID:        s.entityIDs.NewID(),
		Kind:      kind,
		Title:     title,
		CreatedAt: now,
	}

	creator := domain.Membership{
		ConversationID: conv.ID,
		UserID:         actorID,
		Role:           domain.RoleMember,
		Permissions:    domain.DefaultMemberPermissions,
		JoinedAt:       now,
	}
	if kind == domain.KindChannel {
		conv.OwnerID = actorID
		creator.Role = domain.RoleOwner
		creator.Permissions = domain.PermAll
	}

	members := []domain.Membership{creator}
	for _, id := range others {
		members = append(members, domain.Membership{
			ConversationID: conv.ID,
			UserID:         id,
			Role:           domain.RoleMember,
			Permissions:    domain.DefaultMemberPermissions,
			JoinedAt:       now,
		})
	}

	if err := s.repo.CreateConversation(ctx, conv, "", members); err != nil {
		return nil, err
	}

	audit.LogConversation(ctx, audit.ActionCreateConversation, actorID, conv.ID, "conversation created")
	return conv, nil
}

func (s *chatServiceImpl) createDirect(ctx context.Context, actorID, otherID string) (*domain.Conversation, error) {
	key := domain.DirectKey(actorID, otherID)

	existing, err := s.repo.FindDirectConversation(ctx, key)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	if err := s.requireUsers(ctx, []string{otherID}); err != nil {
		return nil, err
	}

	now := s.now()
	conv := &domain.Conversation{
		ID:        s.entityIDs.NewID(),
		Kind:      domain.KindDirect,
		CreatedAt: now,
	}
	members := make([]domain.Membership, 0, 2)
	for _, id := range []string{actorID, otherID} {
		members = append(members, domain.Membership{
			ConversationID: conv.ID,
			UserID:         id,
			Role:           domain.RoleMember,
			Permissions:    domain.DefaultMemberPermissions,
			JoinedAt:       now,
		})
	}

	if err := s.repo.CreateConversation(ctx, conv, key, members); err != nil {
		// Lost a race with a concurrent create for the same pair.
		if errors.Is(err, repository.ErrConflict) {
			return s.repo.FindDirectConversation(ctx, key)
		}
		return nil, err
	}

	audit.LogConversation(ctx, audit.ActionCreateConversation, actorID, conv.ID, "direct conversation created")
	return conv, nil
}

// requireUsers fails with NotFound when any id has no profile.
func (s *chatServiceImpl) requireUsers(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	users, err := s.users.GetUsers(ctx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := users[id]; !ok {
			return domain.NotFoundf("user %s not found", id)
		}
	}
	return nil
}

func (s *chatServiceImpl) GetConversation(ctx context.Context, userID, conversationID string) (*domain.Conversation, error) {
	grant, err := s.authority.Authorize(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	return grant.Conversation, nil
}

func (s *chatServiceImpl) ListConversations(ctx context.Context, userID string) ([]domain.ConversationSummary, error) {
	return s.repo.ListConversationSummaries(ctx, userID)
}

func (s *chatServiceImpl) ListMembers(ctx context.Context, userID, conversationID string) ([]domain.MemberView, error) {
	if _, err := s.authority.Authorize(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	members, err := s.repo.ListMembers(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(members))
	for i := range members {
		ids[i] = members[i].UserID
	}
	users, err := s.users.GetUsers(ctx, ids)
	if err != nil {
		return nil, err
	}

	views := make([]domain.MemberView, 0, len(members))
	for _, m := range members {
		v := domain.MemberView{Membership: m}
		if u, ok := users[m.UserID]; ok {
			v.Username = u.Username
			v.DisplayName = u.Name()
		}
		views = append(views, v)
	}
	return views, nil
}

func (s *chatServiceImpl) AddMember(ctx context.Context, actorID, conversationID, userID string) (*domain.Membership, error) {
	if userID == "" {
		return nil, domain.Validationf("user id is required")
	}

	grant, err := s.authority.Require(ctx, actorID, conversationID, domain.PermInvite)
	if err != nil {
		return nil, err
	}
	if grant.Conversation.Kind == domain.KindDirect {
		return nil, domain.Validationf("cannot add members to a direct conversation")
	}

	if _, err := s.repo.GetMembership(ctx, conversationID, userID); err == nil {
		return nil, domain.Conflictf("user is already a member")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if err := s.requireUsers(ctx, []string{userID}); err != nil {
		return nil, err
	}

	m := &domain.Membership{
		ConversationID: conversationID,
		UserID:         userID,
		Role:           domain.RoleMember,
		Permissions:    domain.DefaultMemberPermissions,
		JoinedAt:       s.now(),
	}
	if err := s.repo.AddMembership(ctx, m); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, domain.Conflictf("user is already a member")
		}
		return nil, err
	}

	s.events.Publish(ctx, conversationID, domain.NewMemberUpdatedEvent(conversationID, userID, domain.MemberAdded, actorID).WithMembership(m))
	s.events.Publish(ctx, conversationID, domain.NewConversationUpdatedEvent(conversationID, domain.ConversationMembersChanged))

	audit.LogTarget(ctx, audit.ActionAddMember, actorID, conversationID, userID, "member added")
	return m, nil
}

// UpdateMember changes a channel member's role and permissions. The owner
// changes only through TransferOwnership.
func (s *chatServiceImpl) UpdateMember(ctx context.Context, actorID, conversationID, userID string, req *domain.UpdateMemberRequest) (*domain.Membership, error) {
	grant, err := s.authority.Authorize(ctx, actorID, conversationID)
	if err != nil {
		return nil, err
	}
	if grant.Conversation.Kind != domain.KindChannel {
		return nil, domain.Validationf("roles and permissions are supported only for channels")
	}
	if !grant.Membership.HasPermission(domain.PermManageRoles) {
		return nil, domain.Forbiddenf("missing %s permission", domain.PermManageRoles)
	}

	target, err := s.repo.GetMembership(ctx, conversationID, userID)
	if err != nil {
		return nil, notFound(err, "member")
	}
	if target.IsOwner() {
		return nil, domain.Validationf("cannot change the owner, transfer ownership instead")
	}

	role := target.Role
	if req.Role != "" {
		if role, err = domain.ParseRole(req.Role); err != nil {
			return nil, err
		}
		if role == domain.RoleOwner {
			return nil, domain.Validationf("owner role is granted only by transferring ownership")
		}
	}
	perms := target.Permissions
	if req.Permissions != nil {
		if perms, err = domain.ParsePermissions(req.Permissions); err != nil {
			return nil, err
		}
	}

	if err := s.repo.UpdateMembership(ctx, conversationID, userID, role, perms); err != nil {
		return nil, notFound(err, "member")
	}
	target.Role, target.Permissions = role, perms

	s.events.Publish(ctx, conversationID, domain.NewMemberUpdatedEvent(conversationID, userID, domain.MemberUpdated, actorID).WithMembership(target))

	audit.LogTarget(ctx, audit.ActionUpdateMember, actorID, conversationID, userID, "member updated")
	return target, nil
}

func (s *chatServiceImpl) RemoveMember(ctx context.Context, actorID, conversationID, userID string) error {
	grant, err := s.authority.Require(ctx, actorID, conversationID, domain.PermManageRoles)
	if err != nil {
		return err
	}
	if grant.Conversation.Kind == domain.KindDirect {
		return domain.Validationf("cannot remove members from a direct conversation")
	}

	target, err := s.repo.GetMembership(ctx, conversationID, userID)
	if err != nil {
		return notFound(err, "member")
	}
	if target.IsOwner() {
		return domain.Validationf("cannot remove the owner, transfer ownership first")
	}

	if err := s.repo.DeleteMembership(ctx, conversationID, userID); err != nil {
		return notFound(err, "member")
	}

	s.events.Publish(ctx, conversationID, domain.NewMemberUpdatedEvent(conversationID, userID, domain.MemberRemoved, actorID))
	s.events.Publish(ctx, conversationID, domain.NewConversationUpdatedEvent(conversationID, domain.ConversationMembersChanged))
	s.events.EvictMember(ctx, conversationID, userID)

	audit.LogTarget(ctx, audit.ActionRemoveMember, actorID, conversationID, userID, "member removed")
	return nil
}

// LeaveConversation drops the caller's membership. Leaving a conversation
// the caller is not in is a no-op.
func (s *chatServiceImpl) LeaveConversation(ctx context.Context, userID, conversationID string) error {
	if conversationID == "" {
		return domain.Validationf("conversation id is required")
	}

	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return notFound(err, "conversation")
	}
	if conv.Kind == domain.KindDirect {
		return domain.Validationf("cannot leave a direct conversation")
	}

	m, err := s.repo.GetMembership(ctx, conversationID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}
	if m.IsOwner() {
		return domain.Validationf("owner cannot leave, transfer ownership or delete the channel")
	}

	if err := s.repo.DeleteMembership(ctx, conversationID, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}

	s.events.Publish(ctx, conversationID, domain.NewMemberUpdatedEvent(conversationID, userID, domain.MemberLeft, userID))
	s.events.Publish(ctx, conversationID, domain.NewConversationUpdatedEvent(conversationID, domain.ConversationMembersChanged))
	s.events.EvictMember(ctx, conversationID, userID)

	audit.LogConversation(ctx, audit.ActionLeaveMembership, userID, conversationID, "left conversation")
	return nil
}

// TransferOwnership makes newOwnerID the channel owner and demotes the
// current owner to admin. Both keep every permission bit.
func (s *chatServiceImpl) TransferOwnership(ctx context.Context, actorID, conversationID, newOwnerID string) error {
	if newOwnerID == "" {
		return domain.Validationf("new owner id is required")
	}

	grant, err := s.authority.Authorize(ctx, actorID, conversationID)
	if err != nil {
		return err
	}
	if grant.Conversation.Kind != domain.KindChannel {
		return domain.Validationf("ownership can be transferred only for channels")
	}
	if grant.Conversation.OwnerID != actorID || !grant.Membership.IsOwner() {
		return domain.Forbiddenf("only the owner can transfer ownership")
	}
	if newOwnerID == actorID {
		return domain.Validationf("already the owner")
	}

	err = s.repo.Transaction(ctx, func(tx repository.Repository) error {
		if _, err := tx.GetMembership(ctx, conversationID, newOwnerID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.Validationf("new owner must be a member of this channel")
			}
			return err
		}
		if err := tx.UpdateMembership(ctx, conversationID, actorID, domain.RoleAdmin, domain.PermAll); err != nil {
			return err
		}
		if err := tx.UpdateMembership(ctx, conversationID, newOwnerID, domain.RoleOwner, domain.PermAll); err != nil {
			return err
		}
		return tx.SetConversationOwner(ctx, conversationID, newOwnerID)
	})
	if err != nil {
		return err
	}

	oldOwner := &domain.Membership{ConversationID: conversationID, UserID: actorID, Role: domain.RoleAdmin, Permissions: domain.PermAll}
	newOwner := &domain.Membership{ConversationID: conversationID, UserID: newOwnerID, Role: domain.RoleOwner, Permissions: domain.PermAll}
	s.events.Publish(ctx, conversationID, domain.NewMemberUpdatedEvent(conversationID, actorID, domain.MemberUpdated, actorID).WithMembership(oldOwner))
	s.events.Publish(ctx, conversationID, domain.NewMemberUpdatedEvent(conversationID, newOwnerID, domain.MemberOwnershipTransferred, actorID).WithMembership(newOwner))

	updated := domain.NewConversationUpdatedEvent(conversationID, domain.ConversationOwnershipChanged)
	updated.OwnerID = newOwnerID
	s.events.Publish(ctx, conversationID, updated)

	audit.LogTarget(ctx, audit.ActionTransferOwnership, actorID, conversationID, newOwnerID, "ownership transferred")
	return nil
}

// DeleteConversation removes a group or channel with everything in it.
func (s *chatServiceImpl) DeleteConversation(ctx context.Context, actorID, conversationID string) error {
	grant, err := s.authority.Authorize(ctx, actorID, conversationID)
	if err != nil {
		return err
	}

	switch grant.Conversation.Kind {
	case domain.KindDirect:
		return domain.Validationf("direct conversations cannot be deleted")
	case domain.KindChannel:
		if grant.Conversation.OwnerID != actorID {
			return domain.Forbiddenf("only the owner can delete a channel")
		}
	default:
		if !grant.Membership.HasPermission(domain.PermManageChannel) {
			return domain.Forbiddenf("missing %s permission", domain.PermManageChannel)
		}
	}

	removed, err := s.repo.DeleteConversation(ctx, conversationID)
	if err != nil {
		return notFound(err, "conversation")
	}

	s.deleteBlobs(ctx, removed)
	s.events.CloseConversation(ctx, conversationID)

	audit.LogConversation(ctx, audit.ActionDeleteConversation, actorID, conversationID, "conversation deleted")
	return nil
}
