package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rusikfsk/unichat/internal/domain"
	"github.com/rusikfsk/unichat/internal/repository"
)

func TestCreateDirectIsDeduplicated(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "alice", "bob")

	first := env.createConversation(t, "alice", domain.KindDirect, "bob")
	second := env.createConversation(t, "bob", domain.KindDirect, "alice", "alice", "")
	if first.ID != second.ID {
		t.Fatalf("direct conversation duplicated: %s vs %s", first.ID, second.ID)
	}
	if first.Kind != domain.KindDirect || first.OwnerID != "" {
		t.Fatalf("unexpected direct conversation %+v", first)
	}

	members, err := env.repo.ListMembers(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("ListMembers: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}
}

func TestCreateConversationValidation(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "alice", "bob")
	ctx := context.Background()

	tests := []struct {
		name string
		req  domain.CreateConversationRequest
		want error
	}{
		{"unknown kind", domain.CreateConversationRequest{Kind: "forum", Title: "x"}, domain.ErrValidation},
		{"direct with nobody", domain.CreateConversationRequest{Kind: "direct"}, domain.ErrValidation},
		{"direct with two", domain.CreateConversationRequest{Kind: "direct", MemberIDs: []string{"bob", "carol"}}, domain.ErrValidation},
		{"direct with self", domain.CreateConversationRequest{Kind: "direct", MemberIDs: []string{"alice"}}, domain.ErrValidation},
		{"direct with unknown", domain.CreateConversationRequest{Kind: "direct", MemberIDs: []string{"ghost"}}, domain.ErrNotFound},
		{"group without title", domain.CreateConversationRequest{Kind: "group", Title: "  "}, domain.ErrValidation},
		{"group with unknown", domain.CreateConversationRequest{Kind: "group", Title: "x", MemberIDs: []string{"ghost"}}, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.CreateConversation(ctx, "alice", &tt.req)
			expectErr(t, err, tt.want)
		})
	}
}

func TestCreateChannelRoles(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "alice", "bob")
	ctx := context.Background()

	conv := env.createConversation(t, "alice", domain.KindChannel, "bob", "alice")
	if conv.OwnerID != "alice" {
		t.Fatalf("owner = %q", conv.OwnerID)
	}

	owner, err := env.repo.GetMembership(ctx, conv.ID, "alice")
	if err != nil {
		t.Fatalf("GetMembership: %v", err)
	}
	if owner.Role != domain.RoleOwner || owner.Permissions != domain.PermAll {
		t.Fatalf("unexpected owner membership %+v", owner)
	}
	member, err := env.repo.GetMembership(ctx, conv.ID, "bob")
	if err != nil {
		t.Fatalf("GetMembership: %v", err)
	}
	if member.Role != domain.RoleMember || member.Permissions != domain.PermWrite {
		t.Fatalf("unexpected member membership %+v", member)
	}

	views, err := env.svc.ListMembers(ctx, "bob", conv.ID)
	if err != nil {
		t.Fatalf("ListMembers: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 members, got %d", len(views))
	}
	for _, v := range views {
		if v.Username != v.UserID {
			t.Fatalf("member view missing profile: %+v", v)
		}
	}
}

func TestTransferOwnership(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "alice", "bob", "carol")
	conv := env.createConversation(t, "alice", domain.KindChannel, "bob", "carol")
	ctx := context.Background()

	expectErr(t, env.svc.TransferOwnership(ctx, "bob", conv.ID, "carol"), domain.ErrForbidden)
	expectErr(t, env.svc.TransferOwnership(ctx, "alice", conv.ID, "ghost"), domain.ErrValidation)
	expectErr(t, env.svc.TransferOwnership(ctx, "alice", conv.ID, "alice"), domain.ErrValidation)
	env.events.reset()

	if err := env.svc.TransferOwnership(ctx, "alice", conv.ID, "bob"); err != nil {
		t.Fatalf("TransferOwnership: %v", err)
	}

	a, _ := env.repo.GetMembership(ctx, conv.ID, "alice")
	b, _ := env.repo.GetMembership(ctx, conv.ID, "bob")
	if a.Role != domain.RoleAdmin || a.Permissions != domain.PermAll {
		t.Fatalf("old owner = %+v", a)
	}
	if b.Role != domain.RoleOwner || b.Permissions != domain.PermAll {
		t.Fatalf("new owner = %+v", b)
	}
	c, err := env.repo.GetConversation(ctx, conv.ID)
	if err != nil || c.OwnerID != "bob" {
		t.Fatalf("conversation owner = %+v, %v", c, err)
	}

	updated := env.events.ofType(domain.EventConversationUpdated)
	if len(updated) != 1 {
		t.Fatalf("expected exactly one conversation_updated, got %d", len(updated))
	}
	if ev := updated[0].(*domain.ConversationUpdatedEvent); ev.Action != domain.ConversationOwnershipChanged || ev.OwnerID != "bob" {
		t.Fatalf("unexpected event %+v", ev)
	}

	var transferred int
	for _, e := range env.events.ofType(domain.EventMemberUpdated) {
		if e.(*domain.MemberUpdatedEvent).Action == domain.MemberOwnershipTransferred {
			transferred++
		}
	}
	if transferred != 1 {
		t.Fatalf("expected one ownership_transferred, got %d", transferred)
	}

	// Only channels have owners.
	group := env.createConversation(t, "alice", domain.KindGroup, "bob")
	expectErr(t, env.svc.TransferOwnership(ctx, "alice", group.ID, "bob"), domain.ErrValidation)
}

func TestRemoveMember(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "alice", "bob", "carol")
	conv := env.createConversation(t, "alice", domain.KindChannel, "bob", "carol")
	ctx := context.Background()

	err := env.svc.RemoveMember(ctx, "alice", conv.ID, "alice")
	expectErr(t, err, domain.ErrValidation)
	expectErr(t, env.svc.RemoveMember(ctx, "bob", conv.ID, "carol"), domain.ErrForbidden)
	expectErr(t, env.svc.RemoveMember(ctx, "alice", conv.ID, "ghost"), domain.ErrNotFound)
	env.events.reset()

	if err := env.svc.RemoveMember(ctx, "alice", conv.ID, "carol"); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	if _, err := env.repo.GetMembership(ctx, conv.ID, "carol"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("membership still stored: %v", err)
	}

	got := env.events.types()
	if len(got) != 2 || got[0] != domain.EventMemberUpdated || got[1] != domain.EventConversationUpdated {
		t.Fatalf("unexpected events %v", got)
	}
	if ev := env.events.ofType(domain.EventMemberUpdated)[0].(*domain.MemberUpdatedEvent); ev.Action != domain.MemberRemoved || ev.UserID != "carol" || ev.ActorID != "alice" {
		t.Fatalf("unexpected member_updated %+v", ev)
	}
	if len(env.events.evicted) != 1 || env.events.evicted[0] != conv.ID+"/carol" {
		t.Fatalf("unexpected evictions %v", env.events.evicted)
	}

	// A removed member is refused on the next check.
	_, err = env.svc.SendMessage(ctx, "carol", conv.ID, &domain.SendMessageRequest{Text: "hi"})
	expectErr(t, err, domain.ErrForbidden)

	direct := env.createConversation(t, "alice", domain.KindDirect, "bob")
	expectErr(t, env.svc.RemoveMember(ctx, "alice", direct.ID, "bob"), domain.ErrValidation)
}

func TestAddMember(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "alice", "bob", "carol", "dave")
	ctx := context.Background()
	channel := env.createConversation(t, "alice", domain.KindChannel, "bob")
	group := env.createConversation(t, "alice", domain.KindGroup, "bob")
	direct := env.createConversation(t, "alice", domain.KindDirect, "bob")

	_, err := env.svc.AddMember(ctx, "bob", channel.ID, "carol")
	expectErr(t, err, domain.ErrForbidden)
	_, err = env.svc.AddMember(ctx, "alice", channel.ID, "bob")
	expectErr(t, err, domain.ErrConflict)
	_, err = env.svc.AddMember(ctx, "alice", channel.ID, "ghost")
	expectErr(t, err, domain.ErrNotFound)
	_, err = env.svc.AddMember(ctx, "alice", direct.ID, "carol")
	expectErr(t, err, domain.ErrValidation)
	_, err = env.svc.AddMember(ctx, "carol", group.ID, "dave")
	expectErr(t, err, domain.ErrForbidden)
	env.events.reset()

	// Any group member may invite.
	m, err := env.svc.AddMember(ctx, "bob", group.ID, "carol")
	if err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if m.Role != domain.RoleMember || m.Permissions != domain.DefaultMemberPermissions {
		t.Fatalf("unexpected membership %+v", m)
	}

	ev := env.events.ofType(domain.EventMemberUpdated)
	if len(ev) != 1 {
		t.Fatalf("unexpected events %v", env.events.types())
	}
	added := ev[0].(*domain.MemberUpdatedEvent)
	if added.Action != domain.MemberAdded || added.Role == nil || *added.Role != domain.RoleMember {
		t.Fatalf("unexpected member_updated %+v", added)
	}
	if len(env.events.ofType(domain.EventConversationUpdated)) != 1 {
		t.Fatalf("expected members_changed, got %v", env.events.types())
	}
}

func TestUpdateMember(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "alice", "bob", "carol")
	ctx := context.Background()
	channel := env.createConversation(t, "alice", domain.KindChannel, "bob", "carol")
	group := env.createConversation(t, "alice", domain.KindGroup, "bob")

	_, err := env.svc.UpdateMember(ctx, "alice", group.ID, "bob", &domain.UpdateMemberRequest{Role: "admin"})
	expectErr(t, err, domain.ErrValidation)
	_, err = env.svc.UpdateMember(ctx, "bob", channel.ID, "carol", &domain.UpdateMemberRequest{Role: "admin"})
	expectErr(t, err, domain.ErrForbidden)
	_, err = env.svc.UpdateMember(ctx, "alice", channel.ID, "alice", &domain.UpdateMemberRequest{Role: "admin"})
	expectErr(t, err, domain.ErrValidation)
	_, err = env.svc.UpdateMember(ctx, "alice", channel.ID, "bob", &domain.UpdateMemberRequest{Role: "owner"})
	expectErr(t, err, domain.ErrValidation)
	_, err = env.svc.UpdateMember(ctx, "alice", channel.ID, "bob", &domain.UpdateMemberRequest{Permissions: []string{"fly"}})
	expectErr(t, err, domain.ErrValidation)
	env.events.reset()

	m, err := env.svc.UpdateMember(ctx, "alice", channel.ID, "bob", &domain.UpdateMemberRequest{
		Role:        "admin",
		Permissions: []string{"write", "manage_roles"},
	})
	if err != nil {
		t.Fatalf("UpdateMember: %v", err)
	}
	want := domain.PermWrite | domain.PermManageRoles
	if m.Role != domain.RoleAdmin || m.Permissions != want {
		t.Fatalf("unexpected membership %+v", m)
	}
	stored, _ := env.repo.GetMembership(ctx, channel.ID, "bob")
	if stored.Role != domain.RoleAdmin || stored.Permissions != want {
		t.Fatalf("unexpected stored membership %+v", stored)
	}

	ev := env.events.ofType(domain.EventMemberUpdated)
	if len(ev) != 1 {
		t.Fatalf("unexpected events %v", env.events.types())
	}
	if u := ev[0].(*domain.MemberUpdatedEvent); u.Action != domain.MemberUpdated || *u.Permissions != want {
		t.Fatalf("unexpected member_updated %+v", u)
	}

	// bob can now manage roles.
	if _, err := env.svc.UpdateMember(ctx, "bob", channel.ID, "carol", &domain.UpdateMemberRequest{Permissions: []string{"write", "invite"}}); err != nil {
		t.Fatalf("delegated UpdateMember: %v", err)
	}
}

func TestLeaveConversation(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "alice", "bob", "carol")
	ctx := context.Background()
	channel := env.createConversation(t, "alice", domain.KindChannel, "bob")
	direct := env.createConversation(t, "alice", domain.KindDirect, "bob")

	expectErr(t, env.svc.LeaveConversation(ctx, "alice", channel.ID), domain.ErrValidation)
	expectErr(t, env.svc.LeaveConversation(ctx, "alice", direct.ID), domain.ErrValidation)
	expectErr(t, env.svc.LeaveConversation(ctx, "alice", "missing"), domain.ErrNotFound)

	if err := env.svc.LeaveConversation(ctx, "carol", channel.ID); err != nil {
		t.Fatalf("non-member leave: %v", err)
	}
	if len(env.events.types()) != 0 {
		t.Fatalf("non-member leave must not broadcast, got %v", env.events.types())
	}

	if err := env.svc.LeaveConversation(ctx, "bob", channel.ID); err != nil {
		t.Fatalf("LeaveConversation: %v", err)
	}
	if _, err := env.repo.GetMembership(ctx, channel.ID, "bob"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("membership still stored: %v", err)
	}
	if ev := env.events.ofType(domain.EventMemberUpdated); len(ev) != 1 || ev[0].(*domain.MemberUpdatedEvent).Action != domain.MemberLeft {
		t.Fatalf("unexpected events %v", env.events.types())
	}
	if len(env.events.evicted) != 1 {
		t.Fatalf("expected eviction, got %v", env.events.evicted)
	}
}

func TestDeleteConversationCascades(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "alice", "bob")
	ctx := context.Background()
	channel := env.createConversation(t, "alice", domain.KindChannel, "bob")
	direct := env.createConversation(t, "alice", domain.KindDirect, "bob")
	group := env.createConversation(t, "alice", domain.KindGroup, "bob")

	att := env.upload(t, "bob", "b.txt", "payload")
	a, _ := env.repo.GetAttachment(ctx, att.ID)
	msg := env.send(t, "bob", channel.ID, "hi", att.ID)

	expectErr(t, env.svc.DeleteConversation(ctx, "bob", channel.ID), domain.ErrForbidden)
	expectErr(t, env.svc.DeleteConversation(ctx, "alice", direct.ID), domain.ErrValidation)
	expectErr(t, env.svc.DeleteConversation(ctx, "alice", group.ID), domain.ErrForbidden)
	env.events.reset()

	if err := env.svc.DeleteConversation(ctx, "alice", channel.ID); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}

	if _, err := env.repo.GetConversation(ctx, channel.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("conversation still stored: %v", err)
	}
	if _, err := env.repo.GetMessage(ctx, msg.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("message still stored: %v", err)
	}
	if _, err := env.repo.GetAttachment(ctx, att.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("attachment still stored: %v", err)
	}
	if members, _ := env.repo.ListMembers(ctx, channel.ID); len(members) != 0 {
		t.Fatalf("memberships still stored: %d", len(members))
	}
	if ok, _ := env.blobs.Exists(ctx, a.StorageKey); ok {
		t.Fatal("blob still stored")
	}

	if len(env.events.closed) != 1 || env.events.closed[0] != channel.ID {
		t.Fatalf("room not closed: %v", env.events.closed)
	}
	if got := env.events.types(); len(got) != 1 || got[0] != domain.EventConversationDeleted {
		t.Fatalf("unexpected events %v", got)
	}

	// Other conversations are untouched.
	if _, err := env.repo.GetConversation(ctx, group.ID); err != nil {
		t.Fatalf("group lost: %v", err)
	}
}

func TestListConversationsUnread(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "alice", "bob")
	ctx := context.Background()
	conv := env.createConversation(t, "alice", domain.KindGroup, "bob")

	env.send(t, "alice", conv.ID, "one")
	env.clock.Advance(time.Second)
	env.send(t, "alice", conv.ID, "two")
	env.clock.Advance(time.Second)
	env.send(t, "bob", conv.ID, "mine")

	summaries, err := env.svc.ListConversations(ctx, "bob")
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(summaries))
	}
	// bob's own send advanced his cursor past alice's messages.
	if summaries[0].UnreadCount != 0 || summaries[0].LastMessageText != "mine" {
		t.Fatalf("unexpected summary %+v", summaries[0])
	}

	summaries, err = env.svc.ListConversations(ctx, "alice")
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if summaries[0].UnreadCount != 1 || summaries[0].MemberCount != 2 {
		t.Fatalf("unexpected summary %+v", summaries[0])
	}
}
