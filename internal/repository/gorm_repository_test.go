package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rusikfsk/unichat/internal/domain"
	"github.com/rusikfsk/unichat/pkg/database"
)

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestRepo(t *testing.T) *GormRepository {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.New(&database.Config{
		Driver:       "sqlite",
		FilePath:     fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		LogLevel:     "silent",
		MaxOpenConns: 1,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close(db) })

	repo := NewGormRepository(db)
	if err := repo.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo
}

func seedUser(t *testing.T, repo *GormRepository, id string) {
	t.Helper()
	err := repo.CreateUser(context.Background(), &domain.User{
		ID:        id,
		Username:  id,
		CreatedAt: baseTime,
	})
	if err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
}

func seedConversation(t *testing.T, repo *GormRepository, id string, kind domain.ConversationKind, members ...string) {
	t.Helper()
	ms := make([]domain.Membership, len(members))
	for i, u := range members {
		ms[i] = domain.Membership{
			ConversationID: id,
			UserID:         u,
			Role:           domain.RoleMember,
			Permissions:    domain.DefaultMemberPermissions,
			JoinedAt:       baseTime,
		}
	}
	conv := &domain.Conversation{ID: id, Kind: kind, Title: id, CreatedAt: baseTime}
	if err := repo.CreateConversation(context.Background(), conv, "", ms); err != nil {
		t.Fatalf("seed conversation %s: %v", id, err)
	}
}

func seedMessage(t *testing.T, repo *GormRepository, id, conv, sender string, at time.Time) {
	t.Helper()
	msg := &domain.Message{ID: id, ConversationID: conv, SenderID: sender, Text: "text " + id, CreatedAt: at}
	if err := repo.CreateMessage(context.Background(), msg); err != nil {
		t.Fatalf("seed message %s: %v", id, err)
	}
}

func TestCreateUserRejectsDuplicateUsernameCaseInsensitive(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.CreateUser(ctx, &domain.User{ID: "u1", Username: "Alice", CreatedAt: baseTime}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	err := repo.CreateUser(ctx, &domain.User{ID: "u2", Username: "alice", CreatedAt: baseTime})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestDirectKeyIsUnique(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	key := domain.DirectKey("a", "b")

	first := &domain.Conversation{ID: "c1", Kind: domain.KindDirect, CreatedAt: baseTime}
	if err := repo.CreateConversation(ctx, first, key, nil); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	second := &domain.Conversation{ID: "c2", Kind: domain.KindDirect, CreatedAt: baseTime}
	if err := repo.CreateConversation(ctx, second, key, nil); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	found, err := repo.FindDirectConversation(ctx, domain.DirectKey("b", "a"))
	if err != nil {
		t.Fatalf("FindDirectConversation: %v", err)
	}
	if found.ID != "c1" {
		t.Fatalf("found %s, want c1", found.ID)
	}
	if _, err := repo.GetConversation(ctx, "c2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("conflicting conversation was persisted: %v", err)
	}
}

func TestListMessagesBeforeTieBreaksOnID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedConversation(t, repo, "c1", domain.KindGroup, "u1")

	// m2 and m3 share a timestamp.
	seedMessage(t, repo, "m1", "c1", "u1", baseTime)
	seedMessage(t, repo, "m2", "c1", "u1", baseTime.Add(time.Second))
	seedMessage(t, repo, "m3", "c1", "u1", baseTime.Add(time.Second))
	seedMessage(t, repo, "m4", "c1", "u1", baseTime.Add(2*time.Second))
	seedMessage(t, repo, "m5", "c1", "u1", baseTime.Add(3*time.Second))

	var seen []string
	var before *domain.Message
	for page := 0; page < 10; page++ {
		msgs, err := repo.ListMessagesBefore(ctx, "c1", before, 2)
		if err != nil {
			t.Fatalf("ListMessagesBefore: %v", err)
		}
		if len(msgs) == 0 {
			break
		}
		for _, m := range msgs {
			seen = append(seen, m.ID)
		}
		last := msgs[len(msgs)-1]
		before = &last
	}

	want := "m5,m4,m3,m2,m1"
	if got := strings.Join(seen, ","); got != want {
		t.Fatalf("pages = %s, want %s", got, want)
	}
}

func TestAdvanceLastReadIsMonotonic(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedConversation(t, repo, "c1", domain.KindGroup, "u1")

	later := baseTime.Add(time.Hour)
	got, err := repo.AdvanceLastRead(ctx, "c1", "u1", later)
	if err != nil {
		t.Fatalf("AdvanceLastRead: %v", err)
	}
	if !got.Equal(later) {
		t.Fatalf("cursor = %v, want %v", got, later)
	}

	got, err = repo.AdvanceLastRead(ctx, "c1", "u1", baseTime)
	if err != nil {
		t.Fatalf("AdvanceLastRead earlier: %v", err)
	}
	if !got.Equal(later) {
		t.Fatalf("cursor regressed to %v", got)
	}

	if _, err := repo.AdvanceLastRead(ctx, "c1", "stranger", later); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for non-member, got %v", err)
	}
}

func TestCountUnread(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedConversation(t, repo, "c1", domain.KindGroup, "u1", "u2")

	seedMessage(t, repo, "m1", "c1", "u2", baseTime)
	seedMessage(t, repo, "m2", "c1", "u1", baseTime.Add(time.Second))
	seedMessage(t, repo, "m3", "c1", "u2", baseTime.Add(2*time.Second))

	n, err := repo.CountUnread(ctx, "c1", "u1", nil)
	if err != nil || n != 2 {
		t.Fatalf("unread with nil cursor = %d, %v; want 2", n, err)
	}

	cursor := baseTime
	n, err = repo.CountUnread(ctx, "c1", "u1", &cursor)
	if err != nil || n != 1 {
		t.Fatalf("unread after m1 = %d, %v; want 1", n, err)
	}
}

func TestBindAttachmentsIsAllOrNothing(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, id := range []string{"a1", "a2", "a3"} {
		err := repo.CreateAttachment(ctx, &domain.Attachment{
			ID: id, UploaderID: "u1", FileName: id, StorageKey: "k/" + id, CreatedAt: baseTime,
		})
		if err != nil {
			t.Fatalf("CreateAttachment: %v", err)
		}
	}

	if err := repo.BindAttachments(ctx, "m1", "u1", []string{"a1"}); err != nil {
		t.Fatalf("BindAttachments: %v", err)
	}

	// a1 is taken, so a2 must stay unbound.
	err := repo.BindAttachments(ctx, "m2", "u1", []string{"a2", "a1"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	a2, _ := repo.GetAttachment(ctx, "a2")
	if a2.Bound() {
		t.Fatalf("a2 bound to %s after failed bind", a2.MessageID)
	}
	a1, _ := repo.GetAttachment(ctx, "a1")
	if a1.MessageID != "m1" {
		t.Fatalf("a1 moved to %s", a1.MessageID)
	}

	// Wrong uploader.
	if err := repo.BindAttachments(ctx, "m3", "u2", []string{"a3"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for foreign uploader, got %v", err)
	}
}

func TestDeleteConversationCascades(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedConversation(t, repo, "c1", domain.KindGroup, "u1", "u2")
	seedConversation(t, repo, "c2", domain.KindGroup, "u1")
	seedMessage(t, repo, "m1", "c1", "u1", baseTime)
	seedMessage(t, repo, "m2", "c2", "u1", baseTime)

	for _, a := range []struct{ id, msg string }{{"a1", "m1"}, {"a2", "m2"}} {
		if err := repo.CreateAttachment(ctx, &domain.Attachment{
			ID: a.id, UploaderID: "u1", FileName: a.id, StorageKey: "k/" + a.id, CreatedAt: baseTime,
		}); err != nil {
			t.Fatalf("CreateAttachment: %v", err)
		}
		if err := repo.BindAttachments(ctx, a.msg, "u1", []string{a.id}); err != nil {
			t.Fatalf("BindAttachments: %v", err)
		}
	}

	removed, err := repo.DeleteConversation(ctx, "c1")
	if err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}
	if len(removed) != 1 || removed[0].ID != "a1" {
		t.Fatalf("removed = %+v, want [a1]", removed)
	}

	if _, err := repo.GetConversation(ctx, "c1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("conversation survived: %v", err)
	}
	if _, err := repo.GetMessage(ctx, "m1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("message survived: %v", err)
	}
	if _, err := repo.GetMembership(ctx, "c1", "u2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("membership survived: %v", err)
	}
	if _, err := repo.GetAttachment(ctx, "a1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("attachment survived: %v", err)
	}

	// c2 is untouched.
	if _, err := repo.GetMessage(ctx, "m2"); err != nil {
		t.Fatalf("unrelated message removed: %v", err)
	}
	if _, err := repo.GetAttachment(ctx, "a2"); err != nil {
		t.Fatalf("unrelated attachment removed: %v", err)
	}

	if _, err := repo.DeleteConversation(ctx, "c1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestDeleteUnboundBefore(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	items := []struct {
		id  string
		at  time.Time
		msg string
	}{
		{"old-unbound", baseTime, ""},
		{"old-bound", baseTime, "m1"},
		{"fresh-unbound", baseTime.Add(48 * time.Hour), ""},
	}
	for _, it := range items {
		if err := repo.CreateAttachment(ctx, &domain.Attachment{
			ID: it.id, UploaderID: "u1", FileName: it.id, StorageKey: "k/" + it.id, CreatedAt: it.at,
		}); err != nil {
			t.Fatalf("CreateAttachment: %v", err)
		}
		if it.msg != "" {
			if err := repo.BindAttachments(ctx, it.msg, "u1", []string{it.id}); err != nil {
				t.Fatalf("BindAttachments: %v", err)
			}
		}
	}

	removed, err := repo.DeleteUnboundBefore(ctx, baseTime.Add(24*time.Hour), 100)
	if err != nil {
		t.Fatalf("DeleteUnboundBefore: %v", err)
	}
	if len(removed) != 1 || removed[0].ID != "old-unbound" {
		t.Fatalf("removed = %+v, want [old-unbound]", removed)
	}
	if _, err := repo.GetAttachment(ctx, "old-bound"); err != nil {
		t.Fatalf("bound attachment removed: %v", err)
	}
	if _, err := repo.GetAttachment(ctx, "fresh-unbound"); err != nil {
		t.Fatalf("fresh attachment removed: %v", err)
	}
}

func TestListConversationSummaries(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedConversation(t, repo, "quiet", domain.KindGroup, "u1", "u2")
	seedConversation(t, repo, "busy", domain.KindGroup, "u1", "u2", "u3")
	seedConversation(t, repo, "other", domain.KindGroup, "u2")
	seedMessage(t, repo, "m1", "busy", "u2", baseTime.Add(time.Minute))
	seedMessage(t, repo, "m2", "busy", "u3", baseTime.Add(2*time.Minute))

	summaries, err := repo.ListConversationSummaries(ctx, "u1")
	if err != nil {
		t.Fatalf("ListConversationSummaries: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("got %d summaries, want 2", len(summaries))
	}

	busy := summaries[0]
	if busy.ID != "busy" {
		t.Fatalf("first summary %s, want busy", busy.ID)
	}
	if busy.MemberCount != 3 || busy.UnreadCount != 2 || busy.LastMessageText != "text m2" {
		t.Fatalf("busy summary = %+v", busy)
	}
	if summaries[1].ID != "quiet" || summaries[1].LastMessageAt != nil {
		t.Fatalf("quiet summary = %+v", summaries[1])
	}
}

func TestTransactionRollsBack(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedConversation(t, repo, "c1", domain.KindGroup, "u1")

	boom := errors.New("boom")
	err := repo.Transaction(ctx, func(tx Repository) error {
		seedErr := tx.CreateMessage(ctx, &domain.Message{ID: "m1", ConversationID: "c1", SenderID: "u1", CreatedAt: baseTime})
		if seedErr != nil {
			return seedErr
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := repo.GetMessage(ctx, "m1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("message committed despite rollback: %v", err)
	}
}
