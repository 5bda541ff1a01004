package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rusikfsk/unichat/internal/domain"
	"github.com/rusikfsk/unichat/internal/repository"
	"github.com/rusikfsk/unichat/pkg/database"
	"github.com/rusikfsk/unichat/pkg/storage"
)

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type published struct {
	conversationID string
	event          domain.Event
}

type fakePublisher struct {
	mu      sync.Mutex
	events  []published
	evicted []string
	closed  []string
}

func (p *fakePublisher) Publish(_ context.Context, conversationID string, event domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{conversationID, event})
}

func (p *fakePublisher) EvictMember(_ context.Context, conversationID, userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evicted = append(p.evicted, conversationID+"/"+userID)
}

func (p *fakePublisher) CloseConversation(_ context.Context, conversationID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{conversationID, domain.NewConversationDeletedEvent(conversationID)})
	p.closed = append(p.closed, conversationID)
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.event.EventType()
	}
	return out
}

func (p *fakePublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events, p.evicted, p.closed = nil, nil, nil
}

func (p *fakePublisher) ofType(typ string) []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.Event
	for _, e := range p.events {
		if e.event.EventType() == typ {
			out = append(out, e.event)
		}
	}
	return out
}

type recordingProducer struct {
	mu   sync.Mutex
	keys []string
	typs []string
	err  error
}

func (p *recordingProducer) ProduceEvent(_ context.Context, key string, event domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.keys = append(p.keys, key)
	p.typs = append(p.typs, event.EventType())
	return nil
}

func (p *recordingProducer) Close() error { return nil }

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	svc      ChatService
	repo     *repository.GormRepository
	events   *fakePublisher
	producer *recordingProducer
	blobs    *storage.LocalStorage
	clock    *testClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.New(&database.Config{
		Driver:       "sqlite",
		FilePath:     fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name),
		LogLevel:     "silent",
		MaxOpenConns: 1,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close(db) })

	repo := repository.NewGormRepository(db)
	if err := repo.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	blobs, err := storage.NewLocalStorage(storage.LocalConfig{BasePath: t.TempDir()})
	if err != nil {
		t.Fatalf("local storage: %v", err)
	}

	env := &testEnv{
		repo:     repo,
		events:   &fakePublisher{},
		producer: &recordingProducer{},
		blobs:    blobs,
		clock:    &testClock{now: baseTime},
	}
	env.svc = NewChatService(Dependencies{
		Repo:     repo,
		Events:   env.events,
		Storage:  blobs,
		Producer: env.producer,
		Now:      env.clock.Now,
	})
	return env
}

func (e *testEnv) seedUsers(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		err := e.repo.CreateUser(context.Background(), &domain.User{
			ID:          id,
			Username:    id,
			DisplayName: strings.ToUpper(id[:1]) + id[1:],
			CreatedAt:   baseTime,
		})
		if err != nil {
			t.Fatalf("seed user %s: %v", id, err)
		}
	}
}

func (e *testEnv) createConversation(t *testing.T, actor string, kind domain.ConversationKind, members ...string) *domain.Conversation {
	t.Helper()
	conv, err := e.svc.CreateConversation(context.Background(), actor, &domain.CreateConversationRequest{
		Kind:      string(kind),
		Title:     "room",
		MemberIDs: members,
	})
	if err != nil {
		t.Fatalf("create %s conversation: %v", kind, err)
	}
	return conv
}

func (e *testEnv) send(t *testing.T, user, conv, text string, attachments ...string) *domain.MessageView {
	t.Helper()
	view, err := e.svc.SendMessage(context.Background(), user, conv, &domain.SendMessageRequest{
		Text:          text,
		AttachmentIDs: attachments,
	})
	if err != nil {
		t.Fatalf("send %q: %v", text, err)
	}
	return view
}

func (e *testEnv) upload(t *testing.T, user, name, body string) *domain.AttachmentView {
	t.Helper()
	view, err := e.svc.UploadAttachment(context.Background(), user, &Upload{
		FileName:    name,
		ContentType: "text/plain",
		Size:        int64(len(body)),
		Body:        strings.NewReader(body),
	})
	if err != nil {
		t.Fatalf("upload %s: %v", name, err)
	}
	return view
}

func expectErr(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}
