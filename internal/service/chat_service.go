package service

import (
	"context"
	"errors"
	"time"

	"github.com/rusikfsk/unichat/internal/cache"
	"github.com/rusikfsk/unichat/internal/config"
	"github.com/rusikfsk/unichat/internal/domain"
	"github.com/rusikfsk/unichat/internal/idgen"
	"github.com/rusikfsk/unichat/internal/kafka"
	"github.com/rusikfsk/unichat/internal/membership"
	"github.com/rusikfsk/unichat/internal/repository"
	"github.com/rusikfsk/unichat/pkg/log"
	"github.com/rusikfsk/unichat/pkg/storage"
)

const (
	defaultMaxTextLength  = 4000
	defaultHistoryTake    = 50
	maxHistoryTake        = 200
	defaultMaxAttachment  = 200 << 20
	defaultBlobOpsTimeout = 30 * time.Second
	defaultURLTTL         = 15 * time.Minute
)

// Dependencies wires a chat service.
type Dependencies struct {
	Repo        repository.Repository
	Authority   *membership.Authority
	Events      EventPublisher
	Users       cache.UserCache
	Storage     storage.Storage
	Producer    kafka.EventProducer
	EntityIDs   idgen.Generator
	MessageIDs  idgen.Generator
	Message     config.MessageConfig
	Attachments config.AttachmentsConfig
	// Now defaults to time.Now.
	Now func() time.Time
}

type chatServiceImpl struct {
	repo        repository.Repository
	authority   *membership.Authority
	events      EventPublisher
	users       cache.UserCache
	storage     storage.Storage
	producer    kafka.EventProducer
	entityIDs   idgen.Generator
	messageIDs  idgen.Generator
	maxText     int
	historyTake int
	historyMax  int
	maxUpload   int64
	urlTTL      time.Duration
	clock       func() time.Time
}

// NewChatService creates a new chat service.
func NewChatService(deps Dependencies) ChatService {
	s := &chatServiceImpl{
		repo:        deps.Repo,
		authority:   deps.Authority,
		events:      deps.Events,
		users:       deps.Users,
		storage:     deps.Storage,
		producer:    deps.Producer,
		entityIDs:   deps.EntityIDs,
		messageIDs:  deps.MessageIDs,
		maxText:     deps.Message.MaxTextLength,
		historyTake: deps.Message.HistoryDefault,
		historyMax:  deps.Message.HistoryMax,
		maxUpload:   deps.Attachments.MaxSize,
		urlTTL:      deps.Attachments.URLTTL,
		clock:       deps.Now,
	}

	if s.authority == nil {
		s.authority = membership.NewAuthority(deps.Repo)
	}
	if s.users == nil {
		s.users = cache.NewPassthrough(deps.Repo)
	}
	if s.producer == nil {
		s.producer = kafka.NewNoopProducer()
	}
	if s.entityIDs == nil {
		s.entityIDs = idgen.NewUUIDGenerator()
	}
	if s.messageIDs == nil {
		s.messageIDs = idgen.NewULIDGenerator()
	}
	if s.maxText <= 0 {
		s.maxText = defaultMaxTextLength
	}
	if s.historyMax <= 0 {
		s.historyMax = maxHistoryTake
	}
	if s.historyTake <= 0 || s.historyTake > s.historyMax {
		s.historyTake = min(defaultHistoryTake, s.historyMax)
	}
	if s.maxUpload <= 0 {
		s.maxUpload = defaultMaxAttachment
	}
	if s.urlTTL <= 0 {
		s.urlTTL = defaultURLTTL
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s
}

// now is truncated to microseconds so stored and in-memory times compare
// equal on every supported database.
func (s *chatServiceImpl) now() time.Time {
	return s.clock().UTC().Truncate(time.Microsecond)
}

func (s *chatServiceImpl) produce(ctx context.Context, key string, event domain.Event) {
	if err := s.producer.ProduceEvent(ctx, key, event); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).
			Str(log.FieldConversationID, key).
			Str(log.FieldEventType, event.EventType()).
			Msg("failed to produce chat event")
	}
}

// deleteBlobs removes attachment content. Failures are logged and skipped;
// the rows are already gone.
func (s *chatServiceImpl) deleteBlobs(ctx context.Context, attachments []domain.Attachment) {
	if len(attachments) == 0 || s.storage == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultBlobOpsTimeout)
	defer cancel()

	for i := range attachments {
		a := &attachments[i]
		if err := s.storage.Delete(ctx, a.StorageKey); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).
				Str(log.FieldAttachmentID, a.ID).
				Str("storage_key", a.StorageKey).
				Msg("failed to delete attachment blob")
		}
	}
}

// lookupUser resolves a profile for display, returning nil when it is
// unavailable.
func (s *chatServiceImpl) lookupUser(ctx context.Context, userID string) *domain.User {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldUserID, userID).Msg("failed to load user profile")
		}
		return nil
	}
	return u
}

// materialize builds delivery views for msgs, keeping their order.
func (s *chatServiceImpl) materialize(ctx context.Context, msgs []domain.Message) ([]*domain.MessageView, error) {
	views := make([]*domain.MessageView, 0, len(msgs))
	if len(msgs) == 0 {
		return views, nil
	}

	senderIDs := make([]string, 0, len(msgs))
	messageIDs := make([]string, 0, len(msgs))
	seen := make(map[string]bool, len(msgs))
	for i := range msgs {
		messageIDs = append(messageIDs, msgs[i].ID)
		if !seen[msgs[i].SenderID] {
			seen[msgs[i].SenderID] = true
			senderIDs = append(senderIDs, msgs[i].SenderID)
		}
	}

	users, err := s.users.GetUsers(ctx, senderIDs)
	if err != nil {
		return nil, err
	}
	attachments, err := s.repo.ListAttachmentsByMessages(ctx, messageIDs)
	if err != nil {
		return nil, err
	}

	for i := range msgs {
		views = append(views, domain.NewMessageView(&msgs[i], users[msgs[i].SenderID], attachments[msgs[i].ID]))
	}
	return views, nil
}

// isMissing reports whether err is a repository miss.
func isMissing(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}

// notFound maps a repository miss onto the domain taxonomy.
func notFound(err error, what string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return domain.NotFoundf("%s not found", what)
	}
	return err
}

// normalizeIDs drops empty ids and duplicates, keeping first-seen order.
func normalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
