package presence

import (
	"context"
	"sync"
	"time"

	"github.com/rusikfsk/unichat/internal/domain"
	"github.com/rusikfsk/unichat/internal/hub"
	"github.com/rusikfsk/unichat/pkg/log"
)

// Tracker derives online/offline transitions from hub connection counts.
type Tracker struct {
	hub   *hub.Hub
	store LastSeenStore
	now   func() time.Time

	// mu orders transitions: a racing disconnect/connect pair queues offline
	// before online in outbox. Lookup holds it too and never sees a
	// half-recorded disconnect.
	mu     sync.Mutex
	outbox []presenceDelta

	// flushMu lets one goroutine at a time move outbox into the hub, so a
	// full broadcast queue stalls the flusher but not mu.
	flushMu sync.Mutex
}

type presenceDelta struct {
	event   domain.Event
	userID  string
	exclude string
}

func NewTracker(h *hub.Hub, store LastSeenStore) *Tracker {
	return &Tracker{
		hub:   h,
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Connect registers c, sends it the online snapshot and, on the user's first
// connection, tells every other connection the user is online.
func (t *Tracker) Connect(ctx context.Context, c *hub.Client) error {
	t.mu.Lock()
	first := t.hub.Register(c)
	if err := t.hub.SendTo(c, domain.NewPresenceSnapshotEvent(t.hub.OnlineUserIDs())); err != nil {
		t.mu.Unlock()
		return err
	}
	if first {
		t.outbox = append(t.outbox, presenceDelta{domain.NewPresenceOnlineEvent(c.UserID), c.UserID, c.ID})
	}
	t.mu.Unlock()

	if first {
		l := log.Ctx(ctx)
		l.Info().Str(log.FieldUserID, c.UserID).Msg("user online")
	}
	t.flush(ctx)
	return nil
}

// Disconnect unregisters c and, on the user's last connection, records the
// last-seen time and tells everyone the user is offline.
func (t *Tracker) Disconnect(ctx context.Context, c *hub.Client) {
	l := log.Ctx(ctx)

	t.mu.Lock()
	if !t.hub.Unregister(c) {
		t.mu.Unlock()
		return
	}
	at := t.now()
	if err := t.store.SetLastSeen(ctx, c.UserID, at); err != nil {
		l.Warn().Err(err).Str(log.FieldUserID, c.UserID).Msg("failed to record last seen")
	}
	t.outbox = append(t.outbox, presenceDelta{domain.NewPresenceOfflineEvent(c.UserID, at), c.UserID, c.ID})
	t.mu.Unlock()

	l.Info().Str(log.FieldUserID, c.UserID).Msg("user offline")
	t.flush(ctx)
}

// flush hands queued deltas to the hub in transition order.
func (t *Tracker) flush(ctx context.Context) {
	t.flushMu.Lock()
	defer t.flushMu.Unlock()

	for {
		t.mu.Lock()
		if len(t.outbox) == 0 {
			t.mu.Unlock()
			return
		}
		d := t.outbox[0]
		t.outbox = t.outbox[1:]
		t.mu.Unlock()

		if err := t.hub.BroadcastAll(ctx, d.event, d.exclude); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldUserID, d.userID).Str("event", d.event.EventType()).Msg("failed to broadcast presence")
		}
	}
}

// Evict is the hub eviction hook.
func (t *Tracker) Evict(c *hub.Client) {
	t.Disconnect(context.Background(), c)
	c.Close()
}

// Lookup returns the presence of userID. LastSeenAt is nil while online or
// when no disconnect has been recorded.
func (t *Tracker) Lookup(ctx context.Context, userID string) (*domain.PresenceResponse, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	resp := &domain.PresenceResponse{UserID: userID, Online: t.hub.IsOnline(userID)}
	if resp.Online {
		return resp, nil
	}

	at, ok, err := t.store.GetLastSeen(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ok {
		resp.LastSeenAt = &at
	}
	return resp, nil
}
