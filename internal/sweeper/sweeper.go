package sweeper

import (
	"context"
	"time"

	"github.com/rusikfsk/unichat/internal/audit"
	"github.com/rusikfsk/unichat/internal/config"
	"github.com/rusikfsk/unichat/internal/domain"
	pkglog "github.com/rusikfsk/unichat/pkg/log"
	"github.com/rusikfsk/unichat/pkg/storage"
)

const (
	defaultInterval  = time.Hour
	defaultRetention = 24 * time.Hour
	defaultBatch     = 500
)

// Store removes stale unbound attachment rows.
type Store interface {
	DeleteUnboundBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Attachment, error)
}

// Sweeper periodically deletes attachments that were uploaded but never
// bound to a message within the retention window.
type Sweeper struct {
	store  Store
	blobs  storage.Storage
	cfg    config.AttachmentsConfig
	now    func() time.Time
	quit   chan struct{}
	doneCh chan struct{}
}

// New creates a new Sweeper.
func New(store Store, blobs storage.Storage, cfg config.AttachmentsConfig) *Sweeper {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultInterval
	}
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = defaultBatch
	}
	return &Sweeper{
		store:  store,
		blobs:  blobs,
		cfg:    cfg,
		now:    time.Now,
		quit:   make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start launches the sweeper in a background goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	go s.run(ctx)
}

// Stop signals the sweeper to stop and returns immediately.
// Call Done() to wait for it to exit.
func (s *Sweeper) Stop() {
	close(s.quit)
}

// Done returns a channel that is closed when the sweeper has fully stopped.
func (s *Sweeper) Done() <-chan struct{} {
	return s.doneCh
}

// run sweeps once on start, then every SweepInterval. Restarts shorter than
// the interval would otherwise never sweep.
func (s *Sweeper) run(ctx context.Context) {
	defer close(s.doneCh)

	s.sweepAndLog(ctx)

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepAndLog(ctx)
		}
	}
}

func (s *Sweeper) sweepAndLog(ctx context.Context) {
	if _, err := s.Sweep(ctx); err != nil {
		l := pkglog.L()
		l.Error().Err(err).Msg("sweeper: unbound attachment sweep failed")
	}
}

// Sweep deletes every unbound attachment older than the retention window and
// returns how many rows were removed. Blob deletion is best-effort.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.cfg.Retention)
	l := pkglog.L()

	total := 0
	for {
		removed, err := s.store.DeleteUnboundBefore(ctx, cutoff, s.cfg.SweepBatch)
		if err != nil {
			return total, err
		}
		total += len(removed)

		s.deleteBlobs(ctx, removed)

		if len(removed) < s.cfg.SweepBatch || ctx.Err() != nil {
			break
		}
	}

	if total > 0 {
		l.Info().Int("count", total).Time("cutoff", cutoff).Msg("sweeper: removed unbound attachments")
		audit.LogWithDetail(ctx, audit.ActionSweepAttachments, "", cutoff.Format(time.RFC3339), "unbound attachments removed")
	}
	return total, nil
}

func (s *Sweeper) deleteBlobs(ctx context.Context, removed []domain.Attachment) {
	if s.blobs == nil {
		return
	}
	l := pkglog.L()
	for i := range removed {
		a := &removed[i]
		if err := s.blobs.Delete(ctx, a.StorageKey); err != nil {
			l.Warn().Err(err).
				Str(pkglog.FieldAttachmentID, a.ID).
				Str("storage_key", a.StorageKey).
				Msg("sweeper: failed to delete attachment blob")
		}
	}
}
