package cache

import (
	"context"
	"errors"

	"github.com/rusikfsk/unichat/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// UserSource is the authoritative store behind a user cache.
type UserSource interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUsers(ctx context.Context, ids []string) (map[string]*domain.User, error)
}

// UserCache resolves user profiles for message views and member lists.
type UserCache interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	// GetUsers returns the known users keyed by id; unknown ids are skipped.
	GetUsers(ctx context.Context, ids []string) (map[string]*domain.User, error)
	Invalidate(ctx context.Context, ids ...string) error
}

// Passthrough reads straight from the source. Used when caching is disabled.
type Passthrough struct {
	source UserSource
}

func NewPassthrough(source UserSource) *Passthrough {
	return &Passthrough{source: source}
}

func (p *Passthrough) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return p.source.GetUser(ctx, id)
}

func (p *Passthrough) GetUsers(ctx context.Context, ids []string) (map[string]*domain.User, error) {
	return p.source.GetUsers(ctx, ids)
}

func (p *Passthrough) Invalidate(context.Context, ...string) error { return nil }
