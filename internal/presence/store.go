package presence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// LastSeenStore records when users last went offline.
type LastSeenStore interface {
	SetLastSeen(ctx context.Context, userID string, at time.Time) error
	// GetLastSeen reports ok=false when userID has no record.
	GetLastSeen(ctx context.Context, userID string) (at time.Time, ok bool, err error)
	Close() error
}

// MemoryLastSeenStore keeps last-seen times for the life of the process.
type MemoryLastSeenStore struct {
	mu   sync.RWMutex
	seen map[string]time.Time
}

func NewMemoryLastSeenStore() *MemoryLastSeenStore {
	return &MemoryLastSeenStore{seen: make(map[string]time.Time)}
}

func (s *MemoryLastSeenStore) SetLastSeen(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	s.seen[userID] = at
	s.mu.Unlock()
	return nil
}

func (s *MemoryLastSeenStore) GetLastSeen(_ context.Context, userID string) (time.Time, bool, error) {
	s.mu.RLock()
	at, ok := s.seen[userID]
	s.mu.RUnlock()
	return at, ok, nil
}

func (s *MemoryLastSeenStore) Close() error { return nil }

// RedisLastSeenStore keeps last-seen times in one Redis hash, so they
// survive restarts and are shared between instances.
type RedisLastSeenStore struct {
	client *redis.Client
	key    string
}

func NewRedisLastSeenStore(client *redis.Client, prefix string) *RedisLastSeenStore {
	return &RedisLastSeenStore{
		client: client,
		key:    fmt.Sprintf("%s:last_seen", prefix),
	}
}

func (s *RedisLastSeenStore) SetLastSeen(ctx context.Context, userID string, at time.Time) error {
	if err := s.client.HSet(ctx, s.key, userID, at.UTC().Format(time.RFC3339Nano)).Err(); err != nil {
		return fmt.Errorf("failed to set last seen: %w", err)
	}
	return nil
}

func (s *RedisLastSeenStore) GetLastSeen(ctx context.Context, userID string) (time.Time, bool, error) {
	raw, err := s.client.HGet(ctx, s.key, userID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to get last seen: %w", err)
	}

	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("malformed last seen for %s: %w", userID, err)
	}
	return at, true, nil
}

// Close is a no-op; the client is owned by the caller.
func (s *RedisLastSeenStore) Close() error { return nil }
