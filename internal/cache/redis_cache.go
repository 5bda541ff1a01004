package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rusikfsk/unichat/internal/config"
	"github.com/rusikfsk/unichat/internal/domain"
	"github.com/rusikfsk/unichat/pkg/log"
	"golang.org/x/sync/singleflight"
)

// NewRedisClient connects to redis and verifies the connection.
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// RedisUserCache is a read-through user profile cache. Concurrent misses for
// the same user share one source read.
type RedisUserCache struct {
	client *redis.Client
	source UserSource
	prefix string
	ttl    time.Duration
	sf     singleflight.Group
}

func NewRedisUserCache(client *redis.Client, source UserSource, prefix string, ttl time.Duration) *RedisUserCache {
	if prefix == "" {
		prefix = "unichat:user"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisUserCache{
		client: client,
		source: source,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (c *RedisUserCache) BuildKeyByID(userID string) string {
	return fmt.Sprintf("%s:id:%s", c.prefix, userID)
}

func (c *RedisUserCache) get(ctx context.Context, key string) (*domain.User, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var user domain.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}
	return &user, nil
}

func (c *RedisUserCache) set(ctx context.Context, user *domain.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}
	if err := c.client.Set(ctx, c.BuildKeyByID(user.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}

func (c *RedisUserCache) GetUser(ctx context.Context, id string) (*domain.User, error) {
	key := c.BuildKeyByID(id)

	result, err, _ := c.sf.Do(key, func() (any, error) {
		user, err := c.get(ctx, key)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldUserID, id).Msg("user cache get error")
		}

		user, err = c.source.GetUser(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := c.set(ctx, user); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldUserID, id).Msg("user cache set error")
		}
		return user, nil
	})
	if err != nil {
		return nil, err
	}

	user, ok := result.(*domain.User)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from singleflight")
	}
	// Callers may mutate the result; never hand out the shared pointer.
	cp := *user
	return &cp, nil
}

func (c *RedisUserCache) GetUsers(ctx context.Context, ids []string) (map[string]*domain.User, error) {
	users := make(map[string]*domain.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.BuildKeyByID(id)
	}

	var missing []string
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("user cache mget error")
		missing = ids
	} else {
		for i, v := range values {
			s, ok := v.(string)
			if !ok {
				missing = append(missing, ids[i])
				continue
			}
			var user domain.User
			if err := json.Unmarshal([]byte(s), &user); err != nil {
				missing = append(missing, ids[i])
				continue
			}
			users[ids[i]] = &user
		}
	}

	if len(missing) == 0 {
		return users, nil
	}

	loaded, err := c.source.GetUsers(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, user := range loaded {
		users[id] = user
		if err := c.set(ctx, user); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldUserID, id).Msg("user cache set error")
		}
	}
	return users, nil
}

func (c *RedisUserCache) Invalidate(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.BuildKeyByID(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	return nil
}
