package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "identity:tenant:"

// CachedDirectory keeps tenant display metadata in Redis in front of another
// Directory. Only tenant metadata is cached; role and permission data never is.
type CachedDirectory struct {
	next   Directory
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedDirectory wraps next with a Redis cache. A nil client disables caching.
func NewCachedDirectory(next Directory, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedDirectory {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedDirectory{next: next, client: client, ttl: ttl, logger: logger}
}

// ResolveTenant serves from cache when possible, otherwise delegates and fills the cache.
func (c *CachedDirectory) ResolveTenant(ctx context.Context, id ID) (Info, error) {
	if c.next == nil {
		return Info{}, errors.New("tenant: cached directory without backing directory")
	}
	if c.client == nil || c.ttl <= 0 {
		return c.next.ResolveTenant(ctx, id)
	}
	key := cacheKey(id)
	payload, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var info Info
		if err := json.Unmarshal(payload, &info); err == nil {
			return info, nil
		}
		c.logger.Warn("tenant cache decode", slog.String("tenant_id", id.String()))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("tenant cache get", slog.String("tenant_id", id.String()), slog.Any("error", err))
	}

	info, err := c.next.ResolveTenant(ctx, id)
	if err != nil {
		return Info{}, err
	}
	raw, err := json.Marshal(info)
	if err != nil {
		return info, nil
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("tenant cache set", slog.String("tenant_id", id.String()), slog.Any("error", err))
	}
	return info, nil
}

// Invalidate drops the cached entry for id.
func (c *CachedDirectory) Invalidate(ctx context.Context, id ID) error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, cacheKey(id)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("tenant: invalidate %d: %w", id, err)
	}
	return nil
}

func cacheKey(id ID) string {
	return cacheKeyPrefix + id.String()
}

var _ Directory = (*CachedDirectory)(nil)
