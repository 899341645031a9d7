package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const permissionKeyPrefix = "perm:role:"

// PermissionCache stores the permission codes of a role for a limited time.
// Get reports ok=false on a miss; callers then reload from the database.
type PermissionCache interface {
	Get(ctx context.Context, role string) (codes []string, ok bool, err error)
	Set(ctx context.Context, role string, codes []string) error
	// Invalidate drops one role, or every role when role is empty.
	Invalidate(ctx context.Context, role string) error
}

type redisPermissionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPermissionCache shares cached permissions between API instances.
func NewRedisPermissionCache(client *redis.Client, ttl time.Duration) PermissionCache {
	return &redisPermissionCache{client: client, ttl: ttl}
}

func (c *redisPermissionCache) Get(ctx context.Context, role string) ([]string, bool, error) {
	val, err := c.client.Get(ctx, permissionKeyPrefix+role).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var codes []string
	if err := json.Unmarshal([]byte(val), &codes); err != nil {
		return nil, false, err
	}
	return codes, true, nil
}

func (c *redisPermissionCache) Set(ctx context.Context, role string, codes []string) error {
	body, err := json.Marshal(codes)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, permissionKeyPrefix+role, body, c.ttl).Err()
}

func (c *redisPermissionCache) Invalidate(ctx context.Context, role string) error {
	if role != "" {
		return c.client.Del(ctx, permissionKeyPrefix+role).Err()
	}
	iter := c.client.Scan(ctx, 0, permissionKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

type memoryEntry struct {
	codes     []string
	expiresAt time.Time
}

type memoryPermissionCache struct {
	entries sync.Map // role -> memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryPermissionCache keeps permissions in process. Used when Redis is disabled.
func NewMemoryPermissionCache(ttl time.Duration) PermissionCache {
	return &memoryPermissionCache{ttl: ttl, now: time.Now}
}

func (c *memoryPermissionCache) Get(_ context.Context, role string) ([]string, bool, error) {
	v, ok := c.entries.Load(role)
	if !ok {
		return nil, false, nil
	}
	entry := v.(memoryEntry)
	if !c.now().Before(entry.expiresAt) {
		c.entries.Delete(role)
		return nil, false, nil
	}
	return entry.codes, true, nil
}

func (c *memoryPermissionCache) Set(_ context.Context, role string, codes []string) error {
	c.entries.Store(role, memoryEntry{codes: codes, expiresAt: c.now().Add(c.ttl)})
	return nil
}

func (c *memoryPermissionCache) Invalidate(_ context.Context, role string) error {
	if role != "" {
		c.entries.Delete(role)
		return nil
	}
	c.entries.Range(func(key, _ interface{}) bool {
		c.entries.Delete(key)
		return true
	})
	return nil
}
