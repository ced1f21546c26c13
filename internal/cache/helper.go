package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"postboard/internal/observability"

	"github.com/redis/go-redis/v9"
)

const (
	postKeyPrefix     = "post:%s"
	listGenerationKey = "posts:list:gen"
	listKeyFormat     = "posts:list:%d:tag=%s:page=%d:limit=%d"
	relatedKeyFormat  = "posts:related:%d:%s"
)

// Cache is a cache-aside helper over an optional Redis client. A Cache with a
// nil client passes every call straight through to the fetch function.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New returns a Cache storing entries for ttl. A nil client or non-positive
// ttl disables caching.
func New(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Enabled reports whether entries are actually stored.
func (c *Cache) Enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

// Client returns the underlying Redis client, which may be nil.
func (c *Cache) Client() *redis.Client {
	if c == nil {
		return nil
	}
	return c.client
}

// GetJSON attempts to get the key from Redis and unmarshal into dest.
// Returns (true, nil) if found and unmarshaled, (false, nil) if not found.
func (c *Cache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	if !c.Enabled() {
		return false, nil
	}
	s, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(s), dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON marshals v and sets the key with the cache TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	if !c.Enabled() {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, b, c.ttl).Err()
}

// Aside tries Redis first; on a miss it calls fetch, which must populate dest,
// then stores dest. Redis failures never fail the call.
func (c *Cache) Aside(ctx context.Context, key string, dest any, fetch func() error) error {
	found, err := c.GetJSON(ctx, key, dest)
	switch {
	case err != nil:
		observability.CacheLookups.WithLabelValues("error").Inc()
		observability.Logger.WarnContext(ctx, "cache read failed", "key", key, "error", err)
	case found:
		observability.CacheLookups.WithLabelValues("hit").Inc()
		return nil
	case c.Enabled():
		observability.CacheLookups.WithLabelValues("miss").Inc()
	}

	if err := fetch(); err != nil {
		return err
	}

	if err := c.SetJSON(ctx, key, dest); err != nil {
		observability.Logger.WarnContext(ctx, "cache write failed", "key", key, "error", err)
	}
	return nil
}

// PostKey is the key of a single post.
func PostKey(id string) string {
	return fmt.Sprintf(postKeyPrefix, id)
}

// ListKey is the key of one page of the post listing under the current generation.
func (c *Cache) ListKey(ctx context.Context, tag string, page, limit int) string {
	return fmt.Sprintf(listKeyFormat, c.generation(ctx), tag, page, limit)
}

// RelatedKey is the key of a related-posts lookup. Tag order does not matter;
// the sorted tags are JSON encoded so distinct sets never share a key.
func (c *Cache) RelatedKey(ctx context.Context, tags []string) string {
	sorted := append([]string{}, tags...)
	sort.Strings(sorted)
	encoded, _ := json.Marshal(sorted)
	return fmt.Sprintf(relatedKeyFormat, c.generation(ctx), encoded)
}

// InvalidateLists retires every cached listing and related lookup by moving to
// a new generation. Old entries expire on their own.
func (c *Cache) InvalidateLists(ctx context.Context) {
	if !c.Enabled() {
		return
	}
	if err := c.client.Incr(ctx, listGenerationKey).Err(); err != nil {
		observability.Logger.WarnContext(ctx, "cache invalidation failed", "error", err)
	}
}

func (c *Cache) generation(ctx context.Context) int64 {
	if !c.Enabled() {
		return 0
	}
	gen, err := c.client.Get(ctx, listGenerationKey).Int64()
	if err != nil {
		return 0
	}
	return gen
}
