package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/vendorgate/vendorgate/pkg/observability"
	"github.com/vendorgate/vendorgate/pkg/storage"
)

// TagCache is a read-through cache with tag-based invalidation. Cached
// entries register under one or more tags (Redis sets); invalidating a tag
// deletes every member key and the tag set itself, which makes repeated
// invalidation a no-op.
//
// The cache is strictly best-effort: every error path degrades to "uncached"
// and is counted, never propagated. The database remains the source of truth
// for both data and access decisions.
type TagCache struct {
	client  *redis.Client
	ttl     time.Duration
	enabled bool
	metrics *observability.Metrics
	logger  *observability.Logger
	once    *observability.OnceReporter
}

// NewRedisClient connects to Redis using the storage config
func NewRedisClient(cfg storage.Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}
	if cfg.RedisDB >= 0 {
		opts.DB = cfg.RedisDB
	}
	if cfg.RedisMaxRetries > 0 {
		opts.MaxRetries = cfg.RedisMaxRetries
	}
	if cfg.RedisPoolSize > 0 {
		opts.PoolSize = cfg.RedisPoolSize
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// NewTagCache creates a tag cache. A nil client yields a disabled cache that
// silently misses, so callers need no nil checks.
func NewTagCache(client *redis.Client, cfg storage.Config, metrics *observability.Metrics, logger *observability.Logger) *TagCache {
	return &TagCache{
		client:  client,
		ttl:     cfg.CacheTTL,
		enabled: cfg.CacheEnabled && client != nil,
		metrics: metrics,
		logger:  logger,
		once:    observability.NewOnceReporter(),
	}
}

// Tag construction helpers. The fixed tag set for a mutation is: the global
// resource-type tag, the tenant-scoped tag, the organization-scoped tag, and
// (for single-resource mutations) the resource-id tag.

// ResourceTag is the global tag for a resource type
func ResourceTag(resource string) string {
	return fmt.Sprintf("tag:%s", resource)
}

// TenantTag scopes a resource type to a tenant
func TenantTag(resource string, tenantID int64) string {
	return fmt.Sprintf("tag:%s:tenant:%d", resource, tenantID)
}

// OrgTag scopes a resource type to an organization
func OrgTag(resource string, orgID int64) string {
	return fmt.Sprintf("tag:%s:org:%d", resource, orgID)
}

// IDTag identifies a single resource
func IDTag(resource string, id int64) string {
	return fmt.Sprintf("tag:%s:id:%d", resource, id)
}

// MutationTags returns the fixed tag set invalidated after a mutation.
// Pass id <= 0 for collection-level mutations.
func MutationTags(resource string, tenantID, orgID, id int64) []string {
	tags := []string{
		ResourceTag(resource),
		TenantTag(resource, tenantID),
		OrgTag(resource, orgID),
	}
	if id > 0 {
		tags = append(tags, IDTag(resource, id))
	}
	return tags
}

// Get fetches a cached value into dst. Returns false on miss or any error.
func (c *TagCache) Get(ctx context.Context, key string, dst interface{}) bool {
	if !c.enabled {
		return false
	}
	data, err := c.client.Get(ctx, "cache:"+key).Bytes()
	if err == redis.Nil {
		return false
	} else if err != nil {
		c.countError("get", err)
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		// Corrupt entry: drop it rather than serve garbage.
		c.client.Del(ctx, "cache:"+key)
		return false
	}
	return true
}

// Set stores a value under key and registers the key under each tag.
func (c *TagCache) Set(ctx context.Context, key string, value interface{}, tags ...string) {
	if !c.enabled {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		c.countError("set", err)
		return
	}

	pipe := c.client.Pipeline()
	pipe.Set(ctx, "cache:"+key, data, c.ttl)
	for _, tag := range tags {
		pipe.SAdd(ctx, tag, "cache:"+key)
		// Tags outlive entries slightly so stale members are cleaned up by
		// invalidation rather than accumulating forever.
		pipe.Expire(ctx, tag, c.ttl*2)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.countError("set", err)
	}
}

// Invalidate deletes every cached key registered under each tag, then the
// tag sets themselves. Idempotent: a second call finds empty sets.
func (c *TagCache) Invalidate(ctx context.Context, tags ...string) {
	if !c.enabled {
		return
	}
	for _, tag := range tags {
		keys, err := c.client.SMembers(ctx, tag).Result()
		if err != nil {
			c.countError("invalidate", err)
			continue
		}
		pipe := c.client.Pipeline()
		if len(keys) > 0 {
			pipe.Del(ctx, keys...)
		}
		pipe.Del(ctx, tag)
		if _, err := pipe.Exec(ctx); err != nil {
			c.countError("invalidate", err)
		}
	}
}

// InvalidateMutation invalidates the fixed tag set for a resource mutation
// and records the invalidation metric.
func (c *TagCache) InvalidateMutation(ctx context.Context, resource string, tenantID, orgID, id int64) {
	if c.metrics != nil {
		c.metrics.CacheInvalidationsTotal.WithLabelValues(resource).Inc()
	}
	c.Invalidate(ctx, MutationTags(resource, tenantID, orgID, id)...)
}

func (c *TagCache) countError(op string, err error) {
	if c.metrics != nil {
		c.metrics.CacheErrorsTotal.Inc()
	}
	if c.logger != nil {
		c.once.WarnOnce(c.logger, "cache-"+op, fmt.Sprintf("cache %s failing, serving uncached: %v", op, err))
	}
}
