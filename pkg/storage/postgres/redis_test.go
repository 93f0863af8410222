package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendorgate/vendorgate/pkg/storage"
)

func newTestCache(t *testing.T) (*TagCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := storage.DefaultConfig()
	cfg.CacheEnabled = true
	cfg.CacheTTL = time.Minute
	return NewTagCache(client, cfg, nil, nil), mr
}

type cachedDoc struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func TestTagCacheSetGetRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	cache.Set(ctx, "documents:tenant:1:org:2", cachedDoc{ID: 7, Name: "invoice.pdf"},
		MutationTags("documents", 1, 2, 7)...)

	var got cachedDoc
	require.True(t, cache.Get(ctx, "documents:tenant:1:org:2", &got))
	assert.Equal(t, int64(7), got.ID)
	assert.Equal(t, "invoice.pdf", got.Name)
}

func TestTagCacheInvalidateByTenantTag(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	cache.Set(ctx, "docs:t1", cachedDoc{ID: 1}, TenantTag("documents", 1))
	cache.Set(ctx, "docs:t2", cachedDoc{ID: 2}, TenantTag("documents", 2))

	cache.Invalidate(ctx, TenantTag("documents", 1))

	var got cachedDoc
	assert.False(t, cache.Get(ctx, "docs:t1", &got), "tenant 1 entry should be gone")
	assert.True(t, cache.Get(ctx, "docs:t2", &got), "tenant 2 entry must survive")
}

func TestTagCacheInvalidateIsIdempotent(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	cache.Set(ctx, "k", cachedDoc{ID: 1}, ResourceTag("payments"))

	cache.InvalidateMutation(ctx, "payments", 1, 2, 1)
	cache.InvalidateMutation(ctx, "payments", 1, 2, 1)

	var got cachedDoc
	assert.False(t, cache.Get(ctx, "k", &got))

	// A fresh entry after double invalidation behaves normally.
	cache.Set(ctx, "k", cachedDoc{ID: 9}, ResourceTag("payments"))
	require.True(t, cache.Get(ctx, "k", &got))
	assert.Equal(t, int64(9), got.ID)
}

func TestTagCacheMutationTagSet(t *testing.T) {
	tags := MutationTags("documents", 10, 20, 30)
	assert.Equal(t, []string{
		"tag:documents",
		"tag:documents:tenant:10",
		"tag:documents:org:20",
		"tag:documents:id:30",
	}, tags)

	// Collection mutations omit the id tag.
	tags = MutationTags("documents", 10, 20, 0)
	assert.Len(t, tags, 3)
}

func TestTagCacheDisabledIsSilent(t *testing.T) {
	cfg := storage.DefaultConfig()
	cfg.CacheEnabled = false
	cache := NewTagCache(nil, cfg, nil, nil)
	ctx := context.Background()

	cache.Set(ctx, "k", cachedDoc{ID: 1}, ResourceTag("documents"))
	var got cachedDoc
	assert.False(t, cache.Get(ctx, "k", &got))
	cache.Invalidate(ctx, ResourceTag("documents"))
}

func TestTagCacheSurvivesRedisOutage(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	cache.Set(ctx, "k", cachedDoc{ID: 1}, ResourceTag("documents"))
	mr.Close()

	// All operations degrade to misses, none panic or error out.
	var got cachedDoc
	assert.False(t, cache.Get(ctx, "k", &got))
	cache.Set(ctx, "k2", cachedDoc{ID: 2}, ResourceTag("documents"))
	cache.Invalidate(ctx, ResourceTag("documents"))
}
