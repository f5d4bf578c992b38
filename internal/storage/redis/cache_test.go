package redis

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rss_collector/internal/domain"
)

type staticRegistry struct {
	sources  []domain.FeedSource
	keywords []string
}

func (r staticRegistry) ListSources(context.Context) ([]domain.FeedSource, error) {
	return r.sources, nil
}

func (r staticRegistry) ListKeywords(context.Context) ([]string, error) {
	return r.keywords, nil
}

func unreachableCache(t *testing.T, backing staticRegistry) *RegistryCache {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })
	return NewRegistryCache(client, backing, backing, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegistryCache_RefreshReportsWriteFailure(t *testing.T) {
	cache := unreachableCache(t, staticRegistry{keywords: []string{"go"}})

	err := cache.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), sourcesKey)
	assert.Error(t, cache.Invalidate(context.Background()))
}

func TestRegistryCache_ReadsFallBackWhenRedisIsDown(t *testing.T) {
	backing := staticRegistry{
		sources:  []domain.FeedSource{{Name: "a", URL: "https://a.example.com/rss"}},
		keywords: []string{"go"},
	}
	cache := unreachableCache(t, backing)

	sources, err := cache.ListSources(context.Background())
	require.NoError(t, err)
	assert.Equal(t, backing.sources, sources)

	keywords, err := cache.ListKeywords(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"go"}, keywords)
}
