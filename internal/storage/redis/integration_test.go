//go:build integration

package redis

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"rss_collector/internal/domain"
	"rss_collector/internal/registry"
)

type RedisIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *tcredis.RedisContainer
	client    *goredis.Client
}

func (s *RedisIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := tcredis.Run(s.ctx, "redis:7-alpine")
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx)
	s.Require().NoError(err)

	opt, err := goredis.ParseURL(connStr)
	s.Require().NoError(err)
	s.client = goredis.NewClient(opt)
	s.Require().NoError(s.client.Ping(s.ctx).Err())
}

func (s *RedisIntegrationSuite) TearDownSuite() {
	if s.client != nil {
		s.client.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *RedisIntegrationSuite) SetupTest() {
	s.Require().NoError(s.client.FlushAll(s.ctx).Err())
}

func TestRedisIntegrationSuite(t *testing.T) {
	suite.Run(t, new(RedisIntegrationSuite))
}

func (s *RedisIntegrationSuite) TestRunLock_SingleHolder() {
	lock := NewRunLock(s.client, "test:lock")

	token, err := lock.Acquire(s.ctx, time.Minute)
	s.Require().NoError(err)
	s.NotEmpty(token)

	_, err = lock.Acquire(s.ctx, time.Minute)
	s.ErrorIs(err, ErrLocked)

	s.ErrorIs(lock.Release(s.ctx, "someone-else"), ErrLockNotHeld)
	s.NoError(lock.Release(s.ctx, token))

	again, err := lock.Acquire(s.ctx, time.Minute)
	s.NoError(err)
	s.NotEqual(token, again)
}

func (s *RedisIntegrationSuite) TestRunLock_ExpiredLeaseIsNotReleasedByOldHolder() {
	lock := NewRunLock(s.client, "test:lock")

	old, err := lock.Acquire(s.ctx, 100*time.Millisecond)
	s.Require().NoError(err)

	s.Eventually(func() bool {
		_, err := lock.Acquire(s.ctx, time.Minute)
		return err == nil
	}, 2*time.Second, 50*time.Millisecond)

	s.ErrorIs(lock.Release(s.ctx, old), ErrLockNotHeld)
	exists, err := s.client.Exists(s.ctx, "test:lock").Result()
	s.NoError(err)
	s.Equal(int64(1), exists)
}

func (s *RedisIntegrationSuite) TestRunLock_ConcurrentAcquire() {
	lock := NewRunLock(s.client, "test:lock")

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := lock.Acquire(s.ctx, time.Minute); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.Equal(1, winners)
}

type countingRegistry struct {
	mu           sync.Mutex
	sources      []domain.FeedSource
	keywords     []string
	sourceCalls  int
	keywordCalls int
}

func (r *countingRegistry) ListSources(context.Context) ([]domain.FeedSource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sourceCalls++
	return r.sources, nil
}

func (r *countingRegistry) ListKeywords(context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keywordCalls++
	return r.keywords, nil
}

func (r *countingRegistry) Upsert(_ context.Context, src domain.FeedSource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.sources {
		if r.sources[i].Name == src.Name {
			r.sources[i] = src
			return nil
		}
	}
	r.sources = append(r.sources, src)
	return nil
}

func (r *countingRegistry) AddBatch(_ context.Context, keywords []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keywords = append(r.keywords, keywords...)
	return nil
}

type inlineTx struct{}

func (inlineTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *RedisIntegrationSuite) TestRegistryCache_ReadThroughAndRefresh() {
	backing := &countingRegistry{
		sources: []domain.FeedSource{
			{Name: "a", URL: "https://a.example.com/rss", Category: domain.CategoryCompetitor, Status: domain.StatusActive},
		},
		keywords: []string{"go"},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := NewRegistryCache(s.client, backing, backing, time.Minute, logger)

	for i := 0; i < 3; i++ {
		sources, err := cache.ListSources(s.ctx)
		s.NoError(err)
		s.Equal(backing.sources, sources)

		keywords, err := cache.ListKeywords(s.ctx)
		s.NoError(err)
		s.Equal([]string{"go"}, keywords)
	}
	s.Equal(1, backing.sourceCalls)
	s.Equal(1, backing.keywordCalls)

	backing.keywords = []string{"go", "rust"}
	s.NoError(cache.Refresh(s.ctx))

	keywords, err := cache.ListKeywords(s.ctx)
	s.NoError(err)
	s.Equal([]string{"go", "rust"}, keywords)

	s.NoError(cache.Invalidate(s.ctx))
	_, err = cache.ListSources(s.ctx)
	s.NoError(err)
	s.Equal(3, backing.sourceCalls)
}

func (s *RedisIntegrationSuite) TestRegistryCache_SeedImportIsVisibleToNextRead() {
	backing := &countingRegistry{
		sources: []domain.FeedSource{
			{Name: "a", URL: "https://a.example.com/rss", Category: domain.CategoryCompetitor, Status: domain.StatusActive},
		},
		keywords: []string{"go"},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := NewRegistryCache(s.client, backing, backing, time.Hour, logger)

	// A previous process left a snapshot behind.
	_, err := cache.ListSources(s.ctx)
	s.Require().NoError(err)
	_, err = cache.ListKeywords(s.ctx)
	s.Require().NoError(err)

	seed, err := registry.ParseSeed([]byte(`
sources:
  - name: b
    url: https://b.example.com/feed
    category: noncompetitor
keywords:
  - rust
`))
	s.Require().NoError(err)

	importer := registry.NewImporter(inlineTx{}, backing, backing, cache, logger)
	s.Require().NoError(importer.Import(s.ctx, seed))

	sources, err := cache.ListSources(s.ctx)
	s.NoError(err)
	s.Len(sources, 2)
	s.Equal("b", sources[1].Name)

	keywords, err := cache.ListKeywords(s.ctx)
	s.NoError(err)
	s.Equal([]string{"go", "rust"}, keywords)
}
