package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"rss_collector/internal/domain"
)

const (
	sourcesKey  = "rss_collector:registry:sources"
	keywordsKey = "rss_collector:registry:keywords"
)

type SourceLister interface {
	ListSources(ctx context.Context) ([]domain.FeedSource, error)
}

type KeywordLister interface {
	ListKeywords(ctx context.Context) ([]string, error)
}

// RegistryCache serves registry snapshots from Redis and falls back to the
// backing store on a miss. Redis failures are logged and never surface to
// callers; the backing store stays authoritative.
type RegistryCache struct {
	client   *goredis.Client
	sources  SourceLister
	keywords KeywordLister
	ttl      time.Duration
	logger   *slog.Logger
}

func NewRegistryCache(client *goredis.Client, sources SourceLister, keywords KeywordLister, ttl time.Duration, logger *slog.Logger) *RegistryCache {
	return &RegistryCache{
		client:   client,
		sources:  sources,
		keywords: keywords,
		ttl:      ttl,
		logger:   logger.With("component", "registry_cache"),
	}
}

func (c *RegistryCache) ListSources(ctx context.Context) ([]domain.FeedSource, error) {
	var cached []domain.FeedSource
	if c.get(ctx, sourcesKey, &cached) {
		return cached, nil
	}

	sources, err := c.sources.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	c.set(ctx, sourcesKey, sources)
	return sources, nil
}

func (c *RegistryCache) ListKeywords(ctx context.Context) ([]string, error) {
	var cached []string
	if c.get(ctx, keywordsKey, &cached) {
		return cached, nil
	}

	keywords, err := c.keywords.ListKeywords(ctx)
	if err != nil {
		return nil, fmt.Errorf("list keywords: %w", err)
	}
	c.set(ctx, keywordsKey, keywords)
	return keywords, nil
}

// Refresh reloads both snapshots from the backing store.
func (c *RegistryCache) Refresh(ctx context.Context) error {
	sources, err := c.sources.ListSources(ctx)
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}
	keywords, err := c.keywords.ListKeywords(ctx)
	if err != nil {
		return fmt.Errorf("list keywords: %w", err)
	}

	if err := c.store(ctx, sourcesKey, sources); err != nil {
		return err
	}
	if err := c.store(ctx, keywordsKey, keywords); err != nil {
		return err
	}

	c.logger.Debug("registry cache refreshed", "sources", len(sources), "keywords", len(keywords))
	return nil
}

func (c *RegistryCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, sourcesKey, keywordsKey).Err()
}

func (c *RegistryCache) get(ctx context.Context, key string, dst any) bool {
	bs, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.logger.Warn("registry cache read failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(bs, dst); err != nil {
		c.logger.Warn("registry cache entry corrupt", "key", key, "error", err)
		return false
	}
	return true
}

func (c *RegistryCache) set(ctx context.Context, key string, v any) {
	if err := c.store(ctx, key, v); err != nil {
		c.logger.Warn("registry cache write failed", "key", key, "error", err)
	}
}

func (c *RegistryCache) store(ctx context.Context, key string, v any) error {
	bs, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, bs, c.ttl).Err(); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}
