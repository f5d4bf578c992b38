package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"rss_collector/internal/domain"
)

// Seed is the on-disk form of the feed registry and keyword list.
type Seed struct {
	Sources  []domain.FeedSource `yaml:"sources"`
	Keywords []string            `yaml:"keywords"`
}

type SourceWriter interface {
	Upsert(ctx context.Context, source domain.FeedSource) error
}

type KeywordWriter interface {
	AddBatch(ctx context.Context, keywords []string) error
}

type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Cache holds registry snapshots derived from the tables an import writes.
type Cache interface {
	Refresh(ctx context.Context) error
	Invalidate(ctx context.Context) error
}

func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(data)
}

func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &seed); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}

	for i := range seed.Sources {
		src := &seed.Sources[i]
		src.Name = strings.TrimSpace(src.Name)
		src.URL = strings.TrimSpace(src.URL)
		if src.Status == "" {
			src.Status = domain.StatusActive
		}
	}

	if err := seed.Validate(); err != nil {
		return nil, fmt.Errorf("validate seed: %w", err)
	}
	return &seed, nil
}

func (s *Seed) Validate() error {
	var errs []error
	seen := make(map[string]struct{}, len(s.Sources))

	for i, src := range s.Sources {
		if src.Name == "" {
			errs = append(errs, fmt.Errorf("sources[%d]: name is required", i))
			continue
		}
		if _, dup := seen[src.Name]; dup {
			errs = append(errs, fmt.Errorf("sources[%d]: duplicate name %q", i, src.Name))
		}
		seen[src.Name] = struct{}{}

		if u, err := url.Parse(src.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("source %q: %w: %q", src.Name, domain.ErrInvalidURL, src.URL))
		}
		if !src.Category.Valid() {
			errs = append(errs, fmt.Errorf("source %q: unknown category %q", src.Name, src.Category))
		}
		if !src.Status.Valid() {
			errs = append(errs, fmt.Errorf("source %q: unknown status %q", src.Name, src.Status))
		}
	}

	return errors.Join(errs...)
}

// Importer writes a seed into the registry tables in a single transaction and
// then brings the cache up to date. cache may be nil.
type Importer struct {
	tx       Transactor
	sources  SourceWriter
	keywords KeywordWriter
	cache    Cache
	logger   *slog.Logger
}

func NewImporter(tx Transactor, sources SourceWriter, keywords KeywordWriter, cache Cache, logger *slog.Logger) *Importer {
	return &Importer{
		tx:       tx,
		sources:  sources,
		keywords: keywords,
		cache:    cache,
		logger:   logger.With("component", "registry"),
	}
}

func (im *Importer) Import(ctx context.Context, seed *Seed) error {
	err := im.tx.WithTransaction(ctx, func(ctx context.Context) error {
		for _, src := range seed.Sources {
			if err := im.sources.Upsert(ctx, src); err != nil {
				return fmt.Errorf("upsert source %s: %w", src.Name, err)
			}
		}
		if err := im.keywords.AddBatch(ctx, seed.Keywords); err != nil {
			return fmt.Errorf("add keywords: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("import seed: %w", err)
	}

	im.logger.Info("registry seed imported",
		"sources", len(seed.Sources),
		"keywords", len(seed.Keywords),
	)

	im.syncCache(ctx)
	return nil
}

// syncCache reloads the cache from the committed tables. If that fails the
// cached snapshots are dropped so the next read goes to the database.
func (im *Importer) syncCache(ctx context.Context) {
	if im.cache == nil {
		return
	}
	err := im.cache.Refresh(ctx)
	if err == nil {
		return
	}
	im.logger.Warn("registry cache refresh after import failed", "error", err)

	if err := im.cache.Invalidate(ctx); err != nil {
		im.logger.Warn("registry cache invalidation failed, stale entries expire with their ttl", "error", err)
	}
}
