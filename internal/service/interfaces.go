package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"rss_collector/internal/domain"
)

type Fetcher interface {
	Fetch(ctx context.Context, source domain.FeedSource) ([]domain.RawItem, error)
}

type ItemStore interface {
	Ping(ctx context.Context) error
	Exists(ctx context.Context, guid string) (bool, error)
	// Insert stores item unless its guid is already present and reports whether it wrote.
	Insert(ctx context.Context, item *domain.CollectedItem) (bool, error)
}

type SourceRegistry interface {
	ListSources(ctx context.Context) ([]domain.FeedSource, error)
}

type KeywordSource interface {
	ListKeywords(ctx context.Context) ([]string, error)
}

type Publisher interface {
	Publish(ctx context.Context, item *domain.CollectedItem) error
	Close() error
}
