package scheduler

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"rss_collector/internal/domain"
)

type Collector interface {
	RunCollection(ctx context.Context) (*domain.RunReport, error)
}

type Notifier interface {
	Report(ctx context.Context, report *domain.RunReport, runErr error)
}

// Locker is a lease shared by every collector instance. Acquire reports a
// held lease with an error matching domain.ErrRunInProgress.
type Locker interface {
	Acquire(ctx context.Context, ttl time.Duration) (string, error)
	Release(ctx context.Context, token string) error
}

type CacheRefresher interface {
	Refresh(ctx context.Context) error
}
