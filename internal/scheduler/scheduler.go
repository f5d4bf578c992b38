package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"rss_collector/internal/domain"
)

const (
	TriggerTimed  = "timed"
	TriggerManual = "manual"
)

type Config struct {
	Cron         string
	CacheRefresh string
	Location     *time.Location
	LockTTL      time.Duration
}

// Scheduler owns both ways a collection run starts. Every run goes through
// the same lease so at most one run executes across all instances.
type Scheduler struct {
	cron      *cron.Cron
	collectID cron.EntryID
	collector Collector
	notifier  Notifier
	lock      Locker
	refresher CacheRefresher
	lockTTL   time.Duration
	running   atomic.Bool
	logger    *slog.Logger
}

// New registers the collection job and, when refresher is not nil, the
// registry cache refresh job. lock may be nil for a single-instance setup.
func New(cfg Config, collector Collector, notifier Notifier, lock Locker, refresher CacheRefresher, logger *slog.Logger) (*Scheduler, error) {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	logger = logger.With("component", "scheduler")
	cl := cronLogger{logger: logger}

	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		collector: collector,
		notifier:  notifier,
		lock:      lock,
		refresher: refresher,
		lockTTL:   cfg.LockTTL,
		logger:    logger,
	}

	id, err := s.cron.AddFunc(cfg.Cron, s.runScheduled)
	if err != nil {
		return nil, fmt.Errorf("add collection job %q: %w", cfg.Cron, err)
	}
	s.collectID = id

	if refresher != nil && cfg.CacheRefresh != "" {
		if _, err := s.cron.AddFunc(cfg.CacheRefresh, s.refreshCache); err != nil {
			return nil, fmt.Errorf("add cache refresh job %q: %w", cfg.CacheRefresh, err)
		}
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "entries", len(s.cron.Entries()))
}

// Stop prevents new jobs from starting and waits for running ones until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()
	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next reports when the collection job fires next. It is zero until Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.collectID).Next
}

// Trigger runs one collection on behalf of a caller and returns its outcome.
// The run is detached from ctx cancellation; the run budget bounds it.
func (s *Scheduler) Trigger(ctx context.Context) (*domain.RunReport, error) {
	return s.run(context.WithoutCancel(ctx), TriggerManual)
}

func (s *Scheduler) runScheduled() {
	_, err := s.run(context.Background(), TriggerTimed)
	if errors.Is(err, domain.ErrRunInProgress) {
		s.logger.Warn("scheduled run skipped, another run is in progress")
	}
}

func (s *Scheduler) run(ctx context.Context, trigger string) (*domain.RunReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, domain.ErrRunInProgress
	}
	defer s.running.Store(false)

	logger := s.logger.With("trigger", trigger)

	release, err := s.acquire(ctx, logger)
	if err != nil {
		return nil, err
	}
	defer release()

	logger.Info("collection run started")

	report, err := s.collector.RunCollection(ctx)
	if err != nil {
		logger.Error("collection run failed", "error", err)
	} else {
		logger.Info("collection run finished",
			"saved", report.SavedArticles,
			"skipped", report.SkippedArticles,
			"failed_feeds", report.FailedFeeds,
			"partial", report.Partial,
			"duration_seconds", report.DurationSeconds,
		)
	}

	s.notifier.Report(context.WithoutCancel(ctx), report, err)

	return report, err
}

// acquire takes the shared lease. A lock backend failure is logged and the
// run continues under the in-process guard only.
func (s *Scheduler) acquire(ctx context.Context, logger *slog.Logger) (func(), error) {
	noop := func() {}
	if s.lock == nil {
		return noop, nil
	}

	token, err := s.lock.Acquire(ctx, s.lockTTL)
	switch {
	case errors.Is(err, domain.ErrRunInProgress):
		logger.Info("run lock is held elsewhere")
		return nil, domain.ErrRunInProgress
	case err != nil:
		logger.Warn("run lock unavailable, continuing without it", "error", err)
		return noop, nil
	}

	return func() {
		if err := s.lock.Release(context.WithoutCancel(ctx), token); err != nil {
			logger.Warn("failed to release run lock", "error", err)
		}
	}, nil
}

func (s *Scheduler) refreshCache() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.refresher.Refresh(ctx); err != nil {
		s.logger.Warn("registry cache refresh failed", "error", err)
	}
}

// cronLogger adapts slog to cron's logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
