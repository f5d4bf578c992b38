package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"rss_collector/internal/config"
	"rss_collector/internal/domain"
)

var errBudgetExceeded = errors.New("run budget exceeded")

type CollectService struct {
	fetcher   Fetcher
	items     ItemStore
	sources   SourceRegistry
	keywords  KeywordSource
	publisher Publisher
	logger    *slog.Logger
	config    config.CollectionConfig
}

func NewCollectService(
	fetcher Fetcher,
	items ItemStore,
	sources SourceRegistry,
	keywords KeywordSource,
	publisher Publisher,
	logger *slog.Logger,
	cfg config.CollectionConfig,
) *CollectService {
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	if cfg.PersistGrace <= 0 {
		cfg.PersistGrace = 30 * time.Second
	}
	return &CollectService{
		fetcher:   fetcher,
		items:     items,
		sources:   sources,
		keywords:  keywords,
		publisher: publisher,
		logger:    logger.With("component", "collector"),
		config:    cfg,
	}
}

// sourceResult is the outcome of one source's fetch→normalize→dedupe→persist pipeline.
type sourceResult struct {
	source     domain.FeedSource
	visited    bool
	err        error
	abandoned  bool
	total      int
	filtered   int
	dropped    int
	saved      int
	skipped    int
	itemErrors int
}

// RunCollection runs the pipeline once over a snapshot of the registry and keywords.
// It returns an error only when the run cannot proceed at all, including the
// item store going away mid-run; per-source and per-item failures are counted
// in the report.
func (s *CollectService) RunCollection(ctx context.Context) (*domain.RunReport, error) {
	startTime := time.Now()

	if err := s.items.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping item store: %w", err)
	}

	sources, err := s.sources.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	keywords, err := s.keywords.ListKeywords(ctx)
	if err != nil {
		return nil, fmt.Errorf("list keywords: %w", err)
	}
	matcher := NewKeywordMatcher(keywords)

	report := &domain.RunReport{StartedAt: startTime}

	active := make([]domain.FeedSource, 0, len(sources))
	perCategory := make(map[domain.Category]int)
	for _, src := range sources {
		if !src.Active() {
			report.InactiveFeeds++
			continue
		}
		active = append(active, src)
		perCategory[src.Category]++
	}
	report.TotalFeeds = len(active)

	s.logger.Info("starting collection",
		"active_sources", len(active),
		"inactive_sources", report.InactiveFeeds,
		"competitor", perCategory[domain.CategoryCompetitor],
		"noncompetitor", perCategory[domain.CategoryNonCompetitor],
		"keywords", matcher.Len(),
		"budget", s.config.RunBudget,
	)

	results, err := s.collect(ctx, active, matcher)
	if err != nil {
		return nil, err
	}

	for _, res := range results {
		s.merge(report, res)
	}

	report.Partial = report.UnvisitedFeeds > 0 || s.anyAbandoned(results)
	report.DurationSeconds = math.Round(time.Since(startTime).Seconds()*100) / 100
	report.Message = buildMessage(report, s.config.RunBudget)

	s.logger.Info("collection completed",
		"total_feeds", report.TotalFeeds,
		"successful", report.SuccessfulFeeds,
		"failed", report.FailedFeeds,
		"unvisited", report.UnvisitedFeeds,
		"articles", report.TotalArticles,
		"filtered", report.FilteredArticles,
		"saved", report.SavedArticles,
		"skipped", report.SkippedArticles,
		"dropped", report.DroppedArticles,
		"item_errors", report.ItemErrors,
		"duration_seconds", report.DurationSeconds,
	)

	return report, nil
}

// runState is shared by the source tasks of one run. The first store outage
// aborts the whole run.
type runState struct {
	mu       sync.Mutex
	storeErr error
	abort    context.CancelFunc
}

func (r *runState) failStore(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.storeErr == nil {
		r.storeErr = err
		r.abort()
	}
}

func (r *runState) storeFailure() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.storeErr
}

func (s *CollectService) collect(ctx context.Context, sources []domain.FeedSource, matcher *KeywordMatcher) ([]sourceResult, error) {
	abortCtx, abort := context.WithCancel(ctx)
	defer abort()
	state := &runState{abort: abort}

	runCtx := abortCtx
	var runDeadline time.Time
	if s.config.RunBudget > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(abortCtx, s.config.RunBudget)
		defer cancel()
		runDeadline, _ = runCtx.Deadline()
	}

	// Without cancellation, started sources only answer to their own fetch timeout.
	workCtx := runCtx
	if !s.config.CancelsInFlight() {
		workCtx = context.WithoutCancel(ctx)
	}

	results := make([]sourceResult, len(sources))
	for i := range sources {
		results[i].source = sources[i]
	}

	var g errgroup.Group
	g.SetLimit(s.config.MaxConcurrency)

	for i := range sources {
		if runCtx.Err() != nil {
			if state.storeFailure() == nil {
				s.logger.Warn("run budget exhausted, not starting remaining sources",
					"remaining", len(sources)-i,
				)
			}
			break
		}

		res := &results[i]
		g.Go(func() error {
			// Started late, after the run was cut short while waiting for a slot.
			if runCtx.Err() != nil {
				return nil
			}
			res.visited = true
			s.processSource(runCtx, workCtx, runDeadline, state, res, matcher)
			return nil
		})
	}

	_ = g.Wait()

	if err := state.storeFailure(); err != nil {
		return nil, err
	}
	return results, nil
}

// persistContext bounds persistence to PersistGrace past the later of the run
// deadline and now. It ignores budget cancellation so fetched items are kept.
func (s *CollectService) persistContext(workCtx context.Context, runDeadline time.Time) (context.Context, context.CancelFunc) {
	base := context.WithoutCancel(workCtx)
	if runDeadline.IsZero() {
		return base, func() {}
	}
	from := runDeadline
	if now := time.Now(); now.After(from) {
		from = now
	}
	return context.WithDeadline(base, from.Add(s.config.PersistGrace))
}

func (s *CollectService) processSource(
	runCtx, workCtx context.Context,
	runDeadline time.Time,
	state *runState,
	res *sourceResult,
	matcher *KeywordMatcher,
) {
	src := res.source
	logger := s.logger.With("source", src.Name)

	items, err := s.fetcher.Fetch(workCtx, src)
	if state.storeFailure() != nil {
		return
	}
	if s.config.CancelsInFlight() && runCtx.Err() != nil {
		res.abandoned = true
		res.err = errBudgetExceeded
		logger.Warn("fetch abandoned", "reason", errBudgetExceeded)
		return
	}
	if err != nil {
		res.err = err
		logger.Warn("fetch failed", "url", src.URL, "error", err)
		return
	}

	res.total = len(items)

	persistCtx, cancel := s.persistContext(workCtx, runDeadline)
	defer cancel()

	fetchedAt := time.Now()
	matchedOnly := s.config.FilterMode == config.FilterModeMatchedOnly

	for i, raw := range items {
		if state.storeFailure() != nil {
			return
		}
		if persistCtx.Err() != nil {
			rest := len(items) - i
			res.skipped += rest
			logger.Warn("persist deadline reached, skipping remaining items", "remaining", rest)
			break
		}

		item, err := Normalize(raw, fetchedAt)
		if err != nil {
			res.skipped++
			logger.Debug("item rejected", "title", raw.Title, "error", err)
			continue
		}
		item.Category = src.Category
		item.MatchedKeywords = matcher.Match(item.Title, item.Summary)

		if len(item.MatchedKeywords) > 0 {
			res.filtered++
		} else if matchedOnly {
			res.dropped++
			continue
		}

		saved, err := s.saveItem(persistCtx, &item)
		if err != nil {
			// A failing item is isolated unless the store itself is gone.
			if persistCtx.Err() == nil {
				if pingErr := s.items.Ping(persistCtx); pingErr != nil {
					logger.Error("item store unreachable, aborting run", "error", pingErr)
					state.failStore(fmt.Errorf("item store unreachable: %w", pingErr))
					return
				}
			}
			res.skipped++
			res.itemErrors++
			logger.Error("failed to save item", "guid", item.GUID, "error", err)
			continue
		}
		if !saved {
			res.skipped++
			continue
		}
		res.saved++

		if s.publisher != nil {
			if err := s.publisher.Publish(persistCtx, &item); err != nil {
				res.itemErrors++
				logger.Error("failed to publish item", "guid", item.GUID, "error", err)
			}
		}
	}

	logger.Info("source done",
		"fetched", res.total,
		"saved", res.saved,
		"skipped", res.skipped,
		"dropped", res.dropped,
	)
}

// saveItem checks the guid before writing. The store's unique constraint settles
// races between sources surfacing the same link concurrently.
func (s *CollectService) saveItem(ctx context.Context, item *domain.CollectedItem) (bool, error) {
	exists, err := s.items.Exists(ctx, item.GUID)
	if err != nil {
		return false, fmt.Errorf("check existing: %w", err)
	}
	if exists {
		return false, nil
	}

	inserted, err := s.items.Insert(ctx, item)
	if err != nil {
		return false, fmt.Errorf("insert item: %w", err)
	}
	return inserted, nil
}

func (s *CollectService) merge(report *domain.RunReport, res sourceResult) {
	if !res.visited {
		report.UnvisitedFeeds++
		return
	}
	if res.err != nil {
		report.FailedFeeds++
		report.Failures = append(report.Failures, domain.SourceFailure{
			Source: res.source.Name,
			Reason: res.err.Error(),
		})
		return
	}

	report.SuccessfulFeeds++
	report.TotalArticles += res.total
	report.FilteredArticles += res.filtered
	report.DroppedArticles += res.dropped
	report.SavedArticles += res.saved
	report.SkippedArticles += res.skipped
	report.ItemErrors += res.itemErrors
}

func (s *CollectService) anyAbandoned(results []sourceResult) bool {
	for _, res := range results {
		if res.abandoned {
			return true
		}
	}
	return false
}

func buildMessage(report *domain.RunReport, budget time.Duration) string {
	if report.Partial {
		return fmt.Sprintf(
			"실행 시간 제한(%s)을 초과하여 일부만 수집했습니다. 미처리 피드 %d개, 중단된 피드 %d개.",
			budget, report.UnvisitedFeeds, countAbandoned(report.Failures),
		)
	}
	return fmt.Sprintf("RSS 피드 수집이 완료되었습니다. 새 글 %d개를 저장했습니다.", report.SavedArticles)
}

func countAbandoned(failures []domain.SourceFailure) int {
	n := 0
	for _, f := range failures {
		if f.Reason == errBudgetExceeded.Error() {
			n++
		}
	}
	return n
}
