package rss

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"rss_collector/internal/domain"
)

const (
	acceptHeader = "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8"
	maxBodyBytes = 10 << 20
)

// Config holds fetcher configuration.
type Config struct {
	Timeout        time.Duration
	UserAgent      string
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Fetcher downloads and parses RSS 1.0/2.0 and Atom feeds.
type Fetcher struct {
	httpClient     *http.Client
	timeout        time.Duration
	userAgent      string
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Fetcher {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Fetcher{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		timeout:        cfg.Timeout,
		userAgent:      cfg.UserAgent,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger.With("component", "fetcher"),
	}
}

// Fetch retrieves one source. Every failure comes back as an error with no
// items; the source itself is never modified.
func (f *Fetcher) Fetch(ctx context.Context, source domain.FeedSource) ([]domain.RawItem, error) {
	if !source.Active() {
		return nil, fmt.Errorf("%s: %w", source.Name, domain.ErrSourceInactive)
	}
	if err := validateURL(source.URL); err != nil {
		return nil, err
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	body, err := f.download(ctx, source.URL)
	if err != nil {
		return nil, err
	}

	feed, err := parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	items := transform(source.Name, feed)
	f.logger.Debug("fetched feed",
		"source", source.Name,
		"items", len(items),
	)
	return items, nil
}

func validateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", domain.ErrInvalidURL, raw)
	}
	return nil
}

// retryableError marks failures worth another attempt: transport errors and 5xx.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func (f *Fetcher) download(ctx context.Context, feedURL string) ([]byte, error) {
	var body []byte
	var err error

	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		body, err = f.doRequest(ctx, feedURL)
		if err == nil {
			return body, nil
		}

		var retryable *retryableError
		if !errors.As(err, &retryable) || attempt == f.maxAttempts {
			break
		}

		backoff := f.calculateBackoff(attempt)
		f.logger.Warn("request failed, retrying",
			"url", feedURL,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	if f.maxAttempts > 1 {
		return nil, fmt.Errorf("after %d attempts: %w", f.maxAttempts, err)
	}
	return nil, err
}

func (f *Fetcher) doRequest(ctx context.Context, feedURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("execute request: %w", ctx.Err())
		}
		return nil, &retryableError{err: fmt.Errorf("execute request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, &retryableError{err: fmt.Errorf("unexpected status: %d", resp.StatusCode)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func (f *Fetcher) calculateBackoff(attempt int) time.Duration {
	backoff := f.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if f.maxBackoff > 0 && backoff > f.maxBackoff {
		backoff = f.maxBackoff
	}
	return backoff
}

func parse(body []byte) (feed *gofeed.Feed, err error) {
	defer func() {
		if r := recover(); r != nil {
			feed, err = nil, fmt.Errorf("parser panic: %v", r)
		}
	}()
	return gofeed.NewParser().Parse(bytes.NewReader(body))
}

func transform(sourceName string, feed *gofeed.Feed) []domain.RawItem {
	items := make([]domain.RawItem, 0, len(feed.Items))

	for _, it := range feed.Items {
		if it == nil {
			continue
		}

		raw := domain.RawItem{
			GUID:       it.GUID,
			Link:       it.Link,
			Title:      it.Title,
			Author:     authorName(it),
			Summary:    it.Description,
			SourceName: sourceName,
		}
		if raw.Summary == "" {
			raw.Summary = it.Content
		}

		switch {
		case it.PublishedParsed != nil:
			raw.PublishedAt = it.PublishedParsed
		case it.UpdatedParsed != nil:
			raw.PublishedAt = it.UpdatedParsed
		}

		items = append(items, raw)
	}

	return items
}

func authorName(it *gofeed.Item) string {
	if it.Author != nil && it.Author.Name != "" {
		return it.Author.Name
	}
	for _, a := range it.Authors {
		if a != nil && a.Name != "" {
			return a.Name
		}
	}
	if it.DublinCoreExt != nil && len(it.DublinCoreExt.Creator) > 0 {
		return it.DublinCoreExt.Creator[0]
	}
	return ""
}
