package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"rss_collector/internal/domain"
)

// SourceStore is the single source of truth for the feed registry.
type SourceStore struct {
	db *sqlx.DB
}

func NewSourceStore(db *sqlx.DB) *SourceStore {
	return &SourceStore{db: db}
}

// ListSources returns every registered source in registration order.
func (s *SourceStore) ListSources(ctx context.Context) ([]domain.FeedSource, error) {
	var sources []domain.FeedSource
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &sources,
		"SELECT name, url, category, status FROM feed_sources ORDER BY id",
	)
	return sources, err
}

func (s *SourceStore) Upsert(ctx context.Context, source domain.FeedSource) error {
	query := `
		INSERT INTO feed_sources (name, url, category, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET
			url = EXCLUDED.url,
			category = EXCLUDED.category,
			status = EXCLUDED.status,
			updated_at = NOW()`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		source.Name,
		source.URL,
		string(source.Category),
		string(source.Status),
	)
	return err
}
