package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"rss_collector/internal/domain"
)

const itemColumns = `id, guid, link, title, author, summary, published_at, source_name,
	category, matched_keywords, created_at, newsletter_sent_date`

// queryableItemFields are the columns ListByField accepts.
var queryableItemFields = map[string]struct{}{
	"guid":                 {},
	"source_name":          {},
	"category":             {},
	"author":               {},
	"newsletter_sent_date": {},
}

type itemRow struct {
	domain.CollectedItem
	MatchedKeywords pq.StringArray `db:"matched_keywords"`
}

func (r itemRow) toDomain() domain.CollectedItem {
	item := r.CollectedItem
	item.MatchedKeywords = []string(r.MatchedKeywords)
	return item
}

type ItemStore struct {
	db *sqlx.DB
}

func NewItemStore(db *sqlx.DB) *ItemStore {
	return &ItemStore{db: db}
}

func (s *ItemStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ItemStore) Exists(ctx context.Context, guid string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &exists,
		"SELECT EXISTS (SELECT 1 FROM collected_items WHERE guid = $1)", guid,
	)
	return exists, err
}

// Insert writes item unless the guid is already stored. The unique index on
// guid makes concurrent inserts of the same guid safe: exactly one wins.
func (s *ItemStore) Insert(ctx context.Context, item *domain.CollectedItem) (bool, error) {
	query := `
		INSERT INTO collected_items (
			guid, link, title, author, summary, published_at, source_name, category, matched_keywords
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
		ON CONFLICT (guid) DO NOTHING
		RETURNING id, created_at`

	keywords := item.MatchedKeywords
	if keywords == nil {
		keywords = []string{}
	}

	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		item.GUID,
		item.Link,
		item.Title,
		item.Author,
		item.Summary,
		item.PublishedAt,
		item.SourceName,
		string(item.Category),
		pq.StringArray(keywords),
	).Scan(&item.ID, &item.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *ItemStore) Get(ctx context.Context, guid string) (*domain.CollectedItem, error) {
	var row itemRow
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row,
		"SELECT "+itemColumns+" FROM collected_items WHERE guid = $1", guid,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	item := row.toDomain()
	return &item, nil
}

// ListByField returns items whose field equals value, newest first. An empty
// value for newsletter_sent_date selects items not yet sent.
func (s *ItemStore) ListByField(ctx context.Context, field, value string, limit int) ([]domain.CollectedItem, error) {
	if _, ok := queryableItemFields[field]; !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownField, field)
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := "SELECT " + itemColumns + " FROM collected_items WHERE "
	args := []any{}
	if field == "newsletter_sent_date" && value == "" {
		query += "newsletter_sent_date IS NULL"
	} else {
		query += field + " = $1"
		args = append(args, value)
	}
	query += fmt.Sprintf(" ORDER BY published_at DESC LIMIT %d", limit)

	var rows []itemRow
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, query, args...); err != nil {
		return nil, err
	}

	items := make([]domain.CollectedItem, len(rows))
	for i, r := range rows {
		items[i] = r.toDomain()
	}
	return items, nil
}

func (s *ItemStore) UpdateMatchedKeywords(ctx context.Context, guid string, keywords []string) error {
	if keywords == nil {
		keywords = []string{}
	}
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		"UPDATE collected_items SET matched_keywords = $2 WHERE guid = $1",
		guid, pq.StringArray(keywords),
	)
	return expectAffected(res, err)
}

// MarkNewsletterSent stamps the given items with the newsletter date and
// returns how many rows changed.
func (s *ItemStore) MarkNewsletterSent(ctx context.Context, guids []string, date time.Time) (int64, error) {
	if len(guids) == 0 {
		return 0, nil
	}
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		"UPDATE collected_items SET newsletter_sent_date = $2 WHERE guid = ANY($1)",
		pq.Array(guids), date,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *ItemStore) Delete(ctx context.Context, guid string) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		"DELETE FROM collected_items WHERE guid = $1", guid,
	)
	return expectAffected(res, err)
}

func expectAffected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrItemNotFound
	}
	return nil
}
