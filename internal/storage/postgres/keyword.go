package postgres

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
)

type KeywordStore struct {
	db *sqlx.DB
}

func NewKeywordStore(db *sqlx.DB) *KeywordStore {
	return &KeywordStore{db: db}
}

func (s *KeywordStore) ListKeywords(ctx context.Context) ([]string, error) {
	var keywords []string
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &keywords,
		"SELECT keyword FROM keywords ORDER BY id",
	)
	return keywords, err
}

// AddBatch inserts keywords that are not registered yet; blanks are ignored.
func (s *KeywordStore) AddBatch(ctx context.Context, keywords []string) error {
	var sb strings.Builder
	sb.WriteString("INSERT INTO keywords (keyword) VALUES ")
	args := make([]any, 0, len(keywords))
	seen := make(map[string]struct{}, len(keywords))

	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if _, dup := seen[k]; dup || k == "" {
			continue
		}
		seen[k] = struct{}{}
		if len(args) > 0 {
			sb.WriteString(", ")
		}
		args = append(args, k)
		sb.WriteString("($")
		sb.WriteString(itoa(len(args)))
		sb.WriteString(")")
	}
	if len(args) == 0 {
		return nil
	}
	sb.WriteString(" ON CONFLICT (keyword) DO NOTHING")

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, sb.String(), args...)
	return err
}

func itoa(i int) string {
	if i < 10 {
		return string(rune('0' + i))
	}
	return itoa(i/10) + string(rune('0'+i%10))
}
