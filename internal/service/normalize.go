package service

import (
	"slices"
	"strings"
	"time"

	"rss_collector/internal/domain"
)

// Normalize converts a parsed feed entry into its persisted form. The guid is
// the trimmed link, or the feed's own guid when the entry has no link.
func Normalize(raw domain.RawItem, fetchedAt time.Time) (domain.CollectedItem, error) {
	link := strings.TrimSpace(raw.Link)
	guid := link
	if guid == "" {
		guid = strings.TrimSpace(raw.GUID)
	}
	if guid == "" {
		return domain.CollectedItem{}, domain.ErrMissingGUID
	}

	author := strings.TrimSpace(raw.Author)
	if author == "" {
		author = domain.UnknownAuthor
	}

	publishedAt := fetchedAt
	if raw.PublishedAt != nil && !raw.PublishedAt.IsZero() {
		publishedAt = *raw.PublishedAt
	}

	return domain.CollectedItem{
		GUID:        guid,
		Link:        link,
		Title:       strings.TrimSpace(raw.Title),
		Author:      author,
		Summary:     strings.TrimSpace(raw.Summary),
		PublishedAt: publishedAt.UTC(),
		SourceName:  raw.SourceName,
	}, nil
}

// KeywordMatcher tags items with the keywords found in their title or summary.
// Matching is a case-insensitive substring test.
type KeywordMatcher struct {
	keywords []string
	lowered  []string
}

func NewKeywordMatcher(keywords []string) *KeywordMatcher {
	m := &KeywordMatcher{}
	seen := make(map[string]struct{}, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		low := strings.ToLower(k)
		if _, ok := seen[low]; ok {
			continue
		}
		seen[low] = struct{}{}
		m.keywords = append(m.keywords, k)
		m.lowered = append(m.lowered, low)
	}
	return m
}

func (m *KeywordMatcher) Len() int {
	return len(m.keywords)
}

// Match returns the matched keywords in sorted order, or nil.
func (m *KeywordMatcher) Match(title, summary string) []string {
	if len(m.keywords) == 0 {
		return nil
	}
	title = strings.ToLower(title)
	summary = strings.ToLower(summary)

	var matched []string
	for i, low := range m.lowered {
		if strings.Contains(title, low) || strings.Contains(summary, low) {
			matched = append(matched, m.keywords[i])
		}
	}
	slices.Sort(matched)
	return matched
}
