package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rss_collector/internal/domain"
)

func TestNormalize(t *testing.T) {
	fetchedAt := time.Date(2025, 10, 14, 21, 0, 0, 0, time.UTC)
	published := time.Date(2025, 10, 13, 9, 30, 0, 0, time.FixedZone("KST", 9*3600))

	tests := []struct {
		name string
		raw  domain.RawItem
		want domain.CollectedItem
		err  error
	}{
		{
			name: "link becomes guid",
			raw: domain.RawItem{
				GUID:        "feed-guid",
				Link:        "  https://blog.example.com/a  ",
				Title:       " Title ",
				Author:      "Jane",
				Summary:     " body ",
				PublishedAt: &published,
				SourceName:  "blog",
			},
			want: domain.CollectedItem{
				GUID:        "https://blog.example.com/a",
				Link:        "https://blog.example.com/a",
				Title:       "Title",
				Author:      "Jane",
				Summary:     "body",
				PublishedAt: published.UTC(),
				SourceName:  "blog",
			},
		},
		{
			name: "missing author and date",
			raw: domain.RawItem{
				Link:       "https://blog.example.com/b",
				Title:      "B",
				SourceName: "blog",
			},
			want: domain.CollectedItem{
				GUID:        "https://blog.example.com/b",
				Link:        "https://blog.example.com/b",
				Title:       "B",
				Author:      domain.UnknownAuthor,
				PublishedAt: fetchedAt,
				SourceName:  "blog",
			},
		},
		{
			name: "feed guid used without link",
			raw:  domain.RawItem{GUID: "urn:uuid:1", Title: "C", Author: "  "},
			want: domain.CollectedItem{
				GUID:        "urn:uuid:1",
				Title:       "C",
				Author:      domain.UnknownAuthor,
				PublishedAt: fetchedAt,
			},
		},
		{
			name: "no identity",
			raw:  domain.RawItem{Title: "D"},
			err:  domain.ErrMissingGUID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.raw, fetchedAt)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKeywordMatcher(t *testing.T) {
	m := NewKeywordMatcher([]string{"Kubernetes", " 쿠버네티스 ", "", "kubernetes", "AI"})
	assert.Equal(t, 3, m.Len())

	assert.Equal(t, []string{"Kubernetes"}, m.Match("Scaling KUBERNETES clusters", ""))
	assert.Equal(t, []string{"AI", "쿠버네티스"}, m.Match("사내 쿠버네티스 도입기", "Using ai for ops"))
	assert.Nil(t, m.Match("Weekly notes", "nothing here"))
}

func TestKeywordMatcher_Empty(t *testing.T) {
	m := NewKeywordMatcher(nil)
	assert.Nil(t, m.Match("anything", "at all"))
}
