package domain

import "time"

// UnknownAuthor is stored when a feed entry carries no author.
const UnknownAuthor = "Unknown"

// RawItem is one entry as parsed from a feed, before normalization.
type RawItem struct {
	GUID        string
	Link        string
	Title       string
	Author      string
	Summary     string
	PublishedAt *time.Time
	SourceName  string
}

// CollectedItem is the persisted form of a feed entry. GUID is unique across
// all runs; only MatchedKeywords and NewsletterSentDate change after creation.
type CollectedItem struct {
	ID                 int64      `db:"id" json:"id"`
	GUID               string     `db:"guid" json:"guid"`
	Link               string     `db:"link" json:"link"`
	Title              string     `db:"title" json:"title"`
	Author             string     `db:"author" json:"author"`
	Summary            string     `db:"summary" json:"summary"`
	PublishedAt        time.Time  `db:"published_at" json:"publishedAt"`
	SourceName         string     `db:"source_name" json:"sourceName"`
	Category           Category   `db:"category" json:"category"`
	MatchedKeywords    []string   `db:"-" json:"matchedKeywords"`
	CreatedAt          time.Time  `db:"created_at" json:"createdAt"`
	NewsletterSentDate *time.Time `db:"newsletter_sent_date" json:"newsletterSentDate,omitempty"`
}
