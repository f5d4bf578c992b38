package domain

import "time"

// SourceFailure records why a single source produced no items.
type SourceFailure struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}

// RunReport aggregates the outcome of one collection run.
type RunReport struct {
	TotalFeeds      int `json:"totalFeeds"`
	SuccessfulFeeds int `json:"successfulFeeds"`
	FailedFeeds     int `json:"failedFeeds"`
	InactiveFeeds   int `json:"inactiveFeeds"`
	UnvisitedFeeds  int `json:"unvisitedFeeds"`

	TotalArticles    int `json:"totalArticles"`
	FilteredArticles int `json:"filteredArticles"`
	DroppedArticles  int `json:"droppedArticles"`
	SavedArticles    int `json:"savedArticles"`
	SkippedArticles  int `json:"skippedArticles"`
	ItemErrors       int `json:"itemErrors"`

	Partial         bool            `json:"partial"`
	Failures        []SourceFailure `json:"failures,omitempty"`
	StartedAt       time.Time       `json:"startedAt"`
	DurationSeconds float64         `json:"durationSeconds"`
	Message         string          `json:"message"`
}
