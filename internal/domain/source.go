package domain

type Category string

const (
	CategoryCompetitor    Category = "competitor"
	CategoryNonCompetitor Category = "noncompetitor"
)

func (c Category) Valid() bool {
	return c == CategoryCompetitor || c == CategoryNonCompetitor
}

type SourceStatus string

const (
	StatusActive SourceStatus = "active"
	StatusError  SourceStatus = "error"
)

func (s SourceStatus) Valid() bool {
	return s == StatusActive || s == StatusError
}

// FeedSource is one external feed. Name is the identity key.
type FeedSource struct {
	Name     string       `db:"name" json:"name" yaml:"name"`
	URL      string       `db:"url" json:"url" yaml:"url"`
	Category Category     `db:"category" json:"category" yaml:"category"`
	Status   SourceStatus `db:"status" json:"status" yaml:"status"`
}

func (s FeedSource) Active() bool {
	return s.Status == StatusActive
}
