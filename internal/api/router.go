package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"rss_collector/internal/domain"
)

type Trigger interface {
	Trigger(ctx context.Context) (*domain.RunReport, error)
}

type ItemStore interface {
	Ping(ctx context.Context) error
	Get(ctx context.Context, guid string) (*domain.CollectedItem, error)
	ListByField(ctx context.Context, field, value string, limit int) ([]domain.CollectedItem, error)
	UpdateMatchedKeywords(ctx context.Context, guid string, keywords []string) error
	MarkNewsletterSent(ctx context.Context, guids []string, date time.Time) (int64, error)
	Delete(ctx context.Context, guid string) error
}

type SourceLister interface {
	ListSources(ctx context.Context) ([]domain.FeedSource, error)
}

type Server struct {
	trigger Trigger
	items   ItemStore
	sources SourceLister
	logger  *slog.Logger
}

func NewServer(trigger Trigger, items ItemStore, sources SourceLister, logger *slog.Logger) *Server {
	return &Server{
		trigger: trigger,
		items:   items,
		sources: sources,
		logger:  logger.With("component", "api"),
	}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)

	api := r.Group("/api")
	{
		api.POST("/collect", s.collect)
		api.GET("/sources", s.listSources)

		api.GET("/items", s.listItems)
		api.GET("/items/:guid", s.getItem)
		api.DELETE("/items/:guid", s.deleteItem)
		api.PUT("/items/:guid/keywords", s.updateKeywords)
		api.POST("/items/newsletter-sent", s.markNewsletterSent)
	}
}

// NewRouter builds an engine with recovery and request logging through slog.
// Item guids are usually URLs, so routing works on the raw path and a
// percent-encoded guid stays a single path segment.
func NewRouter(s *Server) *gin.Engine {
	r := gin.New()
	r.UseRawPath = true
	r.UnescapePathValues = true
	r.Use(gin.Recovery(), s.requestLogger())
	s.RegisterRoutes(r)
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
		)
	}
}
