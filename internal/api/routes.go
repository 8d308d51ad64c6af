// Package api exposes sessions, loading, extraction and previews over HTTP.
package api

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/local/pdfrange/internal/metrics"
	"github.com/local/pdfrange/internal/preview"
	"github.com/local/pdfrange/internal/source"
	"github.com/local/pdfrange/internal/statuscheck"
	"github.com/local/pdfrange/internal/store"
)

// Fetcher resolves a document reference such as s3://bucket/key.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) (*source.Document, error)
}

// ReadinessChecker reports dependency status for /ready.
type ReadinessChecker interface {
	Summary(ctx context.Context) statuscheck.Summary
}

// Config holds the HTTP layer's settings.
type Config struct {
	MaxUploadBytes int64
	Preview        preview.Options
}

// Server holds handler dependencies.
type Server struct {
	cfg     Config
	store   store.Store
	fetcher Fetcher
	checker ReadinessChecker
}

// New builds a Server. fetcher and checker may be nil, which disables
// load-by-reference and reports ready unconditionally.
func New(cfg Config, st store.Store, fetcher Fetcher, checker ReadinessChecker) *Server {
	return &Server{cfg: cfg, store: st, fetcher: fetcher, checker: checker}
}

func (s *Server) SetupRoutes(r *gin.Engine) {
	r.GET("/health", s.handleHealth)
	r.GET("/ready", s.handleReady)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	sessions := r.Group("/api/sessions")
	{
		sessions.POST("", s.handleCreate)
		sessions.GET("/:id", s.withSession(s.handleGet))
		sessions.DELETE("/:id", s.handleDelete)
		sessions.POST("/:id/source", s.withSession(s.handleLoad))
		sessions.POST("/:id/extract", s.withSession(s.handleExtract))
		sessions.GET("/:id/pages/:page/preview", s.withSession(s.handlePreview))
	}
}
