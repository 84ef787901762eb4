// Package server hosts the local preview API: library browsing, hybrid
// search, rendered draft pages and the static asset tree. It is a
// localhost tool, so there is no auth; the chart renderer also points its
// screenshot browser at it.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"pulsepress/internal/config"
	"pulsepress/internal/library"
	"pulsepress/internal/logging"
	"pulsepress/internal/retrieval"
)

// Searcher is the slice of the hybrid retriever the search endpoint uses.
// It stays nil when embeddings are not configured; the endpoint then
// reports how to enable it instead of failing the whole server.
type Searcher interface {
	Search(ctx context.Context, query string, opts retrieval.Options) ([]retrieval.Result, error)
}

// =============================================================================
// SERVER
// =============================================================================

// Server wraps the gin engine with its lifecycle.
type Server struct {
	lib    *library.Library
	cfg    *config.Config
	search Searcher
	assets string

	engine *gin.Engine
	http   *http.Server
}

// NewServer builds the router. workspace locates the asset tree served
// under /assets.
func NewServer(lib *library.Library, cfg *config.Config, search Searcher, workspace string) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		lib:    lib,
		cfg:    cfg,
		search: search,
		assets: cfg.AssetsDir(workspace),
		engine: gin.New(),
	}
	s.engine.Use(requestLogger(), gin.Recovery())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.handleHealth)

	api := s.engine.Group("/api")
	{
		api.GET("/items", s.handleItems)
		api.GET("/drafts", s.handleDrafts)
		api.GET("/drafts/:id", s.handleDraft)
		api.GET("/search", s.handleSearch)
		api.GET("/stats", s.handleStats)
	}

	s.engine.GET("/drafts/:id", s.handleDraftPage)
	s.engine.Static("/assets", s.assets)
}

// requestLogger routes the per-request line through the server log
// category instead of gin's own writer.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.Server("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path,
			c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
}

// ServeHTTP drives the router directly; tests use it in place of a
// listening socket.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

// Run serves until ctx cancels, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	s.http = &http.Server{
		Addr:         s.Addr(),
		Handler:      s.engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.http.ListenAndServe() }()
	logging.Server("Preview server listening on http://%s", s.Addr())

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		<-errCh
		logging.Server("Preview server stopped")
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	}
}
