// Package api provides the Verse Reader REST and WebSocket server.
package api

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/FocuswithJustin/versereader/core/bible"
	"github.com/FocuswithJustin/versereader/core/cache"
	"github.com/FocuswithJustin/versereader/internal/logging"
	"github.com/FocuswithJustin/versereader/internal/reader"
	"github.com/FocuswithJustin/versereader/internal/server"
	"github.com/FocuswithJustin/versereader/internal/store"
)

// prewarmConcurrency bounds parallel corpus loads at startup.
const prewarmConcurrency = 4

// Library is the data facade the server reads through.
// *library.Manager implements it.
type Library interface {
	reader.Library
	GetBooksForNavigation(data *bible.Data) []bible.NavBook
}

// Digester fingerprints a translation document. *corpus.Parser implements it.
type Digester interface {
	Digest(ctx context.Context, version string) (string, error)
}

// PositionStore persists reading positions and bookmarks.
// *store.Store implements it.
type PositionStore interface {
	SavePosition(ctx context.Context, userID string, pos reader.Settings) error
	LoadPosition(ctx context.Context, userID string) (reader.Settings, error)
	AddBookmark(ctx context.Context, userID, version, book string, chapter, verse int, note string) (store.Bookmark, error)
	ListBookmarks(ctx context.Context, userID string) ([]store.Bookmark, error)
	DeleteBookmark(ctx context.Context, userID, id string) error
}

// Deps are the collaborators a Server is built from. Only Library is
// required; user routes are registered only when Store is set.
type Deps struct {
	Library    Library
	Digester   Digester
	Store      PositionStore
	CacheStats func() cache.Stats
	Logger     *slog.Logger
}

// Server serves the reader API.
type Server struct {
	cfg        Config
	lib        Library
	digester   Digester
	store      PositionStore
	cacheStats func() cache.Stats
	logger     *slog.Logger
	metrics    *metrics
	hub        *Hub
	started    time.Time
	handler    http.Handler
}

// New builds a Server and its route table.
func New(cfg Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	s := &Server{
		cfg:        cfg,
		lib:        deps.Library,
		digester:   deps.Digester,
		store:      deps.Store,
		cacheStats: deps.CacheStats,
		logger:     deps.Logger,
		metrics:    newMetrics(deps.CacheStats),
		started:    time.Now(),
	}
	s.hub = NewHub(s.metrics.wsClients)
	s.handler = s.middleware(s.routes())
	return s
}

// Handler returns the full middleware chain around the route table.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Hub returns the registry of reader sessions.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.metrics.instrument(pattern, h))
	}

	handle("/", s.handleRoot)
	handle("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.handler())

	handle("GET /api/versions", s.handleVersions)
	handle("GET /api/versions/{version}/books", s.handleBooks)
	handle("GET /api/versions/{version}/books/{book}/chapters/{chapter}", s.handleChapter)
	handle("GET /api/versions/{version}/chapters/{book}/{chapter}/next", s.handleAdjacent(true))
	handle("GET /api/versions/{version}/chapters/{book}/{chapter}/previous", s.handleAdjacent(false))
	handle("GET /api/versions/{version}/ref", s.handleRef)
	handle("GET /api/versions/{version}/search", s.handleSearch)

	if s.store != nil {
		handle("GET /api/position", s.handleGetPosition)
		handle("PUT /api/position", s.handlePutPosition)
		handle("GET /api/bookmarks", s.handleListBookmarks)
		handle("POST /api/bookmarks", s.handleAddBookmark)
		handle("DELETE /api/bookmarks/{id}", s.handleDeleteBookmark)
	}

	mux.Handle("GET /ws/reader", s.metrics.instrument("GET /ws/reader", s.handleReaderSocket()))
	return mux
}

// middleware builds the chain, innermost first.
func (s *Server) middleware(mux http.Handler) http.Handler {
	handler := server.SecurityHeadersWithCSP(server.APICSPConfig(), mux)
	handler = server.TimingMiddleware(s.logger, handler)

	handler = server.CORSMiddlewareWithConfig(server.CORSConfig{
		AllowedOrigins: s.cfg.AllowedOrigins,
	}, handler)
	if len(s.cfg.AllowedOrigins) > 0 {
		logging.SecurityEvent("cors_configured", "api",
			"mode", "restricted",
			"allowed_origins_count", len(s.cfg.AllowedOrigins))
	} else {
		logging.SecurityEvent("cors_configured", "api",
			"mode", "permissive",
			"note", "allowing all origins (*) - consider restricting for production")
	}

	return logging.CombinedMiddleware(handler)
}

// Prewarm loads the book index of every configured translation.
// All loads are attempted; the first failure is returned.
func (s *Server) Prewarm(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(prewarmConcurrency)
	for _, v := range s.cfg.Versions {
		g.Go(func() error {
			start := time.Now()
			data, err := s.lib.GetBibleData(ctx, v)
			if err != nil {
				s.logger.Warn("prewarm failed", "version", v, "error", err)
				return fmt.Errorf("prewarming %s: %w", v, err)
			}
			s.logger.Info("prewarmed translation",
				"version", v,
				"books", len(data.Books),
				"duration_ms", time.Since(start).Milliseconds())
			return nil
		})
	}
	return g.Wait()
}

// ListenAndServe serves until ctx is cancelled, then shuts down
// gracefully and closes all reader sessions.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logging.ServerStartup(s.cfg.Addr, s.cfg.Versions,
		"store", s.store != nil,
		"build_version", s.cfg.BuildVersion)

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	s.hub.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-errc; err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
