package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/face-search/internal/config"
	"github.com/kozaktomas/face-search/internal/imagestore"
	"github.com/kozaktomas/face-search/internal/logging"
	"github.com/kozaktomas/face-search/internal/web/handlers"
	"github.com/kozaktomas/face-search/internal/web/middleware"
)

// Deps are the pipeline components the server routes requests to.
type Deps struct {
	Embedder handlers.Embedder
	Searcher handlers.Searcher
	Images   *imagestore.FileStore
}

// Server represents the web server
type Server struct {
	config     *config.Config
	deps       Deps
	router     *chi.Mux
	httpServer *http.Server
}

// NewServer creates a new web server
func NewServer(cfg *config.Config, deps Deps) *Server {
	r := chi.NewRouter()

	s := &Server{
		config: cfg,
		deps:   deps,
		router: r,
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(time.Minute))
	r.Use(middleware.CORS(cfg.Web.AllowedOrigins))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	logging.Infow("starting web server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Infow("shutting down web server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
