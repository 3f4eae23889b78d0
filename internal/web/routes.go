package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-search/internal/imagestore"
	"github.com/kozaktomas/face-search/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	var store imagestore.Store
	if s.deps.Images != nil && s.deps.Images.Enabled() {
		store = s.deps.Images
	}
	searchHandler := handlers.NewSearchHandler(s.deps.Embedder, s.deps.Searcher, store, s.config.Limits)

	// Gate-backed embedders expose their load on /health.
	stats, _ := s.deps.Embedder.(handlers.EmbeddingStats)
	health := handlers.HealthHandler(stats)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", health)
		r.Head("/health", health)

		r.Post("/search", searchHandler.Search)
		r.Get("/search/{id}", searchHandler.SearchByID)

		if s.deps.Images != nil {
			r.Get("/query-images/{name}", handlers.NewQueryImagesHandler(s.deps.Images).Get)
		}
	})
}
