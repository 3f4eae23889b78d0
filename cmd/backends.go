package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-search/internal/config"
	"github.com/kozaktomas/face-search/internal/embedding"
	"github.com/kozaktomas/face-search/internal/search"
	"github.com/kozaktomas/face-search/internal/vectorindex"
	"github.com/kozaktomas/face-search/internal/vectorindex/postgres"
)

// openIndex opens the vector index selected by INDEX_BACKEND.
func openIndex(ctx context.Context, cfg *config.Config) (vectorindex.Index, error) {
	switch cfg.Index.Backend {
	case "postgres":
		if cfg.Database.URL == "" {
			return nil, errors.New("DATABASE_URL environment variable is required for the postgres backend")
		}
		fmt.Println("Connecting to PostgreSQL...")
		idx, err := postgres.Open(ctx, &cfg.Database, cfg.Index.Dim)
		if err != nil {
			return nil, fmt.Errorf("failed to open PostgreSQL index: %w", err)
		}
		return idx, nil

	case "hnsw", "":
		if cfg.Index.HNSWPath != "" {
			fmt.Printf("Loading HNSW index from %s...\n", cfg.Index.HNSWPath)
		} else {
			fmt.Println("Using in-memory HNSW index (not persisted)")
		}
		idx, err := vectorindex.OpenHNSWIndex(cfg.Index.HNSWPath, cfg.Index.Dim)
		if err != nil {
			return nil, fmt.Errorf("failed to open HNSW index: %w", err)
		}
		return idx, nil

	default:
		return nil, fmt.Errorf("unknown INDEX_BACKEND %q (want hnsw or postgres)", cfg.Index.Backend)
	}
}

// newGate builds the process-wide embedding gate. It must be created once per process.
func newGate(cfg *config.Config) *embedding.Gate {
	rep := embedding.NewDeepFaceClient(cfg.Embedding.URL, cfg.Embedding.Model, cfg.Embedding.DetectorBackend)
	return embedding.NewGate(rep, cfg.Embedding.Concurrency, cfg.Embedding.Timeout())
}

// newSearchService builds the similarity query service with the configured payload synonyms.
func newSearchService(cfg *config.Config, idx vectorindex.Reader) *search.Service {
	return search.NewService(idx, search.WithSynonyms(cfg.Payload.Fields))
}
