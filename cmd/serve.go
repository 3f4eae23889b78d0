package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/face-search/internal/config"
	"github.com/kozaktomas/face-search/internal/imagestore"
	"github.com/kozaktomas/face-search/internal/logging"
	"github.com/kozaktomas/face-search/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the face search API server",
	Long: `Start the face search HTTP API.

Endpoints:
  GET  /api/v1/health
  POST /api/v1/search              search with a cropped face image
  GET  /api/v1/search/{id}         search with a stored face
  GET  /api/v1/query-images/{name} stored query images (QUERY_IMAGE_DIR)`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (default WEB_PORT or 8080)")
	serveCmd.Flags().String("host", "", "Host to bind to (default WEB_HOST or 0.0.0.0)")
}

// resolveServeHostPort lets flags override the environment.
func resolveServeHostPort(cmd *cobra.Command, cfg *config.Config) {
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	resolveServeHostPort(cmd, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	idx, err := openIndex(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := idx.Close(); err != nil {
			fmt.Printf("Warning: failed to close index: %v\n", err)
		}
	}()

	count, err := idx.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count indexed faces: %w", err)
	}
	fmt.Printf("Indexed faces: %d\n", count)

	images, err := imagestore.NewFileStore(cfg.Storage.QueryImageDir, cfg.Web.PublicURL)
	if err != nil {
		return err
	}
	if !images.Enabled() {
		fmt.Println("Query image storage disabled (set QUERY_IMAGE_DIR to enable)")
	}

	gate := newGate(cfg)
	logging.Infow("embedding gate ready", "url", cfg.Embedding.URL, "concurrency", gate.Limit(), "timeout", cfg.Embedding.Timeout())

	server := web.NewServer(cfg, web.Deps{
		Embedder: gate,
		Searcher: newSearchService(cfg, idx),
		Images:   images,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Face Search API on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
