package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/kozaktomas/face-search/internal/logging"
	"github.com/spf13/cobra"
)

var (
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "face-search",
	Short: "Find visually similar faces in an indexed photo collection",
	Long: `Face Search detects faces in a photo, embeds the chosen face with a
DeepFace server and returns similar faces from a vector index
(in-memory HNSW or PostgreSQL with pgvector), page by page.`,
	SilenceUsage: true,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

// Execute runs the root command. Interrupt cancels the command context so
// long-running commands stop cleanly.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides LOG_LEVEL")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (json, console); overrides LOG_FORMAT")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()

	level := logLevel
	if level == "" {
		level = envOr("LOG_LEVEL", "info")
	}
	format := logFormat
	if format == "" {
		format = envOr("LOG_FORMAT", "console")
	}
	if err := logging.Init(level, format); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
