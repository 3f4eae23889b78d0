package cmd

import (
	"fmt"
	"runtime"

	"github.com/kozaktomas/face-search/internal/config"
	"github.com/spf13/cobra"
)

// Set by -ldflags at build time.
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and pipeline settings",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		fmt.Printf("face-search %s (%s, built %s, %s)\n", Version, CommitSHA, BuildDate, runtime.Version())
		fmt.Printf("  Embedding: %s via %s (%d-d, detector %s)\n",
			cfg.Embedding.Model, cfg.Embedding.URL, cfg.Index.Dim, cfg.Embedding.DetectorBackend)
		fmt.Printf("  Index:     %s\n", cfg.Index.Backend)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
