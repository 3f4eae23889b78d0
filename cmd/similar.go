package cmd

import (
	"fmt"
	"time"

	"github.com/kozaktomas/face-search/internal/client"
	"github.com/kozaktomas/face-search/internal/config"
	"github.com/kozaktomas/face-search/internal/search"
	"github.com/spf13/cobra"
)

var similarCmd = &cobra.Command{
	Use:   "similar <face-id>",
	Short: "Find faces similar to an indexed face",
	Long: `Find faces similar to a face that is already in the index.
The face itself is left out of the results.

Examples:
  face-search similar 0b6f3c1e-8a53-4f0e-9a3c-2f1f5d1c9b7e
  face-search similar 0b6f3c1e-8a53-4f0e-9a3c-2f1f5d1c9b7e --threshold 0.7 --json
  face-search similar 0b6f3c1e-8a53-4f0e-9a3c-2f1f5d1c9b7e --server http://localhost:8080`,
	Args: cobra.ExactArgs(1),
	RunE: runSimilar,
}

func init() {
	rootCmd.AddCommand(similarCmd)

	addSearchFlags(similarCmd)
}

func runSimilar(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.Load()
	id := args[0]
	limit := mustGetInt(cmd, "limit")
	threshold := mustGetFloat64(cmd, "threshold")
	page := mustGetInt(cmd, "page")
	if limit < 1 || page < 1 {
		return fmt.Errorf("limit and page must be at least 1")
	}

	start := time.Now()
	var (
		face   *search.Result
		result *search.PagedResult
	)

	if server := mustGetString(cmd, "server"); server != "" {
		resp, err := client.New(server, 30*time.Second).SearchByID(ctx, id, limit, threshold, page)
		if err != nil {
			return err
		}
		face = &search.Result{ID: resp.Face.ID, Payload: resp.Face.Payload}
		result = &search.PagedResult{Results: resp.Results, Pagination: resp.Pagination}
	} else {
		idx, err := openIndex(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := idx.Close(); err != nil {
				fmt.Printf("Warning: failed to close index: %v\n", err)
			}
		}()

		svc := newSearchService(cfg, idx)
		similar, err := svc.SearchByStoredID(ctx, id, limit, threshold, search.Offset(page, limit))
		if err != nil {
			return err
		}
		face = &search.Result{ID: similar.Face.ID, Payload: svc.Normalize(similar.Face.Payload)}
		result = &similar.PagedResult
	}

	if mustGetBool(cmd, "json") {
		return printJSON(map[string]any{
			"face":       face,
			"results":    result.Results,
			"pagination": result.Pagination,
		})
	}

	name := ""
	if face.Payload != nil {
		name = face.Payload.Name
	}
	fmt.Printf("Face: %s %s\n", face.ID, name)
	printResults(result.Results, result.Pagination, time.Since(start))
	return nil
}
