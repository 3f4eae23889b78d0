package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kozaktomas/face-search/internal/client"
	"github.com/kozaktomas/face-search/internal/config"
	"github.com/kozaktomas/face-search/internal/detector"
	"github.com/kozaktomas/face-search/internal/search"
	"github.com/kozaktomas/face-search/internal/workflow"
	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <image>",
	Short: "Search for faces similar to a face in a photo",
	Long: `Detect faces in a photo and search the index for similar faces.

With one face in the photo the search starts right away. With several faces
the detected faces are listed and one has to be chosen with --face.

Examples:
  # Search with the only face in a photo
  face-search search portrait.jpg

  # Photo with several faces: list them, then pick one
  face-search search group.jpg
  face-search search group.jpg --face face-1

  # Second page through a running server
  face-search search portrait.jpg --page 2 --server http://localhost:8080`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	addSearchFlags(searchCmd)
	searchCmd.Flags().String("face", "", "Detected face to search with (e.g., face-1)")
}

// newWorkflowSearcher returns an API-backed searcher when --server is set,
// otherwise one over local backends. The returned cleanup closes local backends.
func newWorkflowSearcher(cmd *cobra.Command, cfg *config.Config) (workflow.Searcher, func(), error) {
	if server := mustGetString(cmd, "server"); server != "" {
		c := client.New(server, 2*cfg.Embedding.Timeout()+30*time.Second)
		if err := c.Health(cmd.Context()); err != nil {
			return nil, nil, fmt.Errorf("server %s is not reachable: %w", server, err)
		}
		return workflow.NewRemoteSearcher(c), func() {}, nil
	}

	idx, err := openIndex(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := idx.Close(); err != nil {
			fmt.Printf("Warning: failed to close index: %v\n", err)
		}
	}
	return workflow.NewLocalSearcher(newGate(cfg), newSearchService(cfg, idx)), cleanup, nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.Load()
	page := mustGetInt(cmd, "page")
	faceID := mustGetString(cmd, "face")

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	det := detector.NewRemoteDetector(cfg.Detector.URL, cfg.Detector.MinConfidence)
	if err := det.Init(ctx); err != nil {
		return fmt.Errorf("face detector not available: %w", err)
	}

	searcher, cleanup, err := newWorkflowSearcher(cmd, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	session := workflow.NewSession(det, searcher,
		workflow.WithLimit(mustGetInt(cmd, "limit")),
		workflow.WithThreshold(mustGetFloat64(cmd, "threshold")),
	)

	fmt.Printf("Detecting faces in %s...\n", args[0])
	if err := session.Upload(ctx, data); err != nil && session.State().Step != workflow.StepSelect {
		return sessionError(session.State(), err)
	}

	state := session.State()
	if state.Step == workflow.StepUpload {
		return errors.New(state.Error)
	}

	if len(state.Faces) > 1 {
		if faceID == "" {
			printFaces(state.Faces)
			fmt.Println("\nChoose a face with --face <id>")
			return nil
		}
		fmt.Printf("Searching with %s...\n", faceID)
		if err := session.SelectFace(ctx, faceID); err != nil {
			return sessionError(session.State(), err)
		}
	}

	if page > 1 {
		if err := session.ChangePage(ctx, page); err != nil {
			return sessionError(session.State(), err)
		}
	}

	state = session.State()
	if state.Step != workflow.StepResults {
		return sessionError(state, nil)
	}

	if mustGetBool(cmd, "json") {
		return printJSON(map[string]any{
			"face":       state.SelectedFace.ID,
			"query":      state.QueryImageURL,
			"results":    state.Results,
			"pagination": state.Pagination,
			"durationMs": state.SearchDuration.Milliseconds(),
		})
	}

	fmt.Printf("\nQuery face: %s (confidence %.2f)\n", state.SelectedFace.ID, state.SelectedFace.Confidence)
	printResults(state.Results, *state.Pagination, state.SearchDuration)
	return nil
}

// sessionError prefers the user-facing message recorded in the session state.
func sessionError(state workflow.State, err error) error {
	if state.Error != "" {
		return errors.New(state.Error)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("search ended in step %s", state.Step)
}

func printFaces(faces []detector.DetectedFace) {
	fmt.Printf("Detected %d faces:\n", len(faces))
	for _, f := range faces {
		fmt.Printf("  %-8s confidence %.2f  box x=%.0f y=%.0f w=%.0f h=%.0f\n",
			f.ID, f.Confidence, f.BBox.X, f.BBox.Y, f.BBox.Width, f.BBox.Height)
	}
}

func printResults(results []search.Result, p search.Pagination, took time.Duration) {
	if p.Total == 0 {
		fmt.Println("No similar faces found")
		return
	}

	total := fmt.Sprintf("%d", p.Total)
	if p.Approximate {
		total += "+"
	}
	first := (p.Page-1)*p.PageSize + 1
	fmt.Printf("Results %d-%d of %s (page %d/%d) in %s\n\n",
		first, first+len(results)-1, total, p.Page, p.TotalPages, took.Round(time.Millisecond))

	for i, r := range results {
		name, url := "", ""
		if r.Payload != nil {
			name = r.Payload.Name
			url = r.Payload.FaceImageURL
		}
		fmt.Printf("%4d. %.4f  %-36s  %-24s  %s\n", first+i, r.Score, r.ID, name, url)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
