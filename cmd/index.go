package cmd

import (
	"fmt"
	"sync"

	"github.com/kozaktomas/face-search/internal/config"
	"github.com/kozaktomas/face-search/internal/constants"
	"github.com/kozaktomas/face-search/internal/detector"
	"github.com/kozaktomas/face-search/internal/imagestore"
	"github.com/kozaktomas/face-search/internal/indexer"
	"github.com/kozaktomas/face-search/internal/logging"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var indexCmd = &cobra.Command{
	Use:   "index <path>",
	Short: "Add faces from image files to the index",
	Long: `Detect faces in image files and store their embeddings in the index.

The path may be a single image or a directory, which is walked recursively.
Files that are already in the index are skipped. The person name is taken
from the file name (e.g., jan-novak_02.jpg -> "jan novak") unless --name is set.

Examples:
  # Index a directory
  face-search index ./photos

  # Index one file with an explicit name
  face-search index portrait.jpg --name "Jan Novák"

  # Index with more parallel workers
  face-search index ./photos --concurrency 8`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)

	indexCmd.Flags().String("name", "", "Person name for every face (default: derived from the file name)")
	indexCmd.Flags().Int("concurrency", constants.DefaultIndexConcurrency, "Number of files processed in parallel")
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.Load()
	concurrency := mustGetInt(cmd, "concurrency")
	if concurrency < 1 {
		concurrency = 1
	}

	files, err := indexer.FindImages(args[0])
	if err != nil {
		return fmt.Errorf("failed to list images: %w", err)
	}
	if len(files) == 0 {
		fmt.Println("No images found")
		return nil
	}

	det := detector.NewRemoteDetector(cfg.Detector.URL, cfg.Detector.MinConfidence)
	if err := det.Init(ctx); err != nil {
		return fmt.Errorf("face detector not available: %w", err)
	}

	idx, err := openIndex(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := idx.Close(); err != nil {
			fmt.Printf("Warning: failed to close index: %v\n", err)
		}
	}()

	startCount, _ := idx.Count(ctx)
	fmt.Printf("Faces in index: %d\n", startCount)

	opts := []indexer.Option{indexer.WithName(mustGetString(cmd, "name"))}
	images, err := imagestore.NewFileStore(cfg.Storage.QueryImageDir, cfg.Web.PublicURL)
	if err != nil {
		return err
	}
	if images.Enabled() {
		opts = append(opts, indexer.WithImageStore(images))
	}
	ix := indexer.New(det, newGate(cfg), idx, opts...)

	fmt.Printf("Images to process: %d\n\n", len(files))

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Indexing faces"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var successCount, skippedCount, errorCount, totalFaces int
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, file := range files {
		g.Go(func() error {
			defer bar.Add(1)

			res, err := ix.IndexFile(gctx, file)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				errorCount++
				logging.Warnw("failed to index file", "file", file, "error", err)
			case res.Skipped:
				skippedCount++
			default:
				successCount++
				totalFaces += res.Faces
			}
			// Per-file failures are counted, only cancellation stops the run.
			return gctx.Err()
		})
	}

	waitErr := g.Wait()
	fmt.Println()

	finalCount, _ := idx.Count(ctx)
	fmt.Printf("\nCompleted: %d images processed, %d skipped, %d errors\n", successCount, skippedCount, errorCount)
	fmt.Printf("New faces indexed: %d\n", totalFaces)
	fmt.Printf("Total faces in index: %d\n", finalCount)

	return waitErr
}
