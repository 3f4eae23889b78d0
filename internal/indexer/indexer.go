// Package indexer adds the faces found in image files to a vector index.
package indexer

import (
	"context"
	"encoding/base64"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-search/internal/detector"
	"github.com/kozaktomas/face-search/internal/facematch"
	"github.com/kozaktomas/face-search/internal/imagestore"
	"github.com/kozaktomas/face-search/internal/logging"
	"github.com/kozaktomas/face-search/internal/vectorindex"
)

// Extensions lists the file extensions picked up by FindImages.
var Extensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp"}

// Embedder turns a face crop data URL into an embedding.
type Embedder interface {
	Embed(ctx context.Context, imageData string) ([]float32, error)
}

// Indexer detects, embeds and stores the faces of one file at a time.
// It is safe for concurrent use when its dependencies are.
type Indexer struct {
	detector detector.Detector
	embedder Embedder
	index    vectorindex.Writer
	images   imagestore.Store // nil disables image copies
	name     string
	now      func() time.Time
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithImageStore keeps copies of full images and crops and links them from payloads.
func WithImageStore(store imagestore.Store) Option {
	return func(ix *Indexer) { ix.images = store }
}

// WithName labels every indexed face with name instead of deriving it from the file name.
func WithName(name string) Option {
	return func(ix *Indexer) { ix.name = name }
}

// New creates an Indexer that finds faces with det, embeds them with emb and
// upserts them into index.
func New(det detector.Detector, emb Embedder, index vectorindex.Writer, opts ...Option) *Indexer {
	ix := &Indexer{
		detector: det,
		embedder: emb,
		index:    index,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Result summarises one indexed file.
type Result struct {
	Source  string
	Faces   int
	Skipped bool // already indexed
}

// IndexFile indexes every face in the image at path. Files already present
// in the index (by source) are skipped. A face the embedding service rejects
// is logged and left out; other embedding errors fail the file.
func (ix *Indexer) IndexFile(ctx context.Context, path string) (Result, error) {
	source, err := filepath.Abs(path)
	if err != nil {
		source = path
	}
	res := Result{Source: source}

	has, err := ix.index.HasSource(ctx, source)
	if err != nil {
		return res, fmt.Errorf("failed to check index: %w", err)
	}
	if has {
		res.Skipped = true
		return res, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return res, fmt.Errorf("failed to read %s: %w", path, err)
	}
	img, err := detector.DecodeImage(data)
	if err != nil {
		return res, err
	}

	faces, err := ix.detector.Detect(ctx, img)
	if err != nil {
		return res, fmt.Errorf("face detection failed: %w", err)
	}
	if len(faces) == 0 {
		return res, nil
	}

	name := ix.name
	if name == "" {
		name = facematch.LabelFromFilename(path)
	}
	bounds := img.Bounds()
	fullURL := ix.storeImage(ctx, "full", filepath.Ext(path), data)

	points := make([]vectorindex.Point, 0, len(faces))
	for _, face := range faces {
		vector, err := ix.embedder.Embed(ctx, face.Crop)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			logging.Warnw("skipping face", "source", source, "face", face.ID, "error", err)
			continue
		}

		payload := map[string]any{
			vectorindex.SourceKey: source,
			"name":                name,
			"label":               facematch.NormalizeLabel(name),
			"faceIndex":           face.ID,
			"confidence":          face.Confidence,
			"bbox":                facematch.ConvertPixelBBoxToRelative(face.BBox.Corners(), bounds.Dx(), bounds.Dy()),
			"createdAt":           ix.now().UTC().Format(time.RFC3339),
		}
		if fullURL != "" {
			payload["fullImageUrl"] = fullURL
		}
		if crop, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(face.Crop, detector.DataURLPrefix)); err == nil {
			if url := ix.storeImage(ctx, "cropped", ".jpg", crop); url != "" {
				payload["croppedImageUrl"] = url
			}
		}

		points = append(points, vectorindex.Point{
			ID:      uuid.NewString(),
			Vector:  vector,
			Payload: payload,
		})
	}

	if len(points) == 0 {
		return res, nil
	}
	if err := ix.index.Upsert(ctx, points...); err != nil {
		return res, fmt.Errorf("failed to store faces: %w", err)
	}
	res.Faces = len(points)
	return res, nil
}

// storeImage returns the stored image URL or "" when storage is off or fails.
func (ix *Indexer) storeImage(ctx context.Context, kind, ext string, data []byte) string {
	if ix.images == nil {
		return ""
	}
	url, err := ix.images.Put(ctx, imagestore.QueryImageName(kind, strings.ToLower(ext), ix.now()), data)
	if err != nil {
		logging.Debugw("image not stored", "kind", kind, "error", err)
		return ""
	}
	return url
}

// FindImages returns the image files under root in lexical order. A file
// root is returned as is.
func FindImages(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if slices.Contains(Extensions, strings.ToLower(filepath.Ext(path))) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
