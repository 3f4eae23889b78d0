// Package imagestore keeps copies of query images on local disk and serves
// them back by name.
package imagestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RoutePrefix is the HTTP path under which stored images are served.
const RoutePrefix = "/api/v1/query-images/"

var (
	// ErrDisabled is returned by Put when no storage directory is configured.
	ErrDisabled = errors.New("query image storage disabled")
	// ErrInvalidName is returned for names that could escape the storage directory.
	ErrInvalidName = errors.New("invalid image name")
)

// Store persists query images.
type Store interface {
	// Put stores data under name and returns the public URL.
	Put(ctx context.Context, name string, data []byte) (string, error)
}

// FileStore writes images into a directory.
type FileStore struct {
	dir     string
	baseURL string
}

// NewFileStore creates a store rooted at dir. An empty dir returns a store
// whose Put always fails with ErrDisabled. baseURL prefixes returned URLs
// (e.g., https://faces.example.com), empty yields relative URLs.
func NewFileStore(dir, baseURL string) (*FileStore, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create image directory: %w", err)
		}
	}
	return &FileStore{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Enabled reports whether a directory is configured.
func (s *FileStore) Enabled() bool {
	return s.dir != ""
}

// Put implements Store.
func (s *FileStore) Put(ctx context.Context, name string, data []byte) (string, error) {
	if !s.Enabled() {
		return "", ErrDisabled
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, err := s.Path(name)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	return s.URL(name), nil
}

// Path resolves name inside the storage directory.
func (s *FileStore) Path(name string) (string, error) {
	if !s.Enabled() {
		return "", ErrDisabled
	}
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", ErrInvalidName
	}
	return filepath.Join(s.dir, name), nil
}

// URL returns the public URL of a stored image.
func (s *FileStore) URL(name string) string {
	return s.baseURL + RoutePrefix + name
}

// QueryImageName builds a unique name for an uploaded query image, e.g.
// "<uuid>-cropped-<unix millis>.jpg".
func QueryImageName(kind, ext string, now time.Time) string {
	return fmt.Sprintf("%s-%s-%d%s", uuid.NewString(), kind, now.UnixMilli(), ext)
}
