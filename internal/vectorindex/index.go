// Package vectorindex stores face embeddings with their payloads and answers
// nearest-neighbour queries by cosine similarity.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
)

// SourceKey is the payload field holding the indexed file's identity.
const SourceKey = "source"

// ErrDimensionMismatch is returned when a vector length differs from the index dimension.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Point is a stored face: its id, embedding and presentation payload.
// Score is only set on query results and is the cosine similarity to the query.
type Point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector,omitempty"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Source returns the payload's source field or an empty string.
func (p *Point) Source() string {
	s, _ := p.Payload[SourceKey].(string)
	return s
}

// Reader answers similarity queries.
type Reader interface {
	// Query returns up to limit points with score >= threshold ordered by
	// descending score. Ties keep the backend's native order.
	Query(ctx context.Context, vector []float32, limit int, threshold float64) ([]Point, error)
	// Retrieve returns the point with its vector, or nil when id is unknown.
	Retrieve(ctx context.Context, id string) (*Point, error)
	// Count returns the number of stored points.
	Count(ctx context.Context) (int, error)
}

// Writer adds faces to the index.
type Writer interface {
	// Upsert inserts or replaces points by id.
	Upsert(ctx context.Context, points ...Point) error
	// HasSource reports whether any point was indexed from source.
	HasSource(ctx context.Context, source string) (bool, error)
}

// Index is a complete vector index backend.
type Index interface {
	Reader
	Writer
	Close() error
}

// CheckDim validates vector length against dim. A dim <= 0 accepts any non-empty vector.
func CheckDim(vector []float32, dim int) error {
	if len(vector) == 0 {
		return fmt.Errorf("%w: empty vector", ErrDimensionMismatch)
	}
	if dim > 0 && len(vector) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), dim)
	}
	return nil
}
