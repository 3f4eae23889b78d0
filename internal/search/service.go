package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-search/internal/constants"
	"github.com/kozaktomas/face-search/internal/vectorindex"
)

var (
	// ErrNotFound is returned when a stored face id does not exist.
	ErrNotFound = errors.New("face not found")
	// ErrSearchFailed wraps index failures.
	ErrSearchFailed = errors.New("search failed")
)

// Service runs thresholded, paginated similarity queries. It holds no
// mutable state besides the index handle.
type Service struct {
	index    vectorindex.Reader
	maxFetch int
	synonyms map[string][]string
}

// Option configures a Service.
type Option func(*Service)

// WithMaxFetch overrides the single-query fetch ceiling.
func WithMaxFetch(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxFetch = n
		}
	}
}

// WithSynonyms overrides the payload synonym table.
func WithSynonyms(synonyms map[string][]string) Option {
	return func(s *Service) {
		if len(synonyms) > 0 {
			s.synonyms = synonyms
		}
	}
}

// NewService creates a search service over index.
func NewService(index vectorindex.Reader, opts ...Option) *Service {
	s := &Service{
		index:    index,
		maxFetch: constants.MaxFetch,
		synonyms: DefaultSynonyms,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SearchByVector returns the page [offset, offset+limit) of stored faces with
// score >= threshold ordered by descending score. Total counts eligible
// faces within the fetch ceiling only.
func (s *Service) SearchByVector(ctx context.Context, vector []float32, limit int, threshold float64, offset int) (*PagedResult, error) {
	if limit < 1 {
		return nil, fmt.Errorf("invalid limit %d", limit)
	}

	points, err := s.index.Query(ctx, vector, s.maxFetch, threshold)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSearchFailed, err)
	}

	return s.page(points, len(points) >= s.maxFetch, limit, offset), nil
}

// SearchByStoredID searches with the stored vector of id and never returns id
// itself. The stored face is retrieved once and returned with the page.
func (s *Service) SearchByStoredID(ctx context.Context, id string, limit int, threshold float64, offset int) (*SimilarResult, error) {
	if limit < 1 {
		return nil, fmt.Errorf("invalid limit %d", limit)
	}

	face, err := s.getFace(ctx, id)
	if err != nil {
		return nil, err
	}

	// One extra slot so the self hit does not eat into the ceiling.
	points, err := s.index.Query(ctx, face.Vector, s.maxFetch+1, threshold)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSearchFailed, err)
	}
	capped := len(points) >= s.maxFetch+1

	others := make([]vectorindex.Point, 0, len(points))
	for _, p := range points {
		if p.ID != id {
			others = append(others, p)
		}
	}
	if len(others) > s.maxFetch {
		others = others[:s.maxFetch]
	}

	return &SimilarResult{Face: face, PagedResult: *s.page(others, capped, limit, offset)}, nil
}

// getFace returns the stored face with its vector, or ErrNotFound.
func (s *Service) getFace(ctx context.Context, id string) (*vectorindex.Point, error) {
	face, err := s.index.Retrieve(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSearchFailed, err)
	}
	if face == nil || len(face.Vector) == 0 {
		return nil, ErrNotFound
	}
	return face, nil
}

// Normalize maps a stored payload to the canonical shape.
func (s *Service) Normalize(raw map[string]any) *Payload {
	return NormalizePayload(raw, s.synonyms)
}

func (s *Service) page(points []vectorindex.Point, capped bool, limit, offset int) *PagedResult {
	offset = max(offset, 0)
	pagination := NewPagination(len(points), offset, limit)
	pagination.Approximate = capped

	start := min(offset, len(points))
	end := min(offset+limit, len(points))

	results := make([]Result, 0, end-start)
	for _, p := range points[start:end] {
		results = append(results, Result{
			ID:      p.ID,
			Score:   p.Score,
			Payload: s.Normalize(p.Payload),
		})
	}

	return &PagedResult{Results: results, Pagination: pagination}
}
