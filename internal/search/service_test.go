package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/kozaktomas/face-search/internal/vectorindex"
	"github.com/kozaktomas/face-search/internal/vectorindex/mock"
)

// angleVector returns a unit vector whose cosine similarity to angleVector(0) is cos(angle).
func angleVector(angle float64) []float32 {
	return []float32{float32(math.Cos(angle)), float32(math.Sin(angle)), 0}
}

// newIndexWithMatches stores matches faces with scores in (0.6, 1] against
// angleVector(0) and misses faces with scores below 0.6.
func newIndexWithMatches(matches, misses int) *mock.MockIndex {
	idx := mock.NewMockIndex()
	for i := range matches {
		idx.AddPoint(vectorindex.Point{
			ID:      fmt.Sprintf("match-%02d", i),
			Vector:  angleVector(float64(i) * 0.02), // cos(0.78) ~ 0.71
			Payload: map[string]any{"name": fmt.Sprintf("match %d", i)},
		})
	}
	for i := range misses {
		idx.AddPoint(vectorindex.Point{
			ID:     fmt.Sprintf("miss-%02d", i),
			Vector: angleVector(1.2 + float64(i)*0.01), // cos(1.2) ~ 0.36
		})
	}
	return idx
}

func TestNewPagination(t *testing.T) {
	tests := []struct {
		name                 string
		total, offset, limit int
		want                 Pagination
	}{
		{"empty", 0, 0, 25, Pagination{Total: 0, Page: 1, PageSize: 25, TotalPages: 0}},
		{"exact pages", 50, 25, 25, Pagination{Total: 50, Page: 2, PageSize: 25, TotalPages: 2}},
		{"partial last page", 40, 25, 25, Pagination{Total: 40, Page: 2, PageSize: 25, TotalPages: 2}},
		{"single item", 1, 0, 1, Pagination{Total: 1, Page: 1, PageSize: 1, TotalPages: 1}},
		{"offset inside page", 100, 30, 25, Pagination{Total: 100, Page: 2, PageSize: 25, TotalPages: 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewPagination(tt.total, tt.offset, tt.limit)
			if got != tt.want {
				t.Errorf("NewPagination() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPaginationInvariant(t *testing.T) {
	for total := 0; total <= 120; total += 7 {
		for limit := 1; limit <= 50; limit += 7 {
			p := NewPagination(total, 0, limit)
			want := int(math.Ceil(float64(total) / float64(limit)))
			if p.TotalPages != want {
				t.Errorf("total=%d limit=%d: TotalPages=%d, want %d", total, limit, p.TotalPages, want)
			}
			for page := -1; page <= want+2; page++ {
				clamped := ClampPage(page, p.TotalPages)
				if clamped < 1 || clamped > max(p.TotalPages, 1) {
					t.Errorf("ClampPage(%d, %d) = %d out of range", page, p.TotalPages, clamped)
				}
			}
		}
	}
}

func TestOffset(t *testing.T) {
	if got := Offset(2, 25); got != 25 {
		t.Errorf("Offset(2, 25) = %d, want 25", got)
	}
	if got := Offset(0, 25); got != 0 {
		t.Errorf("Offset(0, 25) = %d, want 0", got)
	}
}

func TestSearchByVector_SecondPage(t *testing.T) {
	idx := newIndexWithMatches(40, 10)
	svc := NewService(idx)

	result, err := svc.SearchByVector(context.Background(), angleVector(0), 25, 0.6, Offset(2, 25))
	if err != nil {
		t.Fatalf("SearchByVector returned error: %v", err)
	}

	want := Pagination{Total: 40, Page: 2, PageSize: 25, TotalPages: 2}
	if result.Pagination != want {
		t.Errorf("expected pagination %+v, got %+v", want, result.Pagination)
	}
	if len(result.Results) != 15 {
		t.Fatalf("expected 15 results, got %d", len(result.Results))
	}
	if result.Results[0].ID != "match-25" {
		t.Errorf("expected page to start at match-25, got %s", result.Results[0].ID)
	}
	for i := 1; i < len(result.Results); i++ {
		if result.Results[i].Score > result.Results[i-1].Score {
			t.Errorf("results not sorted at %d", i)
		}
	}
	if idx.LastLimit != 500 {
		t.Errorf("expected a single fetch of 500, got %d", idx.LastLimit)
	}
	if idx.LastThresh != 0.6 {
		t.Errorf("expected threshold 0.6 passed to the index, got %v", idx.LastThresh)
	}
}

func TestSearchByVector_PageBeyondEnd(t *testing.T) {
	svc := NewService(newIndexWithMatches(10, 0))

	result, err := svc.SearchByVector(context.Background(), angleVector(0), 25, 0.6, Offset(3, 25))
	if err != nil {
		t.Fatalf("SearchByVector returned error: %v", err)
	}
	if len(result.Results) != 0 {
		t.Errorf("expected no results, got %d", len(result.Results))
	}
	if result.Pagination.Total != 10 || result.Pagination.Page != 3 || result.Pagination.TotalPages != 1 {
		t.Errorf("unexpected pagination %+v", result.Pagination)
	}
}

func TestSearchByVector_ApproximateTotal(t *testing.T) {
	svc := NewService(newIndexWithMatches(30, 0), WithMaxFetch(20))

	result, err := svc.SearchByVector(context.Background(), angleVector(0), 10, 0.6, 0)
	if err != nil {
		t.Fatalf("SearchByVector returned error: %v", err)
	}
	if result.Pagination.Total != 20 {
		t.Errorf("expected total capped at 20, got %d", result.Pagination.Total)
	}
	if !result.Pagination.Approximate {
		t.Error("expected approximate flag when the ceiling is hit")
	}
}

func TestSearchByVector_IndexError(t *testing.T) {
	idx := mock.NewMockIndex()
	idx.QueryError = errors.New("connection refused")
	svc := NewService(idx)

	_, err := svc.SearchByVector(context.Background(), angleVector(0), 25, 0.6, 0)
	if !errors.Is(err, ErrSearchFailed) {
		t.Errorf("expected ErrSearchFailed, got %v", err)
	}
}

func TestSearchByVector_InvalidLimit(t *testing.T) {
	svc := NewService(mock.NewMockIndex())

	if _, err := svc.SearchByVector(context.Background(), angleVector(0), 0, 0.6, 0); err == nil {
		t.Error("expected error for zero limit")
	}
}

func TestSearchByStoredID_ExcludesSelf(t *testing.T) {
	idx := newIndexWithMatches(40, 0)
	svc := NewService(idx)

	for _, page := range []int{1, 2} {
		result, err := svc.SearchByStoredID(context.Background(), "match-00", 25, 0.6, Offset(page, 25))
		if err != nil {
			t.Fatalf("SearchByStoredID returned error: %v", err)
		}
		for _, r := range result.Results {
			if r.ID == "match-00" {
				t.Errorf("page %d contains the queried id", page)
			}
		}
		if result.Pagination.Total != 39 {
			t.Errorf("expected total 39 without self, got %d", result.Pagination.Total)
		}
	}
	if idx.LastLimit != 501 {
		t.Errorf("expected fetch of 501 to cover the self hit, got %d", idx.LastLimit)
	}
}

func TestSearchByStoredID_CapsAtMaxFetch(t *testing.T) {
	svc := NewService(newIndexWithMatches(30, 0), WithMaxFetch(10))

	result, err := svc.SearchByStoredID(context.Background(), "match-00", 25, 0.6, 0)
	if err != nil {
		t.Fatalf("SearchByStoredID returned error: %v", err)
	}
	if result.Pagination.Total != 10 || !result.Pagination.Approximate {
		t.Errorf("expected capped approximate total of 10, got %+v", result.Pagination)
	}
}

func TestSearchByStoredID_NotFound(t *testing.T) {
	idx := newIndexWithMatches(5, 0)
	svc := NewService(idx)

	_, err := svc.SearchByStoredID(context.Background(), "unknown", 25, 0.6, 0)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if idx.QueryCalls != 0 {
		t.Errorf("expected no query for unknown id, got %d", idx.QueryCalls)
	}
}

func TestSearchByStoredID_ReturnsFace(t *testing.T) {
	idx := newIndexWithMatches(5, 0)
	svc := NewService(idx)

	result, err := svc.SearchByStoredID(context.Background(), "match-00", 25, 0.6, 0)
	if err != nil {
		t.Fatalf("SearchByStoredID returned error: %v", err)
	}
	if result.Face == nil || result.Face.ID != "match-00" || len(result.Face.Vector) == 0 {
		t.Errorf("expected stored face with vector, got %+v", result.Face)
	}
	if idx.RetrieveCalls != 1 {
		t.Errorf("expected one retrieve, got %d", idx.RetrieveCalls)
	}
}

func TestGetFace_RetrieveError(t *testing.T) {
	idx := mock.NewMockIndex()
	idx.RetrieveError = errors.New("timeout")
	svc := NewService(idx)

	_, err := svc.getFace(context.Background(), "x")
	if !errors.Is(err, ErrSearchFailed) {
		t.Errorf("expected ErrSearchFailed, got %v", err)
	}
}

func TestNormalizePayload(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		want Payload
	}{
		{
			name: "preferred spellings",
			raw: map[string]any{
				"imageUrl":    "https://cdn/face.jpg",
				"originalUrl": "https://site/page",
				"name":        "Jan",
			},
			want: Payload{FaceImageURL: "https://cdn/face.jpg", OriginalURL: "https://site/page", Name: "Jan"},
		},
		{
			name: "fallback spellings",
			raw: map[string]any{
				"croppedImageUrl": "https://s3/crop.jpg",
				"fullImageUrl":    "https://s3/full.jpg",
				"display_name":    "Eva",
			},
			want: Payload{
				FaceImageURL:    "https://s3/crop.jpg",
				OriginalURL:     "https://s3/full.jpg",
				Name:            "Eva",
				CroppedImageURL: "https://s3/crop.jpg",
				FullImageURL:    "https://s3/full.jpg",
			},
		},
		{
			name: "empty and non-string values are skipped",
			raw: map[string]any{
				"imageUrl":   "",
				"image_url":  "https://cdn/other.jpg",
				"source_url": 42,
				"label":      "Petr",
			},
			want: Payload{FaceImageURL: "https://cdn/other.jpg", Name: "Petr"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizePayload(tt.raw, nil)
			if got.FaceImageURL != tt.want.FaceImageURL ||
				got.OriginalURL != tt.want.OriginalURL ||
				got.Name != tt.want.Name ||
				got.CroppedImageURL != tt.want.CroppedImageURL ||
				got.FullImageURL != tt.want.FullImageURL {
				t.Errorf("NormalizePayload() = %+v, want %+v", *got, tt.want)
			}
			if len(got.Metadata) != len(tt.raw) {
				t.Errorf("expected raw payload kept as metadata, got %v", got.Metadata)
			}
		})
	}

	if NormalizePayload(nil, nil) != nil {
		t.Error("expected nil payload for nil input")
	}
}

func TestNormalizePayload_CustomSynonyms(t *testing.T) {
	svc := NewService(mock.NewMockIndex(), WithSynonyms(map[string][]string{
		FieldName: {"person"},
	}))

	got := svc.Normalize(map[string]any{"person": "Ota", "name": "ignored"})
	if got.Name != "Ota" {
		t.Errorf("expected custom synonym to win, got %q", got.Name)
	}
}
