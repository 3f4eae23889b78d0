// Package search answers paginated similarity queries against the vector index.
package search

import "github.com/kozaktomas/face-search/internal/vectorindex"

// Payload is the canonical presentation shape of a stored face.
type Payload struct {
	FaceImageURL    string         `json:"faceImageUrl,omitempty"`
	OriginalURL     string         `json:"originalUrl,omitempty"`
	Name            string         `json:"name,omitempty"`
	CroppedImageURL string         `json:"croppedImageUrl,omitempty"`
	FullImageURL    string         `json:"fullImageUrl,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"` // raw upstream payload
}

// Result is one ranked match.
type Result struct {
	ID      string   `json:"id"`
	Score   float64  `json:"score"`
	Payload *Payload `json:"payload,omitempty"`
}

// Pagination describes one page of a ranked result list.
// TotalPages is always ceil(Total / PageSize).
type Pagination struct {
	Total       int  `json:"total"`
	Page        int  `json:"page"`
	PageSize    int  `json:"pageSize"`
	TotalPages  int  `json:"totalPages"`
	Approximate bool `json:"approximate,omitempty"` // Total was capped by the fetch ceiling
}

// PagedResult is a page of results with its pagination.
type PagedResult struct {
	Results    []Result   `json:"results"`
	Pagination Pagination `json:"pagination"`
}

// SimilarResult is a page of faces similar to a stored face.
type SimilarResult struct {
	Face *vectorindex.Point // the queried face, vector included
	PagedResult
}

// NewPagination computes pagination for a list of total items sliced at
// offset with page size limit. limit must be positive.
func NewPagination(total, offset, limit int) Pagination {
	return Pagination{
		Total:      total,
		Page:       offset/limit + 1,
		PageSize:   limit,
		TotalPages: (total + limit - 1) / limit,
	}
}

// Offset converts a 1-based page number to a slice offset.
func Offset(page, limit int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * limit
}

// ClampPage keeps page within [1, max(totalPages, 1)].
func ClampPage(page, totalPages int) int {
	return max(1, min(page, max(totalPages, 1)))
}
