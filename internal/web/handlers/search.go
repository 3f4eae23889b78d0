package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-search/internal/config"
	"github.com/kozaktomas/face-search/internal/constants"
	"github.com/kozaktomas/face-search/internal/embedding"
	"github.com/kozaktomas/face-search/internal/imagestore"
	"github.com/kozaktomas/face-search/internal/logging"
	"github.com/kozaktomas/face-search/internal/search"
)

// Embedder turns a face crop into a vector.
type Embedder interface {
	Embed(ctx context.Context, imageData string) ([]float32, error)
}

// Searcher answers similarity queries.
type Searcher interface {
	SearchByVector(ctx context.Context, vector []float32, limit int, threshold float64, offset int) (*search.PagedResult, error)
	SearchByStoredID(ctx context.Context, id string, limit int, threshold float64, offset int) (*search.SimilarResult, error)
	Normalize(raw map[string]any) *search.Payload
}

// SearchHandler serves the face search endpoints.
type SearchHandler struct {
	embedder Embedder
	searcher Searcher
	store    imagestore.Store
	limits   config.LimitsConfig
}

// NewSearchHandler creates a search handler. store may be nil, in which case
// query images are not kept.
func NewSearchHandler(embedder Embedder, searcher Searcher, store imagestore.Store, limits config.LimitsConfig) *SearchHandler {
	return &SearchHandler{
		embedder: embedder,
		searcher: searcher,
		store:    store,
		limits:   limits,
	}
}

// QueryInfo describes the query of a POST /search response.
type QueryInfo struct {
	ThumbnailURL    string    `json:"thumbnailUrl,omitempty"`
	CroppedImageURL string    `json:"croppedImageUrl,omitempty"`
	FullImageURL    string    `json:"fullImageUrl,omitempty"`
	Embedding       []float32 `json:"embedding,omitempty"`
}

// SearchResponse is the body of POST /search.
type SearchResponse struct {
	Success    bool              `json:"success"`
	Query      QueryInfo         `json:"query"`
	Results    []search.Result   `json:"results"`
	Pagination search.Pagination `json:"pagination"`
	DurationMS int64             `json:"durationMs"`
}

// FaceInfo is the stored face a by-id search started from.
type FaceInfo struct {
	ID      string          `json:"id"`
	Payload *search.Payload `json:"payload,omitempty"`
}

// SimilarResponse is the body of GET /search/{id}.
type SimilarResponse struct {
	Success    bool              `json:"success"`
	Face       FaceInfo          `json:"face"`
	Results    []search.Result   `json:"results"`
	Pagination search.Pagination `json:"pagination"`
}

// Search embeds the cropped face (unless the request carries an embedding
// from a previous page) and returns one page of similar faces.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)

	req, verr := parseSearchBody(r, h.limits)
	if verr != nil {
		respondError(w, verr.Status, verr.Message)
		return
	}

	var query QueryInfo
	if req.CroppedImageData != "" || req.FullImageData != "" {
		query = h.storeQueryImages(r.Context(), req)
	}

	vector := req.Embedding
	if vector == nil {
		var err error
		vector, err = h.embedder.Embed(r.Context(), req.CroppedImageData)
		if err != nil {
			h.respondSearchError(w, err)
			return
		}
	}
	query.Embedding = vector

	result, err := h.searcher.SearchByVector(r.Context(), vector, req.Limit, req.Threshold, search.Offset(req.Page, req.Limit))
	if err != nil {
		h.respondSearchError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, SearchResponse{
		Success:    true,
		Query:      query,
		Results:    result.Results,
		Pagination: result.Pagination,
		DurationMS: time.Since(start).Milliseconds(),
	})
}

// SearchByID returns faces similar to a stored face, excluding the face itself.
func (h *SearchHandler) SearchByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}

	params, verr := parseSearchQuery(r.URL.Query(), h.limits)
	if verr != nil {
		respondError(w, verr.Status, verr.Message)
		return
	}

	result, err := h.searcher.SearchByStoredID(r.Context(), id, params.Limit, params.Threshold, search.Offset(params.Page, params.Limit))
	if err != nil {
		h.respondSearchError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, SimilarResponse{
		Success:    true,
		Face:       FaceInfo{ID: result.Face.ID, Payload: h.searcher.Normalize(result.Face.Payload)},
		Results:    result.Results,
		Pagination: result.Pagination,
	})
}

// storeQueryImages keeps copies of the query images. Failures are logged and
// never fail the search.
func (h *SearchHandler) storeQueryImages(ctx context.Context, req *searchRequest) QueryInfo {
	var query QueryInfo
	if h.store == nil {
		return query
	}

	now := time.Now()
	put := func(kind, data string) string {
		if data == "" {
			return ""
		}
		decoded, err := decodeImageData(data)
		if err != nil {
			logging.Warnw("skipping query image", "kind", kind, "error", err)
			return ""
		}
		url, err := h.store.Put(ctx, imagestore.QueryImageName(kind, ".jpg", now), decoded)
		if err != nil {
			if !errors.Is(err, imagestore.ErrDisabled) {
				logging.Warnw("failed to store query image", "kind", kind, "error", err)
			}
			return ""
		}
		return url
	}

	query.FullImageURL = put("full", req.FullImageData)
	query.CroppedImageURL = put("cropped", req.CroppedImageData)
	query.ThumbnailURL = query.CroppedImageURL
	return query
}

// respondSearchError maps pipeline errors to HTTP statuses.
func (h *SearchHandler) respondSearchError(w http.ResponseWriter, err error) {
	var embedErr *embedding.Error
	switch {
	case errors.As(err, &embedErr):
		status := http.StatusBadGateway
		switch embedErr.Kind {
		case embedding.KindNoFaceDetected:
			status = http.StatusUnprocessableEntity
		case embedding.KindTimeout:
			status = http.StatusGatewayTimeout
		}
		logging.Warnw("embedding failed", "kind", embedErr.Kind.String(), "error", sanitizeForLog(err.Error()))
		respondError(w, status, embedErr.Message)
	case errors.Is(err, search.ErrNotFound):
		respondError(w, http.StatusNotFound, "Face not found")
	case errors.Is(err, context.Canceled):
		// Client went away, nobody reads the response.
		respondError(w, http.StatusServiceUnavailable, "Request cancelled")
	default:
		logging.Errorw("search failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Search failed. Please try again.")
	}
}
