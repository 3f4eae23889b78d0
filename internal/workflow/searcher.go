package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-search/internal/client"
	"github.com/kozaktomas/face-search/internal/embedding"
	"github.com/kozaktomas/face-search/internal/search"
)

// SearchRequest is one search issued by a session. A request carrying
// Embedding skips the embedding step.
type SearchRequest struct {
	CroppedImageData string
	FullImageData    string
	Embedding        []float32
	Limit            int
	Threshold        float64
	Page             int
}

// SearchResponse is one page of results.
type SearchResponse struct {
	Results      []search.Result
	Pagination   search.Pagination
	ThumbnailURL string
	Embedding    []float32
}

// Searcher runs embed+search round trips for a session.
type Searcher interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

// Embedder turns a crop into a vector.
type Embedder interface {
	Embed(ctx context.Context, imageData string) ([]float32, error)
}

// LocalSearcher runs the pipeline in-process.
type LocalSearcher struct {
	embedder Embedder
	service  *search.Service
}

// NewLocalSearcher creates a searcher over an embedder and a search service.
func NewLocalSearcher(embedder Embedder, service *search.Service) *LocalSearcher {
	return &LocalSearcher{embedder: embedder, service: service}
}

// Search implements Searcher.
func (l *LocalSearcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	vector := req.Embedding
	if vector == nil {
		var err error
		vector, err = l.embedder.Embed(ctx, req.CroppedImageData)
		if err != nil {
			return nil, err
		}
	}

	result, err := l.service.SearchByVector(ctx, vector, req.Limit, req.Threshold, search.Offset(req.Page, req.Limit))
	if err != nil {
		return nil, err
	}
	return &SearchResponse{
		Results:    result.Results,
		Pagination: result.Pagination,
		Embedding:  vector,
	}, nil
}

// RemoteSearcher runs searches through the HTTP API.
type RemoteSearcher struct {
	client *client.Client
}

// NewRemoteSearcher creates a searcher over an API client.
func NewRemoteSearcher(c *client.Client) *RemoteSearcher {
	return &RemoteSearcher{client: c}
}

// Search implements Searcher.
func (r *RemoteSearcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	resp, err := r.client.Search(ctx, client.SearchRequest{
		CroppedImageData: req.CroppedImageData,
		FullImageData:    req.FullImageData,
		Embedding:        req.Embedding,
		Limit:            req.Limit,
		Threshold:        req.Threshold,
		Page:             req.Page,
	})
	if err != nil {
		return nil, err
	}
	return &SearchResponse{
		Results:      resp.Results,
		Pagination:   resp.Pagination,
		ThumbnailURL: resp.Query.ThumbnailURL,
		Embedding:    resp.Query.Embedding,
	}, nil
}

// userMessage turns a pipeline error into the text shown to the user.
func userMessage(err error, fallback string) string {
	var embedErr *embedding.Error
	var apiErr *client.APIError
	switch {
	case errors.As(err, &embedErr):
		return embedErr.Message
	case errors.As(err, &apiErr):
		return apiErr.Message
	case errors.Is(err, search.ErrNotFound):
		return "Face not found"
	case errors.Is(err, search.ErrSearchFailed):
		return "Search failed. Please try again."
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("%s: request timed out", fallback)
	case err != nil && err.Error() != "":
		return err.Error()
	default:
		return fallback
	}
}
