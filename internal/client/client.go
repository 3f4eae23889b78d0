// Package client is a typed client of the face-search HTTP API.
package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/face-search/internal/search"
)

// APIError is a non-2xx API response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// Client talks to a face-search server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the server at baseURL (e.g., http://localhost:8080).
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SearchRequest is the body of POST /api/v1/search.
type SearchRequest struct {
	CroppedImageData string    `json:"croppedImageData,omitempty"`
	FullImageData    string    `json:"fullImageData,omitempty"`
	Embedding        []float32 `json:"embedding,omitempty"`
	Limit            int       `json:"limit,omitempty"`
	Threshold        float64   `json:"threshold"`
	Page             int       `json:"page,omitempty"`
}

// Query describes the query image of a search response.
type Query struct {
	ThumbnailURL    string    `json:"thumbnailUrl"`
	CroppedImageURL string    `json:"croppedImageUrl"`
	FullImageURL    string    `json:"fullImageUrl"`
	Embedding       []float32 `json:"embedding"`
}

// SearchResponse is the body of a successful POST /api/v1/search.
type SearchResponse struct {
	Success    bool              `json:"success"`
	Query      Query             `json:"query"`
	Results    []search.Result   `json:"results"`
	Pagination search.Pagination `json:"pagination"`
	DurationMS int64             `json:"durationMs"`
}

// Face is a stored face.
type Face struct {
	ID      string          `json:"id"`
	Payload *search.Payload `json:"payload"`
}

// SimilarResponse is the body of a successful GET /api/v1/search/{id}.
type SimilarResponse struct {
	Success    bool              `json:"success"`
	Face       Face              `json:"face"`
	Results    []search.Result   `json:"results"`
	Pagination search.Pagination `json:"pagination"`
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	_, err := doRequestJSON[map[string]any](ctx, c, http.MethodGet, "/api/v1/health", nil)
	return err
}

// Search embeds the crop (or reuses req.Embedding) and returns one page of matches.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	return doRequestJSON[SearchResponse](ctx, c, http.MethodPost, "/api/v1/search", req)
}

// SearchByID returns faces similar to the stored face id.
func (c *Client) SearchByID(ctx context.Context, id string, limit int, threshold float64, page int) (*SimilarResponse, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("threshold", strconv.FormatFloat(threshold, 'f', -1, 64))
	params.Set("page", strconv.Itoa(page))

	endpoint := fmt.Sprintf("/api/v1/search/%s?%s", url.PathEscape(id), params.Encode())
	return doRequestJSON[SimilarResponse](ctx, c, http.MethodGet, endpoint, nil)
}
