package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-search/internal/config"
	"github.com/kozaktomas/face-search/internal/constants"
	"github.com/kozaktomas/face-search/internal/search"
	"github.com/kozaktomas/face-search/internal/vectorindex"
	"github.com/kozaktomas/face-search/internal/vectorindex/mock"
)

// testLimits mirrors the production defaults for the 3-d test index.
func testLimits() config.LimitsConfig {
	return config.LimitsConfig{
		MaxImageBytes:  constants.DefaultMaxImageBytes,
		MaxSearchLimit: constants.DefaultMaxSearchLimit,
		MaxSearchPage:  constants.DefaultMaxSearchPage,
		EmbeddingDim:   3, // matches newTestIndex
	}
}

// fakeEmbedder returns a fixed vector or error and counts calls.
type fakeEmbedder struct {
	mu     sync.Mutex
	vector []float32
	err    error
	calls  int
	inputs []string
}

func (f *fakeEmbedder) Embed(ctx context.Context, imageData string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.inputs = append(f.inputs, imageData)
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

// fakeStore records stored images.
type fakeStore struct {
	mu    sync.Mutex
	names []string
	err   error
}

func (f *fakeStore) Put(ctx context.Context, name string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.names = append(f.names, name)
	return "https://faces.example.com/api/v1/query-images/" + name, nil
}

// newTestIndex stores n faces along the x axis so every score is 1.
func newTestIndex(n int) *mock.MockIndex {
	idx := mock.NewMockIndex()
	for i := range n {
		idx.AddPoint(vectorindex.Point{
			ID:      fmt.Sprintf("face-%02d", i),
			Vector:  []float32{1, 0, 0},
			Payload: map[string]any{"imageUrl": fmt.Sprintf("https://cdn/%d.jpg", i), "label": "Jan"},
		})
	}
	return idx
}

func newTestHandler(embedder Embedder, idx vectorindex.Reader, store *fakeStore) *SearchHandler {
	if store == nil {
		return NewSearchHandler(embedder, search.NewService(idx), nil, testLimits())
	}
	return NewSearchHandler(embedder, search.NewService(idx), store, testLimits())
}

// testImageData is a small valid base64 payload.
var testImageData = "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("not really a jpeg"))

var errBoom = errors.New("boom")

// jsonRequest creates a request with a JSON body.
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
