package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-search/internal/logging"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestIsOriginAllowed(t *testing.T) {
	allowed := allowedOriginSet([]string{"https://faces.example.com/", " "})

	tests := []struct {
		origin string
		want   bool
	}{
		{"https://faces.example.com", true},
		{"http://localhost", true},
		{"http://localhost:5173", true},
		{"http://localhost.evil.com", false},
		{"https://other.example.com", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			if got := isOriginAllowed(tt.origin, allowed); got != tt.want {
				t.Errorf("isOriginAllowed(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}

	if !isOriginAllowed("https://anything.example", allowedOriginSet([]string{"*"})) {
		t.Error("expected wildcard to allow any origin")
	}
}

func TestCORS_Preflight(t *testing.T) {
	called := false
	handler := CORS([]string{"https://faces.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/search", nil)
	req.Header.Set("Origin", "https://faces.example.com")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", recorder.Code)
	}
	if recorder.Header().Get("Access-Control-Allow-Origin") != "https://faces.example.com" {
		t.Errorf("missing allow origin header")
	}
	if called {
		t.Error("preflight must not reach the handler")
	}
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	handler := CORS(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("expected no allow origin header")
	}
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logging.Set(zap.New(core))
	t.Cleanup(func() { logging.Set(zap.NewNop()) })

	handler := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	entries := logs.FilterMessage("request").All()
	if len(entries) != 1 {
		t.Fatalf("expected one request log, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusTeapot) || fields["path"] != "/api/v1/health" {
		t.Errorf("unexpected fields %v", fields)
	}
}
