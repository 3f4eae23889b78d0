package handlers

import (
	"encoding/base64"
	"encoding/json"
	"math"
	"net/http"
	"net/url"
	"strings"
	"testing"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  float64
	}{
		{"nil uses fallback", nil, 25},
		{"empty string uses fallback", "", 25},
		{"json number", float64(10), 10},
		{"numeric string", "0.75", 0.75},
		{"json.Number", json.Number("3"), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseNumber(tt.value, 25); got != tt.want {
				t.Errorf("parseNumber(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}

	for _, value := range []any{"abc", true, []any{1}, "Inf"} {
		if got := parseNumber(value, 25); !math.IsNaN(got) {
			t.Errorf("parseNumber(%v) = %v, want NaN", value, got)
		}
	}
}

func TestGetBase64ByteSize(t *testing.T) {
	tests := []struct {
		data string
		want int
	}{
		{base64.StdEncoding.EncodeToString([]byte("abcd")), 4},
		{base64.StdEncoding.EncodeToString([]byte("abcde")), 5},
		{"data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("abc")), 3},
		{"", 0},
		{"data:image/jpeg;base64,", 0},
	}

	for _, tt := range tests {
		if got := getBase64ByteSize(tt.data); got != tt.want {
			t.Errorf("getBase64ByteSize(%q) = %d, want %d", tt.data, got, tt.want)
		}
	}
}

func TestParseSearchBody(t *testing.T) {
	limits := testLimits()
	limits.MaxImageBytes = 16

	small := base64.StdEncoding.EncodeToString([]byte("tiny"))
	large := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("x", 32)))

	tests := []struct {
		name       string
		body       map[string]any
		wantStatus int
		wantError  string
	}{
		{"limit too large", map[string]any{"croppedImageData": small, "limit": 51}, http.StatusBadRequest, "limit must be between 1 and 50"},
		{"fractional limit", map[string]any{"croppedImageData": small, "limit": 2.5}, http.StatusBadRequest, "limit must be between 1 and 50"},
		{"threshold above 1", map[string]any{"croppedImageData": small, "threshold": 1.5}, http.StatusBadRequest, "threshold must be between 0 and 1"},
		{"threshold not a number", map[string]any{"croppedImageData": small, "threshold": "high"}, http.StatusBadRequest, "threshold must be between 0 and 1"},
		{"page zero", map[string]any{"croppedImageData": small, "page": 0}, http.StatusBadRequest, "page must be between 1 and 1000"},
		{"page too large", map[string]any{"croppedImageData": small, "page": 1001}, http.StatusBadRequest, "page must be between 1 and 1000"},
		{"pagination checked before image", map[string]any{"limit": 0}, http.StatusBadRequest, "limit must be between 1 and 50"},
		{"missing crop", map[string]any{}, http.StatusBadRequest, "croppedImageData must be a base64 string"},
		{"crop not a string", map[string]any{"croppedImageData": 42}, http.StatusBadRequest, "croppedImageData must be a base64 string"},
		{"crop not base64", map[string]any{"croppedImageData": "!!!!"}, http.StatusBadRequest, "croppedImageData is not valid base64 data"},
		{"crop too large", map[string]any{"croppedImageData": large}, http.StatusRequestEntityTooLarge, "croppedImageData exceeds 16 bytes"},
		{"full too large", map[string]any{"croppedImageData": small, "fullImageData": large}, http.StatusRequestEntityTooLarge, "fullImageData exceeds 16 bytes"},
		{"full blank", map[string]any{"croppedImageData": small, "fullImageData": " "}, http.StatusBadRequest, "fullImageData must be a base64 string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := jsonRequest(t, http.MethodPost, "/api/v1/search", tt.body)
			_, verr := parseSearchBody(req, limits)
			if verr == nil {
				t.Fatal("expected validation error")
			}
			if verr.Status != tt.wantStatus || verr.Message != tt.wantError {
				t.Errorf("got %d %q, want %d %q", verr.Status, verr.Message, tt.wantStatus, tt.wantError)
			}
		})
	}
}

func TestParseSearchBody_Defaults(t *testing.T) {
	req := jsonRequest(t, http.MethodPost, "/api/v1/search", map[string]any{
		"croppedImageData": testImageData,
		"fullImageData":    nil,
	})

	got, verr := parseSearchBody(req, testLimits())
	if verr != nil {
		t.Fatalf("unexpected validation error: %v", verr)
	}
	if got.Limit != 25 || got.Threshold != 0.6 || got.Page != 1 {
		t.Errorf("expected defaults 25/0.6/1, got %d/%v/%d", got.Limit, got.Threshold, got.Page)
	}
	if got.CroppedImageData != testImageData || got.FullImageData != "" {
		t.Errorf("unexpected image data %+v", got)
	}
}

func TestParseSearchBody_StringNumbers(t *testing.T) {
	req := jsonRequest(t, http.MethodPost, "/api/v1/search", map[string]any{
		"croppedImageData": testImageData,
		"limit":            "10",
		"threshold":        "0.8",
		"page":             "3",
	})

	got, verr := parseSearchBody(req, testLimits())
	if verr != nil {
		t.Fatalf("unexpected validation error: %v", verr)
	}
	if got.Limit != 10 || got.Threshold != 0.8 || got.Page != 3 {
		t.Errorf("got %d/%v/%d", got.Limit, got.Threshold, got.Page)
	}
}

func TestParseSearchBody_EmbeddingWithoutCrop(t *testing.T) {
	req := jsonRequest(t, http.MethodPost, "/api/v1/search", map[string]any{
		"embedding": []float32{0.1, 0.2, 0.3},
		"page":      2,
	})

	got, verr := parseSearchBody(req, testLimits())
	if verr != nil {
		t.Fatalf("unexpected validation error: %v", verr)
	}
	if len(got.Embedding) != 3 || got.CroppedImageData != "" || got.Page != 2 {
		t.Errorf("unexpected request %+v", got)
	}
}

func TestParseSearchBody_EmbeddingDimension(t *testing.T) {
	limits := testLimits()
	limits.EmbeddingDim = 4
	req := jsonRequest(t, http.MethodPost, "/api/v1/search", map[string]any{
		"embedding": []float32{0.1, 0.2, 0.3},
	})

	_, verr := parseSearchBody(req, limits)
	if verr == nil || verr.Status != http.StatusBadRequest || verr.Message != "embedding must have 4 dimensions" {
		t.Errorf("expected dimension error, got %v", verr)
	}
}

func TestParseSearchBody_InvalidJSON(t *testing.T) {
	req := jsonRequest(t, http.MethodPost, "/api/v1/search", "not an object")

	_, verr := parseSearchBody(req, testLimits())
	if verr == nil || verr.Status != http.StatusBadRequest || verr.Message != errInvalidRequestBody {
		t.Errorf("expected invalid body error, got %v", verr)
	}
}

func TestParseSearchQuery(t *testing.T) {
	tests := []struct {
		query     string
		wantError string
		want      searchParams
	}{
		{"", "", searchParams{Limit: 25, Threshold: 0.6, Page: 1}},
		{"limit=5&threshold=0.9&page=2", "", searchParams{Limit: 5, Threshold: 0.9, Page: 2}},
		{"limit=abc", "limit must be between 1 and 50", searchParams{}},
		{"threshold=-0.1", "threshold must be between 0 and 1", searchParams{}},
		{"page=1.5", "page must be between 1 and 1000", searchParams{}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			values, _ := url.ParseQuery(tt.query)
			got, verr := parseSearchQuery(values, testLimits())
			if tt.wantError != "" {
				if verr == nil || verr.Message != tt.wantError {
					t.Errorf("expected error %q, got %v", tt.wantError, verr)
				}
				return
			}
			if verr != nil {
				t.Fatalf("unexpected validation error: %v", verr)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}
