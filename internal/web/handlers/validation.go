package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/kozaktomas/face-search/internal/config"
	"github.com/kozaktomas/face-search/internal/constants"
)

const (
	minThreshold = 0
	maxThreshold = 1
)

var dataURLPrefix = regexp.MustCompile(`^data:image/\w+;base64,`)

// validationError is a client error detected before any downstream call.
type validationError struct {
	Status  int
	Message string
}

func (e *validationError) Error() string {
	return e.Message
}

func badRequest(format string, args ...any) *validationError {
	return &validationError{Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// searchParams are the validated paging parameters shared by both search endpoints.
type searchParams struct {
	Limit     int
	Threshold float64
	Page      int
}

// searchBody is the raw POST /search payload. Numeric fields accept JSON
// numbers and numeric strings.
type searchBody struct {
	CroppedImageData any       `json:"croppedImageData"`
	FullImageData    any       `json:"fullImageData"`
	Embedding        []float32 `json:"embedding"`
	Limit            any       `json:"limit"`
	Threshold        any       `json:"threshold"`
	Page             any       `json:"page"`
}

// searchRequest is a validated POST /search payload.
type searchRequest struct {
	searchParams
	CroppedImageData string
	FullImageData    string
	Embedding        []float32
}

// parseNumber returns fallback for missing values and NaN for anything that
// is not a finite number.
func parseNumber(value any, fallback float64) float64 {
	var parsed float64
	switch v := value.(type) {
	case nil:
		return fallback
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return fallback
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		parsed = f
	case float64:
		parsed = v
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return math.NaN()
		}
		parsed = f
	default:
		return math.NaN()
	}
	if math.IsInf(parsed, 0) {
		return math.NaN()
	}
	return parsed
}

func isInteger(v float64) bool {
	return !math.IsNaN(v) && math.Trunc(v) == v
}

func validatePagination(limit, threshold, page float64, limits config.LimitsConfig) *validationError {
	if !isInteger(limit) || limit < 1 || limit > float64(limits.MaxSearchLimit) {
		return badRequest("limit must be between 1 and %d", limits.MaxSearchLimit)
	}
	if math.IsNaN(threshold) || threshold < minThreshold || threshold > maxThreshold {
		return badRequest("threshold must be between %d and %d", minThreshold, maxThreshold)
	}
	if !isInteger(page) || page < 1 || page > float64(limits.MaxSearchPage) {
		return badRequest("page must be between 1 and %d", limits.MaxSearchPage)
	}
	return nil
}

func parsePagination(limit, threshold, page any, limits config.LimitsConfig) (searchParams, *validationError) {
	l := parseNumber(limit, constants.DefaultSearchLimit)
	th := parseNumber(threshold, constants.DefaultSimilarityThreshold)
	p := parseNumber(page, constants.DefaultPage)

	if verr := validatePagination(l, th, p, limits); verr != nil {
		return searchParams{}, verr
	}
	return searchParams{Limit: int(l), Threshold: th, Page: int(p)}, nil
}

// getBase64ByteSize estimates the decoded size of base64 data with an
// optional data URL prefix. Returns 0 for empty input.
func getBase64ByteSize(data string) int {
	content := dataURLPrefix.ReplaceAllString(data, "")
	padding := 0
	switch {
	case strings.HasSuffix(content, "=="):
		padding = 2
	case strings.HasSuffix(content, "="):
		padding = 1
	}
	return max(len(content)*3/4-padding, 0)
}

// decodeImageData decodes base64 image data with an optional data URL prefix.
func decodeImageData(data string) ([]byte, error) {
	content := dataURLPrefix.ReplaceAllString(data, "")
	decoded, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return nil, fmt.Errorf("decoding base64: %w", err)
	}
	return decoded, nil
}

func validateBase64Image(value any, field string, maxBytes int) (string, *validationError) {
	s, ok := value.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", badRequest("%s must be a base64 string", field)
	}

	size := getBase64ByteSize(s)
	if size == 0 {
		return "", badRequest("%s is not valid base64 data", field)
	}
	if size > maxBytes {
		return "", &validationError{
			Status:  http.StatusRequestEntityTooLarge,
			Message: fmt.Sprintf("%s exceeds %d bytes", field, maxBytes),
		}
	}
	if _, err := decodeImageData(s); err != nil {
		return "", badRequest("%s is not valid base64 data", field)
	}
	return s, nil
}

// validateEmbedding checks a client-supplied embedding. A dim > 0 requires
// exactly that length.
func validateEmbedding(vector []float32, dim int) *validationError {
	if len(vector) > constants.MaxEmbeddingDim {
		return badRequest("embedding exceeds %d dimensions", constants.MaxEmbeddingDim)
	}
	if dim > 0 && len(vector) != dim {
		return badRequest("embedding must have %d dimensions", dim)
	}
	for _, v := range vector {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return badRequest("embedding must contain finite numbers")
		}
	}
	return nil
}

// parseSearchBody decodes and validates a POST /search body. Pagination is
// checked first, then croppedImageData, then fullImageData. A request that
// carries a previously returned embedding may omit croppedImageData.
func parseSearchBody(r *http.Request, limits config.LimitsConfig) (*searchRequest, *validationError) {
	var body searchBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &validationError{
				Status:  http.StatusRequestEntityTooLarge,
				Message: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
			}
		}
		return nil, badRequest(errInvalidRequestBody)
	}

	params, verr := parsePagination(body.Limit, body.Threshold, body.Page, limits)
	if verr != nil {
		return nil, verr
	}
	req := &searchRequest{searchParams: params}

	if len(body.Embedding) > 0 {
		if verr := validateEmbedding(body.Embedding, limits.EmbeddingDim); verr != nil {
			return nil, verr
		}
		req.Embedding = body.Embedding
	}

	if body.CroppedImageData != nil || req.Embedding == nil {
		cropped, verr := validateBase64Image(body.CroppedImageData, "croppedImageData", limits.MaxImageBytes)
		if verr != nil {
			return nil, verr
		}
		req.CroppedImageData = cropped
	}

	if body.FullImageData != nil {
		full, verr := validateBase64Image(body.FullImageData, "fullImageData", limits.MaxImageBytes)
		if verr != nil {
			return nil, verr
		}
		req.FullImageData = full
	}

	return req, nil
}

// parseSearchQuery validates the query string of GET /search/{id}.
func parseSearchQuery(values url.Values, limits config.LimitsConfig) (searchParams, *validationError) {
	return parsePagination(values.Get("limit"), values.Get("threshold"), values.Get("page"), limits)
}
