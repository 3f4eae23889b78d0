package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "Invalid JSON body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// EmbeddingStats reports the load on the shared embedding service.
type EmbeddingStats interface {
	Stats() (active, waiting int)
	Limit() int
}

// HealthResponse is the body of the health check endpoint.
type HealthResponse struct {
	Status    string         `json:"status"`
	Embedding *EmbeddingLoad `json:"embedding,omitempty"`
}

// EmbeddingLoad is a snapshot of embedding calls in flight and queued.
type EmbeddingLoad struct {
	Active  int `json:"active"`
	Waiting int `json:"waiting"`
	Limit   int `json:"limit"`
}

// HealthHandler handles the health check endpoint. With a non-nil stats the
// response includes the current embedding load.
func HealthHandler(stats EmbeddingStats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: "ok"}
		if stats != nil {
			active, waiting := stats.Stats()
			resp.Embedding = &EmbeddingLoad{Active: active, Waiting: waiting, Limit: stats.Limit()}
		}
		respondJSON(w, http.StatusOK, resp)
	}
}
