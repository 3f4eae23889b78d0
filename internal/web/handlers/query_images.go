package handlers

import (
	"errors"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-search/internal/imagestore"
)

// QueryImagesHandler serves stored query images.
type QueryImagesHandler struct {
	store *imagestore.FileStore
}

// NewQueryImagesHandler creates a handler over store.
func NewQueryImagesHandler(store *imagestore.FileStore) *QueryImagesHandler {
	return &QueryImagesHandler{store: store}
}

// Get serves a single stored image by name.
func (h *QueryImagesHandler) Get(w http.ResponseWriter, r *http.Request) {
	path, err := h.store.Path(chi.URLParam(r, "name"))
	if err != nil {
		if errors.Is(err, imagestore.ErrDisabled) {
			respondError(w, http.StatusNotFound, "query image storage is disabled")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid image name")
		return
	}

	if _, err := os.Stat(path); err != nil {
		respondError(w, http.StatusNotFound, "image not found")
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeFile(w, r, path)
}
