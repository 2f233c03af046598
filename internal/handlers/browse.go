package handlers

import (
	"net/http"

	"preview-watcher/internal/database"
	"preview-watcher/internal/logging"

	"github.com/gorilla/mux"
)

// PreviewListing is one entry of GET /api/directories/{id}/previews.
type PreviewListing struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	OriginalSize int64  `json:"original_size"`
	OriginalURL  string `json:"original_url,omitempty"`
	PreviewURL   string `json:"preview_url,omitempty"`
}

// ListDirectories returns every registered directory.
func (h *Handlers) ListDirectories(w http.ResponseWriter, r *http.Request) {
	dirs, err := h.store.ListDirectories(r.Context())
	if err != nil {
		logging.Error("Failed to list directories: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list directories"})
		return
	}
	if dirs == nil {
		dirs = []database.Directory{}
	}
	writeJSON(w, http.StatusOK, dirs)
}

// ListPreviews returns the artifacts recorded under a directory.
func (h *Handlers) ListPreviews(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	dir, err := h.store.GetDirectory(r.Context(), id)
	if err != nil {
		logging.Error("Failed to load directory %s: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load directory"})
		return
	}
	if dir == nil {
		writeJSON(w, http.StatusNotFound, map[string][]string{"missing": {id}})
		return
	}

	artifacts, err := h.store.ListArtifactsByDirectory(r.Context(), id)
	if err != nil {
		logging.Error("Failed to list previews of %s: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list previews"})
		return
	}

	out := make([]PreviewListing, 0, len(artifacts))
	for _, a := range artifacts {
		out = append(out, PreviewListing{
			ID:           a.ID,
			Name:         a.Name,
			OriginalSize: a.OriginalSize,
			OriginalURL:  fileURL(OriginalsRoute, h.opts.WatchDir, a.OriginalPath),
			PreviewURL:   fileURL(PreviewsRoute, h.opts.PreviewDir, a.PreviewPath),
		})
	}
	writeJSON(w, http.StatusOK, out)
}
