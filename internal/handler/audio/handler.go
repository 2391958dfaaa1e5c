package audio

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/marsdhp/sme-interview/backend/internal/audiocache"
	"github.com/marsdhp/sme-interview/backend/pkg/utils"
)

// Handler serves cached audio files by fingerprint.
type Handler struct {
	cache *audiocache.Cache
}

// New creates the audio handler. cache may be nil when synthesis is
// disabled; every request then 404s.
func New(cache *audiocache.Cache) *Handler {
	return &Handler{cache: cache}
}

// RegisterRoutes mounts the audio endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/audio/{file}", h.handleGet)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	file := chi.URLParam(r, "file")
	fingerprint := strings.TrimSuffix(file, ".mp3")

	// Fingerprints are hex digests; reject anything else before touching
	// the filesystem.
	if h.cache == nil || fingerprint == file || !validFingerprint(fingerprint) {
		utils.RespondError(w, http.StatusNotFound, "audio not found")
		return
	}

	entry, ok := h.cache.Get(fingerprint)
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "audio not found")
		return
	}

	w.Header().Set("Content-Type", entry.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeFile(w, r, entry.Path)
}

func validFingerprint(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
