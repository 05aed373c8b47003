package handlers

import (
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ksb-community/apiserver/internal/services"
)

// ImageHandler serves previously ingested images from object storage.
type ImageHandler struct {
	imageService *services.ImageService
}

// NewImageHandler constructs a handler with the provided dependencies.
func NewImageHandler(imageService *services.ImageService) *ImageHandler {
	return &ImageHandler{imageService: imageService}
}

// ImageRouter registers the public image route on the given router.
func ImageRouter(r chi.Router, imageService *services.ImageService) {
	handler := NewImageHandler(imageService)
	r.Get("/images/{key}", handler.Serve)
}

// Serve streams an image object. Keys are opaque generated names, so a
// lookup failure is always a 404.
func (h *ImageHandler) Serve(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}

	object, err := h.imageService.Open(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}
	defer object.Close()

	w.Header().Set("Content-Type", h.imageService.ContentType(key))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if _, err := io.Copy(w, object); err != nil {
		log.Printf("failed to stream image %s: %v", key, err)
	}
}
