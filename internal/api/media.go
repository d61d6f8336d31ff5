package api

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/aprobridge/internal/noteservice"
	"github.com/starford/aprobridge/internal/storage"
)

const maxUploadBytes = 50 << 20 // 50 MB

// MediaHandler serves stored media files and accepts multipart uploads.
type MediaHandler struct {
	svc   *noteservice.Service
	media storage.Provider
}

// NewMediaHandler creates a handler reading from media.
func NewMediaHandler(svc *noteservice.Service, media storage.Provider) *MediaHandler {
	return &MediaHandler{svc: svc, media: media}
}

// ServeFile handles GET /_bridge/media/{filename}.
func (h *MediaHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	data, err := h.media.Read(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if ct := mime.TypeByExtension(filepath.Ext(filename)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	http.ServeContent(w, r, filename, time.Time{}, bytes.NewReader(data))
}

// Upload handles POST /_bridge/media (multipart/form-data, field "file").
// The file is stored content-addressed like PUT; only its extension is kept.
func (h *MediaHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to read file"))
		return
	}

	ext := strings.TrimPrefix(filepath.Ext(header.Filename), ".")
	name, err := h.svc.WriteMedia(r.Context(), data, ext)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"filename": name,
		"size":     len(data),
		"url":      "/_bridge/media/" + name,
	})
}
