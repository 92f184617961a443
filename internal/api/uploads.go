package api

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Uploads stores task images on local disk and serves them back under
// /uploads/{filename}.
type Uploads struct {
	Dir       string
	MaxBytes  int64
	PublicURL string
}

// NewUploads ensures the upload directory exists.
func NewUploads(dir string, maxBytes int64, publicURL string) (Uploads, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Uploads{}, fmt.Errorf("creating upload directory: %w", err)
	}
	return Uploads{Dir: dir, MaxBytes: maxBytes, PublicURL: strings.TrimRight(publicURL, "/")}, nil
}

// UploadImage handles POST /api/upload-image. Expects a multipart form with
// an "image" file part; stores it under a random name and returns its URL.
func (h *Handlers) UploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.uploads.MaxBytes)

	file, header, err := r.FormFile("image")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "No image file provided")
		return
	}
	defer func() { _ = file.Close() }()

	if ct := header.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		respondError(w, r, http.StatusBadRequest, "Only image files are allowed")
		return
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext == "" {
		if exts, _ := mime.ExtensionsByType(header.Header.Get("Content-Type")); len(exts) > 0 {
			ext = exts[0]
		} else {
			ext = ".jpg"
		}
	}
	filename := uuid.NewString() + ext

	dst, err := os.Create(filepath.Join(h.uploads.Dir, filename))
	if err != nil {
		h.log.Error("creating upload file failed", "error", err)
		respondError(w, r, http.StatusInternalServerError, "Unexpected server error")
		return
	}
	defer func() { _ = dst.Close() }()

	if _, err := io.Copy(dst, file); err != nil {
		h.log.Error("writing upload failed", "filename", filename, "error", err)
		respondError(w, r, http.StatusInternalServerError, "Unexpected server error")
		return
	}

	h.log.Info("image uploaded", "filename", filename, "size", header.Size)
	respondJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"url":      h.uploads.PublicURL + "/uploads/" + filename,
		"filename": filename,
	})
}

// ServeUpload handles GET /uploads/{filename}. The name is reduced to its
// base to keep requests inside the upload directory.
func (h *Handlers) ServeUpload(w http.ResponseWriter, r *http.Request) {
	name := filepath.Base(strings.TrimPrefix(r.URL.Path, "/uploads/"))
	if name == "." || name == "/" || name == "" {
		respondError(w, r, http.StatusNotFound, "File not found")
		return
	}

	path := filepath.Join(h.uploads.Dir, name)
	if _, err := os.Stat(path); err != nil {
		respondError(w, r, http.StatusNotFound, "File not found")
		return
	}
	http.ServeFile(w, r, path)
}
