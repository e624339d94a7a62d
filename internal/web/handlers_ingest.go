package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/JonMunkholm/intake/internal/core"
)

// multipartOverhead is allowed on top of the file size limit for headers
// and boundaries.
const multipartOverhead = 1 << 20

// handleIngest stages the spreadsheet in the "file" form field as a new
// batch. Row failures are part of a 200 response; only whole-file problems
// are errors.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Ingest.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.respondError(w, r, &core.ValidationError{
				Field:   "file",
				Message: fmt.Sprintf("file too large: limit is %d bytes", maxSize),
			})
			return
		}
		s.respondError(w, r, &core.ValidationError{Field: "file", Message: "no file provided: expected a multipart form"})
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, &core.ValidationError{Field: "file", Message: "no file provided"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("read upload: %w", err))
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	result, err := s.service.Ingest(ctx, header.Filename, data)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, result)
}
