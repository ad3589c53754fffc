package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/Aristo-Max/OCR-MVP/internal/errors"
	"github.com/Aristo-Max/OCR-MVP/internal/processor"
	"github.com/Aristo-Max/OCR-MVP/internal/storage"
)

// multipart parts beyond this are spilled to disk by net/http
const multipartMemory = 8 << 20

const (
	msgBatchFailed     = "OCR batch processing failed."
	msgOCRFailed       = "OCR processing failed."
	msgSemanticInvalid = "Query and text are required."
	msgSemanticFailed  = "Semantic search failed."
)

type semanticSearchRequest struct {
	Query string `json:"query"`
	Text  string `json:"text"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, livenessMessage)
}

func (s *Server) handleOCRBatch(w http.ResponseWriter, r *http.Request) {
	form, ok := s.parseMultipart(w, r)
	if !ok {
		return
	}

	headers := form.File["files"]
	if len(headers) > s.maxFiles {
		writeError(w, http.StatusBadRequest, "Too many files; the limit is "+strconv.Itoa(s.maxFiles)+".")
		return
	}

	dir, err := s.store.NewRequestDir()
	if err != nil {
		s.logger.Error("Failed to create request directory", "error", err)
		writeError(w, http.StatusInternalServerError, msgBatchFailed)
		return
	}
	defer dir.Cleanup()

	files, err := saveUploads(dir, headers)
	if err != nil {
		s.logger.Error("Failed to store uploads", "error", err)
		writeError(w, http.StatusInternalServerError, msgBatchFailed)
		return
	}

	batchID := processor.NewBatchID()
	w.Header().Set("X-Batch-ID", batchID)

	result, err := s.pipeline.RunBatch(r.Context(), batchID, files)
	if err != nil {
		s.logger.Error("OCR batch failed", "batch", batchID, "error", err)
		writeError(w, http.StatusInternalServerError, msgBatchFailed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"results": result.Results})
}

func (s *Server) handleOCR(w http.ResponseWriter, r *http.Request) {
	form, ok := s.parseMultipart(w, r)
	if !ok {
		return
	}

	headers := form.File["image"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "No image uploaded.")
		return
	}

	dir, err := s.store.NewRequestDir()
	if err != nil {
		s.logger.Error("Failed to create request directory", "error", err)
		writeError(w, http.StatusInternalServerError, msgOCRFailed)
		return
	}
	defer dir.Cleanup()

	files, err := saveUploads(dir, headers[:1])
	if err != nil {
		s.logger.Error("Failed to store upload", "error", err)
		writeError(w, http.StatusInternalServerError, msgOCRFailed)
		return
	}

	file := files[0]
	mimeType, isImage := processor.ResolveImageType(file)
	if !isImage {
		writeError(w, http.StatusBadRequest, "Uploaded file is not an image.")
		return
	}

	text, err := s.invoker.Invoke(r.Context(), &processor.PageImage{
		Path:       file.Path,
		MimeType:   mimeType,
		SourceName: file.OriginalName,
	})
	if err != nil {
		s.logger.Error("OCR failed", "file", file.OriginalName, "error", err)
		writeError(w, http.StatusInternalServerError, msgOCRFailed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": text})
}

func (s *Server) handleSemanticSearch(w http.ResponseWriter, r *http.Request) {
	var req semanticSearchRequest
	body := http.MaxBytesReader(w, r.Body, s.maxUploadSize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, msgSemanticInvalid)
		return
	}

	result, err := s.matcher.Match(r.Context(), req.Query, req.Text)
	if err != nil {
		if errors.IsValidation(err) {
			writeError(w, http.StatusBadRequest, msgSemanticInvalid)
			return
		}
		if errors.IsCapabilityError(err) {
			s.logger.Error("Semantic search provider failed", "error", err, "code", string(errors.CodeOf(err)))
		} else {
			s.logger.Error("Semantic search failed", "error", err)
		}
		writeError(w, http.StatusInternalServerError, msgSemanticFailed)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.healthChecks))
	healthy := true
	for name, checker := range s.healthChecks {
		if err := checker.HealthCheck(ctx); err != nil {
			s.logger.Warn("Health check failed", "dependency", name, "error", err)
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	resp := map[string]interface{}{
		"status":   "ok",
		"provider": s.provider,
	}
	if len(checks) > 0 {
		resp["checks"] = checks
	}

	status := http.StatusOK
	if !healthy {
		resp["status"] = "unavailable"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// parseMultipart enforces the body size limit and writes a 4xx on failure
func (s *Server) parseMultipart(w http.ResponseWriter, r *http.Request) (*multipart.Form, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if stderrors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "Upload exceeds the size limit.")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "Invalid multipart form: "+err.Error())
		return nil, false
	}

	return r.MultipartForm, true
}

func saveUploads(dir *storage.RequestDir, headers []*multipart.FileHeader) ([]processor.UploadedFile, error) {
	files := make([]processor.UploadedFile, 0, len(headers))
	for _, h := range headers {
		saved, err := dir.Save(h)
		if err != nil {
			return nil, err
		}
		files = append(files, processor.UploadedFile{
			Path:         saved.Path,
			MimeType:     saved.MimeType,
			OriginalName: saved.OriginalName,
			Size:         saved.Size,
		})
	}
	return files, nil
}
