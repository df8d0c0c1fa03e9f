package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/receipt-capture/internal/capture"
	"github.com/zombor/receipt-capture/internal/scanning"
)

// maxUploadSize caps uploads at 50MB to handle high-resolution phone photos
const maxUploadSize = int64(50 << 20)

const fileTooLargeMessage = "File is too large. Maximum size is 50MB. Please compress or resize your image."

// writeJSON writes v as a JSON response with the given status
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// jsonError writes an error response with CORS headers set
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	writeJSON(w, code, map[string]string{"error": message})
}

// statusFor maps workflow errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, capture.ErrInvalidTransition), errors.Is(err, capture.ErrNotEditable):
		return http.StatusConflict
	case errors.Is(err, capture.ErrUnknownField),
		errors.Is(err, scanning.ErrEmptyImage),
		errors.Is(err, scanning.ErrUnsupportedEncoding):
		return http.StatusBadRequest
	case errors.Is(err, capture.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// workflowError writes the response for an error returned by the workflow
func workflowError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("Workflow error", "error", err)
		jsonError(w, "Internal server error", status)
		return
	}
	jsonError(w, err.Error(), status)
}

// contentTypeFor determines the upload content type, falling back to the file extension
func contentTypeFor(header string, filename string) string {
	contentType := strings.ToLower(strings.TrimSpace(header))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

// handleState returns the current workflow snapshot
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.workflow.Snapshot())
}

// handleCapture starts scanning an uploaded receipt image
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+(1<<20))
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, fileTooLargeMessage, http.StatusBadRequest)
			return
		}
		jsonError(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		errorMsg := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			errorMsg = "No file was selected. Please choose a file to upload."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return
	}
	defer f.Close()

	if header.Size > maxUploadSize {
		jsonError(w, fileTooLargeMessage, http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	contentType := contentTypeFor(header.Header.Get("Content-Type"), header.Filename)
	snap, err := s.workflow.Submit(data, contentType)
	if err != nil {
		slog.Warn("Capture rejected", "filename", header.Filename, "content_type", contentType, "error", err)
		workflowError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, snap)
}

// handleImage returns the image being scanned or reviewed
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	snap := s.workflow.Snapshot()
	if snap.Image == nil {
		jsonError(w, "No image captured", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", snap.Image.MIMEType)
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, "", snap.Image.CapturedAt, bytes.NewReader(snap.Image.Data))
}

// handleCancel abandons the current scan or review
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	snap, err := s.workflow.Cancel()
	if err != nil {
		workflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleToggleEdit switches the review form between read-only and editable
func (s *Server) handleToggleEdit(w http.ResponseWriter, r *http.Request) {
	snap, err := s.workflow.ToggleEdit()
	if err != nil {
		workflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleSetField edits one field of the draft under review
func (s *Server) handleSetField(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Field string `json:"field"`
		Value any    `json:"value"`
	}

	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Field == "" {
		jsonError(w, "Field is required", http.StatusBadRequest)
		return
	}

	value := req.Value
	if n, ok := value.(json.Number); ok {
		value = n.String()
	}

	snap, err := s.workflow.SetField(req.Field, value)
	if err != nil {
		workflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleConfirm accepts the draft under review
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	draft, err := s.workflow.Confirm(r.Context())
	if err != nil {
		if errors.Is(err, capture.ErrInvalidTransition) {
			workflowError(w, err)
			return
		}
		// the workflow has already moved on; only recording the receipt failed
		slog.Error("Error recording confirmed receipt", "error", err)
		jsonError(w, "Receipt verified but could not be recorded", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"receipt": draft,
		"state":   s.workflow.Snapshot(),
	})
}
