package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/quarrylabs/quarry/internal/api"
	"github.com/quarrylabs/quarry/internal/domain"
	"github.com/quarrylabs/quarry/internal/ingest"
)

// UploadURLProvider issues presigned upload URLs for the raw-document
// bucket.
type UploadURLProvider interface {
	GenerateUploadURL(ctx context.Context, bucket, key, contentType string) (string, error)
}

// DocumentProcessor chunks a stored document and enqueues its chunks.
type DocumentProcessor interface {
	ProcessObject(ctx context.Context, key, language string) (*ingest.IntakeResult, error)
}

type DocumentsHandler struct {
	uploads   UploadURLProvider
	processor DocumentProcessor
	rawBucket string
}

func NewDocumentsHandler(uploads UploadURLProvider, processor DocumentProcessor, rawBucket string) *DocumentsHandler {
	return &DocumentsHandler{
		uploads:   uploads,
		processor: processor,
		rawBucket: rawBucket,
	}
}

type UploadRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
}

type UploadResponse struct {
	UploadURL string `json:"upload_url"`
	Key       string `json:"key"`
}

// Upload handles POST /documents
func (h *DocumentsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	var req UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	key := strings.TrimPrefix(strings.TrimSpace(req.Filename), "/")
	if key == "" {
		api.HandleError(w, domain.ErrMissingRequiredField)
		return
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = "text/plain"
	}

	url, err := h.uploads.GenerateUploadURL(r.Context(), h.rawBucket, key, contentType)
	if err != nil {
		api.Error(w, http.StatusInternalServerError, "failed to generate upload URL")
		return
	}

	api.Success(w, http.StatusOK, UploadResponse{UploadURL: url, Key: key})
}

type ProcessRequest struct {
	Key      string `json:"key"`
	Language string `json:"language,omitempty"`
}

type ProcessResponse struct {
	DocID    string `json:"doc_id"`
	Chunks   int    `json:"chunks"`
	Language string `json:"language"`
}

// Process handles POST /documents/process
func (h *DocumentsHandler) Process(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.processor.ProcessObject(r.Context(), req.Key, req.Language)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, ProcessResponse{
		DocID:    result.DocID,
		Chunks:   result.Chunks,
		Language: result.Language,
	})
}
