package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/markdave123-py/fincontexta/internal/models"
	"github.com/markdave123-py/fincontexta/internal/services"
)

const maxUploadBytes = 50 << 20

// DocumentService is the part of services.DocumentService the handlers use.
type DocumentService interface {
	Upload(ctx context.Context, userID, filename, docType string, data []byte) (*models.ProcessingJob, error)
	GetJob(ctx context.Context, userID, jobID string) (*models.ProcessingJob, error)
	ListJobs(ctx context.Context, userID string) ([]models.ProcessingJob, error)
	ListDocuments(ctx context.Context, userID string) ([]models.Document, error)
	RetryJob(ctx context.Context, userID, jobID string) (*models.ProcessingJob, error)
}

type DocumentHandler struct {
	docs DocumentService
}

func NewDocumentHandler(docs DocumentService) *DocumentHandler {
	return &DocumentHandler{docs: docs}
}

// UploadDocument accepts a multipart PDF, creates a job and schedules
// ingestion. It answers 202 with the job to poll.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "invalid file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "could not read file", http.StatusBadRequest)
		return
	}

	job, err := h.docs.Upload(r.Context(), userID, header.Filename, r.FormValue("doc_type"), data)
	if errors.Is(err, services.ErrEmptyUpload) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		slog.Error("upload failed", "user_id", userID, "file", header.Filename, "err", err)
		http.Error(w, "failed to schedule document processing", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	documents, err := h.docs.ListDocuments(r.Context(), userID)
	if err != nil {
		slog.Error("list documents failed", "user_id", userID, "err", err)
		http.Error(w, "failed to list documents", http.StatusInternalServerError)
		return
	}
	if documents == nil {
		documents = []models.Document{}
	}
	writeJSON(w, http.StatusOK, documents)
}

func (h *DocumentHandler) GetJobs(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	jobs, err := h.docs.ListJobs(r.Context(), userID)
	if err != nil {
		slog.Error("list jobs failed", "user_id", userID, "err", err)
		http.Error(w, "failed to list jobs", http.StatusInternalServerError)
		return
	}
	if jobs == nil {
		jobs = []models.ProcessingJob{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (h *DocumentHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	job, err := h.docs.GetJob(r.Context(), userID, chi.URLParam(r, "jobID"))
	if errors.Is(err, services.ErrJobNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("get job failed", "user_id", userID, "err", err)
		http.Error(w, "failed to load job", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// RetryJob re-schedules a failed job. Any other status is a conflict.
func (h *DocumentHandler) RetryJob(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	job, err := h.docs.RetryJob(r.Context(), userID, chi.URLParam(r, "jobID"))
	switch {
	case errors.Is(err, services.ErrJobNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, services.ErrJobNotRetryable):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, services.ErrRetryUnavailable):
		http.Error(w, services.ErrRetryUnavailable.Error(), http.StatusUnprocessableEntity)
	case err != nil:
		slog.Error("retry job failed", "user_id", userID, "err", err)
		http.Error(w, "failed to retry job", http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusAccepted, job)
	}
}
