package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/markdave123-py/fincontexta/internal/core"
	"github.com/markdave123-py/fincontexta/internal/core/ingestion_engine"
	"github.com/markdave123-py/fincontexta/internal/models"
)

var (
	ErrEmptyUpload      = errors.New("uploaded file is empty")
	ErrJobNotFound      = errors.New("job not found")
	ErrJobNotRetryable  = errors.New("only failed jobs can be retried")
	ErrRetryUnavailable = errors.New("original file for this job is not available")
)

// DocumentService accepts uploads, schedules ingestion and answers status queries.
type DocumentService struct {
	db       core.DbClient
	gateway  *ingestion_engine.StorageGateway
	ingestor ingestion_engine.Ingestor
}

func NewDocumentService(db core.DbClient, gateway *ingestion_engine.StorageGateway, ingestor ingestion_engine.Ingestor) *DocumentService {
	return &DocumentService{db: db, gateway: gateway, ingestor: ingestor}
}

// Upload creates a pending job for the file and schedules it. The returned
// job is what the caller polls.
func (s *DocumentService) Upload(ctx context.Context, userID, filename, docType string, data []byte) (*models.ProcessingJob, error) {
	if len(data) == 0 {
		return nil, ErrEmptyUpload
	}
	filename = filepath.Base(strings.TrimSpace(filename))

	job := &models.ProcessingJob{
		ID:          uuid.NewString(),
		UserID:      userID,
		FileName:    filename,
		Status:      models.JobPending,
		CurrentStep: "Queued",
	}
	if err := s.db.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	s.ingestor.Submit(ingestion_engine.RunRequest{
		JobID:    job.ID,
		UserID:   userID,
		FileName: filename,
		DocType:  typeHint(docType),
		Data:     data,
	})
	slog.Info("ingestion scheduled", "job_id", job.ID, "user_id", userID, "file", filename, "bytes", len(data))
	return job, nil
}

func (s *DocumentService) GetJob(ctx context.Context, userID, jobID string) (*models.ProcessingJob, error) {
	job, err := s.db.GetJob(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

func (s *DocumentService) ListJobs(ctx context.Context, userID string) ([]models.ProcessingJob, error) {
	return s.db.ListJobsByUser(ctx, userID)
}

func (s *DocumentService) ListDocuments(ctx context.Context, userID string) ([]models.Document, error) {
	return s.db.ListDocumentsByUser(ctx, userID)
}

// RetryJob re-runs a failed job from the original file kept in object
// storage. Jobs in any other state are rejected.
func (s *DocumentService) RetryJob(ctx context.Context, userID, jobID string) (*models.ProcessingJob, error) {
	job, err := s.GetJob(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobFailed {
		return nil, ErrJobNotRetryable
	}
	if job.DocumentID == nil {
		return nil, ErrRetryUnavailable
	}

	store := s.gateway.ForOwner(userID)
	doc, err := store.GetDocument(ctx, *job.DocumentID)
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.StoragePath == "" {
		return nil, ErrRetryUnavailable
	}
	data, err := store.DownloadOriginal(ctx, doc.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRetryUnavailable, err)
	}

	reset, err := s.db.ResetJobForRetry(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if reset == nil {
		// Another retry won the race.
		return nil, ErrJobNotRetryable
	}

	s.ingestor.Submit(ingestion_engine.RunRequest{
		JobID:      reset.ID,
		UserID:     userID,
		FileName:   doc.FileName,
		DocType:    typeHint(doc.DocSpecificType),
		Data:       data,
		DocumentID: doc.ID,
	})
	slog.Info("ingestion retry scheduled", "job_id", reset.ID, "document_id", doc.ID, "retry_count", reset.RetryCount)
	return reset, nil
}

// typeHint turns free text from the client into a known type. Unrecognised
// values mean no hint.
func typeHint(s string) models.DocSpecificType {
	t := models.ParseDocSpecificType(strings.TrimSpace(s))
	if t == models.DocUnknown {
		return ""
	}
	return t
}
