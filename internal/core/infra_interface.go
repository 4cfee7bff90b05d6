package core

import (
	"context"

	"github.com/markdave123-py/fincontexta/internal/models"
)

// DbClient defines all persistence operations the services need.
// Every read and write is keyed by the owning user id.
type DbClient interface {
	CreateJob(ctx context.Context, job *models.ProcessingJob) error
	GetJob(ctx context.Context, userID, jobID string) (*models.ProcessingJob, error)
	ListJobsByUser(ctx context.Context, userID string) ([]models.ProcessingJob, error)
	UpdateJob(ctx context.Context, userID, jobID string, upd models.JobUpdate) error
	ResetJobForRetry(ctx context.Context, userID, jobID string) (*models.ProcessingJob, error)

	CreateDocument(ctx context.Context, doc *models.Document) error
	ResetDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, userID, id string) (*models.Document, error)
	ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error)
	UpdateDocumentStatus(ctx context.Context, userID, id string, status models.DocumentStatus) error

	InsertSections(ctx context.Context, sections []models.Section) ([]string, error)
	InsertChunks(ctx context.Context, chunks []models.Chunk) error
	InsertIncomeStatementSummary(ctx context.Context, summary *models.IncomeStatementSummary) error

	MatchChunks(ctx context.Context, userID string, query []float32, filter models.ChunkFilter, limit int) ([]models.RetrievedChunk, error)
	GetChunksForSections(ctx context.Context, userID string, sectionIDs []string) ([]models.RetrievedChunk, error)

	Close() error
}

// ObjectClient defines interactions with S3 or any S3 compatible store.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (url string, err error)
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
}
