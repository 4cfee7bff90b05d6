package models

import (
	"time"
)

type DocumentStatus string

const (
	DocumentProcessing        DocumentStatus = "processing"
	DocumentCompleted         DocumentStatus = "completed"
	DocumentCompletedNoChunks DocumentStatus = "completed_no_chunks"
	DocumentFailed            DocumentStatus = "failed"
)

type JobStatus string

const (
	JobPending            JobStatus = "pending"
	JobParsing            JobStatus = "parsing"
	JobExtractingMetadata JobStatus = "extracting_metadata"
	JobUploading          JobStatus = "uploading"
	JobSectioning         JobStatus = "sectioning"
	JobChunking           JobStatus = "chunking"
	JobEmbedding          JobStatus = "embedding"
	JobSaving             JobStatus = "saving"
	JobCompleted          JobStatus = "completed"
	JobFailed             JobStatus = "failed"
)

// Terminal reports whether no further pipeline writes are expected for the job.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Document represents one uploaded financial PDF and its extracted metadata.
type Document struct {
	ID              string         `db:"id" json:"id"`
	UserID          string         `db:"user_id" json:"user_id"`
	FileName        string         `db:"filename" json:"filename"`
	StoragePath     string         `db:"storage_path" json:"storage_path"` // {user}/{document}/{filename}
	FileType        string         `db:"file_type" json:"file_type"`       // "pdf"
	DocSpecificType string         `db:"doc_specific_type" json:"doc_specific_type"`
	CompanyName     *string        `db:"company_name" json:"company_name,omitempty"`
	ReportDate      *string        `db:"report_date" json:"report_date,omitempty"`
	DocYear         *int           `db:"doc_year" json:"doc_year,omitempty"`
	DocQuarter      *int           `db:"doc_quarter" json:"doc_quarter,omitempty"`
	DocSummary      *string        `db:"doc_summary" json:"doc_summary,omitempty"`
	FullMarkdown    string         `db:"full_markdown_content" json:"-"`
	Status          DocumentStatus `db:"status" json:"status"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// Section is a heading-delimited span of a document's markdown.
type Section struct {
	ID           string `db:"id" json:"id"`
	DocumentID   string `db:"document_id" json:"document_id"`
	UserID       string `db:"user_id" json:"user_id"`
	Heading      string `db:"section_heading" json:"section_heading"`
	PageNumbers  []int  `db:"page_numbers" json:"page_numbers"`
	Content      string `db:"content_markdown" json:"content_markdown"`
	SectionIndex int    `db:"section_index" json:"section_index"`
}

// Chunk is the unit that gets embedded and retrieved. Document metadata is
// copied onto every chunk so similarity search can filter without joins.
type Chunk struct {
	ID              string    `db:"id" json:"id"`
	SectionID       string    `db:"section_id" json:"section_id"`
	DocumentID      string    `db:"document_id" json:"document_id"`
	UserID          string    `db:"user_id" json:"user_id"`
	Text            string    `db:"chunk_text" json:"chunk_text"`
	ChunkIndex      int       `db:"chunk_index" json:"chunk_index"`
	StartOffset     int       `db:"start_char_offset" json:"start_char_offset"`
	EndOffset       int       `db:"end_char_offset" json:"end_char_offset"`
	Embedding       []float32 `db:"embedding" json:"-"` // pgvector column
	EmbeddingModel  string    `db:"embedding_model" json:"embedding_model,omitempty"`
	SectionHeading  string    `db:"section_heading" json:"section_heading"`
	DocSpecificType *string   `db:"doc_specific_type" json:"doc_specific_type,omitempty"`
	DocYear         *int      `db:"doc_year" json:"doc_year,omitempty"`
	DocQuarter      *int      `db:"doc_quarter" json:"doc_quarter,omitempty"`
	CompanyName     *string   `db:"company_name" json:"company_name,omitempty"`
	ReportDate      *string   `db:"report_date" json:"report_date,omitempty"`
}

// ProcessingJob tracks one ingestion attempt for one uploaded file.
type ProcessingJob struct {
	ID           string     `db:"id" json:"id"`
	UserID       string     `db:"user_id" json:"user_id"`
	FileName     string     `db:"filename" json:"filename"`
	Status       JobStatus  `db:"status" json:"status"`
	CurrentStep  string     `db:"current_step" json:"current_step"`
	Progress     int        `db:"progress" json:"progress"`
	DocumentID   *string    `db:"document_id" json:"document_id,omitempty"`
	ErrorMessage *string    `db:"error_message" json:"error_message,omitempty"`
	ErrorCode    *string    `db:"error_code" json:"error_code,omitempty"`
	RetryCount   int        `db:"retry_count" json:"retry_count"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
	StartedAt    *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt  *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// JobUpdate is a partial write to a processing job row. Nil fields are left untouched.
type JobUpdate struct {
	Status       JobStatus
	CurrentStep  string
	Progress     int
	DocumentID   *string
	ErrorMessage *string
	ErrorCode    *string
}

// IncomeStatementSummary holds the headline figures of an income statement.
// It is only stored when every required field is known.
type IncomeStatementSummary struct {
	ID              string  `db:"id" json:"id"`
	DocumentID      string  `db:"document_id" json:"document_id"`
	UserID          string  `db:"user_id" json:"user_id"`
	TotalRevenue    float64 `db:"total_revenue" json:"total_revenue"`
	TotalExpenses   float64 `db:"total_expenses" json:"total_expenses"`
	NetIncome       float64 `db:"net_income" json:"net_income"`
	Currency        *string `db:"currency" json:"currency,omitempty"`
	PeriodStartDate *string `db:"period_start_date" json:"period_start_date,omitempty"`
	PeriodEndDate   string  `db:"period_end_date" json:"period_end_date"`
}

// RetrievedChunk is one row returned by the retrieval functions.
type RetrievedChunk struct {
	ChunkID          string   `json:"chunk_id"`
	SectionID        string   `json:"section_id"`
	DocumentID       string   `json:"document_id"`
	DocumentFilename string   `json:"document_filename"`
	ChunkText        string   `json:"chunk_text"`
	ChunkIndex       int      `json:"chunk_index"`
	SectionHeading   string   `json:"section_heading"`
	DocSpecificType  *string  `json:"doc_specific_type"`
	CompanyName      *string  `json:"company_name"`
	DocYear          *int     `json:"doc_year"`
	DocQuarter       *int     `json:"doc_quarter"`
	ReportDate       *string  `json:"report_date"`
	SimilarityScore  *float64 `json:"similarity_score"`
}

// ChunkFilter narrows similarity search. Nil fields do not filter.
type ChunkFilter struct {
	DocSpecificType *string `json:"doc_specific_type,omitempty"`
	CompanyName     *string `json:"company_name,omitempty"`
	YearStart       *int    `json:"doc_year_start,omitempty"`
	YearEnd         *int    `json:"doc_year_end,omitempty"`
	Quarter         *int    `json:"doc_quarter,omitempty"`
	ReportDate      *string `json:"report_date,omitempty"`
}
