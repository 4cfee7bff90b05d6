package db

import (
	"database/sql"

	"github.com/markdave123-py/fincontexta/internal/models"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const documentColumns = `id, user_id, filename, storage_path, file_type, doc_specific_type, company_name,
	report_date::text, doc_year, doc_quarter, doc_summary, status, created_at, updated_at`

func scanDocument(s rowScanner) (*models.Document, error) {
	var (
		d                            models.Document
		company, reportDate, summary sql.NullString
		year, quarter                sql.NullInt64
		status                       string
	)
	if err := s.Scan(&d.ID, &d.UserID, &d.FileName, &d.StoragePath, &d.FileType, &d.DocSpecificType,
		&company, &reportDate, &year, &quarter, &summary, &status, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.CompanyName = stringPtr(company)
	d.ReportDate = stringPtr(reportDate)
	d.DocYear = intPtr(year)
	d.DocQuarter = intPtr(quarter)
	d.DocSummary = stringPtr(summary)
	d.Status = models.DocumentStatus(status)
	return &d, nil
}

const jobColumns = `id, user_id, filename, status, current_step, progress, document_id::text, error_message,
	error_code, retry_count, created_at, updated_at, started_at, completed_at`

func scanJob(s rowScanner) (*models.ProcessingJob, error) {
	var (
		j                      models.ProcessingJob
		status                 string
		docID, errMsg, errCode sql.NullString
		startedAt, completedAt sql.NullTime
	)
	if err := s.Scan(&j.ID, &j.UserID, &j.FileName, &status, &j.CurrentStep, &j.Progress, &docID, &errMsg,
		&errCode, &j.RetryCount, &j.CreatedAt, &j.UpdatedAt, &startedAt, &completedAt); err != nil {
		return nil, err
	}
	j.Status = models.JobStatus(status)
	j.DocumentID = stringPtr(docID)
	j.ErrorMessage = stringPtr(errMsg)
	j.ErrorCode = stringPtr(errCode)
	if startedAt.Valid {
		j.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		j.CompletedAt = &completedAt.Time
	}
	return &j, nil
}

// retrievedColumns matches the result table of match_chunks and get_chunks_for_sections.
const retrievedColumns = `chunk_id::text, section_id::text, document_id::text, document_filename, chunk_text,
	chunk_index, section_heading, doc_specific_type, company_name, doc_year, doc_quarter, report_date,
	similarity_score`

func scanRetrieved(s rowScanner) (models.RetrievedChunk, error) {
	var (
		c                                 models.RetrievedChunk
		heading, docType, company, report sql.NullString
		year, quarter                     sql.NullInt64
		score                             sql.NullFloat64
	)
	if err := s.Scan(&c.ChunkID, &c.SectionID, &c.DocumentID, &c.DocumentFilename, &c.ChunkText,
		&c.ChunkIndex, &heading, &docType, &company, &year, &quarter, &report, &score); err != nil {
		return c, err
	}
	c.SectionHeading = heading.String
	c.DocSpecificType = stringPtr(docType)
	c.CompanyName = stringPtr(company)
	c.DocYear = intPtr(year)
	c.DocQuarter = intPtr(quarter)
	c.ReportDate = stringPtr(report)
	if score.Valid {
		c.SimilarityScore = &score.Float64
	}
	return c, nil
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func intPtr(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	n := int(ni.Int64)
	return &n
}

func pageNumbers(pages []int) []int32 {
	out := make([]int32, len(pages))
	for i, p := range pages {
		out[i] = int32(p)
	}
	return out
}
