package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/fincontexta/internal/config"
	"github.com/markdave123-py/fincontexta/internal/core"
	"github.com/markdave123-py/fincontexta/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

var _ core.DbClient = (*DatabaseClient)(nil)

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	dsn, err := buildDSN(cfg.DatabaseURL, cfg.SslCertPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

// buildDSN appends certificate verification to the URL when a CA file is configured.
func buildDSN(databaseURL, sslCertPath string) (string, error) {
	if sslCertPath == "" {
		return databaseURL, nil
	}
	if _, err := os.Stat(sslCertPath); err != nil {
		return "", fmt.Errorf("ssl cert not accessible at %q: %w", sslCertPath, err)
	}
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	q := u.Query()
	q.Set("sslmode", "verify-ca")
	q.Set("sslrootcert", sslCertPath)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Processing jobs

func (c *DatabaseClient) CreateJob(ctx context.Context, job *models.ProcessingJob) error {
	if job == nil {
		return errors.New("nil job")
	}
	const q = `
		INSERT INTO processing_jobs (id, user_id, filename, status, current_step, progress, retry_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	return c.db.QueryRowContext(ctx, q,
		job.ID, job.UserID, job.FileName, string(job.Status), job.CurrentStep, job.Progress, job.RetryCount,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
}

func (c *DatabaseClient) GetJob(ctx context.Context, userID, jobID string) (*models.ProcessingJob, error) {
	q := `SELECT ` + jobColumns + ` FROM processing_jobs WHERE id = $1 AND user_id = $2`
	j, err := scanJob(c.db.QueryRowContext(ctx, q, jobID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return j, err
}

func (c *DatabaseClient) ListJobsByUser(ctx context.Context, userID string) ([]models.ProcessingJob, error) {
	q := `SELECT ` + jobColumns + ` FROM processing_jobs WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := c.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ProcessingJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

// UpdateJob writes status, step and progress. The document id is only ever
// set, never cleared; error fields are overwritten as given.
func (c *DatabaseClient) UpdateJob(ctx context.Context, userID, jobID string, upd models.JobUpdate) error {
	const q = `
		UPDATE processing_jobs
		SET status        = $3::text,
		    current_step  = $4,
		    progress      = $5,
		    document_id   = COALESCE($6::uuid, document_id),
		    error_message = $7,
		    error_code    = $8,
		    started_at    = CASE WHEN started_at IS NULL AND $3::text <> 'pending' THEN now() ELSE started_at END,
		    completed_at  = CASE WHEN $3::text IN ('completed', 'failed') THEN now() ELSE NULL END,
		    updated_at    = now()
		WHERE id = $1 AND user_id = $2
	`
	res, err := c.db.ExecContext(ctx, q, jobID, userID, string(upd.Status), upd.CurrentStep, upd.Progress,
		upd.DocumentID, upd.ErrorMessage, upd.ErrorCode)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("job not found: %s", jobID)
	}
	return nil
}

// ResetJobForRetry moves a failed job back to pending and bumps its retry
// counter. It returns nil without error when the job is missing or not failed.
func (c *DatabaseClient) ResetJobForRetry(ctx context.Context, userID, jobID string) (*models.ProcessingJob, error) {
	q := `
		UPDATE processing_jobs
		SET status = 'pending', current_step = 'Queued for retry', progress = 0,
		    error_message = NULL, error_code = NULL, retry_count = retry_count + 1,
		    started_at = NULL, completed_at = NULL, updated_at = now()
		WHERE id = $1 AND user_id = $2 AND status = 'failed'
		RETURNING ` + jobColumns
	j, err := scanJob(c.db.QueryRowContext(ctx, q, jobID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return j, err
}

// Documents

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO documents
			(id, user_id, filename, storage_path, file_type, doc_specific_type, company_name, report_date,
			 doc_year, doc_quarter, doc_summary, full_markdown_content, status)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8::text::date, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`
	return c.db.QueryRowContext(ctx, q,
		doc.ID, doc.UserID, doc.FileName, doc.StoragePath, doc.FileType, doc.DocSpecificType, doc.CompanyName,
		doc.ReportDate, doc.DocYear, doc.DocQuarter, doc.DocSummary, doc.FullMarkdown, string(doc.Status),
	).Scan(&doc.CreatedAt, &doc.UpdatedAt)
}

// ResetDocument overwrites the extracted fields of an existing document and
// drops its sections, chunks and summary so a retry can rebuild them.
func (c *DatabaseClient) ResetDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const upd = `
		UPDATE documents
		SET doc_specific_type = $3, company_name = $4, report_date = $5::text::date, doc_year = $6,
		    doc_quarter = $7, doc_summary = $8, full_markdown_content = $9, status = $10, updated_at = now()
		WHERE id = $1 AND user_id = $2
	`
	res, err := tx.ExecContext(ctx, upd, doc.ID, doc.UserID, doc.DocSpecificType, doc.CompanyName,
		doc.ReportDate, doc.DocYear, doc.DocQuarter, doc.DocSummary, doc.FullMarkdown, string(doc.Status))
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_ = tx.Rollback()
		return fmt.Errorf("document not found: %s", doc.ID)
	}

	for _, q := range []string{
		`DELETE FROM sections WHERE document_id = $1 AND user_id = $2`,
		`DELETE FROM income_statement_summaries WHERE document_id = $1 AND user_id = $2`,
	} {
		if _, err := tx.ExecContext(ctx, q, doc.ID, doc.UserID); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, userID, id string) (*models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1 AND user_id = $2`
	d, err := scanDocument(c.db.QueryRowContext(ctx, q, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

func (c *DatabaseClient) ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := c.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) UpdateDocumentStatus(ctx context.Context, userID, id string, status models.DocumentStatus) error {
	const q = `
		UPDATE documents
		SET status = $3, updated_at = now()
		WHERE id = $1 AND user_id = $2
	`
	res, err := c.db.ExecContext(ctx, q, id, userID, string(status))
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	return nil
}

// Sections and chunks

// InsertSections inserts sections in one transaction and returns their
// generated ids in input order.
func (c *DatabaseClient) InsertSections(ctx context.Context, sections []models.Section) ([]string, error) {
	if len(sections) == 0 {
		return nil, nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}

	const q = `
		INSERT INTO sections (document_id, user_id, section_heading, page_numbers, content_markdown, section_index)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id::text
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	defer stmt.Close()

	ids := make([]string, 0, len(sections))
	for i := range sections {
		s := &sections[i]
		var id string
		if err := stmt.QueryRowContext(ctx,
			s.DocumentID, s.UserID, s.Heading, pageNumbers(s.PageNumbers), s.Content, s.SectionIndex,
		).Scan(&id); err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

// InsertChunks inserts chunks in a single transaction.
func (c *DatabaseClient) InsertChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO chunks
			(section_id, document_id, user_id, chunk_text, chunk_index, start_char_offset, end_char_offset,
			 embedding, embedding_model, section_heading, doc_specific_type, doc_year, doc_quarter,
			 company_name, report_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15::text::date)
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		vec := pgvector.NewVector(ch.Embedding)
		if _, err := stmt.ExecContext(ctx,
			ch.SectionID, ch.DocumentID, ch.UserID, ch.Text, ch.ChunkIndex, ch.StartOffset, ch.EndOffset,
			vec, ch.EmbeddingModel, ch.SectionHeading, ch.DocSpecificType, ch.DocYear, ch.DocQuarter,
			ch.CompanyName, ch.ReportDate,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) InsertIncomeStatementSummary(ctx context.Context, s *models.IncomeStatementSummary) error {
	if s == nil {
		return errors.New("nil income statement summary")
	}
	const q = `
		INSERT INTO income_statement_summaries
			(document_id, user_id, total_revenue, total_expenses, net_income, currency, period_start_date, period_end_date)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, 'USD'), $7::text::date, $8::text::date)
		ON CONFLICT (document_id) DO UPDATE
		SET total_revenue = EXCLUDED.total_revenue, total_expenses = EXCLUDED.total_expenses,
		    net_income = EXCLUDED.net_income, currency = EXCLUDED.currency,
		    period_start_date = EXCLUDED.period_start_date, period_end_date = EXCLUDED.period_end_date
		RETURNING id::text
	`
	return c.db.QueryRowContext(ctx, q, s.DocumentID, s.UserID, s.TotalRevenue, s.TotalExpenses, s.NetIncome,
		s.Currency, s.PeriodStartDate, s.PeriodEndDate).Scan(&s.ID)
}

// Retrieval

// MatchChunks runs the match_chunks similarity function for one owner.
func (c *DatabaseClient) MatchChunks(ctx context.Context, userID string, query []float32, f models.ChunkFilter, limit int) ([]models.RetrievedChunk, error) {
	q := `SELECT ` + retrievedColumns + ` FROM match_chunks($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	rows, err := c.db.QueryContext(ctx, q, pgvector.NewVector(query), limit, userID,
		f.DocSpecificType, f.CompanyName, f.YearStart, f.YearEnd, f.Quarter, f.ReportDate)
	if err != nil {
		return nil, fmt.Errorf("match_chunks: %w", err)
	}
	return collectRetrieved(rows)
}

// GetChunksForSections returns every chunk of the given sections for one owner.
func (c *DatabaseClient) GetChunksForSections(ctx context.Context, userID string, sectionIDs []string) ([]models.RetrievedChunk, error) {
	q := `SELECT ` + retrievedColumns + ` FROM get_chunks_for_sections($1::text[]::uuid[], $2)`
	rows, err := c.db.QueryContext(ctx, q, sectionIDs, userID)
	if err != nil {
		return nil, fmt.Errorf("get_chunks_for_sections: %w", err)
	}
	return collectRetrieved(rows)
}

func collectRetrieved(rows *sql.Rows) ([]models.RetrievedChunk, error) {
	defer rows.Close()
	var out []models.RetrievedChunk
	for rows.Next() {
		c, err := scanRetrieved(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		slog.Error("reading retrieval rows", "err", err)
		return nil, err
	}
	return out, nil
}
