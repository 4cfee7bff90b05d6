package ingestion_engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/fincontexta/internal/core"
	"github.com/markdave123-py/fincontexta/internal/models"
)

const failureWriteTimeout = 30 * time.Second

// DocumentParser turns PDF bytes into page-marked markdown.
type DocumentParser interface {
	Parse(ctx context.Context, data []byte) (*ParsedDocument, error)
}

// MetadataSource always yields a metadata record for a document.
type MetadataSource interface {
	Extract(ctx context.Context, markdown, filename string, typeHint models.DocSpecificType) (*models.DocumentMetadata, MetadataOutcome)
}

// RunRequest is one attempt at ingesting one uploaded file.
//
// DocumentID:            set when an earlier attempt already created the document row.
// Attempt:               1-based attempt number within the current runner submission.
// DeferTransientFailure: a retryable failure parks the job as pending instead of failing it.
// Progress:              job progress reached by the previous attempt; this attempt never reports less.
type RunRequest struct {
	JobID                 string
	UserID                string
	FileName              string
	DocType               models.DocSpecificType
	Data                  []byte
	DocumentID            string
	Attempt               int
	DeferTransientFailure bool
	Progress              int
}

// Result is what the pipeline reports back instead of raising.
type Result struct {
	Success        bool
	Message        string
	DocumentID     string
	ChunkCount     int
	ExcludedChunks int
	ErrorCode      core.ErrorCode
	Retryable      bool
	Progress       int
	Err            error
}

// IngestionPipeline runs parse, metadata, upload, sectioning, chunking,
// embedding and saving for one document, and keeps the job row current.
type IngestionPipeline struct {
	parser   DocumentParser
	metadata MetadataSource
	chunker  *ChunkingService
	embedder *EmbeddingService
	gateway  *StorageGateway
}

func NewIngestionPipeline(parser DocumentParser, metadata MetadataSource, chunker *ChunkingService,
	embedder *EmbeddingService, gateway *StorageGateway) *IngestionPipeline {
	return &IngestionPipeline{parser: parser, metadata: metadata, chunker: chunker, embedder: embedder, gateway: gateway}
}

// Run executes one attempt. It never panics and never returns an error;
// every failure is classified into the Result and written to the job.
func (p *IngestionPipeline) Run(ctx context.Context, req RunRequest) (res Result) {
	store := p.gateway.ForOwner(req.UserID)
	tracker := newJobTracker(store, req.JobID, req.Progress)
	res.DocumentID = req.DocumentID
	if req.DocumentID != "" {
		tracker.attachDocument(req.DocumentID)
	}

	defer func() {
		if r := recover(); r != nil {
			res = p.fail(ctx, req, store, tracker, res, fmt.Errorf("pipeline panic: %v", r))
		}
		res.Progress = tracker.progress
	}()

	start := time.Now()
	if err := p.run(ctx, req, store, tracker, &res); err != nil {
		return p.fail(ctx, req, store, tracker, res, err)
	}
	slog.Info("ingestion finished", "job_id", req.JobID, "document_id", res.DocumentID,
		"chunks", res.ChunkCount, "excluded", res.ExcludedChunks, "took", time.Since(start))
	return res
}

func (p *IngestionPipeline) run(ctx context.Context, req RunRequest, store *OwnerStore, tracker *jobTracker, res *Result) error {
	log := slog.With("job_id", req.JobID, "user_id", req.UserID, "file", req.FileName, "attempt", req.Attempt)

	tracker.advance(ctx, models.JobParsing, "Parsing PDF", 10)
	parsed, err := p.parser.Parse(ctx, req.Data)
	if err != nil {
		return core.AtStage(core.StageParsing, err)
	}
	log.Info("pdf parsed", "pages", parsed.PageCount, "degraded", len(parsed.DegradedPages), "fallback", parsed.UsedFallback)

	tracker.advance(ctx, models.JobExtractingMetadata, "Extracting metadata", 25)
	meta, outcome := p.metadata.Extract(ctx, parsed.Markdown, req.FileName, req.DocType)
	log.Info("metadata extracted", "type", meta.DocSpecificType, "source", outcome.Source, "quota_limited", outcome.QuotaLimited)

	tracker.advance(ctx, models.JobUploading, "Uploading original file", 35)
	doc, err := p.prepareDocument(ctx, store, req, parsed, meta)
	if err != nil {
		return err
	}
	res.DocumentID = doc.ID
	tracker.attachDocument(doc.ID)

	if saved, err := store.SaveIncomeStatementSummary(ctx, doc.ID, meta); err != nil {
		log.Warn("income statement summary not saved", "err", err)
	} else if saved {
		log.Info("income statement summary saved", "document_id", doc.ID)
	}

	tracker.advance(ctx, models.JobSectioning, "Splitting into sections", 50)
	sections := SplitSections(parsed.Markdown)
	if err := store.SaveSections(ctx, doc.ID, sections); err != nil {
		return err
	}

	tracker.advance(ctx, models.JobChunking, "Chunking sections", 65)
	chunks := p.chunker.ChunkSections(sections, meta)
	log.Info("document chunked", "sections", len(sections), "chunks", len(chunks))
	if len(chunks) == 0 {
		if err := store.UpdateDocumentStatus(ctx, doc.ID, models.DocumentCompletedNoChunks); err != nil {
			return err
		}
		tracker.complete(ctx, "Completed (no content chunks)")
		res.Success = true
		res.Message = "Document processed, no content chunks were produced"
		return nil
	}

	tracker.advance(ctx, models.JobEmbedding, "Generating embeddings", 80)
	if _, err := p.embedder.EmbedChunks(ctx, chunks); err != nil {
		return err
	}

	tracker.advance(ctx, models.JobSaving, "Saving chunks", 90)
	saved, excluded, err := store.SaveChunks(ctx, chunks)
	if err != nil {
		return err
	}
	if err := store.UpdateDocumentStatus(ctx, doc.ID, models.DocumentCompleted); err != nil {
		return err
	}
	tracker.complete(ctx, "Completed")

	res.Success = true
	res.ChunkCount = saved
	res.ExcludedChunks = excluded
	res.Message = fmt.Sprintf("Document processed into %d chunks", saved)
	return nil
}

// prepareDocument reuses the document of an earlier attempt or creates a new
// one after uploading the original. A reused document loses its old sections.
func (p *IngestionPipeline) prepareDocument(ctx context.Context, store *OwnerStore, req RunRequest,
	parsed *ParsedDocument, meta *models.DocumentMetadata) (*models.Document, error) {
	if req.DocumentID != "" {
		existing, err := store.GetDocument(ctx, req.DocumentID)
		if err != nil {
			return nil, core.AtStage(core.StagePersistence, err)
		}
		if existing != nil {
			if existing.StoragePath == "" {
				key, err := store.UploadOriginal(ctx, existing.ID, req.FileName, req.Data)
				if err != nil {
					return nil, err
				}
				existing.StoragePath = key
			}
			applyMetadata(existing, parsed, meta)
			if err := store.ResetDocument(ctx, existing); err != nil {
				return nil, err
			}
			return existing, nil
		}
	}

	doc := &models.Document{ID: uuid.NewString(), FileName: req.FileName, FileType: "pdf"}
	key, err := store.UploadOriginal(ctx, doc.ID, req.FileName, req.Data)
	if err != nil {
		return nil, err
	}
	doc.StoragePath = key
	applyMetadata(doc, parsed, meta)
	if err := store.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func applyMetadata(doc *models.Document, parsed *ParsedDocument, meta *models.DocumentMetadata) {
	doc.DocSpecificType = string(meta.DocSpecificType)
	doc.CompanyName = meta.CompanyName
	doc.ReportDate = meta.ReportDate
	doc.DocYear = meta.DocYear
	doc.DocQuarter = meta.DocQuarter
	doc.DocSummary = meta.DocSummary
	doc.FullMarkdown = parsed.Markdown
	doc.Status = models.DocumentProcessing
}

// Abandon writes a terminal failure for a job whose attempts stopped early,
// for example because the runner is shutting down.
func (p *IngestionPipeline) Abandon(ctx context.Context, req RunRequest, err error) Result {
	req.DeferTransientFailure = false
	store := p.gateway.ForOwner(req.UserID)
	tracker := newJobTracker(store, req.JobID, req.Progress)
	res := Result{DocumentID: req.DocumentID}
	if req.DocumentID != "" {
		tracker.attachDocument(req.DocumentID)
	}
	res = p.fail(ctx, req, store, tracker, res, err)
	res.Progress = tracker.progress
	return res
}

// fail classifies err and writes the failed (or requeued) state. The writes
// use a detached context so a cancelled run still records its outcome.
func (p *IngestionPipeline) fail(ctx context.Context, req RunRequest, store *OwnerStore, tracker *jobTracker, res Result, err error) Result {
	f := core.Classify(err)
	res.Success = false
	res.Err = err
	res.ErrorCode = f.Code
	res.Retryable = f.Retryable()
	res.Message = f.Message

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancel()

	if res.Retryable && req.DeferTransientFailure {
		slog.Warn("ingestion attempt failed, will retry", "job_id", req.JobID, "attempt", req.Attempt, "code", f.Code, "err", err)
		tracker.requeue(wctx, f, req.Attempt)
		return res
	}

	slog.Error("ingestion failed", "job_id", req.JobID, "document_id", res.DocumentID, "code", f.Code, "err", err)
	if res.DocumentID != "" {
		if err := store.UpdateDocumentStatus(wctx, res.DocumentID, models.DocumentFailed); err != nil {
			slog.Error("document failed status not written", "document_id", res.DocumentID, "err", err)
		}
	}
	tracker.fail(wctx, f)
	return res
}
