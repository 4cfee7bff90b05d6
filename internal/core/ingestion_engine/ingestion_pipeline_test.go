package ingestion_engine

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/sync/semaphore"

	"github.com/markdave123-py/fincontexta/internal/core"
	"github.com/markdave123-py/fincontexta/internal/models"
)

type fakeParser struct {
	doc      *ParsedDocument
	err      error
	panicMsg string
}

func (p fakeParser) Parse(context.Context, []byte) (*ParsedDocument, error) {
	if p.panicMsg != "" {
		panic(p.panicMsg)
	}
	return p.doc, p.err
}

type fakeMetadata struct {
	meta models.DocumentMetadata
}

func (f fakeMetadata) Extract(context.Context, string, string, models.DocSpecificType) (*models.DocumentMetadata, MetadataOutcome) {
	m := f.meta
	return &m, MetadataOutcome{Source: "fake"}
}

type pipelineHarness struct {
	pipeline *IngestionPipeline
	db       *fakeDB
	objects  *fakeObjects
	embedder *fakeEmbedder
}

func newPipelineHarness(t *testing.T, parser DocumentParser, meta MetadataSource) *pipelineHarness {
	t.Helper()
	chunker, err := NewChunkingService(ChunkingConfig{ChunkSize: 200, MinCharactersPerChunk: 50})
	if err != nil {
		t.Fatal(err)
	}
	h := &pipelineHarness{db: newFakeDB(), objects: newFakeObjects(), embedder: &fakeEmbedder{dim: 4, limit: -1}}
	gateway := NewStorageGateway(h.db, h.objects, "bucket", 4)
	h.pipeline = NewIngestionPipeline(parser, meta, chunker, NewEmbeddingService(h.embedder), gateway)

	_ = h.db.CreateJob(context.Background(), &models.ProcessingJob{ID: "j1", UserID: "u1", FileName: "report.pdf", Status: models.JobPending})
	return h
}

func (h *pipelineHarness) job() *models.ProcessingJob {
	j, _ := h.db.GetJob(context.Background(), "u1", "j1")
	return j
}

const samplePage = "--- Page 1 Start ---\n\n# Revenue\nSales 100\n\n--- Page 1 End ---"

func testRequest() RunRequest {
	return RunRequest{JobID: "j1", UserID: "u1", FileName: "report.pdf", Data: []byte("%PDF-1.7"), Attempt: 1}
}

func TestPipelineRunSuccess(t *testing.T) {
	h := newPipelineHarness(t,
		fakeParser{doc: &ParsedDocument{Markdown: samplePage, PageCount: 1}},
		fakeMetadata{meta: models.DocumentMetadata{DocSpecificType: models.DocIncomeStatement, DocYear: intPtrOf(2023)}})

	res := h.pipeline.Run(context.Background(), testRequest())
	if !res.Success || res.ChunkCount != 1 || res.DocumentID == "" {
		t.Fatalf("result = %+v", res)
	}

	wantStatuses := []models.JobStatus{
		models.JobParsing, models.JobExtractingMetadata, models.JobUploading, models.JobSectioning,
		models.JobChunking, models.JobEmbedding, models.JobSaving, models.JobCompleted,
	}
	updates := h.db.updates()
	if len(updates) != len(wantStatuses) {
		t.Fatalf("got %d job updates, want %d", len(updates), len(wantStatuses))
	}
	last := -1
	for i, u := range updates {
		if u.Status != wantStatuses[i] {
			t.Errorf("update %d status = %s, want %s", i, u.Status, wantStatuses[i])
		}
		if u.Progress < last {
			t.Errorf("progress went back from %d to %d", last, u.Progress)
		}
		last = u.Progress
	}
	if job := h.job(); job.Progress != 100 || job.DocumentID == nil || *job.DocumentID != res.DocumentID {
		t.Fatalf("job = %+v", job)
	}

	doc := h.db.document(res.DocumentID)
	if doc.Status != models.DocumentCompleted || doc.DocSpecificType != "Income Statement" || doc.FullMarkdown != samplePage {
		t.Fatalf("document = %+v", doc)
	}
	if doc.StoragePath != "u1/"+res.DocumentID+"/report.pdf" {
		t.Fatalf("storage path = %q", doc.StoragePath)
	}
	if _, ok := h.objects.files["bucket/"+doc.StoragePath]; !ok {
		t.Fatal("original not uploaded")
	}

	c := h.db.chunks[0]
	if c.SectionID != h.db.sections[0].ID || c.DocumentID != res.DocumentID || c.UserID != "u1" {
		t.Fatalf("chunk ownership = %+v", c)
	}
	if c.DocYear == nil || *c.DocYear != 2023 {
		t.Fatal("chunk missing document year")
	}
}

func TestPipelineRunNoChunks(t *testing.T) {
	h := newPipelineHarness(t, fakeParser{doc: &ParsedDocument{Markdown: "", PageCount: 1}},
		fakeMetadata{meta: models.DocumentMetadata{DocSpecificType: models.DocUnknown}})

	res := h.pipeline.Run(context.Background(), testRequest())
	if !res.Success || res.ChunkCount != 0 {
		t.Fatalf("result = %+v", res)
	}
	job := h.job()
	if job.Status != models.JobCompleted || job.CurrentStep != "Completed (no content chunks)" || job.Progress != 100 {
		t.Fatalf("job = %+v", job)
	}
	if doc := h.db.document(res.DocumentID); doc.Status != models.DocumentCompletedNoChunks {
		t.Fatalf("document status = %s", doc.Status)
	}
	if len(h.embedder.texts) != 0 {
		t.Fatal("embedder called without chunks")
	}
}

func TestPipelineRunParseFailure(t *testing.T) {
	h := newPipelineHarness(t, fakeParser{err: core.ErrInvalidPDF}, fakeMetadata{})

	res := h.pipeline.Run(context.Background(), testRequest())
	if res.Success || res.Retryable || res.ErrorCode != core.CodeFileCorrupted {
		t.Fatalf("result = %+v", res)
	}
	job := h.job()
	if job.Status != models.JobFailed || job.ErrorCode == nil || *job.ErrorCode != "file_corrupted" {
		t.Fatalf("job = %+v", job)
	}
	if job.ErrorMessage == nil || *job.ErrorMessage == "" {
		t.Fatal("failed job has no message")
	}
	if len(h.db.docs) != 0 {
		t.Fatal("document created for an unreadable file")
	}
}

func TestPipelineRunPanicIsClassified(t *testing.T) {
	h := newPipelineHarness(t, fakeParser{panicMsg: "boom"}, fakeMetadata{})

	res := h.pipeline.Run(context.Background(), testRequest())
	if res.Success || res.ErrorCode != core.CodeUnknown {
		t.Fatalf("result = %+v", res)
	}
	if h.job().Status != models.JobFailed {
		t.Fatal("job not failed after panic")
	}
}

func TestPipelineQuotaFailureDeferredThenRetried(t *testing.T) {
	h := newPipelineHarness(t,
		fakeParser{doc: &ParsedDocument{Markdown: samplePage, PageCount: 1}},
		fakeMetadata{meta: models.DocumentMetadata{DocSpecificType: models.DocIncomeStatement}})
	h.embedder.limit = 0
	h.embedder.err = &core.UpstreamError{Kind: core.UpstreamQuotaExhausted, Err: errors.New("quota exceeded")}

	req := testRequest()
	req.DeferTransientFailure = true
	first := h.pipeline.Run(context.Background(), req)
	if first.Success || !first.Retryable || first.ErrorCode != core.CodeQuotaExhausted {
		t.Fatalf("first result = %+v", first)
	}
	job := h.job()
	if job.Status != models.JobPending || job.ErrorCode == nil || *job.ErrorCode != "quota_exhausted" {
		t.Fatalf("job after deferred failure = %+v", job)
	}
	if doc := h.db.document(first.DocumentID); doc.Status != models.DocumentProcessing {
		t.Fatalf("document status = %s, want processing while a retry is pending", doc.Status)
	}

	h.embedder.limit, h.embedder.err = -1, nil
	req.Attempt, req.DocumentID = 2, first.DocumentID
	second := h.pipeline.Run(context.Background(), req)
	if !second.Success || second.DocumentID != first.DocumentID {
		t.Fatalf("second result = %+v", second)
	}
	if len(h.db.docs) != 1 || h.db.resets != 1 {
		t.Fatalf("documents = %d resets = %d, want the first document reused", len(h.db.docs), h.db.resets)
	}
	if len(h.db.sections) != 1 {
		t.Fatalf("sections = %d, stale sections left behind", len(h.db.sections))
	}
	if len(h.objects.files) != 1 {
		t.Fatalf("original uploaded %d times", len(h.objects.files))
	}
	if job := h.job(); job.Status != models.JobCompleted {
		t.Fatalf("job status = %s", job.Status)
	}
}

func TestProgressHoldsAcrossRunnerRetries(t *testing.T) {
	h := newPipelineHarness(t,
		fakeParser{doc: &ParsedDocument{Markdown: samplePage, PageCount: 1}},
		fakeMetadata{meta: models.DocumentMetadata{DocSpecificType: models.DocOther}})
	h.embedder.failures = 1
	h.embedder.failWith = &core.UpstreamError{Kind: core.UpstreamTransient, Err: errors.New("429 too many requests")}

	runner := NewJobRunner(context.Background(), h.pipeline, semaphore.NewWeighted(1), testRunnerConfig(3))
	req := testRequest()
	req.Attempt = 0
	runner.Submit(req)
	runner.Wait()

	updates := h.db.updates()
	sawRequeue := false
	last := 0
	for i, u := range updates {
		if u.Status == models.JobFailed {
			t.Fatalf("update %d failed the job: %+v", i, u)
		}
		if u.Status == models.JobPending {
			sawRequeue = true
		}
		if u.Progress < last {
			t.Fatalf("progress went back from %d to %d at status %s", last, u.Progress, u.Status)
		}
		last = u.Progress
	}
	if !sawRequeue {
		t.Fatal("first attempt was not requeued")
	}
	if job := h.job(); job.Status != models.JobCompleted || job.Progress != 100 {
		t.Fatalf("job = %+v", job)
	}
}

func TestPipelineResultCarriesProgress(t *testing.T) {
	h := newPipelineHarness(t, fakeParser{err: core.ErrInvalidPDF}, fakeMetadata{})

	req := testRequest()
	req.Progress = 80
	res := h.pipeline.Run(context.Background(), req)
	if res.Progress != 80 {
		t.Fatalf("result progress = %d, want 80", res.Progress)
	}
	for _, u := range h.db.updates() {
		if u.Progress < 80 {
			t.Fatalf("update %s reported %d below the carried progress", u.Status, u.Progress)
		}
	}
}

func TestPipelineTerminalFailureMarksDocument(t *testing.T) {
	h := newPipelineHarness(t,
		fakeParser{doc: &ParsedDocument{Markdown: samplePage, PageCount: 1}},
		fakeMetadata{meta: models.DocumentMetadata{DocSpecificType: models.DocOther}})
	h.db.errInsertChunks = errors.New("insert failed")

	res := h.pipeline.Run(context.Background(), testRequest())
	if res.ErrorCode != core.CodeDatabase || res.Retryable {
		t.Fatalf("result = %+v", res)
	}
	if doc := h.db.document(res.DocumentID); doc.Status != models.DocumentFailed {
		t.Fatalf("document status = %s", doc.Status)
	}
	if job := h.job(); job.Status != models.JobFailed || job.CurrentStep != "Failed" {
		t.Fatalf("job = %+v", job)
	}
}

func TestPipelineSavesIncomeSummary(t *testing.T) {
	rev, exp, net := 10.0, 4.0, 6.0
	h := newPipelineHarness(t,
		fakeParser{doc: &ParsedDocument{Markdown: samplePage, PageCount: 1}},
		fakeMetadata{meta: models.DocumentMetadata{
			DocSpecificType: models.DocIncomeStatement,
			TotalRevenue:    &rev,
			TotalExpenses:   &exp,
			NetIncome:       &net,
			PeriodEndDate:   strPtr("2023-12-31"),
		}})

	res := h.pipeline.Run(context.Background(), testRequest())
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if len(h.db.summaries) != 1 || h.db.summaries[0].DocumentID != res.DocumentID {
		t.Fatalf("summaries = %+v", h.db.summaries)
	}
}

func TestPipelineAbandonIsTerminal(t *testing.T) {
	h := newPipelineHarness(t, fakeParser{}, fakeMetadata{})
	_ = h.db.CreateDocument(context.Background(), &models.Document{ID: "d1", UserID: "u1", Status: models.DocumentProcessing})

	req := testRequest()
	req.DocumentID = "d1"
	req.DeferTransientFailure = true
	res := h.pipeline.Abandon(context.Background(), req,
		&core.UpstreamError{Kind: core.UpstreamTransient, Err: errors.New("429")})

	if res.ErrorCode != core.CodeRateLimited {
		t.Fatalf("code = %s", res.ErrorCode)
	}
	if job := h.job(); job.Status != models.JobFailed {
		t.Fatalf("job status = %s, want failed", job.Status)
	}
	if doc := h.db.document("d1"); doc.Status != models.DocumentFailed {
		t.Fatalf("document status = %s", doc.Status)
	}
}
