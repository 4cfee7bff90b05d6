package ingestion_engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/markdave123-py/fincontexta/internal/core"
	"github.com/markdave123-py/fincontexta/internal/models"
)

// fakeDB is an in-memory core.DbClient that records every write.
type fakeDB struct {
	mu sync.Mutex

	jobs       map[string]*models.ProcessingJob
	jobUpdates []models.JobUpdate
	docs       map[string]*models.Document
	resets     int
	sections   []models.Section
	chunks     []models.Chunk
	summaries  []*models.IncomeStatementSummary
	nextID     int

	errInsertChunks   error
	errInsertSections error
	errUpdateJob      error
}

var _ core.DbClient = (*fakeDB)(nil)

func newFakeDB() *fakeDB {
	return &fakeDB{jobs: map[string]*models.ProcessingJob{}, docs: map[string]*models.Document{}}
}

func (f *fakeDB) CreateJob(_ context.Context, job *models.ProcessingJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j := *job
	f.jobs[job.ID] = &j
	return nil
}

func (f *fakeDB) GetJob(_ context.Context, userID, jobID string) (*models.ProcessingJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok || j.UserID != userID {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (f *fakeDB) ListJobsByUser(_ context.Context, userID string) ([]models.ProcessingJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ProcessingJob
	for _, j := range f.jobs {
		if j.UserID == userID {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (f *fakeDB) UpdateJob(_ context.Context, userID, jobID string, upd models.JobUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errUpdateJob != nil {
		return f.errUpdateJob
	}
	f.jobUpdates = append(f.jobUpdates, upd)
	if j, ok := f.jobs[jobID]; ok && j.UserID == userID {
		j.Status = upd.Status
		j.CurrentStep = upd.CurrentStep
		j.Progress = upd.Progress
		if upd.DocumentID != nil {
			j.DocumentID = upd.DocumentID
		}
		j.ErrorMessage = upd.ErrorMessage
		j.ErrorCode = upd.ErrorCode
	}
	return nil
}

func (f *fakeDB) ResetJobForRetry(_ context.Context, userID, jobID string) (*models.ProcessingJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok || j.UserID != userID || j.Status != models.JobFailed {
		return nil, nil
	}
	j.Status = models.JobPending
	j.Progress = 0
	j.RetryCount++
	cp := *j
	return &cp, nil
}

func (f *fakeDB) CreateDocument(_ context.Context, doc *models.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := *doc
	f.docs[doc.ID] = &d
	return nil
}

func (f *fakeDB) ResetDocument(_ context.Context, doc *models.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[doc.ID]; !ok {
		return fmt.Errorf("document not found: %s", doc.ID)
	}
	d := *doc
	f.docs[doc.ID] = &d
	f.resets++
	kept := f.sections[:0]
	for _, s := range f.sections {
		if s.DocumentID != doc.ID {
			kept = append(kept, s)
		}
	}
	f.sections = kept
	return nil
}

func (f *fakeDB) GetDocumentByID(_ context.Context, userID, id string) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok || d.UserID != userID {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDB) ListDocumentsByUser(_ context.Context, userID string) ([]models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Document
	for _, d := range f.docs {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeDB) UpdateDocumentStatus(_ context.Context, userID, id string, status models.DocumentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok || d.UserID != userID {
		return fmt.Errorf("document not found: %s", id)
	}
	d.Status = status
	return nil
}

func (f *fakeDB) InsertSections(_ context.Context, sections []models.Section) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errInsertSections != nil {
		return nil, f.errInsertSections
	}
	ids := make([]string, len(sections))
	for i, s := range sections {
		f.nextID++
		ids[i] = fmt.Sprintf("sec-%03d", f.nextID)
		s.ID = ids[i]
		f.sections = append(f.sections, s)
	}
	return ids, nil
}

func (f *fakeDB) InsertChunks(_ context.Context, chunks []models.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errInsertChunks != nil {
		return f.errInsertChunks
	}
	f.chunks = append(f.chunks, chunks...)
	return nil
}

func (f *fakeDB) InsertIncomeStatementSummary(_ context.Context, s *models.IncomeStatementSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries = append(f.summaries, s)
	return nil
}

func (f *fakeDB) MatchChunks(context.Context, string, []float32, models.ChunkFilter, int) ([]models.RetrievedChunk, error) {
	return nil, errors.New("not used")
}

func (f *fakeDB) GetChunksForSections(context.Context, string, []string) ([]models.RetrievedChunk, error) {
	return nil, errors.New("not used")
}

func (f *fakeDB) Close() error { return nil }

func (f *fakeDB) updates() []models.JobUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.JobUpdate(nil), f.jobUpdates...)
}

func (f *fakeDB) document(id string) *models.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.docs[id]; ok {
		cp := *d
		return &cp
	}
	return nil
}

// fakeObjects is an in-memory object store keyed by bucket/key.
type fakeObjects struct {
	mu        sync.Mutex
	files     map[string][]byte
	errUpload error
}

func newFakeObjects() *fakeObjects { return &fakeObjects{files: map[string][]byte{}} }

func (o *fakeObjects) UploadFile(_ context.Context, bucket, key string, data []byte, _ string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.errUpload != nil {
		return "", o.errUpload
	}
	o.files[bucket+"/"+key] = append([]byte(nil), data...)
	return "mem://" + bucket + "/" + key, nil
}

func (o *fakeObjects) GetFile(_ context.Context, bucket, key string) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	data, ok := o.files[bucket+"/"+key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return data, nil
}

// fakeEmbedder returns dim sized vectors. limit < 0 means one vector per text.
// fakeEmbedder returns limit vectors per call (-1 for all). The first
// failures calls return failWith and no vectors.
type fakeEmbedder struct {
	dim      int
	limit    int
	err      error
	failures int
	failWith error
	texts    []string
}

func (e *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	e.texts = append(e.texts, texts...)
	if e.failures > 0 {
		e.failures--
		return nil, e.failWith
	}
	n := len(texts)
	if e.limit >= 0 && e.limit < n {
		n = e.limit
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = make([]float32, e.dim)
		out[i][0] = float32(i + 1)
	}
	return out, e.err
}

func (e *fakeEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return make([]float32, e.dim), nil
}

func (e *fakeEmbedder) ModelName() string { return "fake-embed" }

// fakeGenerator answers structured calls from canned JSON, picked by call order.
type fakeGenerator struct {
	mu      sync.Mutex
	answers []string
	errs    []error
	prompts []string
}

func (g *fakeGenerator) GenerateStructured(_ context.Context, prompt string, _ *core.Schema, out any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := len(g.prompts)
	g.prompts = append(g.prompts, prompt)
	if i < len(g.errs) && g.errs[i] != nil {
		return g.errs[i]
	}
	if i >= len(g.answers) {
		return core.ErrEmptyResponse
	}
	return json.Unmarshal([]byte(g.answers[i]), out)
}

func (g *fakeGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

// fakeRasterizer yields n pages whose data is the page index.
type fakeRasterizer struct {
	pages int
	err   error
}

func (r fakeRasterizer) Rasterize(context.Context, []byte) ([]core.PageImage, error) {
	if r.err != nil {
		return nil, r.err
	}
	out := make([]core.PageImage, r.pages)
	for i := range out {
		out[i] = core.PageImage{Index: i, Data: []byte{byte(i)}, MimeType: "image/png"}
	}
	return out, nil
}

// fakeTranscriber delegates to fn with the page index and the 1-based attempt number.
type fakeTranscriber struct {
	mu       sync.Mutex
	attempts map[int]int
	fn       func(page, attempt int) (string, error)
}

func newFakeTranscriber(fn func(page, attempt int) (string, error)) *fakeTranscriber {
	return &fakeTranscriber{attempts: map[int]int{}, fn: fn}
}

func (t *fakeTranscriber) Transcribe(_ context.Context, image []byte, _, _ string) (string, error) {
	page := int(image[0])
	t.mu.Lock()
	t.attempts[page]++
	n := t.attempts[page]
	t.mu.Unlock()
	return t.fn(page, n)
}

func (t *fakeTranscriber) attemptsFor(page int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts[page]
}

type fakeTextExtractor struct {
	pages []string
	err   error
}

func (e fakeTextExtractor) ExtractPages(context.Context, []byte) ([]string, error) {
	return e.pages, e.err
}

func strPtr(s string) *string { return &s }

func intPtrOf(n int) *int { return &n }
