package services

import (
	"context"
	"errors"
	"sync"

	"github.com/markdave123-py/fincontexta/internal/core"
	"github.com/markdave123-py/fincontexta/internal/core/ingestion_engine"
	"github.com/markdave123-py/fincontexta/internal/models"
)

// memDB is an in-memory core.DbClient covering what the services touch.
type memDB struct {
	mu   sync.Mutex
	jobs map[string]*models.ProcessingJob
	docs map[string]*models.Document

	matches       []models.RetrievedChunk
	matchErr      error
	matchLimit    int
	matchFilter   models.ChunkFilter
	sectionRows   []models.RetrievedChunk
	sectionErr    error
	sectionsAsked []string
}

var _ core.DbClient = (*memDB)(nil)

func newMemDB() *memDB {
	return &memDB{jobs: map[string]*models.ProcessingJob{}, docs: map[string]*models.Document{}}
}

func (m *memDB) CreateJob(_ context.Context, job *models.ProcessingJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := *job
	m.jobs[job.ID] = &j
	return nil
}

func (m *memDB) GetJob(_ context.Context, userID, jobID string) (*models.ProcessingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok || j.UserID != userID {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (m *memDB) ListJobsByUser(_ context.Context, userID string) ([]models.ProcessingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ProcessingJob
	for _, j := range m.jobs {
		if j.UserID == userID {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (m *memDB) UpdateJob(context.Context, string, string, models.JobUpdate) error { return nil }

func (m *memDB) ResetJobForRetry(_ context.Context, userID, jobID string) (*models.ProcessingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok || j.UserID != userID || j.Status != models.JobFailed {
		return nil, nil
	}
	j.Status = models.JobPending
	j.Progress = 0
	j.ErrorCode, j.ErrorMessage = nil, nil
	j.RetryCount++
	cp := *j
	return &cp, nil
}

func (m *memDB) CreateDocument(_ context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := *doc
	m.docs[doc.ID] = &d
	return nil
}

func (m *memDB) ResetDocument(context.Context, *models.Document) error { return nil }

func (m *memDB) GetDocumentByID(_ context.Context, userID, id string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok || d.UserID != userID {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (m *memDB) ListDocumentsByUser(context.Context, string) ([]models.Document, error) {
	return nil, nil
}

func (m *memDB) UpdateDocumentStatus(context.Context, string, string, models.DocumentStatus) error {
	return nil
}

func (m *memDB) InsertSections(context.Context, []models.Section) ([]string, error) { return nil, nil }

func (m *memDB) InsertChunks(context.Context, []models.Chunk) error { return nil }

func (m *memDB) InsertIncomeStatementSummary(context.Context, *models.IncomeStatementSummary) error {
	return nil
}

func (m *memDB) MatchChunks(_ context.Context, _ string, _ []float32, f models.ChunkFilter, limit int) ([]models.RetrievedChunk, error) {
	m.matchLimit, m.matchFilter = limit, f
	if m.matchErr != nil {
		return nil, m.matchErr
	}
	return append([]models.RetrievedChunk(nil), m.matches...), nil
}

func (m *memDB) GetChunksForSections(_ context.Context, _ string, ids []string) ([]models.RetrievedChunk, error) {
	m.sectionsAsked = ids
	if m.sectionErr != nil {
		return nil, m.sectionErr
	}
	return append([]models.RetrievedChunk(nil), m.sectionRows...), nil
}

func (m *memDB) Close() error { return nil }

type memObjects struct {
	files map[string][]byte
}

func (o *memObjects) UploadFile(_ context.Context, bucket, key string, data []byte, _ string) (string, error) {
	o.files[bucket+"/"+key] = data
	return key, nil
}

func (o *memObjects) GetFile(_ context.Context, bucket, key string) ([]byte, error) {
	data, ok := o.files[bucket+"/"+key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return data, nil
}

type queryEmbedder struct {
	vec []float32
	err error
}

func (e queryEmbedder) EmbedTexts(context.Context, []string) ([][]float32, error) { return nil, nil }

func (e queryEmbedder) EmbedQuery(context.Context, string) ([]float32, error) { return e.vec, e.err }

func (e queryEmbedder) ModelName() string { return "test" }

// recordingIngestor keeps submitted requests instead of running them.
type recordingIngestor struct {
	reqs []ingestion_engine.RunRequest
}

func (r *recordingIngestor) Submit(req ingestion_engine.RunRequest) { r.reqs = append(r.reqs, req) }

func (r *recordingIngestor) Wait() {}
