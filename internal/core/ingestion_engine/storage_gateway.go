package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/markdave123-py/fincontexta/internal/core"
	"github.com/markdave123-py/fincontexta/internal/models"
)

// ErrNoValidChunks is returned when every chunk in a save batch lacks a usable embedding.
var ErrNoValidChunks = errors.New("no chunks with a valid embedding")

// StorageGateway is the pipeline's single door to the database and the
// object store. None of its writes retry internally.
type StorageGateway struct {
	db       core.DbClient
	obj      core.ObjectClient
	bucket   string
	embedDim int
}

func NewStorageGateway(db core.DbClient, obj core.ObjectClient, bucket string, embedDim int) *StorageGateway {
	return &StorageGateway{db: db, obj: obj, bucket: bucket, embedDim: embedDim}
}

// ForOwner scopes the gateway to one user. Every read and write made through
// the returned value is keyed by that user.
func (g *StorageGateway) ForOwner(userID string) *OwnerStore {
	return &OwnerStore{g: g, userID: userID}
}

// OwnerStore is a gateway bound to a single owner. It is cheap and meant to
// live for one request or one pipeline run.
type OwnerStore struct {
	g      *StorageGateway
	userID string
}

func (s *OwnerStore) UserID() string { return s.userID }

// ObjectKey is the storage path of an original file: {owner}/{document}/{filename}.
func (s *OwnerStore) ObjectKey(documentID, filename string) string {
	return s.userID + "/" + documentID + "/" + path.Base(filename)
}

// UploadOriginal stores the original PDF bytes and returns the object key.
func (s *OwnerStore) UploadOriginal(ctx context.Context, documentID, filename string, data []byte) (string, error) {
	key := s.ObjectKey(documentID, filename)
	if _, err := s.g.obj.UploadFile(ctx, s.g.bucket, key, data, "application/pdf"); err != nil {
		return "", core.AtStage(core.StageStorage, fmt.Errorf("upload %s: %w", key, err))
	}
	return key, nil
}

func (s *OwnerStore) DownloadOriginal(ctx context.Context, key string) ([]byte, error) {
	data, err := s.g.obj.GetFile(ctx, s.g.bucket, key)
	if err != nil {
		return nil, core.AtStage(core.StageStorage, fmt.Errorf("download %s: %w", key, err))
	}
	return data, nil
}

func (s *OwnerStore) GetDocument(ctx context.Context, documentID string) (*models.Document, error) {
	return s.g.db.GetDocumentByID(ctx, s.userID, documentID)
}

func (s *OwnerStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	doc.UserID = s.userID
	return core.AtStage(core.StagePersistence, s.g.db.CreateDocument(ctx, doc))
}

// ResetDocument rewrites an existing document row for a new attempt and
// removes the sections and chunks of the previous one.
func (s *OwnerStore) ResetDocument(ctx context.Context, doc *models.Document) error {
	doc.UserID = s.userID
	return core.AtStage(core.StagePersistence, s.g.db.ResetDocument(ctx, doc))
}

// SaveSections inserts sections and stamps the generated ids back onto them.
func (s *OwnerStore) SaveSections(ctx context.Context, documentID string, sections []models.Section) error {
	if len(sections) == 0 {
		return nil
	}
	for i := range sections {
		sections[i].DocumentID = documentID
		sections[i].UserID = s.userID
	}
	ids, err := s.g.db.InsertSections(ctx, sections)
	if err != nil {
		return core.AtStage(core.StagePersistence, fmt.Errorf("insert sections: %w", err))
	}
	if len(ids) != len(sections) {
		return core.AtStage(core.StagePersistence,
			fmt.Errorf("insert sections: got %d ids for %d sections", len(ids), len(sections)))
	}
	for i := range sections {
		sections[i].ID = ids[i]
	}
	return nil
}

// SaveChunks inserts every chunk with a valid embedding and reports how many
// were saved and how many were left out.
func (s *OwnerStore) SaveChunks(ctx context.Context, chunks []models.Chunk) (saved, excluded int, err error) {
	valid := make([]models.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if !s.g.validEmbedding(c.Embedding) {
			continue
		}
		c.UserID = s.userID
		valid = append(valid, c)
	}
	excluded = len(chunks) - len(valid)
	if excluded > 0 {
		slog.Warn("chunks without a valid embedding excluded from save", "excluded", excluded, "total", len(chunks))
	}
	if len(valid) == 0 {
		return 0, excluded, core.AtStage(core.StageEmbedding, ErrNoValidChunks)
	}
	if err := s.g.db.InsertChunks(ctx, valid); err != nil {
		return 0, excluded, core.AtStage(core.StagePersistence, fmt.Errorf("insert chunks: %w", err))
	}
	return len(valid), excluded, nil
}

func (g *StorageGateway) validEmbedding(v []float32) bool {
	if len(v) == 0 {
		return false
	}
	return g.embedDim <= 0 || len(v) == g.embedDim
}

func (s *OwnerStore) UpdateDocumentStatus(ctx context.Context, documentID string, status models.DocumentStatus) error {
	return core.AtStage(core.StagePersistence, s.g.db.UpdateDocumentStatus(ctx, s.userID, documentID, status))
}

func (s *OwnerStore) UpdateJob(ctx context.Context, jobID string, upd models.JobUpdate) error {
	return core.AtStage(core.StagePersistence, s.g.db.UpdateJob(ctx, s.userID, jobID, upd))
}

// SaveIncomeStatementSummary stores the summary only when every required
// figure is known. It reports whether a row was written.
func (s *OwnerStore) SaveIncomeStatementSummary(ctx context.Context, documentID string, meta *models.DocumentMetadata) (bool, error) {
	summary := meta.IncomeStatementSummary(documentID, s.userID)
	if summary == nil {
		return false, nil
	}
	if err := s.g.db.InsertIncomeStatementSummary(ctx, summary); err != nil {
		return false, core.AtStage(core.StagePersistence, fmt.Errorf("insert income statement summary: %w", err))
	}
	return true, nil
}
