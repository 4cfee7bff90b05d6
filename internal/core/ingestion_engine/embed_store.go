package ingestion_engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/markdave123-py/fincontexta/internal/core"
	"github.com/markdave123-py/fincontexta/internal/models"
)

// EmbeddingService annotates chunks with vectors from the configured provider.
type EmbeddingService struct {
	provider core.EmbeddingProvider
}

func NewEmbeddingService(provider core.EmbeddingProvider) *EmbeddingService {
	return &EmbeddingService{provider: provider}
}

// EmbedChunks embeds every chunk with its metadata preamble and writes the
// vectors back in place. When the provider returns fewer vectors than
// chunks only the matching prefix is annotated; the rest keep a nil
// embedding and are skipped at save time. It returns the annotated count.
//
// An error is returned only when no chunk could be annotated.
func (s *EmbeddingService) EmbedChunks(ctx context.Context, chunks []models.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = embeddingText(&chunks[i])
	}

	vecs, err := s.provider.EmbedTexts(ctx, texts)
	if len(vecs) == 0 && err != nil {
		return 0, core.AtStage(core.StageEmbedding, fmt.Errorf("embed %d chunks: %w", len(chunks), err))
	}
	if len(vecs) != len(chunks) {
		slog.Warn("embedding count mismatch, unmatched chunks will be skipped",
			"chunks", len(chunks), "vectors", len(vecs), "err", err)
	}

	annotated := min(len(vecs), len(chunks))
	model := s.provider.ModelName()
	for i := 0; i < annotated; i++ {
		chunks[i].Embedding = vecs[i]
		chunks[i].EmbeddingModel = model
	}
	slog.Info("chunks embedded", "annotated", annotated, "total", len(chunks), "model", model)
	return annotated, nil
}

// embeddingText prefixes the chunk text with its document context.
func embeddingText(c *models.Chunk) string {
	return fmt.Sprintf("Document Type: %s. Year: %s. Quarter: %s. Company: %s. Section: %s. Content: %s",
		orUnknown(c.DocSpecificType), intOrUnknown(c.DocYear), intOrUnknown(c.DocQuarter),
		orUnknown(c.CompanyName), headingOrUnknown(c.SectionHeading), c.Text)
}

func orUnknown(s *string) string {
	if s == nil || *s == "" {
		return "Unknown"
	}
	return *s
}

func intOrUnknown(n *int) string {
	if n == nil {
		return "Unknown"
	}
	return strconv.Itoa(*n)
}

func headingOrUnknown(h string) string {
	if h == "" {
		return "Unknown Section"
	}
	return h
}
