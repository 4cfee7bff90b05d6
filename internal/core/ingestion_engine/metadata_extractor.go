package ingestion_engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/markdave123-py/fincontexta/internal/core"
	"github.com/markdave123-py/fincontexta/internal/models"
)

// MetadataStrategy produces document metadata from a text snippet.
type MetadataStrategy interface {
	Name() string
	Extract(ctx context.Context, snippet string, typeHint models.DocSpecificType) (*models.DocumentMetadata, error)
}

// MetadataOutcome reports how the returned metadata was obtained.
type MetadataOutcome struct {
	Source       string // name of the strategy that produced the record
	QuotaLimited bool   // the primary strategy failed on a spent quota
}

// LLMMetadataStrategy asks a schema-constrained model for metadata.
type LLMMetadataStrategy struct {
	gen core.StructuredGenerator
}

func NewLLMMetadataStrategy(gen core.StructuredGenerator) *LLMMetadataStrategy {
	return &LLMMetadataStrategy{gen: gen}
}

func (s *LLMMetadataStrategy) Name() string { return "llm" }

func (s *LLMMetadataStrategy) Extract(ctx context.Context, snippet string, typeHint models.DocSpecificType) (*models.DocumentMetadata, error) {
	hint := ""
	if typeHint != "" && typeHint != models.DocUnknown {
		hint = fmt.Sprintf("The uploader says this document is a %q; prefer it unless the text clearly says otherwise.\n", typeHint)
	}

	var meta models.DocumentMetadata
	if err := s.gen.GenerateStructured(ctx, fmt.Sprintf(metadataPrompt, hint, snippet), metadataSchema(), &meta); err != nil {
		return nil, err
	}
	meta.Normalize()
	return &meta, nil
}

// FillIncomeFigures runs the narrower income statement call and fills only
// the fields still missing on meta.
func (s *LLMMetadataStrategy) FillIncomeFigures(ctx context.Context, snippet string, meta *models.DocumentMetadata) error {
	var figures incomeFigures
	if err := s.gen.GenerateStructured(ctx, fmt.Sprintf(incomePrompt, snippet), incomeSchema(), &figures); err != nil {
		return err
	}
	figures.fillMissing(meta)
	meta.Normalize()
	return nil
}

// incomeFiller is implemented by strategies that can run the second,
// income statement only pass.
type incomeFiller interface {
	FillIncomeFigures(ctx context.Context, snippet string, meta *models.DocumentMetadata) error
}

// MetadataExtractor runs the primary strategy and falls back to the
// heuristic one. It always returns a record.
type MetadataExtractor struct {
	primary      MetadataStrategy
	fallback     MetadataStrategy
	snippetChars int
}

func NewMetadataExtractor(primary MetadataStrategy, snippetChars int) *MetadataExtractor {
	if snippetChars <= 0 {
		snippetChars = 16000
	}
	return &MetadataExtractor{primary: primary, fallback: HeuristicMetadataStrategy{}, snippetChars: snippetChars}
}

// Extract builds the snippet from the document head and runs the strategies.
// A spent quota on the primary call is reported through the outcome, never as an error.
func (e *MetadataExtractor) Extract(ctx context.Context, markdown, filename string, typeHint models.DocSpecificType) (*models.DocumentMetadata, MetadataOutcome) {
	snippet := metadataSnippet(markdown, filename, e.snippetChars)

	meta, err := e.primary.Extract(ctx, snippet, typeHint)
	switch {
	case err != nil:
		quota := core.IsQuotaExhausted(err)
		if quota {
			slog.Warn("metadata quota exhausted, using heuristics", "file", filename, "err", err)
		} else {
			slog.Error("metadata extraction failed, using heuristics", "file", filename, "err", err)
		}
		return e.runFallback(ctx, snippet, typeHint), MetadataOutcome{Source: e.fallback.Name(), QuotaLimited: quota}
	case meta == nil:
		slog.Warn("metadata extraction returned nothing, using heuristics", "file", filename)
		return e.runFallback(ctx, snippet, typeHint), MetadataOutcome{Source: e.fallback.Name()}
	}

	filler, ok := e.primary.(incomeFiller)
	if ok && meta.DocSpecificType == models.DocIncomeStatement && meta.MissingIncomeFigures() {
		if err := filler.FillIncomeFigures(ctx, snippet, meta); err != nil {
			slog.Warn("income statement figures not extracted", "file", filename, "err", err)
		}
	}
	return meta, MetadataOutcome{Source: e.primary.Name()}
}

func (e *MetadataExtractor) runFallback(ctx context.Context, snippet string, typeHint models.DocSpecificType) *models.DocumentMetadata {
	meta, err := e.fallback.Extract(ctx, snippet, typeHint)
	if err != nil || meta == nil {
		slog.Error("heuristic metadata failed", "err", err)
		return &models.DocumentMetadata{DocSpecificType: models.DocUnknown}
	}
	meta.Normalize()
	return meta
}

// metadataSnippet prepends the filename and keeps the first n runes of the markdown.
func metadataSnippet(markdown, filename string, n int) string {
	if r := []rune(markdown); len(r) > n {
		markdown = string(r[:n])
	}
	if filename = strings.TrimSpace(filename); filename != "" {
		return "Filename: " + filename + "\n\n" + markdown
	}
	return markdown
}
