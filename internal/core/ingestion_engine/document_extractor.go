package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"code.sajari.com/docconv"
	"github.com/ledongthuc/pdf"

	"github.com/markdave123-py/fincontexta/internal/core"
)

// LocalTextExtractor reads the text layer of a PDF without any model call.
// It is the parser's fallback once transcription quota is spent.
type LocalTextExtractor struct{}

var _ core.TextExtractor = (*LocalTextExtractor)(nil)

func NewLocalTextExtractor() *LocalTextExtractor {
	return &LocalTextExtractor{}
}

// ExtractPages tries the pure Go reader first and shells out to pdftotext
// through docconv when that yields nothing.
func (e *LocalTextExtractor) ExtractPages(ctx context.Context, data []byte) ([]string, error) {
	pages, err := readPDFPages(data)
	if err == nil && hasText(pages) {
		return pages, nil
	}
	if err != nil {
		slog.Warn("pdf reader extraction failed, trying docconv", "err", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return convertWithDocconv(data)
}

func readPDFPages(data []byte) (pages []string, err error) {
	// The reader panics on some malformed cross reference tables.
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidPDF, err)
	}
	n := r.NumPage()
	if n == 0 {
		return nil, core.ErrEmptyPDF
	}
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d text: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

func convertWithDocconv(data []byte) ([]string, error) {
	body, _, err := docconv.ConvertPDF(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("docconv: %w", err)
	}
	// pdftotext separates pages with form feeds.
	pages := strings.Split(body, "\f")
	if len(pages) > 1 && strings.TrimSpace(pages[len(pages)-1]) == "" {
		pages = pages[:len(pages)-1]
	}
	return pages, nil
}

func hasText(pages []string) bool {
	for _, p := range pages {
		if strings.TrimSpace(p) != "" {
			return true
		}
	}
	return false
}
