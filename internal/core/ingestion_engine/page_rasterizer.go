package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"

	"github.com/gen2brain/go-fitz"

	"github.com/markdave123-py/fincontexta/internal/core"
)

// renderDPI is a 3x zoom over the 72 DPI PDF user space.
const renderDPI = 72 * 3

// FitzRasterizer renders pages with MuPDF.
type FitzRasterizer struct {
	dpi float64
}

var _ core.PageRasterizer = (*FitzRasterizer)(nil)

func NewFitzRasterizer() *FitzRasterizer {
	return &FitzRasterizer{dpi: renderDPI}
}

func (r *FitzRasterizer) Rasterize(ctx context.Context, pdf []byte) ([]core.PageImage, error) {
	if !looksLikePDF(pdf) {
		return nil, core.ErrInvalidPDF
	}
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidPDF, err)
	}
	defer doc.Close()

	n := doc.NumPage()
	if n == 0 {
		return nil, core.ErrEmptyPDF
	}

	pages := make([]core.PageImage, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := doc.ImagePNG(i, r.dpi)
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", i+1, err)
		}
		pages = append(pages, core.PageImage{Index: i, Data: img, MimeType: "image/png"})
	}
	return pages, nil
}

// looksLikePDF checks for the header, which may follow a little leading junk.
func looksLikePDF(data []byte) bool {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	return bytes.Contains(head, []byte("%PDF-"))
}
