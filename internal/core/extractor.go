package core

import (
	"context"
	"errors"
)

var (
	// ErrInvalidPDF is returned when the input cannot be opened as a PDF.
	ErrInvalidPDF = errors.New("could not open PDF file: corrupt or not a PDF")
	// ErrEmptyPDF is returned for a readable PDF without pages.
	ErrEmptyPDF = errors.New("PDF has no pages")
)

// PageImage is one rendered PDF page. Index is zero based.
type PageImage struct {
	Index    int
	Data     []byte
	MimeType string
}

// PageRasterizer renders every page of a PDF to an image.
type PageRasterizer interface {
	Rasterize(ctx context.Context, pdf []byte) ([]PageImage, error)
}

// TextExtractor pulls plain text out of a PDF without any model call,
// one string per page.
type TextExtractor interface {
	ExtractPages(ctx context.Context, pdf []byte) ([]string, error)
}
