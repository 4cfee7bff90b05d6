package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/avast/retry-go/v4"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/fincontexta/internal/core"
)

const transcriptionPrompt = `You are given an image of a single page from a financial document.
Convert the full content of the page to GitHub Flavored Markdown.
Preserve headings as markdown headings and reproduce every table as a markdown table with all rows, columns and figures.
Keep numbers, currency symbols, dates and footnotes exactly as printed.
Do not add commentary, summaries or explanations. Output only the markdown for this page.`

// ParsedDocument is the markdown of a whole PDF with page markers.
type ParsedDocument struct {
	Markdown      string
	PageCount     int
	DegradedPages []int // 1-based pages replaced by a placeholder
	UsedFallback  bool  // text came from local extraction instead of transcription
}

type pageResult struct {
	index    int
	text     string
	degraded bool
}

// PDFParser turns PDF bytes into page-marked markdown.
type PDFParser struct {
	rasterizer  core.PageRasterizer
	transcriber core.Transcriber
	fallback    core.TextExtractor
	cfg         ParserConfig
}

func NewPDFParser(rasterizer core.PageRasterizer, transcriber core.Transcriber, fallback core.TextExtractor, cfg ParserConfig) *PDFParser {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &PDFParser{rasterizer: rasterizer, transcriber: transcriber, fallback: fallback, cfg: cfg}
}

// Parse renders and transcribes every page. A failed or blocked page becomes
// a placeholder; a spent quota switches the whole document to local text extraction.
func (p *PDFParser) Parse(ctx context.Context, data []byte) (*ParsedDocument, error) {
	pages, err := p.rasterizer.Rasterize(ctx, data)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, core.ErrEmptyPDF
	}

	results, err := p.transcribeAll(ctx, pages)
	if err != nil {
		if !core.IsQuotaExhausted(err) {
			return nil, err
		}
		slog.Warn("transcription quota exhausted, extracting text locally", "pages", len(pages), "err", err)
		return p.parseLocally(ctx, data, err)
	}

	doc := &ParsedDocument{Markdown: assemblePages(results), PageCount: len(pages)}
	for _, r := range results {
		if r.degraded {
			doc.DegradedPages = append(doc.DegradedPages, r.index+1)
		}
	}
	if len(doc.DegradedPages) > 0 {
		slog.Warn("some pages could not be transcribed", "pages", doc.DegradedPages)
	}
	return doc, nil
}

func (p *PDFParser) parseLocally(ctx context.Context, data []byte, quotaErr error) (*ParsedDocument, error) {
	texts, err := p.fallback.ExtractPages(ctx, data)
	if err != nil {
		return nil, errors.Join(quotaErr, fmt.Errorf("local text extraction: %w", err))
	}
	results := make([]pageResult, len(texts))
	for i, t := range texts {
		results[i] = pageResult{index: i, text: t}
	}
	return &ParsedDocument{Markdown: assemblePages(results), PageCount: len(texts), UsedFallback: true}, nil
}

// transcribeAll fans pages out to a bounded pool. Results arrive in any
// order and are sorted by page index before returning. Only a quota
// exhaustion or a cancelled ctx is returned as an error; a quota
// exhaustion cancels the pages still in flight.
func (p *PDFParser) transcribeAll(ctx context.Context, pages []core.PageImage) ([]pageResult, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)

	var mu sync.Mutex
	results := make([]pageResult, 0, len(pages))

	for _, page := range pages {
		g.Go(func() error {
			text, err := p.transcribePage(gctx, page)
			if err != nil && core.IsQuotaExhausted(err) {
				return err
			}
			res := pageResult{index: page.Index, text: text}
			if err != nil {
				res = degradedPage(page.Index, err)
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// Pages cut short by the caller are not degraded content.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].index < results[j].index })
	return results, nil
}

// transcribePage retries rate-limited calls with a fixed delay and gives up
// immediately on anything else.
func (p *PDFParser) transcribePage(ctx context.Context, page core.PageImage) (string, error) {
	var text string
	err := retry.Do(
		func() error {
			t, err := p.transcriber.Transcribe(ctx, page.Data, page.MimeType, transcriptionPrompt)
			if err != nil {
				return err
			}
			text = t
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(p.cfg.MaxRetries)+1),
		retry.Delay(p.cfg.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.RetryIf(core.IsTransient),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("page transcription rate limited, retrying",
				"page", page.Index+1, "attempt", n+1, "max_retries", p.cfg.MaxRetries, "err", err)
		}),
	)
	return text, err
}

func degradedPage(index int, err error) pageResult {
	n := index + 1
	if errors.Is(err, core.ErrContentBlocked) {
		slog.Warn("page transcription blocked", "page", n, "err", err)
		return pageResult{index: index, degraded: true,
			text: fmt.Sprintf("[Annotation blocked for Page %d: %s]", n, blockReason(err))}
	}
	slog.Error("page transcription failed", "page", n, "err", err)
	return pageResult{index: index, degraded: true,
		text: fmt.Sprintf("[Error processing Page %d: %s]", n, core.Classify(err).Code)}
}

func blockReason(err error) string {
	msg := err.Error()
	marker := core.ErrContentBlocked.Error()
	if i := strings.Index(msg, marker); i >= 0 {
		if reason := strings.TrimLeft(msg[i+len(marker):], ": "); reason != "" {
			return reason
		}
	}
	return "content blocked"
}

// assemblePages joins page texts with start and end markers, in slice order.
func assemblePages(results []pageResult) string {
	var b strings.Builder
	for _, r := range results {
		n := r.index + 1
		fmt.Fprintf(&b, "\n\n--- Page %d Start ---\n\n%s\n\n--- Page %d End ---\n\n", n, strings.TrimSpace(r.text), n)
	}
	return strings.TrimSpace(b.String())
}
