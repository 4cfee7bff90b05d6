package ingestion_engine

import (
	"strings"

	"github.com/markdave123-py/fincontexta/internal/models"
)

// span is a slice of a section body, in rune offsets.
type span struct {
	start, end int
	text       string
}

// ChunkingService cuts sections into size-bounded chunks that end at
// line breaks where possible.
type ChunkingService struct {
	cfg ChunkingConfig
}

func NewChunkingService(cfg ChunkingConfig) (*ChunkingService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ChunkingService{cfg: cfg}, nil
}

// ChunkSections chunks every section and tags each chunk with its section
// heading and the document metadata. Chunk indices restart at zero per section.
func (s *ChunkingService) ChunkSections(sections []models.Section, meta *models.DocumentMetadata) []models.Chunk {
	var (
		docType *string
		year    *int
		quarter *int
		company *string
		report  *string
	)
	if meta != nil {
		t := string(meta.DocSpecificType)
		docType = &t
		year, quarter, company, report = meta.DocYear, meta.DocQuarter, meta.CompanyName, meta.ReportDate
	}

	var chunks []models.Chunk
	for _, sec := range sections {
		body := strings.TrimSpace(sec.Content)
		if body == "" {
			continue
		}
		for i, sp := range s.splitText(body) {
			chunks = append(chunks, models.Chunk{
				SectionID:       sec.ID,
				DocumentID:      sec.DocumentID,
				UserID:          sec.UserID,
				Text:            sp.text,
				ChunkIndex:      i,
				StartOffset:     sp.start,
				EndOffset:       sp.end,
				SectionHeading:  sec.Heading,
				DocSpecificType: docType,
				DocYear:         year,
				DocQuarter:      quarter,
				CompanyName:     company,
				ReportDate:      report,
			})
		}
	}
	return chunks
}

// splitText walks the text in windows of ChunkSize runes. A window that does
// not reach the end is cut at the last break found past MinCharactersPerChunk.
// Slices that are blank after trimming are dropped but still advance the cursor.
func (s *ChunkingService) splitText(text string) []span {
	runes := []rune(text)
	n := len(runes)
	var out []span

	for start := 0; start < n; {
		hardEnd := min(start+s.cfg.ChunkSize, n)
		end := hardEnd
		if hardEnd < n {
			searchFrom := min(start+s.cfg.MinCharactersPerChunk, n)
			if searchFrom < hardEnd {
				if rel := lastBreak(runes[searchFrom:hardEnd]); rel >= 0 {
					end = searchFrom + rel
				}
			}
			if end <= start {
				end = hardEnd
			}
		}

		if raw := strings.TrimSpace(string(runes[start:end])); raw != "" {
			out = append(out, span{start: start, end: end, text: raw})
		}
		start = end
	}
	return out
}

// lastBreak returns the index of the last line break in window, or -1.
// Inside a paragraph break that is the second newline, so the blank line
// stays with the chunk being cut.
func lastBreak(window []rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		if window[i] == '\n' {
			return i
		}
	}
	return -1
}
