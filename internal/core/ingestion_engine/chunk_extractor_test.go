package ingestion_engine

import (
	"fmt"
	"strings"
	"testing"

	"github.com/markdave123-py/fincontexta/internal/models"
)

func newTestChunker(t *testing.T, size, minChars int) *ChunkingService {
	t.Helper()
	c, err := NewChunkingService(ChunkingConfig{ChunkSize: size, MinCharactersPerChunk: minChars})
	if err != nil {
		t.Fatalf("NewChunkingService: %v", err)
	}
	return c
}

func TestNewChunkingServiceRejectsBadConfig(t *testing.T) {
	for _, cfg := range []ChunkingConfig{
		{ChunkSize: 0, MinCharactersPerChunk: 10},
		{ChunkSize: 100, MinCharactersPerChunk: -1},
	} {
		if _, err := NewChunkingService(cfg); err == nil {
			t.Errorf("config %+v accepted", cfg)
		}
	}
}

func TestSplitTextShortBody(t *testing.T) {
	c := newTestChunker(t, 4096, 1024)
	text := strings.Repeat("a", 1000)

	spans := c.splitText(text)
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].start != 0 || spans[0].end != 1000 || spans[0].text != text {
		t.Fatalf("span = %d..%d", spans[0].start, spans[0].end)
	}
}

func TestSplitTextCutsAtLastLineBreak(t *testing.T) {
	cases := []struct {
		name           string
		text           string
		size, minChars int
		want           []span
	}{
		{
			name: "paragraph breaks",
			text: "aaaa\n\nbbbb\n\ncccc",
			size: 10, minChars: 3,
			want: []span{{0, 5, "aaaa"}, {5, 11, "bbbb"}, {11, 16, "cccc"}},
		},
		{
			name: "later line break wins over paragraph break",
			text: "aaaaa\n\nbbbbb\ncccccccccccccc",
			size: 20, minChars: 2,
			want: []span{{0, 12, "aaaaa\n\nbbbbb"}, {12, 27, "cccccccccccccc"}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spans := newTestChunker(t, tc.size, tc.minChars).splitText(tc.text)
			if len(spans) != len(tc.want) {
				t.Fatalf("got %d spans, want %d: %+v", len(spans), len(tc.want), spans)
			}
			for i := range tc.want {
				if spans[i] != tc.want[i] {
					t.Errorf("span %d = %+v, want %+v", i, spans[i], tc.want[i])
				}
			}
		})
	}
}

func TestSplitTextHardCutAndRunes(t *testing.T) {
	cases := []struct {
		name string
		text string
		size int
		want []span
	}{
		{"no breaks", "abcdefghij", 4, []span{{0, 4, "abcd"}, {4, 8, "efgh"}, {8, 10, "ij"}}},
		{"multibyte", "ééééé", 2, []span{{0, 2, "éé"}, {2, 4, "éé"}, {4, 5, "é"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spans := newTestChunker(t, tc.size, 1).splitText(tc.text)
			if len(spans) != len(tc.want) {
				t.Fatalf("got %+v, want %+v", spans, tc.want)
			}
			for i := range tc.want {
				if spans[i] != tc.want[i] {
					t.Errorf("span %d = %+v, want %+v", i, spans[i], tc.want[i])
				}
			}
		})
	}
}

func TestSplitTextBounds(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&b, "Line %d %s\n", i, strings.Repeat("x", i%37))
		if i%9 == 0 {
			b.WriteString("\n")
		}
	}
	text := b.String()
	runes := []rune(text)

	c := newTestChunker(t, 120, 40)
	spans := c.splitText(text)
	if len(spans) == 0 {
		t.Fatal("no spans")
	}

	prevEnd := 0
	for i, sp := range spans {
		if sp.end-sp.start > 120 {
			t.Errorf("span %d is %d runes long", i, sp.end-sp.start)
		}
		if sp.start < prevEnd {
			t.Errorf("span %d starts at %d before previous end %d", i, sp.start, prevEnd)
		}
		if got := strings.TrimSpace(string(runes[sp.start:sp.end])); got != sp.text {
			t.Errorf("span %d text does not match its offsets", i)
		}
		prevEnd = sp.end
	}
	if prevEnd != len(runes) {
		t.Errorf("last span ends at %d, text has %d runes", prevEnd, len(runes))
	}
}

func TestLastBreak(t *testing.T) {
	cases := []struct {
		window string
		want   int
	}{
		{"ab\n\ncd\nef", 6},
		{"ab\n\ncd", 3},
		{"abc\ndef", 3},
		{"abc", -1},
	}
	for _, tc := range cases {
		if got := lastBreak([]rune(tc.window)); got != tc.want {
			t.Errorf("lastBreak(%q) = %d, want %d", tc.window, got, tc.want)
		}
	}
}

func TestChunkSectionsTagsMetadata(t *testing.T) {
	c := newTestChunker(t, 10, 3)
	year, quarter := 2023, 2
	company := "Acme"
	meta := &models.DocumentMetadata{
		DocSpecificType: models.DocIncomeStatement,
		DocYear:         &year,
		DocQuarter:      &quarter,
		CompanyName:     &company,
	}
	sections := []models.Section{
		{ID: "s1", DocumentID: "d1", UserID: "u1", Heading: "Revenue", Content: "aaaa\n\nbbbb\n\ncccc"},
		{ID: "s2", DocumentID: "d1", UserID: "u1", Heading: "Blank", Content: "  \n \n"},
		{ID: "s3", DocumentID: "d1", UserID: "u1", Heading: "Costs", Content: "dddd"},
	}

	chunks := c.ChunkSections(sections, meta)
	if len(chunks) != 4 {
		t.Fatalf("got %d chunks, want 4", len(chunks))
	}

	wantSection := []string{"s1", "s1", "s1", "s3"}
	wantIndex := []int{0, 1, 2, 0}
	for i, ch := range chunks {
		if ch.SectionID != wantSection[i] || ch.ChunkIndex != wantIndex[i] {
			t.Errorf("chunk %d = section %s index %d, want %s %d", i, ch.SectionID, ch.ChunkIndex, wantSection[i], wantIndex[i])
		}
		if ch.DocumentID != "d1" || ch.UserID != "u1" {
			t.Errorf("chunk %d owner = %s/%s", i, ch.DocumentID, ch.UserID)
		}
		if ch.DocSpecificType == nil || *ch.DocSpecificType != "Income Statement" {
			t.Errorf("chunk %d type = %v", i, ch.DocSpecificType)
		}
		if ch.DocYear == nil || *ch.DocYear != 2023 || ch.DocQuarter == nil || *ch.DocQuarter != 2 {
			t.Errorf("chunk %d period not tagged", i)
		}
		if ch.ReportDate != nil {
			t.Errorf("chunk %d has report date %q", i, *ch.ReportDate)
		}
	}
	if chunks[3].SectionHeading != "Costs" {
		t.Errorf("heading = %q", chunks[3].SectionHeading)
	}
}

func TestChunkSectionsWithoutMetadata(t *testing.T) {
	chunks := newTestChunker(t, 100, 10).ChunkSections([]models.Section{{ID: "s1", Content: "text"}}, nil)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks", len(chunks))
	}
	if chunks[0].DocSpecificType != nil || chunks[0].DocYear != nil {
		t.Fatal("chunk carries metadata that was never extracted")
	}
}
