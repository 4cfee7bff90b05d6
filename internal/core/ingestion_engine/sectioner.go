package ingestion_engine

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/markdave123-py/fincontexta/internal/models"
)

const documentStartHeading = "Document Start"

var (
	headingPattern   = regexp.MustCompile(`^#+\s`)
	pageStartPattern = regexp.MustCompile(`^--- Page (\d+) Start ---`)
	pageEndPattern   = regexp.MustCompile(`^--- Page \d+ End ---`)
)

// openSection accumulates the lines of the section being scanned.
//
// pendingFrom: index of the first page-start marker in the trailing run of
// blank and marker lines, or -1. That run belongs to whatever comes next:
// the current section if more content follows, the next section if a
// heading follows.
type openSection struct {
	heading      string
	lines        []string
	pages        map[int]struct{}
	substantive  bool
	pendingFrom  int
	pendingPages []int
}

func newOpenSection(heading string) *openSection {
	return &openSection{heading: heading, pages: map[int]struct{}{}, pendingFrom: -1}
}

func (s *openSection) addMarker(line string, page int) {
	if s.pendingFrom < 0 {
		s.pendingFrom = len(s.lines)
	}
	s.lines = append(s.lines, line)
	s.pendingPages = append(s.pendingPages, page)
}

func (s *openSection) addStructural(line string) {
	s.lines = append(s.lines, line)
}

func (s *openSection) addContent(line string) {
	s.commitPending()
	s.lines = append(s.lines, line)
	s.substantive = true
}

func (s *openSection) commitPending() {
	for _, p := range s.pendingPages {
		s.pages[p] = struct{}{}
	}
	s.pendingFrom = -1
	s.pendingPages = nil
}

// detachLeading removes the lines that should open the next section and
// returns them with the page numbers they carry.
func (s *openSection) detachLeading() ([]string, []int) {
	if !s.substantive {
		lines, pages := s.lines, s.pendingPages
		for p := range s.pages {
			pages = append(pages, p)
		}
		s.lines, s.pages, s.pendingPages, s.pendingFrom = nil, map[int]struct{}{}, nil, -1
		return lines, pages
	}
	if s.pendingFrom < 0 {
		return nil, nil
	}
	lines := append([]string(nil), s.lines[s.pendingFrom:]...)
	pages := s.pendingPages
	s.lines = s.lines[:s.pendingFrom]
	s.pendingFrom, s.pendingPages = -1, nil
	return lines, pages
}

func (s *openSection) section(index int) models.Section {
	pages := make([]int, 0, len(s.pages))
	for p := range s.pages {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return models.Section{
		Heading:      s.heading,
		PageNumbers:  pages,
		Content:      strings.Join(s.lines, "\n"),
		SectionIndex: index,
	}
}

// SplitSections splits page-marked markdown into heading-delimited sections.
//
// Lines are kept verbatim, so joining every section's content with newlines
// gives back the input lines in order. Page-start markers and blank lines
// directly before a heading move with that heading, which keeps a page's
// number on the section that actually starts on it. Text before the first
// heading is kept as a "Document Start" section. Heading-like lines inside
// fenced code blocks do not split.
func SplitSections(markdown string) []models.Section {
	lines := splitLines(markdown)
	if len(lines) == 0 {
		return nil
	}

	var (
		sections []models.Section
		inCode   bool
		lastPage int
	)
	cur := newOpenSection(documentStartHeading)

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if m := pageStartPattern.FindStringSubmatch(trimmed); m != nil {
			// Pages are transcribed independently, so a fence never spans a page break.
			inCode = false
			page, _ := strconv.Atoi(m[1])
			lastPage = page
			cur.addMarker(line, page)
			continue
		}

		if strings.HasPrefix(trimmed, "```") {
			inCode = !inCode
			cur.addContent(line)
			continue
		}

		if !inCode && headingPattern.MatchString(trimmed) {
			carried, carriedPages := cur.detachLeading()
			if cur.substantive {
				sections = append(sections, cur.section(len(sections)))
			}

			next := newOpenSection(headingText(trimmed))
			next.lines = append(carried, line)
			next.substantive = true
			for _, p := range carriedPages {
				next.pages[p] = struct{}{}
			}
			if len(next.pages) == 0 && lastPage > 0 {
				next.pages[lastPage] = struct{}{}
			}
			cur = next
			continue
		}

		if trimmed == "" || pageEndPattern.MatchString(trimmed) {
			cur.addStructural(line)
			continue
		}
		cur.addContent(line)
	}

	cur.commitPending()
	if len(cur.lines) > 0 {
		sections = append(sections, cur.section(len(sections)))
	}
	return sections
}

func headingText(line string) string {
	return strings.TrimSpace(strings.TrimLeft(line, "# "))
}

// splitLines splits on newlines the way a line iterator would: CRLF is
// treated as LF and a trailing newline does not produce an empty last line.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
