package ingestion_engine

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/markdave123-py/fincontexta/internal/models"
)

// typeKeywords is checked in order; the first keyword found wins, so the
// more specific statements come before the generic report kinds.
var typeKeywords = []struct {
	keyword string
	docType models.DocSpecificType
}{
	{"balance sheet", models.DocBalanceSheet},
	{"statement of financial position", models.DocBalanceSheet},
	{"income statement", models.DocIncomeStatement},
	{"profit and loss", models.DocIncomeStatement},
	{"statement of operations", models.DocIncomeStatement},
	{"cash flow", models.DocCashFlowStatement},
	{"statement of equity", models.DocStatementOfEquity},
	{"changes in equity", models.DocStatementOfEquity},
	{"audit report", models.DocAuditReport},
	{"independent auditor", models.DocAuditReport},
	{"tax return", models.DocTaxFiling},
	{"tax filing", models.DocTaxFiling},
	{"annual report", models.DocAnnualReport},
	{"form 10-k", models.DocAnnualReport},
	{"quarterly report", models.DocQuarterlyReport},
	{"form 10-q", models.DocQuarterlyReport},
	{"monthly report", models.DocMonthlyReport},
	{"invoice", models.DocInvoice},
	{"receipt", models.DocReceipt},
	{"budget", models.DocBudget},
	{"forecast", models.DocForecast},
}

var (
	isoDatePattern  = regexp.MustCompile(`\b((?:19|20)\d{2})-(0[1-9]|1[0-2])-(0[1-9]|[12]\d|3[01])\b`)
	longDatePattern = regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December)\s+(\d{1,2}),\s*((?:19|20)\d{2})\b`)
	yearPattern     = regexp.MustCompile(`\b(19[5-9]\d|20\d{2})\b`)
	quarterPattern  = regexp.MustCompile(`(?i)\b(?:Q([1-4])\b|([1-4])(?:st|nd|rd|th)\s+quarter|(first|second|third|fourth)\s+quarter)`)
)

var quarterWords = map[string]int{"first": 1, "second": 2, "third": 3, "fourth": 4}

// HeuristicMetadataStrategy guesses metadata locally from keywords and dates.
// It never fails and never calls out.
type HeuristicMetadataStrategy struct{}

func (HeuristicMetadataStrategy) Name() string { return "heuristic" }

func (HeuristicMetadataStrategy) Extract(_ context.Context, snippet string, typeHint models.DocSpecificType) (*models.DocumentMetadata, error) {
	return guessMetadata(snippet, typeHint), nil
}

func guessMetadata(snippet string, typeHint models.DocSpecificType) *models.DocumentMetadata {
	meta := &models.DocumentMetadata{DocSpecificType: guessType(snippet, typeHint)}

	if date := findDate(snippet); date != "" {
		meta.ReportDate = &date
	}
	if year := maxYear(snippet); year > 0 {
		meta.DocYear = &year
	} else if meta.ReportDate != nil {
		year, _ := strconv.Atoi((*meta.ReportDate)[:4])
		meta.DocYear = &year
	}
	if q := findQuarter(snippet); q > 0 {
		meta.DocQuarter = &q
	}
	return meta
}

func guessType(snippet string, typeHint models.DocSpecificType) models.DocSpecificType {
	lower := strings.ToLower(snippet)
	for _, k := range typeKeywords {
		if strings.Contains(lower, k.keyword) {
			return k.docType
		}
	}
	if typeHint != "" {
		return models.ParseDocSpecificType(string(typeHint))
	}
	return models.DocUnknown
}

// findDate returns the first ISO or long-form date in the text as YYYY-MM-DD.
func findDate(text string) string {
	if m := isoDatePattern.FindString(text); m != "" {
		return m
	}
	m := longDatePattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	t, err := time.Parse("January 2, 2006", m[1]+" "+m[2]+", "+m[3])
	if err != nil {
		return ""
	}
	return t.Format("2006-01-02")
}

// maxYear picks the latest plausible year mentioned; reports usually compare
// the current period against earlier ones.
func maxYear(text string) int {
	best := 0
	for _, m := range yearPattern.FindAllString(text, -1) {
		if y, _ := strconv.Atoi(m); y > best && y <= time.Now().Year()+1 {
			best = y
		}
	}
	return best
}

func findQuarter(text string) int {
	m := quarterPattern.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	for _, g := range m[1:3] {
		if g != "" {
			q, _ := strconv.Atoi(g)
			return q
		}
	}
	return quarterWords[strings.ToLower(m[3])]
}
