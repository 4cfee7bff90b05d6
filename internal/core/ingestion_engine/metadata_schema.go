package ingestion_engine

import (
	"github.com/markdave123-py/fincontexta/internal/core"
	"github.com/markdave123-py/fincontexta/internal/models"
)

const metadataPrompt = `You are an expert financial document analyst.
Analyze the provided text, which is the beginning of a financial document.
Extract the structured metadata requested by the response schema, based only on the text.

- doc_specific_type: the type of financial document, chosen from the allowed list.
- company_name: the primary company the document is about.
- report_date: the most relevant date, formatted YYYY-MM-DD.
- doc_year: the primary fiscal year.
- doc_quarter: the primary fiscal quarter (1-4), or -1 when the document is not quarterly.
- doc_summary: a one or two sentence summary.
- total_revenue, total_expenses, net_income, currency, period_start_date, period_end_date:
  only for income statements, when the figures are stated in the text.

If a value is genuinely not present, use null (or -1 for doc_year and doc_quarter).
%s
---TEXT_START---
%s
---TEXT_END---`

const incomePrompt = `You are an expert financial analyst reading an income statement.
From the text below, extract only these values when they are stated or can be computed from stated figures:
total revenue, total expenses, net income, the 3-letter ISO currency code, and the reporting period start
and end dates formatted YYYY-MM-DD. Use null for anything that is not in the text.

---TEXT_START---
%s
---TEXT_END---`

func nullable(t core.SchemaType, desc string) *core.Schema {
	return &core.Schema{Type: t, Description: desc, Nullable: true}
}

func dateField(desc string) *core.Schema {
	return &core.Schema{Type: core.TypeString, Format: "date", Description: desc, Nullable: true}
}

func incomeProperties() map[string]*core.Schema {
	return map[string]*core.Schema{
		"total_revenue":     nullable(core.TypeNumber, "Total revenue for the period."),
		"total_expenses":    nullable(core.TypeNumber, "Total expenses for the period."),
		"net_income":        nullable(core.TypeNumber, "Net income (profit or loss) for the period."),
		"currency":          nullable(core.TypeString, "3-letter ISO currency code of the figures."),
		"period_start_date": dateField("Start of the reporting period, YYYY-MM-DD."),
		"period_end_date":   dateField("End of the reporting period, YYYY-MM-DD."),
	}
}

// metadataSchema is the response schema for the primary extraction call.
func metadataSchema() *core.Schema {
	types := make([]string, len(models.DocSpecificTypes))
	for i, t := range models.DocSpecificTypes {
		types[i] = string(t)
	}

	props := incomeProperties()
	props["doc_specific_type"] = &core.Schema{Type: core.TypeString, Enum: types,
		Description: "Specific type of financial document."}
	props["company_name"] = nullable(core.TypeString, "Primary company name.")
	props["report_date"] = dateField("Primary reporting date, YYYY-MM-DD.")
	props["doc_year"] = &core.Schema{Type: core.TypeInteger, Description: "Primary fiscal year, -1 if unknown."}
	props["doc_quarter"] = &core.Schema{Type: core.TypeInteger, Description: "Primary fiscal quarter 1-4, -1 if not quarterly."}
	props["doc_summary"] = nullable(core.TypeString, "Brief summary of the document.")

	return &core.Schema{
		Type:       core.TypeObject,
		Properties: props,
		Required:   []string{"doc_specific_type", "doc_year", "doc_quarter"},
	}
}

// incomeSchema is the response schema for the narrower income statement call.
func incomeSchema() *core.Schema {
	return &core.Schema{Type: core.TypeObject, Properties: incomeProperties()}
}

// incomeFigures is the decoded answer of the income statement call.
type incomeFigures struct {
	TotalRevenue    *float64 `json:"total_revenue"`
	TotalExpenses   *float64 `json:"total_expenses"`
	NetIncome       *float64 `json:"net_income"`
	Currency        *string  `json:"currency"`
	PeriodStartDate *string  `json:"period_start_date"`
	PeriodEndDate   *string  `json:"period_end_date"`
}

// fillMissing copies figures into m without overwriting values already set.
func (f *incomeFigures) fillMissing(m *models.DocumentMetadata) {
	if m.TotalRevenue == nil {
		m.TotalRevenue = f.TotalRevenue
	}
	if m.TotalExpenses == nil {
		m.TotalExpenses = f.TotalExpenses
	}
	if m.NetIncome == nil {
		m.NetIncome = f.NetIncome
	}
	if m.Currency == nil {
		m.Currency = f.Currency
	}
	if m.PeriodStartDate == nil {
		m.PeriodStartDate = f.PeriodStartDate
	}
	if m.PeriodEndDate == nil {
		m.PeriodEndDate = f.PeriodEndDate
	}
}
