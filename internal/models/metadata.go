package models

import "strings"

// DocSpecificType classifies a financial document.
type DocSpecificType string

const (
	DocBalanceSheet      DocSpecificType = "Balance Sheet"
	DocIncomeStatement   DocSpecificType = "Income Statement"
	DocCashFlowStatement DocSpecificType = "Cash Flow Statement"
	DocStatementOfEquity DocSpecificType = "Statement of Equity"
	DocAnnualReport      DocSpecificType = "Annual Report"
	DocQuarterlyReport   DocSpecificType = "Quarterly Report"
	DocMonthlyReport     DocSpecificType = "Monthly Report"
	DocInvoice           DocSpecificType = "Invoice"
	DocReceipt           DocSpecificType = "Receipt"
	DocBudget            DocSpecificType = "Budget"
	DocForecast          DocSpecificType = "Forecast"
	DocTaxFiling         DocSpecificType = "Tax Filing"
	DocAuditReport       DocSpecificType = "Audit Report"
	DocGeneralReport     DocSpecificType = "General Report"
	DocStatement         DocSpecificType = "Statement"
	DocOther             DocSpecificType = "Other"
	DocUnknown           DocSpecificType = "Unknown"
)

// DocSpecificTypes lists every classification in a stable order.
var DocSpecificTypes = []DocSpecificType{
	DocBalanceSheet, DocIncomeStatement, DocCashFlowStatement, DocStatementOfEquity,
	DocAnnualReport, DocQuarterlyReport, DocMonthlyReport, DocInvoice, DocReceipt,
	DocBudget, DocForecast, DocTaxFiling, DocAuditReport, DocGeneralReport,
	DocStatement, DocOther, DocUnknown,
}

// ParseDocSpecificType maps free text onto a known type, defaulting to Unknown.
func ParseDocSpecificType(s string) DocSpecificType {
	for _, t := range DocSpecificTypes {
		if string(t) == s {
			return t
		}
	}
	return DocUnknown
}

// DocumentMetadata is the structured result of metadata extraction.
// Unknown values stay nil rather than carrying sentinels.
type DocumentMetadata struct {
	DocSpecificType DocSpecificType `json:"doc_specific_type"`
	CompanyName     *string         `json:"company_name,omitempty"`
	ReportDate      *string         `json:"report_date,omitempty"` // YYYY-MM-DD
	DocYear         *int            `json:"doc_year,omitempty"`
	DocQuarter      *int            `json:"doc_quarter,omitempty"`
	DocSummary      *string         `json:"doc_summary,omitempty"`

	TotalRevenue    *float64 `json:"total_revenue,omitempty"`
	TotalExpenses   *float64 `json:"total_expenses,omitempty"`
	NetIncome       *float64 `json:"net_income,omitempty"`
	Currency        *string  `json:"currency,omitempty"`
	PeriodStartDate *string  `json:"period_start_date,omitempty"`
	PeriodEndDate   *string  `json:"period_end_date,omitempty"`
}

// MissingIncomeFigures reports whether any field required for an income
// statement summary is still unknown.
func (m *DocumentMetadata) MissingIncomeFigures() bool {
	return m.TotalRevenue == nil || m.TotalExpenses == nil || m.NetIncome == nil || m.PeriodEndDate == nil
}

// IncomeStatementSummary returns the summary row for the metadata, or nil
// when any required figure is missing.
func (m *DocumentMetadata) IncomeStatementSummary(documentID, userID string) *IncomeStatementSummary {
	if m.MissingIncomeFigures() {
		return nil
	}
	return &IncomeStatementSummary{
		DocumentID:      documentID,
		UserID:          userID,
		TotalRevenue:    *m.TotalRevenue,
		TotalExpenses:   *m.TotalExpenses,
		NetIncome:       *m.NetIncome,
		Currency:        m.Currency,
		PeriodStartDate: m.PeriodStartDate,
		PeriodEndDate:   *m.PeriodEndDate,
	}
}

const placeholderDate = "1900-01-01"

// Normalize replaces the placeholder values models tend to emit for unknown
// fields (-1, "", "1900-01-01") with nil and drops out of range quarters.
func (m *DocumentMetadata) Normalize() {
	m.DocSpecificType = ParseDocSpecificType(string(m.DocSpecificType))
	m.CompanyName = nonEmpty(m.CompanyName)
	m.DocSummary = nonEmpty(m.DocSummary)
	m.Currency = nonEmpty(m.Currency)
	m.ReportDate = realDate(m.ReportDate)
	m.PeriodStartDate = realDate(m.PeriodStartDate)
	m.PeriodEndDate = realDate(m.PeriodEndDate)
	if m.DocYear != nil && *m.DocYear <= 0 {
		m.DocYear = nil
	}
	if m.DocQuarter != nil && (*m.DocQuarter < 1 || *m.DocQuarter > 4) {
		m.DocQuarter = nil
	}
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func realDate(s *string) *string {
	s = nonEmpty(s)
	if s == nil || *s == placeholderDate {
		return nil
	}
	return s
}
