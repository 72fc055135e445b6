// Package sheets defines the spreadsheet export ports and the row layout of
// the monthly summary sheet.
package sheets

import (
	"context"
	"time"

	"gagyebu/internal/core"
)

// Header is the first row of the summary sheet. Columns A and B identify a
// row; the rest are overwritten on every export.
var Header = []string{
	"Month", "Household", "Income", "Expense", "Cash", "Savings", "Investment", "Total assets", "Updated at",
}

// SummaryRow is one (household, month) line of the export.
type SummaryRow struct {
	Month       core.Month
	Household   string
	Income      core.Money
	Expense     core.Money
	Cash        core.Money
	Savings     core.Money
	Investment  core.Money
	TotalAssets core.Money
	UpdatedAt   time.Time
}

// RowFromSummary builds the export row for a computed month summary.
func RowFromSummary(household string, s core.MonthlySummary, at time.Time) SummaryRow {
	return SummaryRow{
		Month:       s.Month,
		Household:   household,
		Income:      s.Income,
		Expense:     s.Expense,
		Cash:        s.Cash,
		Savings:     s.Savings,
		Investment:  s.Investment,
		TotalAssets: s.TotalAssets,
		UpdatedAt:   at.UTC(),
	}
}

// Ports for outbound adapters.
type (
	// SummaryWriter inserts or replaces the row for (row.Month, row.Household)
	// and returns a reference to where it was written.
	SummaryWriter interface {
		UpsertSummary(ctx context.Context, row SummaryRow) (rowRef string, err error)
	}

	// SummaryLister reads back exported rows for a month.
	SummaryLister interface {
		ListSummaries(ctx context.Context, month core.Month) ([]SummaryRow, error)
	}
)
