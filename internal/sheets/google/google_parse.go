package google

import (
	"fmt"
	"strings"
	"time"

	"gagyebu/internal/core"
	ports "gagyebu/internal/sheets"
)

func headerValues() []any {
	out := make([]any, len(ports.Header))
	for i, h := range ports.Header {
		out[i] = h
	}
	return out
}

// rowValues lays a row out as columns A..I. Amounts are plain integers so
// the sheet can format them.
func rowValues(r ports.SummaryRow) []any {
	return []any{
		r.Month.String(),
		r.Household,
		r.Income.Won,
		r.Expense.Won,
		r.Cash.Won,
		r.Savings.Won,
		r.Investment.Won,
		r.TotalAssets.Won,
		r.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// findRow returns the 1-based sheet row holding (month, household), or 0.
// The first row is the header and never matches.
func findRow(values [][]any, month core.Month, household string) int {
	key := month.String()
	for i, row := range values {
		if i == 0 || len(row) < 2 {
			continue
		}
		if cell(row, 0) == key && cell(row, 1) == household {
			return i + 1
		}
	}
	return 0
}

func parseRow(row []any) (ports.SummaryRow, error) {
	if len(row) < 8 {
		return ports.SummaryRow{}, fmt.Errorf("expected at least 8 columns, got %d", len(row))
	}
	m, err := core.ParseMonth(cell(row, 0))
	if err != nil {
		return ports.SummaryRow{}, fmt.Errorf("month %q: %w", cell(row, 0), err)
	}
	out := ports.SummaryRow{Month: m, Household: cell(row, 1)}

	targets := []*core.Money{&out.Income, &out.Expense, &out.Cash, &out.Savings, &out.Investment, &out.TotalAssets}
	for i, dst := range targets {
		won, err := parseAmount(cell(row, i+2))
		if err != nil {
			return ports.SummaryRow{}, fmt.Errorf("column %c: %w", 'C'+rune(i), err)
		}
		*dst = core.Money{Won: won}
	}
	if ts := cell(row, 8); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			out.UpdatedAt = t
		}
	}
	return out, nil
}

// parseAmount accepts the formatted values the sheet may return, including
// grouping commas and negative cash balances.
func parseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	won, err := core.ParseWon(strings.TrimPrefix(s, "-"))
	if err != nil {
		return 0, err
	}
	if neg {
		won = -won
	}
	return won, nil
}

func cell(row []any, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(row[i]))
}
