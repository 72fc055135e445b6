// Package memory is an in-process stand-in for the spreadsheet, used when
// no spreadsheet is configured and in tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"gagyebu/internal/core"
	"gagyebu/internal/sheets"
)

var (
	_ sheets.SummaryWriter = (*Store)(nil)
	_ sheets.SummaryLister = (*Store)(nil)
)

type Store struct {
	mu   sync.Mutex
	rows []sheets.SummaryRow
}

func New() *Store { return &Store{} }

// UpsertSummary replaces a matching row in place or appends a new one. The
// reference mimics the spreadsheet's 1-based rows, below the header.
func (s *Store) UpsertSummary(_ context.Context, row sheets.SummaryRow) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.rows {
		if existing.Month == row.Month && existing.Household == row.Household {
			s.rows[i] = row
			return fmt.Sprintf("mem:%d", i+2), nil
		}
	}
	s.rows = append(s.rows, row)
	return fmt.Sprintf("mem:%d", len(s.rows)+1), nil
}

func (s *Store) ListSummaries(_ context.Context, month core.Month) ([]sheets.SummaryRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sheets.SummaryRow
	for _, r := range s.rows {
		if r.Month == month {
			out = append(out, r)
		}
	}
	return out, nil
}

// Len reports how many rows are stored.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}
