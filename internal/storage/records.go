package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"gagyebu/internal/core"
	"gagyebu/internal/repository"
)

// codec maps one record kind onto its table. Every table starts with the
// id, created_by, created_at header followed by columns.
type codec[T core.Record[T]] struct {
	table   string
	columns []string
	values  func(T) []any
	decode  func(sc scanner) (T, error)
}

type table[T core.Record[T]] struct {
	repo  *SQLiteRepository
	codec codec[T]

	selectSQL string
	insertSQL string
	updateSQL string
}

func newTable[T core.Record[T]](repo *SQLiteRepository, c codec[T]) *table[T] {
	all := append([]string{"id", "created_by", "created_at"}, c.columns...)
	sets := make([]string, len(c.columns))
	for i, col := range c.columns {
		sets[i] = col + " = ?"
	}
	return &table[T]{
		repo:      repo,
		codec:     c,
		selectSQL: fmt.Sprintf("SELECT %s FROM %s", strings.Join(all, ", "), c.table),
		insertSQL: fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			c.table, strings.Join(all, ", "), placeholders(len(all))),
		updateSQL: fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", c.table, strings.Join(sets, ", ")),
	}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func (t *table[T]) List(ctx context.Context, owners []string) ([]T, error) {
	if len(owners) == 0 {
		return nil, nil
	}
	args := make([]any, len(owners))
	for i, o := range owners {
		args[i] = o
	}
	query := fmt.Sprintf("%s WHERE created_by IN (%s) ORDER BY created_at, id",
		t.selectSQL, placeholders(len(owners)))

	rows, err := t.repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", t.codec.table, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		rec, err := t.codec.decode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.codec.table, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", t.codec.table, err)
	}
	return out, nil
}

func (t *table[T]) Get(ctx context.Context, id string) (T, error) {
	row := t.repo.db.QueryRowContext(ctx, t.selectSQL+" WHERE id = ?", id)
	rec, err := t.codec.decode(row)
	if err != nil {
		var zero T
		return zero, notFound(err)
	}
	return rec, nil
}

func (t *table[T]) Create(ctx context.Context, rec T) (T, error) {
	var zero T
	meta := rec.Base()
	if meta.ID == "" {
		meta.ID = uuid.New().String()
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = t.repo.now().UTC()
	}
	rec = rec.WithMeta(meta)

	args := append([]any{meta.ID, meta.CreatedBy, formatTime(meta.CreatedAt)}, t.codec.values(rec)...)
	if _, err := t.repo.db.ExecContext(ctx, t.insertSQL, args...); err != nil {
		if isUniqueViolation(err) {
			return zero, repository.ErrConflict
		}
		return zero, fmt.Errorf("insert %s: %w", t.codec.table, err)
	}
	return rec, nil
}

func (t *table[T]) Update(ctx context.Context, rec T) (T, error) {
	var zero T
	id := rec.Base().ID
	args := append(t.codec.values(rec), id)
	res, err := t.repo.db.ExecContext(ctx, t.updateSQL, args...)
	if err != nil {
		return zero, fmt.Errorf("update %s: %w", t.codec.table, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return zero, repository.ErrNotFound
	}
	return t.Get(ctx, id)
}

func (t *table[T]) Delete(ctx context.Context, id string) error {
	res, err := t.repo.db.ExecContext(ctx, "DELETE FROM "+t.codec.table+" WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", t.codec.table, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// header holds the text-encoded meta columns until they are parsed.
type header struct {
	meta      core.Meta
	createdAt string
}

func (h *header) dest() []any {
	return []any{&h.meta.ID, &h.meta.CreatedBy, &h.createdAt}
}

func (h *header) parse() (core.Meta, error) {
	t, err := parseTime(h.createdAt)
	h.meta.CreatedAt = t
	return h.meta, err
}

var salaryCodec = codec[core.Salary]{
	table:   "salaries",
	columns: []string{"user_id", "amount", "date", "memo"},
	values: func(s core.Salary) []any {
		return []any{s.UserID, s.Amount.Won, s.Date.String(), s.Memo}
	},
	decode: func(sc scanner) (core.Salary, error) {
		var (
			h    header
			s    core.Salary
			date string
		)
		if err := sc.Scan(append(h.dest(), &s.UserID, &s.Amount.Won, &date, &s.Memo)...); err != nil {
			return s, err
		}
		meta, err1 := h.parse()
		d, err2 := parseDate(date)
		s.Meta, s.Date = meta, d
		return s, errors.Join(err1, err2)
	},
}

var fixedExpenseCodec = codec[core.FixedExpense]{
	table:   "fixed_expenses",
	columns: []string{"user_id", "name", "amount", "day_of_month", "memo"},
	values: func(f core.FixedExpense) []any {
		return []any{f.UserID, f.Name, f.Amount.Won, f.DayOfMonth, f.Memo}
	},
	decode: func(sc scanner) (core.FixedExpense, error) {
		var (
			h header
			f core.FixedExpense
		)
		if err := sc.Scan(append(h.dest(), &f.UserID, &f.Name, &f.Amount.Won, &f.DayOfMonth, &f.Memo)...); err != nil {
			return f, err
		}
		meta, err := h.parse()
		f.Meta = meta
		return f, err
	},
}

var livingExpenseCodec = codec[core.LivingExpense]{
	table:   "living_expenses",
	columns: []string{"amount", "date", "category", "memo"},
	values: func(l core.LivingExpense) []any {
		return []any{l.Amount.Won, l.Date.String(), l.Category, l.Memo}
	},
	decode: func(sc scanner) (core.LivingExpense, error) {
		var (
			h    header
			l    core.LivingExpense
			date string
		)
		if err := sc.Scan(append(h.dest(), &l.Amount.Won, &date, &l.Category, &l.Memo)...); err != nil {
			return l, err
		}
		meta, err1 := h.parse()
		d, err2 := parseDate(date)
		l.Meta, l.Date = meta, d
		return l, errors.Join(err1, err2)
	},
}

var allowanceCodec = codec[core.Allowance]{
	table:   "allowances",
	columns: []string{"user_id", "amount", "date", "memo"},
	values: func(a core.Allowance) []any {
		return []any{a.UserID, a.Amount.Won, a.Date.String(), a.Memo}
	},
	decode: func(sc scanner) (core.Allowance, error) {
		var (
			h    header
			a    core.Allowance
			date string
		)
		if err := sc.Scan(append(h.dest(), &a.UserID, &a.Amount.Won, &date, &a.Memo)...); err != nil {
			return a, err
		}
		meta, err1 := h.parse()
		d, err2 := parseDate(date)
		a.Meta, a.Date = meta, d
		return a, errors.Join(err1, err2)
	},
}

var ledgerCodec = codec[core.LedgerTransaction]{
	table:   "ledger_transactions",
	columns: []string{"type", "amount", "date", "category", "memo", "user_id"},
	values: func(t core.LedgerTransaction) []any {
		return []any{string(t.Type), t.Amount.Won, t.Date.String(), t.Category, t.Memo, t.UserID}
	},
	decode: func(sc scanner) (core.LedgerTransaction, error) {
		var (
			h    header
			t    core.LedgerTransaction
			typ  string
			date string
		)
		if err := sc.Scan(append(h.dest(), &typ, &t.Amount.Won, &date, &t.Category, &t.Memo, &t.UserID)...); err != nil {
			return t, err
		}
		meta, err1 := h.parse()
		d, err2 := parseDate(date)
		t.Meta, t.Date, t.Type = meta, d, core.LedgerType(typ)
		return t, errors.Join(err1, err2)
	},
}

var savingsCodec = codec[core.Savings]{
	table:   "savings",
	columns: []string{"type", "amount", "date", "memo"},
	values: func(s core.Savings) []any {
		return []any{string(s.Type), s.Amount.Won, s.Date.String(), s.Memo}
	},
	decode: func(sc scanner) (core.Savings, error) {
		var (
			h    header
			s    core.Savings
			typ  string
			date string
		)
		if err := sc.Scan(append(h.dest(), &typ, &s.Amount.Won, &date, &s.Memo)...); err != nil {
			return s, err
		}
		meta, err1 := h.parse()
		d, err2 := parseDate(date)
		s.Meta, s.Date, s.Type = meta, d, core.SavingsType(typ)
		return s, errors.Join(err1, err2)
	},
}

var investmentCodec = codec[core.Investment]{
	table:   "investments",
	columns: []string{"name", "type", "amount", "date", "current_value", "memo"},
	values: func(i core.Investment) []any {
		var current sql.NullInt64
		if i.CurrentValue != nil {
			current = sql.NullInt64{Int64: i.CurrentValue.Won, Valid: true}
		}
		return []any{i.Name, i.Type, i.Amount.Won, i.Date.String(), current, i.Memo}
	},
	decode: func(sc scanner) (core.Investment, error) {
		var (
			h       header
			i       core.Investment
			date    string
			current sql.NullInt64
		)
		if err := sc.Scan(append(h.dest(), &i.Name, &i.Type, &i.Amount.Won, &date, &current, &i.Memo)...); err != nil {
			return i, err
		}
		meta, err1 := h.parse()
		d, err2 := parseDate(date)
		i.Meta, i.Date = meta, d
		if current.Valid {
			i.CurrentValue = &core.Money{Won: current.Int64}
		}
		return i, errors.Join(err1, err2)
	},
}

var goalCodec = codec[core.Goal]{
	table:   "goals",
	columns: []string{"title", "target_amount", "current_amount", "deadline", "memo"},
	values: func(g core.Goal) []any {
		return []any{g.Title, g.TargetAmount.Won, g.CurrentAmount.Won, g.Deadline.String(), g.Memo}
	},
	decode: func(sc scanner) (core.Goal, error) {
		var (
			h        header
			g        core.Goal
			deadline string
		)
		if err := sc.Scan(append(h.dest(), &g.Title, &g.TargetAmount.Won, &g.CurrentAmount.Won, &deadline, &g.Memo)...); err != nil {
			return g, err
		}
		meta, err1 := h.parse()
		d, err2 := parseDate(deadline)
		g.Meta, g.Deadline = meta, d
		return g, errors.Join(err1, err2)
	},
}
