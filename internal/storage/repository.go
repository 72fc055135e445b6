package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gagyebu/internal/core"
	"gagyebu/internal/repository"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var _ repository.Repository = (*SQLiteRepository)(nil)

// SQLiteRepository implements repository.Repository on a single SQLite
// file. Writes that span rows run in one transaction.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time

	salaries    *table[core.Salary]
	fixed       *table[core.FixedExpense]
	living      *table[core.LivingExpense]
	allowances  *table[core.Allowance]
	ledger      *table[core.LedgerTransaction]
	savings     *table[core.Savings]
	investments *table[core.Investment]
	goals       *table[core.Goal]
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Migrations run on their own connection before the pool opens.
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &SQLiteRepository{db: db, now: time.Now}
	r.salaries = newTable(r, salaryCodec)
	r.fixed = newTable(r, fixedExpenseCodec)
	r.living = newTable(r, livingExpenseCodec)
	r.allowances = newTable(r, allowanceCodec)
	r.ledger = newTable(r, ledgerCodec)
	r.savings = newTable(r, savingsCodec)
	r.investments = newTable(r, investmentCodec)
	r.goals = newTable(r, goalCodec)

	slog.Info("SQLite repository ready", "path", dbPath)
	return r, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Accounts() repository.Accounts       { return accountStore{r} }
func (r *SQLiteRepository) Users() repository.Users             { return userStore{r} }
func (r *SQLiteRepository) Invitations() repository.Invitations { return invitationStore{r} }
func (r *SQLiteRepository) Snapshots() repository.Snapshots     { return snapshotStore{r} }
func (r *SQLiteRepository) Connections() repository.Connections { return connectionStore{r} }

func (r *SQLiteRepository) Salaries() repository.Collection[core.Salary] { return r.salaries }
func (r *SQLiteRepository) FixedExpenses() repository.Collection[core.FixedExpense] {
	return r.fixed
}
func (r *SQLiteRepository) LivingExpenses() repository.Collection[core.LivingExpense] {
	return r.living
}
func (r *SQLiteRepository) Allowances() repository.Collection[core.Allowance] { return r.allowances }
func (r *SQLiteRepository) Ledger() repository.Collection[core.LedgerTransaction] {
	return r.ledger
}
func (r *SQLiteRepository) Savings() repository.Collection[core.Savings]       { return r.savings }
func (r *SQLiteRepository) Investments() repository.Collection[core.Investment] { return r.investments }
func (r *SQLiteRepository) Goals() repository.Collection[core.Goal]             { return r.goals }

// withTx runs fn inside a transaction, committing only when fn succeeds.
func (r *SQLiteRepository) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseDate(s string) (core.Date, error) {
	if s == "" {
		return core.Date{}, nil
	}
	return core.ParseDate(s)
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
