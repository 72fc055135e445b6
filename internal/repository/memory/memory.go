// Package memory is an in-process repository.Repository used by tests and
// by DATA_BACKEND=memory.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"gagyebu/internal/core"
	"gagyebu/internal/repository"
)

var _ repository.Repository = (*Store)(nil)

// Store keeps everything in maps. Users and invitations share one mutex so
// linking and unlinking stay atomic.
type Store struct {
	mu          sync.Mutex
	accounts    map[string]core.Account
	users       map[string]core.User
	invitations map[string]core.Invitation
	snapshots   map[string]core.InvestmentSnapshot
	connections map[string]core.BrokerConnection

	salaries    *collection[core.Salary]
	fixed       *collection[core.FixedExpense]
	living      *collection[core.LivingExpense]
	allowances  *collection[core.Allowance]
	ledger      *collection[core.LedgerTransaction]
	savings     *collection[core.Savings]
	investments *collection[core.Investment]
	goals       *collection[core.Goal]

	now func() time.Time
}

func New() *Store {
	s := &Store{
		accounts:    map[string]core.Account{},
		users:       map[string]core.User{},
		invitations: map[string]core.Invitation{},
		snapshots:   map[string]core.InvestmentSnapshot{},
		connections: map[string]core.BrokerConnection{},
		now:         time.Now,
	}
	s.salaries = newCollection[core.Salary](s.clock)
	s.fixed = newCollection[core.FixedExpense](s.clock)
	s.living = newCollection[core.LivingExpense](s.clock)
	s.allowances = newCollection[core.Allowance](s.clock)
	s.ledger = newCollection[core.LedgerTransaction](s.clock)
	s.savings = newCollection[core.Savings](s.clock)
	s.investments = newCollection[core.Investment](s.clock)
	s.goals = newCollection[core.Goal](s.clock)
	return s
}

// SetClock replaces the time source used for creation timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) clock() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now().UTC()
}

func (s *Store) Accounts() repository.Accounts       { return accounts{s} }
func (s *Store) Users() repository.Users             { return users{s} }
func (s *Store) Invitations() repository.Invitations { return invitations{s} }
func (s *Store) Snapshots() repository.Snapshots     { return snapshots{s} }
func (s *Store) Connections() repository.Connections { return connections{s} }

func (s *Store) Salaries() repository.Collection[core.Salary]              { return s.salaries }
func (s *Store) FixedExpenses() repository.Collection[core.FixedExpense]   { return s.fixed }
func (s *Store) LivingExpenses() repository.Collection[core.LivingExpense] { return s.living }
func (s *Store) Allowances() repository.Collection[core.Allowance]         { return s.allowances }
func (s *Store) Ledger() repository.Collection[core.LedgerTransaction]     { return s.ledger }
func (s *Store) Savings() repository.Collection[core.Savings]              { return s.savings }
func (s *Store) Investments() repository.Collection[core.Investment]       { return s.investments }
func (s *Store) Goals() repository.Collection[core.Goal]                   { return s.goals }

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }
func (s *Store) Close() error                   { return nil }

type collection[T core.Record[T]] struct {
	mu    sync.Mutex
	items map[string]T
	now   func() time.Time
}

func newCollection[T core.Record[T]](now func() time.Time) *collection[T] {
	return &collection[T]{items: map[string]T{}, now: now}
}

func (c *collection[T]) List(ctx context.Context, owners []string) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]T, 0, len(c.items))
	for _, rec := range c.items {
		if slices.Contains(owners, rec.Base().CreatedBy) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Base(), out[j].Base()
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return out, nil
}

func (c *collection[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.items[id]
	if !ok {
		return zero, repository.ErrNotFound
	}
	return rec, nil
}

func (c *collection[T]) Create(ctx context.Context, rec T) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	meta := rec.Base()
	if meta.ID == "" {
		meta.ID = uuid.New().String()
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = c.now()
	}
	rec = rec.WithMeta(meta)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[meta.ID]; exists {
		return zero, repository.ErrConflict
	}
	c.items[meta.ID] = rec
	return rec, nil
}

func (c *collection[T]) Update(ctx context.Context, rec T) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	old, ok := c.items[rec.Base().ID]
	if !ok {
		return zero, repository.ErrNotFound
	}
	// id, creator and creation time are immutable
	rec = rec.WithMeta(old.Base())
	c.items[rec.Base().ID] = rec
	return rec, nil
}

func (c *collection[T]) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[id]; !ok {
		return repository.ErrNotFound
	}
	delete(c.items, id)
	return nil
}
