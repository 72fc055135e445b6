// Package store holds one viewer's in-memory view of their household. The
// repository stays the source of truth; a State is a cache that reloads on
// demand and applies mutations in two phases.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"gagyebu/internal/core"
	"gagyebu/internal/repository"
)

var ErrForeignOwner = errors.New("owner is not a member of this household")

// Op names a confirmed mutation.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Change describes a confirmed mutation. Hooks receive it after the
// repository call succeeds and the state has been updated.
type Change struct {
	Kind   core.Kind
	Op     Op
	ID     string
	Viewer string
	Facts  core.Facts
}

type Hook func(ctx context.Context, c Change)

// State is a viewer's household cache. All collections share one lock so
// Records returns a consistent snapshot.
type State struct {
	mu       sync.RWMutex
	repo     repository.Repository
	viewer   core.User
	loadedAt time.Time
	pending  int
	seq      int64
	hook     Hook
	now      func() time.Time

	snapshots []core.InvestmentSnapshot

	Salaries       *Collection[core.Salary]
	FixedExpenses  *Collection[core.FixedExpense]
	LivingExpenses *Collection[core.LivingExpense]
	Allowances     *Collection[core.Allowance]
	Ledger         *Collection[core.LedgerTransaction]
	Savings        *Collection[core.Savings]
	Investments    *Collection[core.Investment]
	Goals          *Collection[core.Goal]
}

type Option func(*State)

// WithHook registers a callback for confirmed mutations.
func WithHook(h Hook) Option {
	return func(s *State) { s.hook = h }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *State) { s.now = now }
}

// New creates an empty State. Call Load before reading.
func New(repo repository.Repository, viewer core.User, opts ...Option) *State {
	s := &State{repo: repo, viewer: viewer, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.Salaries = newCollection(s, core.KindSalary, repo.Salaries())
	s.FixedExpenses = newCollection(s, core.KindFixedExpense, repo.FixedExpenses())
	s.LivingExpenses = newCollection(s, core.KindLivingExpense, repo.LivingExpenses())
	s.Allowances = newCollection(s, core.KindAllowance, repo.Allowances())
	s.Ledger = newCollection(s, core.KindLedger, repo.Ledger())
	s.Savings = newCollection(s, core.KindSavings, repo.Savings())
	s.Investments = newCollection(s, core.KindInvestment, repo.Investments())
	s.Goals = newCollection(s, core.KindGoal, repo.Goals())
	return s
}

// Load fetches every collection for the viewer's household in parallel and
// replaces the cached contents. On error the previous contents stay.
func (s *State) Load(ctx context.Context) error {
	s.mu.RLock()
	household := s.viewer.Household()
	s.mu.RUnlock()

	var (
		salaries  []core.Salary
		fixed     []core.FixedExpense
		living    []core.LivingExpense
		allowance []core.Allowance
		ledger    []core.LedgerTransaction
		savings   []core.Savings
		invest    []core.Investment
		goals     []core.Goal
		snapshots []core.InvestmentSnapshot
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { salaries, err = s.repo.Salaries().List(gctx, household); return })
	g.Go(func() (err error) { fixed, err = s.repo.FixedExpenses().List(gctx, household); return })
	g.Go(func() (err error) { living, err = s.repo.LivingExpenses().List(gctx, household); return })
	g.Go(func() (err error) { allowance, err = s.repo.Allowances().List(gctx, household); return })
	g.Go(func() (err error) { ledger, err = s.repo.Ledger().List(gctx, household); return })
	g.Go(func() (err error) { savings, err = s.repo.Savings().List(gctx, household); return })
	g.Go(func() (err error) { invest, err = s.repo.Investments().List(gctx, household); return })
	g.Go(func() (err error) { goals, err = s.repo.Goals().List(gctx, household); return })
	g.Go(func() (err error) { snapshots, err = s.repo.Snapshots().List(gctx, household); return })
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load household state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.Salaries.items = salaries
	s.FixedExpenses.items = fixed
	s.LivingExpenses.items = living
	s.Allowances.items = allowance
	s.Ledger.items = ledger
	s.Savings.items = savings
	s.Investments.items = invest
	s.Goals.items = goals
	s.snapshots = snapshots
	s.loadedAt = s.now()
	return nil
}

func (s *State) Viewer() core.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewer
}

// LoadedAt reports when the last successful Load finished.
func (s *State) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}

// Pending reports how many mutations are staged but not yet settled.
func (s *State) Pending() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending
}

// Records copies every collection for aggregation.
func (s *State) Records() core.Records {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return core.Records{
		Salaries:       slices.Clone(s.Salaries.items),
		FixedExpenses:  slices.Clone(s.FixedExpenses.items),
		LivingExpenses: slices.Clone(s.LivingExpenses.items),
		Allowances:     slices.Clone(s.Allowances.items),
		Ledger:         slices.Clone(s.Ledger.items),
		Savings:        slices.Clone(s.Savings.items),
		Investments:    slices.Clone(s.Investments.items),
		Goals:          slices.Clone(s.Goals.items),
	}
}

func (s *State) Snapshots() []core.InvestmentSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.snapshots)
}

// PutSnapshot records a snapshot saved elsewhere, replacing any entry for
// the same user and date.
func (s *State) PutSnapshot(snap core.InvestmentSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.snapshots {
		if existing.UserID == snap.UserID && existing.Date.Equal(snap.Date.Time) {
			s.snapshots[i] = snap
			return
		}
	}
	s.snapshots = append(s.snapshots, snap)
	slices.SortStableFunc(s.snapshots, func(a, b core.InvestmentSnapshot) int {
		return a.Date.Compare(b.Date.Time)
	})
}

// checkOwner rejects records attributed to someone outside the household.
// Caller holds at least a read lock.
func (s *State) checkOwner(rec any) error {
	owned, ok := rec.(core.Owned)
	if !ok {
		return nil
	}
	owner := owned.OwnerID()
	if owner == "" || slices.Contains(s.viewer.Household(), owner) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrForeignOwner, owner)
}

func (s *State) notify(ctx context.Context, c Change) {
	if s.hook != nil {
		s.hook(ctx, c)
	}
}
