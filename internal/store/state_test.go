package store

import (
	"context"
	"errors"
	"testing"

	"gagyebu/internal/core"
	"gagyebu/internal/repository"
	"gagyebu/internal/repository/memory"
)

// failingSalaries wraps a collection and fails every write.
type failingSalaries struct {
	repository.Collection[core.Salary]
	err error
}

func (f failingSalaries) Create(context.Context, core.Salary) (core.Salary, error) {
	return core.Salary{}, f.err
}

func (f failingSalaries) Update(context.Context, core.Salary) (core.Salary, error) {
	return core.Salary{}, f.err
}

func (f failingSalaries) Delete(context.Context, string) error { return f.err }

// blockingSalaries holds every write until release is closed, then
// returns err.
type blockingSalaries struct {
	repository.Collection[core.Salary]
	entered chan struct{}
	release chan struct{}
	err     error
}

func (b blockingSalaries) wait() {
	b.entered <- struct{}{}
	<-b.release
}

func (b blockingSalaries) Create(ctx context.Context, rec core.Salary) (core.Salary, error) {
	b.wait()
	if b.err != nil {
		return core.Salary{}, b.err
	}
	return b.Collection.Create(ctx, rec)
}

func (b blockingSalaries) Update(ctx context.Context, rec core.Salary) (core.Salary, error) {
	b.wait()
	if b.err != nil {
		return core.Salary{}, b.err
	}
	return b.Collection.Update(ctx, rec)
}

func (b blockingSalaries) Delete(ctx context.Context, id string) error {
	b.wait()
	if b.err != nil {
		return b.err
	}
	return b.Collection.Delete(ctx, id)
}

type blockingRepo struct {
	*memory.Store
	salaries blockingSalaries
}

func (r *blockingRepo) Salaries() repository.Collection[core.Salary] { return r.salaries }

type flakyRepo struct {
	*memory.Store
	salaries failingSalaries
}

func (r *flakyRepo) Salaries() repository.Collection[core.Salary] { return r.salaries }

func salary(owner string, won int64) core.Salary {
	return core.Salary{UserID: owner, Amount: core.Money{Won: won}, Date: core.NewDate(2025, 10, 25)}
}

func TestAddConfirmsStoredRecord(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	var changes []Change
	s := New(repo, core.User{ID: "u1", PartnerID: "u2"}, WithHook(func(_ context.Context, c Change) {
		changes = append(changes, c)
	}))
	if err := s.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	saved, err := s.Salaries.Add(ctx, salary("u2", 3_000_000))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if saved.ID == "" || saved.CreatedBy != "u1" {
		t.Fatalf("unexpected meta: %+v", saved.Meta)
	}
	all := s.Salaries.All()
	if len(all) != 1 || all[0].ID != saved.ID {
		t.Fatalf("cached salaries = %+v", all)
	}
	if s.Pending() != 0 {
		t.Fatalf("pending = %d after confirm", s.Pending())
	}
	if len(changes) != 1 || changes[0].Op != OpCreate || changes[0].Facts.Owner != "u2" {
		t.Fatalf("unexpected changes: %+v", changes)
	}
}

func TestFailedWritesRollBack(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	existing, _ := mem.Salaries().Create(ctx, core.Salary{
		Meta: core.Meta{CreatedBy: "u1"}, UserID: "u1", Amount: core.Money{Won: 100}, Date: core.NewDate(2025, 10, 1),
	})
	boom := errors.New("network down")
	repo := &flakyRepo{Store: mem, salaries: failingSalaries{Collection: mem.Salaries(), err: boom}}

	s := New(repo, core.User{ID: "u1"})
	if err := s.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	before := s.Records()

	if _, err := s.Salaries.Add(ctx, salary("u1", 5)); !errors.Is(err, boom) {
		t.Fatalf("add err = %v, want %v", err, boom)
	}
	edit := existing
	edit.Amount = core.Money{Won: 999}
	if _, err := s.Salaries.Update(ctx, edit); !errors.Is(err, boom) {
		t.Fatalf("update err = %v, want %v", err, boom)
	}
	if err := s.Salaries.Remove(ctx, existing.ID); !errors.Is(err, boom) {
		t.Fatalf("remove err = %v, want %v", err, boom)
	}

	after := s.Records()
	if len(after.Salaries) != len(before.Salaries) || after.Salaries[0] != before.Salaries[0] {
		t.Fatalf("state changed after failed writes: before=%+v after=%+v", before.Salaries, after.Salaries)
	}
	if s.Pending() != 0 {
		t.Fatalf("pending = %d after rollback", s.Pending())
	}
}

func TestOwnershipAndVisibility(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	foreign, _ := repo.Allowances().Create(ctx, core.Allowance{
		Meta: core.Meta{CreatedBy: "stranger"}, UserID: "stranger", Amount: core.Money{Won: 1}, Date: core.NewDate(2025, 1, 1),
	})

	s := New(repo, core.User{ID: "u1"})
	if err := s.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{
			name: "owner outside household",
			run: func() error {
				_, err := s.Allowances.Add(ctx, core.Allowance{UserID: "stranger", Amount: core.Money{Won: 1}, Date: core.NewDate(2025, 1, 1)})
				return err
			},
			want: ErrForeignOwner,
		},
		{
			name: "invalid record",
			run: func() error {
				_, err := s.Allowances.Add(ctx, core.Allowance{UserID: "u1", Date: core.NewDate(2025, 1, 1)})
				return err
			},
			want: core.ErrInvalidAmount,
		},
		{
			name: "update invisible record",
			run: func() error {
				_, err := s.Allowances.Update(ctx, foreign)
				return err
			},
			want: ErrForeignOwner,
		},
		{
			name: "delete invisible record",
			run:  func() error { return s.Allowances.Remove(ctx, foreign.ID) },
			want: repository.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLoadSeesPartnerRecords(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	for _, creator := range []string{"u1", "u2", "u3"} {
		repo.LivingExpenses().Create(ctx, core.LivingExpense{
			Meta: core.Meta{CreatedBy: creator}, Amount: core.Money{Won: 10}, Date: core.NewDate(2025, 10, 2), Category: core.LivingCategoryGeneral,
		})
	}
	repo.Snapshots().Upsert(ctx, core.InvestmentSnapshot{UserID: "u2", Date: core.NewDate(2025, 9, 30), BrokerTotal: core.Money{Won: 7}})

	s := New(repo, core.User{ID: "u1", PartnerID: "u2"})
	if err := s.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := len(s.Records().LivingExpenses); got != 2 {
		t.Fatalf("living expenses = %d, want 2", got)
	}
	if got := len(s.Snapshots()); got != 1 {
		t.Fatalf("snapshots = %d, want 1", got)
	}

	s.PutSnapshot(core.InvestmentSnapshot{UserID: "u2", Date: core.NewDate(2025, 9, 30), BrokerTotal: core.Money{Won: 9}})
	snaps := s.Snapshots()
	if len(snaps) != 1 || snaps[0].BrokerTotal.Won != 9 {
		t.Fatalf("snapshots after put = %+v", snaps)
	}
}

func TestInFlightWritesStayInvisible(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	existing, _ := mem.Salaries().Create(ctx, core.Salary{
		Meta: core.Meta{CreatedBy: "u1"}, UserID: "u1", Amount: core.Money{Won: 100}, Date: core.NewDate(2025, 10, 1),
	})

	tests := []struct {
		name  string
		err   error
		run   func(s *State) error
		check func(t *testing.T, salaries []core.Salary)
	}{
		{
			name: "failed add",
			err:  errors.New("network down"),
			run: func(s *State) error {
				_, err := s.Salaries.Add(ctx, salary("u1", 3_000_000))
				return err
			},
			check: func(t *testing.T, salaries []core.Salary) {
				if len(salaries) != 1 || salaries[0].ID != existing.ID {
					t.Errorf("salaries = %+v, want only the existing one", salaries)
				}
			},
		},
		{
			name: "successful update",
			run: func(s *State) error {
				edit := existing
				edit.Amount = core.Money{Won: 999}
				_, err := s.Salaries.Update(ctx, edit)
				return err
			},
			check: func(t *testing.T, salaries []core.Salary) {
				if len(salaries) != 1 || salaries[0].Amount.Won != 999 {
					t.Errorf("salaries = %+v, want amount 999", salaries)
				}
			},
		},
		{
			name: "failed remove",
			err:  errors.New("network down"),
			run:  func(s *State) error { return s.Salaries.Remove(ctx, existing.ID) },
			check: func(t *testing.T, salaries []core.Salary) {
				if len(salaries) != 1 {
					t.Errorf("salaries = %+v, want the record kept", salaries)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocking := blockingSalaries{
				Collection: mem.Salaries(),
				entered:    make(chan struct{}),
				release:    make(chan struct{}),
				err:        tt.err,
			}
			s := New(&blockingRepo{Store: mem, salaries: blocking}, core.User{ID: "u1"})
			if err := s.Load(ctx); err != nil {
				t.Fatalf("load: %v", err)
			}
			before := s.Records().Salaries

			done := make(chan error, 1)
			go func() { done <- tt.run(s) }()
			<-blocking.entered

			during := s.Records().Salaries
			if len(during) != len(before) || during[0] != before[0] {
				t.Errorf("in-flight write visible: before=%+v during=%+v", before, during)
			}
			if got := s.Salaries.All(); len(got) != len(before) || got[0] != before[0] {
				t.Errorf("All() during write = %+v", got)
			}
			if s.Pending() != 1 {
				t.Errorf("pending = %d during write, want 1", s.Pending())
			}

			close(blocking.release)
			if err := <-done; !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			if s.Pending() != 0 {
				t.Errorf("pending = %d after settle", s.Pending())
			}
			tt.check(t, s.Records().Salaries)
		})
	}
}
