package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"gagyebu/internal/amqp"
	"gagyebu/internal/core"
	applog "gagyebu/internal/log"
	"gagyebu/internal/metrics"
	"gagyebu/internal/repository"
	"gagyebu/internal/sheets"
)

// Summaries computes a month's figures as seen by a user.
// *services.HouseholdService satisfies it.
type Summaries interface {
	Summary(ctx context.Context, viewer core.User, month core.Month) (core.MonthlySummary, error)
	// Invalidate drops any cached state for the given users so the next
	// Summary reads the repository.
	Invalidate(userIDs ...string)
}

// UserLister is the part of repository.Users the exporter reads.
type UserLister interface {
	Get(ctx context.Context, id string) (core.User, error)
	List(ctx context.Context) ([]core.User, error)
}

var _ UserLister = repository.Users(nil)

type ExporterConfig struct {
	// Interval between flushes of pending rows (default 15m).
	Interval time.Duration
	// Parallel bounds concurrent summary computations (default 4).
	Parallel int
}

type pending struct {
	userID string
	month  core.Month
}

// Exporter keeps the summary sheet current. Events mark (user, month)
// pairs dirty; Flush writes one row per affected household and month.
type Exporter struct {
	users     UserLister
	summaries Summaries
	writer    sheets.SummaryWriter
	metrics   *metrics.Metrics
	logger    *applog.Logger
	cfg       ExporterConfig
	now       func() time.Time

	mu    sync.Mutex
	dirty map[pending]struct{}
}

func NewExporter(users UserLister, summaries Summaries, writer sheets.SummaryWriter, m *metrics.Metrics, logger *applog.Logger, cfg ExporterConfig) *Exporter {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.Parallel <= 0 {
		cfg.Parallel = 4
	}
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Exporter{
		users:     users,
		summaries: summaries,
		writer:    writer,
		metrics:   m,
		logger:    logger.WithComponent(applog.ComponentSheets),
		cfg:       cfg,
		now:       time.Now,
		dirty:     map[pending]struct{}{},
	}
}

// HandleEvent is an amqp.Handler. It only records what needs exporting;
// the sheet is written on the next Flush.
func (e *Exporter) HandleEvent(ctx context.Context, ev amqp.Event) error {
	switch ev := ev.(type) {
	case *amqp.RecordChanged:
		month := core.MonthOf(e.now())
		if ev.Month != "" {
			m, err := core.ParseMonth(ev.Month)
			if err != nil {
				return fmt.Errorf("record.changed month: %w", err)
			}
			month = m
		}
		e.mark(ctx, ev.UserID, month)
	case *amqp.SnapshotSaved:
		d, err := core.ParseDate(ev.Date)
		if err != nil {
			return fmt.Errorf("snapshot.saved date: %w", err)
		}
		e.mark(ctx, ev.UserID, d.Month())
	default:
		e.logger.DebugContext(ctx, "Ignoring event", "event_type", ev.EventType())
	}
	return nil
}

// mark queues the pair and drops the household's cached state, which was
// loaded before the write the event reports.
func (e *Exporter) mark(ctx context.Context, userID string, month core.Month) {
	if userID == "" {
		return
	}
	ids := []string{userID}
	if u, err := e.users.Get(ctx, userID); err == nil && u.HasPartner() {
		ids = append(ids, u.PartnerID)
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		e.logger.WarnContext(ctx, "Partner lookup failed, invalidating user only",
			applog.FieldUserID, userID,
			applog.FieldError, err.Error())
	}
	e.summaries.Invalidate(ids...)
	e.requeue(pending{userID: userID, month: month})
}

func (e *Exporter) requeue(p pending) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dirty[p] = struct{}{}
}

// Pending reports how many (user, month) pairs await export.
func (e *Exporter) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.dirty)
}

func (e *Exporter) take() []pending {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]pending, 0, len(e.dirty))
	for p := range e.dirty {
		out = append(out, p)
	}
	e.dirty = map[pending]struct{}{}
	return out
}

// Flush exports every dirty pair. Pairs that fail are marked dirty again.
func (e *Exporter) Flush(ctx context.Context) (int, error) {
	batch := e.take()
	if len(batch) == 0 {
		return 0, nil
	}

	var jobs []job
	for _, p := range batch {
		u, err := e.users.Get(ctx, p.userID)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			e.requeue(p)
			e.logger.WarnContext(ctx, "Failed to load user for export",
				applog.FieldUserID, p.userID, applog.FieldError, err.Error())
			continue
		}
		jobs = append(jobs, job{user: u, month: p.month})
	}

	written, failed, err := e.write(ctx, dedupe(jobs))
	for _, j := range failed {
		e.requeue(pending{userID: j.user.ID, month: j.month})
	}
	return written, err
}

// ExportMonth writes month for every household.
func (e *Exporter) ExportMonth(ctx context.Context, month core.Month) (int, error) {
	users, err := e.users.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}
	jobs := make([]job, 0, len(users))
	for _, u := range users {
		jobs = append(jobs, job{user: u, month: month})
	}
	written, _, err := e.write(ctx, dedupe(jobs))
	return written, err
}

type job struct {
	user  core.User
	month core.Month
}

// dedupe keeps one job per household and month, picking the member with
// the smallest id so the choice is stable.
func dedupe(jobs []job) []job {
	type key struct {
		household string
		month     core.Month
	}
	seen := map[key]int{}
	var out []job
	for _, j := range jobs {
		k := key{j.user.HouseholdKey(), j.month}
		if i, ok := seen[k]; ok {
			if j.user.ID < out[i].user.ID {
				out[i] = j
			}
			continue
		}
		seen[k] = len(out)
		out = append(out, j)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].month != out[b].month {
			return out[a].month.Before(out[b].month)
		}
		return out[a].user.HouseholdKey() < out[b].user.HouseholdKey()
	})
	return out
}

func (e *Exporter) write(ctx context.Context, jobs []job) (int, []job, error) {
	var (
		mu      sync.Mutex
		written int
		failed  []job
		errs    []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Parallel)
	for _, j := range jobs {
		g.Go(func() error {
			err := e.writeOne(gctx, j)
			e.metrics.Export(err)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, j)
				errs = append(errs, fmt.Errorf("%s %s: %w", j.user.HouseholdKey(), j.month, err))
				return nil
			}
			written++
			return nil
		})
	}
	_ = g.Wait()
	return written, failed, errors.Join(errs...)
}

func (e *Exporter) writeOne(ctx context.Context, j job) error {
	summary, err := e.summaries.Summary(ctx, j.user, j.month)
	if err != nil {
		return fmt.Errorf("compute summary: %w", err)
	}
	ref, err := e.writer.UpsertSummary(ctx, sheets.RowFromSummary(j.user.HouseholdKey(), summary, e.now()))
	if err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	e.logger.InfoContext(ctx, "Summary exported",
		applog.FieldOperation, applog.OpExport,
		applog.FieldMonth, j.month.String(),
		"household", j.user.HouseholdKey(),
		"row", ref)
	return nil
}

// Run flushes on every tick until ctx is cancelled, then flushes once more
// with a short grace period.
func (e *Exporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()
	e.logger.InfoContext(ctx, "Exporter started", "interval", e.cfg.Interval)

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if _, err := e.Flush(flushCtx); err != nil {
				e.logger.ErrorContext(flushCtx, "Final export flush failed", applog.FieldError, err.Error())
			}
			return nil
		case <-ticker.C:
			if n, err := e.Flush(ctx); err != nil {
				e.logger.ErrorContext(ctx, "Export flush failed",
					applog.FieldError, err.Error(),
					"written", n)
			}
		}
	}
}
