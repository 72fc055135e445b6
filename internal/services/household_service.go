// Package services coordinates the household state, partner invitations
// and broker holdings on top of the repository, and emits events.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gagyebu/internal/amqp"
	"gagyebu/internal/cache"
	"gagyebu/internal/core"
	applog "gagyebu/internal/log"
	"gagyebu/internal/metrics"
	"gagyebu/internal/repository"
	"gagyebu/internal/store"
)

// Publisher sends events. *amqp.Client satisfies it.
type Publisher interface {
	Publish(ctx context.Context, ev amqp.Event) error
}

var _ Publisher = (*amqp.Client)(nil)

type HouseholdConfig struct {
	CacheSize       int
	CacheTTL        time.Duration
	IncludeDeposits bool
}

// Deps carries the collaborators every service shares. Publisher and
// Metrics may be nil.
type Deps struct {
	Repo      repository.Repository
	Publisher Publisher
	Logger    *applog.Logger
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

func (d Deps) withDefaults(component string) Deps {
	if d.Logger == nil {
		d.Logger = applog.New(applog.DefaultConfig())
	}
	d.Logger = d.Logger.WithComponent(component)
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// publish sends ev and logs failures. The write it describes has already
// succeeded, so errors never reach the caller.
func (d Deps) publish(ctx context.Context, ev amqp.Event) {
	if d.Publisher == nil {
		return
	}
	if err := d.Publisher.Publish(ctx, ev); err != nil {
		d.Logger.WarnContext(ctx, "Failed to publish event",
			"event_type", ev.EventType(),
			applog.FieldError, err.Error(),
			applog.FieldErrorType, applog.ErrorTypeNetwork)
	}
}

// HouseholdService owns the per-viewer state cache.
type HouseholdService struct {
	Deps
	cfg    HouseholdConfig
	book   *HoldingsBook
	states *cache.LRUCache[*store.State]
	events *applog.StructuredLogger
}

func NewHouseholdService(deps Deps, book *HoldingsBook, cfg HouseholdConfig) *HouseholdService {
	deps = deps.withDefaults(applog.ComponentHousehold)
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 256
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if book == nil {
		book = NewHoldingsBook()
	}
	return &HouseholdService{
		Deps:   deps,
		cfg:    cfg,
		book:   book,
		states: cache.NewLRUCache[*store.State](cfg.CacheSize, cfg.CacheTTL),
		events: applog.NewStructuredLogger(deps.Logger),
	}
}

// StateCache exposes the cache so a cache.Manager can sweep it.
func (s *HouseholdService) StateCache() *cache.LRUCache[*store.State] { return s.states }

// EnsureUser returns the user record tied to an account, creating it with
// a name derived from the email on first use.
func (s *HouseholdService) EnsureUser(ctx context.Context, accountID, email string) (core.User, error) {
	u, err := s.Repo.Users().GetByAuthID(ctx, accountID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}

	u, err = s.Repo.Users().Create(ctx, core.User{AuthID: accountID, Name: core.DefaultName(email)})
	if errors.Is(err, repository.ErrConflict) {
		return s.Repo.Users().GetByAuthID(ctx, accountID)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	s.Logger.InfoContext(ctx, "User created", applog.FieldUserID, u.ID, applog.FieldAccountID, accountID)
	return u, nil
}

// ProfileUpdate holds the editable user fields; nil leaves a field as is.
type ProfileUpdate struct {
	Name      *string           `json:"name"`
	Character *string           `json:"character"`
	Slot      *core.PartnerSlot `json:"type"`
}

func (s *HouseholdService) UpdateProfile(ctx context.Context, u core.User, p ProfileUpdate) (core.User, error) {
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return core.User{}, core.ErrEmptyName
		}
		u.Name = name
	}
	if p.Character != nil {
		u.Character = strings.TrimSpace(*p.Character)
	}
	if p.Slot != nil {
		if !p.Slot.Valid() {
			return core.User{}, fmt.Errorf("%w: partner type %q", core.ErrInvalidType, *p.Slot)
		}
		// A linked pair holds one slot each; the pairing is set by Accept.
		if u.HasPartner() && *p.Slot != u.Slot {
			return core.User{}, fmt.Errorf("%w: partner type is fixed while linked", core.ErrAlreadyLinked)
		}
		u.Slot = *p.Slot
	}
	updated, err := s.Repo.Users().Update(ctx, u)
	if err != nil {
		return core.User{}, fmt.Errorf("update user: %w", err)
	}
	s.Invalidate(updated.ID)
	return updated, nil
}

// Unlink dissolves the viewer's partnership. Both members' cached states
// are dropped since their household shrinks.
func (s *HouseholdService) Unlink(ctx context.Context, u core.User) error {
	partnerID, err := s.Repo.Users().Unlink(ctx, u.ID)
	if err != nil {
		return fmt.Errorf("unlink: %w", err)
	}
	s.Invalidate(u.ID, partnerID)
	if partnerID != "" {
		s.Logger.InfoContext(ctx, "Partners unlinked",
			applog.FieldUserID, u.ID,
			applog.FieldPartnerID, partnerID,
			applog.FieldOperation, applog.OpUnlink)
	}
	return nil
}

// Invalidate drops cached states. Empty ids are ignored.
func (s *HouseholdService) Invalidate(userIDs ...string) {
	for _, id := range userIDs {
		if id != "" {
			s.states.Delete(id)
		}
	}
}

// State returns the viewer's loaded household state. A cached state built
// for a different partnership is rebuilt.
func (s *HouseholdService) State(ctx context.Context, viewer core.User) (*store.State, error) {
	st, hit, err := s.states.GetOrLoad(ctx, viewer.ID, func(ctx context.Context) (*store.State, error) {
		return s.load(ctx, viewer)
	})
	if err != nil {
		return nil, err
	}
	if st.Viewer().PartnerID != viewer.PartnerID {
		s.states.Delete(viewer.ID)
		st, err = s.load(ctx, viewer)
		if err != nil {
			return nil, err
		}
		s.states.Set(viewer.ID, st)
		hit = false
	}
	s.Metrics.CacheLookup(hit)
	return st, nil
}

func (s *HouseholdService) load(ctx context.Context, viewer core.User) (*store.State, error) {
	st := store.New(s.Repo, viewer, store.WithHook(s.onChange(viewer)), store.WithClock(s.Now))
	if err := st.Load(ctx); err != nil {
		return nil, err
	}
	return st, nil
}

// onChange runs after every confirmed mutation: it logs, counts, drops the
// partner's now stale state and publishes record.changed.
func (s *HouseholdService) onChange(viewer core.User) store.Hook {
	return func(ctx context.Context, c store.Change) {
		s.events.LogRecordChanged(ctx, string(c.Op), string(c.Kind), c.ID, c.Viewer, c.Facts.Amount.Won)
		s.Metrics.RecordMutation(string(c.Kind), string(c.Op))
		s.Invalidate(viewer.PartnerID)

		ev := &amqp.RecordChanged{
			Kind:      string(c.Kind),
			ID:        c.ID,
			UserID:    c.Viewer,
			Op:        string(c.Op),
			Timestamp: s.Now().UTC(),
		}
		if !c.Facts.Date.IsZero() {
			ev.Month = c.Facts.Date.Month().String()
		}
		s.publish(ctx, ev)
	}
}

// SnapshotSaved pushes a saved snapshot into any cached state that can see
// its owner.
func (s *HouseholdService) SnapshotSaved(owner core.User, snap core.InvestmentSnapshot) {
	for _, id := range owner.Household() {
		if st, ok := s.states.Get(id); ok {
			st.PutSnapshot(snap)
		}
	}
}

// Dashboard computes the viewer's dashboard for month. For the current
// month broker holdings come from the last refresh, and without one the
// local investment records are used. Earlier months use snapshots.
func (s *HouseholdService) Dashboard(ctx context.Context, viewer core.User, month core.Month) (core.Dashboard, error) {
	st, err := s.State(ctx, viewer)
	if err != nil {
		return core.Dashboard{}, err
	}
	live := core.MonthOf(s.Now())
	if month == live {
		s.book.Touch(viewer.ID)
	}

	brokerTotal, _ := s.book.Total(viewer.Household())
	return core.BuildDashboard(core.DashboardInput{
		Records:     st.Records(),
		Month:       month,
		BrokerTotal: brokerTotal,
		Snapshots:   st.Snapshots(),
		Options:     core.SummaryOptions{IncludeDeposits: s.cfg.IncludeDeposits},
		Live:        live,
	}), nil
}

// Summary returns one month's figures, valued the same way as Dashboard.
func (s *HouseholdService) Summary(ctx context.Context, viewer core.User, month core.Month) (core.MonthlySummary, error) {
	d, err := s.Dashboard(ctx, viewer, month)
	return d.Current, err
}
