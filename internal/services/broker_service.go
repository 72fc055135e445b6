package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gagyebu/internal/amqp"
	"gagyebu/internal/broker"
	"gagyebu/internal/core"
	applog "gagyebu/internal/log"
	"gagyebu/internal/repository"
)

var (
	ErrNotConnected       = errors.New("no broker connection")
	ErrMissingCredentials = errors.New("app key and app secret are required")
)

// Snapshot triggers, used as a metrics label.
const (
	TriggerManual  = "manual"
	TriggerRefresh = "refresh"
	TriggerDaily   = "daily"
)

// BrokerAPI is the broker surface the service needs. *broker.Gateway
// satisfies it.
type BrokerAPI interface {
	Holdings(ctx context.Context, conn core.BrokerConnection) ([]core.Holding, error)
	Price(ctx context.Context, conn core.BrokerConnection, code string) (core.Quote, error)
	Forget(userID string)
}

var _ BrokerAPI = (*broker.Gateway)(nil)

type BrokerService struct {
	Deps
	api       BrokerAPI
	book      *HoldingsBook
	household *HouseholdService

	mu           sync.Mutex
	lastSnapshot map[string]core.Date
}

func NewBrokerService(deps Deps, api BrokerAPI, book *HoldingsBook, household *HouseholdService) *BrokerService {
	return &BrokerService{
		Deps:         deps.withDefaults(applog.ComponentBroker),
		api:          api,
		book:         book,
		household:    household,
		lastSnapshot: map[string]core.Date{},
	}
}

// ConnectionView is a connection as shown to its owner. Secrets are
// masked.
type ConnectionView struct {
	AccountNumber string    `json:"accountNumber"`
	Virtual       bool      `json:"isVirtual"`
	AppKey        string    `json:"appKey"`
	HasSecret     bool      `json:"hasAppSecret"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func viewOf(c core.BrokerConnection) ConnectionView {
	return ConnectionView{
		AccountNumber: c.AccountNumber,
		Virtual:       c.Virtual,
		AppKey:        mask(c.AppKey),
		HasSecret:     c.AppSecret != "",
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

// mask keeps the last four characters.
func mask(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}

type ConnectionInput struct {
	AppKey        string `json:"appKey"`
	AppSecret     string `json:"appSecret"`
	AccountNumber string `json:"accountNumber"`
	Virtual       bool   `json:"isVirtual"`
}

func (s *BrokerService) Connection(ctx context.Context, u core.User) (ConnectionView, error) {
	c, err := s.connection(ctx, u.ID)
	if err != nil {
		return ConnectionView{}, err
	}
	return viewOf(c), nil
}

func (s *BrokerService) connection(ctx context.Context, userID string) (core.BrokerConnection, error) {
	c, err := s.Repo.Connections().Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return core.BrokerConnection{}, ErrNotConnected
	}
	if err != nil {
		return core.BrokerConnection{}, fmt.Errorf("get broker connection: %w", err)
	}
	return c, nil
}

// SaveConnection stores new credentials and discards the cached token and
// holdings that belonged to the old ones.
func (s *BrokerService) SaveConnection(ctx context.Context, u core.User, in ConnectionInput) (ConnectionView, error) {
	in.AppKey = strings.TrimSpace(in.AppKey)
	in.AppSecret = strings.TrimSpace(in.AppSecret)
	if in.AppKey == "" || in.AppSecret == "" {
		return ConnectionView{}, ErrMissingCredentials
	}
	account, err := broker.ParseAccount(in.AccountNumber)
	if err != nil {
		return ConnectionView{}, err
	}

	saved, err := s.Repo.Connections().Save(ctx, core.BrokerConnection{
		UserID:        u.ID,
		AppKey:        in.AppKey,
		AppSecret:     in.AppSecret,
		AccountNumber: account.String(),
		Virtual:       in.Virtual,
	})
	if err != nil {
		return ConnectionView{}, fmt.Errorf("save broker connection: %w", err)
	}
	s.api.Forget(u.ID)
	s.book.Drop(u.ID)
	s.Logger.InfoContext(ctx, "Broker connection saved",
		applog.FieldUserID, u.ID,
		applog.FieldBrokerAccount, mask(account.String()),
		"virtual", in.Virtual)
	return viewOf(saved), nil
}

func (s *BrokerService) DeleteConnection(ctx context.Context, u core.User) error {
	err := s.Repo.Connections().Delete(ctx, u.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotConnected
	}
	if err != nil {
		return fmt.Errorf("delete broker connection: %w", err)
	}
	s.api.Forget(u.ID)
	s.book.Drop(u.ID)
	return nil
}

// Holdings returns the last read for the user, fetching one if there is
// none yet.
func (s *BrokerService) Holdings(ctx context.Context, u core.User) (HoldingsEntry, error) {
	s.book.Touch(u.ID)
	if e, ok := s.book.Get(u.ID); ok {
		return e, nil
	}
	return s.Refresh(ctx, u.ID)
}

// Refresh reads holdings from the broker and replaces the user's entry.
// The first successful refresh of a day also saves a snapshot.
func (s *BrokerService) Refresh(ctx context.Context, userID string) (HoldingsEntry, error) {
	conn, err := s.connection(ctx, userID)
	if err != nil {
		return HoldingsEntry{}, err
	}

	start := s.Now()
	holdings, err := s.api.Holdings(ctx, conn)
	s.Metrics.BrokerRefresh(err, s.Now().Sub(start))
	if err != nil {
		return HoldingsEntry{}, fmt.Errorf("refresh holdings: %w", broker.Unavailable(err))
	}
	entry := s.book.Put(userID, holdings, start)
	s.Logger.DebugContext(ctx, "Holdings refreshed",
		applog.FieldUserID, userID,
		applog.FieldHoldings, len(entry.Holdings),
		applog.FieldAmountWon, entry.Total.Won)

	if s.claimDailySnapshot(userID) {
		if _, err := s.snapshotFor(ctx, userID, TriggerRefresh); err != nil {
			s.Logger.WarnContext(ctx, "Automatic snapshot failed",
				applog.FieldUserID, userID, applog.FieldError, err.Error())
		}
	}
	return entry, nil
}

// claimDailySnapshot reports whether userID has not had an automatic
// snapshot today, and records that it now has.
func (s *BrokerService) claimDailySnapshot(userID string) bool {
	today := core.DateOf(s.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastSnapshot[userID]; ok && last.Equal(today.Time) {
		return false
	}
	s.lastSnapshot[userID] = today
	return true
}

// RefreshActive refreshes every recently active user with a connection.
// Failures are logged and skipped. It returns how many succeeded.
func (s *BrokerService) RefreshActive(ctx context.Context, window time.Duration) int {
	ok := 0
	for _, id := range s.book.Active(window) {
		if ctx.Err() != nil {
			break
		}
		if _, err := s.Refresh(ctx, id); err != nil {
			if !errors.Is(err, ErrNotConnected) {
				s.Logger.WarnContext(ctx, "Holdings refresh failed",
					applog.FieldUserID, id,
					applog.FieldError, err.Error(),
					applog.FieldErrorType, errorType(err))
			}
			continue
		}
		ok++
	}
	return ok
}

func errorType(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return applog.ErrorTypeTimeout
	case errors.As(err, new(*broker.APIError)):
		return applog.ErrorTypeUpstream
	default:
		return applog.ErrorTypeNetwork
	}
}

func (s *BrokerService) Quote(ctx context.Context, u core.User, code string) (core.Quote, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return core.Quote{}, fmt.Errorf("%w: stock code", core.ErrEmptyName)
	}
	conn, err := s.connection(ctx, u.ID)
	if err != nil {
		return core.Quote{}, err
	}
	q, err := s.api.Price(ctx, conn, code)
	if err != nil {
		return core.Quote{}, fmt.Errorf("quote %s: %w", code, broker.Unavailable(err))
	}
	return q, nil
}

// SaveSnapshot records today's investment values for the user.
func (s *BrokerService) SaveSnapshot(ctx context.Context, u core.User, trigger string) (core.InvestmentSnapshot, error) {
	st, err := s.household.State(ctx, u)
	if err != nil {
		return core.InvestmentSnapshot{}, err
	}
	var brokerTotal core.Money
	if e, ok := s.book.Get(u.ID); ok {
		brokerTotal = e.Total
	}

	snap, err := s.Repo.Snapshots().Upsert(ctx, core.InvestmentSnapshot{
		UserID:           u.ID,
		Date:             core.DateOf(s.Now()),
		InvestmentAmount: st.Records().LocalInvestmentValue(),
		BrokerTotal:      brokerTotal,
	})
	if err != nil {
		return core.InvestmentSnapshot{}, fmt.Errorf("save snapshot: %w", err)
	}

	s.household.SnapshotSaved(u, snap)
	s.Metrics.Snapshot(trigger)
	s.Logger.InfoContext(ctx, "Investment snapshot saved",
		applog.FieldUserID, u.ID,
		applog.FieldOperation, applog.OpSnapshot,
		"trigger", trigger,
		"broker_total", snap.BrokerTotal.Won,
		"investment_amount", snap.InvestmentAmount.Won)
	s.publish(ctx, &amqp.SnapshotSaved{
		UserID:           u.ID,
		Date:             snap.Date.String(),
		InvestmentAmount: snap.InvestmentAmount.Won,
		BrokerTotal:      snap.BrokerTotal.Won,
		Timestamp:        s.Now().UTC(),
	})
	return snap, nil
}

func (s *BrokerService) snapshotFor(ctx context.Context, userID, trigger string) (core.InvestmentSnapshot, error) {
	u, err := s.Repo.Users().Get(ctx, userID)
	if err != nil {
		return core.InvestmentSnapshot{}, fmt.Errorf("get user: %w", err)
	}
	return s.SaveSnapshot(ctx, u, trigger)
}

// SnapshotAll refreshes and snapshots every connected user. A failed
// refresh still saves a snapshot from the local records.
func (s *BrokerService) SnapshotAll(ctx context.Context) (saved int, err error) {
	conns, err := s.Repo.Connections().List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list broker connections: %w", err)
	}
	var errs []error
	for _, c := range conns {
		if ctx.Err() != nil {
			return saved, ctx.Err()
		}
		holdings, herr := s.api.Holdings(ctx, c)
		if herr == nil {
			s.book.Put(c.UserID, holdings, s.Now())
		} else {
			s.Logger.WarnContext(ctx, "Refresh before snapshot failed",
				applog.FieldUserID, c.UserID, applog.FieldError, herr.Error())
		}
		if _, err := s.snapshotFor(ctx, c.UserID, TriggerDaily); err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", c.UserID, err))
			continue
		}
		saved++
	}
	return saved, errors.Join(errs...)
}
