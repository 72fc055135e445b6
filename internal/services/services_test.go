package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gagyebu/internal/amqp"
	"gagyebu/internal/core"
	"gagyebu/internal/repository/memory"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []amqp.Event
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, ev amqp.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *fakePublisher) ofType(t string) []amqp.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []amqp.Event
	for _, ev := range p.events {
		if ev.EventType() == t {
			out = append(out, ev)
		}
	}
	return out
}

type fakeBroker struct {
	holdings  []core.Holding
	err       error
	calls     int
	forgotten []string
}

func (b *fakeBroker) Holdings(context.Context, core.BrokerConnection) ([]core.Holding, error) {
	b.calls++
	return b.holdings, b.err
}

func (b *fakeBroker) Price(_ context.Context, _ core.BrokerConnection, code string) (core.Quote, error) {
	return core.Quote{Code: code, Price: core.Money{Won: 71000}}, b.err
}

func (b *fakeBroker) Forget(userID string) { b.forgotten = append(b.forgotten, userID) }

// clock is a settable time source shared by the store and the services.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	repo        *memory.Store
	pub         *fakePublisher
	clock       *clock
	book        *HoldingsBook
	household   *HouseholdService
	invitations *InvitationService
	broker      *fakeBroker
	brokers     *BrokerService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:   memory.New(),
		pub:    &fakePublisher{},
		clock:  &clock{t: time.Date(2025, 10, 15, 9, 0, 0, 0, time.UTC)},
		book:   NewHoldingsBook(),
		broker: &fakeBroker{},
	}
	f.repo.SetClock(f.clock.Now)
	f.book.now = f.clock.Now
	deps := Deps{Repo: f.repo, Publisher: f.pub, Now: f.clock.Now}
	f.household = NewHouseholdService(deps, f.book, HouseholdConfig{})
	f.invitations = NewInvitationService(deps, f.household)
	f.brokers = NewBrokerService(deps, f.broker, f.book, f.household)
	return f
}

var (
	alice = Viewer{AccountID: "acc-alice", Email: "alice@example.com"}
	bob   = Viewer{AccountID: "acc-bob", Email: "Bob@Example.com"}
)

// link makes alice and bob partners and returns their users.
func (f *fixture) link(t *testing.T) (core.User, core.User) {
	t.Helper()
	ctx := context.Background()
	inv, err := f.invitations.Create(ctx, alice, "bob@example.com")
	if err != nil {
		t.Fatalf("create invitation: %v", err)
	}
	b, err := f.invitations.Accept(ctx, bob, inv.Code, AcceptProfile{})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	a, err := f.repo.Users().Get(ctx, b.PartnerID)
	if err != nil {
		t.Fatalf("get inviter: %v", err)
	}
	return a, b
}

func TestEnsureUserIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.household.EnsureUser(ctx, alice.AccountID, alice.Email)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if first.Name != "alice" {
		t.Errorf("name = %q, want alice", first.Name)
	}
	again, err := f.household.EnsureUser(ctx, alice.AccountID, alice.Email)
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("second call created a new user: %s != %s", again.ID, first.ID)
	}
}

func TestInvitationAcceptLinksPartners(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.invitations.Create(ctx, alice, "  BOB@example.com ")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if inv.InviteeEmail != "bob@example.com" || len(inv.Code) != core.InvitationCodeLength {
		t.Fatalf("unexpected invitation: %+v", inv)
	}
	if !inv.ExpiresAt.Equal(f.clock.Now().Add(core.InvitationTTL)) {
		t.Errorf("expires at %v", inv.ExpiresAt)
	}

	if _, err := f.invitations.GetByCode(ctx, " "+inv.Code+" "); err != nil {
		t.Fatalf("lookup with padding: %v", err)
	}

	carol := Viewer{AccountID: "acc-carol", Email: "carol@example.com"}
	if _, err := f.invitations.Accept(ctx, carol, inv.Code, AcceptProfile{}); !errors.Is(err, core.ErrEmailMismatch) {
		t.Fatalf("accept by wrong email err = %v", err)
	}
	if got, err := f.repo.Invitations().GetByCode(ctx, inv.Code); err != nil || got.Status != core.InvitationPending {
		t.Fatalf("after mismatched accept: %+v, %v", got, err)
	}

	b, err := f.invitations.Accept(ctx, bob, inv.Code, AcceptProfile{})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	a, err := f.repo.Users().Get(ctx, b.PartnerID)
	if err != nil {
		t.Fatalf("get inviter: %v", err)
	}
	if a.PartnerID != b.ID {
		t.Fatalf("link is one-sided: %+v %+v", a, b)
	}
	if a.Slot != core.SlotPartner1 || b.Slot != core.SlotPartner2 {
		t.Errorf("slots = %s/%s", a.Slot, b.Slot)
	}

	if _, err := f.invitations.Accept(ctx, bob, inv.Code, AcceptProfile{}); !errors.Is(err, core.ErrInvitationNotFound) {
		t.Fatalf("second accept err = %v", err)
	}
	sent, err := f.invitations.Sent(ctx, alice)
	if err != nil || len(sent) != 1 || sent[0].Status != core.InvitationAccepted {
		t.Fatalf("sent = %+v, %v", sent, err)
	}
}

func TestInvitationReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv, err := f.invitations.Create(ctx, alice, bob.Email)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	carol := Viewer{AccountID: "acc-carol", Email: "carol@example.com"}
	if err := f.invitations.Reject(ctx, carol, inv.Code); !errors.Is(err, core.ErrEmailMismatch) {
		t.Fatalf("reject by wrong email err = %v", err)
	}
	if got, err := f.repo.Invitations().GetByCode(ctx, inv.Code); err != nil || got.Status != core.InvitationPending {
		t.Fatalf("after mismatched reject: %+v, %v", got, err)
	}

	if err := f.invitations.Reject(ctx, bob, inv.Code); err != nil {
		t.Fatalf("reject: %v", err)
	}
	got, err := f.repo.Invitations().GetByCode(ctx, inv.Code)
	if err != nil || got.Status != core.InvitationRejected {
		t.Fatalf("after reject: %+v, %v", got, err)
	}
	a, err := f.repo.Users().Get(ctx, inv.InviterID)
	if err != nil {
		t.Fatalf("get inviter: %v", err)
	}
	b, err := f.household.EnsureUser(ctx, bob.AccountID, bob.Email)
	if err != nil {
		t.Fatalf("ensure invitee: %v", err)
	}
	if a.HasPartner() || b.HasPartner() {
		t.Fatalf("reject linked users: %+v %+v", a, b)
	}
	if _, err := f.invitations.Accept(ctx, bob, inv.Code, AcceptProfile{}); !errors.Is(err, core.ErrInvitationNotFound) {
		t.Fatalf("accept after reject err = %v", err)
	}
}

func TestAcceptWithProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv, err := f.invitations.Create(ctx, alice, bob.Email)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	blank := "  "
	if _, err := f.invitations.Accept(ctx, bob, inv.Code, AcceptProfile{Name: &blank}); !errors.Is(err, core.ErrEmptyName) {
		t.Fatalf("blank name err = %v", err)
	}
	if got, _ := f.repo.Invitations().GetByCode(ctx, inv.Code); got.Status != core.InvitationPending {
		t.Fatalf("blank name consumed invitation: %+v", got)
	}

	name, character := " Bob ", "bear"
	b, err := f.invitations.Accept(ctx, bob, inv.Code, AcceptProfile{Name: &name, Character: &character})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if b.Name != "Bob" || b.Character != "bear" || !b.HasPartner() {
		t.Fatalf("invitee = %+v", b)
	}
	stored, err := f.repo.Users().Get(ctx, b.ID)
	if err != nil || stored.Name != "Bob" || stored.PartnerID != b.PartnerID {
		t.Fatalf("stored = %+v, %v", stored, err)
	}
}

func TestSlotFixedWhileLinked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.link(t)

	taken := a.Slot
	if _, err := f.household.UpdateProfile(ctx, b, ProfileUpdate{Slot: &taken}); !errors.Is(err, core.ErrAlreadyLinked) {
		t.Fatalf("take partner slot err = %v", err)
	}
	own := b.Slot
	if _, err := f.household.UpdateProfile(ctx, b, ProfileUpdate{Slot: &own}); err != nil {
		t.Fatalf("keep own slot: %v", err)
	}
	a, _ = f.repo.Users().Get(ctx, a.ID)
	b, _ = f.repo.Users().Get(ctx, b.ID)
	if a.Slot != b.Slot.Opposite() {
		t.Fatalf("slots = %s/%s", a.Slot, b.Slot)
	}

	if err := f.household.Unlink(ctx, b); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	b, _ = f.repo.Users().Get(ctx, b.ID)
	if _, err := f.household.UpdateProfile(ctx, b, ProfileUpdate{Slot: &taken}); err != nil {
		t.Fatalf("slot change after unlink: %v", err)
	}
}

func TestInvitationGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.link(t)

	tests := []struct {
		name  string
		from  Viewer
		email string
		want  error
	}{
		{"malformed email", Viewer{AccountID: "x", Email: "x@example.com"}, "not-an-email", core.ErrInvalidEmail},
		{"self invitation", Viewer{AccountID: "x", Email: "x@example.com"}, "X@example.com", core.ErrSelfInvitation},
		{"already linked", alice, "dave@example.com", core.ErrAlreadyLinked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.invitations.Create(ctx, tt.from, tt.email); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestInvitationExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv, err := f.invitations.Create(ctx, alice, bob.Email)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	received, err := f.invitations.Received(ctx, bob)
	if err != nil || len(received) != 1 {
		t.Fatalf("received = %+v, %v", received, err)
	}

	f.clock.Advance(core.InvitationTTL)
	if _, err := f.invitations.GetByCode(ctx, inv.Code); !errors.Is(err, core.ErrInvitationNotFound) {
		t.Fatalf("expired lookup err = %v", err)
	}
	if err := f.invitations.Reject(ctx, bob, inv.Code); !errors.Is(err, core.ErrInvitationNotFound) {
		t.Fatalf("expired reject err = %v", err)
	}
	sent, _ := f.invitations.Sent(ctx, alice)
	if len(sent) != 1 || sent[0].Status != core.InvitationExpired {
		t.Fatalf("sent = %+v", sent)
	}
	received, _ = f.invitations.Received(ctx, bob)
	if len(received) != 0 {
		t.Fatalf("expired invitation still received: %+v", received)
	}
}

func TestInvitationCodeCollisionRetries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	codes := []string{"AAAAAAAA", "AAAAAAAA", "BBBBBBBB"}
	f.invitations.newCode = func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}

	first, err := f.invitations.Create(ctx, alice, bob.Email)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	carol := Viewer{AccountID: "acc-carol", Email: "carol@example.com"}
	second, err := f.invitations.Create(ctx, carol, "dave@example.com")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.Code != "AAAAAAAA" || second.Code != "BBBBBBBB" {
		t.Fatalf("codes = %s, %s", first.Code, second.Code)
	}
}

func TestGenerateCodeAlphabet(t *testing.T) {
	for range 50 {
		code, err := generateCode()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(code) != core.InvitationCodeLength {
			t.Fatalf("len(%q) = %d", code, len(code))
		}
		for _, r := range code {
			if !('0' <= r && r <= '9' || 'A' <= r && r <= 'Z') {
				t.Fatalf("unexpected rune %q in %q", r, code)
			}
		}
	}
}

func TestRecordChangesReachPartner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.link(t)

	bobState, err := f.household.State(ctx, b)
	if err != nil {
		t.Fatalf("bob state: %v", err)
	}
	if n := len(bobState.Records().LivingExpenses); n != 0 {
		t.Fatalf("bob starts with %d expenses", n)
	}

	aliceState, err := f.household.State(ctx, a)
	if err != nil {
		t.Fatalf("alice state: %v", err)
	}
	if _, err := aliceState.LivingExpenses.Add(ctx, core.LivingExpense{
		Amount: core.Money{Won: 42000}, Date: core.NewDate(2025, 10, 3), Category: core.LivingCategoryGeneral,
	}); err != nil {
		t.Fatalf("add: %v", err)
	}

	bobState, err = f.household.State(ctx, b)
	if err != nil {
		t.Fatalf("bob state after change: %v", err)
	}
	if n := len(bobState.Records().LivingExpenses); n != 1 {
		t.Fatalf("bob sees %d expenses, want 1", n)
	}

	events := f.pub.ofType(amqp.TypeRecordChanged)
	if len(events) != 1 {
		t.Fatalf("published %d record events", len(events))
	}
	ev := events[0].(*amqp.RecordChanged)
	if ev.Month != "2025-10" || ev.UserID != a.ID || ev.Op != "create" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("broker down")
	ctx := context.Background()
	u, _ := f.household.EnsureUser(ctx, alice.AccountID, alice.Email)
	st, err := f.household.State(ctx, u)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if _, err := st.Salaries.Add(ctx, core.Salary{UserID: u.ID, Amount: core.Money{Won: 1}, Date: core.NewDate(2025, 10, 25)}); err != nil {
		t.Fatalf("add with failing publisher: %v", err)
	}
}

func TestUnlinkSplitsHousehold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.link(t)

	st, _ := f.household.State(ctx, a)
	st.Salaries.Add(ctx, core.Salary{UserID: b.ID, Amount: core.Money{Won: 5}, Date: core.NewDate(2025, 10, 25)})

	if err := f.household.Unlink(ctx, a); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	b, _ = f.repo.Users().Get(ctx, b.ID)
	if b.HasPartner() {
		t.Fatalf("bob still linked: %+v", b)
	}
	bobState, err := f.household.State(ctx, b)
	if err != nil {
		t.Fatalf("bob state: %v", err)
	}
	if n := len(bobState.Records().Salaries); n != 0 {
		t.Fatalf("bob sees %d of alice's salaries after unlink", n)
	}
}

func TestDashboardInvestmentSource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.link(t)
	month := core.MonthOf(f.clock.Now())

	st, _ := f.household.State(ctx, a)
	st.Investments.Add(ctx, core.Investment{Name: "fund", Type: "FUND", Amount: core.Money{Won: 1_000_000}, Date: core.NewDate(2025, 10, 1)})

	d, err := f.household.Dashboard(ctx, a, month)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if d.InvestmentSource != core.SourceLocal || d.Current.Investment.Won != 1_000_000 {
		t.Fatalf("local dashboard = %s %d", d.InvestmentSource, d.Current.Investment.Won)
	}

	f.book.Put(b.ID, []core.Holding{{Code: "005930", Quantity: 10, EvalAmount: core.Money{Won: 700_000}}}, f.clock.Now())
	d, err = f.household.Dashboard(ctx, a, month)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if d.InvestmentSource != core.SourceBroker || d.Current.Investment.Won != 700_000 {
		t.Fatalf("broker dashboard = %s %d", d.InvestmentSource, d.Current.Investment.Won)
	}
	if active := f.book.Active(time.Hour); len(active) != 1 || active[0] != a.ID {
		t.Fatalf("active = %v", active)
	}
}

func TestSummaryPastMonthUsesSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u, _ := f.household.EnsureUser(ctx, alice.AccountID, alice.Email)
	f.repo.Snapshots().Upsert(ctx, core.InvestmentSnapshot{
		UserID: u.ID, Date: core.NewDate(2025, 9, 30), InvestmentAmount: core.Money{Won: 3}, BrokerTotal: core.Money{Won: 900},
	})

	st, _ := f.household.State(ctx, u)
	st.Investments.Add(ctx, core.Investment{Name: "fund", Type: "FUND", Amount: core.Money{Won: 5_000_000}, Date: core.NewDate(2025, 8, 1)})
	f.book.Put(u.ID, []core.Holding{{Code: "005930", Quantity: 1, EvalAmount: core.Money{Won: 70_000}}}, f.clock.Now())
	september := core.Month{Year: 2025, Month: time.September}

	got, err := f.household.Summary(ctx, u, september)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if got.Investment.Won != 900 {
		t.Fatalf("september investment = %d, want 900", got.Investment.Won)
	}

	d, err := f.household.Dashboard(ctx, u, september)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if d.InvestmentSource != core.SourceSnapshot || d.Current.Investment.Won != 900 {
		t.Fatalf("september dashboard = %s %d, want snapshot 900", d.InvestmentSource, d.Current.Investment.Won)
	}
	if d.Current != got {
		t.Errorf("dashboard and summary disagree: %+v vs %+v", d.Current, got)
	}

	// Without a snapshot on or before the month end the value is zero.
	d, _ = f.household.Dashboard(ctx, u, core.Month{Year: 2025, Month: time.August})
	if d.Current.Investment.Won != 0 {
		t.Errorf("august investment = %d, want 0", d.Current.Investment.Won)
	}
}

func TestSaveConnectionValidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u, _ := f.household.EnsureUser(ctx, alice.AccountID, alice.Email)

	tests := []struct {
		name string
		in   ConnectionInput
		want error
	}{
		{"missing secret", ConnectionInput{AppKey: "k", AccountNumber: "12345678-01"}, ErrMissingCredentials},
		{"short account", ConnectionInput{AppKey: "k", AppSecret: "s", AccountNumber: "1234"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.brokers.SaveConnection(ctx, u, tt.in)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}

	view, err := f.brokers.SaveConnection(ctx, u, ConnectionInput{
		AppKey: "PSabcdefgh1234", AppSecret: "secret", AccountNumber: "1234567801",
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if view.AccountNumber != "12345678-01" || view.AppKey != "**********1234" || !view.HasSecret {
		t.Fatalf("view = %+v", view)
	}
	if len(f.broker.forgotten) != 1 || f.broker.forgotten[0] != u.ID {
		t.Fatalf("forgotten = %v", f.broker.forgotten)
	}
}

func TestRefreshSnapshotsOncePerDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u, _ := f.household.EnsureUser(ctx, alice.AccountID, alice.Email)

	if _, err := f.brokers.Refresh(ctx, u.ID); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("refresh without connection err = %v", err)
	}

	f.brokers.SaveConnection(ctx, u, ConnectionInput{AppKey: "key1", AppSecret: "s", AccountNumber: "12345678-01"})
	f.broker.holdings = []core.Holding{
		{Code: "005930", EvalAmount: core.Money{Won: 500_000}},
		{Code: "000660", EvalAmount: core.Money{Won: 250_000}},
	}

	entry, err := f.brokers.Refresh(ctx, u.ID)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if entry.Total.Won != 750_000 {
		t.Fatalf("total = %d", entry.Total.Won)
	}
	f.clock.Advance(time.Minute)
	if _, err := f.brokers.Refresh(ctx, u.ID); err != nil {
		t.Fatalf("second refresh: %v", err)
	}

	snaps, _ := f.repo.Snapshots().List(ctx, []string{u.ID})
	if len(snaps) != 1 || snaps[0].BrokerTotal.Won != 750_000 {
		t.Fatalf("snapshots = %+v", snaps)
	}
	if n := len(f.pub.ofType(amqp.TypeSnapshotSaved)); n != 1 {
		t.Fatalf("snapshot events = %d", n)
	}

	f.clock.Advance(24 * time.Hour)
	f.brokers.Refresh(ctx, u.ID)
	snaps, _ = f.repo.Snapshots().List(ctx, []string{u.ID})
	if len(snaps) != 2 {
		t.Fatalf("snapshots after a day = %d, want 2", len(snaps))
	}
}

func TestHoldingsUsesCachedEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u, _ := f.household.EnsureUser(ctx, alice.AccountID, alice.Email)
	f.brokers.SaveConnection(ctx, u, ConnectionInput{AppKey: "key1", AppSecret: "s", AccountNumber: "12345678"})
	f.broker.holdings = []core.Holding{{Code: "005930", EvalAmount: core.Money{Won: 1}}}

	for range 3 {
		if _, err := f.brokers.Holdings(ctx, u); err != nil {
			t.Fatalf("holdings: %v", err)
		}
	}
	if f.broker.calls != 1 {
		t.Fatalf("broker called %d times, want 1", f.broker.calls)
	}

	if err := f.brokers.DeleteConnection(ctx, u); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := f.book.Get(u.ID); ok {
		t.Fatal("holdings kept after disconnect")
	}
	if err := f.brokers.DeleteConnection(ctx, u); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("second delete err = %v", err)
	}
}

func TestSnapshotAllSurvivesBrokerFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.link(t)
	for _, u := range []core.User{a, b} {
		f.brokers.SaveConnection(ctx, u, ConnectionInput{AppKey: "key1", AppSecret: "s", AccountNumber: "12345678"})
	}
	f.broker.err = errors.New("upstream unavailable")

	saved, err := f.brokers.SnapshotAll(ctx)
	if err != nil {
		t.Fatalf("snapshot all: %v", err)
	}
	if saved != 2 {
		t.Fatalf("saved = %d, want 2", saved)
	}
}

func TestRefreshActiveSkipsFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.link(t)
	f.brokers.SaveConnection(ctx, a, ConnectionInput{AppKey: "key1", AppSecret: "s", AccountNumber: "12345678"})
	f.book.Touch(a.ID, b.ID)

	if n := f.brokers.RefreshActive(ctx, time.Hour); n != 1 {
		t.Fatalf("refreshed %d, want 1", n)
	}
}

func TestHoldingsBookKeepsNewestRead(t *testing.T) {
	b := NewHoldingsBook()
	now := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	b.Put("u1", []core.Holding{{EvalAmount: core.Money{Won: 2}}}, now)
	b.Put("u1", []core.Holding{{EvalAmount: core.Money{Won: 1}}}, now.Add(-time.Second))
	if e, _ := b.Get("u1"); e.Total.Won != 2 {
		t.Fatalf("older read replaced newer: %+v", e)
	}

	total, ok := b.Total([]string{"u1", "u2"})
	if !ok || total.Won != 2 {
		t.Fatalf("total = %d, %v", total.Won, ok)
	}
	if _, ok := b.Total([]string{"u3"}); ok {
		t.Fatal("total found for unknown user")
	}

	b.Touch("u1")
	now = now.Add(2 * time.Hour)
	b.Touch("u2")
	if got := b.Active(time.Hour); len(got) != 1 || got[0] != "u2" {
		t.Fatalf("active = %v", got)
	}
}
