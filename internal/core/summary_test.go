package core

import (
	"testing"
	"time"
)

func won(v int64) Money { return Money{Won: v} }

func october() Month { return Month{Year: 2025, Month: time.October} }

func sampleRecords() Records {
	return Records{
		Salaries: []Salary{
			{UserID: "a", Amount: won(3000000), Date: NewDate(2025, 10, 25)},
			{UserID: "a", Amount: won(2900000), Date: NewDate(2025, 9, 25)},
		},
		FixedExpenses: []FixedExpense{
			{UserID: "a", Name: "rent", Amount: won(500000), DayOfMonth: 1},
		},
		LivingExpenses: []LivingExpense{
			{Amount: won(300000), Date: NewDate(2025, 10, 3), Category: LivingCategoryGeneral},
			{Amount: won(70000), Date: NewDate(2025, 10, 4), Category: "경조사"},
			{Amount: won(10000), Date: NewDate(2025, 9, 4), Category: LivingCategoryGeneral},
		},
		Allowances: []Allowance{
			{UserID: "a", Amount: won(100000), Date: NewDate(2025, 10, 1)},
		},
		Savings: []Savings{
			{Type: SavingsDeposit, Amount: won(600000), Date: NewDate(2025, 8, 1)},
			{Type: SavingsEmergency, Amount: won(400000), Date: NewDate(2025, 10, 1)},
		},
		Investments: []Investment{
			{Name: "ETF", Type: "stock", Amount: won(1500000), Date: NewDate(2025, 7, 1), CurrentValue: &Money{Won: 2000000}},
		},
	}
}

func TestSummarizeCashBalance(t *testing.T) {
	r := sampleRecords()
	s := Summarize(r, october(), r.LocalInvestmentValue(), SummaryOptions{})

	if s.Income.Won != 3000000 {
		t.Errorf("income = %d, want 3000000", s.Income.Won)
	}
	if s.Expense.Won != 900000 {
		t.Errorf("expense = %d, want 900000", s.Expense.Won)
	}
	if s.Cash.Won != 2100000 {
		t.Errorf("cash = %d, want 2100000", s.Cash.Won)
	}
	if s.Savings.Won != 1000000 {
		t.Errorf("savings = %d, want 1000000", s.Savings.Won)
	}
	if s.Investment.Won != 2000000 {
		t.Errorf("investment = %d, want 2000000", s.Investment.Won)
	}
	if s.TotalAssets.Won != 5100000 {
		t.Errorf("total assets = %d, want 5100000", s.TotalAssets.Won)
	}
}

func TestSummarizeIdentities(t *testing.T) {
	r := sampleRecords()
	r.Ledger = []LedgerTransaction{
		{Type: LedgerIncome, Amount: won(50000), Date: NewDate(2025, 10, 9), Category: "refund"},
		{Type: LedgerExpense, Amount: won(4000000), Date: NewDate(2025, 10, 9), Category: "car"},
	}
	for _, opts := range []SummaryOptions{{}, {IncludeDeposits: true}} {
		for _, m := range []Month{october(), october().Prev(), october().Prev().Prev()} {
			s := Summarize(r, m, won(123), opts)
			if s.Cash != s.Income.Sub(s.Expense) {
				t.Errorf("%s: cash %d != income %d - expense %d", m, s.Cash.Won, s.Income.Won, s.Expense.Won)
			}
			if s.TotalAssets != s.Cash.Add(s.Savings).Add(s.Investment) {
				t.Errorf("%s: total assets identity broken", m)
			}
		}
	}

	s := Summarize(r, october(), won(0), SummaryOptions{})
	if s.Cash.Won >= 0 {
		t.Errorf("expected negative cash, got %d", s.Cash.Won)
	}
}

func TestExpenseIncludeDeposits(t *testing.T) {
	r := sampleRecords()
	without := r.Expense(october(), SummaryOptions{})
	with := r.Expense(october(), SummaryOptions{IncludeDeposits: true})
	if without.Deposits.Won != 0 {
		t.Errorf("deposits counted without option: %d", without.Deposits.Won)
	}
	if with.Deposits.Won != 400000 {
		t.Errorf("deposits = %d, want 400000", with.Deposits.Won)
	}
	if with.Total().Won-without.Total().Won != 400000 {
		t.Error("deposit line should add to total")
	}
}

func TestChangePercent(t *testing.T) {
	cases := []struct {
		cur, prev int64
		want      float64
	}{
		{110, 100, 10},
		{90, 100, -10},
		{500, 0, 0},
		{0, 0, 0},
		{100, -50, 0},
	}
	for _, tc := range cases {
		if got := ChangePercent(won(tc.cur), won(tc.prev)); got != tc.want {
			t.Errorf("ChangePercent(%d, %d) = %v, want %v", tc.cur, tc.prev, got, tc.want)
		}
	}
}

func TestInvestmentAt(t *testing.T) {
	snaps := []InvestmentSnapshot{
		{UserID: "a", Date: NewDate(2025, 9, 10), InvestmentAmount: won(1000), BrokerTotal: won(0)},
		{UserID: "a", Date: NewDate(2025, 9, 28), InvestmentAmount: won(1200), BrokerTotal: won(0)},
		{UserID: "a", Date: NewDate(2025, 10, 2), InvestmentAmount: won(9999), BrokerTotal: won(0)},
	}

	got, ok := InvestmentAt(snaps, october().Prev())
	if !ok || got.Won != 1200 {
		t.Fatalf("September value = %d (ok=%v), want 1200", got.Won, ok)
	}

	if _, ok := InvestmentAt(snaps, Month{Year: 2025, Month: time.August}); ok {
		t.Error("expected no snapshot before September")
	}

	snaps = append(snaps,
		InvestmentSnapshot{UserID: "b", Date: NewDate(2025, 9, 20), InvestmentAmount: won(1200), BrokerTotal: won(5000)},
	)
	got, _ = InvestmentAt(snaps, october().Prev())
	if got.Won != 5000 {
		t.Errorf("broker total should win, got %d", got.Won)
	}
}

func TestBuildDashboard(t *testing.T) {
	r := sampleRecords()
	snaps := []InvestmentSnapshot{
		{UserID: "a", Date: NewDate(2025, 9, 30), InvestmentAmount: won(1800000)},
	}

	d := BuildDashboard(DashboardInput{Records: r, Month: october(), Snapshots: snaps})
	if d.InvestmentSource != SourceLocal {
		t.Errorf("source = %s", d.InvestmentSource)
	}
	if d.Current.TotalAssets.Won != 5100000 {
		t.Errorf("current assets = %d", d.Current.TotalAssets.Won)
	}

	// September: salary 2,900,000 - (rent 500,000 + living 10,000) = 2,390,000 cash,
	// savings 600,000, investment snapshot 1,800,000.
	if d.PreviousAssets.Won != 4790000 {
		t.Errorf("previous assets = %d, want 4790000", d.PreviousAssets.Won)
	}
	if d.Change.Won != 310000 {
		t.Errorf("change = %d", d.Change.Won)
	}
	if d.ChangePct <= 6.47 || d.ChangePct >= 6.48 {
		t.Errorf("change pct = %v", d.ChangePct)
	}

	if len(d.History) != 4 {
		t.Fatalf("history months = %d, want 4 (jul, aug, sep, oct)", len(d.History))
	}
	if d.History[0].Month.String() != "2025-07" || d.History[3].Month != october() {
		t.Errorf("history order = %s .. %s", d.History[0].Month, d.History[3].Month)
	}
	if d.History[3] != d.Current {
		t.Error("current month in history should match the live summary")
	}
}

func TestBuildDashboardBrokerSupersedes(t *testing.T) {
	d := BuildDashboard(DashboardInput{Records: sampleRecords(), Month: october(), BrokerTotal: won(7000000)})
	if d.InvestmentSource != SourceBroker {
		t.Errorf("source = %s", d.InvestmentSource)
	}
	if d.Current.Investment.Won != 7000000 {
		t.Errorf("investment = %d", d.Current.Investment.Won)
	}
}

func TestBuildDashboardPastMonthUsesSnapshots(t *testing.T) {
	snaps := []InvestmentSnapshot{
		{UserID: "a", Date: NewDate(2025, 9, 30), InvestmentAmount: won(1800000)},
	}
	sep := october().Prev()
	d := BuildDashboard(DashboardInput{
		Records: sampleRecords(), Month: sep, BrokerTotal: won(7000000), Snapshots: snaps, Live: october(),
	})
	if d.InvestmentSource != SourceSnapshot {
		t.Errorf("source = %s", d.InvestmentSource)
	}
	if d.Current.Investment.Won != 1800000 {
		t.Errorf("investment = %d, want snapshot 1800000", d.Current.Investment.Won)
	}

	live := BuildDashboard(DashboardInput{
		Records: sampleRecords(), Month: october(), BrokerTotal: won(7000000), Snapshots: snaps, Live: october(),
	})
	if live.InvestmentSource != SourceBroker {
		t.Errorf("live source = %s", live.InvestmentSource)
	}
}

func TestBuildDashboardZeroPrevious(t *testing.T) {
	r := Records{
		Salaries: []Salary{{UserID: "a", Amount: won(100), Date: NewDate(2025, 10, 1)}},
	}
	d := BuildDashboard(DashboardInput{Records: r, Month: october()})
	if d.PreviousAssets.Won != 0 {
		t.Fatalf("previous = %d", d.PreviousAssets.Won)
	}
	if d.ChangePct != 0 {
		t.Errorf("change pct = %v, want 0", d.ChangePct)
	}
	if len(d.History) != 1 {
		t.Errorf("history = %d months, want 1", len(d.History))
	}
}
