package core

import "math"

// HistoryMonths bounds the dashboard's month-by-month series.
const HistoryMonths = 6

// Investment valuation sources reported on a dashboard.
const (
	SourceBroker   InvestmentSource = "broker"
	SourceLocal    InvestmentSource = "local"
	SourceSnapshot InvestmentSource = "snapshot"
)

type InvestmentSource string

// SummaryOptions toggles optional aggregation rules.
type SummaryOptions struct {
	// IncludeDeposits counts savings and investment principal dated in the
	// month as an expense line.
	IncludeDeposits bool
}

// IncomeBreakdown splits monthly income by source.
type IncomeBreakdown struct {
	Salary Money `json:"salary"`
	Ledger Money `json:"ledger"`
}

// Total returns the sum of all income lines.
func (b IncomeBreakdown) Total() Money { return b.Salary.Add(b.Ledger) }

// ExpenseBreakdown splits monthly expense by source.
type ExpenseBreakdown struct {
	Fixed     Money `json:"fixed"`
	Living    Money `json:"living"`
	Allowance Money `json:"allowance"`
	Ledger    Money `json:"ledger"`
	Deposits  Money `json:"deposits"`
}

// Total returns the sum of all expense lines.
func (b ExpenseBreakdown) Total() Money {
	return b.Fixed.Add(b.Living).Add(b.Allowance).Add(b.Ledger).Add(b.Deposits)
}

// MonthlySummary is the aggregated position of a household for one month.
type MonthlySummary struct {
	Month            Month            `json:"month"`
	Income           Money            `json:"totalIncome"`
	IncomeBreakdown  IncomeBreakdown  `json:"incomeBreakdown"`
	Expense          Money            `json:"totalExpense"`
	ExpenseBreakdown ExpenseBreakdown `json:"expenseBreakdown"`
	Cash             Money            `json:"cashBalance"`
	Savings          Money            `json:"savings"`
	Investment       Money            `json:"investment"`
	TotalAssets      Money            `json:"totalAssets"`
}

// Dashboard is the current month summary plus its trend.
type Dashboard struct {
	Current          MonthlySummary   `json:"current"`
	PreviousAssets   Money            `json:"previousAssets"`
	Change           Money            `json:"assetChange"`
	ChangePct        float64          `json:"assetChangePercent"`
	InvestmentSource InvestmentSource `json:"investmentSource"`
	History          []MonthlySummary `json:"history"`
}

// Income sums salaries and ledger income dated in m.
func (r Records) Income(m Month) IncomeBreakdown {
	var b IncomeBreakdown
	for _, s := range r.Salaries {
		if m.Contains(s.Date) {
			b.Salary.Won += s.Amount.Won
		}
	}
	for _, t := range r.Ledger {
		if t.Type == LedgerIncome && m.Contains(t.Date) {
			b.Ledger.Won += t.Amount.Won
		}
	}
	return b
}

// Expense sums the month's outflows. Fixed expenses recur and are counted
// in every month; only the general living category is counted.
func (r Records) Expense(m Month, opts SummaryOptions) ExpenseBreakdown {
	var b ExpenseBreakdown
	for _, f := range r.FixedExpenses {
		b.Fixed.Won += f.Amount.Won
	}
	for _, l := range r.LivingExpenses {
		if l.Category == LivingCategoryGeneral && m.Contains(l.Date) {
			b.Living.Won += l.Amount.Won
		}
	}
	for _, a := range r.Allowances {
		if m.Contains(a.Date) {
			b.Allowance.Won += a.Amount.Won
		}
	}
	for _, t := range r.Ledger {
		if t.Type == LedgerExpense && m.Contains(t.Date) {
			b.Ledger.Won += t.Amount.Won
		}
	}
	if opts.IncludeDeposits {
		for _, s := range r.Savings {
			if m.Contains(s.Date) {
				b.Deposits.Won += s.Amount.Won
			}
		}
		for _, i := range r.Investments {
			if m.Contains(i.Date) {
				b.Deposits.Won += i.Amount.Won
			}
		}
	}
	return b
}

// SavingsThrough sums savings dated on or before the end of m.
func (r Records) SavingsThrough(m Month) Money {
	end := m.End()
	var total Money
	for _, s := range r.Savings {
		if !s.Date.After(end) {
			total.Won += s.Amount.Won
		}
	}
	return total
}

// LocalInvestmentValue sums the locally entered investment valuations.
func (r Records) LocalInvestmentValue() Money {
	var total Money
	for _, i := range r.Investments {
		total.Won += i.Value().Won
	}
	return total
}

// HasActivity reports whether any dated record falls in m.
func (r Records) HasActivity(m Month) bool {
	for _, s := range r.Salaries {
		if m.Contains(s.Date) {
			return true
		}
	}
	for _, l := range r.LivingExpenses {
		if m.Contains(l.Date) {
			return true
		}
	}
	for _, a := range r.Allowances {
		if m.Contains(a.Date) {
			return true
		}
	}
	for _, t := range r.Ledger {
		if m.Contains(t.Date) {
			return true
		}
	}
	for _, s := range r.Savings {
		if m.Contains(s.Date) {
			return true
		}
	}
	for _, i := range r.Investments {
		if m.Contains(i.Date) {
			return true
		}
	}
	return false
}

// Summarize aggregates month m given the investment valuation to use.
func Summarize(r Records, m Month, investment Money, opts SummaryOptions) MonthlySummary {
	in := r.Income(m)
	out := r.Expense(m, opts)
	s := MonthlySummary{
		Month:            m,
		Income:           in.Total(),
		IncomeBreakdown:  in,
		Expense:          out.Total(),
		ExpenseBreakdown: out,
		Savings:          r.SavingsThrough(m),
		Investment:       investment,
	}
	s.Cash = s.Income.Sub(s.Expense)
	s.TotalAssets = s.Cash.Add(s.Savings).Add(s.Investment)
	return s
}

// InvestmentAt reconstructs the household's investment value at the end
// of m from saved snapshots. Each member contributes their latest snapshot
// dated on or before the month end. Broker totals win when any are
// present; otherwise the most recent snapshot's local amount is used. The
// second result is false when no snapshot qualifies.
func InvestmentAt(snaps []InvestmentSnapshot, m Month) (Money, bool) {
	end := m.End()
	latest := make(map[string]InvestmentSnapshot)
	for _, s := range snaps {
		if s.Date.After(end) {
			continue
		}
		if cur, ok := latest[s.UserID]; !ok || s.Date.After(cur.Date) {
			latest[s.UserID] = s
		}
	}
	if len(latest) == 0 {
		return Money{}, false
	}

	var broker Money
	var newest InvestmentSnapshot
	first := true
	for _, s := range latest {
		broker.Won += s.BrokerTotal.Won
		if first || s.Date.After(newest.Date) {
			newest = s
			first = false
		}
	}
	if broker.Won > 0 {
		return broker, true
	}
	return newest.InvestmentAmount, true
}

// ChangePercent returns the relative change from previous to current in
// percent. A non-positive previous value yields 0.
func ChangePercent(current, previous Money) float64 {
	if previous.Won <= 0 {
		return 0
	}
	pct := float64(current.Won-previous.Won) / float64(previous.Won) * 100
	if math.IsNaN(pct) || math.IsInf(pct, 0) {
		return 0
	}
	return pct
}

// ActiveMonths returns up to limit months ending at current that have
// recorded activity, oldest first.
func ActiveMonths(r Records, current Month, limit int) []Month {
	months := make([]Month, 0, limit)
	m := current
	for i := 0; i < limit; i++ {
		if r.HasActivity(m) {
			months = append(months, m)
		}
		m = m.Prev()
	}
	for i, j := 0, len(months)-1; i < j; i, j = i+1, j-1 {
		months[i], months[j] = months[j], months[i]
	}
	return months
}

// DashboardInput gathers everything BuildDashboard needs.
type DashboardInput struct {
	Records     Records
	Month       Month
	BrokerTotal Money
	Snapshots   []InvestmentSnapshot
	Options     SummaryOptions
	// Live is the month containing now. A Month before it is valued from
	// snapshots; the zero value treats Month as live.
	Live Month
}

// BuildDashboard computes the month summary, the previous month's assets
// from snapshots, the change between them and the activity history.
func BuildDashboard(in DashboardInput) Dashboard {
	investment := in.Records.LocalInvestmentValue()
	source := SourceLocal
	switch {
	case in.Live != (Month{}) && in.Month.Before(in.Live):
		investment, _ = InvestmentAt(in.Snapshots, in.Month)
		source = SourceSnapshot
	case in.BrokerTotal.Won > 0:
		investment = in.BrokerTotal
		source = SourceBroker
	}

	d := Dashboard{
		Current:          Summarize(in.Records, in.Month, investment, in.Options),
		InvestmentSource: source,
	}

	prev := in.Month.Prev()
	d.PreviousAssets = pastSummary(in, prev).TotalAssets
	d.Change = d.Current.TotalAssets.Sub(d.PreviousAssets)
	d.ChangePct = ChangePercent(d.Current.TotalAssets, d.PreviousAssets)

	for _, m := range ActiveMonths(in.Records, in.Month, HistoryMonths) {
		if m == in.Month {
			d.History = append(d.History, d.Current)
			continue
		}
		d.History = append(d.History, pastSummary(in, m))
	}
	return d
}

func pastSummary(in DashboardInput, m Month) MonthlySummary {
	value, _ := InvestmentAt(in.Snapshots, m)
	return Summarize(in.Records, m, value, in.Options)
}
