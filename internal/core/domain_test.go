package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false},
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestDateJSON(t *testing.T) {
	var g Goal
	if err := json.Unmarshal([]byte(`{"title":"trip","targetAmount":100,"deadline":"2025-12-24"}`), &g); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if g.Deadline.String() != "2025-12-24" {
		t.Errorf("deadline = %q", g.Deadline.String())
	}

	if err := json.Unmarshal([]byte(`{"deadline":"24/12/2025"}`), &g); !errors.Is(err, ErrInvalidDate) {
		t.Errorf("expected ErrInvalidDate, got %v", err)
	}
}

func TestMonth(t *testing.T) {
	m, err := ParseMonth("2024-02")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.Days() != 29 {
		t.Errorf("Days() = %d, want 29", m.Days())
	}
	if m.End().String() != "2024-02-29" {
		t.Errorf("End() = %s", m.End())
	}
	if m.Prev().String() != "2024-01" || m.Next().String() != "2024-03" {
		t.Errorf("Prev/Next = %s/%s", m.Prev(), m.Next())
	}
	jan := Month{Year: 2025, Month: time.January}
	if jan.Prev().String() != "2024-12" {
		t.Errorf("January Prev() = %s", jan.Prev())
	}
	if !m.Contains(NewDate(2024, 2, 1)) || m.Contains(NewDate(2025, 2, 1)) {
		t.Error("Contains mismatch")
	}
	if !m.Before(jan) || jan.Before(m) {
		t.Error("Before mismatch")
	}
	if _, err := ParseMonth("2024-13"); !errors.Is(err, ErrInvalidMonth) {
		t.Errorf("expected ErrInvalidMonth, got %v", err)
	}
}

func TestRecordValidate(t *testing.T) {
	day := NewDate(2025, 3, 10)
	won := Money{Won: 1000}

	tests := []struct {
		name    string
		rec     interface{ Validate() error }
		wantErr error
	}{
		{"salary ok", Salary{UserID: "u1", Amount: won, Date: day}, nil},
		{"salary without owner", Salary{Amount: won, Date: day}, ErrMissingOwner},
		{"salary zero amount", Salary{UserID: "u1", Date: day}, ErrInvalidAmount},
		{"salary without date", Salary{UserID: "u1", Amount: won}, ErrInvalidDate},
		{"fixed ok", FixedExpense{UserID: "u1", Name: "rent", Amount: won, DayOfMonth: 25}, nil},
		{"fixed day 0", FixedExpense{UserID: "u1", Name: "rent", Amount: won}, ErrInvalidDayOfMonth},
		{"fixed day 32", FixedExpense{UserID: "u1", Name: "rent", Amount: won, DayOfMonth: 32}, ErrInvalidDayOfMonth},
		{"fixed without name", FixedExpense{UserID: "u1", Amount: won, DayOfMonth: 1}, ErrEmptyName},
		{"living ok", LivingExpense{Amount: won, Date: day, Category: LivingCategoryGeneral}, nil},
		{"living without category", LivingExpense{Amount: won, Date: day}, ErrEmptyCategory},
		{"allowance without owner", Allowance{Amount: won, Date: day}, ErrMissingOwner},
		{"ledger joint ok", LedgerTransaction{Type: LedgerExpense, Amount: won, Date: day, Category: "food"}, nil},
		{"ledger bad type", LedgerTransaction{Type: "TRANSFER", Amount: won, Date: day, Category: "food"}, ErrInvalidType},
		{"savings ok", Savings{Type: SavingsEmergency, Amount: won, Date: day}, nil},
		{"savings bad type", Savings{Type: "PENSION", Amount: won, Date: day}, ErrInvalidType},
		{"investment ok", Investment{Name: "ETF", Type: "stock", Amount: won, Date: day}, nil},
		{"investment negative value", Investment{Name: "ETF", Type: "stock", Amount: won, Date: day, CurrentValue: &Money{Won: -1}}, ErrInvalidAmount},
		{"goal ok with zero progress", Goal{Title: "trip", TargetAmount: won}, nil},
		{"goal without title", Goal{TargetAmount: won}, ErrEmptyTitle},
		{"goal zero target", Goal{Title: "trip"}, ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("expected ok, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestPartnerSlotOpposite(t *testing.T) {
	if SlotPartner1.Opposite() != SlotPartner2 {
		t.Error("PARTNER_1 should map to PARTNER_2")
	}
	if SlotPartner2.Opposite() != SlotPartner1 {
		t.Error("PARTNER_2 should map to PARTNER_1")
	}
	if PartnerSlot("").Opposite() != SlotPartner1 {
		t.Error("unset slot should map to PARTNER_1")
	}
}

func TestFixedExpenseDueDate(t *testing.T) {
	f := FixedExpense{DayOfMonth: 31}
	if got := f.DueDate(Month{Year: 2025, Month: time.February}).String(); got != "2025-02-28" {
		t.Errorf("DueDate clamped = %s", got)
	}
	f.DayOfMonth = 15
	if got := f.DueDate(Month{Year: 2025, Month: time.April}).String(); got != "2025-04-15" {
		t.Errorf("DueDate = %s", got)
	}
}

func TestInvestmentValue(t *testing.T) {
	i := Investment{Amount: Money{Won: 100}}
	if i.Value().Won != 100 {
		t.Errorf("principal fallback = %d", i.Value().Won)
	}
	i.CurrentValue = &Money{Won: 0}
	if i.Value().Won != 100 {
		t.Errorf("zero current value should fall back, got %d", i.Value().Won)
	}
	i.CurrentValue = &Money{Won: 150}
	if i.Value().Won != 150 {
		t.Errorf("current value = %d", i.Value().Won)
	}
}

func TestGoalProgress(t *testing.T) {
	g := Goal{TargetAmount: Money{Won: 200}, CurrentAmount: Money{Won: 50}}
	if g.Progress() != 25 {
		t.Errorf("Progress() = %v", g.Progress())
	}
	g.CurrentAmount.Won = 500
	if g.Progress() != 100 {
		t.Errorf("Progress() should cap at 100, got %v", g.Progress())
	}
}

func TestUserHousehold(t *testing.T) {
	u := User{ID: "a"}
	if got := u.Household(); len(got) != 1 || got[0] != "a" {
		t.Errorf("Household() = %v", got)
	}
	u.PartnerID = "b"
	if got := u.Household(); len(got) != 2 || got[1] != "b" {
		t.Errorf("Household() = %v", got)
	}
	partner := User{ID: "b", PartnerID: "a"}
	if u.HouseholdKey() != "a+b" || partner.HouseholdKey() != "a+b" {
		t.Errorf("HouseholdKey() = %q / %q, want a+b for both", u.HouseholdKey(), partner.HouseholdKey())
	}
}

func TestEmailHelpers(t *testing.T) {
	if got := NormalizeEmail("  Jane.Doe@Example.COM "); got != "jane.doe@example.com" {
		t.Errorf("NormalizeEmail = %q", got)
	}
	if got := DefaultName("jane@example.com"); got != "jane" {
		t.Errorf("DefaultName = %q", got)
	}
}
