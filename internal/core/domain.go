package core

import (
	"errors"
	"strings"
	"time"
)

// Partner slots. A linked pair always holds one of each.
const (
	SlotPartner1 PartnerSlot = "PARTNER_1"
	SlotPartner2 PartnerSlot = "PARTNER_2"
)

// Ledger transaction types.
const (
	LedgerIncome  LedgerType = "INCOME"
	LedgerExpense LedgerType = "EXPENSE"
)

// Savings types.
const (
	SavingsDeposit   SavingsType = "SAVINGS"
	SavingsEmergency SavingsType = "EMERGENCY_FUND"
)

// LivingCategoryGeneral is the only living-expense category counted as a
// monthly household expense.
const LivingCategoryGeneral = "생활비"

type (
	PartnerSlot string
	LedgerType  string
	SavingsType string

	Date struct {
		time.Time
	}

	Money struct {
		Won int64
	}

	// Meta is the header shared by every financial record. CreatedBy
	// scopes visibility to the creator's household.
	Meta struct {
		ID        string    `json:"id"`
		CreatedBy string    `json:"createdBy"`
		CreatedAt time.Time `json:"createdAt"`
	}

	User struct {
		ID        string      `json:"id"`
		AuthID    string      `json:"authId,omitempty"`
		Name      string      `json:"name"`
		Slot      PartnerSlot `json:"type,omitempty"`
		Character string      `json:"character,omitempty"`
		PartnerID string      `json:"partnerId,omitempty"`
		CreatedAt time.Time   `json:"createdAt"`
		UpdatedAt time.Time   `json:"updatedAt"`
	}

	Account struct {
		ID           string    `json:"id"`
		Email        string    `json:"email"`
		PasswordHash string    `json:"-"`
		CreatedAt    time.Time `json:"createdAt"`
	}

	Salary struct {
		Meta
		UserID string `json:"userId"`
		Amount Money  `json:"amount"`
		Date   Date   `json:"date"`
		Memo   string `json:"memo,omitempty"`
	}

	FixedExpense struct {
		Meta
		UserID     string `json:"userId"`
		Name       string `json:"name"`
		Amount     Money  `json:"amount"`
		DayOfMonth int    `json:"dayOfMonth"`
		Memo       string `json:"memo,omitempty"`
	}

	LivingExpense struct {
		Meta
		Amount   Money  `json:"amount"`
		Date     Date   `json:"date"`
		Category string `json:"category"`
		Memo     string `json:"memo,omitempty"`
	}

	Allowance struct {
		Meta
		UserID string `json:"userId"`
		Amount Money  `json:"amount"`
		Date   Date   `json:"date"`
		Memo   string `json:"memo,omitempty"`
	}

	LedgerTransaction struct {
		Meta
		Type     LedgerType `json:"type"`
		Amount   Money      `json:"amount"`
		Date     Date       `json:"date"`
		Category string     `json:"category"`
		Memo     string     `json:"memo,omitempty"`
		UserID   string     `json:"userId,omitempty"` // empty for joint transactions
	}

	Savings struct {
		Meta
		Type   SavingsType `json:"type"`
		Amount Money       `json:"amount"`
		Date   Date        `json:"date"`
		Memo   string      `json:"memo,omitempty"`
	}

	Investment struct {
		Meta
		Name         string `json:"name"`
		Type         string `json:"type"`
		Amount       Money  `json:"amount"`
		Date         Date   `json:"date"`
		CurrentValue *Money `json:"currentValue,omitempty"`
		Memo         string `json:"memo,omitempty"`
	}

	Goal struct {
		Meta
		Title         string `json:"title"`
		TargetAmount  Money  `json:"targetAmount"`
		CurrentAmount Money  `json:"currentAmount"`
		Deadline      Date   `json:"deadline"`
		Memo          string `json:"memo,omitempty"`
	}

	InvestmentSnapshot struct {
		ID               string    `json:"id"`
		UserID           string    `json:"userId"`
		Date             Date      `json:"snapshotDate"`
		InvestmentAmount Money     `json:"investmentAmount"`
		BrokerTotal      Money     `json:"brokerTotalValue"`
		CreatedAt        time.Time `json:"createdAt"`
	}
)

var (
	ErrInvalidDay        = errors.New("invalid day")
	ErrInvalidMonth      = errors.New("invalid month")
	ErrInvalidDate       = errors.New("invalid date")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidDayOfMonth = errors.New("day of month must be between 1 and 31")
	ErrInvalidType       = errors.New("invalid type")
	ErrMissingOwner      = errors.New("missing user id")
	ErrEmptyName         = errors.New("empty name")
	ErrEmptyCategory     = errors.New("empty category")
	ErrEmptyTitle        = errors.New("empty title")
)

// Base returns the record header. It is promoted to every record type.
func (m Meta) Base() Meta { return m }

// Opposite returns the other partner slot. An unset slot counts as
// PARTNER_2, so its opposite is PARTNER_1.
func (s PartnerSlot) Opposite() PartnerSlot {
	if s == SlotPartner1 {
		return SlotPartner2
	}
	return SlotPartner1
}

// Valid reports whether s is empty or one of the two known slots.
func (s PartnerSlot) Valid() bool {
	return s == "" || s == SlotPartner1 || s == SlotPartner2
}

// HasPartner reports whether the user is linked.
func (u User) HasPartner() bool { return u.PartnerID != "" }

// Household returns the ids whose records the user can see.
func (u User) Household() []string {
	if u.PartnerID == "" {
		return []string{u.ID}
	}
	return []string{u.ID, u.PartnerID}
}

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DefaultName derives a display name from the local part of an email.
func DefaultName(email string) string {
	local, _, _ := strings.Cut(email, "@")
	if local == "" {
		return email
	}
	return local
}

// CleanMemo trims a memo; blank memos become empty.
func CleanMemo(s string) string {
	return strings.TrimSpace(s)
}

func (m Money) Validate() error {
	if m.Won <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (s Salary) Validate() error {
	if strings.TrimSpace(s.UserID) == "" {
		return ErrMissingOwner
	}
	if err := s.Amount.Validate(); err != nil {
		return err
	}
	return s.Date.Validate()
}

func (s Salary) WithMeta(m Meta) Salary { s.Meta = m; return s }
func (s Salary) OwnerID() string        { return s.UserID }

func (f FixedExpense) Validate() error {
	if strings.TrimSpace(f.UserID) == "" {
		return ErrMissingOwner
	}
	if strings.TrimSpace(f.Name) == "" {
		return ErrEmptyName
	}
	if err := f.Amount.Validate(); err != nil {
		return err
	}
	if f.DayOfMonth < 1 || f.DayOfMonth > 31 {
		return ErrInvalidDayOfMonth
	}
	return nil
}

func (f FixedExpense) WithMeta(m Meta) FixedExpense { f.Meta = m; return f }
func (f FixedExpense) OwnerID() string              { return f.UserID }

// DueDate returns the day the expense falls on in month m, clamped to
// the month's last day.
func (f FixedExpense) DueDate(m Month) Date {
	day := f.DayOfMonth
	if last := m.Days(); day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return NewDate(m.Year, int(m.Month), day)
}

func (l LivingExpense) Validate() error {
	if err := l.Amount.Validate(); err != nil {
		return err
	}
	if err := l.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(l.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

func (l LivingExpense) WithMeta(m Meta) LivingExpense { l.Meta = m; return l }

func (a Allowance) Validate() error {
	if strings.TrimSpace(a.UserID) == "" {
		return ErrMissingOwner
	}
	if err := a.Amount.Validate(); err != nil {
		return err
	}
	return a.Date.Validate()
}

func (a Allowance) WithMeta(m Meta) Allowance { a.Meta = m; return a }
func (a Allowance) OwnerID() string           { return a.UserID }

func (t LedgerTransaction) Validate() error {
	if t.Type != LedgerIncome && t.Type != LedgerExpense {
		return ErrInvalidType
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

func (t LedgerTransaction) WithMeta(m Meta) LedgerTransaction { t.Meta = m; return t }
func (t LedgerTransaction) OwnerID() string                   { return t.UserID }

// Joint reports whether the transaction belongs to the household rather
// than one partner.
func (t LedgerTransaction) Joint() bool { return t.UserID == "" }

func (s Savings) Validate() error {
	if s.Type != SavingsDeposit && s.Type != SavingsEmergency {
		return ErrInvalidType
	}
	if err := s.Amount.Validate(); err != nil {
		return err
	}
	return s.Date.Validate()
}

func (s Savings) WithMeta(m Meta) Savings { s.Meta = m; return s }

func (i Investment) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return ErrEmptyName
	}
	if strings.TrimSpace(i.Type) == "" {
		return ErrInvalidType
	}
	if err := i.Amount.Validate(); err != nil {
		return err
	}
	if i.CurrentValue != nil && i.CurrentValue.Won < 0 {
		return ErrInvalidAmount
	}
	return i.Date.Validate()
}

func (i Investment) WithMeta(m Meta) Investment { i.Meta = m; return i }

// Value is the current value when known, otherwise the principal. A
// recorded current value of zero counts as unknown.
func (i Investment) Value() Money {
	if i.CurrentValue != nil && i.CurrentValue.Won != 0 {
		return *i.CurrentValue
	}
	return i.Amount
}

func (g Goal) Validate() error {
	if strings.TrimSpace(g.Title) == "" {
		return ErrEmptyTitle
	}
	if err := g.TargetAmount.Validate(); err != nil {
		return err
	}
	if g.CurrentAmount.Won < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (g Goal) WithMeta(m Meta) Goal { g.Meta = m; return g }

// Progress returns the completion percentage, capped at 100.
func (g Goal) Progress() float64 {
	if g.TargetAmount.Won <= 0 {
		return 0
	}
	p := float64(g.CurrentAmount.Won) / float64(g.TargetAmount.Won) * 100
	if p > 100 {
		return 100
	}
	return p
}

// Value is the valuation a snapshot contributes: the broker total when
// present, otherwise the locally entered investment amount.
func (s InvestmentSnapshot) Value() Money {
	if s.BrokerTotal.Won > 0 {
		return s.BrokerTotal
	}
	return s.InvestmentAmount
}

// HouseholdKey identifies a household independently of which partner is
// viewing: the member ids sorted and joined with "+".
func (u User) HouseholdKey() string {
	ids := u.Household()
	if len(ids) == 2 && ids[1] < ids[0] {
		ids[0], ids[1] = ids[1], ids[0]
	}
	return strings.Join(ids, "+")
}
