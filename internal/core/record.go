package core

// Record is implemented by every financial record kind. WithMeta returns a
// copy carrying the given header, which lets repositories stamp ids
// without knowing the concrete type.
type Record[T any] interface {
	Base() Meta
	WithMeta(Meta) T
	Validate() error
}

// Owned is implemented by records attributed to one partner. An empty
// owner means the record is joint.
type Owned interface {
	OwnerID() string
}

// Kind names a record collection. The values double as table names and
// URL segments.
type Kind string

const (
	KindSalary        Kind = "salaries"
	KindFixedExpense  Kind = "fixed-expenses"
	KindLivingExpense Kind = "living-expenses"
	KindAllowance     Kind = "allowances"
	KindLedger        Kind = "ledger"
	KindSavings       Kind = "savings"
	KindInvestment    Kind = "investments"
	KindGoal          Kind = "goals"
)

// Kinds lists every record collection.
func Kinds() []Kind {
	return []Kind{
		KindSalary, KindFixedExpense, KindLivingExpense, KindAllowance,
		KindLedger, KindSavings, KindInvestment, KindGoal,
	}
}

// Records is a household's full record set, as loaded for aggregation.
type Records struct {
	Salaries       []Salary            `json:"salaries"`
	FixedExpenses  []FixedExpense      `json:"fixedExpenses"`
	LivingExpenses []LivingExpense     `json:"livingExpenses"`
	Allowances     []Allowance         `json:"allowances"`
	Ledger         []LedgerTransaction `json:"ledgerTransactions"`
	Savings        []Savings           `json:"savings"`
	Investments    []Investment        `json:"investments"`
	Goals          []Goal              `json:"goals"`
}

// Facts are the attributes shared across record kinds, for events and
// logging. Zero values mean the kind has no such attribute.
type Facts struct {
	Owner  string
	Date   Date
	Amount Money
}

// FactsOf extracts Facts from any record kind.
func FactsOf(rec any) Facts {
	switch r := rec.(type) {
	case Salary:
		return Facts{Owner: r.UserID, Date: r.Date, Amount: r.Amount}
	case FixedExpense:
		return Facts{Owner: r.UserID, Amount: r.Amount}
	case LivingExpense:
		return Facts{Date: r.Date, Amount: r.Amount}
	case Allowance:
		return Facts{Owner: r.UserID, Date: r.Date, Amount: r.Amount}
	case LedgerTransaction:
		return Facts{Owner: r.UserID, Date: r.Date, Amount: r.Amount}
	case Savings:
		return Facts{Date: r.Date, Amount: r.Amount}
	case Investment:
		return Facts{Date: r.Date, Amount: r.Amount}
	case Goal:
		return Facts{Date: r.Deadline, Amount: r.TargetAmount}
	default:
		return Facts{}
	}
}
