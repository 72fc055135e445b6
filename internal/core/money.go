// Package core provides money parsing and handling utilities.
//
// Amounts are whole Korean won. There is no minor unit, so every value is
// an int64 and arithmetic never rounds.
package core

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode"
)

// Add returns m + o.
func (m Money) Add(o Money) Money { return Money{Won: m.Won + o.Won} }

// Sub returns m - o.
func (m Money) Sub(o Money) Money { return Money{Won: m.Won - o.Won} }

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool { return m.Won == 0 }

// ParseWon converts a user-entered amount to won.
//
// It accepts digit grouping commas, surrounding whitespace and an optional
// trailing "원". Signs and fractional parts are rejected.
//
// Examples:
//
//	ParseWon("3,000,000")  -> 3000000, nil
//	ParseWon(" 1500원 ")   -> 1500, nil
//	ParseWon("-1")         -> 0, ErrInvalidAmount
func ParseWon(s string) (int64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "원")
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, ErrInvalidAmount
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	return v, nil
}

// String formats the amount with digit grouping, e.g. "3,000,000원".
func (m Money) String() string {
	return FormatWon(m.Won) + "원"
}

// FormatWon groups digits by thousands.
func FormatWon(won int64) string {
	neg := won < 0
	if neg {
		won = -won
	}
	digits := strconv.FormatInt(won, 10)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(digits[:lead])
	for i := lead; i < len(digits); i += 3 {
		b.WriteByte(',')
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// MarshalJSON encodes the amount as a bare JSON number.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(m.Won, 10)), nil
}

// UnmarshalJSON accepts a JSON number or a formatted string such as
// "3,000,000원".
func (m *Money) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := ParseWon(s)
		if err != nil {
			return err
		}
		m.Won = v
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return ErrInvalidAmount
	}
	v, err := n.Int64()
	if err != nil {
		return ErrInvalidAmount
	}
	m.Won = v
	return nil
}
