package broker

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var ErrInvalidAccount = errors.New("invalid broker account number")

// Account is a KIS account number split into its 8-digit CANO and the
// 2-digit product code.
type Account struct {
	CANO        string
	ProductCode string
}

func (a Account) String() string { return a.CANO + "-" + a.ProductCode }

// ParseAccount accepts "12345678-01" or a bare digit string whose first
// eight digits are the CANO and the next two the product code. A missing
// product code defaults to "01"; a single digit is zero padded.
func ParseAccount(s string) (Account, error) {
	s = strings.Join(strings.Fields(s), "")
	var cano, product string
	if before, after, ok := strings.Cut(s, "-"); ok {
		cano, product = before, after
	} else {
		cano = s[:min(8, len(s))]
		if len(s) > 8 {
			product = s[8:min(10, len(s))]
		}
	}
	if product == "" {
		product = "01"
	}
	if len(product) == 1 {
		product = "0" + product
	}

	if len(cano) != 8 || !allDigits(cano) {
		return Account{}, fmt.Errorf("%w: CANO must be exactly 8 digits, got %q", ErrInvalidAccount, cano)
	}
	if len(product) != 2 || !allDigits(product) {
		return Account{}, fmt.Errorf("%w: product code must be 2 digits, got %q", ErrInvalidAccount, product)
	}
	return Account{CANO: cano, ProductCode: product}, nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}
