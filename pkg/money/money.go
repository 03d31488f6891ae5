// Package money converts between integer kobo, the unit balances are held in,
// and decimal naira (major units), the unit ledger rows and API responses use.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Currency is the only currency wallets are held in.
const Currency = "NGN"

// ErrSubKobo is returned when a major-unit amount carries fractions of a kobo.
var ErrSubKobo = errors.New("amount has sub-kobo precision")

// ErrOverflow is returned when an amount does not fit in int64 kobo.
var ErrOverflow = errors.New("amount overflows int64 kobo")

// FromKobo returns the major-unit value of kobo.
func FromKobo(kobo int64) decimal.Decimal {
	return decimal.New(kobo, -2)
}

// ToKobo converts a major-unit amount to kobo. It never rounds.
func ToKobo(major decimal.Decimal) (int64, error) {
	minor := major.Shift(2)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("%s: %w", major.String(), ErrSubKobo)
	}
	bi := minor.BigInt()
	if !bi.IsInt64() {
		return 0, fmt.Errorf("%s: %w", major.String(), ErrOverflow)
	}
	return bi.Int64(), nil
}

// ParseMajor parses a decimal string as returned by NUMERIC::text.
func ParseMajor(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return d, nil
}

// Format renders kobo as a two-decimal naira string, e.g. 150000 -> "1500.00".
func Format(kobo int64) string {
	return FromKobo(kobo).StringFixed(2)
}
