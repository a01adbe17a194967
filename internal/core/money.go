// Package core provides money parsing and handling utilities.
//
// Amounts travel as decimals on the wire and are stored as int64 cents so
// sums stay exact. Conversions go through shopspring/decimal.
package core

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

type Money struct {
	Cents int64
}

// Cents builds a Money value from a cent count.
func Cents(c int64) Money {
	return Money{Cents: c}
}

// ParseAmount converts a decimal string to Money with half-up rounding on the
// third decimal. Both dot and comma separators are accepted, and the sign is
// preserved.
//
// Examples:
//
//	ParseAmount("12.34")  -> 1234
//	ParseAmount("12,345") -> 1235
//	ParseAmount("-3")     -> -300
func ParseAmount(s string) (Money, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return Money{}, NewValidationError("amount", "is required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, NewValidationError("amount", "must be a number")
	}
	return FromDecimal(d)
}

var (
	maxCents = decimal.NewFromInt(math.MaxInt64)
	minCents = maxCents.Neg()
)

// FromDecimal rounds d to whole cents. Amounts whose cent count does not fit
// in an int64 (or whose negation would not) are rejected.
func FromDecimal(d decimal.Decimal) (Money, error) {
	cents := d.Shift(2).Round(0)
	if cents.GreaterThan(maxCents) || cents.LessThan(minCents) {
		return Money{}, NewValidationError("amount", "is out of range")
	}
	return Money{Cents: cents.IntPart()}, nil
}

// FromFloat converts a provider float amount to cents without binary drift.
func FromFloat(f float64) (Money, error) {
	return FromDecimal(decimal.NewFromFloat(f))
}

// Decimal returns the amount in currency units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// Abs returns the magnitude of m.
func (m Money) Abs() Money {
	if m.Cents < 0 {
		return Money{Cents: -m.Cents}
	}
	return m
}

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }

func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }

func (m Money) Neg() Money { return Money{Cents: -m.Cents} }

func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// MarshalJSON writes the amount as a bare JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts JSON numbers and numeric strings.
func (m *Money) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return NewValidationError("amount", "must be a number")
	}
	v, err := FromDecimal(d)
	if err != nil {
		return err
	}
	*m = v
	return nil
}
