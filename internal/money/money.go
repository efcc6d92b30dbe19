// Package money provides shared parsing and formatting for USD amounts.
//
// Amounts are exact decimals with at most Scale fractional digits and
// MaxIntegerDigits integer digits, the precision of the NUMERIC(20,6)
// columns they are stored in.
package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits an amount may carry.
const Scale = 6

// MaxIntegerDigits is the number of integer digits an amount may carry.
const MaxIntegerDigits = 14

var limit = decimal.New(1, MaxIntegerDigits)

// ErrInvalid is returned for amounts that cannot be parsed or stored.
var ErrInvalid = errors.New("invalid amount")

// Parse converts a decimal string (e.g. "100.50") to a decimal.Decimal.
//
// Rules:
//   - Empty and non-numeric strings are rejected
//   - More than Scale fractional digits are rejected (no silent rounding)
//   - More than MaxIntegerDigits integer digits are rejected
//   - Sign is preserved; callers decide whether negatives are acceptable
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalid
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalid
	}
	if !FitsScale(d) {
		return decimal.Zero, ErrInvalid
	}
	return d, nil
}

// FitsScale reports whether d can be stored without losing digits or
// overflowing the column.
func FitsScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(Scale)) && d.Abs().LessThan(limit)
}

// Valid reports whether d is a usable transfer amount: positive and
// storable.
func Valid(d decimal.Decimal) bool {
	return d.IsPositive() && FitsScale(d)
}

// Format renders an amount with at least two fractional digits
// ("100" -> "100.00", "1.234" -> "1.234").
func Format(d decimal.Decimal) string {
	if d.Exponent() >= -2 {
		return d.StringFixed(2)
	}
	return d.String()
}
