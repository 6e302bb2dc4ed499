// Package money converts between display prices such as "Ksh 1,250.50" and
// integer minor units. Amounts are stored and summed as minor units only.
package money

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is the prefix used when formatting amounts for display.
const DefaultCurrency = "Ksh"

// MaxAmount is the largest unit price accepted, 100 billion in major units.
// Line totals and cart totals of realistic carts stay well inside int64.
const MaxAmount Cents = 10_000_000_000_000

var ErrInvalidPrice = errors.New("invalid price")

var numberPattern = regexp.MustCompile(`-?[0-9][0-9,]*(\.[0-9]+)?([eE][-+]?[0-9]+)?`)

var maxAmount = decimal.NewFromInt(int64(MaxAmount))

// Cents is an amount in minor currency units.
type Cents int64

// Parse extracts the first number from s, ignoring currency prefixes and
// thousands separators, and converts it to minor units rounded half away from zero.
func Parse(s string) (Cents, error) {
	raw := numberPattern.FindString(s)
	if raw == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPrice, s)
	}

	d, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidPrice, s, err)
	}
	return FromDecimal(d)
}

// ParseOrZero is Parse for display paths that must not fail: an unparseable
// price contributes nothing.
func ParseOrZero(s string) Cents {
	c, err := Parse(s)
	if err != nil {
		return 0
	}
	return c
}

// FromDecimal converts a major-unit amount to minor units. Negative amounts
// and amounts above MaxAmount are rejected.
func FromDecimal(d decimal.Decimal) (Cents, error) {
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: negative amount %s", ErrInvalidPrice, d.String())
	}
	minor := d.Shift(2).Round(0)
	if minor.GreaterThan(maxAmount) {
		return 0, fmt.Errorf("%w: amount %s exceeds %s", ErrInvalidPrice, d.String(), MaxAmount)
	}
	return Cents(minor.IntPart()), nil
}

// Times returns the amount multiplied by a quantity.
func (c Cents) Times(quantity int) Cents {
	return c * Cents(quantity)
}

// String formats the amount with two decimals and no currency, e.g. "200.00".
func (c Cents) String() string {
	return decimal.New(int64(c), -2).StringFixed(2)
}

// Format prefixes the amount with a currency, e.g. "Ksh 200.00".
func (c Cents) Format(currency string) string {
	if currency == "" {
		currency = DefaultCurrency
	}
	return currency + " " + c.String()
}
