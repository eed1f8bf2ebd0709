package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var errNotAnAmount = errors.New("not a monetary amount")

// ErrAmountTooLarge means an amount has no int64 cents representation.
var ErrAmountTooLarge = errors.New("amount too large")

var (
	hundred  = decimal.NewFromInt(100)
	maxCents = decimal.NewFromInt(math.MaxInt64)
	minCents = decimal.NewFromInt(math.MinInt64)
)

var amountReplacer = strings.NewReplacer(
	"$", "", ",", "", " ", "", "USD", "", "usd", "", "US", "",
)

// ParseCents converts a written amount such as "$1,234.50", "150" or
// "12.345" into integer cents, rounding half away from zero.
func ParseCents(s string) (int64, error) {
	cleaned := amountReplacer.Replace(strings.TrimSpace(s))
	negative := false
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		negative = true
		cleaned = strings.Trim(cleaned, "()")
	}
	if cleaned == "" {
		return 0, fmt.Errorf("%q: %w", s, errNotAnAmount)
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", s, errNotAnAmount)
	}
	if negative {
		d = d.Neg()
	}
	cents, err := DecimalToCents(d)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", s, err)
	}
	return cents, nil
}

// DecimalToCents converts a major-unit amount to cents, rounding half away
// from zero. Amounts outside the int64 range return ErrAmountTooLarge.
func DecimalToCents(d decimal.Decimal) (int64, error) {
	c := d.Mul(hundred).Round(0)
	if c.GreaterThan(maxCents) || c.LessThan(minCents) {
		return 0, ErrAmountTooLarge
	}
	return c.IntPart(), nil
}

// FormatCents renders cents as a major-unit amount with two decimals.
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
