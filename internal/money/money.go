// Package money provides exact fixed-point currency values.
package money

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/meridian-hms/meridian/internal/shared"
)

// Scale is the number of fractional digits kept for currency.
const Scale = 2

// Zero is the zero amount.
var Zero = decimal.Zero

// Bounds on accepted input. Rounding rescales the coefficient by the exponent,
// so an unbounded exponent ("1e900000000") would build a billion-digit integer.
const (
	maxInputLen = 64
	minExponent = -32
	maxExponent = 18
)

// Parse converts a numeric-like value into a decimal rounded to Scale.
// Accepted inputs are decimal values, integers, JSON numbers and numeric strings.
func Parse(v any) (decimal.Decimal, error) {
	var (
		d   decimal.Decimal
		err error
	)
	switch val := v.(type) {
	case decimal.Decimal:
		d = val
	case *decimal.Decimal:
		if val == nil {
			return Zero, shared.Wrap(shared.ErrInvalidAmount, "nil value")
		}
		d = *val
	case decimal.NullDecimal:
		if !val.Valid {
			return Zero, shared.Wrap(shared.ErrInvalidAmount, "null value")
		}
		d = val.Decimal
	case int:
		d = decimal.NewFromInt(int64(val))
	case int32:
		d = decimal.NewFromInt32(val)
	case int64:
		d = decimal.NewFromInt(val)
	case json.Number:
		d, err = parseText(string(val))
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return Zero, shared.Wrap(shared.ErrInvalidAmount, "empty value")
		}
		d, err = parseText(s)
	case float64:
		// floats only arrive from loosely typed payloads; go through their shortest text form
		d, err = parseText(fmt.Sprintf("%v", val))
	case nil:
		return Zero, shared.Wrap(shared.ErrInvalidAmount, "missing value")
	default:
		return Zero, shared.Wrap(shared.ErrInvalidAmount, "unsupported type %T", v)
	}
	if err != nil {
		return Zero, err
	}
	if exp := d.Exponent(); exp < minExponent || exp > maxExponent {
		return Zero, shared.Wrap(shared.ErrInvalidAmount, "exponent %d out of range", exp)
	}
	return d.Round(Scale), nil
}

func parseText(s string) (decimal.Decimal, error) {
	if len(s) > maxInputLen {
		return Zero, shared.Wrap(shared.ErrInvalidAmount, "value longer than %d characters", maxInputLen)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, shared.Wrap(shared.ErrInvalidAmount, "%q", s)
	}
	return d, nil
}

// MustParse is Parse for constants in tests and fixtures.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// NonNegative parses v and rejects values below zero with ErrNegativeAmount.
// An empty or missing value is treated as zero.
func NonNegative(v any) (decimal.Decimal, error) {
	if v == nil {
		return Zero, nil
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return Zero, nil
	}
	d, err := Parse(v)
	if err != nil {
		return Zero, err
	}
	if d.IsNegative() {
		return Zero, shared.Wrap(shared.ErrNegativeAmount, "%s", d.StringFixed(Scale))
	}
	return d, nil
}

// Positive parses v and requires it to be strictly greater than zero.
func Positive(v any) (decimal.Decimal, error) {
	d, err := Parse(v)
	if err != nil {
		return Zero, err
	}
	if d.IsNegative() {
		return Zero, shared.Wrap(shared.ErrNegativeAmount, "%s", d.StringFixed(Scale))
	}
	if d.IsZero() {
		return Zero, shared.Wrap(shared.ErrInvalidAmount, "amount must be greater than zero")
	}
	return d, nil
}

// Sum adds amounts exactly.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total.Round(Scale)
}

// ClampZero returns d, or zero when d is negative.
func ClampZero(d decimal.Decimal) decimal.Decimal {
	return decimal.Max(d, Zero)
}

// Mul multiplies a unit price by an integer quantity.
func Mul(price decimal.Decimal, qty int64) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(qty)).Round(Scale)
}

// Format renders d with exactly Scale fractional digits.
func Format(d decimal.Decimal) string {
	return d.StringFixed(Scale)
}
