// Package money converts between wire amounts (decimal naira strings with at
// most two fractional digits) and stored amounts (int64 kobo).
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalid   = errors.New("invalid amount")
	ErrPrecision = errors.New("amount supports up to 2 decimals")
	ErrRange     = errors.New("amount out of range")
)

// Parse converts s into kobo. Negative and zero amounts are returned as is;
// callers decide whether they are allowed.
func Parse(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalid)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalid, s)
	}

	if !d.Equal(d.Truncate(2)) {
		return 0, ErrPrecision
	}

	minor := d.Shift(2)
	if !minor.BigInt().IsInt64() {
		return 0, ErrRange
	}

	return minor.IntPart(), nil
}

// Format renders kobo as a naira string with two decimals.
func Format(kobo int64) string {
	return decimal.New(kobo, -2).StringFixed(2)
}
