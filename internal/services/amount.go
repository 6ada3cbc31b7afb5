package services

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseAmount converts user-supplied decimal text into integer cents.
// Either '.' or ',' works as the decimal separator and whitespace used as
// thousands grouping is stripped, so "1 234,56" and "1234.56" both yield
// 123456. More than two fractional digits are rounded half-up. Zero,
// negative and malformed input return ErrInvalidAmount.
//
// All money arithmetic downstream runs on the returned int64; floats are
// never involved.
func ParseAmount(text string) (int64, error) {
	normalized := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)
	normalized = strings.ReplaceAll(normalized, ",", ".")

	if normalized == "" {
		return 0, ErrInvalidAmount
	}

	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if d.Sign() <= 0 {
		return 0, ErrInvalidAmount
	}

	// Shift into cents, then round half-up to drop any extra precision.
	cents := d.Shift(2).Round(0)
	if cents.Sign() <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents.IntPart(), nil
}
