// Package core provides the domain types of the budgeting ledger.
//
// This file contains money handling: every monetary quantity in the system
// is an integer count of minor currency units (pence), never a float.
package core

import (
	"strconv"
	"strings"
	"unicode"
)

// Money is an amount in minor currency units (pence).
type Money struct {
	Cents int64
}

// Add returns m + other.
func (m Money) Add(other Money) Money {
	return Money{Cents: m.Cents + other.Cents}
}

// Sub returns m - other. The result may be negative (an overspent pot).
func (m Money) Sub(other Money) Money {
	return Money{Cents: m.Cents - other.Cents}
}

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool {
	return m.Cents == 0
}

// Validate rejects non-positive amounts. Use for request inputs only:
// stored balances (a pot's left, in particular) may legitimately be negative.
func (m Money) Validate() error {
	if m.IsZero() || m.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Pounds returns the value as a float64 for display purposes only.
// All arithmetic stays in minor units.
func (m Money) Pounds() float64 {
	return float64(m.Cents) / 100.0
}

// NormalizeMinorUnits converts a provider-native signed amount at the given
// minor-unit scale into a positive Money at scale 2.
//
// Bank feeds report spending with provider-specific sign conventions; the
// ledger stores every transaction amount positive, meaning money spent.
// Scales other than 2 are rescaled exactly; a conversion that would lose
// precision (e.g. scale 3 with a non-zero third digit) is a validation error.
func NormalizeMinorUnits(signed int64, scale int) (Money, error) {
	if scale < 0 || scale > 6 {
		return Money{}, Invalidf("unsupported minor-unit scale %d", scale)
	}
	v := signed
	if v < 0 {
		v = -v
	}
	for scale < 2 {
		const maxSafe = (1<<63 - 1) / 10
		if v > maxSafe {
			return Money{}, ErrInvalidAmount
		}
		v *= 10
		scale++
	}
	for scale > 2 {
		if v%10 != 0 {
			return Money{}, Invalidf("amount %d at scale %d is not representable in pence", signed, scale)
		}
		v /= 10
		scale--
	}
	return Money{Cents: v}, nil
}

// ParseDecimalToCents converts a decimal string to minor units with half-up
// rounding on the third decimal place. It accepts both dot (12.34) and comma
// (12,34) separators and rejects signs, zero and malformed input.
//
// Examples:
//
//	ParseDecimalToCents("12.34") -> 1234, nil
//	ParseDecimalToCents("12,34") -> 1234, nil
//	ParseDecimalToCents("12.346") -> 1235, nil (rounds up)
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	for _, r := range fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64 {
		return 0, ErrInvalidAmount
	}
	var fracCents int64
	if len(fracPart) > 0 {
		d1 := int64(fracPart[0] - '0')
		fracCents = d1 * 10
		if len(fracPart) > 1 {
			d2 := int64(fracPart[1] - '0')
			fracCents += d2
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}
	cents := iv*100 + fracCents
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}
