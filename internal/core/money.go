// Package core provides amount parsing for user-entered values.
//
// Amounts travel as float64 magnitudes through the domain; parsing goes
// through decimal arithmetic so "0.1" stays 0.1 and grouping commas are
// handled the way the entry forms expect.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a user-entered decimal string to a positive amount.
//
// It accepts a dot decimal separator with optional thousands commas
// ("1,234.50"), a lone comma as decimal separator ("12,34"), and rejects
// signs, zero and garbage.
//
// Examples:
//
//	ParseAmount("12.34")    -> 12.34, nil
//	ParseAmount("1,234.5")  -> 1234.5, nil
//	ParseAmount("12,34")    -> 12.34, nil
//	ParseAmount("-1")       -> 0, ErrInvalidAmount
func ParseAmount(s string) (float64, error) {
	d, err := ParseAmountDecimal(s)
	if err != nil {
		return 0, err
	}
	f, _ := d.Float64()
	return f, nil
}

// ParseAmountDecimal is ParseAmount without the float conversion.
func ParseAmountDecimal(s string) (decimal.Decimal, error) {
	d, err := parseMagnitude(s)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ParseMagnitude is ParseAmount that also accepts zero.
func ParseMagnitude(s string) (float64, error) {
	d, err := parseMagnitude(s)
	if err != nil {
		return 0, err
	}
	f, _ := d.Float64()
	return f, nil
}

func parseMagnitude(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	switch {
	case strings.Contains(s, "."):
		// Commas are grouping separators next to a dot.
		s = strings.ReplaceAll(s, ",", "")
	case strings.Count(s, ",") == 1:
		s = strings.Replace(s, ",", ".", 1)
	default:
		s = strings.ReplaceAll(s, ",", "")
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}
