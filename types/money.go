// Package types provides value types shared across the purchase engine.
package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Money is a price in the smallest currency unit. All arithmetic is
// integer-only so catalog prices never pick up floating point drift.
//
// Examples:
//   - New(99, "USD")  = $0.99
//   - New(199, "EUR") = €1.99
//   - New(120, "JPY") = ¥120
type Money struct {
	Amount   int64  `json:"amount"`   // Smallest unit (cents, pence, etc)
	Currency string `json:"currency"` // ISO 4217 uppercase: "USD", "EUR"
}

// New creates a Money value from an amount in minor units.
func New(minor int64, currency string) Money {
	return Money{Amount: minor, Currency: strings.ToUpper(currency)}
}

// ParseMajor parses a decimal string in major units ("0.99", "12", "4.5")
// into minor units for the given currency. It fails when the value has more
// fractional digits than the currency allows or is not a plain decimal.
func ParseMajor(s, currency string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, fmt.Errorf("money: empty amount")
	}
	if strings.ContainsAny(s, "eE") {
		return Money{}, fmt.Errorf("money: exponent notation not supported: %q", s)
	}

	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "-"), "+")

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}

	decimals := currencyDecimals(currency)
	frac = strings.TrimRight(frac, "0")
	if len(frac) > decimals {
		return Money{}, fmt.Errorf("money: %q has more than %d decimal places for %s", s, decimals, strings.ToUpper(currency))
	}
	frac += strings.Repeat("0", decimals-len(frac))

	minor, err := strconv.ParseInt(whole+frac, 10, 64)
	if err != nil {
		return Money{}, fmt.Errorf("money: invalid amount %q: %w", s, err)
	}
	if negative {
		minor = -minor
	}
	return New(minor, currency), nil
}

// IsNegative returns true if the amount is less than zero.
func (m Money) IsNegative() bool { return m.Amount < 0 }

// Equal returns true if both values have the same amount and currency.
func (m Money) Equal(other Money) bool {
	return m.Amount == other.Amount && m.Currency == other.Currency
}

// FormatMajor returns the amount in major units without a symbol:
// "0.99" for New(99, "USD"), "120" for New(120, "JPY").
func (m Money) FormatMajor() string {
	decimals := currencyDecimals(m.Currency)
	if decimals == 0 {
		return strconv.FormatInt(m.Amount, 10)
	}

	divisor := int64(1)
	for i := 0; i < decimals; i++ {
		divisor *= 10
	}

	abs := m.Amount
	if abs < 0 {
		abs = -abs
	}
	result := fmt.Sprintf("%d.%0*d", abs/divisor, decimals, abs%divisor)
	if m.Amount < 0 {
		return "-" + result
	}
	return result
}

// String returns a human-readable string with currency symbol, e.g. "$0.99".
func (m Money) String() string {
	return currencySymbol(m.Currency) + m.FormatMajor()
}

// MarshalJSON implements json.Marshaler.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}{
		Amount:   m.Amount,
		Currency: m.Currency,
		Display:  m.String(),
	})
}

func currencySymbol(currency string) string {
	symbols := map[string]string{
		"USD": "$",
		"EUR": "€",
		"GBP": "£",
		"JPY": "¥",
		"CAD": "C$",
		"AUD": "A$",
		"CNY": "¥",
		"NZD": "NZ$",
	}
	if sym, ok := symbols[strings.ToUpper(currency)]; ok {
		return sym
	}
	return strings.ToUpper(currency) + " "
}

// currencyDecimals returns the number of minor-unit digits for a currency.
func currencyDecimals(currency string) int {
	zeroDecimal := map[string]bool{
		"JPY": true,
		"KRW": true,
		"VND": true,
		"CLP": true,
		"PYG": true,
		"IDR": true,
	}
	if zeroDecimal[strings.ToUpper(currency)] {
		return 0
	}
	return 2
}
