// Package core provides the entities shared by the ledger: money, dates,
// accounts, activities, meters and upkeep records.
//
// This file contains the currency-tagged Money type and its arithmetic.
// Amounts are kept as float64 so that accumulation keeps full precision;
// rounding to two decimals only happens when values are rendered.
package core

import (
	"fmt"
	"strconv"
	"strings"
)

// Currency is an ISO 4217 code. The ledger only knows EUR today.
type Currency string

const EUR Currency = "EUR"

// Money is an amount tagged with its currency.
type Money struct {
	Amount   float64  `json:"amount"`
	Currency Currency `json:"currency"`
}

// Euro returns amount as EUR money.
func Euro(amount float64) Money {
	return Money{Amount: amount, Currency: EUR}
}

// Add returns m + o.
//
// Both operands must carry the same currency. An operand without a currency
// (the zero Money) adopts the other's, so Money{} works as an accumulator seed.
func (m Money) Add(o Money) (Money, error) {
	cur, err := m.commonCurrency(o)
	if err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount + o.Amount, Currency: cur}, nil
}

// Sub returns m - o under the same currency rules as Add.
func (m Money) Sub(o Money) (Money, error) {
	return m.Add(o.Neg())
}

// Scale multiplies the amount by f, keeping the currency.
func (m Money) Scale(f float64) Money {
	return Money{Amount: m.Amount * f, Currency: m.Currency}
}

// Neg flips the sign of the amount.
func (m Money) Neg() Money {
	return Money{Amount: -m.Amount, Currency: m.Currency}
}

// Abs returns the magnitude of m.
func (m Money) Abs() Money {
	if m.Amount < 0 {
		return m.Neg()
	}
	return m
}

// IsZero reports whether the amount is zero, regardless of currency.
func (m Money) IsZero() bool {
	return m.Amount == 0
}

// Validate checks that the currency is one the ledger supports.
func (m Money) Validate() error {
	switch m.Currency {
	case EUR:
		return nil
	default:
		return fmt.Errorf("%w: unsupported currency %q", ErrMalformedInput, m.Currency)
	}
}

// String formats the amount with two decimals, e.g. "12.34 EUR".
func (m Money) String() string {
	return strconv.FormatFloat(m.Amount, 'f', 2, 64) + " " + string(m.Currency)
}

func (m Money) commonCurrency(o Money) (Currency, error) {
	switch {
	case m.Currency == "":
		return o.Currency, nil
	case o.Currency == "", m.Currency == o.Currency:
		return m.Currency, nil
	default:
		return "", fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, m.Currency, o.Currency)
	}
}

// ParseAmount parses a decimal string into a float amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and an
// optional leading sign, so that expenses can be entered as negative values.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("-12,50") -> -12.5, nil
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.Count(s, ".") > 1 {
		return 0, ErrInvalidAmount
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	return v, nil
}
