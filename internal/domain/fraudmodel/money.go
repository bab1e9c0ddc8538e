package fraudmodel

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is a strictly-positive monetary amount. The engine never mixes
// currencies, so unlike the teacher's values.Money there is no currency
// tag - only the decimal precision matters here, to keep threshold
// comparisons (e.g. "amount > 50,000") exact instead of float-fuzzy.
type Money struct {
	amount decimal.Decimal
}

// NewMoney validates and wraps a decimal amount. Amount must be
// strictly positive per the Transaction invariant in spec.md.
func NewMoney(amount decimal.Decimal) (Money, error) {
	if amount.Sign() <= 0 {
		return Money{}, fmt.Errorf("amount must be positive, got %s", amount.String())
	}
	return Money{amount: amount}, nil
}

// NewMoneyFromFloat mirrors the boundary's float64 wire representation.
func NewMoneyFromFloat(amount float64) (Money, error) {
	return NewMoney(decimal.NewFromFloat(amount))
}

// MustMoney panics on an invalid amount; for tests and constants only.
func MustMoney(amount float64) Money {
	m, err := NewMoneyFromFloat(amount)
	if err != nil {
		panic(err)
	}
	return m
}

// Float64 returns the amount as a float64, for feature vectors and
// arithmetic that doesn't require decimal exactness.
func (m Money) Float64() float64 {
	f, _ := m.amount.Float64()
	return f
}

// Decimal exposes the underlying decimal value.
func (m Money) Decimal() decimal.Decimal {
	return m.amount
}

// Add returns the sum of two Money values.
func (m Money) Add(other Money) Money {
	return Money{amount: m.amount.Add(other.amount)}
}

// GreaterThan reports whether m > threshold.
func (m Money) GreaterThan(threshold float64) bool {
	return m.amount.GreaterThan(decimal.NewFromFloat(threshold))
}

func (m Money) String() string {
	return m.amount.String()
}

// IsZero reports whether the amount is the zero value (unset Money).
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// MarshalJSON encodes the amount as a JSON number, matching the wire
// representation spec.md §3 describes ("amount (positive real)").
func (m Money) MarshalJSON() ([]byte, error) {
	return m.amount.MarshalJSON()
}

// UnmarshalJSON decodes a JSON number or numeric string into m,
// validating the same positivity invariant NewMoney enforces.
func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	amount, err := NewMoney(d)
	if err != nil {
		return err
	}
	*m = amount
	return nil
}
