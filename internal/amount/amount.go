// Package amount holds the decimal helpers used for every balance, price and
// fee calculation. Values are shopspring decimals; this package adds checked
// division, percentage math and the native base-unit (lamport) scale.
package amount

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// DivisionPrecision is the number of decimal places kept by Div.
const DivisionPrecision int32 = 18

// BaseUnitExponent is the decimal exponent between a native base unit and
// its display unit (1 SOL = 1e9 lamports).
const BaseUnitExponent int32 = 9

var (
	// ErrDivisionByZero is wrapped by ArithmeticError when a divisor is zero.
	ErrDivisionByZero = errors.New("division by zero")

	baseUnitScale = decimal.NewFromInt(int64(solana.LAMPORTS_PER_SOL))
	hundred       = decimal.NewFromInt(100)
)

// ArithmeticError reports a failed decimal operation.
type ArithmeticError struct {
	Op  string
	Lhs decimal.Decimal
	Rhs decimal.Decimal
	Err error
}

func (e *ArithmeticError) Error() string {
	return fmt.Sprintf("arithmetic error in %s(%s, %s): %v", e.Op, e.Lhs, e.Rhs, e.Err)
}

func (e *ArithmeticError) Unwrap() error {
	return e.Err
}

// Div divides a by b rounding to DivisionPrecision places.
func Div(a, b decimal.Decimal) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Zero, &ArithmeticError{Op: "div", Lhs: a, Rhs: b, Err: ErrDivisionByZero}
	}
	return a.DivRound(b, DivisionPrecision), nil
}

// PctChange returns (to - from) / from * 100.
func PctChange(from, to decimal.Decimal) (decimal.Decimal, error) {
	ratio, err := Div(to.Sub(from), from)
	if err != nil {
		return decimal.Zero, err
	}
	return ratio.Mul(hundred), nil
}

// PctOf returns value * pct / 100.
func PctOf(value, pct decimal.Decimal) decimal.Decimal {
	return value.Mul(pct).Div(hundred)
}

// Parse reads a decimal from its string form. Empty input is an error.
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, errors.New("empty decimal string")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return d, nil
}

// Format renders d with the given number of decimal places. A negative
// precision trims trailing zeros instead.
func Format(d decimal.Decimal, precision int32) string {
	if precision < 0 {
		return d.String()
	}
	return d.StringFixed(precision)
}

// ToBaseUnits converts a display amount to base units, truncating anything
// below one base unit.
func ToBaseUnits(d decimal.Decimal) int64 {
	return d.Mul(baseUnitScale).Truncate(0).IntPart()
}

// FromBaseUnits converts base units to a display amount.
func FromBaseUnits(units int64) decimal.Decimal {
	return decimal.New(units, -BaseUnitExponent)
}

// FromBps converts basis points to a fraction (100 bps = 0.01).
func FromBps(bps int64) decimal.Decimal {
	return decimal.New(bps, -4)
}
