// Package units converts between human-entered token amounts and the
// integer smallest-unit amounts the streaming contract works with.
package units

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrNegativeAmount = errors.New("amount must not be negative")
)

// USDCDecimals is the decimal count of the stream token.
const USDCDecimals int32 = 6

// ToBaseUnits scales a human-readable amount up by 10^decimals.
// Digits beyond the asset's precision are truncated so the result never
// authorizes more than the user typed.
func ToBaseUnits(amount string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	if d.IsNegative() {
		return nil, ErrNegativeAmount
	}
	return d.Truncate(decimals).Shift(decimals).BigInt(), nil
}

// FromBaseUnits renders a smallest-unit amount as a decimal string.
func FromBaseUnits(v *big.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -decimals).String()
}

// ParsePositive reports whether amount parses as a number greater than zero.
func ParsePositive(amount string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil || !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}

// StreamDuration is how long a stream funded with amount lasts at rate
// units per second. Invalid or non-positive inputs yield zero.
func StreamDuration(amount, rate string) time.Duration {
	secs, ok := streamSeconds(amount, rate)
	if !ok {
		return 0
	}
	ns := secs.Shift(9)
	if ns.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ns.IntPart())
}

// FormatDuration renders the stream duration the way the deposit form
// shows it: whole minutes under an hour, tenths of hours under a day,
// tenths of days otherwise.
func FormatDuration(amount, rate string) string {
	secs, ok := streamSeconds(amount, rate)
	if !ok {
		return "0 seconds"
	}
	hours := secs.Div(decimal.NewFromInt(3600))
	switch {
	case hours.LessThan(decimal.NewFromInt(1)):
		return fmt.Sprintf("%s minutes", secs.Div(decimal.NewFromInt(60)).Floor().String())
	case hours.LessThan(decimal.NewFromInt(24)):
		return fmt.Sprintf("%s hours", hours.StringFixed(1))
	default:
		return fmt.Sprintf("%s days", hours.Div(decimal.NewFromInt(24)).StringFixed(1))
	}
}

func streamSeconds(amount, rate string) (decimal.Decimal, bool) {
	amt, ok := ParsePositive(amount)
	if !ok {
		return decimal.Zero, false
	}
	r, ok := ParsePositive(rate)
	if !ok {
		return decimal.Zero, false
	}
	return amt.Div(r), true
}
