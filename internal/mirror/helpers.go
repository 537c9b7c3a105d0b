package mirror

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TinybarsPerHbar is the fixed subdivision of one hbar.
const TinybarsPerHbar = 100_000_000

var tinybarsPerHbar = decimal.NewFromInt(TinybarsPerHbar)

// TinybarsToHbar converts exactly.
func TinybarsToHbar(tinybars int64) decimal.Decimal {
	return decimal.NewFromInt(tinybars).Div(tinybarsPerHbar)
}

// HbarToTinybars converts and floors any fraction of a tinybar.
func HbarToTinybars(hbar decimal.Decimal) int64 {
	return hbar.Mul(tinybarsPerHbar).Floor().IntPart()
}

// ParseTimestamp reads a consensus timestamp of the form
// "seconds.nanoseconds".
func ParseTimestamp(ts string) (time.Time, error) {
	secPart, nsPart, _ := strings.Cut(ts, ".")
	sec, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", ts, err)
	}
	var nsec int64
	if nsPart != "" {
		if len(nsPart) > 9 {
			nsPart = nsPart[:9]
		}
		nsec, err = strconv.ParseInt(nsPart+strings.Repeat("0", 9-len(nsPart)), 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse timestamp %q: %w", ts, err)
		}
	}
	return time.Unix(sec, nsec).UTC(), nil
}

// Operator is a mirror-node query comparison.
type Operator string

const (
	Eq  Operator = "eq"
	Ne  Operator = "ne"
	Gt  Operator = "gt"
	Gte Operator = "gte"
	Lt  Operator = "lt"
	Lte Operator = "lte"
)

// Comparison renders a filter value such as "gte:1700000000.000000000".
func Comparison(op Operator, value any) string {
	return fmt.Sprintf("%s:%v", op, value)
}
