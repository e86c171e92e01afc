// Package analytics turns a window of receipt records into the derived
// metrics shown on dashboards. Every function here is pure: it reads an
// already-fetched snapshot and returns plain values, so callers may run
// several aggregations over the same slice concurrently.
package analytics

import (
	"github.com/shopspring/decimal"

	"swiim/backend/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// SumTotals adds receipt totals with exact decimal arithmetic.
func SumTotals(receipts []domain.Receipt) decimal.Decimal {
	sum := decimal.Zero
	for _, r := range receipts {
		sum = sum.Add(r.Total)
	}
	return sum
}

// Average divides total by count, returning zero for an empty group instead
// of dividing by zero.
func Average(total decimal.Decimal, count int) decimal.Decimal {
	if count <= 0 {
		return decimal.Zero
	}
	return total.Div(decimal.NewFromInt(int64(count)))
}

// Percent computes numerator/denominator*100 with a zero guard. Every ratio
// in this package goes through Percent or Average; none may ever yield NaN,
// infinity, or a panic.
func Percent(numerator, denominator decimal.Decimal) decimal.Decimal {
	if denominator.IsZero() {
		return decimal.Zero
	}
	return numerator.Div(denominator).Mul(hundred)
}

// Ratio computes numerator/denominator with a zero guard.
func Ratio(numerator, denominator decimal.Decimal) decimal.Decimal {
	if denominator.IsZero() {
		return decimal.Zero
	}
	return numerator.Div(denominator)
}

// CountPercent is Percent over plain counts.
func CountPercent(numerator, denominator int) decimal.Decimal {
	if denominator <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(numerator)).Div(decimal.NewFromInt(int64(denominator))).Mul(hundred)
}

// Trend is the signed percentage change from previous to current. A zero
// previous value yields zero, never infinity.
func Trend(current, previous decimal.Decimal) decimal.Decimal {
	if previous.IsZero() {
		return decimal.Zero
	}
	return current.Sub(previous).Div(previous).Mul(hundred)
}

// CountTrend is Trend over plain counts.
func CountTrend(current, previous int) decimal.Decimal {
	return Trend(decimal.NewFromInt(int64(current)), decimal.NewFromInt(int64(previous)))
}
