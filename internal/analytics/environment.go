package analytics

import (
	"github.com/shopspring/decimal"

	"swiim/backend/internal/domain"
)

// Environmental calibration constants. Fixed values, not computed; numeric
// parity with published dashboard figures depends on them staying exact.
var (
	// paperKgPerTicket: one paper ticket weighs 3 grams.
	paperKgPerTicket = decimal.NewFromFloat(0.003)
	// co2KgPerPaperKg: avoided CO2 per kilogram of paper not printed.
	co2KgPerPaperKg = decimal.NewFromFloat(0.8)
	// treesPerPaperKg: tree-equivalents per kilogram of paper.
	treesPerPaperKg = decimal.NewFromFloat(0.1)
)

// EstimateEnvironmentImpact converts a trailing 12-month digital-ticket
// count into paper and CO2 savings.
func EstimateEnvironmentImpact(digitalTickets int) domain.EnvironmentImpact {
	paper := decimal.NewFromInt(int64(digitalTickets)).Mul(paperKgPerTicket)
	return domain.EnvironmentImpact{
		DigitalTicketsYear: digitalTickets,
		PaperSavedKg:       paper,
		CO2AvoidedKg:       paper.Mul(co2KgPerPaperKg),
		TreesEquivalent:    paper.Mul(treesPerPaperKg),
	}
}

// ProjectEnvironmentImpact scales the impact linearly for a proposed
// digital-rate increase, expressed in percentage points of the current rate
// (e.g. +25 projects 1.25x the current digital volume).
func ProjectEnvironmentImpact(current domain.EnvironmentImpact, ratePercentIncrease decimal.Decimal) domain.EnvironmentImpact {
	factor := decimal.NewFromInt(1).Add(ratePercentIncrease.Div(hundred))
	if factor.IsNegative() {
		factor = decimal.Zero
	}
	projected := decimal.NewFromInt(int64(current.DigitalTicketsYear)).Mul(factor).Round(0).IntPart()
	return EstimateEnvironmentImpact(int(projected))
}
