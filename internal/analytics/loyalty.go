package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"swiim/backend/internal/domain"
)

// Simulation calibration constants. These are heuristic business
// assumptions, kept in one place so a recalibration never touches the
// projection logic itself.
var (
	// simAdoptionRate is the share of members assumed to react to a rule change.
	simAdoptionRate = decimal.NewFromFloat(0.3)
	// simSpendUplift is the assumed per-receipt spend increase under a richer accrual rate.
	simSpendUplift = decimal.NewFromFloat(0.1)
	// simCategoryBoost is the assumed revenue boost on a category receiving a bonus.
	simCategoryBoost = decimal.NewFromFloat(0.2)
	// simEngagementGain is the engagement-point gain per fully-affected member base.
	simEngagementGain = decimal.NewFromInt(10)
)

// engagementWindowDays bounds the "recently active" check in program stats.
const engagementWindowDays = 60

// ResolveTier returns the tier a cumulative spend falls into: the last tier,
// in ascending MinSpend order, whose MinSpend does not exceed the spend. A
// spend exactly on a boundary lands in the higher tier. Returns false when
// the program has no tiers or the spend precedes the first tier.
func ResolveTier(tiers []domain.LoyaltyTier, spend decimal.Decimal) (domain.LoyaltyTier, bool) {
	sorted := make([]domain.LoyaltyTier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].MinSpend.LessThan(sorted[j].MinSpend)
	})

	var match domain.LoyaltyTier
	found := false
	for _, tier := range sorted {
		if spend.GreaterThanOrEqual(tier.MinSpend) {
			match = tier
			found = true
		}
	}
	return match, found
}

// AccruePoints computes the points a receipt earns: each line item accrues
// floor(amount * pointsPerEuro * multiplier) against its own category
// multiplier, which defaults to 1 when the category carries no bonus.
func AccruePoints(program domain.LoyaltyProgram, receipt domain.Receipt) int64 {
	points := int64(0)
	for _, item := range receipt.Items {
		points += AccrueLineItemPoints(program, item)
	}
	return points
}

func AccrueLineItemPoints(program domain.LoyaltyProgram, item domain.LineItem) int64 {
	multiplier := decimal.NewFromInt(1)
	if bonus, ok := program.BonusCategories[item.Category.Key]; ok && bonus.IsPositive() {
		multiplier = bonus
	}
	return item.Amount().Mul(program.PointsPerEuro).Mul(multiplier).Floor().IntPart()
}

// PointValue is the redemption value of a single point under the program's
// conversion rule (conversionRate points are worth conversionValue).
func PointValue(program domain.LoyaltyProgram) decimal.Decimal {
	if program.ConversionRate <= 0 {
		return decimal.Zero
	}
	return program.ConversionValue.Div(decimal.NewFromInt(program.ConversionRate))
}

// pointsUsedShare estimates redeemed points as a fixed share of the total;
// the source system does not ledger redemptions.
var pointsUsedShare = decimal.NewFromFloat(0.3)

// ComputeLoyaltyStats summarizes the program over its accounts plus the
// recent receipts of its members (for loyalty revenue).
func ComputeLoyaltyStats(program domain.LoyaltyProgram, accounts []domain.LoyaltyAccount, memberReceipts []domain.Receipt, now time.Time) domain.LoyaltyStats {
	totalPoints := int64(0)
	for _, a := range accounts {
		totalPoints += a.Points
	}
	pointsUsed := decimal.NewFromInt(totalPoints).Mul(pointsUsedShare).Floor().IntPart()

	engagementCutoff := now.AddDate(0, 0, -engagementWindowDays)
	engaged := 0
	for _, a := range accounts {
		if a.LastActivity != nil && !a.LastActivity.Before(engagementCutoff) {
			engaged++
		}
	}

	distribution := make([]domain.TierCount, 0, len(program.Tiers))
	for _, tier := range program.Tiers {
		count := 0
		for _, a := range accounts {
			if a.TierID == tier.ID {
				count++
			}
		}
		distribution = append(distribution, domain.TierCount{
			Tier:     tier.Name,
			Count:    count,
			MinSpend: tier.MinSpend,
			MaxSpend: tier.MaxSpend,
		})
	}

	return domain.LoyaltyStats{
		Program:             program,
		TotalMembers:        len(accounts),
		TotalPoints:         totalPoints,
		PointsUsed:          pointsUsed,
		PointsInCirculation: totalPoints - pointsUsed,
		EngagementRate:      CountPercent(engaged, len(accounts)),
		LoyaltyRevenue:      SumTotals(memberReceipts),
		TierDistribution:    distribution,
	}
}

// Simulate projects the impact of a proposed rule change. This is a
// deterministic heuristic, not a ledger replay: the contract is
// reproducibility, not predictive accuracy.
func Simulate(program domain.LoyaltyProgram, accounts []domain.LoyaltyAccount, memberReceipts []domain.Receipt, req domain.SimulationRequest) domain.SimulationResult {
	result := domain.SimulationResult{
		AdditionalRevenue: decimal.Zero,
		EngagementImpact:  decimal.Zero,
	}
	memberCount := decimal.NewFromInt(int64(len(accounts)))

	if req.PointsPerEuroIncrease.IsPositive() {
		multiplier := decimal.NewFromInt(1).Add(req.PointsPerEuroIncrease.Div(hundred))
		avgReceipt := Average(SumTotals(memberReceipts), len(memberReceipts))
		extraSpend := avgReceipt.Mul(simSpendUplift).Mul(multiplier)
		result.AdditionalRevenue = extraSpend.Mul(memberCount).Mul(simAdoptionRate)
		result.AdditionalPoints = result.AdditionalRevenue.
			Mul(program.PointsPerEuro).Mul(multiplier).Floor().IntPart()
		result.CustomersAffected = int(memberCount.Mul(simAdoptionRate).Floor().IntPart())
	}

	if req.BonusCategory != "" {
		key := domain.NewCategory(req.BonusCategory).Key
		categoryRevenue := decimal.Zero
		affected := make(map[string]struct{})
		for _, r := range memberReceipts {
			touches := false
			for _, item := range r.Items {
				if item.Category.Key == key {
					touches = true
					break
				}
			}
			if !touches {
				continue
			}
			categoryRevenue = categoryRevenue.Add(r.Total)
			if r.Identified() {
				affected[*r.CustomerID] = struct{}{}
			}
		}
		bonusShare := req.BonusPercent.Div(hundred)
		result.AdditionalRevenue = categoryRevenue.Mul(bonusShare).Mul(simCategoryBoost)
		result.AdditionalPoints = result.AdditionalRevenue.
			Mul(program.PointsPerEuro).Mul(bonusShare).Floor().IntPart()
		result.CustomersAffected = len(affected)
	}

	if len(accounts) > 0 {
		result.EngagementImpact = decimal.NewFromInt(int64(result.CustomersAffected)).
			Div(memberCount).Mul(simEngagementGain)
	}
	return result
}
