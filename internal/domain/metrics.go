package domain

import "github.com/shopspring/decimal"

// Metric shapes returned by the aggregation core. All are plain
// JSON-serializable values; nothing framework-specific leaks out.

// DailyPoint is one calendar day of activity. Days with no receipts produce
// no point at all, so consumers must treat gaps as zero activity rather than
// expecting a fixed-length series.
type DailyPoint struct {
	Date               string          `json:"date"`
	Tickets            int             `json:"tickets"`
	Revenue            decimal.Decimal `json:"revenue"`
	IdentificationRate decimal.Decimal `json:"identification_rate"`
}

type OverviewTrends struct {
	ReceiptsTrend       decimal.Decimal `json:"receipts_trend"`
	RevenueTrend        decimal.Decimal `json:"revenue_trend"`
	BasketTrend         decimal.Decimal `json:"basket_trend"`
	CustomersTrend      decimal.Decimal `json:"customers_trend"`
	IdentificationTrend decimal.Decimal `json:"identification_trend"`
	FrequencyTrend      decimal.Decimal `json:"frequency_trend"`
}

type OverviewKPIs struct {
	TotalReceipts      int             `json:"total_receipts"`
	TotalRevenue       decimal.Decimal `json:"total_revenue"`
	AverageBasket      decimal.Decimal `json:"average_basket"`
	ActiveCustomers    int             `json:"active_customers"`
	IdentificationRate decimal.Decimal `json:"identification_rate"`
	DigitalRate        decimal.Decimal `json:"digital_rate"`
	AverageFrequency   decimal.Decimal `json:"average_frequency"`
	Trends             *OverviewTrends `json:"trends,omitempty"`
}

type IdentificationOverview struct {
	IdentifiedRevenueShare    decimal.Decimal `json:"identified_revenue_share"`
	IdentifiedAverageBasket   decimal.Decimal `json:"identified_average_basket"`
	UnidentifiedAverageBasket decimal.Decimal `json:"unidentified_average_basket"`
	IdentifiedFrequency       decimal.Decimal `json:"identified_frequency"`
}

// AnalyticsOverview is the full dashboard payload. HasData distinguishes a
// legitimately all-zero window from one with no records (or a failed fetch,
// in which case Reason carries the diagnostic).
type AnalyticsOverview struct {
	HasData        bool                   `json:"has_data"`
	Reason         string                 `json:"reason,omitempty"`
	Overview       OverviewKPIs           `json:"overview"`
	Trends         []DailyPoint           `json:"trends"`
	Stores         []StorePerformance     `json:"stores"`
	Categories     []CategoryPerformance  `json:"categories"`
	Identification IdentificationOverview `json:"identification"`
	Environment    EnvironmentImpact      `json:"environment"`
}

type StorePerformance struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	Tickets            int             `json:"tickets"`
	Revenue            decimal.Decimal `json:"revenue"`
	AverageBasket      decimal.Decimal `json:"average_basket"`
	IdentificationRate decimal.Decimal `json:"identification_rate"`
	DigitalRate        decimal.Decimal `json:"digital_rate"`
}

type CategoryPerformance struct {
	Category           string          `json:"category"`
	Tickets            int             `json:"tickets"`
	Revenue            decimal.Decimal `json:"revenue"`
	AverageBasket      decimal.Decimal `json:"average_basket"`
	DaysBetweenVisits  decimal.Decimal `json:"days_between_visits"`
	NewCustomersRate   decimal.Decimal `json:"new_customers_rate"`
	LoyaltyRate        decimal.Decimal `json:"loyalty_rate"`
	DigitalRate        decimal.Decimal `json:"digital_rate"`
	IdentificationRate decimal.Decimal `json:"identification_rate"`
}

// CustomerProfile is the per-customer visit history a window yields.
type CustomerProfile struct {
	CustomerID           string          `json:"customer_id"`
	VisitCount           int             `json:"visit_count"`
	TotalSpend           decimal.Decimal `json:"total_spend"`
	AverageBasket        decimal.Decimal `json:"average_basket"`
	DistinctCategories   int             `json:"distinct_categories"`
	FirstVisit           string          `json:"first_visit"`
	LastVisit            string          `json:"last_visit"`
	DaysActive           decimal.Decimal `json:"days_active"`
	AvgDaysBetweenVisits decimal.Decimal `json:"avg_days_between_visits"`
}

type Segment struct {
	Name               string          `json:"name"`
	Slug               string          `json:"slug"`
	Size               int             `json:"size"`
	AverageBasket      decimal.Decimal `json:"average_basket"`
	Frequency          int             `json:"frequency"`
	Revenue            decimal.Decimal `json:"revenue"`
	IdentificationRate decimal.Decimal `json:"identification_rate"`
	Members            []string        `json:"members,omitempty"`
}

const (
	SegmentationOK          = "ok"
	SegmentationEmpty       = "empty"
	SegmentationUnavailable = "unavailable"
)

// SegmentationResult is a tagged result: Status "ok" carries segments,
// "empty" means the window genuinely produced none, "unavailable" means the
// upstream fetch failed (Reason set).
type SegmentationResult struct {
	Status   string    `json:"status"`
	Reason   string    `json:"reason,omitempty"`
	Segments []Segment `json:"segments"`
}

type TierCount struct {
	Tier     string           `json:"tier"`
	Count    int              `json:"count"`
	MinSpend decimal.Decimal  `json:"min_spend"`
	MaxSpend *decimal.Decimal `json:"max_spend,omitempty"`
}

type LoyaltyStats struct {
	Program             LoyaltyProgram  `json:"program"`
	TotalMembers        int             `json:"total_members"`
	TotalPoints         int64           `json:"total_points"`
	PointsUsed          int64           `json:"points_used"`
	PointsInCirculation int64           `json:"points_in_circulation"`
	EngagementRate      decimal.Decimal `json:"engagement_rate"`
	LoyaltyRevenue      decimal.Decimal `json:"loyalty_revenue"`
	TierDistribution    []TierCount     `json:"tier_distribution"`
}

type SimulationRequest struct {
	PointsPerEuroIncrease decimal.Decimal `json:"points_per_euro_increase"`
	BonusCategory         string          `json:"bonus_category,omitempty"`
	BonusPercent          decimal.Decimal `json:"bonus_percent,omitempty"`
}

// SimulationResult is a deterministic heuristic projection, not a ledger
// replay: same inputs always produce the same outputs.
type SimulationResult struct {
	AdditionalRevenue decimal.Decimal `json:"additional_revenue"`
	CustomersAffected int             `json:"customers_affected"`
	AdditionalPoints  int64           `json:"additional_points"`
	EngagementImpact  decimal.Decimal `json:"engagement_impact"`
}

type EnvironmentImpact struct {
	DigitalTicketsYear int             `json:"digital_tickets_year"`
	PaperSavedKg       decimal.Decimal `json:"paper_saved_kg"`
	CO2AvoidedKg       decimal.Decimal `json:"co2_avoided_kg"`
	TreesEquivalent    decimal.Decimal `json:"trees_equivalent"`
}
