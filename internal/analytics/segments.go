package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"swiim/backend/internal/domain"
)

// Segment thresholds. A customer can match several rules at once; the six
// segments are evaluated independently and are deliberately non-exclusive.
var (
	championBasketFloor   = decimal.NewFromInt(70)
	loyalBasketFloor      = decimal.NewFromInt(40)
	loyalBasketCeil       = decimal.NewFromInt(70)
	championGapCeilDays   = decimal.NewFromInt(20)
	loyalGapCeilDays      = decimal.NewFromInt(30)
	occasionalGapFloor    = decimal.NewFromInt(30)
	atRiskInactivityDays  = 40.0
	newCustomerWindowDays = 30
	championMinVisits     = 5
	loyalMinVisits        = 3
	explorerMinCategories = 3
)

type customerHistory struct {
	profile    domain.CustomerProfile
	firstVisit time.Time
	lastVisit  time.Time
}

// BuildProfiles groups a window of receipts by customer and derives the
// visit statistics segmentation rules run against. Unidentified receipts are
// excluded; a customer cannot be segmented without being known.
func BuildProfiles(receipts []domain.Receipt) []domain.CustomerProfile {
	histories := buildHistories(receipts)
	profiles := make([]domain.CustomerProfile, 0, len(histories))
	for _, h := range histories {
		profiles = append(profiles, h.profile)
	}
	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].CustomerID < profiles[j].CustomerID
	})
	return profiles
}

func buildHistories(receipts []domain.Receipt) map[string]*customerHistory {
	type acc struct {
		visits     int
		spend      decimal.Decimal
		categories map[string]struct{}
		first      time.Time
		last       time.Time
	}
	byCustomer := make(map[string]*acc)

	for _, r := range receipts {
		if !r.Identified() || r.CreatedAt.IsZero() {
			continue
		}
		id := *r.CustomerID
		a, ok := byCustomer[id]
		if !ok {
			a = &acc{spend: decimal.Zero, categories: make(map[string]struct{}), first: r.CreatedAt, last: r.CreatedAt}
			byCustomer[id] = a
		}
		a.visits++
		a.spend = a.spend.Add(r.Total)
		for _, item := range r.Items {
			a.categories[item.Category.Key] = struct{}{}
		}
		if r.CreatedAt.Before(a.first) {
			a.first = r.CreatedAt
		}
		if r.CreatedAt.After(a.last) {
			a.last = r.CreatedAt
		}
	}

	histories := make(map[string]*customerHistory, len(byCustomer))
	for id, a := range byCustomer {
		daysActive := a.last.Sub(a.first).Hours() / 24
		if daysActive < 1 {
			daysActive = 1
		}
		active := decimal.NewFromFloat(daysActive)
		histories[id] = &customerHistory{
			profile: domain.CustomerProfile{
				CustomerID:           id,
				VisitCount:           a.visits,
				TotalSpend:           a.spend,
				AverageBasket:        Average(a.spend, a.visits),
				DistinctCategories:   len(a.categories),
				FirstVisit:           a.first.UTC().Format(time.RFC3339),
				LastVisit:            a.last.UTC().Format(time.RFC3339),
				DaysActive:           active,
				AvgDaysBetweenVisits: active.Div(decimal.NewFromInt(int64(a.visits))),
			},
			firstVisit: a.first,
			lastVisit:  a.last,
		}
	}
	return histories
}

type segmentRule struct {
	name string
	slug string
	// inactive marks segments whose members are by definition not visiting
	// regularly, so the reported frequency is zero.
	inactive bool
	match    func(h *customerHistory, now time.Time) bool
}

var segmentRules = []segmentRule{
	{
		name: "Champions",
		slug: "champions",
		match: func(h *customerHistory, _ time.Time) bool {
			p := h.profile
			return p.AverageBasket.GreaterThan(championBasketFloor) &&
				p.AvgDaysBetweenVisits.LessThan(championGapCeilDays) &&
				p.VisitCount >= championMinVisits
		},
	},
	{
		name: "Fidèles",
		slug: "fideles",
		match: func(h *customerHistory, _ time.Time) bool {
			p := h.profile
			return p.AverageBasket.GreaterThanOrEqual(loyalBasketFloor) &&
				p.AverageBasket.LessThanOrEqual(loyalBasketCeil) &&
				p.AvgDaysBetweenVisits.LessThan(loyalGapCeilDays) &&
				p.VisitCount >= loyalMinVisits
		},
	},
	{
		name: "Occasionnels",
		slug: "occasionnels",
		match: func(h *customerHistory, _ time.Time) bool {
			p := h.profile
			return p.AvgDaysBetweenVisits.GreaterThan(occasionalGapFloor) || p.VisitCount < loyalMinVisits
		},
	},
	{
		name:     "À risque",
		slug:     "a-risque",
		inactive: true,
		match: func(h *customerHistory, now time.Time) bool {
			return now.Sub(h.lastVisit).Hours()/24 > atRiskInactivityDays
		},
	},
	{
		name:     "Nouveaux clients",
		slug:     "nouveaux",
		inactive: true,
		match: func(h *customerHistory, now time.Time) bool {
			return !h.firstVisit.Before(now.AddDate(0, 0, -newCustomerWindowDays))
		},
	},
	{
		name: "Explorateurs multi-catégories",
		slug: "explorateurs",
		match: func(h *customerHistory, _ time.Time) bool {
			return h.profile.DistinctCategories >= explorerMinCategories
		},
	},
}

// ComputeSegments evaluates every segment rule over the window's customers.
// The result is tagged: a window that yields no segment members reports
// Status "empty" instead of fabricating data.
func ComputeSegments(receipts []domain.Receipt, now time.Time) domain.SegmentationResult {
	histories := buildHistories(receipts)

	ids := make([]string, 0, len(histories))
	for id := range histories {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	segments := make([]domain.Segment, 0, len(segmentRules))
	for _, rule := range segmentRules {
		var members []string
		revenue := decimal.Zero
		totalVisits := 0
		gapSum := decimal.Zero
		for _, id := range ids {
			h := histories[id]
			if !rule.match(h, now) {
				continue
			}
			members = append(members, id)
			revenue = revenue.Add(h.profile.TotalSpend)
			totalVisits += h.profile.VisitCount
			gapSum = gapSum.Add(h.profile.AvgDaysBetweenVisits)
		}
		if len(members) == 0 {
			continue
		}

		frequency := 0
		if !rule.inactive {
			frequency = int(gapSum.Div(decimal.NewFromInt(int64(len(members)))).Round(0).IntPart())
		}
		segments = append(segments, domain.Segment{
			Name:               rule.name,
			Slug:               rule.slug,
			Size:               len(members),
			AverageBasket:      Average(revenue, totalVisits),
			Frequency:          frequency,
			Revenue:            revenue,
			IdentificationRate: hundred,
			Members:            members,
		})
	}

	if len(segments) == 0 {
		return domain.SegmentationResult{Status: domain.SegmentationEmpty, Segments: []domain.Segment{}}
	}
	return domain.SegmentationResult{Status: domain.SegmentationOK, Segments: segments}
}
