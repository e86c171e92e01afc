package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"swiim/backend/internal/domain"
)

// TopCategories is how many categories the dashboard shows before the tail
// is folded into the "Autres" bucket.
const TopCategories = 6

// OtherCategoryLabel names the bucket holding every category past the top N.
const OtherCategoryLabel = "Autres"

type dimensionBucket struct {
	display    string
	revenue    decimal.Decimal
	tickets    int
	identified int
	digital    int
}

func newDimensionBucket(display string) *dimensionBucket {
	return &dimensionBucket{display: display, revenue: decimal.Zero}
}

func (b *dimensionBucket) observe(r domain.Receipt) {
	b.tickets++
	if r.Identified() {
		b.identified++
	}
	if r.Status == domain.ReceiptStatusClaimed {
		b.digital++
	}
}

// AggregateByStore groups receipts by store, computing per-store revenue from
// receipt totals. Results are sorted by descending revenue, ties broken by
// store id so output stays deterministic.
func AggregateByStore(receipts []domain.Receipt) []domain.StorePerformance {
	buckets := make(map[string]*dimensionBucket)
	for _, r := range receipts {
		b, ok := buckets[r.StoreID]
		if !ok {
			name := r.StoreName
			if name == "" {
				name = "Magasin inconnu"
			}
			b = newDimensionBucket(name)
			buckets[r.StoreID] = b
		}
		b.revenue = b.revenue.Add(r.Total)
		b.observe(r)
	}

	performance := make([]domain.StorePerformance, 0, len(buckets))
	for id, b := range buckets {
		performance = append(performance, domain.StorePerformance{
			ID:                 id,
			Name:               b.display,
			Tickets:            b.tickets,
			Revenue:            b.revenue,
			AverageBasket:      Average(b.revenue, b.tickets),
			IdentificationRate: CountPercent(b.identified, b.tickets),
			DigitalRate:        CountPercent(b.digital, b.tickets),
		})
	}
	sort.Slice(performance, func(i, j int) bool {
		if !performance[i].Revenue.Equal(performance[j].Revenue) {
			return performance[i].Revenue.GreaterThan(performance[j].Revenue)
		}
		return performance[i].ID < performance[j].ID
	})
	return performance
}

type categoryBucket struct {
	dimensionBucket
	receipts       map[string]struct{}
	customers      map[string]struct{}
	newCustomers   map[string]struct{}
	loyalCustomers map[string]struct{}
	visitsByCust   map[string][]time.Time
	firstVisit     map[string]time.Time
}

// AggregateByCategory groups line items by normalized category. Revenue is
// summed from line items (unit price times quantity), not receipt totals,
// and tickets counts distinct receipts containing the category: a receipt
// with three categories counts once toward each. now anchors the "new
// customer" cutoff (first visit within the last 30 days).
func AggregateByCategory(receipts []domain.Receipt, now time.Time) []domain.CategoryPerformance {
	buckets := make(map[string]*categoryBucket)

	for _, r := range receipts {
		seenInReceipt := make(map[string]struct{}, len(r.Items))
		for _, item := range r.Items {
			cat := item.Category
			if cat.Key == "" {
				cat = domain.NewCategory("")
			}
			b, ok := buckets[cat.Key]
			if !ok {
				b = &categoryBucket{
					dimensionBucket: *newDimensionBucket(cat.Display),
					receipts:        make(map[string]struct{}),
					customers:       make(map[string]struct{}),
					newCustomers:    make(map[string]struct{}),
					loyalCustomers:  make(map[string]struct{}),
					visitsByCust:    make(map[string][]time.Time),
					firstVisit:      make(map[string]time.Time),
				}
				buckets[cat.Key] = b
			}
			b.revenue = b.revenue.Add(item.Amount())

			if _, counted := seenInReceipt[cat.Key]; counted {
				continue
			}
			seenInReceipt[cat.Key] = struct{}{}
			b.receipts[r.ID] = struct{}{}
			b.observe(r)
			if r.Identified() {
				id := *r.CustomerID
				b.customers[id] = struct{}{}
				if r.Customer != nil && r.Customer.LoyaltyAccount != nil {
					b.loyalCustomers[id] = struct{}{}
				}
				b.visitsByCust[id] = append(b.visitsByCust[id], r.CreatedAt)
				if first, ok := b.firstVisit[id]; !ok || r.CreatedAt.Before(first) {
					b.firstVisit[id] = r.CreatedAt
				}
			}
		}
	}

	newCutoff := now.AddDate(0, 0, -30)
	analytics := make([]domain.CategoryPerformance, 0, len(buckets))
	for _, b := range buckets {
		for id, first := range b.firstVisit {
			if !first.Before(newCutoff) {
				b.newCustomers[id] = struct{}{}
			}
		}
		tickets := len(b.receipts)
		analytics = append(analytics, domain.CategoryPerformance{
			Category:           b.display,
			Tickets:            tickets,
			Revenue:            b.revenue,
			AverageBasket:      Average(b.revenue, tickets),
			DaysBetweenVisits:  averageVisitGap(b.visitsByCust),
			NewCustomersRate:   CountPercent(len(b.newCustomers), len(b.customers)),
			LoyaltyRate:        CountPercent(len(b.loyalCustomers), len(b.customers)),
			DigitalRate:        CountPercent(b.digital, tickets),
			IdentificationRate: CountPercent(b.identified, tickets),
		})
	}
	sort.Slice(analytics, func(i, j int) bool {
		if !analytics[i].Revenue.Equal(analytics[j].Revenue) {
			return analytics[i].Revenue.GreaterThan(analytics[j].Revenue)
		}
		return analytics[i].Category < analytics[j].Category
	})
	return analytics
}

// averageVisitGap is the mean number of days between consecutive visits of
// the same customer, pooled across customers.
func averageVisitGap(visitsByCustomer map[string][]time.Time) decimal.Decimal {
	totalDays := decimal.Zero
	pairs := 0
	for _, visits := range visitsByCustomer {
		sorted := make([]time.Time, len(visits))
		copy(sorted, visits)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
		for i := 1; i < len(sorted); i++ {
			gap := sorted[i].Sub(sorted[i-1]).Hours() / 24
			totalDays = totalDays.Add(decimal.NewFromFloat(gap))
			pairs++
		}
	}
	if pairs == 0 {
		return decimal.Zero
	}
	return totalDays.Div(decimal.NewFromInt(int64(pairs)))
}

// TopCategoriesWithOther keeps the first limit categories (input is already
// revenue-sorted) and folds the rest into an explicit "Autres" entry so that
// category revenue still reconciles with total line-item revenue. Rates on
// the bucket are ticket-weighted averages of the folded categories.
func TopCategoriesWithOther(categories []domain.CategoryPerformance, limit int) []domain.CategoryPerformance {
	if limit <= 0 || len(categories) <= limit {
		return categories
	}

	top := make([]domain.CategoryPerformance, limit, limit+1)
	copy(top, categories[:limit])

	other := domain.CategoryPerformance{
		Category: OtherCategoryLabel,
		Revenue:  decimal.Zero,
	}
	weightedIdent := decimal.Zero
	weightedDigital := decimal.Zero
	for _, c := range categories[limit:] {
		other.Revenue = other.Revenue.Add(c.Revenue)
		other.Tickets += c.Tickets
		weight := decimal.NewFromInt(int64(c.Tickets))
		weightedIdent = weightedIdent.Add(c.IdentificationRate.Mul(weight))
		weightedDigital = weightedDigital.Add(c.DigitalRate.Mul(weight))
	}
	other.AverageBasket = Average(other.Revenue, other.Tickets)
	if other.Tickets > 0 {
		tickets := decimal.NewFromInt(int64(other.Tickets))
		other.IdentificationRate = weightedIdent.Div(tickets)
		other.DigitalRate = weightedDigital.Div(tickets)
	}

	return append(top, other)
}
