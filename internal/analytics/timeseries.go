package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"swiim/backend/internal/domain"
)

const dayFormat = "2006-01-02"

// BucketByDay groups receipts by calendar day in the given zone and returns
// one point per day that saw activity, sorted by ascending date string
// (lexicographic order is chronological for ISO dates). Receipts with a zero
// timestamp are skipped rather than poisoning the series.
func BucketByDay(receipts []domain.Receipt, loc *time.Location) []domain.DailyPoint {
	if loc == nil {
		loc = time.UTC
	}

	type bucket struct {
		tickets    int
		revenue    decimal.Decimal
		identified int
	}
	byDay := make(map[string]*bucket)

	for _, r := range receipts {
		if r.CreatedAt.IsZero() {
			continue
		}
		day := r.CreatedAt.In(loc).Format(dayFormat)
		b, ok := byDay[day]
		if !ok {
			b = &bucket{revenue: decimal.Zero}
			byDay[day] = b
		}
		b.tickets++
		b.revenue = b.revenue.Add(r.Total)
		if r.Identified() {
			b.identified++
		}
	}

	points := make([]domain.DailyPoint, 0, len(byDay))
	for day, b := range byDay {
		points = append(points, domain.DailyPoint{
			Date:               day,
			Tickets:            b.tickets,
			Revenue:            b.revenue,
			IdentificationRate: CountPercent(b.identified, b.tickets),
		})
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].Date < points[j].Date
	})
	return points
}
