package analytics

import (
	"github.com/shopspring/decimal"

	"swiim/backend/internal/domain"
)

// Sanitize drops records an aggregation cannot use: a missing timestamp or a
// negative total means a malformed row, and one bad row must not blank a
// dashboard. The input slice is not modified.
func Sanitize(receipts []domain.Receipt) []domain.Receipt {
	clean := make([]domain.Receipt, 0, len(receipts))
	for _, r := range receipts {
		if r.CreatedAt.IsZero() || r.Total.IsNegative() {
			continue
		}
		clean = append(clean, r)
	}
	return clean
}

func distinctCustomers(receipts []domain.Receipt) int {
	seen := make(map[string]struct{})
	for _, r := range receipts {
		if r.Identified() {
			seen[*r.CustomerID] = struct{}{}
		}
	}
	return len(seen)
}

func countIdentified(receipts []domain.Receipt) int {
	n := 0
	for _, r := range receipts {
		if r.Identified() {
			n++
		}
	}
	return n
}

func countByStatus(receipts []domain.Receipt, status string) int {
	n := 0
	for _, r := range receipts {
		if r.Status == status {
			n++
		}
	}
	return n
}

// averageFrequency is the mean visit count across identified customers.
func averageFrequency(receipts []domain.Receipt) decimal.Decimal {
	identified := countIdentified(receipts)
	customers := distinctCustomers(receipts)
	if customers == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(identified)).Div(decimal.NewFromInt(int64(customers)))
}

// ComputeOverview derives the headline KPIs for the current window and, when
// a previous equal-length window is supplied, their trends against it. The
// identification trend is a point difference between the two rates, not a
// relative change.
func ComputeOverview(current, previous []domain.Receipt) domain.OverviewKPIs {
	totalReceipts := len(current)
	totalRevenue := SumTotals(current)
	identified := countIdentified(current)
	kpis := domain.OverviewKPIs{
		TotalReceipts:      totalReceipts,
		TotalRevenue:       totalRevenue,
		AverageBasket:      Average(totalRevenue, totalReceipts),
		ActiveCustomers:    distinctCustomers(current),
		IdentificationRate: CountPercent(identified, totalReceipts),
		DigitalRate:        CountPercent(countByStatus(current, domain.ReceiptStatusClaimed), totalReceipts),
		AverageFrequency:   averageFrequency(current),
	}

	if previous == nil {
		return kpis
	}

	prevReceipts := len(previous)
	prevRevenue := SumTotals(previous)
	prevBasket := Average(prevRevenue, prevReceipts)
	prevIdentRate := CountPercent(countIdentified(previous), prevReceipts)

	identTrend := decimal.Zero
	if prevReceipts > 0 {
		identTrend = kpis.IdentificationRate.Sub(prevIdentRate)
	}

	kpis.Trends = &domain.OverviewTrends{
		ReceiptsTrend:       CountTrend(totalReceipts, prevReceipts),
		RevenueTrend:        Trend(totalRevenue, prevRevenue),
		BasketTrend:         Trend(kpis.AverageBasket, prevBasket),
		CustomersTrend:      CountTrend(kpis.ActiveCustomers, distinctCustomers(previous)),
		IdentificationTrend: identTrend,
		FrequencyTrend:      Trend(kpis.AverageFrequency, averageFrequency(previous)),
	}
	return kpis
}

// ComputeIdentification breaks revenue and basket size down by whether the
// receipt was linked to a known customer.
func ComputeIdentification(receipts []domain.Receipt) domain.IdentificationOverview {
	totalRevenue := SumTotals(receipts)
	identifiedRevenue := decimal.Zero
	identified := 0
	for _, r := range receipts {
		if r.Identified() {
			identifiedRevenue = identifiedRevenue.Add(r.Total)
			identified++
		}
	}
	unidentified := len(receipts) - identified
	unidentifiedRevenue := totalRevenue.Sub(identifiedRevenue)
	customers := distinctCustomers(receipts)

	frequency := decimal.Zero
	if identified > 0 && customers > 0 {
		frequency = decimal.NewFromInt(int64(identified)).Div(decimal.NewFromInt(int64(customers)))
	}

	return domain.IdentificationOverview{
		IdentifiedRevenueShare:    Percent(identifiedRevenue, totalRevenue),
		IdentifiedAverageBasket:   Average(identifiedRevenue, identified),
		UnidentifiedAverageBasket: Average(unidentifiedRevenue, unidentified),
		IdentifiedFrequency:       frequency,
	}
}
