package analytics

import (
	"fmt"
	"testing"
	"time"

	"swiim/backend/internal/domain"
)

func TestComputeOverviewIdentificationRate(t *testing.T) {
	at := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	receipts := make([]domain.Receipt, 0, 10)
	for i := 0; i < 7; i++ {
		receipts = append(receipts, testReceipt(fmt.Sprintf("id-%d", i), at, "20.00", fmt.Sprintf("cust-%d", i)))
	}
	for i := 7; i < 10; i++ {
		receipts = append(receipts, testReceipt(fmt.Sprintf("anon-%d", i), at, "20.00", ""))
	}

	kpis := ComputeOverview(receipts, nil)
	if !kpis.IdentificationRate.Equal(mustDecimal("70")) {
		t.Fatalf("expected identification rate 70, got %s", kpis.IdentificationRate)
	}
	if kpis.ActiveCustomers != 7 {
		t.Fatalf("expected 7 active customers, got %d", kpis.ActiveCustomers)
	}
}

func TestComputeOverviewSumInvariant(t *testing.T) {
	at := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	receipts := []domain.Receipt{
		testReceipt("r1", at, "10.01", ""),
		testReceipt("r2", at, "0.99", ""),
		testReceipt("r3", at, "100.005", ""),
	}

	kpis := ComputeOverview(receipts, nil)
	if !kpis.TotalRevenue.Equal(mustDecimal("111.005")) {
		t.Fatalf("expected exact revenue 111.005, got %s", kpis.TotalRevenue)
	}
	if !kpis.AverageBasket.Mul(mustDecimal("3")).Sub(kpis.TotalRevenue).Abs().LessThan(mustDecimal("0.0000001")) {
		t.Fatalf("average basket inconsistent with total: %s", kpis.AverageBasket)
	}
}

func TestComputeOverviewCountsDistinctCustomersNotReceipts(t *testing.T) {
	at := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	receipts := []domain.Receipt{
		testReceipt("r1", at, "10.00", "cust-1"),
		testReceipt("r2", at, "10.00", "cust-1"),
		testReceipt("r3", at, "10.00", "cust-2"),
	}

	kpis := ComputeOverview(receipts, nil)
	if kpis.ActiveCustomers != 2 {
		t.Fatalf("expected 2 distinct customers, got %d", kpis.ActiveCustomers)
	}
}

func TestComputeOverviewDigitalRate(t *testing.T) {
	at := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	claimed := testReceipt("r1", at, "10.00", "")
	claimed.Status = domain.ReceiptStatusClaimed
	receipts := []domain.Receipt{
		claimed,
		testReceipt("r2", at, "10.00", ""),
		testReceipt("r3", at, "10.00", ""),
		testReceipt("r4", at, "10.00", ""),
	}

	kpis := ComputeOverview(receipts, nil)
	if !kpis.DigitalRate.Equal(mustDecimal("25")) {
		t.Fatalf("expected digital rate 25, got %s", kpis.DigitalRate)
	}
}

func TestComputeOverviewTrends(t *testing.T) {
	at := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	prevAt := at.AddDate(0, 0, -35)
	current := []domain.Receipt{
		testReceipt("c1", at, "100.00", "cust-1"),
		testReceipt("c2", at, "100.00", "cust-2"),
	}
	previous := []domain.Receipt{
		testReceipt("p1", prevAt, "100.00", "cust-1"),
	}

	kpis := ComputeOverview(current, previous)
	if kpis.Trends == nil {
		t.Fatalf("expected trends with a previous window")
	}
	if !kpis.Trends.ReceiptsTrend.Equal(mustDecimal("100")) {
		t.Fatalf("expected receipts trend +100, got %s", kpis.Trends.ReceiptsTrend)
	}
	if !kpis.Trends.RevenueTrend.Equal(mustDecimal("100")) {
		t.Fatalf("expected revenue trend +100, got %s", kpis.Trends.RevenueTrend)
	}
	// Identification went from 100% to 100%: point difference is zero.
	if !kpis.Trends.IdentificationTrend.IsZero() {
		t.Fatalf("expected zero identification trend, got %s", kpis.Trends.IdentificationTrend)
	}
}

func TestComputeOverviewEmptyPreviousWindowGuards(t *testing.T) {
	at := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	current := []domain.Receipt{testReceipt("c1", at, "50.00", "cust-1")}

	kpis := ComputeOverview(current, []domain.Receipt{})
	if kpis.Trends == nil {
		t.Fatalf("expected trends struct even with empty previous window")
	}
	if !kpis.Trends.ReceiptsTrend.IsZero() || !kpis.Trends.RevenueTrend.IsZero() || !kpis.Trends.IdentificationTrend.IsZero() {
		t.Fatalf("expected all-zero trends with empty previous window, got %+v", kpis.Trends)
	}
}

func TestSanitizeDropsMalformedRecords(t *testing.T) {
	at := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	bad := testReceipt("bad", at, "10.00", "")
	bad.Total = mustDecimal("-5.00")
	receipts := []domain.Receipt{
		testReceipt("ok", at, "10.00", ""),
		testReceipt("no-ts", time.Time{}, "10.00", ""),
		bad,
	}

	clean := Sanitize(receipts)
	if len(clean) != 1 || clean[0].ID != "ok" {
		t.Fatalf("expected only the well-formed receipt, got %+v", clean)
	}
}

func TestComputeIdentificationBreakdown(t *testing.T) {
	at := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	receipts := []domain.Receipt{
		testReceipt("r1", at, "60.00", "cust-1"),
		testReceipt("r2", at, "40.00", ""),
	}

	ident := ComputeIdentification(receipts)
	if !ident.IdentifiedRevenueShare.Equal(mustDecimal("60")) {
		t.Fatalf("expected 60%% identified revenue, got %s", ident.IdentifiedRevenueShare)
	}
	if !ident.IdentifiedAverageBasket.Equal(mustDecimal("60.00")) {
		t.Fatalf("expected identified basket 60, got %s", ident.IdentifiedAverageBasket)
	}
	if !ident.UnidentifiedAverageBasket.Equal(mustDecimal("40.00")) {
		t.Fatalf("expected unidentified basket 40, got %s", ident.UnidentifiedAverageBasket)
	}
}
