package analytics

import (
	"fmt"
	"testing"
	"time"

	"swiim/backend/internal/domain"
)

// championExplorer builds receipts for a customer satisfying both the
// Champions rule (basket > 70, gap < 20 days, >= 5 visits) and the
// Explorateurs rule (>= 3 distinct categories).
func championExplorerReceipts(now time.Time) []domain.Receipt {
	receipts := make([]domain.Receipt, 0, 5)
	categories := []string{"Épicerie", "Livres", "Vinyles", "Frais", "Hi-Tech"}
	for i := 0; i < 5; i++ {
		r := testReceipt(
			fmt.Sprintf("ce-%d", i),
			now.AddDate(0, 0, -5*(5-i)),
			"80.00",
			"cust-champion",
			testItem(categories[i], 1, "80.00"),
		)
		receipts = append(receipts, r)
	}
	return receipts
}

func findSegment(t *testing.T, result domain.SegmentationResult, slug string) domain.Segment {
	t.Helper()
	for _, s := range result.Segments {
		if s.Slug == slug {
			return s
		}
	}
	t.Fatalf("segment %q not found in %+v", slug, result.Segments)
	return domain.Segment{}
}

func TestSegmentsAreNonExclusive(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	result := ComputeSegments(championExplorerReceipts(now), now)
	if result.Status != domain.SegmentationOK {
		t.Fatalf("expected ok segmentation, got %s", result.Status)
	}

	champions := findSegment(t, result, "champions")
	explorers := findSegment(t, result, "explorateurs")
	if champions.Size != 1 || explorers.Size != 1 {
		t.Fatalf("expected the customer in both segments, got champions=%d explorers=%d", champions.Size, explorers.Size)
	}
	if !champions.Revenue.Equal(explorers.Revenue) {
		t.Fatalf("per-customer stats diverge between segments: %s vs %s", champions.Revenue, explorers.Revenue)
	}
	if !champions.AverageBasket.Equal(mustDecimal("80.00")) {
		t.Fatalf("expected average basket 80.00, got %s", champions.AverageBasket)
	}
	if !champions.IdentificationRate.Equal(mustDecimal("100")) {
		t.Fatalf("segmentation requires identified customers, got rate %s", champions.IdentificationRate)
	}
}

func TestSegmentsOccasionalByVisitCount(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	receipts := []domain.Receipt{
		testReceipt("o1", now.AddDate(0, 0, -10), "25.00", "cust-occ"),
	}

	result := ComputeSegments(receipts, now)
	occ := findSegment(t, result, "occasionnels")
	if occ.Size != 1 {
		t.Fatalf("expected one occasional customer, got %d", occ.Size)
	}
}

func TestSegmentsAtRiskByInactivity(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	receipts := []domain.Receipt{
		testReceipt("a1", now.AddDate(0, 0, -50), "25.00", "cust-risk"),
	}

	result := ComputeSegments(receipts, now)
	atRisk := findSegment(t, result, "a-risque")
	if atRisk.Size != 1 {
		t.Fatalf("expected one at-risk customer, got %d", atRisk.Size)
	}
	if atRisk.Frequency != 0 {
		t.Fatalf("at-risk frequency must be zero, got %d", atRisk.Frequency)
	}
}

func TestSegmentsNewCustomerWindow(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	receipts := []domain.Receipt{
		testReceipt("n1", now.AddDate(0, 0, -10), "25.00", "cust-new"),
		testReceipt("n2", now.AddDate(0, 0, -80), "25.00", "cust-old"),
	}

	result := ComputeSegments(receipts, now)
	newcomers := findSegment(t, result, "nouveaux")
	if newcomers.Size != 1 || newcomers.Members[0] != "cust-new" {
		t.Fatalf("expected only cust-new in Nouveaux, got %+v", newcomers.Members)
	}
}

func TestSegmentsEmptyWindowTagged(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	// Only unidentified receipts: no customer can be segmented.
	receipts := []domain.Receipt{
		testReceipt("u1", now.AddDate(0, 0, -1), "25.00", ""),
	}

	result := ComputeSegments(receipts, now)
	if result.Status != domain.SegmentationEmpty {
		t.Fatalf("expected empty status, got %s", result.Status)
	}
	if len(result.Segments) != 0 {
		t.Fatalf("empty result must not fabricate segments, got %+v", result.Segments)
	}
}

func TestBuildProfilesVisitStats(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	receipts := []domain.Receipt{
		testReceipt("p1", now.AddDate(0, 0, -20), "30.00", "cust-1", testItem("Épicerie", 1, "30.00")),
		testReceipt("p2", now.AddDate(0, 0, -10), "50.00", "cust-1", testItem("Frais", 1, "50.00")),
	}

	profiles := BuildProfiles(receipts)
	if len(profiles) != 1 {
		t.Fatalf("expected 1 profile, got %d", len(profiles))
	}
	p := profiles[0]
	if p.VisitCount != 2 || !p.TotalSpend.Equal(mustDecimal("80.00")) {
		t.Fatalf("unexpected profile: %+v", p)
	}
	if p.DistinctCategories != 2 {
		t.Fatalf("expected 2 distinct categories, got %d", p.DistinctCategories)
	}
	if !p.DaysActive.Equal(mustDecimal("10")) {
		t.Fatalf("expected 10 active days, got %s", p.DaysActive)
	}
	if !p.AvgDaysBetweenVisits.Equal(mustDecimal("5")) {
		t.Fatalf("expected 5-day average gap, got %s", p.AvgDaysBetweenVisits)
	}
}

// A single-visit customer has daysActive clamped to 1.
func TestBuildProfilesClampsDaysActive(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	receipts := []domain.Receipt{
		testReceipt("p1", now, "30.00", "cust-1"),
	}

	profiles := BuildProfiles(receipts)
	if !profiles[0].DaysActive.Equal(mustDecimal("1")) {
		t.Fatalf("expected clamped days active of 1, got %s", profiles[0].DaysActive)
	}
}
