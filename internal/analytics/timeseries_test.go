package analytics

import (
	"testing"
	"time"

	"swiim/backend/internal/domain"
)

func parisLocation(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func TestBucketByDaySkipsEmptyDays(t *testing.T) {
	loc := parisLocation(t)
	receipts := []domain.Receipt{
		testReceipt("r1", time.Date(2024, 1, 1, 10, 0, 0, 0, loc), "10.00", ""),
		testReceipt("r2", time.Date(2024, 1, 1, 18, 30, 0, 0, loc), "15.00", ""),
		testReceipt("r3", time.Date(2024, 1, 3, 9, 0, 0, 0, loc), "5.00", ""),
	}

	points := BucketByDay(receipts, loc)
	if len(points) != 2 {
		t.Fatalf("expected 2 daily points, got %d", len(points))
	}
	if points[0].Date != "2024-01-01" || points[0].Tickets != 2 || !points[0].Revenue.Equal(mustDecimal("25.00")) {
		t.Fatalf("unexpected first point: %+v", points[0])
	}
	if points[1].Date != "2024-01-03" || points[1].Tickets != 1 || !points[1].Revenue.Equal(mustDecimal("5.00")) {
		t.Fatalf("unexpected second point: %+v", points[1])
	}
}

// A receipt just before midnight UTC belongs to the next Paris calendar day.
func TestBucketByDayUsesBusinessTimeZone(t *testing.T) {
	loc := parisLocation(t)
	receipts := []domain.Receipt{
		testReceipt("r1", time.Date(2024, 6, 1, 23, 30, 0, 0, time.UTC), "8.00", ""),
	}

	points := BucketByDay(receipts, loc)
	if len(points) != 1 {
		t.Fatalf("expected 1 daily point, got %d", len(points))
	}
	if points[0].Date != "2024-06-02" {
		t.Fatalf("expected Paris-local date 2024-06-02, got %s", points[0].Date)
	}
}

func TestBucketByDaySkipsZeroTimestamps(t *testing.T) {
	loc := parisLocation(t)
	receipts := []domain.Receipt{
		testReceipt("r1", time.Time{}, "10.00", ""),
		testReceipt("r2", time.Date(2024, 1, 5, 10, 0, 0, 0, loc), "4.00", ""),
	}

	points := BucketByDay(receipts, loc)
	if len(points) != 1 || points[0].Date != "2024-01-05" {
		t.Fatalf("expected single point for 2024-01-05, got %+v", points)
	}
}

func TestBucketByDayTracksIdentificationRate(t *testing.T) {
	loc := parisLocation(t)
	at := time.Date(2024, 2, 10, 12, 0, 0, 0, loc)
	receipts := []domain.Receipt{
		testReceipt("r1", at, "10.00", "cust-1"),
		testReceipt("r2", at, "10.00", ""),
	}

	points := BucketByDay(receipts, loc)
	if len(points) != 1 {
		t.Fatalf("expected 1 point, got %d", len(points))
	}
	if !points[0].IdentificationRate.Equal(mustDecimal("50")) {
		t.Fatalf("expected 50%% identification, got %s", points[0].IdentificationRate)
	}
}
