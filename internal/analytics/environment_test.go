package analytics

import "testing"

func TestEstimateEnvironmentImpactConstants(t *testing.T) {
	impact := EstimateEnvironmentImpact(1000)
	if !impact.PaperSavedKg.Equal(mustDecimal("3")) {
		t.Fatalf("expected 3 kg paper, got %s", impact.PaperSavedKg)
	}
	if !impact.CO2AvoidedKg.Equal(mustDecimal("2.4")) {
		t.Fatalf("expected 2.4 kg CO2, got %s", impact.CO2AvoidedKg)
	}
	if !impact.TreesEquivalent.Equal(mustDecimal("0.3")) {
		t.Fatalf("expected 0.3 trees, got %s", impact.TreesEquivalent)
	}
}

func TestEstimateEnvironmentImpactZero(t *testing.T) {
	impact := EstimateEnvironmentImpact(0)
	if !impact.PaperSavedKg.IsZero() || !impact.CO2AvoidedKg.IsZero() || !impact.TreesEquivalent.IsZero() {
		t.Fatalf("expected all-zero impact, got %+v", impact)
	}
}

func TestProjectEnvironmentImpactLinearScaling(t *testing.T) {
	current := EstimateEnvironmentImpact(1000)
	projected := ProjectEnvironmentImpact(current, mustDecimal("50"))
	if projected.DigitalTicketsYear != 1500 {
		t.Fatalf("expected 1500 projected tickets, got %d", projected.DigitalTicketsYear)
	}
	if !projected.PaperSavedKg.Equal(mustDecimal("4.5")) {
		t.Fatalf("expected 4.5 kg projected paper, got %s", projected.PaperSavedKg)
	}
}
