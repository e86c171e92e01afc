package analytics

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"swiim/backend/internal/domain"
)

func TestAggregateByStoreRanksByRevenue(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	small := testReceipt("r1", at, "10.00", "cust-1")
	big := testReceipt("r2", at, "90.00", "")
	big.StoreID = "store-2"
	big.StoreName = "Lyon Part-Dieu"

	performance := AggregateByStore([]domain.Receipt{small, big})
	if len(performance) != 2 {
		t.Fatalf("expected 2 stores, got %d", len(performance))
	}
	if performance[0].ID != "store-2" {
		t.Fatalf("expected store-2 ranked first, got %s", performance[0].ID)
	}
	if !performance[1].IdentificationRate.Equal(mustDecimal("100")) {
		t.Fatalf("expected 100%% identification for store-1, got %s", performance[1].IdentificationRate)
	}
}

func TestAggregateByCategoryRevenueFromLineItems(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	// Receipt total deliberately disagrees with line items; category revenue
	// must come from the items.
	r := testReceipt("r1", at, "999.99", "",
		testItem("Épicerie", 2, "3.50"),
		testItem("Frais", 1, "4.00"),
	)

	categories := AggregateByCategory([]domain.Receipt{r}, at)
	if len(categories) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(categories))
	}
	if categories[0].Category != "Épicerie" || !categories[0].Revenue.Equal(mustDecimal("7.00")) {
		t.Fatalf("unexpected top category: %+v", categories[0])
	}
	if !categories[1].Revenue.Equal(mustDecimal("4.00")) {
		t.Fatalf("unexpected second category: %+v", categories[1])
	}
}

func TestAggregateByCategoryCountsDistinctReceipts(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	// Two line items of the same category in one receipt: one ticket.
	r := testReceipt("r1", at, "10.00", "",
		testItem("Épicerie", 1, "3.00"),
		testItem("épicerie ", 1, "7.00"),
	)

	categories := AggregateByCategory([]domain.Receipt{r}, at)
	if len(categories) != 1 {
		t.Fatalf("expected normalization to merge categories, got %d", len(categories))
	}
	if categories[0].Tickets != 1 {
		t.Fatalf("expected 1 distinct receipt, got %d", categories[0].Tickets)
	}
	if !categories[0].Revenue.Equal(mustDecimal("10.00")) {
		t.Fatalf("expected merged revenue 10.00, got %s", categories[0].Revenue)
	}
}

func TestCategoryPartitionCompleteness(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	receipts := []domain.Receipt{
		testReceipt("r1", at, "0", "",
			testItem("Épicerie", 2, "3.25"),
			testItem("Frais", 1, "4.10"),
		),
		testReceipt("r2", at, "0", "",
			testItem("Hi-Tech", 1, "119.99"),
			testItem("Épicerie", 3, "1.05"),
		),
	}

	itemTotal := decimal.Zero
	for _, r := range receipts {
		itemTotal = itemTotal.Add(r.ItemsTotal())
	}

	categories := AggregateByCategory(receipts, at)
	categoryTotal := decimal.Zero
	for _, c := range categories {
		categoryTotal = categoryTotal.Add(c.Revenue)
	}
	if !categoryTotal.Equal(itemTotal) {
		t.Fatalf("category revenue %s does not reconcile with line-item revenue %s", categoryTotal, itemTotal)
	}
}

func TestTopCategoriesWithOtherPreservesPartition(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	receipts := make([]domain.Receipt, 0, 9)
	for i := 0; i < 9; i++ {
		receipts = append(receipts, testReceipt(
			fmt.Sprintf("r-%d", i), at, "0", "",
			testItem(fmt.Sprintf("Catégorie %d", i), 1, fmt.Sprintf("%d.00", 100-i)),
		))
	}

	full := AggregateByCategory(receipts, at)
	capped := TopCategoriesWithOther(full, TopCategories)
	if len(capped) != TopCategories+1 {
		t.Fatalf("expected %d entries, got %d", TopCategories+1, len(capped))
	}
	if capped[TopCategories].Category != OtherCategoryLabel {
		t.Fatalf("expected trailing %q bucket, got %q", OtherCategoryLabel, capped[TopCategories].Category)
	}

	fullTotal := decimal.Zero
	for _, c := range full {
		fullTotal = fullTotal.Add(c.Revenue)
	}
	cappedTotal := decimal.Zero
	for _, c := range capped {
		cappedTotal = cappedTotal.Add(c.Revenue)
	}
	if !cappedTotal.Equal(fullTotal) {
		t.Fatalf("capped revenue %s does not reconcile with full revenue %s", cappedTotal, fullTotal)
	}
}

func TestTopCategoriesWithOtherNoTruncationNeeded(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	receipts := []domain.Receipt{
		testReceipt("r1", at, "0", "", testItem("Épicerie", 1, "5.00")),
	}
	full := AggregateByCategory(receipts, at)
	capped := TopCategoriesWithOther(full, TopCategories)
	if len(capped) != 1 || capped[0].Category != "Épicerie" {
		t.Fatalf("expected untouched list below the cap, got %+v", capped)
	}
}
