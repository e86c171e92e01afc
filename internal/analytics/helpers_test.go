package analytics

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"swiim/backend/internal/domain"
)

func testReceipt(id string, createdAt time.Time, total string, customerID string, items ...domain.LineItem) domain.Receipt {
	r := domain.Receipt{
		ID:        id,
		StoreID:   "store-1",
		StoreName: "Paris Bastille",
		Total:     decimal.RequireFromString(total),
		Status:    domain.ReceiptStatusIssued,
		CreatedAt: createdAt,
		Items:     items,
	}
	if customerID != "" {
		r.CustomerID = &customerID
	}
	return r
}

func testItem(category string, qty int, unitPrice string) domain.LineItem {
	return domain.LineItem{
		Category:  domain.NewCategory(category),
		Product:   fmt.Sprintf("%s item", category),
		Quantity:  qty,
		UnitPrice: decimal.RequireFromString(unitPrice),
	}
}

func mustDecimal(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}
