package memory

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"swiim/backend/internal/analytics"
	"swiim/backend/internal/domain"
)

type seedProduct struct {
	name     string
	category string
	price    string
}

var seedCatalog = []seedProduct{
	{"Pommes Golden 1kg", "Fruits & Légumes", "2.80"},
	{"Bananes 1kg", "Fruits & Légumes", "1.90"},
	{"Pâtes Penne 500g", "Épicerie", "1.45"},
	{"Huile d'olive 75cl", "Épicerie", "7.90"},
	{"Riz Basmati 1kg", "Épicerie", "3.60"},
	{"Yaourt nature x4", "Frais", "2.15"},
	{"Camembert", "Frais", "3.40"},
	{"Jus d'orange 1L", "Boissons", "2.60"},
	{"Eau minérale 6x1.5L", "Boissons", "3.20"},
	{"Casque audio", "Hi-Tech", "59.90"},
	{"Chargeur USB-C", "Hi-Tech", "19.90"},
	{"Roman poche", "Livres", "8.50"},
	{"Beau livre photo", "Livres", "35.00"},
	{"Vinyle 33 tours", "Vinyles", "27.90"},
	{"Gel douche", "Hygiène", "2.95"},
	{"Dentifrice", "Hygiène", "2.40"},
}

var seedFirstNames = []string{
	"Camille", "Léa", "Hugo", "Nathan", "Chloé", "Lucas", "Emma", "Louis",
	"Manon", "Jules", "Sarah", "Théo", "Inès", "Gabriel", "Jade", "Arthur",
	"Zoé", "Raphaël", "Louise", "Adam", "Alice", "Maël", "Lina", "Noah",
}

var seedLastNames = []string{
	"Martin", "Bernard", "Dubois", "Thomas", "Robert", "Richard", "Petit",
	"Durand", "Leroy", "Moreau", "Simon", "Laurent", "Lefebvre", "Michel",
	"Garcia", "David", "Bertrand", "Roux", "Vincent", "Fournier", "Morel",
	"Girard", "André", "Mercier",
}

// NewSeeded returns a store preloaded with a deterministic demo dataset:
// four stores, two dozen customers, the default loyalty program, and
// roughly four months of receipts so every dashboard has a previous window
// to compute trends against. The generator is seeded with a fixed value so
// repeated runs produce the same numbers.
func NewSeeded() *Store {
	s := New()
	rng := rand.New(rand.NewSource(20240117))
	now := time.Now().UTC()

	stores := []domain.Store{
		{ID: "str-bastille", Name: "Paris Bastille", City: "Paris", Address: "12 rue de la Roquette"},
		{ID: "str-partdieu", Name: "Lyon Part-Dieu", City: "Lyon", Address: "17 rue du Docteur Bouchut"},
		{ID: "str-bordeaux", Name: "Bordeaux Centre", City: "Bordeaux", Address: "45 cours de l'Intendance"},
		{ID: "str-nantes", Name: "Nantes Commerce", City: "Nantes", Address: "3 place du Commerce"},
	}
	for i, st := range stores {
		st.CreatedAt = now.AddDate(0, 0, -200-i)
		s.storesByID[st.ID] = st
	}

	program := domain.DefaultLoyaltyProgram()
	program.ID = "prg-default"
	for i := range program.Tiers {
		program.Tiers[i].ID = fmt.Sprintf("tier-%d", i+1)
	}
	s.program = &program

	customers := make([]domain.Customer, 0, len(seedFirstNames))
	for i := range seedFirstNames {
		first, last := seedFirstNames[i], seedLastNames[i]
		// Last quarter of customers joined recently so the Nouveaux
		// segment and new-customer rates are populated.
		joinedDaysAgo := 40 + rng.Intn(140)
		if i >= len(seedFirstNames)*3/4 {
			joinedDaysAgo = 1 + rng.Intn(25)
		}
		c := domain.Customer{
			ID:        fmt.Sprintf("cus-%02d", i+1),
			FirstName: first,
			LastName:  last,
			Email:     fmt.Sprintf("%s.%s@example.fr", strings.ToLower(first), strings.ToLower(last)),
			CreatedAt: now.AddDate(0, 0, -joinedDaysAgo),
		}
		s.customersByID[c.ID] = c
		customers = append(customers, c)
	}

	spendByCustomer := make(map[string]decimal.Decimal, len(customers))
	lastSeen := make(map[string]time.Time, len(customers))
	receiptSeq := 0
	for day := 120; day >= 0; day-- {
		perDay := 3 + rng.Intn(5)
		for n := 0; n < perDay; n++ {
			receiptSeq++
			createdAt := now.AddDate(0, 0, -day).Add(-time.Duration(rng.Intn(10)) * time.Hour)
			st := stores[rng.Intn(len(stores))]

			items := make([]domain.LineItem, 0, 3)
			total := decimal.Zero
			for k := 0; k < 1+rng.Intn(3); k++ {
				p := seedCatalog[rng.Intn(len(seedCatalog))]
				qty := 1 + rng.Intn(3)
				item := domain.LineItem{
					Category:  domain.NewCategory(p.category),
					Product:   p.name,
					Quantity:  qty,
					UnitPrice: decimal.RequireFromString(p.price),
				}
				items = append(items, item)
				total = total.Add(item.Amount())
			}

			r := domain.Receipt{
				ID:        fmt.Sprintf("rcp-%04d", receiptSeq),
				StoreID:   st.ID,
				Total:     total,
				Status:    weightedStatus(rng),
				CreatedAt: createdAt,
				Items:     items,
			}
			// Roughly two thirds of receipts carry an identified
			// customer, and only customers already registered at
			// the receipt date.
			if rng.Float64() < 0.65 {
				c := customers[rng.Intn(len(customers))]
				if c.CreatedAt.Before(createdAt) {
					id := c.ID
					r.CustomerID = &id
					if r.Status == domain.ReceiptStatusIssued || r.Status == domain.ReceiptStatusClaimed {
						spendByCustomer[id] = spendByCustomer[id].Add(total)
						if createdAt.After(lastSeen[id]) {
							lastSeen[id] = createdAt
						}
					}
				}
			}
			s.receiptsByID[r.ID] = r
		}
	}

	accSeq := 0
	for _, c := range customers {
		spend, ok := spendByCustomer[c.ID]
		if !ok || rng.Float64() < 0.2 {
			continue
		}
		accSeq++
		seen := lastSeen[c.ID]
		acc := domain.LoyaltyAccount{
			ID:           fmt.Sprintf("acc-%02d", accSeq),
			CustomerID:   c.ID,
			Points:       spend.Mul(program.PointsPerEuro).IntPart(),
			TotalSpend:   spend,
			LastActivity: &seen,
		}
		if tier, ok := analytics.ResolveTier(program.Tiers, spend); ok {
			acc.TierID = tier.ID
		}
		s.accountsByID[acc.ID] = acc
	}

	return s
}

// weightedStatus mirrors the observed distribution of real stores:
// 70% issued, 15% claimed, 10% refunded, 5% cancelled.
func weightedStatus(rng *rand.Rand) string {
	switch v := rng.Float64(); {
	case v < 0.70:
		return domain.ReceiptStatusIssued
	case v < 0.85:
		return domain.ReceiptStatusClaimed
	case v < 0.95:
		return domain.ReceiptStatusRefunded
	default:
		return domain.ReceiptStatusCancelled
	}
}

