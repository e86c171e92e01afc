package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Category is a normalized line-item category. Labels are free text in the
// source data, so aggregation keys off the trimmed, case-folded form while
// the original label is kept for display.
type Category struct {
	Key     string `json:"key"`
	Display string `json:"display"`
}

func NewCategory(label string) Category {
	display := strings.TrimSpace(label)
	if display == "" {
		display = "Divers"
	}
	return Category{
		Key:     strings.ToLower(display),
		Display: display,
	}
}

type Store struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	City      string    `json:"city"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

type StoreCreateRequest struct {
	Name    string `json:"name"`
	City    string `json:"city"`
	Address string `json:"address"`
}

type Customer struct {
	ID             string          `json:"id"`
	FirstName      string          `json:"first_name"`
	LastName       string          `json:"last_name"`
	Email          string          `json:"email"`
	CreatedAt      time.Time       `json:"created_at"`
	LoyaltyAccount *LoyaltyAccount `json:"loyalty_account,omitempty"`
}

type CustomerCreateRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

const (
	ReceiptStatusIssued    = "issued"
	ReceiptStatusClaimed   = "claimed"
	ReceiptStatusRefunded  = "refunded"
	ReceiptStatusCancelled = "cancelled"
)

func IsValidReceiptStatus(status string) bool {
	switch status {
	case ReceiptStatusIssued, ReceiptStatusClaimed, ReceiptStatusRefunded, ReceiptStatusCancelled:
		return true
	}
	return false
}

type LineItem struct {
	Category  Category        `json:"category"`
	Product   string          `json:"product"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Amount is the line total (unit price times quantity).
func (li LineItem) Amount() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Receipt is one completed transaction, fully materialized with its line
// items and optional customer link. CustomerID is nil for unidentified
// receipts; that nullability drives every identification-rate metric.
type Receipt struct {
	ID         string          `json:"id"`
	StoreID    string          `json:"store_id"`
	StoreName  string          `json:"store_name"`
	CustomerID *string         `json:"customer_id,omitempty"`
	Customer   *Customer       `json:"customer,omitempty"`
	Total      decimal.Decimal `json:"total"`
	Status     string          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	Items      []LineItem      `json:"items"`
}

func (r Receipt) Identified() bool {
	return r.CustomerID != nil && *r.CustomerID != ""
}

// ItemsTotal sums the receipt's line items independently of Total.
func (r Receipt) ItemsTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range r.Items {
		sum = sum.Add(item.Amount())
	}
	return sum
}

type LineItemCreateRequest struct {
	Category  string          `json:"category"`
	Product   string          `json:"product"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type ReceiptCreateRequest struct {
	StoreID    string                  `json:"store_id"`
	CustomerID string                  `json:"customer_id,omitempty"`
	Status     string                  `json:"status,omitempty"`
	Items      []LineItemCreateRequest `json:"items"`
}

type ReceiptFilter struct {
	StoreID    string
	CustomerID string
	Status     string
}

type LoyaltyProgram struct {
	ID               string                     `json:"id"`
	Name             string                     `json:"name"`
	Description      string                     `json:"description"`
	PointsPerEuro    decimal.Decimal            `json:"points_per_euro"`
	ConversionRate   int64                      `json:"conversion_rate"`
	ConversionValue  decimal.Decimal            `json:"conversion_value"`
	BonusCategories  map[string]decimal.Decimal `json:"bonus_categories"`
	PointsExpiryDays int                        `json:"points_expiry_days"`
	Tiers            []LoyaltyTier              `json:"tiers"`
}

// DefaultLoyaltyProgram is the program created the first time loyalty is
// enabled: one point per euro, 100 points worth 5 euros, doubled points on
// Livres and Vinyles, points expiring after a year, three spend tiers.
// Tier and program ids are left empty for the store to assign.
func DefaultLoyaltyProgram() LoyaltyProgram {
	argentFloor := decimal.NewFromInt(100)
	orFloor := decimal.NewFromInt(500)
	return LoyaltyProgram{
		Name:            "Programme Fidélité Swiim",
		Description:     "Cumulez des points à chaque achat et débloquez des avantages exclusifs",
		PointsPerEuro:   decimal.NewFromInt(1),
		ConversionRate:  100,
		ConversionValue: decimal.NewFromInt(5),
		BonusCategories: map[string]decimal.Decimal{
			"livres":  decimal.NewFromInt(2),
			"vinyles": decimal.NewFromInt(2),
		},
		PointsExpiryDays: 365,
		Tiers: []LoyaltyTier{
			{Name: "Bronze", MinSpend: decimal.Zero, MaxSpend: &argentFloor, SortOrder: 1},
			{Name: "Argent", MinSpend: argentFloor, MaxSpend: &orFloor, SortOrder: 2},
			{Name: "Or", MinSpend: orFloor, SortOrder: 3},
		},
	}
}

// LoyaltyTier is one spend bracket. Tiers are ordered by ascending MinSpend;
// MaxSpend is nil for the open-ended top tier. The MinSpend boundary is
// inclusive.
type LoyaltyTier struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	MinSpend  decimal.Decimal   `json:"min_spend"`
	MaxSpend  *decimal.Decimal  `json:"max_spend,omitempty"`
	Benefits  map[string]string `json:"benefits,omitempty"`
	SortOrder int               `json:"sort_order"`
}

type LoyaltyAccount struct {
	ID           string          `json:"id"`
	CustomerID   string          `json:"customer_id"`
	Points       int64           `json:"points"`
	TotalSpend   decimal.Decimal `json:"total_spend"`
	LastActivity *time.Time      `json:"last_activity,omitempty"`
	TierID       string          `json:"tier_id,omitempty"`
}

type ProgramRulesUpdate struct {
	PointsPerEuro    *decimal.Decimal           `json:"points_per_euro,omitempty"`
	ConversionRate   *int64                     `json:"conversion_rate,omitempty"`
	ConversionValue  *decimal.Decimal           `json:"conversion_value,omitempty"`
	BonusCategories  map[string]decimal.Decimal `json:"bonus_categories,omitempty"`
	PointsExpiryDays *int                       `json:"points_expiry_days,omitempty"`
}

type TierUpdate struct {
	Name     string            `json:"name"`
	MinSpend decimal.Decimal   `json:"min_spend"`
	MaxSpend *decimal.Decimal  `json:"max_spend,omitempty"`
	Benefits map[string]string `json:"benefits,omitempty"`
}

type Actor struct {
	Username string
	Role     string
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type AnalystCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AnalystUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
