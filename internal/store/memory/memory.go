package memory

import (
	"context"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"swiim/backend/internal/analytics"
	"swiim/backend/internal/domain"
	"swiim/backend/internal/store"
	"swiim/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	storesByID      map[string]domain.Store
	customersByID   map[string]domain.Customer
	receiptsByID    map[string]domain.Receipt
	program         *domain.LoyaltyProgram
	accountsByID    map[string]domain.LoyaltyAccount
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		storesByID:      make(map[string]domain.Store),
		customersByID:   make(map[string]domain.Customer),
		receiptsByID:    make(map[string]domain.Receipt),
		accountsByID:    make(map[string]domain.LoyaltyAccount),
		usersByUsername: seedUsers(),
	}
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_ANALYST_PASSWORD
// environment variables, with hardcoded dev defaults and a warning when
// unset. The memory store is never used when DATABASE_URL is configured.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	analystPwd := envOr("SEED_ANALYST_PASSWORD", "analyst123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_ANALYST_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_ANALYST_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"analyst", analystPwd, "analyst"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) ListStores(_ context.Context) ([]domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stores := make([]domain.Store, 0, len(s.storesByID))
	for _, st := range s.storesByID {
		stores = append(stores, st)
	}
	sort.Slice(stores, func(i, j int) bool { return stores[i].Name < stores[j].Name })
	return stores, nil
}

func (s *Store) GetStoreByID(_ context.Context, id string) (*domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.storesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &st, nil
}

func (s *Store) CreateStore(_ context.Context, st domain.Store) (*domain.Store, error) {
	if st.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if st.ID == "" {
		st.ID = xid.New("str")
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.storesByID[st.ID] = st
	return &st, nil
}

func (s *Store) ListCustomers(_ context.Context, limit int) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customersByID))
	for _, c := range s.customersByID {
		customers = append(customers, s.withAccount(c))
	}
	sort.Slice(customers, func(i, j int) bool { return customers[i].ID < customers[j].ID })
	if limit > 0 && len(customers) > limit {
		customers = customers[:limit]
	}
	return customers, nil
}

// withAccount attaches the customer's loyalty account, if any. Callers must
// hold at least a read lock.
func (s *Store) withAccount(c domain.Customer) domain.Customer {
	for _, acc := range s.accountsByID {
		if acc.CustomerID == c.ID {
			copied := acc
			c.LoyaltyAccount = &copied
			break
		}
	}
	return c
}

func (s *Store) GetCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c = s.withAccount(c)
	return &c, nil
}

func (s *Store) CreateCustomer(_ context.Context, c domain.Customer) (*domain.Customer, error) {
	if c.Email == "" {
		return nil, store.ErrInvalidInput
	}
	if c.ID == "" {
		c.ID = xid.New("cus")
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.customersByID {
		if strings.EqualFold(existing.Email, c.Email) {
			return nil, store.ErrInvalidInput
		}
	}
	s.customersByID[c.ID] = c
	return &c, nil
}

func (s *Store) FetchReceipts(_ context.Context, windowStart, windowEnd time.Time, filter domain.ReceiptFilter) ([]domain.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	receipts := make([]domain.Receipt, 0, 256)
	for _, r := range s.receiptsByID {
		if r.CreatedAt.Before(windowStart) || !r.CreatedAt.Before(windowEnd) {
			continue
		}
		if filter.StoreID != "" && r.StoreID != filter.StoreID {
			continue
		}
		if filter.CustomerID != "" && (r.CustomerID == nil || *r.CustomerID != filter.CustomerID) {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		receipts = append(receipts, s.materialize(r))
	}
	sort.Slice(receipts, func(i, j int) bool {
		if !receipts[i].CreatedAt.Equal(receipts[j].CreatedAt) {
			return receipts[i].CreatedAt.Before(receipts[j].CreatedAt)
		}
		return receipts[i].ID < receipts[j].ID
	})
	return receipts, nil
}

// materialize denormalizes store name and customer onto the receipt.
// Callers must hold at least a read lock.
func (s *Store) materialize(r domain.Receipt) domain.Receipt {
	if st, ok := s.storesByID[r.StoreID]; ok {
		r.StoreName = st.Name
	}
	if r.CustomerID != nil {
		if c, ok := s.customersByID[*r.CustomerID]; ok {
			c = s.withAccount(c)
			r.Customer = &c
		}
	}
	return r
}

func (s *Store) GetReceiptByID(_ context.Context, id string) (*domain.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.receiptsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	r = s.materialize(r)
	return &r, nil
}

// totalTolerance is the allowed gap between a receipt total and the sum of
// its line items at ingestion.
var totalTolerance = decimal.NewFromFloat(0.01)

func (s *Store) CreateReceipt(_ context.Context, r domain.Receipt) (*domain.Receipt, error) {
	if r.StoreID == "" || len(r.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if r.Total.Sub(r.ItemsTotal()).Abs().GreaterThan(totalTolerance) {
		log.Printf("[memory-store] rejecting receipt: total %s diverges from line items %s", r.Total, r.ItemsTotal())
		return nil, store.ErrTotalMismatch
	}
	if r.ID == "" {
		r.ID = xid.New("rcp")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.Status == "" {
		r.Status = domain.ReceiptStatusIssued
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.storesByID[r.StoreID]; !ok {
		return nil, store.ErrNotFound
	}
	if r.CustomerID != nil {
		if _, ok := s.customersByID[*r.CustomerID]; !ok {
			return nil, store.ErrNotFound
		}
	}
	s.receiptsByID[r.ID] = r
	created := s.materialize(r)
	return &created, nil
}

func (s *Store) UpdateReceiptStatus(_ context.Context, id string, status string) (*domain.Receipt, error) {
	if !domain.IsValidReceiptStatus(status) {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.receiptsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	r.Status = status
	s.receiptsByID[id] = r
	updated := s.materialize(r)
	return &updated, nil
}

func (s *Store) GetLoyaltyProgram(_ context.Context) (*domain.LoyaltyProgram, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.program == nil {
		return nil, store.ErrNotFound
	}
	copied := *s.program
	return &copied, nil
}

func (s *Store) EnsureLoyaltyProgram(_ context.Context, program domain.LoyaltyProgram) (*domain.LoyaltyProgram, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.program != nil {
		copied := *s.program
		return &copied, nil
	}
	if program.ID == "" {
		program.ID = xid.New("prg")
	}
	for i := range program.Tiers {
		if program.Tiers[i].ID == "" {
			program.Tiers[i].ID = xid.New("tier")
		}
	}
	s.program = &program
	copied := program
	return &copied, nil
}

func (s *Store) UpdateProgramRules(_ context.Context, programID string, update domain.ProgramRulesUpdate) (*domain.LoyaltyProgram, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.program == nil || s.program.ID != programID {
		return nil, store.ErrNotFound
	}
	if update.PointsPerEuro != nil {
		if update.PointsPerEuro.IsNegative() {
			return nil, store.ErrInvalidInput
		}
		s.program.PointsPerEuro = *update.PointsPerEuro
	}
	if update.ConversionRate != nil {
		if *update.ConversionRate < 1 {
			return nil, store.ErrInvalidInput
		}
		s.program.ConversionRate = *update.ConversionRate
	}
	if update.ConversionValue != nil {
		if update.ConversionValue.IsNegative() {
			return nil, store.ErrInvalidInput
		}
		s.program.ConversionValue = *update.ConversionValue
	}
	if update.BonusCategories != nil {
		normalized := make(map[string]decimal.Decimal, len(update.BonusCategories))
		for label, bonus := range update.BonusCategories {
			normalized[domain.NewCategory(label).Key] = bonus
		}
		s.program.BonusCategories = normalized
	}
	if update.PointsExpiryDays != nil {
		if *update.PointsExpiryDays < 0 {
			return nil, store.ErrInvalidInput
		}
		s.program.PointsExpiryDays = *update.PointsExpiryDays
	}
	copied := *s.program
	return &copied, nil
}

func (s *Store) ReplaceTiers(_ context.Context, programID string, tiers []domain.LoyaltyTier) (*domain.LoyaltyProgram, error) {
	if len(tiers) == 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.program == nil || s.program.ID != programID {
		return nil, store.ErrNotFound
	}
	replacement := make([]domain.LoyaltyTier, len(tiers))
	copy(replacement, tiers)
	sort.Slice(replacement, func(i, j int) bool {
		return replacement[i].MinSpend.LessThan(replacement[j].MinSpend)
	})
	for i := range replacement {
		if replacement[i].ID == "" {
			replacement[i].ID = xid.New("tier")
		}
		replacement[i].SortOrder = i + 1
	}
	s.program.Tiers = replacement

	// Tier assignment is derived from cumulative spend; recompute every
	// account against the new brackets rather than trusting cached ids.
	for id, acc := range s.accountsByID {
		if tier, ok := analytics.ResolveTier(replacement, acc.TotalSpend); ok {
			acc.TierID = tier.ID
		} else {
			acc.TierID = ""
		}
		s.accountsByID[id] = acc
	}

	copied := *s.program
	return &copied, nil
}

func (s *Store) ListLoyaltyAccounts(_ context.Context, programID string) ([]domain.LoyaltyAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.program == nil || s.program.ID != programID {
		return nil, store.ErrNotFound
	}
	accounts := make([]domain.LoyaltyAccount, 0, len(s.accountsByID))
	for _, acc := range s.accountsByID {
		accounts = append(accounts, acc)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

func (s *Store) UpsertLoyaltyAccount(_ context.Context, account domain.LoyaltyAccount) (*domain.LoyaltyAccount, error) {
	if account.CustomerID == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.customersByID[account.CustomerID]; !ok {
		return nil, store.ErrNotFound
	}
	for id, existing := range s.accountsByID {
		if existing.CustomerID == account.CustomerID {
			account.ID = id
			break
		}
	}
	if account.ID == "" {
		account.ID = xid.New("acc")
	}
	if s.program != nil {
		if tier, ok := analytics.ResolveTier(s.program.Tiers, account.TotalSpend); ok {
			account.TierID = tier.ID
		}
	}
	s.accountsByID[account.ID] = account
	return &account, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrInvalidInput
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}
