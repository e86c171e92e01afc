package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"swiim/backend/internal/analytics"
	"swiim/backend/internal/cache"
	"swiim/backend/internal/domain"
	"swiim/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const overviewCacheKey = "analytics:overview"

type Service struct {
	repo              store.Repository
	overviewCache     cache.OverviewCache
	loc               *time.Location
	windowDays        int
	segmentWindowDays int
	cacheTTL          time.Duration

	// now is swappable for deterministic window tests.
	now func() time.Time
}

func New(repo store.Repository, overviewCache cache.OverviewCache, loc *time.Location, windowDays int, segmentWindowDays int, cacheTTL time.Duration) *Service {
	if overviewCache == nil {
		overviewCache = cache.NoopOverviewCache{}
	}
	if loc == nil {
		loc = time.UTC
	}
	if windowDays < 1 {
		windowDays = 30
	}
	if segmentWindowDays < 1 {
		segmentWindowDays = 90
	}
	if cacheTTL <= 0 {
		cacheTTL = 60 * time.Second
	}

	return &Service{
		repo:              repo,
		overviewCache:     overviewCache,
		loc:               loc,
		windowDays:        windowDays,
		segmentWindowDays: segmentWindowDays,
		cacheTTL:          cacheTTL,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

// currentWindow is [now-W, now); previousWindow the W days before it.
func (s *Service) currentWindow(now time.Time) (time.Time, time.Time) {
	return now.AddDate(0, 0, -s.windowDays), now
}

func (s *Service) previousWindow(now time.Time) (time.Time, time.Time) {
	return now.AddDate(0, 0, -2*s.windowDays), now.AddDate(0, 0, -s.windowDays)
}

func (s *Service) fetchWindow(ctx context.Context, start, end time.Time, filter domain.ReceiptFilter) ([]domain.Receipt, error) {
	receipts, err := s.repo.FetchReceipts(ctx, start, end, filter)
	if err != nil {
		return nil, err
	}
	return analytics.Sanitize(receipts), nil
}

// AnalyticsOverview assembles the full dashboard for the current window. An
// upstream fetch failure yields a no-data result carrying the diagnostic
// reason instead of an error, so the dashboard can always render.
func (s *Service) AnalyticsOverview(ctx context.Context) (domain.AnalyticsOverview, error) {
	if cached, ok, err := s.overviewCache.Get(ctx, overviewCacheKey); err != nil {
		log.Printf("[service] WARN: overview cache read failed: %v", err)
	} else if ok {
		return *cached, nil
	}

	now := s.now()
	start, end := s.currentWindow(now)
	current, err := s.fetchWindow(ctx, start, end, domain.ReceiptFilter{})
	if err != nil {
		log.Printf("[service] overview fetch failed: %v", err)
		return domain.AnalyticsOverview{
			HasData:    false,
			Reason:     "receipt source unavailable",
			Trends:     []domain.DailyPoint{},
			Stores:     []domain.StorePerformance{},
			Categories: []domain.CategoryPerformance{},
		}, nil
	}

	prevStart, prevEnd := s.previousWindow(now)
	previous, err := s.fetchWindow(ctx, prevStart, prevEnd, domain.ReceiptFilter{})
	if err != nil {
		log.Printf("[service] WARN: previous window fetch failed, trends omitted: %v", err)
		previous = nil
	}

	result := domain.AnalyticsOverview{
		HasData:        len(current) > 0,
		Overview:       analytics.ComputeOverview(current, previous),
		Trends:         analytics.BucketByDay(current, s.loc),
		Stores:         analytics.AggregateByStore(current),
		Categories:     analytics.TopCategoriesWithOther(analytics.AggregateByCategory(current, now), analytics.TopCategories),
		Identification: analytics.ComputeIdentification(current),
		Environment:    s.environmentEstimate(ctx, now),
	}

	if err := s.overviewCache.Set(ctx, overviewCacheKey, &result, s.cacheTTL); err != nil {
		log.Printf("[service] WARN: overview cache write failed: %v", err)
	}

	return result, nil
}

func (s *Service) environmentEstimate(ctx context.Context, now time.Time) domain.EnvironmentImpact {
	digital, err := s.countDigitalTicketsYear(ctx, now)
	if err != nil {
		log.Printf("[service] WARN: environment estimate unavailable: %v", err)
		return analytics.EstimateEnvironmentImpact(0)
	}
	return analytics.EstimateEnvironmentImpact(digital)
}

func (s *Service) countDigitalTicketsYear(ctx context.Context, now time.Time) (int, error) {
	receipts, err := s.fetchWindow(ctx, now.AddDate(-1, 0, 0), now, domain.ReceiptFilter{Status: domain.ReceiptStatusClaimed})
	if err != nil {
		return 0, err
	}
	return len(receipts), nil
}

// TimeSeries buckets the current window by business day. storeID is optional.
func (s *Service) TimeSeries(ctx context.Context, storeID string) ([]domain.DailyPoint, error) {
	now := s.now()
	start, end := s.currentWindow(now)
	receipts, err := s.fetchWindow(ctx, start, end, domain.ReceiptFilter{StoreID: strings.TrimSpace(storeID)})
	if err != nil {
		return nil, err
	}
	return analytics.BucketByDay(receipts, s.loc), nil
}

func (s *Service) StorePerformance(ctx context.Context) ([]domain.StorePerformance, error) {
	now := s.now()
	start, end := s.currentWindow(now)
	receipts, err := s.fetchWindow(ctx, start, end, domain.ReceiptFilter{})
	if err != nil {
		return nil, err
	}
	return analytics.AggregateByStore(receipts), nil
}

// CategoryAnalytics returns the top categories with the tail folded into the
// Autres bucket, so revenue over the result still sums to window revenue.
func (s *Service) CategoryAnalytics(ctx context.Context) ([]domain.CategoryPerformance, error) {
	now := s.now()
	start, end := s.currentWindow(now)
	receipts, err := s.fetchWindow(ctx, start, end, domain.ReceiptFilter{})
	if err != nil {
		return nil, err
	}
	return analytics.TopCategoriesWithOther(analytics.AggregateByCategory(receipts, now), analytics.TopCategories), nil
}

// ClientSegments always returns a tagged result; an upstream failure is
// reported in-band as status "unavailable" rather than as an error.
func (s *Service) ClientSegments(ctx context.Context) domain.SegmentationResult {
	now := s.now()
	receipts, err := s.fetchWindow(ctx, now.AddDate(0, 0, -s.segmentWindowDays), now, domain.ReceiptFilter{})
	if err != nil {
		log.Printf("[service] segment fetch failed: %v", err)
		return domain.SegmentationResult{
			Status:   domain.SegmentationUnavailable,
			Reason:   "receipt source unavailable",
			Segments: []domain.Segment{},
		}
	}
	return analytics.ComputeSegments(receipts, now)
}

func (s *Service) loyaltyInputs(ctx context.Context) (*domain.LoyaltyProgram, []domain.LoyaltyAccount, []domain.Receipt, error) {
	program, err := s.repo.GetLoyaltyProgram(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	accounts, err := s.repo.ListLoyaltyAccounts(ctx, program.ID)
	if err != nil {
		return nil, nil, nil, err
	}

	now := s.now()
	start, end := s.currentWindow(now)
	receipts, err := s.fetchWindow(ctx, start, end, domain.ReceiptFilter{})
	if err != nil {
		return nil, nil, nil, err
	}
	members := make([]domain.Receipt, 0, len(receipts))
	for _, r := range receipts {
		if r.Customer != nil && r.Customer.LoyaltyAccount != nil {
			members = append(members, r)
		}
	}
	return program, accounts, members, nil
}

func (s *Service) LoyaltyStats(ctx context.Context) (domain.LoyaltyStats, error) {
	program, accounts, members, err := s.loyaltyInputs(ctx)
	if err != nil {
		return domain.LoyaltyStats{}, err
	}
	return analytics.ComputeLoyaltyStats(*program, accounts, members, s.now()), nil
}

func (s *Service) SimulateLoyalty(ctx context.Context, req domain.SimulationRequest) (domain.SimulationResult, error) {
	req.BonusCategory = strings.TrimSpace(req.BonusCategory)
	if !req.PointsPerEuroIncrease.IsPositive() && req.BonusCategory == "" {
		return domain.SimulationResult{}, store.ErrInvalidInput
	}
	if req.PointsPerEuroIncrease.IsNegative() || req.BonusPercent.IsNegative() {
		return domain.SimulationResult{}, store.ErrInvalidInput
	}
	if req.BonusCategory != "" && !req.BonusPercent.IsPositive() {
		return domain.SimulationResult{}, store.ErrInvalidInput
	}

	program, accounts, members, err := s.loyaltyInputs(ctx)
	if err != nil {
		return domain.SimulationResult{}, err
	}
	return analytics.Simulate(*program, accounts, members, req), nil
}

// EnvironmentImpact reports the trailing-year digital ticket impact. A
// positive projectedIncrease additionally scales the estimate by the
// proposed digital-rate change, in percent.
func (s *Service) EnvironmentImpact(ctx context.Context, projectedIncrease decimal.Decimal) (domain.EnvironmentImpact, error) {
	digital, err := s.countDigitalTicketsYear(ctx, s.now())
	if err != nil {
		return domain.EnvironmentImpact{}, err
	}
	impact := analytics.EstimateEnvironmentImpact(digital)
	if !projectedIncrease.IsZero() {
		impact = analytics.ProjectEnvironmentImpact(impact, projectedIncrease)
	}
	return impact, nil
}

func requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Actor{}, fmt.Errorf("admin role required")
	}
	return actor, nil
}

// EnsureLoyaltyProgram creates the default program if none exists yet.
// Idempotent: a second call returns the existing program untouched.
func (s *Service) EnsureLoyaltyProgram(ctx context.Context) (domain.LoyaltyProgram, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.LoyaltyProgram{}, err
	}

	program, err := s.repo.EnsureLoyaltyProgram(ctx, domain.DefaultLoyaltyProgram())
	if err != nil {
		return domain.LoyaltyProgram{}, err
	}
	log.Printf("[service] loyalty program ensured id=%s by=%s", program.ID, actor.Username)
	return *program, nil
}

func (s *Service) GetLoyaltyProgram(ctx context.Context) (domain.LoyaltyProgram, error) {
	program, err := s.repo.GetLoyaltyProgram(ctx)
	if err != nil {
		return domain.LoyaltyProgram{}, err
	}
	return *program, nil
}

func (s *Service) UpdateProgramRules(ctx context.Context, update domain.ProgramRulesUpdate) (domain.LoyaltyProgram, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.LoyaltyProgram{}, err
	}

	program, err := s.repo.GetLoyaltyProgram(ctx)
	if err != nil {
		return domain.LoyaltyProgram{}, err
	}
	updated, err := s.repo.UpdateProgramRules(ctx, program.ID, update)
	if err != nil {
		return domain.LoyaltyProgram{}, err
	}
	log.Printf("[service] loyalty rules updated id=%s by=%s", updated.ID, actor.Username)
	return *updated, nil
}

func (s *Service) UpdateTiers(ctx context.Context, updates []domain.TierUpdate) (domain.LoyaltyProgram, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.LoyaltyProgram{}, err
	}
	if len(updates) == 0 {
		return domain.LoyaltyProgram{}, store.ErrInvalidInput
	}

	tiers := make([]domain.LoyaltyTier, 0, len(updates))
	for _, u := range updates {
		name := strings.TrimSpace(u.Name)
		if name == "" || u.MinSpend.IsNegative() {
			return domain.LoyaltyProgram{}, store.ErrInvalidInput
		}
		if u.MaxSpend != nil && !u.MaxSpend.GreaterThan(u.MinSpend) {
			return domain.LoyaltyProgram{}, store.ErrInvalidInput
		}
		tiers = append(tiers, domain.LoyaltyTier{
			Name:     name,
			MinSpend: u.MinSpend,
			MaxSpend: u.MaxSpend,
			Benefits: u.Benefits,
		})
	}

	program, err := s.repo.GetLoyaltyProgram(ctx)
	if err != nil {
		return domain.LoyaltyProgram{}, err
	}
	updated, err := s.repo.ReplaceTiers(ctx, program.ID, tiers)
	if err != nil {
		return domain.LoyaltyProgram{}, err
	}
	log.Printf("[service] loyalty tiers replaced id=%s count=%d by=%s", updated.ID, len(tiers), actor.Username)
	return *updated, nil
}

func (s *Service) ListStores(ctx context.Context) ([]domain.Store, error) {
	return s.repo.ListStores(ctx)
}

func (s *Service) GetStore(ctx context.Context, id string) (domain.Store, error) {
	st, err := s.repo.GetStoreByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Store{}, err
	}
	return *st, nil
}

func (s *Service) CreateStore(ctx context.Context, req domain.StoreCreateRequest) (domain.Store, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.Store{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.City = strings.TrimSpace(req.City)
	req.Address = strings.TrimSpace(req.Address)
	if req.Name == "" {
		return domain.Store{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateStore(ctx, domain.Store{
		Name:    req.Name,
		City:    req.City,
		Address: req.Address,
	})
	if err != nil {
		return domain.Store{}, err
	}
	log.Printf("[service] store created id=%s name=%q by=%s", created.ID, created.Name, actor.Username)
	return *created, nil
}

func (s *Service) ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx, limit)
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	c, err := s.repo.GetCustomerByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Customer{}, err
	}
	return *c, nil
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return domain.Customer{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
	})
	if err != nil {
		return domain.Customer{}, err
	}
	return *created, nil
}

// ListReceipts returns the receipts of the trailing `days` window, newest
// window semantics as everywhere else. days falls back to the configured
// window.
func (s *Service) ListReceipts(ctx context.Context, filter domain.ReceiptFilter, days int) ([]domain.Receipt, error) {
	if days < 1 {
		days = s.windowDays
	}
	now := s.now()
	return s.repo.FetchReceipts(ctx, now.AddDate(0, 0, -days), now, filter)
}

func (s *Service) GetReceipt(ctx context.Context, id string) (domain.Receipt, error) {
	r, err := s.repo.GetReceiptByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Receipt{}, err
	}
	return *r, nil
}

// CreateReceipt ingests a new receipt. The total is computed server-side
// from the line items, so it can never diverge from them.
func (s *Service) CreateReceipt(ctx context.Context, req domain.ReceiptCreateRequest) (domain.Receipt, error) {
	req.StoreID = strings.TrimSpace(req.StoreID)
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	if req.StoreID == "" || len(req.Items) == 0 {
		return domain.Receipt{}, store.ErrInvalidInput
	}
	if req.Status != "" && !domain.IsValidReceiptStatus(req.Status) {
		return domain.Receipt{}, store.ErrInvalidInput
	}

	items := make([]domain.LineItem, 0, len(req.Items))
	for _, it := range req.Items {
		if it.Quantity < 1 || it.UnitPrice.IsNegative() {
			return domain.Receipt{}, store.ErrInvalidInput
		}
		items = append(items, domain.LineItem{
			Category:  domain.NewCategory(it.Category),
			Product:   strings.TrimSpace(it.Product),
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}

	receipt := domain.Receipt{
		StoreID: req.StoreID,
		Status:  req.Status,
		Items:   items,
	}
	if req.CustomerID != "" {
		receipt.CustomerID = &req.CustomerID
	}
	receipt.Total = receipt.ItemsTotal()

	created, err := s.repo.CreateReceipt(ctx, receipt)
	if err != nil {
		return domain.Receipt{}, err
	}
	log.Printf("[service] receipt created id=%s store=%s total=%s", created.ID, created.StoreID, created.Total)

	s.accrueLoyalty(ctx, *created)
	return *created, nil
}

// accrueLoyalty updates the customer's loyalty account after an identified
// receipt. Accrual failures are logged, never surfaced: the receipt is
// already persisted.
func (s *Service) accrueLoyalty(ctx context.Context, r domain.Receipt) {
	if !r.Identified() || r.Status == domain.ReceiptStatusRefunded || r.Status == domain.ReceiptStatusCancelled {
		return
	}
	program, err := s.repo.GetLoyaltyProgram(ctx)
	if err != nil {
		return
	}

	account := domain.LoyaltyAccount{CustomerID: *r.CustomerID}
	if r.Customer != nil && r.Customer.LoyaltyAccount != nil {
		account = *r.Customer.LoyaltyAccount
	}
	account.Points += analytics.AccruePoints(*program, r)
	account.TotalSpend = account.TotalSpend.Add(r.Total)
	seen := r.CreatedAt
	account.LastActivity = &seen

	if _, err := s.repo.UpsertLoyaltyAccount(ctx, account); err != nil {
		log.Printf("[service] WARN: loyalty accrual failed customer=%s receipt=%s: %v", *r.CustomerID, r.ID, err)
	}
}

// ClaimReceipt moves an issued receipt to claimed, the transition a customer
// triggers when attaching a paper ticket to their account.
func (s *Service) ClaimReceipt(ctx context.Context, id string) (domain.Receipt, error) {
	id = strings.TrimSpace(id)
	existing, err := s.repo.GetReceiptByID(ctx, id)
	if err != nil {
		return domain.Receipt{}, err
	}
	if existing.Status != domain.ReceiptStatusIssued {
		return domain.Receipt{}, store.ErrInvalidInput
	}

	updated, err := s.repo.UpdateReceiptStatus(ctx, id, domain.ReceiptStatusClaimed)
	if err != nil {
		return domain.Receipt{}, err
	}
	log.Printf("[service] receipt claimed id=%s", updated.ID)
	return *updated, nil
}

func (s *Service) UpdateReceiptStatus(ctx context.Context, id string, status string) (domain.Receipt, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Receipt{}, err
	}
	if !domain.IsValidReceiptStatus(status) {
		return domain.Receipt{}, store.ErrInvalidInput
	}

	updated, err := s.repo.UpdateReceiptStatus(ctx, strings.TrimSpace(id), status)
	if err != nil {
		return domain.Receipt{}, err
	}
	log.Printf("[service] receipt status updated id=%s status=%s", updated.ID, status)
	return *updated, nil
}
