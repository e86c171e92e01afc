package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"swiim/backend/internal/analytics"
	"swiim/backend/internal/domain"
	"swiim/backend/internal/store"
	"swiim/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListStores(ctx context.Context) ([]domain.Store, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, city, address, created_at
		FROM stores
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stores := make([]domain.Store, 0, 16)
	for rows.Next() {
		var st domain.Store
		if err := rows.Scan(&st.ID, &st.Name, &st.City, &st.Address, &st.CreatedAt); err != nil {
			return nil, err
		}
		stores = append(stores, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stores, nil
}

func (s *Store) GetStoreByID(ctx context.Context, id string) (*domain.Store, error) {
	var st domain.Store
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, city, address, created_at
		FROM stores
		WHERE id = $1
	`, id).Scan(&st.ID, &st.Name, &st.City, &st.Address, &st.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &st, nil
}

func (s *Store) CreateStore(ctx context.Context, st domain.Store) (*domain.Store, error) {
	if st.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if st.ID == "" {
		st.ID = xid.New("str")
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stores (id, name, city, address, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, st.ID, st.Name, st.City, st.Address, st.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := st
	return &created, nil
}

func (s *Store) ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.first_name, c.last_name, c.email, c.created_at,
		       a.id, a.points, a.total_spend, a.last_activity, a.tier_id
		FROM customers c
		LEFT JOIN loyalty_accounts a ON a.customer_id = c.id
		ORDER BY c.id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, limit)
	for rows.Next() {
		c, err := scanCustomerWithAccount(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return customers, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomerWithAccount(row rowScanner) (domain.Customer, error) {
	var c domain.Customer
	var accID, tierID sql.NullString
	var points sql.NullInt64
	var totalSpend sql.NullString
	var lastActivity sql.NullTime

	err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.CreatedAt,
		&accID, &points, &totalSpend, &lastActivity, &tierID)
	if err != nil {
		return domain.Customer{}, err
	}
	if accID.Valid {
		acc := domain.LoyaltyAccount{
			ID:         accID.String,
			CustomerID: c.ID,
			Points:     points.Int64,
			TierID:     tierID.String,
		}
		if acc.TotalSpend, err = parseDecimal(totalSpend.String); err != nil {
			return domain.Customer{}, err
		}
		if lastActivity.Valid {
			t := lastActivity.Time
			acc.LastActivity = &t
		}
		c.LoyaltyAccount = &acc
	}
	return c, nil
}

func (s *Store) GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.first_name, c.last_name, c.email, c.created_at,
		       a.id, a.points, a.total_spend, a.last_activity, a.tier_id
		FROM customers c
		LEFT JOIN loyalty_accounts a ON a.customer_id = c.id
		WHERE c.id = $1
	`, id)
	c, err := scanCustomerWithAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, c domain.Customer) (*domain.Customer, error) {
	if c.Email == "" {
		return nil, store.ErrInvalidInput
	}
	if c.ID == "" {
		c.ID = xid.New("cus")
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, first_name, last_name, email, created_at)
		VALUES ($1,$2,$3,lower($4),$5)
	`, c.ID, c.FirstName, c.LastName, c.Email, c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := c
	return &created, nil
}

func (s *Store) FetchReceipts(ctx context.Context, windowStart, windowEnd time.Time, filter domain.ReceiptFilter) ([]domain.Receipt, error) {
	query := `
		SELECT r.id, r.store_id, s.name, r.customer_id, r.total, r.status, r.created_at,
		       c.first_name, c.last_name, c.email, c.created_at,
		       a.id, a.points, a.total_spend, a.last_activity, a.tier_id
		FROM receipts r
		JOIN stores s ON s.id = r.store_id
		LEFT JOIN customers c ON c.id = r.customer_id
		LEFT JOIN loyalty_accounts a ON a.customer_id = r.customer_id
		WHERE r.created_at >= $1 AND r.created_at < $2
	`
	args := []any{windowStart, windowEnd}
	if filter.StoreID != "" {
		args = append(args, filter.StoreID)
		query += fmt.Sprintf(" AND r.store_id = $%d", len(args))
	}
	if filter.CustomerID != "" {
		args = append(args, filter.CustomerID)
		query += fmt.Sprintf(" AND r.customer_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND r.status = $%d", len(args))
	}
	query += " ORDER BY r.created_at, r.id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	receipts := make([]domain.Receipt, 0, 256)
	index := make(map[string]int, 256)
	for rows.Next() {
		var r domain.Receipt
		var customerID sql.NullString
		var total string
		var firstName, lastName, email sql.NullString
		var customerCreated sql.NullTime
		var accID, accTier sql.NullString
		var accPoints sql.NullInt64
		var accSpend sql.NullString
		var accSeen sql.NullTime

		err := rows.Scan(&r.ID, &r.StoreID, &r.StoreName, &customerID, &total, &r.Status, &r.CreatedAt,
			&firstName, &lastName, &email, &customerCreated,
			&accID, &accPoints, &accSpend, &accSeen, &accTier)
		if err != nil {
			return nil, err
		}
		if r.Total, err = parseDecimal(total); err != nil {
			return nil, err
		}
		if customerID.Valid {
			id := customerID.String
			r.CustomerID = &id
			c := domain.Customer{
				ID:        id,
				FirstName: firstName.String,
				LastName:  lastName.String,
				Email:     email.String,
				CreatedAt: customerCreated.Time,
			}
			if accID.Valid {
				acc := domain.LoyaltyAccount{
					ID:         accID.String,
					CustomerID: id,
					Points:     accPoints.Int64,
					TierID:     accTier.String,
				}
				if acc.TotalSpend, err = parseDecimal(accSpend.String); err != nil {
					return nil, err
				}
				if accSeen.Valid {
					t := accSeen.Time
					acc.LastActivity = &t
				}
				c.LoyaltyAccount = &acc
			}
			r.Customer = &c
		}
		index[r.ID] = len(receipts)
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(receipts) == 0 {
		return receipts, nil
	}

	// Second pass for line items, joined through the same window filter so
	// no receipt id list has to travel back to the server.
	itemQuery := `
		SELECT ri.receipt_id, ri.category, ri.product, ri.quantity, ri.unit_price
		FROM receipt_items ri
		JOIN receipts r ON r.id = ri.receipt_id
		WHERE r.created_at >= $1 AND r.created_at < $2
	`
	itemArgs := []any{windowStart, windowEnd}
	if filter.StoreID != "" {
		itemArgs = append(itemArgs, filter.StoreID)
		itemQuery += fmt.Sprintf(" AND r.store_id = $%d", len(itemArgs))
	}
	if filter.CustomerID != "" {
		itemArgs = append(itemArgs, filter.CustomerID)
		itemQuery += fmt.Sprintf(" AND r.customer_id = $%d", len(itemArgs))
	}
	if filter.Status != "" {
		itemArgs = append(itemArgs, filter.Status)
		itemQuery += fmt.Sprintf(" AND r.status = $%d", len(itemArgs))
	}
	itemQuery += " ORDER BY ri.receipt_id, ri.line_no"

	itemRows, err := s.db.QueryContext(ctx, itemQuery, itemArgs...)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var receiptID, category, unitPrice string
		var item domain.LineItem
		if err := itemRows.Scan(&receiptID, &category, &item.Product, &item.Quantity, &unitPrice); err != nil {
			return nil, err
		}
		item.Category = domain.NewCategory(category)
		if item.UnitPrice, err = parseDecimal(unitPrice); err != nil {
			return nil, err
		}
		if i, ok := index[receiptID]; ok {
			receipts[i].Items = append(receipts[i].Items, item)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	return receipts, nil
}

func (s *Store) GetReceiptByID(ctx context.Context, id string) (*domain.Receipt, error) {
	var r domain.Receipt
	var customerID sql.NullString
	var total string
	err := s.db.QueryRowContext(ctx, `
		SELECT r.id, r.store_id, s.name, r.customer_id, r.total, r.status, r.created_at
		FROM receipts r
		JOIN stores s ON s.id = r.store_id
		WHERE r.id = $1
	`, id).Scan(&r.ID, &r.StoreID, &r.StoreName, &customerID, &total, &r.Status, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if r.Total, err = parseDecimal(total); err != nil {
		return nil, err
	}
	if customerID.Valid {
		cid := customerID.String
		r.CustomerID = &cid
		customer, err := s.GetCustomerByID(ctx, cid)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		r.Customer = customer
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT category, product, quantity, unit_price
		FROM receipt_items
		WHERE receipt_id = $1
		ORDER BY line_no
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var category, unitPrice string
		var item domain.LineItem
		if err := rows.Scan(&category, &item.Product, &item.Quantity, &unitPrice); err != nil {
			return nil, err
		}
		item.Category = domain.NewCategory(category)
		if item.UnitPrice, err = parseDecimal(unitPrice); err != nil {
			return nil, err
		}
		r.Items = append(r.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &r, nil
}

func (s *Store) CreateReceipt(ctx context.Context, r domain.Receipt) (*domain.Receipt, error) {
	if r.StoreID == "" || len(r.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if r.Total.Sub(r.ItemsTotal()).Abs().GreaterThan(decimal.NewFromFloat(0.01)) {
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

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var customerID any
	if r.CustomerID != nil {
		customerID = *r.CustomerID
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO receipts (id, store_id, customer_id, total, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, r.ID, r.StoreID, customerID, r.Total.String(), r.Status, r.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	for i, item := range r.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO receipt_items (id, receipt_id, line_no, category, product, quantity, unit_price)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, xid.New("itm"), r.ID, i+1, item.Category.Display, item.Product, item.Quantity, item.UnitPrice.String())
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return s.GetReceiptByID(ctx, r.ID)
}

func (s *Store) UpdateReceiptStatus(ctx context.Context, id string, status string) (*domain.Receipt, error) {
	if !domain.IsValidReceiptStatus(status) {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE receipts SET status = $2 WHERE id = $1
	`, id, status)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetReceiptByID(ctx, id)
}

func (s *Store) GetLoyaltyProgram(ctx context.Context) (*domain.LoyaltyProgram, error) {
	return s.loadProgram(ctx, s.db)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) loadProgram(ctx context.Context, q querier) (*domain.LoyaltyProgram, error) {
	var p domain.LoyaltyProgram
	var pointsPerEuro, conversionValue string
	var bonusRaw []byte
	err := q.QueryRowContext(ctx, `
		SELECT id, name, description, points_per_euro, conversion_rate, conversion_value,
		       bonus_categories, points_expiry_days
		FROM loyalty_programs
		ORDER BY created_at
		LIMIT 1
	`).Scan(&p.ID, &p.Name, &p.Description, &pointsPerEuro, &p.ConversionRate,
		&conversionValue, &bonusRaw, &p.PointsExpiryDays)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if p.PointsPerEuro, err = parseDecimal(pointsPerEuro); err != nil {
		return nil, err
	}
	if p.ConversionValue, err = parseDecimal(conversionValue); err != nil {
		return nil, err
	}
	if len(bonusRaw) > 0 {
		if err := json.Unmarshal(bonusRaw, &p.BonusCategories); err != nil {
			return nil, err
		}
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, name, min_spend, max_spend, benefits, sort_order
		FROM loyalty_tiers
		WHERE program_id = $1
		ORDER BY sort_order
	`, p.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var tier domain.LoyaltyTier
		var minSpend string
		var maxSpend sql.NullString
		var benefitsRaw []byte
		if err := rows.Scan(&tier.ID, &tier.Name, &minSpend, &maxSpend, &benefitsRaw, &tier.SortOrder); err != nil {
			return nil, err
		}
		if tier.MinSpend, err = parseDecimal(minSpend); err != nil {
			return nil, err
		}
		if maxSpend.Valid {
			max, err := parseDecimal(maxSpend.String)
			if err != nil {
				return nil, err
			}
			tier.MaxSpend = &max
		}
		if len(benefitsRaw) > 0 {
			if err := json.Unmarshal(benefitsRaw, &tier.Benefits); err != nil {
				return nil, err
			}
		}
		p.Tiers = append(p.Tiers, tier)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &p, nil
}

func (s *Store) EnsureLoyaltyProgram(ctx context.Context, program domain.LoyaltyProgram) (*domain.LoyaltyProgram, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := s.loadProgram(ctx, tx)
	if err == nil {
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if program.ID == "" {
		program.ID = xid.New("prg")
	}
	bonusRaw, err := json.Marshal(program.BonusCategories)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO loyalty_programs (id, name, description, points_per_euro, conversion_rate,
			conversion_value, bonus_categories, points_expiry_days, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
	`, program.ID, program.Name, program.Description, program.PointsPerEuro.String(),
		program.ConversionRate, program.ConversionValue.String(), bonusRaw, program.PointsExpiryDays)
	if err != nil {
		return nil, err
	}

	for i := range program.Tiers {
		tier := &program.Tiers[i]
		if tier.ID == "" {
			tier.ID = xid.New("tier")
		}
		if err := insertTier(ctx, tx, program.ID, *tier); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := program
	return &created, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertTier(ctx context.Context, e execer, programID string, tier domain.LoyaltyTier) error {
	var maxSpend any
	if tier.MaxSpend != nil {
		maxSpend = tier.MaxSpend.String()
	}
	benefitsRaw, err := json.Marshal(tier.Benefits)
	if err != nil {
		return err
	}
	_, err = e.ExecContext(ctx, `
		INSERT INTO loyalty_tiers (id, program_id, name, min_spend, max_spend, benefits, sort_order)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, tier.ID, programID, tier.Name, tier.MinSpend.String(), maxSpend, benefitsRaw, tier.SortOrder)
	return err
}

func (s *Store) UpdateProgramRules(ctx context.Context, programID string, update domain.ProgramRulesUpdate) (*domain.LoyaltyProgram, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	current, err := s.loadProgram(ctx, tx)
	if err != nil {
		return nil, err
	}
	if current.ID != programID {
		return nil, store.ErrNotFound
	}

	if update.PointsPerEuro != nil {
		if update.PointsPerEuro.IsNegative() {
			return nil, store.ErrInvalidInput
		}
		current.PointsPerEuro = *update.PointsPerEuro
	}
	if update.ConversionRate != nil {
		if *update.ConversionRate < 1 {
			return nil, store.ErrInvalidInput
		}
		current.ConversionRate = *update.ConversionRate
	}
	if update.ConversionValue != nil {
		if update.ConversionValue.IsNegative() {
			return nil, store.ErrInvalidInput
		}
		current.ConversionValue = *update.ConversionValue
	}
	if update.BonusCategories != nil {
		normalized := make(map[string]decimal.Decimal, len(update.BonusCategories))
		for label, bonus := range update.BonusCategories {
			normalized[domain.NewCategory(label).Key] = bonus
		}
		current.BonusCategories = normalized
	}
	if update.PointsExpiryDays != nil {
		if *update.PointsExpiryDays < 0 {
			return nil, store.ErrInvalidInput
		}
		current.PointsExpiryDays = *update.PointsExpiryDays
	}

	bonusRaw, err := json.Marshal(current.BonusCategories)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE loyalty_programs
		SET points_per_euro = $2, conversion_rate = $3, conversion_value = $4,
		    bonus_categories = $5, points_expiry_days = $6
		WHERE id = $1
	`, current.ID, current.PointsPerEuro.String(), current.ConversionRate,
		current.ConversionValue.String(), bonusRaw, current.PointsExpiryDays)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return current, nil
}

func (s *Store) ReplaceTiers(ctx context.Context, programID string, tiers []domain.LoyaltyTier) (*domain.LoyaltyProgram, error) {
	if len(tiers) == 0 {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	current, err := s.loadProgram(ctx, tx)
	if err != nil {
		return nil, err
	}
	if current.ID != programID {
		return nil, store.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM loyalty_tiers WHERE program_id = $1`, programID); err != nil {
		return nil, err
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
		if err := insertTier(ctx, tx, programID, replacement[i]); err != nil {
			return nil, err
		}
	}
	current.Tiers = replacement

	// Reassign every account against the new brackets.
	rows, err := tx.QueryContext(ctx, `SELECT id, total_spend FROM loyalty_accounts FOR UPDATE`)
	if err != nil {
		return nil, err
	}
	type accountRow struct {
		id    string
		spend decimal.Decimal
	}
	accounts := make([]accountRow, 0, 64)
	for rows.Next() {
		var row accountRow
		var spend string
		if err := rows.Scan(&row.id, &spend); err != nil {
			rows.Close()
			return nil, err
		}
		if row.spend, err = parseDecimal(spend); err != nil {
			rows.Close()
			return nil, err
		}
		accounts = append(accounts, row)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, acc := range accounts {
		var tierID any
		if tier, ok := analytics.ResolveTier(replacement, acc.spend); ok {
			tierID = tier.ID
		}
		if _, err := tx.ExecContext(ctx, `UPDATE loyalty_accounts SET tier_id = $2 WHERE id = $1`, acc.id, tierID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return current, nil
}

func (s *Store) ListLoyaltyAccounts(ctx context.Context, programID string) ([]domain.LoyaltyAccount, error) {
	program, err := s.loadProgram(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if program.ID != programID {
		return nil, store.ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, points, total_spend, last_activity, tier_id
		FROM loyalty_accounts
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]domain.LoyaltyAccount, 0, 128)
	for rows.Next() {
		var acc domain.LoyaltyAccount
		var spend string
		var lastActivity sql.NullTime
		var tierID sql.NullString
		if err := rows.Scan(&acc.ID, &acc.CustomerID, &acc.Points, &spend, &lastActivity, &tierID); err != nil {
			return nil, err
		}
		if acc.TotalSpend, err = parseDecimal(spend); err != nil {
			return nil, err
		}
		if lastActivity.Valid {
			t := lastActivity.Time
			acc.LastActivity = &t
		}
		acc.TierID = tierID.String
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return accounts, nil
}

func (s *Store) UpsertLoyaltyAccount(ctx context.Context, account domain.LoyaltyAccount) (*domain.LoyaltyAccount, error) {
	if account.CustomerID == "" {
		return nil, store.ErrInvalidInput
	}
	if account.ID == "" {
		account.ID = xid.New("acc")
	}

	if program, err := s.loadProgram(ctx, s.db); err == nil {
		if tier, ok := analytics.ResolveTier(program.Tiers, account.TotalSpend); ok {
			account.TierID = tier.ID
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	var tierID any
	if account.TierID != "" {
		tierID = account.TierID
	}
	var lastActivity any
	if account.LastActivity != nil {
		lastActivity = *account.LastActivity
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO loyalty_accounts (id, customer_id, points, total_spend, last_activity, tier_id)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (customer_id) DO UPDATE
		SET points = EXCLUDED.points, total_spend = EXCLUDED.total_spend,
		    last_activity = EXCLUDED.last_activity, tier_id = EXCLUDED.tier_id
		RETURNING id
	`, account.ID, account.CustomerID, account.Points, account.TotalSpend.String(),
		lastActivity, tierID).Scan(&account.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	return &account, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func parseDecimal(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}
