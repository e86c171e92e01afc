package store

import (
	"context"
	"errors"
	"time"

	"swiim/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	// ErrTotalMismatch flags a receipt whose declared total diverges from its
	// line items by more than a cent.
	ErrTotalMismatch = errors.New("receipt total does not match line items")
)

type Repository interface {
	ListStores(ctx context.Context) ([]domain.Store, error)
	GetStoreByID(ctx context.Context, id string) (*domain.Store, error)
	CreateStore(ctx context.Context, s domain.Store) (*domain.Store, error)

	ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error)
	GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, c domain.Customer) (*domain.Customer, error)

	// FetchReceipts returns fully materialized receipts (line items and
	// customer link included) created in [windowStart, windowEnd).
	FetchReceipts(ctx context.Context, windowStart, windowEnd time.Time, filter domain.ReceiptFilter) ([]domain.Receipt, error)
	GetReceiptByID(ctx context.Context, id string) (*domain.Receipt, error)
	CreateReceipt(ctx context.Context, r domain.Receipt) (*domain.Receipt, error)
	UpdateReceiptStatus(ctx context.Context, id string, status string) (*domain.Receipt, error)

	// GetLoyaltyProgram returns ErrNotFound when no program exists; it never
	// creates one as a side effect.
	GetLoyaltyProgram(ctx context.Context) (*domain.LoyaltyProgram, error)
	// EnsureLoyaltyProgram idempotently creates the given program unless one
	// already exists, in which case the existing program is returned.
	EnsureLoyaltyProgram(ctx context.Context, program domain.LoyaltyProgram) (*domain.LoyaltyProgram, error)
	UpdateProgramRules(ctx context.Context, programID string, update domain.ProgramRulesUpdate) (*domain.LoyaltyProgram, error)
	ReplaceTiers(ctx context.Context, programID string, tiers []domain.LoyaltyTier) (*domain.LoyaltyProgram, error)
	ListLoyaltyAccounts(ctx context.Context, programID string) ([]domain.LoyaltyAccount, error)
	UpsertLoyaltyAccount(ctx context.Context, account domain.LoyaltyAccount) (*domain.LoyaltyAccount, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
