package store

import (
	"context"
	"errors"
	"time"

	"kasbon/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrConflict           = errors.New("concurrent update conflict")
)

// AccountTx is the write side of one running account. It is only reachable
// through Repository.WithAccount, which holds the account's exclusive lock for
// the lifetime of the closure and commits every write or none of them.
type AccountTx interface {
	Key() domain.AccountKey

	CommissionOverride(ctx context.Context, sellerID string, productType string) (*domain.CommissionOverride, error)
	CommissionDefault(ctx context.Context, productType string) (*domain.CommissionDefault, error)

	Balance(ctx context.Context) (int64, error)
	AppendLedgerEntry(ctx context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error)

	CreateSale(ctx context.Context, sale domain.Sale) error
	// OpenSales returns the account's non-paid sales, oldest first.
	OpenSales(ctx context.Context) ([]domain.Sale, error)
	UpdateSaleSettlement(ctx context.Context, saleID string, state domain.SettlementState, outstandingCents int64) error

	CreatePayment(ctx context.Context, payment domain.Payment) error

	CreateCommissionRecords(ctx context.Context, records []domain.CommissionRecord) error
	// PendingCommissions returns the account's non-paid commission records,
	// restricted to sellerID unless it is empty.
	PendingCommissions(ctx context.Context, sellerID string) ([]domain.CommissionRecord, error)
	UpdateCommissionRecord(ctx context.Context, record domain.CommissionRecord) error
}

type Repository interface {
	GetBranch(ctx context.Context, id string) (*domain.Branch, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	GetSeller(ctx context.Context, id string) (*domain.Seller, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)

	CommissionOverride(ctx context.Context, sellerID string, productType string) (*domain.CommissionOverride, error)
	CommissionDefault(ctx context.Context, productType string) (*domain.CommissionDefault, error)
	UpsertCommissionOverride(ctx context.Context, override domain.CommissionOverride) (*domain.CommissionOverride, error)
	UpsertCommissionDefault(ctx context.Context, def domain.CommissionDefault) (*domain.CommissionDefault, error)
	ListCommissionOverrides(ctx context.Context, sellerID string) ([]domain.CommissionOverride, error)
	ListCommissionDefaults(ctx context.Context) ([]domain.CommissionDefault, error)

	WithAccount(ctx context.Context, key domain.AccountKey, fn func(tx AccountTx) error) error

	AccountBalance(ctx context.Context, key domain.AccountKey) (int64, error)
	ListLedgerEntries(ctx context.Context, key domain.AccountKey, limit int) ([]domain.LedgerEntry, error)
	ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error)
	ListCommissionRecords(ctx context.Context, filter domain.CommissionFilter) ([]domain.CommissionRecord, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, branchID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
