package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"kasbon/backend/internal/domain"
	"kasbon/backend/internal/ledger"
)

const (
	defaultStatementEntries = 50
	maxStatementEntries     = 500
)

// Balance reports where an account stands. Results are cached until the next
// committed write on the account; a write racing the cache fill drops the
// freshly cached value.
func (s *Service) Balance(ctx context.Context, branchID string, customerID string) (domain.AccountBalance, error) {
	key := s.accountKey(branchID, customerID)
	if err := s.requireAccount(ctx, key); err != nil {
		return domain.AccountBalance{}, err
	}

	cached, ok, err := s.balances.Get(ctx, key)
	if err != nil {
		s.logger.Warn("balance cache read failed", zap.String("branch_id", key.BranchID), zap.String("customer_id", key.CustomerID), zap.Error(err))
	}
	if ok && cached != nil {
		return *cached, nil
	}

	version, err := s.latestEntryID(ctx, key)
	if err != nil {
		return domain.AccountBalance{}, err
	}
	balance, _, err := s.loadBalance(ctx, key)
	if err != nil {
		return domain.AccountBalance{}, err
	}
	if err := s.balances.Set(ctx, key, &balance, s.balanceTTL); err != nil {
		s.logger.Warn("balance cache write failed", zap.String("branch_id", key.BranchID), zap.String("customer_id", key.CustomerID), zap.Error(err))
		return balance, nil
	}

	// A write that committed while we were loading may have invalidated the
	// cache before our Set landed.
	current, err := s.latestEntryID(ctx, key)
	if err != nil || current != version {
		if err := s.balances.Delete(ctx, key); err != nil {
			s.logger.Warn("balance cache invalidation failed", zap.String("branch_id", key.BranchID), zap.String("customer_id", key.CustomerID), zap.Error(err))
		}
	}
	return balance, nil
}

// latestEntryID versions an account by its newest ledger entry. Every write
// that moves the balance or the open sales appends one.
func (s *Service) latestEntryID(ctx context.Context, key domain.AccountKey) (string, error) {
	entries, err := s.repo.ListLedgerEntries(ctx, key, 1)
	if err != nil || len(entries) == 0 {
		return "", err
	}
	return entries[len(entries)-1].ID, nil
}

func (s *Service) loadBalance(ctx context.Context, key domain.AccountKey) (domain.AccountBalance, []domain.Sale, error) {
	current, err := s.repo.AccountBalance(ctx, key)
	if err != nil {
		return domain.AccountBalance{}, nil, err
	}
	open, err := s.repo.ListSales(ctx, domain.SaleFilter{
		BranchID:   key.BranchID,
		CustomerID: key.CustomerID,
		States:     []domain.SettlementState{domain.SettlementPending, domain.SettlementPartial},
	})
	if err != nil {
		return domain.AccountBalance{}, nil, err
	}

	return domain.AccountBalance{
		BranchID:         key.BranchID,
		CustomerID:       key.CustomerID,
		BalanceCents:     current,
		OutstandingCents: ledger.Outstanding(open),
		StoreCreditCents: ledger.StoreCredit(current),
		OpenSales:        len(open),
		AsOf:             s.now(),
	}, open, nil
}

// AccountStatement returns the account's balance, its open sales oldest first
// and the latest ledger entries in posting order.
func (s *Service) AccountStatement(ctx context.Context, branchID string, customerID string, limit int) (domain.AccountStatement, error) {
	key := s.accountKey(branchID, customerID)
	if err := s.requireAccount(ctx, key); err != nil {
		return domain.AccountStatement{}, err
	}
	if limit < 1 {
		limit = defaultStatementEntries
	}
	if limit > maxStatementEntries {
		limit = maxStatementEntries
	}

	balance, open, err := s.loadBalance(ctx, key)
	if err != nil {
		return domain.AccountStatement{}, err
	}
	entries, err := s.repo.ListLedgerEntries(ctx, key, limit)
	if err != nil {
		return domain.AccountStatement{}, err
	}
	if open == nil {
		open = []domain.Sale{}
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}
	return domain.AccountStatement{Balance: balance, OpenSales: open, Entries: entries}, nil
}

// VerifyAccount replays the whole ledger of an account and cross-checks it
// against the sales and commission records.
func (s *Service) VerifyAccount(ctx context.Context, branchID string, customerID string) (domain.AccountVerification, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.AccountVerification{}, err
	}
	key := s.accountKey(branchID, customerID)
	if err := s.requireAccount(ctx, key); err != nil {
		return domain.AccountVerification{}, err
	}

	entries, err := s.repo.ListLedgerEntries(ctx, key, 0)
	if err != nil {
		return domain.AccountVerification{}, err
	}
	sales, err := s.repo.ListSales(ctx, domain.SaleFilter{BranchID: key.BranchID, CustomerID: key.CustomerID})
	if err != nil {
		return domain.AccountVerification{}, err
	}
	records, err := s.repo.ListCommissionRecords(ctx, domain.CommissionFilter{BranchID: key.BranchID, CustomerID: key.CustomerID})
	if err != nil {
		return domain.AccountVerification{}, err
	}

	check := ledger.CheckAccount(entries, sales, records)
	result := domain.AccountVerification{
		BranchID:         key.BranchID,
		CustomerID:       key.CustomerID,
		Entries:          len(entries),
		BalanceCents:     check.BalanceCents,
		OutstandingCents: check.OutstandingCents,
		Consistent:       len(check.Problems) == 0,
		Problems:         check.Problems,
	}
	if !result.Consistent {
		s.logger.Error("account verification failed",
			zap.String("branch_id", key.BranchID),
			zap.String("customer_id", key.CustomerID),
			zap.Strings("problems", check.Problems))
	}
	return result, nil
}

func (s *Service) ListCommissions(ctx context.Context, filter domain.CommissionFilter) ([]domain.CommissionRecord, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	filter.BranchID = strings.TrimSpace(filter.BranchID)
	filter.CustomerID = strings.TrimSpace(filter.CustomerID)
	filter.SellerID = strings.TrimSpace(filter.SellerID)
	if err := s.validateStruct(filter); err != nil {
		return nil, err
	}
	if filter.Limit == 0 {
		filter.Limit = 100
	}
	return s.repo.ListCommissionRecords(ctx, filter)
}
