package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"kasbon/backend/internal/domain"
	"kasbon/backend/internal/store"
)

func TestIsRetryable(t *testing.T) {
	cases := map[string]bool{
		"40001": true,
		"40P01": true,
		"23505": false,
	}
	for code, expected := range cases {
		err := fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: code})
		if got := isRetryable(err); got != expected {
			t.Fatalf("code %s: expected %v, got %v", code, expected, got)
		}
	}
	if isRetryable(errors.New("plain")) {
		t.Fatalf("plain error must not be retryable")
	}
}

func openTestStore(t *testing.T) (*Store, domain.AccountKey) {
	t.Helper()
	databaseURL := os.Getenv("KASBON_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set KASBON_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL, WithMaxAttempts(20))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	stamp := time.Now().UnixNano()
	key := domain.AccountKey{
		BranchID:   fmt.Sprintf("branch-it-%d", stamp),
		CustomerID: fmt.Sprintf("cust-it-%d", stamp),
	}
	sellerID := fmt.Sprintf("seller-it-%d", stamp)
	if _, err := s.db.ExecContext(ctx, `INSERT INTO branches (id, name) VALUES ($1, 'IT Branch')`, key.BranchID); err != nil {
		t.Fatalf("insert branch: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO customers (id, name) VALUES ($1, 'IT Customer')`, key.CustomerID); err != nil {
		t.Fatalf("insert customer: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO sellers (id, name) VALUES ($1, 'IT Seller')`, sellerID); err != nil {
		t.Fatalf("insert seller: %v", err)
	}

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM commission_records WHERE branch_id = $1`, key.BranchID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_lines WHERE sale_id IN (SELECT id FROM sales WHERE branch_id = $1)`, key.BranchID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE branch_id = $1`, key.BranchID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM ledger_entries WHERE branch_id = $1`, key.BranchID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM customer_accounts WHERE branch_id = $1`, key.BranchID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sellers WHERE id = $1`, sellerID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, key.CustomerID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM branches WHERE id = $1`, key.BranchID)
	})
	return s, key
}

func integrationSale(key domain.AccountKey, id string, total int64) domain.Sale {
	return domain.Sale{
		ID:               id,
		BranchID:         key.BranchID,
		CustomerID:       key.CustomerID,
		SellerID:         "seller-it-" + key.BranchID[len("branch-it-"):],
		PaymentMethod:    domain.PaymentMethodCredit,
		SubtotalCents:    total,
		TotalCents:       total,
		SettlementState:  domain.SettlementPending,
		OutstandingCents: total,
		CreatedAt:        time.Now().UTC(),
		Lines:            []domain.SaleLine{{LineNo: 1, ProductID: "PRD-IT", ProductType: "electronics", Qty: 1, UnitPriceCents: total}},
	}
}

func TestWithAccountCommitsAndRollsBack(t *testing.T) {
	s, key := openTestStore(t)
	ctx := context.Background()

	err := s.WithAccount(ctx, key, func(tx store.AccountTx) error {
		sale := integrationSale(key, key.BranchID+"-sale-1", 1000)
		if err := tx.CreateSale(ctx, sale); err != nil {
			return err
		}
		_, err := tx.AppendLedgerEntry(ctx, domain.LedgerEntry{Kind: domain.EntrySaleDebit, DebitCents: 1000, SourceType: domain.SourceTypeSale, SourceID: sale.ID})
		return err
	})
	if err != nil {
		t.Fatalf("commit sale: %v", err)
	}

	boom := errors.New("boom")
	err = s.WithAccount(ctx, key, func(tx store.AccountTx) error {
		if _, err := tx.AppendLedgerEntry(ctx, domain.LedgerEntry{Kind: domain.EntryPaymentCredit, CreditCents: 400, SourceType: domain.SourceTypePayment, SourceID: "pay-rolled-back"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	balance, err := s.AccountBalance(ctx, key)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 1000 {
		t.Fatalf("expected balance 1000 after rollback, got %d", balance)
	}

	sales, err := s.ListSales(ctx, domain.SaleFilter{BranchID: key.BranchID, States: []domain.SettlementState{domain.SettlementPending}})
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(sales) != 1 || len(sales[0].Lines) != 1 {
		t.Fatalf("expected one sale with one line, got %+v", sales)
	}
}

func TestWithAccountSerializesConcurrentWriters(t *testing.T) {
	s, key := openTestStore(t)
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.WithAccount(ctx, key, func(tx store.AccountTx) error {
				_, err := tx.AppendLedgerEntry(ctx, domain.LedgerEntry{
					Kind:       domain.EntryAdjustment,
					DebitCents: 10,
					SourceType: domain.SourceTypeAdjustment,
					SourceID:   fmt.Sprintf("adj-%d", i),
				})
				return err
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("writer failed: %v", err)
		}
	}

	entries, err := s.ListLedgerEntries(ctx, key, 0)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != writers {
		t.Fatalf("expected %d entries, got %d", writers, len(entries))
	}
	for i, entry := range entries {
		if entry.BalanceCents != int64(10*(i+1)) {
			t.Fatalf("entry %d: expected running balance %d, got %d", i, 10*(i+1), entry.BalanceCents)
		}
	}
}
