package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasbon/backend/internal/domain"
	"kasbon/backend/internal/store"
)

var anaMain = domain.AccountKey{BranchID: "main-branch", CustomerID: "cust-ana"}

func creditSale(id string, total int64, at time.Time) domain.Sale {
	return domain.Sale{
		ID:               id,
		BranchID:         anaMain.BranchID,
		CustomerID:       anaMain.CustomerID,
		SellerID:         "seller-dewi",
		PaymentMethod:    domain.PaymentMethodCredit,
		SubtotalCents:    total,
		TotalCents:       total,
		SettlementState:  domain.SettlementPending,
		OutstandingCents: total,
		CreatedAt:        at,
		Lines: []domain.SaleLine{
			{LineNo: 1, ProductID: "PRD-TV-01", ProductType: "electronics", Qty: 1, UnitPriceCents: total},
		},
	}
}

func postSale(ctx context.Context, tx store.AccountTx, sale domain.Sale) error {
	if err := tx.CreateSale(ctx, sale); err != nil {
		return err
	}
	_, err := tx.AppendLedgerEntry(ctx, domain.LedgerEntry{
		Kind:       domain.EntrySaleDebit,
		DebitCents: sale.TotalCents,
		SourceType: domain.SourceTypeSale,
		SourceID:   sale.ID,
	})
	return err
}

func TestWithAccountCommitsOnSuccess(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	now := time.Now().UTC()

	err := s.WithAccount(ctx, anaMain, func(tx store.AccountTx) error {
		return postSale(ctx, tx, creditSale("sale-1", 1000, now))
	})
	require.NoError(t, err)

	balance, err := s.AccountBalance(ctx, anaMain)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)

	sales, err := s.ListSales(ctx, domain.SaleFilter{CustomerID: "cust-ana"})
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, "sale-1", sales[0].ID)
}

func TestWithAccountRollsBackOnError(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithAccount(ctx, anaMain, func(tx store.AccountTx) error {
		if err := postSale(ctx, tx, creditSale("sale-1", 1000, time.Now().UTC())); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	balance, err := s.AccountBalance(ctx, anaMain)
	require.NoError(t, err)
	assert.Zero(t, balance)

	entries, err := s.ListLedgerEntries(ctx, anaMain, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWithAccountSerializesWriters(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	base := time.Now().UTC()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.WithAccount(ctx, anaMain, func(tx store.AccountTx) error {
				sale := creditSale("sale-"+time.Duration(i).String(), 10, base.Add(time.Duration(i)))
				return postSale(ctx, tx, sale)
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	entries, err := s.ListLedgerEntries(ctx, anaMain, 0)
	require.NoError(t, err)
	require.Len(t, entries, 50)
	for i, entry := range entries {
		assert.Equal(t, int64(10*(i+1)), entry.BalanceCents)
	}
}

func TestAccountTxRejectsBrokenCommissionRecords(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	err := s.WithAccount(ctx, anaMain, func(tx store.AccountTx) error {
		return tx.CreateCommissionRecords(ctx, []domain.CommissionRecord{{
			ID:             "com-1",
			BranchID:       anaMain.BranchID,
			CustomerID:     anaMain.CustomerID,
			TotalCents:     100,
			CollectedCents: 10,
			PendingCents:   10,
			State:          domain.SettlementPartial,
		}})
	})
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)
}

func TestAccountTxOpenSalesOldestFirst(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	base := time.Now().UTC()

	err := s.WithAccount(ctx, anaMain, func(tx store.AccountTx) error {
		for _, sale := range []domain.Sale{
			creditSale("sale-b", 10, base),
			creditSale("sale-c", 10, base.Add(-time.Hour)),
			creditSale("sale-a", 10, base),
		} {
			if err := postSale(ctx, tx, sale); err != nil {
				return err
			}
		}
		if err := tx.UpdateSaleSettlement(ctx, "sale-a", domain.SettlementPaid, 0); err != nil {
			return err
		}

		open, err := tx.OpenSales(ctx)
		require.NoError(t, err)
		require.Len(t, open, 2)
		assert.Equal(t, "sale-c", open[0].ID)
		assert.Equal(t, "sale-b", open[1].ID)
		return nil
	})
	require.NoError(t, err)
}

func TestSeededPolicyAndLookups(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	override, err := s.CommissionOverride(ctx, "seller-dewi", "electronics")
	require.NoError(t, err)
	require.NotNil(t, override)
	assert.Equal(t, int64(7500), override.UnitCommissionCents)

	missing, err := s.CommissionOverride(ctx, "seller-fajar", "electronics")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = s.GetCustomer(ctx, "cust-unknown")
	assert.ErrorIs(t, err, store.ErrNotFound)

	products, err := s.GetProductsByIDs(ctx, []string{"PRD-TV-01", "PRD-NOPE"})
	require.NoError(t, err)
	assert.Len(t, products, 1)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 3)
}
