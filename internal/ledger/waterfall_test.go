package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasbon/backend/internal/domain"
)

var day0 = time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)

func openSale(id string, daysAgo int, outstanding int64) domain.Sale {
	return domain.Sale{
		ID:               id,
		SellerID:         "seller-a",
		PaymentMethod:    domain.PaymentMethodCredit,
		TotalCents:       outstanding,
		OutstandingCents: outstanding,
		SettlementState:  domain.SettlementPending,
		CreatedAt:        day0.AddDate(0, 0, -daysAgo),
	}
}

func TestWaterfallOldestFirstPartialStop(t *testing.T) {
	sales := []domain.Sale{
		openSale("sale-3", 1, 30),
		openSale("sale-1", 3, 100),
		openSale("sale-2", 2, 50),
	}

	res, err := Waterfall(sales, 120)
	require.NoError(t, err)

	require.Len(t, res.Allocations, 2)
	assert.Equal(t, domain.SaleAllocation{SaleID: "sale-1", AppliedCents: 100, BalanceBefore: 100, BalanceAfter: 0, State: domain.SettlementPaid}, res.Allocations[0])
	assert.Equal(t, domain.SaleAllocation{SaleID: "sale-2", AppliedCents: 20, BalanceBefore: 50, BalanceAfter: 30, State: domain.SettlementPartial}, res.Allocations[1])
	assert.Equal(t, int64(120), res.AppliedCents)
	assert.Zero(t, res.RemainingCents)

	// sale-3 untouched, original slice untouched
	assert.Equal(t, int64(30), sales[0].OutstandingCents)
	assert.Equal(t, domain.SettlementPending, sales[0].SettlementState)

	after := append([]domain.Sale{sales[0]}, res.Updated...)
	assert.Equal(t, int64(60), Outstanding(after))
}

func TestWaterfallOverpaymentLeavesRemainder(t *testing.T) {
	sales := []domain.Sale{openSale("sale-1", 2, 60), openSale("sale-2", 1, 40)}

	res, err := Waterfall(sales, 150)
	require.NoError(t, err)

	assert.Equal(t, int64(100), res.AppliedCents)
	assert.Equal(t, int64(50), res.RemainingCents)
	for _, sale := range res.Updated {
		assert.Equal(t, domain.SettlementPaid, sale.SettlementState)
		assert.Zero(t, sale.OutstandingCents)
	}
}

func TestWaterfallTieBreaksOnSaleID(t *testing.T) {
	a := openSale("sale-b", 1, 10)
	b := openSale("sale-a", 1, 10)

	res, err := Waterfall([]domain.Sale{a, b}, 15)
	require.NoError(t, err)

	require.Len(t, res.Allocations, 2)
	assert.Equal(t, "sale-a", res.Allocations[0].SaleID)
	assert.Equal(t, domain.SettlementPaid, res.Allocations[0].State)
	assert.Equal(t, "sale-b", res.Allocations[1].SaleID)
	assert.Equal(t, int64(5), res.Allocations[1].BalanceAfter)

	again, err := Waterfall([]domain.Sale{b, a}, 15)
	require.NoError(t, err)
	assert.Equal(t, res.Allocations, again.Allocations)
}

func TestWaterfallSkipsPaidSalesAndContinuesPartial(t *testing.T) {
	paid := openSale("sale-0", 5, 0)
	paid.SettlementState = domain.SettlementPaid
	partial := openSale("sale-1", 4, 100)
	partial.OutstandingCents = 25
	partial.SettlementState = domain.SettlementPartial

	res, err := Waterfall([]domain.Sale{paid, partial}, 25)
	require.NoError(t, err)
	require.Len(t, res.Allocations, 1)
	assert.Equal(t, "sale-1", res.Allocations[0].SaleID)
	assert.Equal(t, domain.SettlementPaid, res.Allocations[0].State)
}

func TestWaterfallRejectsNonPositiveAmount(t *testing.T) {
	for _, amount := range []int64{0, -5} {
		_, err := Waterfall([]domain.Sale{openSale("sale-1", 1, 10)}, amount)
		assert.ErrorIs(t, err, ErrNonPositiveAmount)
	}
}

func TestWaterfallWithNoDebtKeepsEverything(t *testing.T) {
	res, err := Waterfall(nil, 80)
	require.NoError(t, err)
	assert.Empty(t, res.Allocations)
	assert.Equal(t, int64(80), res.RemainingCents)
}

func TestSellerDebtOnlyCountsSellerOpenSales(t *testing.T) {
	other := openSale("sale-x", 1, 500)
	other.SellerID = "seller-b"
	paid := openSale("sale-y", 1, 0)
	paid.SettlementState = domain.SettlementPaid

	sales := []domain.Sale{openSale("sale-1", 2, 70), other, paid, openSale("sale-2", 1, 30)}
	assert.Equal(t, int64(100), SellerDebt(sales, "seller-a"))
	assert.Equal(t, int64(500), SellerDebt(sales, "seller-b"))
	assert.Equal(t, int64(600), Outstanding(sales))
}
