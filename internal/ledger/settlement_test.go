package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasbon/backend/internal/domain"
)

func pendingRecord(id string, total int64, collected int64) domain.CommissionRecord {
	state := domain.SettlementPending
	if collected > 0 {
		state = domain.SettlementPartial
	}
	return domain.CommissionRecord{
		ID:             id,
		SaleID:         "sale-" + id,
		SellerID:       "seller-a",
		TotalCents:     total,
		CollectedCents: collected,
		PendingCents:   total - collected,
		State:          state,
		CreatedAt:      day0,
	}
}

func TestSettlementBudget(t *testing.T) {
	tests := []struct {
		name     string
		pool     int64
		paid     int64
		debt     int64
		expected int64
	}{
		{name: "proportional", pool: 280, paid: 250, debt: 1000, expected: 70},
		{name: "truncates toward zero", pool: 100, paid: 1, debt: 3, expected: 33},
		{name: "full payoff releases everything", pool: 101, paid: 3, debt: 3, expected: 101},
		{name: "overpayment is capped", pool: 90, paid: 500, debt: 100, expected: 90},
		{name: "no debt", pool: 90, paid: 50, debt: 0, expected: 0},
		{name: "no pool", pool: 0, paid: 50, debt: 100, expected: 0},
		{name: "large values stay exact", pool: 9_000_000_000, paid: 7_000_000_000, debt: 21_000_000_000, expected: 3_000_000_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SettlementBudget(tt.pool, tt.paid, tt.debt))
		})
	}
}

func TestSettleCommissionsLargestFirstPartialStop(t *testing.T) {
	records := []domain.CommissionRecord{pendingRecord("c-small", 80, 0), pendingRecord("c-big", 200, 0)}
	budget := SettlementBudget(PendingPool(records), 250, 1000)
	require.Equal(t, int64(70), budget)

	at := day0.Add(time.Hour)
	res := SettleCommissions(records, budget, at)

	require.Len(t, res.Updated, 1)
	big := res.Updated[0]
	assert.Equal(t, "c-big", big.ID)
	assert.Equal(t, int64(70), big.CollectedCents)
	assert.Equal(t, int64(130), big.PendingCents)
	assert.Equal(t, domain.SettlementPartial, big.State)
	assert.Equal(t, at, big.UpdatedAt)
	assert.Equal(t, int64(70), res.ReleasedCents)
	assert.Zero(t, res.UnallocatedCents)

	// input untouched
	assert.Equal(t, int64(0), records[1].CollectedCents)
}

func TestSettleCommissionsSatisfiesInFullThenPartial(t *testing.T) {
	records := []domain.CommissionRecord{
		pendingRecord("c-1", 50, 0),
		pendingRecord("c-2", 120, 100),
		pendingRecord("c-3", 30, 0),
	}

	res := SettleCommissions(records, 65, day0)

	require.Len(t, res.Allocations, 2)
	assert.Equal(t, domain.CommissionAllocation{RecordID: "c-2", SaleID: "sale-c-2", ReleasedCents: 20, CollectedCents: 120, PendingCents: 0, State: domain.SettlementPaid}, res.Allocations[0])
	assert.Equal(t, domain.CommissionAllocation{RecordID: "c-1", SaleID: "sale-c-1", ReleasedCents: 45, CollectedCents: 45, PendingCents: 5, State: domain.SettlementPartial}, res.Allocations[1])
	for _, rec := range res.Updated {
		assert.Equal(t, rec.TotalCents, rec.CollectedCents+rec.PendingCents)
	}
}

func TestSettleCommissionsExactBudgetStopsCleanly(t *testing.T) {
	records := []domain.CommissionRecord{pendingRecord("c-1", 40, 0), pendingRecord("c-2", 10, 0)}

	res := SettleCommissions(records, 40, day0)
	require.Len(t, res.Updated, 1)
	assert.Equal(t, domain.SettlementPaid, res.Updated[0].State)
	assert.Zero(t, res.UnallocatedCents)
}

func TestSettleCommissionsTieBreaksOnRecordID(t *testing.T) {
	records := []domain.CommissionRecord{pendingRecord("c-b", 50, 0), pendingRecord("c-a", 50, 0)}

	res := SettleCommissions(records, 60, day0)
	require.Len(t, res.Allocations, 2)
	assert.Equal(t, "c-a", res.Allocations[0].RecordID)
	assert.Equal(t, "c-b", res.Allocations[1].RecordID)
	assert.Equal(t, int64(10), res.Allocations[1].ReleasedCents)
}

func TestSettleCommissionsBudgetAboveLiabilityIsReported(t *testing.T) {
	records := []domain.CommissionRecord{pendingRecord("c-1", 40, 0)}

	res := SettleCommissions(records, 55, day0)
	assert.Equal(t, int64(40), res.ReleasedCents)
	assert.Equal(t, int64(15), res.UnallocatedCents)
}

func TestSettleCommissionsZeroBudgetTouchesNothing(t *testing.T) {
	res := SettleCommissions([]domain.CommissionRecord{pendingRecord("c-1", 40, 0)}, 0, day0)
	assert.Empty(t, res.Updated)
	assert.Empty(t, res.Allocations)
}

func TestEarliestAccruedSeller(t *testing.T) {
	older := pendingRecord("c-9", 10, 0)
	older.SellerID = "seller-old"
	older.CreatedAt = day0.Add(-time.Hour)

	sameTimeLowerID := pendingRecord("c-1", 10, 0)
	sameTimeLowerID.SellerID = "seller-low-id"
	sameTimeLowerID.CreatedAt = older.CreatedAt

	paid := pendingRecord("c-0", 10, 10)
	paid.State = domain.SettlementPaid
	paid.SellerID = "seller-paid"
	paid.CreatedAt = day0.Add(-48 * time.Hour)

	seller, ok := EarliestAccruedSeller([]domain.CommissionRecord{pendingRecord("c-5", 10, 0), older, paid, sameTimeLowerID})
	require.True(t, ok)
	assert.Equal(t, "seller-low-id", seller)

	_, ok = EarliestAccruedSeller([]domain.CommissionRecord{paid})
	assert.False(t, ok)
}

func TestOpenSalePoolIgnoresRecordsOnPaidSales(t *testing.T) {
	paidOff := openSale("sale-old", 3, 0)
	paidOff.SettlementState = domain.SettlementPaid
	other := openSale("sale-x", 1, 500)
	other.SellerID = "seller-b"
	sales := []domain.Sale{paidOff, openSale("sale-new", 1, 600), other}

	foreign := pendingRecord("x", 90, 0)
	foreign.SellerID = "seller-b"
	records := []domain.CommissionRecord{
		pendingRecord("old", 80, 0),
		pendingRecord("new", 200, 50),
		foreign,
	}

	assert.Equal(t, int64(150), OpenSalePool(sales, records, "seller-a"))
	assert.Equal(t, int64(90), OpenSalePool(sales, records, "seller-b"))
	assert.Zero(t, OpenSalePool(nil, records, "seller-a"))
}
