package ledger

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasbon/backend/internal/domain"
)

type policyStub struct {
	overrides map[string]domain.CommissionOverride
	defaults  map[string]domain.CommissionDefault
	err       error
}

func (p policyStub) CommissionOverride(_ context.Context, sellerID string, productType string) (*domain.CommissionOverride, error) {
	if p.err != nil {
		return nil, p.err
	}
	o, ok := p.overrides[sellerID+"|"+productType]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (p policyStub) CommissionDefault(_ context.Context, productType string) (*domain.CommissionDefault, error) {
	if p.err != nil {
		return nil, p.err
	}
	d, ok := p.defaults[productType]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func TestResolverLookupOrder(t *testing.T) {
	source := policyStub{
		overrides: map[string]domain.CommissionOverride{
			"s1|tv":     {SellerID: "s1", ProductType: "tv", UnitCommissionCents: 900, Active: true},
			"s1|fridge": {SellerID: "s1", ProductType: "fridge", UnitCommissionCents: 1500, Active: false},
			"s1|sofa":   {SellerID: "s1", ProductType: "sofa", UnitCommissionCents: 0, Active: true},
		},
		defaults: map[string]domain.CommissionDefault{
			"tv":     {ProductType: "tv", UnitCommissionCents: 500, Active: true},
			"fridge": {ProductType: "fridge", UnitCommissionCents: 700, Active: true},
			"sofa":   {ProductType: "sofa", UnitCommissionCents: 300, Active: true},
			"cable":  {ProductType: "cable", UnitCommissionCents: 50, Active: false},
		},
	}
	resolver := NewResolver(source)

	tests := []struct {
		name        string
		seller      string
		productType string
		expected    int64
	}{
		{name: "active override wins", seller: "s1", productType: "tv", expected: 900},
		{name: "other seller falls back to default", seller: "s2", productType: "tv", expected: 500},
		{name: "inactive override falls back", seller: "s1", productType: "fridge", expected: 700},
		{name: "active zero override means no commission", seller: "s1", productType: "sofa", expected: 0},
		{name: "inactive default resolves to zero", seller: "s1", productType: "cable", expected: 0},
		{name: "unknown type resolves to zero", seller: "s1", productType: "phone", expected: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolver.UnitCommission(context.Background(), tt.seller, tt.productType)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestResolverPropagatesSourceErrors(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewResolver(policyStub{err: boom}).UnitCommission(context.Background(), "s1", "tv")
	assert.ErrorIs(t, err, boom)
}

func entry(kind domain.LedgerEntryKind, debit int64, credit int64) domain.LedgerEntry {
	return domain.LedgerEntry{
		ID:          "le",
		BranchID:    "b1",
		CustomerID:  "c1",
		Kind:        kind,
		DebitCents:  debit,
		CreditCents: credit,
		SourceType:  domain.SourceTypeSale,
		SourceID:    "src",
	}
}

func TestPostRunningBalance(t *testing.T) {
	first, err := Post(0, entry(domain.EntrySaleDebit, 100, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(100), first.BalanceCents)

	second, err := Post(first.BalanceCents, entry(domain.EntryPaymentCredit, 0, 150))
	require.NoError(t, err)
	assert.Equal(t, int64(-50), second.BalanceCents)
	assert.Equal(t, int64(50), StoreCredit(second.BalanceCents))

	_, err = Replay([]domain.LedgerEntry{first, second})
	require.NoError(t, err)
}

func TestPostRejectsMalformedEntries(t *testing.T) {
	tests := []struct {
		name  string
		entry domain.LedgerEntry
	}{
		{name: "zero", entry: entry(domain.EntrySaleDebit, 0, 0)},
		{name: "negative", entry: entry(domain.EntryAdjustment, -1, 0)},
		{name: "two sided", entry: entry(domain.EntryAdjustment, 5, 5)},
		{name: "sale credit", entry: entry(domain.EntrySaleDebit, 0, 5)},
		{name: "payment debit", entry: entry(domain.EntryPaymentCredit, 5, 0)},
		{name: "unknown kind", entry: entry("refund", 5, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Post(0, tt.entry)
			assert.ErrorIs(t, err, ErrInvalidEntry)
		})
	}
}

func TestReplayFindsBrokenSnapshot(t *testing.T) {
	first, _ := Post(0, entry(domain.EntrySaleDebit, 100, 0))
	broken := entry(domain.EntryPaymentCredit, 0, 40)
	broken.ID = "le-broken"
	broken.BalanceCents = 70

	_, err := Replay([]domain.LedgerEntry{first, broken})
	var replayErr *ReplayError
	require.ErrorAs(t, err, &replayErr)
	assert.Equal(t, 1, replayErr.Index)
	assert.Equal(t, int64(60), replayErr.Expected)
}

func TestOpeningSettlement(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		total       int64
		credit      int64
		state       domain.SettlementState
		outstanding int64
		used        int64
	}{
		{name: "cash", method: domain.PaymentMethodCash, total: 500, credit: 100, state: domain.SettlementPaid},
		{name: "transfer", method: domain.PaymentMethodTransfer, total: 500, state: domain.SettlementPaid},
		{name: "credit without store credit", method: domain.PaymentMethodCredit, total: 500, state: domain.SettlementPending, outstanding: 500},
		{name: "credit partly covered", method: domain.PaymentMethodCredit, total: 500, credit: 120, state: domain.SettlementPartial, outstanding: 380, used: 120},
		{name: "credit fully covered", method: domain.PaymentMethodCredit, total: 500, credit: 800, state: domain.SettlementPaid, used: 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, outstanding, used := OpeningSettlement(tt.method, tt.total, tt.credit)
			assert.Equal(t, tt.state, state)
			assert.Equal(t, tt.outstanding, outstanding)
			assert.Equal(t, tt.used, used)
		})
	}
}

func TestAccrueSkipsZeroCommissionLines(t *testing.T) {
	sale := domain.Sale{
		ID:            "sale-1",
		BranchID:      "b1",
		CustomerID:    "c1",
		SellerID:      "s1",
		PaymentMethod: domain.PaymentMethodCredit,
		Lines: []domain.SaleLine{
			{LineNo: 1, ProductID: "p-tv", ProductType: "tv", Qty: 2},
			{LineNo: 2, ProductID: "p-cable", ProductType: "cable", Qty: 5},
		},
	}

	records, err := Accrue(sale, map[int]int64{1: 750}, day0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(1500), records[0].TotalCents)
	assert.Equal(t, int64(1500), records[0].PendingCents)
	assert.Zero(t, records[0].CollectedCents)
	assert.Equal(t, domain.SettlementPending, records[0].State)

	sale.PaymentMethod = domain.PaymentMethodCash
	records, err = Accrue(sale, map[int]int64{1: 750, 2: 10}, day0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.Equal(t, domain.SettlementPaid, rec.State)
		assert.Equal(t, rec.TotalCents, rec.CollectedCents)
		assert.Zero(t, rec.PendingCents)
	}
}

func TestCheckAccountDetectsDrift(t *testing.T) {
	debit, _ := Post(0, entry(domain.EntrySaleDebit, 100, 0))
	sale := openSale("sale-1", 1, 100)
	rec := pendingRecord("c-1", 10, 0)

	clean := CheckAccount([]domain.LedgerEntry{debit}, []domain.Sale{sale}, []domain.CommissionRecord{rec})
	assert.Empty(t, clean.Problems)

	sale.OutstandingCents = 90
	rec.PendingCents = 3
	drift := CheckAccount([]domain.LedgerEntry{debit}, []domain.Sale{sale}, []domain.CommissionRecord{rec})
	assert.Len(t, drift.Problems, 2)
}

func TestAccrueRejectsCommissionOverflow(t *testing.T) {
	sale := domain.Sale{
		ID:            "sale-1",
		BranchID:      "b1",
		CustomerID:    "c1",
		SellerID:      "s1",
		PaymentMethod: domain.PaymentMethodCredit,
		Lines: []domain.SaleLine{
			{LineNo: 1, ProductID: "p-a", ProductType: "a", Qty: 2},
			{LineNo: 2, ProductID: "p-b", ProductType: "b", Qty: 2},
		},
	}

	_, err := Accrue(sale, map[int]int64{1: math.MaxInt64 / 2, 2: 1}, day0)
	require.ErrorIs(t, err, ErrAmountOverflow)

	_, err = Accrue(sale, map[int]int64{1: math.MaxInt64/2 + 1}, day0)
	require.ErrorIs(t, err, ErrAmountOverflow)
}

func TestCheckedCentsArithmetic(t *testing.T) {
	got, err := MulCents(250, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got)

	_, err = MulCents(math.MaxInt64/80+1, 80)
	assert.ErrorIs(t, err, ErrAmountOverflow)
	_, err = MulCents(-1, 2)
	assert.ErrorIs(t, err, ErrAmountOverflow)

	got, err = AddCents(-50, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(-30), got)
	_, err = AddCents(math.MaxInt64, 1)
	assert.ErrorIs(t, err, ErrAmountOverflow)
	_, err = AddCents(math.MinInt64, -1)
	assert.ErrorIs(t, err, ErrAmountOverflow)
}

func TestPostRejectsBalanceOverflow(t *testing.T) {
	_, err := Post(math.MaxInt64-10, entry(domain.EntrySaleDebit, 11, 0))
	require.ErrorIs(t, err, ErrInvalidEntry)
	require.ErrorIs(t, err, ErrAmountOverflow)
}
