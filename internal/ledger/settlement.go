package ledger

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"kasbon/backend/internal/domain"
)

// SettlementBudget is the share of pool unlocked by paying paid out of debt:
// pool × paid / debt, truncated to whole minor units. Paying the whole debt
// (or more) unlocks the whole pool, so truncation never strands a remainder.
func SettlementBudget(pool int64, paid int64, debt int64) int64 {
	if pool <= 0 || paid <= 0 || debt <= 0 {
		return 0
	}
	if paid >= debt {
		return pool
	}
	q, _ := decimal.NewFromInt(pool).Mul(decimal.NewFromInt(paid)).QuoRem(decimal.NewFromInt(debt), 0)
	return min(q.IntPart(), pool)
}

// PendingPool sums the pending commission of the given records.
func PendingPool(records []domain.CommissionRecord) int64 {
	total := int64(0)
	for _, rec := range records {
		if rec.State != domain.SettlementPaid {
			total += rec.PendingCents
		}
	}
	return total
}

// OpenSalePool sums the pending commission of sellerID's records whose sale
// is still unpaid in sales. Records left pending on a sale that was already
// paid off do not count.
func OpenSalePool(sales []domain.Sale, records []domain.CommissionRecord, sellerID string) int64 {
	open := make(map[string]struct{}, len(sales))
	for _, sale := range sales {
		if sale.SellerID == sellerID && sale.SettlementState != domain.SettlementPaid {
			open[sale.ID] = struct{}{}
		}
	}
	total := int64(0)
	for _, rec := range records {
		if rec.SellerID != sellerID || rec.State == domain.SettlementPaid {
			continue
		}
		if _, ok := open[rec.SaleID]; ok {
			total += rec.PendingCents
		}
	}
	return total
}

// SortLargestFirst orders records by total commission descending, then id.
func SortLargestFirst(records []domain.CommissionRecord) {
	slices.SortStableFunc(records, func(a, b domain.CommissionRecord) int {
		if c := cmp.Compare(b.TotalCents, a.TotalCents); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// EarliestAccruedSeller picks the seller owning the oldest still-pending
// commission record (created at, then record id). It is the tie-break used when
// a payment names no seller.
func EarliestAccruedSeller(records []domain.CommissionRecord) (string, bool) {
	var best *domain.CommissionRecord
	for i := range records {
		rec := &records[i]
		if rec.State == domain.SettlementPaid || rec.PendingCents <= 0 {
			continue
		}
		if best == nil {
			best = rec
			continue
		}
		if c := rec.CreatedAt.Compare(best.CreatedAt); c < 0 || (c == 0 && rec.ID < best.ID) {
			best = rec
		}
	}
	if best == nil {
		return "", false
	}
	return best.SellerID, true
}

type SettlementResult struct {
	Allocations []domain.CommissionAllocation
	// Updated holds the records whose amounts changed, in walk order.
	Updated          []domain.CommissionRecord
	ReleasedCents    int64
	UnallocatedCents int64
}

// SettleCommissions releases budget over the pending records, largest
// liability first. Records are satisfied in full while the budget allows; the
// first record the budget cannot cover takes the rest and becomes partial, and
// the walk stops there. Collected + Pending == Total holds for every record
// returned. The input slice is not modified.
func SettleCommissions(records []domain.CommissionRecord, budget int64, at time.Time) SettlementResult {
	pending := make([]domain.CommissionRecord, 0, len(records))
	for _, rec := range records {
		if rec.State == domain.SettlementPaid || rec.Outstanding() <= 0 {
			continue
		}
		pending = append(pending, rec)
	}
	SortLargestFirst(pending)

	remaining := max(budget, 0)
	result := SettlementResult{}
	for _, rec := range pending {
		need := rec.Outstanding()
		released := int64(0)
		switch {
		case remaining >= need:
			released = need
			rec.CollectedCents = rec.TotalCents
			rec.PendingCents = 0
			rec.State = domain.SettlementPaid
		case remaining > 0:
			released = remaining
			rec.CollectedCents += remaining
			rec.PendingCents = rec.TotalCents - rec.CollectedCents
			rec.State = domain.SettlementPartial
		}
		if released == 0 {
			break
		}
		remaining -= released
		rec.UpdatedAt = at
		result.ReleasedCents += released
		result.Updated = append(result.Updated, rec)
		result.Allocations = append(result.Allocations, domain.CommissionAllocation{
			RecordID:       rec.ID,
			SaleID:         rec.SaleID,
			ReleasedCents:  released,
			CollectedCents: rec.CollectedCents,
			PendingCents:   rec.PendingCents,
			State:          rec.State,
		})
		if rec.State == domain.SettlementPartial {
			break
		}
	}
	result.UnallocatedCents = remaining
	return result
}
