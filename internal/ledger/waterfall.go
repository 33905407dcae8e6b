package ledger

import (
	"errors"
	"slices"
	"strings"

	"kasbon/backend/internal/domain"
)

var ErrNonPositiveAmount = errors.New("amount must be positive")

type WaterfallResult struct {
	Allocations []domain.SaleAllocation
	// Updated holds the sales whose state changed, in walk order.
	Updated        []domain.Sale
	AppliedCents   int64
	RemainingCents int64
}

// SortOldestFirst orders sales by creation time, then by id so equal
// timestamps still give one answer.
func SortOldestFirst(sales []domain.Sale) {
	slices.SortStableFunc(sales, func(a, b domain.Sale) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// Waterfall spreads amount over the open sales, oldest debt first. Each sale
// is either fully extinguished or, for the last one reached, reduced and left
// partial. Whatever is left over is returned in RemainingCents; it is not
// attached to any sale. The input slice is not modified.
func Waterfall(sales []domain.Sale, amount int64) (WaterfallResult, error) {
	if amount <= 0 {
		return WaterfallResult{}, ErrNonPositiveAmount
	}

	open := make([]domain.Sale, 0, len(sales))
	for _, sale := range sales {
		if sale.SettlementState == domain.SettlementPaid || sale.OutstandingCents <= 0 {
			continue
		}
		open = append(open, sale)
	}
	SortOldestFirst(open)

	result := WaterfallResult{RemainingCents: amount}
	for _, sale := range open {
		if result.RemainingCents == 0 {
			break
		}
		before := sale.OutstandingCents
		applied := before
		if result.RemainingCents >= before {
			sale.SettlementState = domain.SettlementPaid
			sale.OutstandingCents = 0
		} else {
			applied = result.RemainingCents
			sale.OutstandingCents = before - applied
			sale.SettlementState = domain.SettlementPartial
		}
		result.RemainingCents -= applied
		result.AppliedCents += applied
		result.Updated = append(result.Updated, sale)
		result.Allocations = append(result.Allocations, domain.SaleAllocation{
			SaleID:        sale.ID,
			AppliedCents:  applied,
			BalanceBefore: before,
			BalanceAfter:  sale.OutstandingCents,
			State:         sale.SettlementState,
		})
	}
	return result, nil
}

// Outstanding sums what is still owed on the given sales.
func Outstanding(sales []domain.Sale) int64 {
	total := int64(0)
	for _, sale := range sales {
		if sale.SettlementState != domain.SettlementPaid {
			total += sale.OutstandingCents
		}
	}
	return total
}

// SellerDebt sums what is still owed on the seller's open sales.
func SellerDebt(sales []domain.Sale, sellerID string) int64 {
	total := int64(0)
	for _, sale := range sales {
		if sale.SellerID == sellerID && sale.SettlementState != domain.SettlementPaid {
			total += sale.OutstandingCents
		}
	}
	return total
}
