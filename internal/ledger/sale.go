package ledger

import (
	"fmt"
	"time"

	"kasbon/backend/internal/domain"
	"kasbon/backend/internal/xid"
)

// OpeningSettlement decides how a new sale starts. Immediate sales are paid on
// the spot. Credit sales start pending for the full total unless the account
// holds store credit, which is consumed first.
func OpeningSettlement(method string, total int64, storeCredit int64) (domain.SettlementState, int64, int64) {
	if domain.IsImmediateMethod(method) {
		return domain.SettlementPaid, 0, 0
	}

	used := min(max(storeCredit, 0), total)
	outstanding := total - used
	switch {
	case outstanding == 0:
		return domain.SettlementPaid, 0, used
	case used > 0:
		return domain.SettlementPartial, outstanding, used
	default:
		return domain.SettlementPending, outstanding, 0
	}
}

// Accrue builds one commission record per sale line whose unit commission is
// positive. unitByLine is keyed by SaleLine.LineNo. Immediate sales earn the
// commission at once; credit sales hold it pending until money arrives. A line
// whose commission does not fit in int64 fails the whole sale.
func Accrue(sale domain.Sale, unitByLine map[int]int64, at time.Time) ([]domain.CommissionRecord, error) {
	records := make([]domain.CommissionRecord, 0, len(sale.Lines))
	immediate := domain.IsImmediateMethod(sale.PaymentMethod)
	sum := int64(0)
	for _, line := range sale.Lines {
		unit := unitByLine[line.LineNo]
		if unit <= 0 || line.Qty < 1 {
			continue
		}
		total, err := MulCents(unit, int64(line.Qty))
		if err != nil {
			return nil, fmt.Errorf("line %d commission: %w", line.LineNo, err)
		}
		if sum, err = AddCents(sum, total); err != nil {
			return nil, fmt.Errorf("sale commission: %w", err)
		}
		rec := domain.CommissionRecord{
			ID:                  xid.New("com"),
			SaleID:              sale.ID,
			LineNo:              line.LineNo,
			BranchID:            sale.BranchID,
			CustomerID:          sale.CustomerID,
			SellerID:            sale.SellerID,
			ProductID:           line.ProductID,
			ProductType:         line.ProductType,
			Qty:                 line.Qty,
			UnitCommissionCents: unit,
			TotalCents:          total,
			CreatedAt:           at,
			UpdatedAt:           at,
		}
		if immediate {
			rec.CollectedCents = total
			rec.State = domain.SettlementPaid
		} else {
			rec.PendingCents = total
			rec.State = domain.SettlementPending
		}
		records = append(records, rec)
	}
	return records, nil
}
