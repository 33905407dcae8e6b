package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"kasbon/backend/internal/domain"
	"kasbon/backend/internal/ledger"
	"kasbon/backend/internal/store"
	"kasbon/backend/internal/xid"
)

// RecordSale books one sale on the customer's running account. A credit sale
// debits the ledger and opens debt; an immediate sale is paid on the spot.
// Commission is accrued per line when the seller takes part in commissions.
// Everything happens in one account transaction or not at all.
func (s *Service) RecordSale(ctx context.Context, req domain.SaleRequest) (domain.SaleResponse, error) {
	req.BranchID = strings.TrimSpace(req.BranchID)
	if req.BranchID == "" {
		req.BranchID = s.defaultBranchID
	}
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.SellerID = strings.TrimSpace(req.SellerID)
	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	for i := range req.Lines {
		req.Lines[i].ProductID = strings.ToUpper(strings.TrimSpace(req.Lines[i].ProductID))
	}
	if err := s.validateStruct(req); err != nil {
		return domain.SaleResponse{}, err
	}

	key := domain.AccountKey{BranchID: req.BranchID, CustomerID: req.CustomerID}
	if err := s.requireAccount(ctx, key); err != nil {
		return domain.SaleResponse{}, err
	}
	seller, err := s.repo.GetSeller(ctx, req.SellerID)
	if err != nil {
		return domain.SaleResponse{}, err
	}

	lines, subtotal, err := s.buildSaleLines(ctx, req.Lines)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	if req.DiscountCents > subtotal {
		return domain.SaleResponse{}, invalidf("discount %d exceeds subtotal %d", req.DiscountCents, subtotal)
	}
	if req.TotalCents != subtotal-req.DiscountCents {
		return domain.SaleResponse{}, invalidf("total %d does not match subtotal %d minus discount %d", req.TotalCents, subtotal, req.DiscountCents)
	}

	saleID := xid.New("sale")
	var resp domain.SaleResponse
	err = s.repo.WithAccount(ctx, key, func(tx store.AccountTx) error {
		at := s.now()
		balance, err := tx.Balance(ctx)
		if err != nil {
			return err
		}

		state, outstanding, creditUsed := ledger.OpeningSettlement(req.PaymentMethod, req.TotalCents, ledger.StoreCredit(balance))
		sale := domain.Sale{
			ID:               saleID,
			BranchID:         key.BranchID,
			CustomerID:       key.CustomerID,
			SellerID:         seller.ID,
			PaymentMethod:    req.PaymentMethod,
			SubtotalCents:    subtotal,
			DiscountCents:    req.DiscountCents,
			TotalCents:       req.TotalCents,
			SettlementState:  state,
			OutstandingCents: outstanding,
			CreatedAt:        at,
			Lines:            lines,
		}
		if err := tx.CreateSale(ctx, sale); err != nil {
			return err
		}

		var entry *domain.LedgerEntry
		if !domain.IsImmediateMethod(sale.PaymentMethod) {
			entry, err = tx.AppendLedgerEntry(ctx, domain.LedgerEntry{
				Kind:       domain.EntrySaleDebit,
				DebitCents: sale.TotalCents,
				SourceType: domain.SourceTypeSale,
				SourceID:   sale.ID,
				CreatedAt:  at,
			})
			if err != nil {
				return err
			}
		}

		records, err := s.accrueCommissions(ctx, tx, seller, sale, creditUsed)
		if err != nil {
			return err
		}
		if len(records) > 0 {
			if err := tx.CreateCommissionRecords(ctx, records); err != nil {
				return err
			}
		}

		after, err := tx.Balance(ctx)
		if err != nil {
			return err
		}
		resp = domain.SaleResponse{
			Sale:              sale,
			LedgerEntry:       entry,
			Commissions:       records,
			StoreCreditUsed:   creditUsed,
			BalanceAfterCents: after,
		}
		return nil
	})
	if err != nil {
		return domain.SaleResponse{}, err
	}

	var inflow *domain.CashInflow
	if domain.IsImmediateMethod(resp.Sale.PaymentMethod) {
		inflow = &domain.CashInflow{
			BranchID:    key.BranchID,
			CustomerID:  key.CustomerID,
			Method:      resp.Sale.PaymentMethod,
			AmountCents: resp.Sale.TotalCents,
			SourceType:  domain.SourceTypeSale,
			SourceID:    resp.Sale.ID,
			Actor:       actorOrSystem(ctx).Username,
		}
	}
	s.afterCommit(ctx, key, inflow)
	s.logAudit(ctx, key.BranchID, "sale_record", "sale", resp.Sale.ID, fmt.Sprintf("customer=%s,seller=%s,method=%s,total=%d,state=%s,commissions=%d", key.CustomerID, seller.ID, resp.Sale.PaymentMethod, resp.Sale.TotalCents, resp.Sale.SettlementState, len(resp.Commissions)))
	s.logger.Info("sale recorded",
		zap.String("sale_id", resp.Sale.ID),
		zap.String("branch_id", key.BranchID),
		zap.String("customer_id", key.CustomerID),
		zap.String("method", resp.Sale.PaymentMethod),
		zap.Int64("total_cents", resp.Sale.TotalCents),
		zap.Int64("balance_after_cents", resp.BalanceAfterCents))

	return resp, nil
}

// buildSaleLines resolves every product, numbers the lines and computes the
// subtotal. A zero unit price takes the catalogue price.
func (s *Service) buildSaleLines(ctx context.Context, reqLines []domain.SaleLineRequest) ([]domain.SaleLine, int64, error) {
	ids := make([]string, 0, len(reqLines))
	for _, line := range reqLines {
		ids = append(ids, line.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	lines := make([]domain.SaleLine, 0, len(reqLines))
	subtotal := int64(0)
	for i, line := range reqLines {
		product, ok := products[line.ProductID]
		if !ok {
			return nil, 0, fmt.Errorf("product %s: %w", line.ProductID, store.ErrNotFound)
		}
		unit := line.UnitPriceCents
		if unit == 0 {
			unit = product.PriceCents
		}
		lines = append(lines, domain.SaleLine{
			LineNo:         i + 1,
			ProductID:      product.ID,
			ProductType:    product.ProductType,
			Qty:            line.Qty,
			UnitPriceCents: unit,
		})
		lineTotal, err := ledger.MulCents(unit, int64(line.Qty))
		if err != nil {
			return nil, 0, invalidf("line %d: %v", i+1, err)
		}
		if subtotal, err = ledger.AddCents(subtotal, lineTotal); err != nil {
			return nil, 0, invalidf("subtotal: %v", err)
		}
	}
	return lines, subtotal, nil
}

// accrueCommissions builds the sale's commission records. Store credit netted
// against a credit sale is money already received, so the matching share of
// the new commission is released immediately.
func (s *Service) accrueCommissions(ctx context.Context, tx store.AccountTx, seller *domain.Seller, sale domain.Sale, creditUsed int64) ([]domain.CommissionRecord, error) {
	if !seller.CommissionEnabled {
		return nil, nil
	}

	resolver := ledger.NewResolver(tx)
	units := make(map[int]int64, len(sale.Lines))
	for _, line := range sale.Lines {
		unit, err := resolver.UnitCommission(ctx, seller.ID, line.ProductType)
		if err != nil {
			return nil, err
		}
		units[line.LineNo] = unit
	}

	records, err := ledger.Accrue(sale, units, sale.CreatedAt)
	if err != nil {
		return nil, invalidf("%v", err)
	}
	if creditUsed <= 0 || len(records) == 0 {
		return records, nil
	}

	budget := ledger.SettlementBudget(ledger.PendingPool(records), creditUsed, sale.TotalCents)
	settled := ledger.SettleCommissions(records, budget, sale.CreatedAt)
	byID := make(map[string]domain.CommissionRecord, len(settled.Updated))
	for _, rec := range settled.Updated {
		byID[rec.ID] = rec
	}
	for i := range records {
		if rec, ok := byID[records[i].ID]; ok {
			records[i] = rec
		}
	}
	return records, nil
}

// ListSales returns sales matching filter, oldest first.
func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	filter.BranchID = strings.TrimSpace(filter.BranchID)
	filter.CustomerID = strings.TrimSpace(filter.CustomerID)
	filter.SellerID = strings.TrimSpace(filter.SellerID)
	if err := s.validateStruct(filter); err != nil {
		return nil, err
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return nil, invalidf("from must be before to")
	}
	if filter.Limit == 0 {
		filter.Limit = 100
	}
	return s.repo.ListSales(ctx, filter)
}
