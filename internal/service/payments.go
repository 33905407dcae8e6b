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

// RecordPayment credits the customer's account, spreads the amount over open
// sales oldest first and, for money actually received (cash or transfer),
// releases the paying seller's pending commission in proportion to the debt
// paid. The seller's debt is measured before the waterfall runs.
func (s *Service) RecordPayment(ctx context.Context, req domain.PaymentRequest) (domain.PaymentResponse, error) {
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.Method = strings.ToLower(strings.TrimSpace(req.Method))
	req.SellerID = strings.TrimSpace(req.SellerID)
	req.Reference = strings.TrimSpace(req.Reference)
	if err := s.validateStruct(req); err != nil {
		return domain.PaymentResponse{}, err
	}

	key := s.accountKey(req.BranchID, req.CustomerID)
	if err := s.requireAccount(ctx, key); err != nil {
		return domain.PaymentResponse{}, err
	}
	if req.SellerID != "" {
		if _, err := s.repo.GetSeller(ctx, req.SellerID); err != nil {
			return domain.PaymentResponse{}, err
		}
	}

	actor := actorOrSystem(ctx)
	paymentID := xid.New("pay")
	var resp domain.PaymentResponse
	err := s.repo.WithAccount(ctx, key, func(tx store.AccountTx) error {
		at := s.now()
		open, err := tx.OpenSales(ctx)
		if err != nil {
			return err
		}

		settlement, released, err := s.planSettlement(ctx, tx, req, actor, open)
		if err != nil {
			return err
		}

		payment := domain.Payment{
			ID:               paymentID,
			BranchID:         key.BranchID,
			CustomerID:       key.CustomerID,
			Method:           req.Method,
			AmountCents:      req.AmountCents,
			SellerID:         req.SellerID,
			ResolvedSellerID: settlement.SellerID,
			Reference:        req.Reference,
			ReceivedBy:       actor.Username,
			CreatedAt:        at,
		}
		if err := tx.CreatePayment(ctx, payment); err != nil {
			return err
		}
		entry, err := tx.AppendLedgerEntry(ctx, domain.LedgerEntry{
			Kind:        domain.EntryPaymentCredit,
			CreditCents: payment.AmountCents,
			SourceType:  domain.SourceTypePayment,
			SourceID:    payment.ID,
			Note:        payment.Reference,
			CreatedAt:   at,
		})
		if err != nil {
			return err
		}

		waterfall, err := s.applyWaterfall(ctx, tx, open, payment.AmountCents)
		if err != nil {
			return err
		}
		for _, rec := range released {
			rec.UpdatedAt = at
			if err := tx.UpdateCommissionRecord(ctx, rec); err != nil {
				return err
			}
		}

		resp = domain.PaymentResponse{
			Payment:           payment,
			LedgerEntry:       *entry,
			Allocations:       nonNilAllocations(waterfall.Allocations),
			UnappliedCents:    waterfall.RemainingCents,
			Commission:        settlement,
			BalanceAfterCents: entry.BalanceCents,
		}
		return nil
	})
	if err != nil {
		return domain.PaymentResponse{}, err
	}

	var inflow *domain.CashInflow
	if domain.IsImmediateMethod(resp.Payment.Method) {
		inflow = &domain.CashInflow{
			BranchID:    key.BranchID,
			CustomerID:  key.CustomerID,
			Method:      resp.Payment.Method,
			AmountCents: resp.Payment.AmountCents,
			SourceType:  domain.SourceTypePayment,
			SourceID:    resp.Payment.ID,
			Actor:       actor.Username,
		}
	}
	s.afterCommit(ctx, key, inflow)
	s.logAudit(ctx, key.BranchID, "payment_record", "payment", resp.Payment.ID, fmt.Sprintf("customer=%s,method=%s,amount=%d,applied=%d,unapplied=%d,seller=%s,commission_released=%d,skipped=%s", key.CustomerID, resp.Payment.Method, resp.Payment.AmountCents, resp.Payment.AmountCents-resp.UnappliedCents, resp.UnappliedCents, resp.Commission.SellerID, resp.Commission.BudgetCents-resp.Commission.UnallocatedCents, resp.Commission.SkippedReason))
	s.logger.Info("payment recorded",
		zap.String("payment_id", resp.Payment.ID),
		zap.String("branch_id", key.BranchID),
		zap.String("customer_id", key.CustomerID),
		zap.Int64("amount_cents", resp.Payment.AmountCents),
		zap.Int("sales_touched", len(resp.Allocations)),
		zap.String("commission_seller", resp.Commission.SellerID),
		zap.String("commission_skipped", resp.Commission.SkippedReason))

	return resp, nil
}

// planSettlement decides which seller a payment settles commission for and how
// much of that seller's pending pool it releases. It reads the open sales as
// they were before the payment and writes nothing.
func (s *Service) planSettlement(ctx context.Context, tx store.AccountTx, req domain.PaymentRequest, actor domain.Actor, open []domain.Sale) (domain.CommissionSettlement, []domain.CommissionRecord, error) {
	settlement := domain.CommissionSettlement{Allocations: []domain.CommissionAllocation{}}
	if !domain.IsImmediateMethod(req.Method) {
		settlement.SkippedReason = domain.SettlementSkipNonImmediate
		return settlement, nil, nil
	}

	sellerID, err := s.resolvePayingSeller(ctx, tx, req.SellerID, actor)
	if err != nil {
		return settlement, nil, err
	}
	if sellerID == "" {
		settlement.SkippedReason = domain.SettlementSkipNoSeller
		return settlement, nil, nil
	}
	settlement.SellerID = sellerID

	records, err := tx.PendingCommissions(ctx, sellerID)
	if err != nil {
		return settlement, nil, err
	}
	settlement.TotalDebtCents = ledger.SellerDebt(open, sellerID)
	settlement.PoolCents = ledger.OpenSalePool(open, records, sellerID)
	switch {
	case settlement.TotalDebtCents == 0:
		settlement.SkippedReason = domain.SettlementSkipNoDebt
		return settlement, nil, nil
	case settlement.PoolCents == 0:
		settlement.SkippedReason = domain.SettlementSkipNoPool
		return settlement, nil, nil
	}

	settlement.BudgetCents = ledger.SettlementBudget(settlement.PoolCents, req.AmountCents, settlement.TotalDebtCents)
	result := ledger.SettleCommissions(records, settlement.BudgetCents, s.now())
	settlement.UnallocatedCents = result.UnallocatedCents
	if len(result.Allocations) > 0 {
		settlement.Allocations = result.Allocations
	}
	return settlement, result.Updated, nil
}

// resolvePayingSeller picks the seller a payment is credited to: the one named
// on the payment, else the signed-in seller when they have pending commission
// on this account, else the seller with the earliest accrued pending record.
// An empty id means nobody has anything pending.
func (s *Service) resolvePayingSeller(ctx context.Context, tx store.AccountTx, explicit string, actor domain.Actor) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	pending, err := tx.PendingCommissions(ctx, "")
	if err != nil {
		return "", err
	}
	if actor.SellerID != "" {
		for _, rec := range pending {
			if rec.SellerID == actor.SellerID && rec.PendingCents > 0 {
				return actor.SellerID, nil
			}
		}
	}
	sellerID, _ := ledger.EarliestAccruedSeller(pending)
	return sellerID, nil
}

// applyWaterfall runs the allocation over open and persists every sale whose
// settlement changed.
func (s *Service) applyWaterfall(ctx context.Context, tx store.AccountTx, open []domain.Sale, amount int64) (ledger.WaterfallResult, error) {
	result, err := ledger.Waterfall(open, amount)
	if err != nil {
		return ledger.WaterfallResult{}, invalidf("%v", err)
	}
	for _, sale := range result.Updated {
		if err := tx.UpdateSaleSettlement(ctx, sale.ID, sale.SettlementState, sale.OutstandingCents); err != nil {
			return ledger.WaterfallResult{}, err
		}
	}
	return result, nil
}

// RecordAdjustment credits an account without money changing hands, for
// write-offs and goodwill. The credit runs through the same waterfall as a
// payment but never releases commission.
func (s *Service) RecordAdjustment(ctx context.Context, req domain.AdjustmentRequest) (domain.AdjustmentResponse, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.AdjustmentResponse{}, err
	}
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.Reason = strings.TrimSpace(req.Reason)
	if err := s.validateStruct(req); err != nil {
		return domain.AdjustmentResponse{}, err
	}

	key := s.accountKey(req.BranchID, req.CustomerID)
	if err := s.requireAccount(ctx, key); err != nil {
		return domain.AdjustmentResponse{}, err
	}

	adjustmentID := xid.New("adj")
	var resp domain.AdjustmentResponse
	err := s.repo.WithAccount(ctx, key, func(tx store.AccountTx) error {
		open, err := tx.OpenSales(ctx)
		if err != nil {
			return err
		}
		entry, err := tx.AppendLedgerEntry(ctx, domain.LedgerEntry{
			Kind:        domain.EntryAdjustment,
			CreditCents: req.AmountCents,
			SourceType:  domain.SourceTypeAdjustment,
			SourceID:    adjustmentID,
			Note:        req.Reason,
			CreatedAt:   s.now(),
		})
		if err != nil {
			return err
		}
		waterfall, err := s.applyWaterfall(ctx, tx, open, req.AmountCents)
		if err != nil {
			return err
		}

		resp = domain.AdjustmentResponse{
			LedgerEntry:       *entry,
			Allocations:       nonNilAllocations(waterfall.Allocations),
			UnappliedCents:    waterfall.RemainingCents,
			BalanceAfterCents: entry.BalanceCents,
		}
		return nil
	})
	if err != nil {
		return domain.AdjustmentResponse{}, err
	}

	s.afterCommit(ctx, key, nil)
	s.logAudit(ctx, key.BranchID, "adjustment_record", "adjustment", adjustmentID, fmt.Sprintf("customer=%s,amount=%d,reason=%s", key.CustomerID, req.AmountCents, req.Reason))
	return resp, nil
}

func nonNilAllocations(allocations []domain.SaleAllocation) []domain.SaleAllocation {
	if allocations == nil {
		return []domain.SaleAllocation{}
	}
	return allocations
}
