package service

import (
	"context"

	"go.uber.org/zap"

	"kasbon/backend/internal/domain"
)

// CashDrawer is told about money that physically arrived at a branch. It is
// called only after the account write has committed.
type CashDrawer interface {
	RecordInflow(ctx context.Context, inflow domain.CashInflow) error
}

type NoopCashDrawer struct{}

func (NoopCashDrawer) RecordInflow(_ context.Context, _ domain.CashInflow) error {
	return nil
}

// LogCashDrawer journals every inflow to the process log. It stands in for a
// till integration on deployments without one.
type LogCashDrawer struct {
	logger *zap.Logger
}

func NewLogCashDrawer(logger *zap.Logger) LogCashDrawer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return LogCashDrawer{logger: logger.With(zap.String("component", "cash_drawer"))}
}

func (d LogCashDrawer) RecordInflow(_ context.Context, inflow domain.CashInflow) error {
	d.logger.Info("cash inflow",
		zap.String("branch_id", inflow.BranchID),
		zap.String("customer_id", inflow.CustomerID),
		zap.String("method", inflow.Method),
		zap.Int64("amount_cents", inflow.AmountCents),
		zap.String("source", inflow.SourceType+"/"+inflow.SourceID),
		zap.String("actor", inflow.Actor))
	return nil
}
