package ledger

import (
	"context"

	"kasbon/backend/internal/domain"
)

// PolicySource looks up commission policy rows. A missing row is reported as
// (nil, nil), not as an error.
type PolicySource interface {
	CommissionOverride(ctx context.Context, sellerID string, productType string) (*domain.CommissionOverride, error)
	CommissionDefault(ctx context.Context, productType string) (*domain.CommissionDefault, error)
}

// Resolver picks the unit commission for a seller and product type: an active
// seller override wins over an active default; anything else resolves to zero.
type Resolver struct {
	source PolicySource
}

func NewResolver(source PolicySource) Resolver {
	return Resolver{source: source}
}

func (r Resolver) UnitCommission(ctx context.Context, sellerID string, productType string) (int64, error) {
	override, err := r.source.CommissionOverride(ctx, sellerID, productType)
	if err != nil {
		return 0, err
	}
	if override != nil && override.Active {
		return nonNegative(override.UnitCommissionCents), nil
	}

	def, err := r.source.CommissionDefault(ctx, productType)
	if err != nil {
		return 0, err
	}
	if def != nil && def.Active {
		return nonNegative(def.UnitCommissionCents), nil
	}
	return 0, nil
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
