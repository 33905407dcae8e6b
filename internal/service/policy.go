package service

import (
	"context"
	"fmt"
	"strings"

	"kasbon/backend/internal/domain"
	"kasbon/backend/internal/ledger"
)

// ResolveCommission previews the unit commission a seller would earn on one
// unit of productType today.
func (s *Service) ResolveCommission(ctx context.Context, sellerID string, productType string) (int64, error) {
	sellerID = strings.TrimSpace(sellerID)
	productType = strings.TrimSpace(productType)
	if sellerID == "" || productType == "" {
		return 0, invalidf("seller_id and product_type are required")
	}
	seller, err := s.repo.GetSeller(ctx, sellerID)
	if err != nil {
		return 0, err
	}
	if !seller.CommissionEnabled {
		return 0, nil
	}
	return ledger.NewResolver(s.repo).UnitCommission(ctx, seller.ID, productType)
}

func (s *Service) GetSeller(ctx context.Context, sellerID string) (domain.Seller, error) {
	seller, err := s.repo.GetSeller(ctx, strings.TrimSpace(sellerID))
	if err != nil {
		return domain.Seller{}, err
	}
	return *seller, nil
}

func (s *Service) UpsertCommissionOverride(ctx context.Context, override domain.CommissionOverride) (domain.CommissionOverride, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.CommissionOverride{}, err
	}
	override.SellerID = strings.TrimSpace(override.SellerID)
	override.ProductType = strings.TrimSpace(override.ProductType)
	if err := s.validateStruct(override); err != nil {
		return domain.CommissionOverride{}, err
	}
	if _, err := s.repo.GetSeller(ctx, override.SellerID); err != nil {
		return domain.CommissionOverride{}, err
	}
	override.UpdatedAt = s.now()

	saved, err := s.repo.UpsertCommissionOverride(ctx, override)
	if err != nil {
		return domain.CommissionOverride{}, err
	}
	s.logAudit(ctx, "", "commission_override_upsert", "commission_override", saved.SellerID+"/"+saved.ProductType, fmt.Sprintf("unit=%d,active=%t", saved.UnitCommissionCents, saved.Active))
	return *saved, nil
}

func (s *Service) UpsertCommissionDefault(ctx context.Context, def domain.CommissionDefault) (domain.CommissionDefault, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.CommissionDefault{}, err
	}
	def.ProductType = strings.TrimSpace(def.ProductType)
	if err := s.validateStruct(def); err != nil {
		return domain.CommissionDefault{}, err
	}
	def.UpdatedAt = s.now()

	saved, err := s.repo.UpsertCommissionDefault(ctx, def)
	if err != nil {
		return domain.CommissionDefault{}, err
	}
	s.logAudit(ctx, "", "commission_default_upsert", "commission_default", saved.ProductType, fmt.Sprintf("unit=%d,active=%t", saved.UnitCommissionCents, saved.Active))
	return *saved, nil
}

func (s *Service) ListCommissionOverrides(ctx context.Context, sellerID string) ([]domain.CommissionOverride, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListCommissionOverrides(ctx, strings.TrimSpace(sellerID))
}

func (s *Service) ListCommissionDefaults(ctx context.Context) ([]domain.CommissionDefault, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListCommissionDefaults(ctx)
}
