package cache

import (
	"context"
	"time"

	"kasbon/backend/internal/domain"
)

// BalanceCache holds read-side account balances. Writers delete the entry
// after every committed change; a miss always falls back to the store.
type BalanceCache interface {
	Get(ctx context.Context, key domain.AccountKey) (*domain.AccountBalance, bool, error)
	Set(ctx context.Context, key domain.AccountKey, value *domain.AccountBalance, ttl time.Duration) error
	Delete(ctx context.Context, key domain.AccountKey) error
}

func BalanceKey(key domain.AccountKey) string {
	return "kasbon:balance:" + key.BranchID + ":" + key.CustomerID
}

type NoopBalanceCache struct{}

func (NoopBalanceCache) Get(_ context.Context, _ domain.AccountKey) (*domain.AccountBalance, bool, error) {
	return nil, false, nil
}

func (NoopBalanceCache) Set(_ context.Context, _ domain.AccountKey, _ *domain.AccountBalance, _ time.Duration) error {
	return nil
}

func (NoopBalanceCache) Delete(_ context.Context, _ domain.AccountKey) error {
	return nil
}
