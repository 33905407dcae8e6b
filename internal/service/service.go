package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"kasbon/backend/internal/cache"
	"kasbon/backend/internal/domain"
	"kasbon/backend/internal/store"
	"kasbon/backend/internal/xid"
)

// ErrForbidden is returned when the actor's role may not run the operation.
var ErrForbidden = errors.New("forbidden")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo            store.Repository
	drawer          CashDrawer
	balances        cache.BalanceCache
	balanceTTL      time.Duration
	logger          *zap.Logger
	validate        *validator.Validate
	now             func() time.Time
	defaultBranchID string
}

type Option func(*Service)

func WithCashDrawer(drawer CashDrawer) Option {
	return func(s *Service) {
		if drawer != nil {
			s.drawer = drawer
		}
	}
}

func WithBalanceCache(balances cache.BalanceCache, ttl time.Duration) Option {
	return func(s *Service) {
		if balances != nil {
			s.balances = balances
		}
		if ttl > 0 {
			s.balanceTTL = ttl
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces the wall clock used to stamp sales, payments and
// commission updates.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(repo store.Repository, defaultBranchID string, opts ...Option) *Service {
	if defaultBranchID == "" {
		defaultBranchID = "main-branch"
	}

	s := &Service{
		repo:            repo,
		drawer:          NoopCashDrawer{},
		balances:        cache.NoopBalanceCache{},
		balanceTTL:      30 * time.Second,
		logger:          zap.NewNop(),
		validate:        validator.New(validator.WithRequiredStructEnabled()),
		now:             func() time.Time { return time.Now().UTC() },
		defaultBranchID: defaultBranchID,
	}
	s.validate.RegisterTagNameFunc(jsonFieldName)
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "service"))
	return s
}

func (s *Service) DefaultBranchID() string {
	return s.defaultBranchID
}

func (s *Service) accountKey(branchID string, customerID string) domain.AccountKey {
	branchID = strings.TrimSpace(branchID)
	if branchID == "" {
		branchID = s.defaultBranchID
	}
	return domain.AccountKey{BranchID: branchID, CustomerID: strings.TrimSpace(customerID)}
}

// requireAccount checks that both ends of the account exist and are active.
func (s *Service) requireAccount(ctx context.Context, key domain.AccountKey) error {
	if key.CustomerID == "" {
		return invalidf("customer_id is required")
	}
	if _, err := s.repo.GetBranch(ctx, key.BranchID); err != nil {
		return err
	}
	if _, err := s.repo.GetCustomer(ctx, key.CustomerID); err != nil {
		return err
	}
	return nil
}

func requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Actor{}, ErrForbidden
	}
	return actor, nil
}

func actorOrSystem(ctx context.Context) domain.Actor {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{Username: "system", Role: "system"}
	}
	return actor
}

// afterCommit runs the side effects of a committed account write. None of
// them can undo the write, so failures are only logged.
func (s *Service) afterCommit(ctx context.Context, key domain.AccountKey, inflow *domain.CashInflow) {
	if err := s.balances.Delete(ctx, key); err != nil {
		s.logger.Warn("balance cache invalidation failed",
			zap.String("branch_id", key.BranchID),
			zap.String("customer_id", key.CustomerID),
			zap.Error(err))
	}
	if inflow == nil {
		return
	}
	if err := s.drawer.RecordInflow(ctx, *inflow); err != nil {
		s.logger.Warn("cash drawer notification failed",
			zap.String("source_type", inflow.SourceType),
			zap.String("source_id", inflow.SourceID),
			zap.Int64("amount_cents", inflow.AmountCents),
			zap.Error(err))
	}
}

func (s *Service) logAudit(ctx context.Context, branchID string, action string, entityType string, entityID string, detail string) {
	actor := actorOrSystem(ctx)
	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		BranchID:      branchID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		s.logger.Warn("audit log write failed",
			zap.String("action", action),
			zap.String("entity", entityType+"/"+entityID),
			zap.Error(err))
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, branchID string, date string, limit int) ([]domain.AuditLog, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}

	var from, to time.Time
	if strings.TrimSpace(date) == "" {
		to = s.now().Add(time.Second)
		from = to.Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, invalidf("date must be YYYY-MM-DD")
		}
		from = parsed.UTC()
		to = from.Add(24 * time.Hour)
	}

	return s.repo.ListAuditLogs(ctx, strings.TrimSpace(branchID), from, to, limit)
}
