// internal/service/plan/plan_service.go
package plan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"finboard-service/internal/billing"
	domain "finboard-service/internal/domain/plan"
	xerrors "finboard-service/internal/pkg/errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrPlanNotFound = errors.New("plan not found")
	ErrPlanInactive = errors.New("plan is not active")
)

const planCacheTTL = 5 * time.Minute

// Store is the persistence surface the catalog needs.
type Store interface {
	FindByID(ctx context.Context, id int64) (*domain.Plan, error)
	ListActive(ctx context.Context) ([]domain.Plan, error)
}

// PlanService is the read-only plan catalog. Plans are maintained by
// administrative tooling; this service only validates and prices them.
type PlanService struct {
	repo  Store
	cache *redis.Client
	// cadencePricing gates the monthly/annual price columns. Resolved once
	// at startup; when off, every plan bills at its legacy flat price.
	cadencePricing bool
	logger         *zap.Logger
}

func NewPlanService(repo Store, cache *redis.Client, cadencePricing bool, logger *zap.Logger) *PlanService {
	return &PlanService{
		repo:           repo,
		cache:          cache,
		cadencePricing: cadencePricing,
		logger:         logger,
	}
}

// GetActivePlan loads a plan and validates that it can be subscribed to.
// Returns ErrPlanNotFound / ErrPlanInactive; both are terminal for the
// caller, never retried.
func (s *PlanService) GetActivePlan(ctx context.Context, planID int64) (*domain.Plan, error) {
	if p := s.cacheGet(ctx, planID); p != nil {
		return p, nil
	}

	p, err := s.repo.FindByID(ctx, planID)
	if err != nil {
		if xerrors.Is(err, xerrors.ErrNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}

	if !p.IsActive {
		return nil, ErrPlanInactive
	}

	s.cacheSet(ctx, p)
	return p, nil
}

// ResolvePrice returns the price in cents for the plan at the requested
// cadence.
func (s *PlanService) ResolvePrice(p *domain.Plan, period domain.BillingPeriod) int64 {
	if !s.cadencePricing {
		return p.PriceCents
	}
	return billing.ResolvePrice(p, period)
}

// ListActivePlans returns the subscribable plans.
func (s *PlanService) ListActivePlans(ctx context.Context) ([]domain.Plan, error) {
	plans, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	return plans, nil
}

// Cache failures degrade to database reads; never surfaced to callers.

func (s *PlanService) cacheKey(planID int64) string {
	return fmt.Sprintf("plan:active:%d", planID)
}

func (s *PlanService) cacheGet(ctx context.Context, planID int64) *domain.Plan {
	if s.cache == nil {
		return nil
	}

	data, err := s.cache.Get(ctx, s.cacheKey(planID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("plan cache read failed", zap.Int64("plan_id", planID), zap.Error(err))
		}
		return nil
	}

	var p domain.Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil
	}
	return &p
}

func (s *PlanService) cacheSet(ctx context.Context, p *domain.Plan) {
	if s.cache == nil {
		return
	}

	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, s.cacheKey(p.ID), data, planCacheTTL).Err(); err != nil {
		s.logger.Warn("plan cache write failed", zap.Int64("plan_id", p.ID), zap.Error(err))
	}
}
