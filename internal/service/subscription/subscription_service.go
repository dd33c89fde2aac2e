// internal/service/subscription/subscription_service.go
package subscription

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"finboard-service/internal/billing"
	domainplan "finboard-service/internal/domain/plan"
	"finboard-service/internal/domain/subscription"
	"finboard-service/internal/domain/user"
	xerrors "finboard-service/internal/pkg/errors"
	"finboard-service/internal/service/payment"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// ErrNoActiveSubscription is returned by cancel when the user holds no
// subscription in active status. Canceling twice is an error, not a no-op.
var ErrNoActiveSubscription = errors.New("no active subscription")

// PlanCatalog validates and prices plans.
type PlanCatalog interface {
	GetActivePlan(ctx context.Context, planID int64) (*domainplan.Plan, error)
	ResolvePrice(p *domainplan.Plan, period domainplan.BillingPeriod) int64
}

// Store is the subscription persistence boundary.
type Store interface {
	CreateReplacingLive(ctx context.Context, sub *subscription.Subscription) error
	FindActiveByUser(ctx context.Context, userID int64) (*subscription.Subscription, error)
	FindLatestByUser(ctx context.Context, userID int64) (*subscription.Subscription, error)
	List(ctx context.Context, userID int64, page, pageSize int) ([]subscription.Subscription, int64, error)
	Cancel(ctx context.Context, id int64, at time.Time) error
	SetPaymentPreference(ctx context.Context, id int64, preferenceID string) error
}

// UserStore resolves the profile used as billing-contact fallback.
type UserStore interface {
	FindByID(ctx context.Context, id int64) (*user.User, error)
}

type SubscriptionService struct {
	subscriptionRepo Store
	planCatalog      PlanCatalog
	userRepo         UserStore
	gateway          payment.Gateway
	gatewayTimeout   time.Duration
	gatewayTestMode  bool
	logger           *zap.Logger
	now              func() time.Time
}

func NewSubscriptionService(
	subscriptionRepo Store,
	planCatalog PlanCatalog,
	userRepo UserStore,
	gateway payment.Gateway,
	gatewayTimeout time.Duration,
	gatewayTestMode bool,
	logger *zap.Logger,
) *SubscriptionService {
	return &SubscriptionService{
		subscriptionRepo: subscriptionRepo,
		planCatalog:      planCatalog,
		userRepo:         userRepo,
		gateway:          gateway,
		gatewayTimeout:   gatewayTimeout,
		gatewayTestMode:  gatewayTestMode,
		logger:           logger,
		now:              time.Now,
	}
}

// CreateSubscription converts a plan selection into a persisted
// subscription and, for paid plans, a checkout preference.
//
// The subscription write (including superseding any live subscription the
// user holds) commits before the gateway is called, and a gateway failure
// never rolls it back: the record stays in past_due without a payment
// link, and the client asks for a new link by re-requesting.
func (s *SubscriptionService) CreateSubscription(ctx context.Context, userID int64, req *subscription.CreateSubscriptionRequest) (*subscription.Subscription, *subscription.PaymentInfo, error) {
	p, err := s.planCatalog.GetActivePlan(ctx, req.PlanID)
	if err != nil {
		return nil, nil, err
	}

	// Some plans are restricted to a user role (consultant tiers).
	if p.Role.Valid && p.Role.String != "" {
		u, err := s.userRepo.FindByID(ctx, userID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load user: %w", err)
		}
		if u.Role != p.Role.String {
			return nil, nil, xerrors.Wrap(xerrors.ErrForbidden, fmt.Sprintf("plan %s is restricted to role %s", p.Code, p.Role.String))
		}
	}

	period, err := domainplan.ParseBillingPeriod(req.BillingPeriod)
	if err != nil {
		return nil, nil, xerrors.Wrap(xerrors.ErrInvalidInput, err.Error())
	}

	priceCents := s.planCatalog.ResolvePrice(p, period)
	now := s.now()
	start, end := billing.ComputePeriod(now, period)

	// Free plans need no payment step and are entitled immediately; paid
	// plans wait in past_due for the (external) payment confirmation.
	status := subscription.StatusPastDue
	if priceCents == 0 {
		status = subscription.StatusActive
	}

	sub := &subscription.Subscription{
		Reference:          ulid.Make().String(),
		UserID:             userID,
		PlanID:             p.ID,
		Status:             status,
		StartedAt:          now,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   end,
	}

	if err := s.createWithRetry(ctx, sub); err != nil {
		return nil, nil, err
	}

	s.logger.Info("subscription created",
		zap.Int64("subscription_id", sub.ID),
		zap.String("subscription_reference", sub.Reference),
		zap.Int64("user_id", userID),
		zap.Int64("plan_id", p.ID),
		zap.String("billing_period", string(period)),
		zap.Int64("price_cents", priceCents),
		zap.String("status", string(sub.Status)),
	)

	if priceCents == 0 {
		return sub, nil, nil
	}

	payer, err := s.resolvePayer(ctx, userID, req)
	if err != nil {
		// Profile lookup failing only degrades the payer block.
		s.logger.Warn("failed to resolve billing contact", zap.Int64("user_id", userID), zap.Error(err))
		payer = payment.Payer{}
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	pref, err := s.gateway.CreateCheckout(gwCtx, sub, p, period, priceCents, payer)
	if err != nil {
		// Deliberate partial-failure policy: the subscription row is kept
		// and the response simply has no payment block.
		s.logger.Warn("checkout preference creation failed, subscription kept without payment link",
			zap.Int64("subscription_id", sub.ID),
			zap.Error(err),
		)
		return sub, nil, nil
	}

	if err := s.subscriptionRepo.SetPaymentPreference(ctx, sub.ID, pref.ID); err != nil {
		s.logger.Warn("failed to attach payment preference to subscription",
			zap.Int64("subscription_id", sub.ID),
			zap.String("preference_id", pref.ID),
			zap.Error(err),
		)
	} else {
		sub.Metadata = &subscription.Metadata{PaymentPreferenceID: pref.ID}
	}

	return sub, &subscription.PaymentInfo{
		PreferenceID: pref.ID,
		CheckoutURL:  pref.CheckoutURL(s.gatewayTestMode),
	}, nil
}

// createWithRetry retries exactly once on the unique-violation conflict a
// concurrent create for the same user can produce; the retry re-runs the
// supersede+insert against the now-committed winner.
func (s *SubscriptionService) createWithRetry(ctx context.Context, sub *subscription.Subscription) error {
	err := s.subscriptionRepo.CreateReplacingLive(ctx, sub)
	if err == nil {
		return nil
	}
	if !xerrors.Is(err, xerrors.ErrConflict) {
		return fmt.Errorf("failed to create subscription: %w", err)
	}

	s.logger.Warn("concurrent subscription creation detected, retrying",
		zap.Int64("user_id", sub.UserID),
	)

	if err := s.subscriptionRepo.CreateReplacingLive(ctx, sub); err != nil {
		if xerrors.Is(err, xerrors.ErrConflict) {
			return err
		}
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

// CancelSubscription cancels the user's active subscription.
func (s *SubscriptionService) CancelSubscription(ctx context.Context, userID int64) (*subscription.Subscription, error) {
	sub, err := s.subscriptionRepo.FindActiveByUser(ctx, userID)
	if err != nil {
		if xerrors.Is(err, xerrors.ErrNotFound) {
			return nil, ErrNoActiveSubscription
		}
		return nil, fmt.Errorf("failed to load active subscription: %w", err)
	}

	if !subscription.CanTransition(sub.Status, subscription.StatusCanceled) {
		return nil, ErrNoActiveSubscription
	}

	now := s.now()
	if err := s.subscriptionRepo.Cancel(ctx, sub.ID, now); err != nil {
		if xerrors.Is(err, xerrors.ErrNotFound) {
			return nil, ErrNoActiveSubscription
		}
		return nil, fmt.Errorf("failed to cancel subscription: %w", err)
	}

	sub.Status = subscription.StatusCanceled
	sub.CanceledAt = sql.NullTime{Time: now, Valid: true}

	s.logger.Info("subscription cancelled",
		zap.Int64("subscription_id", sub.ID),
		zap.Int64("user_id", userID),
	)

	return sub, nil
}

// GetCurrentSubscription returns the user's most recent subscription,
// whatever its status, or nil when the user never subscribed. Callers tell
// "no subscription" apart from "canceled subscription" by the status.
func (s *SubscriptionService) GetCurrentSubscription(ctx context.Context, userID int64) (*subscription.Subscription, error) {
	sub, err := s.subscriptionRepo.FindLatestByUser(ctx, userID)
	if err != nil {
		if xerrors.Is(err, xerrors.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load current subscription: %w", err)
	}
	return sub, nil
}

// GetHistory returns the user's subscriptions newest first.
func (s *SubscriptionService) GetHistory(ctx context.Context, userID int64, page, pageSize int) (*subscription.HistoryResponse, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	items, total, err := s.subscriptionRepo.List(ctx, userID, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}

	return &subscription.HistoryResponse{
		Subscriptions: items,
		Page:          page,
		Limit:         pageSize,
		Total:         total,
		TotalPages:    totalPages,
	}, nil
}

// resolvePayer builds the gateway payer block: the request's billing
// contact when complete, otherwise a minimal profile from the user record
// with no address or tax id.
func (s *SubscriptionService) resolvePayer(ctx context.Context, userID int64, req *subscription.CreateSubscriptionRequest) (payment.Payer, error) {
	var contact *subscription.BillingContact
	if req.Payment != nil {
		contact = req.Payment.BillingContact
	}

	if contact.IsComplete() {
		return payment.Payer{
			Name:    contact.Name,
			Email:   contact.Email,
			Phone:   contact.Phone,
			TaxID:   contact.TaxID,
			Address: contact.Address,
		}, nil
	}

	u, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return payment.Payer{}, err
	}

	return payment.Payer{Name: u.Name, Email: u.Email}, nil
}
