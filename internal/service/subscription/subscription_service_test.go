package subscription

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"finboard-service/internal/billing"
	domainplan "finboard-service/internal/domain/plan"
	domain "finboard-service/internal/domain/subscription"
	"finboard-service/internal/domain/user"
	xerrors "finboard-service/internal/pkg/errors"
	"finboard-service/internal/service/payment"
)

// fakeStore is an in-memory Store that mirrors the repository's
// supersession semantics: inserting a subscription cancels any live rows
// the user already holds.
type fakeStore struct {
	subs   []*domain.Subscription
	nextID int64

	// conflictsLeft makes the next N CreateReplacingLive calls fail with
	// ErrConflict, simulating a concurrent creator winning the insert.
	conflictsLeft int
	createCalls   int
	prefErr       error
}

func newFakeStore() *fakeStore {
	return &fakeStore{nextID: 1}
}

func (f *fakeStore) CreateReplacingLive(ctx context.Context, sub *domain.Subscription) error {
	f.createCalls++
	if f.conflictsLeft > 0 {
		f.conflictsLeft--
		return xerrors.ErrConflict
	}

	for _, existing := range f.subs {
		if existing.UserID == sub.UserID && existing.Status.IsLive() {
			existing.Status = domain.StatusCanceled
			existing.CanceledAt = sql.NullTime{Time: sub.StartedAt, Valid: true}
		}
	}

	sub.ID = f.nextID
	f.nextID++
	sub.CreatedAt = sub.StartedAt
	f.subs = append(f.subs, sub)
	return nil
}

func (f *fakeStore) FindActiveByUser(ctx context.Context, userID int64) (*domain.Subscription, error) {
	for _, s := range f.subs {
		if s.UserID == userID && s.Status == domain.StatusActive {
			return s, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (f *fakeStore) FindLatestByUser(ctx context.Context, userID int64) (*domain.Subscription, error) {
	var latest *domain.Subscription
	for _, s := range f.subs {
		if s.UserID != userID {
			continue
		}
		if latest == nil || s.ID > latest.ID {
			latest = s
		}
	}
	if latest == nil {
		return nil, xerrors.ErrNotFound
	}
	return latest, nil
}

func (f *fakeStore) List(ctx context.Context, userID int64, page, pageSize int) ([]domain.Subscription, int64, error) {
	var all []domain.Subscription
	for _, s := range f.subs {
		if s.UserID == userID {
			all = append(all, *s)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	total := int64(len(all))
	offset := (page - 1) * pageSize
	if offset >= len(all) {
		return []domain.Subscription{}, total, nil
	}
	end := offset + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (f *fakeStore) Cancel(ctx context.Context, id int64, at time.Time) error {
	for _, s := range f.subs {
		if s.ID == id && s.Status != domain.StatusCanceled {
			s.Status = domain.StatusCanceled
			s.CanceledAt = sql.NullTime{Time: at, Valid: true}
			return nil
		}
	}
	return xerrors.ErrNotFound
}

func (f *fakeStore) SetPaymentPreference(ctx context.Context, id int64, preferenceID string) error {
	if f.prefErr != nil {
		return f.prefErr
	}
	for _, s := range f.subs {
		if s.ID == id {
			s.Metadata = &domain.Metadata{PaymentPreferenceID: preferenceID}
			return nil
		}
	}
	return xerrors.ErrNotFound
}

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) GetActivePlan(ctx context.Context, planID int64) (*domainplan.Plan, error) {
	args := m.Called(ctx, planID)
	if p := args.Get(0); p != nil {
		return p.(*domainplan.Plan), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCatalog) ResolvePrice(p *domainplan.Plan, period domainplan.BillingPeriod) int64 {
	return billing.ResolvePrice(p, period)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateCheckout(ctx context.Context, sub *domain.Subscription, p *domainplan.Plan, period domainplan.BillingPeriod, priceCents int64, payer payment.Payer) (*payment.Preference, error) {
	args := m.Called(ctx, sub, p, period, priceCents, payer)
	if pref := args.Get(0); pref != nil {
		return pref.(*payment.Preference), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockUsers struct {
	mock.Mock
}

func (m *mockUsers) FindByID(ctx context.Context, id int64) (*user.User, error) {
	args := m.Called(ctx, id)
	if u := args.Get(0); u != nil {
		return u.(*user.User), args.Error(1)
	}
	return nil, args.Error(1)
}

var fixedNow = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc     *SubscriptionService
	store   *fakeStore
	catalog *mockCatalog
	gateway *mockGateway
	users   *mockUsers
}

func newFixture(t *testing.T, testMode bool) *fixture {
	t.Helper()

	f := &fixture{
		store:   newFakeStore(),
		catalog: &mockCatalog{},
		gateway: &mockGateway{},
		users:   &mockUsers{},
	}
	f.svc = NewSubscriptionService(
		f.store, f.catalog, f.users, f.gateway,
		5*time.Second, testMode, zap.NewNop(),
	)
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

func paidPlan() *domainplan.Plan {
	return &domainplan.Plan{
		ID:                7,
		Code:              "pro",
		Name:              "Pro",
		PriceCents:        4990,
		MonthlyPriceCents: sql.NullInt64{Int64: 4990, Valid: true},
		AnnualPriceCents:  sql.NullInt64{Int64: 49900, Valid: true},
		IsActive:          true,
	}
}

func freePlan() *domainplan.Plan {
	return &domainplan.Plan{ID: 1, Code: "free", Name: "Free", PriceCents: 0, IsActive: true}
}

func TestCreateSubscription_FreePlanActivatesWithoutGateway(t *testing.T) {
	f := newFixture(t, false)
	f.catalog.On("GetActivePlan", mock.Anything, int64(1)).Return(freePlan(), nil)

	sub, pay, err := f.svc.CreateSubscription(context.Background(), 42, &domain.CreateSubscriptionRequest{PlanID: 1})
	require.NoError(t, err)
	require.NotNil(t, sub)

	assert.Equal(t, domain.StatusActive, sub.Status)
	assert.Nil(t, pay)
	assert.NotEmpty(t, sub.Reference)
	assert.Equal(t, fixedNow, sub.CurrentPeriodStart)
	assert.Equal(t, fixedNow.AddDate(0, 1, 0), sub.CurrentPeriodEnd)

	f.gateway.AssertNotCalled(t, "CreateCheckout")
	f.users.AssertNotCalled(t, "FindByID")
}

func TestCreateSubscription_PaidPlanReturnsCheckout(t *testing.T) {
	f := newFixture(t, false)
	f.catalog.On("GetActivePlan", mock.Anything, int64(7)).Return(paidPlan(), nil)
	f.users.On("FindByID", mock.Anything, int64(42)).
		Return(&user.User{ID: 42, Name: "Ada", Email: "ada@example.com"}, nil)
	f.gateway.On("CreateCheckout", mock.Anything, mock.Anything, mock.Anything,
		domainplan.BillingAnnual, int64(49900), mock.Anything).
		Return(&payment.Preference{
			ID:               "pref-123",
			InitPoint:        "https://pay.example.com/go",
			SandboxInitPoint: "https://sandbox.example.com/go",
		}, nil)

	sub, pay, err := f.svc.CreateSubscription(context.Background(), 42, &domain.CreateSubscriptionRequest{
		PlanID:        7,
		BillingPeriod: "annual",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPastDue, sub.Status)
	assert.Equal(t, fixedNow.AddDate(1, 0, 0), sub.CurrentPeriodEnd)
	require.NotNil(t, pay)
	assert.Equal(t, "pref-123", pay.PreferenceID)
	assert.Equal(t, "https://pay.example.com/go", pay.CheckoutURL)
	require.NotNil(t, sub.Metadata)
	assert.Equal(t, "pref-123", sub.Metadata.PaymentPreferenceID)
}

func TestCreateSubscription_TestModePrefersSandboxURL(t *testing.T) {
	f := newFixture(t, true)
	f.catalog.On("GetActivePlan", mock.Anything, int64(7)).Return(paidPlan(), nil)
	f.users.On("FindByID", mock.Anything, int64(42)).
		Return(&user.User{ID: 42, Name: "Ada", Email: "ada@example.com"}, nil)
	f.gateway.On("CreateCheckout", mock.Anything, mock.Anything, mock.Anything,
		mock.Anything, mock.Anything, mock.Anything).
		Return(&payment.Preference{
			ID:               "pref-123",
			InitPoint:        "https://pay.example.com/go",
			SandboxInitPoint: "https://sandbox.example.com/go",
		}, nil)

	_, pay, err := f.svc.CreateSubscription(context.Background(), 42, &domain.CreateSubscriptionRequest{PlanID: 7})
	require.NoError(t, err)
	require.NotNil(t, pay)
	assert.Equal(t, "https://sandbox.example.com/go", pay.CheckoutURL)
}

func TestCreateSubscription_SupersedesLiveSubscription(t *testing.T) {
	f := newFixture(t, false)
	f.catalog.On("GetActivePlan", mock.Anything, int64(1)).Return(freePlan(), nil)

	first, _, err := f.svc.CreateSubscription(context.Background(), 42, &domain.CreateSubscriptionRequest{PlanID: 1})
	require.NoError(t, err)

	second, _, err := f.svc.CreateSubscription(context.Background(), 42, &domain.CreateSubscriptionRequest{PlanID: 1})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCanceled, first.Status)
	assert.True(t, first.CanceledAt.Valid)
	assert.Equal(t, domain.StatusActive, second.Status)

	current, err := f.svc.GetCurrentSubscription(context.Background(), 42)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, second.ID, current.ID)
}

func TestCreateSubscription_GatewayFailureKeepsSubscription(t *testing.T) {
	f := newFixture(t, false)
	f.catalog.On("GetActivePlan", mock.Anything, int64(7)).Return(paidPlan(), nil)
	f.users.On("FindByID", mock.Anything, int64(42)).
		Return(&user.User{ID: 42, Name: "Ada", Email: "ada@example.com"}, nil)
	f.gateway.On("CreateCheckout", mock.Anything, mock.Anything, mock.Anything,
		mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &payment.GatewayError{Err: errors.New("connection refused")})

	sub, pay, err := f.svc.CreateSubscription(context.Background(), 42, &domain.CreateSubscriptionRequest{PlanID: 7})
	require.NoError(t, err)
	require.NotNil(t, sub)

	assert.Equal(t, domain.StatusPastDue, sub.Status)
	assert.Nil(t, pay)
	assert.Nil(t, sub.Metadata)

	// The row survives and is the user's current subscription.
	current, err := f.svc.GetCurrentSubscription(context.Background(), 42)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, sub.ID, current.ID)
}

func TestCreateSubscription_PreferencePersistFailureStillReturnsCheckout(t *testing.T) {
	f := newFixture(t, false)
	f.store.prefErr = errors.New("connection reset")
	f.catalog.On("GetActivePlan", mock.Anything, int64(7)).Return(paidPlan(), nil)
	f.users.On("FindByID", mock.Anything, int64(42)).
		Return(&user.User{ID: 42, Name: "Ada", Email: "ada@example.com"}, nil)
	f.gateway.On("CreateCheckout", mock.Anything, mock.Anything, mock.Anything,
		mock.Anything, mock.Anything, mock.Anything).
		Return(&payment.Preference{ID: "pref-9", InitPoint: "https://pay.example.com"}, nil)

	sub, pay, err := f.svc.CreateSubscription(context.Background(), 42, &domain.CreateSubscriptionRequest{PlanID: 7})
	require.NoError(t, err)
	require.NotNil(t, pay)
	assert.Equal(t, "pref-9", pay.PreferenceID)
	// The preference id could not be attached to the row.
	assert.Nil(t, sub.Metadata)
}

func TestCreateSubscription_BillingContactForwardedWhenComplete(t *testing.T) {
	f := newFixture(t, false)
	f.catalog.On("GetActivePlan", mock.Anything, int64(7)).Return(paidPlan(), nil)

	var gotPayer payment.Payer
	f.gateway.On("CreateCheckout", mock.Anything, mock.Anything, mock.Anything,
		mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			gotPayer = args.Get(5).(payment.Payer)
		}).
		Return(&payment.Preference{ID: "pref-1", InitPoint: "https://pay.example.com"}, nil)

	_, _, err := f.svc.CreateSubscription(context.Background(), 42, &domain.CreateSubscriptionRequest{
		PlanID: 7,
		Payment: &domain.PaymentOptions{
			BillingContact: &domain.BillingContact{
				Name:  "Grace Hopper",
				Email: "grace@example.com",
				TaxID: "12345678",
			},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Grace Hopper", gotPayer.Name)
	assert.Equal(t, "grace@example.com", gotPayer.Email)
	assert.Equal(t, "12345678", gotPayer.TaxID)
	// A complete contact never touches the profile store.
	f.users.AssertNotCalled(t, "FindByID")
}

func TestCreateSubscription_IncompleteContactFallsBackToProfile(t *testing.T) {
	f := newFixture(t, false)
	f.catalog.On("GetActivePlan", mock.Anything, int64(7)).Return(paidPlan(), nil)
	f.users.On("FindByID", mock.Anything, int64(42)).
		Return(&user.User{ID: 42, Name: "Ada", Email: "ada@example.com"}, nil)

	var gotPayer payment.Payer
	f.gateway.On("CreateCheckout", mock.Anything, mock.Anything, mock.Anything,
		mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			gotPayer = args.Get(5).(payment.Payer)
		}).
		Return(&payment.Preference{ID: "pref-1", InitPoint: "https://pay.example.com"}, nil)

	_, _, err := f.svc.CreateSubscription(context.Background(), 42, &domain.CreateSubscriptionRequest{
		PlanID: 7,
		Payment: &domain.PaymentOptions{
			// Name without email is incomplete.
			BillingContact: &domain.BillingContact{Name: "Grace Hopper"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Ada", gotPayer.Name)
	assert.Equal(t, "ada@example.com", gotPayer.Email)
}

func TestCreateSubscription_ConflictRetriesOnce(t *testing.T) {
	f := newFixture(t, false)
	f.store.conflictsLeft = 1
	f.catalog.On("GetActivePlan", mock.Anything, int64(1)).Return(freePlan(), nil)

	sub, _, err := f.svc.CreateSubscription(context.Background(), 42, &domain.CreateSubscriptionRequest{PlanID: 1})
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, 2, f.store.createCalls)
}

func TestCreateSubscription_PersistentConflictSurfaces(t *testing.T) {
	f := newFixture(t, false)
	f.store.conflictsLeft = 2
	f.catalog.On("GetActivePlan", mock.Anything, int64(1)).Return(freePlan(), nil)

	_, _, err := f.svc.CreateSubscription(context.Background(), 42, &domain.CreateSubscriptionRequest{PlanID: 1})
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, xerrors.ErrConflict))
	assert.Equal(t, 2, f.store.createCalls)
}

func TestCreateSubscription_RoleRestrictedPlan(t *testing.T) {
	restricted := freePlan()
	restricted.Role = sql.NullString{String: user.RoleConsultant, Valid: true}

	t.Run("wrong role is rejected", func(t *testing.T) {
		f := newFixture(t, false)
		f.catalog.On("GetActivePlan", mock.Anything, int64(1)).Return(restricted, nil)
		f.users.On("FindByID", mock.Anything, int64(42)).
			Return(&user.User{ID: 42, Role: user.RoleCustomer}, nil)

		_, _, err := f.svc.CreateSubscription(context.Background(), 42, &domain.CreateSubscriptionRequest{PlanID: 1})
		require.Error(t, err)
		assert.True(t, xerrors.Is(err, xerrors.ErrForbidden))
		assert.Equal(t, 0, f.store.createCalls)
	})

	t.Run("matching role subscribes", func(t *testing.T) {
		f := newFixture(t, false)
		f.catalog.On("GetActivePlan", mock.Anything, int64(1)).Return(restricted, nil)
		f.users.On("FindByID", mock.Anything, int64(42)).
			Return(&user.User{ID: 42, Role: user.RoleConsultant}, nil)

		sub, _, err := f.svc.CreateSubscription(context.Background(), 42, &domain.CreateSubscriptionRequest{PlanID: 1})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusActive, sub.Status)
	})
}

func TestCreateSubscription_InvalidBillingPeriod(t *testing.T) {
	f := newFixture(t, false)
	f.catalog.On("GetActivePlan", mock.Anything, int64(1)).Return(freePlan(), nil)

	_, _, err := f.svc.CreateSubscription(context.Background(), 42, &domain.CreateSubscriptionRequest{
		PlanID:        1,
		BillingPeriod: "weekly",
	})
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, xerrors.ErrInvalidInput))
	assert.Equal(t, 0, f.store.createCalls)
}

func TestCancelSubscription(t *testing.T) {
	f := newFixture(t, false)
	f.catalog.On("GetActivePlan", mock.Anything, int64(1)).Return(freePlan(), nil)

	created, _, err := f.svc.CreateSubscription(context.Background(), 42, &domain.CreateSubscriptionRequest{PlanID: 1})
	require.NoError(t, err)

	canceled, err := f.svc.CancelSubscription(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, created.ID, canceled.ID)
	assert.Equal(t, domain.StatusCanceled, canceled.Status)
	assert.True(t, canceled.CanceledAt.Valid)
	assert.Equal(t, fixedNow, canceled.CanceledAt.Time)

	// Cancel is not idempotent: a second cancel finds nothing to cancel.
	_, err = f.svc.CancelSubscription(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNoActiveSubscription)
}

func TestCancelSubscription_NoSubscription(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.svc.CancelSubscription(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNoActiveSubscription)
}

func TestGetCurrentSubscription_NeverSubscribed(t *testing.T) {
	f := newFixture(t, false)

	sub, err := f.svc.GetCurrentSubscription(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, sub)
}

func TestGetHistory(t *testing.T) {
	f := newFixture(t, false)
	f.catalog.On("GetActivePlan", mock.Anything, int64(1)).Return(freePlan(), nil)

	for i := 0; i < 15; i++ {
		_, _, err := f.svc.CreateSubscription(context.Background(), 42, &domain.CreateSubscriptionRequest{PlanID: 1})
		require.NoError(t, err)
	}

	page1, err := f.svc.GetHistory(context.Background(), 42, 1, 10)
	require.NoError(t, err)
	assert.Len(t, page1.Subscriptions, 10)
	assert.Equal(t, int64(15), page1.Total)
	assert.Equal(t, 2, page1.TotalPages)

	page2, err := f.svc.GetHistory(context.Background(), 42, 2, 10)
	require.NoError(t, err)
	assert.Len(t, page2.Subscriptions, 5)
	assert.Equal(t, 2, page2.Page)

	// Newest first: the latest (live) subscription leads page 1.
	assert.Equal(t, domain.StatusActive, page1.Subscriptions[0].Status)

	// Bad inputs are clamped rather than rejected.
	clamped, err := f.svc.GetHistory(context.Background(), 42, 0, -5)
	require.NoError(t, err)
	assert.Equal(t, 1, clamped.Page)
	assert.Equal(t, 20, clamped.Limit)

	// A page past the end is empty but still reports totals.
	empty, err := f.svc.GetHistory(context.Background(), 42, 5, 10)
	require.NoError(t, err)
	assert.Len(t, empty.Subscriptions, 0)
	assert.Equal(t, int64(15), empty.Total)
}

func TestGetHistory_EmptyHistory(t *testing.T) {
	f := newFixture(t, false)

	resp, err := f.svc.GetHistory(context.Background(), 42, 1, 20)
	require.NoError(t, err)
	assert.Len(t, resp.Subscriptions, 0)
	assert.Equal(t, int64(0), resp.Total)
	assert.Equal(t, 0, resp.TotalPages)
}
