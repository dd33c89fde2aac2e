package billing_test

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finboard-service/internal/billing"
	"finboard-service/internal/domain/plan"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 10, 30, 0, 0, time.UTC)
}

func TestComputePeriod(t *testing.T) {
	tests := []struct {
		name    string
		now     time.Time
		period  plan.BillingPeriod
		wantEnd time.Time
	}{
		{
			name:    "monthly mid-month",
			now:     date(2026, time.January, 15),
			period:  plan.BillingMonthly,
			wantEnd: date(2026, time.February, 15),
		},
		{
			name:    "monthly from the 31st rolls over february",
			now:     date(2026, time.January, 31),
			period:  plan.BillingMonthly,
			wantEnd: date(2026, time.March, 3),
		},
		{
			name:    "monthly from aug 31 rolls into october",
			now:     date(2026, time.August, 31),
			period:  plan.BillingMonthly,
			wantEnd: date(2026, time.October, 1),
		},
		{
			name:    "annual",
			now:     date(2026, time.June, 1),
			period:  plan.BillingAnnual,
			wantEnd: date(2027, time.June, 1),
		},
		{
			name:    "annual from leap day",
			now:     date(2024, time.February, 29),
			period:  plan.BillingAnnual,
			wantEnd: date(2025, time.March, 1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := billing.ComputePeriod(tt.now, tt.period)
			assert.Equal(t, tt.now, start)
			assert.Equal(t, tt.wantEnd, end)
			assert.True(t, end.After(start))
		})
	}
}

func TestResolvePrice(t *testing.T) {
	newPlan := func(flat int64, monthly, annual *int64) *plan.Plan {
		p := &plan.Plan{PriceCents: flat}
		if monthly != nil {
			p.MonthlyPriceCents = sql.NullInt64{Int64: *monthly, Valid: true}
		}
		if annual != nil {
			p.AnnualPriceCents = sql.NullInt64{Int64: *annual, Valid: true}
		}
		return p
	}
	cents := func(v int64) *int64 { return &v }

	tests := []struct {
		name   string
		plan   *plan.Plan
		period plan.BillingPeriod
		want   int64
	}{
		{
			name:   "monthly falls back to flat price when unset",
			plan:   newPlan(1000, nil, cents(9000)),
			period: plan.BillingMonthly,
			want:   1000,
		},
		{
			name:   "annual uses explicit price",
			plan:   newPlan(1000, nil, cents(9000)),
			period: plan.BillingAnnual,
			want:   9000,
		},
		{
			name:   "legacy plan bills flat on both cadences",
			plan:   newPlan(2500, nil, nil),
			period: plan.BillingAnnual,
			want:   2500,
		},
		{
			name:   "monthly uses explicit price",
			plan:   newPlan(1000, cents(1200), nil),
			period: plan.BillingMonthly,
			want:   1200,
		},
		{
			name:   "explicit zero price is honored, not treated as unset",
			plan:   newPlan(1000, cents(0), nil),
			period: plan.BillingMonthly,
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, billing.ResolvePrice(tt.plan, tt.period))
		})
	}
}

func TestParseBillingPeriod(t *testing.T) {
	p, err := plan.ParseBillingPeriod("")
	require.NoError(t, err)
	assert.Equal(t, plan.BillingMonthly, p)

	p, err = plan.ParseBillingPeriod("annual")
	require.NoError(t, err)
	assert.Equal(t, plan.BillingAnnual, p)

	_, err = plan.ParseBillingPeriod("weekly")
	assert.Error(t, err)
}
