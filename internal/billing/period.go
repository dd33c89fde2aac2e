// internal/billing/period.go
package billing

import (
	"time"

	"finboard-service/internal/domain/plan"
)

// ComputePeriod returns the billing period starting at now. The end is one
// calendar month or one calendar year later, using Go's calendar arithmetic,
// so a period starting on the 31st rolls over the way calendars do instead
// of adding a fixed number of seconds.
func ComputePeriod(now time.Time, period plan.BillingPeriod) (start, end time.Time) {
	start = now
	switch period {
	case plan.BillingAnnual:
		end = now.AddDate(1, 0, 0)
	default:
		end = now.AddDate(0, 1, 0)
	}
	return start, end
}

// ResolvePrice returns the price in cents for the requested cadence. A
// cadence-specific price wins when present; otherwise the plan's legacy
// flat price applies. The fallback keeps plans that predate cadence
// pricing billing at their original amount and must not be changed.
func ResolvePrice(p *plan.Plan, period plan.BillingPeriod) int64 {
	switch period {
	case plan.BillingAnnual:
		if p.AnnualPriceCents.Valid {
			return p.AnnualPriceCents.Int64
		}
	default:
		if p.MonthlyPriceCents.Valid {
			return p.MonthlyPriceCents.Int64
		}
	}
	return p.PriceCents
}
