// internal/domain/plan/entity.go
package plan

import (
	"database/sql"
	"fmt"
	"time"
)

// BillingPeriod is the cadence a subscription bills on.
type BillingPeriod string

const (
	BillingMonthly BillingPeriod = "monthly"
	BillingAnnual  BillingPeriod = "annual"
)

// ParseBillingPeriod validates a requested cadence. The empty string means
// the caller did not choose one and defaults to monthly.
func ParseBillingPeriod(s string) (BillingPeriod, error) {
	switch s {
	case "", string(BillingMonthly):
		return BillingMonthly, nil
	case string(BillingAnnual):
		return BillingAnnual, nil
	default:
		return "", fmt.Errorf("invalid billing period: %q", s)
	}
}

// Label returns the human-readable form used on invoices and checkout
// line items.
func (p BillingPeriod) Label() string {
	if p == BillingAnnual {
		return "Annual"
	}
	return "Monthly"
}

// Plan is a subscribable product tier. Prices are integer cents.
//
// MonthlyPriceCents and AnnualPriceCents are nullable: plans created
// before cadence pricing carry only the flat PriceCents, and billing
// falls back to it for any cadence without an explicit price.
type Plan struct {
	ID                int64          `json:"id"`
	Code              string         `json:"code"`
	Name              string         `json:"name"`
	PriceCents        int64          `json:"price_cents"`
	MonthlyPriceCents sql.NullInt64  `json:"monthly_price_cents"`
	AnnualPriceCents  sql.NullInt64  `json:"annual_price_cents"`
	IsActive          bool           `json:"is_active"`
	ConnectionLimit   sql.NullInt32  `json:"connection_limit"`
	Role              sql.NullString `json:"role"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}
