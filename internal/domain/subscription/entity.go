// internal/domain/subscription/entity.go
package subscription

import (
	"database/sql"
	"time"
)

type Status string

const (
	// StatusPastDue marks a purchased subscription awaiting payment
	// confirmation from the gateway.
	StatusPastDue Status = "past_due"
	// StatusActive marks a paid or free subscription that is in force.
	StatusActive Status = "active"
	// StatusTrialing marks a subscription in force under a trial.
	StatusTrialing Status = "trialing"
	// StatusCanceled is terminal; a canceled record never changes again.
	StatusCanceled Status = "canceled"
)

// LiveStatuses are the statuses that count against the one-live-subscription
// rule. A user may hold at most one subscription in any of these at a time.
var LiveStatuses = []Status{StatusActive, StatusTrialing, StatusPastDue}

// IsLive reports whether the status counts as a live subscription.
func (s Status) IsLive() bool {
	for _, ls := range LiveStatuses {
		if s == ls {
			return true
		}
	}
	return false
}

// AllowedTransitions describes the subscription state machine. The
// past_due -> active edge is driven by an external payment-confirmation
// event this service does not receive yet; until that exists a past_due
// subscription only leaves the state by being superseded or canceled.
var AllowedTransitions = map[Status][]Status{
	StatusPastDue:  {StatusActive, StatusCanceled},
	StatusActive:   {StatusCanceled},
	StatusTrialing: {StatusCanceled},
	StatusCanceled: {},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, next := range AllowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Metadata is the typed payload stored in the subscriptions.metadata JSONB
// column. Its single field is the checkout preference id assigned by the
// payment gateway, kept so an external confirmation event can be correlated
// back to this record.
type Metadata struct {
	PaymentPreferenceID string `json:"payment_preference_id,omitempty"`
}

type Subscription struct {
	ID        int64  `json:"id" db:"id"`
	Reference string `json:"reference" db:"reference"`

	UserID int64 `json:"user_id" db:"user_id"`
	PlanID int64 `json:"plan_id" db:"plan_id"`

	Status Status `json:"status" db:"status"`

	StartedAt          time.Time    `json:"started_at" db:"started_at"`
	CurrentPeriodStart time.Time    `json:"current_period_start" db:"current_period_start"`
	CurrentPeriodEnd   time.Time    `json:"current_period_end" db:"current_period_end"`
	CanceledAt         sql.NullTime `json:"canceled_at,omitempty" db:"canceled_at"`

	Metadata *Metadata `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
