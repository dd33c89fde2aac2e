// internal/domain/subscription/dto.go
package subscription

// BillingAddress is the postal address part of a billing contact.
type BillingAddress struct {
	Street  string `json:"street"`
	Number  string `json:"number"`
	ZipCode string `json:"zipCode"`
	City    string `json:"city"`
}

// BillingContact is supplied per purchase attempt and forwarded to the
// payment gateway. It is never persisted on its own; when name/email are
// missing the user's stored profile is used instead.
type BillingContact struct {
	Name    string          `json:"name"`
	Email   string          `json:"email"`
	Phone   string          `json:"phone"`
	TaxID   string          `json:"taxId"`
	Address *BillingAddress `json:"address,omitempty"`
}

// IsComplete reports whether the contact can be sent to the gateway as a
// full payer profile. Anything less falls back to a minimal profile built
// from the user's name and email.
func (c *BillingContact) IsComplete() bool {
	return c != nil && c.Name != "" && c.Email != ""
}

// PaymentOptions is the optional payment block of a create request.
type PaymentOptions struct {
	BillingContact *BillingContact `json:"billingContact"`
}

type CreateSubscriptionRequest struct {
	PlanID        int64           `json:"planId" binding:"required"`
	BillingPeriod string          `json:"billingPeriod" binding:"omitempty,oneof=monthly annual"`
	Payment       *PaymentOptions `json:"payment"`
}

// PaymentInfo is the payment block of a create response. It is omitted
// entirely when the plan is free or the gateway call failed.
type PaymentInfo struct {
	PreferenceID string `json:"preferenceId"`
	CheckoutURL  string `json:"checkoutUrl"`
}

type HistoryResponse struct {
	Subscriptions []Subscription `json:"subscriptions"`
	Page          int            `json:"page"`
	Limit         int            `json:"limit"`
	Total         int64          `json:"total"`
	TotalPages    int            `json:"totalPages"`
}
