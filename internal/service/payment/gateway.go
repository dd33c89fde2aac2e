// internal/service/payment/gateway.go
package payment

import (
	"context"
	"fmt"

	domainplan "finboard-service/internal/domain/plan"
	"finboard-service/internal/domain/subscription"
)

// GatewayError wraps any failure talking to the external payment gateway:
// network errors, timeouts, rejected requests. Callers treat every variant
// the same way, so a single wrapper type is enough.
type GatewayError struct {
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway error: %v", e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Preference is the gateway's answer to a checkout request: its assigned
// id plus both candidate checkout URLs. Which URL reaches the client is
// the orchestrator's call, driven by the deployment's test-mode flag.
type Preference struct {
	ID               string
	InitPoint        string
	SandboxInitPoint string
}

// CheckoutURL picks the URL for the deployment mode, falling back to the
// other one when the preferred URL is absent.
func (p *Preference) CheckoutURL(testMode bool) string {
	if testMode {
		if p.SandboxInitPoint != "" {
			return p.SandboxInitPoint
		}
		return p.InitPoint
	}
	if p.InitPoint != "" {
		return p.InitPoint
	}
	return p.SandboxInitPoint
}

// Payer is the billing profile handed to the gateway. The gateway accepts
// a minimal profile (name and email only), which is what the fallback path
// produces.
type Payer struct {
	Name    string
	Email   string
	Phone   string
	TaxID   string
	Address *subscription.BillingAddress
}

// Gateway creates checkout preferences at the external payment provider.
type Gateway interface {
	CreateCheckout(ctx context.Context, sub *subscription.Subscription, p *domainplan.Plan, period domainplan.BillingPeriod, priceCents int64, payer Payer) (*Preference, error)
}
