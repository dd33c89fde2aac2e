// internal/service/payment/mercadopago.go
package payment

import (
	"context"
	"fmt"
	"strconv"

	domainplan "finboard-service/internal/domain/plan"
	"finboard-service/internal/domain/subscription"

	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/preference"
	"go.uber.org/zap"
)

// preferenceAPI is the slice of the MercadoPago SDK this adapter uses.
type preferenceAPI interface {
	Create(ctx context.Context, request preference.Request) (*preference.Response, error)
}

type MercadoPagoConfig struct {
	AccessToken string
	Currency    string
	// BackURL is where the gateway sends the buyer after checkout.
	BackURL string
}

// MercadoPagoGateway implements Gateway on top of MercadoPago checkout
// preferences.
type MercadoPagoGateway struct {
	client   preferenceAPI
	currency string
	backURL  string
	logger   *zap.Logger
}

func NewMercadoPagoGateway(cfg MercadoPagoConfig, logger *zap.Logger) (*MercadoPagoGateway, error) {
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("mercadopago access token is required")
	}

	sdkCfg, err := config.New(cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create mercadopago client: %w", err)
	}

	return &MercadoPagoGateway{
		client:   preference.NewClient(sdkCfg),
		currency: cfg.Currency,
		backURL:  cfg.BackURL,
		logger:   logger,
	}, nil
}

// CreateCheckout builds a single-line-item checkout preference for the
// subscription and submits it to MercadoPago.
func (g *MercadoPagoGateway) CreateCheckout(ctx context.Context, sub *subscription.Subscription, p *domainplan.Plan, period domainplan.BillingPeriod, priceCents int64, payer Payer) (*Preference, error) {
	req := g.buildRequest(sub, p, period, priceCents, payer)

	resp, err := g.client.Create(ctx, req)
	if err != nil {
		return nil, &GatewayError{Err: err}
	}
	if resp == nil || resp.ID == "" {
		return nil, &GatewayError{Err: fmt.Errorf("gateway returned no preference id")}
	}

	g.logger.Info("checkout preference created",
		zap.String("preference_id", resp.ID),
		zap.String("subscription_reference", sub.Reference),
	)

	return &Preference{
		ID:               resp.ID,
		InitPoint:        resp.InitPoint,
		SandboxInitPoint: resp.SandboxInitPoint,
	}, nil
}

func (g *MercadoPagoGateway) buildRequest(sub *subscription.Subscription, p *domainplan.Plan, period domainplan.BillingPeriod, priceCents int64, payer Payer) preference.Request {
	req := preference.Request{
		Items: []preference.ItemRequest{
			{
				Title:      fmt.Sprintf("%s (%s)", p.Name, period.Label()),
				Quantity:   1,
				UnitPrice:  float64(priceCents) / 100,
				CurrencyID: g.currency,
			},
		},
		// The subscription reference is the correlation key an external
		// confirmation event carries back.
		ExternalReference: sub.Reference,
		Metadata: map[string]any{
			"subscription_id": strconv.FormatInt(sub.ID, 10),
			"user_id":         strconv.FormatInt(sub.UserID, 10),
			"plan_id":         strconv.FormatInt(p.ID, 10),
			"billing_period":  string(period),
		},
		Payer: buildPayer(payer),
	}

	if g.backURL != "" {
		req.BackURLs = &preference.BackURLsRequest{
			Success: g.backURL,
			Pending: g.backURL,
			Failure: g.backURL,
		}
	}

	return req
}

func buildPayer(payer Payer) *preference.PayerRequest {
	pr := &preference.PayerRequest{
		Name:  payer.Name,
		Email: payer.Email,
	}

	if payer.Phone != "" {
		pr.Phone = &preference.PhoneRequest{Number: payer.Phone}
	}
	if payer.TaxID != "" {
		pr.Identification = &preference.IdentificationRequest{Number: payer.TaxID}
	}
	if payer.Address != nil {
		pr.Address = &preference.AddressRequest{
			StreetName:   payer.Address.Street,
			StreetNumber: payer.Address.Number,
			ZipCode:      payer.Address.ZipCode,
		}
	}

	return pr
}
