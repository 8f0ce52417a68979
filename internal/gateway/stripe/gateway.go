package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	stripelib "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"github.com/shelter-labs/sponsorship-storage/internal/billing"
	"github.com/shelter-labs/sponsorship-storage/internal/domain"
	"github.com/shelter-labs/sponsorship-storage/internal/metrics"
	"github.com/shelter-labs/sponsorship-storage/internal/subscription"
)

const (
	ProviderName   = "stripe"
	requestTimeout = 30 * time.Second
)

// Gateway manages recurring charges as stripe subscriptions with inline prices.
type Gateway struct {
	api       *client.API
	productID string
}

func NewGateway(key, productID string) (*Gateway, error) {
	if strings.TrimSpace(key) == "" {
		return nil, errors.New("stripe api key is required")
	}
	if strings.TrimSpace(productID) == "" {
		return nil, errors.New("stripe product id is required")
	}

	httpClient := &http.Client{
		Timeout:   requestTimeout,
		Transport: metrics.NewRequestWatcher(ProviderName),
	}

	api := &client.API{}
	api.Init(strings.TrimSpace(key), stripelib.NewBackends(httpClient))

	return &Gateway{
		api:       api,
		productID: strings.TrimSpace(productID),
	}, nil
}

func (g *Gateway) Name() string {
	return ProviderName
}

func (g *Gateway) CreateRecurringCharge(ctx context.Context, req subscription.ChargeRequest) (subscription.ProviderSubscription, error) {
	if strings.TrimSpace(req.CustomerRef) == "" {
		return subscription.ProviderSubscription{}, fmt.Errorf("stripe customer is required: %w", domain.ErrInvalidArgument)
	}

	params := g.subscriptionParams(req)
	params.Context = ctx
	params.SetIdempotencyKey("create-" + req.SubscriptionID.String())

	sub, err := g.api.Subscriptions.New(params)
	if err != nil {
		return subscription.ProviderSubscription{}, fmt.Errorf("create stripe subscription: %w", err)
	}

	res := subscription.ProviderSubscription{ID: sub.ID}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].CurrentPeriodEnd > 0 {
		next := time.Unix(sub.Items.Data[0].CurrentPeriodEnd, 0).UTC()
		res.NextChargeAt = &next
	}

	return res, nil
}

// subscriptionParams describes the recurring charge as a subscription with an inline price.
func (g *Gateway) subscriptionParams(req subscription.ChargeRequest) *stripelib.SubscriptionParams {
	return &stripelib.SubscriptionParams{
		Customer: stripelib.String(req.CustomerRef),
		Items: []*stripelib.SubscriptionItemsParams{
			{
				PriceData: &stripelib.SubscriptionItemPriceDataParams{
					Currency:   stripelib.String(strings.ToLower(req.Currency)),
					Product:    stripelib.String(g.productID),
					UnitAmount: stripelib.Int64(toMinorUnits(req.Amount, req.Currency)),
					Recurring: &stripelib.SubscriptionItemPriceDataRecurringParams{
						Interval: stripelib.String(string(req.Interval)),
					},
				},
			},
		},
		Metadata: chargeMetadata(req),
	}
}

func chargeMetadata(req subscription.ChargeRequest) map[string]string {
	meta := map[string]string{
		billing.MetaSubscriptionID: req.SubscriptionID.String(),
		billing.MetaScopeType:      string(req.ScopeType),
	}
	if req.ScopeID != nil {
		meta[billing.MetaScopeID] = req.ScopeID.String()
	}
	if req.UserID != nil {
		meta[billing.MetaUserID] = req.UserID.String()
	}

	return meta
}

// CancelRecurringCharge cancels immediately. A subscription stripe no longer knows counts as canceled.
func (g *Gateway) CancelRecurringCharge(ctx context.Context, providerSubscriptionID string) error {
	params := &stripelib.SubscriptionCancelParams{}
	params.Context = ctx

	_, err := g.api.Subscriptions.Cancel(providerSubscriptionID, params)
	if err != nil && !isResourceMissing(err) {
		return fmt.Errorf("cancel stripe subscription %s: %w", providerSubscriptionID, err)
	}

	return nil
}

func (g *Gateway) PauseRecurringCharge(ctx context.Context, providerSubscriptionID string) error {
	params := &stripelib.SubscriptionParams{
		PauseCollection: &stripelib.SubscriptionPauseCollectionParams{
			Behavior: stripelib.String("void"),
		},
	}
	params.Context = ctx

	if _, err := g.api.Subscriptions.Update(providerSubscriptionID, params); err != nil {
		return fmt.Errorf("pause stripe subscription %s: %w", providerSubscriptionID, err)
	}

	return nil
}

func (g *Gateway) ResumeRecurringCharge(ctx context.Context, providerSubscriptionID string) error {
	params := &stripelib.SubscriptionParams{}
	params.Context = ctx
	params.AddExtra("pause_collection", "")

	if _, err := g.api.Subscriptions.Update(providerSubscriptionID, params); err != nil {
		return fmt.Errorf("resume stripe subscription %s: %w", providerSubscriptionID, err)
	}

	return nil
}

func isResourceMissing(err error) bool {
	var serr *stripelib.Error

	return errors.As(err, &serr) && serr.Code == stripelib.ErrorCodeResourceMissing
}
