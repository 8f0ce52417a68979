package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ChargeRequest describes the recurring charge to set up at the provider.
type ChargeRequest struct {
	SubscriptionID uuid.UUID
	UserID         *uuid.UUID
	ScopeType      ScopeType
	ScopeID        *uuid.UUID
	Amount         decimal.Decimal
	Currency       string
	Interval       Interval
	// CustomerRef is the provider-side customer the charge is billed to.
	CustomerRef string
}

type ProviderSubscription struct {
	ID string
	// NextChargeAt is the provider's schedule, when it reports one.
	NextChargeAt *time.Time
}

// Gateway is a payment provider able to manage recurring charges.
type Gateway interface {
	Name() string
	CreateRecurringCharge(ctx context.Context, req ChargeRequest) (ProviderSubscription, error)
	CancelRecurringCharge(ctx context.Context, providerSubscriptionID string) error
	PauseRecurringCharge(ctx context.Context, providerSubscriptionID string) error
	ResumeRecurringCharge(ctx context.Context, providerSubscriptionID string) error
}
