package stripe

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	stripelib "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/shelter-labs/sponsorship-storage/internal/billing"
)

const defaultFailureReason = "payment_failed"

// Verifier checks stripe webhook signatures and maps the events the ledger cares about.
type Verifier struct {
	secret string
}

func NewVerifier(secret string) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("stripe webhook secret is required")
	}

	return &Verifier{secret: strings.TrimSpace(secret)}, nil
}

func (v *Verifier) Provider() string {
	return ProviderName
}

func (v *Verifier) SignatureHeader() string {
	return "Stripe-Signature"
}

func (v *Verifier) Verify(payload []byte, signature string) (*billing.ChargeEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("construct stripe event: %w", err)
	}

	ev, err := convertEvent(&event)
	if err != nil {
		return nil, err
	}
	ev.Payload = payload

	return ev, nil
}

func convertEvent(event *stripelib.Event) (*billing.ChargeEvent, error) {
	occurred := time.Unix(event.Created, 0).UTC()

	switch event.Type {
	case "invoice.paid", "invoice.payment_failed":
		var inv Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("decode invoice: %w", err)
		}

		ev := &billing.ChargeEvent{
			ID:             event.ID,
			Type:           billing.EventChargeSucceeded,
			Provider:       ProviderName,
			TransactionID:  inv.ID,
			SubscriptionID: inv.Parent.SubscriptionDetails.Subscription,
			Amount:         fromMinorUnits(inv.AmountPaid, inv.Currency),
			Currency:       strings.ToUpper(inv.Currency),
			OccurredAt:     occurred,
			Metadata:       inv.Parent.SubscriptionDetails.Metadata,
		}
		if inv.StatusTransitions.PaidAt > 0 {
			ev.OccurredAt = time.Unix(inv.StatusTransitions.PaidAt, 0).UTC()
		}

		if event.Type == "invoice.payment_failed" {
			ev.Type = billing.EventChargeFailed
			ev.Amount = fromMinorUnits(inv.AmountDue, inv.Currency)
			ev.FailureReason = defaultFailureReason
			if inv.LastFinalizationError != nil && inv.LastFinalizationError.Code != "" {
				ev.FailureReason = inv.LastFinalizationError.Code
			}
		}

		return ev, nil

	case "checkout.session.completed":
		var session CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("decode checkout.session: %w", err)
		}

		// subscription checkouts are booked through their invoices
		if session.Mode != "payment" || session.PaymentStatus != "paid" {
			return nil, billing.ErrIgnoredEvent
		}

		return &billing.ChargeEvent{
			ID:            event.ID,
			Type:          billing.EventChargeSucceeded,
			Provider:      ProviderName,
			TransactionID: session.PaymentIntent,
			Amount:        fromMinorUnits(session.AmountTotal, session.Currency),
			Currency:      strings.ToUpper(session.Currency),
			OccurredAt:    occurred,
			Metadata:      session.Metadata,
		}, nil

	case "customer.subscription.deleted":
		var sub Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}

		return &billing.ChargeEvent{
			ID:             event.ID,
			Type:           billing.EventSubscriptionCanceled,
			Provider:       ProviderName,
			SubscriptionID: sub.ID,
			OccurredAt:     occurred,
			Metadata:       sub.Metadata,
		}, nil

	default:
		return nil, billing.ErrIgnoredEvent
	}
}

// Invoice is a minimal representation of a stripe invoice event.
type Invoice struct {
	ID         string `json:"id"`
	Currency   string `json:"currency"`
	AmountPaid int64  `json:"amount_paid"`
	AmountDue  int64  `json:"amount_due"`
	Parent     struct {
		SubscriptionDetails struct {
			Subscription string            `json:"subscription"`
			Metadata     map[string]string `json:"metadata"`
		} `json:"subscription_details"`
	} `json:"parent"`
	StatusTransitions struct {
		PaidAt int64 `json:"paid_at"`
	} `json:"status_transitions"`
	LastFinalizationError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_finalization_error"`
}

// CheckoutSession is a minimal representation of a stripe checkout.session event.
type CheckoutSession struct {
	ID            string            `json:"id"`
	Mode          string            `json:"mode"`
	PaymentStatus string            `json:"payment_status"`
	PaymentIntent string            `json:"payment_intent"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
}

// Subscription is a minimal representation of a stripe subscription event.
type Subscription struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
}
