package billing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrIgnoredEvent is returned by verifiers for provider events the service does not handle.
var ErrIgnoredEvent = errors.New("ignored event")

type EventType string

const (
	EventChargeSucceeded      EventType = "charge.succeeded"
	EventChargeFailed         EventType = "charge.failed"
	EventSubscriptionCanceled EventType = "subscription.canceled"
)

// Metadata keys attached to provider-side objects so charges can be attributed.
const (
	MetaSubscriptionID = "subscription_id"
	MetaUserID         = "user_id"
	MetaScopeType      = "scope_type"
	MetaScopeID        = "scope_id"
	MetaTargetType     = "target_type"
	MetaTargetID       = "target_id"
	MetaAnonymous      = "anonymous"
)

// ChargeEvent is a provider notification normalised to the fields the ledger needs.
type ChargeEvent struct {
	ID             string            `json:"id"`
	Type           EventType         `json:"type"`
	Provider       string            `json:"provider"`
	TransactionID  string            `json:"transaction_id"`
	SubscriptionID string            `json:"subscription_id,omitempty"`
	Amount         decimal.Decimal   `json:"amount"`
	Currency       string            `json:"currency"`
	FailureReason  string            `json:"failure_reason,omitempty"`
	OccurredAt     time.Time         `json:"occurred_at"`
	Metadata       map[string]string `json:"metadata,omitempty"`

	// Payload is the raw provider body, kept for the ledger.
	Payload []byte `json:"-"`
}

// WebhookVerifier authenticates a provider callback and extracts the charge event from it.
type WebhookVerifier interface {
	Provider() string
	SignatureHeader() string
	Verify(payload []byte, signature string) (*ChargeEvent, error)
}
