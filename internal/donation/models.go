package donation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

type TargetType string

const (
	TargetNone         TargetType = "none"
	TargetGuardianship TargetType = "guardianship"
	TargetAidRequest   TargetType = "aid_request"
)

// Donation is one charge attempt as reported by a provider. Rows are never updated.
type Donation struct {
	ID        uuid.UUID `gorm:"primary_key"`
	CreatedAt time.Time

	UserID          *uuid.UUID `gorm:"index"`
	PaymentMethodID uuid.UUID
	Provider        string

	Amount   decimal.Decimal `gorm:"type:numeric(18,2)"`
	Currency string          `gorm:"size:3"`
	Status   Status

	ProviderTransactionID  *string `gorm:"index"`
	ProviderSubscriptionID *string `gorm:"index"`
	FailureReason          *string

	TargetType TargetType `gorm:"index:idx_donations_target"`
	TargetID   *uuid.UUID `gorm:"index:idx_donations_target"`
	Recurring  bool
	Anonymous  bool
	DonatedAt  time.Time

	Payload datatypes.JSON
}

func (Donation) TableName() string {
	return "donations"
}

// Charge is a provider report about a single charge attempt.
type Charge struct {
	Provider               string
	ProviderTransactionID  string
	ProviderSubscriptionID string
	Amount                 decimal.Decimal
	Currency               string
	TargetType             TargetType
	TargetID               *uuid.UUID
	Recurring              bool
	Anonymous              bool
	UserID                 *uuid.UUID
	OccurredAt             time.Time
	FailureReason          string
	Payload                []byte
}
