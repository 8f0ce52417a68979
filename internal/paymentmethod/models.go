package paymentmethod

import (
	"time"

	"github.com/google/uuid"
)

// PaymentMethod maps a payment provider name to the internal identifier
// referenced by donations and subscriptions.
type PaymentMethod struct {
	ID        uuid.UUID `gorm:"primary_key"`
	CreatedAt time.Time
	Name      string `gorm:"uniqueIndex"`
	Enabled   bool
}

func (PaymentMethod) TableName() string {
	return "payment_methods"
}
