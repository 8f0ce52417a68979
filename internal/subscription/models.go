package subscription

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shelter-labs/sponsorship-storage/internal/domain"
)

type ScopeType string

const (
	ScopeTypeGlobal       ScopeType = "global"
	ScopeTypeAidRequest   ScopeType = "aid_request"
	ScopeTypeGuardianship ScopeType = "guardianship"
)

func (s ScopeType) Scoped() bool {
	return s == ScopeTypeAidRequest || s == ScopeTypeGuardianship
}

type Status string

const (
	StatusActive   Status = "active"
	StatusPaused   Status = "paused"
	StatusCanceled Status = "canceled"
)

type Interval string

const (
	IntervalDay   Interval = "day"
	IntervalWeek  Interval = "week"
	IntervalMonth Interval = "month"
	IntervalYear  Interval = "year"
)

func ParseInterval(val string) (Interval, error) {
	switch i := Interval(val); i {
	case IntervalDay, IntervalWeek, IntervalMonth, IntervalYear:
		return i, nil
	default:
		return "", fmt.Errorf("unknown billing interval %q: %w", val, domain.ErrInvalidArgument)
	}
}

// Next returns the charge time one interval after from.
func (i Interval) Next(from time.Time) time.Time {
	switch i {
	case IntervalDay:
		return from.AddDate(0, 0, 1)
	case IntervalWeek:
		return from.AddDate(0, 0, 7)
	case IntervalYear:
		return from.AddDate(1, 0, 0)
	default:
		return from.AddDate(0, 1, 0)
	}
}

// Subscription is a recurring-charge agreement earmarked for a scope.
type Subscription struct {
	ID        uuid.UUID `gorm:"primary_key"`
	CreatedAt time.Time
	UpdatedAt time.Time

	UserID          *uuid.UUID `gorm:"index:idx_payment_subscriptions_open_scope,unique,where:status <> 'canceled' AND scope_type <> 'global'"`
	PaymentMethodID uuid.UUID
	ScopeType       ScopeType  `gorm:"index:idx_payment_subscriptions_open_scope,unique,where:status <> 'canceled' AND scope_type <> 'global'"`
	ScopeID         *uuid.UUID `gorm:"index:idx_payment_subscriptions_open_scope,unique,where:status <> 'canceled' AND scope_type <> 'global'"`

	Amount   decimal.Decimal `gorm:"type:numeric(18,2)"`
	Currency string          `gorm:"size:3"`

	Provider               string
	ProviderSubscriptionID string `gorm:"uniqueIndex"`

	Status       Status `gorm:"index"`
	NextChargeAt *time.Time
	LastChargeAt *time.Time
	CanceledAt   *time.Time
}

func (Subscription) TableName() string {
	return "payment_subscriptions"
}

type List struct {
	Subscriptions []Subscription
	TotalCount    int64
}

// ExpectedPayment is a projection of an active subscription's upcoming charge.
type ExpectedPayment struct {
	SubscriptionID uuid.UUID
	ScopeType      ScopeType
	ScopeID        *uuid.UUID
	Amount         decimal.Decimal
	Currency       string
	NextChargeAt   *time.Time
}

// Cancel is terminal and idempotent: canceling twice reports false the second time.
func (s *Subscription) Cancel(now time.Time) bool {
	if s.Status == StatusCanceled {
		return false
	}

	s.Status = StatusCanceled
	s.CanceledAt = &now
	s.NextChargeAt = nil

	return true
}

func (s *Subscription) Pause() (bool, error) {
	switch s.Status {
	case StatusCanceled:
		return false, fmt.Errorf("pause canceled subscription #%s: %w", s.ID, domain.ErrInvalidState)
	case StatusPaused:
		return false, nil
	}

	s.Status = StatusPaused
	s.NextChargeAt = nil

	return true, nil
}

func (s *Subscription) Resume(next time.Time) (bool, error) {
	switch s.Status {
	case StatusCanceled:
		return false, fmt.Errorf("resume canceled subscription #%s: %w", s.ID, domain.ErrInvalidState)
	case StatusActive:
		return false, nil
	}

	s.Status = StatusActive
	s.NextChargeAt = &next

	return true, nil
}

// RegisterCharge records a successful charge at the given time and schedules the next one.
// Charges arriving for canceled subscriptions or older than the last known charge are ignored.
func (s *Subscription) RegisterCharge(at time.Time, interval Interval) bool {
	if at.IsZero() || s.Status == StatusCanceled {
		return false
	}

	if s.LastChargeAt != nil && !at.After(*s.LastChargeAt) {
		return false
	}

	s.LastChargeAt = &at
	if s.Status == StatusActive {
		next := interval.Next(at)
		s.NextChargeAt = &next
	}

	return true
}

// ChargeOverdue reports whether the scheduled charge is more than tolerance late.
func (s *Subscription) ChargeOverdue(now time.Time, tolerance time.Duration) bool {
	return s.Status == StatusActive &&
		s.NextChargeAt != nil &&
		!s.NextChargeAt.Add(tolerance).After(now)
}
