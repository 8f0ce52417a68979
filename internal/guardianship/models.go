package guardianship

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shelter-labs/sponsorship-storage/internal/domain"
)

const DefaultGraceDays = 3

type Status string

const (
	StatusRequiresPayment Status = "requires_payment"
	StatusActive          Status = "active"
	StatusCompleted       Status = "completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusRequiresPayment, StatusActive, StatusCompleted:
		return true
	default:
		return false
	}
}

// Guardianship is a user's sponsorship of one animal.
// At most one active guardianship may exist per (user, animal) pair.
type Guardianship struct {
	ID uuid.UUID `gorm:"primary_key"`

	CreatedAt time.Time
	UpdatedAt time.Time

	UserID   uuid.UUID `gorm:"index:idx_guardianships_active_pair,unique,where:status = 'active'"`
	AnimalID uuid.UUID `gorm:"index:idx_guardianships_active_pair,unique,where:status = 'active'"`

	StartDate   time.Time
	Status      Status `gorm:"index"`
	GraceUntil  *time.Time
	CompletedAt *time.Time
}

func (Guardianship) TableName() string {
	return "guardianships"
}

type GuardianshipDonation struct {
	GuardianshipID uuid.UUID `gorm:"primaryKey"`
	DonationID     uuid.UUID `gorm:"primaryKey"`
	CreatedAt      time.Time
}

func (GuardianshipDonation) TableName() string {
	return "guardianship_donations"
}

type List struct {
	Guardianships []Guardianship
	TotalCount    int64
}

func newGuardianship(userID, animalID uuid.UUID, now time.Time, graceDays int) *Guardianship {
	g := &Guardianship{
		ID:        uuid.New(),
		UserID:    userID,
		AnimalID:  animalID,
		StartDate: now,
		Status:    StatusRequiresPayment,
	}
	g.GraceUntil = graceDeadline(now, graceDays)

	return g
}

// Activate moves a guardianship awaiting payment to active.
// It reports false without error when the guardianship is already active.
func (g *Guardianship) Activate() (bool, error) {
	switch g.Status {
	case StatusCompleted:
		return false, fmt.Errorf("activate completed guardianship #%s: %w", g.ID, domain.ErrInvalidState)
	case StatusActive:
		return false, nil
	}

	g.Status = StatusActive
	g.GraceUntil = nil

	return true, nil
}

// RequirePayment (re-)enters the awaiting-payment state with a fresh grace deadline.
func (g *Guardianship) RequirePayment(now time.Time, graceDays int) error {
	if g.Status == StatusCompleted {
		return fmt.Errorf("require payment for completed guardianship #%s: %w", g.ID, domain.ErrInvalidState)
	}

	g.Status = StatusRequiresPayment
	g.GraceUntil = graceDeadline(now, graceDays)

	return nil
}

// Complete terminates the guardianship. Completing twice is a no-op reported as false.
func (g *Guardianship) Complete(now time.Time) bool {
	if g.Status == StatusCompleted {
		return false
	}

	g.Status = StatusCompleted
	g.GraceUntil = nil
	g.CompletedAt = &now

	return true
}

func (g *Guardianship) GraceExpired(now time.Time) bool {
	return g.Status == StatusRequiresPayment &&
		g.GraceUntil != nil &&
		!g.GraceUntil.After(now)
}

func graceDeadline(now time.Time, graceDays int) *time.Time {
	if graceDays <= 0 {
		graceDays = DefaultGraceDays
	}

	deadline := now.AddDate(0, 0, graceDays)

	return &deadline
}
