package donation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.openly.dev/pointy"
	"gorm.io/datatypes"

	"github.com/shelter-labs/sponsorship-storage/internal/domain"
	"github.com/shelter-labs/sponsorship-storage/internal/events"
	"github.com/shelter-labs/sponsorship-storage/internal/metrics"
	"github.com/shelter-labs/sponsorship-storage/internal/paymentmethod"
)

type DataProvider interface {
	Create(ctx context.Context, d *Donation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Donation, error)
	GetByTarget(ctx context.Context, target TargetType, targetID uuid.UUID) ([]Donation, error)
}

type PaymentMethodResolver interface {
	Resolve(ctx context.Context, provider string) (*paymentmethod.PaymentMethod, error)
}

type Publisher interface {
	PublishJSON(ctx context.Context, subject string, obj any) error
}

type Service struct {
	repo    DataProvider
	methods PaymentMethodResolver
	events  Publisher

	now func() time.Time
}

func NewService(r DataProvider, m PaymentMethodResolver, p Publisher) *Service {
	return &Service{
		repo:    r,
		methods: m,
		events:  p,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// RecordChargeSuccess appends a completed donation. Retried callbacks produce new rows.
func (s *Service) RecordChargeSuccess(ctx context.Context, c Charge) (*Donation, error) {
	if !c.Amount.IsPositive() {
		return nil, fmt.Errorf("amount must be positive: %w", domain.ErrInvalidArgument)
	}

	if strings.TrimSpace(c.ProviderTransactionID) == "" {
		return nil, fmt.Errorf("transaction id is required for a completed charge: %w", domain.ErrInvalidArgument)
	}

	return s.record(ctx, c, StatusCompleted)
}

// RecordChargeFailed appends a failed donation. The transaction id may be unknown.
func (s *Service) RecordChargeFailed(ctx context.Context, c Charge) (*Donation, error) {
	if c.Amount.IsNegative() {
		return nil, fmt.Errorf("amount must not be negative: %w", domain.ErrInvalidArgument)
	}

	return s.record(ctx, c, StatusFailed)
}

func (s *Service) record(ctx context.Context, c Charge, status Status) (*Donation, error) {
	currency := strings.ToUpper(strings.TrimSpace(c.Currency))
	if len(currency) != 3 {
		return nil, fmt.Errorf("invalid currency %q: %w", c.Currency, domain.ErrInvalidArgument)
	}

	target, targetID, err := normalizeTarget(c.TargetType, c.TargetID)
	if err != nil {
		return nil, err
	}

	pm, err := s.methods.Resolve(ctx, c.Provider)
	if err != nil {
		return nil, fmt.Errorf("resolve payment method: %w", err)
	}

	donatedAt := c.OccurredAt.UTC()
	if c.OccurredAt.IsZero() {
		donatedAt = s.now()
	}

	d := &Donation{
		ID:                     uuid.New(),
		UserID:                 c.UserID,
		PaymentMethodID:        pm.ID,
		Provider:               pm.Name,
		Amount:                 c.Amount,
		Currency:               currency,
		Status:                 status,
		ProviderTransactionID:  optional(c.ProviderTransactionID),
		ProviderSubscriptionID: optional(c.ProviderSubscriptionID),
		TargetType:             target,
		TargetID:               targetID,
		Recurring:              c.Recurring,
		Anonymous:              c.Anonymous,
		DonatedAt:              donatedAt,
		Payload:                payload(c.Payload),
	}
	if status == StatusFailed {
		d.FailureReason = optional(c.FailureReason)
	}
	if c.Anonymous {
		d.UserID = nil
	}

	if err := s.repo.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("create donation: %w", err)
	}

	metrics.CollectDonation(pm.Name, string(status))
	s.publish(ctx, d)

	return d, nil
}

func normalizeTarget(target TargetType, id *uuid.UUID) (TargetType, *uuid.UUID, error) {
	switch target {
	case "", TargetNone:
		return TargetNone, nil, nil
	case TargetGuardianship, TargetAidRequest:
		if id == nil || *id == uuid.Nil {
			return "", nil, fmt.Errorf("%s target id is required: %w", target, domain.ErrInvalidArgument)
		}

		return target, id, nil
	default:
		return "", nil, fmt.Errorf("unknown target type %q: %w", target, domain.ErrInvalidArgument)
	}
}

func optional(val string) *string {
	val = strings.TrimSpace(val)
	if val == "" {
		return nil
	}

	return pointy.String(val)
}

func payload(raw []byte) datatypes.JSON {
	if len(raw) == 0 {
		return nil
	}

	if !json.Valid(raw) {
		log.Warn().Int("size", len(raw)).Msg("provider payload is not valid json, dropped")
		return nil
	}

	return datatypes.JSON(raw)
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Donation, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByTarget(ctx context.Context, target TargetType, targetID uuid.UUID) ([]Donation, error) {
	list, err := s.repo.GetByTarget(ctx, target, targetID)
	if err != nil {
		return nil, fmt.Errorf("get donations by target: %w", err)
	}

	return list, nil
}

type Event struct {
	ID                    uuid.UUID       `json:"id"`
	UserID                *uuid.UUID      `json:"user_id,omitempty"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	Status                Status          `json:"status"`
	Provider              string          `json:"provider"`
	ProviderTransactionID *string         `json:"provider_transaction_id,omitempty"`
	TargetType            TargetType      `json:"target_type"`
	TargetID              *uuid.UUID      `json:"target_id,omitempty"`
	Recurring             bool            `json:"recurring"`
	DonatedAt             time.Time       `json:"donated_at"`
}

func (s *Service) publish(ctx context.Context, d *Donation) {
	err := s.events.PublishJSON(ctx, events.SubjectDonationRecorded, Event{
		ID:                    d.ID,
		UserID:                d.UserID,
		Amount:                d.Amount,
		Currency:              d.Currency,
		Status:                d.Status,
		Provider:              d.Provider,
		ProviderTransactionID: d.ProviderTransactionID,
		TargetType:            d.TargetType,
		TargetID:              d.TargetID,
		Recurring:             d.Recurring,
		DonatedAt:             d.DonatedAt,
	})
	if err != nil {
		log.Error().Err(err).Str("donation", d.ID.String()).Msgf("publish %s", events.SubjectDonationRecorded)
	}
}
