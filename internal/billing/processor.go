package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/shelter-labs/sponsorship-storage/internal/domain"
	"github.com/shelter-labs/sponsorship-storage/internal/donation"
	"github.com/shelter-labs/sponsorship-storage/internal/guardianship"
	"github.com/shelter-labs/sponsorship-storage/internal/subscription"
)

type DonationRecorder interface {
	RecordChargeSuccess(ctx context.Context, c donation.Charge) (*donation.Donation, error)
	RecordChargeFailed(ctx context.Context, c donation.Charge) (*donation.Donation, error)
}

type SubscriptionTracker interface {
	GetByProviderID(ctx context.Context, providerSubscriptionID string) (*subscription.Subscription, error)
	RegisterCharge(ctx context.Context, providerSubscriptionID string, at time.Time) (*subscription.Subscription, error)
	MarkCanceledByProvider(ctx context.Context, providerSubscriptionID string) (*subscription.Subscription, error)
}

type GuardianshipLifecycle interface {
	GetByID(ctx context.Context, id uuid.UUID) (*guardianship.Guardianship, error)
	ActivateWithFirstPayment(ctx context.Context, id, donationID uuid.UUID) (*guardianship.Guardianship, error)
	RequirePayment(ctx context.Context, id uuid.UUID, graceDays int) (*guardianship.Guardianship, error)
}

// Processor turns provider charge events into ledger rows and lifecycle transitions.
type Processor struct {
	donations     DonationRecorder
	subscriptions SubscriptionTracker
	guardianships GuardianshipLifecycle
	graceDays     int

	now func() time.Time
}

func NewProcessor(d DonationRecorder, s SubscriptionTracker, g GuardianshipLifecycle, graceDays int) *Processor {
	return &Processor{
		donations:     d,
		subscriptions: s,
		guardianships: g,
		graceDays:     graceDays,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (p *Processor) Handle(ctx context.Context, ev ChargeEvent) error {
	switch ev.Type {
	case EventChargeSucceeded, EventChargeFailed:
		return p.handleCharge(ctx, ev)
	case EventSubscriptionCanceled:
		return p.handleCanceled(ctx, ev)
	default:
		log.Warn().Str("type", string(ev.Type)).Str("event", ev.ID).Msg("unknown charge event type")

		return nil
	}
}

func (p *Processor) handleCanceled(ctx context.Context, ev ChargeEvent) error {
	if ev.SubscriptionID == "" {
		return fmt.Errorf("cancel event %s without subscription: %w", ev.ID, domain.ErrInvalidArgument)
	}

	_, err := p.subscriptions.MarkCanceledByProvider(ctx, ev.SubscriptionID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Warn().Str("provider_subscription", ev.SubscriptionID).Msg("canceled subscription is unknown")

		return nil
	}

	return err
}

type attribution struct {
	target    donation.TargetType
	targetID  *uuid.UUID
	userID    *uuid.UUID
	anonymous bool
	sub       *subscription.Subscription
}

func (p *Processor) handleCharge(ctx context.Context, ev ChargeEvent) error {
	// events without a timestamp count as received now, for the ledger and the schedule alike
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = p.now()
	}

	attr, err := p.attribute(ctx, ev)
	if err != nil {
		return err
	}

	charge := donation.Charge{
		Provider:               ev.Provider,
		ProviderTransactionID:  ev.TransactionID,
		ProviderSubscriptionID: ev.SubscriptionID,
		Amount:                 ev.Amount,
		Currency:               ev.Currency,
		TargetType:             attr.target,
		TargetID:               attr.targetID,
		Recurring:              attr.sub != nil,
		Anonymous:              attr.anonymous,
		UserID:                 attr.userID,
		OccurredAt:             ev.OccurredAt,
		FailureReason:          ev.FailureReason,
		Payload:                ev.Payload,
	}

	if ev.Type == EventChargeFailed {
		if _, err := p.donations.RecordChargeFailed(ctx, charge); err != nil {
			return fmt.Errorf("record failed charge %s: %w", ev.ID, err)
		}

		if attr.sub != nil && attr.target == donation.TargetGuardianship {
			return p.lapse(ctx, *attr.targetID)
		}

		return nil
	}

	d, err := p.donations.RecordChargeSuccess(ctx, charge)
	if err != nil {
		return fmt.Errorf("record charge %s: %w", ev.ID, err)
	}

	if attr.sub != nil {
		if _, err := p.subscriptions.RegisterCharge(ctx, ev.SubscriptionID, ev.OccurredAt); err != nil {
			return fmt.Errorf("register charge for %s: %w", ev.SubscriptionID, err)
		}
	}

	if attr.target != donation.TargetGuardianship {
		return nil
	}

	_, err = p.guardianships.ActivateWithFirstPayment(ctx, *attr.targetID, d.ID)
	if errors.Is(err, domain.ErrInvalidState) || errors.Is(err, domain.ErrConflict) {
		// the money is recorded; the guardianship itself cannot take it anymore
		log.Warn().
			Err(err).
			Str("guardianship", attr.targetID.String()).
			Str("donation", d.ID.String()).
			Msg("charge not applied to guardianship")

		return nil
	}

	return err
}

// lapse puts an active guardianship back into the grace period after a failed recurring charge.
func (p *Processor) lapse(ctx context.Context, guardianshipID uuid.UUID) error {
	g, err := p.guardianships.GetByID(ctx, guardianshipID)
	if err != nil {
		return fmt.Errorf("get guardianship: %w", err)
	}

	if g.Status != guardianship.StatusActive {
		return nil
	}

	if _, err := p.guardianships.RequirePayment(ctx, guardianshipID, p.graceDays); err != nil && !errors.Is(err, domain.ErrInvalidState) {
		return err
	}

	return nil
}

// attribute resolves who paid and what for. A known subscription wins over event metadata.
func (p *Processor) attribute(ctx context.Context, ev ChargeEvent) (attribution, error) {
	if ev.SubscriptionID != "" {
		sub, err := p.subscriptions.GetByProviderID(ctx, ev.SubscriptionID)
		switch {
		case err == nil:
			attr := attribution{userID: sub.UserID, sub: sub, target: donation.TargetNone}
			switch sub.ScopeType {
			case subscription.ScopeTypeGuardianship:
				attr.target, attr.targetID = donation.TargetGuardianship, sub.ScopeID
			case subscription.ScopeTypeAidRequest:
				attr.target, attr.targetID = donation.TargetAidRequest, sub.ScopeID
			}

			return attr, nil
		case !errors.Is(err, domain.ErrNotFound):
			return attribution{}, fmt.Errorf("get subscription %s: %w", ev.SubscriptionID, err)
		}

		log.Warn().Str("provider_subscription", ev.SubscriptionID).Msg("charge for unknown subscription")
	}

	attr := attribution{target: donation.TargetNone}
	attr.anonymous, _ = strconv.ParseBool(ev.Metadata[MetaAnonymous])
	if id, err := uuid.Parse(ev.Metadata[MetaUserID]); err == nil {
		attr.userID = &id
	}

	target := donation.TargetType(ev.Metadata[MetaTargetType])
	if target == donation.TargetGuardianship || target == donation.TargetAidRequest {
		id, err := uuid.Parse(ev.Metadata[MetaTargetID])
		if err != nil {
			return attribution{}, fmt.Errorf("event %s has invalid target id: %w", ev.ID, domain.ErrInvalidArgument)
		}
		attr.target, attr.targetID = target, &id
	}

	return attr, nil
}
