package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/shelter-labs/sponsorship-storage/internal/guardianship"
	"github.com/shelter-labs/sponsorship-storage/internal/subscription"
)

type GuardianshipOpener interface {
	Create(ctx context.Context, userID, animalID uuid.UUID, graceDays int) (*guardianship.Guardianship, error)
	Complete(ctx context.Context, id uuid.UUID, cancelSubscription bool) (*guardianship.Guardianship, error)
}

type SubscriptionOpener interface {
	CreateForGuardianship(ctx context.Context, req subscription.CreateRequest) (*subscription.Subscription, error)
}

// Sponsorship opens a guardianship together with the recurring charge that funds it.
type Sponsorship struct {
	guardianships GuardianshipOpener
	subscriptions SubscriptionOpener
	graceDays     int
}

func NewSponsorship(g GuardianshipOpener, s SubscriptionOpener, graceDays int) *Sponsorship {
	return &Sponsorship{
		guardianships: g,
		subscriptions: s,
		graceDays:     graceDays,
	}
}

type StartRequest struct {
	UserID      uuid.UUID
	AnimalID    uuid.UUID
	Amount      decimal.Decimal
	Currency    string
	Provider    string
	CustomerRef string
}

type Started struct {
	Guardianship *guardianship.Guardianship
	Subscription *subscription.Subscription
}

// Start creates the guardianship awaiting payment and its subscription. The guardianship
// is activated later by the first successful charge. When the subscription cannot be
// created the fresh guardianship is completed so the user can retry.
func (s *Sponsorship) Start(ctx context.Context, req StartRequest) (Started, error) {
	g, err := s.guardianships.Create(ctx, req.UserID, req.AnimalID, s.graceDays)
	if err != nil {
		return Started{}, err
	}

	sub, err := s.subscriptions.CreateForGuardianship(ctx, subscription.CreateRequest{
		UserID:      &req.UserID,
		ScopeID:     g.ID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Provider:    req.Provider,
		CustomerRef: req.CustomerRef,
	})
	if err != nil {
		if _, cErr := s.guardianships.Complete(context.WithoutCancel(ctx), g.ID, false); cErr != nil {
			log.Error().Err(cErr).Str("guardianship", g.ID.String()).Msg("close guardianship without subscription")
		}

		return Started{}, fmt.Errorf("create guardianship subscription: %w", err)
	}

	return Started{
		Guardianship: g,
		Subscription: sub,
	}, nil
}
