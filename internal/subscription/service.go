package subscription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/shelter-labs/sponsorship-storage/internal/domain"
	"github.com/shelter-labs/sponsorship-storage/internal/events"
	"github.com/shelter-labs/sponsorship-storage/internal/metrics"
	"github.com/shelter-labs/sponsorship-storage/internal/paymentmethod"
)

const (
	defaultChunkSize = 100
	defaultTolerance = 72 * time.Hour
	metricsEntity    = "subscription"
	reconcileJobName = "subscription_cancel_expired"
)

type DataProvider interface {
	Transaction(ctx context.Context, fn func(DataProvider) error) error
	Create(ctx context.Context, s *Subscription) error
	Save(ctx context.Context, s *Subscription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Subscription, error)
	GetByProviderID(ctx context.Context, providerID string) (*Subscription, error)
	HasOpenForScope(ctx context.Context, userID uuid.UUID, scopeType ScopeType, scopeID uuid.UUID) (bool, error)
	GetOpenByScope(ctx context.Context, scopeType ScopeType, scopeID uuid.UUID) ([]Subscription, error)
	GetOverdueIDs(ctx context.Context, cutoff time.Time, after uuid.UUID, limit int) ([]uuid.UUID, error)
	GetByFilters(ctx context.Context, filters []Filter) (List, error)
}

type PaymentMethodResolver interface {
	Resolve(ctx context.Context, provider string) (*paymentmethod.PaymentMethod, error)
}

type Publisher interface {
	PublishJSON(ctx context.Context, subject string, obj any) error
}

type Options struct {
	Interval        Interval
	ChargeTolerance time.Duration
	ChunkSize       int
}

type Service struct {
	repo      DataProvider
	methods   PaymentMethodResolver
	gateways  map[string]Gateway
	events    Publisher
	interval  Interval
	tolerance time.Duration
	chunkSize int

	now func() time.Time
}

func NewService(r DataProvider, m PaymentMethodResolver, p Publisher, opts Options, gateways ...Gateway) *Service {
	s := &Service{
		repo:      r,
		methods:   m,
		gateways:  make(map[string]Gateway, len(gateways)),
		events:    p,
		interval:  opts.Interval,
		tolerance: opts.ChargeTolerance,
		chunkSize: opts.ChunkSize,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}

	if s.interval == "" {
		s.interval = IntervalMonth
	}
	if s.tolerance <= 0 {
		s.tolerance = defaultTolerance
	}
	if s.chunkSize <= 0 {
		s.chunkSize = defaultChunkSize
	}

	for _, gw := range gateways {
		s.gateways[strings.ToLower(gw.Name())] = gw
	}

	return s
}

type CreateRequest struct {
	UserID      *uuid.UUID
	ScopeID     uuid.UUID
	Amount      decimal.Decimal
	Currency    string
	Provider    string
	CustomerRef string
}

func (s *Service) CreateForGuardianship(ctx context.Context, req CreateRequest) (*Subscription, error) {
	if req.UserID == nil || *req.UserID == uuid.Nil {
		return nil, fmt.Errorf("guardianship subscription requires a user: %w", domain.ErrInvalidArgument)
	}

	return s.create(ctx, ScopeTypeGuardianship, req)
}

func (s *Service) CreateForAidRequest(ctx context.Context, req CreateRequest) (*Subscription, error) {
	return s.create(ctx, ScopeTypeAidRequest, req)
}

func (s *Service) CreateGlobal(ctx context.Context, req CreateRequest) (*Subscription, error) {
	req.ScopeID = uuid.Nil

	return s.create(ctx, ScopeTypeGlobal, req)
}

// create registers the recurring charge at the provider first and stores the subscription
// only after the provider accepted it. A failed insert cancels the provider side again.
func (s *Service) create(ctx context.Context, scopeType ScopeType, req CreateRequest) (*Subscription, error) {
	currency, err := validateCreate(scopeType, req)
	if err != nil {
		return nil, err
	}

	pm, err := s.methods.Resolve(ctx, req.Provider)
	if err != nil {
		return nil, fmt.Errorf("resolve payment method: %w", err)
	}

	gw, err := s.gateway(pm.Name)
	if err != nil {
		return nil, err
	}

	var scopeID *uuid.UUID
	if scopeType.Scoped() {
		scopeID = &req.ScopeID

		if req.UserID != nil {
			open, err := s.repo.HasOpenForScope(ctx, *req.UserID, scopeType, req.ScopeID)
			if err != nil {
				return nil, fmt.Errorf("check open subscription: %w", err)
			}

			if open {
				return nil, fmt.Errorf("user %s already subscribed to %s %s: %w", req.UserID, scopeType, req.ScopeID, domain.ErrConflict)
			}
		}
	}

	now := s.now()
	sub := &Subscription{
		ID:              uuid.New(),
		UserID:          req.UserID,
		PaymentMethodID: pm.ID,
		ScopeType:       scopeType,
		ScopeID:         scopeID,
		Amount:          req.Amount,
		Currency:        currency,
		Provider:        pm.Name,
		Status:          StatusActive,
	}

	ps, err := gw.CreateRecurringCharge(ctx, ChargeRequest{
		SubscriptionID: sub.ID,
		UserID:         sub.UserID,
		ScopeType:      scopeType,
		ScopeID:        scopeID,
		Amount:         sub.Amount,
		Currency:       currency,
		Interval:       s.interval,
		CustomerRef:    req.CustomerRef,
	})
	if err != nil {
		return nil, fmt.Errorf("create recurring charge at %s: %w: %w", pm.Name, domain.ErrExternalProvider, err)
	}
	if ps.ID == "" {
		return nil, fmt.Errorf("%s returned empty subscription id: %w", pm.Name, domain.ErrExternalProvider)
	}

	next := s.interval.Next(now)
	if ps.NextChargeAt != nil {
		next = ps.NextChargeAt.UTC()
	}
	sub.ProviderSubscriptionID = ps.ID
	sub.NextChargeAt = &next

	if err := s.repo.Create(ctx, sub); err != nil {
		if cErr := gw.CancelRecurringCharge(context.WithoutCancel(ctx), ps.ID); cErr != nil {
			log.Error().
				Err(cErr).
				Str("provider", pm.Name).
				Str("provider_subscription", ps.ID).
				Msg("compensate orphaned provider subscription")
		}

		return nil, fmt.Errorf("create subscription: %w", err)
	}

	metrics.CollectTransition(metricsEntity, "new", string(StatusActive))
	s.publish(ctx, events.SubjectSubscriptionCreated, sub)

	return sub, nil
}

func validateCreate(scopeType ScopeType, req CreateRequest) (string, error) {
	if !req.Amount.IsPositive() {
		return "", fmt.Errorf("amount must be positive: %w", domain.ErrInvalidArgument)
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if len(currency) != 3 {
		return "", fmt.Errorf("invalid currency %q: %w", req.Currency, domain.ErrInvalidArgument)
	}

	if scopeType.Scoped() && req.ScopeID == uuid.Nil {
		return "", fmt.Errorf("%s scope id is required: %w", scopeType, domain.ErrInvalidArgument)
	}

	return currency, nil
}

// Cancel stops the recurring charge at the provider and then marks the subscription canceled.
// Canceling a canceled subscription does nothing.
func (s *Service) Cancel(ctx context.Context, providerSubscriptionID string) (*Subscription, error) {
	sub, err := s.repo.GetByProviderID(ctx, providerSubscriptionID)
	if err != nil {
		return nil, err
	}

	if sub.Status == StatusCanceled {
		return sub, nil
	}

	if err := s.cancelAtProvider(ctx, sub); err != nil {
		return nil, err
	}

	res, _, err := s.markCanceled(ctx, sub.ID)

	return res, err
}

// MarkCanceledByProvider applies a cancellation that originated at the provider.
func (s *Service) MarkCanceledByProvider(ctx context.Context, providerSubscriptionID string) (*Subscription, error) {
	sub, err := s.repo.GetByProviderID(ctx, providerSubscriptionID)
	if err != nil {
		return nil, err
	}

	res, _, err := s.markCanceled(ctx, sub.ID)

	return res, err
}

// CancelForGuardianship cancels whatever open subscriptions fund the guardianship.
// Having none is not an error.
func (s *Service) CancelForGuardianship(ctx context.Context, guardianshipID uuid.UUID) error {
	list, err := s.repo.GetOpenByScope(ctx, ScopeTypeGuardianship, guardianshipID)
	if err != nil {
		return fmt.Errorf("get guardianship subscriptions: %w", err)
	}

	var errs []error
	for _, sub := range list {
		if _, err := s.Cancel(ctx, sub.ProviderSubscriptionID); err != nil {
			errs = append(errs, fmt.Errorf("cancel subscription #%s: %w", sub.ID, err))
		}
	}

	return errors.Join(errs...)
}

// CancelExpired cancels active subscriptions that missed their scheduled charge by more than the tolerance.
// Each row is canceled on its own; rows that were charged or canceled concurrently are skipped.
func (s *Service) CancelExpired(ctx context.Context, utcNow time.Time) (int, error) {
	var (
		affected, skipped int
		cursor            uuid.UUID
	)
	defer func() {
		metrics.CollectReconcile(reconcileJobName, affected, skipped)
	}()

	cutoff := utcNow.Add(-s.tolerance)
	for {
		ids, err := s.repo.GetOverdueIDs(ctx, cutoff, cursor, s.chunkSize)
		if err != nil {
			return affected, fmt.Errorf("get overdue subscriptions: %w", err)
		}

		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return affected, err
			}

			done, err := s.cancelOverdue(ctx, id, utcNow)
			if err != nil {
				log.Warn().Err(err).Str("subscription", id.String()).Msg("cancel overdue subscription")
			}

			if done {
				affected++
			} else {
				skipped++
			}
		}

		if len(ids) < s.chunkSize {
			break
		}

		cursor = ids[len(ids)-1]
	}

	log.Info().
		Int("affected", affected).
		Int("skipped", skipped).
		Time("at", utcNow).
		Msg("overdue subscriptions canceled")

	return affected, nil
}

// cancelOverdue re-checks the row under its lock and keeps the lock across the provider call,
// so a charge registered concurrently either lands first and saves the row or waits for the cancel.
func (s *Service) cancelOverdue(ctx context.Context, id uuid.UUID, utcNow time.Time) (bool, error) {
	var (
		res     *Subscription
		from    Status
		changed bool
	)
	err := s.repo.Transaction(ctx, func(repo DataProvider) error {
		sub, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if !sub.ChargeOverdue(utcNow, s.tolerance) {
			return nil
		}

		if err := s.cancelAtProvider(ctx, sub); err != nil {
			return err
		}

		res, from = sub, sub.Status
		if changed = sub.Cancel(s.now()); !changed {
			return nil
		}

		return repo.Save(ctx, sub)
	})
	if err != nil {
		return false, fmt.Errorf("cancel overdue subscription: %w", err)
	}

	if changed {
		metrics.CollectTransition(metricsEntity, string(from), string(StatusCanceled))
		s.publish(ctx, events.SubjectSubscriptionCanceled, res)
	}

	return changed, nil
}

func (s *Service) cancelAtProvider(ctx context.Context, sub *Subscription) error {
	gw, err := s.gateway(sub.Provider)
	if err != nil {
		return err
	}

	if err := gw.CancelRecurringCharge(ctx, sub.ProviderSubscriptionID); err != nil {
		return fmt.Errorf("cancel recurring charge %s at %s: %w: %w", sub.ProviderSubscriptionID, sub.Provider, domain.ErrExternalProvider, err)
	}

	return nil
}

func (s *Service) markCanceled(ctx context.Context, id uuid.UUID) (*Subscription, bool, error) {
	var (
		res     *Subscription
		from    Status
		changed bool
	)
	err := s.repo.Transaction(ctx, func(repo DataProvider) error {
		sub, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}

		res, from = sub, sub.Status
		if changed = sub.Cancel(s.now()); !changed {
			return nil
		}

		return repo.Save(ctx, sub)
	})
	if err != nil {
		return nil, false, fmt.Errorf("cancel subscription: %w", err)
	}

	if changed {
		metrics.CollectTransition(metricsEntity, string(from), string(StatusCanceled))
		s.publish(ctx, events.SubjectSubscriptionCanceled, res)
	}

	return res, changed, nil
}

func (s *Service) Pause(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	return s.toggle(ctx, id, true)
}

func (s *Service) Resume(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	return s.toggle(ctx, id, false)
}

func (s *Service) toggle(ctx context.Context, id uuid.UUID, pause bool) (*Subscription, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch {
	case sub.Status == StatusCanceled:
		return nil, fmt.Errorf("subscription #%s is canceled: %w", id, domain.ErrInvalidState)
	case pause && sub.Status == StatusPaused, !pause && sub.Status == StatusActive:
		return sub, nil
	}

	gw, err := s.gateway(sub.Provider)
	if err != nil {
		return nil, err
	}

	call, subject := gw.ResumeRecurringCharge, events.SubjectSubscriptionResumed
	if pause {
		call, subject = gw.PauseRecurringCharge, events.SubjectSubscriptionPaused
	}
	if err := call(ctx, sub.ProviderSubscriptionID); err != nil {
		return nil, fmt.Errorf("update recurring charge %s at %s: %w: %w", sub.ProviderSubscriptionID, sub.Provider, domain.ErrExternalProvider, err)
	}

	var (
		res     *Subscription
		from    Status
		changed bool
	)
	err = s.repo.Transaction(ctx, func(repo DataProvider) error {
		sub, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}

		res, from = sub, sub.Status
		if pause {
			changed, err = sub.Pause()
		} else {
			changed, err = sub.Resume(s.interval.Next(s.now()))
		}
		if err != nil || !changed {
			return err
		}

		return repo.Save(ctx, sub)
	})
	if err != nil {
		return nil, fmt.Errorf("update subscription status: %w", err)
	}

	if changed {
		metrics.CollectTransition(metricsEntity, string(from), string(res.Status))
		s.publish(ctx, subject, res)
	}

	return res, nil
}

// RegisterCharge moves the schedule forward after a successful recurring charge.
func (s *Service) RegisterCharge(ctx context.Context, providerSubscriptionID string, at time.Time) (*Subscription, error) {
	if at.IsZero() {
		return nil, fmt.Errorf("charge time is required: %w", domain.ErrInvalidArgument)
	}

	sub, err := s.repo.GetByProviderID(ctx, providerSubscriptionID)
	if err != nil {
		return nil, err
	}

	var res *Subscription
	err = s.repo.Transaction(ctx, func(repo DataProvider) error {
		locked, err := repo.GetForUpdate(ctx, sub.ID)
		if err != nil {
			return err
		}

		res = locked
		if !locked.RegisterCharge(at.UTC(), s.interval) {
			log.Debug().
				Str("subscription", locked.ID.String()).
				Str("status", string(locked.Status)).
				Time("at", at).
				Msg("charge ignored")

			return nil
		}

		return repo.Save(ctx, locked)
	})
	if err != nil {
		return nil, fmt.Errorf("register charge: %w", err)
	}

	return res, nil
}

func (s *Service) GetMyExpectedPayments(ctx context.Context, userID uuid.UUID) ([]ExpectedPayment, error) {
	list, err := s.repo.GetByFilters(ctx, []Filter{
		UserIDFilter{ID: userID},
		StatusFilter{Statuses: []Status{StatusActive}},
	})
	if err != nil {
		return nil, fmt.Errorf("get user subscriptions: %w", err)
	}

	res := make([]ExpectedPayment, 0, len(list.Subscriptions))
	for _, sub := range list.Subscriptions {
		res = append(res, ExpectedPayment{
			SubscriptionID: sub.ID,
			ScopeType:      sub.ScopeType,
			ScopeID:        sub.ScopeID,
			Amount:         sub.Amount,
			Currency:       sub.Currency,
			NextChargeAt:   sub.NextChargeAt,
		})
	}

	return res, nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByProviderID(ctx context.Context, providerSubscriptionID string) (*Subscription, error) {
	return s.repo.GetByProviderID(ctx, providerSubscriptionID)
}

func (s *Service) GetByFilters(ctx context.Context, filters []Filter) (List, error) {
	list, err := s.repo.GetByFilters(ctx, filters)
	if err != nil {
		return List{}, fmt.Errorf("get by filters: %w", err)
	}

	return list, nil
}

func (s *Service) gateway(provider string) (Gateway, error) {
	gw, ok := s.gateways[strings.ToLower(provider)]
	if !ok {
		return nil, fmt.Errorf("no gateway configured for %s: %w", provider, domain.ErrExternalProvider)
	}

	return gw, nil
}

type Event struct {
	ID                     uuid.UUID       `json:"id"`
	UserID                 *uuid.UUID      `json:"user_id,omitempty"`
	ScopeType              ScopeType       `json:"scope_type"`
	ScopeID                *uuid.UUID      `json:"scope_id,omitempty"`
	Amount                 decimal.Decimal `json:"amount"`
	Currency               string          `json:"currency"`
	Provider               string          `json:"provider"`
	ProviderSubscriptionID string          `json:"provider_subscription_id"`
	Status                 Status          `json:"status"`
	NextChargeAt           *time.Time      `json:"next_charge_at,omitempty"`
	CanceledAt             *time.Time      `json:"canceled_at,omitempty"`
}

func (s *Service) publish(ctx context.Context, subject string, sub *Subscription) {
	err := s.events.PublishJSON(ctx, subject, Event{
		ID:                     sub.ID,
		UserID:                 sub.UserID,
		ScopeType:              sub.ScopeType,
		ScopeID:                sub.ScopeID,
		Amount:                 sub.Amount,
		Currency:               sub.Currency,
		Provider:               sub.Provider,
		ProviderSubscriptionID: sub.ProviderSubscriptionID,
		Status:                 sub.Status,
		NextChargeAt:           sub.NextChargeAt,
		CanceledAt:             sub.CanceledAt,
	})
	if err != nil {
		log.Error().Err(err).Str("subscription", sub.ID.String()).Msgf("publish %s", subject)
	}
}
