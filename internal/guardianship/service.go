package guardianship

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/shelter-labs/sponsorship-storage/internal/domain"
	"github.com/shelter-labs/sponsorship-storage/internal/donation"
	"github.com/shelter-labs/sponsorship-storage/internal/events"
	"github.com/shelter-labs/sponsorship-storage/internal/metrics"
)

const (
	defaultChunkSize = 100
	metricsEntity    = "guardianship"
	reconcileJobName = "guardianship_auto_complete"
)

type DataProvider interface {
	Transaction(ctx context.Context, fn func(DataProvider) error) error
	Create(ctx context.Context, g *Guardianship) error
	Save(ctx context.Context, g *Guardianship) error
	GetByID(ctx context.Context, id uuid.UUID) (*Guardianship, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Guardianship, error)
	HasActive(ctx context.Context, userID, animalID, exclude uuid.UUID) (bool, error)
	LinkDonation(ctx context.Context, guardianshipID, donationID uuid.UUID) (bool, error)
	GetDonationIDs(ctx context.Context, guardianshipID uuid.UUID) ([]uuid.UUID, error)
	GetExpiredIDs(ctx context.Context, now time.Time, after uuid.UUID, limit int) ([]uuid.UUID, error)
	GetByFilters(ctx context.Context, filters []Filter) (List, error)
}

type DonationReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*donation.Donation, error)
}

type SubscriptionCanceler interface {
	CancelForGuardianship(ctx context.Context, guardianshipID uuid.UUID) error
}

type Publisher interface {
	PublishJSON(ctx context.Context, subject string, obj any) error
}

type Service struct {
	repo      DataProvider
	donations DonationReader
	subs      SubscriptionCanceler
	events    Publisher
	chunkSize int

	now func() time.Time
}

func NewService(r DataProvider, d DonationReader, sc SubscriptionCanceler, p Publisher, chunkSize int) *Service {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	return &Service{
		repo:      r,
		donations: d,
		subs:      sc,
		events:    p,
		chunkSize: chunkSize,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Create starts a guardianship awaiting its first payment.
// A non-positive graceDays falls back to DefaultGraceDays.
func (s *Service) Create(ctx context.Context, userID, animalID uuid.UUID, graceDays int) (*Guardianship, error) {
	if userID == uuid.Nil || animalID == uuid.Nil {
		return nil, fmt.Errorf("user and animal are required: %w", domain.ErrInvalidArgument)
	}

	g := newGuardianship(userID, animalID, s.now(), graceDays)
	err := s.repo.Transaction(ctx, func(repo DataProvider) error {
		active, err := repo.HasActive(ctx, userID, animalID, uuid.Nil)
		if err != nil {
			return fmt.Errorf("check active guardianship: %w", err)
		}

		if active {
			return fmt.Errorf("user %s already guards animal %s: %w", userID, animalID, domain.ErrConflict)
		}

		return repo.Create(ctx, g)
	})
	if err != nil {
		return nil, fmt.Errorf("create guardianship: %w", err)
	}

	s.publish(ctx, events.SubjectGuardianshipCreated, g)

	return g, nil
}

// ActivateWithFirstPayment links the donation and activates a guardianship awaiting payment.
// Repeating the call with the same donation leaves exactly one link.
func (s *Service) ActivateWithFirstPayment(ctx context.Context, id, donationID uuid.UUID) (*Guardianship, error) {
	if err := s.checkPaid(ctx, donationID); err != nil {
		return nil, err
	}

	var (
		res       *Guardianship
		from      Status
		activated bool
	)
	err := s.repo.Transaction(ctx, func(repo DataProvider) error {
		g, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if g.Status == StatusCompleted {
			return fmt.Errorf("activate completed guardianship #%s: %w", id, domain.ErrInvalidState)
		}

		if _, err := repo.LinkDonation(ctx, id, donationID); err != nil {
			return fmt.Errorf("link donation %s: %w", donationID, err)
		}

		res = g
		if g.Status == StatusActive {
			return nil
		}

		active, err := repo.HasActive(ctx, g.UserID, g.AnimalID, g.ID)
		if err != nil {
			return fmt.Errorf("check active guardianship: %w", err)
		}

		if active {
			return fmt.Errorf("user %s already guards animal %s: %w", g.UserID, g.AnimalID, domain.ErrConflict)
		}

		from = g.Status
		if activated, err = g.Activate(); err != nil {
			return err
		}

		return repo.Save(ctx, g)
	})
	if err != nil {
		return nil, fmt.Errorf("activate guardianship: %w", err)
	}

	if activated {
		metrics.CollectTransition(metricsEntity, string(from), string(res.Status))
		s.publish(ctx, events.SubjectGuardianshipActivated, res)
	}

	return res, nil
}

// RequirePayment is used when a recurring charge lapses on an active guardianship.
func (s *Service) RequirePayment(ctx context.Context, id uuid.UUID, graceDays int) (*Guardianship, error) {
	var (
		res  *Guardianship
		from Status
	)
	err := s.repo.Transaction(ctx, func(repo DataProvider) error {
		g, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}

		from = g.Status
		if err := g.RequirePayment(s.now(), graceDays); err != nil {
			return err
		}

		res = g

		return repo.Save(ctx, g)
	})
	if err != nil {
		return nil, fmt.Errorf("require payment: %w", err)
	}

	metrics.CollectTransition(metricsEntity, string(from), string(res.Status))
	s.publish(ctx, events.SubjectGuardianshipPaymentRequired, res)

	return res, nil
}

// Complete terminates the guardianship and optionally cancels the subscription scoped to it.
// Completing an already completed guardianship only retries the subscription cancellation.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, cancelSubscription bool) (*Guardianship, error) {
	var (
		res       *Guardianship
		from      Status
		completed bool
	)
	err := s.repo.Transaction(ctx, func(repo DataProvider) error {
		g, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}

		res = g
		from = g.Status
		if completed = g.Complete(s.now()); !completed {
			return nil
		}

		return repo.Save(ctx, g)
	})
	if err != nil {
		return nil, fmt.Errorf("complete guardianship: %w", err)
	}

	if completed {
		metrics.CollectTransition(metricsEntity, string(from), string(res.Status))
		s.publish(ctx, events.SubjectGuardianshipCompleted, res)
	}

	if cancelSubscription {
		if err := s.subs.CancelForGuardianship(ctx, id); err != nil {
			return res, fmt.Errorf("cancel subscription of guardianship #%s: %w", id, err)
		}
	}

	return res, nil
}

// AutoCompleteExpired completes every guardianship whose grace deadline is not after utcNow.
// Rows are processed one transaction at a time; rows changed concurrently are skipped.
func (s *Service) AutoCompleteExpired(ctx context.Context, utcNow time.Time) (int, error) {
	var (
		affected, skipped int
		cursor            uuid.UUID
	)
	defer func() {
		metrics.CollectReconcile(reconcileJobName, affected, skipped)
	}()

	for {
		ids, err := s.repo.GetExpiredIDs(ctx, utcNow, cursor, s.chunkSize)
		if err != nil {
			return affected, fmt.Errorf("get expired guardianships: %w", err)
		}

		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return affected, err
			}

			done, err := s.completeExpired(ctx, id, utcNow)
			if err != nil {
				log.Warn().Err(err).Str("guardianship", id.String()).Msg("auto complete expired guardianship")
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
		Msg("expired guardianships completed")

	return affected, nil
}

func (s *Service) completeExpired(ctx context.Context, id uuid.UUID, utcNow time.Time) (bool, error) {
	var (
		res  *Guardianship
		done bool
	)
	err := s.repo.Transaction(ctx, func(repo DataProvider) error {
		g, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}

		// re-check: activation or another sweep may have won the race
		if !g.GraceExpired(utcNow) {
			return nil
		}

		g.Complete(utcNow)
		res, done = g, true

		return repo.Save(ctx, g)
	})
	if err != nil || !done {
		return false, err
	}

	metrics.CollectTransition(metricsEntity, string(StatusRequiresPayment), string(StatusCompleted))
	s.publish(ctx, events.SubjectGuardianshipCompleted, res)

	return true, nil
}

// LinkDonation attributes a donation to the guardianship; duplicates are ignored.
func (s *Service) LinkDonation(ctx context.Context, id, donationID uuid.UUID) error {
	if err := s.checkPaid(ctx, donationID); err != nil {
		return err
	}

	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}

	created, err := s.repo.LinkDonation(ctx, id, donationID)
	if err != nil {
		return fmt.Errorf("link donation %s to guardianship #%s: %w", donationID, id, err)
	}

	if !created {
		log.Debug().
			Str("guardianship", id.String()).
			Str("donation", donationID.String()).
			Msg("donation already linked")
	}

	return nil
}

// checkPaid accepts only donations that exist in the ledger as completed charges.
func (s *Service) checkPaid(ctx context.Context, donationID uuid.UUID) error {
	if donationID == uuid.Nil {
		return fmt.Errorf("donation is required: %w", domain.ErrInvalidArgument)
	}

	d, err := s.donations.GetByID(ctx, donationID)
	if err != nil {
		return fmt.Errorf("get donation: %w", err)
	}

	if d.Status != donation.StatusCompleted {
		return fmt.Errorf("donation %s is %s: %w", donationID, d.Status, domain.ErrInvalidArgument)
	}

	return nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Guardianship, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetDonationIDs(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}

	return s.repo.GetDonationIDs(ctx, id)
}

func (s *Service) GetByFilters(ctx context.Context, filters []Filter) (List, error) {
	list, err := s.repo.GetByFilters(ctx, filters)
	if err != nil {
		return List{}, fmt.Errorf("get by filters: %w", err)
	}

	return list, nil
}

type Event struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	AnimalID    uuid.UUID  `json:"animal_id"`
	Status      Status     `json:"status"`
	GraceUntil  *time.Time `json:"grace_until,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (s *Service) publish(ctx context.Context, subject string, g *Guardianship) {
	err := s.events.PublishJSON(ctx, subject, Event{
		ID:          g.ID,
		UserID:      g.UserID,
		AnimalID:    g.AnimalID,
		Status:      g.Status,
		GraceUntil:  g.GraceUntil,
		CompletedAt: g.CompletedAt,
	})
	if err != nil {
		log.Error().Err(err).Str("guardianship", g.ID.String()).Msgf("publish %s", subject)
	}
}
