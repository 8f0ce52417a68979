package paymentmethod

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/shelter-labs/sponsorship-storage/internal/domain"
)

type DataProvider interface {
	Upsert(ctx context.Context, pm *PaymentMethod) error
	GetByName(ctx context.Context, name string) (*PaymentMethod, error)
	GetByID(ctx context.Context, id uuid.UUID) (*PaymentMethod, error)
	List(ctx context.Context) ([]PaymentMethod, error)
}

type Cacher interface {
	Set(...PaymentMethod)
	Get(string) (PaymentMethod, bool)
}

type Service struct {
	repo  DataProvider
	cache Cacher
}

func NewService(r DataProvider, c Cacher) *Service {
	return &Service{
		repo:  r,
		cache: c,
	}
}

// Resolve returns the enabled payment method registered for the provider name.
func (s *Service) Resolve(ctx context.Context, provider string) (*PaymentMethod, error) {
	name := normalizeName(provider)
	if name == "" {
		return nil, fmt.Errorf("empty provider name: %w", domain.ErrInvalidArgument)
	}

	if pm, ok := s.cache.Get(name); ok {
		return &pm, nil
	}

	pm, err := s.repo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}

	if !pm.Enabled {
		return nil, fmt.Errorf("payment method %s is disabled: %w", name, domain.ErrNotFound)
	}

	s.cache.Set(*pm)

	return pm, nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*PaymentMethod, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]PaymentMethod, error) {
	return s.repo.List(ctx)
}

// EnsureDefaults registers providers the service is configured with and warms the cache.
func (s *Service) EnsureDefaults(ctx context.Context, providers ...string) error {
	for _, provider := range providers {
		name := normalizeName(provider)
		if name == "" {
			continue
		}

		_, err := s.repo.GetByName(ctx, name)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("get payment method %s: %w", name, err)
		}

		if err := s.repo.Upsert(ctx, &PaymentMethod{
			ID:      uuid.New(),
			Name:    name,
			Enabled: true,
		}); err != nil {
			return fmt.Errorf("create payment method %s: %w", name, err)
		}

		log.Info().Str("provider", name).Msg("payment method registered")
	}

	list, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("list payment methods: %w", err)
	}

	for _, pm := range list {
		if pm.Enabled {
			s.cache.Set(pm)
		}
	}

	return nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
