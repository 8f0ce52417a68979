package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shelter-labs/sponsorship-storage/internal/domain"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Transaction(ctx context.Context, fn func(DataProvider) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repo{db: tx})
	})
}

func (r *Repo) Create(ctx context.Context, s *Subscription) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *Repo) Save(ctx context.Context, s *Subscription) error {
	return r.db.WithContext(ctx).Save(s).Error
}

func (r *Repo) GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	return r.take(r.db.WithContext(ctx).Where("id = ?", id), id.String())
}

// GetForUpdate locks the row until the surrounding transaction ends.
func (r *Repo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	return r.take(
		r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id),
		id.String(),
	)
}

func (r *Repo) GetByProviderID(ctx context.Context, providerID string) (*Subscription, error) {
	return r.take(r.db.WithContext(ctx).Where("provider_subscription_id = ?", providerID), providerID)
}

func (r *Repo) take(db *gorm.DB, key string) (*Subscription, error) {
	var s Subscription
	err := db.Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("subscription #%s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription #%s: %w", key, err)
	}

	return &s, nil
}

// HasOpenForScope reports whether the user already holds a subscription that is not canceled for the scope.
func (r *Repo) HasOpenForScope(ctx context.Context, userID uuid.UUID, scopeType ScopeType, scopeID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.
		WithContext(ctx).
		Model(&Subscription{}).
		Where("user_id = ? AND scope_type = ? AND scope_id = ? AND status <> ?", userID, scopeType, scopeID, StatusCanceled).
		Count(&count).
		Error

	return count > 0, err
}

func (r *Repo) GetOpenByScope(ctx context.Context, scopeType ScopeType, scopeID uuid.UUID) ([]Subscription, error) {
	var list []Subscription
	err := r.db.
		WithContext(ctx).
		Where("scope_type = ? AND scope_id = ? AND status <> ?", scopeType, scopeID, StatusCanceled).
		Order("created_at").
		Find(&list).
		Error

	return list, err
}

// GetOverdueIDs returns active subscriptions whose next charge is due at or before cutoff,
// ordered by id and starting strictly after the given cursor.
func (r *Repo) GetOverdueIDs(ctx context.Context, cutoff time.Time, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.
		WithContext(ctx).
		Model(&Subscription{}).
		Where("status = ? AND next_charge_at <= ? AND id > ?", StatusActive, cutoff, after).
		Order("id").
		Limit(limit).
		Pluck("id", &ids).
		Error

	return ids, err
}

func (r *Repo) GetByFilters(ctx context.Context, filters []Filter) (List, error) {
	db := r.db.WithContext(ctx).Model(&Subscription{})
	cnt := r.db.WithContext(ctx).Model(&Subscription{})
	for _, f := range filters {
		db = f.Apply(db)

		if _, ok := f.(PageFilter); ok {
			continue
		}
		cnt = f.Apply(cnt)
	}

	var list []Subscription
	if err := db.Order("created_at desc").Find(&list).Error; err != nil {
		return List{}, err
	}

	var total int64
	if err := cnt.Count(&total).Error; err != nil {
		return List{}, err
	}

	return List{
		Subscriptions: list,
		TotalCount:    total,
	}, nil
}
