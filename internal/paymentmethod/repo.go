package paymentmethod

import (
	"context"
	"errors"
	"fmt"

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

// Upsert creates the method unless one with the same name already exists.
func (r *Repo) Upsert(ctx context.Context, pm *PaymentMethod) error {
	return r.db.
		WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).
		Create(pm).
		Error
}

func (r *Repo) GetByName(ctx context.Context, name string) (*PaymentMethod, error) {
	var pm PaymentMethod
	err := r.db.
		WithContext(ctx).
		Where("name = ?", name).
		Take(&pm).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("payment method %s: %w", name, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get payment method by name %s: %w", name, err)
	}

	return &pm, nil
}

func (r *Repo) GetByID(ctx context.Context, id uuid.UUID) (*PaymentMethod, error) {
	pm := PaymentMethod{ID: id}
	err := r.db.WithContext(ctx).Take(&pm).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("payment method #%s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get payment method by id #%s: %w", id, err)
	}

	return &pm, nil
}

func (r *Repo) List(ctx context.Context) ([]PaymentMethod, error) {
	var list []PaymentMethod
	if err := r.db.WithContext(ctx).Order("name").Find(&list).Error; err != nil {
		return nil, err
	}

	return list, nil
}
