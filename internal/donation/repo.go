package donation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shelter-labs/sponsorship-storage/internal/domain"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Create(ctx context.Context, d *Donation) error {
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *Repo) GetByID(ctx context.Context, id uuid.UUID) (*Donation, error) {
	d := Donation{ID: id}
	err := r.db.WithContext(ctx).Take(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("donation #%s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get donation by id #%s: %w", id, err)
	}

	return &d, nil
}

func (r *Repo) GetByTarget(ctx context.Context, target TargetType, targetID uuid.UUID) ([]Donation, error) {
	var list []Donation
	err := r.db.
		WithContext(ctx).
		Where("target_type = ? AND target_id = ?", target, targetID).
		Order("donated_at").
		Find(&list).
		Error

	return list, err
}
