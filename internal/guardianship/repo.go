package guardianship

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

// Transaction runs fn against a repo bound to a single database transaction.
func (r *Repo) Transaction(ctx context.Context, fn func(DataProvider) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repo{db: tx})
	})
}

func (r *Repo) Create(ctx context.Context, g *Guardianship) error {
	return r.db.WithContext(ctx).Create(g).Error
}

func (r *Repo) Save(ctx context.Context, g *Guardianship) error {
	return r.db.WithContext(ctx).Save(g).Error
}

func (r *Repo) GetByID(ctx context.Context, id uuid.UUID) (*Guardianship, error) {
	return r.take(r.db.WithContext(ctx), id)
}

// GetForUpdate reads the row with a FOR UPDATE lock, so it must run inside Transaction.
func (r *Repo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Guardianship, error) {
	return r.take(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *Repo) take(db *gorm.DB, id uuid.UUID) (*Guardianship, error) {
	g := Guardianship{ID: id}
	err := db.Take(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("guardianship #%s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get guardianship by id #%s: %w", id, err)
	}

	return &g, nil
}

// HasActive reports whether an active guardianship other than exclude exists for the pair.
func (r *Repo) HasActive(ctx context.Context, userID, animalID, exclude uuid.UUID) (bool, error) {
	var count int64
	err := r.db.
		WithContext(ctx).
		Model(&Guardianship{}).
		Where("user_id = ? AND animal_id = ? AND status = ? AND id <> ?", userID, animalID, StatusActive, exclude).
		Count(&count).
		Error

	return count > 0, err
}

// LinkDonation inserts the link unless it already exists and reports whether a row was created.
func (r *Repo) LinkDonation(ctx context.Context, guardianshipID, donationID uuid.UUID) (bool, error) {
	result := r.db.
		WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "guardianship_id"}, {Name: "donation_id"}},
			DoNothing: true,
		}).
		Create(&GuardianshipDonation{
			GuardianshipID: guardianshipID,
			DonationID:     donationID,
		})
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

func (r *Repo) GetDonationIDs(ctx context.Context, guardianshipID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.
		WithContext(ctx).
		Model(&GuardianshipDonation{}).
		Where("guardianship_id = ?", guardianshipID).
		Order("created_at").
		Pluck("donation_id", &ids).
		Error

	return ids, err
}

// GetExpiredIDs returns ids of guardianships awaiting payment whose grace deadline passed,
// ordered by id and starting strictly after the given cursor.
func (r *Repo) GetExpiredIDs(ctx context.Context, now time.Time, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.
		WithContext(ctx).
		Model(&Guardianship{}).
		Where("status = ? AND grace_until <= ? AND id > ?", StatusRequiresPayment, now, after).
		Order("id").
		Limit(limit).
		Pluck("id", &ids).
		Error

	return ids, err
}

func (r *Repo) GetByFilters(ctx context.Context, filters []Filter) (List, error) {
	db := r.db.WithContext(ctx).Model(&Guardianship{})
	cnt := r.db.WithContext(ctx).Model(&Guardianship{})
	for _, f := range filters {
		db = f.Apply(db)

		if _, ok := f.(PageFilter); ok {
			continue
		}
		cnt = f.Apply(cnt)
	}

	var list []Guardianship
	if err := db.Order("created_at desc").Find(&list).Error; err != nil {
		return List{}, err
	}

	var total int64
	if err := cnt.Count(&total).Error; err != nil {
		return List{}, err
	}

	return List{
		Guardianships: list,
		TotalCount:    total,
	}, nil
}
