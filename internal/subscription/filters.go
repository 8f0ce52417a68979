package subscription

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Filter interface {
	Apply(*gorm.DB) *gorm.DB
}

type PageFilter struct {
	Offset int
	Limit  int
}

func (f PageFilter) Apply(db *gorm.DB) *gorm.DB {
	return db.Offset(f.Offset).Limit(f.Limit)
}

type UserIDFilter struct {
	ID uuid.UUID
}

func (f UserIDFilter) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("user_id = ?", f.ID)
}

type StatusFilter struct {
	Statuses []Status
}

func (f StatusFilter) Apply(db *gorm.DB) *gorm.DB {
	if len(f.Statuses) == 0 {
		return db
	}

	return db.Where("status IN ?", f.Statuses)
}

type ScopeFilter struct {
	Type ScopeType
	ID   *uuid.UUID
}

func (f ScopeFilter) Apply(db *gorm.DB) *gorm.DB {
	db = db.Where("scope_type = ?", f.Type)
	if f.ID != nil {
		db = db.Where("scope_id = ?", *f.ID)
	}

	return db
}
