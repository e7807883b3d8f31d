package specification

import (
	"memberpass-be/internal/repository/scope"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ByID filters by ID
type ByID struct {
	ID uuid.UUID
}

func (s ByID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("id = ?", s.ID)
}

// Pagination
type Pagination struct {
	Limit  int
	Offset int
}

func (s Pagination) Apply(db *gorm.DB) *gorm.DB {
	return db.Limit(s.Limit).Offset(s.Offset)
}

// CreatedBefore matches rows created strictly before At.
type CreatedBefore struct {
	At interface{}
}

func (s CreatedBefore) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("created_at < ?", s.At)
}

// UpdatedBefore matches rows last touched strictly before At.
type UpdatedBefore struct {
	At interface{}
}

func (s UpdatedBefore) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("updated_at < ?", s.At)
}

// Chronological orders oldest first.
type Chronological struct{}

func (s Chronological) Apply(db *gorm.DB) *gorm.DB {
	return db.Scopes(scope.OrderByCreatedAsc)
}

// Latest orders newest first.
type Latest struct{}

func (s Latest) Apply(db *gorm.DB) *gorm.DB {
	return db.Scopes(scope.OrderByCreatedDesc)
}
