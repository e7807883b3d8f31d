package model

import (
	"time"

	"github.com/google/uuid"
)

// Tier and Member rows are owned by the catalog / identity services.
// This service only reads them.
type Tier struct {
	Id         uuid.UUID `gorm:"type:uuid;primaryKey"`
	ServerId   string    `gorm:"type:varchar(64);not null;index"`
	RoleId     string    `gorm:"type:varchar(64);not null"`
	Name       string    `gorm:"type:varchar(255);not null"`
	PriceCents int64     `gorm:"not null"`
	PeriodDays int       `gorm:"not null"`
	Currency   string    `gorm:"type:varchar(3);not null;default:'IDR'"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

func (Tier) TableName() string {
	return "tiers"
}

type Member struct {
	Id             uuid.UUID `gorm:"type:uuid;primaryKey"`
	ExternalUserId *string   `gorm:"type:varchar(64);index"`
	DisplayName    string    `gorm:"type:varchar(255)"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

func (Member) TableName() string {
	return "members"
}
