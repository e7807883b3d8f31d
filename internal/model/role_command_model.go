package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RoleCommand is the transactional outbox for role grants and revokes.
type RoleCommand struct {
	Id             uuid.UUID `gorm:"type:uuid;primaryKey"`
	SubscriptionId uuid.UUID `gorm:"type:uuid;not null;index"`
	MemberId       uuid.UUID `gorm:"type:uuid;not null"`
	ServerId       string    `gorm:"type:varchar(64);not null"`
	RoleId         string    `gorm:"type:varchar(64);not null"`
	Action         string    `gorm:"type:varchar(10);not null"`
	Status         string    `gorm:"type:varchar(20);not null;index"`
	Attempts       int       `gorm:"not null;default:0"`
	LastError      *string   `gorm:"type:text"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

func (RoleCommand) TableName() string {
	return "role_commands"
}

func (c *RoleCommand) BeforeCreate(tx *gorm.DB) error {
	if c.Id == uuid.Nil {
		c.Id = uuid.New()
	}
	return nil
}
