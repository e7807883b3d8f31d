package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ActivityLog struct {
	Id             uuid.UUID      `gorm:"type:uuid;primaryKey"`
	SubscriptionId *uuid.UUID     `gorm:"type:uuid;index"`
	ActorType      string         `gorm:"type:varchar(20);not null;index"`
	ActorId        *uuid.UUID     `gorm:"type:uuid"`
	Action         string         `gorm:"type:varchar(50);not null;index"`
	Details        datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt      time.Time      `gorm:"autoCreateTime;index"`

	Subscription *Subscription `gorm:"foreignKey:SubscriptionId;constraint:OnDelete:SET NULL"`
}

func (ActivityLog) TableName() string {
	return "activity_logs"
}

func (a *ActivityLog) BeforeCreate(tx *gorm.DB) error {
	if a.Id == uuid.Nil {
		a.Id = uuid.New()
	}
	return nil
}
