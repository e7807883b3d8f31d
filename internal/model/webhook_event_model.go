package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// WebhookEvent is the idempotency store. The unique idempotency key is the only
// deduplication mechanism; rows are never updated except for the processing outcome.
type WebhookEvent struct {
	Id                uuid.UUID      `gorm:"type:uuid;primaryKey"`
	IdempotencyKey    string         `gorm:"type:varchar(191);uniqueIndex;not null"`
	GatewayOrderId    string         `gorm:"type:varchar(64);not null;index"`
	TransactionStatus string         `gorm:"type:varchar(50);not null"`
	RawPayload        datatypes.JSON `gorm:"type:jsonb;not null"`
	Signature         string         `gorm:"type:varchar(255)"`
	Verified          bool           `gorm:"not null;default:false;index"`
	Processed         bool           `gorm:"not null;default:false"`
	ProcessingError   *string        `gorm:"type:text"`
	ReceivedAt        time.Time      `gorm:"not null;index"`
	ProcessedAt       *time.Time
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}

func (e *WebhookEvent) BeforeCreate(tx *gorm.DB) error {
	if e.Id == uuid.Nil {
		e.Id = uuid.New()
	}
	return nil
}
