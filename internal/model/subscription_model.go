package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Subscription struct {
	Id                     uuid.UUID  `gorm:"type:uuid;primaryKey"`
	MemberId               uuid.UUID  `gorm:"type:uuid;not null;index:idx_subscriptions_member_server,priority:1"`
	ServerId               string     `gorm:"type:varchar(64);not null;index:idx_subscriptions_member_server,priority:2"`
	TierId                 uuid.UUID  `gorm:"type:uuid;not null;index"`
	PreviousSubscriptionId *uuid.UUID `gorm:"type:uuid;index"`
	Status                 string     `gorm:"type:varchar(20);not null;index"`
	StartDate              *time.Time
	ExpiryDate             *time.Time `gorm:"index"`
	LastPaymentAmount      *int64
	LastPaymentDate        *time.Time
	GracePeriodUntil       *time.Time
	CreatedAt              time.Time `gorm:"autoCreateTime;index"`
	UpdatedAt              time.Time `gorm:"autoUpdateTime"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.Id == uuid.Nil {
		s.Id = uuid.New()
	}
	return nil
}

type Transaction struct {
	Id                   uuid.UUID `gorm:"type:uuid;primaryKey"`
	SubscriptionId       uuid.UUID `gorm:"type:uuid;not null;index"`
	GatewayOrderId       string    `gorm:"type:varchar(64);uniqueIndex;not null"`
	GatewayTransactionId *string   `gorm:"type:varchar(255)"`
	AmountCents          int64     `gorm:"not null"`
	Currency             string    `gorm:"type:varchar(3);not null"`
	Status               string    `gorm:"type:varchar(20);not null"`
	PaymentMethod        *string   `gorm:"type:varchar(50)"`
	PaymentDate          *time.Time
	CreatedAt            time.Time `gorm:"autoCreateTime"`
	UpdatedAt            time.Time `gorm:"autoUpdateTime"`
}

func (Transaction) TableName() string {
	return "transactions"
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.Id == uuid.Nil {
		t.Id = uuid.New()
	}
	return nil
}
