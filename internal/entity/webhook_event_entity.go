package entity

import (
	"time"

	"github.com/google/uuid"
)

type WebhookEvent struct {
	Id                uuid.UUID
	IdempotencyKey    string
	GatewayOrderId    string
	TransactionStatus string
	RawPayload        []byte
	Signature         string
	Verified          bool
	Processed         bool
	ProcessingError   *string
	ReceivedAt        time.Time
	ProcessedAt       *time.Time
}
