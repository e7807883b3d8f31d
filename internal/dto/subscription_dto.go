package dto

import (
	"time"

	"github.com/google/uuid"
)

type PurchaseRequest struct {
	TierId uuid.UUID `json:"tier_id" validate:"required"`
}

type UpgradeRequest struct {
	TierId uuid.UUID `json:"tier_id" validate:"required"`
}

type CheckoutResponse struct {
	SubscriptionId uuid.UUID `json:"subscription_id"`
	OrderId        string    `json:"order_id"`
	AmountCents    int64     `json:"amount_cents"`
	Currency       string    `json:"currency"`
	SnapToken      string    `json:"snap_token,omitempty"`
	RedirectURL    string    `json:"redirect_url,omitempty"`
}

type UpgradeQuoteResponse struct {
	CurrentSubscriptionId uuid.UUID `json:"current_subscription_id"`
	CurrentTierId         uuid.UUID `json:"current_tier_id"`
	NewTierId             uuid.UUID `json:"new_tier_id"`
	UnusedDays            int64     `json:"unused_days"`
	CreditCents           int64     `json:"credit_cents"`
	NewChargeCents        int64     `json:"new_charge_cents"`
	NewExpiry             time.Time `json:"new_expiry"`
	Currency              string    `json:"currency"`
}

type OwnerActionRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type SubscriptionResponse struct {
	Id                     uuid.UUID  `json:"id"`
	MemberId               uuid.UUID  `json:"member_id"`
	ServerId               string     `json:"server_id"`
	TierId                 uuid.UUID  `json:"tier_id"`
	PreviousSubscriptionId *uuid.UUID `json:"previous_subscription_id,omitempty"`
	Status                 string     `json:"status"`
	ExpiryDate             *time.Time `json:"expiry_date,omitempty"`
	GracePeriodUntil       *time.Time `json:"grace_period_until,omitempty"`
}

type ActivityResponse struct {
	Id        uuid.UUID              `json:"id"`
	ActorType string                 `json:"actor_type"`
	ActorId   *uuid.UUID             `json:"actor_id,omitempty"`
	Action    string                 `json:"action"`
	Details   map[string]interface{} `json:"details,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}
