package entity

import (
	"time"

	"github.com/google/uuid"
)

type ActorType string

const (
	ActorTypeSystem      ActorType = "system"
	ActorTypeServerOwner ActorType = "server_owner"
)

// Activity actions written to the audit trail.
const (
	ActionPurchaseInitiated      = "purchase_initiated"
	ActionRenewalInitiated       = "renewal_initiated"
	ActionRetryInitiated         = "retry_initiated"
	ActionUpgradeInitiated       = "upgrade_initiated"
	ActionRoleGranted            = "role_granted"
	ActionRoleRevoked            = "role_revoked"
	ActionPaymentFailed          = "payment_failed"
	ActionSubscriptionSuperseded = "subscription_superseded"
	ActionSubscriptionExpired    = "subscription_expired"
	ActionPurchaseTimedOut       = "purchase_timed_out"
	ActionManualCancellation     = "manual_cancellation"
	ActionRoleReapplyRequested   = "role_reapply_requested"
	ActionTransitionRejected     = "transition_rejected"
	ActionRoleGrantFailed        = "role_grant_failed"
	ActionRoleRevokeFailed       = "role_revoke_failed"
	ActionAmountMismatch         = "payment_amount_mismatch"
)

type ActivityLog struct {
	Id             uuid.UUID
	SubscriptionId *uuid.UUID
	ActorType      ActorType
	ActorId        *uuid.UUID
	Action         string
	Details        map[string]interface{}
	CreatedAt      time.Time
}
