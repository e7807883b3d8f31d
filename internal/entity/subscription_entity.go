package entity

import (
	"time"

	"github.com/google/uuid"
)

type SubscriptionStatus string
type TransactionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "pending"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusFailed    SubscriptionStatus = "failed"

	TransactionStatusPending  TransactionStatus = "pending"
	TransactionStatusSuccess  TransactionStatus = "success"
	TransactionStatusFailed   TransactionStatus = "failed"
	TransactionStatusRefunded TransactionStatus = "refunded"
)

// IsTerminal reports whether no further payment can move the row forward.
// Pending and Active rows count against the one-open-subscription rule.
func (s SubscriptionStatus) IsTerminal() bool {
	switch s {
	case SubscriptionStatusPending, SubscriptionStatusActive:
		return false
	}
	return true
}

type Subscription struct {
	Id                     uuid.UUID
	MemberId               uuid.UUID
	ServerId               string
	TierId                 uuid.UUID
	PreviousSubscriptionId *uuid.UUID
	Status                 SubscriptionStatus
	StartDate              *time.Time
	ExpiryDate             *time.Time
	LastPaymentAmount      *int64
	LastPaymentDate        *time.Time
	GracePeriodUntil       *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// SubscriptionPatch carries the columns written together with a status change.
type SubscriptionPatch struct {
	StartDate         *time.Time
	ExpiryDate        *time.Time
	LastPaymentAmount *int64
	LastPaymentDate   *time.Time
	GracePeriodUntil  *time.Time
}

type Transaction struct {
	Id                   uuid.UUID
	SubscriptionId       uuid.UUID
	GatewayOrderId       string
	GatewayTransactionId *string
	AmountCents          int64
	Currency             string
	Status               TransactionStatus
	PaymentMethod        *string
	PaymentDate          *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
