package lifecycle

import (
	"memberpass-be/internal/entity"
	"memberpass-be/pkg/gateway/midtrans"
)

type Kind int

const (
	// KindNone: the event is known but moves nothing (pending, fraud challenge).
	KindNone Kind = iota
	// KindTransition: the event maps to a status change.
	KindTransition
	// KindUnknown: the gateway status is not one we understand.
	KindUnknown
)

// Decision is what a gateway event asks of the subscription it resolves to.
type Decision struct {
	Kind              Kind
	From              entity.SubscriptionStatus
	To                entity.SubscriptionStatus
	Role              entity.RoleAction
	Action            string
	TransactionStatus entity.TransactionStatus
}

// HasRole reports whether the transition emits a role command.
func (d Decision) HasRole() bool {
	return d.Role != ""
}

// Decide maps a gateway status onto the subscription lifecycle. It is total
// over midtrans.Status: every value, StatusUnknown included, has a result.
func Decide(status midtrans.Status, fraud midtrans.FraudStatus) Decision {
	switch status {
	case midtrans.StatusSettlement:
		return activate()
	case midtrans.StatusCapture:
		switch fraud {
		case midtrans.FraudNone, midtrans.FraudAccept:
			return activate()
		case midtrans.FraudChallenge:
			return Decision{Kind: KindNone}
		default:
			return fail()
		}
	case midtrans.StatusPending:
		return Decision{Kind: KindNone}
	case midtrans.StatusDeny, midtrans.StatusCancel, midtrans.StatusExpire:
		return fail()
	case midtrans.StatusRefund:
		return Decision{
			Kind:              KindTransition,
			From:              entity.SubscriptionStatusActive,
			To:                entity.SubscriptionStatusCancelled,
			Role:              entity.RoleActionRevoke,
			Action:            entity.ActionRoleRevoked,
			TransactionStatus: entity.TransactionStatusRefunded,
		}
	default:
		return Decision{Kind: KindUnknown}
	}
}

func activate() Decision {
	return Decision{
		Kind:              KindTransition,
		From:              entity.SubscriptionStatusPending,
		To:                entity.SubscriptionStatusActive,
		Role:              entity.RoleActionGrant,
		Action:            entity.ActionRoleGranted,
		TransactionStatus: entity.TransactionStatusSuccess,
	}
}

func fail() Decision {
	return Decision{
		Kind:              KindTransition,
		From:              entity.SubscriptionStatusPending,
		To:                entity.SubscriptionStatusFailed,
		Action:            entity.ActionPaymentFailed,
		TransactionStatus: entity.TransactionStatusFailed,
	}
}

type Verdict int

const (
	VerdictApply Verdict = iota
	// VerdictAlreadyApplied: the row already sits in the target status, e.g. a
	// settlement arriving after the capture of the same order.
	VerdictAlreadyApplied
	VerdictReject
)

// Check validates the decision against the row's current status.
func (d Decision) Check(current entity.SubscriptionStatus) Verdict {
	if current == d.To {
		return VerdictAlreadyApplied
	}
	if current != d.From || !CanTransition(current, d.To) {
		return VerdictReject
	}
	return VerdictApply
}
