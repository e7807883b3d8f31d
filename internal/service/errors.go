package service

import (
	"errors"

	"memberpass-be/pkg/gateway/midtrans"
)

// Webhook rejections. Anything else a webhook can run into is reported as a
// WebhookOutcome and answered with 200.
var (
	ErrInvalidSignature = errors.New("INVALID_SIGNATURE")
	ErrStaleWebhook     = midtrans.ErrStaleWebhook
	ErrInvalidPayload   = midtrans.ErrInvalidPayload
	ErrUnknownGateway   = errors.New("unknown payment gateway")
)

// State machine.
var (
	// ErrInvalidTransition: the move is not in the transition table. An anomaly row was written.
	ErrInvalidTransition = errors.New("invalid subscription transition")
	// ErrStaleStatus: the row left the expected status between read and write.
	ErrStaleStatus = errors.New("subscription status changed concurrently")
)

// Member and owner actions.
var (
	ErrTierNotFound           = errors.New("tier not found")
	ErrMemberNotFound         = errors.New("member not found")
	ErrSubscriptionNotFound   = errors.New("subscription not found")
	ErrOpenSubscriptionExists = errors.New("member already has a pending or active subscription on this server")
	ErrNoActiveSubscription   = errors.New("no active subscription to upgrade")
	ErrNotAnUpgrade           = errors.New("target tier is not an upgrade")
	ErrZeroCharge             = errors.New("upgrade is fully covered by credit")
	ErrNothingToReapply       = errors.New("subscription has no role to re-apply")
)
