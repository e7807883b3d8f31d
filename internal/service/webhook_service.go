package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"memberpass-be/internal/entity"
	"memberpass-be/internal/pkg/logger"
	"memberpass-be/internal/repository/contract"
	"memberpass-be/internal/repository/specification"
	"memberpass-be/internal/repository/unitofwork"
	"memberpass-be/pkg/billing/lifecycle"
	"memberpass-be/pkg/billing/proration"
	"memberpass-be/pkg/gateway/midtrans"

	"github.com/google/uuid"
)

const GatewayMidtrans = "midtrans"

type OutcomeKind string

const (
	OutcomeProcessed         OutcomeKind = "processed"
	OutcomeDuplicate         OutcomeKind = "duplicate"
	OutcomeIgnored           OutcomeKind = "ignored"
	OutcomeAlreadyApplied    OutcomeKind = "already_applied"
	OutcomeUnknownStatus     OutcomeKind = "unknown_status"
	OutcomeUnknownOrder      OutcomeKind = "unknown_order"
	OutcomeInvalidTransition OutcomeKind = "invalid_transition"
	OutcomeAmountMismatch    OutcomeKind = "amount_mismatch"
)

// WebhookOutcome describes an accepted notification. All outcomes are
// acknowledged with 200 so the gateway stops redelivering.
type WebhookOutcome struct {
	Kind           OutcomeKind
	EventId        uuid.UUID
	SubscriptionId *uuid.UUID
	Commands       int
}

type IWebhookService interface {
	HandleNotification(ctx context.Context, gateway string, body []byte, headerSignature string, receivedAt time.Time) (*WebhookOutcome, error)
}

type WebhookSettings struct {
	ServerKey       string
	Location        *time.Location
	MaxAge          time.Duration
	GracePeriodDays int
}

type webhookService struct {
	uowFactory unitofwork.RepositoryFactory
	catalog    contract.TierCatalog
	machine    *StateMachine
	publisher  *RolePublisher
	settings   WebhookSettings
	logger     logger.ILogger
	clock      func() time.Time
}

func NewWebhookService(
	uowFactory unitofwork.RepositoryFactory,
	catalog contract.TierCatalog,
	machine *StateMachine,
	publisher *RolePublisher,
	settings WebhookSettings,
	log logger.ILogger,
) IWebhookService {
	if settings.Location == nil {
		settings.Location = midtrans.Location("")
	}
	if settings.MaxAge <= 0 {
		settings.MaxAge = midtrans.DefaultMaxAge
	}
	return &webhookService{
		uowFactory: uowFactory,
		catalog:    catalog,
		machine:    machine,
		publisher:  publisher,
		settings:   settings,
		logger:     log,
		clock:      func() time.Time { return time.Now().UTC() },
	}
}

// resolved is what a notification refers to, read before the processing
// transaction opens.
type resolved struct {
	transaction *entity.Transaction
	sub         *entity.Subscription
	tier        *entity.Tier
	previous    *entity.Subscription
	prevTier    *entity.Tier
}

func (s *webhookService) HandleNotification(ctx context.Context, gateway string, body []byte, headerSignature string, receivedAt time.Time) (*WebhookOutcome, error) {
	if gateway != GatewayMidtrans {
		return nil, ErrUnknownGateway
	}

	n, err := midtrans.ParseNotification(body)
	if err != nil {
		return nil, err
	}

	claimed := n.SignatureKey
	if claimed == "" {
		claimed = headerSignature
	}
	if !midtrans.VerifySignature(n.SignedFields(), s.settings.ServerKey, claimed) {
		s.recordUnverified(ctx, n, body, claimed, receivedAt)
		return nil, ErrInvalidSignature
	}

	txTime, err := midtrans.ParseTransactionTime(n.TransactionTime, s.settings.Location)
	if err != nil {
		return nil, err
	}
	if err := midtrans.CheckFreshness(txTime, receivedAt, s.settings.MaxAge); err != nil {
		s.logger.Warn("WEBHOOK", "Rejected stale notification", map[string]interface{}{
			"orderId":         n.OrderId,
			"transactionTime": n.TransactionTime,
		})
		return nil, err
	}
	paid, err := midtrans.ParseGrossAmountCents(n.GrossAmount)
	if err != nil {
		return nil, err
	}

	ref, err := s.resolve(ctx, n.OrderId)
	if err != nil {
		return nil, err
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	event := &entity.WebhookEvent{
		IdempotencyKey:    midtrans.IdempotencyKey(n.OrderId, n.TransactionStatus),
		GatewayOrderId:    n.OrderId,
		TransactionStatus: strings.ToLower(n.TransactionStatus),
		RawPayload:        body,
		Signature:         claimed,
		Verified:          true,
		ReceivedAt:        receivedAt.UTC(),
	}
	created, err := uow.WebhookEventRepository().CreateIfNotExists(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("record webhook event: %w", err)
	}
	if !created {
		s.logger.Info("WEBHOOK", "Duplicate notification", map[string]interface{}{
			"idempotencyKey": event.IdempotencyKey,
			"eventId":        event.Id.String(),
		})
		return &WebhookOutcome{Kind: OutcomeDuplicate, EventId: event.Id}, nil
	}

	outcome, commands, err := s.process(ctx, uow, n, event, ref, paid, txTime)
	if err != nil {
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("commit webhook: %w", err)
	}

	s.publisher.Publish(ctx, commands...)
	outcome.Commands = len(commands)
	return outcome, nil
}

func (s *webhookService) process(
	ctx context.Context,
	uow unitofwork.UnitOfWork,
	n *midtrans.Notification,
	event *entity.WebhookEvent,
	ref *resolved,
	paid int64,
	txTime time.Time,
) (*WebhookOutcome, []*entity.RoleCommand, error) {
	outcome := &WebhookOutcome{EventId: event.Id}
	finish := func(kind OutcomeKind, processingError string) (*WebhookOutcome, []*entity.RoleCommand, error) {
		var perr *string
		if processingError != "" {
			perr = &processingError
		}
		if _, err := uow.WebhookEventRepository().MarkProcessed(ctx, event.Id, perr); err != nil {
			return nil, nil, err
		}
		outcome.Kind = kind
		return outcome, nil, nil
	}

	if ref.transaction == nil || ref.sub == nil {
		s.logger.Warn("WEBHOOK", "Notification for unknown order", map[string]interface{}{
			"orderId": n.OrderId,
			"eventId": event.Id.String(),
		})
		return finish(OutcomeUnknownOrder, "unknown order")
	}
	outcome.SubscriptionId = &ref.sub.Id

	decision := lifecycle.Decide(n.Status(), n.Fraud())
	switch decision.Kind {
	case lifecycle.KindUnknown:
		s.logger.Warn("WEBHOOK", "Unknown transaction status, review required", map[string]interface{}{
			"orderId":           n.OrderId,
			"transactionStatus": n.TransactionStatus,
			"eventId":           event.Id.String(),
		})
		return finish(OutcomeUnknownStatus, "unknown transaction status: "+n.TransactionStatus)
	case lifecycle.KindNone:
		return finish(OutcomeIgnored, "")
	}

	// re-read inside the transaction so the CAS below starts from current state
	sub, err := uow.SubscriptionRepository().FindOne(ctx, specification.ByID{ID: ref.sub.Id})
	if err != nil {
		return nil, nil, err
	}
	if sub == nil {
		return finish(OutcomeUnknownOrder, "unknown order")
	}

	details := map[string]interface{}{
		"orderId":           n.OrderId,
		"transactionStatus": strings.ToLower(n.TransactionStatus),
		"eventId":           event.Id.String(),
	}

	switch decision.Check(sub.Status) {
	case lifecycle.VerdictAlreadyApplied:
		// the row got there another way, the order still records the payment outcome
		if err := s.settleTransaction(ctx, uow, ref.transaction, n, decision, txTime); err != nil {
			return nil, nil, err
		}
		return finish(OutcomeAlreadyApplied, "")
	case lifecycle.VerdictReject:
		if err := s.machine.Reject(ctx, uow, sub, decision.To, SystemActor(), details); err != nil {
			return nil, nil, err
		}
		return finish(OutcomeInvalidTransition, fmt.Sprintf("invalid transition %s -> %s", sub.Status, decision.To))
	}

	now := s.clock()
	t := Transition{
		From:    decision.From,
		To:      decision.To,
		Action:  decision.Action,
		Actor:   SystemActor(),
		Details: details,
		Role:    decision.Role,
		RoleId:  ref.tier.RoleId,
	}

	if decision.To == entity.SubscriptionStatusActive {
		if paid != ref.transaction.AmountCents {
			if err := s.recordAmountMismatch(ctx, uow, sub, ref.transaction, paid, details); err != nil {
				return nil, nil, err
			}
			return finish(OutcomeAmountMismatch, fmt.Sprintf("paid %d, expected %d", paid, ref.transaction.AmountCents))
		}
		expiry := proration.ExpiryFrom(now, ref.tier.PeriodDays)
		grace := expiry.AddDate(0, 0, s.settings.GracePeriodDays)
		t.Patch = entity.SubscriptionPatch{
			StartDate:         &now,
			ExpiryDate:        &expiry,
			LastPaymentAmount: &paid,
			LastPaymentDate:   &txTime,
			GracePeriodUntil:  &grace,
		}
	}

	commands := make([]*entity.RoleCommand, 0, 2)
	cmd, err := s.machine.Apply(ctx, uow, sub, t)
	if err != nil {
		return nil, nil, err
	}
	if cmd != nil {
		commands = append(commands, cmd)
	}

	if decision.To == entity.SubscriptionStatusActive && ref.previous != nil {
		revoke, err := s.supersede(ctx, uow, ref, sub)
		if err != nil {
			return nil, nil, err
		}
		if revoke != nil {
			commands = append(commands, revoke)
		}
	}

	if err := s.settleTransaction(ctx, uow, ref.transaction, n, decision, txTime); err != nil {
		return nil, nil, err
	}

	if _, err := uow.WebhookEventRepository().MarkProcessed(ctx, event.Id, nil); err != nil {
		return nil, nil, err
	}
	outcome.Kind = OutcomeProcessed
	return outcome, commands, nil
}

// settleTransaction copies the gateway's outcome onto the order. The first
// successful payment date is kept when a settlement follows a capture.
func (s *webhookService) settleTransaction(ctx context.Context, uow unitofwork.UnitOfWork, tx *entity.Transaction, n *midtrans.Notification, decision lifecycle.Decision, txTime time.Time) error {
	tx.Status = decision.TransactionStatus
	if n.TransactionId != "" {
		tx.GatewayTransactionId = &n.TransactionId
	}
	if n.PaymentType != "" {
		tx.PaymentMethod = &n.PaymentType
	}
	if decision.TransactionStatus == entity.TransactionStatusSuccess && tx.PaymentDate == nil {
		tx.PaymentDate = &txTime
	}
	if err := uow.SubscriptionRepository().UpdateTransaction(ctx, tx); err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return nil
}

// supersede closes the active row an upgrade replaces. The old role is only
// revoked when the new tier grants a different one.
func (s *webhookService) supersede(ctx context.Context, uow unitofwork.UnitOfWork, ref *resolved, upgraded *entity.Subscription) (*entity.RoleCommand, error) {
	prev, err := uow.SubscriptionRepository().FindOne(ctx, specification.ByID{ID: ref.previous.Id})
	if err != nil {
		return nil, err
	}
	if prev == nil || prev.Status != entity.SubscriptionStatusActive {
		return nil, nil
	}

	t := Transition{
		From:   entity.SubscriptionStatusActive,
		To:     entity.SubscriptionStatusCancelled,
		Action: entity.ActionSubscriptionSuperseded,
		Actor:  SystemActor(),
		Details: map[string]interface{}{
			"supersededBy": upgraded.Id.String(),
		},
	}
	if ref.prevTier != nil && ref.prevTier.RoleId != ref.tier.RoleId {
		t.Role = entity.RoleActionRevoke
		t.RoleId = ref.prevTier.RoleId
	}
	return s.machine.Apply(ctx, uow, prev, t)
}

func (s *webhookService) recordAmountMismatch(ctx context.Context, uow unitofwork.UnitOfWork, sub *entity.Subscription, tx *entity.Transaction, paid int64, details map[string]interface{}) error {
	s.logger.Warn("WEBHOOK", "Paid amount does not match order", map[string]interface{}{
		"orderId":  tx.GatewayOrderId,
		"paid":     paid,
		"expected": tx.AmountCents,
	})
	return s.machine.activity.Within(uow).Append(ctx, &entity.ActivityLog{
		SubscriptionId: &sub.Id,
		ActorType:      entity.ActorTypeSystem,
		Action:         entity.ActionAmountMismatch,
		Details: mergeDetails(details, map[string]interface{}{
			"paidCents":     paid,
			"expectedCents": tx.AmountCents,
		}),
	})
}

func (s *webhookService) resolve(ctx context.Context, orderId string) (*resolved, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	ref := &resolved{}

	tx, err := uow.SubscriptionRepository().FindTransactionByOrderId(ctx, orderId)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return ref, nil
	}
	ref.transaction = tx

	sub, err := uow.SubscriptionRepository().FindOne(ctx, specification.ByID{ID: tx.SubscriptionId})
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return ref, nil
	}
	ref.sub = sub

	if ref.tier, err = s.getTier(ctx, sub.TierId); err != nil {
		return nil, err
	}

	if sub.PreviousSubscriptionId != nil {
		prev, err := uow.SubscriptionRepository().FindOne(ctx, specification.ByID{ID: *sub.PreviousSubscriptionId})
		if err != nil {
			return nil, err
		}
		if prev != nil {
			ref.previous = prev
			if ref.prevTier, err = s.getTier(ctx, prev.TierId); err != nil {
				return nil, err
			}
		}
	}
	return ref, nil
}

func (s *webhookService) getTier(ctx context.Context, id uuid.UUID) (*entity.Tier, error) {
	tier, err := s.catalog.GetTier(ctx, id)
	if err != nil {
		return nil, err
	}
	if tier == nil {
		return nil, fmt.Errorf("%w: %s", ErrTierNotFound, id)
	}
	return tier, nil
}

// recordUnverified keeps a forged or corrupted delivery for audit. It never
// takes part in processing.
func (s *webhookService) recordUnverified(ctx context.Context, n *midtrans.Notification, body []byte, claimed string, receivedAt time.Time) {
	reason := "invalid signature"
	now := receivedAt.UTC()
	event := &entity.WebhookEvent{
		IdempotencyKey:    midtrans.UnverifiedKey(body),
		GatewayOrderId:    n.OrderId,
		TransactionStatus: strings.ToLower(n.TransactionStatus),
		RawPayload:        body,
		Signature:         claimed,
		Verified:          false,
		Processed:         true,
		ProcessingError:   &reason,
		ReceivedAt:        now,
		ProcessedAt:       &now,
	}

	s.logger.Warn("WEBHOOK", "Notification signature mismatch", map[string]interface{}{
		"orderId": n.OrderId,
	})
	if _, err := s.uowFactory.NewUnitOfWork(ctx).WebhookEventRepository().CreateIfNotExists(ctx, event); err != nil {
		s.logger.Error("WEBHOOK", "Failed to store unverified notification", map[string]interface{}{
			"orderId": n.OrderId,
			"error":   err.Error(),
		})
	}
}
