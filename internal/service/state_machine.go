package service

import (
	"context"
	"fmt"

	"memberpass-be/internal/entity"
	"memberpass-be/internal/pkg/logger"
	"memberpass-be/internal/repository/specification"
	"memberpass-be/internal/repository/unitofwork"
	"memberpass-be/pkg/billing/lifecycle"

	"github.com/google/uuid"
)

type Actor struct {
	Type entity.ActorType
	Id   *uuid.UUID
}

func SystemActor() Actor {
	return Actor{Type: entity.ActorTypeSystem}
}

func OwnerActor(id uuid.UUID) Actor {
	return Actor{Type: entity.ActorTypeServerOwner, Id: &id}
}

// Transition is one requested status change of a subscription row.
type Transition struct {
	From    entity.SubscriptionStatus
	To      entity.SubscriptionStatus
	Patch   entity.SubscriptionPatch
	Action  string
	Actor   Actor
	Details map[string]interface{}
	// Role and RoleId describe the role command emitted with the change, if any.
	Role   entity.RoleAction
	RoleId string
}

// StateMachine is the only writer of subscription status. Every call runs
// inside the caller's unit of work.
type StateMachine struct {
	activity IActivityService
	logger   logger.ILogger
}

func NewStateMachine(activity IActivityService, log logger.ILogger) *StateMachine {
	return &StateMachine{activity: activity, logger: log}
}

// Apply moves sub from t.From to t.To, records the activity and queues the
// role command in the outbox. sub is updated in place on success.
func (m *StateMachine) Apply(ctx context.Context, uow unitofwork.UnitOfWork, sub *entity.Subscription, t Transition) (*entity.RoleCommand, error) {
	if sub.Status != t.From || !lifecycle.CanTransition(t.From, t.To) {
		if err := m.Reject(ctx, uow, sub, t.To, t.Actor, t.Details); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, sub.Status, t.To)
	}

	ok, err := uow.SubscriptionRepository().CompareAndSwapStatus(ctx, sub.Id, t.From, t.To, t.Patch)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: subscription %s left %s", ErrStaleStatus, sub.Id, t.From)
	}
	applyPatch(sub, t.To, t.Patch)

	details := mergeDetails(t.Details, map[string]interface{}{
		"from": string(t.From),
		"to":   string(t.To),
	})
	if err := m.activity.Within(uow).Append(ctx, &entity.ActivityLog{
		SubscriptionId: &sub.Id,
		ActorType:      t.Actor.Type,
		ActorId:        t.Actor.Id,
		Action:         t.Action,
		Details:        details,
	}); err != nil {
		return nil, err
	}

	m.logger.Info("LIFECYCLE", "Subscription transitioned", map[string]interface{}{
		"subscriptionId": sub.Id.String(),
		"from":           string(t.From),
		"to":             string(t.To),
		"action":         t.Action,
	})

	if t.Role == "" || t.RoleId == "" {
		return nil, nil
	}
	return m.queueRole(ctx, uow, sub, t.Role, t.RoleId)
}

// Reject records a refused transition. The row itself is left untouched.
func (m *StateMachine) Reject(ctx context.Context, uow unitofwork.UnitOfWork, sub *entity.Subscription, to entity.SubscriptionStatus, actor Actor, details map[string]interface{}) error {
	details = mergeDetails(details, map[string]interface{}{
		"from":    string(sub.Status),
		"to":      string(to),
		"allowed": statusStrings(lifecycle.ValidTransitionsFrom(sub.Status)),
	})

	m.logger.Warn("LIFECYCLE", "Transition rejected", map[string]interface{}{
		"subscriptionId": sub.Id.String(),
		"from":           string(sub.Status),
		"to":             string(to),
	})

	return m.activity.Within(uow).Append(ctx, &entity.ActivityLog{
		SubscriptionId: &sub.Id,
		ActorType:      actor.Type,
		ActorId:        actor.Id,
		Action:         entity.ActionTransitionRejected,
		Details:        details,
	})
}

// QueueRole writes a role command outside a status change, e.g. an owner
// asking to re-apply a role.
func (m *StateMachine) QueueRole(ctx context.Context, uow unitofwork.UnitOfWork, sub *entity.Subscription, action entity.RoleAction, roleId string) (*entity.RoleCommand, error) {
	return m.queueRole(ctx, uow, sub, action, roleId)
}

func (m *StateMachine) queueRole(ctx context.Context, uow unitofwork.UnitOfWork, sub *entity.Subscription, action entity.RoleAction, roleId string) (*entity.RoleCommand, error) {
	cmd := &entity.RoleCommand{
		Id:             uuid.New(),
		SubscriptionId: sub.Id,
		MemberId:       sub.MemberId,
		ServerId:       sub.ServerId,
		RoleId:         roleId,
		Action:         action,
		Status:         entity.RoleCommandStatusPending,
	}
	if err := uow.RoleCommandRepository().Create(ctx, cmd); err != nil {
		return nil, fmt.Errorf("queue role %s: %w", action, err)
	}
	return cmd, nil
}

// OpenPending creates next as a Pending row. A predecessor, when given, is
// linked through PreviousSubscriptionId and must allow the move to Pending.
// Only an Active predecessor may stay open next to the new row (upgrade).
func (m *StateMachine) OpenPending(ctx context.Context, uow unitofwork.UnitOfWork, predecessor, next *entity.Subscription, actor Actor, details map[string]interface{}) error {
	action := entity.ActionPurchaseInitiated
	if predecessor != nil {
		if !lifecycle.CanTransition(predecessor.Status, entity.SubscriptionStatusPending) {
			if err := m.Reject(ctx, uow, predecessor, entity.SubscriptionStatusPending, actor, details); err != nil {
				return err
			}
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, predecessor.Status, entity.SubscriptionStatusPending)
		}
		action = lifecycle.PendingReason(predecessor.Status)
		next.PreviousSubscriptionId = &predecessor.Id
	}

	open, err := uow.SubscriptionRepository().FindAll(ctx,
		specification.ByMemberServer{MemberID: next.MemberId, ServerID: next.ServerId},
		specification.NonTerminal{},
	)
	if err != nil {
		return err
	}
	for _, o := range open {
		upgrading := predecessor != nil &&
			predecessor.Status == entity.SubscriptionStatusActive &&
			o.Id == predecessor.Id
		if !upgrading {
			return ErrOpenSubscriptionExists
		}
	}

	next.Status = entity.SubscriptionStatusPending
	if err := uow.SubscriptionRepository().Create(ctx, next); err != nil {
		return fmt.Errorf("open pending subscription: %w", err)
	}

	return m.activity.Within(uow).Append(ctx, &entity.ActivityLog{
		SubscriptionId: &next.Id,
		ActorType:      actor.Type,
		ActorId:        actor.Id,
		Action:         action,
		Details:        details,
	})
}

func applyPatch(sub *entity.Subscription, to entity.SubscriptionStatus, p entity.SubscriptionPatch) {
	sub.Status = to
	if p.StartDate != nil {
		sub.StartDate = p.StartDate
	}
	if p.ExpiryDate != nil {
		sub.ExpiryDate = p.ExpiryDate
	}
	if p.LastPaymentAmount != nil {
		sub.LastPaymentAmount = p.LastPaymentAmount
	}
	if p.LastPaymentDate != nil {
		sub.LastPaymentDate = p.LastPaymentDate
	}
	if p.GracePeriodUntil != nil {
		sub.GracePeriodUntil = p.GracePeriodUntil
	}
}

func mergeDetails(base, extra map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func statusStrings(statuses []entity.SubscriptionStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
