package service

import (
	"context"
	"errors"
	"fmt"

	"memberpass-be/internal/entity"
	"memberpass-be/internal/pkg/logger"
	"memberpass-be/internal/pkg/mailer"
	"memberpass-be/internal/repository/contract"
	"memberpass-be/internal/repository/specification"
	"memberpass-be/internal/repository/unitofwork"
	"memberpass-be/pkg/roles"

	"github.com/google/uuid"
)

type IRoleConsumerService interface {
	Handle(ctx context.Context, cmd roles.Command) error
}

// roleConsumerService executes role commands from the outbox. It is safe to
// deliver the same command more than once.
type roleConsumerService struct {
	uowFactory   unitofwork.RepositoryFactory
	orchestrator *roles.Orchestrator
	catalog      contract.TierCatalog
	failures     *roleFailureRecorder
	logger       logger.ILogger
}

func NewRoleConsumerService(
	uowFactory unitofwork.RepositoryFactory,
	orchestrator *roles.Orchestrator,
	catalog contract.TierCatalog,
	activity IActivityService,
	alerts mailer.IEmailService,
	log logger.ILogger,
) IRoleConsumerService {
	return &roleConsumerService{
		uowFactory:   uowFactory,
		orchestrator: orchestrator,
		catalog:      catalog,
		failures:     &roleFailureRecorder{activity: activity, alerts: alerts, logger: log},
		logger:       log,
	}
}

// skipSettled marks a delivery whose command was settled by an earlier one.
const skipSettled = "already settled"

func (s *roleConsumerService) Handle(ctx context.Context, cmd roles.Command) error {
	row, err := s.uowFactory.NewUnitOfWork(ctx).RoleCommandRepository().FindOne(ctx, specification.ByID{ID: cmd.Id})
	if err != nil {
		return fmt.Errorf("load role command: %w", err)
	}
	if row == nil {
		s.logger.Warn("ROLE", "Role command not in outbox, dropping", map[string]interface{}{
			"commandId": cmd.Id.String(),
		})
		return nil
	}
	if row.Status.IsFinal() {
		s.logDuplicate(row)
		return nil
	}
	// the outbox row is authoritative, the message may be stale or forged
	cmd = roles.CommandFromEntity(row)

	settled := false
	var settleErr error
	_, err = s.orchestrator.ApplyAndSettle(ctx, cmd, s.precondition(cmd), func(ctx context.Context, applied roles.Applied, err error) {
		settled = true
		settleErr = s.settle(ctx, row, applied, err)
	})
	if !settled {
		// lock not acquired, the bus redelivers
		return fmt.Errorf("apply role command: %w", err)
	}
	return settleErr
}

// settle runs under the member/server lock and moves the outbox row to its
// final status.
func (s *roleConsumerService) settle(ctx context.Context, row *entity.RoleCommand, applied roles.Applied, err error) error {
	repo := s.uowFactory.NewUnitOfWork(ctx).RoleCommandRepository()

	if err != nil {
		msg := err.Error()
		settled, serr := repo.Settle(ctx, row.Id, entity.RoleCommandStatusFailed, applied.Attempts, &msg)
		if serr != nil {
			return fmt.Errorf("settle failed role command: %w", serr)
		}
		if settled {
			s.failures.record(ctx, row, row.Attempts+applied.Attempts, msg)
		}
		return nil
	}

	switch applied.SkipReason {
	case "":
	case skipSettled:
		s.logDuplicate(row)
		return nil
	default:
		reason := applied.SkipReason
		if _, err := repo.Settle(ctx, row.Id, entity.RoleCommandStatusSkipped, 0, &reason); err != nil {
			return fmt.Errorf("settle skipped role command: %w", err)
		}
		s.logger.Info("ROLE", "Role command skipped", map[string]interface{}{
			"commandId": row.Id.String(),
			"action":    string(row.Action),
			"reason":    reason,
		})
		return nil
	}

	if _, err := repo.Settle(ctx, row.Id, entity.RoleCommandStatusApplied, applied.Attempts, nil); err != nil {
		return fmt.Errorf("settle applied role command: %w", err)
	}
	s.logger.Info("ROLE", "Role command applied", map[string]interface{}{
		"commandId":      row.Id.String(),
		"subscriptionId": row.SubscriptionId.String(),
		"action":         string(row.Action),
		"roleId":         row.RoleId,
		"attempts":       applied.Attempts,
		"duration":       applied.Duration.String(),
	})
	return nil
}

func (s *roleConsumerService) logDuplicate(row *entity.RoleCommand) {
	s.logger.Debug("ROLE", "Role command already settled", map[string]interface{}{
		"commandId": row.Id.String(),
	})
}

// precondition re-reads the outbox row and the subscriptions once the
// member/server lock is held: nothing for a settled command, no grant unless
// the row is still active, no revoke while another active row entitles the
// member to the same role.
func (s *roleConsumerService) precondition(cmd roles.Command) roles.Precondition {
	return func(ctx context.Context) (string, error) {
		uow := s.uowFactory.NewUnitOfWork(ctx)

		current, err := uow.RoleCommandRepository().FindOne(ctx, specification.ByID{ID: cmd.Id})
		if err != nil {
			return "", err
		}
		if current == nil || current.Status.IsFinal() {
			return skipSettled, nil
		}

		switch cmd.Action {
		case entity.RoleActionGrant:
			sub, err := uow.SubscriptionRepository().FindOne(ctx, specification.ByID{ID: cmd.SubscriptionId})
			if err != nil {
				return "", err
			}
			if sub == nil {
				return "subscription not found", nil
			}
			if sub.Status != entity.SubscriptionStatusActive {
				return fmt.Sprintf("subscription is %s", sub.Status), nil
			}
			return "", nil

		case entity.RoleActionRevoke:
			active, err := uow.SubscriptionRepository().FindAll(ctx,
				specification.ByMemberServer{MemberID: cmd.MemberId, ServerID: cmd.ServerId},
				specification.SubscriptionStatusIn{Statuses: []entity.SubscriptionStatus{entity.SubscriptionStatusActive}},
			)
			if err != nil {
				return "", err
			}
			for _, other := range active {
				if other.Id == cmd.SubscriptionId {
					continue
				}
				tier, err := s.catalog.GetTier(ctx, other.TierId)
				if err != nil {
					return "", err
				}
				if tier != nil && tier.RoleId == cmd.RoleId {
					return fmt.Sprintf("role still held through subscription %s", other.Id), nil
				}
			}
			return "", nil
		}
		return "", nil
	}
}

// roleFailureRecorder writes the audit row and alerts the operator once a
// role command is given up on.
type roleFailureRecorder struct {
	activity IActivityService
	alerts   mailer.IEmailService
	logger   logger.ILogger
}

func (r *roleFailureRecorder) record(ctx context.Context, c *entity.RoleCommand, attempts int, reason string) {
	action := entity.ActionRoleGrantFailed
	if c.Action == entity.RoleActionRevoke {
		action = entity.ActionRoleRevokeFailed
	}

	details := map[string]interface{}{
		"commandId": c.Id.String(),
		"serverId":  c.ServerId,
		"roleId":    c.RoleId,
		"attempts":  attempts,
		"error":     reason,
	}
	r.logger.Error("ROLE", "Role command failed", details)

	subId := c.SubscriptionId
	if err := r.activity.Append(ctx, &entity.ActivityLog{
		SubscriptionId: &subId,
		ActorType:      entity.ActorTypeSystem,
		Action:         action,
		Details:        details,
	}); err != nil {
		r.logger.Error("ROLE", "Failed to record role failure", map[string]interface{}{
			"commandId": c.Id.String(),
			"error":     err.Error(),
		})
	}

	if r.alerts == nil {
		return
	}
	if err := r.alerts.SendRoleFailureAlert(mailer.RoleFailureAlert{
		SubscriptionId: c.SubscriptionId.String(),
		MemberId:       c.MemberId.String(),
		ServerId:       c.ServerId,
		RoleId:         c.RoleId,
		Action:         string(c.Action),
		Attempts:       attempts,
		Error:          reason,
	}); err != nil {
		r.logger.Warn("ROLE", "Failed to send role failure alert", map[string]interface{}{
			"commandId": c.Id.String(),
			"error":     err.Error(),
		})
	}
}

// MemberDirectory resolves members to the platform account they linked.
type MemberDirectory struct {
	uowFactory unitofwork.RepositoryFactory
}

func NewMemberDirectory(uowFactory unitofwork.RepositoryFactory) *MemberDirectory {
	return &MemberDirectory{uowFactory: uowFactory}
}

func (d *MemberDirectory) PlatformUserId(ctx context.Context, memberId uuid.UUID) (string, error) {
	member, err := d.uowFactory.NewUnitOfWork(ctx).MemberRepository().FindById(ctx, memberId)
	if err != nil {
		return "", err
	}
	if member == nil {
		return "", errors.Join(roles.ErrNotLinked, ErrMemberNotFound)
	}
	if member.ExternalUserId == nil || *member.ExternalUserId == "" {
		return "", roles.ErrNotLinked
	}
	return *member.ExternalUserId, nil
}
