package service

import (
	"context"
	"fmt"

	"memberpass-be/internal/entity"
	"memberpass-be/internal/pkg/logger"
	"memberpass-be/internal/repository/specification"
	"memberpass-be/internal/repository/unitofwork"

	"github.com/google/uuid"
)

type ActivityWriter interface {
	Append(ctx context.Context, entry *entity.ActivityLog) error
}

// IActivityService is the single audit trail for automated and manual actors.
// There is no update or delete.
type IActivityService interface {
	ActivityWriter
	// Within binds writes to the caller's unit of work so the row commits
	// or rolls back with the change it describes.
	Within(uow unitofwork.UnitOfWork) ActivityWriter
	ListForSubscription(ctx context.Context, subscriptionId uuid.UUID) ([]*entity.ActivityLog, error)
}

type activityService struct {
	uowFactory unitofwork.RepositoryFactory
	logger     logger.ILogger
}

func NewActivityService(uowFactory unitofwork.RepositoryFactory, log logger.ILogger) IActivityService {
	return &activityService{uowFactory: uowFactory, logger: log}
}

func (s *activityService) Append(ctx context.Context, entry *entity.ActivityLog) error {
	return s.Within(s.uowFactory.NewUnitOfWork(ctx)).Append(ctx, entry)
}

func (s *activityService) Within(uow unitofwork.UnitOfWork) ActivityWriter {
	return &boundActivityWriter{uow: uow, logger: s.logger}
}

func (s *activityService) ListForSubscription(ctx context.Context, subscriptionId uuid.UUID) ([]*entity.ActivityLog, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	return uow.ActivityLogRepository().FindAll(ctx,
		specification.BySubscription{ID: subscriptionId},
		specification.Chronological{},
	)
}

type boundActivityWriter struct {
	uow    unitofwork.UnitOfWork
	logger logger.ILogger
}

func (w *boundActivityWriter) Append(ctx context.Context, entry *entity.ActivityLog) error {
	if err := validateActivity(entry); err != nil {
		return err
	}
	if err := w.uow.ActivityLogRepository().Append(ctx, entry); err != nil {
		return fmt.Errorf("append activity %s: %w", entry.Action, err)
	}

	details := map[string]interface{}{
		"action":    entry.Action,
		"actorType": string(entry.ActorType),
	}
	if entry.SubscriptionId != nil {
		details["subscriptionId"] = entry.SubscriptionId.String()
	}
	w.logger.Debug("ACTIVITY", "Activity recorded", details)
	return nil
}

func validateActivity(entry *entity.ActivityLog) error {
	if entry == nil || entry.Action == "" {
		return fmt.Errorf("activity entry requires an action")
	}
	switch entry.ActorType {
	case entity.ActorTypeSystem:
	case entity.ActorTypeServerOwner:
		if entry.ActorId == nil {
			return fmt.Errorf("server owner activity requires an actor id")
		}
	default:
		return fmt.Errorf("unknown actor type %q", entry.ActorType)
	}
	return nil
}
