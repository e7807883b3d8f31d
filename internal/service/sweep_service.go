package service

import (
	"context"
	"errors"
	"time"

	"memberpass-be/internal/entity"
	"memberpass-be/internal/pkg/logger"
	"memberpass-be/internal/repository/contract"
	"memberpass-be/internal/repository/specification"
	"memberpass-be/internal/repository/unitofwork"
)

type SweepReport struct {
	TimedOut int
	Expired  int
	Skipped  int
}

type ISweepService interface {
	Run(ctx context.Context) (*SweepReport, error)
}

// sweepService closes rows no webhook will ever resolve: abandoned
// checkouts and memberships whose paid period and grace are over.
type sweepService struct {
	uowFactory     unitofwork.RepositoryFactory
	catalog        contract.TierCatalog
	machine        *StateMachine
	publisher      *RolePublisher
	pendingTimeout time.Duration
	logger         logger.ILogger
	clock          func() time.Time
}

func NewSweepService(
	uowFactory unitofwork.RepositoryFactory,
	catalog contract.TierCatalog,
	machine *StateMachine,
	publisher *RolePublisher,
	pendingTimeout time.Duration,
	log logger.ILogger,
) ISweepService {
	if pendingTimeout <= 0 {
		pendingTimeout = time.Hour
	}
	return &sweepService{
		uowFactory:     uowFactory,
		catalog:        catalog,
		machine:        machine,
		publisher:      publisher,
		pendingTimeout: pendingTimeout,
		logger:         log,
		clock:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *sweepService) Run(ctx context.Context) (*SweepReport, error) {
	now := s.clock()
	report := &SweepReport{}
	repo := s.uowFactory.NewUnitOfWork(ctx).SubscriptionRepository()

	pending, err := repo.FindAll(ctx,
		specification.SubscriptionStatusIn{Statuses: []entity.SubscriptionStatus{entity.SubscriptionStatusPending}},
		specification.CreatedBefore{At: now.Add(-s.pendingTimeout)},
		specification.Chronological{},
	)
	if err != nil {
		return nil, err
	}
	for _, sub := range pending {
		ok, err := s.close(ctx, sub, Transition{
			From:   entity.SubscriptionStatusPending,
			To:     entity.SubscriptionStatusCancelled,
			Action: entity.ActionPurchaseTimedOut,
			Actor:  SystemActor(),
			Details: map[string]interface{}{
				"pendingSince": sub.CreatedAt.Format(time.RFC3339),
			},
		})
		if err != nil {
			return report, err
		}
		if ok {
			report.TimedOut++
		} else {
			report.Skipped++
		}
	}

	lapsed, err := repo.FindAll(ctx,
		specification.SubscriptionStatusIn{Statuses: []entity.SubscriptionStatus{entity.SubscriptionStatusActive}},
		specification.AccessLapsedBefore{At: now},
		specification.Chronological{},
	)
	if err != nil {
		return report, err
	}
	for _, sub := range lapsed {
		tier, err := s.catalog.GetTier(ctx, sub.TierId)
		if err != nil {
			return report, err
		}
		t := Transition{
			From:   entity.SubscriptionStatusActive,
			To:     entity.SubscriptionStatusExpired,
			Action: entity.ActionSubscriptionExpired,
			Actor:  SystemActor(),
			Details: map[string]interface{}{
				"expiryDate": sub.ExpiryDate,
			},
		}
		if tier != nil {
			t.Role = entity.RoleActionRevoke
			t.RoleId = tier.RoleId
		}
		ok, err := s.close(ctx, sub, t)
		if err != nil {
			return report, err
		}
		if ok {
			report.Expired++
		} else {
			report.Skipped++
		}
	}

	s.logger.Info("SWEEP", "Sweep finished", map[string]interface{}{
		"timedOut": report.TimedOut,
		"expired":  report.Expired,
		"skipped":  report.Skipped,
	})
	return report, nil
}

// close applies t in its own transaction. A row a webhook moved in the
// meantime is skipped rather than treated as an error.
func (s *sweepService) close(ctx context.Context, sub *entity.Subscription, t Transition) (bool, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return false, err
	}
	defer uow.Rollback()

	cmd, err := s.machine.Apply(ctx, uow, sub, t)
	if errors.Is(err, ErrStaleStatus) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := uow.Commit(); err != nil {
		return false, err
	}

	s.publisher.Publish(ctx, cmd)
	return true, nil
}
