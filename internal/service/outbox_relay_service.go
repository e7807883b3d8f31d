package service

import (
	"context"
	"fmt"
	"time"

	"memberpass-be/internal/entity"
	"memberpass-be/internal/pkg/logger"
	"memberpass-be/internal/pkg/mailer"
	"memberpass-be/internal/repository/specification"
	"memberpass-be/internal/repository/unitofwork"
	"memberpass-be/pkg/roles"
)

// RolePublisher hands committed outbox rows to the dispatcher. A failed
// dispatch is only logged: the row stays pending and the relay resends it.
type RolePublisher struct {
	dispatcher roles.Dispatcher
	uowFactory unitofwork.RepositoryFactory
	logger     logger.ILogger
}

func NewRolePublisher(dispatcher roles.Dispatcher, uowFactory unitofwork.RepositoryFactory, log logger.ILogger) *RolePublisher {
	return &RolePublisher{dispatcher: dispatcher, uowFactory: uowFactory, logger: log}
}

func (p *RolePublisher) Publish(ctx context.Context, commands ...*entity.RoleCommand) {
	for _, c := range commands {
		if c == nil {
			continue
		}
		if err := p.dispatcher.Dispatch(ctx, roles.CommandFromEntity(c)); err != nil {
			p.logger.Warn("OUTBOX", "Role command dispatch failed, relay will retry", map[string]interface{}{
				"commandId": c.Id.String(),
				"action":    string(c.Action),
				"error":     err.Error(),
			})
			continue
		}
		if err := p.uowFactory.NewUnitOfWork(ctx).RoleCommandRepository().MarkDispatched(ctx, c.Id); err != nil {
			p.logger.Warn("OUTBOX", "Failed to mark role command dispatched", map[string]interface{}{
				"commandId": c.Id.String(),
				"error":     err.Error(),
			})
		}
	}
}

type RelayConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
	// MaxResends bounds how often one command is handed out again before it
	// is given up as undeliverable.
	MaxResends int
	BatchSize  int
}

// OutboxRelay resends role commands nobody settled, covering a crash
// between commit and dispatch or a lost message.
type OutboxRelay struct {
	publisher  *RolePublisher
	uowFactory unitofwork.RepositoryFactory
	failures   *roleFailureRecorder
	cfg        RelayConfig
	logger     logger.ILogger
	clock      func() time.Time
}

func NewOutboxRelay(publisher *RolePublisher, uowFactory unitofwork.RepositoryFactory, activity IActivityService, alerts mailer.IEmailService, cfg RelayConfig, log logger.ILogger) *OutboxRelay {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 2 * time.Minute
	}
	if cfg.MaxResends <= 0 {
		cfg.MaxResends = 5
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &OutboxRelay{
		publisher:  publisher,
		uowFactory: uowFactory,
		failures:   &roleFailureRecorder{activity: activity, alerts: alerts, logger: log},
		cfg:        cfg,
		logger:     log,
		clock:      func() time.Time { return time.Now().UTC() },
	}
}

// Run calls RunOnce every interval until ctx is done.
func (r *OutboxRelay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.Error("OUTBOX", "Relay pass failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
	}
}

// RunOnce resends one batch and returns how many commands it handled.
func (r *OutboxRelay) RunOnce(ctx context.Context) (int, error) {
	now := r.clock()
	uow := r.uowFactory.NewUnitOfWork(ctx)

	stale, err := uow.RoleCommandRepository().FindAll(ctx,
		specification.RoleCommandStatusIn{Statuses: []entity.RoleCommandStatus{
			entity.RoleCommandStatusPending,
			entity.RoleCommandStatusDispatched,
		}},
		specification.UpdatedBefore{At: now.Add(-r.cfg.StaleAfter)},
		specification.Chronological{},
		specification.Pagination{Limit: r.cfg.BatchSize},
	)
	if err != nil {
		return 0, fmt.Errorf("find stale role commands: %w", err)
	}

	// one resend per stale window, so age measures resends already made
	giveUpBefore := now.Add(-r.cfg.StaleAfter * time.Duration(r.cfg.MaxResends+1))
	for _, c := range stale {
		if c.CreatedAt.Before(giveUpBefore) {
			r.abandon(ctx, c)
			continue
		}
		r.logger.Info("OUTBOX", "Resending role command", map[string]interface{}{
			"commandId": c.Id.String(),
			"status":    string(c.Status),
			"age":       now.Sub(c.CreatedAt).String(),
		})
		r.publisher.Publish(ctx, c)
	}
	return len(stale), nil
}

func (r *OutboxRelay) abandon(ctx context.Context, c *entity.RoleCommand) {
	reason := fmt.Sprintf("not consumed after %d resends", r.cfg.MaxResends)
	settled, err := r.uowFactory.NewUnitOfWork(ctx).RoleCommandRepository().
		Settle(ctx, c.Id, entity.RoleCommandStatusFailed, 0, &reason)
	if err != nil {
		r.logger.Error("OUTBOX", "Failed to abandon role command", map[string]interface{}{
			"commandId": c.Id.String(),
			"error":     err.Error(),
		})
		return
	}
	if settled {
		r.failures.record(ctx, c, c.Attempts, reason)
	}
}
