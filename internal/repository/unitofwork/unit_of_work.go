package unitofwork

import (
	"context"

	"memberpass-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	SubscriptionRepository() contract.SubscriptionRepository
	WebhookEventRepository() contract.WebhookEventRepository
	ActivityLogRepository() contract.ActivityLogRepository
	RoleCommandRepository() contract.RoleCommandRepository
	TierCatalog() contract.TierCatalog
	MemberRepository() contract.MemberRepository
}
