package unitofwork

import (
	"context"
	"fmt"

	"memberpass-be/internal/repository/contract"
	"memberpass-be/internal/repository/implementation"

	"gorm.io/gorm"
)

type UnitOfWorkImpl struct {
	db *gorm.DB
	tx *gorm.DB
}

func NewUnitOfWork(db *gorm.DB) UnitOfWork {
	return &UnitOfWorkImpl{
		db: db,
	}
}

func (u *UnitOfWorkImpl) getDB() *gorm.DB {
	if u.tx != nil {
		return u.tx
	}
	return u.db
}

func (u *UnitOfWorkImpl) Begin(ctx context.Context) error {
	if u.tx != nil {
		return fmt.Errorf("transaction already started")
	}
	tx := u.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	u.tx = tx
	return nil
}

func (u *UnitOfWorkImpl) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("no transaction to commit")
	}
	err := u.tx.Commit().Error
	u.tx = nil
	return err
}

// Rollback after Commit is a no-op so callers can defer it unconditionally.
func (u *UnitOfWorkImpl) Rollback() error {
	if u.tx == nil {
		return nil
	}
	err := u.tx.Rollback().Error
	u.tx = nil
	return err
}

// Repository Accessors

func (u *UnitOfWorkImpl) SubscriptionRepository() contract.SubscriptionRepository {
	return implementation.NewSubscriptionRepository(u.getDB())
}

func (u *UnitOfWorkImpl) WebhookEventRepository() contract.WebhookEventRepository {
	return implementation.NewWebhookEventRepository(u.getDB())
}

func (u *UnitOfWorkImpl) ActivityLogRepository() contract.ActivityLogRepository {
	return implementation.NewActivityLogRepository(u.getDB())
}

func (u *UnitOfWorkImpl) RoleCommandRepository() contract.RoleCommandRepository {
	return implementation.NewRoleCommandRepository(u.getDB())
}

func (u *UnitOfWorkImpl) TierCatalog() contract.TierCatalog {
	return implementation.NewTierCatalog(u.getDB())
}

func (u *UnitOfWorkImpl) MemberRepository() contract.MemberRepository {
	return implementation.NewMemberRepository(u.getDB())
}
