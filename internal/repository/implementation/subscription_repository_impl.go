package implementation

import (
	"context"
	"errors"
	"time"

	"memberpass-be/internal/entity"
	"memberpass-be/internal/mapper"
	"memberpass-be/internal/model"
	"memberpass-be/internal/repository/contract"
	"memberpass-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SubscriptionRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.SubscriptionMapper
}

func NewSubscriptionRepository(db *gorm.DB) contract.SubscriptionRepository {
	return &SubscriptionRepositoryImpl{
		db:     db,
		mapper: mapper.NewSubscriptionMapper(),
	}
}

func (r *SubscriptionRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *SubscriptionRepositoryImpl) Create(ctx context.Context, subscription *entity.Subscription) error {
	m := r.mapper.SubscriptionToModel(subscription)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*subscription = *r.mapper.SubscriptionToEntity(m)
	return nil
}

func (r *SubscriptionRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Subscription, error) {
	var m model.Subscription
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.SubscriptionToEntity(&m), nil
}

func (r *SubscriptionRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Subscription, error) {
	var models []*model.Subscription
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.Subscription, len(models))
	for i, m := range models {
		entities[i] = r.mapper.SubscriptionToEntity(m)
	}
	return entities, nil
}

func (r *SubscriptionRepositoryImpl) CompareAndSwapStatus(ctx context.Context, id uuid.UUID, from, to entity.SubscriptionStatus, patch entity.SubscriptionPatch) (bool, error) {
	updates := map[string]interface{}{
		"status":     string(to),
		"updated_at": time.Now().UTC(),
	}
	if patch.StartDate != nil {
		updates["start_date"] = *patch.StartDate
	}
	if patch.ExpiryDate != nil {
		updates["expiry_date"] = *patch.ExpiryDate
	}
	if patch.LastPaymentAmount != nil {
		updates["last_payment_amount"] = *patch.LastPaymentAmount
	}
	if patch.LastPaymentDate != nil {
		updates["last_payment_date"] = *patch.LastPaymentDate
	}
	if patch.GracePeriodUntil != nil {
		updates["grace_period_until"] = *patch.GracePeriodUntil
	}

	tx := r.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(updates)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

// Transactions

func (r *SubscriptionRepositoryImpl) CreateTransaction(ctx context.Context, transaction *entity.Transaction) error {
	m := r.mapper.TransactionToModel(transaction)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*transaction = *r.mapper.TransactionToEntity(m)
	return nil
}

func (r *SubscriptionRepositoryImpl) FindTransactionByOrderId(ctx context.Context, orderId string) (*entity.Transaction, error) {
	var m model.Transaction
	if err := r.db.WithContext(ctx).Where("gateway_order_id = ?", orderId).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.TransactionToEntity(&m), nil
}

func (r *SubscriptionRepositoryImpl) UpdateTransaction(ctx context.Context, transaction *entity.Transaction) error {
	m := r.mapper.TransactionToModel(transaction)
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return err
	}
	*transaction = *r.mapper.TransactionToEntity(m)
	return nil
}
