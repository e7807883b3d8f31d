package contract

import (
	"context"

	"memberpass-be/internal/entity"
	"memberpass-be/internal/repository/specification"

	"github.com/google/uuid"
)

type SubscriptionRepository interface {
	Create(ctx context.Context, subscription *entity.Subscription) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Subscription, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Subscription, error)

	// CompareAndSwapStatus writes `to` (and the patch columns) only if the row is
	// still in `from`. It reports whether the row was updated.
	CompareAndSwapStatus(ctx context.Context, id uuid.UUID, from, to entity.SubscriptionStatus, patch entity.SubscriptionPatch) (bool, error)

	// Transactions
	CreateTransaction(ctx context.Context, transaction *entity.Transaction) error
	FindTransactionByOrderId(ctx context.Context, orderId string) (*entity.Transaction, error)
	UpdateTransaction(ctx context.Context, transaction *entity.Transaction) error
}
