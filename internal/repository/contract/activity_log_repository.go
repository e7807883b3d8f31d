package contract

import (
	"context"

	"memberpass-be/internal/entity"
	"memberpass-be/internal/repository/specification"
)

// ActivityLogRepository is append-only: there is no update or delete.
type ActivityLogRepository interface {
	Append(ctx context.Context, entry *entity.ActivityLog) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ActivityLog, error)
}
