package contract

import (
	"context"

	"memberpass-be/internal/entity"
	"memberpass-be/internal/repository/specification"

	"github.com/google/uuid"
)

type WebhookEventRepository interface {
	// CreateIfNotExists inserts the event unless its idempotency key is taken.
	// It reports whether this call created the row and loads the stored row id into event.
	CreateIfNotExists(ctx context.Context, event *entity.WebhookEvent) (bool, error)
	// MarkProcessed records the outcome once; later calls are no-ops.
	MarkProcessed(ctx context.Context, id uuid.UUID, processingError *string) (bool, error)
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.WebhookEvent, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.WebhookEvent, error)
}
