package contract

import (
	"context"

	"memberpass-be/internal/entity"
	"memberpass-be/internal/repository/specification"

	"github.com/google/uuid"
)

type RoleCommandRepository interface {
	Create(ctx context.Context, command *entity.RoleCommand) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.RoleCommand, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.RoleCommand, error)
	// MarkDispatched moves an unsettled command to dispatched and refreshes updated_at,
	// which the outbox relay uses to find commands nobody consumed.
	MarkDispatched(ctx context.Context, id uuid.UUID) error
	// Settle stores the final status unless another consumer already settled the command.
	Settle(ctx context.Context, id uuid.UUID, status entity.RoleCommandStatus, attempts int, lastError *string) (bool, error)
}
