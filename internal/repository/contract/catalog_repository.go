package contract

import (
	"context"

	"memberpass-be/internal/entity"

	"github.com/google/uuid"
)

// TierCatalog is the read-only view of the tier catalog.
type TierCatalog interface {
	GetTier(ctx context.Context, id uuid.UUID) (*entity.Tier, error)
}

type MemberRepository interface {
	FindById(ctx context.Context, id uuid.UUID) (*entity.Member, error)
	// LockForUpdate row-locks the member until the surrounding transaction
	// ends. It serialises subscription openings of one member.
	LockForUpdate(ctx context.Context, id uuid.UUID) (*entity.Member, error)
}
