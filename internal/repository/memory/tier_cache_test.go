package memory

import (
	"context"
	"testing"
	"time"

	"memberpass-be/internal/entity"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCatalog struct {
	tiers map[uuid.UUID]*entity.Tier
	calls int
}

func (c *countingCatalog) GetTier(ctx context.Context, id uuid.UUID) (*entity.Tier, error) {
	c.calls++
	return c.tiers[id], nil
}

func TestTierCache(t *testing.T) {
	id := uuid.New()
	next := &countingCatalog{tiers: map[uuid.UUID]*entity.Tier{id: {Id: id, Name: "Gold", PriceCents: 100}}}
	cache := NewTierCache(next, time.Minute)
	ctx := context.Background()

	first, err := cache.GetTier(ctx, id)
	require.NoError(t, err)
	second, err := cache.GetTier(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, next.calls)
	assert.Equal(t, "Gold", second.Name)

	// callers get copies
	first.Name = "changed"
	third, _ := cache.GetTier(ctx, id)
	assert.Equal(t, "Gold", third.Name)

	// misses are not cached
	missing := uuid.New()
	tier, err := cache.GetTier(ctx, missing)
	require.NoError(t, err)
	assert.Nil(t, tier)
	_, _ = cache.GetTier(ctx, missing)
	assert.Equal(t, 3, next.calls)

	cache.Invalidate(id)
	_, _ = cache.GetTier(ctx, id)
	assert.Equal(t, 4, next.calls)
}
