package memory

import (
	"context"
	"time"

	"memberpass-be/internal/entity"
	"memberpass-be/internal/repository/contract"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// TierCache fronts the tier catalog. Tiers change rarely and every webhook
// reads one, so lookups are served from process memory.
type TierCache struct {
	next  contract.TierCatalog
	cache *cache.Cache
}

func NewTierCache(next contract.TierCatalog, ttl time.Duration) *TierCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &TierCache{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (c *TierCache) GetTier(ctx context.Context, id uuid.UUID) (*entity.Tier, error) {
	if x, found := c.cache.Get(id.String()); found {
		tier := *x.(*entity.Tier)
		return &tier, nil
	}

	tier, err := c.next.GetTier(ctx, id)
	if err != nil || tier == nil {
		return tier, err
	}
	cached := *tier
	c.cache.Set(id.String(), &cached, cache.DefaultExpiration)
	return tier, nil
}

func (c *TierCache) Invalidate(id uuid.UUID) {
	c.cache.Delete(id.String())
}
