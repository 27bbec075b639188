package reports

import (
	"context"
	"fmt"

	"github.com/atlas-travel/atlas-ledger/internal/platform/cache"
	"github.com/atlas-travel/atlas-ledger/internal/shared"
)

// Cache keeps monthly projections per agent. Each posting bumps the agent's
// version so stale projections are never served.
type Cache struct {
	store *cache.Versioned
}

// NewCache wraps a versioned Redis cache. A nil store disables caching.
func NewCache(store *cache.Versioned) *Cache {
	return &Cache{store: store}
}

// Invalidate bumps the agent's report version.
func (c *Cache) Invalidate(ctx context.Context, agentID int64) error {
	if c == nil || c.store == nil {
		return nil
	}
	_, err := c.store.Bump(ctx, shared.AgentReportCacheKey(agentID))
	return err
}

func (c *Cache) monthlyKey(ctx context.Context, agentID int64, year, month int) (string, error) {
	return c.store.BuildKey(ctx, shared.AgentReportCacheKey(agentID), "monthly", fmt.Sprintf("%04d-%02d", year, month))
}

func (c *Cache) fetch(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	return c.store.FetchJSON(ctx, key, dest, loader)
}
