package redis

import (
	"context"
	"sync"

	types "github.com/yungbote/reelnotes-backend/internal/domain"
)

// MemoryVerdictCache is the in-process fallback used when redis is not
// configured (local runs, tests). Same semantics, no TTL.
type MemoryVerdictCache struct {
	mu       sync.RWMutex
	verdicts map[string]types.Verdict
}

func NewMemoryVerdictCache() *MemoryVerdictCache {
	return &MemoryVerdictCache{verdicts: map[string]types.Verdict{}}
}

func (c *MemoryVerdictCache) Get(ctx context.Context, fingerprint string) (*types.Verdict, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.verdicts[fingerprint]
	if !ok {
		return nil, false, nil
	}
	return &v, true, nil
}

func (c *MemoryVerdictCache) Put(ctx context.Context, fingerprint string, v types.Verdict) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verdicts[fingerprint] = v
	return nil
}

func (c *MemoryVerdictCache) Invalidate(ctx context.Context, fingerprint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.verdicts, fingerprint)
	return nil
}

var _ VerdictCache = (*MemoryVerdictCache)(nil)
