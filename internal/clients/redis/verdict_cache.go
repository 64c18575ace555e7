package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	types "github.com/yungbote/reelnotes-backend/internal/domain"
	"github.com/yungbote/reelnotes-backend/internal/platform/logger"
)

// VerdictCache maps a content fingerprint of frame bytes to a cached
// verification verdict, so identical frames (re-verification during edits,
// repeated stills) are not re-scored.
type VerdictCache interface {
	Get(ctx context.Context, fingerprint string) (*types.Verdict, bool, error)
	Put(ctx context.Context, fingerprint string, v types.Verdict) error
	Invalidate(ctx context.Context, fingerprint string) error
}

type verdictCache struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

func NewVerdictCache(log *logger.Logger) (VerdictCache, error) {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &verdictCache{
		log: log.With("service", "RedisVerdictCache"),
		rdb: rdb,
		ttl: 7 * 24 * time.Hour,
	}, nil
}

func cacheKey(fingerprint string) string { return "verdict:" + fingerprint }

func (c *verdictCache) Get(ctx context.Context, fingerprint string) (*types.Verdict, bool, error) {
	raw, err := c.rdb.Get(ctx, cacheKey(fingerprint)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var v types.Verdict
	if err := json.Unmarshal(raw, &v); err != nil {
		// Corrupt entry: treat as miss and drop it.
		_ = c.rdb.Del(ctx, cacheKey(fingerprint)).Err()
		return nil, false, nil
	}
	return &v, true, nil
}

func (c *verdictCache) Put(ctx context.Context, fingerprint string, v types.Verdict) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, cacheKey(fingerprint), raw, c.ttl).Err()
}

func (c *verdictCache) Invalidate(ctx context.Context, fingerprint string) error {
	return c.rdb.Del(ctx, cacheKey(fingerprint)).Err()
}
