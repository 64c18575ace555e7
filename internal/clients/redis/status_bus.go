package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/reelnotes-backend/internal/platform/logger"
)

// StatusEvent is the wire shape published to the status channel. Consumed
// by whatever status-query surface sits in front of the backend.
type StatusEvent struct {
	JobID    uuid.UUID `json:"job_id"`
	Status   string    `json:"status"`
	Stage    string    `json:"stage,omitempty"`
	Progress int       `json:"progress"`
	At       time.Time `json:"at"`
}

// StatusBus publishes job lifecycle updates over redis pub/sub.
// Fire-and-forget: publish failures are logged, never propagated.
type StatusBus interface {
	Publish(ctx context.Context, ev StatusEvent)
	Close() error
}

type statusBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

func NewStatusBus(log *logger.Logger) (StatusBus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ch := strings.TrimSpace(os.Getenv("REDIS_STATUS_CHANNEL"))
	if ch == "" {
		ch = "job_status"
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

	return &statusBus{
		log:     log.With("service", "RedisStatusBus"),
		rdb:     rdb,
		channel: ch,
	}, nil
}

func (b *statusBus) Publish(ctx context.Context, ev StatusEvent) {
	raw, err := json.Marshal(ev)
	if err != nil {
		b.log.Warn("status event marshal failed (dropped)", "job_id", ev.JobID, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil {
		b.log.Warn("status event publish failed (dropped)", "job_id", ev.JobID, "error", err)
	}
}

func (b *statusBus) Close() error {
	return b.rdb.Close()
}
