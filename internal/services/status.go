package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/yungbote/reelnotes-backend/internal/clients/redis"
	"github.com/yungbote/reelnotes-backend/internal/platform/logger"
)

// JobStatusSink receives job lifecycle updates. Fire-and-forget; nothing in
// the pipeline blocks on or fails because of status delivery.
type JobStatusSink interface {
	Update(ctx context.Context, jobID uuid.UUID, status, stage string, progress int)
}

type redisStatusSink struct {
	log *logger.Logger
	bus redisclient.StatusBus
}

func NewRedisStatusSink(log *logger.Logger, bus redisclient.StatusBus) JobStatusSink {
	return &redisStatusSink{
		log: log.With("service", "RedisStatusSink"),
		bus: bus,
	}
}

func (s *redisStatusSink) Update(ctx context.Context, jobID uuid.UUID, status, stage string, progress int) {
	s.bus.Publish(ctx, redisclient.StatusEvent{
		JobID:    jobID,
		Status:   status,
		Stage:    stage,
		Progress: progress,
		At:       time.Now().UTC(),
	})
}

// NopStatusSink drops all updates. Used when redis is not configured.
type NopStatusSink struct{}

func (NopStatusSink) Update(ctx context.Context, jobID uuid.UUID, status, stage string, progress int) {
}

var _ JobStatusSink = NopStatusSink{}
