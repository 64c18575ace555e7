package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	types "github.com/yungbote/reelnotes-backend/internal/domain"
	"github.com/yungbote/reelnotes-backend/internal/modules/notes/steps"
	"github.com/yungbote/reelnotes-backend/internal/platform/dbctx"
	"github.com/yungbote/reelnotes-backend/internal/platform/envutil"
	"github.com/yungbote/reelnotes-backend/internal/platform/logger"
)

// Worker polls for uploaded jobs and runs the document pipeline on them.
// The poll-then-claim split makes multiple worker goroutines (or multiple
// processes) safe: only the guarded transition inside the pipeline actually
// takes ownership of a job.
type Worker struct {
	log  *logger.Logger
	deps steps.BuildDeps
}

func NewWorker(baseLog *logger.Logger, deps steps.BuildDeps) *Worker {
	return &Worker{
		log:  baseLog.With("component", "JobWorker"),
		deps: deps,
	}
}

func (w *Worker) Start(ctx context.Context) {
	concurrency := envutil.Int("WORKER_CONCURRENCY", 2)
	if concurrency < 1 {
		concurrency = 1
	}
	w.log.Info("starting job worker pool", "concurrency", concurrency)

	for i := 0; i < concurrency; i++ {
		go w.runLoop(ctx, i+1)
	}
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			job, err := w.deps.Jobs.NextUploaded(dbctx.Context{Ctx: ctx})
			if err != nil {
				w.log.Warn("poll for uploaded jobs failed", "worker_id", workerID, "error", err)
				continue
			}
			if job == nil {
				continue
			}
			w.run(ctx, workerID, job)
		}
	}
}

func (w *Worker) run(ctx context.Context, workerID int, job *types.Job) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("pipeline panic", "worker_id", workerID, "job_id", job.ID.String(), "panic", r)
			w.failFromPanic(ctx, job, r)
		}
	}()

	_, err := steps.BuildDocument(ctx, w.deps, steps.BuildInput{JobID: job.ID})
	switch {
	case err == nil:
	case errors.Is(err, steps.ErrCancelled):
	case errors.Is(err, types.ErrConflict):
		// Another worker claimed it first.
	default:
		w.log.Warn("pipeline failed", "worker_id", workerID, "job_id", job.ID.String(), "error", err)
	}
}

func (w *Worker) failFromPanic(ctx context.Context, job *types.Job, r any) {
	cause := fmt.Errorf("pipeline panic: %v", r)
	_, err := w.deps.Jobs.Transition(dbctx.Context{Ctx: ctx}, job.ID, types.JobStatusProcessing, types.JobStatusFailed, map[string]interface{}{
		"error": cause.Error(),
	})
	if err != nil {
		w.log.Error("could not mark panicked job failed", "job_id", job.ID.String(), "error", err)
	}
}
