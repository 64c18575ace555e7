package jobs

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/reelnotes-backend/internal/domain"
	"github.com/yungbote/reelnotes-backend/internal/platform/dbctx"
	"github.com/yungbote/reelnotes-backend/internal/platform/logger"
)

type JobRepo interface {
	Create(dbc dbctx.Context, job *types.Job) (*types.Job, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Job, error)
	// Transition performs a guarded status change: the update only applies
	// while the row still has status == from. Returns false when the guard
	// did not match (someone else moved the job first).
	Transition(dbc dbctx.Context, id uuid.UUID, from, to string, updates map[string]interface{}) (bool, error)
	// SetProgress updates stage and progress for a processing job. Progress
	// is monotonically non-decreasing within a job; stale writes are dropped.
	SetProgress(dbc dbctx.Context, id uuid.UUID, stage string, progress int) error
	// NextUploaded returns the oldest job still waiting for processing, or
	// nil. Claiming it is a separate guarded Transition; two pollers racing
	// on the same row is harmless.
	NextUploaded(dbc dbctx.Context) (*types.Job, error)
}

type jobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRepo(db *gorm.DB, baseLog *logger.Logger) JobRepo {
	return &jobRepo{
		db:  db,
		log: baseLog.With("repo", "JobRepo"),
	}
}

func (r *jobRepo) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *jobRepo) Create(dbc dbctx.Context, job *types.Job) (*types.Job, error) {
	if err := r.conn(dbc).WithContext(dbc.Ctx).Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

func (r *jobRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Job, error) {
	var job types.Job
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *jobRepo) Transition(dbc dbctx.Context, id uuid.UUID, from, to string, updates map[string]interface{}) (bool, error) {
	if !types.CanTransition(from, to) {
		return false, fmt.Errorf("illegal job transition %s -> %s", from, to)
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = to
	updates["updated_at"] = time.Now().UTC()
	res := r.conn(dbc).WithContext(dbc.Ctx).
		Model(&types.Job{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *jobRepo) SetProgress(dbc dbctx.Context, id uuid.UUID, stage string, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	return r.conn(dbc).WithContext(dbc.Ctx).
		Model(&types.Job{}).
		Where("id = ? AND status = ? AND progress <= ?", id, types.JobStatusProcessing, progress).
		Updates(map[string]interface{}{
			"stage":      stage,
			"progress":   progress,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *jobRepo) NextUploaded(dbc dbctx.Context) (*types.Job, error) {
	var job types.Job
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Where("status = ?", types.JobStatusUploaded).
		Order("created_at ASC").
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}
