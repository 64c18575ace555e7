package versions

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/reelnotes-backend/internal/domain"
	"github.com/yungbote/reelnotes-backend/internal/platform/dbctx"
	"github.com/yungbote/reelnotes-backend/internal/platform/logger"
)

// VersionRepo is the storage layer under the version ledger. Rows are
// append-only: there is no update or delete operation on purpose.
type VersionRepo interface {
	Append(dbc dbctx.Context, v *types.DocumentVersion) error
	// Head returns the highest-numbered version for a job, nil when the
	// ledger is empty.
	Head(dbc dbctx.Context, jobID uuid.UUID) (*types.DocumentVersion, error)
	// HeadForUpdate is Head with a row lock; callers must hold a
	// transaction. Used to serialize concurrent ledger writes per job.
	HeadForUpdate(dbc dbctx.Context, jobID uuid.UUID) (*types.DocumentVersion, error)
	GetByNumber(dbc dbctx.Context, jobID uuid.UUID, number int) (*types.DocumentVersion, error)
	ListByJob(dbc dbctx.Context, jobID uuid.UUID) ([]*types.DocumentVersion, error)
}

type versionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewVersionRepo(db *gorm.DB, baseLog *logger.Logger) VersionRepo {
	return &versionRepo{
		db:  db,
		log: baseLog.With("repo", "VersionRepo"),
	}
}

func (r *versionRepo) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

// pgUniqueViolation is the postgres SQLSTATE for a unique-index conflict.
const pgUniqueViolation = "23505"

func (r *versionRepo) Append(dbc dbctx.Context, v *types.DocumentVersion) error {
	err := r.conn(dbc).WithContext(dbc.Ctx).Create(v).Error
	if err == nil {
		return nil
	}
	// Two writers can both pass the locked head check when the loser's
	// re-read still sees the old head; the unique (job_id, version_number)
	// index then rejects the second insert. That is a version conflict,
	// not an internal failure.
	var pgErr *pgconn.PgError
	if errors.Is(err, gorm.ErrDuplicatedKey) || (errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation) {
		return fmt.Errorf("version v%d for job %s already exists: %w", v.VersionNumber, v.JobID, types.ErrConflict)
	}
	return err
}

func (r *versionRepo) Head(dbc dbctx.Context, jobID uuid.UUID) (*types.DocumentVersion, error) {
	return r.head(dbc, jobID, false)
}

func (r *versionRepo) HeadForUpdate(dbc dbctx.Context, jobID uuid.UUID) (*types.DocumentVersion, error) {
	return r.head(dbc, jobID, true)
}

func (r *versionRepo) head(dbc dbctx.Context, jobID uuid.UUID, lock bool) (*types.DocumentVersion, error) {
	q := r.conn(dbc).WithContext(dbc.Ctx).
		Where("job_id = ?", jobID).
		Order("version_number DESC").
		Limit(1)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var v types.DocumentVersion
	if err := q.Find(&v).Error; err != nil {
		return nil, err
	}
	if v.ID == uuid.Nil {
		return nil, nil
	}
	return &v, nil
}

func (r *versionRepo) GetByNumber(dbc dbctx.Context, jobID uuid.UUID, number int) (*types.DocumentVersion, error) {
	var v types.DocumentVersion
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Where("job_id = ? AND version_number = ?", jobID, number).
		Limit(1).
		Find(&v).Error
	if err != nil {
		return nil, err
	}
	if v.ID == uuid.Nil {
		return nil, nil
	}
	return &v, nil
}

func (r *versionRepo) ListByJob(dbc dbctx.Context, jobID uuid.UUID) ([]*types.DocumentVersion, error) {
	var out []*types.DocumentVersion
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Where("job_id = ?", jobID).
		Order("version_number ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
