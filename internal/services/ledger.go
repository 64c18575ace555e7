package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/reelnotes-backend/internal/data/repos/versions"
	types "github.com/yungbote/reelnotes-backend/internal/domain"
	"github.com/yungbote/reelnotes-backend/internal/platform/dbctx"
	"github.com/yungbote/reelnotes-backend/internal/platform/logger"
)

// VersionLedger is the only structure mutated by more than one logical
// actor (initial generation vs concurrent edits). CreateVersion serializes
// writers per job through a locked head read; a parent that is no longer
// head surfaces as types.ErrConflict, never auto-resolved.
type VersionLedger interface {
	// CreateVersion appends a new version. parentVersion 0 means "first
	// version" (the ledger must be empty). The ledger assigns the version
	// number and stamps it, with the generation timestamp, into the
	// artifact content itself before storing.
	CreateVersion(ctx context.Context, jobID uuid.UUID, content types.DocumentContent, parentVersion int, changeDescription string) (*types.DocumentVersion, error)
	GetVersion(ctx context.Context, jobID uuid.UUID, number int) (*types.DocumentVersion, error)
	ListVersions(ctx context.Context, jobID uuid.UUID) ([]*types.DocumentVersion, error)
	Head(ctx context.Context, jobID uuid.UUID) (*types.DocumentVersion, error)
}

type versionLedger struct {
	db    *gorm.DB
	log   *logger.Logger
	repo  versions.VersionRepo
	store BlobStore
}

func NewVersionLedger(db *gorm.DB, baseLog *logger.Logger, repo versions.VersionRepo, store BlobStore) VersionLedger {
	return &versionLedger{
		db:    db,
		log:   baseLog.With("service", "VersionLedger"),
		repo:  repo,
		store: store,
	}
}

func ArtifactKey(jobID uuid.UUID, versionNumber int) string {
	return fmt.Sprintf("jobs/%s/versions/v%d/document.json", jobID, versionNumber)
}

func (l *versionLedger) CreateVersion(ctx context.Context, jobID uuid.UUID, content types.DocumentContent, parentVersion int, changeDescription string) (*types.DocumentVersion, error) {
	if jobID == uuid.Nil {
		return nil, fmt.Errorf("missing job_id")
	}
	if parentVersion < 0 {
		return nil, fmt.Errorf("invalid parent_version %d", parentVersion)
	}

	var created *types.DocumentVersion
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		head, err := l.repo.HeadForUpdate(dbc, jobID)
		if err != nil {
			return fmt.Errorf("read ledger head: %w", err)
		}

		headNumber := 0
		if head != nil {
			headNumber = head.VersionNumber
		}
		if parentVersion != headNumber {
			return fmt.Errorf("parent v%d is not head v%d: %w", parentVersion, headNumber, types.ErrConflict)
		}

		number := headNumber + 1
		now := time.Now().UTC()

		// The artifact is self-describing: version and timestamp live inside
		// the stored document, not just on the ledger row.
		content.Version = number
		content.GeneratedAt = now
		content.ChangeDescription = changeDescription

		raw, err := json.Marshal(content)
		if err != nil {
			return fmt.Errorf("marshal document content: %w", err)
		}

		key := ArtifactKey(jobID, number)
		if err := PutBytes(ctx, l.store, key, raw); err != nil {
			return fmt.Errorf("store artifact %s: %w", key, err)
		}

		row := &types.DocumentVersion{
			ID:                uuid.New(),
			JobID:             jobID,
			VersionNumber:     number,
			ChangeDescription: changeDescription,
			ArtifactKey:       key,
			Content:           datatypes.JSON(raw),
			CreatedAt:         now,
		}
		if parentVersion > 0 {
			p := parentVersion
			row.ParentVersion = &p
		}
		if err := l.repo.Append(dbc, row); err != nil {
			return fmt.Errorf("append version row: %w", err)
		}

		created = row
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("version created",
		"job_id", jobID,
		"version", created.VersionNumber,
		"parent", parentVersion,
	)
	return created, nil
}

func (l *versionLedger) GetVersion(ctx context.Context, jobID uuid.UUID, number int) (*types.DocumentVersion, error) {
	v, err := l.repo.GetByNumber(dbctx.Context{Ctx: ctx}, jobID, number)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("version v%d for job %s: %w", number, jobID, types.ErrNotFound)
	}
	return v, nil
}

func (l *versionLedger) ListVersions(ctx context.Context, jobID uuid.UUID) ([]*types.DocumentVersion, error) {
	return l.repo.ListByJob(dbctx.Context{Ctx: ctx}, jobID)
}

func (l *versionLedger) Head(ctx context.Context, jobID uuid.UUID) (*types.DocumentVersion, error) {
	return l.repo.Head(dbctx.Context{Ctx: ctx}, jobID)
}
