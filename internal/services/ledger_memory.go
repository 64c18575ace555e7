package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/yungbote/reelnotes-backend/internal/domain"
)

// MemoryVersionLedger implements VersionLedger in process with the same
// conflict semantics as the database-backed ledger. Used by tests and by
// local runs without postgres.
type MemoryVersionLedger struct {
	mu     sync.Mutex
	chains map[uuid.UUID][]*types.DocumentVersion
	store  BlobStore
}

func NewMemoryVersionLedger(store BlobStore) *MemoryVersionLedger {
	return &MemoryVersionLedger{
		chains: map[uuid.UUID][]*types.DocumentVersion{},
		store:  store,
	}
}

func (l *MemoryVersionLedger) CreateVersion(ctx context.Context, jobID uuid.UUID, content types.DocumentContent, parentVersion int, changeDescription string) (*types.DocumentVersion, error) {
	if jobID == uuid.Nil {
		return nil, fmt.Errorf("missing job_id")
	}
	if parentVersion < 0 {
		return nil, fmt.Errorf("invalid parent_version %d", parentVersion)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	chain := l.chains[jobID]
	headNumber := len(chain)
	if parentVersion != headNumber {
		return nil, fmt.Errorf("parent v%d is not head v%d: %w", parentVersion, headNumber, types.ErrConflict)
	}

	number := headNumber + 1
	now := time.Now().UTC()
	content.Version = number
	content.GeneratedAt = now
	content.ChangeDescription = changeDescription

	raw, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("marshal document content: %w", err)
	}
	key := ArtifactKey(jobID, number)
	if l.store != nil {
		if err := PutBytes(ctx, l.store, key, raw); err != nil {
			return nil, fmt.Errorf("store artifact %s: %w", key, err)
		}
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
	l.chains[jobID] = append(chain, row)
	return row, nil
}

func (l *MemoryVersionLedger) GetVersion(ctx context.Context, jobID uuid.UUID, number int) (*types.DocumentVersion, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	chain := l.chains[jobID]
	if number < 1 || number > len(chain) {
		return nil, fmt.Errorf("version v%d for job %s: %w", number, jobID, types.ErrNotFound)
	}
	return chain[number-1], nil
}

func (l *MemoryVersionLedger) ListVersions(ctx context.Context, jobID uuid.UUID) ([]*types.DocumentVersion, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	chain := l.chains[jobID]
	out := make([]*types.DocumentVersion, len(chain))
	copy(out, chain)
	return out, nil
}

func (l *MemoryVersionLedger) Head(ctx context.Context, jobID uuid.UUID) (*types.DocumentVersion, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	chain := l.chains[jobID]
	if len(chain) == 0 {
		return nil, nil
	}
	return chain[len(chain)-1], nil
}

var _ VersionLedger = (*MemoryVersionLedger)(nil)
