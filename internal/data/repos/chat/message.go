package chat

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/reelnotes-backend/internal/domain"
	"github.com/yungbote/reelnotes-backend/internal/platform/dbctx"
	"github.com/yungbote/reelnotes-backend/internal/platform/logger"
)

// ChatMessageRepo appends to and reads a job's chat history. History is
// never rewritten.
type ChatMessageRepo interface {
	Append(dbc dbctx.Context, msg *types.ChatMessage) error
	ListByJob(dbc dbctx.Context, jobID uuid.UUID) ([]*types.ChatMessage, error)
}

type chatMessageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChatMessageRepo(db *gorm.DB, baseLog *logger.Logger) ChatMessageRepo {
	return &chatMessageRepo{
		db:  db,
		log: baseLog.With("repo", "ChatMessageRepo"),
	}
}

func (r *chatMessageRepo) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *chatMessageRepo) Append(dbc dbctx.Context, msg *types.ChatMessage) error {
	return r.conn(dbc).WithContext(dbc.Ctx).Create(msg).Error
}

func (r *chatMessageRepo) ListByJob(dbc dbctx.Context, jobID uuid.UUID) ([]*types.ChatMessage, error) {
	var out []*types.ChatMessage
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Where("job_id = ?", jobID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
