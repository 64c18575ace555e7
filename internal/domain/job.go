package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	JobStatusUploaded   = "uploaded"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
	JobStatusCancelled  = "cancelled"
)

// Pipeline stage labels carried on a processing job.
const (
	StageSampling   = "frame_sampling"
	StageFiltering  = "frame_filtering"
	StageVerifying  = "image_verification"
	StageGenerating = "content_generation"
	StageAnnotating = "annotation_rendering"
	StageAssembling = "document_assembly"
	StageCommitting = "version_commit"
)

type Job struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Status        string         `gorm:"column:status;not null;index" json:"status"`
	Stage         string         `gorm:"column:stage" json:"stage,omitempty"`
	Progress      int            `gorm:"column:progress;not null;default:0" json:"progress"`
	VideoKey      string         `gorm:"column:video_key;not null" json:"video_key"`
	TranscriptKey string         `gorm:"column:transcript_key;not null" json:"transcript_key"`
	Error         string         `gorm:"column:error" json:"error,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null" json:"updated_at"`
	CompletedAt   *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Job) TableName() string { return "job" }

// CanTransition reports whether a status change is legal. Transitions are
// one-directional; there is no resurrection from failed or cancelled.
func CanTransition(from, to string) bool {
	switch from {
	case JobStatusUploaded:
		return to == JobStatusProcessing || to == JobStatusCancelled
	case JobStatusProcessing:
		return to == JobStatusCompleted || to == JobStatusFailed || to == JobStatusCancelled
	default:
		return false
	}
}
