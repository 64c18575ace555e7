package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ChatModeTutor  = "tutor"
	ChatModeEditor = "editor"
)

const (
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is one entry in a job's chat history. History is append-only;
// rows are never rewritten. VersionNumber scopes the message to the document
// version it was asked against; NewVersion is set on assistant messages that
// committed an edit.
type ChatMessage struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	JobID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"job_id"`
	VersionNumber int            `gorm:"column:version_number;not null" json:"version_number"`
	Role          string         `gorm:"column:role;not null" json:"role"`
	Mode          string         `gorm:"column:mode;not null" json:"mode"`
	Content       string         `gorm:"column:content;not null" json:"content"`
	Citations     datatypes.JSON `gorm:"column:citations;type:jsonb" json:"citations,omitempty"`
	NewVersion    *int           `gorm:"column:new_version" json:"new_version,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;index" json:"created_at"`
}

func (ChatMessage) TableName() string { return "chat_message" }
