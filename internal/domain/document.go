package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ConceptCard is a transcript-level term/explanation pair.
type ConceptCard struct {
	Term         string `json:"term"`
	Explanation  string `json:"explanation"`
	WhyItMatters string `json:"why_it_matters,omitempty"`
}

// Chapter pairs one annotated image with its explanation. Chapters are
// ordered by source timestamp.
type Chapter struct {
	Heading     string    `json:"heading"`
	Timestamp   float64   `json:"timestamp"`
	TimeLabel   string    `json:"time_label"`
	ImageKey    string    `json:"image_key"`
	Caption     string    `json:"caption"`
	Explanation string    `json:"explanation"`
	Examples    []Example `json:"examples,omitempty"`
	Confidence  int       `json:"confidence"`
	Synthetic   bool      `json:"synthetic,omitempty"`
}

// DocumentContent is the self-describing artifact stored in the blob store.
// Version number and generation timestamp are embedded here, not just in
// ledger metadata, so a downloaded artifact stands on its own. Images are
// referenced by blob keys relative to the job's artifact prefix.
type DocumentContent struct {
	Title             string        `json:"title"`
	Version           int           `json:"version"`
	GeneratedAt       time.Time     `json:"generated_at"`
	ChangeDescription string        `json:"change_description,omitempty"`
	TableOfContents   []string      `json:"table_of_contents"`
	Overview          []string      `json:"overview"`
	ConceptCards      []ConceptCard `json:"concept_cards"`
	Chapters          []Chapter     `json:"chapters"`
	Examples          []Example     `json:"examples"`
	PracticeQuestions []string      `json:"practice_questions"`
}

// DocumentVersion is one immutable row in a job's version ledger.
// Rows are only ever appended; content and artifact are never rewritten.
type DocumentVersion struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	JobID             uuid.UUID      `gorm:"type:uuid;not null;index:idx_version_job_number,unique" json:"job_id"`
	VersionNumber     int            `gorm:"column:version_number;not null;index:idx_version_job_number,unique" json:"version_number"`
	ParentVersion     *int           `gorm:"column:parent_version" json:"parent_version,omitempty"`
	ChangeDescription string         `gorm:"column:change_description" json:"change_description,omitempty"`
	ArtifactKey       string         `gorm:"column:artifact_key;not null" json:"artifact_key"`
	Content           datatypes.JSON `gorm:"column:content;type:jsonb" json:"content"`
	CreatedAt         time.Time      `gorm:"not null" json:"created_at"`
}

func (DocumentVersion) TableName() string { return "document_version" }
