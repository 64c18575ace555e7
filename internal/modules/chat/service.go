package chat

import (
	"context"

	"github.com/google/uuid"

	chatrepo "github.com/yungbote/reelnotes-backend/internal/data/repos/chat"
	types "github.com/yungbote/reelnotes-backend/internal/domain"
	"github.com/yungbote/reelnotes-backend/internal/platform/logger"
)

type Deps struct {
	Tutor  TutorDeps
	Editor EditorDeps
}

type Input struct {
	JobID   uuid.UUID
	Version int
	Message string
}

type Output struct {
	Mode      string   `json:"mode"`
	Answer    string   `json:"answer"`
	Citations []string `json:"citations,omitempty"`
	Version   int      `json:"version"`
	// NewVersion is set only when the message triggered an edit.
	NewVersion *int `json:"new_version,omitempty"`
}

// Handle routes one chat message: messages carrying the edit trigger phrase
// go through the editor and may create a version, everything else is
// answered read-only by the tutor. Every message lands in the history with
// its resolved mode, failed requests included; the handlers record their
// own exchange on success, Handle records the failure otherwise.
func Handle(ctx context.Context, deps Deps, in Input) (Output, error) {
	switch Classify(in.Message) {
	case types.ChatModeEditor:
		out, err := Apply(ctx, deps.Editor, EditorInput{
			JobID:       in.JobID,
			BaseVersion: in.Version,
			Message:     in.Message,
		})
		if err != nil {
			recordFailure(ctx, deps.Editor.Log, deps.Editor.Messages, in, types.ChatModeEditor, err)
			return Output{}, err
		}
		return Output{
			Mode:       types.ChatModeEditor,
			Answer:     out.Summary,
			Version:    *out.Version.ParentVersion,
			NewVersion: &out.Version.VersionNumber,
		}, nil
	default:
		out, err := Answer(ctx, deps.Tutor, TutorInput{
			JobID:   in.JobID,
			Version: in.Version,
			Message: in.Message,
		})
		if err != nil {
			recordFailure(ctx, deps.Tutor.Log, deps.Tutor.Messages, in, types.ChatModeTutor, err)
			return Output{}, err
		}
		return Output{
			Mode:      types.ChatModeTutor,
			Answer:    out.Answer,
			Citations: out.Citations,
			Version:   out.Version,
		}, nil
	}
}

func recordFailure(ctx context.Context, log *logger.Logger, messages chatrepo.ChatMessageRepo, in Input, mode string, cause error) {
	answer := "The request could not be completed: " + cause.Error()
	if err := recordExchange(ctx, messages, in.JobID, in.Version, mode, in.Message, answer, nil, nil); err != nil {
		log.Warn("could not record failed chat exchange", "job_id", in.JobID.String(), "error", err)
	}
}
