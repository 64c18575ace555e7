package chat

import (
	"strings"

	types "github.com/yungbote/reelnotes-backend/internal/domain"
)

// EditTrigger is the phrase that routes a message to editor mode. Matching
// is case-insensitive and contiguous; paraphrases and scattered words do
// not trigger an edit.
const EditTrigger = "create update to pdf"

// Classify picks the mode for one message. It is the sole gate in front of
// document mutation: everything without the trigger phrase is tutoring, and
// tutoring never writes a version.
func Classify(message string) string {
	if strings.Contains(strings.ToLower(message), EditTrigger) {
		return types.ChatModeEditor
	}
	return types.ChatModeTutor
}
