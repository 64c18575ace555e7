package steps

import (
	"context"
	"fmt"
	"strings"

	types "github.com/yungbote/reelnotes-backend/internal/domain"
)

// TranscriptNotes are the document-level sections generated from the
// transcript alone: overview bullets, concept cards, worked examples, and
// practice questions. Per-frame chapters come from the visual pipeline.
type TranscriptNotes struct {
	Title             string
	Overview          []string
	ConceptCards      []types.ConceptCard
	Examples          []types.Example
	PracticeQuestions []string
}

var transcriptNotesSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"properties": map[string]any{
		"title":    map[string]any{"type": "string"},
		"overview": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"concept_cards": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"term":           map[string]any{"type": "string"},
					"explanation":    map[string]any{"type": "string"},
					"why_it_matters": map[string]any{"type": "string"},
				},
				"required": []any{"term", "explanation", "why_it_matters"},
			},
		},
		"examples": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"title":       map[string]any{"type": "string"},
					"body":        map[string]any{"type": "string"},
					"explanation": map[string]any{"type": "string"},
				},
				"required": []any{"title", "body", "explanation"},
			},
		},
		"practice_questions": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	},
	"required": []any{"title", "overview", "concept_cards", "examples", "practice_questions"},
}

const transcriptSystemPrompt = `You turn a lecture transcript into beginner-friendly study notes.
Do not copy transcript lines verbatim. Keep bullets short and concrete.
Examples should be small and self-contained. Practice questions should be answerable
from the transcript content alone.`

// GenerateTranscriptNotes produces the transcript-level document sections.
func GenerateTranscriptNotes(ctx context.Context, deps GenerateDeps, transcript string) (TranscriptNotes, error) {
	notes := TranscriptNotes{}
	if deps.AI == nil {
		return notes, fmt.Errorf("transcript_notes: missing deps")
	}
	t := strings.TrimSpace(transcript)
	if t == "" {
		return notes, fmt.Errorf("transcript_notes: empty transcript")
	}
	if len(t) > 8000 {
		t = t[:8000] + "\n...(trimmed)..."
	}

	obj, err := deps.AI.GenerateJSON(ctx, transcriptSystemPrompt, "Transcript:\n"+t, "transcript_notes", transcriptNotesSchema)
	if err != nil {
		return notes, err
	}

	notes.Title, _ = obj["title"].(string)
	if notes.Title == "" {
		notes.Title = "Video Notes"
	}
	notes.Overview = stringList(obj["overview"])
	notes.PracticeQuestions = stringList(obj["practice_questions"])

	if list, ok := obj["concept_cards"].([]any); ok {
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			card := types.ConceptCard{}
			card.Term, _ = m["term"].(string)
			card.Explanation, _ = m["explanation"].(string)
			card.WhyItMatters, _ = m["why_it_matters"].(string)
			if strings.TrimSpace(card.Term) == "" {
				continue
			}
			notes.ConceptCards = append(notes.ConceptCards, card)
		}
	}
	if list, ok := obj["examples"].([]any); ok {
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			ex := types.Example{}
			ex.Title, _ = m["title"].(string)
			ex.Body, _ = m["body"].(string)
			ex.Explanation, _ = m["explanation"].(string)
			if strings.TrimSpace(ex.Body) == "" {
				continue
			}
			notes.Examples = append(notes.Examples, ex)
		}
	}
	return notes, nil
}

func stringList(raw any) []string {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range list {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}
