package chat

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"

	types "github.com/yungbote/reelnotes-backend/internal/domain"
	"github.com/yungbote/reelnotes-backend/internal/platform/config"
	"github.com/yungbote/reelnotes-backend/internal/services"
)

func scriptedEditorAI(t *testing.T, intent, target string) *fakeAI {
	t.Helper()
	return &fakeAI{
		generateFn: func(schemaName, user string) (map[string]any, error) {
			switch schemaName {
			case "edit_intent":
				return map[string]any{
					"intent":  intent,
					"target":  target,
					"summary": "Added worked examples to the hash join chapter.",
				}, nil
			case "chapter_examples":
				return map[string]any{
					"examples": []any{
						map[string]any{"title": "Small build side", "body": "hash the 1k-row table, probe with the 1M-row table"},
					},
				}, nil
			case "expanded_explanation":
				return map[string]any{
					"heading": "Merge Join",
					"body":    "a longer grounded explanation of the same material",
				}, nil
			case "new_section":
				return map[string]any{
					"heading": "Hash Join and Merge Join",
					"body":    "both the hash join and the merge join combine rows from two tables",
				}, nil
			default:
				t.Fatalf("unexpected schema %q", schemaName)
				return nil, nil
			}
		},
	}
}

func TestEditorAddExamplesCreatesVersion(t *testing.T) {
	ledger, jobID := seedLedger(t, 1)
	ai := scriptedEditorAI(t, intentAddExamples, "hash join")
	messages := &memMessages{}
	deps := EditorDeps{Log: testLogger(t), AI: ai, Ledger: ledger, Messages: messages, Cfg: config.DefaultPipeline()}

	out, err := Apply(context.Background(), deps, EditorInput{
		JobID:   jobID,
		Message: "create update to pdf: add examples about hash joins",
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Version.VersionNumber != 2 {
		t.Fatalf("new version = %d, want 2", out.Version.VersionNumber)
	}
	if out.Version.ParentVersion == nil || *out.Version.ParentVersion != 1 {
		t.Fatalf("parent = %v, want 1", out.Version.ParentVersion)
	}

	var doc types.DocumentContent
	if err := json.Unmarshal(out.Version.Content, &doc); err != nil {
		t.Fatalf("decode new version: %v", err)
	}
	if doc.Version != 2 {
		t.Fatalf("artifact version = %d, want the ledger-stamped 2", doc.Version)
	}
	if len(doc.Chapters[0].Examples) == 0 {
		t.Fatalf("matched chapter gained no examples")
	}
	if len(doc.Chapters[1].Examples) != 0 {
		t.Fatalf("unmatched chapter was modified")
	}

	if len(messages.rows) != 2 {
		t.Fatalf("recorded %d messages, want 2", len(messages.rows))
	}
	assistant := messages.rows[1]
	if assistant.NewVersion == nil || *assistant.NewVersion != 2 {
		t.Fatalf("assistant message missing committed version: %+v", assistant)
	}
	if assistant.Mode != types.ChatModeEditor {
		t.Fatalf("mode = %q", assistant.Mode)
	}
}

func TestEditorStaleBaseConflicts(t *testing.T) {
	ledger, jobID := seedLedger(t, 2)
	ai := scriptedEditorAI(t, intentAddExamples, "hash join")
	deps := EditorDeps{Log: testLogger(t), AI: ai, Ledger: ledger, Messages: &memMessages{}, Cfg: config.DefaultPipeline()}

	_, err := Apply(context.Background(), deps, EditorInput{
		JobID:       jobID,
		BaseVersion: 1,
		Message:     "create update to pdf: add examples",
	})
	if !errors.Is(err, types.ErrConflict) {
		t.Fatalf("err = %v, want conflict for stale base", err)
	}
	if got := versionCount(t, ledger, jobID); got != 2 {
		t.Fatalf("version count = %d, conflict must not commit", got)
	}
}

func TestEditorExpandExplanation(t *testing.T) {
	ledger, jobID := seedLedger(t, 1)
	ai := scriptedEditorAI(t, intentExpandExplanation, "merge join")
	deps := EditorDeps{Log: testLogger(t), AI: ai, Ledger: ledger, Messages: &memMessages{}, Cfg: config.DefaultPipeline()}

	out, err := Apply(context.Background(), deps, EditorInput{
		JobID:   jobID,
		Message: "create update to pdf: go deeper on merge joins",
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	var doc types.DocumentContent
	if err := json.Unmarshal(out.Version.Content, &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Chapters[1].Explanation != "a longer grounded explanation of the same material" {
		t.Fatalf("explanation not replaced: %q", doc.Chapters[1].Explanation)
	}
	if doc.Chapters[0].Explanation == doc.Chapters[1].Explanation {
		t.Fatalf("unmatched chapter rewritten too")
	}
}

func TestEditorAddSection(t *testing.T) {
	ledger, jobID := seedLedger(t, 1)
	ai := scriptedEditorAI(t, intentAddSection, "join strategy recap")
	deps := EditorDeps{Log: testLogger(t), AI: ai, Ledger: ledger, Messages: &memMessages{}, Cfg: config.DefaultPipeline()}

	out, err := Apply(context.Background(), deps, EditorInput{
		JobID:   jobID,
		Message: "create update to pdf: add a recap section",
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	var doc types.DocumentContent
	if err := json.Unmarshal(out.Version.Content, &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	last := doc.Chapters[len(doc.Chapters)-1]
	if last.Heading != "Hash Join and Merge Join" || !last.Synthetic {
		t.Fatalf("new section = %+v", last)
	}
	found := false
	for _, entry := range doc.TableOfContents {
		if entry == "Hash Join and Merge Join" {
			found = true
		}
	}
	if !found {
		t.Fatalf("table of contents not rebuilt: %v", doc.TableOfContents)
	}
}

func TestEditorExamplesCappedAtTwo(t *testing.T) {
	ledger := services.NewMemoryVersionLedger(services.NewMemoryBlobStore())
	jobID := uuid.New()
	doc := studyDocument()
	doc.Chapters[0].Examples = []types.Example{
		{Title: "build example", Body: "hash the smaller table"},
		{Title: "probe example", Body: "stream the larger table"},
	}
	if _, err := ledger.CreateVersion(context.Background(), jobID, doc, 0, "Initial document"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	ai := scriptedEditorAI(t, intentAddExamples, "hash join")
	deps := EditorDeps{Log: testLogger(t), AI: ai, Ledger: ledger, Messages: &memMessages{}, Cfg: config.DefaultPipeline()}

	out, err := Apply(context.Background(), deps, EditorInput{
		JobID:   jobID,
		Message: "create update to pdf: add more examples about hash joins",
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	var got types.DocumentContent
	if err := json.Unmarshal(out.Version.Content, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n := len(got.Chapters[0].Examples); n != 2 {
		t.Fatalf("chapter has %d examples after edit; a content unit holds at most 2", n)
	}
}

func TestEditorExamplesTopUpStopsAtTwo(t *testing.T) {
	ledger := services.NewMemoryVersionLedger(services.NewMemoryBlobStore())
	jobID := uuid.New()
	doc := studyDocument()
	doc.Chapters[0].Examples = []types.Example{
		{Title: "build example", Body: "hash the smaller table"},
	}
	if _, err := ledger.CreateVersion(context.Background(), jobID, doc, 0, "Initial document"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	ai := &fakeAI{
		generateFn: func(schemaName, user string) (map[string]any, error) {
			switch schemaName {
			case "edit_intent":
				return map[string]any{"intent": intentAddExamples, "target": "hash join", "summary": "Added examples."}, nil
			case "chapter_examples":
				return map[string]any{
					"examples": []any{
						map[string]any{"title": "probe example", "body": "stream the larger table against the hash"},
						map[string]any{"title": "another probe example", "body": "probe the hash table row by row"},
					},
				}, nil
			default:
				t.Fatalf("unexpected schema %q", schemaName)
				return nil, nil
			}
		},
	}
	deps := EditorDeps{Log: testLogger(t), AI: ai, Ledger: ledger, Messages: &memMessages{}, Cfg: config.DefaultPipeline()}

	out, err := Apply(context.Background(), deps, EditorInput{
		JobID:   jobID,
		Message: "create update to pdf: add examples",
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	var got types.DocumentContent
	if err := json.Unmarshal(out.Version.Content, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n := len(got.Chapters[0].Examples); n != 2 {
		t.Fatalf("chapter has %d examples, want exactly 2 after top-up", n)
	}
}

func TestEditorRejectsUngroundedRewrite(t *testing.T) {
	ledger, jobID := seedLedger(t, 1)
	contentCalls := 0
	ai := &fakeAI{
		generateFn: func(schemaName, user string) (map[string]any, error) {
			switch schemaName {
			case "edit_intent":
				return map[string]any{"intent": intentExpandExplanation, "target": "merge join", "summary": "Expanded the merge join chapter."}, nil
			case "expanded_explanation":
				contentCalls++
				return map[string]any{
					"heading": "Merge Join",
					"body":    "As benchmarked in TimescaleDB and ClickHouse, the Volcano iterator model makes XYZZY-42 merge joins 17x faster.",
				}, nil
			default:
				t.Fatalf("unexpected schema %q", schemaName)
				return nil, nil
			}
		},
	}
	deps := EditorDeps{Log: testLogger(t), AI: ai, Ledger: ledger, Messages: &memMessages{}, Cfg: config.DefaultPipeline()}

	_, err := Apply(context.Background(), deps, EditorInput{
		JobID:   jobID,
		Message: "create update to pdf: go deeper on merge joins",
	})
	var gv *types.GroundingViolation
	if !errors.As(err, &gv) {
		t.Fatalf("err = %v, want grounding violation", err)
	}
	if contentCalls != 2 {
		t.Fatalf("made %d generation calls, want one stricter retry before rejecting", contentCalls)
	}
	if got := versionCount(t, ledger, jobID); got != 1 {
		t.Fatalf("rejected edit committed a version")
	}
}

func TestEditorStrictRetryRecovers(t *testing.T) {
	ledger, jobID := seedLedger(t, 1)
	contentCalls := 0
	grounded := "both inputs are sorted on the join key and merged in a single pass over the sorted rows"
	ai := &fakeAI{
		generateFn: func(schemaName, user string) (map[string]any, error) {
			switch schemaName {
			case "edit_intent":
				return map[string]any{"intent": intentExpandExplanation, "target": "merge join", "summary": "Expanded the merge join chapter."}, nil
			case "expanded_explanation":
				contentCalls++
				if contentCalls == 1 {
					return map[string]any{
						"heading": "Merge Join",
						"body":    "Postgres and MySQL both prefer merge joins on sorted inputs.",
					}, nil
				}
				return map[string]any{"heading": "Merge Join", "body": grounded}, nil
			default:
				t.Fatalf("unexpected schema %q", schemaName)
				return nil, nil
			}
		},
	}
	deps := EditorDeps{Log: testLogger(t), AI: ai, Ledger: ledger, Messages: &memMessages{}, Cfg: config.DefaultPipeline()}

	out, err := Apply(context.Background(), deps, EditorInput{
		JobID:   jobID,
		Message: "create update to pdf: go deeper on merge joins",
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if contentCalls != 2 {
		t.Fatalf("made %d generation calls, want 2", contentCalls)
	}
	var got types.DocumentContent
	if err := json.Unmarshal(out.Version.Content, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Chapters[1].Explanation != grounded {
		t.Fatalf("explanation = %q, want the regenerated grounded text", got.Chapters[1].Explanation)
	}
}

func TestEditorNoMatchingChapter(t *testing.T) {
	ledger, jobID := seedLedger(t, 1)
	ai := scriptedEditorAI(t, intentAddExamples, "quantum chromodynamics")
	deps := EditorDeps{Log: testLogger(t), AI: ai, Ledger: ledger, Messages: &memMessages{}, Cfg: config.DefaultPipeline()}

	_, err := Apply(context.Background(), deps, EditorInput{
		JobID:   jobID,
		Message: "create update to pdf: add examples about quantum chromodynamics",
	})
	if !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("err = %v, want not found for unmatched target", err)
	}
	if got := versionCount(t, ledger, jobID); got != 1 {
		t.Fatalf("failed edit committed a version")
	}
}
