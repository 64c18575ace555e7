package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/reelnotes-backend/internal/clients/openai"
	chatrepo "github.com/yungbote/reelnotes-backend/internal/data/repos/chat"
	types "github.com/yungbote/reelnotes-backend/internal/domain"
	"github.com/yungbote/reelnotes-backend/internal/modules/notes/steps"
	"github.com/yungbote/reelnotes-backend/internal/platform/config"
	"github.com/yungbote/reelnotes-backend/internal/platform/logger"
	"github.com/yungbote/reelnotes-backend/internal/services"
)

// Edit intents the editor knows how to apply. Anything the intent parser
// cannot map onto one of these is answered with guidance, not a mutation.
const (
	intentAddExamples       = "add_examples"
	intentExpandExplanation = "expand_explanation"
	intentAddSection        = "add_section"
)

// maxEditTargets bounds how many chapters one edit request may touch.
const maxEditTargets = 3

// maxUnitExamples caps the examples a chapter may hold, edits included.
// Same limit the pipeline enforces when a chapter is first generated.
const maxUnitExamples = 2

type EditorDeps struct {
	Log      *logger.Logger
	AI       openai.Client
	Ledger   services.VersionLedger
	Messages chatrepo.ChatMessageRepo
	Cfg      config.Pipeline
}

type EditorInput struct {
	JobID uuid.UUID
	// BaseVersion is the version the edit is applied on top of; 0 means
	// head. A stale base surfaces as types.ErrConflict from the ledger.
	BaseVersion int
	Message     string
}

type EditorOutput struct {
	Version *types.DocumentVersion
	Summary string
}

var intentSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"properties": map[string]any{
		"intent": map[string]any{
			"type": "string",
			"enum": []any{intentAddExamples, intentExpandExplanation, intentAddSection},
		},
		"target":  map[string]any{"type": "string"},
		"summary": map[string]any{"type": "string"},
	},
	"required": []any{"intent", "target", "summary"},
}

const intentSystemPrompt = `You translate a document edit request into a structured intent.
intent: what kind of change is requested.
target: the topic, chapter heading, or subject the change applies to. Empty string if the whole document.
summary: one sentence describing the change, suitable for a changelog.
Return strict JSON.`

var editExamplesSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"properties": map[string]any{
		"examples": map[string]any{
			"type":     "array",
			"maxItems": 2,
			"items": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"title": map[string]any{"type": "string"},
					"body":  map[string]any{"type": "string"},
				},
				"required": []any{"title", "body"},
			},
		},
	},
	"required": []any{"examples"},
}

var editTextSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"properties": map[string]any{
		"heading": map[string]any{"type": "string"},
		"body":    map[string]any{"type": "string"},
	},
	"required": []any{"heading", "body"},
}

const editGroundingPrompt = `You revise study-note content.
Stay strictly within the facts already present in the material you are given.
Do not introduce new tools, names, numbers, or claims. Return strict JSON.`

const editStrictSuffix = `

PREVIOUS ATTEMPT WAS REJECTED for referencing things not in the material.
Use ONLY terms that literally appear in the material you are given. When in doubt,
leave it out.`

// groundedEdit makes one generation call and validates the extracted output
// texts against the source material, exactly as frame content generation
// does: output referencing terms the source never mentions is regenerated
// once with a stricter prompt, then rejected with a GroundingViolation.
func groundedEdit(ctx context.Context, deps EditorDeps, user, schemaName string, schema map[string]any, source string, texts func(map[string]any) []string) (map[string]any, error) {
	obj, err := deps.AI.GenerateJSON(ctx, editGroundingPrompt, user, schemaName, schema)
	if err != nil {
		return nil, err
	}
	terms := steps.UngroundedTerms(texts(obj), source)
	if len(terms) == 0 {
		return obj, nil
	}
	deps.Log.Warn("edit output failed grounding, regenerating with stricter prompt",
		"schema", schemaName, "terms", terms)

	obj, err = deps.AI.GenerateJSON(ctx, editGroundingPrompt+editStrictSuffix, user, schemaName, schema)
	if err != nil {
		return nil, err
	}
	if terms := steps.UngroundedTerms(texts(obj), source); len(terms) > 0 {
		return nil, &types.GroundingViolation{Terms: terms}
	}
	return obj, nil
}

func chapterSource(ch *types.Chapter) string {
	return ch.Heading + "\n" + ch.Caption + "\n" + ch.Explanation
}

// documentSource flattens every text-bearing section into one grounding
// source for edits that are scoped to the whole document.
func documentSource(doc *types.DocumentContent) string {
	var sb strings.Builder
	sb.WriteString(doc.Title)
	sb.WriteString("\n")
	for _, s := range doc.Overview {
		sb.WriteString(s)
		sb.WriteString("\n")
	}
	for _, card := range doc.ConceptCards {
		sb.WriteString(card.Term)
		sb.WriteString(" ")
		sb.WriteString(card.Explanation)
		sb.WriteString("\n")
	}
	for i := range doc.Chapters {
		sb.WriteString(chapterSource(&doc.Chapters[i]))
		sb.WriteString("\n")
	}
	for _, ex := range doc.Examples {
		sb.WriteString(ex.Title)
		sb.WriteString(" ")
		sb.WriteString(ex.Body)
		sb.WriteString("\n")
	}
	for _, q := range doc.PracticeQuestions {
		sb.WriteString(q)
		sb.WriteString("\n")
	}
	return sb.String()
}

func exampleTexts(obj map[string]any) []string {
	list, _ := obj["examples"].([]any)
	var out []string
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			title, _ := m["title"].(string)
			body, _ := m["body"].(string)
			out = append(out, title, body)
		}
	}
	return out
}

func sectionTexts(obj map[string]any) []string {
	heading, _ := obj["heading"].(string)
	body, _ := obj["body"].(string)
	return []string{heading, body}
}

// Apply executes one edit request against the document and commits the
// result as a new ledger version. This is the only code path that creates
// versions from chat; the ledger's conflict check is passed through
// untouched so a stale base fails rather than silently rebasing.
func Apply(ctx context.Context, deps EditorDeps, in EditorInput) (EditorOutput, error) {
	log := deps.Log.With("job_id", in.JobID.String())

	base, err := resolveVersion(ctx, deps.Ledger, in.JobID, in.BaseVersion)
	if err != nil {
		return EditorOutput{}, err
	}
	var doc types.DocumentContent
	if err := json.Unmarshal(base.Content, &doc); err != nil {
		return EditorOutput{}, fmt.Errorf("decode document content: %w", err)
	}

	intent, target, summary, err := parseIntent(ctx, deps, in.Message)
	if err != nil {
		return EditorOutput{}, fmt.Errorf("parse edit intent: %w", err)
	}
	log.Info("applying edit", "intent", intent, "target", target, "base_version", base.VersionNumber)

	switch intent {
	case intentAddExamples:
		err = addExamples(ctx, deps, &doc, target)
	case intentExpandExplanation:
		err = expandExplanations(ctx, deps, &doc, target)
	case intentAddSection:
		err = addSection(ctx, deps, &doc, target, in.Message)
	default:
		err = fmt.Errorf("unsupported edit intent %q", intent)
	}
	if err != nil {
		return EditorOutput{}, err
	}

	doc.TableOfContents = rebuildTOC(doc)

	version, err := deps.Ledger.CreateVersion(ctx, in.JobID, doc, base.VersionNumber, summary)
	if err != nil {
		return EditorOutput{}, err
	}

	answer := fmt.Sprintf("%s Created document version %d.", summary, version.VersionNumber)
	if rerr := recordExchange(ctx, deps.Messages, in.JobID, base.VersionNumber, types.ChatModeEditor, in.Message, answer, nil, &version.VersionNumber); rerr != nil {
		log.Warn("could not record chat exchange", "error", rerr)
	}
	return EditorOutput{Version: version, Summary: summary}, nil
}

func parseIntent(ctx context.Context, deps EditorDeps, message string) (intent, target, summary string, err error) {
	obj, err := deps.AI.GenerateJSON(ctx, intentSystemPrompt, "Edit request: "+message, "edit_intent", intentSchema)
	if err != nil {
		return "", "", "", err
	}
	intent, _ = obj["intent"].(string)
	target, _ = obj["target"].(string)
	summary, _ = obj["summary"].(string)
	if strings.TrimSpace(summary) == "" {
		summary = "Updated the document."
	}
	return intent, strings.TrimSpace(target), summary, nil
}

// matchChapters picks the chapters an edit applies to. An empty target
// means the leading chapters, capped so one chat message cannot trigger an
// unbounded fan-out of generation calls.
func matchChapters(doc *types.DocumentContent, target string) []*types.Chapter {
	var out []*types.Chapter
	targetLower := strings.ToLower(target)
	for i := range doc.Chapters {
		ch := &doc.Chapters[i]
		if target != "" {
			hay := strings.ToLower(ch.Heading + " " + ch.Caption + " " + ch.Explanation)
			if !strings.Contains(hay, targetLower) {
				continue
			}
		}
		out = append(out, ch)
		if len(out) >= maxEditTargets {
			break
		}
	}
	return out
}

func addExamples(ctx context.Context, deps EditorDeps, doc *types.DocumentContent, target string) error {
	chapters := matchChapters(doc, target)
	if len(chapters) == 0 {
		return fmt.Errorf("no chapter matches %q: %w", target, types.ErrNotFound)
	}
	for _, ch := range chapters {
		if len(ch.Examples) >= maxUnitExamples {
			continue
		}
		user := fmt.Sprintf("Chapter: %s\nCaption: %s\nExplanation: %s\n\nWrite worked examples for this chapter.", ch.Heading, ch.Caption, ch.Explanation)
		obj, err := groundedEdit(ctx, deps, user, "chapter_examples", editExamplesSchema, chapterSource(ch), exampleTexts)
		if err != nil {
			return fmt.Errorf("examples for %q: %w", ch.Heading, err)
		}
		list, _ := obj["examples"].([]any)
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			ex := types.Example{}
			ex.Title, _ = m["title"].(string)
			ex.Body, _ = m["body"].(string)
			if strings.TrimSpace(ex.Body) == "" {
				continue
			}
			ch.Examples = append(ch.Examples, ex)
			if len(ch.Examples) >= maxUnitExamples {
				break
			}
		}
	}
	return nil
}

func expandExplanations(ctx context.Context, deps EditorDeps, doc *types.DocumentContent, target string) error {
	chapters := matchChapters(doc, target)
	if len(chapters) == 0 {
		return fmt.Errorf("no chapter matches %q: %w", target, types.ErrNotFound)
	}
	for _, ch := range chapters {
		user := fmt.Sprintf("Chapter: %s\nCaption: %s\nCurrent explanation: %s\n\nRewrite the explanation in more depth, keeping the same heading.", ch.Heading, ch.Caption, ch.Explanation)
		obj, err := groundedEdit(ctx, deps, user, "expanded_explanation", editTextSchema, chapterSource(ch), sectionTexts)
		if err != nil {
			return fmt.Errorf("expand %q: %w", ch.Heading, err)
		}
		body, _ := obj["body"].(string)
		if strings.TrimSpace(body) != "" {
			ch.Explanation = body
		}
	}
	return nil
}

func addSection(ctx context.Context, deps EditorDeps, doc *types.DocumentContent, target, message string) error {
	if len(doc.Chapters) >= deps.Cfg.MaxChapters {
		return fmt.Errorf("document already has %d chapters", len(doc.Chapters))
	}
	digest := documentDigest(*doc)
	user := fmt.Sprintf("Existing document outline:\n%s\n\nRequest: %s\nTopic: %s\n\nWrite the new section.", digest, message, target)
	obj, err := groundedEdit(ctx, deps, user, "new_section", editTextSchema, documentSource(doc), sectionTexts)
	if err != nil {
		return fmt.Errorf("new section: %w", err)
	}
	heading, _ := obj["heading"].(string)
	body, _ := obj["body"].(string)
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("new section: empty body")
	}
	if strings.TrimSpace(heading) == "" {
		heading = target
	}
	doc.Chapters = append(doc.Chapters, types.Chapter{
		Heading:     heading,
		Explanation: body,
		Synthetic:   true,
	})
	return nil
}

func documentDigest(doc types.DocumentContent) string {
	var sb strings.Builder
	for _, ch := range doc.Chapters {
		fmt.Fprintf(&sb, "- %s: %s\n", ch.Heading, ch.Caption)
	}
	return sb.String()
}

func rebuildTOC(doc types.DocumentContent) []string {
	var toc []string
	if len(doc.Overview) > 0 {
		toc = append(toc, "Overview")
	}
	if len(doc.ConceptCards) > 0 {
		toc = append(toc, "Concept Cards")
	}
	for _, ch := range doc.Chapters {
		entry := ch.Heading
		if ch.TimeLabel != "" {
			entry = ch.TimeLabel + "  " + entry
		}
		toc = append(toc, entry)
	}
	if len(doc.Examples) > 0 {
		toc = append(toc, "Worked Examples")
	}
	if len(doc.PracticeQuestions) > 0 {
		toc = append(toc, "Practice Questions")
	}
	return toc
}
