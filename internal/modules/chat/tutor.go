package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/reelnotes-backend/internal/clients/openai"
	chatrepo "github.com/yungbote/reelnotes-backend/internal/data/repos/chat"
	types "github.com/yungbote/reelnotes-backend/internal/domain"
	"github.com/yungbote/reelnotes-backend/internal/platform/dbctx"
	"github.com/yungbote/reelnotes-backend/internal/platform/logger"
	"github.com/yungbote/reelnotes-backend/internal/services"
)

const (
	// retrievalFloor is the minimum shared-token count between the question
	// and the best-matching section. Below it the tutor refuses instead of
	// letting the model freestyle.
	retrievalFloor = 2
	maxRetrieved   = 4
)

const refusalAnswer = "I can only answer questions about this document, and I couldn't find anything in it related to your question. Try asking about one of the topics in the table of contents."

type TutorDeps struct {
	Log      *logger.Logger
	AI       openai.Client
	Ledger   services.VersionLedger
	Messages chatrepo.ChatMessageRepo
}

type TutorInput struct {
	JobID uuid.UUID
	// Version pins the document version answered against; 0 means head.
	Version int
	Message string
}

type TutorOutput struct {
	Answer    string
	Citations []string
	Version   int
}

var tutorSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"properties": map[string]any{
		"answer": map[string]any{"type": "string"},
	},
	"required": []any{"answer"},
}

const tutorSystemPrompt = `You are a study tutor for one specific document.
Answer ONLY from the excerpts provided. If the excerpts do not contain the
answer, say the document does not cover it. Never invent facts, sources, or
content beyond the excerpts. Keep answers concise and reference the excerpt
titles you drew from.`

// Answer responds to a question strictly from the pinned document version.
// Tutoring is read-only: it appends chat history but never touches the
// version ledger.
func Answer(ctx context.Context, deps TutorDeps, in TutorInput) (TutorOutput, error) {
	log := deps.Log.With("job_id", in.JobID.String())

	version, err := resolveVersion(ctx, deps.Ledger, in.JobID, in.Version)
	if err != nil {
		return TutorOutput{}, err
	}
	var doc types.DocumentContent
	if err := json.Unmarshal(version.Content, &doc); err != nil {
		return TutorOutput{}, fmt.Errorf("decode document content: %w", err)
	}

	sections := documentSections(doc)
	retrieved := retrieve(in.Message, sections, maxRetrieved)

	out := TutorOutput{Version: version.VersionNumber}
	if len(retrieved) == 0 {
		out.Answer = refusalAnswer
	} else {
		var sb strings.Builder
		for _, s := range retrieved {
			fmt.Fprintf(&sb, "## %s\n%s\n\n", s.Label, s.Text)
			out.Citations = append(out.Citations, s.Label)
		}
		user := fmt.Sprintf("Excerpts:\n\n%sQuestion: %s", sb.String(), in.Message)
		obj, err := deps.AI.GenerateJSON(ctx, tutorSystemPrompt, user, "tutor_answer", tutorSchema)
		if err != nil {
			return TutorOutput{}, fmt.Errorf("tutor answer: %w", err)
		}
		out.Answer, _ = obj["answer"].(string)
		if strings.TrimSpace(out.Answer) == "" {
			out.Answer = refusalAnswer
			out.Citations = nil
		}
	}

	if err := recordExchange(ctx, deps.Messages, in.JobID, version.VersionNumber, types.ChatModeTutor, in.Message, out.Answer, out.Citations, nil); err != nil {
		log.Warn("could not record chat exchange", "error", err)
	}
	return out, nil
}

func resolveVersion(ctx context.Context, ledger services.VersionLedger, jobID uuid.UUID, number int) (*types.DocumentVersion, error) {
	if number > 0 {
		return ledger.GetVersion(ctx, jobID, number)
	}
	head, err := ledger.Head(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if head == nil {
		return nil, fmt.Errorf("job %s has no document yet: %w", jobID, types.ErrNotFound)
	}
	return head, nil
}

type section struct {
	Label string
	Text  string
	score int
}

func documentSections(doc types.DocumentContent) []section {
	var out []section
	if len(doc.Overview) > 0 {
		out = append(out, section{Label: "Overview", Text: strings.Join(doc.Overview, " ")})
	}
	for _, c := range doc.ConceptCards {
		out = append(out, section{
			Label: "Concept: " + c.Term,
			Text:  strings.TrimSpace(c.Explanation + " " + c.WhyItMatters),
		})
	}
	for _, ch := range doc.Chapters {
		text := ch.Caption + " " + ch.Explanation
		for _, ex := range ch.Examples {
			text += " " + ex.Title + " " + ex.Body
		}
		out = append(out, section{Label: "Chapter: " + ch.Heading, Text: strings.TrimSpace(text)})
	}
	for _, ex := range doc.Examples {
		out = append(out, section{
			Label: "Example: " + ex.Title,
			Text:  strings.TrimSpace(ex.Body + " " + ex.Explanation),
		})
	}
	if len(doc.PracticeQuestions) > 0 {
		out = append(out, section{Label: "Practice Questions", Text: strings.Join(doc.PracticeQuestions, " ")})
	}
	return out
}

// retrieve ranks sections by distinct shared tokens with the question.
// Purely lexical; good enough for single-document scope and fully offline.
func retrieve(question string, sections []section, max int) []section {
	qTokens := queryTokens(question)
	if len(qTokens) == 0 {
		return nil
	}

	scored := make([]section, 0, len(sections))
	for _, s := range sections {
		sTokens := queryTokens(s.Label + " " + s.Text)
		score := 0
		for tok := range qTokens {
			if sTokens[tok] {
				score++
			}
		}
		if score >= retrievalFloor {
			s.score = score
			scored = append(scored, s)
		}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if len(scored) > max {
		scored = scored[:max]
	}
	return scored
}

func queryTokens(s string) map[string]bool {
	out := map[string]bool{}
	for _, tok := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if len(tok) > 2 && !stopwords[tok] {
			out[tok] = true
		}
	}
	return out
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "this": true,
	"with": true, "what": true, "how": true, "why": true, "are": true,
	"was": true, "can": true, "you": true, "about": true, "does": true,
	"from": true, "into": true, "your": true, "when": true, "where": true,
	"which": true, "have": true, "has": true, "not": true, "but": true,
	"its": true, "between": true, "there": true, "their": true,
}

func recordExchange(ctx context.Context, repo chatrepo.ChatMessageRepo, jobID uuid.UUID, versionNumber int, mode, question, answer string, citations []string, newVersion *int) error {
	dbc := dbctx.Context{Ctx: ctx}
	now := time.Now().UTC()

	userMsg := &types.ChatMessage{
		ID:            uuid.New(),
		JobID:         jobID,
		VersionNumber: versionNumber,
		Role:          types.ChatRoleUser,
		Mode:          mode,
		Content:       question,
		CreatedAt:     now,
	}
	if err := repo.Append(dbc, userMsg); err != nil {
		return err
	}

	assistantMsg := &types.ChatMessage{
		ID:            uuid.New(),
		JobID:         jobID,
		VersionNumber: versionNumber,
		Role:          types.ChatRoleAssistant,
		Mode:          mode,
		Content:       answer,
		NewVersion:    newVersion,
		CreatedAt:     now.Add(time.Millisecond),
	}
	if len(citations) > 0 {
		raw, err := json.Marshal(citations)
		if err == nil {
			assistantMsg.Citations = raw
		}
	}
	return repo.Append(dbc, assistantMsg)
}
