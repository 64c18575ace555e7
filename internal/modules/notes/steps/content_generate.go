package steps

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/yungbote/reelnotes-backend/internal/clients/openai"
	types "github.com/yungbote/reelnotes-backend/internal/domain"
	"github.com/yungbote/reelnotes-backend/internal/platform/logger"
)

type GenerateDeps struct {
	Log *logger.Logger
	AI  openai.Client
}

type GenerateInput struct {
	Frame       types.VerifiedFrame
	MaxExamples int
}

var contentSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"properties": map[string]any{
		"title":       map[string]any{"type": "string"},
		"caption":     map[string]any{"type": "string"},
		"explanation": map[string]any{"type": "string"},
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
		"annotations": map[string]any{
			"type":     "array",
			"maxItems": 6,
			"items": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"type": map[string]any{
						"type": "string",
						"enum": []any{
							types.AnnotationArrow,
							types.AnnotationLabel,
							types.AnnotationHighlight,
							types.AnnotationCircle,
							types.AnnotationUnderline,
						},
					},
					"x1":   map[string]any{"type": "number", "minimum": 0, "maximum": 1},
					"y1":   map[string]any{"type": "number", "minimum": 0, "maximum": 1},
					"x2":   map[string]any{"type": "number", "minimum": 0, "maximum": 1},
					"y2":   map[string]any{"type": "number", "minimum": 0, "maximum": 1},
					"text": map[string]any{"type": "string"},
				},
				"required": []any{"type", "x1", "y1", "x2", "y2", "text"},
			},
		},
	},
	"required": []any{"title", "caption", "explanation", "examples", "annotations"},
}

const generateSystemPrompt = `You write study-note content for one verified video frame.
You are given a description of exactly what is visible in the frame.
HARD RULE: every factual claim must be traceable to that description. Do not introduce
entities, names, numbers, or claims that the description does not contain.
Produce one clear explanation a student would understand, up to two short examples,
and up to four annotation instructions pointing at the key visible elements
(normalized 0..1 coordinates).`

const generateStrictSuffix = `

PREVIOUS ATTEMPT WAS REJECTED for referencing things not in the description.
Use ONLY terms that literally appear in the visible-content description. When in doubt,
leave it out.`

// GenerateContent produces one grounded content unit for a verified frame.
// Output referencing terms absent from the verifier's description fails the
// grounding check; one stricter regeneration is attempted, after which the
// caller excludes the frame.
func GenerateContent(ctx context.Context, deps GenerateDeps, in GenerateInput) (types.ContentUnit, error) {
	unit := types.ContentUnit{}
	if deps.AI == nil || deps.Log == nil {
		return unit, fmt.Errorf("content_generate: missing deps")
	}
	if strings.TrimSpace(in.Frame.Visible) == "" {
		return unit, fmt.Errorf("content_generate: frame has no visible-content description")
	}

	unit, err := generateOnce(ctx, deps, in, false)
	if err == nil {
		return unit, nil
	}
	var gv *types.GroundingViolation
	if !errors.As(err, &gv) {
		return unit, err
	}

	deps.Log.Warn("grounding violation, regenerating with stricter prompt",
		"timestamp", in.Frame.Timestamp,
		"terms", gv.Terms,
	)
	return generateOnce(ctx, deps, in, true)
}

func generateOnce(ctx context.Context, deps GenerateDeps, in GenerateInput, strict bool) (types.ContentUnit, error) {
	unit := types.ContentUnit{
		Timestamp:  in.Frame.Timestamp,
		Visible:    in.Frame.Visible,
		Confidence: in.Frame.Confidence,
		RawKey:     in.Frame.RawKey,
	}

	system := generateSystemPrompt
	if strict {
		system += generateStrictSuffix
	}
	user := fmt.Sprintf("Frame timestamp: %.2fs\nVisible-content description:\n%s", in.Frame.Timestamp, in.Frame.Visible)

	obj, err := deps.AI.GenerateJSON(ctx, system, user, "frame_content", contentSchema)
	if err != nil {
		return unit, err
	}

	unit.Title, _ = obj["title"].(string)
	unit.Caption, _ = obj["caption"].(string)
	unit.Explanation, _ = obj["explanation"].(string)
	unit.Examples = parseExamples(obj["examples"], in.MaxExamples)
	unit.Annotations = parseAnnotations(obj["annotations"])

	if strings.TrimSpace(unit.Explanation) == "" {
		return unit, fmt.Errorf("content_generate: empty explanation")
	}
	if terms := ungroundedTerms(unit, in.Frame.Visible); len(terms) > 0 {
		return unit, &types.GroundingViolation{Terms: terms}
	}
	return unit, nil
}

func parseExamples(raw any, max int) []types.Example {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	if max <= 0 || max > 2 {
		max = 2
	}
	var out []types.Example
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
		out = append(out, ex)
		if len(out) >= max {
			break
		}
	}
	return out
}

func parseAnnotations(raw any) []types.AnnotationInstruction {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	var out []types.AnnotationInstruction
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		a := types.AnnotationInstruction{}
		a.Type, _ = m["type"].(string)
		a.X1 = floatField(m, "x1")
		a.Y1 = floatField(m, "y1")
		a.X2 = floatField(m, "x2")
		a.Y2 = floatField(m, "y2")
		a.Text, _ = m["text"].(string)
		if a.Type == "" {
			continue
		}
		out = append(out, a)
	}
	return out
}

func floatField(m map[string]any, key string) float64 {
	if f, ok := m[key].(float64); ok {
		return f
	}
	return 0
}

// ungroundedTerms runs the generation-time grounding check. It extracts
// entity-like terms from the generated text (capitalized words away from
// sentence starts, code-ish tokens, numbers) and reports those with no
// match in the visible-content description. Common words and trivially
// derivable variants (shared 4+ char stem) pass.
func ungroundedTerms(unit types.ContentUnit, visible string) []string {
	var texts []string
	texts = append(texts, unit.Explanation)
	for _, ex := range unit.Examples {
		texts = append(texts, ex.Title, ex.Body)
	}
	for _, a := range unit.Annotations {
		texts = append(texts, a.Text)
	}
	return UngroundedTerms(texts, visible)
}

// UngroundedTerms reports the entity terms in texts that do not appear in
// (and cannot be trivially derived from) source. Shared by frame content
// generation and chat edits; both reject output carrying terms the source
// material never mentions.
func UngroundedTerms(texts []string, source string) []string {
	sourceLower := strings.ToLower(source)
	sourceTokens := tokenize(sourceLower)

	seen := map[string]bool{}
	var violations []string
	for _, text := range texts {
		for _, term := range entityTerms(text) {
			lower := strings.ToLower(term)
			if seen[lower] {
				continue
			}
			seen[lower] = true
			if termGrounded(lower, sourceLower, sourceTokens) {
				continue
			}
			violations = append(violations, term)
		}
	}
	return violations
}

// entityTerms picks out the tokens worth checking: capitalized words that
// do not open a sentence, tokens with code punctuation, all-caps words, and
// numbers. Checking every word would flag ordinary prose.
func entityTerms(text string) []string {
	var out []string
	sentenceStart := true
	for _, tok := range strings.Fields(text) {
		word := strings.TrimFunc(tok, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
		})
		endsSentence := strings.HasSuffix(tok, ".") || strings.HasSuffix(tok, "!") || strings.HasSuffix(tok, "?") || strings.HasSuffix(tok, ":")
		if word == "" {
			sentenceStart = endsSentence || sentenceStart
			continue
		}

		switch {
		case strings.ContainsAny(word, "_") || strings.Contains(tok, "("):
			out = append(out, word)
		case len(word) >= 3 && word == strings.ToUpper(word) && hasLetter(word):
			out = append(out, word)
		case isNumber(word):
			out = append(out, word)
		case !sentenceStart && unicode.IsUpper(firstRune(word)) && len(word) >= 3:
			out = append(out, word)
		}
		sentenceStart = endsSentence
	}
	return out
}

func termGrounded(term, visibleLower string, visibleTokens map[string]bool) bool {
	if strings.Contains(visibleLower, term) {
		return true
	}
	if len(term) >= 4 {
		stem := term[:4]
		for tok := range visibleTokens {
			if len(tok) >= 4 && tok[:4] == stem {
				return true
			}
		}
	}
	return false
}

func tokenize(s string) map[string]bool {
	out := map[string]bool{}
	for _, tok := range strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	}) {
		out[tok] = true
	}
	return out
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' {
			return false
		}
	}
	return true
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}
