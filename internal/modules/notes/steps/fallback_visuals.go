package steps

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/fogleman/gg"

	"github.com/yungbote/reelnotes-backend/internal/clients/openai"
	types "github.com/yungbote/reelnotes-backend/internal/domain"
	"github.com/yungbote/reelnotes-backend/internal/platform/logger"
)

// SyntheticVisual is a placeholder diagram produced when the video yielded
// too few usable frames. The image is rendered locally, so it is trusted
// by construction and skips verification.
type SyntheticVisual struct {
	Unit  types.ContentUnit
	Image []byte
}

type FallbackDeps struct {
	Log *logger.Logger
	AI  openai.Client
}

type FallbackInput struct {
	Transcript string
	Count      int
}

type fallbackTopic struct {
	Title   string   `json:"title"`
	Caption string   `json:"caption"`
	Points  []string `json:"points"`
}

var fallbackSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []any{"topics"},
	"properties": map[string]any{
		"topics": map[string]any{
			"type":     "array",
			"maxItems": 6,
			"items": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required":             []any{"title", "caption", "points"},
				"properties": map[string]any{
					"title":   map[string]any{"type": "string"},
					"caption": map[string]any{"type": "string"},
					"points": map[string]any{
						"type":     "array",
						"maxItems": 5,
						"items":    map[string]any{"type": "string"},
					},
				},
			},
		},
	},
}

const fallbackSystemPrompt = `You summarize a lecture transcript into a few standalone topic cards.
Each card has a short title, a one-sentence caption, and 2-5 bullet points.
Use only information stated in the transcript. Return strict JSON.`

// GenerateFallbackVisuals builds placeholder topic diagrams from the
// transcript. It degrades gracefully: if the model call fails, a single
// generic card is rendered from the opening of the transcript so the
// document always has at least one visual.
func GenerateFallbackVisuals(ctx context.Context, deps FallbackDeps, in FallbackInput) ([]SyntheticVisual, error) {
	if in.Count <= 0 {
		return nil, nil
	}

	topics := fallbackTopicsFromModel(ctx, deps, in)
	if len(topics) == 0 {
		topics = []fallbackTopic{fallbackTopicFromText(in.Transcript)}
	}
	if len(topics) > in.Count {
		topics = topics[:in.Count]
	}

	out := make([]SyntheticVisual, 0, len(topics))
	for _, topic := range topics {
		img, err := renderTopicCard(topic)
		if err != nil {
			return nil, fmt.Errorf("render fallback diagram: %w", err)
		}
		out = append(out, SyntheticVisual{
			Unit: types.ContentUnit{
				Title:       topic.Title,
				Caption:     topic.Caption,
				Explanation: strings.Join(topic.Points, " "),
				Visible:     topic.Title,
				Synthetic:   true,
			},
			Image: img,
		})
	}
	return out, nil
}

func fallbackTopicsFromModel(ctx context.Context, deps FallbackDeps, in FallbackInput) []fallbackTopic {
	transcript := in.Transcript
	if len(transcript) > 8000 {
		transcript = transcript[:8000]
	}
	prompt := fmt.Sprintf("Produce at most %d topic cards from this transcript:\n\n%s", in.Count, transcript)

	obj, err := deps.AI.GenerateJSON(ctx, fallbackSystemPrompt, prompt, "fallback_topics", fallbackSchema)
	if err != nil {
		deps.Log.Warn("fallback topic generation failed, using transcript excerpt", "error", err)
		return nil
	}
	list, ok := obj["topics"].([]any)
	if !ok {
		return nil
	}
	var topics []fallbackTopic
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		t := fallbackTopic{}
		t.Title, _ = m["title"].(string)
		t.Caption, _ = m["caption"].(string)
		t.Points = stringList(m["points"])
		if strings.TrimSpace(t.Title) == "" {
			continue
		}
		topics = append(topics, t)
	}
	return topics
}

func fallbackTopicFromText(transcript string) fallbackTopic {
	excerpt := strings.TrimSpace(transcript)
	if len(excerpt) > 240 {
		excerpt = excerpt[:240] + "…"
	}
	points := []string{}
	for _, s := range strings.SplitN(excerpt, ". ", 4) {
		s = strings.TrimSpace(s)
		if s != "" {
			points = append(points, s)
		}
	}
	return fallbackTopic{
		Title:   "Key Points",
		Caption: "Summary generated from the transcript.",
		Points:  points,
	}
}

const (
	cardWidth  = 1200
	cardHeight = 700
)

func renderTopicCard(topic fallbackTopic) ([]byte, error) {
	dc := gg.NewContext(cardWidth, cardHeight)

	dc.SetRGB255(250, 250, 252)
	dc.Clear()

	dc.SetRGB255(33, 53, 85)
	dc.DrawRectangle(0, 0, cardWidth, 110)
	dc.Fill()

	dc.SetRGB255(255, 255, 255)
	dc.DrawStringAnchored(topic.Title, 40, 55, 0, 0.5)

	dc.SetRGB255(70, 70, 80)
	dc.DrawStringWrapped(topic.Caption, 40, 140, 0, 0, cardWidth-80, 1.5, gg.AlignLeft)

	y := 230.0
	for _, p := range topic.Points {
		dc.SetRGB255(33, 53, 85)
		dc.DrawCircle(52, y+8, 6)
		dc.Fill()
		dc.SetRGB255(40, 40, 48)
		dc.DrawStringWrapped(p, 76, y, 0, 0, cardWidth-120, 1.4, gg.AlignLeft)
		y += 80
		if y > cardHeight-60 {
			break
		}
	}

	dc.SetRGB255(33, 53, 85)
	dc.SetLineWidth(4)
	dc.DrawRectangle(2, 2, cardWidth-4, cardHeight-4)
	dc.Stroke()

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
