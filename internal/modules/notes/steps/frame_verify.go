package steps

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/reelnotes-backend/internal/clients/openai"
	redisclient "github.com/yungbote/reelnotes-backend/internal/clients/redis"
	types "github.com/yungbote/reelnotes-backend/internal/domain"
	"github.com/yungbote/reelnotes-backend/internal/platform/logger"
)

type VerifyDeps struct {
	Log   *logger.Logger
	AI    openai.Client
	Cache redisclient.VerdictCache
}

type VerifyInput struct {
	Frames []types.CandidateFrame
	// Transcript gives the verifier topical context; the verdict itself must
	// still be about what is visible in the pixels.
	Transcript string
	Threshold  int
	// KeepTarget stops accepting once enough frames passed; remaining frames
	// are still accounted for (skipped, not failed).
	KeepTarget  int
	Concurrency int
	// Invalidate forces fresh verdicts (re-verification during edits).
	Invalidate bool
}

type VerifyOutput struct {
	Accepted []types.VerifiedFrame
	Rejected int
	// Failed counts frames whose verification calls exhausted the retry
	// budget. Fail-closed: these are rejections, never acceptances.
	Failed    int
	CacheHits int
}

var verdictSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"properties": map[string]any{
		"educational": map[string]any{"type": "boolean"},
		"visible":     map[string]any{"type": "string"},
		"confidence":  map[string]any{"type": "integer", "minimum": 0, "maximum": 100},
	},
	"required": []any{"educational", "visible", "confidence"},
}

const verifySystemPrompt = `You verify single video frames for study notes.
Judge each image independently, on its pixels alone.
Set educational=false for: comment sections, replies, profile icons, like/dislike buttons,
people or talking heads, memes, decorative animations, logos without informative content,
blurred or blank frames.
Set educational=true for: diagrams, tables, code, formulas, slides naming concepts,
charts, worked examples.
"visible" must describe exactly what is in the image: be specific, name visible text and
structure, do not infer anything beyond the pixels.
"confidence" is your 0-100 confidence in the educational judgment and description.`

// VerifyFrames obtains one independent judgment per frame, concurrently up
// to the configured limit, and keeps frames iff educational AND confidence
// at or above threshold. Verdicts are cached by a sha256 fingerprint of the
// frame bytes. Source order is preserved in the output.
func VerifyFrames(ctx context.Context, deps VerifyDeps, in VerifyInput) (VerifyOutput, error) {
	out := VerifyOutput{}
	if deps.AI == nil || deps.Cache == nil || deps.Log == nil {
		return out, fmt.Errorf("frame_verify: missing deps")
	}
	if len(in.Frames) == 0 {
		return out, nil
	}
	conc := in.Concurrency
	if conc <= 0 {
		conc = 4
	}

	type slot struct {
		frame   types.CandidateFrame
		verdict *types.Verdict
		failed  bool
		cached  bool
	}
	slots := make([]slot, len(in.Frames))
	for i, f := range in.Frames {
		slots[i].frame = f
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(conc)

	for i := range slots {
		i := i
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			fp := Fingerprint(slots[i].frame.Image)

			if in.Invalidate {
				if err := deps.Cache.Invalidate(gctx, fp); err != nil {
					deps.Log.Warn("verdict cache invalidate failed", "fingerprint", fp, "error", err)
				}
			} else {
				if v, ok, err := deps.Cache.Get(gctx, fp); err == nil && ok {
					mu.Lock()
					slots[i].verdict = v
					slots[i].cached = true
					mu.Unlock()
					return nil
				}
			}

			v, err := verifyOne(gctx, deps, slots[i].frame, in.Transcript)
			if err != nil {
				// Fail closed: an unverifiable frame is a rejected frame.
				deps.Log.Warn("frame verification failed, rejecting",
					"timestamp", slots[i].frame.Timestamp,
					"error", err,
				)
				mu.Lock()
				slots[i].failed = true
				mu.Unlock()
				return nil
			}
			if putErr := deps.Cache.Put(gctx, fp, *v); putErr != nil {
				deps.Log.Warn("verdict cache put failed", "fingerprint", fp, "error", putErr)
			}
			mu.Lock()
			slots[i].verdict = v
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}

	for _, s := range slots {
		if s.cached {
			out.CacheHits++
		}
		if s.failed {
			out.Failed++
			continue
		}
		v := s.verdict
		if v == nil {
			out.Failed++
			continue
		}
		if !v.Educational || v.Confidence < in.Threshold {
			out.Rejected++
			continue
		}
		if in.KeepTarget > 0 && len(out.Accepted) >= in.KeepTarget {
			continue
		}
		out.Accepted = append(out.Accepted, types.VerifiedFrame{
			Timestamp:  s.frame.Timestamp,
			Image:      s.frame.Image,
			Visible:    v.Visible,
			Confidence: v.Confidence,
			Relevant:   true,
		})
	}
	return out, nil
}

func verifyOne(ctx context.Context, deps VerifyDeps, frame types.CandidateFrame, transcript string) (*types.Verdict, error) {
	topic := strings.TrimSpace(transcript)
	if len(topic) > 1500 {
		topic = topic[:1500] + "\n...(trimmed)..."
	}
	user := fmt.Sprintf("Frame at %.2fs of an educational video.\nTranscript context:\n%s", frame.Timestamp, topic)

	obj, err := deps.AI.GenerateVisionJSON(ctx, verifySystemPrompt, user, [][]byte{frame.Image}, "frame_verdict", verdictSchema)
	if err != nil {
		return nil, err
	}

	v := &types.Verdict{}
	if b, ok := obj["educational"].(bool); ok {
		v.Educational = b
	}
	if s, ok := obj["visible"].(string); ok {
		v.Visible = strings.TrimSpace(s)
	}
	switch c := obj["confidence"].(type) {
	case float64:
		v.Confidence = int(c)
	case int:
		v.Confidence = c
	}
	if v.Confidence < 0 {
		v.Confidence = 0
	}
	if v.Confidence > 100 {
		v.Confidence = 100
	}
	if v.Educational && v.Visible == "" {
		return nil, fmt.Errorf("verdict marked educational with empty visible description")
	}
	return v, nil
}

// Fingerprint is the stable content hash used as the verdict cache key.
func Fingerprint(img []byte) string {
	h := sha256.Sum256(img)
	return hex.EncodeToString(h[:])
}
