package steps

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/reelnotes-backend/internal/clients/openai"
	redisclient "github.com/yungbote/reelnotes-backend/internal/clients/redis"
	"github.com/yungbote/reelnotes-backend/internal/data/repos/jobs"
	types "github.com/yungbote/reelnotes-backend/internal/domain"
	"github.com/yungbote/reelnotes-backend/internal/platform/config"
	"github.com/yungbote/reelnotes-backend/internal/platform/dbctx"
	"github.com/yungbote/reelnotes-backend/internal/platform/logger"
	"github.com/yungbote/reelnotes-backend/internal/services"
)

const (
	thumbQuality = 6
	hiResQuality = 2
)

type BuildDeps struct {
	Log      *logger.Logger
	Jobs     jobs.JobRepo
	Ledger   services.VersionLedger
	Store    services.BlobStore
	Decoder  services.VideoDecoder
	AI       openai.Client
	Cache    redisclient.VerdictCache
	Status   services.JobStatusSink
	Renderer *Renderer
	Cfg      config.Pipeline
}

type BuildInput struct {
	JobID uuid.UUID
	// ParentVersion is 0 for a job's first document.
	ParentVersion     int
	ChangeDescription string
	// Reverify bypasses the verdict cache, forcing fresh judgments.
	Reverify bool
}

type BuildOutput struct {
	Version *types.DocumentVersion
}

// ErrCancelled reports that the job was cancelled between stages. The job
// row already carries the cancelled status; the pipeline just stops.
var ErrCancelled = errors.New("job cancelled")

// BuildDocument runs the full video-to-document pipeline for one job and
// commits the result as a new ledger version. The job moves
// uploaded -> processing -> completed, or -> failed with the stage and
// cause recorded. Cancellation is checked between stages; a cancelled job
// stops without committing anything.
func BuildDocument(ctx context.Context, deps BuildDeps, in BuildInput) (BuildOutput, error) {
	log := deps.Log.With("job_id", in.JobID.String())
	dbc := dbctx.Context{Ctx: ctx}

	job, err := deps.Jobs.GetByID(dbc, in.JobID)
	if err != nil {
		return BuildOutput{}, fmt.Errorf("load job: %w", err)
	}
	if job == nil {
		return BuildOutput{}, fmt.Errorf("job %s: %w", in.JobID, types.ErrNotFound)
	}

	ok, err := deps.Jobs.Transition(dbc, in.JobID, types.JobStatusUploaded, types.JobStatusProcessing, map[string]interface{}{
		"stage":    types.StageSampling,
		"progress": 0,
		"error":    "",
	})
	if err != nil {
		return BuildOutput{}, fmt.Errorf("claim job: %w", err)
	}
	if !ok {
		return BuildOutput{}, fmt.Errorf("job %s not in uploaded state: %w", in.JobID, types.ErrConflict)
	}
	deps.Status.Update(ctx, in.JobID, types.JobStatusProcessing, types.StageSampling, 0)

	out, err := buildProcessing(ctx, deps, in, log)
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			log.Info("pipeline stopped: job cancelled")
			return BuildOutput{}, err
		}
		failJob(ctx, deps, in.JobID, err)
		return BuildOutput{}, err
	}

	now := time.Now().UTC()
	ok, terr := deps.Jobs.Transition(dbc, in.JobID, types.JobStatusProcessing, types.JobStatusCompleted, map[string]interface{}{
		"stage":        types.StageCommitting,
		"progress":     100,
		"completed_at": &now,
	})
	if terr != nil {
		return BuildOutput{}, fmt.Errorf("complete job: %w", terr)
	}
	if !ok {
		// Cancelled while committing. The version row stays; the job does
		// not flip back to completed.
		return BuildOutput{}, ErrCancelled
	}
	deps.Status.Update(ctx, in.JobID, types.JobStatusCompleted, types.StageCommitting, 100)
	log.Info("pipeline complete", "version", out.Version.VersionNumber)
	return out, nil
}

func buildProcessing(ctx context.Context, deps BuildDeps, in BuildInput, log *logger.Logger) (BuildOutput, error) {
	dbc := dbctx.Context{Ctx: ctx}
	job, err := deps.Jobs.GetByID(dbc, in.JobID)
	if err != nil || job == nil {
		return BuildOutput{}, fmt.Errorf("reload job: %w", err)
	}

	videoBytes, err := deps.Store.Get(ctx, job.VideoKey)
	if err != nil {
		return BuildOutput{}, fmt.Errorf("fetch video %s: %w", job.VideoKey, err)
	}
	transcriptBytes, err := deps.Store.Get(ctx, job.TranscriptKey)
	if err != nil {
		return BuildOutput{}, fmt.Errorf("fetch transcript %s: %w", job.TranscriptKey, err)
	}
	transcript := string(transcriptBytes)

	stream, err := deps.Decoder.Open(ctx, videoBytes)
	if err != nil {
		return BuildOutput{}, fmt.Errorf("open video: %w", err)
	}
	defer stream.Close()
	advance(ctx, deps, in.JobID, types.StageSampling, 10)

	accepted, verifyStats, err := sampleAndVerify(ctx, deps, in, stream, transcript, log)
	if err != nil {
		return BuildOutput{}, err
	}

	if err := checkCancelled(ctx, deps, in.JobID); err != nil {
		return BuildOutput{}, err
	}
	advance(ctx, deps, in.JobID, types.StageGenerating, 65)

	units, err := generateUnits(ctx, deps, in, stream, accepted, log)
	if err != nil {
		return BuildOutput{}, err
	}

	if len(units) < deps.Cfg.MinKeep {
		need := deps.Cfg.MinKeep - len(units)
		log.Warn("falling back to synthetic visuals", "have", len(units), "need", need)
		synthetic, err := GenerateFallbackVisuals(ctx, FallbackDeps{Log: log, AI: deps.AI}, FallbackInput{
			Transcript: transcript,
			Count:      need,
		})
		if err != nil {
			return BuildOutput{}, fmt.Errorf("fallback visuals: %w", err)
		}
		for i, sv := range synthetic {
			key := frameKey(in.JobID, fmt.Sprintf("synthetic_%02d.png", i))
			if err := services.PutBytes(ctx, deps.Store, key, sv.Image); err != nil {
				return BuildOutput{}, fmt.Errorf("store synthetic visual: %w", err)
			}
			sv.Unit.RawKey = key
			units = append(units, sv.Unit)
		}
	}

	if err := checkCancelled(ctx, deps, in.JobID); err != nil {
		return BuildOutput{}, err
	}
	advance(ctx, deps, in.JobID, types.StageAssembling, 90)

	notes, err := GenerateTranscriptNotes(ctx, GenerateDeps{Log: log, AI: deps.AI}, transcript)
	if err != nil {
		return BuildOutput{}, fmt.Errorf("transcript notes: %w", err)
	}

	doc := AssembleDocument(AssembleInput{Notes: notes, Units: units, Cfg: deps.Cfg})

	if err := checkCancelled(ctx, deps, in.JobID); err != nil {
		return BuildOutput{}, err
	}
	advance(ctx, deps, in.JobID, types.StageCommitting, 95)

	changeDesc := in.ChangeDescription
	if changeDesc == "" {
		changeDesc = "Initial document"
	}
	version, err := deps.Ledger.CreateVersion(ctx, in.JobID, doc, in.ParentVersion, changeDesc)
	if err != nil {
		return BuildOutput{}, fmt.Errorf("commit version: %w", err)
	}

	log.Info("document committed",
		"version", version.VersionNumber,
		"chapters", len(doc.Chapters),
		"verified", len(accepted),
		"cache_hits", verifyStats.CacheHits)
	return BuildOutput{Version: version}, nil
}

// sampleAndVerify runs sampling, filtering and verification, widening the
// candidate count when too few frames survive. Each widening pass resamples
// from scratch; the verdict cache keeps repeat judgments cheap.
func sampleAndVerify(ctx context.Context, deps BuildDeps, in BuildInput, stream services.VideoStream, transcript string, log *logger.Logger) ([]types.VerifiedFrame, VerifyOutput, error) {
	var (
		accepted []types.VerifiedFrame
		stats    VerifyOutput
	)
	counts := deps.Cfg.CandidateCounts
	for attempt, count := range counts {
		if err := checkCancelled(ctx, deps, in.JobID); err != nil {
			return nil, stats, err
		}
		advance(ctx, deps, in.JobID, types.StageSampling, 10+attempt*5)

		src, err := SampleFrames(SampleDeps{Log: log, Stream: stream}, SampleOptions{
			Count:   count,
			Width:   deps.Cfg.ThumbWidth,
			Quality: thumbQuality,
		})
		if err != nil {
			return nil, stats, fmt.Errorf("sample frames: %w", err)
		}

		advance(ctx, deps, in.JobID, types.StageFiltering, 25)
		filtered, err := FilterFrames(ctx, FilterDeps{Log: log}, src, FilterOptions{
			Window:             deps.Cfg.DuplicateWindow,
			MaxHammingDistance: deps.Cfg.DuplicateDistance,
			MinSharpness:       deps.Cfg.MinSharpness,
			MinLuminance:       deps.Cfg.MinLuminance,
			MinSurvivors:       deps.Cfg.MinSurvivors,
		})
		if err != nil {
			return nil, stats, fmt.Errorf("filter frames: %w", err)
		}
		if filtered.LowYield != nil && attempt < len(counts)-1 {
			log.Warn("low filter yield, widening sample",
				"survived", filtered.LowYield.Survived,
				"minimum", filtered.LowYield.Minimum,
				"next_count", counts[attempt+1])
			continue
		}

		advance(ctx, deps, in.JobID, types.StageVerifying, 45)
		verified, err := VerifyFrames(ctx, VerifyDeps{Log: log, AI: deps.AI, Cache: deps.Cache}, VerifyInput{
			Frames:      filtered.Kept,
			Transcript:  transcript,
			Threshold:   deps.Cfg.ConfidenceThreshold,
			KeepTarget:  deps.Cfg.KeepTarget,
			Concurrency: deps.Cfg.VerifyConcurrency,
			Invalidate:  in.Reverify,
		})
		if err != nil {
			return nil, stats, fmt.Errorf("verify frames: %w", err)
		}
		stats = verified
		accepted = verified.Accepted
		if len(accepted) >= deps.Cfg.MinKeep || attempt == len(counts)-1 {
			break
		}
		log.Warn("too few verified frames, widening sample",
			"accepted", len(accepted),
			"min_keep", deps.Cfg.MinKeep,
			"next_count", counts[attempt+1])
	}
	return accepted, stats, nil
}

// generateUnits extracts a hi-res still for each verified frame, generates
// its grounded content, and renders annotations. A frame whose content
// fails grounding twice is excluded from the document rather than shipped
// ungrounded.
func generateUnits(ctx context.Context, deps BuildDeps, in BuildInput, stream services.VideoStream, accepted []types.VerifiedFrame, log *logger.Logger) ([]types.ContentUnit, error) {
	type slot struct {
		unit types.ContentUnit
		ok   bool
	}
	slots := make([]slot, len(accepted))

	// Hi-res extraction is sequential: ffmpeg seeks on one temp file.
	hiRes := make([][]byte, len(accepted))
	for i, frame := range accepted {
		img, err := stream.FrameAt(ctx, frame.Timestamp, deps.Cfg.HiResWidth, hiResQuality)
		if err != nil {
			log.Warn("hi-res extraction failed, reusing thumbnail", "timestamp", frame.Timestamp, "error", err)
			img = frame.Image
		}
		hiRes[i] = img
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(deps.Cfg.VerifyConcurrency)
	for i := range accepted {
		i := i
		g.Go(func() error {
			frame := accepted[i]
			rawKey := frameKey(in.JobID, fmt.Sprintf("%06.2fs_raw.jpg", frame.Timestamp))
			if err := services.PutBytes(gctx, deps.Store, rawKey, hiRes[i]); err != nil {
				return fmt.Errorf("store frame %0.2fs: %w", frame.Timestamp, err)
			}
			frame.RawKey = rawKey

			unit, err := GenerateContent(gctx, GenerateDeps{Log: log, AI: deps.AI}, GenerateInput{
				Frame:       frame,
				MaxExamples: deps.Cfg.MaxExamples,
			})
			if err != nil {
				var gv *types.GroundingViolation
				if errors.As(err, &gv) {
					log.Warn("frame excluded: content failed grounding twice",
						"timestamp", frame.Timestamp,
						"terms", gv.Terms)
					return nil
				}
				return fmt.Errorf("generate content for %0.2fs: %w", frame.Timestamp, err)
			}
			unit.Timestamp = frame.Timestamp
			unit.Visible = frame.Visible
			unit.Confidence = frame.Confidence
			unit.RawKey = rawKey

			if len(unit.Annotations) > 0 {
				annotated, skipped, rerr := deps.Renderer.Render(hiRes[i], unit.Annotations)
				if rerr != nil {
					log.Warn("annotation render failed, keeping raw image", "timestamp", frame.Timestamp, "error", rerr)
				} else {
					if skipped > 0 {
						log.Debug("skipped malformed annotations", "timestamp", frame.Timestamp, "skipped", skipped)
					}
					annKey := frameKey(in.JobID, fmt.Sprintf("%06.2fs_annotated.png", frame.Timestamp))
					if err := services.PutBytes(gctx, deps.Store, annKey, annotated); err != nil {
						return fmt.Errorf("store annotated frame %0.2fs: %w", frame.Timestamp, err)
					}
					unit.AnnotatedKey = annKey
				}
			}

			slots[i] = slot{unit: unit, ok: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	advance(ctx, deps, in.JobID, types.StageAnnotating, 80)

	units := make([]types.ContentUnit, 0, len(slots))
	for _, s := range slots {
		if s.ok {
			units = append(units, s.unit)
		}
	}
	sort.SliceStable(units, func(i, j int) bool { return units[i].Timestamp < units[j].Timestamp })
	return units, nil
}

func frameKey(jobID uuid.UUID, name string) string {
	return fmt.Sprintf("jobs/%s/frames/%s", jobID, name)
}

// advance records a progress milestone. Progress only moves forward; the
// repo guard makes a late-arriving lower value a no-op.
func advance(ctx context.Context, deps BuildDeps, jobID uuid.UUID, stage string, progress int) {
	dbc := dbctx.Context{Ctx: ctx}
	if err := deps.Jobs.SetProgress(dbc, jobID, stage, progress); err != nil {
		deps.Log.Warn("progress update failed", "job_id", jobID.String(), "stage", stage, "error", err)
	}
	deps.Status.Update(ctx, jobID, types.JobStatusProcessing, stage, progress)
}

func checkCancelled(ctx context.Context, deps BuildDeps, jobID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	job, err := deps.Jobs.GetByID(dbctx.Context{Ctx: ctx}, jobID)
	if err != nil {
		return fmt.Errorf("cancellation check: %w", err)
	}
	if job != nil && job.Status == types.JobStatusCancelled {
		return ErrCancelled
	}
	return nil
}

func failJob(ctx context.Context, deps BuildDeps, jobID uuid.UUID, cause error) {
	dbc := dbctx.Context{Ctx: ctx}
	job, _ := deps.Jobs.GetByID(dbc, jobID)
	stage := ""
	if job != nil {
		stage = job.Stage
	}
	ok, err := deps.Jobs.Transition(dbc, jobID, types.JobStatusProcessing, types.JobStatusFailed, map[string]interface{}{
		"error": cause.Error(),
	})
	if err != nil {
		deps.Log.Error("could not mark job failed", "job_id", jobID.String(), "error", err)
		return
	}
	if ok {
		deps.Status.Update(ctx, jobID, types.JobStatusFailed, stage, 0)
	}
}
