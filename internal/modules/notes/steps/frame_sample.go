package steps

import (
	"context"
	"fmt"

	types "github.com/yungbote/reelnotes-backend/internal/domain"
	"github.com/yungbote/reelnotes-backend/internal/platform/logger"
	"github.com/yungbote/reelnotes-backend/internal/services"
)

type SampleDeps struct {
	Log    *logger.Logger
	Stream services.VideoStream
}

type SampleOptions struct {
	// Count is how many uniformly spaced candidates to pull. Widened by the
	// caller when yield is low.
	Count int
	// Width scales extracted thumbnails; 0 keeps source width.
	Width int
	// Quality maps to ffmpeg -q:v.
	Quality int
}

// FrameSource is a lazy, finite, non-restartable sequence of candidate
// frames. Frames decode on demand; once exhausted the source stays
// exhausted.
type FrameSource struct {
	deps  SampleDeps
	opts  SampleOptions
	times []float64
	next  int
}

// SampleFrames plans uniformly spaced timestamps over the stream duration
// and returns a source that decodes them lazily. The spacing skips the very
// start and end of the video, which are usually intro/outro cards.
func SampleFrames(deps SampleDeps, opts SampleOptions) (*FrameSource, error) {
	if deps.Stream == nil {
		return nil, fmt.Errorf("frame_sample: missing stream")
	}
	if opts.Count <= 0 {
		return nil, fmt.Errorf("frame_sample: count must be positive")
	}
	dur := deps.Stream.Duration()
	if dur <= 0 {
		return nil, &types.DecodeError{Key: "stream", Err: fmt.Errorf("non-positive duration %.3f", dur)}
	}

	times := make([]float64, 0, opts.Count)
	for i := 0; i < opts.Count; i++ {
		times = append(times, dur*float64(i+1)/float64(opts.Count+2))
	}

	return &FrameSource{
		deps:  deps,
		opts:  opts,
		times: times,
	}, nil
}

// Next yields the next candidate frame. Returns ok=false when the sequence
// is exhausted. A decode failure is fatal for the whole job; partial
// extraction is not retried here.
func (s *FrameSource) Next(ctx context.Context) (types.CandidateFrame, bool, error) {
	if s.next >= len(s.times) {
		return types.CandidateFrame{}, false, nil
	}
	if err := ctx.Err(); err != nil {
		return types.CandidateFrame{}, false, err
	}

	idx := s.next
	ts := s.times[idx]
	s.next++

	img, err := s.deps.Stream.FrameAt(ctx, ts, s.opts.Width, s.opts.Quality)
	if err != nil {
		return types.CandidateFrame{}, false, err
	}
	return types.CandidateFrame{
		Index:     idx,
		Timestamp: ts,
		Image:     img,
	}, true, nil
}

// Remaining reports how many frames have not been pulled yet.
func (s *FrameSource) Remaining() int {
	return len(s.times) - s.next
}
