package steps

import (
	"context"
	"fmt"
	"math"
	"testing"
)

func TestSampleFramesUniformSpacing(t *testing.T) {
	stream := &fakeStream{duration: 120}
	src, err := SampleFrames(SampleDeps{Log: testLogger(t), Stream: stream}, SampleOptions{Count: 10})
	if err != nil {
		t.Fatalf("SampleFrames: %v", err)
	}
	if got := src.Remaining(); got != 10 {
		t.Fatalf("Remaining = %d, want 10", got)
	}
	for i, ts := range src.times {
		want := 120 * float64(i+1) / 12
		if math.Abs(ts-want) > 1e-9 {
			t.Fatalf("timestamp %d = %v, want %v", i, ts, want)
		}
	}
	if src.times[0] <= 0 || src.times[len(src.times)-1] >= 120 {
		t.Fatalf("sampling touched the video boundaries: %v", src.times)
	}
}

func TestFrameSourceExhaustion(t *testing.T) {
	frame := patternPNG(t, 1)
	stream := &fakeStream{
		duration: 60,
		frameFn: func(ts float64, width, quality int) ([]byte, error) {
			return frame, nil
		},
	}
	src, err := SampleFrames(SampleDeps{Log: testLogger(t), Stream: stream}, SampleOptions{Count: 3})
	if err != nil {
		t.Fatalf("SampleFrames: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f, ok, err := src.Next(ctx)
		if err != nil || !ok {
			t.Fatalf("Next %d: ok=%v err=%v", i, ok, err)
		}
		if f.Index != i {
			t.Fatalf("frame index = %d, want %d", f.Index, i)
		}
	}
	if _, ok, _ := src.Next(ctx); ok {
		t.Fatalf("source yielded past exhaustion")
	}
	if _, ok, _ := src.Next(ctx); ok {
		t.Fatalf("exhausted source restarted")
	}
}

func TestFrameSourceDecodeFailureIsFatal(t *testing.T) {
	stream := &fakeStream{
		duration: 60,
		frameFn: func(ts float64, width, quality int) ([]byte, error) {
			return nil, fmt.Errorf("ffmpeg exploded")
		},
	}
	src, err := SampleFrames(SampleDeps{Log: testLogger(t), Stream: stream}, SampleOptions{Count: 2})
	if err != nil {
		t.Fatalf("SampleFrames: %v", err)
	}
	if _, _, err := src.Next(context.Background()); err == nil {
		t.Fatalf("expected extraction error to surface")
	}
}

func TestSampleFramesRejectsBadInput(t *testing.T) {
	if _, err := SampleFrames(SampleDeps{Log: testLogger(t), Stream: &fakeStream{duration: 10}}, SampleOptions{Count: 0}); err == nil {
		t.Fatalf("expected error for zero count")
	}
	if _, err := SampleFrames(SampleDeps{Log: testLogger(t), Stream: &fakeStream{duration: 0}}, SampleOptions{Count: 5}); err == nil {
		t.Fatalf("expected error for non-positive duration")
	}
}
