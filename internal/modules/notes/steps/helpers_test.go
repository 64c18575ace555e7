package steps

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/yungbote/reelnotes-backend/internal/platform/logger"
)

func testLogger(t testing.TB) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

// patternPNG renders a 64x64 checkerboard whose block brightness derives
// from the seed. Distinct seeds hash far apart; equal seeds are identical
// bytes. Patterns are bright and high-contrast, so they pass the default
// sharpness and luminance floors.
func patternPNG(t testing.TB, seed int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	state := uint32(seed*2654435761 + 12345)
	next := func() uint32 {
		state = state*1664525 + 1013904223
		return state
	}
	for by := 0; by < 8; by++ {
		for bx := 0; bx < 8; bx++ {
			v := uint8(64 + next()%192)
			for y := by * 8; y < by*8+8; y++ {
				for x := bx * 8; x < bx*8+8; x++ {
					img.SetGray(x, y, color.Gray{Y: v})
				}
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode pattern: %v", err)
	}
	return buf.Bytes()
}

// flatPNG renders a uniform 64x64 frame of the given brightness.
func flatPNG(t testing.TB, level uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		img.Pix[i] = level
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode flat frame: %v", err)
	}
	return buf.Bytes()
}

// fakeStream serves frames from a map keyed by rounded timestamp, or from
// a generator when set.
type fakeStream struct {
	duration float64
	frameFn  func(ts float64, width, quality int) ([]byte, error)
	closed   bool
}

func (s *fakeStream) Duration() float64 { return s.duration }

func (s *fakeStream) FrameAt(ctx context.Context, ts float64, width, quality int) ([]byte, error) {
	if s.frameFn == nil {
		return nil, fmt.Errorf("no frame generator")
	}
	return s.frameFn(ts, width, quality)
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

// fakeAI scripts model responses per schema name.
type fakeAI struct {
	generateFn func(schemaName, user string) (map[string]any, error)
	visionFn   func(schemaName string, images [][]byte) (map[string]any, error)
	calls      int
}

func (f *fakeAI) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	f.calls++
	if f.generateFn == nil {
		return nil, fmt.Errorf("unexpected GenerateJSON(%s)", schemaName)
	}
	return f.generateFn(schemaName, user)
}

func (f *fakeAI) GenerateVisionJSON(ctx context.Context, system, user string, images [][]byte, schemaName string, schema map[string]any) (map[string]any, error) {
	f.calls++
	if f.visionFn == nil {
		return nil, fmt.Errorf("unexpected GenerateVisionJSON(%s)", schemaName)
	}
	return f.visionFn(schemaName, images)
}
