package steps

import (
	"bytes"
	"image"
	"testing"

	types "github.com/yungbote/reelnotes-backend/internal/domain"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer(testLogger(t))
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	return r
}

func arrow(x1, y1, x2, y2 float64) types.AnnotationInstruction {
	return types.AnnotationInstruction{Type: types.AnnotationArrow, X1: x1, Y1: y1, X2: x2, Y2: y2}
}

func TestRenderDeterministic(t *testing.T) {
	r := newTestRenderer(t)
	src := patternPNG(t, 1)
	ins := []types.AnnotationInstruction{
		arrow(0.1, 0.1, 0.6, 0.6),
		{Type: types.AnnotationLabel, X1: 0.2, Y1: 0.8, Text: "probe phase"},
		{Type: types.AnnotationHighlight, X1: 0.3, Y1: 0.3, X2: 0.7, Y2: 0.5},
	}

	first, skipped1, err := r.Render(src, ins)
	if err != nil {
		t.Fatalf("first render: %v", err)
	}
	second, skipped2, err := r.Render(src, ins)
	if err != nil {
		t.Fatalf("second render: %v", err)
	}
	if skipped1 != 0 || skipped2 != 0 {
		t.Fatalf("skipped = %d/%d, want 0", skipped1, skipped2)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("same input produced different output bytes")
	}
}

func TestRenderOutputDecodesAtSourceSize(t *testing.T) {
	r := newTestRenderer(t)
	out, _, err := r.Render(patternPNG(t, 2), []types.AnnotationInstruction{arrow(0, 0, 1, 1)})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	img, format, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if format != "png" {
		t.Fatalf("format = %q, want png", format)
	}
	if img.Bounds().Dx() != 64 || img.Bounds().Dy() != 64 {
		t.Fatalf("output bounds = %v, want source size", img.Bounds())
	}
}

func TestRenderClampsOutOfBoundsCoordinates(t *testing.T) {
	r := newTestRenderer(t)
	ins := []types.AnnotationInstruction{
		arrow(-3, -1, 7.5, 2),
		{Type: types.AnnotationCircle, X1: 1.4, Y1: 1.4, X2: 2, Y2: 2},
	}
	if _, skipped, err := r.Render(patternPNG(t, 3), ins); err != nil || skipped != 0 {
		t.Fatalf("clamped render: skipped=%d err=%v", skipped, err)
	}
}

func TestRenderSkipsMalformedInstructions(t *testing.T) {
	r := newTestRenderer(t)
	ins := []types.AnnotationInstruction{
		{Type: "sparkle", X1: 0.5, Y1: 0.5},
		{Type: types.AnnotationLabel, X1: 0.5, Y1: 0.5, Text: "   "},
		arrow(0.1, 0.1, 0.9, 0.9),
	}
	_, skipped, err := r.Render(patternPNG(t, 4), ins)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if skipped != 2 {
		t.Fatalf("skipped = %d, want unknown type and empty label skipped", skipped)
	}
}

func TestRenderLimitsInstructionCount(t *testing.T) {
	r := newTestRenderer(t)
	var ins []types.AnnotationInstruction
	for i := 0; i < 9; i++ {
		ins = append(ins, arrow(0.1, 0.1, 0.9, 0.9))
	}
	_, skipped, err := r.Render(patternPNG(t, 5), ins)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if skipped != 3 {
		t.Fatalf("skipped = %d, want overflow beyond %d dropped", skipped, maxAnnotationsPerImage)
	}
}

func TestRenderRejectsUndecodableImage(t *testing.T) {
	r := newTestRenderer(t)
	if _, _, err := r.Render([]byte("not an image"), nil); err == nil {
		t.Fatalf("expected decode error")
	}
}
