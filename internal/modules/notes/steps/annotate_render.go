package steps

import (
	"bytes"
	"fmt"
	"image"
	"math"
	"os"
	"strings"

	_ "image/jpeg"
	_ "image/png"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"

	types "github.com/yungbote/reelnotes-backend/internal/domain"
	"github.com/yungbote/reelnotes-backend/internal/platform/logger"
)

const maxAnnotationsPerImage = 6

// Renderer applies annotation instructions to raw frames. Rendering is a
// pure function of (image bytes, instruction list) for a given renderer:
// fixed colors, fixed fonts, no randomness, no timestamps, so regeneration
// is idempotent.
type Renderer struct {
	log      *logger.Logger
	fontFace font.Face
}

func NewRenderer(log *logger.Logger) (*Renderer, error) {
	serviceLog := log.With("service", "AnnotationRenderer")

	face := font.Face(basicfont.Face7x13)
	fontPath := strings.TrimSpace(os.Getenv("ANNOTATION_FONT"))
	if fontPath != "" {
		loaded, err := loadFontFace(fontPath, 24)
		if err != nil {
			return nil, fmt.Errorf("could not load annotation font: %w", err)
		}
		face = loaded
	} else {
		serviceLog.Warn("ANNOTATION_FONT not set; using built-in bitmap font")
	}

	return &Renderer{
		log:      serviceLog,
		fontFace: face,
	}, nil
}

// Render draws the instructions onto the image and returns PNG bytes plus
// how many instructions were skipped as malformed. Out-of-bounds regions
// are clamped, labels without text are skipped. Partial annotation is fine;
// only a failure to produce any image at all is an error.
func (r *Renderer) Render(raw []byte, instructions []types.AnnotationInstruction) ([]byte, int, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, 0, fmt.Errorf("decode image: %w", err)
	}
	b := img.Bounds()
	w := float64(b.Dx())
	h := float64(b.Dy())

	dc := gg.NewContext(b.Dx(), b.Dy())
	dc.DrawImage(img, 0, 0)
	dc.SetFontFace(r.fontFace)

	skipped := 0
	if len(instructions) > maxAnnotationsPerImage {
		skipped += len(instructions) - maxAnnotationsPerImage
		instructions = instructions[:maxAnnotationsPerImage]
	}

	for _, ins := range instructions {
		x1 := clamp01(ins.X1) * w
		y1 := clamp01(ins.Y1) * h
		x2 := clamp01(ins.X2) * w
		y2 := clamp01(ins.Y2) * h

		switch ins.Type {
		case types.AnnotationArrow:
			r.drawArrow(dc, x1, y1, x2, y2, ins.Text)
		case types.AnnotationLabel:
			if strings.TrimSpace(ins.Text) == "" {
				skipped++
				continue
			}
			r.drawLabel(dc, x1, y1, ins.Text)
		case types.AnnotationHighlight:
			r.drawBox(dc, x1, y1, x2, y2)
		case types.AnnotationCircle:
			r.drawCircle(dc, x1, y1, x2, y2)
		case types.AnnotationUnderline:
			r.drawUnderline(dc, x1, y1, x2, y2)
		default:
			skipped++
			continue
		}
	}

	var out bytes.Buffer
	if err := dc.EncodePNG(&out); err != nil {
		return nil, skipped, fmt.Errorf("encode annotated image: %w", err)
	}
	return out.Bytes(), skipped, nil
}

func (r *Renderer) setRed(dc *gg.Context) {
	dc.SetRGB255(255, 0, 0)
}

func (r *Renderer) drawArrow(dc *gg.Context, x1, y1, x2, y2 float64, text string) {
	r.setRed(dc)
	dc.SetLineWidth(6)
	dc.DrawLine(x1, y1, x2, y2)
	dc.Stroke()

	ang := math.Atan2(y2-y1, x2-x1)
	const headLen = 22.0
	lx := x2 - headLen*math.Cos(ang-0.5)
	ly := y2 - headLen*math.Sin(ang-0.5)
	rx := x2 - headLen*math.Cos(ang+0.5)
	ry := y2 - headLen*math.Sin(ang+0.5)
	dc.MoveTo(x2, y2)
	dc.LineTo(lx, ly)
	dc.LineTo(rx, ry)
	dc.ClosePath()
	dc.Fill()

	if strings.TrimSpace(text) != "" {
		r.drawLabel(dc, x1, y1, text)
	}
}

func (r *Renderer) drawLabel(dc *gg.Context, x, y float64, text string) {
	tw, th := dc.MeasureString(text)
	const pad = 6.0
	dc.SetRGB255(255, 255, 255)
	dc.DrawRectangle(x-pad, y-th-pad, tw+2*pad, th+2*pad)
	dc.Fill()
	r.setRed(dc)
	dc.DrawString(text, x, y)
}

func (r *Renderer) drawBox(dc *gg.Context, x1, y1, x2, y2 float64) {
	r.setRed(dc)
	dc.SetLineWidth(5)
	dc.DrawRectangle(math.Min(x1, x2), math.Min(y1, y2), math.Abs(x2-x1), math.Abs(y2-y1))
	dc.Stroke()
}

func (r *Renderer) drawCircle(dc *gg.Context, x1, y1, x2, y2 float64) {
	r.setRed(dc)
	dc.SetLineWidth(5)
	cx := (x1 + x2) / 2
	cy := (y1 + y2) / 2
	rx := math.Abs(x2-x1) / 2
	ry := math.Abs(y2-y1) / 2
	if rx < 4 {
		rx = 4
	}
	if ry < 4 {
		ry = 4
	}
	dc.DrawEllipse(cx, cy, rx, ry)
	dc.Stroke()
}

func (r *Renderer) drawUnderline(dc *gg.Context, x1, y1, x2, y2 float64) {
	r.setRed(dc)
	dc.SetLineWidth(5)
	y := math.Max(y1, y2)
	dc.DrawLine(math.Min(x1, x2), y, math.Max(x1, x2), y)
	dc.Stroke()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func loadFontFace(fontPath string, size float64) (font.Face, error) {
	fontBytes, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("read font file: %w", err)
	}
	parsedFont, err := truetype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("parse TTF: %w", err)
	}
	face := truetype.NewFace(parsedFont, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	return face, nil
}
