package steps

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"math/bits"

	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"

	types "github.com/yungbote/reelnotes-backend/internal/domain"
	"github.com/yungbote/reelnotes-backend/internal/platform/logger"
)

type FilterDeps struct {
	Log *logger.Logger
}

type FilterOptions struct {
	// Window is how many recently kept frames a candidate is compared
	// against for near-duplicate suppression.
	Window int
	// MaxHammingDistance: candidates whose 64-bit average hash is within
	// this distance of a windowed frame are dropped as duplicates.
	MaxHammingDistance int
	// MinSharpness is the mean-gradient floor below which a frame counts
	// as blurred or flat.
	MinSharpness float64
	// MinLuminance rejects near-black frames (0..255 scale).
	MinLuminance float64
	// MinSurvivors: below this the output carries a LowYieldWarning so the
	// caller can widen sampling once.
	MinSurvivors int
}

type FilterOutput struct {
	Kept     []types.CandidateFrame
	Dropped  int
	LowYield *types.LowYieldWarning
}

// FilterFrames drains the source and applies, in order: near-duplicate
// suppression against a sliding window of kept frames, low-quality
// rejection, and near-black rejection. Timestamp order is preserved.
// Undecodable candidates are dropped, not fatal: the source already decoded
// the video, so a bad thumbnail is a per-frame defect.
func FilterFrames(ctx context.Context, deps FilterDeps, src *FrameSource, opts FilterOptions) (FilterOutput, error) {
	out := FilterOutput{}
	if src == nil {
		return out, fmt.Errorf("frame_filter: missing source")
	}
	if opts.Window <= 0 {
		opts.Window = 5
	}

	var window []uint64

	for {
		frame, ok, err := src.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			break
		}

		img, _, decErr := image.Decode(bytes.NewReader(frame.Image))
		if decErr != nil {
			deps.Log.Warn("undecodable candidate dropped", "timestamp", frame.Timestamp, "error", decErr)
			out.Dropped++
			continue
		}
		gray := toGray(img)

		hash := averageHash(gray)
		if isDuplicate(hash, window, opts.MaxHammingDistance) {
			out.Dropped++
			continue
		}
		if sharpness(gray) < opts.MinSharpness {
			out.Dropped++
			continue
		}
		if meanLuminance(gray) < opts.MinLuminance {
			out.Dropped++
			continue
		}

		out.Kept = append(out.Kept, frame)
		window = append(window, hash)
		if len(window) > opts.Window {
			window = window[1:]
		}
	}

	if opts.MinSurvivors > 0 && len(out.Kept) < opts.MinSurvivors {
		out.LowYield = &types.LowYieldWarning{Survived: len(out.Kept), Minimum: opts.MinSurvivors}
	}
	return out, nil
}

func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(b)
	draw.Draw(gray, b, img, b.Min, draw.Src)
	return gray
}

// averageHash scales the image to 8x8 and sets a bit per pixel brighter
// than the mean.
func averageHash(gray *image.Gray) uint64 {
	small := image.NewGray(image.Rect(0, 0, 8, 8))
	draw.ApproxBiLinear.Scale(small, small.Bounds(), gray, gray.Bounds(), draw.Src, nil)

	var sum int
	for i := 0; i < 64; i++ {
		sum += int(small.Pix[i])
	}
	mean := uint8(sum / 64)

	var hash uint64
	for i := 0; i < 64; i++ {
		if small.Pix[i] > mean {
			hash |= 1 << uint(i)
		}
	}
	return hash
}

func isDuplicate(hash uint64, window []uint64, maxDistance int) bool {
	for _, prev := range window {
		if bits.OnesCount64(hash^prev) <= maxDistance {
			return true
		}
	}
	return false
}

// sharpness is the mean absolute luminance gradient. Blurred and flat
// frames score low; slides and diagrams with edges score high.
func sharpness(gray *image.Gray) float64 {
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 2 || h < 2 {
		return 0
	}
	var total float64
	var count int
	for y := 0; y < h-1; y++ {
		row := gray.Pix[y*gray.Stride:]
		next := gray.Pix[(y+1)*gray.Stride:]
		for x := 0; x < w-1; x++ {
			dx := int(row[x+1]) - int(row[x])
			dy := int(next[x]) - int(row[x])
			if dx < 0 {
				dx = -dx
			}
			if dy < 0 {
				dy = -dy
			}
			total += float64(dx + dy)
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

func meanLuminance(gray *image.Gray) float64 {
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return 0
	}
	var total float64
	for y := 0; y < h; y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+w]
		for _, p := range row {
			total += float64(p)
		}
	}
	return total / float64(w*h)
}
