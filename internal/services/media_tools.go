package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	types "github.com/yungbote/reelnotes-backend/internal/domain"
	"github.com/yungbote/reelnotes-backend/internal/platform/logger"
)

// VideoStream exposes random access to decoded frames of one video file.
type VideoStream interface {
	Duration() float64
	// FrameAt decodes the frame nearest to ts and returns JPEG bytes scaled
	// to the requested width (0 keeps the source width). quality maps to
	// ffmpeg -q:v (2 is near-lossless, 8 is a cheap thumbnail).
	FrameAt(ctx context.Context, ts float64, width int, quality int) ([]byte, error)
	Close() error
}

// VideoDecoder opens video blobs for frame extraction.
//
// REQUIRED BINARIES in the worker runtime: ffmpeg and ffprobe.
// Synchronous and deterministic; call from worker jobs, not handlers.
type VideoDecoder interface {
	AssertReady(ctx context.Context) error
	Open(ctx context.Context, videoBytes []byte) (VideoStream, error)
}

type videoDecoder struct {
	log *logger.Logger

	ffmpegPath  string
	ffprobePath string
	workRoot    string

	defaultTimeout time.Duration
}

func NewVideoDecoder(log *logger.Logger) VideoDecoder {
	return &videoDecoder{
		log:            log.With("service", "VideoDecoder"),
		ffmpegPath:     "ffmpeg",
		ffprobePath:    "ffprobe",
		workRoot:       "/tmp/reelnotes-media",
		defaultTimeout: 10 * time.Minute,
	}
}

func (d *videoDecoder) AssertReady(ctx context.Context) error {
	for _, bin := range []string{d.ffmpegPath, d.ffprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("missing required binary %q in PATH: %w", bin, err)
		}
	}
	if err := os.MkdirAll(d.workRoot, 0o755); err != nil {
		return fmt.Errorf("create workRoot: %w", err)
	}
	return nil
}

func (d *videoDecoder) Open(ctx context.Context, videoBytes []byte) (VideoStream, error) {
	if err := d.AssertReady(ctx); err != nil {
		return nil, err
	}
	if len(videoBytes) == 0 {
		return nil, &types.DecodeError{Key: "(inline)", Err: fmt.Errorf("empty video blob")}
	}

	h := sha256.Sum256(videoBytes)
	base := hex.EncodeToString(h[:])[:16]
	path := filepath.Join(d.workRoot, base+".mp4")
	if err := os.WriteFile(path, videoBytes, 0o644); err != nil {
		return nil, fmt.Errorf("write temp video: %w", err)
	}

	dur, err := d.probeDuration(ctx, path)
	if err != nil {
		_ = os.Remove(path)
		return nil, &types.DecodeError{Key: base, Err: err}
	}
	if dur <= 0 {
		_ = os.Remove(path)
		return nil, &types.DecodeError{Key: base, Err: fmt.Errorf("could not read video duration")}
	}

	return &videoStream{
		dec:      d,
		path:     path,
		duration: dur,
	}, nil
}

func (d *videoDecoder) probeDuration(ctx context.Context, path string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	return dur, nil
}

type videoStream struct {
	dec      *videoDecoder
	path     string
	duration float64
}

func (s *videoStream) Duration() float64 { return s.duration }

func (s *videoStream) FrameAt(ctx context.Context, ts float64, width int, quality int) ([]byte, error) {
	if ts < 0 {
		ts = 0
	}
	if quality <= 0 {
		quality = 2
	}

	ctx, cancel := context.WithTimeout(ctx, s.dec.defaultTimeout)
	defer cancel()

	// ffmpeg -ss T -i in.mp4 -frames:v 1 -vf scale=W:-1 -q:v Q -f image2 pipe:1
	args := []string{
		"-y",
		"-ss", fmt.Sprintf("%.3f", ts),
		"-i", s.path,
		"-frames:v", "1",
	}
	if width > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:-1", width))
	}
	args = append(args,
		"-q:v", strconv.Itoa(quality),
		"-f", "image2",
		"pipe:1",
	)

	cmd := exec.CommandContext(ctx, s.dec.ffmpegPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, &types.DecodeError{
			Key: filepath.Base(s.path),
			Err: fmt.Errorf("ffmpeg frame at %.3fs: %w; out=%s", ts, err, stderr.String()),
		}
	}
	if stdout.Len() == 0 {
		return nil, &types.DecodeError{
			Key: filepath.Base(s.path),
			Err: fmt.Errorf("ffmpeg produced no frame at %.3fs", ts),
		}
	}
	return stdout.Bytes(), nil
}

func (s *videoStream) Close() error {
	return os.Remove(s.path)
}
