package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/reelnotes-backend/internal/platform/envutil"
)

// Pipeline holds the tunable knobs for the document build pipeline.
// Values come from an optional YAML file (PIPELINE_CONFIG_PATH), with
// env vars taking precedence over both file values and defaults.
type Pipeline struct {
	// Sampling widens across attempts when too few frames survive.
	CandidateCounts []int `yaml:"candidate_counts"`
	ThumbWidth      int   `yaml:"thumb_width"`
	HiResWidth      int   `yaml:"hires_width"`

	// Filtering.
	DuplicateWindow   int     `yaml:"duplicate_window"`
	DuplicateDistance int     `yaml:"duplicate_distance"`
	MinSharpness      float64 `yaml:"min_sharpness"`
	MinLuminance      float64 `yaml:"min_luminance"`
	MinSurvivors      int     `yaml:"min_survivors"`

	// Verification.
	ConfidenceThreshold int `yaml:"confidence_threshold"`
	KeepTarget          int `yaml:"keep_target"`
	MinKeep             int `yaml:"min_keep"`
	VerifyConcurrency   int `yaml:"verify_concurrency"`

	// Document caps.
	MaxOverview     int `yaml:"max_overview"`
	MaxConceptCards int `yaml:"max_concept_cards"`
	MaxChapters     int `yaml:"max_chapters"`
	MaxExamples     int `yaml:"max_examples"`
	MaxQuestions    int `yaml:"max_questions"`
}

func DefaultPipeline() Pipeline {
	return Pipeline{
		CandidateCounts:     []int{36, 60, 90},
		ThumbWidth:          480,
		HiResWidth:          1800,
		DuplicateWindow:     5,
		DuplicateDistance:   6,
		MinSharpness:        4.0,
		MinLuminance:        10.0,
		MinSurvivors:        8,
		ConfidenceThreshold: 75,
		KeepTarget:          12,
		MinKeep:             4,
		VerifyConcurrency:   4,
		MaxOverview:         10,
		MaxConceptCards:     10,
		MaxChapters:         12,
		MaxExamples:         4,
		MaxQuestions:        10,
	}
}

func LoadPipeline() (Pipeline, error) {
	cfg := DefaultPipeline()

	path := strings.TrimSpace(os.Getenv("PIPELINE_CONFIG_PATH"))
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read pipeline config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse pipeline config: %w", err)
		}
	}

	cfg.ConfidenceThreshold = envutil.Int("VERIFY_CONFIDENCE_THRESHOLD", cfg.ConfidenceThreshold)
	cfg.KeepTarget = envutil.Int("VERIFY_KEEP_TARGET", cfg.KeepTarget)
	cfg.MinKeep = envutil.Int("VERIFY_MIN_KEEP", cfg.MinKeep)
	cfg.VerifyConcurrency = envutil.Int("VERIFY_CONCURRENCY", cfg.VerifyConcurrency)
	cfg.MinSurvivors = envutil.Int("FILTER_MIN_SURVIVORS", cfg.MinSurvivors)
	cfg.MinLuminance = envutil.Float("FILTER_MIN_LUMINANCE", cfg.MinLuminance)
	cfg.MinSharpness = envutil.Float("FILTER_MIN_SHARPNESS", cfg.MinSharpness)
	cfg.MaxChapters = envutil.Int("DOC_MAX_CHAPTERS", cfg.MaxChapters)

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (p Pipeline) validate() error {
	if len(p.CandidateCounts) == 0 {
		return fmt.Errorf("candidate_counts must not be empty")
	}
	for _, c := range p.CandidateCounts {
		if c <= 0 {
			return fmt.Errorf("candidate_counts entries must be positive, got %d", c)
		}
	}
	if p.ConfidenceThreshold < 0 || p.ConfidenceThreshold > 100 {
		return fmt.Errorf("confidence_threshold must be in [0,100], got %d", p.ConfidenceThreshold)
	}
	if p.KeepTarget <= 0 || p.MinKeep <= 0 || p.MinKeep > p.KeepTarget {
		return fmt.Errorf("invalid keep_target=%d / min_keep=%d", p.KeepTarget, p.MinKeep)
	}
	if p.VerifyConcurrency <= 0 {
		return fmt.Errorf("verify_concurrency must be positive")
	}
	return nil
}
