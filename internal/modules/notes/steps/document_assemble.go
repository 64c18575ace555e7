package steps

import (
	"fmt"
	"sort"

	types "github.com/yungbote/reelnotes-backend/internal/domain"
	"github.com/yungbote/reelnotes-backend/internal/platform/config"
)

type AssembleInput struct {
	Notes TranscriptNotes
	Units []types.ContentUnit
	Cfg   config.Pipeline
}

// AssembleDocument merges transcript-level notes and per-frame content
// units into one document. It is pure: no I/O, no clock reads. Version
// number, generation time, and change description are stamped later by
// the ledger at commit time.
//
// Chapters are ordered by source timestamp with synthetic placeholders
// appended after all real chapters. When a section exceeds its cap,
// chapters are dropped lowest-confidence-first (ties broken by dropping
// the later timestamp); capped list sections keep their head.
func AssembleDocument(in AssembleInput) types.DocumentContent {
	doc := types.DocumentContent{
		Title:             in.Notes.Title,
		Overview:          capStrings(in.Notes.Overview, in.Cfg.MaxOverview),
		ConceptCards:      capConceptCards(in.Notes.ConceptCards, in.Cfg.MaxConceptCards),
		Examples:          capExamples(in.Notes.Examples, in.Cfg.MaxExamples),
		PracticeQuestions: capStrings(in.Notes.PracticeQuestions, in.Cfg.MaxQuestions),
	}
	if doc.Title == "" {
		doc.Title = "Video Notes"
	}

	doc.Chapters = buildChapters(in.Units, in.Cfg.MaxChapters)
	doc.TableOfContents = buildTOC(doc)
	return doc
}

func buildChapters(units []types.ContentUnit, max int) []types.Chapter {
	kept := truncateByConfidence(units, max)

	var real, synthetic []types.Chapter
	for _, u := range kept {
		ch := types.Chapter{
			Heading:     u.Title,
			Timestamp:   u.Timestamp,
			TimeLabel:   timeLabel(u.Timestamp),
			ImageKey:    u.RawKey,
			Caption:     u.Caption,
			Explanation: u.Explanation,
			Examples:    u.Examples,
			Confidence:  u.Confidence,
			Synthetic:   u.Synthetic,
		}
		if u.AnnotatedKey != "" {
			ch.ImageKey = u.AnnotatedKey
		}
		if ch.Heading == "" {
			ch.Heading = "Frame at " + ch.TimeLabel
		}
		if u.Synthetic {
			ch.TimeLabel = ""
			synthetic = append(synthetic, ch)
		} else {
			real = append(real, ch)
		}
	}

	sort.SliceStable(real, func(i, j int) bool { return real[i].Timestamp < real[j].Timestamp })
	return append(real, synthetic...)
}

// truncateByConfidence drops the weakest units until the cap is met.
// Among equal confidences the unit later in the video goes first, so the
// surviving set skews toward earlier, higher-confidence material.
func truncateByConfidence(units []types.ContentUnit, max int) []types.ContentUnit {
	if max <= 0 || len(units) <= max {
		return units
	}
	ranked := make([]types.ContentUnit, len(units))
	copy(ranked, units)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Confidence != ranked[j].Confidence {
			return ranked[i].Confidence > ranked[j].Confidence
		}
		return ranked[i].Timestamp < ranked[j].Timestamp
	})
	return ranked[:max]
}

func buildTOC(doc types.DocumentContent) []string {
	var toc []string
	if len(doc.Overview) > 0 {
		toc = append(toc, "Overview")
	}
	if len(doc.ConceptCards) > 0 {
		toc = append(toc, "Concept Cards")
	}
	for _, ch := range doc.Chapters {
		entry := ch.Heading
		if ch.TimeLabel != "" {
			entry = ch.TimeLabel + "  " + entry
		}
		toc = append(toc, entry)
	}
	if len(doc.Examples) > 0 {
		toc = append(toc, "Worked Examples")
	}
	if len(doc.PracticeQuestions) > 0 {
		toc = append(toc, "Practice Questions")
	}
	return toc
}

func timeLabel(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

func capStrings(list []string, max int) []string {
	if max > 0 && len(list) > max {
		return list[:max]
	}
	return list
}

func capConceptCards(list []types.ConceptCard, max int) []types.ConceptCard {
	if max > 0 && len(list) > max {
		return list[:max]
	}
	return list
}

func capExamples(list []types.Example, max int) []types.Example {
	if max > 0 && len(list) > max {
		return list[:max]
	}
	return list
}
