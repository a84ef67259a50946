// Package memcapture implements the memory-capture sink: it scans one
// event's text for explicit intent markers and high-signal structural
// cues (the user saying "remember", the agent reporting something
// learned, a corrected mistake), scores it 0-1, and turns anything at or
// above the configured threshold into a candidate Insight for Meta-Ralph
// to grade. It is grounded on internal/scoring's keyword-marker rule
// shape, extended with the category-specific cue sets spec.md §4.4 adds
// on top of plain importance scoring.
package memcapture

import (
	"context"
	"strings"

	"github.com/normanking/kaitd/internal/config"
	"github.com/normanking/kaitd/internal/model"
	"github.com/normanking/kaitd/internal/scoring"
)

const component = "memcapture"

// cueSet is a category's marker phrases, checked in order of precedence
// (learned > self-awareness > user-understanding > general wisdom), so a
// sentence that matches several cue sets is still filed once.
type cueSet struct {
	category model.Category
	phrases  []string
}

var cueSets = []cueSet{
	{
		category: model.CategoryMetaLearning,
		phrases: []string{
			"i learned", "we learned", "turns out", "lesson learned",
			"learned that", "discovered that",
		},
	},
	{
		category: model.CategorySelfAwareness,
		phrases: []string{
			"i was wrong", "i made a mistake", "i should have", "in hindsight",
			"my mistake", "i misunderstood",
		},
	},
	{
		category: model.CategoryUserUnderstanding,
		phrases: []string{
			"you prefer", "you like", "you always want", "you said you",
			"you tend to", "you don't like",
		},
	},
	{
		category: model.CategoryWisdom,
		phrases: []string{
			"remember", "remind me", "note that", "keep in mind", "from now on",
			"always", "never",
		},
	},
}

// Capturer scores event text and emits candidate insights for Meta-Ralph.
type Capturer struct {
	cfg config.MemoryConfig
}

// New constructs a Capturer from MemoryConfig.
func New(cfg config.MemoryConfig) *Capturer {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.5
	}
	if cfg.PatchMaxChars <= 0 {
		cfg.PatchMaxChars = 2000
	}
	if cfg.PatchMinChars <= 0 {
		cfg.PatchMinChars = 8
	}
	return &Capturer{cfg: cfg}
}

// Capture scores ev's text and returns zero or one candidate insight. A
// nil, nil return means nothing scored high enough to capture.
func (c *Capturer) Capture(_ context.Context, ev model.Event) ([]model.Insight, error) {
	text := strings.TrimSpace(ev.Text)
	if len(text) < c.cfg.PatchMinChars {
		return nil, nil
	}
	if len(text) > c.cfg.PatchMaxChars {
		text = text[:c.cfg.PatchMaxChars]
	}

	category, matched := classify(text)
	score := captureScore(ev, text, matched)
	if score < c.cfg.Threshold {
		return nil, nil
	}

	statement := model.NormalizeStatement(text)
	ins := model.Insight{
		Key:       model.InsightKey(category, statement),
		Category:  category,
		Statement: text,
		Source:    component,
	}
	ins.AppendEvidence(ev.EventID, model.EvidenceRingSize)
	return []model.Insight{ins}, nil
}

// classify returns the first cue set text matches, defaulting to "other"
// with matched=false when no cue phrase is present.
func classify(text string) (model.Category, bool) {
	lower := strings.ToLower(text)
	for _, set := range cueSets {
		for _, phrase := range set.phrases {
			if strings.Contains(lower, phrase) {
				return set.category, true
			}
		}
	}
	return model.CategoryOther, false
}

// captureScore combines marker/cue match, the shared correction-marker
// signal, a task-notification-with-summary structural cue, and event kind
// bias into a 0-1 capture score.
func captureScore(ev model.Event, text string, matched bool) float64 {
	score := 0.15
	lower := strings.ToLower(text)

	if matched {
		score += 0.45
	}
	if scoring.HasMemoryMarker(lower) {
		score += 0.2
	}
	if looksLikeCorrection(lower) {
		score += 0.25
	}
	if looksLikeTaskSummary(ev, lower) {
		score += 0.4
	}
	if ev.Kind == model.KindPostToolFailure {
		score += 0.1
	}

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

var correctionPhrases = []string{
	"no, ", "actually, ", "that's wrong", "that's not right", "incorrect",
	"i meant", "instead of",
}

func looksLikeCorrection(lower string) bool {
	for _, p := range correctionPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// looksLikeTaskSummary detects the "task-notification completed with a
// summary" cue: a post_tool event whose text both signals completion and
// carries enough substance to be a summary rather than a bare status line.
func looksLikeTaskSummary(ev model.Event, lower string) bool {
	if ev.Kind != model.KindPostTool {
		return false
	}
	completionPhrases := []string{"completed", "finished", "done:", "summary:"}
	for _, p := range completionPhrases {
		if strings.Contains(lower, p) && len(lower) > 80 {
			return true
		}
	}
	return false
}
