// Package scoring implements the rule-based importance scorer shared by
// the ingest daemon (assigning Event.Importance) and memory capture
// (assigning a 0-1 capture score to candidate memories): keyword markers,
// tool-failure bias, and user-prompt bias, per spec.md §4.1 and §4.4.
package scoring

import (
	"strings"

	"github.com/normanking/kaitd/internal/model"
)

// memoryMarkers are explicit intent phrases that bias an event toward
// HIGH priority and toward memory capture.
var memoryMarkers = []string{
	"remember", "always", "never", "don't forget", "make sure", "important",
	"note that", "keep in mind", "from now on",
}

// correctionMarkers flag the user correcting the agent, a strong signal.
var correctionMarkers = []string{
	"no, ", "actually, ", "that's wrong", "that's not right", "incorrect",
	"i meant", "instead of",
}

// ScoreImportance assigns Event.Importance in [0,1] using keyword markers,
// tool-failure bias, and user-prompt bias.
func ScoreImportance(e model.Event) float64 {
	score := 0.2
	text := strings.ToLower(e.Text)

	switch e.Kind {
	case model.KindPostToolFailure:
		score += 0.35
	case model.KindUserPrompt:
		score += 0.15
	}

	if hasAny(text, memoryMarkers) {
		score += 0.35
	}
	if hasAny(text, correctionMarkers) {
		score += 0.25
	}
	if len(text) > 400 {
		score += 0.05
	}

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

// HasMemoryMarker reports whether text contains an explicit memory
// intent marker, used by internal/model.DerivePriority to decide whether a
// user_prompt event is HIGH priority.
func HasMemoryMarker(text string) bool {
	return hasAny(strings.ToLower(text), memoryMarkers)
}

func hasAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
