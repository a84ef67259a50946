package advisory

import (
	"strings"
	"sync"
	"time"
)

// suppressionReason names the first rule in the chain that rejected an
// item; an empty string means the item passed the whole chain.
type suppressionReason string

const (
	reasonCooldown       suppressionReason = "tool_cooldown"
	reasonTTLDuplicate   suppressionReason = "advice_ttl_duplicate"
	reasonBudgetExceeded suppressionReason = "budget_exceeded"
	reasonGenericActive  suppressionReason = "generic_pattern_active"
	reasonAgreementGate  suppressionReason = "agreement_gate"
)

// suppressionState tracks the per-session history needed to evaluate the
// ordered suppression chain: last-emit time per tool, last-emit time per
// advice key, and a rolling per-minute emission count. Grounded on the
// teacher's internal/grading rate-limit map (a plain mutex-guarded map
// of counters swept lazily on access rather than by a background timer).
type suppressionState struct {
	mu              sync.Mutex
	lastByTool      map[string]time.Time   // sessionID|tool -> last emit time
	lastByAdviceKey map[string]time.Time   // sessionID|fusionKey -> last emit time
	emitted         map[string][]time.Time // sessionID -> emit timestamps (rolling minute window)
	genericActive   map[string]time.Time   // sessionID|decision-template -> expiry
}

func newSuppressionState() *suppressionState {
	return &suppressionState{
		lastByTool:      make(map[string]time.Time),
		lastByAdviceKey: make(map[string]time.Time),
		emitted:         make(map[string][]time.Time),
		genericActive:   make(map[string]time.Time),
	}
}

// suppressionRules bundles the configured thresholds the chain evaluates
// against, pulled from config.AdvisoryConfig by the caller. ToolCooldown is
// evaluated separately, once per call, by toolOnCooldown rather than per
// item — it gates the whole advise() call, not individual candidates.
type suppressionRules struct {
	AdviceTTL       time.Duration
	BudgetPerMinute int
	AgreementGate   bool
	MinSources      int
}

// toolOnCooldown reports whether tool is still within its cooldown window
// for the session, since the last time this engine emitted anything for
// it. Checked once per advise() call, before any per-candidate rule.
func (s *suppressionState) toolOnCooldown(sessionID, tool string, cooldown time.Duration, now time.Time) bool {
	if cooldown <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastByTool[sessionID+"|"+tool]
	return ok && now.Sub(last) < cooldown
}

// recordTool marks tool as having just emitted advice for the session,
// starting its cooldown window.
func (s *suppressionState) recordTool(sessionID, tool string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastByTool[sessionID+"|"+tool] = now
}

// evaluate runs the per-candidate suppression chain (everything after the
// tool-cooldown gate) against one fused candidate and returns the first
// rule that rejects it, or "" if it passes all of them. now is injected
// for deterministic tests.
func (s *suppressionState) evaluate(sessionID string, f fused, rules suppressionRules, now time.Time) suppressionReason {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rules.AdviceTTL > 0 {
		if last, ok := s.lastByAdviceKey[sessionID+"|"+fusionKey(f.Candidate)]; ok && now.Sub(last) < rules.AdviceTTL {
			return reasonTTLDuplicate
		}
	}

	if rules.BudgetPerMinute > 0 && s.windowCount(sessionID, now) >= rules.BudgetPerMinute {
		return reasonBudgetExceeded
	}

	if pattern := genericPatternOf(f.Candidate); pattern != "" {
		if expiry, ok := s.genericActive[sessionID+"|"+pattern]; ok && now.Before(expiry) {
			return reasonGenericActive
		}
	}

	if rules.AgreementGate && distinctSources(f.sources) < rules.MinSources {
		return reasonAgreementGate
	}

	return ""
}

// record marks a candidate as having actually been emitted, updating the
// suppression windows it participates in (tool cooldown is recorded
// separately by recordTool, once per call).
func (s *suppressionState) record(sessionID string, f fused, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastByAdviceKey[sessionID+"|"+fusionKey(f.Candidate)] = now
	s.emitted[sessionID] = append(s.emitted[sessionID], now)
	if pattern := genericPatternOf(f.Candidate); pattern != "" {
		s.genericActive[sessionID+"|"+pattern] = now.Add(5 * time.Minute)
	}
}

// windowCount returns how many emissions the session has had in the
// trailing minute, pruning stale entries as a side effect.
func (s *suppressionState) windowCount(sessionID string, now time.Time) int {
	cutoff := now.Add(-time.Minute)
	kept := s.emitted[sessionID][:0]
	for _, t := range s.emitted[sessionID] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.emitted[sessionID] = kept
	return len(kept)
}

// genericPatternOf classifies advice into a coarse pattern bucket so that a
// generic already-active warning (e.g. "run tests before committing") does
// not repeat under a dozen near-identical phrasings while it is still
// live. Grounded on the decision-template bucketing used for clustering
// sealed steps: same first-N-words lowercasing trick, limited to the two
// sources (eidos, cognitive) whose text is a generated statement rather
// than a retrieved packet snippet.
func genericPatternOf(c Candidate) string {
	if c.Source != "eidos" && c.Source != "cognitive" {
		return ""
	}
	words := strings.Fields(strings.ToLower(c.Text))
	if len(words) > 6 {
		words = words[:6]
	}
	return strings.Join(words, " ")
}
