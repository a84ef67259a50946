package model

import "github.com/google/uuid"

// NewAdviceID generates a new advice item identifier.
func NewAdviceID() string {
	return "adv_" + uuid.NewString()
}

// Route reflects where advice came from and how fresh it is.
type Route string

const (
	RouteLive                  Route = "live"
	RoutePacketExact           Route = "packet_exact"
	RoutePacketRelaxed         Route = "packet_relaxed"
	RoutePacketRelaxedFallback Route = "packet_relaxed_fallback"
)

// DecisionOutcome is whether a call to advise() emitted items or was
// entirely suppressed.
type DecisionOutcome string

const (
	OutcomeEmitted DecisionOutcome = "emitted"
	OutcomeBlocked DecisionOutcome = "blocked"
)

// SourceCount records how many items a single retrieval source contributed.
type SourceCount struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

// AdviceItem is a single piece of advice returned by advise().
type AdviceItem struct {
	AdviceID  string  `json:"advice_id"`
	Text      string  `json:"text"`
	Source    string  `json:"source"`
	SourceKey string  `json:"source_key"` // Insight.Key or Distillation.DistillationID
	Score     float64 `json:"score"`
}

// AdviceDecision is a Decision Ledger entry: one row per advise() call,
// whether it emitted items or was blocked entirely.
type AdviceDecision struct {
	TsNanos            int64           `json:"ts_ns"`
	SessionID          string          `json:"session_id"`
	Tool               string          `json:"tool"`
	Outcome            DecisionOutcome `json:"outcome"`
	Route              Route           `json:"route"`
	SelectedCount      int             `json:"selected_count"`
	SuppressedCount    int             `json:"suppressed_count"`
	Sources            []SourceCount   `json:"sources"`
	SuppressionReasons []string        `json:"suppression_reasons,omitempty"`
}
