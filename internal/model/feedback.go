package model

// Signal is the implicit feedback classification derived from the next
// same-tool event after advice was shown.
type Signal string

const (
	SignalFollowed  Signal = "followed"
	SignalUnhelpful Signal = "unhelpful"
	SignalIgnored   Signal = "ignored"
)

// FeedbackEntry is appended to the implicit feedback log whenever an
// Exposure resolves to a signal.
type FeedbackEntry struct {
	AdviceID    string   `json:"advice_id"`
	Tool        string   `json:"tool"`
	Signal      Signal   `json:"signal"`
	Success     bool     `json:"success"`
	SourcesUsed []string `json:"sources_used"`
	LatencyS    float64  `json:"latency_s"`
}

// ExposureState is an Exposure's lifecycle position.
type ExposureState string

const (
	ExposurePending ExposureState = "pending"
	ExposureMatched ExposureState = "matched"
	ExposureIgnored ExposureState = "ignored"
	ExposureExpired ExposureState = "expired"
)

// Exposure records that advice was shown for a (session, tool, advice_id)
// triple and is awaiting an implicit feedback signal.
type Exposure struct {
	SessionID   string        `json:"session_id"`
	Tool        string        `json:"tool"`
	AdviceID    string        `json:"advice_id"`
	SourceKeys  []string      `json:"source_keys"` // Insight/Distillation keys to validate/contradict
	Source      string        `json:"source"`
	ShownAtNs   int64         `json:"shown_at_ns"`
	State       ExposureState `json:"state"`
}
