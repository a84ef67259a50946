package model

import "github.com/google/uuid"

// Phase is an Episode's position in its explore/execute/consolidate lifecycle.
type Phase string

const (
	PhaseExplore     Phase = "explore"
	PhaseExecute     Phase = "execute"
	PhaseConsolidate Phase = "consolidate"
)

// Outcome is an Episode's (or Step's seal-time) terminal classification.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailure   Outcome = "failure"
	OutcomeAbandoned Outcome = "abandoned"
	OutcomeActive    Outcome = "active"
)

// Episode is a session-scoped container of ordered Steps. At most one
// Episode is active per session at any instant.
type Episode struct {
	EpisodeID string  `json:"episode_id"`
	SessionID string  `json:"session_id"`
	Goal      string  `json:"goal"`
	Phase     Phase   `json:"phase"`
	Outcome   Outcome `json:"outcome"`
	StartedNs int64   `json:"started_ns"`
	EndedNs   int64   `json:"ended_ns,omitempty"`
	StepCount int     `json:"step_count"`
}

// NewEpisodeID generates a new episode identifier.
func NewEpisodeID() string {
	return "epi_" + uuid.NewString()
}

// IsOpen reports whether the episode has not yet been closed.
func (e *Episode) IsOpen() bool {
	return e.EndedNs == 0
}
