package model

import "github.com/google/uuid"

// ActionKind is what the agent chose to do at a Step.
type ActionKind string

const (
	ActionToolCall ActionKind = "tool_call"
	ActionResponse ActionKind = "response"
	ActionWait     ActionKind = "wait"
)

// Evaluation is a Step's outcome judgment. "?" means the step is still open.
type Evaluation string

const (
	EvalOpen   Evaluation = "?"
	EvalPassed Evaluation = "passed"
	EvalFailed Evaluation = "failed"
)

// Step is a single predict-act-evaluate triple within an Episode. A Step
// is open (Evaluation == EvalOpen) until its matching post_tool /
// post_tool_failure event arrives or T_step_timeout elapses, at which
// point it is force-sealed as abandoned.
type Step struct {
	StepID     string     `json:"step_id"`
	EpisodeID  string     `json:"episode_id"`
	SessionID  string     `json:"session_id"`
	Tool       string     `json:"tool,omitempty"`
	Decision   string     `json:"decision"`
	ActionKind ActionKind `json:"action_kind"`
	Prediction string     `json:"prediction"`
	Outcome    Outcome    `json:"outcome,omitempty"`
	Evaluation Evaluation `json:"evaluation"`
	OpenedNs   int64      `json:"opened_ns"`
	SealedNs   int64      `json:"sealed_ns,omitempty"`
}

// NewStepID generates a new step identifier.
func NewStepID() string {
	return "step_" + uuid.NewString()
}

// IsOpen reports whether the step is awaiting a seal.
func (s *Step) IsOpen() bool {
	return s.Evaluation == EvalOpen || s.Evaluation == ""
}

// Seal transitions an open step to a terminal evaluation. Calling Seal on
// an already-sealed step is a no-op invariant violation the caller must
// detect (the state machine is open → {sealed_success|sealed_failure|abandoned},
// terminal in all three).
func (s *Step) Seal(outcome Outcome, eval Evaluation, sealedNs int64) {
	if !s.IsOpen() {
		return
	}
	s.Outcome = outcome
	s.Evaluation = eval
	s.SealedNs = sealedNs
}
