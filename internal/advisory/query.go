// Package advisory implements the retrieval-fusion-suppression pipeline
// behind advise(): four parallel sources feed Reciprocal Rank Fusion, an
// optional deterministic rerank narrows the field, an ordered suppression
// chain decides what actually reaches the caller, and every call — emitted
// or blocked — is recorded in a Decision Ledger. Grounded on the teacher's
// cognitive/router package for the retrieval-fan-out shape (parallel
// source queries under a shared deadline, as in router.go) and on
// internal/grading for the ordered-rule-chain suppression shape.
package advisory

import "context"

// Query is one advise() invocation's input: the tool about to run, its
// arguments, a free-text decision/context string, and the session it
// belongs to (used for cooldown/budget suppression state).
type Query struct {
	SessionID string
	Tool      string
	ToolArgs  map[string]any
	Context   string
}

// Candidate is a single retrieval hit from one source, before fusion.
type Candidate struct {
	Text      string
	Source    string
	SourceKey string
	Score     float64 // source-local relevance, not yet fused
}

// Source is one of the four retrieval backends queried in parallel by
// Engine.Advise: cognitive, eidos, semantic, packet.
type Source interface {
	Name() string
	Retrieve(ctx context.Context, q Query, k int) ([]Candidate, error)
}
