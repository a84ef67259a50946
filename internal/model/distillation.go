package model

import "github.com/google/uuid"

// DistillationType is the closed set of EIDOS-derived rule types. Per
// spec's Open Question #2, heuristic and sharp_edge distillations use
// distinct confidence formulas (see internal/eidos's heuristicConfidence
// and sharpEdgeConfidence) rather than one shared function.
type DistillationType string

const (
	DistillationHeuristic   DistillationType = "heuristic"
	DistillationPolicy      DistillationType = "policy"
	DistillationSharpEdge   DistillationType = "sharp_edge"
	DistillationAntiPattern DistillationType = "anti_pattern"
)

// Distillation is an EIDOS-derived rule clustered from multiple sealed
// Steps sharing a (decision-template, tool) pattern, or promoted directly
// from a single failed step for the sharp_edge type.
type Distillation struct {
	DistillationID     string           `json:"distillation_id"`
	Type               DistillationType `json:"type"`
	Statement          string           `json:"statement"`
	Confidence         float64          `json:"confidence"`
	ValidationCount    int64            `json:"validation_count"`
	ContradictionCount int64            `json:"contradiction_count"`
	TimesRetrieved     int64            `json:"times_retrieved"`
	TimesUsed          int64            `json:"times_used"`
	TimesHelped        int64            `json:"times_helped"`
	SourceStepIDs      []string         `json:"source_step_ids"`
	Domains            []string         `json:"domains"`
	Triggers           []string         `json:"triggers"`
	CreatedAtNs        int64            `json:"created_at_ns"`
}

// NewDistillationID generates a new distillation identifier.
func NewDistillationID() string {
	return "dst_" + uuid.NewString()
}
