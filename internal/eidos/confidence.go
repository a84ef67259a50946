package eidos

import "github.com/normanking/kaitd/internal/model"

// heuristicConfidence scores a cluster the way repeated-observation
// evidence should be scored: confidence grows with the fraction of
// supporting steps that succeeded, shrunk toward 0.5 while the sample is
// small (mirrors the Wilson-style shrinkage used for Insight reliability,
// but expressed locally so eidos has no dependency on internal/cognitive).
func heuristicConfidence(steps []model.Step) float64 {
	failures, successes := splitOutcomes(steps)
	total := float64(len(failures) + len(successes))
	if total == 0 {
		return 0
	}
	rate := float64(len(successes)) / total
	shrink := total / (total + 4) // small samples pulled toward 0.5
	return 0.5 + shrink*(rate-0.5)
}

// sharpEdgeConfidence scores a single-failure sharp_edge / anti_pattern
// distillation: these are emitted on first observation precisely because
// waiting for repetition would mean repeating the mistake, so confidence
// starts high and is not shrunk by sample size the way heuristics are.
func sharpEdgeConfidence(steps []model.Step) float64 {
	if len(steps) == 0 {
		return 0
	}
	return 0.75
}
