package advisory

import "sort"

// fused is one item after Reciprocal Rank Fusion, carrying the winning
// candidate's display text plus the set of sources that contributed to it.
type fused struct {
	Candidate
	rrfScore   float64
	sources    []string
	sourceKeys map[string]string
}

// reciprocalRankFusion combines per-source ranked candidate lists into one
// ranked list. Each source's candidates are assumed already sorted by
// descending source-local score. Candidates are deduplicated by SourceKey
// when two sources happen to key the same underlying insight/distillation
// the same way; otherwise they fuse by normalized text.
//
// score(d) = sum over sources s that rank d at position r: weight(s) / (k + r)
//
// k=60 is the standard RRF constant, chosen because it flattens the curve
// enough that a source's #1 and #2 picks aren't wildly separated in score.
const rrfK = 60.0

func reciprocalRankFusion(bySource map[string][]Candidate, weights map[string]float64) []fused {
	byKey := make(map[string]*fused)
	order := make([]string, 0)

	for source, candidates := range bySource {
		weight := weights[source]
		if weight <= 0 {
			weight = 1.0
		}
		for rank, c := range candidates {
			key := fusionKey(c)
			f, ok := byKey[key]
			if !ok {
				f = &fused{Candidate: c, sourceKeys: make(map[string]string)}
				byKey[key] = f
				order = append(order, key)
			}
			f.rrfScore += weight / (rrfK + float64(rank+1))
			f.sources = append(f.sources, source)
			f.sourceKeys[source] = c.SourceKey
			if c.Score > f.Candidate.Score {
				// Keep the highest-confidence source's text as the
				// display text when sources disagree on phrasing.
				f.Candidate.Text = c.Text
				f.Candidate.Score = c.Score
			}
		}
	}

	out := make([]fused, 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].rrfScore > out[j].rrfScore })
	return out
}

// fusionKey identifies the underlying entity a candidate came from, not
// the (source, entity) pair, so that the same insight or distillation
// surfaced by two different retrieval sources fuses into one ranked item
// instead of appearing twice. SourceKey namespaces (insight keys,
// distillation IDs) are distinct enough in practice that a collision
// across sources only happens when it really is the same entity.
func fusionKey(c Candidate) string {
	if c.SourceKey != "" {
		return c.SourceKey
	}
	return "text:" + c.Text
}

// rerank applies a lightweight deterministic adjustment to the top-M fused
// items: agreement across multiple sources is rewarded, since independent
// corroboration is a stronger signal than one source's confidence alone.
// This has no model dependency, matching the teacher's preference for
// precomputed, explainable scoring over a second model call in the hot
// path.
func rerank(items []fused, topM int) []fused {
	if topM <= 0 || topM > len(items) {
		topM = len(items)
	}
	head := items[:topM]
	for i := range head {
		distinct := distinctSources(head[i].sources)
		if distinct > 1 {
			head[i].rrfScore *= 1.0 + 0.15*float64(distinct-1)
		}
	}
	sort.SliceStable(head, func(i, j int) bool { return head[i].rrfScore > head[j].rrfScore })
	return append(append([]fused{}, head...), items[topM:]...)
}

func distinctSources(sources []string) int {
	seen := make(map[string]struct{}, len(sources))
	for _, s := range sources {
		seen[s] = struct{}{}
	}
	return len(seen)
}
