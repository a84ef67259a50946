package advisory

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReciprocalRankFusionMergesSameEntityAcrossSources(t *testing.T) {
	bySource := map[string][]Candidate{
		"cognitive": {{Text: "always validate input", Source: "cognitive", SourceKey: "shared", Score: 0.9}},
		"eidos":     {{Text: "always validate input", Source: "eidos", SourceKey: "shared", Score: 0.6}},
		"semantic":  {{Text: "unrelated tip", Source: "semantic", SourceKey: "other", Score: 0.95}},
	}
	weights := map[string]float64{"cognitive": 1.0, "eidos": 1.0, "semantic": 1.0}

	result := reciprocalRankFusion(bySource, weights)
	require.Len(t, result, 2)

	merged := findFused(result, "shared")
	require.NotNil(t, merged)
	require.ElementsMatch(t, []string{"cognitive", "eidos"}, merged.sources)
}

func TestReciprocalRankFusionAppliesSourceWeights(t *testing.T) {
	bySource := map[string][]Candidate{
		"a": {{Text: "x", Source: "a", SourceKey: "1", Score: 1.0}},
		"b": {{Text: "y", Source: "b", SourceKey: "2", Score: 1.0}},
	}
	weights := map[string]float64{"a": 10.0, "b": 0.1}

	result := reciprocalRankFusion(bySource, weights)
	require.Len(t, result, 2)
	require.Equal(t, "a", result[0].Source)
}

func TestRerankRewardsMultiSourceAgreement(t *testing.T) {
	items := []fused{
		{Candidate: Candidate{Text: "solo", SourceKey: "s"}, rrfScore: 0.02, sources: []string{"cognitive"}},
		{Candidate: Candidate{Text: "agreed", SourceKey: "a"}, rrfScore: 0.018, sources: []string{"cognitive", "eidos"}},
	}
	reranked := rerank(items, 2)
	require.Equal(t, "agreed", reranked[0].Text)
}

func findFused(items []fused, sourceKey string) *fused {
	for i := range items {
		if items[i].SourceKey == sourceKey {
			return &items[i]
		}
	}
	return nil
}
