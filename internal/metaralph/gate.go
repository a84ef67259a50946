// Package metaralph implements the quality gate that grades every
// candidate insight memory capture produces before it reaches the
// cognitive store: six 0-2 dimension scores, a token-set cosine dedup
// check against prior quality verdicts, and a closed-vocabulary issue
// list for anything that doesn't pass. It is grounded on
// internal/model/verdict.go's Dimension/VerdictLabel/IssueReason closed
// types and ClassifyLabel threshold table, which this package is the
// sole producer of.
package metaralph

import (
	"context"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"github.com/normanking/kaitd/internal/config"
	"github.com/normanking/kaitd/internal/model"
)

const component = "metaralph"

// Gate implements pipeline.QualityGate.
type Gate struct {
	cfg     config.MetaRalphConfig
	history *History
	log     zerolog.Logger
}

// New constructs a Gate backed by a bounded roast-history file at
// historyPath.
func New(cfg config.MetaRalphConfig, historyPath string, log zerolog.Logger) (*Gate, error) {
	if cfg.DedupThreshold <= 0 {
		cfg.DedupThreshold = 0.85
	}
	if cfg.RoastHistoryMax <= 0 {
		cfg.RoastHistoryMax = 5000
	}
	h, err := OpenHistory(historyPath, cfg.RoastHistoryMax)
	if err != nil {
		return nil, err
	}
	return &Gate{cfg: cfg, history: h, log: log}, nil
}

// Evaluate scores candidate on all six dimensions, checks it for
// duplication against prior quality verdicts, classifies the result, and
// records the verdict in the roast-history file regardless of label.
func (g *Gate) Evaluate(_ context.Context, candidate model.Insight) (model.Verdict, error) {
	tokens := tokenSet(candidate.Statement)

	verdict := model.Verdict{CandidateKey: candidate.Key, Scores: score(candidate, tokens)}
	total := verdict.ComputeTotal()

	isDuplicate := total >= 4 && total <= 5 && g.history.MostSimilar(tokens) >= g.cfg.DedupThreshold
	verdict.Label = model.ClassifyLabel(total, isDuplicate)
	verdict.Issues = issuesFor(verdict, isDuplicate)

	if verdict.Label == model.VerdictQuality {
		g.history.Remember(candidate.Key, tokens)
	}
	if err := g.history.Append(verdict); err != nil {
		g.log.Warn().Err(err).Str("candidate", candidate.Key).Msg("roast history append failed")
	}
	return verdict, nil
}

// score assigns each of the six dimensions a heuristic 0-2 value from
// surface features of the candidate's statement and category; this is a
// deterministic stand-in for the richer judgment a model-backed grader
// would apply.
func score(candidate model.Insight, tokens map[string]struct{}) map[model.Dimension]int {
	statement := strings.ToLower(candidate.Statement)
	scores := make(map[model.Dimension]int, len(model.AllDimensions))

	scores[model.DimActionability] = actionabilityScore(statement)
	scores[model.DimNovelty] = clamp(len(tokens) / 4)
	scores[model.DimReasoning] = reasoningScore(statement)
	scores[model.DimSpecificity] = specificityScore(statement)
	scores[model.DimOutcomeLinked] = outcomeLinkedScore(candidate)
	scores[model.DimEthics] = ethicsScore(statement)
	return scores
}

var actionVerbs = []string{"use", "run", "check", "avoid", "always", "never", "prefer", "call", "set", "add"}

func actionabilityScore(statement string) int {
	for _, v := range actionVerbs {
		if strings.Contains(statement, v) {
			return 2
		}
	}
	if len(statement) > 20 {
		return 1
	}
	return 0
}

var reasoningMarkers = []string{"because", "since", "so that", "in order to", "which means", "due to"}

func reasoningScore(statement string) int {
	for _, m := range reasoningMarkers {
		if strings.Contains(statement, m) {
			return 2
		}
	}
	if strings.Contains(statement, ":") || strings.Contains(statement, ",") {
		return 1
	}
	return 0
}

func specificityScore(statement string) int {
	words := strings.Fields(statement)
	switch {
	case len(words) >= 12:
		return 2
	case len(words) >= 6:
		return 1
	default:
		return 0
	}
}

func outcomeLinkedScore(candidate model.Insight) int {
	switch len(candidate.Evidence) {
	case 0:
		return 0
	case 1:
		return 1
	default:
		return 2
	}
}

var ethicsFlags = []string{"password", "secret", "token", "credential", "bypass auth", "disable security"}

func ethicsScore(statement string) int {
	for _, f := range ethicsFlags {
		if strings.Contains(statement, f) {
			return 0
		}
	}
	return 2
}

func clamp(n int) int {
	if n > 2 {
		return 2
	}
	if n < 0 {
		return 0
	}
	return n
}

// issuesFor derives the closed-vocabulary issue list from the verdict's
// label and per-dimension scores.
func issuesFor(v model.Verdict, isDuplicate bool) []model.IssueReason {
	if v.Label == model.VerdictQuality {
		return nil
	}
	var issues []model.IssueReason
	if isDuplicate {
		issues = append(issues, model.IssueAlreadyExists)
	}
	if v.Scores[model.DimActionability] == 0 {
		issues = append(issues, model.IssueNoActionableGuidance)
	}
	if v.Scores[model.DimReasoning] == 0 {
		issues = append(issues, model.IssueNoReasoningProvided)
	}
	if v.Scores[model.DimOutcomeLinked] == 0 {
		issues = append(issues, model.IssueNotOutcomeLinked)
	}
	if v.Scores[model.DimSpecificity] == 0 {
		issues = append(issues, model.IssueTooGeneric)
	}
	if v.Label == model.VerdictPrimitive {
		issues = append(issues, model.IssuePrimitivePattern)
	}
	if len(issues) == 0 {
		issues = append(issues, model.IssueSeemsObvious)
	}
	return issues
}

// tokenSet normalizes statement and removes a small stop-word list,
// producing the set used for dedup's token-set cosine similarity.
func tokenSet(statement string) map[string]struct{} {
	fields := strings.Fields(model.NormalizeStatement(statement))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if stopWords[f] {
			continue
		}
		set[f] = struct{}{}
	}
	return set
}

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "to": true, "of": true, "in": true,
	"on": true, "for": true, "and": true, "or": true, "is": true, "it": true,
	"that": true, "this": true, "with": true, "be": true, "as": true,
}

// cosineSimilarity computes token-set cosine similarity: intersection
// size divided by the geometric mean of the two set sizes.
func cosineSimilarity(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for t := range a {
		if _, ok := b[t]; ok {
			shared++
		}
	}
	if shared == 0 {
		return 0
	}
	return float64(shared) / math.Sqrt(float64(len(a))*float64(len(b)))
}
