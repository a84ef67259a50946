package eidos

import (
	"context"
	"fmt"
	"strings"

	"github.com/normanking/kaitd/internal/eidosstore"
	"github.com/normanking/kaitd/internal/eventbus"
	"github.com/normanking/kaitd/internal/model"
)

// AggregatorOptions configures an Aggregator run.
type AggregatorOptions struct {
	Store         *eidosstore.Store
	Bus           *eventbus.Bus
	MinSteps      int // episodes shorter than this are not clustered
	ValidateMin   int // cluster size needed to emit a heuristic distillation
	NowNs         func() int64
}

// Aggregator clusters sealed Steps from closed Episodes by
// (decision-template, tool) and emits Distillations once a cluster has
// enough supporting steps, or immediately for a single failure. A lone
// failed step becomes a sharp_edge scored by sharpEdgeConfidence; heuristic
// and anti_pattern clusters are scored by heuristicConfidence.
type Aggregator struct {
	store       *eidosstore.Store
	bus         *eventbus.Bus
	minSteps    int
	validateMin int
	nowNs       func() int64
}

// NewAggregator constructs an Aggregator with spec defaults (5 minimum
// steps, validate_min 5) when the corresponding option is zero.
func NewAggregator(opts AggregatorOptions) *Aggregator {
	if opts.MinSteps <= 0 {
		opts.MinSteps = 5
	}
	if opts.ValidateMin <= 0 {
		opts.ValidateMin = 5
	}
	if opts.NowNs == nil {
		opts.NowNs = func() int64 { return 0 }
	}
	return &Aggregator{
		store:       opts.Store,
		bus:         opts.Bus,
		minSteps:    opts.MinSteps,
		validateMin: opts.ValidateMin,
		nowNs:       opts.NowNs,
	}
}

// cluster groups one (decision-template, tool) pattern's supporting steps.
type cluster struct {
	key   string
	tool  string
	steps []model.Step
}

// Run scans episodes closed at or after sinceNs, clusters their steps, and
// persists any new distillations the clusters qualify for. It returns the
// number of distillations created.
func (a *Aggregator) Run(ctx context.Context, sinceNs int64) (int, error) {
	episodes, err := a.store.ClosedEpisodesSince(ctx, sinceNs, a.minSteps)
	if err != nil {
		return 0, err
	}

	clusters := make(map[string]*cluster)
	for _, ep := range episodes {
		steps, err := a.store.StepsForEpisode(ctx, ep.EpisodeID)
		if err != nil {
			return 0, err
		}
		for _, st := range steps {
			if st.IsOpen() {
				continue
			}
			key := clusterKey(st)
			c, ok := clusters[key]
			if !ok {
				c = &cluster{key: key, tool: st.Tool}
				clusters[key] = c
			}
			c.steps = append(c.steps, st)
		}
	}

	created := 0
	for _, c := range clusters {
		d, ok := a.classify(c)
		if !ok {
			continue
		}
		if err := a.store.InsertDistillation(ctx, d); err != nil {
			// Skip this cluster rather than corrupt the store; the next
			// aggregator pass will re-cluster the same steps.
			continue
		}
		if a.bus != nil {
			a.bus.Publish(eventbus.Event{Topic: eventbus.TopicDistillationCreated, Payload: d})
		}
		created++
	}
	return created, nil
}

// classify decides whether a cluster qualifies for a distillation and, if
// so, which type and confidence model applies.
func (a *Aggregator) classify(c *cluster) (model.Distillation, bool) {
	failures, successes := splitOutcomes(c.steps)

	if len(failures) >= 1 && len(successes) == 0 && len(c.steps) == 1 {
		// A single failure is enough for sharp_edge: it is
		// safety-relevant and doesn't wait for repeated observation the
		// way heuristics do.
		return a.buildDistillation(c, model.DistillationSharpEdge, sharpEdgeConfidence(c.steps)), true
	}

	if len(c.steps) >= a.validateMin {
		if len(failures) > len(successes) {
			return a.buildDistillation(c, model.DistillationAntiPattern, heuristicConfidence(c.steps)), true
		}
		return a.buildDistillation(c, model.DistillationHeuristic, heuristicConfidence(c.steps)), true
	}

	return model.Distillation{}, false
}

func (a *Aggregator) buildDistillation(c *cluster, typ model.DistillationType, confidence float64) model.Distillation {
	ids := make([]string, len(c.steps))
	for i, st := range c.steps {
		ids[i] = st.StepID
	}
	return model.Distillation{
		DistillationID: model.NewDistillationID(),
		Type:           typ,
		Statement:      statementFor(c, typ),
		Confidence:     confidence,
		SourceStepIDs:  ids,
		Domains:        []string{c.tool},
		Triggers:       triggersFor(c),
		CreatedAtNs:    a.nowNs(),
	}
}

func clusterKey(st model.Step) string {
	return fmt.Sprintf("%s|%s", st.Tool, decisionTemplate(st.Decision))
}

// decisionTemplate collapses a free-text decision into a coarse template
// by keeping its first few words, the same normalization shape the
// cognitive store uses for statements.
func decisionTemplate(decision string) string {
	fields := strings.Fields(strings.ToLower(decision))
	if len(fields) > 6 {
		fields = fields[:6]
	}
	return strings.Join(fields, " ")
}

func splitOutcomes(steps []model.Step) (failures, successes []model.Step) {
	for _, st := range steps {
		switch st.Evaluation {
		case model.EvalFailed:
			failures = append(failures, st)
		case model.EvalPassed:
			successes = append(successes, st)
		}
	}
	return failures, successes
}

func triggersFor(c *cluster) []string {
	trigger := decisionTemplate(c.steps[0].Decision)
	if c.tool != "" {
		return []string{trigger, c.tool}
	}
	return []string{trigger}
}

func statementFor(c *cluster, typ model.DistillationType) string {
	template := decisionTemplate(c.steps[0].Decision)
	switch typ {
	case model.DistillationAntiPattern, model.DistillationSharpEdge:
		return fmt.Sprintf("Avoid %q with %s: it tends to fail.", template, c.tool)
	default:
		return fmt.Sprintf("When facing %q, using %s tends to succeed.", template, c.tool)
	}
}
