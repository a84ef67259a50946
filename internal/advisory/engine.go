package advisory

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/kaitd/internal/config"
	"github.com/normanking/kaitd/internal/eventbus"
	"github.com/normanking/kaitd/internal/model"
)

// EngineOptions configures an Engine.
type EngineOptions struct {
	Config  config.AdvisoryConfig
	Sources []Source // queried concurrently; in quick-fallback mode only Packet, if set, is queried
	Packet  *PacketSource
	Bus     *eventbus.Bus
	Ledger  *Ledger
	Log     zerolog.Logger
	Now     func() time.Time
}

// Engine runs advise(): parallel retrieval, Reciprocal Rank Fusion,
// deterministic rerank, ordered suppression, and Decision Ledger
// recording. Grounded on the teacher's cognitive/router package for the
// parallel-fan-out-under-deadline shape.
type Engine struct {
	cfg         config.AdvisoryConfig
	sources     []Source
	packet      *PacketSource
	bus         *eventbus.Bus
	ledger      *Ledger
	log         zerolog.Logger
	now         func() time.Time
	suppression *suppressionState
}

// NewEngine constructs an Engine from EngineOptions.
func NewEngine(opts EngineOptions) *Engine {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		cfg:         opts.Config,
		sources:     opts.Sources,
		packet:      opts.Packet,
		bus:         opts.Bus,
		ledger:      opts.Ledger,
		log:         opts.Log,
		now:         now,
		suppression: newSuppressionState(),
	}
}

// Advise runs one full retrieval-fusion-suppression cycle for q and
// returns the items the caller should surface, along with the Decision
// Ledger entry recorded for the call.
func (e *Engine) Advise(ctx context.Context, q Query) ([]model.AdviceItem, model.AdviceDecision, error) {
	start := e.now()
	budget := e.cfg.Budget
	if budget <= 0 {
		budget = 1500 * time.Millisecond
	}
	deadline := start.Add(budget)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	quickMode := false
	if e.cfg.QuickMinMs > 0 && budget < time.Duration(e.cfg.QuickMinMs)*time.Millisecond {
		quickMode = true
	}

	route := model.RouteLive
	bySource, sourceCounts := e.retrieve(ctx, q, quickMode)
	if quickMode {
		route = e.packetRoute(q)
	}

	fusedItems := reciprocalRankFusion(bySource, e.cfg.SourceWeights)
	if !quickMode {
		fusedItems = rerank(fusedItems, e.cfg.PerSourceK*len(e.sources))
	}

	rules := suppressionRules{
		AdviceTTL:       e.cfg.AdviceTTL,
		BudgetPerMinute: e.cfg.BudgetPerMinute,
		AgreementGate:   e.cfg.AgreementGate,
		MinSources:      e.cfg.MinSources,
	}

	maxEmit := e.cfg.MaxEmit
	if maxEmit <= 0 {
		maxEmit = 2
	}

	now := e.now()
	var (
		items   []model.AdviceItem
		reasons []string
	)
	if e.suppression.toolOnCooldown(q.SessionID, q.Tool, e.cfg.ToolCooldown, now) {
		reasons = append(reasons, string(reasonCooldown))
	} else {
		for _, f := range fusedItems {
			if len(items) >= maxEmit {
				break
			}
			reason := e.suppression.evaluate(q.SessionID, f, rules, now)
			if reason != "" {
				reasons = append(reasons, string(reason))
				continue
			}
			e.suppression.record(q.SessionID, f, now)
			items = append(items, model.AdviceItem{
				AdviceID:  model.NewAdviceID(),
				Text:      f.Text,
				Source:    f.Source,
				SourceKey: f.SourceKey,
				Score:     f.rrfScore,
			})
		}
		if len(items) > 0 {
			e.suppression.recordTool(q.SessionID, q.Tool, now)
		}
	}

	decision := model.AdviceDecision{
		TsNanos:            now.UnixNano(),
		SessionID:          q.SessionID,
		Tool:               q.Tool,
		Outcome:            model.OutcomeBlocked,
		Route:              route,
		SelectedCount:      len(items),
		SuppressedCount:    len(fusedItems) - len(items),
		Sources:            sourceCounts,
		SuppressionReasons: reasons,
	}
	if len(items) > 0 {
		decision.Outcome = model.OutcomeEmitted
	}

	if e.ledger != nil {
		if err := e.ledger.Record(decision); err != nil {
			e.log.Warn().Err(err).Msg("failed to record advisory decision")
		}
	}

	if e.bus != nil && len(items) > 0 {
		e.bus.Publish(eventbus.Event{Topic: eventbus.TopicAdviceEmitted, Payload: decision})
	}

	return items, decision, nil
}

// retrieve fans out to every configured source concurrently, bounded by
// ctx's deadline. In quick mode, only the packet source is queried.
func (e *Engine) retrieve(ctx context.Context, q Query, quickMode bool) (map[string][]Candidate, []model.SourceCount) {
	sources := e.sources
	if quickMode && e.packet != nil {
		sources = []Source{e.packet}
	}

	k := e.cfg.PerSourceK
	if k <= 0 {
		k = 10
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		result = make(map[string][]Candidate, len(sources))
		counts []model.SourceCount
	)
	for _, src := range sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			candidates, err := src.Retrieve(ctx, q, k)
			if err != nil {
				e.log.Debug().Err(err).Str("source", src.Name()).Msg("advisory source retrieve failed")
				return
			}
			mu.Lock()
			result[src.Name()] = candidates
			counts = append(counts, model.SourceCount{Source: src.Name(), Count: len(candidates)})
			mu.Unlock()
		}(src)
	}
	wg.Wait()
	return result, counts
}

// packetRoute classifies the route for a quick-fallback response.
func (e *Engine) packetRoute(q Query) model.Route {
	if e.packet == nil {
		return model.RoutePacketRelaxedFallback
	}
	if e.packet.ExactHit(q) {
		return model.RoutePacketExact
	}
	return model.RoutePacketRelaxed
}
