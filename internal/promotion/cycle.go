// Package promotion scans cognitive insights for promotion into guidance
// files (CLAUDE.md, AGENTS.md, TOOLS.md, SOUL.md) and demotes ones whose
// reliability has degraded, removing their line on the next pass.
// Grounded on the teacher's cognitive/feedback RunPromotionCycle: a
// scan-by-category loop comparing metrics against configured thresholds,
// calling a status-mutating method, and accumulating a structured report.
package promotion

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/normanking/kaitd/internal/cognitive"
	"github.com/normanking/kaitd/internal/config"
	"github.com/normanking/kaitd/internal/model"
)

const component = "promotion"

// Action records one promotion or demotion decision within a Report.
type Action struct {
	InsightKey string `json:"insight_key"`
	Category   string `json:"category"`
	Action     string `json:"action"` // "promoted" | "demoted"
	TargetFile string `json:"target_file,omitempty"`
	Reason     string `json:"reason"`
}

// Report summarizes one promotion cycle.
type Report struct {
	TsNanos  int64    `json:"ts_ns"`
	Promoted int      `json:"promoted"`
	Demoted  int      `json:"demoted"`
	Errors   int      `json:"errors"`
	Actions  []Action `json:"actions"`
}

// Cycle runs promotion and demotion scans against a cognitive.Store.
type Cycle struct {
	store  *cognitive.Store
	cfg    config.PromotionConfig
	cogCfg config.CognitiveConfig
	log    zerolog.Logger
	logger *Logger
	now    func() int64
}

// Options configures a Cycle.
type Options struct {
	Store     *cognitive.Store
	Promotion config.PromotionConfig
	Cognitive config.CognitiveConfig
	Log       zerolog.Logger
	Logger    *Logger // promotion_log.jsonl writer; nil disables logging
	NowUnixNs func() int64
}

// New constructs a Cycle.
func New(opts Options) *Cycle {
	now := opts.NowUnixNs
	if now == nil {
		now = func() int64 { return 0 }
	}
	return &Cycle{
		store:  opts.Store,
		cfg:    opts.Promotion,
		cogCfg: opts.Cognitive,
		log:    opts.Log,
		logger: opts.Logger,
		now:    now,
	}
}

// Run scans every category for promotion-eligible and demotion-eligible
// insights, mutates the backing store, writes guidance-file blocks, and
// returns a Report. Demotion removes a previously-written block; a
// promoted insight still not meeting eligibility is left untouched.
func (c *Cycle) Run() (*Report, error) {
	report := &Report{TsNanos: c.now()}

	for _, ins := range c.store.Snapshot() {
		ins := ins
		switch {
		case !ins.Promoted && ins.EligibleForPromotion(c.cogCfg.PromotionReliability, int64(c.cogCfg.PromotionValidations)):
			c.promote(&ins, report)
		case ins.Promoted && ins.Reliability < c.cfg.DemotionThreshold:
			c.demote(&ins, report)
		}
	}

	if c.logger != nil {
		if err := c.logger.Append(*report); err != nil {
			c.log.Warn().Err(err).Msg("failed to append promotion report")
		}
	}
	return report, nil
}

func (c *Cycle) promote(ins *model.Insight, report *Report) {
	target, ok := c.cfg.TargetFiles[string(ins.Category)]
	if !ok {
		target = c.cfg.TargetFiles["other"]
	}
	if target == "" {
		return
	}

	line := fmt.Sprintf("- %s _(reliability %.2f, %d validations)_", ins.Statement, ins.Reliability, ins.Validations)
	if err := upsertBlock(target, ins.Key, line); err != nil {
		report.Errors++
		c.log.Warn().Err(err).Str("insight", ins.Key).Msg("failed to write guidance block")
		return
	}
	if err := c.store.MarkPromoted(ins.Key, target); err != nil {
		report.Errors++
		c.log.Warn().Err(err).Str("insight", ins.Key).Msg("failed to mark insight promoted")
		return
	}

	report.Promoted++
	report.Actions = append(report.Actions, Action{
		InsightKey: ins.Key,
		Category:   string(ins.Category),
		Action:     "promoted",
		TargetFile: target,
		Reason:     fmt.Sprintf("reliability %.2f >= %.2f and validations %d >= %d", ins.Reliability, c.cogCfg.PromotionReliability, ins.Validations, c.cogCfg.PromotionValidations),
	})
}

func (c *Cycle) demote(ins *model.Insight, report *Report) {
	target := ins.PromotedTo
	if target != "" {
		if err := removeBlock(target, ins.Key); err != nil {
			report.Errors++
			c.log.Warn().Err(err).Str("insight", ins.Key).Msg("failed to remove guidance block")
			return
		}
	}
	if _, err := c.store.Demote(ins.Key); err != nil {
		report.Errors++
		c.log.Warn().Err(err).Str("insight", ins.Key).Msg("failed to demote insight")
		return
	}

	report.Demoted++
	report.Actions = append(report.Actions, Action{
		InsightKey: ins.Key,
		Category:   string(ins.Category),
		Action:     "demoted",
		TargetFile: target,
		Reason:     fmt.Sprintf("reliability_degraded: %.2f < %.2f", ins.Reliability, c.cfg.DemotionThreshold),
	})
}
