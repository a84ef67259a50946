package advisory

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/normanking/kaitd/internal/config"
	"github.com/normanking/kaitd/internal/model"
)

type stubSource struct {
	name       string
	candidates []Candidate
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Retrieve(context.Context, Query, int) ([]Candidate, error) {
	return s.candidates, nil
}

func testAdvisoryConfig() config.AdvisoryConfig {
	return config.AdvisoryConfig{
		Budget:          1500 * time.Millisecond,
		QuickMinMs:      900,
		PerSourceK:      10,
		MaxEmit:         2,
		ToolCooldown:    30 * time.Second,
		AdviceTTL:       600 * time.Second,
		BudgetPerMinute: 5,
		AgreementGate:   false,
		MinSources:      2,
		SourceWeights:   map[string]float64{"cognitive": 1.0, "eidos": 1.0, "semantic": 0.8, "packet": 0.6},
	}
}

func TestAdviseEmitsFusedCandidatesWithinMaxEmit(t *testing.T) {
	cognitiveSrc := &stubSource{name: "cognitive", candidates: []Candidate{
		{Text: "always check file exists before editing", Source: "cognitive", SourceKey: "k1", Score: 0.9},
		{Text: "run the linter before committing", Source: "cognitive", SourceKey: "k2", Score: 0.8},
	}}
	eidosSrc := &stubSource{name: "eidos", candidates: []Candidate{
		{Text: "always check file exists before editing", Source: "eidos", SourceKey: "k1", Score: 0.7},
	}}

	engine := NewEngine(EngineOptions{
		Config:  testAdvisoryConfig(),
		Sources: []Source{cognitiveSrc, eidosSrc},
		Log:     zerolog.Nop(),
		Now:     func() time.Time { return time.Unix(1000, 0) },
	})

	items, decision, err := engine.Advise(context.Background(), Query{SessionID: "s1", Tool: "edit_file"})
	require.NoError(t, err)
	require.LessOrEqual(t, len(items), 2)
	require.Equal(t, model.OutcomeEmitted, decision.Outcome)
	require.Equal(t, "s1", decision.SessionID)
}

func TestAdviseSuppressesRepeatWithinCooldown(t *testing.T) {
	now := time.Unix(2000, 0)
	src := &stubSource{name: "cognitive", candidates: []Candidate{
		{Text: "always check file exists before editing", Source: "cognitive", SourceKey: "k1", Score: 0.9},
	}}

	cfg := testAdvisoryConfig()
	engine := NewEngine(EngineOptions{
		Config:  cfg,
		Sources: []Source{src},
		Log:     zerolog.Nop(),
		Now:     func() time.Time { return now },
	})

	q := Query{SessionID: "s2", Tool: "edit_file"}
	first, firstDecision, err := engine.Advise(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.Equal(t, model.OutcomeEmitted, firstDecision.Outcome)

	second, secondDecision, err := engine.Advise(context.Background(), q)
	require.NoError(t, err)
	require.Empty(t, second)
	require.Equal(t, model.OutcomeBlocked, secondDecision.Outcome)
	require.Contains(t, secondDecision.SuppressionReasons, string(reasonCooldown))
}

func TestAdviseRespectsBudgetPerMinute(t *testing.T) {
	now := time.Unix(3000, 0)
	src := &stubSource{name: "cognitive", candidates: []Candidate{
		{Text: "one distinct piece of advice", Source: "cognitive", SourceKey: "a", Score: 0.9},
		{Text: "two distinct piece of advice", Source: "cognitive", SourceKey: "b", Score: 0.8},
		{Text: "three distinct piece of advice", Source: "cognitive", SourceKey: "c", Score: 0.7},
	}}

	cfg := testAdvisoryConfig()
	cfg.MaxEmit = 1
	cfg.BudgetPerMinute = 1
	cfg.ToolCooldown = 0
	cfg.AdviceTTL = 0
	engine := NewEngine(EngineOptions{
		Config:  cfg,
		Sources: []Source{src},
		Log:     zerolog.Nop(),
		Now:     func() time.Time { return now },
	})

	q := Query{SessionID: "s3", Tool: "edit_file"}
	first, _, err := engine.Advise(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, secondDecision, err := engine.Advise(context.Background(), q)
	require.NoError(t, err)
	require.Empty(t, second)
	require.Contains(t, secondDecision.SuppressionReasons, string(reasonBudgetExceeded))
}

func TestQuickModeUsesPacketSourceOnly(t *testing.T) {
	packet := NewPacketSource(10 * time.Minute)
	packet.Put("edit_file", []Candidate{{Text: "packet advice", Source: "packet", SourceKey: "p1", Score: 1.0}})

	liveSrc := &stubSource{name: "cognitive", candidates: []Candidate{
		{Text: "should never be reached", Source: "cognitive", SourceKey: "c1", Score: 0.9},
	}}

	cfg := testAdvisoryConfig()
	cfg.Budget = 500 * time.Millisecond
	cfg.QuickMinMs = 900

	engine := NewEngine(EngineOptions{
		Config:  cfg,
		Sources: []Source{liveSrc},
		Packet:  packet,
		Log:     zerolog.Nop(),
		Now:     func() time.Time { return time.Unix(4000, 0) },
	})

	items, decision, err := engine.Advise(context.Background(), Query{SessionID: "s4", Tool: "edit_file"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "packet", items[0].Source)
	require.Equal(t, model.RoutePacketExact, decision.Route)
}
