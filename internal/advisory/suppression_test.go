package advisory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestToolCooldownGatesRepeatCallsForSameTool(t *testing.T) {
	s := newSuppressionState()
	now := time.Unix(100, 0)

	require.False(t, s.toolOnCooldown("sess", "edit_file", 30*time.Second, now))
	s.recordTool("sess", "edit_file", now)
	require.True(t, s.toolOnCooldown("sess", "edit_file", 30*time.Second, now.Add(10*time.Second)))
	require.False(t, s.toolOnCooldown("sess", "edit_file", 30*time.Second, now.Add(31*time.Second)))
}

func TestAdviceTTLSuppressesIdenticalEntityWithinWindow(t *testing.T) {
	s := newSuppressionState()
	now := time.Unix(200, 0)
	rules := suppressionRules{AdviceTTL: 600 * time.Second}
	f := fused{Candidate: Candidate{Text: "x", SourceKey: "k1"}}

	require.Equal(t, suppressionReason(""), s.evaluate("sess", f, rules, now))
	s.record("sess", f, now)
	require.Equal(t, reasonTTLDuplicate, s.evaluate("sess", f, rules, now.Add(100*time.Second)))
	require.Equal(t, suppressionReason(""), s.evaluate("sess", f, rules, now.Add(601*time.Second)))
}

func TestBudgetPerMinuteCapsEmissionRate(t *testing.T) {
	s := newSuppressionState()
	now := time.Unix(300, 0)
	rules := suppressionRules{BudgetPerMinute: 2}

	f1 := fused{Candidate: Candidate{Text: "a", SourceKey: "1"}}
	f2 := fused{Candidate: Candidate{Text: "b", SourceKey: "2"}}
	f3 := fused{Candidate: Candidate{Text: "c", SourceKey: "3"}}

	require.Equal(t, suppressionReason(""), s.evaluate("sess", f1, rules, now))
	s.record("sess", f1, now)
	require.Equal(t, suppressionReason(""), s.evaluate("sess", f2, rules, now))
	s.record("sess", f2, now)
	require.Equal(t, reasonBudgetExceeded, s.evaluate("sess", f3, rules, now))
}

func TestAgreementGateRequiresMinSources(t *testing.T) {
	s := newSuppressionState()
	now := time.Unix(400, 0)
	rules := suppressionRules{AgreementGate: true, MinSources: 2}

	solo := fused{Candidate: Candidate{Text: "x"}, sources: []string{"cognitive"}}
	agreed := fused{Candidate: Candidate{Text: "y"}, sources: []string{"cognitive", "eidos"}}

	require.Equal(t, reasonAgreementGate, s.evaluate("sess", solo, rules, now))
	require.Equal(t, suppressionReason(""), s.evaluate("sess", agreed, rules, now))
}

func TestGenericPatternActiveSuppressesSimilarEidosStatements(t *testing.T) {
	s := newSuppressionState()
	now := time.Unix(500, 0)
	rules := suppressionRules{}

	f1 := fused{Candidate: Candidate{Text: "always run tests before committing changes", Source: "eidos", SourceKey: "d1"}}
	f2 := fused{Candidate: Candidate{Text: "always run tests before committing more stuff", Source: "eidos", SourceKey: "d2"}}

	require.Equal(t, suppressionReason(""), s.evaluate("sess", f1, rules, now))
	s.record("sess", f1, now)
	require.Equal(t, reasonGenericActive, s.evaluate("sess", f2, rules, now.Add(time.Minute)))
}
