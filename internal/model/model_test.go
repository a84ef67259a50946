package model

import "testing"

func TestRecomputeReliability(t *testing.T) {
	i := &Insight{Validations: 8, Contradictions: 2}
	i.RecomputeReliability()
	if i.Reliability != 0.8 {
		t.Errorf("expected reliability 0.8, got %v", i.Reliability)
	}

	zero := &Insight{}
	zero.RecomputeReliability()
	if zero.Reliability != 0 {
		t.Errorf("expected reliability 0 with no counters, got %v", zero.Reliability)
	}
}

func TestEligibleForPromotion(t *testing.T) {
	i := &Insight{Reliability: 0.85, Validations: 6}
	if !i.EligibleForPromotion(0.80, 5) {
		t.Error("expected eligible insight to qualify")
	}

	i.Promoted = true
	if i.EligibleForPromotion(0.80, 5) {
		t.Error("already-promoted insight should not be re-eligible")
	}

	low := &Insight{Reliability: 0.5, Validations: 10}
	if low.EligibleForPromotion(0.80, 5) {
		t.Error("low-reliability insight should not be eligible")
	}
}

func TestInsightKeyStable(t *testing.T) {
	k1 := InsightKey(CategoryWisdom, "Always run Glob before Read")
	k2 := InsightKey(CategoryWisdom, "always   run glob before  read")
	if k1 != k2 {
		t.Error("expected normalized statements to produce the same key")
	}

	k3 := InsightKey(CategoryReasoning, "Always run Glob before Read")
	if k1 == k3 {
		t.Error("expected different categories to produce different keys")
	}
}

func TestEvidenceRingBounded(t *testing.T) {
	i := &Insight{}
	for n := 0; n < 15; n++ {
		i.AppendEvidence(NewEventID(), 10)
	}
	if len(i.Evidence) != 10 {
		t.Errorf("expected evidence ring bounded to 10, got %d", len(i.Evidence))
	}
}

func TestDerivePriority(t *testing.T) {
	cases := []struct {
		kind     EventKind
		marker   bool
		expected Priority
	}{
		{KindPostToolFailure, false, PriorityHigh},
		{KindUserPrompt, true, PriorityHigh},
		{KindUserPrompt, false, PriorityMedium},
		{KindPreTool, false, PriorityMedium},
		{KindPostTool, false, PriorityLow},
	}
	for _, c := range cases {
		got := DerivePriority(Event{Kind: c.kind}, c.marker)
		if got != c.expected {
			t.Errorf("DerivePriority(%s, %v) = %s, want %s", c.kind, c.marker, got, c.expected)
		}
	}
}

func TestClassifyLabel(t *testing.T) {
	cases := []struct {
		total     int
		duplicate bool
		want      VerdictLabel
	}{
		{0, false, VerdictPrimitive},
		{1, false, VerdictPrimitive},
		{2, false, VerdictNeedsWork},
		{3, false, VerdictNeedsWork},
		{4, true, VerdictDuplicate},
		{4, false, VerdictQuality},
		{5, false, VerdictQuality},
		{6, true, VerdictQuality},
		{12, false, VerdictQuality},
	}
	for _, c := range cases {
		got := ClassifyLabel(c.total, c.duplicate)
		if got != c.want {
			t.Errorf("ClassifyLabel(%d, %v) = %s, want %s", c.total, c.duplicate, got, c.want)
		}
	}
}

func TestStepSeal(t *testing.T) {
	s := &Step{Evaluation: EvalOpen}
	if !s.IsOpen() {
		t.Error("expected new step to be open")
	}
	s.Seal(OutcomeSuccess, EvalPassed, 123)
	if s.IsOpen() {
		t.Error("expected sealed step to no longer be open")
	}
	if s.Outcome != OutcomeSuccess || s.SealedNs != 123 {
		t.Error("expected seal to set outcome and timestamp")
	}
}
