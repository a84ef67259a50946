package cognitive

import (
	"path/filepath"
	"testing"

	"github.com/normanking/kaitd/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{Path: filepath.Join(t.TempDir(), "cognitive_insights.json")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestUpsertNewInsight(t *testing.T) {
	s := newTestStore(t)
	key := model.InsightKey(model.CategoryWisdom, "use glob before read")

	ins, err := s.Upsert(model.Insight{Key: key, Category: model.CategoryWisdom, Statement: "Use Glob before Read"})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if ins.Key != key {
		t.Errorf("expected key %q, got %q", key, ins.Key)
	}

	got, ok := s.Get(key)
	if !ok {
		t.Fatal("expected inserted insight to be retrievable")
	}
	if got.Statement != "Use Glob before Read" {
		t.Errorf("unexpected statement: %q", got.Statement)
	}
}

func TestValidateAndContradictRecomputeReliability(t *testing.T) {
	s := newTestStore(t)
	key := model.InsightKey(model.CategoryWisdom, "x")
	if _, err := s.Upsert(model.Insight{Key: key, Category: model.CategoryWisdom, Statement: "x"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	for i := 0; i < 8; i++ {
		if _, err := s.Validate(key, "e1"); err != nil {
			t.Fatalf("Validate: %v", err)
		}
	}
	for i := 0; i < 2; i++ {
		if _, err := s.Contradict(key, "e2"); err != nil {
			t.Fatalf("Contradict: %v", err)
		}
	}

	got, _ := s.Get(key)
	if got.Validations != 8 || got.Contradictions != 2 {
		t.Fatalf("unexpected counters: %+v", got)
	}
	if got.Reliability != 0.8 {
		t.Errorf("expected reliability 0.8, got %v", got.Reliability)
	}
}

func TestDemoteAndMarkPromoted(t *testing.T) {
	s := newTestStore(t)
	key := model.InsightKey(model.CategoryWisdom, "y")
	if _, err := s.Upsert(model.Insight{Key: key, Category: model.CategoryWisdom, Statement: "y"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if err := s.MarkPromoted(key, "CLAUDE.md"); err != nil {
		t.Fatalf("MarkPromoted: %v", err)
	}
	got, _ := s.Get(key)
	if !got.Promoted || got.PromotedTo != "CLAUDE.md" {
		t.Fatalf("expected promoted state, got %+v", got)
	}

	if _, err := s.Demote(key); err != nil {
		t.Fatalf("Demote: %v", err)
	}
	got, _ = s.Get(key)
	if got.Promoted {
		t.Error("expected demoted insight to have Promoted cleared")
	}
}

func TestPersistenceRoundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cognitive_insights.json")

	s1, err := Open(Options{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	key := model.InsightKey(model.CategoryWisdom, "z")
	if _, err := s1.Upsert(model.Insight{Key: key, Category: model.CategoryWisdom, Statement: "z"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	s2, err := Open(Options{Path: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, ok := s2.Get(key)
	if !ok {
		t.Fatal("expected persisted insight to survive reopen")
	}
	if got.Statement != "z" {
		t.Errorf("unexpected statement after reopen: %q", got.Statement)
	}
}

func TestMutateUnknownKeyIsInvariantViolation(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Validate("missing", "e1"); err == nil {
		t.Error("expected validating an unknown key to return an error")
	}
}
