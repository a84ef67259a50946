package eidos

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/normanking/kaitd/internal/eidosstore"
	"github.com/normanking/kaitd/internal/model"
)

func newTestAggStore(t *testing.T) *eidosstore.Store {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "eidos")
	store, err := eidosstore.Open(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedClosedEpisode(t *testing.T, store *eidosstore.Store, sessionID string, stepCount int, eval model.Evaluation) model.Episode {
	t.Helper()
	ctx := context.Background()
	ep := model.Episode{
		EpisodeID: model.NewEpisodeID(),
		SessionID: sessionID,
		Phase:     model.PhaseConsolidate,
		Outcome:   model.OutcomeSuccess,
		StartedNs: 1,
		EndedNs:   1000,
		StepCount: stepCount,
	}
	if err := store.InsertEpisode(ctx, ep); err != nil {
		t.Fatalf("InsertEpisode: %v", err)
	}
	for i := 0; i < stepCount; i++ {
		st := model.Step{
			StepID:     model.NewStepID(),
			EpisodeID:  ep.EpisodeID,
			SessionID:  sessionID,
			Tool:       "Bash",
			Decision:   "run the test suite before committing",
			ActionKind: model.ActionToolCall,
			Evaluation: eval,
			Outcome:    outcomeFor(eval),
			OpenedNs:   int64(i),
			SealedNs:   int64(i + 1),
		}
		if err := store.InsertStep(ctx, st); err != nil {
			t.Fatalf("InsertStep: %v", err)
		}
	}
	return ep
}

func outcomeFor(eval model.Evaluation) model.Outcome {
	if eval == model.EvalPassed {
		return model.OutcomeSuccess
	}
	return model.OutcomeFailure
}

func TestAggregatorEmitsHeuristicForRepeatedSuccesses(t *testing.T) {
	store := newTestAggStore(t)
	seedClosedEpisode(t, store, "s1", 5, model.EvalPassed)

	agg := NewAggregator(AggregatorOptions{Store: store, ValidateMin: 5, MinSteps: 1})
	created, err := agg.Run(context.Background(), 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected 1 distillation, got %d", created)
	}

	all, err := store.AllDistillations(context.Background())
	if err != nil {
		t.Fatalf("AllDistillations: %v", err)
	}
	if len(all) != 1 || all[0].Type != model.DistillationHeuristic {
		t.Fatalf("unexpected distillation: %+v", all)
	}
}

func TestAggregatorEmitsAntiPatternForRepeatedFailures(t *testing.T) {
	store := newTestAggStore(t)
	seedClosedEpisode(t, store, "s1", 5, model.EvalFailed)

	agg := NewAggregator(AggregatorOptions{Store: store, ValidateMin: 5, MinSteps: 1})
	if _, err := agg.Run(context.Background(), 0); err != nil {
		t.Fatalf("Run: %v", err)
	}

	all, err := store.AllDistillations(context.Background())
	if err != nil {
		t.Fatalf("AllDistillations: %v", err)
	}
	if len(all) != 1 || all[0].Type != model.DistillationAntiPattern {
		t.Fatalf("expected anti_pattern distillation, got %+v", all)
	}
}

func TestAggregatorSkipsUndersizedCluster(t *testing.T) {
	store := newTestAggStore(t)
	seedClosedEpisode(t, store, "s1", 2, model.EvalPassed)

	agg := NewAggregator(AggregatorOptions{Store: store, ValidateMin: 5, MinSteps: 1})
	created, err := agg.Run(context.Background(), 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if created != 0 {
		t.Fatalf("expected no distillation for an undersized cluster, got %d", created)
	}
}

func TestAggregatorEmitsSharpEdgeForSingleFailure(t *testing.T) {
	store := newTestAggStore(t)
	seedClosedEpisode(t, store, "s1", 1, model.EvalFailed)

	agg := NewAggregator(AggregatorOptions{Store: store, ValidateMin: 5, MinSteps: 1})
	created, err := agg.Run(context.Background(), 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected 1 sharp_edge distillation, got %d", created)
	}

	all, err := store.AllDistillations(context.Background())
	if err != nil {
		t.Fatalf("AllDistillations: %v", err)
	}
	if len(all) != 1 || all[0].Type != model.DistillationSharpEdge {
		t.Fatalf("expected sharp_edge distillation, got %+v", all)
	}
}
