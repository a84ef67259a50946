package eidosstore

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/normanking/kaitd/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "eidos")
	s, err := Open(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenRunsMigration(t *testing.T) {
	s := newTestStore(t)
	if err := s.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
}

func TestInsertAndFetchEpisode(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ep := model.Episode{
		EpisodeID: model.NewEpisodeID(),
		SessionID: "sess-1",
		Goal:      "fix the bug",
		Phase:     model.PhaseExplore,
		Outcome:   model.OutcomeActive,
		StartedNs: 1000,
	}
	if err := s.InsertEpisode(ctx, ep); err != nil {
		t.Fatalf("InsertEpisode: %v", err)
	}

	got, err := s.GetEpisode(ctx, ep.EpisodeID)
	if err != nil {
		t.Fatalf("GetEpisode: %v", err)
	}
	if got == nil || got.Goal != "fix the bug" {
		t.Fatalf("unexpected episode: %+v", got)
	}

	active, err := s.ActiveEpisode(ctx, "sess-1")
	if err != nil {
		t.Fatalf("ActiveEpisode: %v", err)
	}
	if active == nil || active.EpisodeID != ep.EpisodeID {
		t.Fatalf("expected active episode to be found, got %+v", active)
	}

	ep.Phase = model.PhaseExecute
	ep.EndedNs = 2000
	ep.Outcome = model.OutcomeSuccess
	ep.StepCount = 3
	if err := s.UpdateEpisode(ctx, ep); err != nil {
		t.Fatalf("UpdateEpisode: %v", err)
	}

	stillActive, err := s.ActiveEpisode(ctx, "sess-1")
	if err != nil {
		t.Fatalf("ActiveEpisode after close: %v", err)
	}
	if stillActive != nil {
		t.Fatalf("expected no active episode after close, got %+v", stillActive)
	}

	closed, err := s.ClosedEpisodesSince(ctx, 0, 1)
	if err != nil {
		t.Fatalf("ClosedEpisodesSince: %v", err)
	}
	if len(closed) != 1 || closed[0].StepCount != 3 {
		t.Fatalf("unexpected closed episodes: %+v", closed)
	}
}

func TestInsertAndSealStep(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ep := model.Episode{EpisodeID: model.NewEpisodeID(), SessionID: "sess-2", Phase: model.PhaseExecute, Outcome: model.OutcomeActive, StartedNs: 1}
	if err := s.InsertEpisode(ctx, ep); err != nil {
		t.Fatalf("InsertEpisode: %v", err)
	}

	st := model.Step{
		StepID:     model.NewStepID(),
		EpisodeID:  ep.EpisodeID,
		SessionID:  "sess-2",
		Tool:       "Edit",
		ActionKind: model.ActionToolCall,
		Evaluation: model.EvalOpen,
		OpenedNs:   10,
	}
	if err := s.InsertStep(ctx, st); err != nil {
		t.Fatalf("InsertStep: %v", err)
	}

	open, err := s.OpenStepsForSession(ctx, "sess-2")
	if err != nil {
		t.Fatalf("OpenStepsForSession: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected 1 open step, got %d", len(open))
	}

	st.Seal(model.OutcomeSuccess, model.EvalPassed, 20)
	if err := s.SealStep(ctx, st); err != nil {
		t.Fatalf("SealStep: %v", err)
	}

	stillOpen, err := s.OpenStepsForSession(ctx, "sess-2")
	if err != nil {
		t.Fatalf("OpenStepsForSession after seal: %v", err)
	}
	if len(stillOpen) != 0 {
		t.Fatalf("expected 0 open steps after seal, got %d", len(stillOpen))
	}

	forEpisode, err := s.StepsForEpisode(ctx, ep.EpisodeID)
	if err != nil {
		t.Fatalf("StepsForEpisode: %v", err)
	}
	if len(forEpisode) != 1 || forEpisode[0].Evaluation != model.EvalPassed {
		t.Fatalf("unexpected steps for episode: %+v", forEpisode)
	}
}

func TestDistillationRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d := model.Distillation{
		DistillationID: model.NewDistillationID(),
		Type:           model.DistillationHeuristic,
		Statement:      "prefer Glob over find",
		Confidence:     0.4,
		SourceStepIDs:  []string{"step_a", "step_b"},
		Domains:        []string{"search"},
		Triggers:       []string{"find"},
		CreatedAtNs:    100,
	}
	if err := s.InsertDistillation(ctx, d); err != nil {
		t.Fatalf("InsertDistillation: %v", err)
	}

	got, err := s.GetDistillation(ctx, d.DistillationID)
	if err != nil {
		t.Fatalf("GetDistillation: %v", err)
	}
	if got == nil || len(got.SourceStepIDs) != 2 || got.Domains[0] != "search" {
		t.Fatalf("unexpected distillation: %+v", got)
	}

	got.Confidence = 0.9
	got.ValidationCount = 5
	if err := s.UpdateDistillationStats(ctx, *got); err != nil {
		t.Fatalf("UpdateDistillationStats: %v", err)
	}

	byType, err := s.DistillationsByType(ctx, model.DistillationHeuristic)
	if err != nil {
		t.Fatalf("DistillationsByType: %v", err)
	}
	if len(byType) != 1 || byType[0].Confidence != 0.9 {
		t.Fatalf("unexpected distillations by type: %+v", byType)
	}

	all, err := s.AllDistillations(ctx)
	if err != nil {
		t.Fatalf("AllDistillations: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 distillation, got %d", len(all))
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ep := model.Episode{EpisodeID: model.NewEpisodeID(), SessionID: "sess-3", Phase: model.PhaseExplore, Outcome: model.OutcomeActive, StartedNs: 1}

	wantErr := errors.New("boom")
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, execErr := tx.ExecContext(ctx, `
			INSERT INTO episodes (episode_id, session_id, goal, phase, outcome, started_ns, ended_ns, step_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			ep.EpisodeID, ep.SessionID, ep.Goal, ep.Phase, ep.Outcome, ep.StartedNs, ep.EndedNs, ep.StepCount); execErr != nil {
			return execErr
		}
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected WithTx to return the callback error, got %v", err)
	}

	got, err := s.GetEpisode(ctx, ep.EpisodeID)
	if err != nil {
		t.Fatalf("GetEpisode: %v", err)
	}
	if got != nil {
		t.Fatalf("expected rolled-back insert to not be visible, got %+v", got)
	}
}
