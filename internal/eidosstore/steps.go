package eidosstore

import (
	"context"
	"database/sql"

	"github.com/normanking/kaitd/internal/kaitkerr"
	"github.com/normanking/kaitd/internal/model"
)

// InsertStep persists a newly opened step.
func (s *Store) InsertStep(ctx context.Context, st model.Step) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO steps (step_id, episode_id, session_id, tool, decision, action_kind, prediction, outcome, evaluation, opened_ns, sealed_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.StepID, st.EpisodeID, st.SessionID, st.Tool, st.Decision, st.ActionKind, st.Prediction, st.Outcome, st.Evaluation, st.OpenedNs, st.SealedNs)
	if err != nil {
		return kaitkerr.Transient(component, "insert_step", err)
	}
	return nil
}

// SealStep persists a step's terminal evaluation.
func (s *Store) SealStep(ctx context.Context, st model.Step) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE steps SET outcome=?, evaluation=?, sealed_ns=? WHERE step_id=?`,
		st.Outcome, st.Evaluation, st.SealedNs, st.StepID)
	if err != nil {
		return kaitkerr.Transient(component, "seal_step", err)
	}
	return nil
}

// OpenStepsForSession returns steps in the given session that have not yet
// been sealed, the candidate set for T_step_timeout force-sealing.
func (s *Store) OpenStepsForSession(ctx context.Context, sessionID string) ([]model.Step, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT step_id, episode_id, session_id, tool, decision, action_kind, prediction, outcome, evaluation, opened_ns, sealed_ns
		FROM steps WHERE session_id=? AND evaluation=?`, sessionID, model.EvalOpen)
	if err != nil {
		return nil, kaitkerr.Transient(component, "open_steps_for_session", err)
	}
	defer rows.Close()
	return scanSteps(rows)
}

// AllOpenSteps returns every step across all sessions that has not yet been
// sealed. The eidos tracker's idle sweep works from its in-memory session
// state and does not call it.
func (s *Store) AllOpenSteps(ctx context.Context) ([]model.Step, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT step_id, episode_id, session_id, tool, decision, action_kind, prediction, outcome, evaluation, opened_ns, sealed_ns
		FROM steps WHERE evaluation=?`, model.EvalOpen)
	if err != nil {
		return nil, kaitkerr.Transient(component, "all_open_steps", err)
	}
	defer rows.Close()
	return scanSteps(rows)
}

// StepsForEpisode returns all steps belonging to an episode, ordered by
// opened_ns, the Aggregator's unit of clustering input.
func (s *Store) StepsForEpisode(ctx context.Context, episodeID string) ([]model.Step, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT step_id, episode_id, session_id, tool, decision, action_kind, prediction, outcome, evaluation, opened_ns, sealed_ns
		FROM steps WHERE episode_id=? ORDER BY opened_ns ASC`, episodeID)
	if err != nil {
		return nil, kaitkerr.Transient(component, "steps_for_episode", err)
	}
	defer rows.Close()
	return scanSteps(rows)
}

func scanSteps(rows *sql.Rows) ([]model.Step, error) {
	var out []model.Step
	for rows.Next() {
		var st model.Step
		if err := rows.Scan(&st.StepID, &st.EpisodeID, &st.SessionID, &st.Tool, &st.Decision, &st.ActionKind, &st.Prediction, &st.Outcome, &st.Evaluation, &st.OpenedNs, &st.SealedNs); err != nil {
			return nil, kaitkerr.Invariant(component, "scan_step", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
