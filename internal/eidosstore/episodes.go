package eidosstore

import (
	"context"
	"database/sql"

	"github.com/normanking/kaitd/internal/kaitkerr"
	"github.com/normanking/kaitd/internal/model"
)

// InsertEpisode persists a newly opened episode.
func (s *Store) InsertEpisode(ctx context.Context, e model.Episode) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO episodes (episode_id, session_id, goal, phase, outcome, started_ns, ended_ns, step_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.EpisodeID, e.SessionID, e.Goal, e.Phase, e.Outcome, e.StartedNs, e.EndedNs, e.StepCount)
	if err != nil {
		return kaitkerr.Transient(component, "insert_episode", err)
	}
	return nil
}

// UpdateEpisode persists changes to an existing episode (phase, outcome,
// ended_ns, step_count).
func (s *Store) UpdateEpisode(ctx context.Context, e model.Episode) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE episodes SET goal=?, phase=?, outcome=?, ended_ns=?, step_count=? WHERE episode_id=?`,
		e.Goal, e.Phase, e.Outcome, e.EndedNs, e.StepCount, e.EpisodeID)
	if err != nil {
		return kaitkerr.Transient(component, "update_episode", err)
	}
	return nil
}

// ActiveEpisode returns the currently open episode for sessionID, if any.
// At most one row should ever match, enforced by internal/eidos never
// opening a second episode while one is still open.
func (s *Store) ActiveEpisode(ctx context.Context, sessionID string) (*model.Episode, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT episode_id, session_id, goal, phase, outcome, started_ns, ended_ns, step_count
		FROM episodes WHERE session_id=? AND ended_ns=0
		ORDER BY started_ns DESC LIMIT 1`, sessionID)

	var e model.Episode
	err := row.Scan(&e.EpisodeID, &e.SessionID, &e.Goal, &e.Phase, &e.Outcome, &e.StartedNs, &e.EndedNs, &e.StepCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, kaitkerr.Transient(component, "active_episode", err)
	}
	return &e, nil
}

// GetEpisode fetches a single episode by ID.
func (s *Store) GetEpisode(ctx context.Context, episodeID string) (*model.Episode, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT episode_id, session_id, goal, phase, outcome, started_ns, ended_ns, step_count
		FROM episodes WHERE episode_id=?`, episodeID)

	var e model.Episode
	err := row.Scan(&e.EpisodeID, &e.SessionID, &e.Goal, &e.Phase, &e.Outcome, &e.StartedNs, &e.EndedNs, &e.StepCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, kaitkerr.Transient(component, "get_episode", err)
	}
	return &e, nil
}

// ClosedEpisodesSince returns episodes closed at or after sinceNs with at
// least minSteps, the Aggregator's candidate pool.
func (s *Store) ClosedEpisodesSince(ctx context.Context, sinceNs int64, minSteps int) ([]model.Episode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT episode_id, session_id, goal, phase, outcome, started_ns, ended_ns, step_count
		FROM episodes WHERE ended_ns >= ? AND ended_ns > 0 AND step_count >= ?
		ORDER BY ended_ns ASC`, sinceNs, minSteps)
	if err != nil {
		return nil, kaitkerr.Transient(component, "closed_episodes_since", err)
	}
	defer rows.Close()

	var out []model.Episode
	for rows.Next() {
		var e model.Episode
		if err := rows.Scan(&e.EpisodeID, &e.SessionID, &e.Goal, &e.Phase, &e.Outcome, &e.StartedNs, &e.EndedNs, &e.StepCount); err != nil {
			return nil, kaitkerr.Invariant(component, "scan_episode", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
