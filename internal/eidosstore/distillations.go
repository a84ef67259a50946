package eidosstore

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/normanking/kaitd/internal/kaitkerr"
	"github.com/normanking/kaitd/internal/model"
)

// InsertDistillation persists a newly derived distillation.
func (s *Store) InsertDistillation(ctx context.Context, d model.Distillation) error {
	sourceJSON, domainsJSON, triggersJSON, err := marshalDistillationLists(d)
	if err != nil {
		return kaitkerr.Invariant(component, "marshal_distillation", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO distillations (distillation_id, type, statement, confidence, validation_count, contradiction_count, times_retrieved, times_used, times_helped, source_step_ids, domains, triggers, created_at_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.DistillationID, d.Type, d.Statement, d.Confidence, d.ValidationCount, d.ContradictionCount, d.TimesRetrieved, d.TimesUsed, d.TimesHelped, sourceJSON, domainsJSON, triggersJSON, d.CreatedAtNs)
	if err != nil {
		return kaitkerr.Transient(component, "insert_distillation", err)
	}
	return nil
}

// UpdateDistillationStats persists counters mutated by validation,
// contradiction, or retrieval/use tracking.
func (s *Store) UpdateDistillationStats(ctx context.Context, d model.Distillation) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE distillations SET confidence=?, validation_count=?, contradiction_count=?, times_retrieved=?, times_used=?, times_helped=?
		WHERE distillation_id=?`,
		d.Confidence, d.ValidationCount, d.ContradictionCount, d.TimesRetrieved, d.TimesUsed, d.TimesHelped, d.DistillationID)
	if err != nil {
		return kaitkerr.Transient(component, "update_distillation_stats", err)
	}
	return nil
}

// GetDistillation fetches a single distillation by ID.
func (s *Store) GetDistillation(ctx context.Context, id string) (*model.Distillation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT distillation_id, type, statement, confidence, validation_count, contradiction_count, times_retrieved, times_used, times_helped, source_step_ids, domains, triggers, created_at_ns
		FROM distillations WHERE distillation_id=?`, id)
	d, err := scanDistillation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, kaitkerr.Transient(component, "get_distillation", err)
	}
	return d, nil
}

// DistillationsByType returns all distillations of a given type, ordered by
// confidence descending.
func (s *Store) DistillationsByType(ctx context.Context, typ model.DistillationType) ([]model.Distillation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT distillation_id, type, statement, confidence, validation_count, contradiction_count, times_retrieved, times_used, times_helped, source_step_ids, domains, triggers, created_at_ns
		FROM distillations WHERE type=? ORDER BY confidence DESC`, typ)
	if err != nil {
		return nil, kaitkerr.Transient(component, "distillations_by_type", err)
	}
	defer rows.Close()

	var out []model.Distillation
	for rows.Next() {
		d, err := scanDistillation(rows)
		if err != nil {
			return nil, kaitkerr.Invariant(component, "scan_distillation", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// AllDistillations returns every stored distillation, oldest first; the
// advisory engine's EIDOS retrieval source scans it for trigger matches.
func (s *Store) AllDistillations(ctx context.Context) ([]model.Distillation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT distillation_id, type, statement, confidence, validation_count, contradiction_count, times_retrieved, times_used, times_helped, source_step_ids, domains, triggers, created_at_ns
		FROM distillations ORDER BY created_at_ns ASC`)
	if err != nil {
		return nil, kaitkerr.Transient(component, "all_distillations", err)
	}
	defer rows.Close()

	var out []model.Distillation
	for rows.Next() {
		d, err := scanDistillation(rows)
		if err != nil {
			return nil, kaitkerr.Invariant(component, "scan_distillation", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// ValidateDistillation increments a distillation's validation count, the
// EIDOS-side equivalent of cognitive.Store.Validate for insights.
func (s *Store) ValidateDistillation(ctx context.Context, id string) error {
	return s.bumpDistillationCount(ctx, id, "validation_count")
}

// ContradictDistillation increments a distillation's contradiction count.
func (s *Store) ContradictDistillation(ctx context.Context, id string) error {
	return s.bumpDistillationCount(ctx, id, "contradiction_count")
}

func (s *Store) bumpDistillationCount(ctx context.Context, id, column string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE distillations SET `+column+` = `+column+` + 1 WHERE distillation_id=?`, id)
	if err != nil {
		return kaitkerr.Transient(component, "bump_distillation_count", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDistillation(row rowScanner) (*model.Distillation, error) {
	var d model.Distillation
	var sourceJSON, domainsJSON, triggersJSON string
	if err := row.Scan(&d.DistillationID, &d.Type, &d.Statement, &d.Confidence, &d.ValidationCount, &d.ContradictionCount, &d.TimesRetrieved, &d.TimesUsed, &d.TimesHelped, &sourceJSON, &domainsJSON, &triggersJSON, &d.CreatedAtNs); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(sourceJSON), &d.SourceStepIDs); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(domainsJSON), &d.Domains); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(triggersJSON), &d.Triggers); err != nil {
		return nil, err
	}
	return &d, nil
}

func marshalDistillationLists(d model.Distillation) (sourceJSON, domainsJSON, triggersJSON string, err error) {
	src, err := json.Marshal(d.SourceStepIDs)
	if err != nil {
		return "", "", "", err
	}
	dom, err := json.Marshal(d.Domains)
	if err != nil {
		return "", "", "", err
	}
	trig, err := json.Marshal(d.Triggers)
	if err != nil {
		return "", "", "", err
	}
	return string(src), string(dom), string(trig), nil
}
