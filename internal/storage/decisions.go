package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/agentrt/agentrt/pkg/types"
)

// RecordDecision inserts a new decision point.
func (s *Storage) RecordDecision(ctx context.Context, d types.Decision) (types.Decision, error) {
	if d.ID == "" {
		d.ID = newPublicID()
	}
	d.CreatedAt = now()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		sessionInternalID, err := resolveSessionInternalID(ctx, tx, d.SessionID)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO decisions (public_id, session_id, task_id, question, chosen_alternative_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			d.ID, sessionInternalID, d.TaskID, d.Question, d.ChosenAlternativeID, d.CreatedAt)
		return err
	})
	return d, err
}

// RecordAlternative inserts an option considered for a decision.
func (s *Storage) RecordAlternative(ctx context.Context, a types.Alternative) (types.Alternative, error) {
	if a.ID == "" {
		a.ID = newPublicID()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alternatives (public_id, decision_id, label, rationale, status)
		VALUES (?, ?, ?, ?, ?)`, a.ID, a.DecisionID, a.Label, a.Rationale, a.Status)
	return a, err
}

// GetDecision loads a decision by its public id.
func (s *Storage) GetDecision(ctx context.Context, decisionID string) (types.Decision, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT d.public_id, s.public_id, COALESCE(d.task_id, ''), d.question,
			COALESCE(d.chosen_alternative_id, ''), d.created_at
		FROM decisions d INNER JOIN sessions s ON s.id = d.session_id
		WHERE d.public_id = ?`, decisionID)

	var d types.Decision
	if err := row.Scan(&d.ID, &d.SessionID, &d.TaskID, &d.Question, &d.ChosenAlternativeID, &d.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Decision{}, fmt.Errorf("decision %s: %w", decisionID, ErrNotFound)
		}
		return types.Decision{}, err
	}
	return d, nil
}

// ListDecisions returns decisions for a session, optionally filtered by task.
func (s *Storage) ListDecisions(ctx context.Context, sessionID string, taskID *string) ([]types.Decision, error) {
	sessionInternalID, err := resolveSessionInternalID(ctx, s.db, sessionID)
	if err != nil {
		return nil, err
	}
	query := `SELECT public_id, COALESCE(task_id, ''), question, COALESCE(chosen_alternative_id, ''), created_at
		FROM decisions WHERE session_id = ?`
	args := []any{sessionInternalID}
	if taskID != nil {
		query += ` AND task_id = ?`
		args = append(args, *taskID)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Decision
	for rows.Next() {
		var d types.Decision
		if err := rows.Scan(&d.ID, &d.TaskID, &d.Question, &d.ChosenAlternativeID, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.SessionID = sessionID
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListAlternatives returns the alternatives considered across a session's
// decisions, optionally filtered by task.
func (s *Storage) ListAlternatives(ctx context.Context, sessionID string, taskID *string) ([]types.Alternative, error) {
	sessionInternalID, err := resolveSessionInternalID(ctx, s.db, sessionID)
	if err != nil {
		return nil, err
	}
	query := `
		SELECT a.public_id, a.decision_id, a.label, COALESCE(a.rationale, ''), a.status
		FROM alternatives a INNER JOIN decisions d ON d.public_id = a.decision_id
		WHERE d.session_id = ?`
	args := []any{sessionInternalID}
	if taskID != nil {
		query += ` AND d.task_id = ?`
		args = append(args, *taskID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Alternative
	for rows.Next() {
		var a types.Alternative
		if err := rows.Scan(&a.ID, &a.DecisionID, &a.Label, &a.Rationale, &a.Status); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateDecisionStatus records which alternative was chosen for a decision.
func (s *Storage) UpdateDecisionStatus(ctx context.Context, decisionID, chosenAlternativeID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE decisions SET chosen_alternative_id = ? WHERE public_id = ?`, chosenAlternativeID, decisionID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("decision %s: %w", decisionID, ErrNotFound)
	}
	return nil
}

// UpdateAlternativeStatus transitions an alternative between
// proposed/rejected/chosen.
func (s *Storage) UpdateAlternativeStatus(ctx context.Context, alternativeID string, status types.AlternativeStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE alternatives SET status = ? WHERE public_id = ?`, status, alternativeID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("alternative %s: %w", alternativeID, ErrNotFound)
	}
	return nil
}
