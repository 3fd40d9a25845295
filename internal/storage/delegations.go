package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/agentrt/agentrt/pkg/types"
)

// CreateDelegation inserts a new delegation request (spec.md §4.4).
func (s *Storage) CreateDelegation(ctx context.Context, d types.Delegation) (types.Delegation, error) {
	if d.ID == "" {
		d.ID = newPublicID()
	}
	d.CreatedAt = now()
	if d.Status == "" {
		d.Status = types.DelegationRequested
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		sessionInternalID, err := resolveSessionInternalID(ctx, tx, d.SessionID)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO delegations (public_id, session_id, task_id, target_agent_id, objective,
				objective_hash, context, constraints, expected_output, verification_spec,
				planning_summary, status, retry_count, child_session_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID, sessionInternalID, d.TaskID, d.TargetAgentID, d.Objective, d.ObjectiveHash,
			d.Context, d.Constraints, d.ExpectedOutput, d.VerificationSpec, d.PlanningSummary,
			d.Status, d.RetryCount, d.ChildSessionID, d.CreatedAt)
		return err
	})
	return d, err
}

func scanDelegation(row *sql.Row) (types.Delegation, error) {
	var d types.Delegation
	var completedAt sql.NullInt64
	err := row.Scan(&d.ID, &d.SessionID, &d.TaskID, &d.TargetAgentID, &d.Objective, &d.ObjectiveHash,
		&d.Context, &d.Constraints, &d.ExpectedOutput, &d.VerificationSpec, &d.PlanningSummary,
		&d.Status, &d.RetryCount, &d.ChildSessionID, &d.CreatedAt, &completedAt)
	if completedAt.Valid {
		d.CompletedAt = &completedAt.Int64
	}
	return d, err
}

const delegationColumns = `
	d.public_id, s.public_id, COALESCE(d.task_id, ''), d.target_agent_id, d.objective, d.objective_hash,
	COALESCE(d.context, ''), COALESCE(d.constraints, ''), COALESCE(d.expected_output, ''),
	COALESCE(d.verification_spec, ''), COALESCE(d.planning_summary, ''), d.status, d.retry_count,
	COALESCE(d.child_session_id, ''), d.created_at, d.completed_at`

// GetDelegation loads a delegation by its public id.
func (s *Storage) GetDelegation(ctx context.Context, delegationID string) (types.Delegation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+delegationColumns+`
		FROM delegations d INNER JOIN sessions s ON s.id = d.session_id
		WHERE d.public_id = ?`, delegationID)

	d, err := scanDelegation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Delegation{}, fmt.Errorf("delegation %s: %w", delegationID, ErrNotFound)
	}
	return d, err
}

// ListDelegations returns every delegation a session has made, oldest first.
func (s *Storage) ListDelegations(ctx context.Context, sessionID string) ([]types.Delegation, error) {
	sessionInternalID, err := resolveSessionInternalID(ctx, s.db, sessionID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT public_id, COALESCE(task_id, ''), target_agent_id, objective, objective_hash,
			COALESCE(context, ''), COALESCE(constraints, ''), COALESCE(expected_output, ''),
			COALESCE(verification_spec, ''), COALESCE(planning_summary, ''), status, retry_count,
			COALESCE(child_session_id, ''), created_at, completed_at
		FROM delegations WHERE session_id = ? ORDER BY created_at ASC`, sessionInternalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Delegation
	for rows.Next() {
		var d types.Delegation
		var completedAt sql.NullInt64
		if err := rows.Scan(&d.ID, &d.TaskID, &d.TargetAgentID, &d.Objective, &d.ObjectiveHash,
			&d.Context, &d.Constraints, &d.ExpectedOutput, &d.VerificationSpec, &d.PlanningSummary,
			&d.Status, &d.RetryCount, &d.ChildSessionID, &d.CreatedAt, &completedAt); err != nil {
			return nil, err
		}
		if completedAt.Valid {
			d.CompletedAt = &completedAt.Int64
		}
		d.SessionID = sessionID
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpdateDelegationStatus enforces the
// Requested -> Running -> {Complete,Failed,Cancelled} status machine
// (spec.md §4.4) before writing, stamping completed_at on terminal states.
func (s *Storage) UpdateDelegationStatus(ctx context.Context, delegationID string, status types.DelegationStatus) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var current types.DelegationStatus
		if err := tx.QueryRowContext(ctx, `SELECT status FROM delegations WHERE public_id = ?`, delegationID).Scan(&current); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("delegation %s: %w", delegationID, ErrNotFound)
			}
			return err
		}
		if !current.CanTransitionTo(status) {
			return fmt.Errorf("delegation %s: cannot transition %s -> %s", delegationID, current, status)
		}

		var completedAt sql.NullInt64
		switch status {
		case types.DelegationComplete, types.DelegationFailed, types.DelegationCancelled:
			completedAt = sql.NullInt64{Int64: now(), Valid: true}
		}
		_, err := tx.ExecContext(ctx, `UPDATE delegations SET status = ?, completed_at = ? WHERE public_id = ?`, status, completedAt, delegationID)
		return err
	})
}

// UpdateDelegation overwrites a delegation's mutable fields (retry count,
// child session id, planning summary) in full.
func (s *Storage) UpdateDelegation(ctx context.Context, d types.Delegation) error {
	var completedAt sql.NullInt64
	if d.CompletedAt != nil {
		completedAt = sql.NullInt64{Int64: *d.CompletedAt, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE delegations SET retry_count = ?, child_session_id = ?, planning_summary = ?,
			status = ?, completed_at = ? WHERE public_id = ?`,
		d.RetryCount, d.ChildSessionID, d.PlanningSummary, d.Status, completedAt, d.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("delegation %s: %w", d.ID, ErrNotFound)
	}
	return nil
}
