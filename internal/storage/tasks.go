package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/agentrt/agentrt/pkg/types"
)

// CreateTask inserts a new task annotation.
func (s *Storage) CreateTask(ctx context.Context, task types.Task) (types.Task, error) {
	if task.ID == "" {
		task.ID = newPublicID()
	}
	ts := now()
	task.CreatedAt, task.UpdatedAt = ts, ts

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		sessionInternalID, err := resolveSessionInternalID(ctx, tx, task.SessionID)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tasks (public_id, session_id, title, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`, task.ID, sessionInternalID, task.Title, task.Status, ts, ts)
		return err
	})
	return task, err
}

func scanTask(row *sql.Row) (types.Task, error) {
	var t types.Task
	var sessionPublicID string
	err := row.Scan(&t.ID, &sessionPublicID, &t.Title, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	t.SessionID = sessionPublicID
	return t, err
}

// GetTask loads a task by its public id.
func (s *Storage) GetTask(ctx context.Context, taskID string) (types.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT t.public_id, s.public_id, t.title, t.status, t.created_at, t.updated_at
		FROM tasks t INNER JOIN sessions s ON s.id = t.session_id
		WHERE t.public_id = ?`, taskID)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Task{}, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	return t, err
}

// ListTasks returns every task attached to a session, oldest first.
func (s *Storage) ListTasks(ctx context.Context, sessionID string) ([]types.Task, error) {
	sessionInternalID, err := resolveSessionInternalID(ctx, s.db, sessionID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT public_id, title, status, created_at, updated_at
		FROM tasks WHERE session_id = ? ORDER BY created_at ASC`, sessionInternalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Task
	for rows.Next() {
		var t types.Task
		if err := rows.Scan(&t.ID, &t.Title, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.SessionID = sessionID
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateTaskStatus enforces the monotonic lifecycle via
// types.TaskStatus.CanTransitionTo before writing.
func (s *Storage) UpdateTaskStatus(ctx context.Context, taskID string, status types.TaskStatus) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var current types.TaskStatus
		if err := tx.QueryRowContext(ctx, `SELECT status FROM tasks WHERE public_id = ?`, taskID).Scan(&current); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
			}
			return err
		}
		if !current.CanTransitionTo(status) {
			return fmt.Errorf("task %s: cannot transition %s -> %s", taskID, current, status)
		}
		_, err := tx.ExecContext(ctx, `UPDATE tasks SET status = ?, updated_at = ? WHERE public_id = ?`, status, now(), taskID)
		return err
	})
}

// UpdateTask overwrites a task's mutable fields in full.
func (s *Storage) UpdateTask(ctx context.Context, task types.Task) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE tasks SET title = ?, status = ?, updated_at = ? WHERE public_id = ?`,
			task.Title, task.Status, now(), task.ID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("task %s: %w", task.ID, ErrNotFound)
		}
		return nil
	})
}

// DeleteTask removes a task annotation.
func (s *Storage) DeleteTask(ctx context.Context, taskID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE public_id = ?`, taskID)
	return err
}
