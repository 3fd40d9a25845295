package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/agentrt/agentrt/pkg/types"
)

// CreateOrGetLLMConfig upserts by (provider, model, params) identity,
// returning the existing row if one already matches (spec.md §4.3.3,
// grounded on sqlite_storage.rs's create_or_get_llm_config).
func (s *Storage) CreateOrGetLLMConfig(ctx context.Context, cfg types.LLMConfig) (types.LLMConfig, error) {
	paramsJSON, err := json.Marshal(cfg.Params)
	if err != nil {
		return types.LLMConfig{}, err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT id, name, provider, model, params FROM llm_configs
			WHERE provider = ? AND model = ? AND params = ?`, cfg.Provider, cfg.Model, string(paramsJSON))

		var id int64
		var name sql.NullString
		var provider, model, params string
		scanErr := row.Scan(&id, &name, &provider, &model, &params)
		if scanErr == nil {
			cfg.ID = fmt.Sprintf("%d", id)
			cfg.Name = name.String
			cfg.Provider = provider
			cfg.Model = model
			return json.Unmarshal([]byte(params), &cfg.Params)
		}
		if !errors.Is(scanErr, sql.ErrNoRows) {
			return scanErr
		}

		ts := now()
		res, err := tx.ExecContext(ctx, `
			INSERT INTO llm_configs (name, provider, model, params, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`, cfg.Name, cfg.Provider, cfg.Model, string(paramsJSON), ts, ts)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		if err != nil {
			return err
		}
		cfg.ID = fmt.Sprintf("%d", id)
		return nil
	})
	return cfg, err
}

// GetSessionLLMConfig returns the LLM config pinned to a session, if any.
func (s *Storage) GetSessionLLMConfig(ctx context.Context, sessionID string) (*types.LLMConfig, error) {
	sessionInternalID, err := resolveSessionInternalID(ctx, s.db, sessionID)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.name, c.provider, c.model, c.params
		FROM llm_configs c INNER JOIN sessions s ON s.llm_config_id = c.id
		WHERE s.id = ?`, sessionInternalID)

	var id int64
	var name sql.NullString
	var provider, model, params string
	if err := row.Scan(&id, &name, &provider, &model, &params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	cfg := &types.LLMConfig{ID: fmt.Sprintf("%d", id), Name: name.String, Provider: provider, Model: model}
	if err := json.Unmarshal([]byte(params), &cfg.Params); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetSessionLLMConfig pins configID (the internal numeric id string
// returned by CreateOrGetLLMConfig) to a session.
func (s *Storage) SetSessionLLMConfig(ctx context.Context, sessionID, configID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		sessionInternalID, err := resolveSessionInternalID(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `UPDATE sessions SET llm_config_id = ?, updated_at = ? WHERE id = ?`, configID, now(), sessionInternalID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
		}
		return nil
	})
}
