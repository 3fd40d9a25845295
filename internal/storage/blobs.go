package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
)

// Blob storage is a generic path-keyed JSON store layered on the same
// SQLite database, for ancillary per-session scratch data that spec.md's
// entity model doesn't cover (e.g. todo lists) — kept from the teacher's
// path-addressed Storage.Put/Get/Scan API (storage.go, pre-rewrite) rather
// than forcing every such consumer into a dedicated relational table.

func joinPath(path []string) string { return strings.Join(path, "/") }

// Put stores v as JSON under path.
func (s *Storage) Put(ctx context.Context, path []string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	key := joinPath(path)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO blobs (key, value_json) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value_json = excluded.value_json`, key, string(data))
	return err
}

// Get loads the JSON value stored at path into v.
func (s *Storage) Get(ctx context.Context, path []string, v any) error {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT value_json FROM blobs WHERE key = ?`, joinPath(path)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), v)
}

// Delete removes the value at path, if present.
func (s *Storage) Delete(ctx context.Context, path []string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE key = ?`, joinPath(path))
	return err
}

// Exists reports whether a value is stored at path.
func (s *Storage) Exists(ctx context.Context, path []string) bool {
	var n int
	_ = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM blobs WHERE key = ?`, joinPath(path)).Scan(&n)
	return n > 0
}

// List returns the immediate child key segments stored under path.
func (s *Storage) List(ctx context.Context, path []string) ([]string, error) {
	prefix := joinPath(path)
	if prefix != "" {
		prefix += "/"
	}
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM blobs WHERE key LIKE ?`, prefix+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := map[string]bool{}
	var out []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		rest := strings.TrimPrefix(key, prefix)
		segment := strings.SplitN(rest, "/", 2)[0]
		if segment != "" && !seen[segment] {
			seen[segment] = true
			out = append(out, segment)
		}
	}
	return out, rows.Err()
}

// Scan iterates every leaf value directly under path.
func (s *Storage) Scan(ctx context.Context, path []string, fn func(key string, data json.RawMessage) error) error {
	prefix := joinPath(path)
	if prefix != "" {
		prefix += "/"
	}
	rows, err := s.db.QueryContext(ctx, `SELECT key, value_json FROM blobs WHERE key LIKE ?`, prefix+"%")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key, data string
		if err := rows.Scan(&key, &data); err != nil {
			return err
		}
		leaf := strings.TrimPrefix(key, prefix)
		if strings.Contains(leaf, "/") {
			continue
		}
		if err := fn(leaf, json.RawMessage(data)); err != nil {
			return err
		}
	}
	return rows.Err()
}
