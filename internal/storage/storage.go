// Package storage provides the SQLite-backed persistence layer for
// sessions, messages, and their annotation streams (spec.md §3.1, §4.3).
//
// Every entity has a public UUIDv7 id (pkg/types) and a dense internal
// integer id used only for foreign keys and ordering within this package;
// the internal id never escapes storage's exported API.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

// Storage is the SQLite-backed store. A single *sql.DB is used with
// SetMaxOpenConns(1): SQLite allows only one writer at a time and the
// pure-Go modernc.org/sqlite driver has no internal connection pool
// semantics to leverage, so we serialize through one connection rather
// than reimplement the teacher's run_blocking/Mutex<Connection> pairing
// (Go's database/sql already provides the blocking-safe handoff).
type Storage struct {
	db      *sql.DB
	writeMu sync.Mutex
}

// New opens (creating if necessary) the SQLite database at path and runs
// migrations, guarded by an flock-based FileLock so concurrent first-open
// from multiple processes doesn't race on schema creation.
func New(path string) (*Storage, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create storage dir: %w", err)
			}
		}
	}

	lock := NewFileLock(path)
	if path != ":memory:" {
		if err := lock.Lock(); err != nil {
			return nil, fmt.Errorf("acquire migration lock: %w", err)
		}
		defer lock.Unlock()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Storage) Close() error {
	return s.db.Close()
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on error or panic.
func (s *Storage) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// resolveSessionInternalID maps a session's public UUIDv7 id to its dense
// internal integer id (spec.md §3.1).
func resolveSessionInternalID(ctx context.Context, q querier, sessionID string) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `SELECT id FROM sessions WHERE public_id = ?`, sessionID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

// resolveMessageInternalID maps a message's public UUIDv7 id to its dense
// internal integer id.
func resolveMessageInternalID(ctx context.Context, q querier, messageID string) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `SELECT id FROM messages WHERE public_id = ?`, messageID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx, letting resolve
// helpers run either inside or outside a transaction.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
