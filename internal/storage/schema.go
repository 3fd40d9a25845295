package storage

import "database/sql"

// schemaVersion is the current migration level. Bumping it adds a new
// entry to migrations and a new row is applied on next New().
const schemaVersion = 1

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL);`,

	`CREATE TABLE IF NOT EXISTS blobs (
		key TEXT PRIMARY KEY,
		value_json TEXT NOT NULL
	);`,

	`CREATE TABLE IF NOT EXISTS llm_configs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		params TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		UNIQUE(provider, model, params)
	);`,

	`CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		public_id TEXT NOT NULL UNIQUE,
		project_id TEXT,
		directory TEXT,
		name TEXT,
		title TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		llm_config_id INTEGER REFERENCES llm_configs(id),
		parent_session_id INTEGER REFERENCES sessions(id),
		fork_origin TEXT,
		fork_point_type TEXT,
		fork_point_ref TEXT,
		fork_instructions TEXT,
		provider_node_id TEXT,
		current_intent_snapshot_id TEXT,
		active_task_id TEXT,
		meta_json TEXT
	);`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_parent ON sessions(parent_session_id);`,

	`CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		public_id TEXT NOT NULL UNIQUE,
		session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		parent_message_id INTEGER REFERENCES messages(id),
		created_at INTEGER NOT NULL,
		body_json TEXT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_session_created ON messages(session_id, created_at);`,

	`CREATE TABLE IF NOT EXISTS message_parts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
		part_id TEXT NOT NULL DEFAULT '',
		part_type TEXT NOT NULL,
		content_json TEXT NOT NULL,
		sort_order INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_parts_message ON message_parts(message_id, sort_order);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_parts_message_partid ON message_parts(message_id, part_id) WHERE part_id != '';`,

	`CREATE TABLE IF NOT EXISTS tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		public_id TEXT NOT NULL UNIQUE,
		session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_session ON tasks(session_id);`,

	`CREATE TABLE IF NOT EXISTS decisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		public_id TEXT NOT NULL UNIQUE,
		session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		task_id TEXT,
		question TEXT NOT NULL,
		chosen_alternative_id TEXT,
		created_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_decisions_session ON decisions(session_id);`,

	`CREATE TABLE IF NOT EXISTS alternatives (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		public_id TEXT NOT NULL UNIQUE,
		decision_id TEXT NOT NULL,
		label TEXT NOT NULL,
		rationale TEXT,
		status TEXT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_alternatives_decision ON alternatives(decision_id);`,

	`CREATE TABLE IF NOT EXISTS progress_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		public_id TEXT NOT NULL UNIQUE,
		session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		task_id TEXT,
		kind TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_progress_session ON progress_entries(session_id);`,

	`CREATE TABLE IF NOT EXISTS artifacts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		public_id TEXT NOT NULL UNIQUE,
		session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		task_id TEXT,
		kind TEXT NOT NULL,
		uri_or_path TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_artifacts_session ON artifacts(session_id);`,

	`CREATE TABLE IF NOT EXISTS intent_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		public_id TEXT NOT NULL UNIQUE,
		session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		summary TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_intent_session ON intent_snapshots(session_id);`,

	`CREATE TABLE IF NOT EXISTS delegations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		public_id TEXT NOT NULL UNIQUE,
		session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		task_id TEXT,
		target_agent_id TEXT NOT NULL,
		objective TEXT NOT NULL,
		objective_hash TEXT NOT NULL,
		context TEXT,
		constraints TEXT,
		expected_output TEXT,
		verification_spec TEXT,
		planning_summary TEXT,
		status TEXT NOT NULL,
		retry_count INTEGER NOT NULL DEFAULT 0,
		child_session_id TEXT,
		created_at INTEGER NOT NULL,
		completed_at INTEGER
	);`,
	`CREATE INDEX IF NOT EXISTS idx_delegations_session ON delegations(session_id);`,

	`CREATE TABLE IF NOT EXISTS revert_states (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		public_id TEXT NOT NULL UNIQUE,
		session_id INTEGER NOT NULL UNIQUE REFERENCES sessions(id) ON DELETE CASCADE,
		message_id TEXT NOT NULL,
		snapshot_id TEXT NOT NULL,
		backend_id TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);`,

	`CREATE TABLE IF NOT EXISTS session_events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		data_json TEXT
	);`,
	`CREATE INDEX IF NOT EXISTS idx_events_session ON session_events(session_id, seq);`,
}

// applyMigrations runs every migration statement unconditionally (each is
// idempotent via IF NOT EXISTS) and then records the schema version, mirroring
// the teacher's single up-front `apply_migrations` call at connection open.
func applyMigrations(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range migrations {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	var count int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, schemaVersion).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, schemaVersion); err != nil {
			return err
		}
	}

	return tx.Commit()
}
