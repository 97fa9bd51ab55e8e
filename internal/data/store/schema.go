package store

import (
	"database/sql"
	"fmt"
)

const SchemaVersion = 2

type migration struct {
	version int
	sql     map[Dialect]string
}

var migrations = []migration{
	{
		version: 1,
		sql: map[Dialect]string{
			DialectSQLite: `
CREATE TABLE IF NOT EXISTS dag_components (
  component_id TEXT PRIMARY KEY,
  team_id TEXT NOT NULL,
  adjacency TEXT NOT NULL,
  created_at_ms INTEGER NOT NULL,
  updated_at_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dag_components_team ON dag_components(team_id, created_at_ms);
CREATE TABLE IF NOT EXISTS dag_edges (
  component_id TEXT NOT NULL REFERENCES dag_components(component_id) ON DELETE CASCADE,
  team_id TEXT NOT NULL,
  from_task_id TEXT NOT NULL,
  to_task_id TEXT NOT NULL,
  PRIMARY KEY (from_task_id, to_task_id)
);
CREATE INDEX IF NOT EXISTS idx_dag_edges_component ON dag_edges(component_id);
CREATE INDEX IF NOT EXISTS idx_dag_edges_to ON dag_edges(to_task_id);
`,
			DialectPostgres: `
CREATE TABLE IF NOT EXISTS dag_components (
  component_id UUID PRIMARY KEY,
  team_id UUID NOT NULL,
  adjacency JSONB NOT NULL,
  created_at_ms BIGINT NOT NULL,
  updated_at_ms BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dag_components_team ON dag_components(team_id, created_at_ms);
CREATE TABLE IF NOT EXISTS dag_edges (
  component_id UUID NOT NULL REFERENCES dag_components(component_id) ON DELETE CASCADE,
  team_id UUID NOT NULL,
  from_task_id UUID NOT NULL,
  to_task_id UUID NOT NULL,
  PRIMARY KEY (from_task_id, to_task_id)
);
CREATE INDEX IF NOT EXISTS idx_dag_edges_component ON dag_edges(component_id);
CREATE INDEX IF NOT EXISTS idx_dag_edges_to ON dag_edges(to_task_id);
`,
		},
	},
	{
		version: 2,
		sql: map[Dialect]string{
			DialectSQLite: `
CREATE TABLE IF NOT EXISTS tasks (
  id TEXT PRIMARY KEY,
  team_id TEXT NOT NULL,
  title TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'todo',
  created_at_ms INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_tasks_team ON tasks(team_id);
`,
			DialectPostgres: `
CREATE TABLE IF NOT EXISTS tasks (
  id UUID PRIMARY KEY,
  team_id UUID NOT NULL,
  title TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'todo',
  created_at_ms BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_tasks_team ON tasks(team_id);
`,
		},
	},
}

func EnsureSchema(db *sql.DB, dialect Dialect) error {
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at_utc TEXT NOT NULL DEFAULT (CURRENT_TIMESTAMP)
);
`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	var current int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema_migrations version: %w", err)
	}
	if current > SchemaVersion {
		return fmt.Errorf("schema version %d is newer than supported version %d", current, SchemaVersion)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		stmt, ok := m.sql[dialect]
		if !ok {
			return fmt.Errorf("migration %d has no %s variant", m.version, dialect)
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(dialect.Rebind(`INSERT INTO schema_migrations(version) VALUES (?)`), m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}
	return nil
}
