package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

const dateLayout = "2006-01-02"

// Store keeps projection results and runs in a local SQLite file. It backs
// the fixture CLI and the server when no Postgres is configured.
type Store struct {
	db *sql.DB
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS projection_results (
		system_config_id TEXT NOT NULL,
		scenario_id TEXT NOT NULL,
		projection_date TEXT NOT NULL,
		net_profit_usd REAL NOT NULL,
		payload TEXT NOT NULL,
		PRIMARY KEY (system_config_id, scenario_id, projection_date)
	)`,
	`CREATE TABLE IF NOT EXISTS projection_runs (
		id TEXT PRIMARY KEY,
		system_config_id TEXT NOT NULL,
		scenario_id TEXT NOT NULL,
		state TEXT NOT NULL,
		payload TEXT NOT NULL,
		updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
}

// New wraps db. Call Init before use.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite store: nil db")
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	return &Store{db: db}, nil
}

// Init installs the schema. It is safe to call repeatedly.
func (s *Store) Init(ctx context.Context) error {
	for i, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
