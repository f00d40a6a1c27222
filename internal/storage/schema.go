package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Schema version tracking
const currentSchemaVersion = 1

// migrate creates the schema on a fresh database and runs pending migrations
// on an existing one
func (db *DB) migrate(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	version, err := db.schemaVersion(ctx)
	if err != nil {
		return err
	}

	switch {
	case version == 0:
		return db.initializeSchema(ctx)
	case version == currentSchemaVersion:
		db.logger.Debug("Database schema is up to date", "version", version)
		return nil
	case version > currentSchemaVersion:
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	db.logger.Info("Running database migrations",
		"from_version", version,
		"to_version", currentSchemaVersion,
	)
	// Add migration steps here as the schema evolves:
	// if version < 2 { ... }
	return nil
}

func (db *DB) schemaVersion(ctx context.Context) (int, error) {
	var version int
	err := db.conn.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

func (db *DB) initializeSchema(ctx context.Context) error {
	d := db.dialect
	statements := []string{
		`CREATE TABLE IF NOT EXISTS page_object (
			id ` + d.autoID() + `,
			name TEXT NOT NULL UNIQUE,
			file_path TEXT NOT NULL DEFAULT '',
			framework TEXT NOT NULL DEFAULT '',
			package TEXT NOT NULL DEFAULT '',
			base_class TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS test_case (
			id ` + d.autoID() + `,
			test_id TEXT NOT NULL UNIQUE,
			file_path TEXT NOT NULL DEFAULT '',
			framework TEXT NOT NULL DEFAULT '',
			class_name TEXT NOT NULL DEFAULT '',
			method_name TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS test_page_mapping (
			id ` + d.autoID() + `,
			test_case_id BIGINT NOT NULL REFERENCES test_case(id) ON DELETE CASCADE,
			page_object_id BIGINT NOT NULL REFERENCES page_object(id) ON DELETE CASCADE,
			source TEXT NOT NULL,
			confidence ` + d.float() + ` NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
			observed_at TEXT NOT NULL,
			usage_type TEXT NOT NULL DEFAULT '',
			line_number INTEGER,
			UNIQUE (test_case_id, page_object_id, source)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_test_page_mapping_page ON test_page_mapping(page_object_id)`,
		`CREATE TABLE IF NOT EXISTS step_mapping_record (
			run_id TEXT NOT NULL,
			test_id TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			payload ` + d.blob() + ` NOT NULL,
			PRIMARY KEY (run_id, test_id)
		)`,
	}

	return db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to create schema: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, db.q(`INSERT INTO schema_version (version) VALUES (?)`), currentSchemaVersion); err != nil {
			return fmt.Errorf("failed to set schema version: %w", err)
		}
		db.logger.Info("Database schema initialized", "version", currentSchemaVersion, "location", db.location)
		return nil
	})
}
