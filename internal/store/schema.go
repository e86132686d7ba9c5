package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SchemaVersion is the current schema version.
const SchemaVersion = 1

// schemaV1 is the initial schema. Every network row belongs to a run.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    model TEXT NOT NULL,
    seed INTEGER NOT NULL,
    started_at TEXT NOT NULL,
    finished_at TEXT,
    sim_time REAL NOT NULL DEFAULT 0,
    volume REAL NOT NULL,
    fired INTEGER NOT NULL DEFAULT 0,
    outcome TEXT NOT NULL  -- 'stopped', 'timeout', 'exhausted', 'error'
);

CREATE TABLE IF NOT EXISTS families (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    id INTEGER NOT NULL,
    paradigm TEXT NOT NULL,
    mols TEXT NOT NULL,  -- JSON array of mol names
    members INTEGER NOT NULL,
    PRIMARY KEY (run_id, id)
);

CREATE TABLE IF NOT EXISTS species (
    run_id TEXT NOT NULL,
    tag TEXT NOT NULL,
    family INTEGER NOT NULL,
    name TEXT NOT NULL,
    states TEXT NOT NULL,  -- JSON array of mol states
    weight REAL NOT NULL,
    population INTEGER NOT NULL,
    depth INTEGER NOT NULL,
    expansion TEXT NOT NULL,
    PRIMARY KEY (run_id, tag),
    FOREIGN KEY (run_id, family) REFERENCES families(run_id, id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_species_population ON species(run_id, population);

CREATE TABLE IF NOT EXISTS reactions (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    tag TEXT NOT NULL,
    generator TEXT NOT NULL,
    rate REAL NOT NULL,
    PRIMARY KEY (run_id, tag)
);
CREATE INDEX IF NOT EXISTS idx_reactions_generator ON reactions(run_id, generator);

CREATE TABLE IF NOT EXISTS reaction_terms (
    run_id TEXT NOT NULL,
    reaction TEXT NOT NULL,
    role TEXT NOT NULL,  -- 'reactant', 'product'
    position INTEGER NOT NULL,
    species TEXT NOT NULL,
    mult INTEGER NOT NULL,
    PRIMARY KEY (run_id, reaction, role, position),
    FOREIGN KEY (run_id, reaction) REFERENCES reactions(run_id, tag) ON DELETE CASCADE,
    FOREIGN KEY (run_id, species) REFERENCES species(run_id, tag) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_terms_species ON reaction_terms(run_id, species);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

// InitSchema creates the schema on a fresh database and checks the
// integrity of an existing one.
func InitSchema(ctx context.Context, db *sql.DB) error {
	currentVersion, err := getSchemaVersion(ctx, db)
	if err != nil {
		// No schema_version table yet.
		if err := createSchema(ctx, db); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
		return nil
	}

	if err := ValidateIntegrity(ctx, db); err != nil {
		return fmt.Errorf("database integrity check failed: %w", err)
	}
	if currentVersion > SchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d",
			currentVersion, SchemaVersion)
	}
	return nil
}

// getSchemaVersion returns the current schema version. It fails when the
// schema_version table does not exist.
func getSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

func createSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schemaV1); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`,
		SchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return tx.Commit()
}

// ValidateIntegrity runs PRAGMA integrity_check and PRAGMA
// foreign_key_check and reports the first problem found.
func ValidateIntegrity(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, `PRAGMA integrity_check`)
	if err != nil {
		return fmt.Errorf("failed to run integrity_check: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var result string
		if err := rows.Scan(&result); err != nil {
			return fmt.Errorf("failed to scan integrity_check result: %w", err)
		}
		if result != "ok" {
			return fmt.Errorf("integrity_check failed: %s", result)
		}
	}

	fkRows, err := db.QueryContext(ctx, `PRAGMA foreign_key_check`)
	if err != nil {
		return fmt.Errorf("failed to run foreign_key_check: %w", err)
	}
	defer fkRows.Close()

	var fkErrors []string
	for fkRows.Next() {
		var table, parent string
		var rowid, fkid sql.NullInt64
		if err := fkRows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			return fmt.Errorf("failed to scan foreign_key_check result: %w", err)
		}
		fkErrors = append(fkErrors, fmt.Sprintf("table=%s rowid=%d parent=%s fkid=%d",
			table, rowid.Int64, parent, fkid.Int64))
	}
	if len(fkErrors) > 0 {
		return fmt.Errorf("foreign_key_check failed: %v", fkErrors)
	}
	return nil
}
