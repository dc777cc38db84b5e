package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/adamscao/certlink/internal/models"
)

// SchemaVersion is the version written by a fresh initialization
const SchemaVersion = 2

// RunMigrations executes all database migrations
func RunMigrations(db *DB) error {
	// Check if schema_version table exists
	var tableExists bool
	err := db.QueryRow(`
		SELECT COUNT(*) > 0
		FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("failed to check schema_version table: %w", err)
	}

	if !tableExists {
		// First time initialization
		if err := initializeSchema(db); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
		return nil
	}

	currentVersion, err := CurrentVersion(db)
	if err != nil {
		return err
	}

	if currentVersion < 1 || currentVersion > SchemaVersion {
		return fmt.Errorf("invalid schema version: %d", currentVersion)
	}

	if currentVersion < 2 {
		if err := migrateToV2(db); err != nil {
			return fmt.Errorf("failed to migrate to version 2: %w", err)
		}
	}

	return nil
}

// CurrentVersion returns the most recently applied schema version
func CurrentVersion(db *DB) (int, error) {
	var version int
	err := db.QueryRow(`
		SELECT version FROM schema_version
		ORDER BY version DESC LIMIT 1
	`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get current schema version: %w", err)
	}
	return version, nil
}

// initializeSchema creates all tables for a new database
func initializeSchema(db *DB) error {
	tx, err := db.BeginTx(context.Background())
	if err != nil {
		return err
	}
	defer tx.Rollback()

	statements := []string{
		schemaVersionTable,
		certificatesTable,
		certificatesIndexes,
		auditLogsTable,
		auditLogsIndexes,
		fmt.Sprintf(`INSERT INTO schema_version (version) VALUES (%d)`, SchemaVersion),
	}
	for _, stmt := range statements {
		if err := execSQL(tx, stmt); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// migrateToV2 adds the lookup key columns. Keys are computed in Go so
// that they fold case and whitespace the same way models.NormalizeID does,
// which SQLite's LOWER and TRIM do not for non-ASCII text or tabs.
func migrateToV2(db *DB) error {
	tx, err := db.BeginTx(context.Background())
	if err != nil {
		return err
	}
	defer tx.Rollback()

	statements := []string{
		`DROP INDEX IF EXISTS idx_certs_certificate_id`,
		`DROP INDEX IF EXISTS idx_certs_registry_id`,
		`ALTER TABLE certificates ADD COLUMN registry_key TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE certificates ADD COLUMN certificate_key TEXT NOT NULL DEFAULT ''`,
	}
	for _, stmt := range statements {
		if err := execSQL(tx, stmt); err != nil {
			return err
		}
	}

	if err := backfillLookupKeys(tx); err != nil {
		return err
	}

	for _, stmt := range []string{
		certificatesKeyIndexes,
		`INSERT INTO schema_version (version) VALUES (2)`,
	} {
		if err := execSQL(tx, stmt); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func backfillLookupKeys(tx *sql.Tx) error {
	type row struct {
		id                        int64
		registryID, certificateID string
	}

	rows, err := tx.Query(`SELECT id, registry_id, certificate_id FROM certificates`)
	if err != nil {
		return err
	}
	var pending []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.registryID, &r.certificateID); err != nil {
			rows.Close()
			return err
		}
		pending = append(pending, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, r := range pending {
		_, err := tx.Exec(
			`UPDATE certificates SET registry_key = ?, certificate_key = ? WHERE id = ?`,
			models.NormalizeID(r.registryID), models.NormalizeID(r.certificateID), r.id,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// execSQL executes a SQL statement
func execSQL(tx *sql.Tx, query string) error {
	_, err := tx.Exec(query)
	return err
}

// Schema definitions
const (
	schemaVersionTable = `
CREATE TABLE schema_version (
    version INTEGER NOT NULL,
    applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

	certificatesTable = `
CREATE TABLE certificates (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    registry_id     TEXT NOT NULL DEFAULT '',
    certificate_id  TEXT NOT NULL DEFAULT '',
    full_name       TEXT NOT NULL DEFAULT '',
    course_name     TEXT NOT NULL DEFAULT '',
    completion_date TEXT NOT NULL DEFAULT '',
    issuer          TEXT NOT NULL DEFAULT '',
    token           TEXT NOT NULL DEFAULT '',
    issued_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    registry_key    TEXT NOT NULL DEFAULT '',
    certificate_key TEXT NOT NULL DEFAULT ''
)`

	certificatesIndexes = certificatesKeyIndexes + `;
CREATE INDEX idx_certs_issued_at ON certificates(issued_at)`

	certificatesKeyIndexes = `
CREATE INDEX idx_certs_registry_key ON certificates(registry_key);
CREATE INDEX idx_certs_certificate_key ON certificates(certificate_key)`

	auditLogsTable = `
CREATE TABLE audit_logs (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    action         TEXT NOT NULL,
    certificate_id TEXT,
    client_ip      TEXT NOT NULL,
    user_agent     TEXT,
    success        INTEGER NOT NULL,
    error_kind     TEXT,
    error_msg      TEXT,
    details        TEXT
)`

	auditLogsIndexes = `
CREATE INDEX idx_audit_timestamp ON audit_logs(timestamp);
CREATE INDEX idx_audit_action ON audit_logs(action);
CREATE INDEX idx_audit_certificate_id ON audit_logs(certificate_id);
CREATE INDEX idx_audit_success ON audit_logs(success)`
)
