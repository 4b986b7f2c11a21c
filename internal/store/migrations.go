package store

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// CurrentSchemaVersion is bumped whenever leadsSchema or pendingMigrations change.
// v1: leads table
// v2: dedupe_key and created_at indexes
const CurrentSchemaVersion = 2

// Dates are kept as ISO text (YYYY-MM-DD) and created_at as RFC 3339 text so
// the driver hands them back verbatim.
const leadsSchema = `
CREATE TABLE IF NOT EXISTS leads (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	first_name TEXT,
	email TEXT,
	phone TEXT,
	company TEXT,
	roles_advertised TEXT,
	sector TEXT,
	employment_type TEXT,
	date_posted TEXT,
	entry_date TEXT,
	salary_info TEXT,
	location TEXT,
	ad_url TEXT,
	skip TEXT,
	skip_reason TEXT,
	source_subject TEXT,
	dedupe_key TEXT,
	duplicate_flag BOOLEAN NOT NULL DEFAULT FALSE,
	priority INTEGER NOT NULL DEFAULT 0,
	qualified BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);
`

const leadsIndexes = `
CREATE INDEX IF NOT EXISTS idx_leads_dedupe_key ON leads(dedupe_key);
CREATE INDEX IF NOT EXISTS idx_leads_created_at ON leads(created_at);
`

// Migration adds a column to an existing table.
type Migration struct {
	Table  string
	Column string
	Def    string
}

// pendingMigrations handles databases created before a column existed.
var pendingMigrations = []Migration{
	{"leads", "source_subject", "TEXT"},
	{"leads", "skip", "TEXT"},
	{"leads", "sector", "TEXT"},
	{"leads", "employment_type", "TEXT"},
}

// RunMigrations creates the schema and applies column migrations. It is
// idempotent.
func RunMigrations(db *sql.DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := db.Exec(leadsSchema); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}

	applied := 0
	for _, m := range pendingMigrations {
		if !tableExists(db, m.Table) || columnExists(db, m.Table, m.Column) {
			continue
		}
		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("migrate %s.%s: %w", m.Table, m.Column, err)
		}
		logger.Info("migration applied", zap.String("table", m.Table), zap.String("column", m.Column))
		applied++
	}

	if _, err := db.Exec(leadsIndexes); err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	if err := SetSchemaVersion(db, CurrentSchemaVersion); err != nil {
		return err
	}
	logger.Debug("schema migrations complete", zap.Int("applied", applied))
	return nil
}

// columnExists checks if a column exists in a table using PRAGMA table_info.
func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid, notnull, pk int
		var name, ctype string
		var dflt any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}

// tableExists checks if a table exists in the database.
func tableExists(db *sql.DB, table string) bool {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
	return err == nil && count > 0
}

// GetSchemaVersion returns the recorded schema version, or 0.
func GetSchemaVersion(db *sql.DB) int {
	var v int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&v); err != nil {
		return 0
	}
	return v
}

// SetSchemaVersion records version as the current schema version.
func SetSchemaVersion(db *sql.DB, version int) error {
	if GetSchemaVersion(db) == version {
		return nil
	}
	if _, err := db.Exec("DELETE FROM schema_version"); err != nil {
		return fmt.Errorf("clear schema version: %w", err)
	}
	if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return nil
}
