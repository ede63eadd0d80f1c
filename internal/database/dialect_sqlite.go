package database

import (
	"fmt"
	"time"

	"github.com/cdtdelta/easlog/internal/model"
)

// SQLiteDialect implements the Dialect interface for SQLite databases.
// It also satisfies query.QueryDialect through structural typing.
type SQLiteDialect struct{}

func (d *SQLiteDialect) DriverName() string             { return "sqlite" }
func (d *SQLiteDialect) DSN(pathOrConnStr string) string { return pathOrConnStr }
func (d *SQLiteDialect) Placeholder(index int) string    { return "?" }
func (d *SQLiteDialect) IDColumn() string                { return "rowid" }
func (d *SQLiteDialect) QuoteColumn(name string) string  { return name }
func (d *SQLiteDialect) TextArg(s string) any            { return s }

// Times are stored as TEXT in model.TimeLayout, which sorts chronologically.
func (d *SQLiteDialect) TimeArg(t time.Time) any {
	return t.UTC().Format(model.TimeLayout)
}

func (d *SQLiteDialect) TimeBetweenSQL(paramIdx1, paramIdx2 int) string {
	return "(requested_at BETWEEN ? AND ?)"
}

func (d *SQLiteDialect) TimeFormatSQL(column, format string) string {
	return fmt.Sprintf("strftime('%s', %s)", format, column)
}

func (d *SQLiteDialect) CreateEntriesTableSQL() string {
	return `CREATE TABLE IF NOT EXISTS eas_entries (
		device_id TEXT NOT NULL, requested_at TEXT NOT NULL,
		source TEXT, entry_number INT, body TEXT, run_id TEXT
	)`
}

func (d *SQLiteDialect) CreateDevicesTableSQL() string {
	return `CREATE TABLE IF NOT EXISTS eas_devices (
		device_id TEXT, frequency INT, first_seen TEXT, last_seen TEXT
	)`
}

func (d *SQLiteDialect) CreateRunsTableSQL() string {
	return `CREATE TABLE IF NOT EXISTS eas_runs (
		run_id TEXT PRIMARY KEY, started_at TEXT, files INT, failed INT, entries INT
	)`
}

func (d *SQLiteDialect) CreateIndexSQL(indexName, tableName, column string) string {
	return fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s ON %s (%s)", indexName, tableName, column)
}

func (d *SQLiteDialect) InsertEntrySQL() string {
	return `INSERT INTO eas_entries (
		device_id, requested_at, source, entry_number, body, run_id
	) VALUES (?, ?, ?, ?, ?, ?)`
}

func (d *SQLiteDialect) InsertRunSQL() string {
	return `INSERT INTO eas_runs (run_id, started_at, files, failed, entries) VALUES (?, ?, ?, ?, ?)`
}
