package database

import (
	"fmt"
	"strings"
	"time"
)

// strftimeToPostgres maps the strftime formats used by GetTimelineHistogram
// to their PostgreSQL to_char equivalents.
var strftimeToPostgres = map[string]string{
	"%Y-%m-%d %H:00:00": "YYYY-MM-DD HH24:00:00",
	"%Y-%m-%d":          "YYYY-MM-DD",
	"%Y-%m":             "YYYY-MM",
}

// PostgresDialect implements the Dialect interface for PostgreSQL databases.
// It also satisfies query.QueryDialect through structural typing.
type PostgresDialect struct{}

func (d *PostgresDialect) DriverName() string             { return "pgx" }
func (d *PostgresDialect) DSN(pathOrConnStr string) string { return pathOrConnStr }
func (d *PostgresDialect) Placeholder(index int) string    { return fmt.Sprintf("$%d", index) }
func (d *PostgresDialect) IDColumn() string                { return "id" }
func (d *PostgresDialect) QuoteColumn(name string) string  { return name }
func (d *PostgresDialect) TimeArg(t time.Time) any         { return t.UTC() }

// TextArg strips null bytes, which PostgreSQL rejects in TEXT columns with
// "invalid byte sequence for encoding UTF8".
func (d *PostgresDialect) TextArg(s string) any {
	if strings.ContainsRune(s, '\x00') {
		return strings.ReplaceAll(s, "\x00", "")
	}
	return s
}

func (d *PostgresDialect) TimeBetweenSQL(paramIdx1, paramIdx2 int) string {
	return fmt.Sprintf("(requested_at BETWEEN %s AND %s)",
		d.Placeholder(paramIdx1), d.Placeholder(paramIdx2))
}

func (d *PostgresDialect) TimeFormatSQL(column, format string) string {
	pgFmt, ok := strftimeToPostgres[format]
	if !ok {
		pgFmt = format
	}
	return fmt.Sprintf("to_char(%s, '%s')", column, pgFmt)
}

func (d *PostgresDialect) CreateEntriesTableSQL() string {
	return `CREATE TABLE IF NOT EXISTS eas_entries (
		id SERIAL PRIMARY KEY,
		device_id TEXT NOT NULL, requested_at TIMESTAMP NOT NULL,
		source TEXT, entry_number BIGINT, body TEXT, run_id TEXT
	)`
}

func (d *PostgresDialect) CreateDevicesTableSQL() string {
	return `CREATE TABLE IF NOT EXISTS eas_devices (
		device_id TEXT, frequency INT, first_seen TIMESTAMP, last_seen TIMESTAMP
	)`
}

func (d *PostgresDialect) CreateRunsTableSQL() string {
	return `CREATE TABLE IF NOT EXISTS eas_runs (
		run_id TEXT PRIMARY KEY, started_at TIMESTAMP, files INT, failed INT, entries INT
	)`
}

func (d *PostgresDialect) CreateIndexSQL(indexName, tableName, column string) string {
	return fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s ON %s (%s)", indexName, tableName, column)
}

func (d *PostgresDialect) InsertEntrySQL() string {
	return `INSERT INTO eas_entries (
		device_id, requested_at, source, entry_number, body, run_id
	) VALUES ($1, $2, $3, $4, $5, $6)`
}

func (d *PostgresDialect) InsertRunSQL() string {
	return `INSERT INTO eas_runs (run_id, started_at, files, failed, entries) VALUES ($1, $2, $3, $4, $5)`
}
