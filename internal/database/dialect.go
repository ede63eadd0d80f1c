package database

import "time"

// Dialect abstracts all database-specific SQL generation.
// Each database backend (SQLite, PostgreSQL) implements this interface.
// The Placeholder, IDColumn, QuoteColumn, TimeBetweenSQL and TimeArg methods
// match the query.QueryDialect interface through Go structural typing, so a Dialect can
// also serve as a QueryDialect.
type Dialect interface {
	// DriverName returns the database/sql driver name (e.g. "sqlite", "pgx").
	DriverName() string

	// DSN returns the data source name for opening a connection.
	DSN(pathOrConnStr string) string

	// Placeholder returns the parameter placeholder for the given 1-based index.
	// SQLite: "?" (ignoring index), PostgreSQL: "$1", "$2", etc.
	Placeholder(index int) string

	// IDColumn returns the row identifier column name.
	// SQLite: "rowid" (implicit), PostgreSQL: "id" (explicit serial).
	IDColumn() string

	// QuoteColumn returns the column name quoted appropriately for the dialect.
	QuoteColumn(name string) string

	// TimeBetweenSQL returns the SQL fragment for a requested_at range filter.
	TimeBetweenSQL(paramIdx1, paramIdx2 int) string

	// TimeFormatSQL returns a SQL expression that formats/truncates a time column.
	// format is a strftime pattern.
	TimeFormatSQL(column, format string) string

	// TimeArg converts a timestamp into the value bound for a time column.
	TimeArg(t time.Time) any

	// TextArg converts free text into a value the backend accepts.
	TextArg(s string) any

	// CreateEntriesTableSQL returns the DDL for the eas_entries table.
	CreateEntriesTableSQL() string

	// CreateDevicesTableSQL returns the DDL for the eas_devices metadata table.
	CreateDevicesTableSQL() string

	// CreateRunsTableSQL returns the DDL for the eas_runs table.
	CreateRunsTableSQL() string

	// CreateIndexSQL returns DDL to create an index on a table column.
	CreateIndexSQL(indexName, tableName, column string) string

	// InsertEntrySQL returns the parameterized INSERT for one entry (6 columns).
	InsertEntrySQL() string

	// InsertRunSQL returns the parameterized INSERT for one run (5 columns).
	InsertRunSQL() string
}
