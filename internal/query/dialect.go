package query

import (
	"time"

	"github.com/cdtdelta/easlog/internal/model"
)

// QueryDialect abstracts SQL syntax differences needed for query building.
// database.SQLiteDialect and database.PostgresDialect both satisfy it.
type QueryDialect interface {
	// Placeholder returns the parameter placeholder for the given 1-based index.
	// SQLite returns "?" (ignoring the index), PostgreSQL returns "$1", "$2", etc.
	Placeholder(index int) string

	// IDColumn returns the name of the row identifier column.
	IDColumn() string

	// TimeBetweenSQL returns the SQL fragment for a request time range filter.
	TimeBetweenSQL(paramIdx1, paramIdx2 int) string

	// TimeArg converts a time to the value bound for requested_at.
	TimeArg(t time.Time) any

	QuoteColumn(name string) string
}

type sqliteQueryDialect struct{}

func (sqliteQueryDialect) Placeholder(int) string         { return "?" }
func (sqliteQueryDialect) IDColumn() string               { return "rowid" }
func (sqliteQueryDialect) QuoteColumn(name string) string { return name }
func (sqliteQueryDialect) TimeArg(t time.Time) any        { return t.UTC().Format(model.TimeLayout) }

func (sqliteQueryDialect) TimeBetweenSQL(int, int) string {
	return "(requested_at BETWEEN ? AND ?)"
}

// DefaultDialect is the query dialect used when none is explicitly set.
// It produces SQLite-compatible SQL.
var DefaultDialect QueryDialect = sqliteQueryDialect{}
