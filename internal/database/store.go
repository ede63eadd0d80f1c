package database

import (
	"time"

	"github.com/cdtdelta/easlog/internal/model"
)

// TimelineBucket represents a single histogram bucket with a timestamp label and entry count.
type TimelineBucket struct {
	Timestamp string `json:"timestamp"`
	Count     int64  `json:"count"`
}

// DeviceSummary is one row of the eas_devices metadata table.
type DeviceSummary struct {
	DeviceID  string    `json:"device_id"`
	Frequency int64     `json:"frequency"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Run records one parse invocation that wrote to the database.
type Run struct {
	ID        string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Files     int       `json:"files"`
	Failed    int       `json:"failed"`
	Entries   int       `json:"entries"`
}

// Store defines the interface for all database operations.
// The parse command writes through it and the viewer reads through it,
// so neither depends on a concrete database type.
type Store interface {
	// Writing
	InsertIndex(runID string, idx *model.Index, onProgress func(int)) (int, error)
	RecordRun(r Run) error
	UpdateMetadata() error

	// Entry queries
	QueryEntries(where string, args []any, orderBy string, limit, offset int) ([]model.Entry, error)
	CountEntries(where string, args []any) (int64, error)

	// Query execution for pre-built SQL (from query.Build).
	// The scan order is the id column followed by model.Columns.
	ExecuteQuery(sql string, args []any) ([]model.Entry, error)
	ExecuteCountQuery(sql string, args []any) (int64, error)

	// Metadata
	ListDevices() ([]DeviceSummary, error)
	ListRuns() ([]Run, error)
	GetMinMaxTime() (time.Time, time.Time, error)
	GetTimelineHistogram(whereClause string, whereArgs []any) ([]TimelineBucket, error)

	// Dialect returns the SQL dialect, for building queries.
	Dialect() Dialect

	// Lifecycle
	Close() error
	Path() string
}
