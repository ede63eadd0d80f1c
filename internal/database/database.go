package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cdtdelta/easlog/internal/model"

	_ "modernc.org/sqlite"
)

// Default fields to index when creating a new database.
var DefaultIndexFields = []string{"device_id", "requested_at", "source", "run_id"}

// sqlStore holds the SQL shared by every backend. Backend differences live
// in the Dialect.
type sqlStore struct {
	path    string
	conn    *sql.DB
	dialect Dialect
}

// SQLiteStore manages all SQLite operations for an easlog database.
// It implements the Store interface.
type SQLiteStore struct {
	*sqlStore
}

// OpenSQLite opens an existing easlog SQLite database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	s, err := openStore(&SQLiteDialect{}, path)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{s}, nil
}

// CreateSQLite creates (or reuses) an easlog SQLite database with the full schema.
// indexFields specifies which columns to index. Pass nil to use DefaultIndexFields.
func CreateSQLite(path string, indexFields []string) (*SQLiteStore, error) {
	s, err := createStore(&SQLiteDialect{}, path, indexFields)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{s}, nil
}

func openStore(d Dialect, path string) (*sqlStore, error) {
	conn, err := sql.Open(d.DriverName(), d.DSN(path))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Verify the connection works
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &sqlStore{path: path, conn: conn, dialect: d}, nil
}

func createStore(d Dialect, path string, indexFields []string) (*sqlStore, error) {
	conn, err := sql.Open(d.DriverName(), d.DSN(path))
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	db := &sqlStore{path: path, conn: conn, dialect: d}

	if err := db.createSchema(indexFields); err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *sqlStore) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Path returns the file path or connection string of the database.
func (db *sqlStore) Path() string {
	return db.path
}

func (db *sqlStore) Dialect() Dialect {
	return db.dialect
}

// createSchema builds all tables and indexes.
func (db *sqlStore) createSchema(indexFields []string) error {
	if indexFields == nil {
		indexFields = DefaultIndexFields
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err = tx.Exec(db.dialect.CreateEntriesTableSQL()); err != nil {
		return fmt.Errorf("creating eas_entries table: %w", err)
	}
	if _, err = tx.Exec(db.dialect.CreateDevicesTableSQL()); err != nil {
		return fmt.Errorf("creating eas_devices table: %w", err)
	}
	if _, err = tx.Exec(db.dialect.CreateRunsTableSQL()); err != nil {
		return fmt.Errorf("creating eas_runs table: %w", err)
	}

	for _, field := range indexFields {
		if !isValidField(field) {
			return fmt.Errorf("invalid index field: %s", field)
		}
		_, err = tx.Exec(db.dialect.CreateIndexSQL("eas_"+field+"_idx", "eas_entries", field))
		if err != nil {
			return fmt.Errorf("creating index on %s: %w", field, err)
		}
	}

	return tx.Commit()
}

// InsertIndex inserts every entry of idx inside a single transaction,
// tagged with runID. The onProgress callback is called every 10,000 entries
// with the current count. Pass nil for onProgress if you don't need progress updates.
func (db *sqlStore) InsertIndex(runID string, idx *model.Index, onProgress func(count int)) (int, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(db.dialect.InsertEntrySQL())
	if err != nil {
		return 0, fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	err = idx.Walk(func(e model.Entry) error {
		_, err := stmt.Exec(
			db.dialect.TextArg(e.DeviceID),
			db.dialect.TimeArg(e.Time),
			db.dialect.TextArg(e.Source),
			e.Number,
			db.dialect.TextArg(e.Text),
			runID,
		)
		if err != nil {
			return fmt.Errorf("inserting entry %d: %w", inserted+1, err)
		}
		inserted++
		if onProgress != nil && inserted%10000 == 0 {
			onProgress(inserted)
		}
		return nil
	})
	if err != nil {
		return inserted, err
	}

	if err := tx.Commit(); err != nil {
		return inserted, fmt.Errorf("committing transaction: %w", err)
	}

	return inserted, nil
}

// RecordRun stores the summary of one parse run.
func (db *sqlStore) RecordRun(r Run) error {
	_, err := db.conn.Exec(db.dialect.InsertRunSQL(),
		r.ID, db.dialect.TimeArg(r.StartedAt), r.Files, r.Failed, r.Entries)
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

// UpdateMetadata rebuilds eas_devices from the entries table.
func (db *sqlStore) UpdateMetadata() error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err = tx.Exec("DELETE FROM eas_devices"); err != nil {
		return fmt.Errorf("clearing eas_devices: %w", err)
	}

	_, err = tx.Exec(
		"INSERT INTO eas_devices (device_id, frequency, first_seen, last_seen) " +
			"SELECT device_id, COUNT(*), MIN(requested_at), MAX(requested_at) " +
			"FROM eas_entries WHERE device_id <> '' GROUP BY device_id")
	if err != nil {
		return fmt.Errorf("populating eas_devices: %w", err)
	}

	return tx.Commit()
}

// QueryEntries runs a SELECT over eas_entries and returns the matching entries.
// whereClause and orderBy are optional SQL fragments.
func (db *sqlStore) QueryEntries(whereClause string, args []any, orderBy string, limit, offset int) ([]model.Entry, error) {
	query := "SELECT " + db.dialect.IDColumn() + ", " + strings.Join(model.Columns, ", ") + " FROM eas_entries"

	if whereClause != "" {
		query += " WHERE " + whereClause
	}

	if orderBy != "" {
		query += " ORDER BY " + orderBy
	}

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
		if offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", offset)
		}
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// CountEntries returns the total number of entries, optionally filtered by a WHERE clause.
func (db *sqlStore) CountEntries(whereClause string, args []any) (int64, error) {
	query := "SELECT COUNT(*) FROM eas_entries"
	if whereClause != "" {
		query += " WHERE " + whereClause
	}

	var count int64
	err := db.conn.QueryRow(query, args...).Scan(&count)
	return count, err
}

// ExecuteQuery runs a pre-built SQL SELECT whose select list is the id
// column followed by model.Columns, as produced by query.Build.
func (db *sqlStore) ExecuteQuery(sqlStr string, args []any) ([]model.Entry, error) {
	rows, err := db.conn.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ExecuteCountQuery runs a pre-built COUNT query and returns the result.
func (db *sqlStore) ExecuteCountQuery(sqlStr string, args []any) (int64, error) {
	var count int64
	err := db.conn.QueryRow(sqlStr, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("executing count query: %w", err)
	}
	return count, nil
}

// ListDevices returns the eas_devices rows in device order.
func (db *sqlStore) ListDevices() ([]DeviceSummary, error) {
	rows, err := db.conn.Query(
		"SELECT device_id, frequency, first_seen, last_seen FROM eas_devices ORDER BY device_id")
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	devices := []DeviceSummary{}
	for rows.Next() {
		var d DeviceSummary
		if err := rows.Scan(&d.DeviceID, &d.Frequency, timeScanner{&d.FirstSeen}, timeScanner{&d.LastSeen}); err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// ListRuns returns the recorded runs, oldest first.
func (db *sqlStore) ListRuns() ([]Run, error) {
	rows, err := db.conn.Query(
		"SELECT run_id, started_at, files, failed, entries FROM eas_runs ORDER BY started_at")
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, timeScanner{&r.StartedAt}, &r.Files, &r.Failed, &r.Entries); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetMinMaxTime returns the earliest and latest request times in the database.
// Both are zero when the database holds no entries.
func (db *sqlStore) GetMinMaxTime() (minTime, maxTime time.Time, err error) {
	err = db.conn.QueryRow(
		"SELECT MIN(requested_at), MAX(requested_at) FROM eas_entries",
	).Scan(timeScanner{&minTime}, timeScanner{&maxTime})
	return
}

// GetTimelineHistogram returns entry counts bucketed by time interval.
// whereClause should include the "WHERE" keyword if non-empty.
// whereArgs are the parameter values for any placeholders in the clause.
// The bucket size is chosen from the span of the filtered entries.
func (db *sqlStore) GetTimelineHistogram(whereClause string, whereArgs []any) ([]TimelineBucket, error) {
	rangeSQL := "SELECT MIN(requested_at), MAX(requested_at) FROM eas_entries"
	if whereClause != "" {
		rangeSQL += " " + whereClause
	}

	var minTime, maxTime time.Time
	if err := db.conn.QueryRow(rangeSQL, whereArgs...).Scan(timeScanner{&minTime}, timeScanner{&maxTime}); err != nil {
		return nil, fmt.Errorf("getting time range: %w", err)
	}

	if minTime.IsZero() || maxTime.IsZero() {
		return []TimelineBucket{}, nil
	}

	bucketExpr := db.dialect.TimeFormatSQL("requested_at", bucketFormat(minTime, maxTime))
	histSQL := "SELECT " + bucketExpr + " as bucket, COUNT(*) as cnt FROM eas_entries"
	if whereClause != "" {
		histSQL += " " + whereClause
	}
	histSQL += " GROUP BY bucket ORDER BY bucket"

	rows, err := db.conn.Query(histSQL, whereArgs...)
	if err != nil {
		return nil, fmt.Errorf("histogram query: %w", err)
	}
	defer rows.Close()

	buckets := []TimelineBucket{}
	for rows.Next() {
		var b TimelineBucket
		if err := rows.Scan(&b.Timestamp, &b.Count); err != nil {
			return nil, fmt.Errorf("scanning bucket: %w", err)
		}
		buckets = append(buckets, b)
	}

	return buckets, rows.Err()
}

// bucketFormat picks hourly buckets within a day, daily buckets within a
// year and monthly buckets beyond that.
func bucketFormat(minTime, maxTime time.Time) string {
	switch {
	case minTime.Format("2006-01-02") == maxTime.Format("2006-01-02"):
		return "%Y-%m-%d %H:00:00"
	case minTime.Year() != maxTime.Year():
		return "%Y-%m"
	default:
		return "%Y-%m-%d"
	}
}

// scanEntries scans rows in id + model.Columns order.
func scanEntries(rows *sql.Rows) ([]model.Entry, error) {
	var entries []model.Entry
	for rows.Next() {
		var e model.Entry
		var source, body, runID sql.NullString
		err := rows.Scan(
			&e.ID, &e.DeviceID, timeScanner{&e.Time}, &source,
			&e.Number, &body, &runID,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning entry row: %w", err)
		}
		e.Source, e.Text, e.RunID = source.String, body.String, runID.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// timeScanner reads a time column stored either natively or as text.
type timeScanner struct{ t *time.Time }

func (s timeScanner) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s.t = time.Time{}
		return nil
	case time.Time:
		*s.t = v.UTC()
		return nil
	case []byte:
		return s.parse(string(v))
	case string:
		return s.parse(v)
	default:
		return fmt.Errorf("cannot scan %T into a time", src)
	}
}

func (s timeScanner) parse(v string) error {
	for _, layout := range []string{model.TimeLayout, time.RFC3339Nano} {
		if t, err := time.Parse(layout, v); err == nil {
			*s.t = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognized time value %q", v)
}

// isValidField checks that a field name is one of the eas_entries columns.
// This prevents SQL injection when field names are interpolated into queries.
func isValidField(name string) bool {
	for _, f := range model.Columns {
		if f == name {
			return true
		}
	}
	return false
}
