package database

import (
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore manages all PostgreSQL operations for an easlog database.
// It implements the Store interface.
type PostgresStore struct {
	*sqlStore
}

// OpenPostgres opens an existing easlog PostgreSQL database.
func OpenPostgres(connStr string) (*PostgresStore, error) {
	s, err := openStore(&PostgresDialect{}, connStr)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{s}, nil
}

// CreatePostgres creates the easlog schema on a PostgreSQL database.
// The database itself must already exist; this creates the tables and indexes.
func CreatePostgres(connStr string, indexFields []string) (*PostgresStore, error) {
	s, err := createStore(&PostgresDialect{}, connStr, indexFields)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{s}, nil
}
