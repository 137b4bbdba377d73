// Package storage persists timelines and the activity pool in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("storage: not found")

// DB wraps the SQLite database connection
type DB struct {
	conn     *sql.DB
	path     string
	isMemory bool
}

// Config for database initialization
type Config struct {
	Path     string // Path to database file
	InMemory bool   // Use in-memory database (for testing)
}

// Open opens or creates a SQLite database
func Open(cfg Config) (*DB, error) {
	var dsn string

	if cfg.InMemory || cfg.Path == ":memory:" {
		// One connection keeps the private in-memory database alive.
		dsn = ":memory:"
		cfg.InMemory = true
	} else {
		dir := filepath.Dir(cfg.Path)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
		dsn = cfg.Path
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite doesn't handle concurrent writes well
	conn.SetMaxOpenConns(1)

	if !cfg.InMemory {
		if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &DB{
		conn:     conn,
		path:     cfg.Path,
		isMemory: cfg.InMemory,
	}, nil
}

// OpenAndMigrate opens the database and applies pending migrations.
func OpenAndMigrate(cfg Config) (*DB, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying sql.DB for direct access
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Transaction executes fn within a transaction, rolling back on error.
func (db *DB) Transaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}
