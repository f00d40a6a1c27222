// Package storage persists impact facts and mapping records in a relational
// database. SQLite (modernc, pure Go) is the default; PostgreSQL is reached
// through pgx's database/sql driver. Both share one schema.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "modernc.org/sqlite"             // Pure Go SQLite driver

	"crossbridge/internal/slogutil"
)

// Options selects and configures the database
type Options struct {
	Driver      Driver
	Path        string // sqlite file
	URL         string // postgres connection string
	PingTimeout time.Duration
}

// DB represents a database connection with transaction helpers
type DB struct {
	conn     *sql.DB
	logger   *slog.Logger
	dialect  dialect
	location string
}

// Open opens or creates the database and brings its schema up to date
func Open(ctx context.Context, opts Options, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	switch opts.Driver {
	case DriverSQLite, "":
		return openSQLite(ctx, opts.Path, logger)
	case DriverPostgres:
		return openPostgres(ctx, opts, logger)
	}
	return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
}

func openSQLite(ctx context.Context, dbPath string, logger *slog.Logger) (*DB, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer; WAL still lets readers in
	conn.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	return initialize(ctx, &DB{
		conn:     conn,
		logger:   logger,
		dialect:  sqliteDialect{},
		location: "sqlite:" + dbPath,
	})
}

func openPostgres(ctx context.Context, opts Options, logger *slog.Logger) (*DB, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("postgres url is required")
	}
	conn, err := sql.Open("pgx", opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)

	timeout := opts.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return initialize(ctx, &DB{
		conn:     conn,
		logger:   logger,
		dialect:  postgresDialect{},
		location: "postgres",
	})
}

func initialize(ctx context.Context, db *DB) (*DB, error) {
	if err := db.migrate(ctx); err != nil {
		_ = db.conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Location names the database for diagnostics
func (db *DB) Location() string {
	return db.location
}

// WithTx executes a function within a transaction
// If the function returns an error, the transaction is rolled back
// Otherwise, the transaction is committed
func (db *DB) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p) // Re-throw panic after rollback
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error("failed to rollback transaction",
				"error", err.Error(),
				"rollback_error", rbErr.Error(),
			)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// q rewrites a query written with ? placeholders for the active dialect
func (db *DB) q(query string) string {
	return db.dialect.rebind(query)
}
