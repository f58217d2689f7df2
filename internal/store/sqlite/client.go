// Package sqlite implements the domain store interfaces on an embedded
// SQLite database via the pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Client wraps the sql.DB handle and manages migrations. All store types
// share one Client; SQLite serializes writes, which is the only cross-worker
// ordering the engines rely on.
type Client struct {
	db *sql.DB
}

// Open creates the database file (and parent directory) if needed, opens it
// in WAL mode, and verifies connectivity.
func Open(path string) (*Client, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create db directory: %w", err)
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}

	// modernc/sqlite allows one writer at a time; a small pool plus the
	// busy timeout keeps concurrent workers from tripping SQLITE_BUSY.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	return &Client{db: db}, nil
}

// DB returns the underlying handle for the per-aggregate store types.
func (c *Client) DB() *sql.DB {
	return c.db
}

// Close shuts down the connection pool.
func (c *Client) Close() error {
	return c.db.Close()
}

// RunMigrations applies the embedded SQL files in lexicographic order and
// tracks applied migrations in a schema_migrations table.
func (c *Client) RunMigrations(ctx context.Context) error {
	const createTracker = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		);`
	if _, err := c.db.ExecContext(ctx, createTracker); err != nil {
		return fmt.Errorf("sqlite: create schema_migrations table: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("sqlite: read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var exists bool
		err := c.db.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = ?)",
			entry.Name(),
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("sqlite: check migration %s: %w", entry.Name(), err)
		}
		if exists {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("sqlite: read migration %s: %w", entry.Name(), err)
		}

		tx, err := c.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("sqlite: begin tx for %s: %w", entry.Name(), err)
		}
		if _, err := tx.ExecContext(ctx, string(data)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("sqlite: exec migration %s: %w", entry.Name(), err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (filename) VALUES (?)",
			entry.Name(),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("sqlite: record migration %s: %w", entry.Name(), err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("sqlite: commit migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

// ----------------------------------------------------------------------------
// Shared helpers
// ----------------------------------------------------------------------------

const timeLayout = "2006-01-02T15:04:05.999Z"

func nowUTC() time.Time {
	return time.Now().UTC()
}

// formatTime renders a time for storage. SQLite's date functions understand
// the ISO-8601 form, which the daily-spend and PnL queries depend on.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime accepts the layouts this store and SQLite's datetime() produce.
func parseTime(s string) time.Time {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func normalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
