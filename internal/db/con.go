package db

import (
	"database/sql"
	"embed"
	"fmt"
	"net/url"
	"strings"

	"github.com/pressly/goose/v3"
	// SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/fr0stylo/photomigrate/internal/db/queries"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const driver = "sqlite"

// Database is the audit store: typed queries over one migrated SQLite file.
type Database struct {
	*queries.Queries
	db      *sql.DB
	latency *latencyTracker
}

// Open opens (creating if needed) the SQLite file at path and applies pending migrations.
func Open(path string, openParams ...string) (*Database, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("audit database path is empty")
	}
	db, err := sql.Open(driver, sqliteDSN(path, openParams...))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(driver); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	latency := newLatencyTracker()
	return &Database{
		Queries: queries.New(instrument(db, latency)),
		db:      db,
		latency: latency,
	}, nil
}

func sqliteDSN(path string, openParams ...string) string {
	values := url.Values{}
	values.Add("_pragma", "foreign_keys(ON)")
	values.Add("_pragma", "journal_mode(WAL)")
	values.Add("_pragma", "synchronous(NORMAL)")
	values.Add("_pragma", "busy_timeout(5000)")

	for _, param := range openParams {
		key, value, ok := strings.Cut(strings.TrimSpace(strings.TrimPrefix(param, "&")), "=")
		if !ok || strings.TrimSpace(key) == "" {
			continue
		}
		values.Add(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	return fmt.Sprintf("file:%s?%s", path, values.Encode())
}

// Close closes the underlying database connection.
func (d *Database) Close() error {
	return d.db.Close()
}
