package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect identifies the SQL flavour behind a DB.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// DB wraps a sql.DB with dialect-aware helpers. Queries are written with
// "?" placeholders and rebound for the active dialect.
type DB struct {
	*sql.DB
	dialect Dialect
	path    string
}

// Open creates or opens a SQLite database at the given path and applies
// the embedded schema.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	d := &DB{DB: sqlDB, dialect: SQLite, path: path}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return d, nil
}

// OpenMemory creates an in-memory SQLite database (useful for testing).
// A single connection is kept so every caller sees the same database.
func OpenMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	d := &DB{DB: sqlDB, dialect: SQLite, path: ":memory:"}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return d, nil
}

// OpenPostgres connects to PostgreSQL through the pgx stdlib driver.
// The schema is managed by golang-migrate (see Migrate), not applied here.
func OpenPostgres(ctx context.Context, dsn string) (*DB, error) {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	return &DB{DB: sqlDB, dialect: Postgres, path: dsn}, nil
}

// Dialect reports which SQL flavour this connection speaks.
func (d *DB) Dialect() Dialect { return d.dialect }

// Path returns the file path (sqlite) or DSN (postgres) the DB was opened with.
func (d *DB) Path() string { return d.path }

// Rebind rewrites "?" placeholders into the dialect's native form.
func (d *DB) Rebind(query string) string {
	if d.dialect != Postgres {
		return query
	}
	return rebindDollar(query)
}

// Placeholder returns the n-th (1-based) bind parameter for the dialect.
func (d *DB) Placeholder(n int) string {
	if d.dialect == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// ExecContext rebinds the query before executing it.
func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.DB.ExecContext(ctx, d.Rebind(query), args...)
}

// QueryContext rebinds the query before running it.
func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.DB.QueryContext(ctx, d.Rebind(query), args...)
}

// QueryRowContext rebinds the query before running it.
func (d *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return d.DB.QueryRowContext(ctx, d.Rebind(query), args...)
}

func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for _, r := range query {
		switch {
		case r == '\'':
			inQuote = !inQuote
			b.WriteRune(r)
		case r == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// migrate applies the SQLite schema.
func (d *DB) migrate() error {
	_, err := d.DB.Exec(sqliteSchema)
	return err
}

// sqliteSchema mirrors migrations/000001_init.up.sql for SQLite.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS findings (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    severity TEXT NOT NULL,
    status TEXT NOT NULL,
    category TEXT NOT NULL DEFAULT '',
    department TEXT NOT NULL DEFAULT '',
    location TEXT NOT NULL DEFAULT '',
    owner TEXT NOT NULL DEFAULT '',
    reported_by TEXT NOT NULL DEFAULT '',
    financial_impact REAL NOT NULL DEFAULT 0,
    year INTEGER NOT NULL,
    reported_at TEXT NOT NULL DEFAULT '',
    updated_at INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_findings_year ON findings(year);
CREATE INDEX IF NOT EXISTS idx_findings_severity ON findings(severity);
CREATE INDEX IF NOT EXISTS idx_findings_status ON findings(status);
CREATE INDEX IF NOT EXISTS idx_findings_updated ON findings(updated_at);

CREATE TABLE IF NOT EXISTS pseudonym_mappings (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    category TEXT NOT NULL,
    original_value TEXT NOT NULL,
    pseudonym TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    expires_at INTEGER NOT NULL,
    UNIQUE(session_id, category, original_value),
    UNIQUE(session_id, pseudonym)
);

CREATE INDEX IF NOT EXISTS idx_mappings_expiry ON pseudonym_mappings(expires_at);

CREATE TABLE IF NOT EXISTS route_audit (
    id TEXT PRIMARY KEY,
    created_at INTEGER NOT NULL,
    request_id TEXT NOT NULL,
    session_id TEXT NOT NULL,
    route TEXT NOT NULL,
    branch TEXT NOT NULL DEFAULT '',
    confidence REAL NOT NULL DEFAULT 0,
    masked_query TEXT NOT NULL DEFAULT '',
    filter_fields TEXT NOT NULL DEFAULT '[]',
    notices TEXT NOT NULL DEFAULT '[]',
    final_state TEXT NOT NULL DEFAULT '',
    duration_ms INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_route_audit_session ON route_audit(session_id);
CREATE INDEX IF NOT EXISTS idx_route_audit_created ON route_audit(created_at);
`
