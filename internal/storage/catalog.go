package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	pq "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"redfish-mockup-creator/internal/config"
)

// CatalogEntry is one row of the run catalog.
type CatalogEntry struct {
	URI         string
	Path        string
	Kind        string
	Outcome     string
	StatusCode  int
	Elapsed     time.Duration
	Bytes       int
	Fingerprint string
	RetrievedAt time.Time
}

// Recorder receives one entry per visited resource.
type Recorder interface {
	Record(ctx context.Context, entry CatalogEntry) error
}

// Catalog records every visited resource of a run into a SQL table. Rows are
// keyed by run id so repeated runs against the same database never collide.
type Catalog struct {
	db          *sql.DB
	driver      string
	runID       string
	autoMigrate bool
}

// OpenCatalog connects to the configured database.
func OpenCatalog(ctx context.Context, cfg config.SQLConfig) (*Catalog, error) {
	if cfg.Driver == "" || cfg.DSN == "" {
		return nil, errors.New("sql config missing driver or dsn")
	}
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sql connection: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		if !cfg.CreateIfMissing || !shouldAttemptCreateDatabase(cfg.Driver, err) {
			return nil, fmt.Errorf("ping sql connection: %w", err)
		}
		if err := createDatabase(pingCtx, cfg); err != nil {
			return nil, err
		}
		db, err = sql.Open(cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sql connection: %w", err)
		}
		if err := db.PingContext(pingCtx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping sql connection: %w", err)
		}
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime.Duration > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime.Duration)
	}
	c, err := NewCatalog(ctx, db, cfg.Driver, cfg.AutoMigrate)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

// NewCatalog wraps an open database. A fresh run id is assigned.
func NewCatalog(ctx context.Context, db *sql.DB, driver string, autoMigrate bool) (*Catalog, error) {
	if db == nil {
		return nil, errors.New("nil database")
	}
	c := &Catalog{
		db:          db,
		driver:      driver,
		runID:       uuid.NewString(),
		autoMigrate: autoMigrate,
	}
	if autoMigrate {
		if err := c.ensureSchema(ctx); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// RunID identifies the rows written by this catalog.
func (c *Catalog) RunID() string {
	if c == nil {
		return ""
	}
	return c.runID
}

// Record inserts or replaces the entry for this run.
func (c *Catalog) Record(ctx context.Context, entry CatalogEntry) error {
	if c == nil || c.db == nil {
		return nil
	}
	if err := c.upsert(ctx, entry); err != nil {
		if c.autoMigrate && isUndefinedTableErr(err) {
			if schemaErr := c.ensureSchema(ctx); schemaErr != nil {
				return fmt.Errorf("ensure schema: %w", schemaErr)
			}
			if retryErr := c.upsert(ctx, entry); retryErr != nil {
				return fmt.Errorf("insert resource: %w", retryErr)
			}
			return nil
		}
		return fmt.Errorf("insert resource: %w", err)
	}
	return nil
}

func (c *Catalog) upsert(ctx context.Context, e CatalogEntry) error {
	query := c.rebind(`
        INSERT INTO mockup_resources (run_id, uri, path, kind, outcome, status_code, elapsed_ms, bytes, fingerprint, retrieved_at)
        VALUES (?,?,?,?,?,?,?,?,?,?)
        ON CONFLICT (run_id, uri) DO UPDATE SET
            path = EXCLUDED.path,
            kind = EXCLUDED.kind,
            outcome = EXCLUDED.outcome,
            status_code = EXCLUDED.status_code,
            elapsed_ms = EXCLUDED.elapsed_ms,
            bytes = EXCLUDED.bytes,
            fingerprint = EXCLUDED.fingerprint,
            retrieved_at = EXCLUDED.retrieved_at
    `)
	retrieved := e.RetrievedAt
	if retrieved.IsZero() {
		retrieved = time.Now()
	}
	_, err := c.db.ExecContext(ctx, query,
		c.runID,
		e.URI,
		e.Path,
		e.Kind,
		e.Outcome,
		e.StatusCode,
		e.Elapsed.Milliseconds(),
		e.Bytes,
		e.Fingerprint,
		retrieved.UTC(),
	)
	return err
}

// Entries lists the rows of this run in insertion order.
func (c *Catalog) Entries(ctx context.Context) ([]CatalogEntry, error) {
	if c == nil || c.db == nil {
		return nil, nil
	}
	rows, err := c.db.QueryContext(ctx, c.rebind(`
        SELECT uri, path, kind, outcome, status_code, elapsed_ms, bytes, fingerprint
        FROM mockup_resources WHERE run_id = ? ORDER BY seq
    `), c.runID)
	if err != nil {
		return nil, fmt.Errorf("query resources: %w", err)
	}
	defer rows.Close()

	var out []CatalogEntry
	for rows.Next() {
		var (
			e         CatalogEntry
			elapsedMS int64
		)
		if err := rows.Scan(&e.URI, &e.Path, &e.Kind, &e.Outcome, &e.StatusCode, &elapsedMS, &e.Bytes, &e.Fingerprint); err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		e.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the underlying DB connection.
func (c *Catalog) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *Catalog) ensureSchema(ctx context.Context) error {
	schemaCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	seq := "seq INTEGER PRIMARY KEY AUTOINCREMENT"
	if c.driver == "postgres" {
		seq = "seq BIGSERIAL PRIMARY KEY"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS mockup_resources (
		    ` + seq + `,
		    run_id TEXT NOT NULL,
		    uri TEXT NOT NULL,
		    path TEXT,
		    kind TEXT,
		    outcome TEXT,
		    status_code INT,
		    elapsed_ms BIGINT,
		    bytes BIGINT,
		    fingerprint TEXT,
		    retrieved_at TIMESTAMP,
		    UNIQUE (run_id, uri)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_mockup_resources_run ON mockup_resources (run_id)`,
	}
	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(schemaCtx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// rebind turns ? placeholders into $n for postgres.
func (c *Catalog) rebind(query string) string {
	if c.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func shouldAttemptCreateDatabase(driver string, err error) bool {
	if driver != "postgres" {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "3D000"
	}
	return strings.Contains(strings.ToLower(err.Error()), "does not exist")
}

func createDatabase(ctx context.Context, cfg config.SQLConfig) error {
	parsed, err := url.Parse(cfg.DSN)
	if err != nil {
		return fmt.Errorf("parse dsn: %w", err)
	}
	dbName := strings.TrimPrefix(parsed.Path, "/")
	if dbName == "" {
		return errors.New("dsn missing database name")
	}
	if strings.EqualFold(dbName, "postgres") {
		return fmt.Errorf("target database %q cannot be auto-created", dbName)
	}
	parsed.Path = "/postgres"
	adminDB, err := sql.Open(cfg.Driver, parsed.String())
	if err != nil {
		return fmt.Errorf("connect admin database: %w", err)
	}
	defer adminDB.Close()

	stmt := fmt.Sprintf("CREATE DATABASE %s", pq.QuoteIdentifier(dbName))
	if _, err := adminDB.ExecContext(ctx, stmt); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "42P04" {
			return nil
		}
		return fmt.Errorf("create database %q: %w", dbName, err)
	}
	return nil
}

func isUndefinedTableErr(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "42P01"
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "no such table") ||
		(strings.Contains(lower, "relation") && strings.Contains(lower, "does not exist"))
}
