package evidence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	_ "modernc.org/sqlite" // pure Go SQLite driver
)

// catalogSchemaVersion is the current schema version of catalog.db.
const catalogSchemaVersion = 1

// catalog is the derived SQLite index described in the catalog design:
// one row per cache key, rebuildable from the manifest.json files on disk.
// It is never the source of truth.
type catalog struct {
	conn *sql.DB
	mu   sync.Mutex
}

// openCatalog opens (creating if absent) rootDirectory/catalog.db with the
// same WAL/busy_timeout/foreign_keys pragmas used elsewhere in this
// codebase's SQLite access, and applies pending migrations.
func openCatalog(rootDirectory string) (*catalog, error) {
	if err := os.MkdirAll(rootDirectory, 0o750); err != nil {
		return nil, fmt.Errorf("creating evidence cache root: %w", err)
	}
	path := filepath.Join(rootDirectory, "catalog.db")
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)", path)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening evidence catalog: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pinging evidence catalog: %w", err)
	}

	c := &catalog{conn: conn}
	if err := c.applyMigrations(context.Background()); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *catalog) Close() error { return c.conn.Close() }

func (c *catalog) applyMigrations(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.conn.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at TEXT NOT NULL
);`); err != nil {
		return err
	}

	var current int
	var v sql.NullInt64
	if err := c.conn.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&v); err != nil {
		return fmt.Errorf("read catalog schema version: %w", err)
	}
	if v.Valid {
		current = int(v.Int64)
	}
	if current >= catalogSchemaVersion {
		return nil
	}

	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin catalog migration: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS cache_entries (
  key TEXT PRIMARY KEY,
  created_at TEXT NOT NULL,
  last_validated_at TEXT NOT NULL,
  expires_at TEXT,
  module_selection_hash TEXT NOT NULL,
  metadata_json TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_last_validated ON cache_entries(last_validated_at);`); err != nil {
		tx.Rollback()
		return fmt.Errorf("catalog migration 1: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, applied_at) VALUES (?, datetime('now'))`,
		catalogSchemaVersion); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// rowCount returns the number of rows in cache_entries.
func (c *catalog) rowCount(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int
	err := c.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&n)
	return n, err
}

// upsert records or refreshes a cache entry row.
func (c *catalog) upsert(ctx context.Context, row entryRow) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.conn.ExecContext(ctx, `
INSERT INTO cache_entries (key, created_at, last_validated_at, expires_at, module_selection_hash, metadata_json)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
  last_validated_at = excluded.last_validated_at,
  expires_at = excluded.expires_at,
  module_selection_hash = excluded.module_selection_hash,
  metadata_json = excluded.metadata_json`,
		row.Key, row.CreatedAt, row.LastValidatedAt, nullableTime(row.ExpiresAt), row.ModuleSelectionHash, row.MetadataJSON)
	return err
}

// rebuildFromManifests replaces the catalog's contents with rows derived
// from the manifest.json files found under rootDirectory.
func (c *catalog) rebuildFromManifests(ctx context.Context, rootDirectory string) error {
	entries, err := os.ReadDir(rootDirectory)
	if err != nil {
		return fmt.Errorf("scanning evidence cache root: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_entries`); err != nil {
		tx.Rollback()
		return err
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		manifestPath := filepath.Join(rootDirectory, e.Name(), manifestFileName)
		m, err := readManifest(manifestPath)
		if err != nil {
			continue // not a cache entry directory, or manifest unreadable; skip
		}
		row := entryRowFromManifest(m)
		if _, err := tx.ExecContext(ctx, `
INSERT OR REPLACE INTO cache_entries (key, created_at, last_validated_at, expires_at, module_selection_hash, metadata_json)
VALUES (?, ?, ?, ?, ?, ?)`,
			row.Key, row.CreatedAt, row.LastValidatedAt, nullableTime(row.ExpiresAt), row.ModuleSelectionHash, row.MetadataJSON); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// pruneCandidates returns the keys to evict under maxEntries retention: all
// but the N most recently validated entries, per §4.3's "maxEntries" rule.
func (c *catalog) pruneCandidates(ctx context.Context, maxEntries int) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.conn.QueryContext(ctx,
		`SELECT key FROM cache_entries ORDER BY last_validated_at DESC LIMIT -1 OFFSET ?`, maxEntries)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, rows.Err()
}

// expiredCandidates returns keys whose lastValidatedAt+maxAge has elapsed.
func (c *catalog) expiredCandidates(ctx context.Context, cutoffRFC3339 string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.conn.QueryContext(ctx,
		`SELECT key FROM cache_entries WHERE last_validated_at < ?`, cutoffRFC3339)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, rows.Err()
}

func (c *catalog) delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.conn.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key)
	return err
}

type entryRow struct {
	Key                 string
	CreatedAt           string
	LastValidatedAt     string
	ExpiresAt           string
	ModuleSelectionHash string
	MetadataJSON        string
}

func nullableTime(s string) any {
	if s == "" {
		return nil
	}
	return s
}
