// Package catalog records which files have been indexed and the outcome
// of each indexing run. The catalog is bookkeeping, not the index: it can
// always be rebuilt by reindexing, so corruption is handled by clearing
// the database rather than failing the run.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// File statuses stored in the files table.
const (
	StatusIndexed = "indexed"
	StatusFailed  = "failed"
)

// FileRecord is one row of the files table.
type FileRecord struct {
	Path        string
	ContentHash string
	ChunkCount  int
	SizeBytes   int64
	Status      string
	Error       string
	IndexedAt   time.Time
}

// RunRecord is one row of the runs table. FinishedAt is zero while the
// run is still in progress.
type RunRecord struct {
	ID            string
	StartedAt     time.Time
	FinishedAt    time.Time
	FilesIndexed  int
	FilesSkipped  int
	FilesFailed   int
	ChunksIndexed int
}

// RunTotals carries the counters written when a run finishes.
type RunTotals struct {
	FilesIndexed  int
	FilesSkipped  int
	FilesFailed   int
	ChunksIndexed int
}

// Summary aggregates the files table for status reporting.
type Summary struct {
	TotalFiles   int
	IndexedFiles int
	FailedFiles  int
	TotalChunks  int
	TotalBytes   int64
	LastIndexed  time.Time
}

// Catalog is a SQLite-backed file and run ledger. Safe for concurrent
// use; the connection pool is capped at one connection so writers never
// contend on SQLite locks.
type Catalog struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// validateIntegrity checks a catalog database before opening it.
// Returns nil if the file is usable, an error describing the damage
// otherwise.
func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // will be created
	}

	db, err := sql.Open(driverName, path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// Open opens the catalog at path, creating it if needed. An empty path
// opens an in-memory catalog for testing. A corrupted catalog is cleared
// and recreated; the files simply get reindexed on the next run.
func Open(path string) (*Catalog, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}

		if validErr := validateIntegrity(path); validErr != nil {
			slog.Warn("catalog_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))

			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, fmt.Errorf("catalog corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")

			slog.Info("catalog_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, files will be reindexed"))
		}

		dsn = path
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	// Single writer to prevent lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// DSN pragma parameters are driver-specific; set them via statements
	// so both drivers behave the same.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	c := &Catalog{db: db, path: path}
	if err := c.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize catalog schema: %w", err)
	}

	return c, nil
}

// initSchema creates the catalog tables.
func (c *Catalog) initSchema() error {
	// Timestamps are stored as unix seconds so rows scan identically
	// under both drivers.
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS files (
		path TEXT PRIMARY KEY,
		content_hash TEXT NOT NULL,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		size_bytes INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		indexed_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_files_status ON files(status);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL DEFAULT 0,
		files_indexed INTEGER NOT NULL DEFAULT 0,
		files_skipped INTEGER NOT NULL DEFAULT 0,
		files_failed INTEGER NOT NULL DEFAULT 0,
		chunks_indexed INTEGER NOT NULL DEFAULT 0
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	_, err := c.db.Exec(schema)
	return err
}

// UpsertFile inserts or replaces the record for a file path.
func (c *Catalog) UpsertFile(ctx context.Context, rec FileRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("catalog is closed")
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO files (path, content_hash, chunk_count, size_bytes, status, error, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			content_hash = excluded.content_hash,
			chunk_count = excluded.chunk_count,
			size_bytes = excluded.size_bytes,
			status = excluded.status,
			error = excluded.error,
			indexed_at = excluded.indexed_at
	`, rec.Path, rec.ContentHash, rec.ChunkCount, rec.SizeBytes, rec.Status, rec.Error, rec.IndexedAt.Unix())
	if err != nil {
		return fmt.Errorf("upsert file %s: %w", rec.Path, err)
	}
	return nil
}

// RecordFiles upserts a batch of file records in one transaction.
func (c *Catalog) RecordFiles(ctx context.Context, recs []FileRecord) error {
	if len(recs) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("catalog is closed")
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO files (path, content_hash, chunk_count, size_bytes, status, error, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			content_hash = excluded.content_hash,
			chunk_count = excluded.chunk_count,
			size_bytes = excluded.size_bytes,
			status = excluded.status,
			error = excluded.error,
			indexed_at = excluded.indexed_at
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		if _, err := stmt.ExecContext(ctx, rec.Path, rec.ContentHash, rec.ChunkCount,
			rec.SizeBytes, rec.Status, rec.Error, rec.IndexedAt.Unix()); err != nil {
			return fmt.Errorf("record file %s: %w", rec.Path, err)
		}
	}

	return tx.Commit()
}

// GetFile returns the record for a path, or nil if none exists.
func (c *Catalog) GetFile(ctx context.Context, path string) (*FileRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, fmt.Errorf("catalog is closed")
	}

	var rec FileRecord
	var indexedAt int64
	err := c.db.QueryRowContext(ctx, `
		SELECT path, content_hash, chunk_count, size_bytes, status, error, indexed_at
		FROM files WHERE path = ?
	`, path).Scan(&rec.Path, &rec.ContentHash, &rec.ChunkCount, &rec.SizeBytes,
		&rec.Status, &rec.Error, &indexedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get file %s: %w", path, err)
	}

	rec.IndexedAt = time.Unix(indexedAt, 0)
	return &rec, nil
}

// IsUnchanged reports whether a file was already indexed successfully
// with the given content hash. Failed files always report false so they
// are retried on the next run.
func (c *Catalog) IsUnchanged(ctx context.Context, path, contentHash string) (bool, error) {
	rec, err := c.GetFile(ctx, path)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}
	return rec.Status == StatusIndexed && rec.ContentHash == contentHash, nil
}

// Reset removes all file records. Run history is kept.
func (c *Catalog) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("catalog is closed")
	}

	if _, err := c.db.ExecContext(ctx, `DELETE FROM files`); err != nil {
		return fmt.Errorf("reset catalog: %w", err)
	}
	return nil
}

// Summary aggregates the files table.
func (c *Catalog) Summary(ctx context.Context) (*Summary, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, fmt.Errorf("catalog is closed")
	}

	var s Summary
	var lastIndexed int64
	err := c.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(chunk_count), 0),
			COALESCE(SUM(size_bytes), 0),
			COALESCE(MAX(indexed_at), 0)
		FROM files
	`, StatusIndexed, StatusFailed).Scan(&s.TotalFiles, &s.IndexedFiles,
		&s.FailedFiles, &s.TotalChunks, &s.TotalBytes, &lastIndexed)
	if err != nil {
		return nil, fmt.Errorf("catalog summary: %w", err)
	}

	if lastIndexed > 0 {
		s.LastIndexed = time.Unix(lastIndexed, 0)
	}
	return &s, nil
}

// StartRun inserts a new run record and returns its id.
func (c *Catalog) StartRun(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", fmt.Errorf("catalog is closed")
	}

	id := uuid.NewString()
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at) VALUES (?, ?)
	`, id, time.Now().Unix())
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	return id, nil
}

// FinishRun stamps a run as finished with its totals.
func (c *Catalog) FinishRun(ctx context.Context, id string, totals RunTotals) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("catalog is closed")
	}

	res, err := c.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, files_indexed = ?, files_skipped = ?,
			files_failed = ?, chunks_indexed = ?
		WHERE id = ?
	`, time.Now().Unix(), totals.FilesIndexed, totals.FilesSkipped,
		totals.FilesFailed, totals.ChunksIndexed, id)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}

	rows, err := res.RowsAffected()
	if err == nil && rows == 0 {
		return fmt.Errorf("finish run %s: unknown run id", id)
	}
	return nil
}

// LastRun returns the most recently started run, or nil if none exist.
func (c *Catalog) LastRun(ctx context.Context) (*RunRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, fmt.Errorf("catalog is closed")
	}

	var rec RunRecord
	var started, finished int64
	err := c.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, files_indexed, files_skipped,
			files_failed, chunks_indexed
		FROM runs ORDER BY started_at DESC, id DESC LIMIT 1
	`).Scan(&rec.ID, &started, &finished, &rec.FilesIndexed,
		&rec.FilesSkipped, &rec.FilesFailed, &rec.ChunksIndexed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last run: %w", err)
	}

	rec.StartedAt = time.Unix(started, 0)
	if finished > 0 {
		rec.FinishedAt = time.Unix(finished, 0)
	}
	return &rec, nil
}

// Close checkpoints and closes the catalog. Idempotent.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	if c.db != nil {
		_, _ = c.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return c.db.Close()
	}
	return nil
}
