package modelcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one indexed weight file.
type Record struct {
	ModelID   string
	FileName  string
	Path      string
	SizeBytes int64
	SHA256    string
	FetchedAt time.Time
}

// Index persists fetched weight files in SQLite.
type Index struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// OpenIndex initializes or connects to the index database at path.
func OpenIndex(ctx context.Context, path string) (*Index, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure index directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	idx := &Index{db: db, path: path}
	if err := idx.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

// Close closes the underlying database connection.
func (idx *Index) Close() error {
	if idx == nil || idx.db == nil {
		return nil
	}
	return idx.db.Close()
}

// Path returns the database location.
func (idx *Index) Path() string { return idx.path }

// Lookup returns the record for modelID.
func (idx *Index) Lookup(ctx context.Context, modelID string) (Record, bool, error) {
	row := idx.db.QueryRowContext(ctx,
		"SELECT model_id, file_name, path, size_bytes, sha256, fetched_at FROM models WHERE model_id = ?", modelID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("lookup %s: %w", modelID, err)
	}
	return rec, true, nil
}

// Put inserts or replaces rec.
func (idx *Index) Put(ctx context.Context, rec Record) error {
	if rec.FetchedAt.IsZero() {
		rec.FetchedAt = time.Now()
	}
	return retryOnBusy(ctx, func() error {
		_, err := idx.db.ExecContext(ctx,
			`INSERT INTO models (model_id, file_name, path, size_bytes, sha256, fetched_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(model_id) DO UPDATE SET
			   file_name = excluded.file_name,
			   path = excluded.path,
			   size_bytes = excluded.size_bytes,
			   sha256 = excluded.sha256,
			   fetched_at = excluded.fetched_at`,
			rec.ModelID, rec.FileName, rec.Path, rec.SizeBytes, rec.SHA256, rec.FetchedAt.UTC().Format(time.RFC3339Nano))
		return err
	})
}

// Remove forgets modelID.
func (idx *Index) Remove(ctx context.Context, modelID string) error {
	return retryOnBusy(ctx, func() error {
		_, err := idx.db.ExecContext(ctx, "DELETE FROM models WHERE model_id = ?", modelID)
		return err
	})
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec     Record
		fetched string
	)
	if err := row.Scan(&rec.ModelID, &rec.FileName, &rec.Path, &rec.SizeBytes, &rec.SHA256, &fetched); err != nil {
		return Record{}, err
	}
	if ts, err := time.Parse(time.RFC3339Nano, fetched); err == nil {
		rec.FetchedAt = ts
	}
	return rec, nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
