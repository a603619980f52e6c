// Package catalog persists one record per completed capture in SQLite so
// operators can audit a deployment after the fact and health reporting can
// surface aggregate counts.
package catalog

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

// Store manages capture persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Capture is one catalog row.
type Capture struct {
	ID        int64
	Path      string
	SSID      string
	BSSID     string
	Channel   int
	Bytes     int64
	Converted bool
	Simulated bool
	CreatedAt time.Time
}

// Counts aggregates the catalog for health reporting.
type Counts struct {
	Captures  int64
	Converted int64
	Simulated int64
	Bytes     int64
}

// Open initializes or connects to the catalog database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure catalog directory: %w", err)
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
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// RecordCapture inserts a row for a completed capture and returns its id.
func (s *Store) RecordCapture(ctx context.Context, c Capture) (int64, error) {
	created := c.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO captures (path, ssid, bssid, channel, bytes, converted, simulated, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Path, c.SSID, c.BSSID, c.Channel, c.Bytes, c.Converted, c.Simulated,
		created.Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("record capture: %w", err)
	}
	return res.LastInsertId()
}

// MarkConverted flags the capture row as having a derived artifact.
func (s *Store) MarkConverted(ctx context.Context, id int64) error {
	if err := s.execWithoutResultRetry(ctx,
		"UPDATE captures SET converted = 1 WHERE id = ?", id); err != nil {
		return fmt.Errorf("mark converted: %w", err)
	}
	return nil
}

// UpdatePath records a rename of the capture file.
func (s *Store) UpdatePath(ctx context.Context, id int64, path string) error {
	if err := s.execWithoutResultRetry(ctx,
		"UPDATE captures SET path = ? WHERE id = ?", path, id); err != nil {
		return fmt.Errorf("update path: %w", err)
	}
	return nil
}

// AggregateCounts returns totals across the catalog.
func (s *Store) AggregateCounts(ctx context.Context) (Counts, error) {
	ctx = ensureContext(ctx)
	var counts Counts
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1),
		        COALESCE(SUM(converted), 0),
		        COALESCE(SUM(simulated), 0),
		        COALESCE(SUM(bytes), 0)
		 FROM captures`,
	).Scan(&counts.Captures, &counts.Converted, &counts.Simulated, &counts.Bytes)
	if err != nil {
		return Counts{}, fmt.Errorf("aggregate counts: %w", err)
	}
	return counts, nil
}

// Recent returns the newest rows, capped at limit.
func (s *Store) Recent(ctx context.Context, limit int) ([]Capture, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, path, ssid, bssid, channel, bytes, converted, simulated, created_at
		 FROM captures ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent captures: %w", err)
	}
	defer rows.Close()

	var out []Capture
	for rows.Next() {
		var c Capture
		var created string
		if err := rows.Scan(&c.ID, &c.Path, &c.SSID, &c.BSSID, &c.Channel, &c.Bytes,
			&c.Converted, &c.Simulated, &created); err != nil {
			return nil, fmt.Errorf("scan capture row: %w", err)
		}
		if ts, parseErr := time.Parse(time.RFC3339Nano, created); parseErr == nil {
			c.CreatedAt = ts
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
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

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) execWithoutResultRetry(ctx context.Context, query string, args ...any) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}
