package auth

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"deployhook/internal/security"

	_ "modernc.org/sqlite"
)

// SQLiteBusyTimeout is how long a writer waits for the database lock held by
// another process.
const SQLiteBusyTimeout = 5 * time.Second

// SQLiteStore keeps rate-limit windows in a SQLite file so several
// processes on one host share the same limits.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection per process; cross-process access is serialized by
	// SQLite's own locking.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if dbPath != ":memory:" {
		_ = os.Chmod(dbPath, security.PermDBFile)
	}

	return s, nil
}

func sqliteDSN(dbPath string) string {
	params := url.Values{}
	params.Set("_txlock", "immediate")
	params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", SQLiteBusyTimeout.Milliseconds()))
	params.Add("_pragma", "journal_mode(WAL)")
	return "file:" + dbPath + "?" + params.Encode()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS rate_limit_hits (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			key TEXT NOT NULL,
			hit_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_rate_limit_key_hit
		ON rate_limit_hits(key, hit_at)
	`)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// Attempt implements Store. The prune, count and insert run in one
// immediate transaction.
func (s *SQLiteStore) Attempt(ctx context.Context, key string, now time.Time, window time.Duration, max int) (allowed bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	cutoff := now.Add(-window).UnixNano()

	if _, err = tx.ExecContext(ctx,
		`DELETE FROM rate_limit_hits WHERE key = ? AND hit_at < ?`, key, cutoff); err != nil {
		return false, fmt.Errorf("failed to prune attempts: %w", err)
	}

	var count int
	if err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rate_limit_hits WHERE key = ?`, key).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to count attempts: %w", err)
	}

	if count < max {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO rate_limit_hits (key, hit_at) VALUES (?, ?)`, key, now.UnixNano()); err != nil {
			return false, fmt.Errorf("failed to record attempt: %w", err)
		}
		allowed = true
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return allowed, nil
}
