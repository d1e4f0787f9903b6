package history

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

const schema = `
CREATE TABLE IF NOT EXISTS task_history (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id   TEXT NOT NULL,
	status    TEXT NOT NULL,
	value     TEXT,
	message   TEXT,
	priority  TEXT NOT NULL,
	took_ms   INTEGER NOT NULL,
	at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_task_history_at ON task_history(at);
`

// Entry is one completed submission.
type Entry struct {
	ID       string
	Status   string
	Value    string
	Message  string
	Priority string
	Duration time.Duration
	At       time.Time
}

// Store is a SQLite-backed history log. Safe for concurrent use; writes are
// serialized on a single connection.
type Store struct {
	db *sql.DB
}

// Open creates or opens the history database at path. The parent directory
// is created when missing; the special path ":memory:" keeps the log
// in-process.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("history: path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA busy_timeout = 5000")

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Record appends one completed submission.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_history(task_id, status, value, message, priority, took_ms, at)
		 VALUES(?,?,?,?,?,?,?)`,
		e.ID, e.Status, e.Value, e.Message, e.Priority, e.Duration.Milliseconds(),
		e.At.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("history: record %q: %w", e.ID, err)
	}
	return nil
}

// Recent returns up to n entries, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, status, value, message, priority, took_ms, at
		 FROM task_history ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var tookMS int64
		var at string
		if err := rows.Scan(&e.ID, &e.Status, &e.Value, &e.Message, &e.Priority, &tookMS, &at); err != nil {
			return nil, err
		}
		e.Duration = time.Duration(tookMS) * time.Millisecond
		if parsed, err := time.Parse(time.RFC3339Nano, at); err == nil {
			e.At = parsed
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune removes entries older than cutoff and reports how many were
// deleted.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM task_history WHERE at < ?`, cutoff.Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("history: prune: %w", err)
	}
	return res.RowsAffected()
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
