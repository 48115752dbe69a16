// Package journal persists daemon task output and lifecycle events in
// SQLite so they survive daemon restarts and can be tailed by the CLI.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Journal wraps the SQLite connection.
type Journal struct {
	*sql.DB
}

// Open opens or creates the journal database at the given path.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	// Busy timeout handles concurrent access from the daemon and CLI.
	dsn := path + "?_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	// WAL lets the CLI read while the daemon writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	j := &Journal{db}
	if err := j.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return j, nil
}

func (j *Journal) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS task_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id TEXT NOT NULL,
			line_type TEXT DEFAULT 'output',
			content TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_task_logs_task_id ON task_logs(task_id)`,
	}

	for _, m := range migrations {
		if _, err := j.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// Entry is one journal line. LineType is "output", "error" or "system".
type Entry struct {
	ID        int64
	TaskID    string
	LineType  string
	Content   string
	CreatedAt time.Time
}

// Append records a line for a task.
func (j *Journal) Append(taskID, lineType, content string) error {
	_, err := j.Exec(`
		INSERT INTO task_logs (task_id, line_type, content, created_at)
		VALUES (?, ?, ?, ?)
	`, taskID, lineType, content, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert task log: %w", err)
	}
	return nil
}

// Logs retrieves entries for a task in chronological order.
func (j *Journal) Logs(taskID string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 1000
	}

	rows, err := j.Query(`
		SELECT id, task_id, line_type, content, created_at
		FROM task_logs
		WHERE task_id = ?
		ORDER BY id ASC
		LIMIT ?
	`, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("query task logs: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// LogsSince retrieves entries for a task after the given id, oldest
// first. Used by follow mode to pick up only new lines.
func (j *Journal) LogsSince(taskID string, sinceID int64) ([]*Entry, error) {
	rows, err := j.Query(`
		SELECT id, task_id, line_type, content, created_at
		FROM task_logs
		WHERE task_id = ? AND id > ?
		ORDER BY id ASC
	`, taskID, sinceID)
	if err != nil {
		return nil, fmt.Errorf("query task logs: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// TaskSummary describes one task's presence in the journal.
type TaskSummary struct {
	TaskID   string
	Lines    int
	LastSeen time.Time
}

// Tasks lists journaled tasks, most recently active first.
func (j *Journal) Tasks(limit int) ([]*TaskSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := j.Query(`
		SELECT task_id, COUNT(*), MAX(created_at)
		FROM task_logs
		GROUP BY task_id
		ORDER BY MAX(id) DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*TaskSummary
	for rows.Next() {
		t := &TaskSummary{}
		var lastSeen string
		if err := rows.Scan(&t.TaskID, &t.Lines, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan journal task: %w", err)
		}
		t.LastSeen = parseTime(lastSeen)
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		var createdAt string
		if err := rows.Scan(&e.ID, &e.TaskID, &e.LineType, &e.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan task log: %w", err)
		}
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
