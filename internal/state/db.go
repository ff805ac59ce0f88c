package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps an SQLite connection with task record operations. Records are
// stored as one JSON document per task so the full execution state is
// reconstructable from a single row; status and timestamps are mirrored
// into columns for listing without decoding every document.
type DB struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// DefaultDBPath returns the default database location under XDG data home.
func DefaultDBPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "maestro", "maestro.db")
}

// Open opens an SQLite database at the given path, creating parent
// directories as needed. WAL mode is enabled for concurrent reads.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &DB{conn: conn, path: path}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Close()
}

// Path returns the path to the database file.
func (db *DB) Path() string {
	return db.path
}

// Migrate applies all pending schema migrations.
func (db *DB) Migrate() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Tasks},
		{2, migrationV2Leases},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}

	return nil
}

const migrationV1Tasks = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	record TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks(created_at);
`

const migrationV2Leases = `
CREATE TABLE IF NOT EXISTS leases (
	task_id TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	acquired_at DATETIME NOT NULL
);
`

// Get loads a record by task ID.
func (db *DB) Get(taskID string) (*TaskRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var doc string
	row := db.conn.QueryRow("SELECT record FROM tasks WHERE id = ?", taskID)
	if err := row.Scan(&doc); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get task %s: %w", taskID, err)
	}

	var rec TaskRecord
	if err := json.Unmarshal([]byte(doc), &rec); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", taskID, err)
	}
	return &rec, nil
}

// Put writes a record, replacing any existing one. UpdatedAt is stamped
// here so every checkpoint advances it.
func (db *DB) Put(rec *TaskRecord) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	rec.UpdatedAt = time.Now().UTC()

	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", rec.TaskID, err)
	}

	_, err = db.conn.Exec(`
		INSERT INTO tasks (id, status, record, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			record = excluded.record,
			updated_at = excluded.updated_at
	`, rec.TaskID, string(rec.Status), string(doc), formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put task %s: %w", rec.TaskID, err)
	}
	return nil
}

// Delete removes a record and its lease.
func (db *DB) Delete(taskID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	result, err := db.conn.Exec("DELETE FROM tasks WHERE id = ?", taskID)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", taskID, err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete task %s: %w", taskID, err)
	}
	if count == 0 {
		return ErrNotFound
	}

	if _, err := db.conn.Exec("DELETE FROM leases WHERE task_id = ?", taskID); err != nil {
		return fmt.Errorf("delete lease %s: %w", taskID, err)
	}
	return nil
}

// List returns all records, newest first.
func (db *DB) List() ([]*TaskRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query("SELECT record FROM tasks ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var recs []*TaskRecord
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		var rec TaskRecord
		if err := json.Unmarshal([]byte(doc), &rec); err != nil {
			return nil, fmt.Errorf("decode task: %w", err)
		}
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

// Acquire takes the advisory lease for a task. Re-acquiring a lease the
// same owner already holds succeeds.
func (db *DB) Acquire(taskID, owner string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	var current string
	row := db.conn.QueryRow("SELECT owner FROM leases WHERE task_id = ?", taskID)
	err := row.Scan(&current)
	switch {
	case err == sql.ErrNoRows:
		_, err = db.conn.Exec(
			"INSERT INTO leases (task_id, owner, acquired_at) VALUES (?, ?, ?)",
			taskID, owner, formatTime(time.Now()))
		if err != nil {
			return fmt.Errorf("acquire lease %s: %w", taskID, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("acquire lease %s: %w", taskID, err)
	case current == owner:
		return nil
	default:
		return fmt.Errorf("acquire lease %s: %w", taskID, ErrLeaseHeld)
	}
}

// Release frees the lease if owner holds it. Releasing an absent lease is
// a no-op.
func (db *DB) Release(taskID, owner string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec("DELETE FROM leases WHERE task_id = ? AND owner = ?", taskID, owner)
	if err != nil {
		return fmt.Errorf("release lease %s: %w", taskID, err)
	}
	return nil
}

// formatTime formats a time.Time for SQLite storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
