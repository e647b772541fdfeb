/*
Copyright © 2025 ALESSIO TONIOLO

history.go is an append-only audit log of terminal job outcomes,
grounded on the teacher's InitDB/migrate/SaveInstance shape in
pkg/db/db.go. Unlike that table, this one is purely observational: it
never stores pending or queued work, only jobs that have already
finished, so it cannot be used to reconstruct queue state across a
restart.
*/
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kirsle/configdir"

	_ "github.com/glebarez/go-sqlite"
)

// DB wraps the sql.DB connection used for the audit log.
type DB struct {
	*sql.DB
}

// Record is one terminal job outcome.
type Record struct {
	UserHash   string
	Path       string
	Outcome    string // "ok", "upstream_error", "timeout", "cancelled"
	Code       int
	Duration   time.Duration
	FinishedAt time.Time
}

// Open initializes the audit-log database under the user's local
// config directory, creating the schema if needed.
func Open() (*DB, error) {
	configPath := configdir.LocalConfig("ollamamq")
	if err := configdir.MakePath(configPath); err != nil {
		return nil, fmt.Errorf("history: failed to create config directory: %w", err)
	}

	dbPath := filepath.Join(configPath, "history.db")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("history: failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("history: failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("history: failed to ping database: %w", err)
	}

	database := &DB{conn}
	if err := database.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: failed to migrate database: %w", err)
	}
	return database, nil
}

func (d *DB) migrate() error {
	const query = `
	CREATE TABLE IF NOT EXISTS job_outcomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_hash TEXT NOT NULL,
		path TEXT NOT NULL,
		outcome TEXT NOT NULL,
		code INTEGER,
		duration_ms INTEGER,
		finished_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := d.Exec(query)
	return err
}

// Append inserts one terminal outcome. Errors are returned for the
// caller to log; a failing audit write never blocks or fails a job.
func (d *DB) Append(r Record) error {
	const query = `
	INSERT INTO job_outcomes (user_hash, path, outcome, code, duration_ms, finished_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := d.Exec(query, r.UserHash, r.Path, r.Outcome, r.Code, r.Duration.Milliseconds(), r.FinishedAt)
	return err
}

// RecentByUser returns the most recent n outcomes for a given hashed
// user identity, most recent first.
func (d *DB) RecentByUser(userHash string, n int) ([]Record, error) {
	rows, err := d.Query(`
	SELECT user_hash, path, outcome, code, duration_ms, finished_at
	FROM job_outcomes WHERE user_hash = ?
	ORDER BY finished_at DESC LIMIT ?
	`, userHash, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var durationMs int64
		if err := rows.Scan(&r.UserHash, &r.Path, &r.Outcome, &r.Code, &durationMs, &r.FinishedAt); err != nil {
			return nil, err
		}
		r.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}
