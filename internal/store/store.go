// Package store persists finished jobs. Only terminal JobResult
// records are ever written: a job that is still running has no
// representation here, and the orchestrator's live graph is never
// serialized, so there is no resume-mid-execution path to support.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rparedes/taskgraph/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Store manages the SQLite database of completed job results.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// applies the embedded schema. path may be ":memory:" for a
// process-local, non-persistent store.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveJobResult persists a completed job. result.ID must be set; a
// second save with the same ID overwrites the first.
func (s *Store) SaveJobResult(ctx context.Context, result model.JobResult) error {
	if result.ID == "" {
		return fmt.Errorf("job result must have an id")
	}

	tasksJSON, err := json.Marshal(result.Tasks)
	if err != nil {
		return fmt.Errorf("marshal tasks: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO job_results (id, name, status, started_at, completed_at, tasks_json)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			tasks_json = excluded.tasks_json`,
		result.ID, result.Name, string(result.Status), result.StartedAt, result.CompletedAt, string(tasksJSON),
	)
	if err != nil {
		return fmt.Errorf("save job result: %w", err)
	}
	return nil
}

// GetJobResult retrieves a previously saved job result by id.
func (s *Store) GetJobResult(ctx context.Context, id string) (model.JobResult, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, status, started_at, completed_at, tasks_json
		FROM job_results WHERE id = ?`, id)

	var result model.JobResult
	var status string
	var tasksJSON string
	if err := row.Scan(&result.ID, &result.Name, &status, &result.StartedAt, &result.CompletedAt, &tasksJSON); err != nil {
		return model.JobResult{}, fmt.Errorf("get job result: %w", err)
	}
	result.Status = model.JobStatus(status)
	if err := json.Unmarshal([]byte(tasksJSON), &result.Tasks); err != nil {
		return model.JobResult{}, fmt.Errorf("decode tasks: %w", err)
	}
	return result, nil
}

// ListJobResults returns the most recent job results, newest first,
// up to limit (0 means no limit).
func (s *Store) ListJobResults(ctx context.Context, limit int) ([]model.JobResult, error) {
	query := `SELECT id, name, status, started_at, completed_at, tasks_json FROM job_results ORDER BY completed_at DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list job results: %w", err)
	}
	defer rows.Close()

	var results []model.JobResult
	for rows.Next() {
		var result model.JobResult
		var status string
		var tasksJSON string
		if err := rows.Scan(&result.ID, &result.Name, &status, &result.StartedAt, &result.CompletedAt, &tasksJSON); err != nil {
			return nil, fmt.Errorf("scan job result: %w", err)
		}
		result.Status = model.JobStatus(status)
		if err := json.Unmarshal([]byte(tasksJSON), &result.Tasks); err != nil {
			return nil, fmt.Errorf("decode tasks: %w", err)
		}
		results = append(results, result)
	}
	return results, rows.Err()
}
