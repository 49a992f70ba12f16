// Package journal persists finished tasks to sqlite so task history
// survives restarts of the agent.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/soofff/boofi/internal/task"
)

const (
	defaultBusyTimeout = 5 * time.Second
	DefaultListLimit   = 50
	MaxListLimit       = 1000
)

// Options describes parameters for opening a journal.
type Options struct {
	Path     string // sqlite database file, created with its directory when missing
	ReadOnly bool
}

// Journal stores task runs of every service.
type Journal struct {
	db       *sql.DB
	path     string
	readOnly bool
}

// Entry is one recorded task run.
type Entry struct {
	ID         string          `json:"id"`
	Service    string          `json:"service"`
	TaskID     uint64          `json:"task_id"`
	AppName    string          `json:"app_name"`
	Status     task.Status     `json:"status"`
	Input      json.RawMessage `json:"app_input"`
	Output     json.RawMessage `json:"app_output,omitempty"`
	Error      string          `json:"app_error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// NotFoundError indicates a requested entry does not exist.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("journal entry %s not found", e.ID)
}

// IsNotFound returns true when err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

// Open initialises the journal at opts.Path.
func Open(opts Options) (*Journal, error) {
	if opts.Path == "" {
		return nil, errors.New("journal: path is required")
	}
	dsn := opts.Path
	if opts.ReadOnly {
		dsn = fmt.Sprintf("file:%s?mode=ro", opts.Path)
	} else if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, fmt.Errorf("journal: create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := applyPragmas(ctx, db, opts.ReadOnly); err != nil {
		db.Close()
		return nil, err
	}
	if !opts.ReadOnly {
		if err := applySchema(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &Journal{db: db, path: opts.Path, readOnly: opts.ReadOnly}, nil
}

// Close finalises the underlying database connection.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Path returns the filesystem path of the backing database.
func (j *Journal) Path() string {
	return j.path
}

// Record stores t under service and returns the new entry id.
func (j *Journal) Record(ctx context.Context, service string, t task.Task) (string, error) {
	if j.readOnly {
		return "", errors.New("journal: opened read-only")
	}
	id := uuid.NewString()
	var finished sql.NullString
	if t.FinishedAt != nil {
		finished = sql.NullString{String: formatTime(*t.FinishedAt), Valid: true}
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO task_runs (id, service, task_id, app_name, status, input, output, error, created_at, finished_at, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, service, int64(t.ID), t.AppName, string(t.Status), string(t.Input), nullable(t.Output), t.Error,
		formatTime(t.CreatedAt), finished, formatTime(time.Now()))
	if err != nil {
		return "", fmt.Errorf("journal: insert task %d: %w", t.ID, err)
	}
	return id, nil
}

// List returns the latest entries of service, newest first. limit is
// clamped to [1, MaxListLimit]; zero means DefaultListLimit.
func (j *Journal) List(ctx context.Context, service string, limit int) ([]Entry, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, service, task_id, app_name, status, input, output, error, created_at, finished_at, recorded_at
		FROM task_runs
		WHERE service = ?
		ORDER BY rowid DESC
		LIMIT ?
	`, service, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: list %s: %w", service, err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get returns the entry with id.
func (j *Journal) Get(ctx context.Context, id string) (Entry, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT id, service, task_id, app_name, status, input, output, error, created_at, finished_at, recorded_at
		FROM task_runs
		WHERE id = ?
	`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, NotFoundError{ID: id}
	}
	return e, err
}

// Recorder binds the journal to one service so it can be handed to a
// task.Controller.
func (j *Journal) Recorder(service string) task.Recorder {
	return serviceRecorder{journal: j, service: service}
}

type serviceRecorder struct {
	journal *Journal
	service string
}

func (r serviceRecorder) Record(ctx context.Context, t task.Task) error {
	_, err := r.journal.Record(ctx, r.service, t)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e                     Entry
		taskID                int64
		status, input         string
		createdAt, recordedAt string
		output, finishedAt    sql.NullString
	)
	if err := s.Scan(&e.ID, &e.Service, &taskID, &e.AppName, &status, &input, &output, &e.Error, &createdAt, &finishedAt, &recordedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("journal: scan entry: %w", err)
	}
	e.TaskID = uint64(taskID)
	e.Status = task.Status(status)
	e.Input = json.RawMessage(input)
	if output.Valid {
		e.Output = json.RawMessage(output.String)
	}
	var err error
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return Entry{}, err
	}
	if e.RecordedAt, err = parseTime(recordedAt); err != nil {
		return Entry{}, err
	}
	if finishedAt.Valid {
		t, err := parseTime(finishedAt.String)
		if err != nil {
			return Entry{}, err
		}
		e.FinishedAt = &t
	}
	return e, nil
}

func nullable(raw json.RawMessage) sql.NullString {
	if raw == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("journal: parse time %q: %w", s, err)
	}
	return t, nil
}
