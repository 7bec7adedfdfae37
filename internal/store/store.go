// Package store persists report settings and the history of scheduled runs in SQLite.
// Credentials and authorization codes are never written here.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// DefaultAppName names the directory under the user config dir.
const DefaultAppName = "meetmetrics"

const (
	keyRecipient    = "recipient"
	keyScheduleDay  = "schedule_day"
	keyScheduleTime = "schedule_time"
)

// Run statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// goose keeps its configuration in package globals.
var gooseMu sync.Mutex

// ErrNotFound is returned when a setting has never been saved.
var ErrNotFound = errors.New("store: not found")

// Run is one execution of the weekly report.
type Run struct {
	ID           string
	JobKey       string
	Recipient    string
	StartedAt    time.Time
	FinishedAt   time.Time
	Status       string
	MeetingCount int
	Error        string
}

// Schedule is the saved weekly report schedule as entered by the user.
type Schedule struct {
	Day  string
	Time string
}

// Store wraps the SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run goose migrations: %w", err)
	}
	return nil
}

// DefaultPath returns the database location under the user config dir.
func DefaultPath() (string, error) {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(cfgDir, DefaultAppName, DefaultAppName+".db"), nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRecipient stores the report email address.
func (s *Store) SaveRecipient(ctx context.Context, email string) error {
	return s.setSettings(ctx, map[string]string{keyRecipient: email})
}

// Recipient returns the saved report email address.
func (s *Store) Recipient(ctx context.Context) (string, error) {
	return s.setting(ctx, keyRecipient)
}

// SaveSchedule stores the weekly report schedule.
func (s *Store) SaveSchedule(ctx context.Context, sched Schedule) error {
	return s.setSettings(ctx, map[string]string{keyScheduleDay: sched.Day, keyScheduleTime: sched.Time})
}

// Schedule returns the saved weekly report schedule.
func (s *Store) Schedule(ctx context.Context) (Schedule, error) {
	day, err := s.setting(ctx, keyScheduleDay)
	if err != nil {
		return Schedule{}, err
	}
	at, err := s.setting(ctx, keyScheduleTime)
	if err != nil {
		return Schedule{}, err
	}
	return Schedule{Day: day, Time: at}, nil
}

// RecordRun inserts a run; an empty ID is replaced with a new UUID.
func (s *Store) RecordRun(ctx context.Context, run Run) (Run, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO report_runs
		(id, job_key, recipient, started_at, finished_at, status, meeting_count, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.JobKey, run.Recipient,
		formatTime(run.StartedAt), formatTime(run.FinishedAt),
		run.Status, run.MeetingCount, run.Error,
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert report run: %w", err)
	}
	return run, nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, job_key, recipient, started_at, finished_at, status, meeting_count, error
		FROM report_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query report runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run                 Run
			startedAt, finished string
		)
		if err := rows.Scan(&run.ID, &run.JobKey, &run.Recipient, &startedAt, &finished, &run.Status, &run.MeetingCount, &run.Error); err != nil {
			return nil, fmt.Errorf("scan report run: %w", err)
		}
		if run.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		if run.FinishedAt, err = parseTime(finished); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate report runs: %w", err)
	}
	return runs, nil
}

func (s *Store) setting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query setting %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) setSettings(ctx context.Context, values map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := formatTime(s.now())
	for key, value := range values {
		if _, err := tx.ExecContext(ctx, `INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`, key, value, now); err != nil {
			return fmt.Errorf("save setting %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit settings: %w", err)
	}
	return nil
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", value, err)
	}
	return t, nil
}
