// Package store keeps a ledger of finished caption jobs in sqlite.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"GarmentCaption/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var ErrJobNotFound = errors.New("job not found")

const (
	StatusSucceeded   = "succeeded"
	StatusNoDetection = "no_detection"
	StatusFailed      = "failed"
)

type JobRecord struct {
	ID            string    `json:"id"`
	Filename      string    `json:"filename"`
	Caption       string    `json:"caption"`
	Status        string    `json:"status"`
	Frames        int       `json:"frames"`
	TrackedFrames int       `json:"trackedFrames"`
	LostFrames    int       `json:"lostFrames"`
	Detected      bool      `json:"detected"`
	ElapsedMS     int64     `json:"elapsedMs"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// one writer; avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure %s: %w", path, err)
	}
	s := &Store{db: db}
	if err := s.migrateUp(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	// m is not closed: that would close s.db
	m.Log = migrateLogger{}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...any) {
	logger.S().Infof("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool {
	return false
}

// RecordJob inserts rec, replacing an earlier record with the same ID. A
// zero CreatedAt is set to now.
func (s *Store) RecordJob(ctx context.Context, rec JobRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO jobs
			(id, filename, caption, status, frames, tracked_frames, lost_frames, detected, elapsed_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Filename, rec.Caption, rec.Status,
		rec.Frames, rec.TrackedFrames, rec.LostFrames, rec.Detected,
		rec.ElapsedMS, rec.Error, rec.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("record job %s: %w", rec.ID, err)
	}
	logger.Log().Debug("job recorded", zap.String("jobID", rec.ID), zap.String("status", rec.Status))
	return nil
}

const selectJob = `SELECT id, filename, caption, status, frames, tracked_frames, lost_frames,
	detected, elapsed_ms, error, created_at FROM jobs`

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (JobRecord, error) {
	var rec JobRecord
	var created int64
	err := row.Scan(&rec.ID, &rec.Filename, &rec.Caption, &rec.Status,
		&rec.Frames, &rec.TrackedFrames, &rec.LostFrames, &rec.Detected,
		&rec.ElapsedMS, &rec.Error, &created)
	if err != nil {
		return JobRecord{}, err
	}
	rec.CreatedAt = time.UnixMilli(created)
	return rec, nil
}

func (s *Store) GetJob(ctx context.Context, id string) (JobRecord, error) {
	rec, err := scanJob(s.db.QueryRowContext(ctx, selectJob+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return JobRecord{}, ErrJobNotFound
	}
	if err != nil {
		return JobRecord{}, fmt.Errorf("get job %s: %w", id, err)
	}
	return rec, nil
}

// ListJobs returns up to limit records, newest first.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]JobRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, selectJob+` ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	var out []JobRecord
	for rows.Next() {
		rec, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
