// Package journal keeps an optional SQLite record of handled requests. Only
// metadata is stored: kind, chat, outcome and latency, never message content.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"relaybot/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteJournal implements domain.Journal using SQLite.
type SQLiteJournal struct {
	db     *sql.DB
	logger *slog.Logger
}

// KindSummary aggregates journal rows for one request kind.
type KindSummary struct {
	Kind         string
	Total        int
	OK           int
	Errors       int
	Rejected     int
	AvgLatencyMs float64
}

func NewSQLite(dbPath string, logger *slog.Logger) (*SQLiteJournal, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create journal directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open journal: %w", err)
	}

	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal migration failed: %w", err)
	}
	return &SQLiteJournal{db: db, logger: logger}, nil
}

func (j *SQLiteJournal) Record(ctx context.Context, rec domain.RequestRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO requests (id, kind, chat_id, outcome, error, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Kind, rec.ChatID, rec.Outcome, rec.Error, rec.LatencyMs, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("journal insert: %w", err)
	}
	return nil
}

// Summary aggregates requests created at or after since, one row per kind.
func (j *SQLiteJournal) Summary(ctx context.Context, since time.Time) ([]KindSummary, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT kind,
		        COUNT(*),
		        SUM(CASE WHEN outcome = 'ok' THEN 1 ELSE 0 END),
		        SUM(CASE WHEN outcome = 'error' THEN 1 ELSE 0 END),
		        SUM(CASE WHEN outcome = 'rejected' THEN 1 ELSE 0 END),
		        AVG(latency_ms)
		   FROM requests
		  WHERE created_at >= ?
		  GROUP BY kind
		  ORDER BY kind`, since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("journal summary: %w", err)
	}
	defer rows.Close()

	var out []KindSummary
	for rows.Next() {
		var s KindSummary
		if err := rows.Scan(&s.Kind, &s.Total, &s.OK, &s.Errors, &s.Rejected, &s.AvgLatencyMs); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Recent returns the latest records, newest first.
func (j *SQLiteJournal) Recent(ctx context.Context, limit int) ([]domain.RequestRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, kind, chat_id, outcome, error, latency_ms, created_at
		   FROM requests ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("journal recent: %w", err)
	}
	defer rows.Close()

	var out []domain.RequestRecord
	for rows.Next() {
		var r domain.RequestRecord
		if err := rows.Scan(&r.ID, &r.Kind, &r.ChatID, &r.Outcome, &r.Error, &r.LatencyMs, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
