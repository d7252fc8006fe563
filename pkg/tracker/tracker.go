package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pario-ai/deckgen/pkg/models"
)

// Tracker records generation runs and their event logs.
type Tracker interface {
	// RecordRun inserts or updates a run record.
	RecordRun(ctx context.Context, run models.RunRecord) error
	// GetRun returns a single run by ID.
	GetRun(ctx context.Context, id string) (models.RunRecord, error)
	// ListRuns returns the most recent runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]models.RunRecord, error)
	// Summary returns run totals grouped by model.
	Summary(ctx context.Context) ([]models.RunSummary, error)
	// TokensSince sums input and output tokens of runs created at or after
	// since. An empty model matches every model.
	TokensSince(ctx context.Context, model string, since time.Time) (int64, error)
	// LogEvent appends an event to a run's log.
	LogEvent(ctx context.Context, ev models.Event) error
	// Events returns a run's log in emission order.
	Events(ctx context.Context, runID string) ([]models.Event, error)
	// Cleanup removes runs and events older than retention.
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)
	// Close releases resources.
	Close() error
}

// SQLiteTracker implements Tracker with a SQLite database.
type SQLiteTracker struct {
	db *sql.DB
}

const createRunsTable = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	document TEXT NOT NULL,
	model TEXT NOT NULL,
	phase TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	commands INTEGER NOT NULL DEFAULT 0,
	selected INTEGER NOT NULL DEFAULT 0,
	total_cards INTEGER NOT NULL DEFAULT 0,
	blocked_chunks INTEGER NOT NULL DEFAULT 0,
	retried_chunks INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	cards_per_minute INTEGER NOT NULL DEFAULT 0,
	input_tokens INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
`

const createEventsTable = `
CREATE TABLE IF NOT EXISTS run_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	phase TEXT NOT NULL,
	kind TEXT NOT NULL,
	level TEXT NOT NULL,
	message TEXT NOT NULL,
	current INTEGER NOT NULL DEFAULT 0,
	total INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_events_run ON run_events(run_id, id);
`

// New creates a SQLiteTracker and runs auto-migration.
func New(dbPath string) (*SQLiteTracker, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open tracker db: %w", err)
	}

	if _, err := db.Exec(createRunsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate tracker db: %w", err)
	}

	if _, err := db.Exec(createEventsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate events table: %w", err)
	}

	// Columns added after the first release.
	for _, col := range []struct{ name, ddl string }{
		{"focus", `ALTER TABLE runs ADD COLUMN focus TEXT NOT NULL DEFAULT ''`},
		{"cached_tokens", `ALTER TABLE runs ADD COLUMN cached_tokens INTEGER NOT NULL DEFAULT 0`},
	} {
		if columnExists(db, "runs", col.name) {
			continue
		}
		if _, err := db.Exec(col.ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("add %s column: %w", col.name, err)
		}
	}

	return &SQLiteTracker{db: db}, nil
}

func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false
		}
		if name == column {
			return true
		}
	}
	return false
}

const runColumns = `id, document, focus, model, phase, error, commands, selected, total_cards,
	blocked_chunks, retried_chunks, duration_ms, cards_per_minute,
	input_tokens, output_tokens, cached_tokens, created_at`

// RecordRun upserts a run. A run is recorded once when it starts and again
// when it reaches a terminal phase.
func (t *SQLiteTracker) RecordRun(ctx context.Context, run models.RunRecord) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO runs (`+runColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			phase = excluded.phase,
			error = excluded.error,
			commands = excluded.commands,
			selected = excluded.selected,
			total_cards = excluded.total_cards,
			blocked_chunks = excluded.blocked_chunks,
			retried_chunks = excluded.retried_chunks,
			duration_ms = excluded.duration_ms,
			cards_per_minute = excluded.cards_per_minute,
			input_tokens = excluded.input_tokens,
			output_tokens = excluded.output_tokens,
			cached_tokens = excluded.cached_tokens`,
		run.ID, run.Document, run.Focus, run.Model, run.Phase, run.Error,
		run.Commands, run.Selected, run.TotalCards, run.BlockedChunks, run.RetriedChunks,
		run.DurationMs, run.CardsPerMinute,
		run.Usage.InputTokens, run.Usage.OutputTokens, run.Usage.CachedTokens, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (models.RunRecord, error) {
	var r models.RunRecord
	err := s.Scan(&r.ID, &r.Document, &r.Focus, &r.Model, &r.Phase, &r.Error,
		&r.Commands, &r.Selected, &r.TotalCards, &r.BlockedChunks, &r.RetriedChunks,
		&r.DurationMs, &r.CardsPerMinute,
		&r.Usage.InputTokens, &r.Usage.OutputTokens, &r.Usage.CachedTokens, &r.CreatedAt)
	return r, err
}

// GetRun returns a single run by ID.
func (t *SQLiteTracker) GetRun(ctx context.Context, id string) (models.RunRecord, error) {
	row := t.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return models.RunRecord{}, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return models.RunRecord{}, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns the most recent runs, newest first. limit <= 0 means 50.
func (t *SQLiteTracker) ListRuns(ctx context.Context, limit int) ([]models.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := t.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []models.RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Summary returns run totals grouped by model.
func (t *SQLiteTracker) Summary(ctx context.Context) ([]models.RunSummary, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT model, COUNT(*), SUM(CASE WHEN phase = 'error' THEN 1 ELSE 0 END),
			SUM(total_cards), SUM(blocked_chunks), SUM(input_tokens + output_tokens)
		 FROM runs GROUP BY model ORDER BY model`)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.RunSummary
	for rows.Next() {
		var s models.RunSummary
		if err := rows.Scan(&s.Model, &s.Runs, &s.Failed, &s.TotalCards, &s.Blocked, &s.TotalTokens); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// TokensSince sums input and output tokens of runs created at or after since.
func (t *SQLiteTracker) TokensSince(ctx context.Context, model string, since time.Time) (int64, error) {
	var total int64
	err := t.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(input_tokens + output_tokens), 0) FROM runs
		 WHERE created_at >= ? AND (? = '' OR model = ?)`,
		since.UTC(), model, model,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("tokens since: %w", err)
	}
	return total, nil
}

// LogEvent appends an event to a run's log.
func (t *SQLiteTracker) LogEvent(ctx context.Context, ev models.Event) error {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO run_events (run_id, created_at, phase, kind, level, message, current, total)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.RunID, ev.Time, ev.Phase, ev.Kind, ev.Level, ev.Message, ev.Current, ev.Total,
	)
	if err != nil {
		return fmt.Errorf("log event: %w", err)
	}
	return nil
}

// Events returns a run's log in emission order.
func (t *SQLiteTracker) Events(ctx context.Context, runID string) ([]models.Event, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT run_id, created_at, phase, kind, level, message, current, total
		 FROM run_events WHERE run_id = ? ORDER BY id ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var ev models.Event
		if err := rows.Scan(&ev.RunID, &ev.Time, &ev.Phase, &ev.Kind, &ev.Level, &ev.Message, &ev.Current, &ev.Total); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Cleanup removes runs created before now-retention together with their
// events. It returns the number of runs removed.
func (t *SQLiteTracker) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("cleanup: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM run_events WHERE run_id IN (SELECT id FROM runs WHERE created_at < ?)`, cutoff,
	); err != nil {
		return 0, fmt.Errorf("cleanup events: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup runs: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("cleanup commit: %w", err)
	}
	return res.RowsAffected()
}

// Close releases the database connection.
func (t *SQLiteTracker) Close() error {
	return t.db.Close()
}
