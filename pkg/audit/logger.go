package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/pario-ai/deckgen/pkg/models"
)

// Logger writes and queries audited gateway calls in a dedicated SQLite
// database. It satisfies llm.CallLogger.
type Logger struct {
	db      *sql.DB
	cfg     models.AuditConfig
	done    chan struct{}
	wg      sync.WaitGroup
	include map[string]bool
}

// New opens the audit SQLite database and creates the schema.
func New(cfg models.AuditConfig) (*Logger, error) {
	db, err := sql.Open("sqlite", cfg.DBPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}

	inc := make(map[string]bool)
	for _, v := range cfg.Include {
		inc[v] = true
	}

	l := &Logger{
		db:      db,
		cfg:     cfg,
		done:    make(chan struct{}),
		include: inc,
	}

	if cfg.RetentionDays > 0 {
		l.wg.Add(1)
		go l.retentionLoop()
	}

	return l, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS gateway_calls (
		id            TEXT PRIMARY KEY,
		run_id        TEXT NOT NULL DEFAULT '',
		operation     TEXT NOT NULL,
		model         TEXT NOT NULL,
		cached        INTEGER NOT NULL DEFAULT 0,
		attempt       INTEGER NOT NULL DEFAULT 1,
		status        TEXT NOT NULL,
		error_kind    TEXT NOT NULL DEFAULT '',
		prompt        TEXT NOT NULL DEFAULT '',
		response      TEXT NOT NULL DEFAULT '',
		input_tokens  INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		cached_tokens INTEGER NOT NULL DEFAULT 0,
		latency_ms    INTEGER NOT NULL DEFAULT 0,
		created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_calls_run ON gateway_calls(run_id)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_calls_created ON gateway_calls(created_at)`)
	return err
}

// Log inserts a call entry. Prompt and response text are kept only when
// listed in the include configuration, truncated to MaxBodySize.
func (l *Logger) Log(ctx context.Context, entry models.CallEntry) error {
	if l == nil || l.db == nil {
		return nil
	}

	prompt := entry.Prompt
	response := entry.Response
	if !l.include["prompts"] {
		prompt = ""
	}
	if !l.include["responses"] {
		response = ""
	}
	if l.cfg.MaxBodySize > 0 {
		prompt = truncate(prompt, l.cfg.MaxBodySize)
		response = truncate(response, l.cfg.MaxBodySize)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO gateway_calls
		(id, run_id, operation, model, cached, attempt, status, error_kind,
		 prompt, response, input_tokens, output_tokens, cached_tokens, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.RunID, entry.Operation, entry.Model, entry.Cached, entry.Attempt,
		entry.Status, entry.ErrorKind, prompt, response,
		entry.InputTokens, entry.OutputTokens, entry.CachedTokens,
		entry.LatencyMs, entry.CreatedAt,
	)
	return err
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && n < len(s) && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}

// Query returns call entries matching the given options, newest first.
func (l *Logger) Query(ctx context.Context, opts models.CallQueryOpts) ([]models.CallEntry, error) {
	q := `SELECT id, run_id, operation, model, cached, attempt, status, error_kind,
		prompt, response, input_tokens, output_tokens, cached_tokens, latency_ms, created_at
		FROM gateway_calls WHERE 1=1`
	var args []any

	if opts.RunID != "" {
		q += " AND run_id = ?"
		args = append(args, opts.RunID)
	}
	if opts.Model != "" {
		q += " AND model = ?"
		args = append(args, opts.Model)
	}
	if opts.Operation != "" {
		q += " AND operation = ?"
		args = append(args, opts.Operation)
	}
	if !opts.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, opts.Since)
	}

	q += " ORDER BY created_at DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var entries []models.CallEntry
	for rows.Next() {
		var e models.CallEntry
		if err := rows.Scan(
			&e.ID, &e.RunID, &e.Operation, &e.Model, &e.Cached, &e.Attempt,
			&e.Status, &e.ErrorKind, &e.Prompt, &e.Response,
			&e.InputTokens, &e.OutputTokens, &e.CachedTokens,
			&e.LatencyMs, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats returns call counts and token totals grouped by model and status.
func (l *Logger) Stats(ctx context.Context) ([]models.CallStat, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT model, status, count(*), COALESCE(SUM(input_tokens + output_tokens), 0)
		 FROM gateway_calls GROUP BY model, status ORDER BY model, status`)
	if err != nil {
		return nil, fmt.Errorf("audit stats: %w", err)
	}
	defer rows.Close()

	var stats []models.CallStat
	for rows.Next() {
		var s models.CallStat
		if err := rows.Scan(&s.Model, &s.Status, &s.Count, &s.Tokens); err != nil {
			return nil, fmt.Errorf("scan audit stat: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Cleanup deletes entries older than the configured retention period.
func (l *Logger) Cleanup(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -l.cfg.RetentionDays)
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM gateway_calls WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the retention goroutine and closes the database.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	close(l.done)
	l.wg.Wait()
	return l.db.Close()
}

func (l *Logger) retentionLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			n, err := l.Cleanup(context.Background())
			if err != nil {
				log.Warn().Err(err).Msg("audit retention cleanup failed")
			} else if n > 0 {
				log.Debug().Int64("deleted", n).Int("retention_days", l.cfg.RetentionDays).Msg("audit retention cleanup")
			}
		}
	}
}
