// Package ledger persists provider attempts to SQLite so usage survives
// restarts and can be reported from the CLI.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/pario-ai/giftrouter/pkg/models"
)

// Ledger is an append-only attempt log. It implements tracker.Sink.
type Ledger struct {
	db  *sql.DB
	log zerolog.Logger

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

const createTable = `
CREATE TABLE IF NOT EXISTS attempts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	provider TEXT NOT NULL,
	tier TEXT NOT NULL DEFAULT '',
	input_tokens INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	cost_usd REAL NOT NULL,
	success INTEGER NOT NULL,
	error_kind TEXT NOT NULL DEFAULT '',
	fallback INTEGER NOT NULL DEFAULT 0,
	latency_ms INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attempts_provider_time ON attempts(provider, created_at);
`

// New opens the ledger database and runs auto-migration.
func New(dbPath string, log zerolog.Logger) (*Ledger, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate ledger db: %w", err)
	}

	return &Ledger{db: db, log: log, done: make(chan struct{})}, nil
}

// RetainFor starts an hourly goroutine that deletes attempts older than
// retention until Close. Call it at most once.
func (l *Ledger) RetainFor(retention time.Duration) {
	if retention <= 0 {
		return
	}
	l.wg.Add(1)
	go l.retentionLoop(retention, time.Hour)
}

func (l *Ledger) retentionLoop(retention, every time.Duration) {
	defer l.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.expire(retention)
		}
	}
}

func (l *Ledger) expire(retention time.Duration) {
	n, err := l.Cleanup(context.Background(), time.Now().Add(-retention))
	if err != nil {
		l.log.Warn().Err(err).Dur("retention", retention).Msg("ledger retention cleanup failed")
		return
	}
	if n > 0 {
		l.log.Debug().Int64("deleted", n).Msg("ledger retention cleanup")
	}
}

// Cleanup deletes attempts recorded before cutoff.
func (l *Ledger) Cleanup(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM attempts WHERE created_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("ledger cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Append stores one attempt.
func (l *Ledger) Append(ctx context.Context, a models.Attempt) error {
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO attempts (provider, tier, input_tokens, output_tokens, cost_usd, success, error_kind, fallback, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Provider, string(a.Tier), a.InputTokens, a.OutputTokens, a.CostUSD,
		boolInt(a.Success), a.ErrorKind, boolInt(a.Fallback), a.Latency.Milliseconds(), createdAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("append attempt: %w", err)
	}
	return nil
}

// Summary returns usage grouped by provider for attempts at or after since.
func (l *Ledger) Summary(ctx context.Context, since time.Time) ([]models.UsageSummary, error) {
	var from int64
	if !since.IsZero() {
		from = since.UnixNano()
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT provider, COUNT(*), SUM(success), SUM(input_tokens), SUM(output_tokens), SUM(cost_usd)
		 FROM attempts WHERE created_at >= ?
		 GROUP BY provider ORDER BY provider`,
		from,
	)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.UsageSummary
	for rows.Next() {
		var s models.UsageSummary
		if err := rows.Scan(&s.Provider, &s.Attempts, &s.Successes, &s.InputTokens, &s.OutputTokens, &s.Cost); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Recent returns up to limit attempts, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]models.Attempt, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT provider, tier, input_tokens, output_tokens, cost_usd, success, error_kind, fallback, latency_ms, created_at
		 FROM attempts ORDER BY created_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent attempts: %w", err)
	}
	defer rows.Close()

	var attempts []models.Attempt
	for rows.Next() {
		var a models.Attempt
		var tier string
		var success, fallback int
		var latencyMS, createdAt int64
		if err := rows.Scan(&a.Provider, &tier, &a.InputTokens, &a.OutputTokens, &a.CostUSD,
			&success, &a.ErrorKind, &fallback, &latencyMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.Tier = models.Tier(tier)
		a.Success = success != 0
		a.Fallback = fallback != 0
		a.Latency = time.Duration(latencyMS) * time.Millisecond
		a.CreatedAt = time.Unix(0, createdAt).UTC()
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// Close stops the retention goroutine and releases the database connection.
func (l *Ledger) Close() error {
	l.stopOnce.Do(func() { close(l.done) })
	l.wg.Wait()
	return l.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
