package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"nodeipc/internal/config"
)

// Store persists call entries in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	defaultListLimit        = 20
	maxDetailLength         = 512
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// ErrDisabled is returned by Open when the journal is turned off.
var ErrDisabled = errors.New("journal disabled")

// Open creates or opens the journal database named by cfg.
func Open(cfg *config.Config) (*Store, error) {
	if cfg == nil || !cfg.Journal.Enabled {
		return nil, ErrDisabled
	}
	dbPath := cfg.Journal.Path
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Pragmas are per connection; a single connection keeps them in force.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode=WAL",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record inserts entry and sets its ID.
func (s *Store) Record(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return errors.New("journal entry is nil")
	}
	if entry.StartedAt.IsZero() {
		entry.StartedAt = time.Now()
	}
	if entry.Outcome == "" {
		entry.Outcome = OutcomeOK
	}
	detail := entry.Detail
	if len(detail) > maxDetailLength {
		detail = detail[:maxDetailLength]
	}

	var res sql.Result
	err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx,
			`INSERT INTO calls (
                started_at, command, method, endpoint, batch_size,
                outcome, error_kind, detail, duration_ms
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.StartedAt.UTC().Format(time.RFC3339Nano),
			entry.Command,
			entry.Method,
			entry.Endpoint,
			entry.BatchSize,
			string(entry.Outcome),
			entry.ErrorKind,
			detail,
			entry.Duration.Milliseconds(),
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("journal entry id: %w", err)
	}
	entry.ID = id
	return nil
}

// List returns the most recent entries, newest first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Entry, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `SELECT id, started_at, command, method, endpoint, batch_size,
        outcome, error_kind, detail, duration_ms FROM calls`
	args := make([]any, 0, 2)
	if method := strings.TrimSpace(opts.Method); method != "" {
		query += " WHERE method = ?"
		args = append(args, method)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}
	return entries, nil
}

// Summarize aggregates all entries by method, busiest first.
func (s *Store) Summarize(ctx context.Context) ([]MethodSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT method,
            COUNT(1),
            SUM(CASE WHEN outcome = 'ok' THEN 0 ELSE 1 END),
            CAST(AVG(duration_ms) AS INTEGER),
            MAX(started_at)
        FROM calls
        GROUP BY method
        ORDER BY COUNT(1) DESC, method ASC`)
	if err != nil {
		return nil, fmt.Errorf("summarize journal: %w", err)
	}
	defer rows.Close()

	var summaries []MethodSummary
	for rows.Next() {
		var (
			summary MethodSummary
			avgMS   int64
			last    string
		)
		if err := rows.Scan(&summary.Method, &summary.Calls, &summary.Failures, &avgMS, &last); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summary.AvgDuration = time.Duration(avgMS) * time.Millisecond
		summary.LastCalled = parseTime(last)
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summary: %w", err)
	}
	return summaries, nil
}

// Clear deletes every entry and returns how many were removed.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	var res sql.Result
	err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, "DELETE FROM calls")
		return execErr
	})
	if err != nil {
		return 0, fmt.Errorf("clear journal: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		entry      Entry
		startedAt  string
		outcome    string
		durationMS int64
	)
	if err := row.Scan(
		&entry.ID,
		&startedAt,
		&entry.Command,
		&entry.Method,
		&entry.Endpoint,
		&entry.BatchSize,
		&outcome,
		&entry.ErrorKind,
		&entry.Detail,
		&durationMS,
	); err != nil {
		return Entry{}, fmt.Errorf("scan journal entry: %w", err)
	}
	entry.StartedAt = parseTime(startedAt)
	entry.Outcome = Outcome(outcome)
	entry.Duration = time.Duration(durationMS) * time.Millisecond
	return entry, nil
}

func parseTime(value string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return ts
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
