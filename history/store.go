// Package history is the durable record of postings, submission attempts,
// run statistics, and manual status transitions. It is the single writer
// of record during a run; the dashboard reads it concurrently through
// SQLite's WAL mode.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/talentpilot/talentpilot/dbopen"
	"github.com/talentpilot/talentpilot/idgen"
	"github.com/talentpilot/talentpilot/model"
)

// Config tunes the Store.
type Config struct {
	// RetryFailed allows a posting whose last attempt failed (or was
	// skipped) to be attempted again in a later run. A submitted posting
	// is terminal regardless.
	RetryFailed bool

	IDs    idgen.Generator
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.IDs == nil {
		c.IDs = idgen.Default
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Store wraps the SQLite history database.
type Store struct {
	db  *sql.DB
	cfg Config
}

// Open opens (and if needed creates) the history database at path.
func Open(path string, cfg Config) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	return New(db, cfg), nil
}

// New wraps an existing database handle. The schema must already be
// applied (dbopen.WithSchema or a migration step).
func New(db *sql.DB, cfg Config) *Store {
	cfg.defaults()
	return &Store{db: db, cfg: cfg}
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the handle for read-only consumers (dashboard, export).
func (s *Store) DB() *sql.DB { return s.db }

// UpsertPosting records a posting, or refreshes last_seen when the ID is
// already known. First-seen metadata is immutable after the first insert.
func (s *Store) UpsertPosting(ctx context.Context, p model.JobPosting) error {
	now := time.Now().UTC()
	first := p.FirstSeen
	if first.IsZero() {
		first = now
	}
	last := p.LastSeen
	if last.IsZero() {
		last = now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO postings (id, title, company, url, location, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET last_seen = excluded.last_seen`,
		p.ID, p.Title, p.Company, p.URL, p.Location, first.Unix(), last.Unix())
	if err != nil {
		return fmt.Errorf("history: upsert posting %s: %w", p.ID, err)
	}
	return nil
}

// HasTerminalSubmission reports whether postingID already has an attempt
// that rules out another engine invocation: submitted always does;
// failed and skipped do when the retry policy forbids retries.
func (s *Store) HasTerminalSubmission(ctx context.Context, postingID string) (bool, error) {
	terminal := []any{string(model.OutcomeSubmitted)}
	query := `SELECT COUNT(*) FROM submissions WHERE posting_id = ? AND outcome IN (?`
	if !s.cfg.RetryFailed {
		terminal = append(terminal, string(model.OutcomeFailed), string(model.OutcomeSkipped))
		query += `, ?, ?`
	}
	query += `)`

	args := append([]any{postingID}, terminal...)
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("history: terminal check %s: %w", postingID, err)
	}
	return n > 0, nil
}

// ErrAlreadySubmitted rejects a new attempt for a posting that already
// has a submitted one. A submitted posting is final; only the dedup read
// should normally prevent it from reaching this point.
var ErrAlreadySubmitted = errors.New("history: posting already submitted")

// RecordAttempt persists one attempt and returns it with ID and timestamp
// filled in. A submitted outcome also appends an automatic "applied"
// status entry for the posting. An attempt against a posting that already
// holds a submitted row is rejected with ErrAlreadySubmitted.
func (s *Store) RecordAttempt(ctx context.Context, a model.SubmissionAttempt) (model.SubmissionAttempt, error) {
	if !a.Outcome.Valid() {
		return a, fmt.Errorf("history: invalid outcome %q", a.Outcome)
	}
	var submitted int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM submissions WHERE posting_id = ? AND outcome = ?`,
		a.PostingID, string(model.OutcomeSubmitted)).Scan(&submitted); err != nil {
		return a, fmt.Errorf("history: attempt guard for %s: %w", a.PostingID, err)
	}
	if submitted > 0 {
		return a, fmt.Errorf("%w: %s", ErrAlreadySubmitted, a.PostingID)
	}
	if a.ID == "" {
		a.ID = idgen.Prefixed("sub_", s.cfg.IDs)()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	var reason any
	if a.FailureReason != "" {
		reason = a.FailureReason
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO submissions (id, posting_id, run_id, outcome, duration_ms, failure_reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.PostingID, a.RunID, string(a.Outcome), a.Duration.Milliseconds(), reason, a.CreatedAt.Unix())
	if err != nil {
		return a, fmt.Errorf("history: record attempt for %s: %w", a.PostingID, err)
	}

	if a.Outcome == model.OutcomeSubmitted {
		if _, err := s.AppendStatus(ctx, a.PostingID, "applied", ""); err != nil {
			s.cfg.Logger.Warn("history: auto status entry failed", "posting", a.PostingID, "error", err)
		}
	}
	return a, nil
}

// StartRun creates a sessions row and returns the run's stats value.
func (s *Store) StartRun(ctx context.Context, simulation bool) (*model.RunStats, error) {
	stats := &model.RunStats{
		RunID:      idgen.Prefixed("run_", s.cfg.IDs)(),
		Simulation: simulation,
		StartedAt:  time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, simulation, started_at) VALUES (?, ?, ?)`,
		stats.RunID, boolInt(simulation), stats.StartedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("history: start run: %w", err)
	}
	return stats, nil
}

// FinalizeRun seals the stats and writes the final counters. A run row is
// sealed at most once; finalizing an already-ended run leaves it alone.
func (s *Store) FinalizeRun(ctx context.Context, stats *model.RunStats) error {
	stats.Finalize()
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET inspected = ?, submitted = ?, filtered = ?, failed = ?, skipped = ?, ended_at = ?
		WHERE id = ? AND ended_at IS NULL`,
		stats.Inspected, stats.Submitted, stats.Filtered, stats.Failed, stats.Skipped,
		stats.EndedAt.Unix(), stats.RunID)
	if err != nil {
		return fmt.Errorf("history: finalize run %s: %w", stats.RunID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		s.cfg.Logger.Debug("history: run already sealed", "run", stats.RunID)
	}
	return nil
}

// AppendStatus adds a manual status transition for a posting. The trail
// is append-only; there is no update or delete path.
func (s *Store) AppendStatus(ctx context.Context, postingID, status, note string) (model.StatusEntry, error) {
	entry := model.StatusEntry{
		ID:        idgen.Prefixed("st_", s.cfg.IDs)(),
		PostingID: postingID,
		Status:    status,
		Note:      note,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO status_history (id, posting_id, status, note, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.PostingID, entry.Status, entry.Note, entry.CreatedAt.Unix())
	if err != nil {
		return entry, fmt.Errorf("history: append status for %s: %w", postingID, err)
	}
	return entry, nil
}

// StatusHistory returns a posting's status trail, oldest first.
func (s *Store) StatusHistory(ctx context.Context, postingID string) ([]model.StatusEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, posting_id, status, note, created_at
		FROM status_history WHERE posting_id = ? ORDER BY created_at, id`, postingID)
	if err != nil {
		return nil, fmt.Errorf("history: status history %s: %w", postingID, err)
	}
	defer rows.Close()

	var out []model.StatusEntry
	for rows.Next() {
		var e model.StatusEntry
		var created int64
		if err := rows.Scan(&e.ID, &e.PostingID, &e.Status, &e.Note, &created); err != nil {
			return nil, err
		}
		e.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Record is one submission joined with its posting, the shape consumed by
// reporting and export.
type Record struct {
	model.SubmissionAttempt
	Title    string `json:"title"`
	Company  string `json:"company"`
	URL      string `json:"url"`
	Location string `json:"location"`
}

// RecentSubmissions returns up to limit submission records, newest first.
// limit <= 0 returns everything.
func (s *Store) RecentSubmissions(ctx context.Context, limit int) ([]Record, error) {
	query := recordQuery + ` ORDER BY s.created_at DESC, s.id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryRecords(ctx, query, args...)
}

const recordQuery = `
	SELECT s.id, s.posting_id, s.run_id, s.outcome, s.duration_ms, s.failure_reason, s.created_at,
	       p.title, p.company, p.url, p.location
	FROM submissions s
	JOIN postings p ON p.id = s.posting_id`

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: query records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var reason sql.NullString
		var durationMS, created int64
		if err := rows.Scan(&r.ID, &r.PostingID, &r.RunID, &r.Outcome, &durationMS, &reason, &created,
			&r.Title, &r.Company, &r.URL, &r.Location); err != nil {
			return nil, err
		}
		r.FailureReason = reason.String
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Postings returns up to limit postings, most recently seen first.
func (s *Store) Postings(ctx context.Context, limit int) ([]model.JobPosting, error) {
	query := `
		SELECT id, title, company, url, location, first_seen, last_seen
		FROM postings ORDER BY last_seen DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: postings: %w", err)
	}
	defer rows.Close()

	var out []model.JobPosting
	for rows.Next() {
		var p model.JobPosting
		var first, last int64
		if err := rows.Scan(&p.ID, &p.Title, &p.Company, &p.URL, &p.Location, &first, &last); err != nil {
			return nil, err
		}
		p.FirstSeen = time.Unix(first, 0).UTC()
		p.LastSeen = time.Unix(last, 0).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// Runs returns up to limit run stats rows, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]model.RunStats, error) {
	query := `
		SELECT id, inspected, submitted, filtered, failed, skipped, simulation, started_at, ended_at
		FROM sessions ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: runs: %w", err)
	}
	defer rows.Close()

	var out []model.RunStats
	for rows.Next() {
		var r model.RunStats
		var sim int
		var started int64
		var ended sql.NullInt64
		if err := rows.Scan(&r.RunID, &r.Inspected, &r.Submitted, &r.Filtered, &r.Failed, &r.Skipped,
			&sim, &started, &ended); err != nil {
			return nil, err
		}
		r.Simulation = sim != 0
		r.StartedAt = time.Unix(started, 0).UTC()
		if ended.Valid {
			r.EndedAt = time.Unix(ended.Int64, 0).UTC()
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Totals is the whole-store aggregate view served by the dashboard.
type Totals struct {
	Total         int     `json:"total"`
	Submitted     int     `json:"submitted"`
	Simulated     int     `json:"simulated"`
	Filtered      int     `json:"filtered"`
	Failed        int     `json:"failed"`
	Skipped       int     `json:"skipped"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
	Runs          int     `json:"runs"`
	TopCompany    string  `json:"top_company,omitempty"`
}

// Totals aggregates submission counts across every run.
func (s *Store) Totals(ctx context.Context) (Totals, error) {
	var t Totals
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(outcome = 'submitted'), 0),
		       COALESCE(SUM(outcome = 'simulated'), 0),
		       COALESCE(SUM(outcome = 'filtered'), 0),
		       COALESCE(SUM(outcome = 'failed'), 0),
		       COALESCE(SUM(outcome = 'skipped'), 0),
		       COALESCE(AVG(CASE WHEN duration_ms > 0 THEN duration_ms END), 0)
		FROM submissions`).Scan(
		&t.Total, &t.Submitted, &t.Simulated, &t.Filtered, &t.Failed, &t.Skipped, &t.AvgDurationMS)
	if err != nil {
		return t, fmt.Errorf("history: totals: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&t.Runs); err != nil {
		return t, fmt.Errorf("history: totals: %w", err)
	}

	var company sql.NullString
	err = s.db.QueryRowContext(ctx, `
		SELECT p.company
		FROM submissions s JOIN postings p ON p.id = s.posting_id
		WHERE p.company != ''
		GROUP BY p.company ORDER BY COUNT(*) DESC, p.company LIMIT 1`).Scan(&company)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return t, fmt.Errorf("history: totals: %w", err)
	}
	t.TopCompany = company.String
	return t, nil
}
