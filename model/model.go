// Package model holds the domain types shared across the pipeline:
// postings, submission attempts, run statistics, and manual status history.
package model

import "time"

// Outcome is the terminal result of processing one posting.
type Outcome string

const (
	// OutcomeSubmitted means the final submit action succeeded. Terminal:
	// a submitted posting is never attempted again.
	OutcomeSubmitted Outcome = "submitted"

	// OutcomeSimulated means a dry run reached the final step and halted
	// before the submit click.
	OutcomeSimulated Outcome = "simulated"

	// OutcomeFiltered means a block rule rejected the posting before the
	// engine ran.
	OutcomeFiltered Outcome = "filtered"

	// OutcomeFailed means an unrecoverable field or page error. Retryable
	// in a later run when the retry policy allows it.
	OutcomeFailed Outcome = "failed"

	// OutcomeSkipped means the form layout was unrecognized or a required
	// field stayed unresolved after all fallback strategies.
	OutcomeSkipped Outcome = "skipped"
)

// Valid reports whether o is one of the known outcomes.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeSubmitted, OutcomeSimulated, OutcomeFiltered, OutcomeFailed, OutcomeSkipped:
		return true
	}
	return false
}

// Countable reports whether o counts against the per-run submission limit.
func (o Outcome) Countable() bool {
	return o == OutcomeSubmitted || o == OutcomeSimulated
}

// JobPosting is a discovered job listing. The ID is the site-assigned
// identifier and is unique in the store; re-encountering the same ID only
// refreshes LastSeen.
type JobPosting struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Company   string    `json:"company"`
	URL       string    `json:"url"`
	Location  string    `json:"location"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// SubmissionAttempt is the recorded outcome of one engine invocation
// (or a filter rejection) for one posting.
type SubmissionAttempt struct {
	ID            string        `json:"id"`
	PostingID     string        `json:"posting_id"`
	RunID         string        `json:"run_id"`
	Outcome       Outcome       `json:"outcome"`
	FailureReason string        `json:"failure_reason,omitempty"`
	Duration      time.Duration `json:"duration_ms"`
	CreatedAt     time.Time     `json:"created_at"`
}

// RunStats aggregates counters for one pipeline run. Created at run start,
// sealed by Finalize at run end, never mutated afterward.
type RunStats struct {
	RunID      string    `json:"run_id"`
	Inspected  int       `json:"inspected"`
	Submitted  int       `json:"submitted"`
	Filtered   int       `json:"filtered"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	Simulation bool      `json:"simulation"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// Finalize seals the stats. The first call sets EndedAt; later calls are
// no-ops so a run can never be re-opened.
func (s *RunStats) Finalize() {
	if s.EndedAt.IsZero() {
		s.EndedAt = time.Now().UTC()
	}
}

// Sealed reports whether Finalize has been called.
func (s *RunStats) Sealed() bool { return !s.EndedAt.IsZero() }

// StatusEntry is a manual status transition for a posting
// (applied, interview, offer, rejected, ...). Append-only audit trail.
type StatusEntry struct {
	ID        string    `json:"id"`
	PostingID string    `json:"posting_id"`
	Status    string    `json:"status"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
