// Package pipeline sequences one full run: pull candidates, dedup against
// the history store, filter, submit, record. It enforces the per-run
// submission limit and decides what stops a run — exhaustion and the
// limit are normal stops, session-level failures are fatal.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/talentpilot/talentpilot/browser"
	"github.com/talentpilot/talentpilot/config"
	"github.com/talentpilot/talentpilot/discover"
	"github.com/talentpilot/talentpilot/filter"
	"github.com/talentpilot/talentpilot/history"
	"github.com/talentpilot/talentpilot/model"
	"github.com/talentpilot/talentpilot/session"
	"github.com/talentpilot/talentpilot/submit"
)

// maxReauthAttempts bounds mid-run re-logins after an expired session.
const maxReauthAttempts = 3

// Source yields candidate postings in listing order.
type Source interface {
	Candidates(ctx context.Context, searchURLs []string) iter.Seq2[discover.Candidate, error]
}

// Sessions is the slice of the session manager the orchestrator needs:
// page issuance and mid-run re-login. *session.Manager implements it.
type Sessions interface {
	NewPage(ctx context.Context) (browser.Adapter, error)
	Reauthenticate(ctx context.Context) error
}

// Submitter drives one admitted posting to a terminal outcome.
// *submit.Engine implements it.
type Submitter interface {
	Run(ctx context.Context, page browser.Adapter, posting model.JobPosting) (submit.Result, error)
}

// DetailsFunc scrapes posting metadata from a candidate's detail page.
type DetailsFunc func(ctx context.Context, page browser.Adapter, c discover.Candidate) (model.JobPosting, error)

// Config wires an Orchestrator.
type Config struct {
	Settings *config.Config
	Store    *history.Store
	Sessions Sessions
	Source   Source
	Engine   Submitter
	Filters  *filter.Chain

	// Details defaults to discover.FetchDetails.
	Details DetailsFunc

	Logger *slog.Logger
}

// Orchestrator runs the discover, filter, submit, record loop.
type Orchestrator struct {
	cfg Config
	log *slog.Logger
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.Details == nil {
		cfg.Details = discover.FetchDetails
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{cfg: cfg, log: cfg.Logger}
}

// Run executes one full pipeline pass. The returned stats are always
// sealed and persisted, on every exit path. A non-nil error means the run
// stopped early on a session-level failure; posting-level failures never
// surface here.
func (o *Orchestrator) Run(ctx context.Context) (*model.RunStats, error) {
	stats, err := o.cfg.Store.StartRun(ctx, o.cfg.Settings.SimulationMode)
	if err != nil {
		return nil, err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := o.cfg.Store.FinalizeRun(flushCtx, stats); err != nil {
			o.log.Error("pipeline: stats flush failed", "run", stats.RunID, "error", err)
		}
	}()

	searchURLs := discover.BuildURLs(o.cfg.Settings)
	o.log.Info("pipeline: run started",
		"run", stats.RunID,
		"searches", len(searchURLs),
		"simulation", o.cfg.Settings.SimulationMode,
		"limit", o.cfg.Settings.MaxSubmissionsPerSession)

	reauths := 0
	for candidate, err := range o.cfg.Source.Candidates(ctx, searchURLs) {
		if err != nil {
			return stats, fmt.Errorf("pipeline: candidate source: %w", err)
		}
		if o.limitReached(stats) {
			o.log.Info("pipeline: submission limit reached", "run", stats.RunID)
			return stats, nil
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		fatal, err := o.process(ctx, stats, candidate, &reauths)
		if err != nil {
			if fatal {
				return stats, err
			}
			o.log.Warn("pipeline: posting error, moving on", "posting", candidate.ID, "error", err)
		}
	}

	o.log.Info("pipeline: candidate source exhausted", "run", stats.RunID)
	return stats, nil
}

// process takes one candidate to a recorded outcome (or a dedup skip).
// fatal=true means the returned error must abort the run.
func (o *Orchestrator) process(ctx context.Context, stats *model.RunStats, candidate discover.Candidate, reauths *int) (bool, error) {
	terminal, err := o.cfg.Store.HasTerminalSubmission(ctx, candidate.ID)
	if err != nil {
		return false, err
	}
	if terminal {
		o.log.Debug("pipeline: already processed, skipping", "posting", candidate.ID)
		return false, nil
	}

	page, err := o.cfg.Sessions.NewPage(ctx)
	if err != nil {
		return session.IsFatal(err), err
	}
	defer page.Close()

	posting, err := o.cfg.Details(ctx, page, candidate)
	if err != nil {
		if session.IsFatal(err) {
			return true, err
		}
		return false, err
	}
	stats.Inspected++
	if err := o.cfg.Store.UpsertPosting(ctx, posting); err != nil {
		return false, err
	}

	if verdict := o.cfg.Filters.Evaluate(posting); !verdict.Admitted {
		stats.Filtered++
		o.log.Info("pipeline: filtered", "posting", posting.ID, "company", posting.Company, "reason", verdict.Reason)
		return false, o.record(ctx, stats, posting, submit.Result{
			Outcome: model.OutcomeFiltered,
			Reason:  verdict.Reason,
		}, 0)
	}

	started := time.Now()
	res, err := o.cfg.Engine.Run(ctx, page, posting)
	if err != nil {
		// An expired session is worth a bounded number of re-logins; the
		// posting gets exactly one more engine pass after each.
		if errors.Is(err, session.ErrExpired) && *reauths < maxReauthAttempts {
			*reauths++
			o.log.Warn("pipeline: session expired mid-run, re-authenticating", "attempt", *reauths)
			if rerr := o.cfg.Sessions.Reauthenticate(ctx); rerr != nil {
				return true, rerr
			}
			res, err = o.cfg.Engine.Run(ctx, page, posting)
		}
		if err != nil {
			return session.IsFatal(err) || ctx.Err() != nil, err
		}
	}

	o.count(stats, res.Outcome)
	return false, o.record(ctx, stats, posting, res, time.Since(started))
}

func (o *Orchestrator) record(ctx context.Context, stats *model.RunStats, posting model.JobPosting, res submit.Result, took time.Duration) error {
	attempt, err := o.cfg.Store.RecordAttempt(ctx, model.SubmissionAttempt{
		PostingID:     posting.ID,
		RunID:         stats.RunID,
		Outcome:       res.Outcome,
		FailureReason: res.Reason,
		Duration:      took,
	})
	if err != nil {
		return err
	}
	o.log.Info("pipeline: outcome recorded",
		"posting", posting.ID,
		"company", posting.Company,
		"outcome", attempt.Outcome,
		"reason", res.Reason,
		"duration", took.Round(time.Millisecond))
	return nil
}

func (o *Orchestrator) count(stats *model.RunStats, outcome model.Outcome) {
	switch {
	case outcome.Countable():
		stats.Submitted++
	case outcome == model.OutcomeFailed:
		stats.Failed++
	case outcome == model.OutcomeSkipped:
		stats.Skipped++
	}
}

func (o *Orchestrator) limitReached(stats *model.RunStats) bool {
	limit := o.cfg.Settings.MaxSubmissionsPerSession
	return limit > 0 && stats.Submitted >= limit
}
