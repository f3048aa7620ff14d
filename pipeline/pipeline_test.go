package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/talentpilot/talentpilot/browser"
	"github.com/talentpilot/talentpilot/config"
	"github.com/talentpilot/talentpilot/dbopen"
	"github.com/talentpilot/talentpilot/discover"
	"github.com/talentpilot/talentpilot/filter"
	"github.com/talentpilot/talentpilot/history"
	"github.com/talentpilot/talentpilot/model"
	"github.com/talentpilot/talentpilot/session"
	"github.com/talentpilot/talentpilot/submit"
)

// nopPage is the minimal Adapter the orchestrator needs; the fake engine
// never touches it.
type nopPage struct{ closed bool }

func (p *nopPage) Navigate(context.Context, string) error        { return nil }
func (p *nopPage) PageURL(context.Context) (string, error)       { return "", nil }
func (p *nopPage) HTML(context.Context) (string, error)          { return "", nil }
func (p *nopPage) Eval(context.Context, string) (string, error)  { return "", nil }
func (p *nopPage) Close() error                                  { p.closed = true; return nil }
func (p *nopPage) Query(context.Context, string) (browser.Element, error) {
	return nil, nil
}
func (p *nopPage) QueryAll(context.Context, string) ([]browser.Element, error) {
	return nil, nil
}
func (p *nopPage) WaitVisible(context.Context, string) (browser.Element, error) {
	return nil, nil
}

type fakeSessions struct {
	pages   int
	reauths int
}

func (s *fakeSessions) NewPage(context.Context) (browser.Adapter, error) {
	s.pages++
	return &nopPage{}, nil
}

func (s *fakeSessions) Reauthenticate(context.Context) error {
	s.reauths++
	return nil
}

type sliceSource struct{ ids []string }

func (s *sliceSource) Candidates(ctx context.Context, _ []string) iter.Seq2[discover.Candidate, error] {
	return func(yield func(discover.Candidate, error) bool) {
		for _, id := range s.ids {
			c := discover.Candidate{ID: id, URL: discover.JobViewURL(id)}
			if !yield(c, nil) {
				return
			}
		}
	}
}

// scriptedEngine maps posting ID to a result or error.
type scriptedEngine struct {
	results map[string]submit.Result
	errs    map[string]error
	runs    []string
}

func (e *scriptedEngine) Run(_ context.Context, _ browser.Adapter, p model.JobPosting) (submit.Result, error) {
	e.runs = append(e.runs, p.ID)
	if err, ok := e.errs[p.ID]; ok {
		delete(e.errs, p.ID) // errors fire once, then the script falls through
		return submit.Result{}, err
	}
	if res, ok := e.results[p.ID]; ok {
		return res, nil
	}
	return submit.Result{Outcome: model.OutcomeSubmitted}, nil
}

func detailsFromCandidate(companies map[string]string) DetailsFunc {
	return func(_ context.Context, _ browser.Adapter, c discover.Candidate) (model.JobPosting, error) {
		return model.JobPosting{
			ID:      c.ID,
			Title:   "Engineer",
			Company: companies[c.ID],
			URL:     c.URL,
		}, nil
	}
}

type fixture struct {
	store    *history.Store
	sessions *fakeSessions
	engine   *scriptedEngine
	orch     *Orchestrator
}

func newFixture(t *testing.T, settings *config.Config, storeCfg history.Config, ids []string, companies map[string]string) *fixture {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(history.Schema))
	store := history.New(db, storeCfg)
	sessions := &fakeSessions{}
	engine := &scriptedEngine{results: map[string]submit.Result{}, errs: map[string]error{}}

	orch := New(Config{
		Settings: settings,
		Store:    store,
		Sessions: sessions,
		Source:   &sliceSource{ids: ids},
		Engine:   engine,
		Filters:  filter.NewChain(settings.BlockedCompanies, settings.BlockedTitles),
		Details:  detailsFromCandidate(companies),
	})
	return &fixture{store: store, sessions: sessions, engine: engine, orch: orch}
}

func baseSettings() *config.Config {
	return &config.Config{
		Keywords:  []string{"go"},
		Locations: []string{"Remote"},
	}
}

func TestRunRecordsEveryCandidateOnce(t *testing.T) {
	f := newFixture(t, baseSettings(), history.Config{}, []string{"J1", "J2", "J3"}, nil)

	stats, err := f.orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Inspected != 3 || stats.Submitted != 3 {
		t.Fatalf("stats = %+v", stats)
	}
	if !stats.Sealed() {
		t.Fatal("stats not sealed after run")
	}

	recs, err := f.store.RecentSubmissions(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("recorded %d attempts, want 3", len(recs))
	}
}

func TestSecondRunIsIdempotent(t *testing.T) {
	f := newFixture(t, baseSettings(), history.Config{}, []string{"J1", "J2"}, nil)
	ctx := context.Background()

	if _, err := f.orch.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := f.orch.Run(ctx); err != nil {
		t.Fatal(err)
	}

	recs, err := f.store.RecentSubmissions(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	submitted := 0
	for _, r := range recs {
		if r.Outcome == model.OutcomeSubmitted {
			submitted++
		}
	}
	if submitted != 2 {
		t.Fatalf("got %d submitted attempts across two runs, want 2", submitted)
	}
	if len(f.engine.runs) != 2 {
		t.Fatalf("engine invoked %d times, want 2 (dedup must skip the rerun)", len(f.engine.runs))
	}
}

func TestSubmissionLimitEnforced(t *testing.T) {
	settings := baseSettings()
	settings.MaxSubmissionsPerSession = 2
	f := newFixture(t, settings, history.Config{}, []string{"J1", "J2", "J3", "J4", "J5"}, nil)

	stats, err := f.orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Submitted != 2 {
		t.Fatalf("submitted = %d, want exactly the limit", stats.Submitted)
	}
	if len(f.engine.runs) != 2 {
		t.Fatalf("engine ran %d times after the limit, want 2", len(f.engine.runs))
	}
}

func TestSimulatedOutcomesCountAgainstLimit(t *testing.T) {
	settings := baseSettings()
	settings.MaxSubmissionsPerSession = 1
	settings.SimulationMode = true
	f := newFixture(t, settings, history.Config{}, []string{"J1", "J2"}, nil)
	f.engine.results["J1"] = submit.Result{Outcome: model.OutcomeSimulated}
	f.engine.results["J2"] = submit.Result{Outcome: model.OutcomeSimulated}

	stats, err := f.orch.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Submitted != 1 {
		t.Fatalf("countable outcomes = %d, want 1", stats.Submitted)
	}
	if len(f.engine.runs) != 1 {
		t.Fatalf("engine ran %d times, want 1", len(f.engine.runs))
	}
}

func TestBlockedCompanyIsFilteredWithoutEngine(t *testing.T) {
	settings := baseSettings()
	settings.BlockedCompanies = []string{"spyware"}
	f := newFixture(t, settings, history.Config{},
		[]string{"J1", "J2"},
		map[string]string{"J1": "Acme Spyware", "J2": "Honest Corp"})

	stats, err := f.orch.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Filtered != 1 {
		t.Fatalf("filtered = %d, want 1", stats.Filtered)
	}
	for _, id := range f.engine.runs {
		if id == "J1" {
			t.Fatal("filtered posting reached the engine")
		}
	}

	recs, err := f.store.RecentSubmissions(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, r := range recs {
		if r.PostingID == "J1" {
			found = true
			if r.Outcome != model.OutcomeFiltered || r.FailureReason != "blocked-company:spyware" {
				t.Fatalf("J1 recorded as %s/%s", r.Outcome, r.FailureReason)
			}
		}
	}
	if !found {
		t.Fatal("filtered posting was not recorded")
	}
}

func TestFatalSessionErrorAbortsRunAndFlushesStats(t *testing.T) {
	f := newFixture(t, baseSettings(), history.Config{}, []string{"J1", "J2", "J3"}, nil)
	f.engine.errs["J2"] = fmt.Errorf("challenge: %w", session.ErrChallenge)

	_, err := f.orch.Run(context.Background())
	if !errors.Is(err, session.ErrChallenge) {
		t.Fatalf("err = %v, want ErrChallenge", err)
	}

	for _, id := range f.engine.runs {
		if id == "J3" {
			t.Fatal("run continued past a fatal session error")
		}
	}

	runs, err := f.store.Runs(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || !runs[0].Sealed() {
		t.Fatalf("stats not flushed on fatal abort: %+v", runs)
	}
}

func TestExpiredSessionTriggersReauthAndRetry(t *testing.T) {
	f := newFixture(t, baseSettings(), history.Config{}, []string{"J1"}, nil)
	f.engine.errs["J1"] = fmt.Errorf("probe: %w", session.ErrExpired)

	stats, err := f.orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.sessions.reauths != 1 {
		t.Fatalf("reauths = %d, want 1", f.sessions.reauths)
	}
	if stats.Submitted != 1 {
		t.Fatalf("posting not retried after reauth: %+v", stats)
	}
	if len(f.engine.runs) != 2 {
		t.Fatalf("engine runs = %v, want the posting twice", f.engine.runs)
	}
}

func TestPostingErrorNeverAbortsRun(t *testing.T) {
	settings := baseSettings()
	f := newFixture(t, settings, history.Config{}, []string{"J1", "J2"}, nil)
	f.orch.cfg.Details = func(_ context.Context, _ browser.Adapter, c discover.Candidate) (model.JobPosting, error) {
		if c.ID == "J1" {
			return model.JobPosting{}, errors.New("details page half rendered")
		}
		return model.JobPosting{ID: c.ID, URL: c.URL}, nil
	}

	stats, err := f.orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Submitted != 1 {
		t.Fatalf("healthy posting not processed: %+v", stats)
	}
}

func TestFailedRetryPolicyBothWays(t *testing.T) {
	run := func(t *testing.T, retry bool) (engineRuns int) {
		t.Helper()
		f := newFixture(t, baseSettings(), history.Config{RetryFailed: retry}, []string{"J1"}, nil)
		f.engine.results["J1"] = submit.Result{Outcome: model.OutcomeFailed, Reason: "form-steps-exhausted"}
		ctx := context.Background()

		if _, err := f.orch.Run(ctx); err != nil {
			t.Fatal(err)
		}
		if _, err := f.orch.Run(ctx); err != nil {
			t.Fatal(err)
		}
		return len(f.engine.runs)
	}

	if got := run(t, true); got != 2 {
		t.Fatalf("retry on: engine runs = %d, want 2", got)
	}
	if got := run(t, false); got != 1 {
		t.Fatalf("retry off: engine runs = %d, want 1", got)
	}
}
