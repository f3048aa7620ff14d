package submit

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/talentpilot/talentpilot/browser"
	"github.com/talentpilot/talentpilot/model"
	"github.com/talentpilot/talentpilot/session"
)

// Failure reasons recorded with terminal outcomes.
const (
	ReasonRecoveryExhausted = "page-recovery-exhausted"
	ReasonLayoutUnknown     = "form-layout-unrecognized"
	ReasonStepsExhausted    = "form-steps-exhausted"
	ReasonApplyMissing      = "apply-entry-missing"
	ReasonSubmitClick       = "submit-click-failed"
	ReasonResumeUpload      = "resume-upload-failed"

	reasonUnresolvedPrefix = "field-unresolved:"
	reasonUnfillablePrefix = "field-unfillable:"
)

// Action button candidates. Aria selectors are tried first; the text
// markers drive a full-button scan when aria labels have churned.
var (
	submitSelectors = []string{
		"button[aria-label='Submit application']",
		"button[aria-label='Submit']",
	}
	submitMarkers = []string{"submit application", "submit"}

	reviewSelectors = []string{
		"button[aria-label='Review your application']",
		"button[aria-label='Review']",
	}
	reviewMarkers = []string{"review"}

	nextSelectors = []string{
		"button[aria-label='Continue to next step']",
		"button[aria-label='Next']",
	}
	nextMarkers = []string{"next", "continue"}

	dismissSelectors = []string{
		"button[aria-label='Dismiss']",
		"button[aria-label='Close']",
		"button[data-test-modal-close-btn]",
		"button.artdeco-modal__dismiss",
		"button.artdeco-toast-item__dismiss",
	}

	followCompanySelector = "label[for*='follow-company']"
)

// Result is the terminal outcome of one posting's submission attempt.
type Result struct {
	Outcome model.Outcome
	Reason  string
}

// Config tunes the Engine.
type Config struct {
	// Simulation runs the full form flow but halts just before the
	// final submit click and reports the outcome as simulated.
	Simulation bool

	// FollowCompanies leaves the pre-checked "follow company" box on.
	FollowCompanies bool

	// RecoveryRetries bounds stale-page recovery per posting. Default: 3.
	RecoveryRetries int

	// TransientRetries bounds in-place retries after a transient page
	// error (timeout, flaky CDP call) per posting. Default: 2.
	TransientRetries int

	// MaxSteps bounds form pages per posting. Default: 10.
	MaxSteps int

	// NavTimeout bounds a single page navigation. Default: 30s.
	NavTimeout time.Duration

	// StepTimeout bounds one form page: scan, fill, advance. Default: 60s.
	StepTimeout time.Duration

	// FieldTimeout bounds one field's fill-and-verify. Default: 5s.
	FieldTimeout time.Duration

	// SettleDelay is the pause after navigation and button clicks while
	// the form rerenders. Default: 2s.
	SettleDelay time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.RecoveryRetries <= 0 {
		c.RecoveryRetries = 3
	}
	if c.TransientRetries <= 0 {
		c.TransientRetries = 2
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = 10
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.StepTimeout <= 0 {
		c.StepTimeout = 60 * time.Second
	}
	if c.FieldTimeout <= 0 {
		c.FieldTimeout = 5 * time.Second
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	} else if c.SettleDelay == 0 {
		c.SettleDelay = 2 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// PageSource supplies replacement pages during stale-page recovery and
// classifies the session state of a landed page. *session.Manager is the
// production implementation.
type PageSource interface {
	NewPage(ctx context.Context) (browser.Adapter, error)
	CheckPage(ctx context.Context, page browser.Adapter) error
}

// Engine drives one posting through the application form.
type Engine struct {
	pages    PageSource
	resolver *Resolver
	resume   *ResumePicker
	cfg      Config
}

// NewEngine creates an Engine. pages supplies replacement pages on the
// stale-page recovery path.
func NewEngine(pages PageSource, resolver *Resolver, resume *ResumePicker, cfg Config) *Engine {
	cfg.defaults()
	return &Engine{pages: pages, resolver: resolver, resume: resume, cfg: cfg}
}

// Run takes posting to a terminal outcome on the given page. The caller
// owns page; replacement pages created during recovery are closed here.
// The returned error is non-nil only for session-fatal conditions or
// context cancellation — every posting-level problem becomes a Result.
func (e *Engine) Run(ctx context.Context, page browser.Adapter, posting model.JobPosting) (Result, error) {
	cur := page
	defer func() {
		if cur != page {
			cur.Close()
		}
	}()

	recoveries, transients := 0, 0
	for {
		res, err := e.drive(ctx, cur, posting)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		if session.IsFatal(err) {
			return Result{}, err
		}
		if browser.IsStale(err) {
			recoveries++
			if recoveries > e.cfg.RecoveryRetries {
				e.cfg.Logger.Warn("submit: recovery budget exhausted", "posting", posting.ID, "retries", recoveries-1)
				return Result{Outcome: model.OutcomeFailed, Reason: ReasonRecoveryExhausted}, nil
			}
			e.cfg.Logger.Warn("submit: page went stale, recovering", "posting", posting.ID, "attempt", recoveries, "error", err)
			replacement, nerr := e.pages.NewPage(ctx)
			if nerr != nil {
				if session.IsFatal(nerr) {
					return Result{}, nerr
				}
				return Result{Outcome: model.OutcomeFailed, Reason: ReasonRecoveryExhausted}, nil
			}
			if cur != page {
				cur.Close()
			}
			cur = replacement
			continue
		}
		if browser.IsTransient(err) {
			transients++
			if transients > e.cfg.TransientRetries {
				e.cfg.Logger.Warn("submit: transient retry budget exhausted", "posting", posting.ID, "retries", transients-1)
				return Result{Outcome: model.OutcomeFailed, Reason: err.Error()}, nil
			}
			e.cfg.Logger.Warn("submit: transient page error, retrying in place", "posting", posting.ID, "attempt", transients, "error", err)
			continue
		}
		return Result{Outcome: model.OutcomeFailed, Reason: err.Error()}, nil
	}
}

// drive runs one full pass: open the posting, open the form, then loop
// the per-step phases. Errors bubble out only when the caller must act
// (stale page, session fatal, cancellation).
func (e *Engine) drive(ctx context.Context, page browser.Adapter, posting model.JobPosting) (Result, error) {
	navCtx, cancel := context.WithTimeout(ctx, e.cfg.NavTimeout)
	err := page.Navigate(navCtx, posting.URL)
	cancel()
	if err != nil {
		return Result{}, err
	}
	e.settle(ctx)
	if err := e.pages.CheckPage(ctx, page); err != nil {
		return Result{}, err
	}

	openCtx, cancel := context.WithTimeout(ctx, e.cfg.StepTimeout)
	opened, err := e.openForm(openCtx, page)
	cancel()
	if err != nil {
		return Result{}, err
	}
	if !opened {
		return Result{Outcome: model.OutcomeSkipped, Reason: ReasonApplyMissing}, nil
	}

	for step := 0; step < e.cfg.MaxSteps; step++ {
		e.settle(ctx)
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		res, cont, err := e.step(ctx, page)
		if err != nil || !cont {
			return res, err
		}
	}

	if e.cfg.Simulation {
		e.dismiss(ctx, page)
		return Result{Outcome: model.OutcomeSimulated, Reason: ""}, nil
	}
	return Result{Outcome: model.OutcomeFailed, Reason: ReasonStepsExhausted}, nil
}

// step runs one form page under the step deadline: scan, fill, advance.
// cont=true means the form advanced and another step follows. A deadline
// hit surfaces as a transient browser error for Run's in-place retry.
func (e *Engine) step(ctx context.Context, page browser.Adapter) (Result, bool, error) {
	stepCtx, cancel := context.WithTimeout(ctx, e.cfg.StepTimeout)
	defer cancel()

	fields, err := ScanFields(stepCtx, page)
	if err != nil {
		return Result{}, false, err
	}

	if res, done, err := e.fillStep(stepCtx, page, fields); err != nil || done {
		return res, false, err
	}

	return e.advance(stepCtx, page)
}

// fillStep resolves and fills every scanned field on the current step.
// done=true carries a terminal Result (unresolved or unfillable required
// field, resume failure).
func (e *Engine) fillStep(ctx context.Context, page browser.Adapter, fields []FormField) (Result, bool, error) {
	needsResume := false
	for _, f := range fields {
		if f.Kind == KindFile {
			needsResume = true
		}
	}
	if needsResume {
		if err := e.resume.Apply(ctx, page); err != nil {
			if browser.IsStale(err) || session.IsFatal(err) {
				return Result{}, false, err
			}
			e.cfg.Logger.Warn("submit: resume step failed", "error", err)
			return Result{Outcome: model.OutcomeFailed, Reason: ReasonResumeUpload}, true, nil
		}
	}

	for _, f := range fields {
		if f.Kind == KindFile || f.Value != "" {
			continue
		}

		value, ok := e.resolver.Resolve(f)
		if !ok {
			if f.Required {
				return Result{
					Outcome: model.OutcomeSkipped,
					Reason:  reasonUnresolvedPrefix + Slug(f.Label),
				}, true, nil
			}
			e.cfg.Logger.Debug("submit: no answer for optional field", "label", f.Label)
			continue
		}

		fieldCtx, cancel := context.WithTimeout(ctx, e.cfg.FieldTimeout)
		err := e.fill(fieldCtx, page, f, value)
		cancel()
		if err != nil {
			if browser.IsStale(err) {
				return Result{}, false, err
			}
			if f.Required {
				return Result{
					Outcome: model.OutcomeFailed,
					Reason:  reasonUnfillablePrefix + Slug(f.Label),
				}, true, nil
			}
			e.cfg.Logger.Warn("submit: optional field fill failed", "label", f.Label, "error", err)
		}
	}
	return Result{}, false, nil
}

// fill applies value to one field and validates it stuck; a read-back
// mismatch gets exactly one refill before the field is declared failed.
func (e *Engine) fill(ctx context.Context, page browser.Adapter, f FormField, value string) error {
	el, err := locate(ctx, page, f)
	if err != nil {
		return err
	}
	if el == nil {
		return &fieldError{label: f.Label, msg: "element not found by primary or fallback selector"}
	}

	for attempt := 0; attempt < 2; attempt++ {
		if err := e.applyValue(ctx, el, f.Kind, value); err != nil {
			if browser.IsStale(err) {
				return err
			}
			if attempt == 1 {
				return &fieldError{label: f.Label, msg: err.Error()}
			}
			continue
		}
		ok, err := e.verifyValue(ctx, el, f.Kind, value)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return &fieldError{label: f.Label, msg: "value did not stick after refill"}
}

func (e *Engine) applyValue(ctx context.Context, el browser.Element, kind Kind, value string) error {
	switch kind {
	case KindText, KindPhone, KindTextarea:
		return el.Input(ctx, value)
	case KindDropdown:
		return el.SelectOption(ctx, value)
	case KindRadio:
		return selectRadio(ctx, el, value)
	default:
		return el.Input(ctx, value)
	}
}

// verifyValue re-reads the field after filling. Pages here rerender
// inputs after async validation, so a clean Input call is not proof the
// value survived.
func (e *Engine) verifyValue(ctx context.Context, el browser.Element, kind Kind, want string) (bool, error) {
	switch kind {
	case KindText, KindPhone, KindTextarea:
		got, err := el.Value(ctx)
		if err != nil {
			return false, err
		}
		return strings.TrimSpace(got) == strings.TrimSpace(want), nil
	case KindDropdown:
		got, err := el.Value(ctx)
		if err != nil {
			return false, err
		}
		return strings.TrimSpace(got) != "", nil
	default:
		return true, nil
	}
}

// selectRadio picks the option in a radio group whose label text matches
// value (substring, either direction, case-insensitive).
func selectRadio(ctx context.Context, group browser.Element, value string) error {
	want := strings.ToLower(strings.TrimSpace(value))

	labels, err := group.QueryAll(ctx, "label")
	if err != nil {
		return err
	}
	for _, lbl := range labels {
		text, err := lbl.Text(ctx)
		if err != nil {
			continue
		}
		t := strings.ToLower(strings.TrimSpace(text))
		if t == "" {
			continue
		}
		if strings.Contains(t, want) || strings.Contains(want, t) {
			return lbl.Click(ctx)
		}
	}

	radios, err := group.QueryAll(ctx, "input[type='radio']")
	if err != nil {
		return err
	}
	for _, r := range radios {
		v, err := r.Attribute(ctx, "value")
		if err != nil {
			continue
		}
		rv := strings.ToLower(strings.TrimSpace(v))
		if rv != "" && (strings.Contains(rv, want) || strings.Contains(want, rv)) {
			return r.Click(ctx)
		}
	}
	return &fieldError{msg: "no radio option matched " + value}
}

// advance clicks the step's primary action. Submit ends the run
// (simulation halts before the click); Review and Next loop back to the
// next scan. advanced=false carries a terminal Result.
func (e *Engine) advance(ctx context.Context, page browser.Adapter) (Result, bool, error) {
	submit, err := findButton(ctx, page, submitSelectors, submitMarkers)
	if err != nil {
		return Result{}, false, err
	}
	if submit != nil {
		res, err := e.finalize(ctx, page, submit)
		return res, false, err
	}

	for _, nav := range []struct {
		selectors []string
		markers   []string
	}{
		{reviewSelectors, reviewMarkers},
		{nextSelectors, nextMarkers},
	} {
		btn, err := findButton(ctx, page, nav.selectors, nav.markers)
		if err != nil {
			return Result{}, false, err
		}
		if btn != nil {
			if err := btn.Click(ctx); err != nil {
				return Result{}, false, err
			}
			return Result{}, true, nil
		}
	}

	return Result{Outcome: model.OutcomeSkipped, Reason: ReasonLayoutUnknown}, false, nil
}

// finalize handles the last step: unfollow the company if configured,
// then click submit — unless simulating, in which case the engine stops
// right here.
func (e *Engine) finalize(ctx context.Context, page browser.Adapter, submit browser.Element) (Result, error) {
	if e.cfg.Simulation {
		e.cfg.Logger.Info("submit: simulation, stopping before submit click")
		e.dismiss(ctx, page)
		return Result{Outcome: model.OutcomeSimulated}, nil
	}

	if !e.cfg.FollowCompanies {
		if lbl, err := page.Query(ctx, followCompanySelector); err == nil && lbl != nil {
			if err := lbl.Click(ctx); err != nil {
				e.cfg.Logger.Debug("submit: unfollow click failed", "error", err)
			}
		}
	}

	if err := submit.Click(ctx); err != nil {
		if browser.IsStale(err) {
			return Result{}, err
		}
		return Result{Outcome: model.OutcomeFailed, Reason: ReasonSubmitClick}, nil
	}
	e.settle(ctx)
	e.dismiss(ctx, page)
	return Result{Outcome: model.OutcomeSubmitted}, nil
}

// openForm clicks the in-site apply entry point. Returns false when the
// posting has no such entry (external application or already applied).
func (e *Engine) openForm(ctx context.Context, page browser.Adapter) (bool, error) {
	links, err := page.QueryAll(ctx, "a[href*='/apply/']")
	if err != nil {
		return false, err
	}
	entry := firstWithText(ctx, links, "easy apply")

	if entry == nil {
		buttons, err := page.QueryAll(ctx, "button")
		if err != nil {
			return false, err
		}
		entry = firstWithText(ctx, buttons, "easy apply")
	}
	if entry == nil {
		return false, nil
	}

	if err := entry.Click(ctx); err != nil {
		return false, err
	}
	e.settle(ctx)
	return true, nil
}

// dismiss closes the form modal or confirmation toast, best effort.
func (e *Engine) dismiss(ctx context.Context, page browser.Adapter) {
	for _, sel := range dismissSelectors {
		btn, err := page.Query(ctx, sel)
		if err != nil || btn == nil {
			continue
		}
		if btn.Click(ctx) == nil {
			return
		}
	}
}

func (e *Engine) settle(ctx context.Context) {
	if e.cfg.SettleDelay <= 0 {
		return
	}
	t := time.NewTimer(e.cfg.SettleDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// findButton tries aria selectors first, then scans all buttons for the
// text markers.
func findButton(ctx context.Context, page browser.Adapter, selectors, markers []string) (browser.Element, error) {
	for _, sel := range selectors {
		el, err := page.Query(ctx, sel)
		if err != nil {
			return nil, err
		}
		if el != nil {
			return el, nil
		}
	}

	buttons, err := page.QueryAll(ctx, "button")
	if err != nil {
		return nil, err
	}
	for _, btn := range buttons {
		text, err := btn.Text(ctx)
		if err != nil {
			continue
		}
		t := strings.ToLower(strings.TrimSpace(text))
		for _, marker := range markers {
			if strings.Contains(t, marker) {
				return btn, nil
			}
		}
	}
	return nil, nil
}

func firstWithText(ctx context.Context, els []browser.Element, marker string) browser.Element {
	for _, el := range els {
		text, err := el.Text(ctx)
		if err != nil {
			continue
		}
		if strings.Contains(strings.ToLower(text), marker) {
			return el
		}
	}
	return nil
}

// fieldError is a posting-level fill failure; never fatal.
type fieldError struct {
	label string
	msg   string
}

func (e *fieldError) Error() string {
	if e.label == "" {
		return "submit: " + e.msg
	}
	return "submit: field " + e.label + ": " + e.msg
}
