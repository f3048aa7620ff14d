// Package session owns authentication and persisted session state.
// It is the exclusive owner of the authenticated browser context: the
// submission engine borrows pages from it per posting and must not retain
// them past that posting's terminal outcome.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/talentpilot/talentpilot/browser"
)

// ErrAuth is the session-level authentication failure: login rejected or
// session invalidated. Fatal for the whole run.
var ErrAuth = errors.New("session: authentication failed")

// ErrExpired marks a stored session that is no longer valid. Wraps ErrAuth
// so both trip the same fatal handling after reauth attempts run out.
var ErrExpired = fmt.Errorf("%w: session expired", ErrAuth)

// ErrChallenge marks an anti-automation challenge (checkpoint page,
// "verify you're human"). Fatal: no further submissions are attempted.
var ErrChallenge = errors.New("session: automation challenge detected")

// IsFatal reports whether err must abort the whole run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuth) || errors.Is(err, ErrChallenge)
}

const (
	feedURL  = "https://www.linkedin.com/feed"
	loginURL = "https://www.linkedin.com/login"

	// loginWait bounds the post-submit poll loop. Generous so a headful
	// user can solve a CAPTCHA or 2FA prompt by hand.
	loginWait   = 90 * time.Second
	loginPoll   = 5 * time.Second
	settleDelay = 3 * time.Second

	defaultNavTimeout = 30 * time.Second
)

// loggedInSelectors are markers whose presence means an authenticated
// page. The DOM varies across rollouts, so several are tried.
var loggedInSelectors = []string{
	"div.feed-identity-module",
	"div.global-nav__me",
	"img.global-nav__me-photo",
	"nav.global-nav",
	"input[aria-label='Search']",
}

// Config configures the session Manager.
type Config struct {
	Email    string
	Password string
	StateDir string

	// NavTimeout bounds each navigation and page probe. Default: 30s.
	NavTimeout time.Duration

	Logger *slog.Logger
}

// Manager handles login, cookie persistence, and page issuance.
type Manager struct {
	browser    *browser.Manager
	email      string
	password   string
	stateDir   string
	navTimeout time.Duration
	log        *slog.Logger
}

// NewManager creates a session Manager on top of a started browser Manager.
func NewManager(b *browser.Manager, cfg Config) *Manager {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = defaultNavTimeout
	}
	return &Manager{
		browser:    b,
		email:      cfg.Email,
		password:   cfg.Password,
		stateDir:   cfg.StateDir,
		navTimeout: cfg.NavTimeout,
		log:        log,
	}
}

// StateFile returns the cookie-state path for this account. The name is
// derived from the email so multiple accounts can share a state dir.
func (m *Manager) StateFile() string {
	digest := sha256.Sum256([]byte(m.email))
	return filepath.Join(m.stateDir, "session_"+hex.EncodeToString(digest[:8])+".json")
}

// EnsureAuthenticated restores a stored session or performs a fresh login,
// then persists the cookie state.
func (m *Manager) EnsureAuthenticated(ctx context.Context) error {
	if err := os.MkdirAll(m.stateDir, 0o755); err != nil {
		return fmt.Errorf("session: state dir: %w", err)
	}

	restored, err := m.browser.LoadCookies(m.StateFile())
	if err != nil {
		m.log.Warn("session: cookie restore failed, logging in fresh", "error", err)
	}
	if restored {
		m.log.Info("session: found stored session, verifying")
		ok, err := m.verify(ctx)
		if err != nil {
			return err
		}
		if ok {
			m.log.Info("session: stored session is valid")
			return nil
		}
		m.log.Warn("session: stored session expired, logging in fresh")
	}

	if err := m.login(ctx); err != nil {
		return err
	}
	if err := m.browser.SaveCookies(m.StateFile()); err != nil {
		m.log.Warn("session: cookie save failed", "error", err)
	} else {
		m.log.Info("session: saved", "path", m.StateFile())
	}
	return nil
}

// Reauthenticate deletes the stale cookie state and logs in again.
// Called mid-run when CheckPage reports ErrExpired.
func (m *Manager) Reauthenticate(ctx context.Context) error {
	if err := os.Remove(m.StateFile()); err == nil {
		m.log.Info("session: deleted stale state", "path", m.StateFile())
	}
	if err := m.login(ctx); err != nil {
		return err
	}
	return m.browser.SaveCookies(m.StateFile())
}

// NewPage hands out a fresh stealth page from the authenticated context.
// The stale-page recovery path uses this to replace a dead page without
// logging in again.
func (m *Manager) NewPage(ctx context.Context) (browser.Adapter, error) {
	return m.browser.NewPage(ctx)
}

// CheckPage inspects the adapter's current URL for auth redirects and
// challenge pages. Returns nil, ErrExpired, or ErrChallenge. The probe is
// bounded: a dead page yields an error instead of a hang.
func (m *Manager) CheckPage(ctx context.Context, page browser.Adapter) error {
	probeCtx, cancel := context.WithTimeout(ctx, m.navTimeout)
	defer cancel()

	url, err := page.PageURL(probeCtx)
	if err != nil {
		return err
	}
	return ClassifyURL(url)
}

// ClassifyURL maps a current-page URL to a session-level error: login
// redirects mean the session expired; checkpoint/challenge paths mean the
// automation was flagged. Exported for the pipeline's tests.
func ClassifyURL(url string) error {
	u := strings.ToLower(url)
	switch {
	case strings.Contains(u, "/checkpoint/") || strings.Contains(u, "/challenge"):
		return fmt.Errorf("%w: %s", ErrChallenge, url)
	case strings.Contains(u, "/login") || strings.Contains(u, "/authwall") || strings.Contains(u, "/uas/"):
		return fmt.Errorf("%w: redirected to %s", ErrExpired, url)
	}
	return nil
}

// verify navigates to the feed and checks for a logged-in indicator.
func (m *Manager) verify(ctx context.Context) (bool, error) {
	page, err := m.browser.NewPage(ctx)
	if err != nil {
		return false, err
	}
	defer page.Close()

	probeCtx, cancel := context.WithTimeout(ctx, m.navTimeout)
	defer cancel()

	if err := page.Navigate(probeCtx, feedURL); err != nil {
		return false, nil
	}
	sleep(probeCtx, settleDelay)

	url, err := page.PageURL(probeCtx)
	if err != nil {
		return false, nil
	}
	if errors.Is(ClassifyURL(url), ErrChallenge) {
		return false, ClassifyURL(url)
	}
	if strings.Contains(url, "/feed") {
		return true, nil
	}
	return m.anyLoggedInMarker(probeCtx, page), nil
}

// login fills the credential form and polls until an authenticated page
// appears or the wait budget runs out.
func (m *Manager) login(ctx context.Context) error {
	if m.email == "" || m.password == "" {
		return fmt.Errorf("%w: email and password must be configured", ErrAuth)
	}

	page, err := m.browser.NewPage(ctx)
	if err != nil {
		return err
	}
	defer page.Close()

	formCtx, cancel := context.WithTimeout(ctx, m.navTimeout)
	err = m.fillLoginForm(formCtx, page)
	cancel()
	if err != nil {
		return err
	}

	m.log.Info("session: waiting for login; complete any CAPTCHA or 2FA prompt in the browser window")

	deadline := time.Now().Add(loginWait)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}
		sleep(ctx, loginPoll)

		if m.loggedIn(ctx, page) {
			m.log.Info("session: login succeeded")
			return nil
		}
	}

	return fmt.Errorf("%w: login did not complete within %s", ErrAuth, loginWait)
}

// fillLoginForm drives the credential form through the submit click. The
// caller bounds ctx with the navigation deadline.
func (m *Manager) fillLoginForm(ctx context.Context, page browser.Adapter) error {
	if err := page.Navigate(ctx, loginURL); err != nil {
		return fmt.Errorf("%w: open login page: %v", ErrAuth, err)
	}

	user, err := page.WaitVisible(ctx, "input#username")
	if err != nil {
		return fmt.Errorf("%w: username field: %v", ErrAuth, err)
	}
	if err := user.Input(ctx, m.email); err != nil {
		return fmt.Errorf("%w: fill username: %v", ErrAuth, err)
	}
	pass, err := page.WaitVisible(ctx, "input#password")
	if err != nil {
		return fmt.Errorf("%w: password field: %v", ErrAuth, err)
	}
	if err := pass.Input(ctx, m.password); err != nil {
		return fmt.Errorf("%w: fill password: %v", ErrAuth, err)
	}
	submit, err := page.WaitVisible(ctx, "button[type='submit']")
	if err != nil {
		return fmt.Errorf("%w: submit button: %v", ErrAuth, err)
	}
	if err := submit.Click(ctx); err != nil {
		return fmt.Errorf("%w: click submit: %v", ErrAuth, err)
	}
	return nil
}

// loggedIn probes the page once, bounded, for a successful-login signal.
func (m *Manager) loggedIn(ctx context.Context, page browser.Adapter) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.navTimeout)
	defer cancel()

	url, err := page.PageURL(probeCtx)
	if err != nil {
		return false
	}
	if strings.Contains(url, "/feed") {
		return true
	}
	return m.anyLoggedInMarker(probeCtx, page)
}

func (m *Manager) anyLoggedInMarker(ctx context.Context, page browser.Adapter) bool {
	for _, sel := range loggedInSelectors {
		el, err := page.Query(ctx, sel)
		if err == nil && el != nil {
			return true
		}
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
