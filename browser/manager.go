package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Config configures the browser Manager.
type Config struct {
	// Headless runs Chrome without a window. Login challenges (CAPTCHA,
	// 2FA) need a visible window, so the default is headful.
	Headless bool

	// SlowMo inserts a delay before every input action. Default: 50ms.
	SlowMo time.Duration

	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.SlowMo <= 0 {
		c.SlowMo = 50 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns the Chrome lifecycle and the authenticated browser context.
// It is the single owner of persisted cookie state; pages are handed out
// per posting and must not outlive it.
type Manager struct {
	cfg     Config
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

// NewManager creates a Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// Start launches Chrome (or connects to a remote instance).
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("browser: manager is closed")
	}
	if m.browser != nil {
		return nil
	}

	log := m.cfg.Logger
	var wsURL string

	if m.cfg.RemoteURL != "" {
		wsURL = m.cfg.RemoteURL
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().
			Headless(m.cfg.Headless).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "headless", m.cfg.Headless)
	}

	b := rod.New().ControlURL(wsURL).SlowMotion(m.cfg.SlowMo)
	if err := b.Context(ctx).Connect(); err != nil {
		return fmt.Errorf("browser: connect: %w", err)
	}
	m.browser = b
	return nil
}

// NewPage opens a fresh stealth page. Each posting gets its own page, and
// the page-recovery path calls this again after a crash.
func (m *Manager) NewPage(ctx context.Context) (*Page, error) {
	m.mu.Lock()
	b := m.browser
	m.mu.Unlock()
	if b == nil {
		return nil, fmt.Errorf("browser: not started")
	}

	p, err := stealth.Page(b.Context(ctx))
	if err != nil {
		return nil, classify("new page", err)
	}
	return &Page{page: p}, nil
}

// cookieState is the JSON shape of persisted session cookies.
type cookieState struct {
	SavedAt time.Time                  `json:"saved_at"`
	Cookies []*proto.NetworkCookieParam `json:"cookies"`
}

// SaveCookies persists the browser context's cookies to path.
func (m *Manager) SaveCookies(path string) error {
	m.mu.Lock()
	b := m.browser
	m.mu.Unlock()
	if b == nil {
		return fmt.Errorf("browser: not started")
	}

	cookies, err := b.GetCookies()
	if err != nil {
		return classify("get cookies", err)
	}

	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: c.SameSite,
			Expires:  c.Expires,
		})
	}

	data, err := json.MarshalIndent(cookieState{SavedAt: time.Now().UTC(), Cookies: params}, "", "  ")
	if err != nil {
		return fmt.Errorf("browser: marshal cookies: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("browser: write cookies: %w", err)
	}
	return nil
}

// LoadCookies restores cookies from path into the browser context.
// A missing file is not an error; it just means no stored session.
func (m *Manager) LoadCookies(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("browser: read cookies: %w", err)
	}

	var state cookieState
	if err := json.Unmarshal(data, &state); err != nil {
		return false, fmt.Errorf("browser: parse cookies %s: %w", path, err)
	}
	if len(state.Cookies) == 0 {
		return false, nil
	}

	m.mu.Lock()
	b := m.browser
	m.mu.Unlock()
	if b == nil {
		return false, fmt.Errorf("browser: not started")
	}
	if err := b.SetCookies(state.Cookies); err != nil {
		return false, classify("set cookies", err)
	}
	return true, nil
}

// Close shuts down Chrome.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.browser != nil {
		m.browser.Close()
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	return nil
}
