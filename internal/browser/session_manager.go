// Package browser renders pages in a headless Chromium driven over the
// DevTools protocol. It is the fallback fetcher for job boards that block
// plain HTTP clients.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"leadscout/internal/lead"
	"leadscout/internal/logging"
	"leadscout/internal/scraper"
)

// Config holds browser configuration.
type Config struct {
	Disabled          bool
	Bin               string   // Chromium binary; empty uses rod's lookup/download
	Flags             []string // Extra launch flags, e.g. "--disable-gpu" or "window-size=1280,800"
	NoSandbox         bool
	NavigationTimeout time.Duration
	UserAgents        []string
}

func (c Config) navigationTimeout() time.Duration {
	if c.NavigationTimeout <= 0 {
		return 30 * time.Second
	}
	return c.NavigationTimeout
}

// Manager owns a lazily launched headless Chromium. Each Fetch runs in its
// own incognito context so cookies never carry over between pages.
type Manager struct {
	cfg    Config
	logger *zap.Logger

	mu       sync.RWMutex
	browser  *rod.Browser
	launcher *launcher.Launcher
}

// NewManager creates a manager. The browser is not started until first use.
func NewManager(cfg Config, logger *zap.Logger) *Manager {
	return &Manager{cfg: cfg, logger: logging.For(logger, logging.CategoryBrowser)}
}

// Enabled reports whether browser fetches are allowed.
func (m *Manager) Enabled() bool {
	return m != nil && !m.cfg.Disabled
}

// Start launches Chromium, or verifies the running one is still alive.
func (m *Manager) Start(ctx context.Context) error {
	if !m.Enabled() {
		return fmt.Errorf("browser: %w", lead.ErrNotConfigured)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		m.logger.Warn("stale browser connection, relaunching")
		m.closeLocked()
	}

	// The process must outlive the request that happened to start it.
	bctx := context.WithoutCancel(ctx)
	l := m.newLauncher(bctx)
	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch chromium: %w", err)
	}

	b := rod.New().ControlURL(controlURL).Context(bctx)
	if err := b.Connect(); err != nil {
		l.Kill()
		return fmt.Errorf("connect to chromium: %w", err)
	}
	m.browser = b
	m.launcher = l
	m.logger.Info("browser started", zap.String("control_url", controlURL))
	return nil
}

func (m *Manager) newLauncher(ctx context.Context) *launcher.Launcher {
	l := launcher.New().Context(ctx).Headless(true).NoSandbox(m.cfg.NoSandbox)
	if m.cfg.Bin != "" {
		l = l.Bin(m.cfg.Bin)
	}
	for _, raw := range m.cfg.Flags {
		name, val, hasVal := strings.Cut(strings.TrimLeft(raw, "-"), "=")
		if hasVal {
			l = l.Set(flags.Flag(name), val)
		} else {
			l = l.Set(flags.Flag(name))
		}
	}
	return l
}

func (m *Manager) ensureStarted(ctx context.Context) error {
	m.mu.RLock()
	started := m.browser != nil
	m.mu.RUnlock()
	if started {
		return nil
	}
	return m.Start(ctx)
}

// Fetch navigates to url and returns the rendered HTML.
func (m *Manager) Fetch(ctx context.Context, url string) (string, error) {
	if err := m.ensureStarted(ctx); err != nil {
		return "", err
	}

	m.mu.RLock()
	b := m.browser
	m.mu.RUnlock()
	if b == nil {
		return "", errors.New("browser not connected")
	}

	incognito, err := b.Incognito()
	if err != nil {
		return "", fmt.Errorf("incognito context: %w", err)
	}
	defer func() { _ = incognito.Close() }()

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("create page: %w", err)
	}
	defer func() { _ = page.Close() }()

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      scraper.RandomUserAgent(m.cfg.UserAgents),
		AcceptLanguage: "en-US,en;q=0.9",
	}); err != nil {
		m.logger.Debug("user agent override failed", zap.Error(err))
	}

	p := page.Context(ctx).Timeout(m.cfg.navigationTimeout())
	defer p.CancelTimeout()
	if err := p.Navigate(url); err != nil {
		return "", fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return "", fmt.Errorf("wait load %s: %w", url, err)
	}

	html, err := p.HTML()
	if err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}
	m.logger.Debug("page rendered", zap.String("url", url), zap.Int("bytes", len(html)))
	return html, nil
}

// Install makes sure a Chromium build is available, downloading one when
// no binary is configured or found on the system. A configured binary that
// is missing or not executable is an error.
func (m *Manager) Install(ctx context.Context) (string, error) {
	if m.cfg.Bin != "" {
		path, err := exec.LookPath(m.cfg.Bin)
		if err != nil {
			return "", fmt.Errorf("configured browser binary: %w", err)
		}
		m.logger.Info("using configured chromium", zap.String("path", path))
		return path, nil
	}
	if path, ok := launcher.LookPath(); ok {
		m.logger.Info("using system chromium", zap.String("path", path))
		return path, nil
	}
	b := launcher.NewBrowser()
	b.Context = ctx
	path, err := b.Get()
	if err != nil {
		return "", fmt.Errorf("download chromium: %w", err)
	}
	m.logger.Info("chromium installed", zap.String("path", path))
	return path, nil
}

// Shutdown closes the browser and kills the launched process.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeLocked()
}

func (m *Manager) closeLocked() error {
	var err error
	if m.browser != nil {
		err = m.browser.Close()
		m.browser = nil
	}
	if m.launcher != nil {
		m.launcher.Kill()
		m.launcher = nil
	}
	return err
}
