// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/loginfill/internal/browser/session"
	"github.com/xkilldash9x/loginfill/internal/config"
)

// Manager owns one Chromium process (launched or attached) and hands out
// tabs wrapped as autofill hosts.
type Manager struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc

	mu            sync.Mutex
	browserCtx    context.Context
	browserCancel context.CancelFunc
	tabs          map[*Tab]struct{}
}

// NewManager prepares the allocator. Nothing is launched until Start.
func NewManager(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	m := &Manager{
		cfg:    cfg,
		logger: logger.Named("browser_manager"),
		tabs:   make(map[*Tab]struct{}),
	}
	if cfg.RemoteURL != "" {
		m.allocCtx, m.allocCancel = chromedp.NewRemoteAllocator(ctx, cfg.RemoteURL)
		m.logger.Info("Attaching to running browser.", zap.String("remote_url", cfg.RemoteURL))
	} else {
		m.allocCtx, m.allocCancel = chromedp.NewExecAllocator(ctx, DefaultAllocatorOptions(cfg)...)
	}
	return m
}

// Start launches (or connects to) the browser. The browser lives until
// Shutdown, independent of ctx.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.browserCtx != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	browserCtx, cancel := chromedp.NewContext(m.allocCtx)
	// The first Run on a context allocates the browser and binds its
	// lifetime to that context, so it must not carry a request deadline.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		return fmt.Errorf("browser failed to start or respond: %w", err)
	}
	m.browserCtx, m.browserCancel = browserCtx, cancel
	m.logger.Info("Browser is ready.")
	return nil
}

// Tab is one browser tab and its autofill host.
type Tab struct {
	*session.Host

	ctx     context.Context
	cancel  context.CancelFunc
	manager *Manager
	once    sync.Once
}

// NewTab opens a tab sized to the configured viewport.
func (m *Manager) NewTab(ctx context.Context) (*Tab, error) {
	if err := m.Start(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	tabCtx, cancel := chromedp.NewContext(m.browserCtx)
	m.mu.Unlock()

	width, height := viewport(m.cfg)
	if err := chromedp.Run(tabCtx, chromedp.EmulateViewport(width, height)); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}

	tab := &Tab{
		Host: session.NewHost(tabCtx, session.NewCDPExecutor(), m.logger,
			session.WithClosedShadowRoots(m.cfg.AllowClosedShadowRoots)),
		ctx:     tabCtx,
		cancel:  cancel,
		manager: m,
	}
	m.mu.Lock()
	m.tabs[tab] = struct{}{}
	m.mu.Unlock()
	m.logger.Debug("Opened tab.", zap.Int64("width", width), zap.Int64("height", height))
	return tab, nil
}

// Navigate loads url, bounded by the configured navigation timeout.
func (t *Tab) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, t.manager.cfg.NavigationTimeout)
	defer cancel()
	return t.Host.Navigate(navCtx, url)
}

// Close closes the tab. It is safe to call more than once.
func (t *Tab) Close() {
	t.once.Do(func() {
		t.cancel()
		t.manager.mu.Lock()
		delete(t.manager.tabs, t)
		t.manager.mu.Unlock()
	})
}

// Shutdown closes every tab and the browser. ctx bounds the wait for the
// browser to exit.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	tabs := make([]*Tab, 0, len(m.tabs))
	for t := range m.tabs {
		tabs = append(tabs, t)
	}
	browserCtx, browserCancel := m.browserCtx, m.browserCancel
	m.browserCtx, m.browserCancel = nil, nil
	m.mu.Unlock()

	for _, t := range tabs {
		t.Close()
	}

	var err error
	if browserCtx != nil {
		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(browserCtx) }()
		select {
		case err = <-done:
		case <-ctx.Done():
			err = fmt.Errorf("timed out waiting for browser to exit: %w", ctx.Err())
		}
		browserCancel()
	}
	m.allocCancel()
	m.logger.Info("Browser manager shutdown complete.")
	return err
}

// -- Allocator Options --

// DefaultAllocatorOptions builds the exec allocator flags from configuration.
func DefaultAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	flags := allocatorFlags(cfg, runtime.GOOS)
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		opts = append(opts, chromedp.Flag(name, flags[name]))
	}
	return opts
}

// allocatorFlags merges the fixed flags with user args. Later entries win, so
// "--headless=false" in args overrides the config value.
func allocatorFlags(cfg config.BrowserConfig, goos string) map[string]interface{} {
	width, height := viewport(cfg)
	flags := map[string]interface{}{
		"headless":        cfg.Headless,
		"hide-scrollbars": cfg.Headless,
		"mute-audio":      true,
		"disable-gpu":     cfg.Headless,
		"window-size":     fmt.Sprintf("%d,%d", width, height),
	}
	if goos == "linux" {
		flags["no-sandbox"] = true
		flags["disable-dev-shm-usage"] = true
	}
	for _, arg := range cfg.Args {
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if name == "" {
			continue
		}
		switch {
		case !hasValue:
			flags[name] = true
		case value == "true" || value == "false":
			flags[name] = value == "true"
		default:
			flags[name] = value
		}
	}
	return flags
}

func viewport(cfg config.BrowserConfig) (int64, int64) {
	width, height := cfg.Viewport["width"], cfg.Viewport["height"]
	if width <= 0 {
		width = 1280
	}
	if height <= 0 {
		height = 720
	}
	return int64(width), int64(height)
}
