// Package browser implements pagedriver on top of a go-rod controlled Chromium.
package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/oklog/ulid/v2"

	"github.com/narworks/muhasebe-asistani-sub000/internal/config"
	"github.com/narworks/muhasebe-asistani-sub000/internal/pagedriver"
)

// Options configures launched browsers.
type Options struct {
	ChromePath string
	Headless   bool
	UserAgent  string
	NavTimeout time.Duration
	Strategies Strategies
}

// OptionsFromConfig builds Options from the service configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ChromePath: cfg.ChromePath,
		Headless:   cfg.BrowserHeadless,
		UserAgent:  cfg.UserAgent,
		NavTimeout: cfg.NavTimeout,
		Strategies: DefaultStrategies(),
	}
}

// Launcher starts one Chromium process per scan.
type Launcher struct {
	opts   Options
	logger *slog.Logger
}

// NewLauncher creates a Launcher.
func NewLauncher(opts Options, logger *slog.Logger) *Launcher {
	if opts.Strategies == nil {
		opts.Strategies = DefaultStrategies()
	}
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = 30 * time.Second
	}
	return &Launcher{opts: opts, logger: logger.With("component", "browser")}
}

// Warmup makes sure a Chromium binary is available so the first scan does not
// pay for the download.
func (l *Launcher) Warmup() error {
	if l.opts.ChromePath != "" {
		l.logger.Info("using custom Chrome path", "path", l.opts.ChromePath)
		return nil
	}
	path, err := launcher.NewBrowser().Get()
	if err != nil {
		return fmt.Errorf("failed to fetch Chromium: %w", err)
	}
	l.logger.Info("Chromium ready", "path", path)
	return nil
}

// Launch starts a browser and connects to it.
func (l *Launcher) Launch(ctx context.Context) (pagedriver.Driver, error) {
	ln := launcher.New().Context(ctx)
	if l.opts.ChromePath != "" {
		ln = ln.Bin(l.opts.ChromePath)
	}

	ln = ln.
		Headless(l.opts.Headless).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-infobars").
		Set("disable-extensions").
		Set("disable-background-timer-throttling").
		Set("disable-renderer-backgrounding").
		Set("window-size", "1280,800").
		Set("lang", "tr-TR,tr")

	u, err := ln.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	rb := rod.New().ControlURL(u)
	if err := rb.Connect(); err != nil {
		ln.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	id := ulid.Make().String()
	l.logger.Info("browser launched", "id", id, "headless", l.opts.Headless)

	return &Browser{
		id:       id,
		browser:  rb,
		launcher: ln,
		opts:     l.opts,
		logger:   l.logger.With("browser_id", id),
	}, nil
}

// Browser is a launched Chromium instance. It implements pagedriver.Driver.
type Browser struct {
	id       string
	browser  *rod.Browser
	launcher *launcher.Launcher
	opts     Options
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
}

// OpenPage opens a fresh stealth page.
func (b *Browser) OpenPage(ctx context.Context) (pagedriver.Page, error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil, pagedriver.ErrBrowserClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rp, err := newStealthPage(b.browser, b.opts.UserAgent)
	if err != nil {
		return nil, classify(err)
	}

	return &Page{
		page:       rp,
		strategies: b.opts.Strategies,
		navTimeout: b.opts.NavTimeout,
		logger:     b.logger,
	}, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	err := b.browser.Close()
	b.launcher.Kill()
	b.launcher.Cleanup()
	b.logger.Info("browser closed")
	return err
}

// classify maps connection-level failures to pagedriver.ErrBrowserClosed and
// leaves everything else untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, io.EOF) || isConnClosed(err.Error()) {
		return fmt.Errorf("%w: %v", pagedriver.ErrBrowserClosed, err)
	}
	return err
}

func isConnClosed(msg string) bool {
	msg = strings.ToLower(msg)
	for _, s := range []string{
		"use of closed network connection",
		"websocket: close",
		"connection reset by peer",
		"broken pipe",
		"target closed",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
