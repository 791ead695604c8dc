package browser

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/persistcheck/config"
	"github.com/use-agent/persistcheck/models"
	"golang.org/x/sync/semaphore"
)

// Browser owns one Chromium process and hands out isolated sessions.
// It is safe for concurrent use.
type Browser struct {
	browser  *rod.Browser
	sem      *semaphore.Weighted
	cfg      config.BrowserConfig
	active   atomic.Int32
	launcher *launcher.Launcher
}

// New launches Chromium and connects to it over CDP.
func New(cfg config.BrowserConfig) (*Browser, error) {
	if cfg.MaxSessions < 1 {
		cfg.MaxSessions = 1
	}

	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.Proxy != "" {
		l = l.Proxy(cfg.Proxy)
	}

	l.Set(flags.Flag("disable-features"), "TranslateUI")
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewCheckError(
			models.ErrCodeBrowserCrash,
			"failed to launch browser",
			err,
		)
	}
	slog.Debug("browser launched", "controlURL", controlURL)

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, models.NewCheckError(
			models.ErrCodeBrowserCrash,
			"failed to connect to browser",
			err,
		)
	}

	return &Browser{
		browser:  b,
		sem:      semaphore.NewWeighted(int64(cfg.MaxSessions)),
		cfg:      cfg,
		launcher: l,
	}, nil
}

// Acquire waits for a free slot and opens a fresh incognito context.
// Incognito contexts do not share localStorage or cookies, so concurrent
// checks against the same origin cannot see each other's settings.
func (b *Browser) Acquire(ctx context.Context) (*Session, error) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return nil, models.NewCheckError(
			models.ErrCodeTimeout,
			"no browser session available",
			err,
		)
	}

	incognito, err := b.browser.Incognito()
	if err != nil {
		b.sem.Release(1)
		return nil, models.NewCheckError(
			models.ErrCodeBrowserCrash,
			"failed to create browser context",
			err,
		)
	}

	b.active.Add(1)
	return &Session{owner: b, ctx: incognito, viewport: viewportOf(b.cfg)}, nil
}

// Stats returns a snapshot of session utilisation.
func (b *Browser) Stats() models.SessionStats {
	return models.SessionStats{
		MaxSessions:    b.cfg.MaxSessions,
		ActiveSessions: int(b.active.Load()),
	}
}

// Close disconnects and kills the browser process.
// Call this on shutdown to prevent zombie Chrome processes.
func (b *Browser) Close() {
	slog.Debug("closing browser")
	if err := b.browser.Close(); err != nil {
		slog.Warn("browser close failed", "error", err)
	}
	b.launcher.Kill()
	b.launcher.Cleanup()
}

// Session is one isolated browser context. Release must be called exactly once.
type Session struct {
	owner    *Browser
	ctx      *rod.Browser
	viewport *proto.EmulationSetDeviceMetricsOverride
	released atomic.Bool
}

// Page opens a new tab in the session with the configured viewport.
func (s *Session) Page() (*rod.Page, error) {
	page, err := s.ctx.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, models.NewCheckError(
			models.ErrCodeBrowserCrash,
			"failed to open page",
			err,
		)
	}
	if s.viewport != nil {
		if err := page.SetViewport(s.viewport); err != nil {
			slog.Warn("set viewport failed, keeping browser default", "error", err)
		}
	}
	return page, nil
}

// Release disposes the incognito context and frees the slot.
func (s *Session) Release() {
	if !s.released.CompareAndSwap(false, true) {
		return
	}
	if err := s.ctx.Close(); err != nil {
		slog.Debug("browser context close failed", "error", err)
	}
	s.owner.active.Add(-1)
	s.owner.sem.Release(1)
}

func viewportOf(cfg config.BrowserConfig) *proto.EmulationSetDeviceMetricsOverride {
	if cfg.ViewportWidth <= 0 || cfg.ViewportHeight <= 0 {
		return nil
	}
	return &proto.EmulationSetDeviceMetricsOverride{
		Width:             cfg.ViewportWidth,
		Height:            cfg.ViewportHeight,
		DeviceScaleFactor: 1,
	}
}
