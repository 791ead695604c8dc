package verifier

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/rod/lib/utils"
	"github.com/go-rod/stealth"
	"github.com/use-agent/persistcheck/models"
	"github.com/use-agent/persistcheck/simhash"
	"github.com/use-agent/persistcheck/textmatch"
	"github.com/ysmood/gson"
)

// assertPollInterval is the spacing of text searches when AssertTimeoutMs > 0.
const assertPollInterval = 250 * time.Millisecond

// run is the state of one check on one page.
type run struct {
	v    *Verifier
	req  *models.CheckRequest
	page *rod.Page
	rep  *models.Report
	obs  Observer

	// hijacked is true when resource blocking owns the Fetch domain, in
	// which case WaitRequestIdle cannot be used and DOM stability stands in.
	hijacked bool

	// clickedHTML is the page after the click, kept for drift diagnostics.
	clickedHTML string
}

// prepare installs everything that must exist before the first navigation:
// stealth evasions, extra headers and resource blocking. It returns a stop
// function for the hijack router, or nil.
func (r *run) prepare() func() {
	if r.req.UseStealth() {
		if _, err := r.page.EvalOnNewDocument(stealth.JS); err != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
		}
	}

	if len(r.v.cfg.Headers) > 0 {
		headers := make(proto.NetworkHeaders, len(r.v.cfg.Headers))
		for k, v := range r.v.cfg.Headers {
			headers[k] = gson.New(v)
		}
		if err := (proto.NetworkSetExtraHTTPHeaders{Headers: headers}).Call(r.page); err != nil {
			slog.Warn("setting extra headers failed", "error", err)
		}
	}

	router := setupHijack(r.page, r.v.blocked)
	if router == nil {
		return nil
	}
	r.hijacked = true
	return func() { _ = router.Stop() }
}

// step times fn and appends it to the report.
func (r *run) step(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	r.rep.Steps = append(r.rep.Steps, models.StepRecord{
		Name:       name,
		DurationMs: time.Since(start).Milliseconds(),
		OK:         err == nil,
	})
	return err
}

// navigate loads the target and waits for load plus network idle, all
// bounded by the navigation timeout.
func (r *run) navigate(ctx context.Context) error {
	return r.step(models.StepNavigate, func() error {
		return r.loadAndSettle(ctx, func(p *rod.Page) error { return p.Navigate(r.req.URL) })
	})
}

// interact runs every step after a successful navigation. It returns the
// name of the failed step with the error.
func (r *run) interact(ctx context.Context) (string, error) {
	if err := r.step(models.StepClick, func() error { return r.click(ctx) }); err != nil {
		return models.StepClick, err
	}
	r.obs.Printf("Clicked %s button.", r.req.ButtonText)

	// Fixed delay so the application can write the setting.
	if err := r.step(models.StepSettle, func() error { return sleep(ctx, ms(r.req.SettleMs)) }); err != nil {
		return models.StepSettle, err
	}

	if err := r.step(models.StepClickShot, func() error {
		return r.screenshot(ctx, r.req.ClickScreenshot)
	}); err != nil {
		return models.StepClickShot, err
	}

	if html, err := r.page.Context(ctx).HTML(); err == nil {
		r.clickedHTML = html
	}

	r.obs.Printf("Reloading page...")
	if err := r.step(models.StepReload, func() error {
		if err := r.loadAndSettle(ctx, func(p *rod.Page) error { return p.Reload() }); err != nil {
			return err
		}
		// Fixed delay for asynchronous state restoration after load.
		return sleep(ctx, ms(r.req.ReloadSettleMs))
	}); err != nil {
		return models.StepReload, err
	}

	var reloadedHTML string
	if err := r.step(models.StepAssert, func() error {
		html, n, err := r.search(ctx)
		reloadedHTML = html
		r.rep.MatchCount = n
		r.rep.Found = n > 0
		return err
	}); err != nil {
		return models.StepAssert, err
	}

	storageOK := true
	if r.req.StorageKey != "" {
		if err := r.step(models.StepStorage, func() error {
			var err error
			storageOK, err = r.probeStorage(ctx)
			return err
		}); err != nil {
			return models.StepStorage, err
		}
	}

	if r.rep.Found && storageOK {
		r.rep.Outcome = models.OutcomePassed
		r.obs.Printf("SUCCESS: Found '%s' after reload. Persistence verified.", r.req.ExpectText)
	} else {
		r.rep.Outcome = models.OutcomeFailed
		if !r.rep.Found {
			r.obs.Printf("FAILURE: Did not find '%s' after reload.", r.req.ExpectText)
		}
	}

	r.recordDrift(reloadedHTML)
	r.writeSnapshot(reloadedHTML)

	if err := r.step(models.StepReloadShot, func() error {
		return r.screenshot(ctx, r.req.ReloadScreenshot)
	}); err != nil {
		return models.StepReloadShot, err
	}
	return "", nil
}

// loadAndSettle runs action (navigate or reload) and waits for the load
// event and network idle, all within the navigation timeout.
func (r *run) loadAndSettle(ctx context.Context, action func(p *rod.Page) error) error {
	navCtx, cancel := withTimeout(ctx, r.v.cfg.NavigationTimeout)
	defer cancel()
	p := r.page.Context(navCtx)

	// The idle listener must exist before the action, or in-flight
	// requests are missed and the wait returns immediately.
	var waitIdle func()
	if !r.hijacked {
		waitIdle = p.WaitRequestIdle(r.v.cfg.IdleWindow, nil, nil, nil)
	}

	if err := action(p); err != nil {
		return err
	}
	if err := p.WaitLoad(); err != nil {
		return err
	}

	if waitIdle != nil {
		waitIdle()
	} else if err := p.WaitDOMStable(r.v.cfg.IdleWindow, 0.1); err != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM", "error", err)
	}
	return navCtx.Err()
}

// click finds the first element matching the selector whose text matches
// the button text, and clicks it.
func (r *run) click(ctx context.Context) error {
	actionCtx, cancel := withTimeout(ctx, r.v.cfg.ActionTimeout)
	defer cancel()
	p := r.page.Context(actionCtx)

	el, err := p.ElementR(r.req.ButtonSelector, buttonTextPattern(r.req.ButtonText))
	if err != nil {
		// A missing control is an interaction failure even though the
		// lookup ends on the action deadline.
		return models.NewCheckError(models.ErrCodeInteraction,
			"control not found",
			fmt.Errorf("%s with text %q not found: %w", r.req.ButtonSelector, r.req.ButtonText, err))
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// buttonTextPattern is the ElementR pattern for a literal button text. It
// is case-insensitive because innerText follows CSS text-transform, and the
// explicit /.../ keeps a text like "/x/i" from being read as flags.
func buttonTextPattern(text string) string {
	return "/" + regexp.QuoteMeta(text) + "/i"
}

// screenshot captures the viewport to path. An empty path skips the shot.
func (r *run) screenshot(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	actionCtx, cancel := withTimeout(ctx, r.v.cfg.ActionTimeout)
	defer cancel()

	img, err := r.page.Context(actionCtx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return fmt.Errorf("capture screenshot: %w", err)
	}
	if err := utils.OutputFile(path, img); err != nil {
		return fmt.Errorf("write screenshot: %w", err)
	}
	r.rep.Screenshots = append(r.rep.Screenshots, path)
	r.obs.Printf("Screenshot saved to %s", path)
	return nil
}

// search looks for the expected text on the current page. With an assert
// timeout it keeps polling until the text shows up or time runs out.
func (r *run) search(ctx context.Context) (string, int, error) {
	deadline := time.Now().Add(ms(r.req.AssertTimeoutMs))
	p := r.page.Context(ctx)
	for {
		html, err := p.HTML()
		if err != nil {
			return "", 0, fmt.Errorf("read page html: %w", err)
		}
		n, err := textmatch.Count(html, r.req.ExpectText)
		if err != nil {
			return html, 0, fmt.Errorf("parse page html: %w", err)
		}
		if n > 0 || !time.Now().Before(deadline) {
			return html, n, nil
		}
		if err := sleep(ctx, assertPollInterval); err != nil {
			return html, 0, err
		}
	}
}

// probeStorage reads the configured localStorage key and compares it to
// the expected value, when one is set.
func (r *run) probeStorage(ctx context.Context) (bool, error) {
	res, err := r.page.Context(ctx).Eval(`(k) => localStorage.getItem(k)`, r.req.StorageKey)
	if err != nil {
		return false, fmt.Errorf("read localStorage: %w", err)
	}
	if res.Value.Nil() {
		r.rep.StorageValue = nil
	} else {
		v := res.Value.Str()
		r.rep.StorageValue = &v
	}

	if r.req.StorageExpect == "" {
		return true, nil
	}
	if r.rep.StorageValue != nil && *r.rep.StorageValue == r.req.StorageExpect {
		return true, nil
	}
	got := "<absent>"
	if r.rep.StorageValue != nil {
		got = *r.rep.StorageValue
	}
	r.obs.Printf("FAILURE: localStorage[%q] = %q after reload, want %q.", r.req.StorageKey, got, r.req.StorageExpect)
	return false, nil
}

// recordDrift is best effort: it is diagnostic only.
func (r *run) recordDrift(reloadedHTML string) {
	if r.clickedHTML == "" || reloadedHTML == "" {
		return
	}
	before, err1 := textmatch.VisibleText(r.clickedHTML)
	after, err2 := textmatch.VisibleText(reloadedHTML)
	if err1 != nil || err2 != nil {
		return
	}
	d := simhash.Compare(before, r.clickedHTML, after, reloadedHTML)
	r.rep.TextDrift = d.Text
	r.rep.DOMDrift = d.DOM
	slog.Debug("reload drift", "url", r.req.URL, "text", d.Text, "dom", d.DOM)
}

// writeSnapshot is best effort and does not change the outcome.
func (r *run) writeSnapshot(reloadedHTML string) {
	if r.req.SnapshotPath == "" || reloadedHTML == "" {
		return
	}
	err := r.step(models.StepSnapshot, func() error {
		return r.v.snap.Write(r.req.SnapshotPath, reloadedHTML, r.req.URL)
	})
	if err != nil {
		slog.Warn("snapshot failed", "path", r.req.SnapshotPath, "error", err)
		return
	}
	r.rep.Snapshot = r.req.SnapshotPath
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
