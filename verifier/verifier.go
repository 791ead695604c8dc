package verifier

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/persistcheck/browser"
	"github.com/use-agent/persistcheck/config"
	"github.com/use-agent/persistcheck/models"
	"github.com/use-agent/persistcheck/snapshot"
)

// Sessions hands out isolated browser sessions.
type Sessions interface {
	Acquire(ctx context.Context) (*browser.Session, error)
}

// Verifier runs persistence checks against a browser.
// It is safe for concurrent use; each run gets its own session.
type Verifier struct {
	sessions Sessions
	cfg      config.CheckConfig
	blocked  map[proto.NetworkResourceType]struct{}
	snap     *snapshot.Writer
}

// New creates a Verifier. cfg supplies the timing that is not per-request
// (navigation, action and run timeouts, idle window, headers, blocking).
func New(sessions Sessions, cfg config.CheckConfig) *Verifier {
	return &Verifier{
		sessions: sessions,
		cfg:      cfg,
		blocked:  blockedSet(cfg.BlockedResourceTypes),
		snap:     snapshot.NewWriter(),
	}
}

// DefaultRequest builds the check described by cfg.
func DefaultRequest(cfg config.CheckConfig) *models.CheckRequest {
	stealth := cfg.Stealth
	return &models.CheckRequest{
		URL:              cfg.TargetURL,
		ButtonSelector:   cfg.ButtonSelector,
		ButtonText:       cfg.ButtonText,
		ExpectText:       cfg.ExpectText,
		StorageKey:       cfg.StorageKey,
		StorageExpect:    cfg.StorageExpect,
		Stealth:          &stealth,
		SettleMs:         int(cfg.SettleDelay / time.Millisecond),
		ReloadSettleMs:   int(cfg.ReloadSettleDelay / time.Millisecond),
		AssertTimeoutMs:  int(cfg.AssertTimeout / time.Millisecond),
		ClickScreenshot:  cfg.ClickScreenshot,
		ReloadScreenshot: cfg.ReloadScreenshot,
		SnapshotPath:     cfg.SnapshotPath,
	}
}

// Run executes one check and reports the outcome. It never returns an
// error: a failure at any step ends the run and is recorded in the report.
//
// There are two failure boundaries. A navigation failure stops before any
// interaction. Any later failure (click, screenshot, reload, search) stops
// the remaining steps, so later screenshots are not taken.
func (v *Verifier) Run(ctx context.Context, req *models.CheckRequest, obs Observer) *models.Report {
	if obs == nil {
		obs = Discard
	}

	start := time.Now()
	rep := &models.Report{
		Outcome:     models.OutcomeFailed,
		URL:         req.URL,
		ButtonText:  req.ButtonText,
		ExpectText:  req.ExpectText,
		StorageKey:  req.StorageKey,
		Screenshots: []string{},
		Steps:       []models.StepRecord{},
		StartedAt:   start.UTC(),
	}
	defer func() {
		rep.DurationMs = time.Since(start).Milliseconds()
	}()

	if v.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.cfg.RunTimeout)
		defer cancel()
	}

	sess, err := v.sessions.Acquire(ctx)
	if err != nil {
		obs.Printf("Failed to start browser session: %s", causeOf(err))
		abort(rep, models.StepAcquireSession, err, models.ErrCodeBrowserCrash)
		return rep
	}
	defer sess.Release()

	page, err := sess.Page()
	if err != nil {
		obs.Printf("Failed to start browser session: %s", causeOf(err))
		abort(rep, models.StepAcquireSession, err, models.ErrCodeBrowserCrash)
		return rep
	}
	defer func() {
		if closeErr := page.Close(); closeErr != nil {
			slog.Debug("page close failed", "error", closeErr)
		}
	}()

	r := &run{v: v, req: req, page: page, rep: rep, obs: obs}
	if stop := r.prepare(); stop != nil {
		defer stop()
	}

	obs.Printf("Navigating to %s", req.URL)
	if err := r.navigate(ctx); err != nil {
		obs.Printf("Failed to navigate: %s", causeOf(err))
		abort(rep, models.StepNavigate, err, models.ErrCodeNavigation)
		return rep
	}
	obs.Printf("Page loaded.")

	if step, err := r.interact(ctx); err != nil {
		obs.Printf("Error during interaction: %s", causeOf(err))
		abort(rep, step, err, models.ErrCodeInteraction)
	}
	return rep
}

// abort marks the report as errored at step. Context deadlines map to
// CHECK_TIMEOUT; untyped errors get fallbackCode.
func abort(rep *models.Report, step string, err error, fallbackCode string) {
	rep.Outcome = models.OutcomeError
	rep.FailedStep = step

	var ce *models.CheckError
	if !errors.As(err, &ce) {
		ce = categorizeError(err, fallbackCode, step+" failed")
	}
	rep.Error = ce.ToDetail()
}

// categorizeError wraps raw errors into typed CheckErrors.
func categorizeError(err error, code, msg string) *models.CheckError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewCheckError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewCheckError(models.ErrCodeTimeout, "check canceled", err)
	default:
		return models.NewCheckError(code, msg, err)
	}
}

// causeOf is the text printed after "Failed to navigate:" and friends.
func causeOf(err error) string {
	var ce *models.CheckError
	if errors.As(err, &ce) && ce.Err != nil {
		return ce.Err.Error()
	}
	return err.Error()
}
