package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/persistcheck/browser"
	"github.com/use-agent/persistcheck/config"
	"github.com/use-agent/persistcheck/models"
	"github.com/use-agent/persistcheck/verifier"
	"github.com/use-agent/persistcheck/webhook"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── 1. Load configuration, flags override env ──────────────────
	cfg := config.Load()

	url := flag.String("url", cfg.Check.TargetURL, "page of the application under test")
	button := flag.String("button", cfg.Check.ButtonText, "visible text of the control to click")
	expect := flag.String("expect", cfg.Check.ExpectText, "text that must survive the reload")
	selector := flag.String("selector", cfg.Check.ButtonSelector, "CSS selector narrowing the clickable candidates")
	storageKey := flag.String("storage-key", cfg.Check.StorageKey, "localStorage key to read after the reload")
	storageExpect := flag.String("storage-expect", cfg.Check.StorageExpect, "value the storage key must hold")
	snapshotPath := flag.String("snapshot", cfg.Check.SnapshotPath, "write a Markdown rendering of the reloaded page here")
	headful := flag.Bool("headful", !cfg.Browser.Headless, "show the browser window")
	asJSON := flag.Bool("json", false, "print the report as JSON after the run")
	strict := flag.Bool("strict", false, "exit 1 unless the check passed")
	flag.Parse()

	cfg.Check.TargetURL = *url
	cfg.Check.ButtonText = *button
	cfg.Check.ExpectText = *expect
	cfg.Check.ButtonSelector = *selector
	cfg.Check.StorageKey = *storageKey
	cfg.Check.StorageExpect = *storageExpect
	cfg.Check.SnapshotPath = *snapshotPath
	cfg.Browser.Headless = !*headful
	cfg.Browser.MaxSessions = 1

	// ── 2. Logging goes to stderr, stdout is the console report ────
	initLogger(cfg.Log)

	req := verifier.DefaultRequest(cfg.Check)
	if err := req.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	// ── 3. Launch the browser ──────────────────────────────────────
	b, err := browser.New(cfg.Browser)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to launch browser: %v\n", err)
		return 1
	}
	defer b.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 4. Run the check ───────────────────────────────────────────
	v := verifier.New(b, cfg.Check)
	rep := v.Run(ctx, req, verifier.ConsoleObserver(os.Stdout))

	slog.Info("check finished",
		"outcome", rep.Outcome,
		"failed_step", rep.FailedStep,
		"duration_ms", rep.DurationMs,
	)

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			slog.Error("failed to encode report", "error", err)
		}
	}

	if cfg.Webhook.URL != "" {
		notify(cfg.Webhook, rep)
	}

	if *strict && rep.Outcome != models.OutcomePassed {
		return 1
	}
	return 0
}

func notify(cfg config.WebhookConfig, rep *models.Report) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := webhook.Deliver(ctx, cfg.URL, cfg.Secret, webhook.NewEvent(rep)); err != nil {
		slog.Warn("webhook delivery failed", "url", cfg.URL, "error", err)
	}
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
