package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/persistcheck/api"
	"github.com/use-agent/persistcheck/api/handler"
	"github.com/use-agent/persistcheck/api/middleware"
	"github.com/use-agent/persistcheck/browser"
	"github.com/use-agent/persistcheck/config"
	"github.com/use-agent/persistcheck/store"
	"github.com/use-agent/persistcheck/verifier"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("persistcheck server starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"maxSessions", cfg.Browser.MaxSessions,
		"target", cfg.Check.TargetURL,
	)

	// ── 3. Launch the shared browser ────────────────────────────────
	b, err := browser.New(cfg.Browser)
	if err != nil {
		slog.Error("failed to launch browser", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	// ── 4. Run store and limiters ───────────────────────────────────
	st := store.New(cfg.Store.MaxEntries, cfg.Store.TTL)
	defer st.Stop()

	limiters := middleware.NewLimiters(cfg.RateLimit)
	defer limiters.Stop()

	// ── 5. Setup router ─────────────────────────────────────────────
	checks := &handler.CheckDeps{
		Runner:      verifier.New(b, cfg.Check),
		Store:       st,
		Defaults:    verifier.DefaultRequest(cfg.Check),
		ArtifactDir: cfg.Check.ArtifactDir,
		Webhook:     cfg.Webhook,
	}
	router := api.NewRouter(cfg, checks, b, limiters, time.Now())

	// ── 6. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.WithCORS(router, cfg.Server.CORSOrigins),
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Synchronous checks can take the whole run timeout.
	grace := cfg.Check.RunTimeout
	if grace <= 0 {
		grace = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	slog.Info("persistcheck server stopped")
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
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
