package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/persistcheck/config"
	"github.com/use-agent/persistcheck/models"
	"github.com/use-agent/persistcheck/store"
	"github.com/use-agent/persistcheck/verifier"
	"github.com/use-agent/persistcheck/webhook"
)

// Runner executes one persistence check.
type Runner interface {
	Run(ctx context.Context, req *models.CheckRequest, obs verifier.Observer) *models.Report
}

// CheckDeps is everything the check endpoints need.
type CheckDeps struct {
	Runner Runner
	Store  *store.Store

	// Defaults fills fields the client left empty.
	Defaults *models.CheckRequest

	// ArtifactDir receives one sub-directory of screenshots per run.
	ArtifactDir string

	Webhook config.WebhookConfig
}

// PostCheck returns a handler for POST /api/v1/checks.
//
// An empty body runs the configured default check. With "async": true the
// handler answers 202 with a run ID and the report is fetched later from
// GET /api/v1/checks/:id. Otherwise the report is returned directly; a
// failed or errored check is still a 200, the outcome is in the report.
func PostCheck(d *CheckDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.CheckRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}

		req.ApplyDefaults(d.Defaults)

		runID := store.NewID()
		d.assignArtifacts(runID, &req)

		if err := req.Validate(); err != nil {
			var ce *models.CheckError
			if !errors.As(err, &ce) {
				ce = models.NewCheckError(models.ErrCodeInvalidInput, err.Error(), nil)
			}
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: ce.ToDetail()})
			return
		}

		d.Store.Start(runID)
		slog.Info("check started", "run_id", runID, "url", req.URL, "async", req.Async)

		if req.Async {
			go d.execute(context.Background(), runID, &req)
			c.JSON(http.StatusAccepted, models.CheckAccepted{
				ID:     runID,
				Status: store.StatusRunning,
			})
			return
		}

		c.JSON(http.StatusOK, d.execute(c.Request.Context(), runID, &req))
	}
}

// GetCheck returns a handler for GET /api/v1/checks/:id.
func GetCheck(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		runID := c.Param("id")
		status, rep, ok := st.Get(runID)
		if !ok {
			notFound(c, "check run not found")
			return
		}

		c.JSON(http.StatusOK, models.CheckStatusResponse{
			ID:     runID,
			Status: status,
			Report: rep,
		})
	}
}

// execute runs the check, stores the report and fires the webhook.
func (d *CheckDeps) execute(ctx context.Context, runID string, req *models.CheckRequest) *models.Report {
	rep := d.Runner.Run(ctx, req, verifier.SlogObserver(slog.Default(), runID))
	rep.ID = runID
	d.Store.Complete(runID, rep)

	slog.Info("check finished",
		"run_id", runID,
		"outcome", rep.Outcome,
		"failed_step", rep.FailedStep,
		"duration_ms", rep.DurationMs,
	)

	url, secret := req.WebhookURL, d.Webhook.Secret
	if url == "" {
		url = d.Webhook.URL
	}
	if url != "" {
		webhook.DeliverAsync(url, secret, webhook.NewEvent(rep))
	}
	return rep
}

// assignArtifacts places the run's files under ArtifactDir/<runID>/,
// keeping the configured file names.
func (d *CheckDeps) assignArtifacts(runID string, req *models.CheckRequest) {
	dir := filepath.Join(d.ArtifactDir, runID)
	if req.ClickScreenshot != "" {
		req.ClickScreenshot = filepath.Join(dir, filepath.Base(req.ClickScreenshot))
	}
	if req.ReloadScreenshot != "" {
		req.ReloadScreenshot = filepath.Join(dir, filepath.Base(req.ReloadScreenshot))
	}
	if req.SnapshotPath != "" {
		req.SnapshotPath = filepath.Join(dir, filepath.Base(req.SnapshotPath))
	}
}
