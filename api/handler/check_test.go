package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/persistcheck/models"
	"github.com/use-agent/persistcheck/store"
	"github.com/use-agent/persistcheck/verifier"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeRunner struct {
	mu      sync.Mutex
	got     []models.CheckRequest
	outcome string
	block   chan struct{}
}

func (f *fakeRunner) Run(_ context.Context, req *models.CheckRequest, obs verifier.Observer) *models.Report {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.got = append(f.got, *req)
	f.mu.Unlock()
	obs.Printf("Navigating to %s", req.URL)
	return &models.Report{
		Outcome:    f.outcome,
		URL:        req.URL,
		ButtonText: req.ButtonText,
		ExpectText: req.ExpectText,
		Found:      f.outcome == models.OutcomePassed,
	}
}

func (f *fakeRunner) requests() []models.CheckRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.CheckRequest(nil), f.got...)
}

func newDeps(t *testing.T, r Runner) *CheckDeps {
	t.Helper()
	st := store.New(10, time.Hour)
	t.Cleanup(st.Stop)
	return &CheckDeps{
		Runner: r,
		Store:  st,
		Defaults: &models.CheckRequest{
			URL:              "http://localhost:3000",
			ButtonSelector:   "button",
			ButtonText:       "Senior",
			ExpectText:       "Level 1A",
			ClickScreenshot:  "verification/senior_mode.png",
			ReloadScreenshot: "verification/reloaded.png",
		},
		ArtifactDir: "artifacts",
	}
}

func newEngine(d *CheckDeps) *gin.Engine {
	r := gin.New()
	r.POST("/checks", PostCheck(d))
	r.GET("/checks/:id", GetCheck(d.Store))
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPostCheck_EmptyBodyUsesDefaults(t *testing.T) {
	runner := &fakeRunner{outcome: models.OutcomePassed}
	d := newDeps(t, runner)
	r := newEngine(d)

	w := do(r, http.MethodPost, "/checks", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var rep models.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	assert.Equal(t, models.OutcomePassed, rep.Outcome)
	assert.True(t, strings.HasPrefix(rep.ID, "run-"))
	assert.Equal(t, "http://localhost:3000", rep.URL)

	got := runner.requests()
	require.Len(t, got, 1)
	assert.Equal(t, "Senior", got[0].ButtonText)
	assert.Equal(t, filepath.Join("artifacts", rep.ID, "senior_mode.png"), got[0].ClickScreenshot)
	assert.Equal(t, filepath.Join("artifacts", rep.ID, "reloaded.png"), got[0].ReloadScreenshot)

	status, stored, ok := d.Store.Get(rep.ID)
	require.True(t, ok)
	assert.Equal(t, store.StatusCompleted, status)
	assert.Equal(t, models.OutcomePassed, stored.Outcome)
}

func TestPostCheck_FailedOutcomeIsStill200(t *testing.T) {
	d := newDeps(t, &fakeRunner{outcome: models.OutcomeFailed})
	w := do(newEngine(d), http.MethodPost, "/checks", `{"expect_text":"Level 2B"}`)

	require.Equal(t, http.StatusOK, w.Code)
	var rep models.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	assert.Equal(t, models.OutcomeFailed, rep.Outcome)
	assert.Equal(t, "Level 2B", rep.ExpectText)
	assert.False(t, rep.Found)
}

func TestPostCheck_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"url":`},
		{"not a url", `{"url":"not a url"}`},
		{"unsupported scheme", `{"url":"ftp://example.com"}`},
		{"bad selector", `{"button_selector":"button[["}`},
		{"storage expect without key", `{"storage_expect":"senior"}`},
		{"negative settle", `{"settle_ms":-1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{outcome: models.OutcomePassed}
			d := newDeps(t, runner)
			w := do(newEngine(d), http.MethodPost, "/checks", tt.body)

			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			var resp models.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, models.ErrCodeInvalidInput, resp.Error.Code)
			assert.Empty(t, runner.requests())
			assert.Zero(t, d.Store.Len())
		})
	}
}

func TestPostCheck_AsyncThenPoll(t *testing.T) {
	runner := &fakeRunner{outcome: models.OutcomePassed, block: make(chan struct{})}
	d := newDeps(t, runner)
	r := newEngine(d)

	w := do(r, http.MethodPost, "/checks", `{"async":true}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	var acc models.CheckAccepted
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &acc))
	assert.Equal(t, store.StatusRunning, acc.Status)

	w = do(r, http.MethodGet, "/checks/"+acc.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var status models.CheckStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, store.StatusRunning, status.Status)
	assert.Nil(t, status.Report)

	close(runner.block)

	require.Eventually(t, func() bool {
		st, _, _ := d.Store.Get(acc.ID)
		return st == store.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	w = do(r, http.MethodGet, "/checks/"+acc.ID, "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, store.StatusCompleted, status.Status)
	require.NotNil(t, status.Report)
	assert.Equal(t, acc.ID, status.Report.ID)
}

func TestGetCheck_NotFound(t *testing.T) {
	d := newDeps(t, &fakeRunner{})
	w := do(newEngine(d), http.MethodGet, "/checks/run-missing", "")

	require.Equal(t, http.StatusNotFound, w.Code)
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.ErrCodeNotFound, resp.Error.Code)
}

func TestPostCheck_WebhookOverride(t *testing.T) {
	hit := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev struct {
			Type string `json:"type"`
		}
		_ = json.NewDecoder(r.Body).Decode(&ev)
		hit <- ev.Type
	}))
	defer srv.Close()

	d := newDeps(t, &fakeRunner{outcome: models.OutcomeFailed})
	w := do(newEngine(d), http.MethodPost, "/checks", `{"webhook_url":"`+srv.URL+`"}`)
	require.Equal(t, http.StatusOK, w.Code)

	select {
	case typ := <-hit:
		assert.Equal(t, "check.failed", typ)
	case <-time.After(3 * time.Second):
		t.Fatal("webhook was not delivered")
	}
}

type fixedStats models.SessionStats

func (f fixedStats) Stats() models.SessionStats { return models.SessionStats(f) }

func TestHealth(t *testing.T) {
	tests := []struct {
		name  string
		stats fixedStats
		want  string
	}{
		{"idle", fixedStats{MaxSessions: 4, ActiveSessions: 0}, "healthy"},
		{"busy", fixedStats{MaxSessions: 4, ActiveSessions: 3}, "healthy"},
		{"saturated", fixedStats{MaxSessions: 4, ActiveSessions: 4}, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.New(10, time.Hour)
			defer st.Stop()
			st.Start("run-1")

			r := gin.New()
			r.GET("/health", Health(tt.stats, st, time.Now().Add(-time.Minute)))
			w := do(r, http.MethodGet, "/health", "")

			require.Equal(t, http.StatusOK, w.Code)
			var resp models.HealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.want, resp.Status)
			assert.Equal(t, 1, resp.StoredRuns)
			assert.Equal(t, Version, resp.Version)
			assert.Equal(t, tt.stats.ActiveSessions, resp.SessionStats.ActiveSessions)
		})
	}
}

func TestGetScreenshot(t *testing.T) {
	dir := t.TempDir()
	shot := filepath.Join(dir, "reloaded.png")
	require.NoError(t, os.WriteFile(shot, []byte("\x89PNG fake"), 0o644))

	st := store.New(10, time.Hour)
	defer st.Stop()
	st.Start("run-busy")
	st.Complete("run-done", &models.Report{Screenshots: []string{shot}})

	r := gin.New()
	r.GET("/checks/:id/screenshots/:name", GetScreenshot(st))

	tests := []struct {
		name string
		path string
		code int
	}{
		{"listed file", "/checks/run-done/screenshots/reloaded.png", http.StatusOK},
		{"unlisted file", "/checks/run-done/screenshots/other.png", http.StatusNotFound},
		{"running run", "/checks/run-busy/screenshots/reloaded.png", http.StatusNotFound},
		{"unknown run", "/checks/run-x/screenshots/reloaded.png", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodGet, tt.path, "")
			assert.Equal(t, tt.code, w.Code)
			if tt.code == http.StatusOK {
				assert.Equal(t, "\x89PNG fake", w.Body.String())
			}
		})
	}
}
