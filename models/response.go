package models

import "time"

// Run outcomes.
const (
	OutcomePassed = "passed" // setting survived the reload
	OutcomeFailed = "failed" // run completed, expected state missing
	OutcomeError  = "error"  // run aborted at FailedStep
)

// Step names recorded in Report.Steps and Report.FailedStep.
const (
	StepNavigate       = "navigate"
	StepClick          = "click"
	StepSettle         = "settle"
	StepClickShot      = "screenshot_click"
	StepReload         = "reload"
	StepAssert         = "assert"
	StepStorage        = "storage"
	StepSnapshot       = "snapshot"
	StepReloadShot     = "screenshot_reload"
	StepAcquireSession = "acquire_session"
)

// Report is the result of one persistence check.
type Report struct {
	// ID identifies the run in the store; empty for CLI runs.
	ID string `json:"id,omitempty"`

	// Outcome is one of "passed", "failed" or "error".
	Outcome string `json:"outcome"`

	URL        string `json:"url"`
	ButtonText string `json:"button_text"`
	ExpectText string `json:"expect_text"`

	// Found reports whether ExpectText was present after the reload.
	Found bool `json:"found"`

	// MatchCount is the number of innermost elements containing ExpectText.
	MatchCount int `json:"match_count"`

	// StorageKey and StorageValue echo the localStorage probe, if requested.
	// StorageValue is nil when the key was absent.
	StorageKey   string  `json:"storage_key,omitempty"`
	StorageValue *string `json:"storage_value,omitempty"`

	// FailedStep names the step that aborted the run (Outcome "error").
	FailedStep string `json:"failed_step,omitempty"`

	// Screenshots lists the files actually written, in order.
	Screenshots []string `json:"screenshots"`

	// Snapshot is the Markdown rendering path of the reloaded page, if written.
	Snapshot string `json:"snapshot,omitempty"`

	// TextDrift and DOMDrift are SimHash Hamming distances (0-64) between
	// the page after the click and the page after the reload.
	TextDrift int `json:"text_drift"`
	DOMDrift  int `json:"dom_drift"`

	Steps []StepRecord `json:"steps"`

	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`

	// Error is populated only when Outcome is "error".
	Error *ErrorDetail `json:"error,omitempty"`
}

// StepRecord is the timing of one step of the run.
type StepRecord struct {
	Name       string `json:"name"`
	DurationMs int64  `json:"duration_ms"`
	OK         bool   `json:"ok"`
}

// Passed is shorthand for Outcome == OutcomePassed.
func (r *Report) Passed() bool {
	return r.Outcome == OutcomePassed
}

// CheckAccepted is the immediate response for an async POST /api/v1/checks.
type CheckAccepted struct {
	ID     string `json:"id"`
	Status string `json:"status"` // "running"
}

// CheckStatusResponse is the response for GET /api/v1/checks/:id.
type CheckStatusResponse struct {
	ID     string  `json:"id"`
	Status string  `json:"status"` // "running" or "completed"
	Report *Report `json:"report,omitempty"`
}

// ErrorResponse wraps an ErrorDetail for non-report API failures.
type ErrorResponse struct {
	Error *ErrorDetail `json:"error"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status       string       `json:"status"` // "healthy" or "degraded"
	Uptime       string       `json:"uptime"`
	SessionStats SessionStats `json:"session_stats"`
	StoredRuns   int          `json:"stored_runs"`
	Version      string       `json:"version"`
}

// SessionStats reports browser session utilisation.
type SessionStats struct {
	MaxSessions    int `json:"max_sessions"`
	ActiveSessions int `json:"active_sessions"`
}
