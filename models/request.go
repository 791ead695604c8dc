package models

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/andybalholm/cascadia"
)

// CheckRequest is the payload for POST /api/v1/checks and the unit of work
// for a single persistence check.
type CheckRequest struct {
	// URL is the page of the application under test.
	URL string `json:"url,omitempty" binding:"omitempty,url"`

	// ButtonSelector narrows which elements may match ButtonText.
	// Default: "button".
	ButtonSelector string `json:"button_selector,omitempty"`

	// ButtonText is the visible text of the control that changes the setting.
	ButtonText string `json:"button_text,omitempty"`

	// ExpectText must be present on the reloaded page.
	ExpectText string `json:"expect_text,omitempty"`

	// StorageKey is an optional localStorage key read after the reload.
	StorageKey string `json:"storage_key,omitempty"`

	// StorageExpect, when set, is the value StorageKey must hold.
	StorageExpect string `json:"storage_expect,omitempty"`

	// Stealth injects anti-automation-detection evasions before navigation.
	// Nil inherits the server default; an explicit false turns it off.
	Stealth *bool `json:"stealth,omitempty"`

	// SettleMs is the fixed wait after the click, before the first screenshot.
	SettleMs int `json:"settle_ms,omitempty" binding:"omitempty,min=0,max=60000"`

	// ReloadSettleMs is the fixed wait after the reloaded page went idle.
	ReloadSettleMs int `json:"reload_settle_ms,omitempty" binding:"omitempty,min=0,max=60000"`

	// AssertTimeoutMs re-polls the text search until it passes. 0 checks once.
	AssertTimeoutMs int `json:"assert_timeout_ms,omitempty" binding:"omitempty,min=0,max=60000"`

	// Async returns immediately with a run ID instead of waiting for the report.
	Async bool `json:"async,omitempty"`

	// WebhookURL receives the report when the run completes.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`

	// Paths below are assigned by the caller that owns the filesystem,
	// never by API clients.
	ClickScreenshot  string `json:"-"`
	ReloadScreenshot string `json:"-"`
	SnapshotPath     string `json:"-"`
}

// ApplyDefaults fills every zero-valued field from base.
func (r *CheckRequest) ApplyDefaults(base *CheckRequest) {
	if base == nil {
		return
	}
	if r.URL == "" {
		r.URL = base.URL
	}
	if r.ButtonSelector == "" {
		r.ButtonSelector = base.ButtonSelector
	}
	if r.ButtonText == "" {
		r.ButtonText = base.ButtonText
	}
	if r.ExpectText == "" {
		r.ExpectText = base.ExpectText
	}
	if r.StorageKey == "" {
		r.StorageKey = base.StorageKey
		if r.StorageExpect == "" {
			r.StorageExpect = base.StorageExpect
		}
	}
	if r.Stealth == nil && base.Stealth != nil {
		v := *base.Stealth
		r.Stealth = &v
	}
	if r.SettleMs == 0 {
		r.SettleMs = base.SettleMs
	}
	if r.ReloadSettleMs == 0 {
		r.ReloadSettleMs = base.ReloadSettleMs
	}
	if r.AssertTimeoutMs == 0 {
		r.AssertTimeoutMs = base.AssertTimeoutMs
	}
	if r.WebhookURL == "" {
		r.WebhookURL = base.WebhookURL
	}
	if r.ClickScreenshot == "" {
		r.ClickScreenshot = base.ClickScreenshot
	}
	if r.ReloadScreenshot == "" {
		r.ReloadScreenshot = base.ReloadScreenshot
	}
	if r.SnapshotPath == "" {
		r.SnapshotPath = base.SnapshotPath
	}
	if r.ButtonSelector == "" {
		r.ButtonSelector = "button"
	}
}

// UseStealth reports whether stealth evasions are requested.
func (r *CheckRequest) UseStealth() bool {
	return r.Stealth != nil && *r.Stealth
}

// Validate reports the first problem that would make the run meaningless.
func (r *CheckRequest) Validate() error {
	u, err := url.Parse(r.URL)
	if err != nil {
		return NewCheckError(ErrCodeInvalidInput, "invalid url", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return NewCheckError(ErrCodeInvalidInput,
			fmt.Sprintf("url must be http or https, got %q", r.URL), nil)
	}
	if u.Host == "" {
		return NewCheckError(ErrCodeInvalidInput, "url has no host", nil)
	}
	if _, err := cascadia.Parse(r.ButtonSelector); err != nil {
		return NewCheckError(ErrCodeInvalidInput,
			fmt.Sprintf("invalid button selector %q", r.ButtonSelector), err)
	}
	if strings.TrimSpace(r.ButtonText) == "" {
		return NewCheckError(ErrCodeInvalidInput, "button_text is required", nil)
	}
	if strings.TrimSpace(r.ExpectText) == "" {
		return NewCheckError(ErrCodeInvalidInput, "expect_text is required", nil)
	}
	if r.StorageExpect != "" && r.StorageKey == "" {
		return NewCheckError(ErrCodeInvalidInput, "storage_expect requires storage_key", nil)
	}
	return nil
}
