package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "http://localhost:3000", cfg.Check.TargetURL)
	assert.Equal(t, "Senior", cfg.Check.ButtonText)
	assert.Equal(t, "button", cfg.Check.ButtonSelector)
	assert.Equal(t, "Level 1A", cfg.Check.ExpectText)
	assert.Equal(t, 30*time.Second, cfg.Check.NavigationTimeout)
	assert.Equal(t, 2*time.Second, cfg.Check.SettleDelay)
	assert.Equal(t, 2*time.Second, cfg.Check.ReloadSettleDelay)
	assert.Equal(t, time.Duration(0), cfg.Check.AssertTimeout)
	assert.Equal(t, "verification/senior_mode.png", cfg.Check.ClickScreenshot)
	assert.Equal(t, "verification/reloaded.png", cfg.Check.ReloadScreenshot)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 4, cfg.Browser.MaxSessions)
	assert.False(t, cfg.Auth.Enabled)
	assert.Nil(t, cfg.Check.Headers)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PERSISTCHECK_TARGET_URL", "http://127.0.0.1:5173")
	t.Setenv("PERSISTCHECK_BUTTON_TEXT", "Junior")
	t.Setenv("PERSISTCHECK_SETTLE_DELAY", "750ms")
	t.Setenv("PERSISTCHECK_HEADLESS", "false")
	t.Setenv("PERSISTCHECK_MAX_SESSIONS", "8")
	t.Setenv("PERSISTCHECK_BLOCKED_RESOURCES", "Image, Font ,")
	t.Setenv("PERSISTCHECK_RATE_RPS", "2.5")

	cfg := Load()

	assert.Equal(t, "http://127.0.0.1:5173", cfg.Check.TargetURL)
	assert.Equal(t, "Junior", cfg.Check.ButtonText)
	assert.Equal(t, 750*time.Millisecond, cfg.Check.SettleDelay)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 8, cfg.Browser.MaxSessions)
	assert.Equal(t, []string{"Image", "Font"}, cfg.Check.BlockedResourceTypes)
	assert.InDelta(t, 2.5, cfg.RateLimit.RequestsPerSecond, 1e-9)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("PERSISTCHECK_PORT", "not-a-port")
	t.Setenv("PERSISTCHECK_NAV_TIMEOUT", "soon")
	t.Setenv("PERSISTCHECK_STEALTH", "maybe")

	cfg := Load()

	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Check.NavigationTimeout)
	assert.False(t, cfg.Check.Stealth)
}

func TestEnvMapOr(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  map[string]string
	}{
		{"unset", "", nil},
		{"single", "X-Env=staging", map[string]string{"X-Env": "staging"}},
		{"multiple", "A=1, B = 2", map[string]string{"A": "1", "B": "2"}},
		{"value with equals", "Cookie=a=b", map[string]string{"Cookie": "a=b"}},
		{"malformed only", "novalue,=x", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PERSISTCHECK_TEST_MAP", tt.value)
			got := envMapOr("PERSISTCHECK_TEST_MAP", nil)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoad_CORSOrigins(t *testing.T) {
	assert.Empty(t, Load().Server.CORSOrigins)

	t.Setenv("PERSISTCHECK_CORS_ORIGINS", "http://localhost:5173, https://dash.example.com")
	assert.Equal(t, []string{"http://localhost:5173", "https://dash.example.com"}, Load().Server.CORSOrigins)
}
