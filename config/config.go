package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Check     CheckConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Store     StoreConfig
	Webhook   WebhookConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8090
	Mode string // "debug", "release", "test"; default: "release"

	// CORSOrigins enables CORS for these origins; empty disables it.
	CORSOrigins []string
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is the proxy URL passed to Chromium.
	Proxy string

	// MaxSessions caps concurrent checks sharing one browser process.
	MaxSessions int // default: 4

	ViewportWidth  int // default: 1280
	ViewportHeight int // default: 720
}

// CheckConfig describes the default persistence check and its timing.
type CheckConfig struct {
	// TargetURL is the application under test.
	TargetURL string // default: "http://localhost:3000"

	// ButtonSelector narrows which elements are candidates for the click.
	ButtonSelector string // default: "button"

	// ButtonText is the visible text of the control to click.
	ButtonText string // default: "Senior"

	// ExpectText must appear on the reloaded page for the check to pass.
	ExpectText string // default: "Level 1A"

	// NavigationTimeout bounds the initial navigation, load and network idle.
	NavigationTimeout time.Duration // default: 30s

	// ActionTimeout bounds locating and clicking the control.
	ActionTimeout time.Duration // default: 10s

	// RunTimeout bounds the whole run.
	RunTimeout time.Duration // default: 2m

	// SettleDelay is the fixed wait after the click, before the first screenshot.
	SettleDelay time.Duration // default: 2s

	// ReloadSettleDelay is the fixed wait after the reload reached network idle.
	ReloadSettleDelay time.Duration // default: 2s

	// IdleWindow is how long the network must be quiet to count as idle.
	IdleWindow time.Duration // default: 500ms

	// AssertTimeout re-polls the text search until it passes. 0 checks once.
	AssertTimeout time.Duration // default: 0

	ClickScreenshot  string // default: "verification/senior_mode.png"
	ReloadScreenshot string // default: "verification/reloaded.png"

	// SnapshotPath, when set, receives a Markdown rendering of the reloaded page.
	SnapshotPath string

	// StorageKey is an optional localStorage key read after the reload.
	StorageKey string

	// StorageExpect is the value StorageKey must hold; empty skips the comparison.
	StorageExpect string

	// Stealth injects go-rod/stealth evasions before navigation.
	Stealth bool // default: false

	// Headers are extra HTTP headers sent with every request of the page.
	Headers map[string]string

	// BlockedResourceTypes lists resource types to block (e.g. "Image", "Font").
	BlockedResourceTypes []string

	// ArtifactDir is where the server writes per-run screenshots.
	ArtifactDir string // default: "artifacts"
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: false

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 1

	// Burst is the maximum burst size per API key.
	Burst int // default: 3
}

// StoreConfig controls the in-memory run store.
type StoreConfig struct {
	MaxEntries int           // default: 500
	TTL        time.Duration // default: 1h
}

// WebhookConfig is the default destination for run notifications.
type WebhookConfig struct {
	URL    string
	Secret string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "text"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("PERSISTCHECK_HOST", "0.0.0.0"),
			Port: envIntOr("PERSISTCHECK_PORT", 8090),
			Mode: envOr("PERSISTCHECK_MODE", "release"),

			CORSOrigins: envSliceOr("PERSISTCHECK_CORS_ORIGINS", nil),
		},
		Browser: BrowserConfig{
			Headless:       envBoolOr("PERSISTCHECK_HEADLESS", true),
			NoSandbox:      envBoolOr("PERSISTCHECK_NO_SANDBOX", false),
			BrowserBin:     os.Getenv("PERSISTCHECK_BROWSER_BIN"),
			Proxy:          os.Getenv("PERSISTCHECK_PROXY"),
			MaxSessions:    envIntOr("PERSISTCHECK_MAX_SESSIONS", 4),
			ViewportWidth:  envIntOr("PERSISTCHECK_VIEWPORT_WIDTH", 1280),
			ViewportHeight: envIntOr("PERSISTCHECK_VIEWPORT_HEIGHT", 720),
		},
		Check: CheckConfig{
			TargetURL:            envOr("PERSISTCHECK_TARGET_URL", "http://localhost:3000"),
			ButtonSelector:       envOr("PERSISTCHECK_BUTTON_SELECTOR", "button"),
			ButtonText:           envOr("PERSISTCHECK_BUTTON_TEXT", "Senior"),
			ExpectText:           envOr("PERSISTCHECK_EXPECT_TEXT", "Level 1A"),
			NavigationTimeout:    envDurationOr("PERSISTCHECK_NAV_TIMEOUT", 30*time.Second),
			ActionTimeout:        envDurationOr("PERSISTCHECK_ACTION_TIMEOUT", 10*time.Second),
			RunTimeout:           envDurationOr("PERSISTCHECK_RUN_TIMEOUT", 2*time.Minute),
			SettleDelay:          envDurationOr("PERSISTCHECK_SETTLE_DELAY", 2*time.Second),
			ReloadSettleDelay:    envDurationOr("PERSISTCHECK_RELOAD_SETTLE_DELAY", 2*time.Second),
			IdleWindow:           envDurationOr("PERSISTCHECK_IDLE_WINDOW", 500*time.Millisecond),
			AssertTimeout:        envDurationOr("PERSISTCHECK_ASSERT_TIMEOUT", 0),
			ClickScreenshot:      envOr("PERSISTCHECK_CLICK_SCREENSHOT", "verification/senior_mode.png"),
			ReloadScreenshot:     envOr("PERSISTCHECK_RELOAD_SCREENSHOT", "verification/reloaded.png"),
			SnapshotPath:         os.Getenv("PERSISTCHECK_SNAPSHOT_PATH"),
			StorageKey:           os.Getenv("PERSISTCHECK_STORAGE_KEY"),
			StorageExpect:        os.Getenv("PERSISTCHECK_STORAGE_EXPECT"),
			Stealth:              envBoolOr("PERSISTCHECK_STEALTH", false),
			Headers:              envMapOr("PERSISTCHECK_HEADERS", nil),
			BlockedResourceTypes: envSliceOr("PERSISTCHECK_BLOCKED_RESOURCES", nil),
			ArtifactDir:          envOr("PERSISTCHECK_ARTIFACT_DIR", "artifacts"),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("PERSISTCHECK_AUTH_ENABLED", false),
			APIKeys: envSliceOr("PERSISTCHECK_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("PERSISTCHECK_RATE_RPS", 1.0),
			Burst:             envIntOr("PERSISTCHECK_RATE_BURST", 3),
		},
		Store: StoreConfig{
			MaxEntries: envIntOr("PERSISTCHECK_STORE_MAX_ENTRIES", 500),
			TTL:        envDurationOr("PERSISTCHECK_STORE_TTL", time.Hour),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("PERSISTCHECK_WEBHOOK_URL"),
			Secret: os.Getenv("PERSISTCHECK_WEBHOOK_SECRET"),
		},
		Log: LogConfig{
			Level:  envOr("PERSISTCHECK_LOG_LEVEL", "info"),
			Format: envOr("PERSISTCHECK_LOG_FORMAT", "text"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}

// envMapOr parses "K=V,K2=V2". Entries without '=' are skipped.
func envMapOr(key string, fallback map[string]string) map[string]string {
	pairs := envSliceOr(key, nil)
	if len(pairs) == 0 {
		return fallback
	}
	result := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			continue
		}
		result[k] = strings.TrimSpace(v)
	}
	if len(result) == 0 {
		return fallback
	}
	return result
}
