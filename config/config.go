package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/use-agent/pagewalk/browser"
	"github.com/use-agent/pagewalk/engine"
	"github.com/use-agent/pagewalk/paginate"
	"github.com/use-agent/pagewalk/ratelimit"
)

// Config holds all application configuration.
type Config struct {
	Fetch     FetchConfig     `yaml:"fetch"`
	Detect    DetectConfig    `yaml:"detect"`
	Browser   BrowserConfig   `yaml:"browser"`
	Paginate  PaginateConfig  `yaml:"paginate"`
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Cache     CacheConfig     `yaml:"cache"`
	Log       LogConfig       `yaml:"log"`
}

// FetchConfig controls the HTTP strategy, retries and request pacing.
type FetchConfig struct {
	// MinRequestInterval is the gap enforced between admissions. 0 disables it.
	MinRequestInterval time.Duration `yaml:"min_request_interval"`

	// RequestsPerMinute is an alternative way to express the gap. The
	// stricter of the two wins.
	RequestsPerMinute int `yaml:"requests_per_minute"`

	HTTPTimeout  time.Duration `yaml:"http_timeout"`  // default: 15s
	MaxRetries   int           `yaml:"max_retries"`   // default: 2
	BackoffBase  time.Duration `yaml:"backoff_base"`  // default: 100ms
	BackoffMax   time.Duration `yaml:"backoff_max"`   // default: 2s
	MaxRedirects int           `yaml:"max_redirects"` // default: 10
	MaxBodyBytes int64         `yaml:"max_body_bytes"`

	// Strict fails blocked http-only responses and re-checks rendered pages.
	Strict    bool   `yaml:"strict"`
	UserAgent string `yaml:"user_agent"`
	Proxy     string `yaml:"proxy"`
}

// Interval is the effective admission gap.
func (f FetchConfig) Interval() time.Duration {
	return ratelimit.IntervalFor(f.MinRequestInterval, f.RequestsPerMinute)
}

// DetectConfig controls block classification.
type DetectConfig struct {
	BlockedStatusCodes []int    `yaml:"blocked_status_codes"`
	MinBodyBytes       int      `yaml:"min_body_bytes"`
	MinVisibleText     int      `yaml:"min_visible_text"`
	ChallengeMarkers   []string `yaml:"challenge_markers"`
}

// BrowserConfig controls the rendering session.
type BrowserConfig struct {
	// Enabled toggles browser escalation entirely.
	Enabled    bool   `yaml:"enabled"`     // default: true
	Backend    string `yaml:"backend"`     // "rod" or "chromedp"
	Headless   bool   `yaml:"headless"`    // default: true
	NoSandbox  bool   `yaml:"no_sandbox"`  // needed in Docker
	BrowserBin string `yaml:"browser_bin"` // overrides the Chromium binary
	ControlURL string `yaml:"control_url"` // attach to a running browser
	PoolSize   int    `yaml:"pool_size"`   // concurrent tabs; default: 1

	RenderTimeout        time.Duration `yaml:"render_timeout"`    // default: 30s
	SettleDelay          time.Duration `yaml:"settle_delay"`      // default: 1.5s
	WaitNetworkIdle      bool          `yaml:"wait_network_idle"` // default: true
	BlockedResourceTypes []string      `yaml:"blocked_resource_types"`
	BlockAds             bool          `yaml:"block_ads"`
}

// PaginateConfig controls traversal limits.
type PaginateConfig struct {
	MaxPages int `yaml:"max_pages"` // default: 10

	// NoProgressDistance is the simhash distance at or below which two
	// consecutive pages are the same content. Negative disables the check.
	NoProgressDistance int `yaml:"no_progress_distance"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string `yaml:"host"` // default: "0.0.0.0"
	Port int    `yaml:"port"` // default: 8080
	Mode string `yaml:"mode"` // "debug", "release", "test"; default: "release"
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	Enabled bool     `yaml:"enabled"` // default: true
	APIKeys []string `yaml:"api_keys"`
}

// RateLimitConfig controls per-key rate limiting of the API.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"` // default: 5
	Burst             int     `yaml:"burst"`               // default: 10
}

// CacheConfig controls the fetch response cache of the API.
type CacheConfig struct {
	MaxEntries int           `yaml:"max_entries"` // default: 1000
	TTL        time.Duration `yaml:"ttl"`         // default: 5m
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // default: "info"
	Format string `yaml:"format"` // "json" or "text"; default: "json"
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Fetch: FetchConfig{
			HTTPTimeout:  15 * time.Second,
			MaxRetries:   2,
			BackoffBase:  100 * time.Millisecond,
			BackoffMax:   2 * time.Second,
			MaxRedirects: 10,
			MaxBodyBytes: engine.DefaultMaxBodyBytes,
		},
		Detect: DetectConfig{
			BlockedStatusCodes: append([]int(nil), engine.DefaultBlockedStatusCodes...),
			ChallengeMarkers:   append([]string(nil), engine.DefaultChallengeMarkers...),
		},
		Browser: BrowserConfig{
			Enabled:              true,
			Backend:              browser.BackendRod,
			Headless:             true,
			PoolSize:             1,
			RenderTimeout:        30 * time.Second,
			SettleDelay:          1500 * time.Millisecond,
			WaitNetworkIdle:      true,
			BlockedResourceTypes: []string{"image", "font", "media"},
			BlockAds:             true,
		},
		Paginate: PaginateConfig{
			MaxPages: paginate.DefaultMaxPages,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Mode: "release",
		},
		Auth:      AuthConfig{Enabled: true},
		RateLimit: RateLimitConfig{RequestsPerSecond: 5, Burst: 10},
		Cache:     CacheConfig{MaxEntries: 1000, TTL: 5 * time.Minute},
		Log:       LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	cfg := Default()
	cfg.applyEnv()
	return cfg
}

// applyEnv overrides every field whose PAGEWALK_* variable is set.
func (c *Config) applyEnv() {
	f := &c.Fetch
	f.MinRequestInterval = envDurationOr("PAGEWALK_MIN_INTERVAL", f.MinRequestInterval)
	f.RequestsPerMinute = envIntOr("PAGEWALK_RPM", f.RequestsPerMinute)
	f.HTTPTimeout = envDurationOr("PAGEWALK_HTTP_TIMEOUT", f.HTTPTimeout)
	f.MaxRetries = envIntOr("PAGEWALK_MAX_RETRIES", f.MaxRetries)
	f.BackoffBase = envDurationOr("PAGEWALK_BACKOFF_BASE", f.BackoffBase)
	f.BackoffMax = envDurationOr("PAGEWALK_BACKOFF_MAX", f.BackoffMax)
	f.MaxRedirects = envIntOr("PAGEWALK_MAX_REDIRECTS", f.MaxRedirects)
	f.MaxBodyBytes = int64(envIntOr("PAGEWALK_MAX_BODY_BYTES", int(f.MaxBodyBytes)))
	f.Strict = envBoolOr("PAGEWALK_STRICT", f.Strict)
	f.UserAgent = envOr("PAGEWALK_USER_AGENT", f.UserAgent)
	f.Proxy = envOr("PAGEWALK_PROXY", f.Proxy)

	d := &c.Detect
	d.BlockedStatusCodes = envIntSliceOr("PAGEWALK_BLOCKED_STATUS", d.BlockedStatusCodes)
	d.MinBodyBytes = envIntOr("PAGEWALK_MIN_BODY_BYTES", d.MinBodyBytes)
	d.MinVisibleText = envIntOr("PAGEWALK_MIN_VISIBLE_TEXT", d.MinVisibleText)
	d.ChallengeMarkers = envSliceOr("PAGEWALK_CHALLENGE_MARKERS", d.ChallengeMarkers)

	b := &c.Browser
	b.Enabled = envBoolOr("PAGEWALK_BROWSER", b.Enabled)
	b.Backend = envOr("PAGEWALK_BROWSER_BACKEND", b.Backend)
	b.Headless = envBoolOr("PAGEWALK_HEADLESS", b.Headless)
	b.NoSandbox = envBoolOr("PAGEWALK_NO_SANDBOX", b.NoSandbox)
	b.BrowserBin = envOr("PAGEWALK_BROWSER_BIN", b.BrowserBin)
	b.ControlURL = envOr("PAGEWALK_BROWSER_URL", b.ControlURL)
	b.PoolSize = envIntOr("PAGEWALK_POOL_SIZE", b.PoolSize)
	b.RenderTimeout = envDurationOr("PAGEWALK_RENDER_TIMEOUT", b.RenderTimeout)
	b.SettleDelay = envDurationOr("PAGEWALK_SETTLE_DELAY", b.SettleDelay)
	b.WaitNetworkIdle = envBoolOr("PAGEWALK_WAIT_IDLE", b.WaitNetworkIdle)
	b.BlockedResourceTypes = envSliceOr("PAGEWALK_BLOCKED_RESOURCES", b.BlockedResourceTypes)
	b.BlockAds = envBoolOr("PAGEWALK_BLOCK_ADS", b.BlockAds)

	c.Paginate.MaxPages = envIntOr("PAGEWALK_MAX_PAGES", c.Paginate.MaxPages)
	c.Paginate.NoProgressDistance = envIntOr("PAGEWALK_NO_PROGRESS_DISTANCE", c.Paginate.NoProgressDistance)

	c.Server.Host = envOr("PAGEWALK_HOST", c.Server.Host)
	c.Server.Port = envIntOr("PAGEWALK_PORT", c.Server.Port)
	c.Server.Mode = envOr("PAGEWALK_MODE", c.Server.Mode)

	c.Auth.Enabled = envBoolOr("PAGEWALK_AUTH_ENABLED", c.Auth.Enabled)
	c.Auth.APIKeys = envSliceOr("PAGEWALK_API_KEYS", c.Auth.APIKeys)

	c.RateLimit.RequestsPerSecond = envFloatOr("PAGEWALK_RATE_RPS", c.RateLimit.RequestsPerSecond)
	c.RateLimit.Burst = envIntOr("PAGEWALK_RATE_BURST", c.RateLimit.Burst)

	c.Cache.MaxEntries = envIntOr("PAGEWALK_CACHE_MAX_ENTRIES", c.Cache.MaxEntries)
	c.Cache.TTL = envDurationOr("PAGEWALK_CACHE_TTL", c.Cache.TTL)

	c.Log.Level = envOr("PAGEWALK_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOr("PAGEWALK_LOG_FORMAT", c.Log.Format)
}

// Validation errors returned (joined) by Validate.
var (
	ErrNonPositiveTimeout = errors.New("config: timeouts must be positive")
	ErrNegativeInterval   = errors.New("config: request interval must not be negative")
	ErrNegativeRetries    = errors.New("config: max retries must not be negative")
	ErrInvalidPoolSize    = errors.New("config: browser pool size must be at least 1")
	ErrUnknownBackend     = errors.New("config: unknown browser backend")
	ErrInvalidMaxPages    = errors.New("config: max pages must be at least 1")
)

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.Fetch.HTTPTimeout <= 0 || c.Browser.RenderTimeout <= 0 {
		errs = append(errs, ErrNonPositiveTimeout)
	}
	if c.Fetch.MinRequestInterval < 0 || c.Fetch.RequestsPerMinute < 0 {
		errs = append(errs, ErrNegativeInterval)
	}
	if c.Fetch.MaxRetries < 0 {
		errs = append(errs, ErrNegativeRetries)
	}
	if c.Browser.PoolSize < 1 {
		errs = append(errs, ErrInvalidPoolSize)
	}
	switch c.Browser.Backend {
	case browser.BackendRod, browser.BackendChromedp:
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownBackend, c.Browser.Backend))
	}
	if c.Paginate.MaxPages < 1 {
		errs = append(errs, ErrInvalidMaxPages)
	}
	return errors.Join(errs...)
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

// envIntSliceOr parses a comma list of integers. Any bad element keeps the
// fallback.
func envIntSliceOr(key string, fallback []int) []int {
	parts := envSliceOr(key, nil)
	if len(parts) == 0 {
		return fallback
	}
	result := make([]int, 0, len(parts))
	for _, p := range parts {
		i, err := strconv.Atoi(p)
		if err != nil {
			return fallback
		}
		result = append(result, i)
	}
	return result
}
