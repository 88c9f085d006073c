// Package browser renders pages in a real Chromium instance. A Session is
// started lazily on the first render and owns the browser process until
// Close.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/use-agent/pagewalk/engine"
)

const (
	BackendRod      = "rod"
	BackendChromedp = "chromedp"
)

var (
	// ErrClosed is the cause of renders attempted after Close.
	ErrClosed = errors.New("browser: session closed")
	// ErrUnknownBackend is returned by New for an unsupported backend name.
	ErrUnknownBackend = errors.New("browser: unknown backend")
)

// Config configures a Session.
type Config struct {
	Backend    string
	Headless   bool
	NoSandbox  bool
	BrowserBin string
	// ControlURL connects to an already running browser instead of
	// launching one. The browser is left running on Close.
	ControlURL string
	Proxy      string
	UserAgent  string
	Stealth    bool

	// PoolSize is the number of tabs rendering at once. 1 serializes renders.
	PoolSize      int
	RenderTimeout time.Duration
	// SettleDelay is an extra wait after the page is idle, for late scripts.
	SettleDelay          time.Duration
	WaitNetworkIdle      bool
	BlockedResourceTypes []string
	BlockAds             bool

	Logger *slog.Logger
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Backend:       BackendRod,
		Headless:      true,
		NoSandbox:     true,
		Stealth:       true,
		PoolSize:      1,
		RenderTimeout: 30 * time.Second,
		SettleDelay:   1500 * time.Millisecond,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Backend == "" {
		c.Backend = d.Backend
	}
	if c.PoolSize < 1 {
		c.PoolSize = d.PoolSize
	}
	if c.RenderTimeout <= 0 {
		c.RenderTimeout = d.RenderTimeout
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// backend is one browser automation library.
type backend interface {
	start() error
	render(ctx context.Context, req engine.Request) (*engine.Result, error)
	stats() (size, idle int)
	close() error
}

// Session is an engine.Renderer backed by one browser process.
type Session struct {
	cfg     Config
	backend backend
	logger  *slog.Logger

	mu      sync.Mutex
	started bool
	closed  bool

	active  atomic.Int32
	renders atomic.Int64
}

var _ engine.Renderer = (*Session)(nil)

// New creates a Session. No browser is launched until the first render.
func New(cfg Config) (*Session, error) {
	cfg.applyDefaults()
	var b backend
	switch cfg.Backend {
	case BackendRod:
		b = newRodBackend(cfg)
	case BackendChromedp:
		b = newChromedpBackend(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
	return newSession(cfg, b), nil
}

func newSession(cfg Config, b backend) *Session {
	cfg.applyDefaults()
	return &Session{cfg: cfg, backend: b, logger: cfg.Logger}
}

// ensureStarted launches the browser once. Concurrent first renders wait
// for the same launch; a failed launch is retried by the next render.
func (s *Session) ensureStarted(req engine.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &engine.RenderError{Kind: engine.RenderLaunchFailure, URL: req.URL, Err: ErrClosed}
	}
	if s.started {
		return nil
	}
	start := time.Now()
	if err := s.backend.start(); err != nil {
		s.logger.Error("browser launch failed", "backend", s.cfg.Backend, "error", err)
		return &engine.RenderError{Kind: engine.RenderLaunchFailure, URL: req.URL, Err: err}
	}
	s.started = true
	s.logger.Info("browser session started", "backend", s.cfg.Backend,
		"pool_size", s.cfg.PoolSize, "elapsed_ms", time.Since(start).Milliseconds())
	return nil
}

// FetchRendered loads req in a browser tab, waits for the page to settle
// and returns the rendered markup.
func (s *Session) FetchRendered(ctx context.Context, req engine.Request) (*engine.Result, error) {
	if err := s.ensureStarted(req); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RenderTimeout)
	defer cancel()

	s.active.Add(1)
	defer s.active.Add(-1)

	start := time.Now()
	res, err := s.backend.render(ctx, req)
	if err != nil {
		var re *engine.RenderError
		if !errors.As(err, &re) {
			err = categorizeError(req.URL, err)
		}
		s.logger.Warn("render failed", "url", req.URL, "error", err)
		return nil, err
	}
	s.renders.Add(1)

	res.RequestURL = req.URL
	if res.URL == "" {
		res.URL = req.URL
	}
	if res.StatusCode == 0 {
		res.StatusCode = http.StatusOK
	}
	if res.Header == nil {
		res.Header = http.Header{"Content-Type": {"text/html; charset=utf-8"}}
	}
	res.Rendered = true
	res.Strategy = engine.StrategyBrowser
	res.Latency = time.Since(start)
	s.logger.Debug("render done", "url", req.URL, "final_url", res.URL,
		"status", res.StatusCode, "latency_ms", res.Latency.Milliseconds())
	return res, nil
}

// Stats is a snapshot of the session for health reporting.
type Stats struct {
	Backend  string `json:"backend"`
	Started  bool   `json:"started"`
	PoolSize int    `json:"pool_size"`
	Tabs     int    `json:"tabs"`
	IdleTabs int    `json:"idle_tabs"`
	Active   int    `json:"active"`
	Renders  int64  `json:"renders"`
}

// Stats reports the current session state.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	started := s.started && !s.closed
	s.mu.Unlock()

	st := Stats{
		Backend:  s.cfg.Backend,
		Started:  started,
		PoolSize: s.cfg.PoolSize,
		Active:   int(s.active.Load()),
		Renders:  s.renders.Load(),
	}
	if started {
		st.Tabs, st.IdleTabs = s.backend.stats()
	}
	return st
}

// Close releases the browser. It is safe to call more than once and on a
// session that never started.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if !s.started {
		return nil
	}
	s.logger.Info("browser session shutting down", "backend", s.cfg.Backend)
	if err := s.backend.close(); err != nil {
		return fmt.Errorf("browser: close: %w", err)
	}
	return nil
}
