// Package scraper wires the fetch engine, the browser session, the rate
// limiter, the paginator and the extractors into one client.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/use-agent/pagewalk/browser"
	"github.com/use-agent/pagewalk/config"
	"github.com/use-agent/pagewalk/engine"
	"github.com/use-agent/pagewalk/extract"
	"github.com/use-agent/pagewalk/paginate"
	"github.com/use-agent/pagewalk/ratelimit"
)

// ErrMissingForm is returned by SubmitForm without a URL or fields.
var ErrMissingForm = errors.New("scraper: form submission needs a url and at least one field")

// Scraper is safe for concurrent use. Close it to release the browser and
// pooled connections.
type Scraper struct {
	cfg       *config.Config
	limiter   *ratelimit.Limiter
	transport *engine.HTTPTransport
	session   *browser.Session
	engine    *engine.Engine
	paginator *paginate.Paginator
	extractor extract.HTML
	logger    *slog.Logger
	tracer    trace.Tracer

	closeOnce sync.Once
	closeErr  error
}

type options struct {
	logger   *slog.Logger
	renderer engine.Renderer
}

// Option configures a Scraper.
type Option func(*options)

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRenderer replaces the browser session with r. No browser is
// launched when it is set.
func WithRenderer(r engine.Renderer) Option {
	return func(o *options) { o.renderer = r }
}

// New builds a Scraper from cfg. The browser, when enabled, starts lazily
// on the first render.
func New(cfg *config.Config, opts ...Option) (*Scraper, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	transport, err := engine.NewHTTPTransport(engine.HTTPConfig{
		Timeout:      cfg.Fetch.HTTPTimeout,
		UserAgent:    cfg.Fetch.UserAgent,
		Proxy:        cfg.Fetch.Proxy,
		MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
		MaxRedirects: cfg.Fetch.MaxRedirects,
		Logger:       o.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("scraper: %w", err)
	}

	s := &Scraper{
		cfg:       cfg,
		limiter:   ratelimit.New(cfg.Fetch.Interval()),
		transport: transport,
		logger:    o.logger,
		tracer:    otel.Tracer("pagewalk/scraper"),
	}

	renderer := o.renderer
	if renderer == nil && cfg.Browser.Enabled {
		s.session, err = browser.New(browserConfig(cfg, o.logger))
		if err != nil {
			transport.Close()
			return nil, fmt.Errorf("scraper: %w", err)
		}
		renderer = s.session
	}

	engineOpts := []engine.Option{
		engine.WithLimiter(s.limiter),
		engine.WithDetector(engine.NewDetector(engine.DetectorConfig{
			BlockedStatusCodes: cfg.Detect.BlockedStatusCodes,
			MinBodyBytes:       cfg.Detect.MinBodyBytes,
			MinVisibleText:     cfg.Detect.MinVisibleText,
			Markers:            cfg.Detect.ChallengeMarkers,
		})),
		engine.WithRetries(cfg.Fetch.MaxRetries, cfg.Fetch.BackoffBase, cfg.Fetch.BackoffMax),
		engine.WithStrict(cfg.Fetch.Strict),
		engine.WithLogger(o.logger),
	}
	if renderer != nil {
		engineOpts = append(engineOpts, engine.WithRenderer(renderer))
	}
	s.engine = engine.New(transport, engineOpts...)
	s.paginator = paginate.New(s.engine, s.extractor,
		paginate.WithMaxPages(cfg.Paginate.MaxPages),
		paginate.WithNoProgressDistance(cfg.Paginate.NoProgressDistance),
		paginate.WithLogger(o.logger),
	)

	o.logger.Info("scraper ready",
		"interval", s.limiter.Interval(),
		"browser", renderer != nil,
		"backend", cfg.Browser.Backend,
	)
	return s, nil
}

func browserConfig(cfg *config.Config, logger *slog.Logger) browser.Config {
	b := cfg.Browser
	return browser.Config{
		Backend:              b.Backend,
		Headless:             b.Headless,
		NoSandbox:            b.NoSandbox,
		BrowserBin:           b.BrowserBin,
		ControlURL:           b.ControlURL,
		Proxy:                cfg.Fetch.Proxy,
		UserAgent:            cfg.Fetch.UserAgent,
		Stealth:              true,
		PoolSize:             b.PoolSize,
		RenderTimeout:        b.RenderTimeout,
		SettleDelay:          b.SettleDelay,
		WaitNetworkIdle:      b.WaitNetworkIdle,
		BlockedResourceTypes: b.BlockedResourceTypes,
		BlockAds:             b.BlockAds,
		Logger:               logger,
	}
}

// Fetch returns a usable document for req, escalating to the browser when
// the hint allows it.
func (s *Scraper) Fetch(ctx context.Context, req engine.Request) (*engine.Result, error) {
	return s.engine.Fetch(ctx, req)
}

// Get builds a request for rawURL and fetches it.
func (s *Scraper) Get(ctx context.Context, rawURL string, opts ...engine.RequestOption) (*engine.Result, error) {
	req, err := engine.NewRequest(rawURL, opts...)
	if err != nil {
		return nil, err
	}
	return s.engine.Fetch(ctx, req)
}

// FetchAll fetches reqs with at most workers in flight. The outcomes are in
// input order and one failure never cancels the others.
func (s *Scraper) FetchAll(ctx context.Context, reqs []engine.Request, workers int) ([]engine.Outcome, error) {
	return s.engine.FetchAll(ctx, reqs, workers)
}

// ScrapePages walks template over pages 1..count.
func (s *Scraper) ScrapePages(ctx context.Context, template string, count int, selector string) iter.Seq2[*paginate.Page, error] {
	return s.paginator.Pages(ctx, template, count, selector)
}

// ScrapeAutoNext follows next links from start. maxPages <= 0 uses the
// configured cap.
func (s *Scraper) ScrapeAutoNext(ctx context.Context, start, selector string, maxPages int) iter.Seq2[*paginate.Page, error] {
	return s.paginator.AutoNext(ctx, start, selector, maxPages)
}

// SubmitForm posts fields, in order, as an urlencoded form. It never
// escalates to the browser: a blocked response comes back as is.
func (s *Scraper) SubmitForm(ctx context.Context, rawURL string, fields engine.Form) (*engine.Result, error) {
	if rawURL == "" || len(fields) == 0 {
		return nil, ErrMissingForm
	}
	req, err := engine.NewRequest(rawURL,
		engine.WithForm(fields...),
		engine.WithHint(engine.HintHTTPOnly),
	)
	if err != nil {
		return nil, err
	}
	return s.engine.Fetch(ctx, req)
}

// Extract returns the text of every selector match in res.
func (s *Scraper) Extract(res *engine.Result, selector string) ([]string, error) {
	return s.extractor.Extract(res.Body, res.URL, selector)
}

// Extractor returns the extractor used for pagination.
func (s *Scraper) Extractor() extract.HTML { return s.extractor }

// Config returns the configuration the Scraper was built with.
func (s *Scraper) Config() *config.Config { return s.cfg }

// BrowserStats reports the browser session, or ok=false when escalation is
// served by something else.
func (s *Scraper) BrowserStats() (browser.Stats, bool) {
	if s.session == nil {
		return browser.Stats{}, false
	}
	return s.session.Stats(), true
}

// Close releases the browser and idle connections. Later calls return the
// first result.
func (s *Scraper) Close() error {
	s.closeOnce.Do(func() {
		if s.session != nil {
			s.closeErr = s.session.Close()
		}
		s.transport.Close()
		s.logger.Info("scraper closed")
	})
	return s.closeErr
}
