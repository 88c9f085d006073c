package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultMaxRetries  = 2
	defaultBackoffBase = 100 * time.Millisecond
	defaultBackoffMax  = 2 * time.Second
)

// Engine produces a usable document for a request. It tries plain HTTP
// first, classifies the response, and escalates to the renderer at most
// once per call when the hint allows it.
type Engine struct {
	transport   Transport
	renderer    Renderer
	limiter     Admitter
	detector    Classifier
	maxRetries  int
	backoffBase time.Duration
	backoffMax  time.Duration
	strict      bool
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *slog.Logger
	tracer      trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithRenderer sets the browser strategy. Without it auto requests cannot
// escalate and browser-only requests fail.
func WithRenderer(r Renderer) Option {
	return func(e *Engine) { e.renderer = r }
}

// WithLimiter gates every HTTP attempt and every render.
func WithLimiter(a Admitter) Option {
	return func(e *Engine) {
		if a != nil {
			e.limiter = a
		}
	}
}

// WithDetector replaces the default block classifier.
func WithDetector(c Classifier) Option {
	return func(e *Engine) {
		if c != nil {
			e.detector = c
		}
	}
}

// WithRetries sets how many times a failed HTTP attempt is retried and the
// exponential backoff between attempts.
func WithRetries(n int, base, ceiling time.Duration) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.maxRetries = n
		}
		if base >= 0 {
			e.backoffBase = base
		}
		if ceiling > 0 {
			e.backoffMax = ceiling
		}
	}
}

// WithStrict turns a response that is still blocked after the last
// allowed strategy into a blocked-unresolved error.
func WithStrict(strict bool) Option {
	return func(e *Engine) { e.strict = strict }
}

// WithSleeper replaces the backoff wait. Tests use it to skip real delays.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

// WithLogger sets the logger used for transitions and retries.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Engine around the given transport.
func New(t Transport, opts ...Option) *Engine {
	e := &Engine{
		transport:   t,
		limiter:     unlimited{},
		detector:    NewDetector(DefaultDetectorConfig()),
		maxRetries:  defaultMaxRetries,
		backoffBase: defaultBackoffBase,
		backoffMax:  defaultBackoffMax,
		sleep:       sleepCtx,
		logger:      slog.Default(),
		tracer:      otel.Tracer("pagewalk/engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Renderer returns the configured renderer, or nil.
func (e *Engine) Renderer() Renderer { return e.renderer }

type unlimited struct{}

func (unlimited) Admit(ctx context.Context) error { return ctx.Err() }

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// backoff returns the wait before retry number attempt (1-based).
func (e *Engine) backoff(attempt int) time.Duration {
	if e.backoffBase <= 0 {
		return 0
	}
	d := e.backoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= e.backoffMax {
			return e.backoffMax
		}
	}
	return min(d, e.backoffMax)
}

type state int

const (
	stateIdle state = iota
	stateAttemptHTTP
	stateUsable
	stateBlocked
	stateAttemptBrowser
	stateFailed
	stateDone
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateAttemptHTTP:
		return "attempting-http"
	case stateUsable:
		return "usable"
	case stateBlocked:
		return "blocked"
	case stateAttemptBrowser:
		return "attempting-browser"
	case stateFailed:
		return "failed"
	case stateDone:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// fetchRun is the state of one Fetch call.
type fetchRun struct {
	e       *Engine
	req     Request
	span    trace.Span
	state   state
	retries int
	result  *Result
	verdict Verdict
	err     error
}

// Fetch resolves req to a usable result or a typed error. Each call
// re-evaluates the strategy from the request hint.
func (e *Engine) Fetch(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ctx, span := e.tracer.Start(ctx, "engine.Fetch", trace.WithAttributes(
		attribute.String("url", req.URL),
		attribute.String("hint", string(req.hint())),
	))
	defer span.End()

	run := &fetchRun{e: e, req: req, span: span, state: stateIdle}
	for run.state != stateDone {
		run.step(ctx)
	}

	if run.err != nil {
		span.RecordError(run.err)
		span.SetStatus(codes.Error, run.err.Error())
		return nil, run.err
	}
	span.SetAttributes(
		attribute.String("strategy", string(run.result.Strategy)),
		attribute.Int("status", run.result.StatusCode),
	)
	return run.result, nil
}

func (r *fetchRun) to(next state) {
	r.e.logger.Debug("engine: transition", "url", r.req.URL, "from", r.state.String(), "to", next.String())
	r.span.AddEvent(next.String())
	r.state = next
}

func (r *fetchRun) fail(err error) {
	r.err = err
	r.result = nil
	r.to(stateFailed)
}

func (r *fetchRun) step(ctx context.Context) {
	switch r.state {
	case stateIdle:
		if r.req.hint() == HintBrowserOnly {
			r.to(stateAttemptBrowser)
			return
		}
		r.to(stateAttemptHTTP)
	case stateAttemptHTTP:
		r.attemptHTTP(ctx)
	case stateBlocked:
		r.onBlocked()
	case stateAttemptBrowser:
		r.attemptBrowser(ctx)
	case stateUsable, stateFailed:
		r.to(stateDone)
	}
}

func (r *fetchRun) attemptHTTP(ctx context.Context) {
	if err := r.e.limiter.Admit(ctx); err != nil {
		r.fail(fmt.Errorf("engine: fetch %s: %w", r.req.URL, err))
		return
	}
	res, err := r.e.transport.FetchHTTP(ctx, r.req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			r.fail(fmt.Errorf("engine: fetch %s: %w", r.req.URL, ctxErr))
			return
		}
		r.onNetworkError(ctx, err)
		return
	}

	res.Strategy = StrategyHTTP
	res.Rendered = false
	if res.RequestURL == "" {
		res.RequestURL = r.req.URL
	}
	r.result = res
	r.verdict = r.e.detector.Classify(res)
	if r.verdict.Blocked {
		r.e.logger.Info("engine: response blocked", "url", r.req.URL,
			"status", res.StatusCode, "reason", r.verdict.Reason)
		r.to(stateBlocked)
		return
	}
	r.to(stateUsable)
}

func (r *fetchRun) onNetworkError(ctx context.Context, err error) {
	var netErr *NetworkError
	// A form may already have been acted on, so it is sent exactly once.
	once := !r.req.idempotent()
	retryable := errors.As(err, &netErr) && !once

	if retryable && r.retries < r.e.maxRetries {
		r.retries++
		delay := r.e.backoff(r.retries)
		r.e.logger.Warn("engine: http attempt failed, retrying", "url", r.req.URL,
			"attempt", r.retries, "delay", delay, "error", err)
		if err := r.e.sleep(ctx, delay); err != nil {
			r.fail(fmt.Errorf("engine: fetch %s: %w", r.req.URL, err))
		}
		return
	}

	if r.req.hint() == HintAuto && r.e.renderer != nil && !once {
		r.e.logger.Info("engine: http exhausted, escalating", "url", r.req.URL,
			"attempts", r.retries+1, "error", err)
		r.to(stateAttemptBrowser)
		return
	}
	r.fail(&FetchError{Kind: FetchExhausted, URL: r.req.URL, Attempts: r.retries + 1, Err: err})
}

func (r *fetchRun) onBlocked() {
	switch {
	case r.req.hint() == HintAuto && r.e.renderer != nil:
		r.to(stateAttemptBrowser)
	case r.req.hint() == HintAuto || r.e.strict:
		r.err = &FetchError{
			Kind:   FetchBlockedUnresolved,
			URL:    r.req.URL,
			Reason: r.verdict.Reason,
			Result: r.result,
		}
		r.result = nil
		r.to(stateFailed)
	default:
		// http-only: the caller decides what to do with a blocked page.
		r.to(stateDone)
	}
}

func (r *fetchRun) attemptBrowser(ctx context.Context) {
	if r.e.renderer == nil {
		r.fail(&FetchError{Kind: FetchRenderFailed, URL: r.req.URL, Err: ErrNoRenderer})
		return
	}
	if err := r.e.limiter.Admit(ctx); err != nil {
		r.fail(fmt.Errorf("engine: fetch %s: %w", r.req.URL, err))
		return
	}
	res, err := r.e.renderer.FetchRendered(ctx, r.req)
	if err != nil {
		r.fail(&FetchError{Kind: FetchRenderFailed, URL: r.req.URL, Err: err})
		return
	}

	res.Strategy = StrategyBrowser
	res.Rendered = true
	if res.RequestURL == "" {
		res.RequestURL = r.req.URL
	}
	if r.e.strict {
		if v := r.e.detector.Classify(res); v.Blocked {
			r.err = &FetchError{Kind: FetchBlockedUnresolved, URL: r.req.URL, Reason: v.Reason, Result: res}
			r.to(stateFailed)
			return
		}
	}
	r.result = res
	r.to(stateUsable)
}
