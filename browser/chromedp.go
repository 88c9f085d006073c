package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/use-agent/pagewalk/engine"
)

// chromedpBackend drives Chromium through chromedp. It exists for hosts
// where rod's launcher cannot manage the browser binary.
type chromedpBackend struct {
	cfg    Config
	logger *slog.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	pool          *tabPool[*cdpTab]
}

// cdpTab is one chromedp target. Cancelling its context closes the tab.
type cdpTab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func newChromedpBackend(cfg Config) *chromedpBackend {
	return &chromedpBackend{cfg: cfg, logger: cfg.Logger}
}

func (b *chromedpBackend) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", b.cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if b.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if b.cfg.BrowserBin != "" {
		opts = append(opts, chromedp.ExecPath(b.cfg.BrowserBin))
	}
	if b.cfg.Proxy != "" {
		opts = append(opts, chromedp.ProxyServer(b.cfg.Proxy))
	}
	ua := b.cfg.UserAgent
	if ua == "" {
		ua = engine.ChromeUA
	}
	return append(opts, chromedp.UserAgent(ua))
}

func (b *chromedpBackend) start() error {
	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	// The allocator outlives any single request, so it hangs off Background.
	if b.cfg.ControlURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), b.cfg.ControlURL)
	} else {
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), b.allocatorOptions()...)
	}
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("start chromedp browser: %w", err)
	}
	b.allocCancel = allocCancel
	b.browserCtx = browserCtx
	b.browserCancel = browserCancel
	b.pool = newTabPool(b.cfg.PoolSize, b.newTab, func(t *cdpTab) { t.cancel() }, b.logger)
	return nil
}

func (b *chromedpBackend) newTab() (*cdpTab, error) {
	ctx, cancel := chromedp.NewContext(b.browserCtx)
	if err := chromedp.Run(ctx, network.Enable()); err != nil {
		cancel()
		return nil, err
	}
	return &cdpTab{ctx: ctx, cancel: cancel}, nil
}

func (b *chromedpBackend) render(ctx context.Context, req engine.Request) (*engine.Result, error) {
	t, err := b.pool.Get(ctx)
	if err != nil {
		return nil, categorizeError(req.URL, err)
	}
	ok := false
	defer func() { b.pool.Put(t, ok) }()

	// Derive from the tab context so actions target the tab, and stop when
	// the caller's context ends.
	runCtx, cancel := context.WithCancel(t.page.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err = t.applyHeaders(req.Headers, func(h map[string]string) error {
		headers := make(network.Headers, len(h))
		for k, v := range h {
			headers[k] = v
		}
		return chromedp.Run(runCtx, network.SetExtraHTTPHeaders(headers))
	})
	if err != nil {
		b.logger.Warn("set extra headers failed", "url", req.URL, "error", err)
		return nil, categorizeError(req.URL, ctxErrOr(ctx, err))
	}

	var idle <-chan struct{}
	if b.cfg.WaitNetworkIdle {
		idle = waitNetworkIdle(runCtx, 500*time.Millisecond)
	}
	if err := chromedp.Run(runCtx, chromedp.Navigate(req.URL)); err != nil {
		return nil, categorizeError(req.URL, ctxErrOr(ctx, err))
	}

	if idle != nil {
		select {
		case <-idle:
		case <-runCtx.Done():
			return nil, categorizeError(req.URL, ctxErrOr(ctx, runCtx.Err()))
		}
	}
	if err := settle(ctx, b.cfg.SettleDelay); err != nil {
		return nil, categorizeError(req.URL, err)
	}

	var (
		html     string
		finalURL string
		status   int
	)
	err = chromedp.Run(runCtx,
		chromedp.Evaluate(`(`+navigationStatusJS+`)()`, &status),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, categorizeError(req.URL, ctxErrOr(ctx, err))
	}
	if finalURL == "" || finalURL == "about:blank" {
		finalURL = req.URL
	}

	// Leave the tab blank so the next render starts clean.
	_ = chromedp.Run(t.page.ctx, chromedp.Navigate("about:blank"))
	ok = true
	return &engine.Result{URL: finalURL, StatusCode: status, Body: []byte(html)}, nil
}

// ctxErrOr prefers the caller's context error, so a timeout is reported as
// one even when chromedp surfaces it differently.
func ctxErrOr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	return err
}

func (b *chromedpBackend) stats() (int, int) {
	if b.pool == nil {
		return 0, 0
	}
	return b.pool.Stats()
}

func (b *chromedpBackend) close() error {
	if b.pool != nil {
		b.pool.Close()
	}
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	return nil
}

// waitNetworkIdle returns a channel that is closed once no request has
// been in flight for idleAfter. The quiet period restarts whenever a new
// request starts.
func waitNetworkIdle(ctx context.Context, idleAfter time.Duration) <-chan struct{} {
	done := make(chan struct{})
	var (
		mu       sync.Mutex
		inFlight int
		once     sync.Once
		timer    *time.Timer
	)
	fire := func() {
		mu.Lock()
		defer mu.Unlock()
		if inFlight == 0 {
			once.Do(func() { close(done) })
		}
	}
	restart := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(idleAfter, fire)
	}

	mu.Lock()
	restart()
	mu.Unlock()

	chromedp.ListenTarget(ctx, func(ev any) {
		mu.Lock()
		defer mu.Unlock()
		switch ev.(type) {
		case *network.EventRequestWillBeSent:
			inFlight++
			if timer != nil {
				timer.Stop()
			}
		case *network.EventLoadingFinished, *network.EventLoadingFailed:
			if inFlight > 0 {
				inFlight--
			}
			if inFlight == 0 {
				restart()
			}
		}
	})
	return done
}
