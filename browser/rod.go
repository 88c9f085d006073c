package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/pagewalk/engine"
)

// navigationStatusJS reads the HTTP status of the current document without
// enabling CDP network events, which conflict with request hijacking.
const navigationStatusJS = `() => {
	try {
		const entries = performance.getEntriesByType("navigation");
		if (entries.length > 0) return entries[0].responseStatus || 0;
	} catch (e) {}
	return 0;
}`

// rodBackend drives Chromium through go-rod.
type rodBackend struct {
	cfg     Config
	logger  *slog.Logger
	blocked map[proto.NetworkResourceType]struct{}

	launcher *launcher.Launcher
	browser  *rod.Browser
	pool     *tabPool[*rod.Page]
}

func newRodBackend(cfg Config) *rodBackend {
	return &rodBackend{cfg: cfg, logger: cfg.Logger, blocked: blockedTypeSet(cfg.BlockedResourceTypes)}
}

// newLauncher applies the anti-detection flags Chromium needs to look like
// an ordinary desktop browser.
func (b *rodBackend) newLauncher() *launcher.Launcher {
	l := launcher.New().
		Headless(b.cfg.Headless).
		NoSandbox(b.cfg.NoSandbox)
	if b.cfg.BrowserBin != "" {
		l = l.Bin(b.cfg.BrowserBin)
	}
	if b.cfg.Proxy != "" {
		l = l.Proxy(b.cfg.Proxy)
	}
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-ipc-flooding-protection"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))
	return l
}

func (b *rodBackend) start() error {
	controlURL := b.cfg.ControlURL
	if controlURL == "" {
		l := b.newLauncher()
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("launch chromium: %w", err)
		}
		b.launcher = l
		controlURL = u
	}
	b.logger.Debug("browser control url", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		if b.launcher != nil {
			b.launcher.Kill()
		}
		return fmt.Errorf("connect to browser: %w", err)
	}
	b.browser = browser
	b.pool = newTabPool(b.cfg.PoolSize, b.newPage, func(p *rod.Page) { _ = p.Close() }, b.logger)
	return nil
}

// newPage opens a tab with the per-tab setup that must precede any
// navigation: stealth patches and the user agent override.
func (b *rodBackend) newPage() (*rod.Page, error) {
	page, err := b.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, err
	}
	if b.cfg.Stealth {
		if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
			b.logger.Warn("stealth injection failed, proceeding without stealth", "error", err)
		}
	}
	if b.cfg.UserAgent != "" {
		if err := (proto.NetworkSetUserAgentOverride{UserAgent: b.cfg.UserAgent}).Call(page); err != nil {
			b.logger.Warn("user agent override failed", "error", err)
		}
	}
	return page, nil
}

// render runs one navigation. The order matters: headers and the hijack
// router must be installed, and the idle waiter registered, before
// Navigate so no request of the page load is missed.
func (b *rodBackend) render(ctx context.Context, req engine.Request) (*engine.Result, error) {
	t, err := b.pool.Get(ctx)
	if err != nil {
		return nil, categorizeError(req.URL, err)
	}
	ok := false
	defer func() {
		// Cleanup uses the page without the request context so it works
		// after a timeout.
		if navErr := t.page.Navigate("about:blank"); navErr != nil {
			b.logger.Debug("cleanup: failed to navigate to about:blank", "error", navErr)
			ok = false
		}
		b.pool.Put(t, ok)
	}()

	err = t.applyHeaders(req.Headers, func(h map[string]string) error {
		return proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(h)}.Call(t.page)
	})
	if err != nil {
		b.logger.Warn("set extra headers failed", "url", req.URL, "error", err)
		return nil, categorizeError(req.URL, err)
	}
	router := setupHijack(t.page, b.blocked, b.cfg.BlockAds)
	if router != nil {
		defer func() { _ = router.Stop() }()
	}

	p := t.page.Context(ctx)

	// WaitRequestIdle uses the Fetch domain, which conflicts with the
	// hijack router, so it is only used when nothing is hijacked.
	var waitIdle func()
	if b.cfg.WaitNetworkIdle && router == nil {
		waitIdle = p.WaitRequestIdle(300*time.Millisecond, nil, nil, nil)
	}

	if err := p.Navigate(req.URL); err != nil {
		return nil, categorizeError(req.URL, err)
	}
	if waitIdle != nil {
		waitIdle()
	} else if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		b.logger.Debug("WaitDOMStable did not converge, proceeding with current DOM", "url", req.URL, "error", err)
	}
	if err := settle(ctx, b.cfg.SettleDelay); err != nil {
		return nil, categorizeError(req.URL, err)
	}

	status := 0
	if res, err := p.Eval(navigationStatusJS); err == nil {
		status = res.Value.Int()
	}
	html, err := p.HTML()
	if err != nil {
		return nil, categorizeError(req.URL, err)
	}
	finalURL := req.URL
	if res, err := p.Eval(`() => window.location.href`); err == nil && res.Value.Str() != "" {
		finalURL = res.Value.Str()
	}

	ok = true
	return &engine.Result{
		URL:        finalURL,
		StatusCode: status,
		Body:       []byte(html),
	}, nil
}

func (b *rodBackend) stats() (int, int) {
	if b.pool == nil {
		return 0, 0
	}
	return b.pool.Stats()
}

func (b *rodBackend) close() error {
	if b.pool != nil {
		b.pool.Close()
	}
	if b.launcher == nil {
		// Attached to someone else's browser: leave it running.
		return nil
	}
	err := b.browser.Close()
	b.launcher.Cleanup()
	return err
}

// toHeadersMap converts a plain map to the gson-valued map CDP expects.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// settle waits d, or until ctx ends.
func settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
