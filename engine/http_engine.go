package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	tls "github.com/refraction-networking/utls"
	"golang.org/x/net/html/charset"
	"golang.org/x/net/proxy"
)

// ChromeUA is the default User-Agent sent by the HTTP transport.
const ChromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// DefaultMaxBodyBytes caps how much of a response body is read.
const DefaultMaxBodyBytes = 10 << 20

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to http/1.1
// only. Computed once at init time and reused for every connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	// Go's http.Transport cannot speak h2 over a utls connection, so the
	// server must never be offered it.
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// HTTPConfig configures an HTTPTransport.
type HTTPConfig struct {
	Timeout      time.Duration
	UserAgent    string
	Proxy        string
	MaxBodyBytes int64
	MaxRedirects int
	Headers      map[string]string

	// RoundTripper replaces the fingerprinting transport. Tests use it.
	RoundTripper http.RoundTripper
	Logger       *slog.Logger
}

// HTTPTransport is the lightweight strategy: one resty request per call,
// with a Chrome TLS fingerprint and browser-like headers.
type HTTPTransport struct {
	client  *resty.Client
	maxBody int64
	logger  *slog.Logger
}

var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport builds the transport. An unparsable proxy is an error.
func NewHTTPTransport(cfg HTTPConfig) (*HTTPTransport, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = 10
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = ChromeUA
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	rt := cfg.RoundTripper
	if rt == nil {
		var err error
		rt, err = newChromeTransport(cfg.Proxy)
		if err != nil {
			return nil, err
		}
	}

	client := resty.New().
		SetTransport(rt).
		SetTimeout(cfg.Timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(cfg.MaxRedirects)).
		SetHeaders(map[string]string{
			"User-Agent":      cfg.UserAgent,
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.9",
			"Referer":         "https://www.google.com/",
		})
	if len(cfg.Headers) > 0 {
		client.SetHeaders(cfg.Headers)
	}

	return &HTTPTransport{client: client, maxBody: cfg.MaxBodyBytes, logger: cfg.Logger}, nil
}

// newChromeTransport returns an http.Transport whose TLS connections carry
// the Chrome fingerprint. HTTP proxies go through Transport.Proxy, SOCKS5
// proxies through the dialer.
func newChromeTransport(proxyAddr string) (*http.Transport, error) {
	base := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	dial := base.DialContext

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   false,
	}

	if proxyAddr != "" {
		u, err := url.Parse(proxyAddr)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("http_engine: invalid proxy %q", proxyAddr)
		}
		switch u.Scheme {
		case "http", "https":
			transport.Proxy = http.ProxyURL(u)
		case "socks5", "socks5h":
			d, err := proxy.FromURL(u, base)
			if err != nil {
				return nil, fmt.Errorf("http_engine: socks proxy: %w", err)
			}
			cd, ok := d.(proxy.ContextDialer)
			if !ok {
				return nil, fmt.Errorf("http_engine: socks proxy %q has no context dialer", proxyAddr)
			}
			dial = cd.DialContext
		default:
			return nil, fmt.Errorf("http_engine: unsupported proxy scheme %q", u.Scheme)
		}
	}

	transport.DialContext = dial
	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		host, _, _ := net.SplitHostPort(addr)
		tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
		if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
			conn.Close()
			return nil, fmt.Errorf("http_engine: apply tls spec: %w", err)
		}
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		return tlsConn, nil
	}
	return transport, nil
}

// Stream performs a GET outside block detection and hands back the open
// body for downloads and JSON calls. A non-2xx status closes the body and
// returns a *StatusError.
func (t *HTTPTransport) Stream(ctx context.Context, rawURL string, headers map[string]string) (io.ReadCloser, http.Header, error) {
	r := t.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true)
	if len(headers) > 0 {
		r.SetHeaders(headers)
	}
	resp, err := r.Get(rawURL)
	if err != nil {
		return nil, nil, classifyNetError(rawURL, err)
	}
	raw := resp.RawBody()
	if code := resp.StatusCode(); code < 200 || code > 299 {
		raw.Close()
		return nil, nil, &StatusError{URL: rawURL, StatusCode: code}
	}
	return raw, resp.Header(), nil
}

// FetchHTTP performs one exchange. It follows redirects but never retries.
func (t *HTTPTransport) FetchHTTP(ctx context.Context, req Request) (*Result, error) {
	r := t.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true)
	if len(req.Headers) > 0 {
		r.SetHeaders(req.Headers)
	}
	if len(req.Form) > 0 {
		r.SetHeader("Content-Type", "application/x-www-form-urlencoded").
			SetBody(req.Form.Encode())
	}

	start := time.Now()
	resp, err := r.Execute(req.method(), req.URL)
	if err != nil {
		return nil, classifyNetError(req.URL, err)
	}
	raw := resp.RawBody()
	defer raw.Close()

	body, err := readBody(raw, resp.Header().Get("Content-Type"), t.maxBody)
	if err != nil {
		return nil, classifyNetError(req.URL, err)
	}

	finalURL := req.URL
	if rr := resp.RawResponse; rr != nil && rr.Request != nil && rr.Request.URL != nil {
		finalURL = rr.Request.URL.String()
	}
	latency := time.Since(start)
	t.logger.Debug("http fetch", "url", req.URL, "status", resp.StatusCode(),
		"bytes", len(body), "latency_ms", latency.Milliseconds())

	return &Result{
		URL:        finalURL,
		RequestURL: req.URL,
		StatusCode: resp.StatusCode(),
		Header:     resp.Header(),
		Body:       body,
		Strategy:   StrategyHTTP,
		Latency:    latency,
	}, nil
}

// Close drops pooled idle connections.
func (t *HTTPTransport) Close() {
	t.client.GetClient().CloseIdleConnections()
}

// readBody reads at most limit bytes, decoding textual content to UTF-8.
func readBody(r io.Reader, contentType string, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return nil, err
	}
	if !isTextual(contentType) {
		return data, nil
	}
	dec, err := charset.NewReader(bytes.NewReader(data), contentType)
	if err != nil {
		return data, nil
	}
	decoded, err := io.ReadAll(dec)
	if err != nil {
		return data, nil
	}
	return decoded, nil
}

func isTextual(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.HasPrefix(ct, "text/") ||
		strings.Contains(ct, "html") ||
		strings.Contains(ct, "xml") ||
		strings.Contains(ct, "json")
}
