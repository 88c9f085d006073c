package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrInvalidURL is returned by NewRequest when the target is not an
// absolute http or https URL.
var ErrInvalidURL = errors.New("engine: url must be absolute http or https")

// Hint tells the engine which strategies a request may use.
type Hint string

const (
	HintAuto        Hint = "auto"
	HintHTTPOnly    Hint = "http-only"
	HintBrowserOnly Hint = "browser-only"
)

// ParseHint accepts the canonical hint names plus the short forms
// "http" and "browser". An empty string means auto.
func ParseHint(s string) (Hint, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return HintAuto, nil
	case "http", "http-only":
		return HintHTTPOnly, nil
	case "browser", "browser-only":
		return HintBrowserOnly, nil
	}
	return "", fmt.Errorf("engine: unknown hint %q", s)
}

// Strategy is the concrete way a result was produced. It is never auto.
type Strategy string

const (
	StrategyHTTP    Strategy = "http"
	StrategyBrowser Strategy = "browser"
)

// Field is one form field. Forms keep field order.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Form is an ordered list of fields.
type Form []Field

// Encode renders the form as application/x-www-form-urlencoded in field order.
func (f Form) Encode() string {
	var b strings.Builder
	for i, field := range f {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(field.Name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(field.Value))
	}
	return b.String()
}

// Request describes one fetch. It is passed by value and the engine never
// writes to its slices or maps.
type Request struct {
	URL     string
	Method  string
	Form    Form
	Headers map[string]string
	Hint    Hint
}

// RequestOption customizes a Request built by NewRequest.
type RequestOption func(*Request)

// WithHint sets the strategy hint.
func WithHint(h Hint) RequestOption {
	return func(r *Request) { r.Hint = h }
}

// WithMethod overrides the HTTP method.
func WithMethod(m string) RequestOption {
	return func(r *Request) { r.Method = strings.ToUpper(m) }
}

// WithHeaders copies h into the request headers.
func WithHeaders(h map[string]string) RequestOption {
	return func(r *Request) {
		if len(h) == 0 {
			return
		}
		if r.Headers == nil {
			r.Headers = make(map[string]string, len(h))
		}
		for k, v := range h {
			r.Headers[k] = v
		}
	}
}

// WithForm attaches an ordered form payload. The method defaults to POST.
func WithForm(fields ...Field) RequestOption {
	return func(r *Request) {
		r.Form = append(Form(nil), fields...)
		if r.Method == "" {
			r.Method = http.MethodPost
		}
	}
}

// NewRequest builds a validated Request.
func NewRequest(rawURL string, opts ...RequestOption) (Request, error) {
	r := Request{URL: strings.TrimSpace(rawURL)}
	for _, opt := range opts {
		opt(&r)
	}
	if r.Method == "" {
		r.Method = http.MethodGet
	}
	if r.Hint == "" {
		r.Hint = HintAuto
	}
	if err := r.Validate(); err != nil {
		return Request{}, err
	}
	return r, nil
}

// Validate checks the URL and hint.
func (r Request) Validate() error {
	u, err := url.Parse(r.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: %q", ErrInvalidURL, r.URL)
	}
	switch r.Hint {
	case "", HintAuto, HintHTTPOnly, HintBrowserOnly:
	default:
		return fmt.Errorf("engine: unknown hint %q", r.Hint)
	}
	return nil
}

func (r Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return r.Method
}

// idempotent reports whether resending the request is safe after a
// failure whose outcome on the server is unknown.
func (r Request) idempotent() bool {
	switch r.method() {
	case http.MethodPost, http.MethodPatch, http.MethodConnect:
		return false
	}
	return true
}

func (r Request) hint() Hint {
	if r.Hint == "" {
		return HintAuto
	}
	return r.Hint
}

// Result is the output of a fetch. The caller that receives it owns it.
type Result struct {
	URL        string
	RequestURL string
	StatusCode int
	Header     http.Header
	Body       []byte
	Rendered   bool
	Strategy   Strategy
	Latency    time.Duration
}

// Title returns the document <title>, or "".
func (r *Result) Title() string {
	if r == nil {
		return ""
	}
	return extractTitle(r.Body)
}

// HTML returns the body as a string.
func (r *Result) HTML() string {
	if r == nil {
		return ""
	}
	return string(r.Body)
}

// Transport performs one HTTP exchange without retrying.
type Transport interface {
	FetchHTTP(ctx context.Context, req Request) (*Result, error)
}

// Renderer loads a request in a real browser and returns rendered markup.
type Renderer interface {
	FetchRendered(ctx context.Context, req Request) (*Result, error)
}

// Admitter gates outgoing requests. *ratelimit.Limiter satisfies it.
type Admitter interface {
	Admit(ctx context.Context) error
}

// Classifier decides whether a response is usable.
type Classifier interface {
	Classify(res *Result) Verdict
}

// Verdict is the outcome of classifying a response.
type Verdict struct {
	Blocked bool
	Reason  string
}
