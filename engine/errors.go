package engine

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

var (
	// ErrInvalidWorkers is returned by FetchAll for a worker count below 1.
	ErrInvalidWorkers = errors.New("engine: worker count must be at least 1")
	// ErrNoRenderer is the cause of a render-failed error when no browser
	// session is configured.
	ErrNoRenderer = errors.New("engine: no renderer configured")
)

// NetworkErrorKind classifies transport failures.
type NetworkErrorKind string

const (
	NetTimeout           NetworkErrorKind = "timeout"
	NetConnectionRefused NetworkErrorKind = "connection-refused"
	NetDNSFailure        NetworkErrorKind = "dns-failure"
	NetTLSError          NetworkErrorKind = "tls-error"
	NetOther             NetworkErrorKind = "other"
)

// NetworkError is a failed HTTP exchange.
type NetworkError struct {
	Kind NetworkErrorKind
	URL  string
	Err  error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network %s: %s: %v", e.Kind, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Is matches another *NetworkError by kind. A target with no kind matches
// any network error.
func (e *NetworkError) Is(target error) bool {
	t, ok := target.(*NetworkError)
	return ok && (t.Kind == "" || t.Kind == e.Kind)
}

// RenderErrorKind classifies browser failures.
type RenderErrorKind string

const (
	RenderLaunchFailure     RenderErrorKind = "launch-failure"
	RenderNavigationTimeout RenderErrorKind = "navigation-timeout"
	RenderCrash             RenderErrorKind = "crash"
)

// RenderError is a failed browser render.
type RenderError struct {
	Kind RenderErrorKind
	URL  string
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %s: %v", e.Kind, e.URL, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

func (e *RenderError) Is(target error) bool {
	t, ok := target.(*RenderError)
	return ok && (t.Kind == "" || t.Kind == e.Kind)
}

// FetchErrorKind describes why a fetch gave up.
type FetchErrorKind string

const (
	FetchExhausted         FetchErrorKind = "exhausted"
	FetchRenderFailed      FetchErrorKind = "render-failed"
	FetchBlockedUnresolved FetchErrorKind = "blocked-unresolved"
)

// FetchError is the terminal error of Engine.Fetch. Result is set for
// blocked-unresolved so the caller can still inspect what came back.
type FetchError struct {
	Kind     FetchErrorKind
	URL      string
	Attempts int
	Reason   string
	Result   *Result
	Err      error
}

func (e *FetchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "fetch %s: %s", e.Kind, e.URL)
	if e.Attempts > 0 {
		fmt.Fprintf(&b, " after %d attempt(s)", e.Attempts)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, " (%s)", e.Reason)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool {
	t, ok := target.(*FetchError)
	return ok && (t.Kind == "" || t.Kind == e.Kind)
}

// StatusError reports a non-2xx response where a success was required.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.StatusCode, e.URL)
}

// classifyNetError maps a transport failure to a NetworkError.
func classifyNetError(rawURL string, err error) *NetworkError {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne
	}
	return &NetworkError{Kind: networkKind(err), URL: rawURL, Err: err}
}

func networkKind(err error) NetworkErrorKind {
	var (
		dnsErr *net.DNSError
		netErr net.Error
	)
	switch {
	case errors.As(err, &dnsErr):
		return NetDNSFailure
	case errors.Is(err, syscall.ECONNREFUSED):
		return NetConnectionRefused
	case isTLSError(err):
		return NetTLSError
	case errors.Is(err, context.DeadlineExceeded):
		return NetTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return NetTimeout
	}
	return NetOther
}

func isTLSError(err error) bool {
	var (
		verifyErr   *tls.CertificateVerificationError
		recordErr   tls.RecordHeaderError
		unknownAuth x509.UnknownAuthorityError
		hostErr     x509.HostnameError
		invalidCert x509.CertificateInvalidError
	)
	if errors.As(err, &verifyErr) || errors.As(err, &recordErr) ||
		errors.As(err, &unknownAuth) || errors.As(err, &hostErr) ||
		errors.As(err, &invalidCert) {
		return true
	}
	// utls reports handshake failures as plain errors prefixed "tls:".
	msg := err.Error()
	return strings.Contains(msg, "tls: ") || strings.Contains(msg, "x509: ")
}
