package engine

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// DefaultBlockedStatusCodes are the statuses treated as an anti-bot refusal.
var DefaultBlockedStatusCodes = []int{http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable}

// DefaultChallengeMarkers are lower-case phrases found on challenge pages.
var DefaultChallengeMarkers = []string{
	"verify you are human",
	"checking your browser",
	"access denied",
	"captcha",
	"just a moment...",
	"attention required! | cloudflare",
	"enable javascript and cookies to continue",
	"ddos protection by",
}

// DetectorConfig configures a Detector. Zero thresholds disable the
// corresponding check.
type DetectorConfig struct {
	BlockedStatusCodes []int
	MinBodyBytes       int
	MinVisibleText     int
	Markers            []string
}

// DefaultDetectorConfig returns the stock block heuristics.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		BlockedStatusCodes: append([]int(nil), DefaultBlockedStatusCodes...),
		Markers:            append([]string(nil), DefaultChallengeMarkers...),
	}
}

// Detector classifies responses as usable or blocked. It holds no mutable
// state and is safe for concurrent use.
type Detector struct {
	blocked        map[int]struct{}
	minBodyBytes   int
	minVisibleText int
	markers        []string
}

var _ Classifier = (*Detector)(nil)

// NewDetector builds a Detector from cfg.
func NewDetector(cfg DetectorConfig) *Detector {
	d := &Detector{
		blocked:        make(map[int]struct{}, len(cfg.BlockedStatusCodes)),
		minBodyBytes:   cfg.MinBodyBytes,
		minVisibleText: cfg.MinVisibleText,
	}
	for _, code := range cfg.BlockedStatusCodes {
		d.blocked[code] = struct{}{}
	}
	for _, m := range cfg.Markers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			d.markers = append(d.markers, m)
		}
	}
	return d
}

var (
	reNoscript   = regexp.MustCompile(`(enable|activate|turn on|requires?)\s+javascript`)
	spaRootShell = []string{`<div id="root"></div>`, `<div id="app"></div>`, `<div id="__next"></div>`}
)

// Classify inspects the status, body size and markup shape of res.
func (d *Detector) Classify(res *Result) Verdict {
	if res == nil {
		return Verdict{Blocked: true, Reason: "no response"}
	}
	if _, ok := d.blocked[res.StatusCode]; ok {
		return Verdict{Blocked: true, Reason: fmt.Sprintf("status %d", res.StatusCode)}
	}
	if d.minBodyBytes > 0 && len(res.Body) < d.minBodyBytes {
		return Verdict{Blocked: true, Reason: fmt.Sprintf("body %d bytes below minimum %d", len(res.Body), d.minBodyBytes)}
	}
	if !isHTML(res) {
		return Verdict{}
	}

	shape := inspectHTML(res.Body)
	haystack := strings.ToLower(shape.title + " " + shape.visibleText)
	for _, m := range d.markers {
		if strings.Contains(haystack, m) {
			return Verdict{Blocked: true, Reason: fmt.Sprintf("challenge marker %q", m)}
		}
	}

	textLen := len(shape.visibleText)
	if textLen == 0 {
		return Verdict{Blocked: true, Reason: "empty body"}
	}
	if d.minVisibleText > 0 && textLen < d.minVisibleText {
		return Verdict{Blocked: true, Reason: fmt.Sprintf("visible text %d chars below minimum %d", textLen, d.minVisibleText)}
	}

	lower := strings.ToLower(string(res.Body))
	for _, shell := range spaRootShell {
		if strings.Contains(lower, shell) {
			return Verdict{Blocked: true, Reason: "empty spa root " + shell}
		}
	}
	// Script-heavy pages with a JavaScript warning and little text need
	// rendering; server-rendered pages often carry the same warning.
	if textLen < 500 && reNoscript.MatchString(strings.ToLower(shape.noscript)) {
		return Verdict{Blocked: true, Reason: "noscript requires javascript"}
	}
	if shape.scripts > 10 && textLen < 500 {
		return Verdict{Blocked: true, Reason: "script-heavy page with little text"}
	}
	return Verdict{}
}

// isHTML reports whether res carries an HTML document, by content type or
// by sniffing when the header is missing.
func isHTML(res *Result) bool {
	ct := strings.ToLower(res.Header.Get("Content-Type"))
	if ct == "" {
		ct = http.DetectContentType(res.Body)
	}
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}
