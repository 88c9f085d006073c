package engine

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectorClassify(t *testing.T) {
	t.Parallel()

	htmlHeader := http.Header{"Content-Type": {"text/html; charset=utf-8"}}
	page := func(status int, markup string) *Result {
		return &Result{StatusCode: status, Header: htmlHeader, Body: []byte(markup)}
	}
	article := "<html><head><title>News</title></head><body><article><p>" +
		strings.Repeat("Plenty of server rendered words. ", 30) + "</p></article></body></html>"

	tests := []struct {
		name    string
		res     *Result
		blocked bool
	}{
		{"nil response", nil, true},
		{"ok article", page(200, article), false},
		{"forbidden", page(403, article), true},
		{"too many requests", page(429, article), true},
		{"unavailable", page(503, article), true},
		{"not found is usable", page(404, article), false},
		{"cloudflare title", page(200, "<html><head><title>Just a moment...</title></head><body><p>Please wait</p></body></html>"), true},
		{"captcha text", page(200, "<html><body><h1>Please solve the CAPTCHA</h1></body></html>"), true},
		{"marker only inside script", page(200, "<html><body><p>Hello reader</p><script>var captcha = 'access denied';</script></body></html>"), false},
		{"empty body", page(200, "<html><head><title>x</title></head><body></body></html>"), true},
		{"no bytes at all", page(200, ""), true},
		{"spa shell", page(200, `<html><body><div id="root"></div><footer>(c) 2024 Example</footer></body></html>`), true},
		{"noscript demand", page(200, `<html><body><noscript>You need to enable JavaScript to run this app.</noscript><header>Example</header></body></html>`), true},
		{"noscript on long page", page(200, strings.Replace(article, "<article>", `<noscript>Please enable JavaScript</noscript><article>`, 1)), false},
		{"html5 page without body tag", page(200, "<!DOCTYPE html><title>Notes</title><h1>Notes</h1><p>"+strings.Repeat("Readable words here. ", 20)+"</p>"), false},
		{"json is usable", &Result{StatusCode: 200, Header: http.Header{"Content-Type": {"application/json"}}, Body: []byte(`{}`)}, false},
		{"sniffed html", &Result{StatusCode: 200, Body: []byte("<!DOCTYPE html><html><body></body></html>")}, true},
	}

	d := NewDetector(DefaultDetectorConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v := d.Classify(tt.res)
			require.Equal(t, tt.blocked, v.Blocked, "reason: %q", v.Reason)
			if v.Blocked {
				require.NotEmpty(t, v.Reason)
			}
		})
	}
}

func TestDetectorThresholds(t *testing.T) {
	t.Parallel()

	res := &Result{
		StatusCode: 200,
		Header:     http.Header{"Content-Type": {"text/html"}},
		Body:       []byte("<html><body><p>short page</p></body></html>"),
	}
	require.False(t, NewDetector(DefaultDetectorConfig()).Classify(res).Blocked)

	v := NewDetector(DetectorConfig{MinBodyBytes: 1000}).Classify(res)
	require.True(t, v.Blocked)
	require.Contains(t, v.Reason, "below minimum 1000")

	v = NewDetector(DetectorConfig{MinVisibleText: 50}).Classify(res)
	require.True(t, v.Blocked)
	require.Contains(t, v.Reason, "visible text")
}

func TestDetectorCustomStatusSet(t *testing.T) {
	t.Parallel()

	d := NewDetector(DetectorConfig{BlockedStatusCodes: []int{418}})
	body := []byte("<html><body><p>teapot</p></body></html>")

	require.True(t, d.Classify(&Result{StatusCode: 418, Body: body}).Blocked)
	require.False(t, d.Classify(&Result{StatusCode: 403, Body: body}).Blocked)
}

func TestDetectorCustomMarkers(t *testing.T) {
	t.Parallel()

	d := NewDetector(DetectorConfig{Markers: []string{"  Unusual Traffic  ", ""}})
	res := &Result{StatusCode: 200, Body: []byte("<html><body><p>We detected unusual traffic from your network</p></body></html>")}
	v := d.Classify(res)
	require.True(t, v.Blocked)
	require.Equal(t, `challenge marker "unusual traffic"`, v.Reason)
}

func TestInspectHTML(t *testing.T) {
	t.Parallel()

	shape := inspectHTML([]byte(`<html><head><title> Shop </title><script src="a.js"></script></head>
<body><style>p{}</style><h1>Items</h1><script>var x = "hidden";</script><p>One</p>
<noscript>turn on JavaScript</noscript></body></html>`))
	require.Equal(t, "Shop", shape.title)
	require.Equal(t, "Items One", shape.visibleText)
	require.Equal(t, 2, shape.scripts)
	require.Equal(t, "turn on JavaScript", shape.noscript)

	shape = inspectHTML([]byte(`<!DOCTYPE html><meta charset="utf-8"><title>Bare</title><p>No body tag</p><script>x()</script>`))
	require.Equal(t, "Bare", shape.title)
	require.Equal(t, "No body tag", shape.visibleText)
	require.Equal(t, 1, shape.scripts)
}
