package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/use-agent/pagewalk/config"
	"github.com/use-agent/pagewalk/engine"
	"github.com/use-agent/pagewalk/paginate"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixtureSite serves a small shop: list pages, a blocked page, a form
// endpoint, JSON and images.
func fixtureSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/list/{n}", func(w http.ResponseWriter, r *http.Request) {
		n := r.PathValue("n")
		next := ""
		if n == "1" {
			next = `<a href="/list/2">Next</a>`
		}
		fmt.Fprintf(w, `<html><body><p class="item">item %s</p>%s</body></html>`, n, next)
	})
	mux.HandleFunc("/blocked", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, "<html><body><h1>Access denied</h1></body></html>")
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		fmt.Fprintf(w, "<html><body><p>%s %s</p></body></html>", r.Method, b)
	})
	mux.HandleFunc("/api/items", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"items":["a","b"],"total":2}`)
	})
	mux.HandleFunc("/gallery", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html><body><p>gallery</p>
<img src="/img/one.png"><img src="/img/missing.gif"><img src="/img/three?size=large">
<img src="data:image/gif;base64,R0lGOD"></body></html>`)
	})
	mux.HandleFunc("/img/{name}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("name") == "missing.gif" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("IMG:" + r.PathValue("name")))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type countingRenderer struct {
	calls atomic.Int32
	body  string
}

func (c *countingRenderer) FetchRendered(_ context.Context, req engine.Request) (*engine.Result, error) {
	c.calls.Add(1)
	return &engine.Result{
		URL:        req.URL,
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"text/html"}},
		Body:       []byte(c.body),
	}, nil
}

func newTestScraper(t *testing.T, r engine.Renderer) *Scraper {
	t.Helper()
	cfg := config.Default()
	cfg.Fetch.MaxRetries = 0
	cfg.Browser.Enabled = false
	opts := []Option{WithLogger(quietLogger())}
	if r != nil {
		opts = append(opts, WithRenderer(r))
	}
	s, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Browser.PoolSize = 0
	_, err := New(cfg)
	require.ErrorIs(t, err, config.ErrInvalidPoolSize)
}

func TestFetchEscalatesOnlyWhenBlocked(t *testing.T) {
	t.Parallel()

	srv := fixtureSite(t)
	r := &countingRenderer{body: "<html><body><p>rendered shop</p></body></html>"}
	s := newTestScraper(t, r)

	res, err := s.Get(context.Background(), srv.URL+"/list/1")
	require.NoError(t, err)
	require.Equal(t, engine.StrategyHTTP, res.Strategy)
	require.Zero(t, r.calls.Load())

	res, err = s.Get(context.Background(), srv.URL+"/blocked")
	require.NoError(t, err)
	require.Equal(t, engine.StrategyBrowser, res.Strategy)
	require.EqualValues(t, 1, r.calls.Load())

	items, err := s.Extract(res, "p")
	require.NoError(t, err)
	require.Equal(t, []string{"rendered shop"}, items)
}

func TestFetchAllThroughScraper(t *testing.T) {
	t.Parallel()

	srv := fixtureSite(t)
	s := newTestScraper(t, nil)

	reqs := make([]engine.Request, 0, 3)
	for _, p := range []string{"/list/1", "/blocked", "/list/3"} {
		req, err := engine.NewRequest(srv.URL + p)
		require.NoError(t, err)
		reqs = append(reqs, req)
	}
	out, err := s.FetchAll(context.Background(), reqs, 2)
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.True(t, out[0].OK())
	require.ErrorIs(t, out[1].Err, &engine.FetchError{Kind: engine.FetchBlockedUnresolved})
	require.True(t, out[2].OK())
}

func TestScrapeAutoNextThroughScraper(t *testing.T) {
	t.Parallel()

	srv := fixtureSite(t)
	s := newTestScraper(t, nil)

	pages, err := paginate.Collect(s.ScrapeAutoNext(context.Background(), srv.URL+"/list/1", ".item", 0))
	require.NoError(t, err)
	require.Len(t, pages, 2)
	require.Equal(t, []string{"item 2"}, pages[1].Items)

	pages, err = paginate.Collect(s.ScrapePages(context.Background(), srv.URL+"/list/{}", 3, ".item"))
	require.NoError(t, err)
	require.Len(t, pages, 3)
	require.Equal(t, []string{"item 3"}, pages[2].Items)
}

func TestSubmitForm(t *testing.T) {
	t.Parallel()

	srv := fixtureSite(t)
	r := &countingRenderer{}
	s := newTestScraper(t, r)

	_, err := s.SubmitForm(context.Background(), srv.URL+"/login", nil)
	require.ErrorIs(t, err, ErrMissingForm)
	_, err = s.SubmitForm(context.Background(), "", engine.Form{{Name: "a", Value: "1"}})
	require.ErrorIs(t, err, ErrMissingForm)

	res, err := s.SubmitForm(context.Background(), srv.URL+"/login", engine.Form{
		{Name: "user", Value: "ada"},
		{Name: "pass", Value: "s3cr3t!"},
	})
	require.NoError(t, err)
	require.Contains(t, string(res.Body), "POST user=ada&pass=s3cr3t%21")

	res, err = s.SubmitForm(context.Background(), srv.URL+"/blocked", engine.Form{{Name: "q", Value: "x"}})
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, res.StatusCode)
	require.Zero(t, r.calls.Load())
}

func TestGetJSON(t *testing.T) {
	t.Parallel()

	srv := fixtureSite(t)
	s := newTestScraper(t, nil)

	var payload struct {
		Items []string `json:"items"`
		Total int      `json:"total"`
	}
	require.NoError(t, s.GetJSON(context.Background(), srv.URL+"/api/items", &payload))
	require.Equal(t, []string{"a", "b"}, payload.Items)
	require.Equal(t, 2, payload.Total)

	err := s.GetJSON(context.Background(), srv.URL+"/img/missing.gif", &payload)
	require.ErrorIs(t, err, &engine.FetchError{Kind: engine.FetchExhausted})
	var se *engine.StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusNotFound, se.StatusCode)

	err = s.GetJSON(context.Background(), srv.URL+"/list/1", &payload)
	require.ErrorContains(t, err, "decode json")

	require.ErrorIs(t, s.GetJSON(context.Background(), "relative/path", &payload), engine.ErrInvalidURL)
}

func TestDownloadAndImages(t *testing.T) {
	t.Parallel()

	srv := fixtureSite(t)
	s := newTestScraper(t, nil)
	dir := t.TempDir()

	n, err := s.Download(context.Background(), srv.URL+"/img/one.png", filepath.Join(dir, "nested", "one.png"))
	require.NoError(t, err)
	require.EqualValues(t, len("IMG:one.png"), n)

	res, err := s.Get(context.Background(), srv.URL+"/gallery")
	require.NoError(t, err)
	saved, err := s.DownloadImages(context.Background(), res, filepath.Join(dir, "gallery"))
	require.Error(t, err)
	require.ErrorIs(t, err, &engine.FetchError{})
	require.Equal(t, []string{
		filepath.Join(dir, "gallery", "img_0.png"),
		filepath.Join(dir, "gallery", "img_2.jpg"),
	}, saved)

	b, err := os.ReadFile(saved[1])
	require.NoError(t, err)
	require.Equal(t, "IMG:three", string(b))
}

func TestImageExt(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"https://s.test/a.PNG":            "png",
		"https://s.test/a.jpeg?x=1":       "jpg",
		"https://s.test/a.webp":           "webp",
		"https://s.test/photo":            "jpg",
		"https://s.test/a.verylongext":    "jpg",
		"https://s.test/dir.v2/image.gif": "gif",
		"https://s.test/a.b-c":            "jpg",
	}
	for in, want := range tests {
		require.Equal(t, want, imageExt(in), in)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	s, err := New(cfg, WithLogger(quietLogger()))
	require.NoError(t, err)

	stats, ok := s.BrowserStats()
	require.True(t, ok)
	require.False(t, stats.Started)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestSubmitFormTimeoutPostsOnce(t *testing.T) {
	t.Parallel()

	var posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(300 * time.Millisecond):
		}
	}))
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Fetch.HTTPTimeout = 50 * time.Millisecond
	cfg.Fetch.MaxRetries = 2
	cfg.Fetch.BackoffBase = time.Millisecond
	cfg.Fetch.BackoffMax = time.Millisecond
	cfg.Browser.Enabled = false
	s, err := New(cfg, WithLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = s.SubmitForm(context.Background(), srv.URL+"/order", engine.Form{{Name: "sku", Value: "42"}})
	require.ErrorIs(t, err, &engine.FetchError{Kind: engine.FetchExhausted})
	require.ErrorIs(t, err, &engine.NetworkError{Kind: engine.NetTimeout})
	require.Equal(t, int32(1), posts.Load())
}
