package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/pagewalk/config"
	"github.com/use-agent/pagewalk/scraper"
)

func newTestScraper(t *testing.T) (*scraper.Scraper, *httptest.Server) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/list/{n}", func(w http.ResponseWriter, r *http.Request) {
		n := r.PathValue("n")
		next := ""
		if n == "1" {
			next = `<a href="/list/2">Next</a>`
		}
		fmt.Fprintf(w, `<html><head><title>List %s</title></head><body><p class="item">item %s</p>%s</body></html>`, n, n, next)
	})
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html><body><p class="item">again</p><a href="/loop">Next</a></body></html>`)
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html><body><table class="wikitable"><tr><th colspan="2">Score</th></tr><tr><td>1</td><td>2</td></tr></table></body></html>`)
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		fmt.Fprintf(w, "<html><body><p>%s %s</p></body></html>", r.Method, b)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Browser.Enabled = false
	cfg.Fetch.MaxRetries = 0
	sc, err := scraper.New(cfg, scraper.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	t.Cleanup(func() { sc.Close() })
	return sc, srv
}

func call(t *testing.T, h server.ToolHandlerFunc, args map[string]any) (string, bool) {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	res, err := h(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text, res.IsError
}

func TestFetchPage(t *testing.T) {
	t.Parallel()

	sc, srv := newTestScraper(t)
	h := handleFetchPage(sc)

	text, isErr := call(t, h, map[string]any{"url": srv.URL + "/list/1", "selector": ".item"})
	require.False(t, isErr, text)
	require.Contains(t, text, "Strategy: http")
	require.Contains(t, text, "Title: List 1")
	require.Contains(t, text, "item 1")

	text, isErr = call(t, h, map[string]any{"url": srv.URL + "/list/1", "format": "pdf"})
	require.True(t, isErr)
	require.Contains(t, text, "unknown format")

	_, isErr = call(t, h, map[string]any{})
	require.True(t, isErr)
}

func TestFetchMany(t *testing.T) {
	t.Parallel()

	sc, srv := newTestScraper(t)
	text, isErr := call(t, handleFetchMany(sc), map[string]any{
		"urls":     []any{srv.URL + "/list/1", srv.URL + "/list/2"},
		"workers":  2,
		"selector": ".item",
	})
	require.False(t, isErr, text)

	var got []manyResult
	require.NoError(t, json.Unmarshal([]byte(text), &got))
	require.Len(t, got, 2)
	require.Equal(t, []string{"item 1"}, got[0].Items)
	require.Equal(t, []string{"item 2"}, got[1].Items)
}

func TestScrapeTools(t *testing.T) {
	t.Parallel()

	sc, srv := newTestScraper(t)

	text, isErr := call(t, handleScrapePages(sc), map[string]any{
		"template": srv.URL + "/list/{}",
		"count":    2,
		"selector": ".item",
	})
	require.False(t, isErr, text)
	var pr pagesResult
	require.NoError(t, json.Unmarshal([]byte(text), &pr))
	require.Len(t, pr.Pages, 2)
	require.Empty(t, pr.Stopped)

	text, isErr = call(t, handleScrapeNext(sc), map[string]any{"url": srv.URL + "/loop", "selector": ".item"})
	require.False(t, isErr, text)
	pr = pagesResult{}
	require.NoError(t, json.Unmarshal([]byte(text), &pr))
	require.Len(t, pr.Pages, 1)
	require.Contains(t, pr.Stopped, "cycle-detected")

	_, isErr = call(t, handleScrapePages(sc), map[string]any{"template": srv.URL + "/list/1", "count": 2, "selector": ".item"})
	require.True(t, isErr)
}

func TestExtractTableAndSubmitForm(t *testing.T) {
	t.Parallel()

	sc, srv := newTestScraper(t)

	text, isErr := call(t, handleExtractTable(sc), map[string]any{"url": srv.URL + "/stats"})
	require.False(t, isErr, text)
	var rows [][]string
	require.NoError(t, json.Unmarshal([]byte(text), &rows))
	require.Equal(t, [][]string{{"Score", "Score"}, {"1", "2"}}, rows)

	text, isErr = call(t, handleSubmitForm(sc), map[string]any{
		"url":    srv.URL + "/login",
		"fields": []any{"user=ada", "city=a=b"},
	})
	require.False(t, isErr, text)
	require.Contains(t, text, "Status: 200")
	require.Contains(t, text, "POST user=ada&city=a%3Db")

	_, isErr = call(t, handleSubmitForm(sc), map[string]any{"url": srv.URL + "/login", "fields": []any{"broken"}})
	require.True(t, isErr)
}

func TestNewServerRegistersTools(t *testing.T) {
	t.Parallel()

	sc, _ := newTestScraper(t)
	require.NotNil(t, newServer(sc))
}
