package commands

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"iter"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/pagewalk/engine"
	"github.com/use-agent/pagewalk/paginate"
)

func TestParseFields(t *testing.T) {
	t.Parallel()

	got, err := parseFields([]string{"user=ada", "q=a=b", "empty="})
	require.NoError(t, err)
	require.Equal(t, engine.Form{{Name: "user", Value: "ada"}, {Name: "q", Value: "a=b"}, {Name: "empty", Value: ""}}, got)

	for _, bad := range []string{"novalue", "=x"} {
		_, err := parseFields([]string{bad})
		require.Error(t, err, bad)
	}
}

func pageSeq(pages []*paginate.Page, stop error) iter.Seq2[*paginate.Page, error] {
	return func(yield func(*paginate.Page, error) bool) {
		for _, p := range pages {
			if !yield(p, nil) {
				return
			}
		}
		if stop != nil {
			yield(nil, stop)
		}
	}
}

func TestRunPagesExportsCollectedPages(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	pages := []*paginate.Page{
		{Index: 1, URL: "https://s.test/1", Items: []string{"a", "b"}},
		{Index: 2, URL: "https://s.test/2", Items: []string{"c"}},
	}
	cycle := &paginate.PaginationError{Kind: paginate.CycleDetected, URL: "https://s.test/1", Page: 2}

	var out bytes.Buffer
	o := pageOutput{csv: filepath.Join(dir, "out", "items.csv"), json: filepath.Join(dir, "pages.json")}
	require.NoError(t, runPages(&out, pageSeq(pages, cycle), o))
	require.Equal(t, "1\ta\n1\tb\n2\tc\n", out.String())

	f, err := os.Open(o.csv)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	want := [][]string{
		{"page", "url", "item"},
		{"1", "https://s.test/1", "a"},
		{"1", "https://s.test/1", "b"},
		{"2", "https://s.test/2", "c"},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Fatalf("csv rows (-want +got):\n%s", diff)
	}

	b, err := os.ReadFile(o.json)
	require.NoError(t, err)
	require.Contains(t, string(b), `"url": "https://s.test/2"`)
}

func TestRunPagesReturnsFetchErrors(t *testing.T) {
	t.Parallel()

	fetchErr := &engine.FetchError{Kind: engine.FetchExhausted, URL: "https://s.test/3"}
	err := runPages(&bytes.Buffer{}, pageSeq(nil, fetchErr), pageOutput{})
	require.ErrorIs(t, err, &engine.FetchError{Kind: engine.FetchExhausted})
}

func TestRenderGrid(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	renderGrid(newTable(&out), [][]string{{"Team", "Score"}, {"Reds", "3"}})
	s := out.String()
	require.Contains(t, s, "TEAM")
	require.Contains(t, s, "Reds")
	require.Less(t, strings.Index(s, "TEAM"), strings.Index(s, "Reds"))
}

// The remaining tests drive rootCmd and share its flag state, so they do
// not run in parallel.

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	flags = globalFlags{}
	fetchOpts.format, fetchOpts.selector, fetchOpts.out = "markdown", "", ""
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestFetchCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>Shop</title></head><body><p class="item">alpha</p><p class="item">beta</p></body></html>`)
	}))
	t.Cleanup(srv.Close)

	out, err := execute(t, "fetch", srv.URL, "--no-browser", "--log-level", "error", "--selector", ".item")
	require.NoError(t, err)
	require.Equal(t, "alpha\nbeta\n", out)
	require.False(t, cfg.Browser.Enabled)
	require.Equal(t, "error", cfg.Log.Level)

	dest := filepath.Join(t.TempDir(), "page.txt")
	_, err = execute(t, "fetch", srv.URL, "--no-browser", "--format", "text", "-o", dest)
	require.NoError(t, err)
	b, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Contains(t, string(b), "alpha")
}

func TestGlobalFlagsOverrideConfig(t *testing.T) {

	_, err := execute(t, "version", "--rpm", "30")
	require.NoError(t, err)

	_, err = execute(t, "fetch", "https://s.test/", "--hint", "sometimes", "--no-browser")
	require.Error(t, err)

	_, err = execute(t, "fetch", "https://s.test/", "--browser", "webkit")
	require.Error(t, err)
}
