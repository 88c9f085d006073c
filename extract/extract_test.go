package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, body, base string) *Document {
	t.Helper()
	d, err := Parse([]byte(body), base)
	require.NoError(t, err)
	return d
}

func TestSelectCollapsesWhitespace(t *testing.T) {
	t.Parallel()

	d := mustParse(t, `<ul><li> Apple
		pie </li><li>Banana</li><li><b>Cherry</b> tart</li></ul>`, "")
	got, err := d.Select("li")
	require.NoError(t, err)
	require.Equal(t, []string{"Apple pie", "Banana", "Cherry tart"}, got)

	first, err := d.Text("li")
	require.NoError(t, err)
	require.Equal(t, "Apple pie", first)

	none, err := d.Text("h1")
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestInvalidSelector(t *testing.T) {
	t.Parallel()

	d := mustParse(t, "<p>x</p>", "")
	_, err := d.Select("p[")
	require.ErrorIs(t, err, ErrInvalidSelector)
	_, err = d.Table("   ")
	require.ErrorIs(t, err, ErrInvalidSelector)
	require.NoError(t, ValidateSelector("h2.title, div > p"))
}

func TestLinksAndImages(t *testing.T) {
	t.Parallel()

	d := mustParse(t, `<body>
<a href="a">A</a>
<a href="/b">B</a>
<a href="https://other.test/c">C</a>
<a href="a">A again</a>
<a href="mailto:x@s.test">mail</a>
<a href="javascript:void(0)">js</a>
<img src="img/1.png"><img src="data:image/png;base64,AAAA"><img src="/img/1.png?v=2">
</body>`, "https://s.test/dir/page")

	require.Equal(t, []string{
		"https://s.test/dir/a",
		"https://s.test/b",
		"https://other.test/c",
	}, d.Links())
	require.Equal(t, []string{
		"https://s.test/dir/img/1.png",
		"https://s.test/img/1.png?v=2",
	}, d.Images())
}

func TestNextLink(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"anchor text", `<a href="/p1">Prev</a><a href="/p3">Next »</a>`, "https://s.test/p3"},
		{"text beats rel", `<a rel="next" href="/rel">›</a><a href="/text">next page</a>`, "https://s.test/text"},
		{"rel next", `<a href="/x">1</a><a rel="next" href="/rel">›</a>`, "https://s.test/rel"},
		{"li.next", `<ul><li class="next"><a href="?page=2">›</a></li></ul>`, "https://s.test/list?page=2"},
		{"a.next", `<a class="next" href="/cls">›</a>`, "https://s.test/cls"},
		{"javascript skipped", `<a href="javascript:go()">Next</a><a class="next" href="/real">›</a>`, "https://s.test/real"},
		{"none", `<a href="/a">Home</a>`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := HTML{}.FindNext([]byte(tt.body), "https://s.test/list")
			require.Equal(t, tt.want != "", ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestHTMLExtract(t *testing.T) {
	t.Parallel()

	items, err := HTML{}.Extract([]byte(`<h2 class="t">One</h2><h2 class="t">Two</h2><h2>Skip</h2>`), "", "h2.t")
	require.NoError(t, err)
	require.Equal(t, []string{"One", "Two"}, items)
}

func TestInventory(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString(`<div id="main" class="wrap  b a">`)
	for i := range 20 {
		b.WriteString(`<span class="c` + string(rune('a'+i)) + `" id="i` + string(rune('a'+i)) + `">x</span>`)
	}
	b.WriteString(`</div>`)

	inv := mustParse(t, b.String(), "").Inventory()
	require.Equal(t, []string{"body", "div", "head", "html", "span"}, inv.Tags)
	require.Len(t, inv.IDs, 15)
	require.Equal(t, "ia", inv.IDs[0])
	require.Len(t, inv.Classes, 15)
	require.Equal(t, []string{"a", "b", "ca"}, inv.Classes[:3])
}

func TestMarkdownKeepsTablesAndAbsolutizesLinks(t *testing.T) {
	t.Parallel()

	md, err := Markdown(`<h1>Prices</h1><table><tr><th>Item</th><th>Cost</th></tr><tr><td>Tea</td><td>3</td></tr></table><p><a href="/more">more</a></p>`,
		"https://s.test/shop/list")
	require.NoError(t, err)
	require.Contains(t, md, "# Prices")
	require.Contains(t, md, "Tea")
	require.Contains(t, md, "Cost")
	require.Contains(t, md, "https://s.test/more")
}

func TestReadableFallsBackOnShortPages(t *testing.T) {
	t.Parallel()

	raw := `<html><body><p>  tiny   page </p></body></html>`
	a, ok := Readable(raw, "https://s.test/")
	require.False(t, ok)
	require.Equal(t, raw, a.HTML)
	require.Equal(t, "tiny page", a.Text)
}

func TestReadableFindsArticle(t *testing.T) {
	t.Parallel()

	para := strings.Repeat("The quick brown fox jumps over the lazy dog again and again. ", 20)
	raw := `<html><head><title>Fox Facts</title></head><body><nav><a href="/">Home</a></nav>
<article><h1>Fox Facts</h1><p>` + para + `</p><p>` + para + `</p></article></body></html>`
	a, ok := Readable(raw, "https://s.test/fox")
	require.True(t, ok)
	require.Equal(t, "Fox Facts", a.Title)
	require.Contains(t, a.Text, "quick brown fox")
}

func TestConvert(t *testing.T) {
	t.Parallel()

	raw := `<html><body><p>hello</p></body></html>`
	got, err := Convert(raw, "https://s.test/", FormatRaw)
	require.NoError(t, err)
	require.Equal(t, raw, got)

	got, err = Convert(raw, "https://s.test/", FormatText)
	require.NoError(t, err)
	require.Equal(t, "hello", got)

	got, err = Convert(raw, "https://s.test/", FormatMarkdown)
	require.NoError(t, err)
	require.Contains(t, got, "hello")
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Format{"": FormatMarkdown, "RAW": FormatRaw, "html": FormatHTML, "text": FormatText} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseFormat("pdf")
	require.Error(t, err)
}
