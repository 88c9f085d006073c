package extract

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

// minReadableText is the shortest extracted text accepted as the main
// content. Anything shorter falls back to the whole page.
const minReadableText = 50

// Article is the main content of a page.
type Article struct {
	Title    string `json:"title,omitempty"`
	Byline   string `json:"byline,omitempty"`
	Excerpt  string `json:"excerpt,omitempty"`
	SiteName string `json:"site_name,omitempty"`
	Language string `json:"language,omitempty"`
	HTML     string `json:"-"`
	Text     string `json:"-"`
}

// Readable runs readability over the page. ok is false when extraction
// failed or found too little text; the Article then carries the page
// unchanged.
func Readable(raw, pageURL string) (Article, bool) {
	u, err := url.Parse(pageURL)
	if err != nil {
		slog.Debug("extract: readability skipped, bad url", "url", pageURL, "error", err)
		return fallbackArticle(raw), false
	}
	a, err := readability.FromReader(strings.NewReader(raw), u)
	if err != nil {
		slog.Debug("extract: readability failed", "url", pageURL, "error", err)
		return fallbackArticle(raw), false
	}
	if len(strings.TrimSpace(a.TextContent)) < minReadableText {
		slog.Debug("extract: readability content too short", "url", pageURL, "length", len(a.TextContent))
		return fallbackArticle(raw), false
	}
	return Article{
		Title:    a.Title,
		Byline:   a.Byline,
		Excerpt:  a.Excerpt,
		SiteName: a.SiteName,
		Language: a.Language,
		HTML:     a.Content,
		Text:     strings.TrimSpace(a.TextContent),
	}, true
}

func fallbackArticle(raw string) Article {
	text := raw
	if d, err := Parse([]byte(raw), ""); err == nil {
		text = CleanText(d.doc.Find("body").Text())
	}
	return Article{HTML: raw, Text: text}
}

// Format names an output rendering of a fetched page.
type Format string

const (
	FormatRaw      Format = "raw"
	FormatHTML     Format = "html"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
)

// ParseFormat accepts the Format names; "" means markdown.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatMarkdown, nil
	case FormatRaw, FormatHTML, FormatMarkdown, FormatText:
		return f, nil
	}
	return "", fmt.Errorf("extract: unknown format %q", s)
}

// Convert renders a page in format. Every format except raw works on the
// readable main content.
func Convert(raw, pageURL string, format Format) (string, error) {
	if format == FormatRaw {
		return raw, nil
	}
	a, _ := Readable(raw, pageURL)
	switch format {
	case FormatHTML:
		return a.HTML, nil
	case FormatText:
		return a.Text, nil
	case FormatMarkdown, "":
		md, err := Markdown(a.HTML, pageURL)
		if err != nil {
			return "", fmt.Errorf("extract: markdown: %w", err)
		}
		return md, nil
	}
	return "", fmt.Errorf("extract: unknown format %q", format)
}
