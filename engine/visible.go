package engine

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// extractTitle returns the text of the first <title> element.
func extractTitle(body []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				if tokenizer.Next() == html.TextToken {
					return strings.TrimSpace(string(tokenizer.Text()))
				}
				return ""
			}
		}
	}
}

// pageShape is what the detector needs to know about a document's markup.
type pageShape struct {
	title       string
	visibleText string
	scripts     int
	noscript    string
}

// inspectHTML walks the token stream once and collects the visible text
// (anything outside <head> except script, style and noscript content), the
// title, the script count and the concatenated noscript text. The <body>
// tag is optional in HTML5, so its absence does not hide the page text.
func inspectHTML(body []byte) pageShape {
	var (
		shape    pageShape
		text     strings.Builder
		noscript strings.Builder
		inHead   bool
		inTitle  bool
		skip     int
		inNoscr  int
	)
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			shape.visibleText = strings.TrimSpace(text.String())
			shape.noscript = strings.TrimSpace(noscript.String())
			return shape
		case html.StartTagToken, html.SelfClosingTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "head":
				inHead = true
			case "body":
				inHead = false
			case "title":
				inTitle = tt == html.StartTagToken && shape.title == ""
			case "script":
				shape.scripts++
				if tt == html.StartTagToken {
					skip++
				}
			case "style":
				if tt == html.StartTagToken {
					skip++
				}
			case "noscript":
				if tt == html.StartTagToken {
					skip++
					inNoscr++
				}
			}
		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "head":
				inHead = false
			case "title":
				inTitle = false
			case "script", "style":
				if skip > 0 {
					skip--
				}
			case "noscript":
				if skip > 0 {
					skip--
				}
				if inNoscr > 0 {
					inNoscr--
				}
			}
		case html.TextToken:
			raw := strings.TrimSpace(string(tokenizer.Text()))
			if raw == "" {
				continue
			}
			switch {
			case inTitle:
				shape.title = raw
			case inNoscr > 0:
				noscript.WriteString(raw)
				noscript.WriteByte(' ')
			case !inHead && skip == 0:
				text.WriteString(raw)
				text.WriteByte(' ')
			}
		}
	}
}
