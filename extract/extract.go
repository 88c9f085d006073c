// Package extract queries fetched documents: selector matches, the next
// page link, links, images, tables and format conversion.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// ErrInvalidSelector wraps selector syntax errors.
var ErrInvalidSelector = errors.New("extract: invalid selector")

// ValidateSelector reports whether selector is a valid CSS selector group.
func ValidateSelector(selector string) error {
	if strings.TrimSpace(selector) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidSelector)
	}
	if _, err := cascadia.ParseGroup(selector); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidSelector, selector, err)
	}
	return nil
}

// Document is a parsed page with the URL its relative links resolve against.
type Document struct {
	doc  *goquery.Document
	base *url.URL
}

// Parse builds a Document. baseURL may be empty, in which case relative
// links stay relative.
func Parse(body []byte, baseURL string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("extract: parse html: %w", err)
	}
	d := &Document{doc: doc}
	if baseURL != "" {
		if u, err := url.Parse(baseURL); err == nil {
			d.base = u
		}
	}
	return d, nil
}

// Select returns the whitespace-collapsed text of every element matching
// selector, in document order.
func (d *Document) Select(selector string) ([]string, error) {
	if err := ValidateSelector(selector); err != nil {
		return nil, err
	}
	var out []string
	d.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		out = append(out, CleanText(s.Text()))
	})
	return out, nil
}

// Text returns the text of the first match, or "".
func (d *Document) Text(selector string) (string, error) {
	if err := ValidateSelector(selector); err != nil {
		return "", err
	}
	return CleanText(d.doc.Find(selector).First().Text()), nil
}

// Attr returns attribute name of every match that carries it.
func (d *Document) Attr(selector, name string) ([]string, error) {
	if err := ValidateSelector(selector); err != nil {
		return nil, err
	}
	var out []string
	d.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr(name); ok {
			out = append(out, strings.TrimSpace(v))
		}
	})
	return out, nil
}

// Title returns the document title.
func (d *Document) Title() string {
	return CleanText(d.doc.Find("title").First().Text())
}

// nextCandidates are tried in order after the text match.
var nextCandidates = []string{`a[rel~="next"]`, "li.next a", "a.next"}

// NextLink finds the "next page" link: first an anchor whose text contains
// "next", then rel=next, li.next and a.next anchors. The href is resolved
// against the base URL and must be http or https.
func (d *Document) NextLink() (string, bool) {
	var found string
	d.doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.Contains(strings.ToLower(s.Text()), "next") {
			return true
		}
		if u, ok := d.resolveAttr(s, "href"); ok {
			found = u
			return false
		}
		return true
	})
	if found != "" {
		return found, true
	}
	for _, sel := range nextCandidates {
		var u string
		d.doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			var ok bool
			u, ok = d.resolveAttr(s, "href")
			return !ok
		})
		if u != "" {
			return u, true
		}
	}
	return "", false
}

// Links returns the unique absolute http(s) links in document order.
func (d *Document) Links() []string {
	return d.uniqueURLs("a[href]", "href")
}

// Images returns the unique absolute image URLs in document order. Data
// URIs are skipped.
func (d *Document) Images() []string {
	return d.uniqueURLs("img[src]", "src")
}

func (d *Document) uniqueURLs(selector, attr string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	d.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		u, ok := d.resolveAttr(s, attr)
		if !ok {
			return
		}
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}
		out = append(out, u)
	})
	return out
}

// resolveAttr resolves an URL attribute, keeping only http and https.
func (d *Document) resolveAttr(s *goquery.Selection, attr string) (string, bool) {
	raw, ok := s.Attr(attr)
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return "", false
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if d.base != nil {
		ref = d.base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return "", false
	}
	return ref.String(), true
}

// CleanText collapses runs of whitespace to single spaces and trims.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// HTML is the stateless extractor the paginator and the scraper use. It
// parses the body on every call.
type HTML struct{}

// Extract returns the text of every element matching selector.
func (HTML) Extract(body []byte, baseURL, selector string) ([]string, error) {
	d, err := Parse(body, baseURL)
	if err != nil {
		return nil, err
	}
	return d.Select(selector)
}

// FindNext returns the resolved "next page" URL, if any.
func (HTML) FindNext(body []byte, baseURL string) (string, bool) {
	d, err := Parse(body, baseURL)
	if err != nil {
		return "", false
	}
	return d.NextLink()
}

// Text parses body and returns the text of the first selector match.
func Text(body []byte, selector string) (string, error) {
	d, err := Parse(body, "")
	if err != nil {
		return "", err
	}
	return d.Text(selector)
}

// Links parses body and returns its unique absolute links.
func Links(body []byte, baseURL string) ([]string, error) {
	d, err := Parse(body, baseURL)
	if err != nil {
		return nil, err
	}
	return d.Links(), nil
}

// Images parses body and returns its unique absolute image URLs.
func Images(body []byte, baseURL string) ([]string, error) {
	d, err := Parse(body, baseURL)
	if err != nil {
		return nil, err
	}
	return d.Images(), nil
}

// Table parses body and flattens its largest table matching selector.
func Table(body []byte, selector string) ([][]string, error) {
	d, err := Parse(body, "")
	if err != nil {
		return nil, err
	}
	return d.Table(selector)
}

// Selectors parses body and returns its selector inventory.
func Selectors(body []byte) (Inventory, error) {
	d, err := Parse(body, "")
	if err != nil {
		return Inventory{}, err
	}
	return d.Inventory(), nil
}
