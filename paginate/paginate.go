// Package paginate walks multi-page collections, either by substituting a
// page number into a URL template or by following "next" links.
package paginate

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/use-agent/pagewalk/engine"
	"github.com/use-agent/pagewalk/extract"
	"github.com/use-agent/pagewalk/simhash"
)

// Placeholder marks where the page number goes in a URL template.
const Placeholder = "{}"

// DefaultMaxPages caps next-link traversal when no limit is given.
const DefaultMaxPages = 10

var (
	ErrInvalidPageCount = errors.New("paginate: page count must be at least 1")
	ErrNoPlaceholder    = errors.New("paginate: url template has no {} placeholder")
)

// Fetcher fetches one page. *engine.Engine satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, req engine.Request) (*engine.Result, error)
}

// Extractor pulls items and the next link out of a fetched document.
// extract.HTML satisfies it.
type Extractor interface {
	Extract(body []byte, baseURL, selector string) ([]string, error)
	FindNext(body []byte, baseURL string) (string, bool)
}

// Page is one traversal step. Index starts at 1.
type Page struct {
	Index  int            `json:"index"`
	URL    string         `json:"url"`
	Items  []string       `json:"items"`
	Result *engine.Result `json:"-"`
}

// Paginator drives repeated fetches. It holds no traversal state, so each
// call to Pages or AutoNext starts from scratch.
type Paginator struct {
	fetcher    Fetcher
	extractor  Extractor
	maxPages   int
	noProgress int
	hint       engine.Hint
	logger     *slog.Logger
}

// Option configures a Paginator.
type Option func(*Paginator)

// WithMaxPages sets the default cap for AutoNext.
func WithMaxPages(n int) Option {
	return func(p *Paginator) {
		if n > 0 {
			p.maxPages = n
		}
	}
}

// WithNoProgressDistance sets the simhash distance at or below which two
// consecutive pages count as the same content. Negative disables the check.
func WithNoProgressDistance(d int) Option {
	return func(p *Paginator) { p.noProgress = d }
}

// WithHint sets the strategy hint used for every page request.
func WithHint(h engine.Hint) Option {
	return func(p *Paginator) {
		if h != "" {
			p.hint = h
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Paginator) {
		if l != nil {
			p.logger = l
		}
	}
}

// New returns a Paginator fetching through f and extracting with x. A nil
// extractor means extract.HTML.
func New(f Fetcher, x Extractor, opts ...Option) *Paginator {
	if x == nil {
		x = extract.HTML{}
	}
	p := &Paginator{
		fetcher:   f,
		extractor: x,
		maxPages:  DefaultMaxPages,
		hint:      engine.HintAuto,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Pages fetches template with {} replaced by 1..count, one page at a time.
// The first error ends the sequence; pages already yielded stand.
func (p *Paginator) Pages(ctx context.Context, template string, count int, selector string) iter.Seq2[*Page, error] {
	return func(yield func(*Page, error) bool) {
		switch {
		case count < 1:
			yield(nil, ErrInvalidPageCount)
			return
		case !strings.Contains(template, Placeholder):
			yield(nil, ErrNoPlaceholder)
			return
		}
		if err := validSelector(selector); err != nil {
			yield(nil, err)
			return
		}
		for i := 1; i <= count; i++ {
			target := strings.ReplaceAll(template, Placeholder, strconv.Itoa(i))
			page, err := p.visit(ctx, i, target, selector)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(page, nil) {
				return
			}
		}
	}
}

// AutoNext fetches start and keeps following the page's next link until
// there is none or maxPages pages have been yielded. maxPages <= 0 uses the
// configured default. A link back to any visited page ends the sequence
// with a cycle-detected PaginationError; a page whose items repeat the
// previous page ends it with no-progress.
func (p *Paginator) AutoNext(ctx context.Context, start, selector string, maxPages int) iter.Seq2[*Page, error] {
	if maxPages <= 0 {
		maxPages = p.maxPages
	}
	return func(yield func(*Page, error) bool) {
		if err := validSelector(selector); err != nil {
			yield(nil, err)
			return
		}
		var (
			visited = make(map[string]struct{})
			current = start
			prev    uint64
			hasPrev bool
		)
		for i := 1; i <= maxPages; i++ {
			visited[visitKey(current)] = struct{}{}
			page, err := p.visit(ctx, i, current, selector)
			if err != nil {
				yield(nil, err)
				return
			}
			// A redirect can land on a page that was already yielded.
			if resolved := visitKey(page.Result.URL); resolved != visitKey(current) {
				if _, seen := visited[resolved]; seen {
					yield(nil, &PaginationError{Kind: CycleDetected, URL: page.Result.URL, Page: i})
					return
				}
				visited[resolved] = struct{}{}
			}

			if p.noProgress >= 0 && len(page.Items) > 0 {
				fp := simhash.Of(strings.Join(page.Items, "\n"))
				if hasPrev && simhash.Near(prev, fp, p.noProgress) {
					yield(nil, &PaginationError{Kind: NoProgress, URL: current, Page: i})
					return
				}
				prev, hasPrev = fp, true
			}
			if !yield(page, nil) || i == maxPages {
				return
			}

			next, ok := p.extractor.FindNext(page.Result.Body, page.Result.URL)
			if !ok {
				p.logger.Debug("paginate: no next link", "url", page.Result.URL, "page", i)
				return
			}
			if _, seen := visited[visitKey(next)]; seen {
				yield(nil, &PaginationError{Kind: CycleDetected, URL: next, Page: i})
				return
			}
			current = next
		}
	}
}

func (p *Paginator) visit(ctx context.Context, index int, target, selector string) (*Page, error) {
	req, err := engine.NewRequest(target, engine.WithHint(p.hint))
	if err != nil {
		return nil, fmt.Errorf("paginate: page %d: %w", index, err)
	}
	res, err := p.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	page := &Page{Index: index, URL: target, Result: res}
	if selector != "" {
		page.Items, err = p.extractor.Extract(res.Body, res.URL, selector)
		if err != nil {
			return nil, fmt.Errorf("paginate: page %d: %w", index, err)
		}
	}
	p.logger.Debug("paginate: page fetched",
		"url", target,
		"page", index,
		"strategy", res.Strategy,
		"items", len(page.Items),
	)
	return page, nil
}

func validSelector(selector string) error {
	if selector == "" {
		return nil
	}
	return extract.ValidateSelector(selector)
}

// visitKey normalizes a URL for the visited set by dropping the fragment.
func visitKey(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// Collect drains seq. It returns every page yielded and the error that
// ended the sequence, if any.
func Collect(seq iter.Seq2[*Page, error]) ([]*Page, error) {
	var pages []*Page
	for page, err := range seq {
		if err != nil {
			return pages, err
		}
		pages = append(pages, page)
	}
	return pages, nil
}
