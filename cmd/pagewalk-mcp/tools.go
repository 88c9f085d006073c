package main

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/use-agent/pagewalk/api"
	"github.com/use-agent/pagewalk/engine"
	"github.com/use-agent/pagewalk/extract"
	"github.com/use-agent/pagewalk/paginate"
	"github.com/use-agent/pagewalk/scraper"
)

func newServer(sc *scraper.Scraper) *server.MCPServer {
	s := server.NewMCPServer(
		"pagewalk",
		api.Version,
		server.WithToolCapabilities(false),
	)

	s.AddTool(mcp.NewTool("fetch_page",
		mcp.WithDescription("Fetch a web page and return its content. Plain HTTP is tried first and a headless browser takes over when the site blocks it."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the page to fetch"),
		),
		mcp.WithString("hint",
			mcp.Description("Strategy: 'auto' (default), 'http-only' or 'browser-only'"),
			mcp.Enum("auto", "http-only", "browser-only"),
		),
		mcp.WithString("format",
			mcp.Description("Output format: 'markdown' (default), 'text', 'html' or 'raw'"),
			mcp.Enum("markdown", "text", "html", "raw"),
		),
		mcp.WithString("selector",
			mcp.Description("CSS selector; when set, only the text of every match is returned"),
		),
	), handleFetchPage(sc))

	s.AddTool(mcp.NewTool("fetch_many",
		mcp.WithDescription("Fetch several pages in parallel. Results come back in input order and one failure never stops the others."),
		mcp.WithArray("urls",
			mcp.Required(),
			mcp.Description("List of URLs to fetch"),
		),
		mcp.WithNumber("workers",
			mcp.Description("Fetches in flight (default: 4)"),
		),
		mcp.WithString("selector",
			mcp.Description("CSS selector whose matches are returned for every page"),
		),
	), handleFetchMany(sc))

	s.AddTool(mcp.NewTool("scrape_pages",
		mcp.WithDescription("Walk a URL template whose {} placeholder is replaced by page numbers 1..count and collect the items matching a selector."),
		mcp.WithString("template",
			mcp.Required(),
			mcp.Description("URL with a {} placeholder, e.g. https://example.com/list?page={}"),
		),
		mcp.WithNumber("count",
			mcp.Required(),
			mcp.Description("Number of pages"),
		),
		mcp.WithString("selector",
			mcp.Required(),
			mcp.Description("CSS selector of the items to collect"),
		),
	), handleScrapePages(sc))

	s.AddTool(mcp.NewTool("scrape_next",
		mcp.WithDescription("Follow 'next' links from a start page and collect the items matching a selector. Stops on a cycle, repeated content or the page cap."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The first page"),
		),
		mcp.WithString("selector",
			mcp.Required(),
			mcp.Description("CSS selector of the items to collect"),
		),
		mcp.WithNumber("max_pages",
			mcp.Description("Maximum pages to visit (default from configuration)"),
		),
	), handleScrapeNext(sc))

	s.AddTool(mcp.NewTool("extract_table",
		mcp.WithDescription("Flatten the largest table matching a selector into rows, with rowspan and colspan expanded."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The page holding the table"),
		),
		mcp.WithString("selector",
			mcp.Description("CSS selector of the table (default: table.wikitable)"),
		),
	), handleExtractTable(sc))

	s.AddTool(mcp.NewTool("submit_form",
		mcp.WithDescription("Post an urlencoded form and return the response as text. Fields are sent in the given order."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The form action URL"),
		),
		mcp.WithArray("fields",
			mcp.Required(),
			mcp.Description("Fields as 'name=value' strings"),
		),
	), handleSubmitForm(sc))

	return s
}

func handleFetchPage(sc *scraper.Scraper) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}
		hint, err := engine.ParseHint(request.GetString("hint", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		format, err := extract.ParseFormat(request.GetString("format", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		selector := request.GetString("selector", "")

		res, err := sc.Get(ctx, url, engine.WithHint(hint))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("fetch failed: %v", err)), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "URL: %s\nStatus: %d\nStrategy: %s\n", res.URL, res.StatusCode, res.Strategy)
		if title := res.Title(); title != "" {
			fmt.Fprintf(&sb, "Title: %s\n", title)
		}
		sb.WriteString("\n")

		if selector != "" {
			items, err := sc.Extract(res, selector)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			sb.WriteString(strings.Join(items, "\n"))
			return mcp.NewToolResultText(sb.String()), nil
		}
		content, err := extract.Convert(res.HTML(), res.URL, format)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		sb.WriteString(content)
		return mcp.NewToolResultText(sb.String()), nil
	}
}

// manyResult is one slot of fetch_many.
type manyResult struct {
	URL      string   `json:"url"`
	Status   int      `json:"status,omitempty"`
	Strategy string   `json:"strategy,omitempty"`
	Title    string   `json:"title,omitempty"`
	Items    []string `json:"items,omitempty"`
	Error    string   `json:"error,omitempty"`
}

func handleFetchMany(sc *scraper.Scraper) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		urls, err := request.RequireStringSlice("urls")
		if err != nil || len(urls) == 0 {
			return mcp.NewToolResultError("urls is required"), nil
		}
		workers := request.GetInt("workers", 4)
		selector := request.GetString("selector", "")
		if selector != "" {
			if err := extract.ValidateSelector(selector); err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
		}

		reqs := make([]engine.Request, len(urls))
		for i, u := range urls {
			if reqs[i], err = engine.NewRequest(u); err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
		}
		outcomes, err := sc.FetchAll(ctx, reqs, workers)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		results := make([]manyResult, len(outcomes))
		for i, o := range outcomes {
			r := manyResult{URL: reqs[i].URL}
			if o.OK() {
				r.Status = o.Result.StatusCode
				r.Strategy = string(o.Result.Strategy)
				r.Title = o.Result.Title()
				if selector != "" {
					r.Items, _ = sc.Extract(o.Result, selector)
				}
			} else {
				r.Error = o.Err.Error()
			}
			results[i] = r
		}
		return jsonResult(results)
	}
}

func handleScrapePages(sc *scraper.Scraper) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		template, err := request.RequireString("template")
		if err != nil {
			return mcp.NewToolResultError("template is required"), nil
		}
		selector, err := request.RequireString("selector")
		if err != nil {
			return mcp.NewToolResultError("selector is required"), nil
		}
		count := request.GetInt("count", 0)
		return collectPages(sc.ScrapePages(ctx, template, count, selector))
	}
}

func handleScrapeNext(sc *scraper.Scraper) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}
		selector, err := request.RequireString("selector")
		if err != nil {
			return mcp.NewToolResultError("selector is required"), nil
		}
		maxPages := request.GetInt("max_pages", 0)
		return collectPages(sc.ScrapeAutoNext(ctx, url, selector, maxPages))
	}
}

// pagesResult reports the pages gathered and why the walk stopped early,
// if it did.
type pagesResult struct {
	Pages   []*paginate.Page `json:"pages"`
	Stopped string           `json:"stopped,omitempty"`
}

func collectPages(seq iter.Seq2[*paginate.Page, error]) (*mcp.CallToolResult, error) {
	pages, err := paginate.Collect(seq)
	if err != nil && len(pages) == 0 {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out := pagesResult{Pages: pages}
	if out.Pages == nil {
		out.Pages = []*paginate.Page{}
	}
	if err != nil {
		out.Stopped = err.Error()
	}
	return jsonResult(out)
}

func handleExtractTable(sc *scraper.Scraper) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}
		selector := request.GetString("selector", extract.DefaultTableSelector)
		if err := extract.ValidateSelector(selector); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		res, err := sc.Get(ctx, url)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("fetch failed: %v", err)), nil
		}
		rows, err := extract.Table(res.Body, selector)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if rows == nil {
			return mcp.NewToolResultError("no table matches " + selector), nil
		}
		return jsonResult(rows)
	}
}

func handleSubmitForm(sc *scraper.Scraper) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}
		raw, err := request.RequireStringSlice("fields")
		if err != nil {
			return mcp.NewToolResultError("fields is required"), nil
		}
		form := make(engine.Form, 0, len(raw))
		for _, kv := range raw {
			name, value, ok := strings.Cut(kv, "=")
			if !ok || name == "" {
				return mcp.NewToolResultError(fmt.Sprintf("field %q is not name=value", kv)), nil
			}
			form = append(form, engine.Field{Name: name, Value: value})
		}

		res, err := sc.SubmitForm(ctx, url, form)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("submit failed: %v", err)), nil
		}
		text, err := extract.Convert(res.HTML(), res.URL, extract.FormatText)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Status: %d\n\n%s", res.StatusCode, text)), nil
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}
