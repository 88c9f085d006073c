package commands

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/use-agent/pagewalk/export"
	"github.com/use-agent/pagewalk/paginate"
	"github.com/use-agent/pagewalk/scraper"
)

type pageOutput struct {
	selector string
	csv      string
	json     string
}

var (
	pagesOpts struct {
		pageOutput
		count int
	}
	nextOpts struct {
		pageOutput
		maxPages int
	}
)

func init() {
	pagesCmd.Flags().IntVar(&pagesOpts.count, "count", 0, "number of pages, substituted for {} as 1..count")
	bindPageOutput(pagesCmd, &pagesOpts.pageOutput)
	pagesCmd.MarkFlagRequired("count")
	rootCmd.AddCommand(pagesCmd)

	nextCmd.Flags().IntVar(&nextOpts.maxPages, "max-pages", 0, "stop after this many pages (default from config)")
	bindPageOutput(nextCmd, &nextOpts.pageOutput)
	rootCmd.AddCommand(nextCmd)
}

func bindPageOutput(cmd *cobra.Command, o *pageOutput) {
	cmd.Flags().StringVar(&o.selector, "selector", "", "CSS selector of the items to collect")
	cmd.Flags().StringVar(&o.csv, "csv", "", "write page,url,item rows to this CSV file")
	cmd.Flags().StringVar(&o.json, "json", "", "write the pages to this JSON file")
	cmd.MarkFlagRequired("selector")
}

var pagesCmd = &cobra.Command{
	Use:   "pages TEMPLATE --count N --selector S [--csv out.csv | --json out.json]",
	Short: "Walks a URL template with a {} page placeholder and collects items from every page.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withScraper(func(sc *scraper.Scraper) error {
			seq := sc.ScrapePages(cmd.Context(), args[0], pagesOpts.count, pagesOpts.selector)
			return runPages(cmd.OutOrStdout(), seq, pagesOpts.pageOutput)
		})
	},
}

var nextCmd = &cobra.Command{
	Use:   "next URL --selector S [--max-pages N]",
	Short: "Follows next links from URL and collects items until the chain ends.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withScraper(func(sc *scraper.Scraper) error {
			seq := sc.ScrapeAutoNext(cmd.Context(), args[0], nextOpts.selector, nextOpts.maxPages)
			return runPages(cmd.OutOrStdout(), seq, nextOpts.pageOutput)
		})
	},
}

// runPages prints items as they arrive and exports what was collected. A
// traversal that stops on a cycle or on repeated content still exports the
// pages gathered before it.
func runPages(w io.Writer, seq iter.Seq2[*paginate.Page, error], o pageOutput) error {
	var (
		pages   []*paginate.Page
		stopErr error
	)
	for page, err := range seq {
		if err != nil {
			stopErr = err
			break
		}
		pages = append(pages, page)
		for _, item := range page.Items {
			fmt.Fprintf(w, "%d\t%s\n", page.Index, item)
		}
	}

	var pe *paginate.PaginationError
	if errors.As(stopErr, &pe) {
		slog.Warn("pagewalk: traversal stopped", "reason", pe.Kind, "url", pe.URL, "page", pe.Page)
		stopErr = nil
	}

	if o.csv != "" {
		rows := [][]string{{"page", "url", "item"}}
		for _, p := range pages {
			for _, item := range p.Items {
				rows = append(rows, []string{strconv.Itoa(p.Index), p.URL, item})
			}
		}
		if err := export.WriteCSV(o.csv, rows); err != nil {
			return errors.Join(stopErr, err)
		}
	}
	if o.json != "" {
		if err := export.WriteJSON(o.json, pages); err != nil {
			return errors.Join(stopErr, err)
		}
	}
	return stopErr
}
