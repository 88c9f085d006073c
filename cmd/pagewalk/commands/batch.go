package commands

import (
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/use-agent/pagewalk/engine"
	"github.com/use-agent/pagewalk/export"
	"github.com/use-agent/pagewalk/scraper"
)

var batchOpts struct {
	workers int
	json    string
}

func init() {
	batchCmd.Flags().IntVar(&batchOpts.workers, "workers", 4, "fetches in flight")
	batchCmd.Flags().StringVar(&batchOpts.json, "json", "", "also write the outcomes to this JSON file")
	addHintFlag(batchCmd)
	rootCmd.AddCommand(batchCmd)
}

// batchRecord is one outcome as written to --json.
type batchRecord struct {
	URL      string `json:"url"`
	Status   int    `json:"status,omitempty"`
	Strategy string `json:"strategy,omitempty"`
	Title    string `json:"title,omitempty"`
	Error    string `json:"error,omitempty"`
}

var batchCmd = &cobra.Command{
	Use:   "batch URL... [--workers 4] [--json out.json]",
	Short: "Fetches many pages in parallel and reports each outcome in input order.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hint := hintFlag(cmd)
		reqs := make([]engine.Request, len(args))
		for i, u := range args {
			var err error
			if reqs[i], err = engine.NewRequest(u, engine.WithHint(hint)); err != nil {
				return err
			}
		}

		return withScraper(func(sc *scraper.Scraper) error {
			outcomes, err := sc.FetchAll(cmd.Context(), reqs, batchOpts.workers)
			if err != nil {
				return err
			}

			records := make([]batchRecord, len(outcomes))
			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"#", "URL", "Status", "Strategy", "Title / Error"})
			for i, o := range outcomes {
				rec := batchRecord{URL: reqs[i].URL}
				if o.OK() {
					rec.Status = o.Result.StatusCode
					rec.Strategy = string(o.Result.Strategy)
					rec.Title = o.Result.Title()
				} else {
					rec.Error = o.Err.Error()
				}
				records[i] = rec
				t.AppendRow(table.Row{i, rec.URL, statusCell(rec.Status), rec.Strategy, rec.Title + rec.Error})
			}
			t.Render()

			if batchOpts.json != "" {
				return export.WriteJSON(batchOpts.json, records)
			}
			return nil
		})
	},
}

func statusCell(code int) string {
	if code == 0 {
		return "-"
	}
	return strconv.Itoa(code)
}
