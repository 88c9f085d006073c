package commands

import (
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/use-agent/pagewalk/extract"
	"github.com/use-agent/pagewalk/scraper"
)

func init() {
	rootCmd.AddCommand(selectorsCmd)
}

var selectorsCmd = &cobra.Command{
	Use:   "selectors URL",
	Short: "Lists the distinct tags, ids and classes of a page to help pick a selector.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withScraper(func(sc *scraper.Scraper) error {
			res, err := sc.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			inv, err := extract.Selectors(res.Body)
			if err != nil {
				return err
			}
			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Kind", "Values"})
			t.AppendRow(table.Row{"tags", strings.Join(inv.Tags, " ")})
			t.AppendRow(table.Row{"ids", strings.Join(prefixed("#", inv.IDs), " ")})
			t.AppendRow(table.Row{"classes", strings.Join(prefixed(".", inv.Classes), " ")})
			t.Render()
			return nil
		})
	},
}

func prefixed(p string, names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = p + n
	}
	return out
}
