package commands

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/use-agent/pagewalk/engine"
	"github.com/use-agent/pagewalk/export"
	"github.com/use-agent/pagewalk/extract"
	"github.com/use-agent/pagewalk/scraper"
)

var tableOpts struct {
	selector string
	csv      string
}

func init() {
	tableCmd.Flags().StringVar(&tableOpts.selector, "selector", extract.DefaultTableSelector, "CSS selector of the table")
	tableCmd.Flags().StringVar(&tableOpts.csv, "csv", "", "write the grid to this CSV file")
	addHintFlag(tableCmd)
	rootCmd.AddCommand(tableCmd)
}

var tableCmd = &cobra.Command{
	Use:   "table URL [--selector table.wikitable] [--csv out.csv]",
	Short: "Flattens the largest matching table, spans expanded, into a grid.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := extract.ValidateSelector(tableOpts.selector); err != nil {
			return err
		}
		hint := hintFlag(cmd)
		return withScraper(func(sc *scraper.Scraper) error {
			res, err := sc.Get(cmd.Context(), args[0], engine.WithHint(hint))
			if err != nil {
				return err
			}
			rows, err := extract.Table(res.Body, tableOpts.selector)
			if err != nil {
				return err
			}
			if rows == nil {
				return errNoTable(tableOpts.selector)
			}
			renderGrid(newTable(cmd.OutOrStdout()), rows)
			if tableOpts.csv != "" {
				return export.WriteCSV(tableOpts.csv, rows)
			}
			return nil
		})
	},
}

// renderGrid uses the first row as the header.
func renderGrid(t table.Writer, rows [][]string) {
	for i, r := range rows {
		row := make(table.Row, len(r))
		for j, cell := range r {
			row[j] = cell
		}
		if i == 0 {
			t.AppendHeader(row)
			continue
		}
		t.AppendRow(row)
	}
	t.Render()
}

type errNoTable string

func (e errNoTable) Error() string { return "no table matches " + string(e) }
