package commands

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/use-agent/pagewalk/engine"
	"github.com/use-agent/pagewalk/export"
	"github.com/use-agent/pagewalk/extract"
	"github.com/use-agent/pagewalk/scraper"
)

var fetchOpts struct {
	format   string
	selector string
	out      string
}

func init() {
	fetchCmd.Flags().StringVar(&fetchOpts.format, "format", string(extract.FormatMarkdown), "raw, html, markdown or text")
	fetchCmd.Flags().StringVar(&fetchOpts.selector, "selector", "", "print the text of every match instead of the page")
	fetchCmd.Flags().StringVarP(&fetchOpts.out, "output", "o", "", "write to this file instead of stdout")
	addHintFlag(fetchCmd)
	rootCmd.AddCommand(fetchCmd)
}

var fetchCmd = &cobra.Command{
	Use:   "fetch URL [--hint auto] [--format markdown] [--selector S] [-o file]",
	Short: "Fetches one page and prints it in the requested format.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := extract.ParseFormat(fetchOpts.format)
		if err != nil {
			return err
		}
		if fetchOpts.selector != "" {
			if err := extract.ValidateSelector(fetchOpts.selector); err != nil {
				return err
			}
		}
		hint := hintFlag(cmd)

		return withScraper(func(sc *scraper.Scraper) error {
			res, err := sc.Get(cmd.Context(), args[0], engine.WithHint(hint))
			if err != nil {
				return err
			}
			slog.Info("pagewalk: fetched",
				"url", res.URL,
				"status", res.StatusCode,
				"strategy", res.Strategy,
				"latency", res.Latency,
			)

			var out string
			if fetchOpts.selector != "" {
				items, err := sc.Extract(res, fetchOpts.selector)
				if err != nil {
					return err
				}
				out = strings.Join(items, "\n")
			} else if out, err = extract.Convert(res.HTML(), res.URL, format); err != nil {
				return err
			}

			if fetchOpts.out != "" {
				return export.SaveBytes(fetchOpts.out, []byte(out))
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		})
	},
}
