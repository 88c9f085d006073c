package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/use-agent/pagewalk/engine"
	"github.com/use-agent/pagewalk/extract"
	"github.com/use-agent/pagewalk/scraper"
)

var formOpts struct {
	fields []string
	format string
}

func init() {
	formCmd.Flags().StringArrayVar(&formOpts.fields, "field", nil, "form field as name=value, repeatable, sent in order")
	formCmd.Flags().StringVar(&formOpts.format, "format", string(extract.FormatText), "raw, html, markdown or text")
	formCmd.MarkFlagRequired("field")
	rootCmd.AddCommand(formCmd)
}

var formCmd = &cobra.Command{
	Use:   "form URL --field name=value...",
	Short: "Posts an urlencoded form and prints the response.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fields, err := parseFields(formOpts.fields)
		if err != nil {
			return err
		}
		format, err := extract.ParseFormat(formOpts.format)
		if err != nil {
			return err
		}
		return withScraper(func(sc *scraper.Scraper) error {
			res, err := sc.SubmitForm(cmd.Context(), args[0], fields)
			if err != nil {
				return err
			}
			out, err := extract.Convert(res.HTML(), res.URL, format)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "status %d\n", res.StatusCode)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		})
	},
}

// parseFields splits name=value pairs. Only the first "=" separates, so
// values may contain more.
func parseFields(raw []string) (engine.Form, error) {
	form := make(engine.Form, 0, len(raw))
	for _, kv := range raw {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("pagewalk: field %q is not name=value", kv)
		}
		form = append(form, engine.Field{Name: name, Value: value})
	}
	return form, nil
}
