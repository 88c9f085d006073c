package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/use-agent/pagewalk/scraper"
)

var imagesDir string

func init() {
	rootCmd.AddCommand(downloadCmd)
	imagesCmd.Flags().StringVar(&imagesDir, "dir", "images", "folder to save images into")
	rootCmd.AddCommand(imagesCmd)
}

var downloadCmd = &cobra.Command{
	Use:   "download URL DEST",
	Short: "Streams a file to DEST, creating directories as needed.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withScraper(func(sc *scraper.Scraper) error {
			n, err := sc.Download(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d bytes\n", args[1], n)
			return nil
		})
	},
}

var imagesCmd = &cobra.Command{
	Use:   "images URL [--dir images]",
	Short: "Saves every image a page references as img_<n>.<ext>.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withScraper(func(sc *scraper.Scraper) error {
			res, err := sc.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			saved, err := sc.DownloadImages(cmd.Context(), res, imagesDir)
			for _, p := range saved {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			if err != nil && len(saved) > 0 {
				return fmt.Errorf("pagewalk: %d image(s) saved, some failed: %w", len(saved), err)
			}
			if err == nil && len(saved) == 0 {
				return errors.New("pagewalk: page references no images")
			}
			return err
		})
	},
}
