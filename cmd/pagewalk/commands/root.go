// Package commands implements the pagewalk command line.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/use-agent/pagewalk/config"
	"github.com/use-agent/pagewalk/engine"
	"github.com/use-agent/pagewalk/scraper"
)

type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
	rpm        int
	interval   time.Duration
	backend    string
	noBrowser  bool
}

var (
	flags globalFlags
	cfg   *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "pagewalk",
	Short:         "pagewalk fetches pages, escalating to a headless browser when plain HTTP is blocked.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cfg = c
		initLogger(cfg.Log, cmd.ErrOrStderr())
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "configuration file (default: ./pagewalk.yaml, then the XDG config dir)")
	pf.StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error")
	pf.StringVar(&flags.logFormat, "log-format", "", "json or text")
	pf.IntVar(&flags.rpm, "rpm", 0, "maximum requests per minute")
	pf.DurationVar(&flags.interval, "interval", 0, "minimum gap between requests")
	pf.StringVar(&flags.backend, "browser", "", "browser backend: rod or chromedp")
	pf.BoolVar(&flags.noBrowser, "no-browser", false, "never escalate to a browser")
}

// ExecuteContext runs the command line and returns the process exit code.
func ExecuteContext(ctx context.Context) int {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// loadConfig resolves the configuration file and applies flags on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	c, err := config.Resolve(flags.configPath)
	if err != nil {
		return nil, err
	}
	pf := cmd.Flags()
	if pf.Changed("log-level") {
		c.Log.Level = flags.logLevel
	}
	if pf.Changed("log-format") {
		c.Log.Format = flags.logFormat
	}
	if pf.Changed("rpm") {
		c.Fetch.RequestsPerMinute = flags.rpm
	}
	if pf.Changed("interval") {
		c.Fetch.MinRequestInterval = flags.interval
	}
	if pf.Changed("browser") {
		c.Browser.Enabled = true
		c.Browser.Backend = flags.backend
	}
	if flags.noBrowser {
		c.Browser.Enabled = false
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// initLogger configures slog based on the LogConfig.
func initLogger(lc config.LogConfig, w io.Writer) {
	var level slog.Level
	switch lc.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if lc.Format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	slog.SetDefault(slog.New(handler))
}

func newScraper() (*scraper.Scraper, error) {
	return scraper.New(cfg, scraper.WithLogger(slog.Default()))
}

// withScraper runs fn with a scraper that is closed afterwards.
func withScraper(fn func(sc *scraper.Scraper) error) error {
	sc, err := newScraper()
	if err != nil {
		return err
	}
	defer func() {
		if err := sc.Close(); err != nil {
			slog.Warn("pagewalk: close scraper", "error", err)
		}
	}()
	return fn(sc)
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

func hintFlag(cmd *cobra.Command) engine.Hint {
	// Validated in PreRunE of every command that registers the flag.
	s, _ := cmd.Flags().GetString("hint")
	h, _ := engine.ParseHint(s)
	return h
}

func addHintFlag(cmd *cobra.Command) {
	cmd.Flags().String("hint", string(engine.HintAuto), "auto, http-only or browser-only")
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		s, _ := cmd.Flags().GetString("hint")
		_, err := engine.ParseHint(s)
		return err
	}
}
