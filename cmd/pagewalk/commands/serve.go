package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/use-agent/pagewalk/api"
	"github.com/use-agent/pagewalk/api/handler"
	"github.com/use-agent/pagewalk/api/middleware"
	"github.com/use-agent/pagewalk/cache"
)

var serveOpts struct {
	host string
	port int
}

func init() {
	serveCmd.Flags().StringVar(&serveOpts.host, "host", "", "listen address (default from config)")
	serveCmd.Flags().IntVar(&serveOpts.port, "port", 0, "listen port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve [--host 0.0.0.0] [--port 8080]",
	Short: "Serves the HTTP API until interrupted.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveOpts.host != "" {
			cfg.Server.Host = serveOpts.host
		}
		if serveOpts.port != 0 {
			cfg.Server.Port = serveOpts.port
		}
		if cfg.Auth.Enabled && len(cfg.Auth.APIKeys) == 0 {
			slog.Warn("pagewalk: auth enabled without API keys, access is open")
		}

		slog.Info("pagewalk: starting",
			"host", cfg.Server.Host,
			"port", cfg.Server.Port,
			"mode", cfg.Server.Mode,
			"browser", cfg.Browser.Enabled,
			"backend", cfg.Browser.Backend,
		)

		sc, err := newScraper()
		if err != nil {
			return fmt.Errorf("pagewalk: init scraper: %w", err)
		}
		defer sc.Close()

		cc := cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)
		defer cc.Close()
		jobs := handler.NewJobStore(handler.JobTTL)
		defer jobs.Close()
		rl := middleware.NewLimiter(cfg.RateLimit)
		defer rl.Close()

		router := api.NewRouter(cfg, api.Deps{Scraper: sc, Cache: cc, Jobs: jobs, Limiter: rl, Started: time.Now()})
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		srv := &http.Server{
			Addr:    addr,
			Handler: router,
		}

		errc := make(chan error, 1)
		go func() {
			slog.Info("pagewalk: HTTP server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
			close(errc)
		}()

		select {
		case err := <-errc:
			return fmt.Errorf("pagewalk: HTTP server: %w", err)
		case <-cmd.Context().Done():
			slog.Info("pagewalk: shutdown signal received")
		}

		// In-flight requests get 5 seconds to complete.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("pagewalk: HTTP server forced shutdown", "error", err)
		} else {
			slog.Info("pagewalk: HTTP server drained gracefully")
		}
		// sc.Close runs via defer and stops the browser.
		return nil
	},
}
