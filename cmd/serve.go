// File: cmd/serve.go
package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/robit-man/web-scrape-service/internal/driver"
	"github.com/robit-man/web-scrape-service/internal/events"
	"github.com/robit-man/web-scrape-service/internal/frames"
	"github.com/robit-man/web-scrape-service/internal/gate"
	"github.com/robit-man/web-scrape-service/internal/observability"
	"github.com/robit-man/web-scrape-service/internal/ratelimit"
	"github.com/robit-man/web-scrape-service/internal/server"
	"github.com/robit-man/web-scrape-service/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the browser gateway HTTP service.",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()

		limiter := ratelimit.New(cfg.Limits().RateLimitRate, cfg.Limits().RateLimitBurst,
			cfg.Limits().BucketIdleTTL, logger)
		g := gate.New(cfg.Limits().MaxConcurrency)
		bus := events.NewBus(logger, cfg.Events().BufferDepth)

		frameStore, err := frames.NewStore(cfg.Frames().Dir, cfg.Frames().TTL,
			cfg.Frames().SweepInterval, logger)
		if err != nil {
			return err
		}

		chrome := driver.NewChrome(cfg.Browser(), logger)
		manager := session.NewManager(chrome, g, bus, frameStore,
			cfg.Limits().QueueTimeout, logger)

		srv := server.New(cfg, logger, limiter, g, bus, manager, frameStore)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return srv.Start(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
