package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"leadscout/internal/api"
	"leadscout/internal/browser"
	"leadscout/internal/config"
	"leadscout/internal/logging"
	"leadscout/internal/telemetry"

	// Lead dates are computed in Australia/Adelaide; slim images ship no zoneinfo.
	_ "time/tzdata"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Starts the HTTP API on HOST:PORT (default 0.0.0.0:10000).

Routes:
  GET  /health         liveness
  POST /scrape         scrape, enrich and store leads
  GET  /leads          list leads (role, town, state filters)
  GET  /metrics        lead counts
  GET  /leads/export   CSV download
  POST /ingest         extract a lead from a forwarded email`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	boot := logging.For(logger, logging.CategoryBoot)

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.Endpoint)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			boot.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	if !cfg.Browser.Disabled && cfg.Browser.InstallOnStart {
		installBrowser(ctx, cfg, boot)
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), cfg.GetShutdownTimeout())
		defer cancel()
		if err := a.close(cctx); err != nil {
			boot.Warn("cleanup failed", zap.Error(err))
		}
	}()

	srv := newServer(cfg, a, logger)
	boot.Info("leadscout starting",
		zap.String("addr", cfg.ListenAddr()),
		zap.Bool("store", a.store != nil),
		zap.Bool("ingest", a.pipeline.IngestEnabled()),
		zap.Bool("browser_fallback", a.browser != nil))
	return srv.Run(ctx)
}

func newServer(c *config.Config, a *app, logger *zap.Logger) *api.Server {
	h := api.NewHandlers(a.pipeline, a.pipeline.Store())
	router := api.NewRouter(h, c.Server.CORSOrigins, logger)
	return api.NewServer(api.ServerConfig{
		Addr:            c.ListenAddr(),
		ReadTimeout:     c.GetReadTimeout(),
		WriteTimeout:    c.GetWriteTimeout(),
		ShutdownTimeout: c.GetShutdownTimeout(),
	}, router, logger)
}

// installBrowser makes sure a Chromium binary is present. Failure is logged
// and startup continues.
func installBrowser(ctx context.Context, c *config.Config, l *zap.Logger) {
	ictx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	bin, err := browser.NewManager(browserConfig(c), logger).Install(ictx)
	if err != nil {
		l.Warn("browser install failed; continuing without a verified browser", zap.Error(err))
		return
	}
	l.Info("browser available", zap.String("bin", bin))
}
