package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cybergodev/scorehider"
	"github.com/cybergodev/scorehider/internal/config"
	"github.com/cybergodev/scorehider/internal/logging"
	"github.com/cybergodev/scorehider/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the page session server",
		Long: `Run the HTTP server that hosts live page sessions.

Pages are posted to /api/v1/sessions and then driven by mutation, reveal and
command requests. Prometheus metrics are served on /metrics.

With settings.watch enabled the settings file is reloaded on change and
pushed to every live session.

Examples:
  scorehider serve --config /etc/scorehider/config.yaml
  SCOREHIDER_SERVER_PORT=9000 scorehider serve --settings settings.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			return runServe(cmd.Context(), root, cfg)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host, overriding server.host")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port, overriding server.port")
	return cmd
}

func runServe(ctx context.Context, root *rootOptions, cfg *config.Config) error {
	logger, err := logging.New(&cfg.Logging)
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	settings, err := root.settings(cfg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := scorehider.NewMetrics(reg)

	pc := cfg.ProcessorConfig()
	pc.Settings = settings
	pc.Logger = logger.Named("processor")
	pc.Metrics = metrics
	proc, err := scorehider.New(pc)
	if err != nil {
		return err
	}
	defer proc.Close()

	srv, err := server.NewServer(server.Options{
		Processor: proc,
		Logger:    logger.Named("server"),
		Registry:  reg,
		Metrics:   metrics,
		Settings:  settings,
	}, &server.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		MaxSessions: cfg.Sessions.MaxSessions,
		IdleTTL:     cfg.Sessions.IdleTTL,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Settings.Watch {
		go func() {
			err := config.WatchSettings(ctx, cfg.Settings.Path, logger.Named("settings"), func(s scorehider.Settings) {
				srv.BroadcastSettings(ctx, s)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("settings watcher stopped", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			srv.Close()
			return err
		}
		return nil
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}
