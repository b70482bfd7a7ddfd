package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"checkinbot/internal/dispatch"
	"checkinbot/internal/metrics"
	"checkinbot/internal/replyindex"
	"checkinbot/internal/store"
	"checkinbot/internal/webhook"

	"github.com/spf13/cobra"
)

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Start the webhook gateway",
		Long:  "Starts the webhook server that receives inbound replies and pass triggers. Press Ctrl+C to stop.",
		RunE:  runGateway,
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recordStore, err := store.NewSQLiteStore(cfg.Store.DBPath, logger)
	if err != nil {
		return fmt.Errorf("record store: %w", err)
	}
	defer recordStore.Close()

	dispatcher, err := buildDispatcher(cfg, recordStore)
	if err != nil {
		return err
	}

	correlator := dispatch.NewCorrelator(dispatch.CorrelatorConfig{
		Store:  recordStore,
		Sync:   buildPropagator(cfg),
		Logger: logger,
	})

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = metrics.Collector.Handler()
	}

	router := webhook.NewRouter(webhook.RouterConfig{
		Host:       cfg.Webhook.Host,
		Port:       cfg.Webhook.Port,
		Path:       cfg.Webhook.Path,
		Secret:     cfg.Webhook.Secret,
		Correlator: correlator,
		RunPass: func(passCtx context.Context) {
			report, err := dispatcher.SendAll(passCtx, cfg.Templates.Default)
			if err != nil {
				logger.Error("triggered pass failed", "err", err)
				return
			}
			notifyReport(cfg, report)
		},
		RebuildIndex: func(rebuildCtx context.Context) error {
			_, err := replyindex.Rebuild(rebuildCtx, recordStore, logger)
			return err
		},
		AutoRebuild: cfg.Dispatch.RebuildOnTrigger,
		Metrics:     metricsHandler,
		MetricsPath: cfg.Metrics.Endpoint,
		Logger:      logger,
	})

	logger.Info("gateway started. Press Ctrl+C to stop.", "version", version)
	return router.Start(ctx)
}
