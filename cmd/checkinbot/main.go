package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"checkinbot/internal/config"
	"checkinbot/internal/dispatch"
	"checkinbot/internal/docsync"
	"checkinbot/internal/notify"
	"checkinbot/internal/replyindex"
	"checkinbot/internal/store"
	"checkinbot/internal/template"
	"checkinbot/internal/transport"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "checkinbot",
		Short: "checkinbot: broadcast check-in dispatcher with reply correlation",
		Long:  "checkinbot sends templated WhatsApp check-ins to a phone roster, correlates inbound replies via a normalized-phone index, and mirrors updates to a document store.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.checkinbot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(gatewayCmd())
	root.AddCommand(sendCmd())
	root.AddCommand(rebuildCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(contactsCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, err
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.General.LogLevel)}))
	return cfg, nil
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config and template directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			if err := os.MkdirAll(config.ExpandPath(cfg.Templates.Dir), 0o755); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "templates", cfg.Templates.Dir)
			return nil
		},
	}
}

func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send [template]",
		Short: "Run one outbound pass now",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			recordStore, err := store.NewSQLiteStore(cfg.Store.DBPath, logger)
			if err != nil {
				return fmt.Errorf("record store: %w", err)
			}
			defer recordStore.Close()

			dispatcher, err := buildDispatcher(cfg, recordStore)
			if err != nil {
				return err
			}

			templateID := cfg.Templates.Default
			if len(args) == 1 {
				templateID = args[0]
			}

			ctx := cmd.Context()
			if cfg.Dispatch.RebuildOnTrigger {
				if _, err := replyindex.Rebuild(ctx, recordStore, logger); err != nil {
					return fmt.Errorf("rebuild index: %w", err)
				}
			}

			report, err := dispatcher.SendAll(ctx, templateID)
			if err != nil {
				return err
			}
			notifyReport(cfg, report)
			fmt.Println(report)
			return nil
		},
	}
}

func rebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild and persist the reply index",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			recordStore, err := store.NewSQLiteStore(cfg.Store.DBPath, logger)
			if err != nil {
				return fmt.Errorf("record store: %w", err)
			}
			defer recordStore.Close()

			idx, err := replyindex.Rebuild(cmd.Context(), recordStore, logger)
			if err != nil {
				return err
			}
			fmt.Printf("reply index rebuilt: %d entries\n", len(idx.Entries))
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show config, roster, and index status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false, "err", err)
				return nil
			}
			logger.Info("config", "path", cfgPath, "loaded", true)

			recordStore, err := store.NewSQLiteStore(cfg.Store.DBPath, logger)
			if err != nil {
				logger.Info("store", "reachable", false, "err", err)
				return nil
			}
			defer recordStore.Close()

			ctx := cmd.Context()
			contacts, err := recordStore.ListAll(ctx)
			if err != nil {
				logger.Info("store", "reachable", false, "err", err)
				return nil
			}
			logger.Info("store", "reachable", true, "contacts", len(contacts))

			idx, err := replyindex.Load(ctx, recordStore)
			switch {
			case err != nil:
				logger.Info("reply index", "readable", false, "err", err)
			case idx == nil:
				logger.Info("reply index", "present", false)
			default:
				logger.Info("reply index", "present", true, "entries", len(idx.Entries), "built_at", idx.BuiltAt)
			}
			return nil
		},
	}
}

// buildDispatcher wires the transport, template registry, and optional
// document sync into a Dispatcher.
func buildDispatcher(cfg *config.Config, recordStore *store.SQLiteStore) (*dispatch.Dispatcher, error) {
	templates, err := template.LoadFromDirectory(cfg.Templates.Dir, logger)
	if err != nil {
		return nil, fmt.Errorf("templates: %w", err)
	}

	wa := transport.NewWhatsApp(transport.WhatsAppTransportConfig{
		Config:    cfg.WhatsApp,
		Templates: templates,
		Logger:    logger,
	})

	return dispatch.NewDispatcher(dispatch.DispatcherConfig{
		Store:      recordStore,
		Transport:  wa,
		Sync:       buildPropagator(cfg),
		BatchSize:  cfg.Dispatch.BatchSize,
		BatchDelay: time.Duration(cfg.Dispatch.BatchDelaySeconds) * time.Second,
		Logger:     logger,
	}), nil
}

func buildPropagator(cfg *config.Config) *docsync.Propagator {
	if !cfg.DocSync.Enabled {
		return nil
	}
	return docsync.NewPropagator(docsync.PropagatorConfig{
		Docs: docsync.NewHTTPDocumentStore(docsync.HTTPDocumentStoreConfig{
			BaseURL:   cfg.DocSync.BaseURL,
			AuthToken: cfg.DocSync.AuthToken,
		}),
		Logger: logger,
	})
}

// notifyReport pushes the aggregate pass report to the operator chat when
// notification is configured.
func notifyReport(cfg *config.Config, report dispatch.Report) {
	if cfg.Notify.TelegramToken == "" {
		return
	}
	notifier, err := notify.NewTelegram(notify.TelegramNotifierConfig{
		Token:  cfg.Notify.TelegramToken,
		ChatID: cfg.Notify.TelegramChatID,
		Logger: logger,
	})
	if err != nil {
		logger.Warn("telegram notifier unavailable", "err", err)
		return
	}
	notifier.PassReport(report.String())
}
