package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Dispatch: DispatchConfig{
			BatchSize:         10,
			BatchDelaySeconds: 1,
			RebuildOnTrigger:  true,
		},
		Webhook: WebhookConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Path: "/webhook",
		},
		Store: StoreConfig{
			DBPath: "~/.checkinbot/roster.db",
		},
		Templates: TemplatesConfig{
			Dir:     "~/.checkinbot/templates",
			Default: "checkin",
		},
		DocSync: DocSyncConfig{
			Enabled: false,
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}
