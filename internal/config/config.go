package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for checkinbot.
type Config struct {
	General   GeneralConfig   `json:"general"`
	Dispatch  DispatchConfig  `json:"dispatch"`
	Webhook   WebhookConfig   `json:"webhook"`
	WhatsApp  WhatsAppConfig  `json:"whatsapp"`
	Store     StoreConfig     `json:"store"`
	Templates TemplatesConfig `json:"templates"`
	DocSync   DocSyncConfig   `json:"docSync"`
	Notify    NotifyConfig    `json:"notify"`
	Metrics   MetricsConfig   `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel"` // "debug" | "info" | "warn" | "error"
}

// DispatchConfig paces the outbound pass against the transport's rate limit.
type DispatchConfig struct {
	BatchSize         int  `json:"batchSize"`         // sends per batch (default: 10)
	BatchDelaySeconds int  `json:"batchDelaySeconds"` // pause between batches (default: 1)
	RebuildOnTrigger  bool `json:"rebuildOnTrigger"`  // rebuild the reply index before a triggered pass
}

type WebhookConfig struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Path   string `json:"path"`             // webhook URL path (default: /webhook)
	Secret string `json:"secret,omitempty"` // HMAC secret for verifying webhook signatures
}

type WhatsAppConfig struct {
	AccessToken   string `json:"accessToken,omitempty"`
	PhoneNumberID string `json:"phoneNumberId,omitempty"`
	APIBase       string `json:"apiBase,omitempty"` // override for testing
}

type StoreConfig struct {
	DBPath string `json:"dbPath"`
}

type TemplatesConfig struct {
	Dir     string `json:"dir"`
	Default string `json:"default"` // template used when a pass names none
}

type DocSyncConfig struct {
	Enabled   bool   `json:"enabled"`
	BaseURL   string `json:"baseUrl,omitempty"`
	AuthToken string `json:"authToken,omitempty"`
}

// NotifyConfig configures the optional operator pass-report notification.
type NotifyConfig struct {
	TelegramToken  string `json:"telegramToken,omitempty"`
	TelegramChatID string `json:"telegramChatId,omitempty"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.checkinbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".checkinbot"
	}
	return filepath.Join(home, ".checkinbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Store.DBPath = ExpandPath(cfg.Store.DBPath)
	cfg.Templates.Dir = ExpandPath(cfg.Templates.Dir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Dispatch.BatchSize < 1 || cfg.Dispatch.BatchSize > 1000 {
		errs = append(errs, "dispatch.batchSize must be between 1 and 1000")
	}
	if cfg.Dispatch.BatchDelaySeconds < 0 {
		errs = append(errs, "dispatch.batchDelaySeconds must be >= 0")
	}

	if cfg.Webhook.Port < 0 || cfg.Webhook.Port > 65535 {
		errs = append(errs, "webhook.port must be between 0 and 65535")
	}
	if cfg.Webhook.Path != "" && !strings.HasPrefix(cfg.Webhook.Path, "/") {
		errs = append(errs, "webhook.path must start with /")
	}

	if cfg.Store.DBPath == "" {
		errs = append(errs, "store.dbPath is required")
	}

	if cfg.DocSync.Enabled && cfg.DocSync.BaseURL == "" {
		errs = append(errs, "docSync.baseUrl is required when docSync is enabled")
	}

	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID == "" {
		errs = append(errs, "notify.telegramChatId is required when notify.telegramToken is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
