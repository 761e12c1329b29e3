package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ChildAccount configures one replicating account.
type ChildAccount struct {
	ID          string  `yaml:"id"`
	APIKey      string  `yaml:"api_key"`
	AccessToken string  `yaml:"access_token"`
	Available   float64 `yaml:"available"`
	MaxCap      float64 `yaml:"max_cap"` // 0 = uncapped
}

// Config holds all application configuration.
type Config struct {
	Broker struct {
		BaseURL           string `yaml:"base_url"`
		MasterID          string `yaml:"master_id"`
		MasterAPIKey      string `yaml:"master_api_key"`
		MasterAccessToken string `yaml:"master_access_token"`
		TimeoutSec        int    `yaml:"timeout_sec"`
		MaxRetries        int    `yaml:"max_retries"`
		Exchange          string `yaml:"exchange"`
		// ExchangeOverrides routes specific instruments to another
		// exchange segment (e.g. index futures to NFO).
		ExchangeOverrides map[string]string `yaml:"exchange_overrides"`
	} `yaml:"broker"`
	Children []ChildAccount `yaml:"children"`
	Poll     struct {
		Cron             string  `yaml:"cron"`               // seconds-capable cron spec
		GraceWindowSec   int     `yaml:"grace_window_sec"`   // flat suppression after an entry
		DebounceTicks    int     `yaml:"debounce_ticks"`     // margin-without-order deferrals
		MinMarginDelta   float64 `yaml:"min_margin_delta"`   // ignore smaller margin moves
		SessionResetCron string  `yaml:"session_reset_cron"` // order-id cache reset at day roll
		EODAuditCron     string  `yaml:"eod_audit_cron"`     // end-of-day flat audit
	} `yaml:"poll"`
	Lots struct {
		Default   int64            `yaml:"default"`
		Overrides map[string]int64 `yaml:"overrides"`
	} `yaml:"lots"`
	State struct {
		File string `yaml:"file"`
	} `yaml:"state"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	DryRun   bool   `yaml:"dry_run"`
	LogLevel string `yaml:"log_level"`
	Proxy    string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("KITE_BASE_URL"); v != "" {
		cfg.Broker.BaseURL = v
	}
	if v := os.Getenv("MASTER_ID"); v != "" {
		cfg.Broker.MasterID = v
	}
	if v := os.Getenv("MASTER_API_KEY"); v != "" {
		cfg.Broker.MasterAPIKey = v
	}
	if v := os.Getenv("MASTER_ACCESS_TOKEN"); v != "" {
		cfg.Broker.MasterAccessToken = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("STATE_FILE"); v != "" {
		cfg.State.File = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("POLL_CRON"); v != "" {
		cfg.Poll.Cron = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("DRY_RUN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.DryRun = b
		}
	}

	// Defaults
	if cfg.Broker.BaseURL == "" {
		cfg.Broker.BaseURL = "https://api.kite.trade"
	}
	if cfg.Broker.TimeoutSec == 0 {
		cfg.Broker.TimeoutSec = 10
	}
	if cfg.Broker.MaxRetries == 0 {
		cfg.Broker.MaxRetries = 3
	}
	if cfg.Broker.Exchange == "" {
		cfg.Broker.Exchange = "NSE"
	}
	if cfg.Poll.Cron == "" {
		cfg.Poll.Cron = "*/5 * * * * *"
	}
	if cfg.Poll.GraceWindowSec == 0 {
		cfg.Poll.GraceWindowSec = 10
	}
	if cfg.Poll.DebounceTicks == 0 {
		cfg.Poll.DebounceTicks = 3
	}
	if cfg.Poll.MinMarginDelta == 0 {
		cfg.Poll.MinMarginDelta = 500
	}
	if cfg.Poll.SessionResetCron == "" {
		// Kite order IDs reset with the trading day.
		cfg.Poll.SessionResetCron = "0 0 6 * * *"
	}
	if cfg.Poll.EODAuditCron == "" {
		cfg.Poll.EODAuditCron = "0 45 15 * * 1-5"
	}
	if cfg.Lots.Default == 0 {
		cfg.Lots.Default = 1
	}
	if cfg.State.File == "" {
		cfg.State.File = "data/strategy_state.json"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.Broker.MasterID == "" {
		return fmt.Errorf("broker.master_id is required")
	}
	if c.Broker.MasterAPIKey == "" {
		return fmt.Errorf("broker.master_api_key is required")
	}
	if len(c.Children) == 0 {
		return fmt.Errorf("at least one child account is required")
	}
	for i, ch := range c.Children {
		if ch.ID == "" {
			return fmt.Errorf("children[%d].id is required", i)
		}
		if ch.ID == c.Broker.MasterID {
			return fmt.Errorf("children[%d]: child cannot be the master account", i)
		}
		if ch.Available <= 0 {
			return fmt.Errorf("children[%d].available must be positive", i)
		}
		if ch.MaxCap < 0 {
			return fmt.Errorf("children[%d].max_cap cannot be negative", i)
		}
	}
	if c.Lots.Default <= 0 {
		return fmt.Errorf("lots.default must be positive")
	}
	for instr, lot := range c.Lots.Overrides {
		if lot <= 0 {
			return fmt.Errorf("lots.overrides[%s] must be positive", instr)
		}
	}
	return nil
}
