package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Broker.BaseURL != "https://api.kite.trade" {
		t.Errorf("base url = %q", cfg.Broker.BaseURL)
	}
	if cfg.Poll.Cron != "*/5 * * * * *" {
		t.Errorf("poll cron = %q", cfg.Poll.Cron)
	}
	if cfg.Poll.GraceWindowSec != 10 {
		t.Errorf("grace window = %d, want 10", cfg.Poll.GraceWindowSec)
	}
	if cfg.Poll.DebounceTicks != 3 {
		t.Errorf("debounce ticks = %d, want 3", cfg.Poll.DebounceTicks)
	}
	if cfg.Poll.MinMarginDelta != 500 {
		t.Errorf("min margin delta = %v, want 500", cfg.Poll.MinMarginDelta)
	}
	if cfg.Lots.Default != 1 {
		t.Errorf("default lot = %d, want 1", cfg.Lots.Default)
	}
	if cfg.State.File != "data/strategy_state.json" {
		t.Errorf("state file = %q", cfg.State.File)
	}
}

func TestLoad_YAMLAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
broker:
  master_id: ZM0001
  master_api_key: key1
children:
  - id: ZC0001
    api_key: key2
    access_token: tok2
    available: 300000
lots:
  default: 1
  overrides:
    NIFTY24AUGFUT: 65
dry_run: true
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("MASTER_ACCESS_TOKEN", "tok-from-env")
	t.Setenv("POLL_CRON", "*/10 * * * * *")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Broker.MasterID != "ZM0001" {
		t.Errorf("master id = %q", cfg.Broker.MasterID)
	}
	if cfg.Broker.MasterAccessToken != "tok-from-env" {
		t.Errorf("access token = %q, want env override", cfg.Broker.MasterAccessToken)
	}
	if cfg.Poll.Cron != "*/10 * * * * *" {
		t.Errorf("poll cron = %q, want env override", cfg.Poll.Cron)
	}
	if !cfg.DryRun {
		t.Error("dry_run should be true")
	}
	if cfg.Lots.Overrides["NIFTY24AUGFUT"] != 65 {
		t.Errorf("lot override = %d, want 65", cfg.Lots.Overrides["NIFTY24AUGFUT"])
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		cfg.Broker.MasterID = "ZM0001"
		cfg.Broker.MasterAPIKey = "key1"
		cfg.Children = []ChildAccount{{ID: "ZC0001", Available: 300000}}
		cfg.Lots.Default = 1
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"missing master id", func(c *Config) { c.Broker.MasterID = "" }, "master_id"},
		{"missing api key", func(c *Config) { c.Broker.MasterAPIKey = "" }, "master_api_key"},
		{"no children", func(c *Config) { c.Children = nil }, "child account"},
		{"child is master", func(c *Config) { c.Children[0].ID = "ZM0001" }, "master account"},
		{"zero available", func(c *Config) { c.Children[0].Available = 0 }, "available"},
		{"negative cap", func(c *Config) { c.Children[0].MaxCap = -1 }, "max_cap"},
		{"bad default lot", func(c *Config) { c.Lots.Default = 0 }, "lots.default"},
		{"bad lot override", func(c *Config) { c.Lots.Overrides = map[string]int64{"A": -5} }, "lots.overrides"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}
