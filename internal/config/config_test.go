package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d, want 8080", cfg.Server.Port)
	}
	if len(cfg.Market.Underlyings) == 0 {
		t.Errorf("default config should have at least one underlying")
	}
	if cfg.Flow.Window != 15*time.Minute {
		t.Errorf("default flow window = %v, want 15m", cfg.Flow.Window)
	}
	if cfg.Bias.NoTradeBand != 8 {
		t.Errorf("default no-trade band = %v, want 8", cfg.Bias.NoTradeBand)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing config file should not error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected defaults on missing file, got port %d", cfg.Server.Port)
	}
}

func TestLoadYAMLOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  port: 9090
market:
  underlyings: [QQQ, IWM]
  poll_interval: 10000000000
bias:
  no_trade_band: 12
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if len(cfg.Market.Underlyings) != 2 || cfg.Market.Underlyings[0] != "QQQ" {
		t.Errorf("underlyings = %v", cfg.Market.Underlyings)
	}
	if cfg.Market.PollInterval != 10*time.Second {
		t.Errorf("poll interval = %v, want 10s", cfg.Market.PollInterval)
	}
	if cfg.Bias.NoTradeBand != 12 {
		t.Errorf("no-trade band = %v, want 12", cfg.Bias.NoTradeBand)
	}
	// Untouched sections keep their defaults
	if cfg.Flow.BurstFloorUSD != 25_000 {
		t.Errorf("burst floor = %v, want default 25000", cfg.Flow.BurstFloorUSD)
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Errorf("malformed yaml should error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GEXFLOW_SERVER_PORT", "7070")
	t.Setenv("GEXFLOW_REDIS_ENABLED", "true")
	t.Setenv("GEXFLOW_LOG_LEVEL", "debug")
	t.Setenv("GEXFLOW_UNDERLYINGS", " spy, qqq ,")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d, want 7070", cfg.Server.Port)
	}
	if !cfg.Redis.Enabled {
		t.Errorf("redis should be enabled via env")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %s, want debug", cfg.Logging.Level)
	}
	want := []string{"SPY", "QQQ"}
	if len(cfg.Market.Underlyings) != len(want) {
		t.Fatalf("underlyings = %v, want %v", cfg.Market.Underlyings, want)
	}
	for i := range want {
		if cfg.Market.Underlyings[i] != want[i] {
			t.Errorf("underlyings = %v, want %v", cfg.Market.Underlyings, want)
		}
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }},
		{"no underlyings", func(c *Config) { c.Market.Underlyings = nil }},
		{"zero poll interval", func(c *Config) { c.Market.PollInterval = 0 }},
		{"band pct out of range", func(c *Config) { c.Exposure.BandPct = 1.5 }},
		{"atm band out of range", func(c *Config) { c.Flow.ATMBandPct = -0.1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected validation failure")
			}
		})
	}
}
