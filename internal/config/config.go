package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"gexflow/internal/bias"
	"gexflow/internal/exposure"
	"gexflow/internal/flow"
	"gexflow/internal/logger"
)

// Config represents the application configuration
type Config struct {
	App      AppConfig       `yaml:"app"`
	Server   ServerConfig    `yaml:"server"`
	Database DatabaseConfig  `yaml:"database"`
	Redis    RedisConfig     `yaml:"redis"`
	Logging  logger.Config   `yaml:"logging"`
	Market   MarketConfig    `yaml:"market"`
	Exposure exposure.Config `yaml:"exposure"`
	Flow     flow.Config     `yaml:"flow"`
	Bias     bias.Config     `yaml:"bias"`
}

// AppConfig represents application identity
type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Env     string `yaml:"env"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	RateBurst         int           `yaml:"rate_burst"`
	AllowedOrigins    []string      `yaml:"allowed_origins"`
}

// DatabaseConfig represents the optional Postgres history store
type DatabaseConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	User     string        `yaml:"user"`
	Password string        `yaml:"password"`
	DBName   string        `yaml:"dbname"`
	SSLMode  string        `yaml:"sslmode"`
	MaxOpen  int           `yaml:"max_open"`
	MaxIdle  int           `yaml:"max_idle"`
	Timeout  time.Duration `yaml:"timeout"`
}

// RedisConfig represents the optional Redis cache backend
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// MarketConfig represents data-provider and scheduling configuration
type MarketConfig struct {
	Underlyings   []string      `yaml:"underlyings"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	StreamURL     string        `yaml:"stream_url"`
	ScoreCacheTTL time.Duration `yaml:"score_cache_ttl"`
}

// Default returns a complete configuration with development defaults
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:    "gexflow",
			Version: "0.1.0",
			Env:     "development",
		},
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8080,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			RequestsPerSecond: 50,
			RateBurst:         100,
			AllowedOrigins:    []string{"*"},
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "gexflow",
			DBName:  "gexflow",
			SSLMode: "disable",
			MaxOpen: 25,
			MaxIdle: 5,
			Timeout: 5 * time.Second,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Logging: logger.DefaultConfig(),
		Market: MarketConfig{
			Underlyings:   []string{"SPY"},
			PollInterval:  30 * time.Second,
			SweepInterval: time.Minute,
			ScoreCacheTTL: 30 * time.Second,
		},
		Exposure: exposure.DefaultConfig(),
		Flow:     flow.DefaultConfig(),
		Bias:     bias.DefaultConfig(),
	}
}

// Load reads configuration from a YAML file, applies environment
// overrides and validates the result. A missing file is not an error;
// defaults plus environment are used.
func Load(filename string) (*Config, error) {
	cfg := Default()

	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration invariants
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if len(c.Market.Underlyings) == 0 {
		return fmt.Errorf("at least one underlying must be configured")
	}
	if c.Market.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.Exposure.BandPct < 0 || c.Exposure.BandPct > 1 {
		return fmt.Errorf("exposure band_pct out of range: %v", c.Exposure.BandPct)
	}
	if c.Flow.ATMBandPct < 0 || c.Flow.ATMBandPct > 1 {
		return fmt.Errorf("flow atm_band_pct out of range: %v", c.Flow.ATMBandPct)
	}
	return nil
}
