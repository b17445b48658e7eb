package config

import (
	"os"
	"strconv"
	"strings"
)

const envPrefix = "GEXFLOW_"

// applyEnv overlays environment variables onto the loaded config.
// Only deployment-sensitive settings are overridable; analytics
// tunables stay in the YAML file.
func (c *Config) applyEnv() {
	setString(&c.App.Env, "ENV")
	setInt(&c.Server.Port, "SERVER_PORT")
	setString(&c.Server.Host, "SERVER_HOST")

	setBool(&c.Database.Enabled, "DB_ENABLED")
	setString(&c.Database.Host, "DB_HOST")
	setInt(&c.Database.Port, "DB_PORT")
	setString(&c.Database.User, "DB_USER")
	setString(&c.Database.Password, "DB_PASSWORD")
	setString(&c.Database.DBName, "DB_NAME")
	setString(&c.Database.SSLMode, "DB_SSLMODE")

	setBool(&c.Redis.Enabled, "REDIS_ENABLED")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")

	setString(&c.Logging.Level, "LOG_LEVEL")
	setString(&c.Logging.Format, "LOG_FORMAT")

	setString(&c.Market.StreamURL, "STREAM_URL")
	if v := env("UNDERLYINGS"); v != "" {
		parts := strings.Split(v, ",")
		list := parts[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				list = append(list, strings.ToUpper(p))
			}
		}
		if len(list) > 0 {
			c.Market.Underlyings = list
		}
	}
}

func env(key string) string {
	return os.Getenv(envPrefix + key)
}

func setString(dst *string, key string) {
	if v := env(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := env(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := env(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
