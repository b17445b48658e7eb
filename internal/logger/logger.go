package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config represents logging configuration
type Config struct {
	Level      string `yaml:"level"`       // trace, debug, info, warn, error
	Format     string `yaml:"format"`      // json or text
	Output     string `yaml:"output"`      // stdout, stderr, file
	Filename   string `yaml:"filename"`    // log file path when output is file
	MaxSize    int    `yaml:"max_size"`    // max size per file in MB
	MaxAge     int    `yaml:"max_age"`     // retention in days
	MaxBackups int    `yaml:"max_backups"` // rotated files to keep
	Compress   bool   `yaml:"compress"`
}

// DefaultConfig returns sensible defaults for development
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "text",
		Output:     "stdout",
		MaxSize:    100,
		MaxAge:     14,
		MaxBackups: 5,
	}
}

var (
	std  = logrus.New()
	once sync.Once
)

// Init configures the process-wide logger. Safe to call once at startup;
// later calls are ignored.
func Init(cfg Config) {
	once.Do(func() {
		level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			level = logrus.InfoLevel
		}
		std.SetLevel(level)

		if cfg.Format == "json" {
			std.SetFormatter(&logrus.JSONFormatter{})
		} else {
			std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		}

		std.SetOutput(output(cfg))
	})
}

func output(cfg Config) io.Writer {
	switch cfg.Output {
	case "stderr":
		return os.Stderr
	case "file":
		if cfg.Filename == "" {
			return os.Stdout
		}
		return &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSize,
			MaxAge:     cfg.MaxAge,
			MaxBackups: cfg.MaxBackups,
			Compress:   cfg.Compress,
		}
	default:
		return os.Stdout
	}
}

// L returns the process-wide logger
func L() *logrus.Logger {
	return std
}

// WithField returns an entry with a single field attached
func WithField(key string, value interface{}) *logrus.Entry {
	return std.WithField(key, value)
}

// WithFields returns an entry with structured fields attached
func WithFields(fields map[string]interface{}) *logrus.Entry {
	return std.WithFields(logrus.Fields(fields))
}

// Debugf logs a formatted debug message
func Debugf(format string, args ...interface{}) { std.Debugf(format, args...) }

// Infof logs a formatted info message
func Infof(format string, args ...interface{}) { std.Infof(format, args...) }

// Warnf logs a formatted warning
func Warnf(format string, args ...interface{}) { std.Warnf(format, args...) }

// Errorf logs a formatted error
func Errorf(format string, args ...interface{}) { std.Errorf(format, args...) }
