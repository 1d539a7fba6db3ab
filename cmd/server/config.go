package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

type Config struct {
	Host          string        `env:"HOST,default=0.0.0.0"`
	Port          int           `env:"PORT,default=4242"`
	DataDir       string        `env:"DATA_DIR,default=data"`
	LogLevel      string        `env:"LOG_LEVEL,default=INFO"`
	StatsInterval time.Duration `env:"STATS_INTERVAL,default=10s"`
	EnableStats   bool          `env:"ENABLE_STATS,default=true"`
}

func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c Config) SlogLevel() (slog.Level, error) {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown LOG_LEVEL %q", c.LogLevel)
}
