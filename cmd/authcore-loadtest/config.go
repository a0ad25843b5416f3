package main

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// config is read from AUTHCORE_* environment variables and an optional
// .env file in the working directory. The file uses unprefixed keys
// (USERS=500). Environment wins over the file.
type config struct {
	Users       int    `mapstructure:"USERS"`
	Concurrency int    `mapstructure:"CONCURRENCY"`
	Ops         int    `mapstructure:"OPS"`
	RedisAddr   string `mapstructure:"REDIS_ADDR"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	SigningKey  string `mapstructure:"SIGNING_KEY"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`

	// ArgonMemoryKB keeps seeding fast; production settings would dominate
	// the sign-in phase.
	ArgonMemoryKB uint32 `mapstructure:"ARGON_MEMORY_KB"`

	GracePeriod  time.Duration `mapstructure:"REFRESH_GRACE"`
	PrintMetrics bool          `mapstructure:"PRINT_METRICS"`
}

func loadConfig() (*config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // missing .env is fine

	v.SetEnvPrefix("AUTHCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("USERS", 1000)
	v.SetDefault("CONCURRENCY", 64)
	v.SetDefault("OPS", 20000)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SIGNING_KEY", "")
	v.SetDefault("LOG_LEVEL", "warn")
	v.SetDefault("ARGON_MEMORY_KB", 8*1024)
	v.SetDefault("REFRESH_GRACE", "30s")
	v.SetDefault("PRINT_METRICS", true)

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.Users <= 0 || cfg.Concurrency <= 0 || cfg.Ops <= 0 {
		return nil, errors.New("config: USERS, CONCURRENCY and OPS must be > 0")
	}
	if cfg.SigningKey != "" && len(cfg.SigningKey) < 32 {
		return nil, errors.New("config: SIGNING_KEY must be at least 32 bytes")
	}
	return &cfg, nil
}

func (c *config) logLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelWarn
	}
	return level
}
