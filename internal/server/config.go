// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the LinkRoom service.
package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings including security controls.
// It is assembled once at startup and handed to the components that need it;
// there is no process-wide mutable configuration.
type Config struct {
	Port           string
	AllowedOrigins []string
	StaticDir      string
	MaxMessageSize int64
	RateLimit      RateLimitConfig
	LogLevel       string
}

func defaultConfig() Config {
	return Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		StaticDir:      "./static",
		MaxMessageSize: 512,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
		LogLevel: "info",
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// LoadConfig builds the configuration from defaults overlaid with environment
// variables. Invalid or out-of-range values fall back to their defaults.
func LoadConfig() *Config {
	defaults := defaultConfig()

	v := viper.New()
	v.SetDefault("server.port", defaults.Port)
	v.SetDefault("server.allowed_origins", strings.Join(defaults.AllowedOrigins, ","))
	v.SetDefault("server.static_dir", defaults.StaticDir)
	v.SetDefault("websocket.max_message_size", defaults.MaxMessageSize)
	v.SetDefault("ratelimit.burst", defaults.RateLimit.Burst)
	v.SetDefault("ratelimit.refill_interval", defaults.RateLimit.RefillInterval.String())
	v.SetDefault("log.level", defaults.LogLevel)

	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.allowed_origins", "ALLOWED_ORIGINS")
	_ = v.BindEnv("server.static_dir", "STATIC_DIR")
	_ = v.BindEnv("websocket.max_message_size", "MAX_MESSAGE_SIZE")
	_ = v.BindEnv("ratelimit.burst", "RATE_LIMIT_BURST")
	_ = v.BindEnv("ratelimit.refill_interval", "RATE_LIMIT_REFILL_INTERVAL")
	_ = v.BindEnv("log.level", "LOG_LEVEL")

	cfg := Config{
		Port:           v.GetString("server.port"),
		AllowedOrigins: parseOrigins(v.GetString("server.allowed_origins")),
		StaticDir:      v.GetString("server.static_dir"),
		MaxMessageSize: v.GetInt64("websocket.max_message_size"),
		RateLimit: RateLimitConfig{
			Burst:          v.GetInt("ratelimit.burst"),
			RefillInterval: parseRefillInterval(v.GetString("ratelimit.refill_interval"), defaults.RateLimit.RefillInterval),
		},
		LogLevel: v.GetString("log.level"),
	}

	sanitized := sanitizeConfig(cfg)
	return &sanitized
}

func sanitizeConfig(cfg Config) Config {
	defaults := defaultConfig()

	if cfg.Port == "" {
		cfg.Port = defaults.Port
	}

	if cfg.StaticDir == "" {
		cfg.StaticDir = defaults.StaticDir
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaults.MaxMessageSize
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaults.RateLimit.Burst
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = defaults.RateLimit.RefillInterval
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = defaults.LogLevel
	}

	return cfg
}

// Sanitize returns a copy of the configuration with invalid values replaced by
// defaults. Useful for tests and callers that assemble a Config by hand.
func (c *Config) Sanitize() *Config {
	sanitized := sanitizeConfig(*c)
	return &sanitized
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// parseRefillInterval accepts either a Go duration string ("500ms") or a bare
// number of seconds ("2"), the format used by the RATE_LIMIT_REFILL_INTERVAL
// environment variable.
func parseRefillInterval(value string, defaultValue time.Duration) time.Duration {
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
