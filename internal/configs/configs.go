/*
Package configs is responsible for loading and parsing the application's configuration settings.

Settings come from built-in defaults, an optional YAML file and WNSCHAT_* environment variables,
in increasing order of precedence. Nested keys map to environment variables by replacing dots
with underscores (log.level -> WNSCHAT_LOG_LEVEL).
*/
package configs

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"wnschat/internal/pkg/randx"
)

// EnvPrefix is the prefix of every environment variable read by LoadConfig.
const EnvPrefix = "WNSCHAT"

// AppConfig contains all configuration parameters required for the application to run.
type AppConfig struct {
	// General Server Settings
	Environment   string        `mapstructure:"environment"`
	ListenAddress string        `mapstructure:"listen_address"`
	Port          int           `mapstructure:"port"`
	ServerName    string        `mapstructure:"server_name"`
	Password      string        `mapstructure:"password"`
	ConsoleName   string        `mapstructure:"console_name"`
	SendQueueSize int           `mapstructure:"send_queue_size"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`

	// Operator API Settings
	HTTPPort       int      `mapstructure:"http_port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	APISecret      string   `mapstructure:"api_secret"`

	// Database Settings
	DatabaseURL string `mapstructure:"database_url"`

	// Event Settings
	NATSURL     string `mapstructure:"nats_url"`
	NATSSubject string `mapstructure:"nats_subject"`

	// Grants seeds permission levels (username -> level name) at startup.
	Grants map[string]string `mapstructure:"grants"`

	Log LogConfig `mapstructure:"log"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// IsDevelopment reports whether the server runs in the development environment.
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("listen_address", "0.0.0.0")
	v.SetDefault("port", 9001)
	v.SetDefault("server_name", "WNSChat Server")
	v.SetDefault("password", "")
	v.SetDefault("console_name", "Server")
	v.SetDefault("send_queue_size", 256)
	v.SetDefault("write_timeout", "10s")

	v.SetDefault("http_port", 0)
	v.SetDefault("allowed_origins", []string{})
	v.SetDefault("api_secret", "")

	v.SetDefault("database_url", "")

	v.SetDefault("nats_url", "")
	v.SetDefault("nats_subject", "wnschat.events")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
}

// LoadConfig reads and parses the application configuration.
// path names an optional YAML file; an empty path looks for wnschat.yaml in the working directory
// and silently falls back to defaults and environment variables when it does not exist.
// It returns a pointer to the AppConfig struct and any error encountered.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("wnschat")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file %s: %w", filepath.Base(path), err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	cfg.AllowedOrigins = cleanOrigins(cfg.AllowedOrigins)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func cleanOrigins(origins []string) []string {
	out := []string{}
	for _, origin := range origins {
		for _, part := range strings.Split(origin, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}

func (c *AppConfig) validate() error {
	switch c.Environment {
	case "development", "production":
	default:
		return fmt.Errorf("invalid environment %q, expected development or production", c.Environment)
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port number %d is outside the valid range (1-65535)", c.Port)
	}

	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("http port number %d is outside the valid range (0-65535)", c.HTTPPort)
	}
	if c.HTTPPort != 0 && c.HTTPPort == c.Port {
		return fmt.Errorf("http port %d collides with the chat port", c.HTTPPort)
	}

	if c.SendQueueSize < 1 {
		return fmt.Errorf("send queue size must be positive, got %d", c.SendQueueSize)
	}

	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive, got %s", c.WriteTimeout)
	}

	if c.APISecret == "" && c.HTTPPort > 0 {
		if !c.IsDevelopment() {
			return fmt.Errorf("%s_API_SECRET is required in %s environment when the operator API is enabled", EnvPrefix, c.Environment)
		}

		secret, err := randx.Secret()
		if err != nil {
			return err
		}
		c.APISecret = secret
	}

	return nil
}
