package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Load loads configuration with priority order:
// 1. Environment variables
// 2. Configuration file (explicit path, or config.yaml on the search path)
// 3. Default values
// An explicit path must exist; on the search path a missing file is fine.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "chpurge"))
		}
		v.AddConfigPath("/etc/chpurge/")
		v.AddConfigPath(".")
	}

	// Enable environment variable support
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("CHPURGE")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file on the search path - continue with env vars and defaults
	}

	overrideWithEnvVars(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets reasonable default values
func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	// Connection defaults
	v.SetDefault("clickhouse.http_port", 8123)
	v.SetDefault("clickhouse.protocol", "http")
	v.SetDefault("clickhouse.timeout_ms", 30000)

	// Orchestration defaults
	v.SetDefault("cleaner.workers", 4)
	v.SetDefault("cleaner.poll_interval", 2)
	v.SetDefault("cleaner.max_wait", 600)
	v.SetDefault("cleaner.lookup_retries", 5)
	v.SetDefault("cleaner.preview_limit", 20)
}

// overrideWithEnvVars explicitly handles environment variable overrides
func overrideWithEnvVars(v *viper.Viper) {
	if logLevel := os.Getenv("CHPURGE_LOG_LEVEL"); logLevel != "" {
		v.Set("log_level", logLevel)
	}

	if fqdn := os.Getenv("CHPURGE_CLICKHOUSE_FQDN"); fqdn != "" {
		v.Set("clickhouse.fqdn", fqdn)
	}

	if port := os.Getenv("CHPURGE_CLICKHOUSE_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			v.Set("clickhouse.http_port", p)
		}
	}

	if username := os.Getenv("CHPURGE_CLICKHOUSE_USERNAME"); username != "" {
		v.Set("clickhouse.username", username)
	}

	if password := os.Getenv("CHPURGE_CLICKHOUSE_PASSWORD"); password != "" {
		v.Set("clickhouse.password", password)
	}

	if database := os.Getenv("CHPURGE_CLICKHOUSE_DATABASE"); database != "" {
		v.Set("clickhouse.database", database)
	}

	if matchKey := os.Getenv("CHPURGE_CLICKHOUSE_MATCH_KEY"); matchKey != "" {
		v.Set("clickhouse.match_key", matchKey)
	}
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.ClickHouse.FQDN == "" {
		return fmt.Errorf("clickhouse fqdn is required")
	}

	if config.ClickHouse.HTTPPort < 1 || config.ClickHouse.HTTPPort > 65535 {
		return fmt.Errorf("invalid http port: %d", config.ClickHouse.HTTPPort)
	}

	if config.ClickHouse.Protocol != "http" && config.ClickHouse.Protocol != "https" {
		return fmt.Errorf("invalid protocol: %s", config.ClickHouse.Protocol)
	}

	if config.ClickHouse.TimeoutMS < 1 {
		return fmt.Errorf("clickhouse timeout must be at least 1ms")
	}

	validLogLevels := []string{"debug", "info", "warn", "error", "fatal"}
	if !contains(validLogLevels, config.LogLevel) {
		return fmt.Errorf("invalid log level: %s", config.LogLevel)
	}

	if config.Cleaner.Workers < 1 {
		return fmt.Errorf("at least one worker is required")
	}

	// Polling below one second would hammer the mutation metadata path.
	if config.Cleaner.PollInterval < 1 {
		return fmt.Errorf("poll interval must be at least 1 second")
	}

	if config.Cleaner.MaxWait < config.Cleaner.PollInterval {
		return fmt.Errorf("max wait must be at least one poll interval")
	}

	if config.Cleaner.LookupRetries < 1 {
		return fmt.Errorf("at least one lookup retry is required")
	}

	if config.Cleaner.PreviewLimit < 1 {
		return fmt.Errorf("preview limit must be at least 1")
	}

	return nil
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
