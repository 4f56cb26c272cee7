package config

type Config struct {
	LogLevel   string           `mapstructure:"log_level" yaml:"log_level"`
	ClickHouse ClickHouseConfig `mapstructure:"clickhouse" yaml:"clickhouse"`
	Cleaner    CleanerConfig    `mapstructure:"cleaner" yaml:"cleaner"`
}

// ClickHouseConfig is the connection half of the configuration: where the
// store lives and how to authenticate against it.
type ClickHouseConfig struct {
	FQDN     string `mapstructure:"fqdn" yaml:"fqdn"`
	HTTPPort int    `mapstructure:"http_port" yaml:"http_port"`
	Protocol string `mapstructure:"protocol" yaml:"protocol"` // http | https
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	// Database and MatchKey act as defaults for runs that do not name them
	// on the command line.
	Database  string `mapstructure:"database" yaml:"database"`
	MatchKey  string `mapstructure:"match_key" yaml:"match_key"`
	TimeoutMS int    `mapstructure:"timeout_ms" yaml:"timeout_ms"` // milliseconds
}

// CleanerConfig tunes the orchestration: worker fan-out, polling cadence,
// and the mutation-id discovery retry budget.
type CleanerConfig struct {
	Workers       int `mapstructure:"workers" yaml:"workers"`
	PollInterval  int `mapstructure:"poll_interval" yaml:"poll_interval"` // seconds
	MaxWait       int `mapstructure:"max_wait" yaml:"max_wait"`           // seconds
	LookupRetries int `mapstructure:"lookup_retries" yaml:"lookup_retries"`
	PreviewLimit  int `mapstructure:"preview_limit" yaml:"preview_limit"`
}

// Example returns a fully populated configuration for rendering a starter
// config file.
func Example() *Config {
	return &Config{
		LogLevel: "info",
		ClickHouse: ClickHouseConfig{
			FQDN:      "clickhouse.example.com",
			HTTPPort:  8123,
			Protocol:  "http",
			Username:  "default",
			Password:  "change-me",
			Database:  "prod",
			MatchKey:  "Hostname",
			TimeoutMS: 30000,
		},
		Cleaner: CleanerConfig{
			Workers:       4,
			PollInterval:  2,
			MaxWait:       600,
			LookupRetries: 5,
			PreviewLimit:  20,
		},
	}
}
