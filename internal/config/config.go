// Package config handles configuration loading for Sentinel-IDS.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Detection DetectionConfig `yaml:"detection"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	HTTPPort     int           `yaml:"http_port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DetectionConfig holds detection thresholds and time windows. It is loaded
// once at startup and shared read-only across all concurrent evaluations.
type DetectionConfig struct {
	// Brute force: failed login count within the window that triggers an alert.
	FailedLoginsThreshold int           `yaml:"failed_logins_threshold"`
	FailedLoginsWindow    time.Duration `yaml:"failed_logins_window"`

	// Account enumeration: distinct accounts attempted from one IP.
	AccountEnumThreshold int           `yaml:"account_enum_threshold"`
	EnumerationWindow    time.Duration `yaml:"enumeration_window"`

	// Rapid requests: requests per minute from one IP.
	RapidRequestsPerMinute int `yaml:"rapid_requests_per_minute"`

	// Data export: megabytes in a single response that trigger an alert.
	DataExportSizeMB float64 `yaml:"data_export_size_mb"`

	// QueryTimeout bounds each event-store read issued by a detector or the
	// scorer. A timed-out read is treated like a failed read: no evidence.
	QueryTimeout time.Duration `yaml:"query_timeout"`

	// Reserved feature flags. No implemented detector reads them yet; they
	// exist so a GeoIP-backed build can be toggled without a schema change.
	UnusualTimeCheck      bool `yaml:"unusual_time_check"`
	GeoAnomalyCheck       bool `yaml:"geo_anomaly_check"`
	ImpossibleTravelCheck bool `yaml:"impossible_travel_check"`
}

// StorageConfig holds event-store settings.
type StorageConfig struct {
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Hosts           []string      `yaml:"hosts"`
	Database        string        `yaml:"database"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	TLSEnabled      bool          `yaml:"tls_enabled"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
}

// RedisConfig holds settings for the block-intent store.
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PoolSize     int           `yaml:"pool_size"`
}

// KafkaConfig holds settings for the alert publisher.
type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	MaxRetries   int           `yaml:"max_retries"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:     8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Detection: DetectionConfig{
			FailedLoginsThreshold:  5,
			FailedLoginsWindow:     15 * time.Minute,
			AccountEnumThreshold:   10,
			EnumerationWindow:      30 * time.Minute,
			RapidRequestsPerMinute: 100,
			DataExportSizeMB:       50,
			QueryTimeout:           5 * time.Second,
		},
		Storage: StorageConfig{
			ClickHouse: ClickHouseConfig{
				Hosts:           []string{"localhost:9000"},
				Database:        "sentinel",
				Username:        "default",
				Password:        "",
				MaxOpenConns:    10,
				MaxIdleConns:    5,
				ConnMaxLifetime: time.Hour,
				TLSEnabled:      false,
				DialTimeout:     10 * time.Second,
			},
		},
		Redis: RedisConfig{
			Enabled:      false,
			Addr:         "localhost:6379",
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolSize:     10,
		},
		Kafka: KafkaConfig{
			Enabled:      false,
			Brokers:      []string{"localhost:9092"},
			Topic:        "security.alerts",
			BatchTimeout: 100 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			MaxRetries:   3,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a file or returns defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := os.Getenv("SENTINEL_CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, use defaults
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides. The IDS_* keys
// carry the detection thresholds; windows are given in whole minutes.
func (c *Config) applyEnvOverrides() {
	if port := os.Getenv("SENTINEL_HTTP_PORT"); port != "" {
		fmt.Sscanf(port, "%d", &c.Server.HTTPPort)
	}

	if level := os.Getenv("SENTINEL_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	envInt("IDS_FAILED_LOGINS_THRESHOLD", &c.Detection.FailedLoginsThreshold)
	envMinutes("IDS_FAILED_LOGINS_WINDOW", &c.Detection.FailedLoginsWindow)
	envInt("IDS_ACCOUNT_ENUM_THRESHOLD", &c.Detection.AccountEnumThreshold)
	envMinutes("IDS_ENUMERATION_WINDOW", &c.Detection.EnumerationWindow)
	envInt("IDS_RAPID_REQUESTS_THRESHOLD", &c.Detection.RapidRequestsPerMinute)
	envFloat("IDS_DATA_EXPORT_SIZE_MB", &c.Detection.DataExportSizeMB)
	envBool("IDS_UNUSUAL_TIME_CHECK", &c.Detection.UnusualTimeCheck)
	envBool("IDS_GEO_ANOMALY_CHECK", &c.Detection.GeoAnomalyCheck)
	envBool("IDS_IMPOSSIBLE_TRAVEL_CHECK", &c.Detection.ImpossibleTravelCheck)

	if host := os.Getenv("CLICKHOUSE_HOST"); host != "" {
		c.Storage.ClickHouse.Hosts = []string{host}
	}

	if db := os.Getenv("CLICKHOUSE_DATABASE"); db != "" {
		c.Storage.ClickHouse.Database = db
	}

	if user := os.Getenv("CLICKHOUSE_USER"); user != "" {
		c.Storage.ClickHouse.Username = user
	}

	if pass := os.Getenv("CLICKHOUSE_PASSWORD"); pass != "" {
		c.Storage.ClickHouse.Password = pass
	}

	if addr := os.Getenv("SENTINEL_REDIS_ADDR"); addr != "" {
		c.Redis.Addr = addr
		c.Redis.Enabled = true
	}

	if brokers := os.Getenv("SENTINEL_KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = splitAndTrim(brokers, ",")
		c.Kafka.Enabled = true
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envMinutes(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = time.Duration(n) * time.Minute
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// splitAndTrim splits a string by separator and trims whitespace from each part.
func splitAndTrim(s, sep string) []string {
	parts := make([]string, 0)
	for _, part := range splitString(s, sep) {
		trimmed := trimSpace(part)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// splitString splits a string by separator (simple implementation to avoid strings package).
func splitString(s, sep string) []string {
	if s == "" {
		return nil
	}
	var result []string
	start := 0
	for i := 0; i <= len(s)-len(sep); i++ {
		if s[i:i+len(sep)] == sep {
			result = append(result, s[start:i])
			start = i + len(sep)
			i += len(sep) - 1
		}
	}
	result = append(result, s[start:])
	return result
}

// trimSpace trims leading and trailing whitespace.
func trimSpace(s string) string {
	start := 0
	end := len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t' || s[start] == '\n' || s[start] == '\r') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t' || s[end-1] == '\n' || s[end-1] == '\r') {
		end--
	}
	return s[start:end]
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.Server.HTTPPort)
	}

	if c.Detection.FailedLoginsThreshold <= 0 {
		return fmt.Errorf("failed_logins_threshold must be positive")
	}

	if c.Detection.FailedLoginsWindow <= 0 {
		return fmt.Errorf("failed_logins_window must be positive")
	}

	if c.Detection.AccountEnumThreshold <= 0 {
		return fmt.Errorf("account_enum_threshold must be positive")
	}

	if c.Detection.EnumerationWindow <= 0 {
		return fmt.Errorf("enumeration_window must be positive")
	}

	if c.Detection.RapidRequestsPerMinute <= 0 {
		return fmt.Errorf("rapid_requests_per_minute must be positive")
	}

	if c.Detection.DataExportSizeMB <= 0 {
		return fmt.Errorf("data_export_size_mb must be positive")
	}

	if c.Detection.QueryTimeout <= 0 {
		return fmt.Errorf("query_timeout must be positive")
	}

	return nil
}
