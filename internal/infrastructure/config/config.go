package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for avrbridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	AVR      AVRConfig      `yaml:"avr"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Database DatabaseConfig `yaml:"database"`
	History  HistoryConfig  `yaml:"history"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// AVRConfig contains receiver connection settings.
type AVRConfig struct {
	// Host is the receiver's address. Required.
	Host string `yaml:"host"`

	// Port is the receiver's control port. Default: 14999
	Port int `yaml:"port"`

	// ConnectTimeout is the dial timeout in seconds.
	ConnectTimeout int `yaml:"connect_timeout"`

	// CommandTimeout is the per-command timeout in seconds.
	CommandTimeout int `yaml:"command_timeout"`

	// ReconnectDelay is the initial reconnect delay in seconds.
	ReconnectDelay int `yaml:"reconnect_delay"`

	// WriteDelayMS is the settle delay between writes in milliseconds.
	// The receiver drops datagrams that arrive back to back.
	WriteDelayMS int `yaml:"write_delay_ms"`

	// AutoReconnect keeps the session alive across drops.
	AutoReconnect bool `yaml:"auto_reconnect"`
}

// GatewayConfig describes an optional locally supervised serial-to-TCP
// gateway. When the receiver hangs off a local serial port, avrbridge
// can launch the gateway process itself instead of relying on an
// externally managed one.
type GatewayConfig struct {
	// Enabled turns gateway supervision on.
	Enabled bool `yaml:"enabled"`

	// Binary is the gateway executable path (e.g. /usr/sbin/ser2net).
	Binary string `yaml:"binary"`

	// Args are passed to the gateway verbatim.
	Args []string `yaml:"args"`

	// RestartDelaySeconds is the base delay before restart attempts.
	RestartDelaySeconds int `yaml:"restart_delay_seconds"`

	// MaxRestartAttempts limits consecutive restarts. 0 means unlimited.
	MaxRestartAttempts int `yaml:"max_restart_attempts"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// HistoryConfig contains state history settings.
type HistoryConfig struct {
	// Enabled turns transition recording on.
	Enabled bool `yaml:"enabled"`

	// RetentionHours is how long entries are kept before pruning.
	RetentionHours int `yaml:"retention_hours"`

	// PruneIntervalHours is how often the prune job runs.
	PruneIntervalHours int `yaml:"prune_interval_hours"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: AVRBRIDGE_SECTION_KEY
// For example: AVRBRIDGE_AVR_HOST, AVRBRIDGE_MQTT_PASSWORD
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		AVR: AVRConfig{
			Port:           14999,
			ConnectTimeout: 10,
			CommandTimeout: 3,
			ReconnectDelay: 1,
			WriteDelayMS:   10,
			AutoReconnect:  true,
		},
		Gateway: GatewayConfig{
			RestartDelaySeconds: 5,
			MaxRestartAttempts:  10,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "avrbridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/avrbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		History: HistoryConfig{
			Enabled:            true,
			RetentionHours:     168,
			PruneIntervalHours: 6,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: AVRBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// AVR
	if v := os.Getenv("AVRBRIDGE_AVR_HOST"); v != "" {
		cfg.AVR.Host = v
	}
	if v := os.Getenv("AVRBRIDGE_AVR_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.AVR.Port = port
		}
	}

	// MQTT
	if v := os.Getenv("AVRBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("AVRBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("AVRBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Database
	if v := os.Getenv("AVRBRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("AVRBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	// AVR validation
	if c.AVR.Host == "" {
		errs = append(errs, "avr.host is required (set AVRBRIDGE_AVR_HOST environment variable)")
	}
	if c.AVR.Port < 1 || c.AVR.Port > 65535 {
		errs = append(errs, "avr.port must be between 1 and 65535")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// Gateway validation
	if c.Gateway.Enabled && c.Gateway.Binary == "" {
		errs = append(errs, "gateway.binary is required when gateway is enabled")
	}

	// History validation
	if c.History.Enabled && c.History.RetentionHours < 1 {
		errs = append(errs, "history.retention_hours must be at least 1 when history is enabled")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Token == "" {
			errs = append(errs, "influxdb.token is required when influxdb is enabled (set AVRBRIDGE_INFLUXDB_TOKEN)")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetConnectTimeout returns the receiver dial timeout as a Duration.
func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.AVR.ConnectTimeout) * time.Second
}

// GetCommandTimeout returns the per-command timeout as a Duration.
func (c *Config) GetCommandTimeout() time.Duration {
	return time.Duration(c.AVR.CommandTimeout) * time.Second
}

// GetReconnectDelay returns the initial reconnect delay as a Duration.
func (c *Config) GetReconnectDelay() time.Duration {
	return time.Duration(c.AVR.ReconnectDelay) * time.Second
}

// GetWriteDelay returns the inter-write settle delay as a Duration.
func (c *Config) GetWriteDelay() time.Duration {
	return time.Duration(c.AVR.WriteDelayMS) * time.Millisecond
}

// GetHistoryRetention returns the history retention window as a Duration.
func (c *Config) GetHistoryRetention() time.Duration {
	return time.Duration(c.History.RetentionHours) * time.Hour
}

// GetPruneInterval returns the history prune cadence as a Duration.
func (c *Config) GetPruneInterval() time.Duration {
	return time.Duration(c.History.PruneIntervalHours) * time.Hour
}
