package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ValidConfig(t *testing.T) {
	// Create a temporary config file
	content := `
avr:
  host: "192.168.1.50"
  port: 14999
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.AVR.Host != "192.168.1.50" {
		t.Errorf("AVR.Host = %q, want %q", cfg.AVR.Host, "192.168.1.50")
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}

	if cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "localhost")
	}

	// Defaults survive a partial file.
	if !cfg.AVR.AutoReconnect {
		t.Error("AVR.AutoReconnect default should be true")
	}
	if cfg.AVR.WriteDelayMS != 10 {
		t.Errorf("AVR.WriteDelayMS = %d, want default 10", cfg.AVR.WriteDelayMS)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	// No receiver host anywhere.
	content := `
database:
  path: "/tmp/test.db"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for missing avr.host, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.AVR.Host = "192.168.1.50"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing receiver host",
			mutate:  func(c *Config) { c.AVR.Host = "" },
			wantErr: true,
		},
		{
			name:    "invalid receiver port",
			mutate:  func(c *Config) { c.AVR.Port = 0 },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "invalid broker port",
			mutate:  func(c *Config) { c.MQTT.Broker.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "gateway enabled without binary",
			mutate:  func(c *Config) { c.Gateway.Enabled = true },
			wantErr: true,
		},
		{
			name:    "history enabled without retention",
			mutate:  func(c *Config) { c.History.RetentionHours = 0 },
			wantErr: true,
		},
		{
			name:    "influxdb enabled without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true; c.InfluxDB.Token = "tok" },
			wantErr: true,
		},
		{
			name: "influxdb enabled without token",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.URL = "http://localhost:8086"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetDurations(t *testing.T) {
	cfg := &Config{
		AVR: AVRConfig{
			ConnectTimeout: 10,
			CommandTimeout: 3,
			ReconnectDelay: 2,
			WriteDelayMS:   10,
		},
		History: HistoryConfig{
			RetentionHours:     168,
			PruneIntervalHours: 6,
		},
	}

	if got := cfg.GetConnectTimeout().Seconds(); got != 10 {
		t.Errorf("GetConnectTimeout() = %v, want 10", got)
	}
	if got := cfg.GetCommandTimeout().Seconds(); got != 3 {
		t.Errorf("GetCommandTimeout() = %v, want 3", got)
	}
	if got := cfg.GetReconnectDelay().Seconds(); got != 2 {
		t.Errorf("GetReconnectDelay() = %v, want 2", got)
	}
	if got := cfg.GetWriteDelay().Milliseconds(); got != 10 {
		t.Errorf("GetWriteDelay() = %v, want 10ms", got)
	}
	if got := cfg.GetHistoryRetention().Hours(); got != 168 {
		t.Errorf("GetHistoryRetention() = %v, want 168h", got)
	}
	if got := cfg.GetPruneInterval().Hours(); got != 6 {
		t.Errorf("GetPruneInterval() = %v, want 6h", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("AVRBRIDGE_AVR_HOST", "10.0.0.5")
	t.Setenv("AVRBRIDGE_AVR_PORT", "15000")
	t.Setenv("AVRBRIDGE_MQTT_HOST", "mqtt.example.com")
	t.Setenv("AVRBRIDGE_MQTT_USERNAME", "testuser")
	t.Setenv("AVRBRIDGE_MQTT_PASSWORD", "testpass")
	t.Setenv("AVRBRIDGE_DATABASE_PATH", "/custom/path.db")
	t.Setenv("AVRBRIDGE_INFLUXDB_TOKEN", "secret-token")

	applyEnvOverrides(cfg)

	if cfg.AVR.Host != "10.0.0.5" {
		t.Errorf("AVR.Host = %q, want %q", cfg.AVR.Host, "10.0.0.5")
	}

	if cfg.AVR.Port != 15000 {
		t.Errorf("AVR.Port = %d, want 15000", cfg.AVR.Port)
	}

	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}

	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}

	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}

	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.AVR.Port != 14999 {
		t.Errorf("defaultConfig AVR.Port = %d, want 14999", cfg.AVR.Port)
	}

	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}

	if cfg.History.RetentionHours != 168 {
		t.Errorf("defaultConfig History.RetentionHours = %d, want 168", cfg.History.RetentionHours)
	}
}
