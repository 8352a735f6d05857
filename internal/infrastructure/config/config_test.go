package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	content := `
server:
  port: 56000
hardware:
  backend: "fake"
journal:
  enabled: true
  path: "/tmp/test.db"
mqtt:
  broker:
    host: "broker.local"
    port: 1883
  qos: 1
`
	cfg, err := Load(writeConfig(t, "config.yaml", content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 56000 {
		t.Errorf("Server.Port = %d, want 56000", cfg.Server.Port)
	}
	if cfg.Server.Address != "127.0.0.1" {
		t.Errorf("Server.Address = %q, want default 127.0.0.1", cfg.Server.Address)
	}
	if cfg.Hardware.Backend != "fake" {
		t.Errorf("Hardware.Backend = %q, want %q", cfg.Hardware.Backend, "fake")
	}
	if !cfg.Journal.Enabled || cfg.Journal.Path != "/tmp/test.db" {
		t.Errorf("Journal = %+v", cfg.Journal)
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
}

func TestLoad_ValidTOML(t *testing.T) {
	content := `
[server]
port = 56001

[hardware]
backend = "fake"

[mqtt]
enabled = true
topic_prefix = "rig"

[mqtt.broker]
host = "broker.local"
`
	cfg, err := Load(writeConfig(t, "config.toml", content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 56001 {
		t.Errorf("Server.Port = %d, want 56001", cfg.Server.Port)
	}
	if cfg.MQTT.TopicPrefix != "rig" {
		t.Errorf("MQTT.TopicPrefix = %q, want %q", cfg.MQTT.TopicPrefix, "rig")
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT.Broker.Port = %d, want default 1883", cfg.MQTT.Broker.Port)
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Server.Port != 55555 {
		t.Errorf("Server.Port = %d, want 55555", cfg.Server.Port)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "error")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "config.yaml", "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	_, err := Load(writeConfig(t, "config.toml", "[server\nport = "))
	if err == nil {
		t.Error("Load() expected error for invalid TOML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
server:
  address: "0.0.0.0"
`
	_, err := Load(writeConfig(t, "config.yaml", content))
	if err == nil {
		t.Fatal("Load() expected validation error for non-loopback address, got nil")
	}
	if !strings.Contains(err.Error(), "loopback") {
		t.Errorf("error = %v, want mention of loopback", err)
	}
}

func TestLoad_BadPortEnv(t *testing.T) {
	t.Setenv("FANCONTROL_SERVER_PORT", "not-a-port")

	if _, err := Load(""); err == nil {
		t.Error("Load() expected error for bad FANCONTROL_SERVER_PORT, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "ipv6 loopback", mutate: func(c *Config) { c.Server.Address = "::1" }},
		{name: "non-loopback address", mutate: func(c *Config) { c.Server.Address = "192.168.1.10" }, wantErr: true},
		{name: "hostname address", mutate: func(c *Config) { c.Server.Address = "localhost" }, wantErr: true},
		{name: "port low", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: true},
		{name: "max below port", mutate: func(c *Config) { c.Server.MaxPort = c.Server.Port - 1 }, wantErr: true},
		{name: "unknown backend", mutate: func(c *Config) { c.Hardware.Backend = "wmi" }, wantErr: true},
		{name: "unknown level", mutate: func(c *Config) { c.Logging.Level = "trace" }, wantErr: true},
		{name: "journal without path", mutate: func(c *Config) { c.Journal.Enabled = true; c.Journal.Path = "" }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "mqtt without prefix", mutate: func(c *Config) { c.MQTT.Enabled = true; c.MQTT.TopicPrefix = "" }, wantErr: true},
		{name: "influx without bucket", mutate: func(c *Config) { c.InfluxDB.Enabled = true; c.InfluxDB.Bucket = "" }, wantErr: true},
		{name: "status bad port", mutate: func(c *Config) { c.Status.Enabled = true; c.Status.Port = 70000 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateJoinsErrors(t *testing.T) {
	cfg := defaultConfig()
	cfg.Server.Port = 0
	cfg.MQTT.QoS = 5

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil")
	}
	if !strings.Contains(err.Error(), "; ") {
		t.Errorf("error = %q, want problems joined with \"; \"", err)
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		Status: StatusConfig{
			Timeouts: StatusTimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("FANCONTROL_SERVER_PORT", "56010")
	t.Setenv("FANCONTROL_HARDWARE_BACKEND", "fake")
	t.Setenv("FANCONTROL_HARDWARE_SYSFS_ROOT", "/tmp/sys")
	t.Setenv("FANCONTROL_LOG_FILE", "/var/log/fancontrol")
	t.Setenv("FANCONTROL_JOURNAL_PATH", "/custom/path.db")
	t.Setenv("FANCONTROL_MQTT_HOST", "mqtt.example.com")
	t.Setenv("FANCONTROL_MQTT_USERNAME", "testuser")
	t.Setenv("FANCONTROL_MQTT_PASSWORD", "testpass")
	t.Setenv("FANCONTROL_INFLUXDB_TOKEN", "secret-token")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	if cfg.Server.Port != 56010 {
		t.Errorf("Server.Port = %d, want 56010", cfg.Server.Port)
	}
	if cfg.Hardware.Backend != "fake" {
		t.Errorf("Hardware.Backend = %q, want %q", cfg.Hardware.Backend, "fake")
	}
	if cfg.Hardware.SysfsRoot != "/tmp/sys" {
		t.Errorf("Hardware.SysfsRoot = %q, want %q", cfg.Hardware.SysfsRoot, "/tmp/sys")
	}
	if cfg.Logging.File.Path != "/var/log/fancontrol.fancontrold.log" {
		t.Errorf("Logging.File.Path = %q", cfg.Logging.File.Path)
	}
	if !cfg.Journal.Enabled || cfg.Journal.Path != "/custom/path.db" {
		t.Errorf("Journal = %+v, want enabled at /custom/path.db", cfg.Journal)
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
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Server.Address != "127.0.0.1" {
		t.Errorf("Default Server.Address = %q, want 127.0.0.1", cfg.Server.Address)
	}
	if cfg.Hardware.Backend != "hwmon" {
		t.Errorf("Default Hardware.Backend = %q, want hwmon", cfg.Hardware.Backend)
	}
	if cfg.Journal.Enabled || cfg.MQTT.Enabled || cfg.InfluxDB.Enabled || cfg.Status.Enabled {
		t.Error("optional sinks should be disabled by default")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("Default MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
}
