package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for fancontrold.
// Configuration is loaded from YAML or TOML and can be overridden by environment variables.
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Hardware HardwareConfig `yaml:"hardware" toml:"hardware"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Journal  JournalConfig  `yaml:"journal" toml:"journal"`
	MQTT     MQTTConfig     `yaml:"mqtt" toml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb" toml:"influxdb"`
	Status   StatusConfig   `yaml:"status" toml:"status"`
}

// ServerConfig contains the peer socket settings.
type ServerConfig struct {
	// Address must be a loopback address; the peer is always local.
	Address string `yaml:"address" toml:"address"`
	Port    int    `yaml:"port" toml:"port"`
	MaxPort int    `yaml:"max_port" toml:"max_port"`
}

// HardwareConfig selects the hardware backend.
type HardwareConfig struct {
	// Backend is "hwmon" or "fake".
	Backend   string `yaml:"backend" toml:"backend"`
	SysfsRoot string `yaml:"sysfs_root" toml:"sysfs_root"`
	// FakeLayout is an optional YAML layout file for the fake backend.
	FakeLayout string `yaml:"fake_layout" toml:"fake_layout"`
}

// JournalConfig contains the SQLite override journal settings.
type JournalConfig struct {
	Enabled     bool   `yaml:"enabled" toml:"enabled"`
	Path        string `yaml:"path" toml:"path"`
	WALMode     bool   `yaml:"wal_mode" toml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout" toml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled" toml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker" toml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth" toml:"auth"`
	QoS         int                 `yaml:"qos" toml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix" toml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect" toml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host" toml:"host"`
	Port     int    `yaml:"port" toml:"port"`
	TLS      bool   `yaml:"tls" toml:"tls"`
	ClientID string `yaml:"client_id" toml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username" toml:"username"`
	Password string `yaml:"password" toml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay" toml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay" toml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled" toml:"enabled"`
	URL           string `yaml:"url" toml:"url"`
	Token         string `yaml:"token" toml:"token"`
	Org           string `yaml:"org" toml:"org"`
	Bucket        string `yaml:"bucket" toml:"bucket"`
	BatchSize     int    `yaml:"batch_size" toml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval" toml:"flush_interval"`
}

// StatusConfig contains the read-only HTTP status endpoint settings.
type StatusConfig struct {
	Enabled  bool                `yaml:"enabled" toml:"enabled"`
	Host     string              `yaml:"host" toml:"host"`
	Port     int                 `yaml:"port" toml:"port"`
	Timeouts StatusTimeoutConfig `yaml:"timeouts" toml:"timeouts"`
}

// StatusTimeoutConfig contains HTTP timeout settings in seconds.
type StatusTimeoutConfig struct {
	Read  int `yaml:"read" toml:"read"`
	Write int `yaml:"write" toml:"write"`
	Idle  int `yaml:"idle" toml:"idle"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level" toml:"level"`
	Format string            `yaml:"format" toml:"format"`
	Output string            `yaml:"output" toml:"output"`
	File   FileLoggingConfig `yaml:"file" toml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path       string `yaml:"path" toml:"path"`
	MaxSize    int    `yaml:"max_size" toml:"max_size"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAge     int    `yaml:"max_age" toml:"max_age"`
	Compress   bool   `yaml:"compress" toml:"compress"`
	// RotateOnStart starts every run with an empty log file.
	RotateOnStart bool `yaml:"rotate_on_start" toml:"rotate_on_start"`
}

// Load reads configuration from a file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. File values (override defaults); skipped when path is empty
//  3. Environment variables (override file values)
//
// Files ending in ".toml" are parsed as TOML, anything else as YAML.
//
// Environment variables follow the pattern: FANCONTROL_SECTION_KEY
// For example: FANCONTROL_SERVER_PORT, FANCONTROL_JOURNAL_PATH
//
// Parameters:
//   - path: Path to the configuration file, or "" for defaults
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if strings.EqualFold(filepath.Ext(path), ".toml") {
			if _, err := toml.Decode(string(data), cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address: "127.0.0.1",
			Port:    55555,
			MaxPort: 65535,
		},
		Hardware: HardwareConfig{
			Backend:   "hwmon",
			SysfsRoot: "/sys",
		},
		Logging: LoggingConfig{
			Level:  "error",
			Format: "text",
			Output: "stderr",
			File: FileLoggingConfig{
				MaxSize:       10,
				MaxBackups:    3,
				MaxAge:        28,
				RotateOnStart: true,
			},
		},
		Journal: JournalConfig{
			Path:        "./data/fancontrol.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "fancontrold",
			},
			QoS:         1,
			TopicPrefix: "fancontrol",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Org:           "fancontrol",
			Bucket:        "fancontrol",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Status: StatusConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: StatusTimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: FANCONTROL_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// Server
	if v := os.Getenv("FANCONTROL_SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FANCONTROL_SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}

	// Hardware
	if v := os.Getenv("FANCONTROL_HARDWARE_BACKEND"); v != "" {
		cfg.Hardware.Backend = v
	}
	if v := os.Getenv("FANCONTROL_HARDWARE_SYSFS_ROOT"); v != "" {
		cfg.Hardware.SysfsRoot = v
	}

	// Logging
	if v := os.Getenv("FANCONTROL_LOG_FILE"); v != "" {
		cfg.Logging.File.Path = v + ".fancontrold.log"
	}

	// Journal
	if v := os.Getenv("FANCONTROL_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
		cfg.Journal.Enabled = true
	}

	// MQTT
	if v := os.Getenv("FANCONTROL_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("FANCONTROL_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("FANCONTROL_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("FANCONTROL_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Server validation
	if ip := net.ParseIP(c.Server.Address); ip == nil || !ip.IsLoopback() {
		errs = append(errs, "server.address must be a loopback address")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.Server.MaxPort < c.Server.Port || c.Server.MaxPort > 65535 {
		errs = append(errs, "server.max_port must be between server.port and 65535")
	}

	// Hardware validation
	switch c.Hardware.Backend {
	case "hwmon", "fake":
	default:
		errs = append(errs, "hardware.backend must be hwmon or fake")
	}

	// Logging validation
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, "logging.level must be debug, info, warn, or error")
	}

	// Journal validation
	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, "journal.path is required when the journal is enabled")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	// Status validation
	if c.Status.Enabled && (c.Status.Port < 1 || c.Status.Port > 65535) {
		errs = append(errs, "status.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the status read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.Status.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the status write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.Status.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the status idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.Status.Timeouts.Idle) * time.Second
}
