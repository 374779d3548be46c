package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for ptcontrol.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
	Control    ControlConfig    `yaml:"control"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
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

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
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

// ControlConfig contains control loop settings.
type ControlConfig struct {
	// IntervalSeconds is the tick period of the control loop.
	IntervalSeconds int `yaml:"interval_seconds"`

	// StoreWriteTimeout bounds each background store write (in seconds).
	StoreWriteTimeout int `yaml:"store_write_timeout"`

	Temperature ThresholdConfig `yaml:"temperature"`
	Pressure    ThresholdConfig `yaml:"pressure"`
}

// ThresholdConfig is an inclusive operating band. Values strictly outside
// [Min, Max] are out of range.
type ThresholdConfig struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// AlertsConfig contains alert buffer settings.
type AlertsConfig struct {
	Capacity   int `yaml:"capacity"`
	QueryLimit int `yaml:"query_limit"`
}

// SupervisorConfig contains settings for the supervise command, which runs
// ingestion and control as separate child processes. Durations are in seconds.
type SupervisorConfig struct {
	IngestAPIPort   int `yaml:"ingest_api_port"`
	ControlAPIPort  int `yaml:"control_api_port"`
	RestartDelay    int `yaml:"restart_delay"`
	MaxRestartDelay int `yaml:"max_restart_delay"`
	MaxRestarts     int `yaml:"max_restarts"`
	StopTimeout     int `yaml:"stop_timeout"`
	HealthInterval  int `yaml:"health_interval"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: PTCONTROL_SECTION_KEY
// For example: PTCONTROL_DATABASE_PATH, PTCONTROL_API_PORT
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

// Default returns the built-in configuration without reading any file.
// Environment overrides are not applied.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "plant-001",
			Name: "ptcontrol",
		},
		Database: DatabaseConfig{
			Path:        "./data/ptcontrol.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "ptcontrol",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 5000,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
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
		Control: ControlConfig{
			IntervalSeconds:   10,
			StoreWriteTimeout: 5,
			Temperature:       ThresholdConfig{Min: 15, Max: 95},
			Pressure:          ThresholdConfig{Min: 2.1, Max: 8.1},
		},
		Alerts: AlertsConfig{
			Capacity:   100,
			QueryLimit: 3,
		},
		Supervisor: SupervisorConfig{
			IngestAPIPort:   5001,
			ControlAPIPort:  5002,
			RestartDelay:    5,
			MaxRestartDelay: 60,
			MaxRestarts:     0,
			StopTimeout:     15,
			HealthInterval:  30,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: PTCONTROL_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("PTCONTROL_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("PTCONTROL_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("PTCONTROL_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("PTCONTROL_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("PTCONTROL_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("PTCONTROL_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("PTCONTROL_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("PTCONTROL_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("PTCONTROL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
// All problems are reported together rather than stopping at the first.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.Control.IntervalSeconds < 1 {
		errs = append(errs, "control.interval_seconds must be at least 1")
	}
	if c.Control.StoreWriteTimeout < 1 {
		errs = append(errs, "control.store_write_timeout must be at least 1")
	}
	if c.Control.Temperature.Min >= c.Control.Temperature.Max {
		errs = append(errs, "control.temperature.min must be less than control.temperature.max")
	}
	if c.Control.Pressure.Min >= c.Control.Pressure.Max {
		errs = append(errs, "control.pressure.min must be less than control.pressure.max")
	}

	if c.Alerts.Capacity < 1 {
		errs = append(errs, "alerts.capacity must be at least 1")
	}
	if c.Alerts.QueryLimit < 1 || c.Alerts.QueryLimit > c.Alerts.Capacity {
		errs = append(errs, "alerts.query_limit must be between 1 and alerts.capacity")
	}

	if p := c.Supervisor.IngestAPIPort; p < 1 || p > 65535 {
		errs = append(errs, "supervisor.ingest_api_port must be between 1 and 65535")
	}
	if p := c.Supervisor.ControlAPIPort; p < 1 || p > 65535 {
		errs = append(errs, "supervisor.control_api_port must be between 1 and 65535")
	}
	if c.Supervisor.IngestAPIPort == c.Supervisor.ControlAPIPort {
		errs = append(errs, "supervisor.ingest_api_port and supervisor.control_api_port must differ")
	}
	if c.Supervisor.MaxRestarts < 0 {
		errs = append(errs, "supervisor.max_restarts must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// TickInterval returns the control loop period as a Duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Control.IntervalSeconds) * time.Second
}

// StoreWriteTimeout returns the per-write store timeout as a Duration.
func (c *Config) StoreWriteTimeout() time.Duration {
	return time.Duration(c.Control.StoreWriteTimeout) * time.Second
}
