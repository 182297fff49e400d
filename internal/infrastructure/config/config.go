package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for govee2mqtt.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Govee    GoveeConfig    `yaml:"govee"`
	Database DatabaseConfig `yaml:"database"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServiceConfig contains settings for the bridge process itself.
type ServiceConfig struct {
	// Name is shown as the service device name in Home Assistant.
	Name string `yaml:"name"`

	// Timezone decides when the daily API call counter rolls over.
	Timezone string `yaml:"timezone"`

	// ReadyFile is touched on every heartbeat for container health probes.
	ReadyFile string `yaml:"ready_file"`

	// HeartbeatInterval is the heartbeat period in seconds.
	HeartbeatInterval int `yaml:"heartbeat_interval"`

	// DiscoveryGrace is the wait (seconds) after the first device list pass
	// before everything is rediscovered.
	DiscoveryGrace int `yaml:"discovery_grace"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker          MQTTBrokerConfig    `yaml:"broker"`
	Auth            MQTTAuthConfig      `yaml:"auth"`
	QoS             int                 `yaml:"qos"`
	Prefix          string              `yaml:"prefix"`
	DiscoveryPrefix string              `yaml:"discovery_prefix"`
	Reconnect       MQTTReconnectConfig `yaml:"reconnect"`
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
}

// GoveeConfig contains the Govee cloud API settings and polling intervals.
// Intervals are in seconds.
type GoveeConfig struct {
	APIKey              string `yaml:"api_key"`
	BaseURL             string `yaml:"base_url"`
	DeviceInterval      int    `yaml:"device_interval"`
	DeviceBoostInterval int    `yaml:"device_boost_interval"`
	DeviceListInterval  int    `yaml:"device_list_interval"`
	RequestTimeout      int    `yaml:"request_timeout"`
	CommandDelayMS      int    `yaml:"command_delay_ms"`
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

// APIConfig contains the optional diagnostics HTTP server settings.
type APIConfig struct {
	Enabled   bool             `yaml:"enabled"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	Timeouts  APITimeoutConfig `yaml:"timeouts"`
	WebSocket WebSocketConfig  `yaml:"websocket"`

	// JWTSecret enables bearer token auth on every route except health.
	JWTSecret string `yaml:"jwt_secret"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket settings for the state stream.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment overrides.
//
// The loading process:
//  1. Start from built-in defaults
//  2. Read and parse the YAML file
//  3. Apply environment variable overrides
//  4. Validate the result
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If loading, parsing, or validation fails
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

// defaultConfig returns a configuration with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:              "Govee2MQTT",
			Timezone:          "UTC",
			ReadyFile:         "/tmp/govee2mqtt.ready",
			HeartbeatInterval: 60,
			DiscoveryGrace:    5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS:             0,
			Prefix:          "govee2mqtt",
			DiscoveryPrefix: "homeassistant",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Govee: GoveeConfig{
			BaseURL:             "https://openapi.api.govee.com/router/api/v1",
			DeviceInterval:      30,
			DeviceBoostInterval: 5,
			DeviceListInterval:  3600,
			RequestTimeout:      10,
			CommandDelayMS:      1000,
		},
		Database: DatabaseConfig{
			Path:        "./data/govee2mqtt.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			WebSocket: WebSocketConfig{
				MaxMessageSize: 8192,
				PingInterval:   30,
				PongTimeout:    10,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// The MQTT_* and GOVEE_* names match the ones documented for the container image.
// Numeric values that fail to parse are ignored.
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	envInt("MQTT_PORT", &cfg.MQTT.Broker.Port)
	envInt("MQTT_QOS", &cfg.MQTT.QoS)
	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("MQTT_PREFIX"); v != "" {
		cfg.MQTT.Prefix = v
	}
	if v := os.Getenv("MQTT_DISCOVERY_PREFIX"); v != "" {
		cfg.MQTT.DiscoveryPrefix = v
	}

	// Govee
	if v := os.Getenv("GOVEE_API_KEY"); v != "" {
		cfg.Govee.APIKey = v
	}
	envInt("GOVEE_DEVICE_INTERVAL", &cfg.Govee.DeviceInterval)
	envInt("GOVEE_DEVICE_BOOST_INTERVAL", &cfg.Govee.DeviceBoostInterval)
	envInt("GOVEE_LIST_INTERVAL", &cfg.Govee.DeviceListInterval)

	// Service
	if v := os.Getenv("TZ"); v != "" {
		cfg.Service.Timezone = v
	}
	if v := os.Getenv("READY_FILE"); v != "" {
		cfg.Service.ReadyFile = v
	}
	if debug, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && debug {
		cfg.Logging.Level = "debug"
	}

	// Storage
	if v := os.Getenv("GOVEE2MQTT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("GOVEE2MQTT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// API
	if v := os.Getenv("GOVEE2MQTT_API_JWT_SECRET"); v != "" {
		cfg.API.JWTSecret = v
	}
}

func envInt(name string, dst *int) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

// Refresh interval limits in seconds. They match the ranges of the
// interval controls published to Home Assistant.
const (
	MaxIntervalSeconds      = 3600
	MaxBoostIntervalSeconds = 30
)

// Validate checks that all required configuration values are present and valid.
// It reports every problem at once rather than stopping at the first.
func (c *Config) Validate() error {
	var errs []string

	// Govee validation
	if c.Govee.APIKey == "" {
		errs = append(errs, "govee.api_key is required (set GOVEE_API_KEY environment variable)")
	}
	if c.Govee.BaseURL == "" {
		errs = append(errs, "govee.base_url is required")
	}
	if c.Govee.DeviceInterval <= 0 || c.Govee.DeviceInterval > MaxIntervalSeconds {
		errs = append(errs, fmt.Sprintf("govee.device_interval must be 1..%d", MaxIntervalSeconds))
	}
	if c.Govee.DeviceBoostInterval <= 0 || c.Govee.DeviceBoostInterval > MaxBoostIntervalSeconds {
		errs = append(errs, fmt.Sprintf("govee.device_boost_interval must be 1..%d", MaxBoostIntervalSeconds))
	}
	if c.Govee.DeviceListInterval <= 0 || c.Govee.DeviceListInterval > MaxIntervalSeconds {
		errs = append(errs, fmt.Sprintf("govee.device_list_interval must be 1..%d", MaxIntervalSeconds))
	}
	if c.Govee.CommandDelayMS < 0 {
		errs = append(errs, "govee.command_delay_ms must not be negative")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if !validTopicSegment(c.MQTT.Prefix) {
		errs = append(errs, "mqtt.prefix must be non-empty and free of MQTT wildcards")
	}
	if !validTopicSegment(c.MQTT.DiscoveryPrefix) {
		errs = append(errs, "mqtt.discovery_prefix must be non-empty and free of MQTT wildcards")
	}

	// Service validation
	if _, err := time.LoadLocation(c.Service.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("service.timezone %q is not a known zone", c.Service.Timezone))
	}
	if c.Service.HeartbeatInterval <= 0 {
		errs = append(errs, "service.heartbeat_interval must be positive")
	}

	// API validation
	if c.API.Enabled {
		if c.API.Port < 1 || c.API.Port > 65535 {
			errs = append(errs, "api.port must be between 1 and 65535")
		}
		if c.API.WebSocket.PingInterval <= 0 || c.API.WebSocket.PongTimeout <= 0 {
			errs = append(errs, "api.websocket ping_interval and pong_timeout must be positive")
		}
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func validTopicSegment(s string) bool {
	return s != "" && !strings.ContainsAny(s, "#+")
}

// Location returns the configured timezone.
// Validate guarantees it loads, so UTC is only a fallback for unvalidated configs.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Service.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GetRequestTimeout returns the vendor HTTP request timeout as a duration.
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.Govee.RequestTimeout) * time.Second
}

// GetCommandDelay returns the pause between consecutive vendor commands.
func (c *Config) GetCommandDelay() time.Duration {
	return time.Duration(c.Govee.CommandDelayMS) * time.Millisecond
}
