package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Auth modes accepted in auth.mode.
const (
	AuthModeNone   = "none"
	AuthModeSocket = "socket"
	AuthModeJWT    = "jwt"
)

// Config is the root configuration structure for the Z-Wave gateway.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Scenes    ScenesConfig    `yaml:"scenes"`
	Cron      CronConfig      `yaml:"cron"`
	Driver    DriverConfig    `yaml:"driver"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Auth      AuthConfig      `yaml:"auth"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string         `yaml:"id"`
	Name     string         `yaml:"name"`
	Timezone string         `yaml:"timezone"`
	Location LocationConfig `yaml:"location"`
}

// LocationConfig contains geographic coordinates for sunrise and sunset.
type LocationConfig struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// GatewayConfig contains the line protocol listener and the delays of
// deferred work. Delays are in seconds.
type GatewayConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	PollInterval    int    `yaml:"poll_interval"` // minutes, 0 keeps the driver default
	UpdateDelay     int    `yaml:"update_delay"`
	ThermostatDelay int    `yaml:"thermostat_delay"`
	CacheInitDelay  int    `yaml:"cache_init_delay"`
}

// ScenesConfig names the scenes used by the at-home automation.
type ScenesConfig struct {
	Morning string `yaml:"morning"`
	Day     string `yaml:"day"`
	Night   string `yaml:"night"`
	Away    string `yaml:"away"`
}

// CronConfig controls the built-in daily CRON run.
type CronConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
}

// DriverConfig contains settings for the MQTT-attached Z-Wave driver.
type DriverConfig struct {
	// TopicPrefix is the root of the driver's event and command topics.
	TopicPrefix string `yaml:"topic_prefix"`

	// EventBuffer is the capacity of the event channel. Events arriving
	// while it is full are dropped with a warning.
	EventBuffer int `yaml:"event_buffer"`

	// Daemon configures an optional supervised driver process.
	Daemon DaemonConfig `yaml:"daemon"`
}

// DaemonConfig contains settings for managing the driver daemon.
type DaemonConfig struct {
	// Managed indicates whether the gateway starts and supervises the
	// daemon. If false, the daemon is expected to run externally.
	Managed bool `yaml:"managed"`

	// Binary is the path to the daemon executable.
	Binary string `yaml:"binary"`

	// Args are passed to the daemon verbatim.
	Args []string `yaml:"args"`

	// RestartOnFailure enables automatic restart if the daemon exits.
	RestartOnFailure bool `yaml:"restart_on_failure"`

	// RestartDelaySeconds is the time to wait before restarting.
	RestartDelaySeconds int `yaml:"restart_delay_seconds"`

	// MaxRestartAttempts limits restart attempts. 0 means unlimited.
	MaxRestartAttempts int `yaml:"max_restart_attempts"`
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

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
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

// AuthConfig selects how WebSocket clients authenticate.
type AuthConfig struct {
	// Mode is none, socket or jwt.
	Mode string `yaml:"mode"`

	// SocketPath is the identity helper socket used in socket mode.
	SocketPath   string `yaml:"socket_path"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`

	// JWTSecret signs tokens in jwt mode.
	JWTSecret string `yaml:"jwt_secret"`

	// CacheTTL is how long, in seconds, a validated token is trusted.
	CacheTTL int `yaml:"cache_ttl"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_DATABASE_PATH, GRAYLOGIC_GATEWAY_PORT
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
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "Gray Logic Z-Wave",
			Timezone: "UTC",
		},
		Gateway: GatewayConfig{
			Host:            "0.0.0.0",
			Port:            6004,
			UpdateDelay:     10,
			ThermostatDelay: 10,
			CacheInitDelay:  5,
		},
		Scenes: ScenesConfig{
			Morning: "Morning",
			Day:     "Day",
			Night:   "Night",
			Away:    "Away",
		},
		Cron: CronConfig{
			Enabled:  true,
			Schedule: "15 4 * * *",
		},
		Driver: DriverConfig{
			TopicPrefix: "graylogic/zwave",
			EventBuffer: 256,
			Daemon: DaemonConfig{
				RestartOnFailure:    true,
				RestartDelaySeconds: 5,
				MaxRestartAttempts:  10,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/zwave.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-zwave",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
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
		Auth: AuthConfig{
			Mode:       AuthModeNone,
			SocketPath: "/tmp/gapi.sock",
			CacheTTL:   300,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Site
	if v := os.Getenv("GRAYLOGIC_SITE_TIMEZONE"); v != "" {
		cfg.Site.Timezone = v
	}
	if v, ok := envFloat("GRAYLOGIC_SITE_LATITUDE"); ok {
		cfg.Site.Location.Latitude = v
	}
	if v, ok := envFloat("GRAYLOGIC_SITE_LONGITUDE"); ok {
		cfg.Site.Location.Longitude = v
	}

	// Gateway
	if v := os.Getenv("GRAYLOGIC_GATEWAY_HOST"); v != "" {
		cfg.Gateway.Host = v
	}
	if v, ok := envInt("GRAYLOGIC_GATEWAY_PORT"); ok {
		cfg.Gateway.Port = v
	}

	// Driver
	if v := os.Getenv("GRAYLOGIC_DRIVER_TOPIC_PREFIX"); v != "" {
		cfg.Driver.TopicPrefix = v
	}

	// Database
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("GRAYLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v, ok := envInt("GRAYLOGIC_API_PORT"); ok {
		cfg.API.Port = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Auth - secrets belong in the environment, not the file
	if v := os.Getenv("GRAYLOGIC_AUTH_MODE"); v != "" {
		cfg.Auth.Mode = v
	}
	if v := os.Getenv("GRAYLOGIC_AUTH_CLIENT_SECRET"); v != "" {
		cfg.Auth.ClientSecret = v
	}
	if v := os.Getenv("GRAYLOGIC_AUTH_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if _, err := time.LoadLocation(c.Site.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("site.timezone %q is not a known time zone", c.Site.Timezone))
	}
	if lat := c.Site.Location.Latitude; lat < -90 || lat > 90 {
		errs = append(errs, "site.location.latitude must be between -90 and 90")
	}
	if lon := c.Site.Location.Longitude; lon < -180 || lon > 180 {
		errs = append(errs, "site.location.longitude must be between -180 and 180")
	}

	if c.Gateway.Port < 1 || c.Gateway.Port > 65535 {
		errs = append(errs, "gateway.port must be between 1 and 65535")
	}
	if c.Gateway.PollInterval < 0 {
		errs = append(errs, "gateway.poll_interval must not be negative")
	}

	if c.Cron.Enabled && c.Cron.Schedule == "" {
		errs = append(errs, "cron.schedule is required when cron is enabled")
	}

	if c.Driver.TopicPrefix == "" {
		errs = append(errs, "driver.topic_prefix is required")
	}
	if c.Driver.Daemon.Managed && c.Driver.Daemon.Binary == "" {
		errs = append(errs, "driver.daemon.binary is required when the daemon is managed")
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

	// A forged AUTH would hand out control of locks and heating.
	const minJWTSecretLength = 32
	switch c.Auth.Mode {
	case AuthModeNone:
	case AuthModeSocket:
		if c.Auth.SocketPath == "" {
			errs = append(errs, "auth.socket_path is required in socket mode")
		}
	case AuthModeJWT:
		if len(c.Auth.JWTSecret) < minJWTSecretLength {
			errs = append(errs, "auth.jwt_secret must be at least 32 characters (set GRAYLOGIC_AUTH_JWT_SECRET)")
		}
	default:
		errs = append(errs, fmt.Sprintf("auth.mode %q must be none, socket or jwt", c.Auth.Mode))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// TimeLocation returns the site time zone. Validate guarantees it loads.
func (c *Config) TimeLocation() *time.Location {
	loc, err := time.LoadLocation(c.Site.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
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

// Seconds converts a whole-second setting to a Duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
