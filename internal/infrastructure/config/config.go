package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport kinds accepted in gateway.transport.
const (
	TransportSerial = "serial"
	TransportTCP    = "tcp"
)

// MinRebootInterval is the smallest pacing delay allowed between reboot requests.
const MinRebootInterval = 10 * time.Millisecond

// Config is the root configuration structure for the sensor gateway.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SiteConfig identifies the installation. The site ID is used in MQTT topics.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// GatewayConfig controls the sensor-network gateway core and its transport.
type GatewayConfig struct {
	// Transport selects how the gateway radio is reached: "serial" or "tcp".
	Transport string             `yaml:"transport"`
	Serial    SerialConfig       `yaml:"serial"`
	TCP       TCPTransportConfig `yaml:"tcp"`

	// AutoAssignID answers ID requests from unassigned nodes with a free id.
	AutoAssignID bool `yaml:"auto_assign_id"`

	// StoreMessages keeps a bounded log of inbound and outbound messages.
	StoreMessages  bool `yaml:"store_messages"`
	MessageLogSize int  `yaml:"message_log_size"`

	// RebootIntervalMS is the pause between reboot requests during a broadcast.
	RebootIntervalMS int `yaml:"reboot_interval_ms"`

	// TimeResponse answers node time requests with the current Unix time.
	TimeResponse bool `yaml:"time_response"`

	// HealthInterval is how often the gateway health is published, in seconds.
	HealthInterval int `yaml:"health_interval"`
}

// SerialConfig describes the serial port the gateway radio is attached to.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
	DataBits int    `yaml:"data_bits"`
	StopBits int    `yaml:"stop_bits"`
	Parity   string `yaml:"parity"`
	Timeout  int    `yaml:"timeout"`
}

// TCPTransportConfig describes an Ethernet gateway reachable over TCP.
type TCPTransportConfig struct {
	Address     string `yaml:"address"`
	DialTimeout int    `yaml:"dial_timeout"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
	TopicPrefix string              `yaml:"topic_prefix"`

	// PublishMessages mirrors every raw frame, in both directions, to
	// {prefix}/message/{direction}.
	PublishMessages bool `yaml:"publish_messages"`
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
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
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

// InfluxDBConfig contains InfluxDB connection settings for sensor history.
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
// Environment variables follow the pattern SENSORGW_SECTION_KEY,
// for example SENSORGW_DATABASE_PATH or SENSORGW_SERIAL_PORT.
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
			ID:   "site-001",
			Name: "MySensors Gateway",
		},
		Gateway: GatewayConfig{
			Transport: TransportSerial,
			Serial: SerialConfig{
				Port:     "/dev/ttyUSB0",
				BaudRate: 115200,
				DataBits: 8,
				StopBits: 1,
				Parity:   "N",
				Timeout:  10,
			},
			TCP: TCPTransportConfig{
				Address:     "192.168.1.50:5003",
				DialTimeout: 5,
			},
			AutoAssignID:     true,
			StoreMessages:    true,
			MessageLogSize:   500,
			RebootIntervalMS: 10,
			TimeResponse:     true,
			HealthInterval:   30,
		},
		Database: DatabaseConfig{
			Path:        "./data/sensorgw.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "sensorgw",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			TopicPrefix: "sensorgw",
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
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SENSORGW_SERIAL_PORT"); v != "" {
		cfg.Gateway.Serial.Port = v
	}
	if v := os.Getenv("SENSORGW_SERIAL_BAUD"); v != "" {
		if baud, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Serial.BaudRate = baud
		}
	}
	if v := os.Getenv("SENSORGW_GATEWAY_TRANSPORT"); v != "" {
		cfg.Gateway.Transport = v
	}
	if v := os.Getenv("SENSORGW_TCP_ADDRESS"); v != "" {
		cfg.Gateway.TCP.Address = v
	}

	if v := os.Getenv("SENSORGW_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("SENSORGW_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SENSORGW_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SENSORGW_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("SENSORGW_MQTT_PUBLISH_MESSAGES"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.MQTT.PublishMessages = enabled
		}
	}

	if v := os.Getenv("SENSORGW_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("SENSORGW_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	switch c.Gateway.Transport {
	case TransportSerial:
		if c.Gateway.Serial.Port == "" {
			errs = append(errs, "gateway.serial.port is required for serial transport")
		}
		if c.Gateway.Serial.BaudRate <= 0 {
			errs = append(errs, "gateway.serial.baud_rate must be positive")
		}
	case TransportTCP:
		if c.Gateway.TCP.Address == "" {
			errs = append(errs, "gateway.tcp.address is required for tcp transport")
		}
	default:
		errs = append(errs, fmt.Sprintf("gateway.transport must be %q or %q", TransportSerial, TransportTCP))
	}
	if c.Gateway.StoreMessages && c.Gateway.MessageLogSize < 1 {
		errs = append(errs, "gateway.message_log_size must be at least 1 when store_messages is enabled")
	}
	if c.RebootInterval() < MinRebootInterval {
		errs = append(errs, "gateway.reboot_interval_ms must be at least 10")
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

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// RebootInterval returns the reboot broadcast pacing delay.
func (c *Config) RebootInterval() time.Duration {
	return time.Duration(c.Gateway.RebootIntervalMS) * time.Millisecond
}

// HealthInterval returns the health publishing interval.
func (c *Config) HealthInterval() time.Duration {
	return time.Duration(c.Gateway.HealthInterval) * time.Second
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
