package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
site:
  id: "test-site"
gateway:
  transport: "serial"
  serial:
    port: "/dev/ttyACM0"
    baud_rate: 38400
  auto_assign_id: false
database:
  path: "/tmp/test.db"
mqtt:
  broker:
    host: "broker.local"
    port: 1883
  qos: 1
  publish_messages: true
api:
  port: 8080
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.Gateway.Serial.Port != "/dev/ttyACM0" {
		t.Errorf("Serial.Port = %q, want %q", cfg.Gateway.Serial.Port, "/dev/ttyACM0")
	}
	if cfg.Gateway.Serial.BaudRate != 38400 {
		t.Errorf("Serial.BaudRate = %d, want 38400", cfg.Gateway.Serial.BaudRate)
	}
	if cfg.Gateway.AutoAssignID {
		t.Error("AutoAssignID should be overridden to false")
	}
	// Untouched fields keep their defaults.
	if cfg.Gateway.Serial.Parity != "N" {
		t.Errorf("Serial.Parity = %q, want default %q", cfg.Gateway.Serial.Parity, "N")
	}
	if cfg.Gateway.MessageLogSize != 500 {
		t.Errorf("MessageLogSize = %d, want default 500", cfg.Gateway.MessageLogSize)
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	if !cfg.MQTT.PublishMessages {
		t.Error("MQTT.PublishMessages should be set from publish_messages")
	}
	if !cfg.Gateway.StoreMessages {
		t.Error("publish_messages must not affect Gateway.StoreMessages")
	}
}

func TestDefaults_PublishMessagesIndependentOfMessageLog(t *testing.T) {
	cfg := defaultConfig()
	if cfg.MQTT.PublishMessages {
		t.Error("MQTT.PublishMessages should default to false")
	}
	if !cfg.Gateway.StoreMessages {
		t.Error("Gateway.StoreMessages should default to true")
	}

	t.Setenv("SENSORGW_MQTT_PUBLISH_MESSAGES", "true")
	applyEnvOverrides(cfg)
	if !cfg.MQTT.PublishMessages {
		t.Error("SENSORGW_MQTT_PUBLISH_MESSAGES override not applied")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
site:
  id: ""
`)
	if _, err := Load(path); err == nil {
		t.Error("Load() expected validation error for empty site.id, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SENSORGW_SERIAL_PORT", "/dev/ttyS9")
	t.Setenv("SENSORGW_SERIAL_BAUD", "57600")
	t.Setenv("SENSORGW_DATABASE_PATH", "/var/lib/sensorgw.db")
	t.Setenv("SENSORGW_MQTT_PASSWORD", "s3cret")

	cfg, err := Load(writeConfig(t, "site:\n  id: x\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Gateway.Serial.Port != "/dev/ttyS9" {
		t.Errorf("Serial.Port = %q, want env override", cfg.Gateway.Serial.Port)
	}
	if cfg.Gateway.Serial.BaudRate != 57600 {
		t.Errorf("Serial.BaudRate = %d, want 57600", cfg.Gateway.Serial.BaudRate)
	}
	if cfg.Database.Path != "/var/lib/sensorgw.db" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
	if cfg.MQTT.Auth.Password != "s3cret" {
		t.Error("MQTT password env override not applied")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "missing site id",
			mutate:  func(c *Config) { c.Site.ID = "" },
			wantErr: "site.id",
		},
		{
			name:    "unknown transport",
			mutate:  func(c *Config) { c.Gateway.Transport = "usb" },
			wantErr: "gateway.transport",
		},
		{
			name:    "serial without port",
			mutate:  func(c *Config) { c.Gateway.Serial.Port = "" },
			wantErr: "gateway.serial.port",
		},
		{
			name: "tcp without address",
			mutate: func(c *Config) {
				c.Gateway.Transport = TransportTCP
				c.Gateway.TCP.Address = ""
			},
			wantErr: "gateway.tcp.address",
		},
		{
			name:    "reboot pacing below minimum",
			mutate:  func(c *Config) { c.Gateway.RebootIntervalMS = 5 },
			wantErr: "reboot_interval_ms",
		},
		{
			name:    "message log without capacity",
			mutate:  func(c *Config) { c.Gateway.MessageLogSize = 0 },
			wantErr: "message_log_size",
		},
		{
			name:    "invalid qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "invalid api port",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: "api.port",
		},
		{
			name: "influx enabled without url",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.URL = ""
			},
			wantErr: "influxdb.url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_CollectsAllErrors(t *testing.T) {
	cfg := defaultConfig()
	cfg.Site.ID = ""
	cfg.API.Port = -1

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	msg := err.Error()
	if !strings.HasPrefix(msg, "configuration errors:") {
		t.Errorf("error %q should start with configuration errors prefix", msg)
	}
	if !strings.Contains(msg, "site.id") || !strings.Contains(msg, "api.port") {
		t.Errorf("error %q should list both problems", msg)
	}
}

func TestConfig_Durations(t *testing.T) {
	cfg := defaultConfig()

	if got := cfg.RebootInterval(); got != 10*time.Millisecond {
		t.Errorf("RebootInterval() = %v, want 10ms", got)
	}
	if got := cfg.HealthInterval(); got != 30*time.Second {
		t.Errorf("HealthInterval() = %v, want 30s", got)
	}
	if got := cfg.GetReadTimeout(); got != 30*time.Second {
		t.Errorf("GetReadTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetIdleTimeout(); got != 60*time.Second {
		t.Errorf("GetIdleTimeout() = %v, want 60s", got)
	}
}
