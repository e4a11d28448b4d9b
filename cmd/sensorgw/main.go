// sensorgw bridges a MySensors radio network to MQTT, InfluxDB and an HTTP
// admin API.
//
// The gateway radio is reached over a serial port or, for Ethernet gateways,
// over TCP. Node and sensor settings are kept in SQLite and reloaded at
// startup.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/mysensors-gateway/migrations"

	"github.com/nerrad567/mysensors-gateway/internal/api"
	"github.com/nerrad567/mysensors-gateway/internal/bridges/mysensors"
	"github.com/nerrad567/mysensors-gateway/internal/history"
	"github.com/nerrad567/mysensors-gateway/internal/infrastructure/config"
	"github.com/nerrad567/mysensors-gateway/internal/infrastructure/database"
	"github.com/nerrad567/mysensors-gateway/internal/infrastructure/influxdb"
	"github.com/nerrad567/mysensors-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/mysensors-gateway/internal/infrastructure/mqtt"
	"github.com/nerrad567/mysensors-gateway/internal/node"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// It returns nil on a clean shutdown.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting sensor gateway",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Gateway core
	metrics := mysensors.NewMetrics()
	gw := mysensors.New(mysensors.Options{
		Metrics:        metrics,
		Logger:         log.With("component", "mysensors"),
		AutoAssignID:   cfg.Gateway.AutoAssignID,
		TimeResponse:   cfg.Gateway.TimeResponse,
		StoreMessages:  cfg.Gateway.StoreMessages,
		MessageLogSize: cfg.Gateway.MessageLogSize,
		RebootInterval: cfg.RebootInterval(),
	})
	defer gw.Close()

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Persistence: load stored nodes before any traffic arrives.
	recCfg := history.Config{
		Gateway:    gw,
		Repository: node.NewSQLiteRepository(db.DB),
		Logger:     log.With("component", "history"),
	}
	if influxClient != nil {
		recCfg.Writer = influxClient
	}
	recorder, err := history.New(recCfg)
	if err != nil {
		return fmt.Errorf("creating history recorder: %w", err)
	}
	if _, loadErr := recorder.Load(ctx); loadErr != nil {
		return fmt.Errorf("loading nodes: %w", loadErr)
	}
	recorder.Start()
	defer func() {
		log.Info("stopping history recorder")
		recorder.Stop()
	}()

	// MQTT (optional)
	var mqttClient *mqtt.Client
	var health *mysensors.HealthReporter
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		publisher, pubErr := mysensors.NewPublisher(mysensors.PublisherOptions{
			Gateway:         gw,
			Client:          mqttClient,
			Topics:          mqttClient.Topics(),
			QoS:             byte(cfg.MQTT.QoS), //nolint:gosec // validated to 0..2
			PublishMessages: cfg.MQTT.PublishMessages,
			Logger:          log.With("component", "publisher"),
		})
		if pubErr != nil {
			return fmt.Errorf("creating MQTT publisher: %w", pubErr)
		}
		if startErr := publisher.Start(); startErr != nil {
			return fmt.Errorf("starting MQTT publisher: %w", startErr)
		}
		defer func() {
			log.Info("stopping MQTT publisher")
			publisher.Stop()
		}()

		health = mysensors.NewHealthReporter(mysensors.HealthReporterConfig{
			GatewayID: cfg.Site.ID,
			Version:   version,
			Address:   linkAddress(cfg.Gateway),
			Topic:     mqttClient.Topics().Health(),
			Interval:  cfg.HealthInterval(),
			Publisher: mqttClient,
			Gateway:   gw,
		})
		health.SetLogger(log)
		if pubErr := health.PublishStarting(); pubErr != nil {
			log.Warn("failed to publish starting status", "error", pubErr)
		}
		health.Start(ctx)
		defer health.Stop()
	} else {
		log.Info("MQTT disabled")
	}

	// Sensor network link
	linkCtx, stopLink := context.WithCancel(ctx)
	linkDone := make(chan struct{})
	go func() {
		defer close(linkDone)
		superviseLink(linkCtx, gw, openerFor(cfg.Gateway, log), log.With("component", "link"))
	}()
	defer func() {
		stopLink()
		<-linkDone
	}()

	// Admin API
	deps := api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Logger:   log.With("component", "api"),
		Gateway:  gw,
		Gatherer: metrics.Gatherer(),
		DB:       db.DB,
		Version:  version,
	}
	if health != nil {
		deps.Health = health
	}
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}
	apiServer, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: API, link, health, publisher,
	// MQTT, recorder, InfluxDB, gateway, database.
	return nil
}

// getConfigPath returns the configuration file path.
// Uses SENSORGW_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SENSORGW_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// mqttClient and influxClient may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	// The sensor network link is not checked: the gateway runs degraded
	// until the supervisor connects it.
	return nil
}

// linkAddress describes the configured link for health messages.
func linkAddress(cfg config.GatewayConfig) string {
	if cfg.Transport == config.TransportTCP {
		return cfg.TCP.Address
	}
	return cfg.Serial.Port
}

// openerFor returns the function that opens the configured link.
func openerFor(cfg config.GatewayConfig, log *logging.Logger) linkOpener {
	if cfg.Transport == config.TransportTCP {
		timeout := time.Duration(cfg.TCP.DialTimeout) * time.Second
		return func(ctx context.Context) (linkTransport, error) {
			t, err := mysensors.DialTCP(ctx, cfg.TCP.Address, timeout, log)
			if err != nil {
				return nil, err
			}
			return t, nil
		}
	}

	serialCfg := mysensors.SerialConfig{
		Port:     cfg.Serial.Port,
		BaudRate: cfg.Serial.BaudRate,
		DataBits: cfg.Serial.DataBits,
		StopBits: cfg.Serial.StopBits,
		Parity:   cfg.Serial.Parity,
		Timeout:  time.Duration(cfg.Serial.Timeout) * time.Second,
	}
	return func(context.Context) (linkTransport, error) {
		t, err := mysensors.OpenSerial(serialCfg, log)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
}
