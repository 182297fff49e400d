// Govee2MQTT - Govee cloud to Home Assistant bridge
//
// This is the main entry point for the bridge. It polls the Govee cloud
// API for devices and their state, publishes them to an MQTT broker using
// Home Assistant discovery, and forwards Home Assistant commands back to
// the vendor.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/govee2mqtt/internal/api"
	"github.com/nerrad567/govee2mqtt/internal/auth"
	"github.com/nerrad567/govee2mqtt/internal/bridges/govee"
	goveeapi "github.com/nerrad567/govee2mqtt/internal/govee"
	"github.com/nerrad567/govee2mqtt/internal/infrastructure/config"
	"github.com/nerrad567/govee2mqtt/internal/infrastructure/database"
	"github.com/nerrad567/govee2mqtt/internal/infrastructure/influxdb"
	"github.com/nerrad567/govee2mqtt/internal/infrastructure/logging"
	"github.com/nerrad567/govee2mqtt/internal/infrastructure/mqtt"
	"github.com/nerrad567/govee2mqtt/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

const (
	// defaultConfigPath is used when GOVEE2MQTT_CONFIG is unset.
	defaultConfigPath = "configs/config.yaml"

	// shutdownTimeout bounds how long the refresh loops get to finish.
	shutdownTimeout = 10 * time.Second
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := printToken(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on a clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting govee2mqtt",
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

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", db.Path())

	vendor, usageRepo, err := newVendorClient(ctx, cfg, db, log)
	if err != nil {
		return err
	}
	defer func() {
		saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if saveErr := usageRepo.Save(saveCtx, vendor.Usage()); saveErr != nil {
			log.Error("error saving api usage", "error", saveErr)
		}
	}()

	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT connected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", mqttClient.ClientID(),
	)

	// InfluxDB is optional; a failed connection only costs the statistics.
	var stats govee.StatsWriter
	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		log.Warn("InfluxDB unavailable, statistics disabled", "error", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		stats = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	if err := healthCheck(ctx, db, mqttClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	bridge, err := govee.NewBridge(govee.Options{
		MQTT:        &mqttBridgeAdapter{client: mqttClient},
		API:         vendor,
		Topics:      mqttClient.Topics(),
		QoS:         byte(cfg.MQTT.QoS), // #nosec G115 -- validated 0..2
		ServiceName: cfg.Service.Name,
		Version:     version,
		Intervals: govee.Intervals{
			DeviceList: seconds(cfg.Govee.DeviceListInterval),
			Device:     seconds(cfg.Govee.DeviceInterval),
			Boost:      seconds(cfg.Govee.DeviceBoostInterval),
			Heartbeat:  seconds(cfg.Service.HeartbeatInterval),
		},
		DiscoveryGrace: seconds(cfg.Service.DiscoveryGrace),
		CommandDelay:   cfg.GetCommandDelay(),
		Location:       cfg.Location(),
		ReadyFile:      cfg.Service.ReadyFile,
		Stats:          stats,
		Logger:         log.Component("bridge"),
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	if cfg.API.Enabled {
		apiServer, apiErr := api.New(api.Deps{
			Config:  cfg.API,
			Logger:  log.Component("api"),
			Bridge:  bridge,
			MQTT:    &mqttBridgeAdapter{client: mqttClient},
			Topics:  mqttClient.Topics(),
			QoS:     byte(cfg.MQTT.QoS), // #nosec G115 -- validated 0..2
			Version: version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if apiErr := apiServer.Start(ctx); apiErr != nil {
			return fmt.Errorf("starting API server: %w", apiErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, cleaning up")
	case runErr = <-bridge.Err():
		log.Error("bridge failed", "error", runErr)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := bridge.Stop(stopCtx); err != nil {
		log.Error("error stopping bridge", "error", err)
	}

	log.Info("govee2mqtt stopped")
	return runErr
}

// newVendorClient creates the Govee API client and restores today's call
// counter from the database.
func newVendorClient(ctx context.Context, cfg *config.Config, db *database.DB, log *logging.Logger) (*goveeapi.Client, goveeapi.UsageRepository, error) {
	client, err := goveeapi.NewClient(goveeapi.Options{
		APIKey:   cfg.Govee.APIKey,
		BaseURL:  cfg.Govee.BaseURL,
		Timeout:  cfg.GetRequestTimeout(),
		Location: cfg.Location(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating Govee client: %w", err)
	}
	client.SetLogger(log.Component("govee"))

	repo := goveeapi.NewSQLiteUsageRepository(db.DB)
	usage, err := repo.Load(ctx)
	switch {
	case errors.Is(err, goveeapi.ErrUsageNotFound):
	case err != nil:
		log.Warn("could not restore api usage", "error", err)
	default:
		client.RestoreUsage(usage)
		log.Info("api usage restored", "calls", usage.APICalls, "date", usage.LastCallDate)
	}

	return client, repo, nil
}

// printToken implements "govee2mqtt token <subject> [read|control]". It
// signs a diagnostics API token with the configured api.jwt_secret.
func printToken(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: govee2mqtt token <subject> [read|control]")
	}
	scope := auth.ScopeRead
	if len(args) > 1 {
		scope = auth.Scope(args[1])
	}
	if scope != auth.ScopeRead && scope != auth.ScopeControl {
		return fmt.Errorf("unknown scope %q", scope)
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	token, err := auth.GenerateToken(args[0], scope, cfg.API.JWTSecret, auth.DefaultTTL)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GOVEE2MQTT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GOVEE2MQTT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// healthCheck verifies the database and broker connections.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	return nil
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface. The infrastructure handlers return an error; the
// bridge logs its own failures and returns nothing.
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements govee.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements govee.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements govee.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
