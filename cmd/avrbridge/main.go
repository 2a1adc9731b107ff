// avrbridge - Anthem AV receiver to MQTT bridge
//
// This is the main entry point for the avrbridge daemon. It maintains a
// persistent TCP control session to an Anthem x00-series receiver,
// mirrors the receiver's state, and bridges it onto MQTT:
//   - Retained state topics per property (avrbridge/state/<name>)
//   - Command topics for control (avrbridge/command/<name>)
//   - Connection status on avrbridge/status
//
// Optional integrations: SQLite transition history, InfluxDB telemetry,
// and supervision of a local serial-to-TCP gateway.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/quiethouse/avrbridge/migrations"

	"github.com/quiethouse/avrbridge/internal/avr"
	"github.com/quiethouse/avrbridge/internal/bridge"
	"github.com/quiethouse/avrbridge/internal/device"
	"github.com/quiethouse/avrbridge/internal/infrastructure/config"
	"github.com/quiethouse/avrbridge/internal/infrastructure/database"
	"github.com/quiethouse/avrbridge/internal/infrastructure/influxdb"
	"github.com/quiethouse/avrbridge/internal/infrastructure/logging"
	"github.com/quiethouse/avrbridge/internal/infrastructure/mqtt"
	"github.com/quiethouse/avrbridge/internal/process"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// linkMetricInterval is how often link health is written to InfluxDB.
const linkMetricInterval = 30 * time.Second

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting avrbridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
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
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Transition history (optional)
	var history device.HistoryRepository
	if cfg.History.Enabled {
		history = device.NewSQLiteHistoryRepository(db.DB)
		log.Info("transition history enabled",
			"retention", cfg.GetHistoryRetention(),
			"prune_interval", cfg.GetPruneInterval(),
		)
	} else {
		log.Info("transition history disabled")
	}

	// Start the serial gateway (if supervised)
	if cfg.Gateway.Enabled {
		gateway, gwErr := startGateway(ctx, cfg, log)
		if gwErr != nil {
			return fmt.Errorf("starting gateway: %w", gwErr)
		}
		defer func() {
			log.Info("stopping gateway")
			if stopErr := gateway.Stop(); stopErr != nil {
				log.Error("error stopping gateway", "error", stopErr)
			}
		}()
	}

	// Connect to MQTT broker
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
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Set up MQTT logging callbacks
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
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

	// Create the receiver client
	avrClient, err := avr.New(avr.Config{
		Host:              cfg.AVR.Host,
		Port:              cfg.AVR.Port,
		ConnectTimeout:    cfg.GetConnectTimeout(),
		CommandTimeout:    cfg.GetCommandTimeout(),
		ReconnectInterval: cfg.GetReconnectDelay(),
		WriteDelay:        cfg.GetWriteDelay(),
		AutoReconnect:     cfg.AVR.AutoReconnect,
	})
	if err != nil {
		return fmt.Errorf("creating receiver client: %w", err)
	}
	avrClient.SetLogger(log)
	defer func() {
		log.Info("closing receiver session")
		if closeErr := avrClient.Close(); closeErr != nil {
			log.Error("error closing receiver session", "error", closeErr)
		}
	}()

	if err := avrClient.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to receiver: %w", err)
	}
	log.Info("receiver session established",
		"host", cfg.AVR.Host,
		"port", cfg.AVR.Port,
	)

	// Start the MQTT bridge
	bridgeOpts := bridge.Options{
		Controller: avrClient,
		MQTT:       &mqttBridgeAdapter{client: mqttClient},
		History:    history,
		QoS:        byte(cfg.MQTT.QoS), //nolint:gosec // QoS validated to 0..2
		Logger:     log,
	}
	if influxClient != nil {
		bridgeOpts.Metrics = influxClient
	}

	br, err := bridge.New(bridgeOpts)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if err := br.Start(); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		br.Stop()
	}()
	log.Info("bridge started")

	// Background jobs: history pruning and link telemetry
	if history != nil {
		go pruneLoop(ctx, cfg, history, log)
	}
	if influxClient != nil {
		go linkMetricLoop(ctx, avrClient, influxClient)
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. Bridge
	// 2. Receiver session
	// 3. InfluxDB (if enabled)
	// 4. MQTT
	// 5. Gateway (if supervised)
	// 6. Database

	log.Info("avrbridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses AVRBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("AVRBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	// Receiver health is reflected on avrbridge/status; the session may
	// legitimately be reconnecting at any point, so it is not gated here.

	return nil
}

// startGateway launches the supervised serial-to-TCP gateway.
func startGateway(ctx context.Context, cfg *config.Config, log *logging.Logger) (*process.Manager, error) {
	gwCfg := process.DefaultConfig("gateway", cfg.Gateway.Binary, cfg.Gateway.Args)
	if cfg.Gateway.RestartDelaySeconds > 0 {
		gwCfg.RestartDelay = time.Duration(cfg.Gateway.RestartDelaySeconds) * time.Second
	}
	gwCfg.MaxRestartAttempts = cfg.Gateway.MaxRestartAttempts
	gwCfg.OnRestart = func(attempt int) {
		log.Warn("gateway restarting", "attempt", attempt)
	}

	manager := process.NewManager(gwCfg)
	manager.SetLogger(log)

	if err := manager.Start(ctx); err != nil {
		return nil, err
	}

	log.Info("gateway started",
		"binary", cfg.Gateway.Binary,
		"pid", manager.PID(),
	)

	return manager, nil
}

// pruneLoop periodically removes history entries past the retention window.
func pruneLoop(ctx context.Context, cfg *config.Config, history device.HistoryRepository, log *logging.Logger) {
	ticker := time.NewTicker(cfg.GetPruneInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruneCtx, cancel := context.WithTimeout(ctx, time.Minute)
			removed, err := history.Prune(pruneCtx, cfg.GetHistoryRetention())
			cancel()
			if err != nil {
				log.Error("history prune failed", "error", err)
				continue
			}
			if removed > 0 {
				log.Info("history pruned", "removed", removed)
			}
		}
	}
}

// linkMetricLoop periodically records receiver link health to InfluxDB.
func linkMetricLoop(ctx context.Context, client *avr.Client, influx *influxdb.Client) {
	ticker := time.NewTicker(linkMetricInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := client.Stats()
			influx.WriteLinkMetric(stats.Connected, stats.ReconnectsTotal, stats.PendingCommands)
		}
	}
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface. The difference is the Subscribe handler signature:
// - Infrastructure mqtt: func(topic string, payload []byte) error
// - Bridge expects: func(topic string, payload []byte)
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	// Wrap the void handler to return nil error (bridge handlers don't return errors)
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
