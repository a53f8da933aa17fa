// Gray Logic Device Gateway
//
// This is the main entry point for the device gateway. It accepts
// persistent WebSocket connections from field devices, binds each to a
// stable identity derived from its MAC address, keeps the online set fresh
// with a liveness sweep, and routes commands and events between devices,
// the HTTP API and (optionally) an MQTT broker.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	_ "github.com/nerrad567/gray-logic-gateway/migrations"

	"github.com/nerrad567/gray-logic-gateway/internal/api"
	"github.com/nerrad567/gray-logic-gateway/internal/audit"
	"github.com/nerrad567/gray-logic-gateway/internal/bridge"
	"github.com/nerrad567/gray-logic-gateway/internal/device"
	"github.com/nerrad567/gray-logic-gateway/internal/gateway"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-gateway/internal/observability"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

const (
	// defaultConfigPath is used when GATEWAY_CONFIG is unset.
	defaultConfigPath = "configs/config.yaml"

	// shutdownTimeout bounds how long device sessions get to drain.
	shutdownTimeout = 10 * time.Second

	// statsInterval is how often connection counts go to InfluxDB.
	statsInterval = time.Minute
)

func main() {
	// Cancel on Ctrl+C or SIGTERM for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		err = runMigrate(ctx, os.Args[2:], os.Stdout)
	} else {
		err = run(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting device gateway",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, configPath, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	if configPath == "" {
		log.Info("no config file found, using defaults")
	} else {
		log.Info("configuration loaded", "path", configPath)
	}

	// Open database
	db, err := database.Open(ctx, database.Config{
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	deviceRepo := device.NewSQLiteRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	deps := gateway.Deps{
		Config:  cfg.WebSocket,
		Store:   deviceRepo,
		Audit:   auditRepo,
		Metrics: observability.NewGatewayMetrics(cfg.Gateway.ID),
		Logger:  log.Component("gateway"),
	}

	// Connect to InfluxDB (optional)
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
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		deps.Telemetry = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	var eventBridge *bridge.Bridge
	if cfg.MQTT.Enabled {
		mqttClient, eventBridge, err = startMQTT(cfg.MQTT, auditRepo, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		deps.Events = eventBridge
	} else {
		log.Info("MQTT bridge disabled")
	}

	gw := gateway.New(deps)

	if eventBridge != nil {
		eventBridge.SetRouter(gw)
		if startErr := eventBridge.Start(ctx); startErr != nil {
			return fmt.Errorf("starting MQTT bridge: %w", startErr)
		}
	}

	apiDeps := api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log,
		Gateway: gw,
		Devices: deviceRepo,
		Audit:   auditRepo,
		DB:      db,
		NodeID:  cfg.Gateway.ID,
		Version: version,
	}
	if mqttClient != nil {
		apiDeps.MQTT = mqttClient
	}
	server, err := api.New(apiDeps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		//nolint:errcheck // already failing; best-effort cleanup
		server.Close()
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("gateway ready",
		"gateway_id", cfg.Gateway.ID,
		"address", server.Addr(),
		"websocket_path", cfg.WebSocket.Path,
		"ping_interval", cfg.WebSocket.PingIntervalDuration(),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		gw.RunMonitor(gctx)
		return nil
	})

	if influxClient != nil {
		g.Go(func() error {
			reportStats(gctx, influxClient, gw, cfg.Gateway.ID)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, cleaning up")

		var errs []error
		if closeErr := server.Close(); closeErr != nil {
			errs = append(errs, closeErr)
		}

		if eventBridge != nil {
			if stopErr := eventBridge.Stop(); stopErr != nil {
				log.Warn("stopping MQTT bridge", "error", stopErr)
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := gw.Shutdown(shutdownCtx); shutdownErr != nil {
			errs = append(errs, fmt.Errorf("stopping gateway: %w", shutdownErr))
		}
		return errors.Join(errs...)
	})

	// Deferred Close() calls run after the group: MQTT, InfluxDB, database.
	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("device gateway stopped")
	return nil
}

// loadConfig reads the configuration file.
//
// GATEWAY_CONFIG names the file explicitly and must exist. Without it the
// default path is tried, and built-in defaults are used if that file is
// absent. The returned path is empty when no file was read.
func loadConfig() (*config.Config, string, error) {
	if path := os.Getenv("GATEWAY_CONFIG"); path != "" {
		cfg, err := config.Load(path)
		return cfg, path, err
	}

	cfg, err := config.Load(defaultConfigPath)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = config.Default()
		return cfg, "", cfg.Validate()
	}
	return cfg, defaultConfigPath, err
}

// startMQTT connects to the broker and builds the event bridge.
func startMQTT(cfg config.MQTTConfig, auditRepo audit.Repository, log *logging.Logger) (*mqtt.Client, *bridge.Bridge, error) {
	client, err := mqtt.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log)
	client.SetOnConnect(func() {
		log.Info("MQTT connected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	br, err := bridge.New(bridge.Options{
		Client: client,
		Audit:  auditRepo,
		Logger: log.Component("bridge"),
	})
	if err != nil {
		//nolint:errcheck // already failing; best-effort cleanup
		client.Close()
		return nil, nil, fmt.Errorf("creating MQTT bridge: %w", err)
	}

	log.Info("MQTT bridge connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
		"topic_prefix", cfg.TopicPrefix,
	)
	return client, br, nil
}

// reportStats writes connection counts to InfluxDB until ctx is cancelled.
func reportStats(ctx context.Context, influxClient *influxdb.Client, gw *gateway.Gateway, gatewayID string) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			influxClient.WriteGatewayStats(gatewayID, gw.Registry().Len(), gw.ConnectionCount())
		}
	}
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
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

	return nil
}
