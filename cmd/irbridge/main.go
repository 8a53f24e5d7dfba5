// IR Bridge - appliance state reconciliation for IR/RF controlled devices
//
// This is the main entry point for the IR bridge service. The bridge keeps
// a model of every configured appliance (fans, air conditioners, purifiers,
// humidifiers, switches, sensors), turns requested changes into the signal
// codes each appliance understands, and sends them through Broadlink
// gateway devices reached over MQTT.
//
// Changes arrive over the REST API, the WebSocket, or the per-accessory MQTT
// set topics. Every resulting state change is mirrored to the WebSocket hub,
// the retained MQTT state topics, Redis, SQLite history and InfluxDB.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/gray-logic-irbridge/migrations"

	"github.com/nerrad567/gray-logic-irbridge/internal/api"
	"github.com/nerrad567/gray-logic-irbridge/internal/appliance"
	"github.com/nerrad567/gray-logic-irbridge/internal/audit"
	"github.com/nerrad567/gray-logic-irbridge/internal/bridges/broadlink"
	"github.com/nerrad567/gray-logic-irbridge/internal/bridges/hostmqtt"
	"github.com/nerrad567/gray-logic-irbridge/internal/daemon"
	"github.com/nerrad567/gray-logic-irbridge/internal/history"
	"github.com/nerrad567/gray-logic-irbridge/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-irbridge/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-irbridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-irbridge/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-irbridge/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-irbridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-irbridge/internal/reachability"
	"github.com/nerrad567/gray-logic-irbridge/internal/sensor"
	"github.com/nerrad567/gray-logic-irbridge/internal/statecache"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

const (
	// Default configuration file path
	defaultConfigPath = "configs/config.yaml"

	// configEnv overrides defaultConfigPath.
	configEnv = "IRBRIDGE_CONFIG"

	// retentionInterval is how often old history rows are pruned.
	retentionInterval = time.Hour
)

func main() {
	// Cancel on Ctrl+C and SIGTERM for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
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
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting IR bridge",
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

	accessoriesFile, err := appliance.LoadFile(cfg.Bridge.AccessoriesFile)
	if err != nil {
		return fmt.Errorf("loading accessories: %w", err)
	}
	log.Info("accessories file loaded",
		"path", cfg.Bridge.AccessoriesFile,
		"hosts", len(accessoriesFile.Hosts),
		"accessories", len(accessoriesFile.Accessories),
	)

	// History store and audit log (optional)
	var (
		db       *database.DB
		store    *history.Store
		auditLog *audit.Log
	)
	if cfg.Database.Enabled {
		db, err = openDatabase(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("database ready", "path", cfg.Database.Path)

		store = history.NewStore(db.DB, log)
		auditLog = audit.NewLog(db.DB)
		if cfg.Database.RetentionDays > 0 {
			retention := time.Duration(cfg.Database.RetentionDays) * 24 * time.Hour
			go store.RunRetention(ctx, retention, retentionInterval)
		}
	} else {
		log.Info("history database disabled")
	}

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
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB, cfg.Site.ID)
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Redis state mirror (optional)
	cache, err := statecache.Connect(cfg.Redis, log)
	switch {
	case errors.Is(err, statecache.ErrDisabled):
		log.Info("redis state mirror disabled")
	case err != nil:
		return fmt.Errorf("connecting to redis: %w", err)
	default:
		defer func() {
			log.Info("closing redis connection")
			if closeErr := cache.Close(); closeErr != nil {
				log.Error("error closing redis", "error", closeErr)
			}
		}()
		log.Info("redis connected", "address", cfg.Redis.Address)
	}

	// Metrics forward transmissions and auto transitions to the InfluxDB
	// timeline when it is enabled.
	var timeline metrics.Timeline
	if influxClient != nil {
		timeline = influxClient
	}
	recorder := metrics.New(timeline)

	gateway, err := broadlink.NewGateway(broadlink.Options{
		MQTT:          mqttClient,
		Topics:        mqttClient.Topics(),
		Hosts:         accessoriesFile.Hosts,
		HealthTimeout: cfg.GetHealthTimeout(),
		Logger:        log,
	})
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	if startErr := gateway.Start(ctx); startErr != nil {
		return fmt.Errorf("starting gateway: %w", startErr)
	}
	defer func() {
		log.Info("stopping gateway")
		gateway.Stop()
	}()
	log.Info("gateway started", "devices", len(gateway.Status()))

	var supervisor *daemon.Supervisor
	if cfg.Bridge.Daemon.Managed {
		supervisor, err = startDaemon(ctx, cfg.Bridge.Daemon, gateway, log)
		if err != nil {
			return fmt.Errorf("starting gateway daemon: %w", err)
		}
		defer supervisor.Stop()
	}

	// Change and reading fan-out. The MQTT state bridge needs the manager,
	// so it joins the notifier list after the manager is built.
	hub := api.NewHub(cfg.WebSocket, log)
	notifiers := history.Notifiers{hub}
	var recorders history.Recorders
	if cache != nil {
		notifiers = append(notifiers, cache)
	}
	if store != nil {
		notifiers = append(notifiers, store)
		recorders = append(recorders, store)
	}
	if influxClient != nil {
		influx := history.NewInflux(influxClient)
		notifiers = append(notifiers, influx)
		recorders = append(recorders, influx)
	}

	manager, err := appliance.NewManager(accessoriesFile.Accessories, appliance.Deps{
		Transport: gateway,
		Logger:    log,
		AccessoryLogger: func(_, level string) appliance.Logger {
			return log.WithAccessoryLevel(level)
		},
		Notifier: &notifiers,
		History:  recordersOrNil(recorders),
		Metrics:  recorder,
		Messages: mqtt.NewBus(mqttClient, byte(cfg.MQTT.QoS)),
		Ping: reachability.Pinger{
			Timeout: cfg.GetPingTimeout(),
		},
		ARP:           reachability.ARP{Table: cfg.Bridge.ARPTable},
		W1Root:        cfg.Bridge.W1Root,
		SensorTimeout: cfg.GetSensorTimeout(),
	})
	if err != nil {
		return fmt.Errorf("building accessories: %w", err)
	}

	if cfg.MQTT.PublishState {
		opts := hostmqtt.Options{
			MQTT:     mqttClient,
			Topics:   mqttClient.Topics(),
			Registry: manager,
			QoS:      byte(cfg.MQTT.QoS),
			Logger:   log,
		}
		if auditLog != nil {
			opts.Audit = auditLog
		}
		stateBridge, bridgeErr := hostmqtt.New(opts)
		if bridgeErr != nil {
			return fmt.Errorf("creating MQTT state bridge: %w", bridgeErr)
		}
		notifiers = append(notifiers, stateBridge)
		if startErr := stateBridge.Start(ctx); startErr != nil {
			return fmt.Errorf("starting MQTT state bridge: %w", startErr)
		}
		defer func() {
			log.Info("stopping MQTT state bridge")
			stateBridge.Stop()
		}()
	}

	if cache != nil {
		pruneStaleStates(ctx, cache, manager, log)
	}

	if startErr := manager.Start(ctx); startErr != nil {
		return fmt.Errorf("starting accessories: %w", startErr)
	}
	defer func() {
		log.Info("stopping accessories")
		manager.Stop()
	}()
	log.Info("accessories started", "count", len(manager.List()))

	if cfg.API.Enabled {
		checks := map[string]api.HealthChecker{"mqtt": mqttClient}
		if influxClient != nil {
			checks["influxdb"] = influxClient
		}
		if cache != nil {
			checks["redis"] = cache
		}
		if supervisor != nil {
			checks["gateway_daemon"] = supervisor
		}
		if db != nil {
			checks["database"] = db
		}
		deps := api.Deps{
			Config:      cfg.API,
			WS:          cfg.WebSocket,
			Security:    cfg.Security,
			Logger:      log,
			Accessories: manager,
			Devices:     gateway,
			Checks:      checks,
			Hub:         hub,
			Version:     version,
		}
		if store != nil {
			deps.History = store
		}
		if auditLog != nil {
			deps.Audit = auditLog
		}
		if cfg.Metrics.Enabled {
			deps.Metrics = recorder.Handler()
			deps.MetricsPath = cfg.Metrics.Path
		}

		server, srvErr := api.New(deps)
		if srvErr != nil {
			return fmt.Errorf("creating API server: %w", srvErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			log.Info("stopping API server")
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error stopping API server", "error", closeErr)
			}
		}()
		log.Info("API server started", "address", server.Addr())
	} else {
		log.Info("API server disabled")
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: mqtt: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: API, accessories, state bridge,
	// gateway daemon, gateway, redis, InfluxDB, MQTT, database.
	log.Info("IR bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses IRBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return defaultConfigPath
}

// openDatabase opens the history database and applies migrations.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*database.DB, error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// startDaemon launches the gateway daemon under supervision. Liveness
// follows the gateway heartbeats.
//
// Parameters:
//   - ctx: Context bounding supervision
//   - cfg: Daemon configuration
//   - gateway: Gateway whose heartbeats prove the daemon alive
//   - log: Logger instance
//
// Returns:
//   - *daemon.Supervisor: Running supervisor
//   - error: If the binary cannot be started
func startDaemon(ctx context.Context, cfg config.GatewayDaemonConfig, gateway *broadlink.Gateway, log *logging.Logger) (*daemon.Supervisor, error) {
	supervisor, err := daemon.New(daemon.Config{
		Name:            "gateway-daemon",
		Binary:          cfg.Binary,
		Args:            cfg.Args,
		Env:             cfg.Env,
		RestartDelay:    time.Duration(cfg.RestartDelay) * time.Second,
		MaxRestartDelay: time.Duration(cfg.MaxRestartDelay) * time.Second,
		GracefulTimeout: time.Duration(cfg.GracefulTimeout) * time.Second,
		CheckInterval:   time.Duration(cfg.CheckInterval) * time.Second,
		MaxRestarts:     cfg.MaxRestarts,
		Liveness:        gateway.Alive,
	})
	if err != nil {
		return nil, err
	}
	supervisor.SetLogger(log)

	if err := supervisor.Start(ctx); err != nil {
		return nil, err
	}
	log.Info("gateway daemon started", "binary", cfg.Binary)
	return supervisor, nil
}

// recordersOrNil keeps a nil sensor.Recorder when nothing records history,
// so accessories skip the call entirely.
func recordersOrNil(rs history.Recorders) sensor.Recorder {
	if len(rs) == 0 {
		return nil
	}
	return rs
}

// pruneStaleStates drops mirrored states of accessories that are no longer
// configured.
func pruneStaleStates(ctx context.Context, cache *statecache.Cache, manager *appliance.Manager, log *logging.Logger) {
	names := make([]string, 0, len(manager.List()))
	for _, acc := range manager.List() {
		names = append(names, acc.Name())
	}
	removed, err := cache.RemoveAllExcept(ctx, names)
	if err != nil {
		log.Warn("pruning redis states failed", "error", err)
		return
	}
	if len(removed) > 0 {
		log.Info("pruned stale redis states", "accessories", removed)
	}
}
