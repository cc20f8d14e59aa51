// Gray Logic W215 Bridge
//
// This is the main entry point of the DSP-W215 smart plug bridge. It polls
// every registered plug over HNAP, emits a state event whenever a feature
// value changes, and exposes the result over MQTT, InfluxDB and a REST API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	_ "github.com/nerrad567/gray-logic-w215/migrations"

	"github.com/nerrad567/gray-logic-w215/internal/api"
	"github.com/nerrad567/gray-logic-w215/internal/bridges/w215"
	"github.com/nerrad567/gray-logic-w215/internal/bridges/w215/hnap"
	"github.com/nerrad567/gray-logic-w215/internal/device"
	"github.com/nerrad567/gray-logic-w215/internal/event"
	"github.com/nerrad567/gray-logic-w215/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-w215/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-w215/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-w215/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-w215/internal/infrastructure/mqtt"
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

// run wires the bridge together and blocks until ctx is cancelled.
// Deferred cleanups run in reverse start order.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting W215 bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

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

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	registry.SetLogger(log)
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	seeded, err := w215.Seed(ctx, registry, cfg.W215.Devices)
	if err != nil {
		return fmt.Errorf("seeding w215 devices: %w", err)
	}
	log.Info("device registry initialised", "devices", registry.GetStats().TotalDevices, "seeded", seeded)

	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttClient.SetLogger(log)
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

	influxClient, err := connectInflux(ctx, cfg, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
	}

	// Event bus: every accepted change is committed, published and streamed.
	history := device.NewSQLiteStateHistoryRepository(db.DB)
	committer := device.NewStateCommitter(registry, history)
	committer.SetLogger(log)

	bus := event.NewBus(event.DefaultBufferSize)
	bus.SetLogger(log)
	bus.Subscribe("registry", committer)
	bus.Subscribe("mqtt", event.NewMQTTPublisher(mqttClient, mqtt.Topics{}.State, byte(cfg.MQTT.QoS)))
	if influxClient != nil {
		bus.Subscribe("influxdb", event.NewInfluxRecorder(influxClient, cfg.Site.ID))
	}
	hub := api.NewHub(cfg.WS, log)
	bus.Subscribe("websocket", hub)

	busDone := make(chan struct{})
	busCtx, stopBus := context.WithCancel(context.WithoutCancel(ctx))
	go func() {
		defer close(busDone)
		bus.Run(busCtx)
	}()
	defer func() {
		stopBus()
		<-busDone
	}()

	// Poller and scheduler
	metricsRegistry := prometheus.NewRegistry()
	metricsRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	hnapClient := hnap.NewClient(hnap.Options{
		Timeout:     cfg.W215.RequestTimeout,
		MaxFailures: cfg.W215.Breaker.MaxFailures,
		OpenTimeout: cfg.W215.Breaker.OpenTimeout,
	})
	hnapClient.SetLogger(log)

	poller := w215.NewPoller(hnapClient, registry, bus, w215.PollerOptions{
		Username: cfg.W215.Username,
		Metrics:  w215.NewMetrics(metricsRegistry),
	})
	poller.SetLogger(log)

	schedCfg := w215.SchedulerConfig{Interval: cfg.W215.PollInterval}
	if influxClient != nil {
		schedCfg.Recorder = influxClient
	}
	scheduler := w215.NewScheduler(poller, registry, schedCfg)
	scheduler.SetLogger(log)

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		scheduler.Run(ctx)
	}()
	defer func() { <-schedDone }()

	if err := subscribeCommands(ctx, mqttClient, scheduler, byte(cfg.MQTT.QoS), log); err != nil {
		return err
	}

	health := w215.NewHealthReporter(w215.HealthReporterConfig{
		BridgeID:  cfg.Site.ID,
		Version:   version,
		Interval:  cfg.W215.HealthInterval,
		Publisher: mqttClient,
		Devices:   registry,
		Scheduler: scheduler,
	})
	health.SetLogger(log)
	if pubErr := health.PublishStarting(); pubErr != nil {
		log.Warn("publishing starting health", "error", pubErr)
	}
	health.Start(ctx)
	defer health.Stop()

	apiDeps := api.Deps{
		Config:   cfg.API,
		WS:       cfg.WS,
		Logger:   log,
		Registry: registry,
		History:  history,
		Poller:   scheduler,
		MQTT:     mqttClient,
		DB:       db,
		Bus:      bus,
		Gatherer: metricsRegistry,
		Hub:      hub,
		Version:  version,
	}
	if influxClient != nil {
		apiDeps.InfluxDB = influxClient
	}
	server, err := api.New(apiDeps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// connectInflux connects to InfluxDB when enabled. It returns nil, nil when
// disabled.
func connectInflux(ctx context.Context, cfg *config.Config, log *logging.Logger) (*influxdb.Client, error) {
	if !cfg.InfluxDB.Enabled {
		log.Info("InfluxDB disabled")
		return nil, nil //nolint:nilnil // Disabled is not an error
	}

	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	return client, nil
}

// subscribeCommands routes graylogic/command/w215/{device_id} messages to
// the scheduler.
func subscribeCommands(ctx context.Context, client *mqtt.Client, scheduler *w215.Scheduler, qos byte, log *logging.Logger) error {
	topics := mqtt.Topics{}
	err := client.Subscribe(topics.AllCommands(), qos, func(topic string, payload []byte) error {
		deviceID, ok := topics.DeviceIDFromCommand(topic)
		if !ok {
			return fmt.Errorf("unexpected command topic %q", topic)
		}
		if cmdErr := scheduler.HandleCommand(ctx, deviceID, payload); cmdErr != nil {
			log.Warn("rejected w215 command", "topic", topic, "error", cmdErr)
			return cmdErr
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("subscribing to w215 commands: %w", err)
	}
	return nil
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
	return nil
}
