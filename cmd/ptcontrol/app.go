package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/ptcontrol/internal/alert"
	"github.com/nerrad567/ptcontrol/internal/api"
	"github.com/nerrad567/ptcontrol/internal/control"
	"github.com/nerrad567/ptcontrol/internal/entity"
	"github.com/nerrad567/ptcontrol/internal/infrastructure/config"
	"github.com/nerrad567/ptcontrol/internal/infrastructure/database"
	"github.com/nerrad567/ptcontrol/internal/infrastructure/influxdb"
	"github.com/nerrad567/ptcontrol/internal/infrastructure/logging"
	"github.com/nerrad567/ptcontrol/internal/infrastructure/mqtt"
	"github.com/nerrad567/ptcontrol/internal/ingest"
	"github.com/nerrad567/ptcontrol/internal/status"
	"github.com/nerrad567/ptcontrol/migrations"
)

// drainTimeout bounds how long shutdown waits for pending actuator writes.
const drainTimeout = 10 * time.Second

// mode selects which halves of the service a process runs.
type mode uint8

const (
	modeIngest mode = 1 << iota
	modeControl

	modeAll = modeIngest | modeControl
)

func (m mode) has(part mode) bool { return m&part != 0 }

func (m mode) String() string {
	switch m {
	case modeIngest:
		return "ingest"
	case modeControl:
		return "control"
	default:
		return "run"
	}
}

// run is the application logic, separated from main for testability.
// It returns nil on a clean shutdown after ctx is cancelled.
func run(ctx context.Context, configPath string, m mode) error {
	log := logging.Default()
	log.Info("starting ptcontrol",
		"mode", m.String(),
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version).With("mode", m.String())

	db, err := openDatabase(cfg.Database)
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
	log.Info("database ready", "path", cfg.Database.Path)

	store := entity.NewSQLiteStore(db.DB)

	// Split processes share one broker; each needs its own session.
	if m != modeAll {
		cfg.MQTT.Broker.ClientID += "-" + m.String()
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
	mqttClient.SetLogger(log.Component("mqtt"))
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	influxClient, err := connectInflux(cfg.InfluxDB, log)
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

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	hub := api.NewHub(cfg.WebSocket, log.Component("ws"))
	go hub.Run(runCtx)

	apiDeps := api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Logger:     log.Component("api"),
		AlertLimit: cfg.Alerts.QueryLimit,
		MQTT:       mqttClient,
		DB:         db,
		Hub:        hub,
		Version:    version,
	}

	var engine *control.Engine
	if m.has(modeControl) {
		alerts := alert.NewBuffer(cfg.Alerts.Capacity)
		engine, err = newEngine(cfg, store, alerts, mqttClient, hub, influxClient, log.Component("control"))
		if err != nil {
			return fmt.Errorf("creating control engine: %w", err)
		}
		apiDeps.Alerts = alerts
		apiDeps.Engine = engine

		engineDone := make(chan error, 1)
		go func() { engineDone <- engine.Run(runCtx) }()

		// Runs before the store and MQTT client are closed.
		defer func() {
			cancel()
			if runErr := <-engineDone; runErr != nil {
				log.Error("control loop failed", "error", runErr)
			}
			drainCtx, drainCancel := context.WithTimeout(context.Background(), drainTimeout)
			defer drainCancel()
			if waitErr := engine.Wait(drainCtx); waitErr != nil {
				log.Warn("pending actuator writes abandoned", "error", waitErr)
			}
		}()
	}

	if m.has(modeIngest) {
		ing := ingest.New(store, cfg.StoreWriteTimeout())
		ing.SetLogger(log.Component("ingest"))
		if engine != nil {
			ing.AddObserver(engine)
		}
		ing.AddSink(ingest.NewHubSink(hub))
		if influxClient != nil {
			ing.AddSink(ingest.NewRecorderSink(influxClient))
		}
		if subErr := ing.Subscribe(mqttClient); subErr != nil {
			return fmt.Errorf("subscribing ingestion: %w", subErr)
		}
		// Stop deliveries before the engine stops and the store closes.
		defer func() {
			if unsubErr := ing.Unsubscribe(mqttClient); unsubErr != nil {
				log.Warn("unsubscribing ingestion", "error", unsubErr)
			}
		}()
		apiDeps.Status = status.NewAggregator(store, nil)
		apiDeps.Ingest = ing
	} else {
		relay := ingest.NewRelay(engine)
		relay.SetLogger(log.Component("relay"))
		if subErr := relay.Subscribe(mqttClient); subErr != nil {
			return fmt.Errorf("subscribing control: %w", subErr)
		}
		defer func() {
			if unsubErr := relay.Unsubscribe(mqttClient); unsubErr != nil {
				log.Warn("unsubscribing relay", "error", unsubErr)
			}
		}()
		apiDeps.Relay = relay
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	srv, err := api.New(apiDeps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(runCtx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

func openDatabase(cfg config.DatabaseConfig) (*database.DB, error) {
	return database.Open(database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
}

// connectInflux returns nil without error when InfluxDB is disabled.
func connectInflux(cfg config.InfluxDBConfig, log *logging.Logger) (*influxdb.Client, error) {
	if !cfg.Enabled {
		log.Info("InfluxDB disabled")
		return nil, nil
	}

	client, err := influxdb.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.URL,
		"org", cfg.Org,
		"bucket", cfg.Bucket,
	)
	return client, nil
}

func newEngine(
	cfg *config.Config,
	store control.ActuatorStore,
	alerts *alert.Buffer,
	mqttClient *mqtt.Client,
	hub *api.Hub,
	influxClient *influxdb.Client,
	log *logging.Logger,
) (*control.Engine, error) {
	notifiers := []control.Notifier{
		control.NewPublishNotifier(mqttClient, mqtt.Topics{}, byte(cfg.MQTT.QoS)),
		control.NewHubNotifier(hub),
	}
	if influxClient != nil {
		notifiers = append(notifiers, control.NewRecorderNotifier(influxClient))
	}

	return control.NewEngine(control.Config{
		Interval:     cfg.TickInterval(),
		WriteTimeout: cfg.StoreWriteTimeout(),
		Quantities: []control.Quantity{
			control.Temperature(cfg.Control.Temperature.Min, cfg.Control.Temperature.Max),
			control.Pressure(cfg.Control.Pressure.Min, cfg.Control.Pressure.Max),
		},
	}, control.Deps{
		Store:     store,
		Alerts:    alerts,
		Notifiers: notifiers,
		Logger:    log,
	})
}

// healthCheck verifies the infrastructure connections. influxClient may be
// nil when InfluxDB is disabled.
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
