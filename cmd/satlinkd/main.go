// SatLink Core - satellite antenna tuning coordinator
//
// satlinkd owns the DVB-S frontends of a site. It drives switches, rotors
// and Unicable user bands in front of each tuner, journals every tuning
// attempt, and takes tune/stop commands over MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/satlink-core/internal/bridge"
	"github.com/nerrad567/satlink-core/internal/infrastructure/config"
	"github.com/nerrad567/satlink-core/internal/infrastructure/database"
	"github.com/nerrad567/satlink-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/satlink-core/internal/infrastructure/logging"
	"github.com/nerrad567/satlink-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/satlink-core/internal/journal"
	"github.com/nerrad567/satlink-core/internal/satconf"
	"github.com/nerrad567/satlink-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/satlink.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the daemon, separated from main for testability.
//
// Parameters:
//   - ctx: Cancelled on SIGINT/SIGTERM
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting SatLink Core",
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
	go watchDebugSignal(ctx, log, cfg.Logging.Level)
	log.Info("configuration loaded",
		"path", configPath,
		"frontends", len(cfg.Frontends),
		"level", cfg.Logging.Level,
	)

	db, err := database.Open(cfg.Database)
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

	observers := &observerSet{}
	repo := journal.NewSQLiteRepository(db.DB)
	observers.add(journal.NewRecorder(repo, log))

	pruneCtx, stopPrune := context.WithCancel(ctx)
	pruneDone := make(chan struct{})
	go func() {
		defer close(pruneDone)
		journal.NewPruner(repo, cfg.Database.JournalDays, log).Run(pruneCtx)
	}()
	defer func() {
		stopPrune()
		<-pruneDone
	}()

	influxClient, err := influxdb.Connect(cfg.InfluxDB, cfg.Site.ID)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
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
		observers.add(metricsObserver{client: influxClient})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	manager := satconf.NewManager(satconf.Options{
		Observer: observers,
		Logger:   log,
	})
	defer func() {
		log.Info("releasing frontends")
		if closeErr := manager.Close(); closeErr != nil {
			log.Error("error releasing frontends", "error", closeErr)
		}
	}()
	if buildErr := manager.Build(cfg, nil); buildErr != nil {
		return fmt.Errorf("building satconfs: %w", buildErr)
	}
	for _, sc := range manager.SatConfs() {
		log.Info("satconf ready",
			"satconf", sc.Name(),
			"device", sc.Frontend().Path(),
			"elements", len(sc.Elements()),
		)
	}

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, cfg.Site.ID)
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
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		b, bridgeErr := startBridge(cfg, manager, mqttClient, db, influxClient, log)
		if bridgeErr != nil {
			return fmt.Errorf("starting bridge: %w", bridgeErr)
		}
		observers.add(b)
		defer func() {
			log.Info("stopping bridge")
			b.Stop()
		}()
	} else {
		log.Info("MQTT disabled, commands are not accepted")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// watchDebugSignal flips between debug and the configured level on each
// SIGUSR1.
func watchDebugSignal(ctx context.Context, log *logging.Logger, configured string) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGUSR1)
	defer signal.Stop(sig)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			next := "debug"
			if log.Level() == slog.LevelDebug {
				next = configured
			}
			if err := log.SetLevel(next); err != nil {
				//nolint:errcheck // info is always accepted
				log.SetLevel("info")
			}
			log.Warn("log level changed", "level", log.Level().String())
		}
	}
}

// getConfigPath returns SATLINK_CONFIG, or the default path.
func getConfigPath() string {
	if path := os.Getenv("SATLINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// startBridge creates and starts the MQTT command bridge. The database and
// InfluxDB (when enabled) are reported in its health messages.
func startBridge(cfg *config.Config, manager *satconf.Manager, client *mqtt.Client,
	db *database.DB, influxClient *influxdb.Client, log *logging.Logger) (*bridge.Bridge, error) {
	checks := map[string]func(context.Context) error{
		"database": db.HealthCheck,
	}
	if influxClient != nil {
		checks["influxdb"] = influxClient.HealthCheck
	}

	b, err := bridge.NewBridge(bridge.Options{
		SatConfs: manager,
		MQTT:     client,
		Topics:   client.Topics(),
		Logger:   log,
		Version:  version,
		Checks:   checks,
	})
	if err != nil {
		return nil, err
	}
	if err := b.Start(); err != nil {
		return nil, err
	}
	return b, nil
}

// healthCheck verifies the infrastructure connections.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (nil when disabled)
//   - influxClient: InfluxDB client to check (nil when disabled)
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
