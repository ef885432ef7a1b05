// FleetCore - MQTT fleet telemetry service
//
// This is the main entry point for the FleetCore application. FleetCore
// holds supervised sessions to external MQTT brokers, ingests device
// telemetry into a latest-value document store, and exposes a REST API
// for broker and device management.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/tessera-iot/fleetcore/migrations"

	"github.com/tessera-iot/fleetcore/internal/api"
	"github.com/tessera-iot/fleetcore/internal/audit"
	"github.com/tessera-iot/fleetcore/internal/auth"
	"github.com/tessera-iot/fleetcore/internal/broker"
	"github.com/tessera-iot/fleetcore/internal/device"
	"github.com/tessera-iot/fleetcore/internal/docstore"
	"github.com/tessera-iot/fleetcore/internal/infrastructure/config"
	"github.com/tessera-iot/fleetcore/internal/infrastructure/database"
	"github.com/tessera-iot/fleetcore/internal/infrastructure/influxdb"
	"github.com/tessera-iot/fleetcore/internal/infrastructure/logging"
	"github.com/tessera-iot/fleetcore/internal/infrastructure/mqtt"
	"github.com/tessera-iot/fleetcore/internal/ingest"
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

// shutdownTimeout bounds how long session teardown may take on exit.
const shutdownTimeout = 15 * time.Second

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting FleetCore",
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
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Connect to the document store
	docs, err := docstore.Connect(ctx, docstore.Config{
		URI:              cfg.DocStore.URI,
		Database:         cfg.DocStore.Database,
		Username:         cfg.DocStore.Username,
		Password:         cfg.DocStore.Password,
		ConnectTimeout:   time.Duration(cfg.DocStore.ConnectTimeout) * time.Second,
		OperationTimeout: time.Duration(cfg.DocStore.OperationTimeout) * time.Second,
		MinPoolSize:      cfg.DocStore.MinPoolSize,
		MaxPoolSize:      cfg.DocStore.MaxPoolSize,
	})
	if err != nil {
		return fmt.Errorf("connecting to document store: %w", err)
	}
	defer func() {
		log.Info("closing document store connection")
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		if closeErr := docs.Close(closeCtx); closeErr != nil {
			log.Error("error closing document store", "error", closeErr)
		}
	}()
	log.Info("document store connected", "database", cfg.DocStore.Database)

	// Repositories
	brokerRepo := broker.NewSQLiteRepository(db.DB)
	deviceRepo := device.NewSQLiteRepository(db.DB)
	userRepo := auth.NewUserRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	// Seed the bootstrap admin account if the user table is empty
	if cfg.Security.Admin.Email != "" && cfg.Security.Admin.Password != "" {
		admin, seedErr := auth.SeedAdmin(ctx, userRepo, cfg.Security.Admin.Email, cfg.Security.Admin.Password)
		if seedErr != nil {
			return fmt.Errorf("seeding admin account: %w", seedErr)
		}
		if admin != nil {
			log.Info("bootstrap admin created", "email", admin.Email)
		}
	}

	authSvc := auth.NewService(userRepo, cfg.Security.JWT.Secret, cfg.Security.JWT.AccessTokenTTL)

	// Connect to InfluxDB (optional telemetry archive)
	var archiver ingest.Archiver
	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case err == nil:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(writeErr error) {
			log.Error("InfluxDB write error", "error", writeErr)
		})
		archiver = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	default:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	}

	// Ingestion pipeline and broker session orchestration
	pipeline := ingest.New(docs, archiver, log)
	sync := broker.NewSynchronizer(brokerRepo, log)
	registry := broker.NewRegistry()
	orchestrator := broker.NewOrchestrator(broker.OrchestratorDeps{
		Brokers:  brokerRepo,
		Devices:  deviceRepo,
		Registry: registry,
		Sync:     sync,
		Sink:     pipeline,
		Dial: func(settings mqtt.Settings) (mqtt.Transport, error) {
			return mqtt.Dial(settings)
		},
		Logger: log,
	})

	// Sessions do not survive a restart; clear any stale connected flags
	// left by an unclean shutdown.
	if reconcileErr := reconcileConnectedFlags(ctx, brokerRepo, sync); reconcileErr != nil {
		return fmt.Errorf("reconciling broker state: %w", reconcileErr)
	}

	// Start the API server
	server, err := api.New(api.Deps{
		Config:   cfg.API,
		Security: cfg.Security,
		Logger:   log,
		Auth:     authSvc,
		Brokers:  brokerRepo,
		Devices:  deviceRepo,
		Records:  docs,
		Sessions: orchestrator,
		Sync:     sync,
		Audit:    auditRepo,
		DB:       db,
		DocStore: docs,
		Registry: registry,
		Version:  version,
	})
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

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := orchestrator.Shutdown(shutdownCtx); err != nil {
		log.Error("error shutting down broker sessions", "error", err)
	}

	log.Info("FleetCore stopped")
	return nil
}

// reconcileConnectedFlags clears the connected flag on every broker.
// Called once at startup, before any session exists.
func reconcileConnectedFlags(ctx context.Context, repo broker.Repository, sync *broker.Synchronizer) error {
	brokers, err := repo.List(ctx)
	if err != nil {
		return err
	}
	for _, b := range brokers {
		if !b.Connected {
			continue
		}
		if err := sync.SetConnected(ctx, b.ID, false, false); err != nil {
			return err
		}
	}
	return nil
}

// getConfigPath returns the configuration file path.
// Uses FLEETCORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("FLEETCORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
