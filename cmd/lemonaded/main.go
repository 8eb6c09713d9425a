// Command lemonaded runs the lemonade-core service: the authenticated HTTP
// API, the SQLite store, and the optional MQTT and InfluxDB publishers.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/citrusbyte/lemonade-core/internal/api"
	"github.com/citrusbyte/lemonade-core/internal/audit"
	"github.com/citrusbyte/lemonade-core/internal/auth"
	"github.com/citrusbyte/lemonade-core/internal/infrastructure/config"
	"github.com/citrusbyte/lemonade-core/internal/infrastructure/database"
	"github.com/citrusbyte/lemonade-core/internal/infrastructure/influxdb"
	"github.com/citrusbyte/lemonade-core/internal/infrastructure/logging"
	"github.com/citrusbyte/lemonade-core/internal/infrastructure/mqtt"
	"github.com/citrusbyte/lemonade-core/internal/stand"
	_ "github.com/citrusbyte/lemonade-core/migrations"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "lemonaded: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	log := logging.New(cfg.Logging, version)
	log.Info("starting lemonade-core", "version", version)

	db, err := database.Open(ctx, database.Config{
		Path:              cfg.Database.Path,
		WALMode:           cfg.Database.WALMode,
		BusyTimeout:       cfg.Database.BusyTimeout,
		ReadyRetries:      cfg.Database.ReadyRetries,
		ReadyInitialDelay: cfg.Database.ReadyInitialDelay,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	users := auth.NewSQLiteUserRepository(db.DB)
	roles := auth.NewSQLiteRoleRepository(db.DB)
	tokens := auth.NewSQLiteTokenRepository(db.DB)
	stands := stand.NewSQLiteRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	if err := auth.SeedRoles(ctx, roles); err != nil {
		return fmt.Errorf("seeding roles: %w", err)
	}

	codec, err := auth.NewCodec(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.Algorithm)
	if err != nil {
		return fmt.Errorf("building token codec: %w", err)
	}
	authSvc := auth.NewService(users, tokens, codec, cfg.Auth.AccessTTL(), cfg.Auth.RefreshTTL(), log)

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, log)
		if err != nil {
			// Sale publishing is an add-on; the API still serves.
			log.Warn("mqtt unavailable, continuing without it", "error", err)
		} else {
			defer mqttClient.Close()
		}
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB, log)
		if err != nil {
			log.Warn("influxdb unavailable, continuing without it", "error", err)
		} else {
			defer influxClient.Close()
		}
	}

	server, err := api.New(api.Deps{
		Config:  cfg,
		Logger:  log,
		DB:      db,
		Auth:    authSvc,
		Users:   users,
		Roles:   roles,
		Tokens:  tokens,
		Stands:  stands,
		Audit:   auditRepo,
		MQTT:    mqttClient,
		Influx:  influxClient,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("building api server: %w", err)
	}

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	log.Info("shutdown complete")
	return nil
}
