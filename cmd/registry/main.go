// Student Registry - staff-owned student records behind a bitmask role model.
//
// This is the main entry point for the registry service. It loads the
// configuration, opens the database, connects the optional MQTT and InfluxDB
// backends and serves the HTTP API until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	_ "github.com/nerrad567/student-registry/migrations"

	"github.com/nerrad567/student-registry/internal/api"
	"github.com/nerrad567/student-registry/internal/audit"
	"github.com/nerrad567/student-registry/internal/auth"
	"github.com/nerrad567/student-registry/internal/events"
	"github.com/nerrad567/student-registry/internal/infrastructure/config"
	"github.com/nerrad567/student-registry/internal/infrastructure/database"
	"github.com/nerrad567/student-registry/internal/infrastructure/influxdb"
	"github.com/nerrad567/student-registry/internal/infrastructure/logging"
	"github.com/nerrad567/student-registry/internal/infrastructure/mqtt"
	"github.com/nerrad567/student-registry/internal/staff"
	"github.com/nerrad567/student-registry/internal/student"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// defaultConfigPath is used when neither --config nor REGISTRY_CONFIG is set.
const defaultConfigPath = "/etc/student-registry/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options holds the parsed command line.
type options struct {
	configPath  string
	showVersion bool
}

func parseFlags(args []string) (options, error) {
	var opts options

	flagSet := pflag.NewFlagSet("registry", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "path to YAML configuration file (default: $REGISTRY_CONFIG or "+defaultConfigPath+")")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(args); err != nil {
		return opts, err
	}
	if extra := flagSet.Args(); len(extra) > 0 {
		return opts, fmt.Errorf("unexpected argument: %s", extra[0])
	}

	if opts.configPath == "" {
		opts.configPath = getConfigPath()
	}
	return opts, nil
}

// getConfigPath returns REGISTRY_CONFIG if set, otherwise the default path.
func getConfigPath() string {
	if path := os.Getenv(config.EnvPrefix + "_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// run is the application logic, separated from main for testability.
func run(ctx context.Context, args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	if opts.showVersion {
		fmt.Printf("student-registry %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	log := logging.Default()
	log.Info("starting student registry",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", opts.configPath,
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	b := connectBackends(ctx, cfg, log)
	defer b.close(log)

	srv, err := buildServer(cfg, log, db, b)
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: database: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal", "address", cfg.API.Address())
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred closes run in reverse: API server, backends, database.
	return nil
}

// backends holds the optional connections. A nil field means the backend
// is disabled or could not be reached.
type backends struct {
	mqtt   *mqtt.Client
	influx *influxdb.Client
}

// connectBackends connects MQTT and InfluxDB concurrently. Failures are
// logged and leave the corresponding field nil; the registry runs without them.
func connectBackends(ctx context.Context, cfg *config.Config, log *logging.Logger) *backends {
	b := &backends{}
	g, gctx := errgroup.WithContext(ctx)

	if cfg.MQTT.Enabled {
		g.Go(func() error {
			client, err := mqtt.Connect(cfg.MQTT, log.Component("mqtt"))
			if err != nil {
				log.Warn("MQTT unavailable, events will not be published", "error", err)
				return nil
			}
			log.Info("MQTT connected",
				"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
				"client_id", cfg.MQTT.Broker.ClientID,
			)
			b.mqtt = client
			return nil
		})
	} else {
		log.Info("MQTT disabled")
	}

	if cfg.InfluxDB.Enabled {
		g.Go(func() error {
			client, err := influxdb.Connect(gctx, cfg.InfluxDB)
			if err != nil {
				log.Warn("InfluxDB unavailable, auth telemetry disabled", "error", err)
				return nil
			}
			client.SetOnError(func(err error) {
				log.Error("InfluxDB write error", "error", err)
			})
			log.Info("InfluxDB connected",
				"url", cfg.InfluxDB.URL,
				"org", cfg.InfluxDB.Org,
				"bucket", cfg.InfluxDB.Bucket,
			)
			b.influx = client
			return nil
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	_ = g.Wait() //nolint:errcheck // goroutines never return an error
	return b
}

func (b *backends) close(log *logging.Logger) {
	if b.influx != nil {
		log.Info("closing InfluxDB connection")
		if err := b.influx.Close(); err != nil {
			log.Error("error closing InfluxDB", "error", err)
		}
	}
	if b.mqtt != nil {
		log.Info("disconnecting from MQTT")
		if err := b.mqtt.Close(); err != nil {
			log.Error("error closing MQTT", "error", err)
		}
	}
}

// buildServer wires the stores, services and optional backends into the
// API server.
func buildServer(cfg *config.Config, log *logging.Logger, db *database.DB, b *backends) (*api.Server, error) {
	metrics := api.NewMetrics()

	observe := metrics.ObserveDecision
	if b.influx != nil {
		observe = func(check string, actorID int64, allowed bool) {
			metrics.ObserveDecision(check, actorID, allowed)
			b.influx.WriteAuthzDecision(check, actorID, allowed)
		}
	}

	staffRepo := auth.NewStaffRepository(db.DB)
	policy := auth.NewPolicy(staffRepo, auth.WithDecisionObserver(observe))

	authSvc, err := auth.NewService(staffRepo, policy, log.Logger,
		auth.WithMinPasswordLength(cfg.Security.Password.MinLength))
	if err != nil {
		return nil, fmt.Errorf("creating auth service: %w", err)
	}
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret:   cfg.Security.JWT.Secret,
		Issuer:   cfg.Security.JWT.Issuer,
		Audience: cfg.Security.JWT.Audience,
		TTL:      cfg.Security.JWT.TTL(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	students := student.NewService(student.NewSQLiteRepository(db.DB), policy)
	staffSvc := staff.NewService(staffRepo, policy, students, log.Logger, cfg.Security.Password.MinLength)

	deps := api.Deps{
		Config:    cfg.API,
		Security:  cfg.Security,
		Logger:    log,
		DB:        db,
		Tokens:    tokens,
		Auth:      authSvc,
		Policy:    policy,
		Staff:     staffSvc,
		Students:  students,
		AuditRepo: audit.NewSQLiteRepository(db.DB),
		Events:    events.Nop{},
		Metrics:   metrics,
		Version:   version,
	}
	// Interface fields stay nil for disabled backends so the health check
	// reports them as disabled.
	if b.mqtt != nil {
		deps.MQTT = b.mqtt
		deps.Events = events.NewMQTTPublisher(b.mqtt, b.mqtt.Topics(), b.mqtt.QoS())
	}
	if b.influx != nil {
		deps.Influx = b.influx
		deps.Logins = b.influx
	}

	srv, err := api.New(deps)
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}
	return srv, nil
}
