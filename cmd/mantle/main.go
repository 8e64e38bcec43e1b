package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/joyautomation/mantle/internal/alarm"
	"github.com/joyautomation/mantle/internal/api"
	"github.com/joyautomation/mantle/internal/cascade"
	"github.com/joyautomation/mantle/internal/config"
	"github.com/joyautomation/mantle/internal/eventbus"
	"github.com/joyautomation/mantle/internal/hidden"
	"github.com/joyautomation/mantle/internal/hotcache"
	"github.com/joyautomation/mantle/internal/ingress"
	"github.com/joyautomation/mantle/internal/mqttclient"
	"github.com/joyautomation/mantle/internal/properties"
	"github.com/joyautomation/mantle/internal/storage"
	"github.com/joyautomation/mantle/internal/topology"
)

// version, commit, and buildTime are injected at build time via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	var overrides config.Overrides
	var dbSSL bool
	var showVersion, migrateOnly bool
	flag.StringVar(&overrides.EnvFile, "env-file", "", "Path to .env file (default: .env)")
	flag.StringVar(&overrides.BrokerURL, "broker-url", "", "MQTT broker URL (overrides MANTLE_BROKER_URL)")
	flag.StringVar(&overrides.Username, "username", "", "MQTT username (overrides MANTLE_USERNAME)")
	flag.StringVar(&overrides.Password, "password", "", "MQTT password (overrides MANTLE_PASSWORD)")
	flag.StringVar(&overrides.ClientID, "client-id", "", "MQTT client id (overrides MANTLE_CLIENT_ID)")
	flag.StringVar(&overrides.DBHost, "db-host", "", "Database host (overrides MANTLE_DB_HOST)")
	flag.StringVar(&overrides.DBPort, "db-port", "", "Database port (overrides MANTLE_DB_PORT)")
	flag.StringVar(&overrides.DBUser, "db-user", "", "Database user (overrides MANTLE_DB_USER)")
	flag.StringVar(&overrides.DBPassword, "db-password", "", "Database password (overrides MANTLE_DB_PASSWORD)")
	flag.StringVar(&overrides.DBName, "db-name", "", "Database name (overrides MANTLE_DB_NAME)")
	flag.BoolVar(&dbSSL, "db-ssl", false, "Require TLS for the database connection (overrides MANTLE_DB_SSL)")
	flag.StringVar(&overrides.DBSSLCA, "db-ssl-ca", "", "Path to a PEM CA bundle for database TLS (overrides MANTLE_DB_SSL_CA)")
	flag.StringVar(&overrides.DBAdminName, "db-admin-name", "", "Administrative database name (overrides MANTLE_DB_ADMIN_NAME)")
	flag.StringVar(&overrides.RedisURL, "redis-url", "", "Redis URL for the hot-value cache (overrides MANTLE_REDIS_URL)")
	flag.StringVar(&overrides.SharedGroup, "shared-group", "", "MQTT 5 shared-subscription group (overrides MANTLE_SHARED_GROUP)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides MANTLE_LOG_LEVEL)")
	flag.BoolVar(&migrateOnly, "migrate", false, "Run database migrations and exit")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "db-ssl" {
			overrides.DBSSL = &dbSSL
		}
	})

	if showVersion {
		fmt.Printf("%s (commit=%s, built=%s)\n", version, commit, buildTime)
		os.Exit(0)
	}

	startTime := time.Now()

	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("invalid config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().
		Str("version", version).
		Str("commit", commit).
		Str("built", buildTime).
		Str("log_level", level.String()).
		Msg("mantle starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage — create the target database via the admin connection on
	// first run, then open the pool and bring the schema up to date.
	dbLog := log.With().Str("component", "storage").Logger()
	if err := storage.EnsureDatabase(ctx, cfg.AdminDatabaseURL(), cfg.DBName, dbLog); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure database exists")
	}
	store, err := storage.Connect(ctx, cfg.DatabaseURL(), int32(cfg.DBPoolMax), int32(cfg.DBPoolMin), dbLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to storage")
	}
	defer store.Close()

	if err := store.InitSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("schema initialization failed")
	}
	if err := store.Migrate(ctx); err != nil {
		var migErr *storage.MigrationError
		if errors.As(err, &migErr) && !migrateOnly {
			// The base tables exist either way; hypertable/compression
			// migrations can be applied manually later.
			log.Warn().Err(err).Msg("time-series migrations incomplete, continuing with plain tables")
		} else {
			log.Fatal().Err(err).Msg("schema migration failed")
		}
	}
	if migrateOnly {
		log.Info().Msg("migrations applied, exiting (--migrate)")
		return
	}

	// Shared in-process fabric
	bus := eventbus.New()
	host := topology.NewHost()
	hiddenStore := hidden.New(store.Pool)
	propStore := properties.New(store.Pool)

	// Alarm engine — load the rule cache, then restore pending timers so
	// delays survive the restart.
	hook := alarm.NewWebhook(cfg.WebhookURL, cfg.WebhookSecret, cfg.SpaceShortID, 10*time.Second, log.With().Str("component", "webhook").Logger())
	alarms := alarm.New(store.Pool, bus, hook, log.With().Str("component", "alarm").Logger())
	if err := alarms.LoadRules(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to load alarm rules")
	}
	if err := alarms.RestoreTimers(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to restore alarm timers")
	}

	// Hot-value cache (optional) — a failed connect falls back to
	// eventbus-only delivery rather than aborting startup.
	var hot *hotcache.Cache
	if cfg.RedisURL != "" {
		hotLog := log.With().Str("component", "hotcache").Logger()
		hot, err = hotcache.Connect(ctx, hotcache.Options{
			RedisURL:   cfg.RedisURL,
			MaxRetries: cfg.RedisMaxRetries,
			RetryDelay: cfg.RedisRetryDelay,
			DrainEvery: cfg.RedisDrainEvery,
			Bus:        bus,
			Log:        hotLog,
		})
		if err != nil {
			hotLog.Warn().Err(err).Msg("hot cache unavailable, falling back to in-memory pub/sub")
			hot = nil
		} else {
			defer hot.Close()
		}
	}

	// MQTT
	mqttLog := log.With().Str("component", "mqtt").Logger()
	mqtt, err := mqttclient.Connect(mqttclient.Options{
		BrokerURL:   cfg.MQTTBrokerURL,
		ClientID:    cfg.MQTTClientID,
		Username:    cfg.MQTTUsername,
		Password:    cfg.MQTTPassword,
		SharedGroup: cfg.SharedGroup,
		Log:         mqttLog,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
	}
	defer mqtt.Close()
	log.Info().Str("broker", cfg.MQTTBrokerURL).Str("client_id", cfg.MQTTClientID).Msg("mqtt connected")

	// Ingress pipeline
	pipeline := ingress.NewPipeline(ingress.Options{
		Store:      store,
		Host:       host,
		Hot:        hot,
		Properties: propStore,
		Alarms:     alarms,
		Bus:        bus,
		MQTT:       mqtt,
		Historian:  cfg.HistorianEnabled,
		Log:        log.With().Str("component", "ingress").Logger(),
	})
	pipeline.Start(ctx)
	defer pipeline.Stop()
	mqtt.SetMessageHandler(pipeline.HandleMessage)

	// Delete cascade
	deleter := &cascade.Engine{
		Host:       host,
		Store:      store,
		Hidden:     hiddenStore,
		Properties: propStore,
		HotCache:   hot,
	}

	// Retention sweep — runs daily; a zero retention disables it inside
	// PurgeExpired.
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, _, err := store.PurgeExpired(ctx, cfg.HistoryRetention); err != nil {
					log.Warn().Err(err).Msg("retention sweep failed")
				}
			}
		}
	}()

	if !cfg.AuthEnabled {
		log.Warn().Msg("MANTLE_AUTH_ENABLED=false — API authentication is disabled, all endpoints are open")
	} else if cfg.AuthTokenGenerated {
		log.Info().Str("token", cfg.AuthToken).Msg("MANTLE_AUTH_TOKEN auto-generated (set it in .env for a persistent token)")
	}

	// HTTP surface
	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(api.ServerOptions{
		Config:    cfg,
		Store:     store,
		MQTT:      mqtt,
		Hot:       hot,
		Host:      host,
		Hidden:    hiddenStore,
		Cascade:   deleter,
		Alarms:    alarms,
		Bus:       bus,
		Writer:    pipeline,
		Ingest:    pipeline,
		Version:   fmt.Sprintf("%s (commit=%s, built=%s)", version, commit, buildTime),
		StartTime: startTime,
		Log:       httpLog,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	log.Info().
		Str("listen", cfg.HTTPAddr).
		Dur("startup_ms", time.Since(startTime)).
		Msg("mantle ready")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("mantle stopped")
}
