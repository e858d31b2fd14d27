// Gray Logic Z-Wave gateway.
//
// The gateway keeps a live model of a Z-Wave network fed by the driver
// daemon over MQTT, runs the time-based home automation (sunrise, sunset,
// thermostat pushes, at-home scenes) and serves the command protocol to
// clients over a TCP line socket and a WebSocket.
//
// Usage:
//
//	zwgateway                      run the gateway
//	zwgateway token -subject ann   print a signed access token (jwt auth mode)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/nerrad567/gray-logic-zwave/internal/api"
	"github.com/nerrad567/gray-logic-zwave/internal/auth"
	"github.com/nerrad567/gray-logic-zwave/internal/bridges/zwave"
	"github.com/nerrad567/gray-logic-zwave/internal/gateway"
	"github.com/nerrad567/gray-logic-zwave/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-zwave/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-zwave/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-zwave/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-zwave/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-zwave/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-zwave/internal/process"
	"github.com/nerrad567/gray-logic-zwave/internal/socket"
	"github.com/nerrad567/gray-logic-zwave/migrations"
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

// readyTimeout bounds the wait for the driver's initial node queries.
const readyTimeout = 5 * time.Minute

func main() {
	// A missing .env is normal in production.
	_ = godotenv.Load()

	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := runToken(os.Args[2:], os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on a clean shutdown, whether triggered by a signal or by
// the EXIT command.
func run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	log := logging.Default()
	log.Info("starting Gray Logic Z-Wave gateway",
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

	// Database
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
	log.Info("database ready", "path", cfg.Database.Path)

	m := metrics.New()

	// Driver daemon (if managed)
	if cfg.Driver.Daemon.Managed {
		daemon := process.New(process.FromDaemonConfig(cfg.Driver.Daemon))
		daemon.SetLogger(log.Component("daemon"))
		if startErr := daemon.Start(ctx); startErr != nil {
			return fmt.Errorf("starting driver daemon: %w", startErr)
		}
		defer func() {
			log.Info("stopping driver daemon")
			if stopErr := daemon.Stop(); stopErr != nil {
				log.Error("error stopping driver daemon", "error", stopErr)
			}
		}()
	}

	// MQTT
	mqttClient, err := mqtt.Connect(cfg.MQTT, mqtt.Topics{Prefix: cfg.Driver.TopicPrefix})
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
	mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
	mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
	log.Info("MQTT connected",
		"broker", net.JoinHostPort(cfg.MQTT.Broker.Host, strconv.Itoa(cfg.MQTT.Broker.Port)),
		"topic_prefix", cfg.Driver.TopicPrefix,
	)

	// Z-Wave driver bridge
	bridge, err := zwave.New(zwave.Options{
		Topics:      mqttClient.Topics(),
		MQTT:        mqttClient,
		Store:       zwave.NewStore(db),
		EventBuffer: cfg.Driver.EventBuffer,
		Metrics:     m,
	})
	if err != nil {
		return fmt.Errorf("creating Z-Wave bridge: %w", err)
	}
	bridge.SetLogger(log.Component("zwave"))
	if startErr := bridge.Start(ctx); startErr != nil {
		return fmt.Errorf("starting Z-Wave bridge: %w", startErr)
	}
	defer func() {
		log.Info("stopping Z-Wave bridge")
		bridge.Stop()
	}()

	// Gateway
	gw := gateway.New(bridge, gatewayOptions(cfg))
	gw.SetLogger(log.Component("gateway"))
	gw.SetMetrics(m)
	gw.SetShutdown(cancel)

	checks := map[string]api.HealthChecker{
		"database": db,
		"mqtt":     mqttClient,
	}

	if cfg.InfluxDB.Enabled {
		influxClient, connErr := influxdb.Connect(cfg.InfluxDB)
		if connErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", connErr)
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
		gw.SetTelemetry(influxClient)
		checks["influxdb"] = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	validator, err := buildValidator(cfg.Auth, log)
	if err != nil {
		return err
	}
	if validator != nil {
		validator.Start()
		defer validator.Stop()
		gw.SetValidator(validator)
	}

	// The HTTP server owns the WebSocket hub, which must be the gateway's
	// broadcaster before any event is processed.
	srv, err := api.New(api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log.Component("api"),
		Gateway: gw,
		Metrics: m,
		Checks:  checks,
		Stats:   db,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	gw.SetBroadcaster(srv.Hub())

	go gw.Run(ctx)

	if readyErr := waitForDriver(ctx, gw, log); readyErr != nil {
		if errors.Is(readyErr, context.Canceled) {
			log.Info("shutdown requested during startup")
			return nil
		}
		return readyErr
	}

	if cfg.Gateway.PollInterval > 0 {
		interval := time.Duration(cfg.Gateway.PollInterval) * time.Minute
		if pollErr := bridge.SetPollInterval(ctx, interval); pollErr != nil {
			log.Warn("setting poll interval failed", "error", pollErr)
		}
	}

	if cfg.Cron.Enabled {
		runner, cronErr := gateway.NewCronRunner(gw, cfg.Cron.Schedule, cfg.TimeLocation())
		if cronErr != nil {
			return fmt.Errorf("creating cron runner: %w", cronErr)
		}
		runner.Start(ctx)
		log.Info("daily cron scheduled", "schedule", cfg.Cron.Schedule, "next", runner.Next())
	}

	if startErr := srv.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()

	lines := socket.New(net.JoinHostPort(cfg.Gateway.Host, strconv.Itoa(cfg.Gateway.Port)), gw)
	lines.SetLogger(log.Component("socket"))
	lines.SetMetrics(m)
	if startErr := lines.Start(ctx); startErr != nil {
		return fmt.Errorf("starting line protocol server: %w", startErr)
	}
	defer func() {
		log.Info("stopping line protocol server")
		if closeErr := lines.Close(); closeErr != nil {
			log.Error("error stopping line protocol server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete",
		"line_addr", lines.Addr(),
		"api_addr", net.JoinHostPort(cfg.API.Host, strconv.Itoa(cfg.API.Port)),
		"auth_mode", cfg.Auth.Mode,
	)

	<-ctx.Done()
	log.Info("shutdown requested, cleaning up")

	// Deferred Close() calls run in reverse order: line socket, API server,
	// auth cache, InfluxDB, bridge, MQTT, daemon, database.
	return nil
}

// waitForDriver blocks until the driver has queried the network, then
// builds the gateway's derived state.
func waitForDriver(ctx context.Context, gw *gateway.Gateway, log *logging.Logger) error {
	log.Info("waiting for Z-Wave driver")

	readyCtx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	if err := gw.WaitReady(readyCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("waiting for Z-Wave driver: %w", err)
	}
	if err := gw.Snapshot(ctx); err != nil {
		return fmt.Errorf("building gateway state: %w", err)
	}
	log.Info("Z-Wave network ready", "home_id", fmt.Sprintf("%08x", gw.HomeID()))
	return nil
}

// gatewayOptions maps the configuration onto gateway.Options.
func gatewayOptions(cfg *config.Config) gateway.Options {
	return gateway.Options{
		Latitude:  cfg.Site.Location.Latitude,
		Longitude: cfg.Site.Location.Longitude,
		Location:  cfg.TimeLocation(),
		Scenes: gateway.SceneNames{
			Morning: cfg.Scenes.Morning,
			Day:     cfg.Scenes.Day,
			Night:   cfg.Scenes.Night,
			Away:    cfg.Scenes.Away,
		},
		UpdateDelay:     config.Seconds(cfg.Gateway.UpdateDelay),
		ThermostatDelay: config.Seconds(cfg.Gateway.ThermostatDelay),
		CacheInitDelay:  config.Seconds(cfg.Gateway.CacheInitDelay),
	}
}

// buildValidator returns the token validator for the configured auth mode,
// or nil when WebSocket clients are trusted.
func buildValidator(cfg config.AuthConfig, log *logging.Logger) (*auth.CachingValidator, error) {
	var next auth.Validator
	switch cfg.Mode {
	case config.AuthModeNone, "":
		log.Warn("WebSocket authentication disabled")
		return nil, nil
	case config.AuthModeSocket:
		exchange := auth.NewSocketExchange(auth.SocketConfig{
			Path:         cfg.SocketPath,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
		})
		exchange.SetLogger(log.Component("auth"))
		next = exchange
	case config.AuthModeJWT:
		next = auth.NewJWTValidator(cfg.JWTSecret)
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
	log.Info("WebSocket authentication enabled", "mode", cfg.Mode, "cache_ttl", cfg.CacheTTL)
	return auth.NewCachingValidator(next, config.Seconds(cfg.CacheTTL)), nil
}

// runToken implements the token subcommand.
func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(out)
	subject := fs.String("subject", "", "token subject (required)")
	name := fs.String("name", "", "display name carried in the profile")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *subject == "" {
		return errors.New("token: -subject is required")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("token: auth.jwt_secret is not set")
	}

	token, err := auth.GenerateToken(*subject, *name, cfg.Auth.JWTSecret, *ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
