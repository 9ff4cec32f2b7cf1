// sensorlink - environmental sensor acquisition and delivery daemon.
//
// sensorlink polls the I2C sensors attached to a node on a jittered period,
// keeps undelivered readings in a bounded in-memory retry buffer, and drains
// that buffer to a collector (Graphite, InfluxDB or MQTT) whenever the
// network link can be brought up.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/spf13/pflag"
	"periph.io/x/conn/v3/physic"

	"github.com/nerrad567/sensorlink/internal/bus"
	"github.com/nerrad567/sensorlink/internal/infrastructure/config"
	"github.com/nerrad567/sensorlink/internal/infrastructure/database"
	"github.com/nerrad567/sensorlink/internal/infrastructure/graphite"
	"github.com/nerrad567/sensorlink/internal/infrastructure/influxdb"
	"github.com/nerrad567/sensorlink/internal/infrastructure/logging"
	"github.com/nerrad567/sensorlink/internal/infrastructure/mqtt"
	"github.com/nerrad567/sensorlink/internal/journal"
	"github.com/nerrad567/sensorlink/internal/link"
	"github.com/nerrad567/sensorlink/internal/pipeline"
	"github.com/nerrad567/sensorlink/internal/scheduler"
	"github.com/nerrad567/sensorlink/internal/sensor"
	"github.com/nerrad567/sensorlink/internal/sensor/bme280"
	"github.com/nerrad567/sensorlink/internal/sensor/scd4x"
	"github.com/nerrad567/sensorlink/internal/sensor/tsl2591"
	"github.com/nerrad567/sensorlink/internal/status"
	"github.com/nerrad567/sensorlink/internal/telemetry"
	"github.com/nerrad567/sensorlink/migrations"
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

// healthCheckTimeout bounds the startup infrastructure checks.
const healthCheckTimeout = 10 * time.Second

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if opts.showVersion {
		fmt.Printf("sensorlink %s (%s, %s)\n", version, commit, date)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts.configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the command line flags.
type options struct {
	configPath  string
	showVersion bool
}

// parseFlags reads the command line. The config path falls back to
// SENSORLINK_CONFIG and then to defaultConfigPath.
func parseFlags(args []string, output io.Writer) (options, error) {
	var opts options

	fs := pflag.NewFlagSet("sensorlink", pflag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVarP(&opts.configPath, "config", "c", "", "path to the configuration file")
	fs.BoolVar(&opts.showVersion, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.configPath == "" {
		opts.configPath = getConfigPath()
	}
	return opts, nil
}

// getConfigPath returns the configuration file path.
// Uses SENSORLINK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SENSORLINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// run is the actual application logic, separated from main for testability.
// It returns nil on a clean shutdown.
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting sensorlink",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	defer log.Close() //nolint:errcheck // nothing left to report to
	log = log.With("site", cfg.Site.ID)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
		"output", cfg.Logging.Output,
	)

	clk := clock.New()

	// Bus and sensors. Any initialisation failure is fatal.
	busHandle, err := bus.OpenHost(cfg.Bus.Device, physic.Frequency(cfg.Bus.SpeedKHz)*physic.KiloHertz)
	if err != nil {
		return fmt.Errorf("opening I2C bus: %w", err)
	}
	defer func() {
		st := busHandle.Stats()
		log.Info("closing I2C bus", "transactions", st.Transactions, "errors", st.Errors)
		if closeErr := busHandle.Close(); closeErr != nil {
			log.Error("error closing I2C bus", "error", closeErr)
		}
	}()
	log.Info("I2C bus opened", "bus", busHandle.String(), "speed_khz", cfg.Bus.SpeedKHz)

	registry := newRegistry()
	log.Debug("sensor kinds registered", "kinds", registry.Kinds())
	sensors, err := registry.OpenAll(ctx, sensor.Env{Bus: busHandle, Clock: clk, Logger: log}, sensorDefinitions(cfg.Sensors))
	if err != nil {
		return fmt.Errorf("initialising sensors: %w", err)
	}

	capacity := cfg.Buffer.Capacity
	if capacity == 0 {
		capacity = telemetry.CapacityFor(cfg.Schedule.Period)
	}
	buffer, err := telemetry.NewBuffer(capacity)
	if err != nil {
		return fmt.Errorf("creating retry buffer: %w", err)
	}
	log.Info("retry buffer ready", "capacity", buffer.Cap())

	// MQTT session, shared by the mqtt collector and the status reporter.
	var mqttClient *mqtt.Client
	if cfg.UsesMQTT() {
		mqttClient, err = mqtt.New(cfg.MQTT, cfg.Site.ID)
		if err != nil {
			return fmt.Errorf("configuring MQTT: %w", err)
		}
		mqttClient.SetLogger(log)
		defer func() {
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	}

	sender, closeSender, err := buildSender(cfg, mqttClient, log)
	if err != nil {
		return fmt.Errorf("configuring collector: %w", err)
	}
	defer closeSender()
	log.Info("collector configured", "type", cfg.Collector.Type)

	netLink, err := buildLink(cfg.Link, mqttClient, log)
	if err != nil {
		return fmt.Errorf("configuring link: %w", err)
	}
	log.Info("link configured", "type", cfg.Link.Type, "linger", cfg.Link.Linger)

	var observers []pipeline.Observer

	// Cycle journal (optional).
	var db *database.DB
	if cfg.Journal.Enabled {
		db, err = database.Open(ctx, database.Config{
			Path:        cfg.Journal.Path,
			WALMode:     cfg.Journal.WALMode,
			BusyTimeout: cfg.Journal.BusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("opening journal database: %w", err)
		}
		defer func() {
			log.Info("closing journal database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing journal database", "error", closeErr)
			}
		}()
		if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}

		repo := journal.NewSQLiteRepository(db.DB)
		logPreviousCycle(ctx, repo, log)

		j, jerr := journal.New(journal.Config{
			Repository: repo,
			SiteID:     cfg.Site.ID,
			Retention:  time.Duration(cfg.Journal.RetentionDays) * 24 * time.Hour,
			Clock:      clk,
			Logger:     log,
		})
		if jerr != nil {
			return fmt.Errorf("creating journal: %w", jerr)
		}
		observers = append(observers, j)
		log.Info("cycle journal enabled", "path", db.Path(), "retention_days", cfg.Journal.RetentionDays)
	}

	if cfg.MQTT.Status && mqttClient != nil {
		observers = append(observers, status.New(status.Config{
			Publisher:     mqttClient,
			Topic:         mqttClient.Topics().Status(),
			Site:          cfg.Site.ID,
			Version:       version,
			Bus:           busHandle,
			SensorSerials: sensorSerials(sensors),
			Clock:         clk,
			Logger:        log,
		}))
		log.Info("status reporting enabled", "topic", mqttClient.Topics().Status())
	}

	if err := healthCheck(ctx, db, collectorCheck(cfg, sender), log); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	p, err := pipeline.New(pipeline.Config{
		Sensors:   sensors,
		Buffer:    buffer,
		Link:      netLink,
		Sender:    sender,
		Linger:    cfg.Link.Linger,
		Observers: observers,
		Clock:     clk,
		Logger:    log,
	})
	if err != nil {
		return fmt.Errorf("creating pipeline: %w", err)
	}

	sched, err := scheduler.New(scheduler.Config{
		Period: cfg.Schedule.Period,
		Jitter: cfg.Schedule.Jitter,
		Clock:  clk,
		Logger: log,
	})
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}

	log.Info("sensorlink started",
		"sensors", len(sensors),
		"period", cfg.Schedule.Period,
		"jitter", cfg.Schedule.Jitter,
	)

	err = sched.Run(ctx, func(ctx context.Context) { p.RunCycle(ctx) })
	if errors.Is(err, context.Canceled) {
		log.Info("shutdown signal received", "cycles", sched.Cycles(), "pending", buffer.Len())
		return nil
	}
	return err
}

// newRegistry returns the registry of supported sensor kinds.
func newRegistry() *sensor.Registry {
	r := sensor.NewRegistry()
	r.Register(scd4x.Kind, scd4x.Factory)
	r.Register(bme280.Kind, bme280.Factory)
	r.Register(tsl2591.Kind, tsl2591.Factory)
	return r
}

func sensorDefinitions(cfgs []config.SensorConfig) []sensor.Definition {
	defs := make([]sensor.Definition, 0, len(cfgs))
	for _, s := range cfgs {
		defs = append(defs, sensor.Definition{
			Kind:    s.Kind,
			Name:    s.Name,
			Address: uint16(s.Address), //nolint:gosec // validated to 0..0x7F
		})
	}
	return defs
}

// serialReporter is implemented by drivers that read a chip serial number.
type serialReporter interface {
	Serial() uint64
}

// sensorSerials maps sensor names to their chip serial numbers.
func sensorSerials(sensors []sensor.Sensor) map[string]string {
	serials := make(map[string]string)
	for _, s := range sensors {
		if sr, ok := s.(serialReporter); ok {
			serials[s.Name()] = fmt.Sprintf("%#012x", sr.Serial())
		}
	}
	if len(serials) == 0 {
		return nil
	}
	return serials
}

// logPreviousCycle reports the last journalled cycle. Batches it left
// pending were held in memory only and did not survive the restart.
func logPreviousCycle(ctx context.Context, repo journal.Repository, log *logging.Logger) {
	entries, err := repo.Recent(ctx, 1)
	if err != nil {
		log.Warn("reading journal failed", "error", err)
		return
	}
	if len(entries) == 0 {
		return
	}
	last := entries[0]
	log.Info("previous run",
		"last_cycle", last.StartedAt,
		"pending_lost", last.Pending,
		"evicted_total", last.EvictedTotal,
	)
}

// buildSender creates the configured collector. The returned func releases
// its resources.
func buildSender(cfg *config.Config, mqttClient *mqtt.Client, log *logging.Logger) (pipeline.Sender, func(), error) {
	noop := func() {}

	switch cfg.Collector.Type {
	case config.CollectorGraphite:
		c, err := graphite.New(cfg.Graphite)
		if err != nil {
			return nil, noop, err
		}
		c.SetLogger(log)
		return c, noop, nil

	case config.CollectorInfluxDB:
		c, err := influxdb.New(cfg.InfluxDB, cfg.Site.ID)
		if err != nil {
			return nil, noop, err
		}
		c.SetLogger(log)
		return c, func() {
			if closeErr := c.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}, nil

	case config.CollectorMQTT:
		if mqttClient == nil {
			return nil, noop, errors.New("mqtt collector without MQTT client")
		}
		return mqtt.NewSender(mqttClient), noop, nil
	}
	return nil, noop, fmt.Errorf("unknown collector type %q", cfg.Collector.Type)
}

// buildLink creates the configured link. An MQTT session, when present, is
// closed before the link goes down so the broker sees a clean disconnect.
func buildLink(cfg config.LinkConfig, mqttClient *mqtt.Client, log *logging.Logger) (link.Link, error) {
	var inner link.Link
	switch cfg.Type {
	case config.LinkNone:
		inner = link.None{}
	case config.LinkCommand:
		c, err := link.NewCommand(link.CommandConfig{
			Name:          "network",
			Up:            cfg.Up,
			Down:          cfg.Down,
			Check:         cfg.Check,
			Timeout:       cfg.Timeout,
			ResetBeforeUp: cfg.ResetBeforeUp,
		})
		if err != nil {
			return nil, err
		}
		c.SetLogger(log)
		inner = c
	default:
		return nil, fmt.Errorf("unknown link type %q", cfg.Type)
	}

	if mqttClient == nil {
		return inner, nil
	}
	return link.WithRelease(inner, func(context.Context) { mqttClient.Disconnect() }), nil
}

// checker is implemented by infrastructure clients with a HealthCheck.
type checker interface {
	HealthCheck(ctx context.Context) error
}

// collectorCheck returns the collector to check at startup, or nil when the
// link is only brought up during cycles.
func collectorCheck(cfg *config.Config, sender pipeline.Sender) checker {
	if cfg.Link.Type != config.LinkNone {
		return nil
	}
	c, ok := sender.(checker)
	if !ok {
		return nil
	}
	return c
}

// healthCheck verifies local infrastructure at startup. The journal database
// must be healthy. A collector failure is only logged: the retry buffer
// covers collector outages.
func healthCheck(ctx context.Context, db *database.DB, collector checker, log *logging.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("journal database: %w", err)
		}
	}

	if collector != nil {
		if err := collector.HealthCheck(ctx); err != nil {
			log.Warn("collector not reachable at startup, readings will be buffered", "error", err)
		}
	}
	return nil
}
