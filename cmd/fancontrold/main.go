// fancontrold exposes the host's fan, temperature and fan-control readings
// to one trusted local front end over a private TCP channel.
//
// The daemon binds the first free port from the configured range, accepts a
// single peer, verifies the handshake, sends the hardware snapshot and then
// serves commands until the peer sends Shutdown or a signal arrives. Every
// overridden control is handed back to automatic mode on the way out.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/pflag"

	_ "github.com/nerrad567/fancontrol-core/migrations"

	"github.com/nerrad567/fancontrol-core/internal/api"
	"github.com/nerrad567/fancontrol-core/internal/dispatch"
	"github.com/nerrad567/fancontrol-core/internal/hardware"
	"github.com/nerrad567/fancontrol-core/internal/hardware/fake"
	"github.com/nerrad567/fancontrol-core/internal/hardware/hwmon"
	"github.com/nerrad567/fancontrol-core/internal/infrastructure/config"
	"github.com/nerrad567/fancontrol-core/internal/infrastructure/database"
	"github.com/nerrad567/fancontrol-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/fancontrol-core/internal/infrastructure/logging"
	"github.com/nerrad567/fancontrol-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/fancontrol-core/internal/journal"
	"github.com/nerrad567/fancontrol-core/internal/lifecycle"
	"github.com/nerrad567/fancontrol-core/internal/protocol"
	"github.com/nerrad567/fancontrol-core/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// telemetryQueueSize bounds the events buffered for slow recorders.
const telemetryQueueSize = 256

func main() {
	// Cancels startup on a signal. Once the session is up the shutdown
	// coordinator watches signals itself.
	ctx, cancel := signal.NotifyContext(context.Background(), lifecycle.Signals()...)
	defer cancel()

	if err := run(ctx, os.Args[1:], nil); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

// options are the command-line flags.
type options struct {
	verbose     bool
	configPath  string
	backend     string
	port        int
	showVersion bool

	fs *pflag.FlagSet
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}
	fs := pflag.NewFlagSet("fancontrold", pflag.ContinueOnError)
	fs.BoolVarP(&opts.verbose, "log", "v", false, "log at debug level instead of errors only")
	fs.StringVar(&opts.configPath, "config", "", "configuration file (YAML or TOML); defaults to $FANCONTROL_CONFIG")
	fs.StringVar(&opts.backend, "backend", "", "hardware backend: hwmon or fake")
	fs.IntVar(&opts.port, "port", 0, "first port tried for the peer socket")
	fs.BoolVar(&opts.showVersion, "version", false, "print the version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}
	opts.fs = fs
	return opts, nil
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Cancelled by a signal during startup
//   - args: Command-line arguments without the program name
//   - listening: Called with the bound peer port. Optional.
//
// Returns:
//   - error: nil on graceful shutdown, or error describing failure
func run(ctx context.Context, args []string, listening func(port int)) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	if opts.showVersion {
		fmt.Printf("fancontrold %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	// Subscribe before anything slow so a signal that lands between startup
	// and the command loop is not lost.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, lifecycle.Signals()...)
	defer signal.Stop(signals)

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	log := logging.New(cfg.Logging, version)
	defer func() {
		if err := log.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "closing log file: %v\n", err)
		}
	}()
	log.Info("starting fancontrold",
		"version", version,
		"commit", commit,
		"build_date", date,
		"backend", cfg.Hardware.Backend,
	)

	source, err := newSource(cfg.Hardware, log)
	if err != nil {
		return err
	}

	var (
		recorders telemetry.Multi
		sinks     []lifecycle.NamedSink
	)

	// Override journal (if enabled)
	var (
		db  *database.DB
		jnl *journal.Journal
	)
	if cfg.Journal.Enabled {
		db, err = database.Open(ctx, database.Config{
			Path:        cfg.Journal.Path,
			WALMode:     cfg.Journal.WALMode,
			BusyTimeout: cfg.Journal.BusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("opening journal: %w", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.Error("error closing journal", "error", err)
			}
		}()
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("migrating journal: %w", err)
		}
		jnl = journal.New(db.DB)
		jnl.SetLogger(log.With("component", "journal"))
		recorders = append(recorders, jnl)
		log.Info("journal ready", "path", db.Path())
	}

	// MQTT telemetry (if enabled)
	var (
		mqttClient *mqtt.Client
		mqttRec    *telemetry.MQTTRecorder
	)
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT connected", "broker", cfg.MQTT.Broker.Host)
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		// #nosec G115 -- qos validated to 0..2 by config
		mqttRec = telemetry.NewMQTT(mqttClient, mqttClient.Topics(), byte(cfg.MQTT.QoS), log)
		recorders = append(recorders, mqttRec)
		log.Info("MQTT telemetry enabled", "prefix", cfg.MQTT.TopicPrefix)
	}

	// InfluxDB history (if enabled)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			if mqttClient != nil {
				mqttClient.Close() //nolint:errcheck // startup already failing
			}
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		recorders = append(recorders, telemetry.NewInflux(influxClient))
		log.Info("InfluxDB history enabled", "url", cfg.InfluxDB.URL)
	}

	// Recorders run behind one queue so the command loop never waits on
	// disk or network.
	async := telemetry.NewAsync(recorders, telemetryQueueSize, log)

	// Released after the registry, in this order.
	sinks = append(sinks, lifecycle.NamedSink{Name: "telemetry", Fn: func(context.Context, lifecycle.Reason) error {
		async.Close()
		return nil
	}})
	if jnl != nil {
		sinks = append(sinks, lifecycle.NamedSink{Name: "journal", Fn: func(ctx context.Context, reason lifecycle.Reason) error {
			if jnl.SessionID() == "" {
				return nil
			}
			return jnl.EndSession(ctx, string(reason), lifecycle.Unreleased(ctx)...)
		}})
	}
	if mqttClient != nil {
		sinks = append(sinks, lifecycle.NamedSink{Name: "mqtt", Fn: func(context.Context, lifecycle.Reason) error {
			return mqttClient.Close()
		}})
	}
	if influxClient != nil {
		sinks = append(sinks, lifecycle.NamedSink{Name: "influxdb", Fn: func(context.Context, lifecycle.Reason) error {
			return influxClient.Close()
		}})
	}

	deps := lifecycle.Deps{
		Protocol: protocol.Config{
			Address: cfg.Server.Address,
			Port:    cfg.Server.Port,
			MaxPort: cfg.Server.MaxPort,
		},
		Source:    source,
		Backend:   cfg.Hardware.Backend,
		Sinks:     sinks,
		Listening: listening,
		Logger:    log,
	}
	if jnl != nil {
		deps.Journal = jnl
	}

	sess, err := lifecycle.Start(ctx, deps)
	if err != nil {
		if ctx.Err() != nil {
			log.Info("interrupted during startup")
			return nil
		}
		return err
	}
	go sess.Shutdown.Watch(signals)

	log.Info("peer connected", "port", sess.Server.Port(), "session", sess.SessionID)

	if mqttRec != nil {
		if err := mqttRec.PublishSnapshot(sess.Registry.Snapshot()); err != nil {
			log.Warn("publishing hardware snapshot failed", "error", err)
		}
	}

	dispatcher := dispatch.New(sess.Server, sess.Registry)
	dispatcher.SetRecorder(async)
	dispatcher.SetLogger(log.With("component", "dispatch"))

	// Status endpoint (if enabled)
	if cfg.Status.Enabled {
		status, err := startStatus(ctx, cfg, log, sess, dispatcher, async, db, jnl, mqttClient, influxClient)
		if err != nil {
			sess.Shutdown.Trigger(lifecycle.ReasonFailure)
			sess.Shutdown.Wait()
			return err
		}
		defer func() {
			if err := status.Close(context.Background()); err != nil {
				log.Error("error closing status server", "error", err)
			}
		}()
	}

	// The background context keeps a startup-only cancellation from
	// interrupting the loop; signals now go through the coordinator.
	if err := sess.Run(context.Background(), dispatcher); err != nil {
		return fmt.Errorf("command loop: %w", err)
	}

	log.Info("fancontrold stopped", "reason", string(sess.Shutdown.Reason()))
	return nil
}

// loadConfig reads the configuration and applies flag overrides.
func loadConfig(opts *options) (*config.Config, error) {
	path := opts.configPath
	if path == "" {
		path = os.Getenv("FANCONTROL_CONFIG")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if opts.verbose {
		cfg.Logging.Level = "debug"
	}
	if opts.fs.Changed("backend") {
		cfg.Hardware.Backend = opts.backend
	}
	if opts.fs.Changed("port") {
		cfg.Server.Port = opts.port
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating flags: %w", err)
	}
	return cfg, nil
}

// newSource creates the configured hardware collaborator.
func newSource(cfg config.HardwareConfig, log *logging.Logger) (hardware.Source, error) {
	switch cfg.Backend {
	case "fake":
		layout := fake.DefaultLayout()
		if cfg.FakeLayout != "" {
			l, err := fake.LoadLayout(cfg.FakeLayout)
			if err != nil {
				return nil, fmt.Errorf("loading fake layout: %w", err)
			}
			layout = l
		}
		return fake.New(layout), nil
	case "hwmon":
		src := hwmon.New(hwmon.Config{SysRoot: cfg.SysfsRoot})
		src.SetLogger(log.With("component", "hwmon"))
		return src, nil
	}
	return nil, errors.New("unknown hardware backend: " + cfg.Backend)
}

// startStatus starts the read-only HTTP status endpoint.
func startStatus(
	ctx context.Context,
	cfg *config.Config,
	log *logging.Logger,
	sess *lifecycle.Session,
	dispatcher *dispatch.Dispatcher,
	async *telemetry.Async,
	db *database.DB,
	jnl *journal.Journal,
	mqttClient *mqtt.Client,
	influxClient *influxdb.Client,
) (*api.Server, error) {
	deps := api.Deps{
		Config:    cfg.Status,
		Logger:    log.With("component", "status"),
		Hardware:  sess.Registry,
		Commands:  dispatcher,
		Telemetry: async,
		Shutdown:  sess.Shutdown,
		SessionID: sess.SessionID,
		PeerPort:  sess.Server.Port(),
		Version:   version,
	}
	// Assigned one by one so a nil pointer never becomes a non-nil interface.
	if jnl != nil {
		deps.Journal = jnl
	}
	if db != nil {
		deps.DB = db.DB
	}
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}
	if influxClient != nil {
		deps.Influx = influxClient
	}

	srv, err := api.New(deps)
	if err != nil {
		return nil, fmt.Errorf("creating status server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting status server: %w", err)
	}
	return srv, nil
}
